package main

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nextias/wct_backend/db"
	"github.com/nextias/wct_backend/middlewares"
	"github.com/nextias/wct_backend/routers"
	"github.com/nextias/wct_backend/util"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := util.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	backend, err := db.NewBackend(db.Kind(cfg.DBType), cfg.DatabasePath, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't open the database")
	}
	if err := backend.Ping(); err != nil {
		log.Fatal().Err(err).Msg("couldn't connect to the database")
	}
	log.Info().Str("backend", cfg.DBType).Msg("connected to the database")

	if err := db.EnsureSchema(backend, db.SchemaOptions{
		AdminUsername:           cfg.AdminUsername,
		AdminEmail:              cfg.AdminEmail,
		AdminPassword:           cfg.AdminPassword,
		ForceRecreateCartTables: cfg.ForceRecreateCartTables,
		SeedSampleData:          cfg.SeedSampleData,
	}); err != nil {
		log.Fatal().Err(err).Msg("couldn't create tables")
	}
	log.Info().Msg("schema ready")

	util.Backend = backend
	util.Cfg = cfg
	defer backend.Close()

	app := fiber.New()
	app.Use(cors.New())
	routers.SetupRoutes(app)
	app.Use(middlewares.NotFound)

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
