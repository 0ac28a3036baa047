package routers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nextias/wct_backend/controllers"
	"github.com/nextias/wct_backend/middlewares"
)

func SetupRoutes(app *fiber.App) {

	api := app.Group("/api")

	//Auth
	auth := api.Group("/auth")
	auth.Post("/login", controllers.LoginUser)

	//Admin user management
	users := api.Group("/users")
	users.Post("/", middlewares.Protected(), controllers.CreateUser)
	users.Get("/", middlewares.Protected(), controllers.GetAllUsers)
	users.Put("/:id/role", middlewares.Protected(), controllers.UpdateUserRole)
	users.Put("/:id/active", middlewares.Protected(), controllers.SetUserActive)

	//Question bank browsing
	questions := api.Group("/questions")
	questions.Get("/", middlewares.Protected(), controllers.GetQuestions)
	questions.Get("/:id", middlewares.Protected(), controllers.GetQuestionByID)

	//Test cart and drafts
	cart := api.Group("/cart")
	cart.Get("/", middlewares.Protected(), controllers.GetCart)
	cart.Post("/question", middlewares.Protected(), controllers.AddQuestionToCart)
	cart.Delete("/question", middlewares.Protected(), controllers.RemoveQuestionFromCart)
	cart.Post("/draft", middlewares.Protected(), controllers.SaveDraftCart)
	cart.Get("/drafts", middlewares.Protected(), controllers.GetDraftCarts)
	cart.Delete("/draft/:testId", middlewares.Protected(), controllers.DeleteDraftCart)
	cart.Post("/draft/:testId/finalize", middlewares.Protected(), controllers.FinalizeDraftCart)
	cart.Post("/check-duplicates", middlewares.Protected(), controllers.CheckDuplicates)
}
