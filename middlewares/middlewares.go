package middlewares

import (
	"database/sql"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/nextias/wct_backend/db"
	"github.com/nextias/wct_backend/models"
	"github.com/nextias/wct_backend/util"
)

func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"status":  "error",
		"message": "Not Found",
	})
}

// Protected resolves the request's JWT into a verified user and stores it in
// c.Locals("user"). The cart subsystem consumes nothing beyond that
// identity.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("Authorization")
		if token == "" {
			token = c.Cookies("token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  "error",
				"message": "No token provided",
			})
		}

		claims, err := util.ParseJWT(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  "error",
				"message": "Invalid token",
			})
		}

		idClaim, ok := claims["id"].(string)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  "error",
				"message": "Invalid token payload",
			})
		}
		userID, err := strconv.Atoi(idClaim)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  "error",
				"message": "Invalid token payload",
			})
		}

		var user models.User
		err = util.Backend.WithConn(func(q db.Queryer) error {
			row := q.QueryRow(
				"SELECT id, username, email, role, is_active FROM users WHERE id = ?",
				userID,
			)
			return row.Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.IsActive)
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"status":  "error",
					"message": "User not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Database error",
			})
		}
		if !user.IsActive {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"status":  "error",
				"message": "Account is deactivated",
			})
		}

		c.Locals("user", user)
		return c.Next()
	}
}
