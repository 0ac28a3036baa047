package controllers

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/nextias/wct_backend/db"
	"github.com/nextias/wct_backend/models"
	"github.com/nextias/wct_backend/util"
)

func requireAdmin(c *fiber.Ctx) (models.User, bool) {
	user := c.Locals("user").(models.User)
	if user.Role != "admin" {
		return user, false
	}
	return user, true
}

// LoginUser checks credentials and issues a JWT.
func LoginUser(c *fiber.Ctx) error {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Failed to parse request body",
		})
	}
	if err := validator.New().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Email and password are required",
		})
	}

	var user models.User
	err := util.Backend.WithConn(func(q db.Queryer) error {
		row := q.QueryRow(
			"SELECT id, username, email, password_hash, role, is_active FROM users WHERE email = ?",
			req.Email,
		)
		return row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.IsActive)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  "error",
				"message": "invalid credentials",
			})
		}
		status, msg := statusFromError(db.Classify(err))
		return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
	}
	if !user.IsActive {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"status":  "error",
			"message": "Account is deactivated",
		})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status":  "error",
			"message": "invalid credentials",
		})
	}

	token, err := util.JwtGenerate(user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "internal server error",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "success",
		"token":  token,
		"user":   user,
	})
}

// CreateUser lets an admin create an account.
func CreateUser(c *fiber.Ctx) error {
	if _, ok := requireAdmin(c); !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"status":  "error",
			"message": "Only admins can access this endpoint",
		})
	}

	type request struct {
		Username string `json:"username" validate:"required"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		Role     string `json:"role" validate:"omitempty,oneof=admin user"`
	}
	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Failed to parse request body",
		})
	}
	if err := validator.New().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Validation failed",
			"error":   err.Error(),
		})
	}
	if req.Role == "" {
		req.Role = "user"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "internal server error",
		})
	}

	var userID int
	err = util.Backend.WithConn(func(q db.Queryer) error {
		_, err := q.Exec(
			"INSERT INTO users (username, email, password_hash, role, is_active) VALUES (?, ?, ?, ?, TRUE)",
			req.Username, req.Email, string(hash), req.Role,
		)
		if err != nil {
			return db.Classify(err)
		}
		return q.QueryRow("SELECT id FROM users WHERE email = ?", req.Email).Scan(&userID)
	})
	if err != nil {
		if errors.Is(err, db.ErrConstraint) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"status":  "error",
				"message": "A user with this email already exists",
			})
		}
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":  "success",
		"message": "User created",
		"userId":  userID,
	})
}

// GetAllUsers lists accounts for the admin screen.
func GetAllUsers(c *fiber.Ctx) error {
	if _, ok := requireAdmin(c); !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"status":  "error",
			"message": "Only admins can access this endpoint",
		})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	users := []models.User{}
	err := util.Backend.WithConn(func(q db.Queryer) error {
		rows, err := q.Query(`
			SELECT id, username, email, role, is_active, created_at
			FROM users
			ORDER BY created_at DESC, id DESC
			LIMIT ? OFFSET ?
		`, limit, offset)
		if err != nil {
			return db.Classify(err)
		}
		defer rows.Close()

		for rows.Next() {
			var u models.User
			var createdAt string
			if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.IsActive, &createdAt); err != nil {
				return err
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	if err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "success",
		"users":  users,
		"page":   page,
	})
}

// UpdateUserRole changes a user's role between admin and user.
func UpdateUserRole(c *fiber.Ctx) error {
	admin, ok := requireAdmin(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"status":  "error",
			"message": "Only admins can access this endpoint",
		})
	}

	userID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid user id",
		})
	}
	if userID == admin.ID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Cannot change your own role",
		})
	}

	type request struct {
		Role string `json:"role" validate:"required,oneof=admin user"`
	}
	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Failed to parse request body",
		})
	}
	if err := validator.New().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Role must be admin or user",
		})
	}

	var affected int64
	err = util.Backend.WithConn(func(q db.Queryer) error {
		res, err := q.Exec(
			"UPDATE users SET role = ?, updated_at = ? WHERE id = ?",
			req.Role, time.Now().UTC().Format("2006-01-02 15:04:05"), userID,
		)
		if err != nil {
			return db.Classify(err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
	}
	if affected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "User not found",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "success"})
}

// SetUserActive activates or deactivates an account.
func SetUserActive(c *fiber.Ctx) error {
	admin, ok := requireAdmin(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"status":  "error",
			"message": "Only admins can access this endpoint",
		})
	}

	userID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid user id",
		})
	}
	if userID == admin.ID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Cannot deactivate your own account",
		})
	}

	type request struct {
		IsActive *bool `json:"isActive" validate:"required"`
	}
	var req request
	if err := c.BodyParser(&req); err != nil || req.IsActive == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "isActive is required",
		})
	}

	var affected int64
	err = util.Backend.WithConn(func(q db.Queryer) error {
		res, err := q.Exec(
			"UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?",
			*req.IsActive, time.Now().UTC().Format("2006-01-02 15:04:05"), userID,
		)
		if err != nil {
			return db.Classify(err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
	}
	if affected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "User not found",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "success"})
}
