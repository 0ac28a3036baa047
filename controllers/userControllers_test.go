package controllers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextias/wct_backend/db"
	"github.com/nextias/wct_backend/middlewares"
	"github.com/nextias/wct_backend/util"
)

func setupUserApp(t *testing.T) *fiber.App {
	t.Helper()

	backend := db.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, db.EnsureSchema(backend, db.SchemaOptions{
		AdminUsername: "superadmin",
		AdminEmail:    testAdminEmail,
		AdminPassword: "Admin_2025!",
	}))

	util.Backend = backend
	util.Cfg = util.Config{JWTSecret: "test-secret", AdminEmail: testAdminEmail}
	t.Cleanup(func() {
		util.Backend = nil
		util.Cfg = util.Config{}
	})

	app := fiber.New()
	app.Post("/api/auth/login", LoginUser)
	users := app.Group("/api/users", middlewares.Protected())
	users.Post("/", CreateUser)
	users.Get("/", GetAllUsers)
	users.Put("/:id/role", UpdateUserRole)
	users.Put("/:id/active", SetUserActive)
	return app
}

func login(t *testing.T, app *fiber.App, email, password string) (int, map[string]interface{}) {
	t.Helper()
	return doJSON(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":    email,
		"password": password,
	})
}

func TestLoginUser(t *testing.T) {
	app := setupUserApp(t)

	status, body := login(t, app, testAdminEmail, "Admin_2025!")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["token"])
}

func TestLoginUserWrongPassword(t *testing.T) {
	app := setupUserApp(t)

	status, body := login(t, app, testAdminEmail, "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid credentials", body["message"])
}

func TestLoginUserUnknownEmail(t *testing.T) {
	app := setupUserApp(t)

	status, _ := login(t, app, "nobody@example.com", "whatever")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCreateUserAndLogin(t *testing.T) {
	app := setupUserApp(t)

	_, body := login(t, app, testAdminEmail, "Admin_2025!")
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	status, body := doJSON(t, app, http.MethodPost, "/api/users", token, fiber.Map{
		"username": "editor",
		"email":    "editor@example.com",
		"password": "Editor_2025!",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "success", body["status"])

	status, _ = login(t, app, "editor@example.com", "Editor_2025!")
	assert.Equal(t, http.StatusOK, status)
}

func TestCreateUserDuplicateEmailIsConflict(t *testing.T) {
	app := setupUserApp(t)

	_, body := login(t, app, testAdminEmail, "Admin_2025!")
	token := body["token"].(string)

	status, _ := doJSON(t, app, http.MethodPost, "/api/users", token, fiber.Map{
		"username": "dupe",
		"email":    testAdminEmail,
		"password": "Duplicate_2025!",
	})
	assert.Equal(t, http.StatusConflict, status)
}

func TestNonAdminCannotManageUsers(t *testing.T) {
	app := setupUserApp(t)

	_, body := login(t, app, testAdminEmail, "Admin_2025!")
	adminToken := body["token"].(string)

	status, _ := doJSON(t, app, http.MethodPost, "/api/users", adminToken, fiber.Map{
		"username": "plain",
		"email":    "plain@example.com",
		"password": "Plain_2025!",
		"role":     "user",
	})
	require.Equal(t, http.StatusCreated, status)

	_, body = login(t, app, "plain@example.com", "Plain_2025!")
	userToken := body["token"].(string)

	status, resp := doJSON(t, app, http.MethodGet, "/api/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Only admins can access this endpoint", resp["message"])
}

func TestDeactivatedUserCannotLogin(t *testing.T) {
	app := setupUserApp(t)

	_, body := login(t, app, testAdminEmail, "Admin_2025!")
	adminToken := body["token"].(string)

	status, created := doJSON(t, app, http.MethodPost, "/api/users", adminToken, fiber.Map{
		"username": "inactive",
		"email":    "inactive@example.com",
		"password": "Inactive_2025!",
	})
	require.Equal(t, http.StatusCreated, status)
	userID := int(created["userId"].(float64))

	status, _ = doJSON(t, app, http.MethodPut, fmt.Sprintf("/api/users/%d/active", userID), adminToken, fiber.Map{
		"isActive": false,
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = login(t, app, "inactive@example.com", "Inactive_2025!")
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCannotChangeOwnRole(t *testing.T) {
	app := setupUserApp(t)

	_, body := login(t, app, testAdminEmail, "Admin_2025!")
	adminToken := body["token"].(string)

	status, resp := doJSON(t, app, http.MethodPut, fmt.Sprintf("/api/users/%d/role", testAdminID), adminToken, fiber.Map{
		"role": "user",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Cannot change your own role", resp["message"])
}
