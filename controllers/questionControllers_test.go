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
	"github.com/nextias/wct_backend/models"
	"github.com/nextias/wct_backend/util"
)

func setupQuestionApp(t *testing.T) (*fiber.App, string) {
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

	token, err := util.JwtGenerate(models.User{ID: testAdminID, Email: testAdminEmail, Role: "admin"})
	require.NoError(t, err)

	app := fiber.New()
	questions := app.Group("/api/questions", middlewares.Protected())
	questions.Get("/", GetQuestions)
	questions.Get("/:id", GetQuestionByID)
	return app, token
}

func seedQuestionRow(t *testing.T, text, subject, difficulty string) int {
	t.Helper()
	var id int
	require.NoError(t, util.Backend.WithConn(func(q db.Queryer) error {
		_, err := q.Exec(
			"INSERT INTO questions (text, answer, subject, topic, difficulty, question_type) VALUES (?, ?, ?, ?, ?, ?)",
			text, "42", subject, "General", difficulty, "Objective",
		)
		if err != nil {
			return err
		}
		return q.QueryRow("SELECT id FROM questions WHERE text = ?", text).Scan(&id)
	}))
	return id
}

func TestGetQuestionsFiltersBySubject(t *testing.T) {
	app, token := setupQuestionApp(t)
	seedQuestionRow(t, "Polity question", "Polity", "Easy")
	seedQuestionRow(t, "Geography question", "Geography", "Easy")

	status, body := doJSON(t, app, http.MethodGet, "/api/questions?subject=Polity", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	list := body["questions"].([]interface{})
	require.Len(t, list, 1)
	q := list[0].(map[string]interface{})
	assert.Equal(t, "Polity question", q["text"])
}

func TestGetQuestionsSearchIsCaseInsensitive(t *testing.T) {
	app, token := setupQuestionApp(t)
	seedQuestionRow(t, "The Tropic of Cancer passes through Gujarat", "Geography", "Medium")
	seedQuestionRow(t, "Unrelated question", "Polity", "Easy")

	status, body := doJSON(t, app, http.MethodGet, "/api/questions?search=TROPIC", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])
}

func TestGetQuestionsPagination(t *testing.T) {
	app, token := setupQuestionApp(t)
	for i := 0; i < 5; i++ {
		seedQuestionRow(t, fmt.Sprintf("Question %d", i), "Polity", "Easy")
	}

	status, body := doJSON(t, app, http.MethodGet, "/api/questions?limit=2&page=2", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 5, body["total"])
	assert.Len(t, body["questions"].([]interface{}), 2)
	assert.EqualValues(t, 2, body["page"])
}

func TestGetQuestionByID(t *testing.T) {
	app, token := setupQuestionApp(t)
	qid := seedQuestionRow(t, "Single question", "Polity", "Hard")

	status, body := doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/questions/%d", qid), token, nil)
	require.Equal(t, http.StatusOK, status)
	q := body["question"].(map[string]interface{})
	assert.Equal(t, "Single question", q["text"])
	assert.Equal(t, "Hard", q["difficulty"])
}

func TestGetQuestionByIDNotFound(t *testing.T) {
	app, token := setupQuestionApp(t)

	status, body := doJSON(t, app, http.MethodGet, "/api/questions/9999", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Question not found", body["message"])
}
