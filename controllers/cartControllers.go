package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/nextias/wct_backend/cart"
	"github.com/nextias/wct_backend/db"
	"github.com/nextias/wct_backend/models"
	"github.com/nextias/wct_backend/util"
)

// statusFromError maps the database error taxonomy onto HTTP responses with
// specific user-facing messages; raw driver errors never reach the client.
func statusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, db.ErrValidation):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, db.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, db.ErrSchemaMissing):
		return fiber.StatusInternalServerError, "Database tables are not set up. Run the schema bootstrap and try again."
	case errors.Is(err, db.ErrConstraint):
		return fiber.StatusConflict, "The draft conflicts with existing data (duplicate name or missing question/user)."
	case errors.Is(err, db.ErrConnection):
		return fiber.StatusServiceUnavailable, "Database is unreachable. Try again shortly."
	default:
		return fiber.StatusInternalServerError, "Database error"
	}
}

// GetCart returns the questions in the cart addressed by the testId query
// parameter. Unknown carts yield an empty result, not an error.
func GetCart(c *fiber.Ctx) error {
	testID := c.Query("testId")
	if testID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Test ID is required",
		})
	}
	user := c.Locals("user").(models.User)

	repo := cart.NewRepository(util.Backend, util.Cfg.AdminEmail)
	questions, err := repo.GetCartQuestions(testID, user.ID)
	if err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"questions": questions,
		"count":     len(questions),
	})
}

// AddQuestionToCart adds one question to the cart, creating the cart lazily.
func AddQuestionToCart(c *fiber.Ctx) error {
	type request struct {
		QuestionID int    `json:"questionId" validate:"required"`
		TestID     string `json:"testId" validate:"required"`
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
			"message": "Missing required parameters",
		})
	}
	user := c.Locals("user").(models.User)

	repo := cart.NewRepository(util.Backend, util.Cfg.AdminEmail)
	inserted, cartID, err := repo.AddQuestionToCart(req.QuestionID, req.TestID, user.ID)
	if err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "success": false, "message": msg})
	}

	message := "Question added to test successfully"
	if !inserted {
		message = "Question already in test"
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":    true,
		"cartId":     cartID,
		"questionId": req.QuestionID,
		"message":    message,
	})
}

// RemoveQuestionFromCart deletes one question from the cart.
func RemoveQuestionFromCart(c *fiber.Ctx) error {
	type request struct {
		QuestionID int    `json:"questionId" validate:"required"`
		TestID     string `json:"testId" validate:"required"`
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
			"message": "Missing required parameters",
		})
	}
	user := c.Locals("user").(models.User)

	repo := cart.NewRepository(util.Backend, util.Cfg.AdminEmail)
	removed, err := repo.RemoveQuestionFromCart(req.QuestionID, req.TestID, user.ID)
	if err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "success": false, "message": msg})
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Question not found in test",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Question removed from test successfully",
	})
}

// SaveDraftCart saves or updates a named draft test.
func SaveDraftCart(c *fiber.Ctx) error {
	type request struct {
		UserID         int    `json:"userId"`
		TestName       string `json:"testName"`
		Batch          string `json:"batch"`
		Date           string `json:"date"`
		QuestionIDs    []int  `json:"questionIds"`
		ExistingTestID string `json:"existingTestId"`
	}
	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Failed to parse request body",
		})
	}

	// The durable write path fails closed: the draft owner must be the
	// authenticated user.
	user := c.Locals("user").(models.User)
	if req.UserID != 0 && req.UserID != user.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"status":  "error",
			"message": "Cannot save a draft for another user",
		})
	}

	drafts := cart.NewDraftService(util.Backend)
	testID, err := drafts.SaveDraftCart(user.ID, req.TestName, req.Batch, req.Date, req.QuestionIDs, req.ExistingTestID)
	if err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "success": false, "message": msg})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"testId":  testID,
	})
}

// GetDraftCarts lists the authenticated user's saved drafts.
func GetDraftCarts(c *fiber.Ctx) error {
	user := c.Locals("user").(models.User)

	drafts := cart.NewDraftService(util.Backend)
	list, err := drafts.ListDrafts(user.ID)
	if err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"drafts": list,
		"count":  len(list),
	})
}

// DeleteDraftCart removes a draft and its items.
func DeleteDraftCart(c *fiber.Ctx) error {
	testID := c.Params("testId")
	user := c.Locals("user").(models.User)

	drafts := cart.NewDraftService(util.Backend)
	deleted, err := drafts.DeleteDraft(testID, user.ID)
	if err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "success": false, "message": msg})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Draft not found",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

// FinalizeDraftCart records the draft's questions into the batch usage
// history so later duplicate checks see them.
func FinalizeDraftCart(c *fiber.Ctx) error {
	testID := c.Params("testId")
	user := c.Locals("user").(models.User)

	drafts := cart.NewDraftService(util.Backend)
	if err := drafts.RecordBatchUsage(testID, user.ID); err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "success": false, "message": msg})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

// CheckDuplicates runs the advisory cross-batch reuse check.
func CheckDuplicates(c *fiber.Ctx) error {
	type request struct {
		Batch       string `json:"batch"`
		QuestionIDs []int  `json:"questionIds"`
	}
	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Failed to parse request body",
		})
	}

	checker := cart.NewDuplicateChecker(util.Backend)
	report, err := checker.Check(req.Batch, req.QuestionIDs)
	if err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
	}
	return c.Status(fiber.StatusOK).JSON(report)
}
