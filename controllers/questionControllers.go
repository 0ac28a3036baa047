package controllers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nextias/wct_backend/db"
	"github.com/nextias/wct_backend/models"
	"github.com/nextias/wct_backend/util"
)

const questionColumns = `id, text, answer, explanation, subject, module, topic,
	sub_topic, difficulty, question_type, nature_of_question, tags`

func scanQuestion(scan func(dest ...interface{}) error) (models.Question, error) {
	var qn models.Question
	var explanation, module, subTopic, nature sql.NullString
	var tags string
	err := scan(
		&qn.ID, &qn.Text, &qn.Answer, &explanation, &qn.Subject, &module,
		&qn.Topic, &subTopic, &qn.Difficulty, &qn.QuestionType, &nature, &tags,
	)
	if err != nil {
		return qn, err
	}
	if explanation.Valid {
		qn.Explanation = &explanation.String
	}
	if module.Valid {
		qn.Module = &module.String
	}
	if subTopic.Valid {
		qn.SubTopic = &subTopic.String
	}
	if nature.Valid {
		qn.NatureOfQuestion = &nature.String
	}
	qn.Tags = []string{}
	if tags != "" {
		_ = json.Unmarshal([]byte(tags), &qn.Tags)
	}
	return qn, nil
}

// GetQuestions returns a filtered, paginated page of the question bank.
func GetQuestions(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	conditions := []string{}
	args := []interface{}{}
	addFilter := func(column, value string) {
		if value != "" {
			conditions = append(conditions, column+" = ?")
			args = append(args, value)
		}
	}
	addFilter("subject", c.Query("subject"))
	addFilter("module", c.Query("module"))
	addFilter("topic", c.Query("topic"))
	addFilter("sub_topic", c.Query("subTopic"))
	addFilter("difficulty", c.Query("difficulty"))
	addFilter("question_type", c.Query("questionType"))
	if search := c.Query("search"); search != "" {
		conditions = append(conditions, "LOWER(text) LIKE ?")
		args = append(args, "%"+strings.ToLower(search)+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	questions := []models.Question{}
	err := util.Backend.WithConn(func(q db.Queryer) error {
		row := q.QueryRow("SELECT COUNT(*) FROM questions"+where, args...)
		if err := row.Scan(&total); err != nil {
			return db.Classify(err)
		}

		rows, err := q.Query(
			"SELECT "+questionColumns+" FROM questions"+where+" ORDER BY id LIMIT ? OFFSET ?",
			append(append([]interface{}{}, args...), limit, offset)...,
		)
		if err != nil {
			return db.Classify(err)
		}
		defer rows.Close()

		for rows.Next() {
			qn, err := scanQuestion(rows.Scan)
			if err != nil {
				return err
			}
			questions = append(questions, qn)
		}
		return rows.Err()
	})
	if err != nil {
		status, msg := statusFromError(err)
		return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "success",
		"questions": questions,
		"total":     total,
		"page":      page,
		"limit":     limit,
	})
}

// GetQuestionByID returns a single question.
func GetQuestionByID(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid question id",
		})
	}

	var question models.Question
	err = util.Backend.WithConn(func(q db.Queryer) error {
		row := q.QueryRow("SELECT "+questionColumns+" FROM questions WHERE id = ?", id)
		qn, err := scanQuestion(row.Scan)
		if err != nil {
			return err
		}
		question = qn
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"status":  "error",
				"message": "Question not found",
			})
		}
		status, msg := statusFromError(db.Classify(err))
		return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":   "success",
		"question": question,
	})
}
