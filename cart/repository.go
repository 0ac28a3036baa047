// Package cart implements the server-side cart subsystem: repository CRUD
// over carts/cart_items, the draft save/load service, and the cross-batch
// duplicate check.
package cart

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nextias/wct_backend/db"
	"github.com/nextias/wct_backend/models"
)

// Repository is the core CRUD layer over carts and cart_items. Every
// operation addresses a cart by its (test identifier, user) key and scopes
// its own connection or transaction.
type Repository struct {
	backend db.Backend
	// fallbackEmail identifies the seeded account used when a caller's user
	// id is unknown. Tolerance for demo data; see resolveUser.
	fallbackEmail string
}

func NewRepository(b db.Backend, fallbackEmail string) *Repository {
	return &Repository{backend: b, fallbackEmail: fallbackEmail}
}

// GetOrCreateCart returns the cart id for (testID, userID), creating the row
// if absent. Calling it twice always yields the same id.
func (r *Repository) GetOrCreateCart(testID string, userID int) (int, error) {
	var id int
	err := r.backend.WithConn(func(q db.Queryer) error {
		var err error
		id, err = getOrCreateCart(q, testID, userID)
		return err
	})
	return id, err
}

// getOrCreateCart is insert-or-ignore followed by a select, which stays
// race-safe under the (test_id, user_id) unique constraint. Read-then-write
// would not be.
func getOrCreateCart(q db.Queryer, testID string, userID int) (int, error) {
	_, err := q.Exec(
		"INSERT INTO carts (test_id, user_id) VALUES (?, ?) ON CONFLICT (test_id, user_id) DO NOTHING",
		testID, userID,
	)
	if err != nil {
		return 0, db.Classify(err)
	}
	var id int
	err = q.QueryRow("SELECT id FROM carts WHERE test_id = ? AND user_id = ?", testID, userID).Scan(&id)
	if err != nil {
		return 0, db.Classify(err)
	}
	return id, nil
}

// AddQuestionToCart validates the question, resolves the user, gets or
// creates the cart and inserts the item, all in one transaction. Returns
// whether the item was newly inserted along with the cart id. A missing
// question rolls everything back, so no orphan cart row is left behind.
func (r *Repository) AddQuestionToCart(questionID int, testID string, userID int) (bool, int, error) {
	var inserted bool
	var cartID int
	err := r.backend.Transaction(func(q db.Queryer) error {
		var exists int
		if err := q.QueryRow("SELECT COUNT(*) FROM questions WHERE id = ?", questionID).Scan(&exists); err != nil {
			return db.Classify(err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: question %d", db.ErrNotFound, questionID)
		}

		uid, err := r.resolveUser(q, userID)
		if err != nil {
			return err
		}

		cartID, err = getOrCreateCart(q, testID, uid)
		if err != nil {
			return err
		}

		res, err := q.Exec(
			"INSERT INTO cart_items (cart_id, question_id) VALUES (?, ?) ON CONFLICT (cart_id, question_id) DO NOTHING",
			cartID, questionID,
		)
		if err != nil {
			return db.Classify(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return inserted, cartID, nil
}

// resolveUser returns a valid user id for the caller. Unknown ids fall back
// to the seeded account looked up by email rather than failing outright.
func (r *Repository) resolveUser(q db.Queryer, userID int) (int, error) {
	var id int
	err := q.QueryRow("SELECT id FROM users WHERE id = ?", userID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, db.Classify(err)
	}

	err = q.QueryRow("SELECT id FROM users WHERE email = ?", r.fallbackEmail).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: user %d", db.ErrNotFound, userID)
		}
		return 0, db.Classify(err)
	}
	log.Warn().Int("userId", userID).Int("fallbackId", id).Msg("unknown user id, using seeded user")
	return id, nil
}

// RemoveQuestionFromCart deletes the matching item and reports whether a row
// was affected. A missing cart is a no-op, not an error.
func (r *Repository) RemoveQuestionFromCart(questionID int, testID string, userID int) (bool, error) {
	var removed bool
	err := r.backend.WithConn(func(q db.Queryer) error {
		var cartID int
		err := q.QueryRow("SELECT id FROM carts WHERE test_id = ? AND user_id = ?", testID, userID).Scan(&cartID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return db.Classify(err)
		}

		res, err := q.Exec("DELETE FROM cart_items WHERE cart_id = ? AND question_id = ?", cartID, questionID)
		if err != nil {
			return db.Classify(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0
		return nil
	})
	return removed, err
}

// GetCartQuestions lists the cart's questions with full metadata, most
// recently added first. A missing cart yields an empty list.
func (r *Repository) GetCartQuestions(testID string, userID int) ([]models.Question, error) {
	questions := []models.Question{}
	err := r.backend.WithConn(func(q db.Queryer) error {
		var cartID int
		err := q.QueryRow("SELECT id FROM carts WHERE test_id = ? AND user_id = ?", testID, userID).Scan(&cartID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return db.Classify(err)
		}

		rows, err := q.Query(`
			SELECT q.id, q.text, q.answer, q.explanation, q.subject, q.module,
			       q.topic, q.sub_topic, q.difficulty, q.question_type,
			       q.nature_of_question, q.tags
			FROM questions q
			JOIN cart_items ci ON ci.question_id = q.id
			WHERE ci.cart_id = ?
			ORDER BY ci.created_at DESC, ci.id DESC
		`, cartID)
		if err != nil {
			return db.Classify(err)
		}
		defer rows.Close()

		questions, err = scanQuestions(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func scanQuestions(rows *sql.Rows) ([]models.Question, error) {
	out := []models.Question{}
	for rows.Next() {
		var qn models.Question
		var explanation, module, subTopic, nature sql.NullString
		var tags string
		err := rows.Scan(
			&qn.ID, &qn.Text, &qn.Answer, &explanation, &qn.Subject, &module,
			&qn.Topic, &subTopic, &qn.Difficulty, &qn.QuestionType, &nature, &tags,
		)
		if err != nil {
			return nil, err
		}
		qn.Explanation = nullableString(explanation)
		qn.Module = nullableString(module)
		qn.SubTopic = nullableString(subTopic)
		qn.NatureOfQuestion = nullableString(nature)
		qn.Tags = decodeTags(tags)
		out = append(out, qn)
	}
	return out, rows.Err()
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func decodeTags(raw string) []string {
	tags := []string{}
	if raw == "" {
		return tags
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	return tags
}

// parseTimestamp copes with the textual timestamp formats the two backends
// hand back through a string scan.
func parseTimestamp(s string) time.Time {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
