package cart

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextias/wct_backend/db"
	"github.com/nextias/wct_backend/models"
)

// DraftService saves, lists and deletes named draft tests on top of the cart
// tables. A draft is a cart whose metadata carries the test name, batch and
// date.
type DraftService struct {
	backend db.Backend
}

func NewDraftService(b db.Backend) *DraftService {
	return &DraftService{backend: b}
}

// mintTestID generates the opaque caller-visible draft handle.
func mintTestID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
	return fmt.Sprintf("test_%d_%s", time.Now().UnixMilli(), suffix)
}

// SaveDraftCart upserts a cart's metadata and atomically replaces its item
// set. When existingTestID is given and matches a cart for this user the
// draft is updated in place (full delete-and-reinsert of items, not a diff);
// otherwise a new cart is created under a fresh or supplied token. Returns
// the resolved test id so the caller can remember it as the current draft.
func (s *DraftService) SaveDraftCart(userID int, testName, batch, date string, questionIDs []int, existingTestID string) (string, error) {
	if userID <= 0 {
		return "", db.Validationf("user id is required")
	}
	if strings.TrimSpace(testName) == "" {
		return "", db.Validationf("test name is required")
	}
	if len(questionIDs) == 0 {
		return "", db.Validationf("question ids are required")
	}

	testID := existingTestID
	if testID == "" {
		testID = mintTestID()
	}

	meta, err := json.Marshal(models.CartMetadata{TestName: testName, Batch: batch, Date: date})
	if err != nil {
		return "", err
	}

	err = s.backend.Transaction(func(q db.Queryer) error {
		if existingTestID != "" {
			var cartID int
			err := q.QueryRow("SELECT id FROM carts WHERE test_id = ? AND user_id = ?", testID, userID).Scan(&cartID)
			if err == nil {
				if _, err := q.Exec("UPDATE carts SET metadata = ? WHERE id = ?", string(meta), cartID); err != nil {
					return db.Classify(err)
				}
				if _, err := q.Exec("DELETE FROM cart_items WHERE cart_id = ?", cartID); err != nil {
					return db.Classify(err)
				}
				return insertItems(q, cartID, questionIDs)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return db.Classify(err)
			}
			// No cart for the supplied token; fall through and create one
			// under it.
		}

		if _, err := q.Exec(
			"INSERT INTO carts (test_id, user_id, metadata) VALUES (?, ?, ?)",
			testID, userID, string(meta),
		); err != nil {
			return db.Classify(err)
		}
		var cartID int
		if err := q.QueryRow("SELECT id FROM carts WHERE test_id = ? AND user_id = ?", testID, userID).Scan(&cartID); err != nil {
			return db.Classify(err)
		}
		return insertItems(q, cartID, questionIDs)
	})
	if err != nil {
		return "", err
	}
	return testID, nil
}

func insertItems(q db.Queryer, cartID int, questionIDs []int) error {
	for _, qid := range questionIDs {
		_, err := q.Exec(
			"INSERT INTO cart_items (cart_id, question_id) VALUES (?, ?) ON CONFLICT (cart_id, question_id) DO NOTHING",
			cartID, qid,
		)
		if err != nil {
			return db.Classify(err)
		}
	}
	return nil
}

// ListDrafts returns the user's saved drafts, newest first.
func (s *DraftService) ListDrafts(userID int) ([]models.DraftCart, error) {
	drafts := []models.DraftCart{}
	err := s.backend.WithConn(func(q db.Queryer) error {
		rows, err := q.Query(`
			SELECT c.id, c.test_id, c.metadata, c.created_at,
			       (SELECT COUNT(*) FROM cart_items ci WHERE ci.cart_id = c.id)
			FROM carts c
			WHERE c.user_id = ?
			ORDER BY c.created_at DESC, c.id DESC
		`, userID)
		if err != nil {
			return db.Classify(err)
		}
		defer rows.Close()

		for rows.Next() {
			var d models.DraftCart
			var metaRaw, createdAt string
			if err := rows.Scan(&d.ID, &d.TestID, &metaRaw, &createdAt, &d.QuestionCount); err != nil {
				return err
			}
			if err := json.Unmarshal([]byte(metaRaw), &d.Metadata); err != nil {
				d.Metadata = models.CartMetadata{}
			}
			d.CreatedAt = parseTimestamp(createdAt)
			drafts = append(drafts, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

// GetDraftQuestionIDs loads the question set of a draft in insertion order.
func (s *DraftService) GetDraftQuestionIDs(testID string, userID int) ([]int, error) {
	ids := []int{}
	err := s.backend.WithConn(func(q db.Queryer) error {
		var cartID int
		err := q.QueryRow("SELECT id FROM carts WHERE test_id = ? AND user_id = ?", testID, userID).Scan(&cartID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: draft %s", db.ErrNotFound, testID)
		}
		if err != nil {
			return db.Classify(err)
		}

		rows, err := q.Query("SELECT question_id FROM cart_items WHERE cart_id = ? ORDER BY id", cartID)
		if err != nil {
			return db.Classify(err)
		}
		defer rows.Close()

		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteDraft removes the draft and, via cascade, its items. Reports whether
// a draft existed.
func (s *DraftService) DeleteDraft(testID string, userID int) (bool, error) {
	var deleted bool
	err := s.backend.WithConn(func(q db.Queryer) error {
		res, err := q.Exec("DELETE FROM carts WHERE test_id = ? AND user_id = ?", testID, userID)
		if err != nil {
			return db.Classify(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// RecordBatchUsage copies a finalized draft's question set into the usage
// history, which feeds the duplicate check for later tests in the same batch.
func (s *DraftService) RecordBatchUsage(testID string, userID int) error {
	return s.backend.Transaction(func(q db.Queryer) error {
		var cartID int
		var metaRaw string
		err := q.QueryRow("SELECT id, metadata FROM carts WHERE test_id = ? AND user_id = ?", testID, userID).Scan(&cartID, &metaRaw)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: draft %s", db.ErrNotFound, testID)
		}
		if err != nil {
			return db.Classify(err)
		}

		var meta models.CartMetadata
		if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
			meta = models.CartMetadata{}
		}

		rows, err := q.Query("SELECT question_id FROM cart_items WHERE cart_id = ?", cartID)
		if err != nil {
			return db.Classify(err)
		}
		var ids []int
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, id := range ids {
			_, err := q.Exec(
				"INSERT INTO question_usage_history (question_id, batch, test_name, test_id) VALUES (?, ?, ?, ?)",
				id, meta.Batch, meta.TestName, testID,
			)
			if err != nil {
				return db.Classify(err)
			}
		}
		return nil
	})
}
