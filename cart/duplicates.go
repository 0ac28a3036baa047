package cart

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nextias/wct_backend/db"
	"github.com/nextias/wct_backend/models"
)

// DuplicateChecker flags questions in the current selection that were
// already used under the same batch label, either in another saved draft or
// in the recorded usage history. The check is advisory: callers may save
// anyway, and missing tables degrade to an empty report rather than failing
// the save flow.
type DuplicateChecker struct {
	backend db.Backend
}

func NewDuplicateChecker(b db.Backend) *DuplicateChecker {
	return &DuplicateChecker{backend: b}
}

type batchCart struct {
	id       int
	testID   string
	testName string
}

func (c *DuplicateChecker) Check(batch string, questionIDs []int) (models.DuplicateReport, error) {
	report := models.DuplicateReport{Duplicates: []models.DuplicateQuestion{}}
	if strings.TrimSpace(batch) == "" {
		return report, db.Validationf("batch is required")
	}
	if len(questionIDs) == 0 {
		return report, db.Validationf("question ids are required")
	}

	err := c.backend.WithConn(func(q db.Queryer) error {
		usage := map[int][]models.DuplicateUsage{}

		carts, err := c.batchCarts(q, batch)
		if err != nil {
			if errors.Is(err, db.ErrSchemaMissing) {
				log.Warn().Msg("carts table missing, duplicate check degraded")
				carts = nil
			} else {
				return err
			}
		}
		if len(carts) > 0 {
			if err := collectDraftUsage(q, carts, questionIDs, usage); err != nil {
				return err
			}
		}
		if err := collectHistoryUsage(q, batch, questionIDs, usage); err != nil {
			return err
		}

		if len(usage) == 0 {
			report.Message = "No duplicate questions found in current drafts or historical usage"
			return nil
		}

		duplicates, err := describeDuplicates(q, usage)
		if err != nil {
			return err
		}
		report.HasDuplicates = true
		report.Duplicates = duplicates
		report.Message = fmt.Sprintf("Found %d question(s) already used in this batch", len(duplicates))
		return nil
	})
	if err != nil {
		return models.DuplicateReport{Duplicates: []models.DuplicateQuestion{}}, err
	}
	return report, nil
}

// batchCarts returns every cart whose metadata batch matches, compared
// case-insensitively. Metadata is parsed in Go so the query stays identical
// on both backends.
func (c *DuplicateChecker) batchCarts(q db.Queryer, batch string) ([]batchCart, error) {
	rows, err := q.Query("SELECT id, test_id, metadata FROM carts")
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var out []batchCart
	for rows.Next() {
		var bc batchCart
		var metaRaw string
		if err := rows.Scan(&bc.id, &bc.testID, &metaRaw); err != nil {
			return nil, err
		}
		var meta models.CartMetadata
		if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
			continue
		}
		if !strings.EqualFold(meta.Batch, batch) {
			continue
		}
		bc.testName = meta.TestName
		if bc.testName == "" {
			bc.testName = "Unknown Test"
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

func collectDraftUsage(q db.Queryer, carts []batchCart, questionIDs []int, usage map[int][]models.DuplicateUsage) error {
	byID := make(map[int]batchCart, len(carts))
	args := make([]interface{}, 0, len(carts)+len(questionIDs))
	for _, bc := range carts {
		byID[bc.id] = bc
		args = append(args, bc.id)
	}
	for _, id := range questionIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(
		"SELECT cart_id, question_id FROM cart_items WHERE cart_id IN (%s) AND question_id IN (%s)",
		placeholders(len(carts)), placeholders(len(questionIDs)),
	)
	rows, err := q.Query(query, args...)
	if err != nil {
		return db.Classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var cartID, questionID int
		if err := rows.Scan(&cartID, &questionID); err != nil {
			return err
		}
		bc := byID[cartID]
		usage[questionID] = append(usage[questionID], models.DuplicateUsage{
			TestID:   bc.testID,
			TestName: bc.testName,
			Source:   "Current Draft",
		})
	}
	return rows.Err()
}

func collectHistoryUsage(q db.Queryer, batch string, questionIDs []int, usage map[int][]models.DuplicateUsage) error {
	args := make([]interface{}, 0, len(questionIDs)+1)
	args = append(args, batch)
	for _, id := range questionIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`SELECT question_id, test_id, test_name, used_date
		 FROM question_usage_history
		 WHERE LOWER(batch) = LOWER(?) AND question_id IN (%s)`,
		placeholders(len(questionIDs)),
	)
	rows, err := q.Query(query, args...)
	if err != nil {
		// Table may not be provisioned yet; the check stays advisory.
		if errors.Is(db.Classify(err), db.ErrSchemaMissing) {
			log.Warn().Msg("usage history table missing, historical check skipped")
			return nil
		}
		return db.Classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var questionID int
		var testID, testName sql.NullString
		var usedDate string
		if err := rows.Scan(&questionID, &testID, &testName, &usedDate); err != nil {
			return err
		}
		u := models.DuplicateUsage{
			TestID:   "historical",
			TestName: "Previous Test",
			Source:   fmt.Sprintf("Historical (%s)", usedDate),
		}
		if testID.Valid && testID.String != "" {
			u.TestID = testID.String
		}
		if testName.Valid && testName.String != "" {
			u.TestName = testName.String
		}
		usage[questionID] = append(usage[questionID], u)
	}
	return rows.Err()
}

func describeDuplicates(q db.Queryer, usage map[int][]models.DuplicateUsage) ([]models.DuplicateQuestion, error) {
	ids := make([]int, 0, len(usage))
	args := make([]interface{}, 0, len(usage))
	for id := range usage {
		ids = append(ids, id)
		args = append(args, id)
	}
	sort.Ints(ids)

	type detail struct{ text, subject, topic string }
	details := map[int]detail{}

	query := fmt.Sprintf("SELECT id, text, subject, topic FROM questions WHERE id IN (%s)", placeholders(len(args)))
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int
		var d detail
		if err := rows.Scan(&id, &d.text, &d.subject, &d.topic); err != nil {
			return nil, err
		}
		details[id] = d
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.DuplicateQuestion, 0, len(ids))
	for _, id := range ids {
		d, ok := details[id]
		if !ok {
			d = detail{text: "Unknown", subject: "Unknown", topic: "Unknown"}
		}
		out = append(out, models.DuplicateQuestion{
			QuestionID:   id,
			QuestionText: truncateText(d.text, 100),
			Subject:      d.subject,
			Topic:        d.topic,
			UsedIn:       usage[id],
		})
	}
	return out, nil
}

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
