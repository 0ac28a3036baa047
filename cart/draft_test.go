package cart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextias/wct_backend/db"
)

func TestSaveDraftCartValidation(t *testing.T) {
	b := newTestBackend(t)
	svc := NewDraftService(b)

	cases := []struct {
		name     string
		userID   int
		testName string
		ids      []int
	}{
		{"missing user", 0, "Test 1", []int{1}},
		{"missing name", adminID, "  ", []int{1}},
		{"empty questions", adminID, "Test 1", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SaveDraftCart(tc.userID, tc.testName, "Batch A", "2025-06-01", tc.ids, "")
			assert.ErrorIs(t, err, db.ErrValidation)
		})
	}
}

func TestSaveDraftCartMintsToken(t *testing.T) {
	b := newTestBackend(t)
	svc := NewDraftService(b)
	qid := seedQuestion(t, b, "Token question")

	testID, err := svc.SaveDraftCart(adminID, "Prelims Mock 1", "Batch A", "2025-06-01", []int{qid}, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(testID, "test_"), "got %q", testID)

	ids, err := svc.GetDraftQuestionIDs(testID, adminID)
	require.NoError(t, err)
	assert.Equal(t, []int{qid}, ids)
}

func TestSaveDraftCartReplacesItemSet(t *testing.T) {
	b := newTestBackend(t)
	svc := NewDraftService(b)
	q1 := seedQuestion(t, b, "Keep me")
	q2 := seedQuestion(t, b, "Drop me")

	testID, err := svc.SaveDraftCart(adminID, "Mock", "Batch A", "2025-06-01", []int{q1, q2}, "")
	require.NoError(t, err)

	// Saving again under the same token replaces the whole item set.
	sameID, err := svc.SaveDraftCart(adminID, "Mock v2", "Batch A", "2025-06-01", []int{q1}, testID)
	require.NoError(t, err)
	assert.Equal(t, testID, sameID)

	ids, err := svc.GetDraftQuestionIDs(testID, adminID)
	require.NoError(t, err)
	assert.Equal(t, []int{q1}, ids)

	drafts, err := svc.ListDrafts(adminID)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "Mock v2", drafts[0].Metadata.TestName)
	assert.Equal(t, 1, drafts[0].QuestionCount)
}

func TestSaveDraftCartUnknownTokenCreatesUnderIt(t *testing.T) {
	b := newTestBackend(t)
	svc := NewDraftService(b)
	qid := seedQuestion(t, b, "Adopted token question")

	testID, err := svc.SaveDraftCart(adminID, "Mock", "Batch A", "2025-06-01", []int{qid}, "test_1717000000000_abc1234")
	require.NoError(t, err)
	assert.Equal(t, "test_1717000000000_abc1234", testID)
}

func TestListDraftsNewestFirst(t *testing.T) {
	b := newTestBackend(t)
	svc := NewDraftService(b)
	qid := seedQuestion(t, b, "Shared question")

	first, err := svc.SaveDraftCart(adminID, "Older", "Batch A", "2025-06-01", []int{qid}, "")
	require.NoError(t, err)
	second, err := svc.SaveDraftCart(adminID, "Newer", "Batch A", "2025-06-02", []int{qid}, "")
	require.NoError(t, err)

	drafts, err := svc.ListDrafts(adminID)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, second, drafts[0].TestID)
	assert.Equal(t, first, drafts[1].TestID)
	assert.Equal(t, "Newer", drafts[0].Metadata.TestName)
	assert.Equal(t, "Batch A", drafts[0].Metadata.Batch)
}

func TestListDraftsScopedToUser(t *testing.T) {
	b := newTestBackend(t)
	svc := NewDraftService(b)
	qid := seedQuestion(t, b, "Owner question")

	_, err := svc.SaveDraftCart(adminID, "Mine", "Batch A", "2025-06-01", []int{qid}, "")
	require.NoError(t, err)

	drafts, err := svc.ListDrafts(999)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestGetDraftQuestionIDsNotFound(t *testing.T) {
	b := newTestBackend(t)
	svc := NewDraftService(b)

	_, err := svc.GetDraftQuestionIDs("never_saved", adminID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestDeleteDraft(t *testing.T) {
	b := newTestBackend(t)
	svc := NewDraftService(b)
	qid := seedQuestion(t, b, "Deletable question")

	testID, err := svc.SaveDraftCart(adminID, "Doomed", "Batch A", "2025-06-01", []int{qid}, "")
	require.NoError(t, err)

	deleted, err := svc.DeleteDraft(testID, adminID)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Items cascade with the cart.
	assert.Equal(t, 0, countCartRows(t, b, "SELECT COUNT(*) FROM cart_items"))

	deleted, err = svc.DeleteDraft(testID, adminID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRecordBatchUsage(t *testing.T) {
	b := newTestBackend(t)
	svc := NewDraftService(b)
	q1 := seedQuestion(t, b, "Used question one")
	q2 := seedQuestion(t, b, "Used question two")

	testID, err := svc.SaveDraftCart(adminID, "Final Mock", "Batch A", "2025-06-01", []int{q1, q2}, "")
	require.NoError(t, err)

	require.NoError(t, svc.RecordBatchUsage(testID, adminID))

	assert.Equal(t, 2, countCartRows(t, b,
		"SELECT COUNT(*) FROM question_usage_history WHERE batch = ? AND test_name = ? AND test_id = ?",
		"Batch A", "Final Mock", testID,
	))
}

func TestRecordBatchUsageUnknownDraft(t *testing.T) {
	b := newTestBackend(t)
	svc := NewDraftService(b)

	err := svc.RecordBatchUsage("never_saved", adminID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}
