package db

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, Classify(nil))
}

func TestClassifyPassesThroughClassified(t *testing.T) {
	err := fmt.Errorf("%w: draft test_1", ErrNotFound)
	assert.Equal(t, err, Classify(err))
}

func TestClassifyNoRows(t *testing.T) {
	err := Classify(sql.ErrNoRows)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClassifyPostgres(t *testing.T) {
	cases := []struct {
		name string
		code pq.ErrorCode
		want error
	}{
		{"undefined table", "42P01", ErrSchemaMissing},
		{"unique violation", "23505", ErrConstraint},
		{"foreign key violation", "23503", ErrConstraint},
		{"connection failure", "08006", ErrConnection},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify(&pq.Error{Code: tc.code})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestClassifyPostgresUnknownCodeUnchanged(t *testing.T) {
	orig := &pq.Error{Code: "57014"}
	assert.Equal(t, error(orig), Classify(orig))
}

func TestClassifySQLite(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want error
	}{
		{"missing table", "SQL logic error: no such table: carts (1)", ErrSchemaMissing},
		{"unique", "constraint failed: UNIQUE constraint failed: carts.test_id, carts.user_id (2067)", ErrConstraint},
		{"foreign key", "constraint failed: FOREIGN KEY constraint failed (787)", ErrConstraint},
		{"locked", "database is locked (5) (SQLITE_BUSY)", ErrConnection},
		{"unopenable", "unable to open database file", ErrConnection},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify(errors.New(tc.msg))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestClassifyUnknownUnchanged(t *testing.T) {
	orig := errors.New("something else entirely")
	assert.Equal(t, orig, Classify(orig))
}

func TestValidationf(t *testing.T) {
	err := Validationf("test name is required")
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "test name is required")
}
