package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Error taxonomy surfaced to callers. Driver errors are classified once here
// so controllers never leak raw database error strings.
var (
	ErrValidation    = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrSchemaMissing = errors.New("database tables not provisioned")
	ErrConstraint    = errors.New("constraint violation")
	ErrConnection    = errors.New("database connection error")
)

// Validationf builds a caller-error with a specific message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}

// Classify maps a driver error onto the taxonomy. Errors that match nothing
// are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSchemaMissing) || errors.Is(err, ErrConstraint) ||
		errors.Is(err, ErrConnection) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "42P01": // undefined_table
			return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
		case pqErr.Code.Class() == "23": // integrity_constraint_violation
			return fmt.Errorf("%w: %v", ErrConstraint, err)
		case pqErr.Code.Class() == "08": // connection_exception
			return fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return err
	}

	// modernc.org/sqlite reports failures through the error text.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
	case strings.Contains(msg, "UNIQUE constraint failed"),
		strings.Contains(msg, "FOREIGN KEY constraint failed"),
		strings.Contains(msg, "CHECK constraint failed"):
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	case strings.Contains(msg, "unable to open database"),
		strings.Contains(msg, "database is locked"):
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return err
}
