package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	UniqueViolationCode    = "23505"
	NotNullViolationCode   = "23502"
	CheckViolationCode     = "23514"
	StringTruncationCode   = "22001"
	InvalidDatetimeCode    = "22007"
	DatetimeOutOfRangeCode = "22008"
	NumericOutOfRangeCode  = "22003"
)

func AsPgError(err error) (*pgconn.PgError, bool) {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// classify maps postgres errors onto the package sentinels; anything else is
// returned unchanged.
func classify(err error) error {
	pe, ok := AsPgError(err)
	if !ok {
		return err
	}

	switch pe.Code {
	case UniqueViolationCode:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case NotNullViolationCode, CheckViolationCode, StringTruncationCode,
		InvalidDatetimeCode, DatetimeOutOfRangeCode, NumericOutOfRangeCode:
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	default:
		return err
	}
}
