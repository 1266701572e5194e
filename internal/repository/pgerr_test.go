package repository

import (
	"errors"
	"fmt"
	"testing"

	"advert-service/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{UniqueViolationCode, ErrConflict},
		{NotNullViolationCode, ErrConstraint},
		{StringTruncationCode, ErrConstraint},
		{CheckViolationCode, ErrConstraint},
	}
	for _, tc := range cases {
		pgErr := &pgconn.PgError{Code: tc.code, Message: "boom"}
		err := classify(fmt.Errorf("exec: %w", pgErr))

		assert.ErrorIs(t, err, tc.want, tc.code)

		var pe *pgconn.PgError
		assert.True(t, errors.As(err, &pe), "original error must stay reachable")
	}
}

func TestClassify_PassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Same(t, plain, classify(plain))

	other := &pgconn.PgError{Code: "40001"}
	assert.Equal(t, error(other), classify(other))
}

func TestInsertQuery(t *testing.T) {
	query, args := insertQuery(&domain.Advert{Title: "t", Description: "d", Owner: "o"})
	assert.Equal(t, "INSERT INTO advertisements (title, description, owner) VALUES ($1, $2, $3) RETURNING id, creation_date", query)
	assert.Equal(t, []any{"t", "d", "o"}, args)

	query, args = insertQuery(&domain.Advert{ID: 9, Title: "t", Description: "d", Owner: "o"})
	assert.Equal(t, "INSERT INTO advertisements (title, description, owner, id) VALUES ($1, $2, $3, $4) RETURNING id, creation_date", query)
	assert.Equal(t, []any{"t", "d", "o", int64(9)}, args)
}

func TestUpdateQuery_OnlyChangedColumns(t *testing.T) {
	owner := "bob"
	query, args := updateQuery(3, domain.AdvertPatch{Owner: &owner})
	assert.Equal(t, "UPDATE advertisements SET owner = $1 WHERE id = $2", query)
	assert.Equal(t, []any{"bob", int64(3)}, args)

	title, description := "Car", ""
	query, args = updateQuery(3, domain.AdvertPatch{Title: &title, Description: &description})
	assert.Equal(t, "UPDATE advertisements SET title = $1, description = $2 WHERE id = $3", query)
	assert.Equal(t, []any{"Car", "", int64(3)}, args)
}
