package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"snapify/internal/rules"
)

var (
	ErrEventNotFound = fmt.Errorf("event %w", rules.ErrNotFound)
	ErrPhotoNotFound = fmt.Errorf("photo %w", rules.ErrNotFound)
	ErrUserNotFound  = fmt.Errorf("user %w", rules.ErrNotFound)
	ErrEmailTaken    = errors.New("email already registered")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
