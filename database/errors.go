package database

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"vuoksi-trader/apperrors"
)

// uniqueViolation is the SQLSTATE for a unique constraint violation
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err was caused by a duplicate unique key
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}

// WrapDBError classifies a database error with operation context:
// record-not-found → NotFound, duplicate key → Conflict, anything else → UpstreamUnavailable
func WrapDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.Wrap(apperrors.KindNotFound, operation, "record_not_found", err)
	case IsUniqueViolation(err):
		return apperrors.Wrap(apperrors.KindConflict, operation, "duplicate_key", err)
	default:
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable, operation, "database_error", err)
	}
}
