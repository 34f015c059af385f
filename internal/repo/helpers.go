// Package repo holds the pgx stores for every persisted entity: catalog,
// price snapshots, rounding rules, admin data, and offers. Services own the
// business flow; this package owns SQL and row mapping.
package repo

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/common"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgLockNotAvailable    = "55P03"
	pgQueryCanceled       = "57014"
)

func uuidValue(id string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, err
	}
	var out pgtype.UUID
	out.Bytes = parsed
	out.Valid = true
	return out, nil
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	u, err := uuid.FromBytes(id.Bytes[:])
	if err != nil {
		return ""
	}
	return u.String()
}

func numericValue(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func numericPtr(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return numericValue(*d)
}

func decimalValue(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Decimal{}
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalPtr(n pgtype.Numeric) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := decimalValue(n)
	return &d
}

func notFound(entity string) error {
	return common.NewAppError("NOT_FOUND", entity+" not found", http.StatusNotFound, nil)
}

// MapError folds pgx failures into AppErrors so handlers never inspect
// driver errors themselves. Unique violations become conflicts, lock waits
// and statement timeouts become a retryable BUSY.
func MapError(err error, conflictMessage string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return common.NewAppError("NOT_FOUND", "not found", http.StatusNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if conflictMessage == "" {
				conflictMessage = "duplicate entry"
			}
			return common.NewAppError("CONFLICT", conflictMessage, http.StatusConflict, err)
		case pgForeignKeyViolation:
			return common.NewAppError("CONFLICT", "still referenced by other records", http.StatusConflict, err)
		case pgLockNotAvailable, pgQueryCanceled:
			return common.NewAppError("BUSY", "storage busy, retry the request", http.StatusServiceUnavailable, err)
		}
	}
	return err
}
