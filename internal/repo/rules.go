package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/pricing"
)

// RoundingRuleRow is a stored rounding rule with its identifier.
type RoundingRuleRow struct {
	ID     int64
	Target pricing.Target
	Limit  decimal.Decimal
	Step   decimal.Decimal
	Method pricing.Method
}

// RuleStore persists the rounding rule table.
type RuleStore struct {
	pool *pgxpool.Pool
}

// NewRuleStore constructs a RuleStore.
func NewRuleStore(pool *pgxpool.Pool) *RuleStore {
	return &RuleStore{pool: pool}
}

// List returns every rule ordered by target then limit.
func (s *RuleStore) List(ctx context.Context) ([]RoundingRuleRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, target, limit_value, step_value, method
		FROM rounding_rules
		ORDER BY target, limit_value`)
	if err != nil {
		return nil, fmt.Errorf("list rounding rules: %w", err)
	}
	defer rows.Close()

	var result []RoundingRuleRow
	for rows.Next() {
		var (
			row            RoundingRuleRow
			target, method string
			limitV, stepV  pgtype.Numeric
		)
		if err := rows.Scan(&row.ID, &target, &limitV, &stepV, &method); err != nil {
			return nil, fmt.Errorf("scan rounding rule: %w", err)
		}
		row.Target = pricing.Target(target)
		row.Method = pricing.Method(method)
		row.Limit = decimalValue(limitV)
		row.Step = decimalValue(stepV)
		result = append(result, row)
	}
	return result, rows.Err()
}

// Table loads every rule into the engine's lookup table.
func (s *RuleStore) Table(ctx context.Context) (pricing.RuleTable, error) {
	rows, err := s.List(ctx)
	if err != nil {
		return pricing.RuleTable{}, err
	}
	rules := make([]pricing.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, pricing.Rule{Target: row.Target, Limit: row.Limit, Step: row.Step, Method: row.Method})
	}
	return pricing.NewRuleTable(rules), nil
}

// Create inserts a rule. A duplicate (target, limit) pair surfaces as a
// CONFLICT AppError.
func (s *RuleStore) Create(ctx context.Context, rule pricing.Rule) (RoundingRuleRow, error) {
	row := RoundingRuleRow{Target: rule.Target, Limit: rule.Limit, Step: rule.Step, Method: rule.Method}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rounding_rules (target, limit_value, step_value, method)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		string(rule.Target), numericValue(rule.Limit), numericValue(rule.Step), string(rule.Method),
	).Scan(&row.ID)
	if err != nil {
		return RoundingRuleRow{}, MapError(err, "a rule with this target and limit already exists")
	}
	return row, nil
}

// Update rewrites a rule in place.
func (s *RuleStore) Update(ctx context.Context, id int64, rule pricing.Rule) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rounding_rules
		SET target = $2, limit_value = $3, step_value = $4, method = $5
		WHERE id = $1`,
		id, string(rule.Target), numericValue(rule.Limit), numericValue(rule.Step), string(rule.Method))
	if err != nil {
		return MapError(err, "a rule with this target and limit already exists")
	}
	if tag.RowsAffected() == 0 {
		return notFound("rounding rule")
	}
	return nil
}

// Delete removes a rule. Historical snapshots are unaffected: rules are only
// consulted at computation time.
func (s *RuleStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rounding_rules WHERE id = $1`, id)
	if err != nil {
		return MapError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return notFound("rounding rule")
	}
	return nil
}
