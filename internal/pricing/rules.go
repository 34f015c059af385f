package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Target selects which price field a rounding rule applies to.
type Target string

const (
	// TargetPrice rounds the customer-facing list price.
	TargetPrice Target = "price"
	// TargetDiscount rounds the promotional discount price.
	TargetDiscount Target = "discount"
)

// Valid reports whether the target is a known value.
func (t Target) Valid() bool {
	return t == TargetPrice || t == TargetDiscount
}

// Method describes how a raw value is snapped onto a step multiple.
type Method string

const (
	// MethodUp rounds to the smallest step multiple that is >= the value.
	MethodUp Method = "UP"
	// MethodDown rounds to the largest step multiple that is <= the value.
	MethodDown Method = "DOWN"
	// MethodNearest rounds to the closest step multiple, half up.
	MethodNearest Method = "NEAREST"
)

// Valid reports whether the method is a known value.
func (m Method) Valid() bool {
	return m == MethodUp || m == MethodDown || m == MethodNearest
}

// apply snaps value onto a multiple of step. The caller guarantees step > 0
// and value > 0.
func (m Method) apply(value, step decimal.Decimal) decimal.Decimal {
	quotient := value.Div(step)
	switch m {
	case MethodDown:
		return quotient.Floor().Mul(step)
	case MethodNearest:
		// Round is half away from zero; on the positive domain that is the
		// documented half-up tie-break.
		return quotient.Round(0).Mul(step)
	default:
		return quotient.Ceil().Mul(step)
	}
}

// Rule is one bracket of the rounding table: values up to Limit are snapped
// to multiples of Step using Method.
type Rule struct {
	Target Target
	Limit  decimal.Decimal
	Step   decimal.Decimal
	Method Method
}

// RuleTable holds the configured rounding rules for all targets. The zero
// value is a valid empty table that rounds nothing.
type RuleTable struct {
	rules []Rule
}

// NewRuleTable copies the provided rules into a table. Rules are assumed to
// be valid (positive limit and step, known target and method); the admin
// write path enforces that before they are ever stored.
func NewRuleTable(rules []Rule) RuleTable {
	owned := make([]Rule, len(rules))
	copy(owned, rules)
	sort.SliceStable(owned, func(i, j int) bool {
		if owned[i].Target != owned[j].Target {
			return owned[i].Target < owned[j].Target
		}
		return owned[i].Limit.LessThan(owned[j].Limit)
	})
	return RuleTable{rules: owned}
}

// Len returns the number of configured rules.
func (t RuleTable) Len() int { return len(t.rules) }

// Resolve picks the rule governing value for the given target: the rule with
// the smallest limit >= value, or the largest-limit rule for the target when
// the value exceeds every bracket (the catch-all ceiling). The boolean is
// false when no rule exists for the target at all.
func (t RuleTable) Resolve(target Target, value decimal.Decimal) (Rule, bool) {
	var tightest, ceiling *Rule
	for i := range t.rules {
		r := &t.rules[i]
		if r.Target != target {
			continue
		}
		if ceiling == nil || r.Limit.GreaterThan(ceiling.Limit) {
			ceiling = r
		}
		if r.Limit.GreaterThanOrEqual(value) {
			if tightest == nil || r.Limit.LessThan(tightest.Limit) {
				tightest = r
			}
		}
	}
	if tightest != nil {
		return *tightest, true
	}
	if ceiling != nil {
		return *ceiling, true
	}
	return Rule{}, false
}

// Apply rounds value according to the resolved rule for target. Values <= 0
// always collapse to zero without a rule lookup; when no rule is configured
// for the target the value passes through unchanged.
func (t RuleTable) Apply(target Target, value decimal.Decimal) decimal.Decimal {
	if value.Sign() <= 0 {
		return decimal.Zero
	}
	rule, ok := t.Resolve(target, value)
	if !ok {
		return value
	}
	return rule.Method.apply(value, rule.Step)
}
