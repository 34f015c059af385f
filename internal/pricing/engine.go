// Package pricing derives the full set of monetary fields of a price
// snapshot from its raw inputs and the configured rounding rules. It is pure
// computation: no I/O, no clock, no lookups. Callers fetch the rule table
// and coefficient defaults, invoke Compute, and persist the result.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput wraps every input validation failure. Negative amounts are
// rejected rather than clamped so caller bugs surface instead of producing a
// plausible-looking snapshot.
var ErrInvalidInput = errors.New("invalid pricing input")

func invalidf(field string, value decimal.Decimal) error {
	return fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidInput, field, value)
}

// Inputs are the raw fields a snapshot is computed from.
type Inputs struct {
	BasePrice    decimal.Decimal
	Extras       decimal.Decimal
	Coefficients CoefficientSet

	// FinalPriceOverride, when positive, replaces the rounded calculated
	// price verbatim.
	FinalPriceOverride decimal.Decimal

	// DiscountPercent is a fraction (0.10 = 10%). DiscountPriceOverride,
	// when positive, wins over the percentage derivation.
	DiscountPercent       decimal.Decimal
	DiscountPriceOverride decimal.Decimal
}

// Snapshot holds every derived monetary field. DiscountPrice and
// ProfitDiscount are nil when the snapshot carries no discount.
type Snapshot struct {
	BaseTotal       decimal.Decimal
	CostTotal       decimal.Decimal
	CalculatedPrice decimal.Decimal
	FinalPrice      decimal.Decimal
	ProfitFinal     decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountPrice   *decimal.Decimal
	ProfitDiscount  *decimal.Decimal
}

var one = decimal.NewFromInt(1)

// Compute produces a snapshot from inputs and the rounding rules.
//
//	base_total       = base_price + extras
//	cost_total       = base_total * (1 + import + warranty + service)
//	                   + transport + installation + training + other
//	calculated_price = cost_total * (1 + margin)
//	final_price      = override when > 0, else round(calculated_price, price)
//	profit_final     = final_price - cost_total
//
// The discount price follows a strict precedence: an explicit override wins;
// otherwise a positive discount percent derives
// round(final_price * (1 - percent), discount); otherwise both discount
// fields stay nil.
func Compute(in Inputs, rules RuleTable) (Snapshot, error) {
	if err := validate(in); err != nil {
		return Snapshot{}, err
	}

	c := in.Coefficients
	baseTotal := in.BasePrice.Add(in.Extras)
	costTotal := baseTotal.
		Mul(one.Add(c.ImportPercent).Add(c.WarrantyPercent).Add(c.ServicePercent)).
		Add(c.DomesticTransport).
		Add(c.Installation).
		Add(c.Training).
		Add(c.Other)
	calculated := costTotal.Mul(one.Add(c.MarginPercent))

	finalPrice := in.FinalPriceOverride
	if finalPrice.Sign() <= 0 {
		finalPrice = rules.Apply(TargetPrice, calculated)
	}

	snap := Snapshot{
		BaseTotal:       baseTotal,
		CostTotal:       costTotal,
		CalculatedPrice: calculated,
		FinalPrice:      finalPrice,
		ProfitFinal:     finalPrice.Sub(costTotal),
	}

	switch {
	case in.DiscountPriceOverride.Sign() > 0:
		snap.DiscountPercent = in.DiscountPercent
		setDiscount(&snap, in.DiscountPriceOverride)
	case in.DiscountPercent.Sign() > 0 && finalPrice.Sign() > 0:
		snap.DiscountPercent = in.DiscountPercent
		raw := finalPrice.Mul(one.Sub(in.DiscountPercent))
		setDiscount(&snap, rules.Apply(TargetDiscount, raw))
	}
	return snap, nil
}

func setDiscount(snap *Snapshot, price decimal.Decimal) {
	profit := price.Sub(snap.CostTotal)
	snap.DiscountPrice = &price
	snap.ProfitDiscount = &profit
}

func validate(in Inputs) error {
	c := in.Coefficients
	checks := []struct {
		field string
		value decimal.Decimal
	}{
		{"base_price", in.BasePrice},
		{"extras", in.Extras},
		{"import_percent", c.ImportPercent},
		{"margin_percent", c.MarginPercent},
		{"warranty_percent", c.WarrantyPercent},
		{"service_percent", c.ServicePercent},
		{"domestic_transport", c.DomesticTransport},
		{"installation", c.Installation},
		{"training", c.Training},
		{"other", c.Other},
		{"final_price_override", in.FinalPriceOverride},
		{"discount_percent", in.DiscountPercent},
		{"discount_price_override", in.DiscountPriceOverride},
	}
	for _, ch := range checks {
		if ch.value.Sign() < 0 {
			return invalidf(ch.field, ch.value)
		}
	}
	return nil
}
