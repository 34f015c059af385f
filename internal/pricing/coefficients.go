package pricing

import "github.com/shopspring/decimal"

// CoefficientSet carries the cost components applied on top of the base
// price. Percentages are fractions (0.07 = 7%); the remaining fields are
// absolute currency amounts.
type CoefficientSet struct {
	ImportPercent     decimal.Decimal
	MarginPercent     decimal.Decimal
	WarrantyPercent   decimal.Decimal
	ServicePercent    decimal.Decimal
	DomesticTransport decimal.Decimal
	Installation      decimal.Decimal
	Training          decimal.Decimal
	Other             decimal.Decimal
}

// ResolveCoefficients implements the inheritance chain for quick updates:
// the product's most recent snapshot wins, then the category defaults, then
// all zeros. Callers pass nil for links that do not exist.
func ResolveCoefficients(latest, categoryDefaults *CoefficientSet) CoefficientSet {
	if latest != nil {
		return *latest
	}
	if categoryDefaults != nil {
		return *categoryDefaults
	}
	return CoefficientSet{}
}
