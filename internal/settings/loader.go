// Package settings types the admin-managed global settings. The table is a
// plain key/value store; consumers load it once per request and read the
// typed struct instead of passing raw maps around.
package settings

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type store interface {
	Settings(ctx context.Context) (map[string]string, error)
}

// Values is the typed view of the global settings table. Missing or
// malformed entries fall back to Defaults.
type Values struct {
	CompanyName    string
	CompanyAddress string
	CompanyPhone   string
	OfferValidity  string

	// DefaultVATPercent is a fraction (0.20 means 20%); the table stores
	// the UI percent form.
	DefaultVATPercent decimal.Decimal
	// DefaultItemsPerPage is the listing page size when the request does
	// not pick one.
	DefaultItemsPerPage int
	// AllowDuplicateNames switches off the case-insensitive product name
	// uniqueness check.
	AllowDuplicateNames bool
}

// Defaults returns the values used when the table has no entry.
func Defaults() Values {
	return Values{
		DefaultVATPercent:   decimal.New(2, -1),
		DefaultItemsPerPage: 50,
	}
}

// Loader reads the settings table through the admin store.
type Loader struct {
	store store
}

// NewLoader constructs a Loader.
func NewLoader(store store) *Loader {
	return &Loader{store: store}
}

// Load fetches the current settings and types them. On a store failure the
// defaults come back alongside the error so callers can degrade.
func (l *Loader) Load(ctx context.Context) (Values, error) {
	raw, err := l.store.Settings(ctx)
	if err != nil {
		return Defaults(), err
	}
	return FromMap(raw), nil
}

var hundred = decimal.NewFromInt(100)

// FromMap types a raw settings map.
func FromMap(raw map[string]string) Values {
	v := Defaults()
	v.CompanyName = strings.TrimSpace(raw["company_name"])
	v.CompanyAddress = strings.TrimSpace(raw["company_address"])
	v.CompanyPhone = strings.TrimSpace(raw["company_phone"])
	v.OfferValidity = strings.TrimSpace(raw["offer_validity"])

	if s := strings.TrimSpace(raw["default_vat"]); s != "" {
		if pct, err := decimal.NewFromString(s); err == nil && pct.Sign() >= 0 {
			v.DefaultVATPercent = pct.Div(hundred)
		}
	}
	if s := strings.TrimSpace(raw["default_items_per_page"]); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			v.DefaultItemsPerPage = n
		}
	}
	v.AllowDuplicateNames = truthy(raw["allow_duplicate_names"])
	return v
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
