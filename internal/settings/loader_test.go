package settings_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mveljko/backend-cenik/internal/settings"
)

type fakeStore struct {
	values map[string]string
	err    error
}

func (f fakeStore) Settings(context.Context) (map[string]string, error) {
	return f.values, f.err
}

func TestFromMapTypesEntries(t *testing.T) {
	v := settings.FromMap(map[string]string{
		"company_name":           "Alati i oprema doo",
		"default_vat":            "10",
		"default_items_per_page": "25",
		"allow_duplicate_names":  "true",
	})
	require.Equal(t, "Alati i oprema doo", v.CompanyName)
	require.True(t, v.DefaultVATPercent.Equal(decimal.RequireFromString("0.1")),
		"stored percent becomes a fraction, got %s", v.DefaultVATPercent)
	require.Equal(t, 25, v.DefaultItemsPerPage)
	require.True(t, v.AllowDuplicateNames)
}

func TestFromMapFallsBackOnMalformedEntries(t *testing.T) {
	v := settings.FromMap(map[string]string{
		"default_vat":            "abc",
		"default_items_per_page": "-3",
		"allow_duplicate_names":  "maybe",
	})
	defaults := settings.Defaults()
	require.True(t, v.DefaultVATPercent.Equal(defaults.DefaultVATPercent))
	require.Equal(t, defaults.DefaultItemsPerPage, v.DefaultItemsPerPage)
	require.False(t, v.AllowDuplicateNames)
}

func TestLoaderLoad(t *testing.T) {
	loader := settings.NewLoader(fakeStore{values: map[string]string{"default_items_per_page": "10"}})
	v, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, v.DefaultItemsPerPage)
}

func TestLoaderDegradesToDefaultsOnStoreFailure(t *testing.T) {
	loader := settings.NewLoader(fakeStore{err: errors.New("connection refused")})
	v, err := loader.Load(context.Background())
	require.Error(t, err)
	require.Equal(t, settings.Defaults(), v)
}
