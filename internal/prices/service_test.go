package prices

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mveljko/backend-cenik/internal/pricing"
	"github.com/mveljko/backend-cenik/internal/repo"
)

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeSnapshots struct {
	rows   map[int64]repo.SnapshotRow
	nextID int64
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{rows: map[int64]repo.SnapshotRow{}, nextID: 1}
}

func (f *fakeSnapshots) Insert(_ context.Context, row repo.SnapshotRow) (int64, error) {
	row.ID = f.nextID
	f.nextID++
	f.rows[row.ID] = row
	return row.ID, nil
}

func (f *fakeSnapshots) Replace(_ context.Context, row repo.SnapshotRow) error {
	if _, ok := f.rows[row.ID]; !ok {
		return contextMissing
	}
	f.rows[row.ID] = row
	return nil
}

func (f *fakeSnapshots) Get(_ context.Context, id int64) (repo.SnapshotRow, error) {
	row, ok := f.rows[id]
	if !ok {
		return repo.SnapshotRow{}, contextMissing
	}
	return row, nil
}

func (f *fakeSnapshots) History(_ context.Context, productID string) ([]repo.SnapshotRow, error) {
	var out []repo.SnapshotRow
	for id := f.nextID - 1; id >= 1; id-- {
		if row, ok := f.rows[id]; ok && row.ProductID == productID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeSnapshots) Latest(_ context.Context, productID string) (repo.SnapshotRow, bool, error) {
	var (
		best  repo.SnapshotRow
		found bool
	)
	for _, row := range f.rows {
		if row.ProductID != productID {
			continue
		}
		if !found || row.EffectiveDate.After(best.EffectiveDate) ||
			(row.EffectiveDate.Equal(best.EffectiveDate) && row.ID > best.ID) {
			best = row
			found = true
		}
	}
	return best, found, nil
}

func (f *fakeSnapshots) Delete(_ context.Context, id int64) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeSnapshots) PriceList(_ context.Context) ([]repo.PriceListEntry, error) {
	return nil, nil
}

var contextMissing = errMissing{}

type errMissing struct{}

func (errMissing) Error() string { return "not found" }

type fakeCatalog struct {
	products   map[string]repo.Product
	categories map[string]repo.Category
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (repo.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return repo.Product{}, contextMissing
	}
	return p, nil
}

func (f *fakeCatalog) GetCategory(_ context.Context, id string) (repo.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return repo.Category{}, contextMissing
	}
	return c, nil
}

type fakeRules struct {
	table pricing.RuleTable
}

func (f *fakeRules) Table(_ context.Context) (pricing.RuleTable, error) {
	return f.table, nil
}

const (
	productID  = "3f1c7e1e-0000-4000-8000-000000000001"
	categoryID = "3f1c7e1e-0000-4000-8000-000000000002"
)

func newTestService(t *testing.T) (*Service, *fakeSnapshots, *fakeCatalog) {
	t.Helper()
	catID := categoryID
	catalog := &fakeCatalog{
		products: map[string]repo.Product{
			productID: {ID: productID, Name: "Kompresor 50L", CategoryID: &catID},
		},
		categories: map[string]repo.Category{
			categoryID: {
				ID:            categoryID,
				Name:          "Kompresori",
				DefaultExtras: dec("20"),
				Coefficients: pricing.CoefficientSet{
					ImportPercent:     dec("0.07"),
					MarginPercent:     dec("0.40"),
					DomesticTransport: dec("50"),
				},
			},
		},
	}
	rules := &fakeRules{table: pricing.NewRuleTable([]pricing.Rule{
		{Target: pricing.TargetPrice, Limit: dec("10000"), Step: dec("100"), Method: pricing.MethodUp},
		{Target: pricing.TargetDiscount, Limit: dec("10000"), Step: dec("100"), Method: pricing.MethodUp},
	})}
	snapshots := newFakeSnapshots()
	svc, err := NewService(ServiceConfig{Snapshots: snapshots, Catalog: catalog, Rules: rules})
	require.NoError(t, err)
	return svc, snapshots, catalog
}

func TestCreateComputesDerivedFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	row, err := svc.Create(context.Background(), productID, SnapshotInput{
		BasePrice: dec("1000"),
		Coefficients: pricing.CoefficientSet{
			ImportPercent:     dec("0.07"),
			MarginPercent:     dec("0.40"),
			DomesticTransport: dec("50"),
		},
	})
	require.NoError(t, err)
	require.True(t, row.Computed.FinalPrice.Equal(dec("1600")), "final price %s", row.Computed.FinalPrice)
	require.True(t, row.Computed.ProfitFinal.Equal(dec("480")))
}

func TestCreateRejectsNegativeBasePrice(t *testing.T) {
	svc, snapshots, _ := newTestService(t)
	_, err := svc.Create(context.Background(), productID, SnapshotInput{BasePrice: dec("-10")})
	require.Error(t, err)
	require.Empty(t, snapshots.rows, "no partial snapshot may be persisted on failure")
}

func TestQuickUpdateInheritsFromLatestSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), productID, SnapshotInput{
		BasePrice: dec("1000"),
		Coefficients: pricing.CoefficientSet{
			ImportPercent:     dec("0.10"),
			MarginPercent:     dec("0.30"),
			DomesticTransport: dec("80"),
		},
	})
	require.NoError(t, err)

	row, err := svc.QuickUpdate(context.Background(), productID, QuickUpdateInput{BasePrice: dec("2000")})
	require.NoError(t, err)
	// Snapshot coefficients outrank category defaults.
	require.True(t, row.Coefficients.ImportPercent.Equal(dec("0.10")))
	require.True(t, row.Coefficients.MarginPercent.Equal(dec("0.30")))
	// 2000*1.10+80 = 2280; 2280*1.30 = 2964 -> 3000
	require.True(t, row.Computed.FinalPrice.Equal(dec("3000")), "final price %s", row.Computed.FinalPrice)
}

func TestQuickUpdateFallsBackToCategoryDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)
	row, err := svc.QuickUpdate(context.Background(), productID, QuickUpdateInput{BasePrice: dec("1000")})
	require.NoError(t, err)
	require.True(t, row.Coefficients.ImportPercent.Equal(dec("0.07")))
	require.True(t, row.Extras.Equal(dec("20")), "extras inherit the category default, got %s", row.Extras)
	// (1000+20)*1.07+50 = 1141.4; *1.40 = 1597.96 -> 1600
	require.True(t, row.Computed.FinalPrice.Equal(dec("1600")), "final price %s", row.Computed.FinalPrice)
}

func TestQuickUpdateZeroCoefficientsWithoutCategory(t *testing.T) {
	svc, _, catalog := newTestService(t)
	bare := catalog.products[productID]
	bare.CategoryID = nil
	catalog.products[productID] = bare

	row, err := svc.QuickUpdate(context.Background(), productID, QuickUpdateInput{BasePrice: dec("950")})
	require.NoError(t, err)
	require.True(t, row.Coefficients.MarginPercent.IsZero())
	// No margin, no costs: calculated = 950 -> rounded up to 1000.
	require.True(t, row.Computed.FinalPrice.Equal(dec("1000")))
}

func TestQuickUpdateRederivesPercentDiscount(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), productID, SnapshotInput{
		BasePrice: dec("1000"),
		Coefficients: pricing.CoefficientSet{
			ImportPercent:     dec("0.07"),
			MarginPercent:     dec("0.40"),
			DomesticTransport: dec("50"),
		},
		DiscountPercent: dec("0.10"),
	})
	require.NoError(t, err)

	row, err := svc.QuickUpdate(context.Background(), productID, QuickUpdateInput{
		BasePrice: dec("2000"),
		Extras:    ptr(dec("0")),
	})
	require.NoError(t, err)
	require.NotNil(t, row.Computed.DiscountPrice)
	// 2000*1.07+50 = 2190; *1.40 = 3066 -> 3100; 3100*0.90 = 2790 -> 2800
	require.True(t, row.Computed.FinalPrice.Equal(dec("3100")), "final price %s", row.Computed.FinalPrice)
	require.True(t, row.Computed.DiscountPrice.Equal(dec("2800")), "discount price %s", row.Computed.DiscountPrice)
}

func TestEditRecomputesInPlace(t *testing.T) {
	svc, snapshots, _ := newTestService(t)
	created, err := svc.Create(context.Background(), productID, SnapshotInput{
		BasePrice:    dec("1000"),
		Coefficients: pricing.CoefficientSet{MarginPercent: dec("0.40")},
	})
	require.NoError(t, err)

	edited, err := svc.Edit(context.Background(), created.ID, SnapshotInput{
		BasePrice:    dec("1200"),
		Coefficients: pricing.CoefficientSet{MarginPercent: dec("0.50")},
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, edited.ID)
	// 1200*1.50 = 1800, aligned to step 100 already.
	require.True(t, edited.Computed.FinalPrice.Equal(dec("1800")))
	require.Len(t, snapshots.rows, 1, "edit rewrites the row, it does not append")
}

func TestCategoryDefaultsEditDoesNotTouchHistory(t *testing.T) {
	svc, snapshots, catalog := newTestService(t)
	created, err := svc.QuickUpdate(context.Background(), productID, QuickUpdateInput{BasePrice: dec("1000")})
	require.NoError(t, err)

	cat := catalog.categories[categoryID]
	cat.Coefficients.MarginPercent = dec("0.90")
	catalog.categories[categoryID] = cat

	stored := snapshots.rows[created.ID]
	require.True(t, stored.Coefficients.MarginPercent.Equal(dec("0.40")),
		"existing snapshots keep the coefficients they were computed with")
}

func TestLatestPrefersDateThenID(t *testing.T) {
	svc, _, _ := newTestService(t)
	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(context.Background(), productID, SnapshotInput{
		EffectiveDate: newer, BasePrice: dec("2000"),
	})
	require.NoError(t, err)
	// Backfilled same-day rows: inserted later but dated earlier.
	_, err = svc.Create(context.Background(), productID, SnapshotInput{
		EffectiveDate: older, BasePrice: dec("1000"),
	})
	require.NoError(t, err)

	latest, err := svc.Latest(context.Background(), productID)
	require.NoError(t, err)
	require.True(t, latest.BasePrice.Equal(dec("2000")), "latest must follow (date, id), got base %s", latest.BasePrice)
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }
