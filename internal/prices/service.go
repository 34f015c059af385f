// Package prices owns the lifecycle of price snapshots: create, quick
// update, edit, delete, history, and the current price list. Every write
// runs the full computation; derived fields are never patched by hand.
package prices

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/obs"
	"github.com/mveljko/backend-cenik/internal/pricing"
	"github.com/mveljko/backend-cenik/internal/repo"
)

type snapshotStore interface {
	Insert(ctx context.Context, row repo.SnapshotRow) (int64, error)
	Replace(ctx context.Context, row repo.SnapshotRow) error
	Get(ctx context.Context, id int64) (repo.SnapshotRow, error)
	History(ctx context.Context, productID string) ([]repo.SnapshotRow, error)
	Latest(ctx context.Context, productID string) (repo.SnapshotRow, bool, error)
	Delete(ctx context.Context, id int64) error
	PriceList(ctx context.Context) ([]repo.PriceListEntry, error)
}

type catalogReader interface {
	GetProduct(ctx context.Context, id string) (repo.Product, error)
	GetCategory(ctx context.Context, id string) (repo.Category, error)
}

type ruleSource interface {
	Table(ctx context.Context) (pricing.RuleTable, error)
}

// Service orchestrates snapshot computation and persistence.
type Service struct {
	snapshots snapshotStore
	catalog   catalogReader
	rules     ruleSource
	today     func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Snapshots snapshotStore
	Catalog   catalogReader
	Rules     ruleSource
}

// SnapshotInput is a full set of raw inputs for create and edit. Percentages
// are fractions; the handler converts from UI percent values.
type SnapshotInput struct {
	EffectiveDate         time.Time
	BasePrice             decimal.Decimal
	Extras                decimal.Decimal
	Coefficients          pricing.CoefficientSet
	FinalPriceOverride    decimal.Decimal
	DiscountPercent       decimal.Decimal
	DiscountPriceOverride decimal.Decimal
}

// QuickUpdateInput carries the short form: a new base price, optionally new
// extras. Everything else is inherited.
type QuickUpdateInput struct {
	EffectiveDate time.Time
	BasePrice     decimal.Decimal
	Extras        *decimal.Decimal
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Snapshots == nil || cfg.Catalog == nil || cfg.Rules == nil {
		return nil, errors.New("prices: snapshots, catalog, and rules are required")
	}
	return &Service{
		snapshots: cfg.Snapshots,
		catalog:   cfg.Catalog,
		rules:     cfg.Rules,
		today:     time.Now,
	}, nil
}

// WithToday allows tests to pin the default effective date.
func (s *Service) WithToday(today func() time.Time) {
	if today != nil {
		s.today = today
	}
}

// Create computes and appends a snapshot from explicit inputs.
func (s *Service) Create(ctx context.Context, productID string, in SnapshotInput) (repo.SnapshotRow, error) {
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return repo.SnapshotRow{}, err
	}
	return s.computeAndStore(ctx, repo.SnapshotRow{ProductID: productID}, in, s.snapshots.Insert)
}

// Edit re-runs the full derivation for an existing snapshot with new inputs
// and rewrites the row. There is no partial patch.
func (s *Service) Edit(ctx context.Context, snapshotID int64, in SnapshotInput) (repo.SnapshotRow, error) {
	existing, err := s.snapshots.Get(ctx, snapshotID)
	if err != nil {
		return repo.SnapshotRow{}, err
	}
	return s.computeAndStore(ctx, repo.SnapshotRow{ID: existing.ID, ProductID: existing.ProductID}, in,
		func(ctx context.Context, row repo.SnapshotRow) (int64, error) {
			return row.ID, s.snapshots.Replace(ctx, row)
		})
}

// QuickUpdate appends a snapshot from just a base price (and optionally
// extras), inheriting coefficients from the latest snapshot, then the
// category defaults, then zeros. A percentage discount on the inherited
// snapshot is re-derived against the new final price; a fixed discount
// override is not carried over.
func (s *Service) QuickUpdate(ctx context.Context, productID string, in QuickUpdateInput) (repo.SnapshotRow, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return repo.SnapshotRow{}, err
	}
	latest, hasLatest, err := s.snapshots.Latest(ctx, productID)
	if err != nil {
		return repo.SnapshotRow{}, err
	}

	var (
		latestCoeffs, categoryCoeffs *pricing.CoefficientSet
		categoryExtras               decimal.Decimal
	)
	if hasLatest {
		latestCoeffs = &latest.Coefficients
	}
	if product.CategoryID != nil {
		category, err := s.catalog.GetCategory(ctx, *product.CategoryID)
		if err == nil {
			categoryCoeffs = &category.Coefficients
			categoryExtras = category.DefaultExtras
		}
	}

	full := SnapshotInput{
		EffectiveDate: in.EffectiveDate,
		BasePrice:     in.BasePrice,
		Coefficients:  pricing.ResolveCoefficients(latestCoeffs, categoryCoeffs),
	}
	switch {
	case in.Extras != nil:
		full.Extras = *in.Extras
	case hasLatest:
		full.Extras = latest.Extras
	default:
		full.Extras = categoryExtras
	}
	if hasLatest && latest.Computed.DiscountPercent.Sign() > 0 {
		full.DiscountPercent = latest.Computed.DiscountPercent
	}
	return s.computeAndStore(ctx, repo.SnapshotRow{ProductID: productID}, full, s.snapshots.Insert)
}

// History lists a product's snapshots newest first.
func (s *Service) History(ctx context.Context, productID string) ([]repo.SnapshotRow, error) {
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.snapshots.History(ctx, productID)
}

// Latest returns the product's current snapshot.
func (s *Service) Latest(ctx context.Context, productID string) (repo.SnapshotRow, error) {
	row, ok, err := s.snapshots.Latest(ctx, productID)
	if err != nil {
		return repo.SnapshotRow{}, err
	}
	if !ok {
		return repo.SnapshotRow{}, common.NewAppError("NOT_FOUND", "product has no price history", http.StatusNotFound, nil)
	}
	return row, nil
}

// Delete removes one snapshot by explicit request.
func (s *Service) Delete(ctx context.Context, snapshotID int64) error {
	return s.snapshots.Delete(ctx, snapshotID)
}

// PriceList returns the current price list for export.
func (s *Service) PriceList(ctx context.Context) ([]repo.PriceListEntry, error) {
	return s.snapshots.PriceList(ctx)
}

func (s *Service) computeAndStore(
	ctx context.Context,
	row repo.SnapshotRow,
	in SnapshotInput,
	store func(context.Context, repo.SnapshotRow) (int64, error),
) (repo.SnapshotRow, error) {
	table, err := s.rules.Table(ctx)
	if err != nil {
		return repo.SnapshotRow{}, err
	}
	computed, err := pricing.Compute(pricing.Inputs{
		BasePrice:             in.BasePrice,
		Extras:                in.Extras,
		Coefficients:          in.Coefficients,
		FinalPriceOverride:    in.FinalPriceOverride,
		DiscountPercent:       in.DiscountPercent,
		DiscountPriceOverride: in.DiscountPriceOverride,
	}, table)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidInput) {
			obs.CountSnapshotCompute("invalid")
			return repo.SnapshotRow{}, common.NewAppError("VALIDATION_ERROR", err.Error(), http.StatusUnprocessableEntity, err)
		}
		return repo.SnapshotRow{}, err
	}
	obs.CountSnapshotCompute("ok")

	row.EffectiveDate = in.EffectiveDate
	if row.EffectiveDate.IsZero() {
		row.EffectiveDate = s.today()
	}
	row.BasePrice = in.BasePrice
	row.Extras = in.Extras
	row.Coefficients = in.Coefficients
	row.Computed = computed

	id, err := store(ctx, row)
	if err != nil {
		return repo.SnapshotRow{}, err
	}
	row.ID = id
	return row, nil
}
