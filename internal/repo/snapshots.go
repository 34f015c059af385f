package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/pricing"
)

// SnapshotRow is one stored price snapshot: the raw inputs it was computed
// from plus every derived field. Rows are append-only; an edit rewrites the
// whole row from a fresh computation.
type SnapshotRow struct {
	ID            int64
	ProductID     string
	EffectiveDate time.Time

	BasePrice    decimal.Decimal
	Extras       decimal.Decimal
	Coefficients pricing.CoefficientSet

	Computed pricing.Snapshot
}

// SnapshotStore persists the price history of products.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore constructs a SnapshotStore.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotColumns = `
	id, product_id, effective_date,
	base_price, extras,
	import_percent, margin_percent, warranty_percent, service_percent,
	domestic_transport, installation, training, other,
	base_total, cost_total, calculated_price, final_price, profit_final,
	discount_percent, discount_price, profit_discount`

// Insert appends a snapshot and returns its id.
func (s *SnapshotStore) Insert(ctx context.Context, row SnapshotRow) (int64, error) {
	c := row.Coefficients
	snap := row.Computed
	pid, err := uuidValue(row.ProductID)
	if err != nil {
		return 0, notFound("product")
	}
	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO price_snapshots (
			product_id, effective_date, base_price, extras,
			import_percent, margin_percent, warranty_percent, service_percent,
			domestic_transport, installation, training, other,
			base_total, cost_total, calculated_price, final_price, profit_final,
			discount_percent, discount_price, profit_discount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id`,
		pid, row.EffectiveDate, numericValue(row.BasePrice), numericValue(row.Extras),
		numericValue(c.ImportPercent), numericValue(c.MarginPercent),
		numericValue(c.WarrantyPercent), numericValue(c.ServicePercent),
		numericValue(c.DomesticTransport), numericValue(c.Installation),
		numericValue(c.Training), numericValue(c.Other),
		numericValue(snap.BaseTotal), numericValue(snap.CostTotal),
		numericValue(snap.CalculatedPrice), numericValue(snap.FinalPrice),
		numericValue(snap.ProfitFinal), numericValue(snap.DiscountPercent),
		numericPtr(snap.DiscountPrice), numericPtr(snap.ProfitDiscount),
	).Scan(&id)
	if err != nil {
		return 0, MapError(err, "")
	}
	return id, nil
}

// Replace rewrites an existing snapshot row with a fresh computation. The
// single-statement update serializes concurrent edits of the same row.
func (s *SnapshotStore) Replace(ctx context.Context, row SnapshotRow) error {
	c := row.Coefficients
	snap := row.Computed
	tag, err := s.pool.Exec(ctx, `
		UPDATE price_snapshots SET
			effective_date = $2, base_price = $3, extras = $4,
			import_percent = $5, margin_percent = $6, warranty_percent = $7,
			service_percent = $8, domestic_transport = $9, installation = $10,
			training = $11, other = $12,
			base_total = $13, cost_total = $14, calculated_price = $15,
			final_price = $16, profit_final = $17,
			discount_percent = $18, discount_price = $19, profit_discount = $20
		WHERE id = $1`,
		row.ID, row.EffectiveDate, numericValue(row.BasePrice), numericValue(row.Extras),
		numericValue(c.ImportPercent), numericValue(c.MarginPercent),
		numericValue(c.WarrantyPercent), numericValue(c.ServicePercent),
		numericValue(c.DomesticTransport), numericValue(c.Installation),
		numericValue(c.Training), numericValue(c.Other),
		numericValue(snap.BaseTotal), numericValue(snap.CostTotal),
		numericValue(snap.CalculatedPrice), numericValue(snap.FinalPrice),
		numericValue(snap.ProfitFinal), numericValue(snap.DiscountPercent),
		numericPtr(snap.DiscountPrice), numericPtr(snap.ProfitDiscount))
	if err != nil {
		return MapError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return notFound("price snapshot")
	}
	return nil
}

// Get fetches one snapshot by id.
func (s *SnapshotStore) Get(ctx context.Context, id int64) (SnapshotRow, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM price_snapshots WHERE id = $1`, id)
	snap, err := scanSnapshot(row)
	if err != nil {
		return SnapshotRow{}, MapError(err, "")
	}
	return snap, nil
}

// History lists a product's snapshots, newest first by (date, id).
func (s *SnapshotStore) History(ctx context.Context, productID string) ([]SnapshotRow, error) {
	pid, err := uuidValue(productID)
	if err != nil {
		return nil, notFound("product")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM price_snapshots
		WHERE product_id = $1
		ORDER BY effective_date DESC, id DESC`, pid)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var result []SnapshotRow
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

// Latest returns the product's current snapshot: the greatest
// (effective_date, id) pair. The boolean is false for products without any
// price history.
func (s *SnapshotStore) Latest(ctx context.Context, productID string) (SnapshotRow, bool, error) {
	pid, err := uuidValue(productID)
	if err != nil {
		return SnapshotRow{}, false, notFound("product")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM price_snapshots
		WHERE product_id = $1
		ORDER BY effective_date DESC, id DESC
		LIMIT 1`, pid)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SnapshotRow{}, false, nil
		}
		return SnapshotRow{}, false, MapError(err, "")
	}
	return snap, true, nil
}

// PriceListEntry pairs a product with its current snapshot for exports.
type PriceListEntry struct {
	ProductID    string
	ProductName  string
	CategoryName string
	BrandName    string
	Snapshot     SnapshotRow
}

// PriceList returns every product that has price history, with its latest
// snapshot resolved by (effective_date, id), ordered by product name.
func (s *SnapshotStore) PriceList(ctx context.Context) ([]PriceListEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, coalesce(c.name, ''), coalesce(b.name, ''), `+prefixedSnapshotColumns("ps")+`
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		LEFT JOIN brands b ON b.id = p.brand_id
		JOIN LATERAL (
			SELECT `+snapshotColumns+`
			FROM price_snapshots
			WHERE product_id = p.id
			ORDER BY effective_date DESC, id DESC
			LIMIT 1
		) ps ON TRUE
		ORDER BY lower(p.name)`)
	if err != nil {
		return nil, fmt.Errorf("price list: %w", err)
	}
	defer rows.Close()

	var result []PriceListEntry
	for rows.Next() {
		entry, err := scanPriceListEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// Delete removes one snapshot without touching the rest of the history.
func (s *SnapshotStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM price_snapshots WHERE id = $1`, id)
	if err != nil {
		return MapError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return notFound("price snapshot")
	}
	return nil
}

// snapshotScanner collects the raw pgtype columns of one snapshot row.
type snapshotScanner struct {
	id                             int64
	pid                            pgtype.UUID
	date                           pgtype.Date
	base, extras                   pgtype.Numeric
	imp, margin, warranty, service pgtype.Numeric
	transport, install, training   pgtype.Numeric
	other                          pgtype.Numeric
	baseTotal, costTotal           pgtype.Numeric
	calc, final, profit            pgtype.Numeric
	discPct, discPrice, discProfit pgtype.Numeric
}

func (sc *snapshotScanner) dests() []any {
	return []any{&sc.id, &sc.pid, &sc.date, &sc.base, &sc.extras,
		&sc.imp, &sc.margin, &sc.warranty, &sc.service,
		&sc.transport, &sc.install, &sc.training, &sc.other,
		&sc.baseTotal, &sc.costTotal, &sc.calc, &sc.final, &sc.profit,
		&sc.discPct, &sc.discPrice, &sc.discProfit}
}

func (sc *snapshotScanner) row() SnapshotRow {
	return SnapshotRow{
		ID:            sc.id,
		ProductID:     uuidString(sc.pid),
		EffectiveDate: sc.date.Time,
		BasePrice:     decimalValue(sc.base),
		Extras:        decimalValue(sc.extras),
		Coefficients: pricing.CoefficientSet{
			ImportPercent:     decimalValue(sc.imp),
			MarginPercent:     decimalValue(sc.margin),
			WarrantyPercent:   decimalValue(sc.warranty),
			ServicePercent:    decimalValue(sc.service),
			DomesticTransport: decimalValue(sc.transport),
			Installation:      decimalValue(sc.install),
			Training:          decimalValue(sc.training),
			Other:             decimalValue(sc.other),
		},
		Computed: pricing.Snapshot{
			BaseTotal:       decimalValue(sc.baseTotal),
			CostTotal:       decimalValue(sc.costTotal),
			CalculatedPrice: decimalValue(sc.calc),
			FinalPrice:      decimalValue(sc.final),
			ProfitFinal:     decimalValue(sc.profit),
			DiscountPercent: decimalValue(sc.discPct),
			DiscountPrice:   decimalPtr(sc.discPrice),
			ProfitDiscount:  decimalPtr(sc.discProfit),
		},
	}
}

func scanSnapshot(row pgx.Row) (SnapshotRow, error) {
	var sc snapshotScanner
	if err := row.Scan(sc.dests()...); err != nil {
		return SnapshotRow{}, err
	}
	return sc.row(), nil
}

func scanPriceListEntry(row pgx.Row) (PriceListEntry, error) {
	var (
		entry PriceListEntry
		pid   pgtype.UUID
		sc    snapshotScanner
	)
	dests := append([]any{&pid, &entry.ProductName, &entry.CategoryName, &entry.BrandName}, sc.dests()...)
	if err := row.Scan(dests...); err != nil {
		return PriceListEntry{}, err
	}
	entry.ProductID = uuidString(pid)
	entry.Snapshot = sc.row()
	return entry, nil
}

func prefixedSnapshotColumns(alias string) string {
	cols := strings.Split(snapshotColumns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}
