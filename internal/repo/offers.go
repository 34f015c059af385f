package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Offer is a stored quotation header with its computed totals.
type Offer struct {
	ID                string
	OfferNo           string
	ClientName        string
	ClientAddress     string
	ClientContact     string
	Currency          string
	ExchangeRate      decimal.Decimal
	DiscountPercent   decimal.Decimal
	VATPercent        decimal.Decimal
	UseDiscountPrices bool
	Terms             string

	TotalNet           decimal.Decimal
	TotalDiscount      decimal.Decimal
	TotalAfterDiscount decimal.Decimal
	TotalVAT           decimal.Decimal
	TotalGross         decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OfferItem is one quotation line.
type OfferItem struct {
	ID        int64
	OfferID   string
	ProductID *string
	LineOrder int
	Name      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	LineNet   decimal.Decimal
}

// OfferStore persists offers and their line items.
type OfferStore struct {
	pool *pgxpool.Pool
}

// NewOfferStore constructs an OfferStore.
func NewOfferStore(pool *pgxpool.Pool) *OfferStore {
	return &OfferStore{pool: pool}
}

const offerColumns = `
	id, offer_no, client_name, client_address, client_contact,
	currency, exchange_rate, discount_percent, vat_percent,
	use_discount_prices, terms,
	total_net, total_discount, total_after_discount, total_vat, total_gross,
	created_at, updated_at`

// List returns offers newest first.
func (s *OfferStore) List(ctx context.Context, offset, limit int) ([]Offer, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM offers`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count offers: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var result []Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, offer)
	}
	return result, total, rows.Err()
}

// Get fetches one offer header.
func (s *OfferStore) Get(ctx context.Context, id string) (Offer, error) {
	uid, err := uuidValue(id)
	if err != nil {
		return Offer{}, notFound("offer")
	}
	offer, err := scanOffer(s.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, uid))
	if err != nil {
		return Offer{}, MapError(err, "")
	}
	return offer, nil
}

// Insert stores a new offer header.
func (s *OfferStore) Insert(ctx context.Context, offer Offer) (Offer, error) {
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	uid, err := uuidValue(offer.ID)
	if err != nil {
		return Offer{}, notFound("offer")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO offers (
			id, offer_no, client_name, client_address, client_contact,
			currency, exchange_rate, discount_percent, vat_percent,
			use_discount_prices, terms,
			total_net, total_discount, total_after_discount, total_vat, total_gross)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16)`,
		uid, offer.OfferNo, offer.ClientName, offer.ClientAddress, offer.ClientContact,
		offer.Currency, numericValue(offer.ExchangeRate), numericValue(offer.DiscountPercent),
		numericValue(offer.VATPercent), offer.UseDiscountPrices, offer.Terms,
		numericValue(offer.TotalNet), numericValue(offer.TotalDiscount),
		numericValue(offer.TotalAfterDiscount), numericValue(offer.TotalVAT),
		numericValue(offer.TotalGross))
	if err != nil {
		return Offer{}, MapError(err, "an offer with this number already exists")
	}
	return s.Get(ctx, offer.ID)
}

// Update rewrites the offer header, totals included.
func (s *OfferStore) Update(ctx context.Context, offer Offer) error {
	uid, err := uuidValue(offer.ID)
	if err != nil {
		return notFound("offer")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE offers SET
			offer_no = $2, client_name = $3, client_address = $4, client_contact = $5,
			currency = $6, exchange_rate = $7, discount_percent = $8, vat_percent = $9,
			use_discount_prices = $10, terms = $11,
			total_net = $12, total_discount = $13, total_after_discount = $14,
			total_vat = $15, total_gross = $16,
			updated_at = now()
		WHERE id = $1`,
		uid, offer.OfferNo, offer.ClientName, offer.ClientAddress, offer.ClientContact,
		offer.Currency, numericValue(offer.ExchangeRate), numericValue(offer.DiscountPercent),
		numericValue(offer.VATPercent), offer.UseDiscountPrices, offer.Terms,
		numericValue(offer.TotalNet), numericValue(offer.TotalDiscount),
		numericValue(offer.TotalAfterDiscount), numericValue(offer.TotalVAT),
		numericValue(offer.TotalGross))
	if err != nil {
		return MapError(err, "an offer with this number already exists")
	}
	if tag.RowsAffected() == 0 {
		return notFound("offer")
	}
	return nil
}

// Delete removes an offer and, through the cascade, its items.
func (s *OfferStore) Delete(ctx context.Context, id string) error {
	uid, err := uuidValue(id)
	if err != nil {
		return notFound("offer")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM offers WHERE id = $1`, uid)
	if err != nil {
		return MapError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return notFound("offer")
	}
	return nil
}

// Items lists the offer's lines in display order.
func (s *OfferStore) Items(ctx context.Context, offerID string) ([]OfferItem, error) {
	uid, err := uuidValue(offerID)
	if err != nil {
		return nil, notFound("offer")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, offer_id, product_id, line_order, name, quantity, unit_price, line_net
		FROM offer_items
		WHERE offer_id = $1
		ORDER BY line_order, id`, uid)
	if err != nil {
		return nil, fmt.Errorf("list offer items: %w", err)
	}
	defer rows.Close()

	var result []OfferItem
	for rows.Next() {
		var (
			item         OfferItem
			oid, pid     pgtype.UUID
			qty, up, net pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &oid, &pid, &item.LineOrder, &item.Name, &qty, &up, &net); err != nil {
			return nil, fmt.Errorf("scan offer item: %w", err)
		}
		item.OfferID = uuidString(oid)
		if pid.Valid {
			p := uuidString(pid)
			item.ProductID = &p
		}
		item.Quantity = decimalValue(qty)
		item.UnitPrice = decimalValue(up)
		item.LineNet = decimalValue(net)
		result = append(result, item)
	}
	return result, rows.Err()
}

// ReplaceItems swaps the offer's full line set in one transaction, keeping
// the provided order.
func (s *OfferStore) ReplaceItems(ctx context.Context, offerID string, items []OfferItem) error {
	uid, err := uuidValue(offerID)
	if err != nil {
		return notFound("offer")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return MapError(err, "")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM offer_items WHERE offer_id = $1`, uid); err != nil {
		return MapError(err, "")
	}
	for order, item := range items {
		pid, err := optionalUUID(item.ProductID)
		if err != nil {
			return notFound("product")
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO offer_items (offer_id, product_id, line_order, name, quantity, unit_price, line_net)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uid, pid, order, item.Name,
			numericValue(item.Quantity), numericValue(item.UnitPrice), numericValue(item.LineNet)); err != nil {
			return MapError(err, "")
		}
	}
	return MapError(tx.Commit(ctx), "")
}

func scanOffer(row pgx.Row) (Offer, error) {
	var (
		offer                 Offer
		id                    pgtype.UUID
		rate, discPct, vatPct pgtype.Numeric
		net, disc, afterDisc  pgtype.Numeric
		vat, gross            pgtype.Numeric
		createdAt, updatedAt  pgtype.Timestamptz
	)
	err := row.Scan(&id, &offer.OfferNo, &offer.ClientName, &offer.ClientAddress,
		&offer.ClientContact, &offer.Currency, &rate, &discPct, &vatPct,
		&offer.UseDiscountPrices, &offer.Terms,
		&net, &disc, &afterDisc, &vat, &gross, &createdAt, &updatedAt)
	if err != nil {
		return Offer{}, err
	}
	offer.ID = uuidString(id)
	offer.ExchangeRate = decimalValue(rate)
	offer.DiscountPercent = decimalValue(discPct)
	offer.VATPercent = decimalValue(vatPct)
	offer.TotalNet = decimalValue(net)
	offer.TotalDiscount = decimalValue(disc)
	offer.TotalAfterDiscount = decimalValue(afterDisc)
	offer.TotalVAT = decimalValue(vat)
	offer.TotalGross = decimalValue(gross)
	offer.CreatedAt = createdAt.Time
	offer.UpdatedAt = updatedAt.Time
	return offer, nil
}
