// Package quote builds customer offers on top of the price list: line
// items seeded from the latest product prices, offer-level discount and
// VAT, and stored totals.
package quote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/obs"
	"github.com/mveljko/backend-cenik/internal/repo"
	"github.com/mveljko/backend-cenik/internal/settings"
)

type offerStore interface {
	List(ctx context.Context, offset, limit int) ([]repo.Offer, int64, error)
	Get(ctx context.Context, id string) (repo.Offer, error)
	Insert(ctx context.Context, offer repo.Offer) (repo.Offer, error)
	Update(ctx context.Context, offer repo.Offer) error
	Delete(ctx context.Context, id string) error
	Items(ctx context.Context, offerID string) ([]repo.OfferItem, error)
	ReplaceItems(ctx context.Context, offerID string, items []repo.OfferItem) error
}

type priceReader interface {
	Latest(ctx context.Context, productID string) (repo.SnapshotRow, bool, error)
}

type productReader interface {
	GetProduct(ctx context.Context, id string) (repo.Product, error)
}

// Service orchestrates offer composition.
type Service struct {
	offers   offerStore
	prices   priceReader
	products productReader
	settings *settings.Loader
	now      func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Offers   offerStore
	Prices   priceReader
	Products productReader
	// Settings supplies the admin-managed default VAT and listing page
	// size; optional.
	Settings *settings.Loader
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Offers == nil || cfg.Prices == nil || cfg.Products == nil {
		return nil, fmt.Errorf("quote: offers, prices, and products stores are required")
	}
	return &Service{
		offers:   cfg.Offers,
		prices:   cfg.Prices,
		products: cfg.Products,
		settings: cfg.Settings,
		now:      time.Now,
	}, nil
}

// OfferInput carries the offer header fields. Percentages are fractions
// (0.20 means 20%). A nil VATPercent takes the admin-configured default.
type OfferInput struct {
	OfferNo           string
	ClientName        string
	ClientAddress     string
	ClientContact     string
	Currency          string
	ExchangeRate      decimal.Decimal
	DiscountPercent   decimal.Decimal
	VATPercent        *decimal.Decimal
	UseDiscountPrices bool
	Terms             string
}

// LineInput is one requested offer line. A nil UnitPrice seeds the price
// from the product's latest snapshot; free-text lines must set it.
type LineInput struct {
	ProductID *string
	Name      string
	Quantity  decimal.Decimal
	UnitPrice *decimal.Decimal
}

// OfferDetail is an offer header with its lines.
type OfferDetail struct {
	Offer repo.Offer
	Items []repo.OfferItem
}

// List returns stored offers newest first.
func (s *Service) List(ctx context.Context, offset, limit int) ([]repo.Offer, int64, error) {
	return s.offers.List(ctx, offset, limit)
}

// Get returns one offer with its lines.
func (s *Service) Get(ctx context.Context, id string) (OfferDetail, error) {
	offer, err := s.offers.Get(ctx, id)
	if err != nil {
		return OfferDetail{}, err
	}
	items, err := s.offers.Items(ctx, id)
	if err != nil {
		return OfferDetail{}, err
	}
	return OfferDetail{Offer: offer, Items: items}, nil
}

// Create stores a new offer with its lines and computed totals.
func (s *Service) Create(ctx context.Context, in OfferInput, lines []LineInput) (OfferDetail, error) {
	offer, err := s.buildHeader(ctx, in)
	if err != nil {
		return OfferDetail{}, err
	}
	items, err := s.buildItems(ctx, offer, lines)
	if err != nil {
		return OfferDetail{}, err
	}
	applyTotals(&offer, items)

	stored, err := s.offers.Insert(ctx, offer)
	if err != nil {
		return OfferDetail{}, err
	}
	if err := s.offers.ReplaceItems(ctx, stored.ID, items); err != nil {
		return OfferDetail{}, err
	}
	obs.CountOffer("create")
	return s.Get(ctx, stored.ID)
}

// Update rewrites the header and the full line set, recomputing totals.
func (s *Service) Update(ctx context.Context, id string, in OfferInput, lines []LineInput) (OfferDetail, error) {
	existing, err := s.offers.Get(ctx, id)
	if err != nil {
		return OfferDetail{}, err
	}
	offer, err := s.buildHeader(ctx, in)
	if err != nil {
		return OfferDetail{}, err
	}
	offer.ID = existing.ID
	if offer.OfferNo == "" {
		offer.OfferNo = existing.OfferNo
	}
	items, err := s.buildItems(ctx, offer, lines)
	if err != nil {
		return OfferDetail{}, err
	}
	applyTotals(&offer, items)

	if err := s.offers.Update(ctx, offer); err != nil {
		return OfferDetail{}, err
	}
	if err := s.offers.ReplaceItems(ctx, id, items); err != nil {
		return OfferDetail{}, err
	}
	return s.Get(ctx, id)
}

// Delete removes an offer and its lines.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.offers.Delete(ctx, id)
}

// Duplicate copies an offer, lines included, under a fresh number. Prices
// are copied as stored, not re-seeded.
func (s *Service) Duplicate(ctx context.Context, id string) (OfferDetail, error) {
	original, err := s.offers.Get(ctx, id)
	if err != nil {
		return OfferDetail{}, err
	}
	items, err := s.offers.Items(ctx, id)
	if err != nil {
		return OfferDetail{}, err
	}

	clone := original
	clone.ID = ""
	clone.OfferNo = s.nextOfferNo()
	stored, err := s.offers.Insert(ctx, clone)
	if err != nil {
		return OfferDetail{}, err
	}
	for i := range items {
		items[i].ID = 0
		items[i].OfferID = stored.ID
	}
	if err := s.offers.ReplaceItems(ctx, stored.ID, items); err != nil {
		return OfferDetail{}, err
	}
	obs.CountOffer("duplicate")
	return s.Get(ctx, stored.ID)
}

// Reorder rewrites the line order to match the given item id sequence.
// Every existing line must appear exactly once.
func (s *Service) Reorder(ctx context.Context, offerID string, itemIDs []int64) error {
	items, err := s.offers.Items(ctx, offerID)
	if err != nil {
		return err
	}
	if len(itemIDs) != len(items) {
		return common.NewAppError("VALIDATION_ERROR", "item order must list every line exactly once", http.StatusUnprocessableEntity, nil)
	}
	byID := make(map[int64]repo.OfferItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	ordered := make([]repo.OfferItem, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		item, ok := byID[itemID]
		if !ok {
			return common.NewAppError("VALIDATION_ERROR", fmt.Sprintf("unknown line item %d", itemID), http.StatusUnprocessableEntity, nil)
		}
		delete(byID, itemID)
		ordered = append(ordered, item)
	}
	return s.offers.ReplaceItems(ctx, offerID, ordered)
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) buildHeader(ctx context.Context, in OfferInput) (repo.Offer, error) {
	in.ClientName = strings.TrimSpace(in.ClientName)
	if in.ClientName == "" {
		return repo.Offer{}, common.NewAppError("VALIDATION_ERROR", "client name is required", http.StatusUnprocessableEntity, nil)
	}
	vat := s.defaultVAT(ctx)
	if in.VATPercent != nil {
		vat = *in.VATPercent
	}
	if in.DiscountPercent.Sign() < 0 || vat.Sign() < 0 {
		return repo.Offer{}, common.NewAppError("VALIDATION_ERROR", "discount and VAT percent must not be negative", http.StatusUnprocessableEntity, nil)
	}
	if in.ExchangeRate.Sign() < 0 {
		return repo.Offer{}, common.NewAppError("VALIDATION_ERROR", "exchange rate must not be negative", http.StatusUnprocessableEntity, nil)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "RSD"
	}
	offerNo := strings.TrimSpace(in.OfferNo)
	if offerNo == "" {
		offerNo = s.nextOfferNo()
	}
	return repo.Offer{
		OfferNo:           offerNo,
		ClientName:        in.ClientName,
		ClientAddress:     strings.TrimSpace(in.ClientAddress),
		ClientContact:     strings.TrimSpace(in.ClientContact),
		Currency:          currency,
		ExchangeRate:      in.ExchangeRate,
		DiscountPercent:   in.DiscountPercent,
		VATPercent:        vat,
		UseDiscountPrices: in.UseDiscountPrices,
		Terms:             in.Terms,
	}, nil
}

func (s *Service) buildItems(ctx context.Context, offer repo.Offer, lines []LineInput) ([]repo.OfferItem, error) {
	items := make([]repo.OfferItem, 0, len(lines))
	for i, line := range lines {
		line.Name = strings.TrimSpace(line.Name)
		if line.Quantity.Sign() <= 0 {
			return nil, lineError(i, "quantity must be positive")
		}

		item := repo.OfferItem{
			ProductID: line.ProductID,
			LineOrder: i,
			Name:      line.Name,
			Quantity:  line.Quantity,
		}
		switch {
		case line.UnitPrice != nil:
			if line.UnitPrice.Sign() < 0 {
				return nil, lineError(i, "unit price must not be negative")
			}
			item.UnitPrice = *line.UnitPrice
		case line.ProductID != nil:
			price, err := s.seedPrice(ctx, *line.ProductID, offer.UseDiscountPrices)
			if err != nil {
				return nil, err
			}
			item.UnitPrice = price
		default:
			return nil, lineError(i, "free-text lines need a unit price")
		}
		if item.Name == "" {
			if line.ProductID == nil {
				return nil, lineError(i, "line name is required")
			}
			product, err := s.products.GetProduct(ctx, *line.ProductID)
			if err != nil {
				return nil, err
			}
			item.Name = product.Name
		}
		item.LineNet = item.Quantity.Mul(item.UnitPrice)
		items = append(items, item)
	}
	return items, nil
}

// seedPrice picks the unit price from the product's latest snapshot: the
// discount price when the offer asks for it and one exists, the final
// price otherwise.
func (s *Service) seedPrice(ctx context.Context, productID string, useDiscount bool) (decimal.Decimal, error) {
	latest, ok, err := s.prices.Latest(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, common.NewAppError("VALIDATION_ERROR", "product has no price history", http.StatusUnprocessableEntity, nil)
	}
	if useDiscount && latest.Computed.DiscountPrice != nil {
		return *latest.Computed.DiscountPrice, nil
	}
	return latest.Computed.FinalPrice, nil
}

// applyTotals recomputes the stored totals from the line set:
// net = sum of line nets, discount = net * discount%, VAT applies after
// the discount, gross = after-discount + VAT.
func applyTotals(offer *repo.Offer, items []repo.OfferItem) {
	net := decimal.Zero
	for _, item := range items {
		net = net.Add(item.LineNet)
	}
	discount := net.Mul(offer.DiscountPercent)
	afterDiscount := net.Sub(discount)
	vat := afterDiscount.Mul(offer.VATPercent)

	offer.TotalNet = net
	offer.TotalDiscount = discount
	offer.TotalAfterDiscount = afterDiscount
	offer.TotalVAT = vat
	offer.TotalGross = afterDiscount.Add(vat)
}

// defaultVAT is the admin-configured VAT fraction for offers that do not
// set one.
func (s *Service) defaultVAT(ctx context.Context) decimal.Decimal {
	if s.settings != nil {
		if v, err := s.settings.Load(ctx); err == nil {
			return v.DefaultVATPercent
		}
	}
	return settings.Defaults().DefaultVATPercent
}

// DefaultPageSize is the admin-configured listing page size.
func (s *Service) DefaultPageSize(ctx context.Context) int {
	if s.settings != nil {
		if v, err := s.settings.Load(ctx); err == nil && v.DefaultItemsPerPage > 0 {
			return v.DefaultItemsPerPage
		}
	}
	return settings.Defaults().DefaultItemsPerPage
}

func (s *Service) nextOfferNo() string {
	return "PON-" + s.now().Format("20060102-150405")
}

func lineError(index int, message string) *common.AppError {
	return common.NewAppError("VALIDATION_ERROR", fmt.Sprintf("line %d: %s", index+1, message), http.StatusUnprocessableEntity, nil)
}
