package quote_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/pricing"
	"github.com/mveljko/backend-cenik/internal/quote"
	"github.com/mveljko/backend-cenik/internal/repo"
	"github.com/mveljko/backend-cenik/internal/settings"
)

type fakeOffers struct {
	offers map[string]repo.Offer
	items  map[string][]repo.OfferItem
	nextID int64
}

func newFakeOffers() *fakeOffers {
	return &fakeOffers{
		offers: make(map[string]repo.Offer),
		items:  make(map[string][]repo.OfferItem),
	}
}

func (f *fakeOffers) List(context.Context, int, int) ([]repo.Offer, int64, error) {
	out := make([]repo.Offer, 0, len(f.offers))
	for _, offer := range f.offers {
		out = append(out, offer)
	}
	return out, int64(len(out)), nil
}

func (f *fakeOffers) Get(_ context.Context, id string) (repo.Offer, error) {
	offer, ok := f.offers[id]
	if !ok {
		return repo.Offer{}, common.NewAppError("NOT_FOUND", "offer not found", http.StatusNotFound, nil)
	}
	return offer, nil
}

func (f *fakeOffers) Insert(_ context.Context, offer repo.Offer) (repo.Offer, error) {
	for _, existing := range f.offers {
		if existing.OfferNo == offer.OfferNo {
			return repo.Offer{}, common.NewAppError("CONFLICT", "an offer with this number already exists", http.StatusConflict, nil)
		}
	}
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	f.offers[offer.ID] = offer
	return offer, nil
}

func (f *fakeOffers) Update(_ context.Context, offer repo.Offer) error {
	if _, ok := f.offers[offer.ID]; !ok {
		return common.NewAppError("NOT_FOUND", "offer not found", http.StatusNotFound, nil)
	}
	f.offers[offer.ID] = offer
	return nil
}

func (f *fakeOffers) Delete(_ context.Context, id string) error {
	if _, ok := f.offers[id]; !ok {
		return common.NewAppError("NOT_FOUND", "offer not found", http.StatusNotFound, nil)
	}
	delete(f.offers, id)
	delete(f.items, id)
	return nil
}

func (f *fakeOffers) Items(_ context.Context, offerID string) ([]repo.OfferItem, error) {
	return f.items[offerID], nil
}

func (f *fakeOffers) ReplaceItems(_ context.Context, offerID string, items []repo.OfferItem) error {
	stored := make([]repo.OfferItem, len(items))
	for i, item := range items {
		f.nextID++
		item.ID = f.nextID
		item.OfferID = offerID
		item.LineOrder = i
		stored[i] = item
	}
	f.items[offerID] = stored
	return nil
}

type fakePrices struct {
	latest map[string]repo.SnapshotRow
}

func (f *fakePrices) Latest(_ context.Context, productID string) (repo.SnapshotRow, bool, error) {
	row, ok := f.latest[productID]
	return row, ok, nil
}

type fakeProducts struct {
	names map[string]string
}

func (f *fakeProducts) GetProduct(_ context.Context, id string) (repo.Product, error) {
	name, ok := f.names[id]
	if !ok {
		return repo.Product{}, common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, nil)
	}
	return repo.Product{ID: id, Name: name}, nil
}

type fakeSettings map[string]string

func (f fakeSettings) Settings(context.Context) (map[string]string, error) {
	return f, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

const compressorID = "7b2f8a61-90c4-4c6c-9a51-2f86f2a9e90a"

func newTestService(t *testing.T) (*quote.Service, *fakeOffers) {
	return newTestServiceWith(t, nil)
}

func newTestServiceWith(t *testing.T, loader *settings.Loader) (*quote.Service, *fakeOffers) {
	t.Helper()
	discount := dec("1400")
	offers := newFakeOffers()
	svc, err := quote.NewService(quote.ServiceConfig{
		Offers:   offers,
		Settings: loader,
		Prices: &fakePrices{latest: map[string]repo.SnapshotRow{
			compressorID: {
				ID:        1,
				ProductID: compressorID,
				Computed: pricing.Snapshot{
					FinalPrice:    dec("1600"),
					DiscountPrice: &discount,
				},
			},
		}},
		Products: &fakeProducts{names: map[string]string{compressorID: "Kompresor 50L"}},
	})
	require.NoError(t, err)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) })
	return svc, offers
}

func TestCreateSeedsPricesAndComputesTotals(t *testing.T) {
	svc, _ := newTestService(t)
	pid := compressorID

	detail, err := svc.Create(context.Background(), quote.OfferInput{
		ClientName:      "Gradnja doo",
		Currency:        "rsd",
		DiscountPercent: dec("0.1"),
		VATPercent:      ptr(dec("0.2")),
	}, []quote.LineInput{
		{ProductID: &pid, Quantity: dec("2")},
		{Name: "Montaža", Quantity: dec("1"), UnitPrice: ptr(dec("800"))},
	})
	require.NoError(t, err)

	require.Len(t, detail.Items, 2)
	require.Equal(t, "Kompresor 50L", detail.Items[0].Name, "seeded name comes from the catalog")
	require.True(t, detail.Items[0].UnitPrice.Equal(dec("1600")), "seeded from latest final price")
	require.True(t, detail.Items[0].LineNet.Equal(dec("3200")))

	// net 4000, 10% discount 400, VAT 20% on 3600 = 720, gross 4320
	offer := detail.Offer
	require.Equal(t, "RSD", offer.Currency)
	require.True(t, offer.TotalNet.Equal(dec("4000")))
	require.True(t, offer.TotalDiscount.Equal(dec("400")))
	require.True(t, offer.TotalAfterDiscount.Equal(dec("3600")))
	require.True(t, offer.TotalVAT.Equal(dec("720")))
	require.True(t, offer.TotalGross.Equal(dec("4320")))
	require.NotEmpty(t, offer.OfferNo)
}

func TestCreateSeedsDiscountPriceWhenRequested(t *testing.T) {
	svc, _ := newTestService(t)
	pid := compressorID

	detail, err := svc.Create(context.Background(), quote.OfferInput{
		ClientName:        "Gradnja doo",
		UseDiscountPrices: true,
	}, []quote.LineInput{{ProductID: &pid, Quantity: dec("1")}})
	require.NoError(t, err)
	require.True(t, detail.Items[0].UnitPrice.Equal(dec("1400")))
}

func TestCreateDefaultsVATFromSettings(t *testing.T) {
	loader := settings.NewLoader(fakeSettings{"default_vat": "10"})
	svc, _ := newTestServiceWith(t, loader)

	detail, err := svc.Create(context.Background(), quote.OfferInput{ClientName: "Gradnja doo"},
		[]quote.LineInput{{Name: "Usluga", Quantity: dec("1"), UnitPrice: ptr(dec("1000"))}})
	require.NoError(t, err)
	require.True(t, detail.Offer.VATPercent.Equal(dec("0.1")),
		"nil VAT takes the configured default, got %s", detail.Offer.VATPercent)
	require.True(t, detail.Offer.TotalVAT.Equal(dec("100")))
	require.True(t, detail.Offer.TotalGross.Equal(dec("1100")))

	// An explicit zero is a choice, not an omission.
	zero := decimal.Zero
	detail, err = svc.Create(context.Background(), quote.OfferInput{
		ClientName: "Gradnja doo",
		VATPercent: &zero,
	}, []quote.LineInput{{Name: "Usluga", Quantity: dec("1"), UnitPrice: ptr(dec("1000"))}})
	require.NoError(t, err)
	require.True(t, detail.Offer.TotalVAT.IsZero())
	require.True(t, detail.Offer.TotalGross.Equal(dec("1000")))
}

func TestCreateRejectsFreeTextLineWithoutPrice(t *testing.T) {
	svc, offers := newTestService(t)

	_, err := svc.Create(context.Background(), quote.OfferInput{ClientName: "Gradnja doo"},
		[]quote.LineInput{{Name: "Montaža", Quantity: dec("1")}})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	require.Empty(t, offers.offers, "nothing persisted on validation failure")
}

func TestCreateRejectsProductWithoutHistory(t *testing.T) {
	svc, _ := newTestService(t)
	unknown := uuid.NewString()

	_, err := svc.Create(context.Background(), quote.OfferInput{ClientName: "Gradnja doo"},
		[]quote.LineInput{{ProductID: &unknown, Quantity: dec("1")}})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
}

func TestUpdateRecomputesTotals(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(context.Background(), quote.OfferInput{ClientName: "Gradnja doo"},
		[]quote.LineInput{{Name: "Usluga", Quantity: dec("1"), UnitPrice: ptr(dec("1000"))}})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.Offer.ID, quote.OfferInput{
		OfferNo:    created.Offer.OfferNo,
		ClientName: "Gradnja doo",
		VATPercent: ptr(dec("0.2")),
	}, []quote.LineInput{{Name: "Usluga", Quantity: dec("3"), UnitPrice: ptr(dec("1000"))}})
	require.NoError(t, err)
	require.True(t, updated.Offer.TotalNet.Equal(dec("3000")))
	require.True(t, updated.Offer.TotalGross.Equal(dec("3600")))
}

func TestDuplicateCopiesLinesUnderFreshNumber(t *testing.T) {
	svc, offers := newTestService(t)
	pid := compressorID

	original, err := svc.Create(context.Background(), quote.OfferInput{
		OfferNo:    "PON-001",
		ClientName: "Gradnja doo",
		VATPercent: ptr(dec("0.2")),
	}, []quote.LineInput{{ProductID: &pid, Quantity: dec("2")}})
	require.NoError(t, err)

	clone, err := svc.Duplicate(context.Background(), original.Offer.ID)
	require.NoError(t, err)
	require.NotEqual(t, original.Offer.ID, clone.Offer.ID)
	require.NotEqual(t, original.Offer.OfferNo, clone.Offer.OfferNo)
	require.Len(t, clone.Items, 1)
	require.True(t, clone.Offer.TotalGross.Equal(original.Offer.TotalGross))
	require.Len(t, offers.offers, 2)
}

func TestReorderRewritesLineOrder(t *testing.T) {
	svc, offers := newTestService(t)

	created, err := svc.Create(context.Background(), quote.OfferInput{ClientName: "Gradnja doo"},
		[]quote.LineInput{
			{Name: "Prva", Quantity: dec("1"), UnitPrice: ptr(dec("100"))},
			{Name: "Druga", Quantity: dec("1"), UnitPrice: ptr(dec("200"))},
		})
	require.NoError(t, err)
	items := created.Items
	require.Len(t, items, 2)

	require.NoError(t, svc.Reorder(context.Background(), created.Offer.ID, []int64{items[1].ID, items[0].ID}))
	reordered := offers.items[created.Offer.ID]
	require.Equal(t, "Druga", reordered[0].Name)
	require.Equal(t, "Prva", reordered[1].Name)

	err = svc.Reorder(context.Background(), created.Offer.ID, []int64{reordered[0].ID})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
}
