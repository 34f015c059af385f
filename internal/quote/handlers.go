package quote

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/repo"
)

var hundred = decimal.NewFromInt(100)

// Handler exposes the offer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// offerRequest carries the header with percentages in UI form (20 means
// 20%); they become fractions at this boundary.
type offerRequest struct {
	OfferNo           string          `json:"offer_no"`
	ClientName        string          `json:"client_name"`
	ClientAddress     string          `json:"client_address"`
	ClientContact     string          `json:"client_contact"`
	Currency          string          `json:"currency"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate"`
	DiscountPercent   decimal.Decimal  `json:"discount_percent"`
	VATPercent        *decimal.Decimal `json:"vat_percent"`
	UseDiscountPrices bool             `json:"use_discount_prices"`
	Terms             string           `json:"terms"`
	Items             []lineRequest    `json:"items"`
}

type lineRequest struct {
	ProductID *string          `json:"product_id"`
	Name      string           `json:"name"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type reorderRequest struct {
	ItemIDs []int64 `json:"item_ids"`
}

type offerResponse struct {
	ID                string          `json:"id"`
	OfferNo           string          `json:"offer_no"`
	ClientName        string          `json:"client_name"`
	ClientAddress     string          `json:"client_address"`
	ClientContact     string          `json:"client_contact"`
	Currency          string          `json:"currency"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate"`
	DiscountPercent   decimal.Decimal `json:"discount_percent"`
	VATPercent        decimal.Decimal `json:"vat_percent"`
	UseDiscountPrices bool            `json:"use_discount_prices"`
	Terms             string          `json:"terms"`

	TotalNet           decimal.Decimal `json:"total_net"`
	TotalDiscount      decimal.Decimal `json:"total_discount"`
	TotalAfterDiscount decimal.Decimal `json:"total_after_discount"`
	TotalVAT           decimal.Decimal `json:"total_vat"`
	TotalGross         decimal.Decimal `json:"total_gross"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []lineResponse `json:"items,omitempty"`
}

type lineResponse struct {
	ID        int64           `json:"id"`
	ProductID *string         `json:"product_id,omitempty"`
	LineOrder int             `json:"line_order"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineNet   decimal.Decimal `json:"line_net"`
}

// List handles GET /api/v1/offers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := common.ParsePagination(r, h.service.DefaultPageSize(r.Context()))
	if limit > 200 {
		limit = 200
	}
	offers, total, err := h.service.List(r.Context(), (page-1)*limit, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]offerResponse, 0, len(offers))
	for _, offer := range offers {
		out = append(out, toOfferResponse(offer, nil))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       out,
		"pagination": common.Pagination{Page: page, PerPage: limit, TotalItems: int(total)},
	})
}

// Get handles GET /api/v1/offers/{offerID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "offerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toOfferResponse(detail.Offer, detail.Items)})
}

// Create handles POST /api/v1/offers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	detail, err := h.service.Create(r.Context(), toOfferInput(req), toLineInputs(req.Items))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toOfferResponse(detail.Offer, detail.Items)})
}

// Update handles PUT /api/v1/offers/{offerID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	detail, err := h.service.Update(r.Context(), chi.URLParam(r, "offerID"), toOfferInput(req), toLineInputs(req.Items))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toOfferResponse(detail.Offer, detail.Items)})
}

// Delete handles DELETE /api/v1/offers/{offerID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "offerID")); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

// Duplicate handles POST /api/v1/offers/{offerID}/duplicate.
func (h *Handler) Duplicate(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Duplicate(r.Context(), chi.URLParam(r, "offerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toOfferResponse(detail.Offer, detail.Items)})
}

// Reorder handles PUT /api/v1/offers/{offerID}/reorder.
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	if err := h.service.Reorder(r.Context(), chi.URLParam(r, "offerID"), req.ItemIDs); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"reordered": true}})
}

// ExportCSV handles GET /api/v1/offers/{offerID}/export with the lines
// and totals in spreadsheet form.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "offerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="ponuda-`+detail.Offer.OfferNo+`.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"line", "name", "quantity", "unit_price", "line_net"})
	for i, item := range detail.Items {
		_ = cw.Write([]string{
			strconv.Itoa(i + 1),
			item.Name,
			item.Quantity.String(),
			item.UnitPrice.StringFixed(2),
			item.LineNet.StringFixed(2),
		})
	}
	_ = cw.Write([]string{"", "total_net", "", "", detail.Offer.TotalNet.StringFixed(2)})
	_ = cw.Write([]string{"", "total_discount", "", "", detail.Offer.TotalDiscount.StringFixed(2)})
	_ = cw.Write([]string{"", "total_after_discount", "", "", detail.Offer.TotalAfterDiscount.StringFixed(2)})
	_ = cw.Write([]string{"", "total_vat", "", "", detail.Offer.TotalVAT.StringFixed(2)})
	_ = cw.Write([]string{"", "total_gross", "", "", detail.Offer.TotalGross.StringFixed(2)})
	cw.Flush()
}

func toOfferInput(req offerRequest) OfferInput {
	in := OfferInput{
		OfferNo:           req.OfferNo,
		ClientName:        req.ClientName,
		ClientAddress:     req.ClientAddress,
		ClientContact:     req.ClientContact,
		Currency:          req.Currency,
		ExchangeRate:      req.ExchangeRate,
		DiscountPercent:   req.DiscountPercent.Div(hundred),
		UseDiscountPrices: req.UseDiscountPrices,
		Terms:             req.Terms,
	}
	if req.VATPercent != nil {
		vat := req.VATPercent.Div(hundred)
		in.VATPercent = &vat
	}
	return in
}

func toLineInputs(lines []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return out
}

func toOfferResponse(offer repo.Offer, items []repo.OfferItem) offerResponse {
	resp := offerResponse{
		ID:                 offer.ID,
		OfferNo:            offer.OfferNo,
		ClientName:         offer.ClientName,
		ClientAddress:      offer.ClientAddress,
		ClientContact:      offer.ClientContact,
		Currency:           offer.Currency,
		ExchangeRate:       offer.ExchangeRate,
		DiscountPercent:    offer.DiscountPercent.Mul(hundred),
		VATPercent:         offer.VATPercent.Mul(hundred),
		UseDiscountPrices:  offer.UseDiscountPrices,
		Terms:              offer.Terms,
		TotalNet:           offer.TotalNet,
		TotalDiscount:      offer.TotalDiscount,
		TotalAfterDiscount: offer.TotalAfterDiscount,
		TotalVAT:           offer.TotalVAT,
		TotalGross:         offer.TotalGross,
		CreatedAt:          offer.CreatedAt,
		UpdatedAt:          offer.UpdatedAt,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, lineResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			LineOrder: item.LineOrder,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineNet:   item.LineNet,
		})
	}
	return resp
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := appErr.Code
		if code == "" {
			code = "INTERNAL"
		}
		message := appErr.Message
		if message == "" {
			message = "internal error"
		}
		common.JSONError(w, status, code, message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
