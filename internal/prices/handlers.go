package prices

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
	"github.com/mveljko/backend-cenik/internal/pricing"
	"github.com/mveljko/backend-cenik/internal/repo"
)

var hundred = decimal.NewFromInt(100)

// Handler exposes the price snapshot endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// snapshotRequest is the wire form of snapshot inputs. Percentages arrive as
// UI percent values (7 means 7%) and are converted to fractions here, at the
// boundary; the computation layer only ever sees fractions.
type snapshotRequest struct {
	EffectiveDate     string          `json:"effective_date"`
	BasePrice         decimal.Decimal `json:"base_price"`
	Extras            decimal.Decimal `json:"extras"`
	ImportPercent     decimal.Decimal `json:"import_percent"`
	MarginPercent     decimal.Decimal `json:"margin_percent"`
	WarrantyPercent   decimal.Decimal `json:"warranty_percent"`
	ServicePercent    decimal.Decimal `json:"service_percent"`
	DomesticTransport decimal.Decimal `json:"domestic_transport"`
	Installation      decimal.Decimal `json:"installation"`
	Training          decimal.Decimal `json:"training"`
	Other             decimal.Decimal `json:"other"`
	FinalPrice        decimal.Decimal `json:"final_price"`
	DiscountPercent   decimal.Decimal `json:"discount_percent"`
	DiscountPrice     decimal.Decimal `json:"discount_price"`
}

type quickUpdateRequest struct {
	EffectiveDate string           `json:"effective_date"`
	BasePrice     decimal.Decimal  `json:"base_price"`
	Extras        *decimal.Decimal `json:"extras"`
}

// snapshotResponse mirrors a stored snapshot, percentages back in UI form.
type snapshotResponse struct {
	ID                int64            `json:"id"`
	ProductID         string           `json:"product_id"`
	EffectiveDate     string           `json:"effective_date"`
	BasePrice         decimal.Decimal  `json:"base_price"`
	Extras            decimal.Decimal  `json:"extras"`
	ImportPercent     decimal.Decimal  `json:"import_percent"`
	MarginPercent     decimal.Decimal  `json:"margin_percent"`
	WarrantyPercent   decimal.Decimal  `json:"warranty_percent"`
	ServicePercent    decimal.Decimal  `json:"service_percent"`
	DomesticTransport decimal.Decimal  `json:"domestic_transport"`
	Installation      decimal.Decimal  `json:"installation"`
	Training          decimal.Decimal  `json:"training"`
	Other             decimal.Decimal  `json:"other"`
	BaseTotal         decimal.Decimal  `json:"base_total"`
	CostTotal         decimal.Decimal  `json:"cost_total"`
	CalculatedPrice   decimal.Decimal  `json:"calculated_price"`
	FinalPrice        decimal.Decimal  `json:"final_price"`
	ProfitFinal       decimal.Decimal  `json:"profit_final"`
	DiscountPercent   decimal.Decimal  `json:"discount_percent"`
	DiscountPrice     *decimal.Decimal `json:"discount_price,omitempty"`
	ProfitDiscount    *decimal.Decimal `json:"profit_discount,omitempty"`
}

// History handles GET /api/v1/products/{productID}/prices.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.History(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]snapshotResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toResponse(row))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Latest handles GET /api/v1/products/{productID}/prices/latest.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.Latest(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toResponse(row)})
}

// Create handles POST /api/v1/products/{productID}/prices.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	in, err := toInput(req)
	if err != nil {
		writeError(w, err)
		return
	}
	row, err := h.service.Create(r.Context(), chi.URLParam(r, "productID"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toResponse(row)})
}

// QuickUpdate handles POST /api/v1/products/{productID}/prices/quick.
func (h *Handler) QuickUpdate(w http.ResponseWriter, r *http.Request) {
	var req quickUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	date, err := parseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, err)
		return
	}
	row, err := h.service.QuickUpdate(r.Context(), chi.URLParam(r, "productID"), QuickUpdateInput{
		EffectiveDate: date,
		BasePrice:     req.BasePrice,
		Extras:        req.Extras,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toResponse(row)})
}

// Edit handles PUT /api/v1/prices/{snapshotID}.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	id, err := snapshotID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	in, err := toInput(req)
	if err != nil {
		writeError(w, err)
		return
	}
	row, err := h.service.Edit(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toResponse(row)})
}

// Delete handles DELETE /api/v1/prices/{snapshotID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := snapshotID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

// ExportCSV handles GET /api/v1/prices/export and streams the current price
// list as CSV.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.PriceList(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cenovnik.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"product", "category", "brand", "date", "base_price", "cost_total", "final_price", "discount_price"})
	for _, entry := range entries {
		snap := entry.Snapshot
		discount := ""
		if snap.Computed.DiscountPrice != nil {
			discount = snap.Computed.DiscountPrice.StringFixed(2)
		}
		_ = cw.Write([]string{
			entry.ProductName,
			entry.CategoryName,
			entry.BrandName,
			snap.EffectiveDate.Format("2006-01-02"),
			snap.BasePrice.StringFixed(2),
			snap.Computed.CostTotal.StringFixed(2),
			snap.Computed.FinalPrice.StringFixed(2),
			discount,
		})
	}
	cw.Flush()
}

func toInput(req snapshotRequest) (SnapshotInput, error) {
	date, err := parseDate(req.EffectiveDate)
	if err != nil {
		return SnapshotInput{}, err
	}
	return SnapshotInput{
		EffectiveDate: date,
		BasePrice:     req.BasePrice,
		Extras:        req.Extras,
		Coefficients: pricing.CoefficientSet{
			ImportPercent:     req.ImportPercent.Div(hundred),
			MarginPercent:     req.MarginPercent.Div(hundred),
			WarrantyPercent:   req.WarrantyPercent.Div(hundred),
			ServicePercent:    req.ServicePercent.Div(hundred),
			DomesticTransport: req.DomesticTransport,
			Installation:      req.Installation,
			Training:          req.Training,
			Other:             req.Other,
		},
		FinalPriceOverride:    req.FinalPrice,
		DiscountPercent:       req.DiscountPercent.Div(hundred),
		DiscountPriceOverride: req.DiscountPrice,
	}, nil
}

func toResponse(row repo.SnapshotRow) snapshotResponse {
	c := row.Coefficients
	snap := row.Computed
	return snapshotResponse{
		ID:                row.ID,
		ProductID:         row.ProductID,
		EffectiveDate:     row.EffectiveDate.Format("2006-01-02"),
		BasePrice:         row.BasePrice,
		Extras:            row.Extras,
		ImportPercent:     c.ImportPercent.Mul(hundred),
		MarginPercent:     c.MarginPercent.Mul(hundred),
		WarrantyPercent:   c.WarrantyPercent.Mul(hundred),
		ServicePercent:    c.ServicePercent.Mul(hundred),
		DomesticTransport: c.DomesticTransport,
		Installation:      c.Installation,
		Training:          c.Training,
		Other:             c.Other,
		BaseTotal:         snap.BaseTotal,
		CostTotal:         snap.CostTotal,
		CalculatedPrice:   snap.CalculatedPrice,
		FinalPrice:        snap.FinalPrice,
		ProfitFinal:       snap.ProfitFinal,
		DiscountPercent:   snap.DiscountPercent.Mul(hundred),
		DiscountPrice:     snap.DiscountPrice,
		ProfitDiscount:    snap.ProfitDiscount,
	}
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	date, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, common.NewAppError("VALIDATION_ERROR", "effective_date must be YYYY-MM-DD", http.StatusBadRequest, err)
	}
	return date, nil
}

func snapshotID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "snapshotID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewAppError("BAD_REQUEST", "invalid snapshot id", http.StatusBadRequest, err)
	}
	return id, nil
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
