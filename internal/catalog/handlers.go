package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/pricing"
	"github.com/mveljko/backend-cenik/internal/repo"
)

var hundred = decimal.NewFromInt(100)

// Handler exposes the catalog endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type brandRequest struct {
	Name string `json:"name"`
}

// categoryRequest carries category defaults with percentages in UI form
// (7 means 7%); they are converted to fractions at this boundary.
type categoryRequest struct {
	Name              string          `json:"name"`
	ImportPercent     decimal.Decimal `json:"import_percent"`
	MarginPercent     decimal.Decimal `json:"margin_percent"`
	WarrantyPercent   decimal.Decimal `json:"warranty_percent"`
	ServicePercent    decimal.Decimal `json:"service_percent"`
	DomesticTransport decimal.Decimal `json:"domestic_transport"`
	DefaultExtras     decimal.Decimal `json:"default_extras"`
	Installation      decimal.Decimal `json:"installation"`
	Training          decimal.Decimal `json:"training"`
	Other             decimal.Decimal `json:"other"`
}

type productRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PhotoRef    string  `json:"photo_ref"`
	CategoryID  *string `json:"category_id"`
	BrandID     *string `json:"brand_id"`
}

type categoryResponse struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	ImportPercent     decimal.Decimal `json:"import_percent"`
	MarginPercent     decimal.Decimal `json:"margin_percent"`
	WarrantyPercent   decimal.Decimal `json:"warranty_percent"`
	ServicePercent    decimal.Decimal `json:"service_percent"`
	DomesticTransport decimal.Decimal `json:"domestic_transport"`
	DefaultExtras     decimal.Decimal `json:"default_extras"`
	Installation      decimal.Decimal `json:"installation"`
	Training          decimal.Decimal `json:"training"`
	Other             decimal.Decimal `json:"other"`
}

type brandResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type productResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	PhotoRef     string  `json:"photo_ref"`
	CategoryID   *string `json:"category_id,omitempty"`
	CategoryName *string `json:"category_name,omitempty"`
	BrandID      *string `json:"brand_id,omitempty"`
	BrandName    *string `json:"brand_name,omitempty"`
}

// Brands handles GET /api/v1/brands.
func (h *Handler) Brands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.service.ListBrands(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]brandResponse, 0, len(brands))
	for _, b := range brands {
		out = append(out, brandResponse{ID: b.ID, Name: b.Name})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// CreateBrand handles POST /api/v1/brands.
func (h *Handler) CreateBrand(w http.ResponseWriter, r *http.Request) {
	var req brandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	brand, err := h.service.CreateBrand(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": brandResponse{ID: brand.ID, Name: brand.Name}})
}

// RenameBrand handles PUT /api/v1/brands/{brandID}.
func (h *Handler) RenameBrand(w http.ResponseWriter, r *http.Request) {
	var req brandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	if err := h.service.RenameBrand(r.Context(), chi.URLParam(r, "brandID"), req.Name); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"renamed": true}})
}

// DeleteBrand handles DELETE /api/v1/brands/{brandID}.
func (h *Handler) DeleteBrand(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBrand(r.Context(), chi.URLParam(r, "brandID")); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

// Categories handles GET /api/v1/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, toCategoryResponse(c))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// CreateCategory handles POST /api/v1/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, "")
}

// UpdateCategory handles PUT /api/v1/categories/{categoryID}; renames reach
// every referencing product atomically.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, chi.URLParam(r, "categoryID"))
}

func (h *Handler) saveCategory(w http.ResponseWriter, r *http.Request, id string) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	cat, err := h.service.SaveCategory(r.Context(), id, CategoryInput{
		Name:          req.Name,
		DefaultExtras: req.DefaultExtras,
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
	})
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	common.JSON(w, status, map[string]any{"data": toCategoryResponse(cat)})
}

// DeleteCategory handles DELETE /api/v1/categories/{categoryID}.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCategory(r.Context(), chi.URLParam(r, "categoryID")); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

// Products handles GET /api/v1/products with filters and pagination.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	params, err := h.service.ParseListParams(r.Context(), r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	products, total, err := h.service.ListProducts(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       out,
		"pagination": common.Pagination{Page: params.Page, PerPage: params.Limit, TotalItems: int(total)},
	})
}

// Product handles GET /api/v1/products/{productID}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toProductResponse(product)})
}

// CreateProduct handles POST /api/v1/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), toProductInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toProductResponse(product)})
}

// UpdateProduct handles PUT /api/v1/products/{productID}.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "productID"), toProductInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toProductResponse(product)})
}

// DeleteProduct handles DELETE /api/v1/products/{productID}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

func toProductInput(req productRequest) ProductInput {
	return ProductInput{
		Name:        req.Name,
		Description: req.Description,
		PhotoRef:    req.PhotoRef,
		CategoryID:  req.CategoryID,
		BrandID:     req.BrandID,
	}
}

func toProductResponse(p repo.Product) productResponse {
	return productResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		PhotoRef:     p.PhotoRef,
		CategoryID:   p.CategoryID,
		CategoryName: p.CategoryName,
		BrandID:      p.BrandID,
		BrandName:    p.BrandName,
	}
}

func toCategoryResponse(c repo.Category) categoryResponse {
	return categoryResponse{
		ID:                c.ID,
		Name:              c.Name,
		ImportPercent:     c.Coefficients.ImportPercent.Mul(hundred),
		MarginPercent:     c.Coefficients.MarginPercent.Mul(hundred),
		WarrantyPercent:   c.Coefficients.WarrantyPercent.Mul(hundred),
		ServicePercent:    c.Coefficients.ServicePercent.Mul(hundred),
		DomesticTransport: c.Coefficients.DomesticTransport,
		DefaultExtras:     c.DefaultExtras,
		Installation:      c.Coefficients.Installation,
		Training:          c.Coefficients.Training,
		Other:             c.Coefficients.Other,
	}
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
