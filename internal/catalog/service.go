// Package catalog manages products, brands, and categories. Categories
// carry the default cost coefficients consumed by the pricing flows.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/pricing"
	"github.com/mveljko/backend-cenik/internal/repo"
	"github.com/mveljko/backend-cenik/internal/settings"
)

type catalogStore interface {
	ListBrands(ctx context.Context) ([]repo.Brand, error)
	CreateBrand(ctx context.Context, name string) (repo.Brand, error)
	RenameBrand(ctx context.Context, id, name string) error
	DeleteBrand(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]repo.Category, error)
	GetCategory(ctx context.Context, id string) (repo.Category, error)
	UpsertCategory(ctx context.Context, cat repo.Category) (repo.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	ListProducts(ctx context.Context, f repo.ProductFilter) ([]repo.Product, int64, error)
	GetProduct(ctx context.Context, id string) (repo.Product, error)
	ProductNameExists(ctx context.Context, name, excludeID string) (bool, error)
	CreateProduct(ctx context.Context, p repo.Product) (repo.Product, error)
	UpdateProduct(ctx context.Context, p repo.Product) (repo.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// Service orchestrates catalog queries and caching.
type Service struct {
	store        catalogStore
	cache        *Cache
	settings     *settings.Loader
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store catalogStore
	Cache *Cache
	// Settings supplies the admin-managed listing page size and the
	// duplicate-name policy; optional.
	Settings     *settings.Loader
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for product listing.
type ListParams struct {
	Search   string
	Category string
	Brand    string
	Page     int
	Limit    int
}

// CategoryInput carries a category write; percentages are fractions (the
// handler converts UI percent values before calling the service).
type CategoryInput struct {
	Name          string
	DefaultExtras decimal.Decimal
	Coefficients  pricing.CoefficientSet
}

// ProductInput carries a product write.
type ProductInput struct {
	Name        string
	Description string
	PhotoRef    string
	CategoryID  *string
	BrandID     *string
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 50
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 200
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		store:        cfg.Store,
		cache:        cfg.Cache,
		settings:     cfg.Settings,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
// When the request names no limit, the admin-configured page size applies.
func (s *Service) ParseListParams(ctx context.Context, values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.pageSize(ctx)}
	params.Search = strings.TrimSpace(values.Get("q"))
	params.Category = strings.TrimSpace(values.Get("category"))
	params.Brand = strings.TrimSpace(values.Get("brand"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = limit
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}
	return params, nil
}

func (s *Service) pageSize(ctx context.Context) int {
	limit := s.defaultLimit
	if s.settings != nil {
		if v, err := s.settings.Load(ctx); err == nil && v.DefaultItemsPerPage > 0 {
			limit = v.DefaultItemsPerPage
		}
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return limit
}

// ListBrands returns all brands, served from cache when possible.
func (s *Service) ListBrands(ctx context.Context) ([]repo.Brand, error) {
	var cached []repo.Brand
	if ok, err := s.cache.GetJSON(ctx, brandsCacheKey, &cached); err == nil && ok {
		return cached, nil
	}
	brands, err := s.store.ListBrands(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetJSON(ctx, brandsCacheKey, brands)
	return brands, nil
}

// CreateBrand adds a brand.
func (s *Service) CreateBrand(ctx context.Context, name string) (repo.Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return repo.Brand{}, badRequest("name", "brand name is required", nil)
	}
	brand, err := s.store.CreateBrand(ctx, name)
	if err != nil {
		return repo.Brand{}, err
	}
	s.cache.Invalidate(ctx, brandsCacheKey)
	return brand, nil
}

// RenameBrand renames a brand; products pick up the new name through the
// id reference, in one statement.
func (s *Service) RenameBrand(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return badRequest("name", "brand name is required", nil)
	}
	if err := s.store.RenameBrand(ctx, id, name); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, brandsCacheKey)
	return nil
}

// DeleteBrand removes a brand unless products still reference it.
func (s *Service) DeleteBrand(ctx context.Context, id string) error {
	if err := s.store.DeleteBrand(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, brandsCacheKey)
	return nil
}

// ListCategories returns all categories with their pricing defaults.
func (s *Service) ListCategories(ctx context.Context) ([]repo.Category, error) {
	var cached []repo.Category
	if ok, err := s.cache.GetJSON(ctx, categoriesCacheKey, &cached); err == nil && ok {
		return cached, nil
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetJSON(ctx, categoriesCacheKey, categories)
	return categories, nil
}

// GetCategory fetches one category.
func (s *Service) GetCategory(ctx context.Context, id string) (repo.Category, error) {
	return s.store.GetCategory(ctx, id)
}

// SaveCategory creates or updates a category. Coefficients must be
// non-negative; negative values are rejected here so malformed defaults
// never reach the computation layer.
func (s *Service) SaveCategory(ctx context.Context, id string, in CategoryInput) (repo.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return repo.Category{}, badRequest("name", "category name is required", nil)
	}
	if err := validateCoefficients(in.Coefficients, in.DefaultExtras); err != nil {
		return repo.Category{}, err
	}
	cat, err := s.store.UpsertCategory(ctx, repo.Category{
		ID:            id,
		Name:          in.Name,
		DefaultExtras: in.DefaultExtras,
		Coefficients:  in.Coefficients,
	})
	if err != nil {
		return repo.Category{}, err
	}
	s.cache.Invalidate(ctx, categoriesCacheKey)
	return cat, nil
}

// DeleteCategory removes a category unless products still reference it.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, categoriesCacheKey)
	return nil
}

// ListProducts returns a filtered product page plus total count.
func (s *Service) ListProducts(ctx context.Context, params ListParams) ([]repo.Product, int64, error) {
	offset := (params.Page - 1) * params.Limit
	if offset < 0 {
		offset = 0
	}
	return s.store.ListProducts(ctx, repo.ProductFilter{
		Search:     params.Search,
		CategoryID: params.Category,
		BrandID:    params.Brand,
		Offset:     offset,
		Limit:      params.Limit,
	})
}

// GetProduct fetches one product with category and brand names resolved.
func (s *Service) GetProduct(ctx context.Context, id string) (repo.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// CreateProduct adds a product.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (repo.Product, error) {
	if err := validateProduct(in); err != nil {
		return repo.Product{}, err
	}
	if err := s.checkProductName(ctx, strings.TrimSpace(in.Name), ""); err != nil {
		return repo.Product{}, err
	}
	return s.store.CreateProduct(ctx, repo.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		PhotoRef:    in.PhotoRef,
		CategoryID:  in.CategoryID,
		BrandID:     in.BrandID,
	})
}

// UpdateProduct rewrites a product's mutable fields.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (repo.Product, error) {
	if err := validateProduct(in); err != nil {
		return repo.Product{}, err
	}
	if err := s.checkProductName(ctx, strings.TrimSpace(in.Name), id); err != nil {
		return repo.Product{}, err
	}
	return s.store.UpdateProduct(ctx, repo.Product{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		PhotoRef:    in.PhotoRef,
		CategoryID:  in.CategoryID,
		BrandID:     in.BrandID,
	})
}

// DeleteProduct removes a product together with its price history.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.store.DeleteProduct(ctx, id)
}

// checkProductName enforces case-insensitive name uniqueness unless the
// allow_duplicate_names setting switches it off.
func (s *Service) checkProductName(ctx context.Context, name, excludeID string) error {
	if s.allowDuplicateNames(ctx) {
		return nil
	}
	exists, err := s.store.ProductNameExists(ctx, name, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return common.NewAppError("CONFLICT", "a product with this name already exists", http.StatusConflict, nil)
	}
	return nil
}

func (s *Service) allowDuplicateNames(ctx context.Context) bool {
	if s.settings == nil {
		return false
	}
	v, err := s.settings.Load(ctx)
	return err == nil && v.AllowDuplicateNames
}

func validateProduct(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return badRequest("name", "product name is required", nil)
	}
	return nil
}

func validateCoefficients(c pricing.CoefficientSet, extras decimal.Decimal) error {
	fields := map[string]decimal.Decimal{
		"import_percent":     c.ImportPercent,
		"margin_percent":     c.MarginPercent,
		"warranty_percent":   c.WarrantyPercent,
		"service_percent":    c.ServicePercent,
		"domestic_transport": c.DomesticTransport,
		"installation":       c.Installation,
		"training":           c.Training,
		"other":              c.Other,
		"default_extras":     extras,
	}
	for field, value := range fields {
		if value.Sign() < 0 {
			return badRequest(field, fmt.Sprintf("%s must not be negative", field), nil)
		}
	}
	return nil
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
