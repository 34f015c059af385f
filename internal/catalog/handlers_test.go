package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mveljko/backend-cenik/internal/catalog"
	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/pricing"
	"github.com/mveljko/backend-cenik/internal/repo"
	"github.com/mveljko/backend-cenik/internal/settings"
)

type fakeStore struct {
	brands     []repo.Brand
	categories []repo.Category
	products   []repo.Product

	brandListCalls int
	lastFilter     repo.ProductFilter
}

func (f *fakeStore) ListBrands(context.Context) ([]repo.Brand, error) {
	f.brandListCalls++
	return f.brands, nil
}

func (f *fakeStore) CreateBrand(_ context.Context, name string) (repo.Brand, error) {
	for _, b := range f.brands {
		if strings.EqualFold(b.Name, name) {
			return repo.Brand{}, common.NewAppError("CONFLICT", "a brand with this name already exists", http.StatusConflict, nil)
		}
	}
	brand := repo.Brand{ID: uuid.NewString(), Name: name}
	f.brands = append(f.brands, brand)
	return brand, nil
}

func (f *fakeStore) RenameBrand(_ context.Context, id, name string) error {
	for i := range f.brands {
		if f.brands[i].ID == id {
			f.brands[i].Name = name
			return nil
		}
	}
	return common.NewAppError("NOT_FOUND", "brand not found", http.StatusNotFound, nil)
}

func (f *fakeStore) DeleteBrand(_ context.Context, id string) error {
	for _, p := range f.products {
		if p.BrandID != nil && *p.BrandID == id {
			return common.NewAppError("CONFLICT", "still referenced by other records", http.StatusConflict, nil)
		}
	}
	for i := range f.brands {
		if f.brands[i].ID == id {
			f.brands = append(f.brands[:i], f.brands[i+1:]...)
			return nil
		}
	}
	return common.NewAppError("NOT_FOUND", "brand not found", http.StatusNotFound, nil)
}

func (f *fakeStore) ListCategories(context.Context) ([]repo.Category, error) {
	return f.categories, nil
}

func (f *fakeStore) GetCategory(_ context.Context, id string) (repo.Category, error) {
	for _, c := range f.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return repo.Category{}, common.NewAppError("NOT_FOUND", "category not found", http.StatusNotFound, nil)
}

func (f *fakeStore) UpsertCategory(_ context.Context, cat repo.Category) (repo.Category, error) {
	for i := range f.categories {
		if f.categories[i].ID == cat.ID {
			f.categories[i] = cat
			return cat, nil
		}
	}
	f.categories = append(f.categories, cat)
	return cat, nil
}

func (f *fakeStore) DeleteCategory(_ context.Context, id string) error {
	for _, p := range f.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			return common.NewAppError("CONFLICT", "still referenced by other records", http.StatusConflict, nil)
		}
	}
	for i := range f.categories {
		if f.categories[i].ID == id {
			f.categories = append(f.categories[:i], f.categories[i+1:]...)
			return nil
		}
	}
	return common.NewAppError("NOT_FOUND", "category not found", http.StatusNotFound, nil)
}

func (f *fakeStore) ListProducts(_ context.Context, filter repo.ProductFilter) ([]repo.Product, int64, error) {
	f.lastFilter = filter
	var out []repo.Product
	for _, p := range f.products {
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) GetProduct(_ context.Context, id string) (repo.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return repo.Product{}, common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, nil)
}

func (f *fakeStore) ProductNameExists(_ context.Context, name, excludeID string) (bool, error) {
	for _, p := range f.products {
		if p.ID != excludeID && strings.EqualFold(p.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateProduct(_ context.Context, p repo.Product) (repo.Product, error) {
	p.ID = uuid.NewString()
	f.products = append(f.products, p)
	return p, nil
}

func (f *fakeStore) UpdateProduct(_ context.Context, p repo.Product) (repo.Product, error) {
	for i := range f.products {
		if f.products[i].ID == p.ID {
			f.products[i] = p
			return p, nil
		}
	}
	return repo.Product{}, common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, nil)
}

func (f *fakeStore) DeleteProduct(_ context.Context, id string) error {
	for i := range f.products {
		if f.products[i].ID == id {
			f.products = append(f.products[:i], f.products[i+1:]...)
			return nil
		}
	}
	return common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, nil)
}

func newHandler(t *testing.T, store *fakeStore, cache *catalog.Cache) *catalog.Handler {
	return newHandlerWithSettings(t, store, cache, nil)
}

func newHandlerWithSettings(t *testing.T, store *fakeStore, cache *catalog.Cache, loader *settings.Loader) *catalog.Handler {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: store, Cache: cache, Settings: loader})
	require.NoError(t, err)
	return catalog.NewHandler(svc)
}

type fakeSettings map[string]string

func (f fakeSettings) Settings(context.Context) (map[string]string, error) {
	return f, nil
}

func TestBrandLifecycle(t *testing.T) {
	store := &fakeStore{}
	handler := newHandler(t, store, nil)

	rec := httptest.NewRecorder()
	handler.CreateBrand(rec, httptest.NewRequest(http.MethodPost, "/api/v1/brands",
		strings.NewReader(`{"name":"Metabo"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	handler.CreateBrand(rec, httptest.NewRequest(http.MethodPost, "/api/v1/brands",
		strings.NewReader(`{"name":"metabo"}`)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	handler.Brands(rec, httptest.NewRequest(http.MethodGet, "/api/v1/brands", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	require.Equal(t, "Metabo", list.Data[0].Name)
}

func TestCategoryPercentConversion(t *testing.T) {
	store := &fakeStore{}
	handler := newHandler(t, store, nil)

	body := `{"name":"Kompresori","import_percent":7,"margin_percent":40,"domestic_transport":50}`
	rec := httptest.NewRecorder()
	handler.CreateCategory(rec, httptest.NewRequest(http.MethodPost, "/api/v1/categories", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, store.categories, 1)
	stored := store.categories[0]
	require.True(t, stored.Coefficients.ImportPercent.Equal(decimal.RequireFromString("0.07")),
		"stored as fraction, got %s", stored.Coefficients.ImportPercent)
	require.True(t, stored.Coefficients.MarginPercent.Equal(decimal.RequireFromString("0.4")))

	// The response converts back to UI percent form.
	var resp struct {
		Data struct {
			ImportPercent decimal.Decimal `json:"import_percent"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Data.ImportPercent.Equal(decimal.NewFromInt(7)))
}

func TestCategoryRejectsNegativeDefaults(t *testing.T) {
	handler := newHandler(t, &fakeStore{}, nil)
	body := `{"name":"Kompresori","margin_percent":-10}`
	rec := httptest.NewRecorder()
	handler.CreateCategory(rec, httptest.NewRequest(http.MethodPost, "/api/v1/categories", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCategoryRefusedWhileReferenced(t *testing.T) {
	catID := uuid.NewString()
	store := &fakeStore{
		categories: []repo.Category{{ID: catID, Name: "Kompresori", Coefficients: pricing.CoefficientSet{}}},
		products:   []repo.Product{{ID: uuid.NewString(), Name: "Kompresor 50L", CategoryID: &catID}},
	}
	handler := newHandler(t, store, nil)

	router := chi.NewRouter()
	router.Delete("/api/v1/categories/{categoryID}", handler.DeleteCategory)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/categories/"+catID, nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestProductDuplicateNameRejectedByDefault(t *testing.T) {
	store := &fakeStore{}
	handler := newHandler(t, store, nil)

	rec := httptest.NewRecorder()
	handler.CreateProduct(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products",
		strings.NewReader(`{"name":"Kompresor 50L"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	handler.CreateProduct(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products",
		strings.NewReader(`{"name":"kompresor 50l"}`)))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, store.products, 1)
}

func TestProductDuplicateNameAllowedBySetting(t *testing.T) {
	store := &fakeStore{}
	loader := settings.NewLoader(fakeSettings{"allow_duplicate_names": "true"})
	handler := newHandlerWithSettings(t, store, nil, loader)

	for range 2 {
		rec := httptest.NewRecorder()
		handler.CreateProduct(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products",
			strings.NewReader(`{"name":"Kompresor 50L"}`)))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	require.Len(t, store.products, 2)
}

func TestProductListUsesConfiguredPageSize(t *testing.T) {
	store := &fakeStore{}
	loader := settings.NewLoader(fakeSettings{"default_items_per_page": "25"})
	handler := newHandlerWithSettings(t, store, nil, loader)

	rec := httptest.NewRecorder()
	handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 25, store.lastFilter.Limit)

	// An explicit limit still wins.
	rec = httptest.NewRecorder()
	handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, store.lastFilter.Limit)
}

func TestBrandsListIsCached(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &fakeStore{brands: []repo.Brand{{ID: uuid.NewString(), Name: "Metabo"}}}
	handler := newHandler(t, store, catalog.NewCache(client, time.Minute))

	for range 2 {
		rec := httptest.NewRecorder()
		handler.Brands(rec, httptest.NewRequest(http.MethodGet, "/api/v1/brands", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, 1, store.brandListCalls, "second read must come from the cache")
}
