package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/pricing"
)

// Brand is a stored manufacturer name.
type Brand struct {
	ID   string
	Name string
}

// Category is a stored category with its pricing defaults.
type Category struct {
	ID            string
	Name          string
	DefaultExtras decimal.Decimal
	Coefficients  pricing.CoefficientSet
}

// Product is a stored catalog entry.
type Product struct {
	ID           string
	Name         string
	Description  string
	PhotoRef     string
	CategoryID   *string
	CategoryName *string
	BrandID      *string
	BrandName    *string
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search     string
	CategoryID string
	BrandID    string
	Offset     int
	Limit      int
}

// CatalogStore persists brands, categories, and products.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// NewCatalogStore constructs a CatalogStore.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

// ListBrands returns all brands sorted by name.
func (s *CatalogStore) ListBrands(ctx context.Context) ([]Brand, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM brands ORDER BY lower(name)`)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	defer rows.Close()

	var result []Brand
	for rows.Next() {
		var (
			id pgtype.UUID
			b  Brand
		)
		if err := rows.Scan(&id, &b.Name); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		b.ID = uuidString(id)
		result = append(result, b)
	}
	return result, rows.Err()
}

// CreateBrand inserts a brand; names are unique case-insensitively.
func (s *CatalogStore) CreateBrand(ctx context.Context, name string) (Brand, error) {
	id := uuid.NewString()
	uid, _ := uuidValue(id)
	_, err := s.pool.Exec(ctx, `INSERT INTO brands (id, name) VALUES ($1, $2)`, uid, name)
	if err != nil {
		return Brand{}, MapError(err, "a brand with this name already exists")
	}
	return Brand{ID: id, Name: name}, nil
}

// RenameBrand updates a brand name. Products reference brands by id, so the
// rename reaches every product atomically.
func (s *CatalogStore) RenameBrand(ctx context.Context, id, name string) error {
	uid, err := uuidValue(id)
	if err != nil {
		return notFound("brand")
	}
	tag, err := s.pool.Exec(ctx, `UPDATE brands SET name = $2 WHERE id = $1`, uid, name)
	if err != nil {
		return MapError(err, "a brand with this name already exists")
	}
	if tag.RowsAffected() == 0 {
		return notFound("brand")
	}
	return nil
}

// DeleteBrand removes a brand; a foreign key violation means products still
// reference it and surfaces as a conflict.
func (s *CatalogStore) DeleteBrand(ctx context.Context, id string) error {
	uid, err := uuidValue(id)
	if err != nil {
		return notFound("brand")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM brands WHERE id = $1`, uid)
	if err != nil {
		return MapError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return notFound("brand")
	}
	return nil
}

// ListCategories returns all categories with their pricing defaults.
func (s *CatalogStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, import_percent, margin_percent, warranty_percent, service_percent,
		       domestic_transport, default_extras, installation, training, other
		FROM categories
		ORDER BY lower(name)`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var result []Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cat)
	}
	return result, rows.Err()
}

// GetCategory fetches one category by id.
func (s *CatalogStore) GetCategory(ctx context.Context, id string) (Category, error) {
	uid, err := uuidValue(id)
	if err != nil {
		return Category{}, notFound("category")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, import_percent, margin_percent, warranty_percent, service_percent,
		       domestic_transport, default_extras, installation, training, other
		FROM categories
		WHERE id = $1`, uid)
	cat, err := scanCategory(row)
	if err != nil {
		return Category{}, MapError(err, "")
	}
	return cat, nil
}

// UpsertCategory inserts or fully rewrites a category row. Renames cascade
// structurally: products hold the category id, never the name.
func (s *CatalogStore) UpsertCategory(ctx context.Context, cat Category) (Category, error) {
	if cat.ID == "" {
		cat.ID = uuid.NewString()
	}
	uid, err := uuidValue(cat.ID)
	if err != nil {
		return Category{}, notFound("category")
	}
	c := cat.Coefficients
	_, err = s.pool.Exec(ctx, `
		INSERT INTO categories (id, name, import_percent, margin_percent, warranty_percent,
		                        service_percent, domestic_transport, default_extras,
		                        installation, training, other)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			import_percent = EXCLUDED.import_percent,
			margin_percent = EXCLUDED.margin_percent,
			warranty_percent = EXCLUDED.warranty_percent,
			service_percent = EXCLUDED.service_percent,
			domestic_transport = EXCLUDED.domestic_transport,
			default_extras = EXCLUDED.default_extras,
			installation = EXCLUDED.installation,
			training = EXCLUDED.training,
			other = EXCLUDED.other`,
		uid, cat.Name,
		numericValue(c.ImportPercent), numericValue(c.MarginPercent),
		numericValue(c.WarrantyPercent), numericValue(c.ServicePercent),
		numericValue(c.DomesticTransport), numericValue(cat.DefaultExtras),
		numericValue(c.Installation), numericValue(c.Training), numericValue(c.Other))
	if err != nil {
		return Category{}, MapError(err, "a category with this name already exists")
	}
	return cat, nil
}

// DeleteCategory refuses deletion while any product references the category.
func (s *CatalogStore) DeleteCategory(ctx context.Context, id string) error {
	uid, err := uuidValue(id)
	if err != nil {
		return notFound("category")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, uid)
	if err != nil {
		return MapError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return notFound("category")
	}
	return nil
}

const productColumns = `
	p.id, p.name, p.description, p.photo_ref,
	p.category_id, c.name, p.brand_id, b.name`

const productJoins = `
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN brands b ON b.id = p.brand_id`

// ListProducts returns a filtered, paginated product page plus total count.
func (s *CatalogStore) ListProducts(ctx context.Context, f ProductFilter) ([]Product, int64, error) {
	where, args := productWhere(f)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*)`+productJoins+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query := `SELECT ` + productColumns + productJoins + where +
		fmt.Sprintf(` ORDER BY lower(p.name) LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var result []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, p)
	}
	return result, total, rows.Err()
}

// GetProduct fetches one product with category and brand names resolved.
func (s *CatalogStore) GetProduct(ctx context.Context, id string) (Product, error) {
	uid, err := uuidValue(id)
	if err != nil {
		return Product{}, notFound("product")
	}
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+productJoins+` WHERE p.id = $1`, uid)
	p, err := scanProduct(row)
	if err != nil {
		return Product{}, MapError(err, "")
	}
	return p, nil
}

// ProductNameExists reports whether another product already uses the name,
// compared case-insensitively. excludeID skips the product being updated.
func (s *CatalogStore) ProductNameExists(ctx context.Context, name, excludeID string) (bool, error) {
	var exclude pgtype.UUID
	if excludeID != "" {
		exclude, _ = uuidValue(excludeID)
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM products
			WHERE lower(name) = lower($1) AND ($2::uuid IS NULL OR id <> $2)
		)`, name, exclude).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check product name: %w", err)
	}
	return exists, nil
}

// CreateProduct inserts a product. Name uniqueness is the service's call:
// the allow_duplicate_names setting decides whether duplicates are allowed.
func (s *CatalogStore) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	uid, err := uuidValue(p.ID)
	if err != nil {
		return Product{}, notFound("product")
	}
	catID, err := optionalUUID(p.CategoryID)
	if err != nil {
		return Product{}, notFound("category")
	}
	brandID, err := optionalUUID(p.BrandID)
	if err != nil {
		return Product{}, notFound("brand")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO products (id, name, description, photo_ref, category_id, brand_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uid, p.Name, p.Description, p.PhotoRef, catID, brandID)
	if err != nil {
		return Product{}, MapError(err, "")
	}
	return s.GetProduct(ctx, p.ID)
}

// UpdateProduct rewrites the mutable fields of a product.
func (s *CatalogStore) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	uid, err := uuidValue(p.ID)
	if err != nil {
		return Product{}, notFound("product")
	}
	catID, err := optionalUUID(p.CategoryID)
	if err != nil {
		return Product{}, notFound("category")
	}
	brandID, err := optionalUUID(p.BrandID)
	if err != nil {
		return Product{}, notFound("brand")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE products
		SET name = $2, description = $3, photo_ref = $4, category_id = $5, brand_id = $6
		WHERE id = $1`,
		uid, p.Name, p.Description, p.PhotoRef, catID, brandID)
	if err != nil {
		return Product{}, MapError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return Product{}, notFound("product")
	}
	return s.GetProduct(ctx, p.ID)
}

// DeleteProduct removes a product and, through the cascade, its snapshots.
func (s *CatalogStore) DeleteProduct(ctx context.Context, id string) error {
	uid, err := uuidValue(id)
	if err != nil {
		return notFound("product")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, uid)
	if err != nil {
		return MapError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return notFound("product")
	}
	return nil
}

func productWhere(f ProductFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		clauses = append(clauses, fmt.Sprintf("lower(p.name) LIKE $%d", len(args)))
	}
	if f.CategoryID != "" {
		if uid, err := uuidValue(f.CategoryID); err == nil {
			args = append(args, uid)
			clauses = append(clauses, fmt.Sprintf("p.category_id = $%d", len(args)))
		}
	}
	if f.BrandID != "" {
		if uid, err := uuidValue(f.BrandID); err == nil {
			args = append(args, uid)
			clauses = append(clauses, fmt.Sprintf("p.brand_id = $%d", len(args)))
		}
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func optionalUUID(id *string) (pgtype.UUID, error) {
	if id == nil || *id == "" {
		return pgtype.UUID{}, nil
	}
	return uuidValue(*id)
}

func optionalString(t pgtype.UUID, name pgtype.Text) (idOut, nameOut *string) {
	if t.Valid {
		id := uuidString(t)
		idOut = &id
	}
	if name.Valid {
		n := name.String
		nameOut = &n
	}
	return idOut, nameOut
}

func scanCategory(row pgx.Row) (Category, error) {
	var (
		id                             pgtype.UUID
		cat                            Category
		imp, margin, warranty, service pgtype.Numeric
		transport, extras              pgtype.Numeric
		installation, training, other  pgtype.Numeric
	)
	err := row.Scan(&id, &cat.Name, &imp, &margin, &warranty, &service,
		&transport, &extras, &installation, &training, &other)
	if err != nil {
		return Category{}, err
	}
	cat.ID = uuidString(id)
	cat.DefaultExtras = decimalValue(extras)
	cat.Coefficients = pricing.CoefficientSet{
		ImportPercent:     decimalValue(imp),
		MarginPercent:     decimalValue(margin),
		WarrantyPercent:   decimalValue(warranty),
		ServicePercent:    decimalValue(service),
		DomesticTransport: decimalValue(transport),
		Installation:      decimalValue(installation),
		Training:          decimalValue(training),
		Other:             decimalValue(other),
	}
	return cat, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		id, catID, brandID pgtype.UUID
		catName, brandName pgtype.Text
		p                  Product
	)
	err := row.Scan(&id, &p.Name, &p.Description, &p.PhotoRef, &catID, &catName, &brandID, &brandName)
	if err != nil {
		return Product{}, err
	}
	p.ID = uuidString(id)
	p.CategoryID, p.CategoryName = optionalString(catID, catName)
	p.BrandID, p.BrandName = optionalString(brandID, brandName)
	return p, nil
}
