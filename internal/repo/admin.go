package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TextPreset is a reusable text block for offers, grouped by category with
// at most one default per category.
type TextPreset struct {
	ID        string
	Category  string
	Title     string
	Body      string
	IsDefault bool
}

// PDFTemplate is a registered offer layout; at most one is active.
type PDFTemplate struct {
	ID       string
	Name     string
	FileRef  string
	IsActive bool
}

// AdminStore persists global settings, text presets, PDF templates, and
// per-module passwords.
type AdminStore struct {
	pool *pgxpool.Pool
}

// NewAdminStore constructs an AdminStore.
func NewAdminStore(pool *pgxpool.Pool) *AdminStore {
	return &AdminStore{pool: pool}
}

// Settings returns every global setting as a key/value map. Callers load it
// once per request and pass values onward explicitly.
func (s *AdminStore) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM global_settings`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// PutSetting upserts one global setting.
func (s *AdminStore) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO global_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	return MapError(err, "")
}

// ListPresets returns all text presets, defaults first within a category.
func (s *AdminStore) ListPresets(ctx context.Context) ([]TextPreset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, category, title, body, is_default
		FROM text_presets
		ORDER BY category, is_default DESC, lower(title)`)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	var result []TextPreset
	for rows.Next() {
		var (
			id pgtype.UUID
			p  TextPreset
		)
		if err := rows.Scan(&id, &p.Category, &p.Title, &p.Body, &p.IsDefault); err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		p.ID = uuidString(id)
		result = append(result, p)
	}
	return result, rows.Err()
}

// SavePreset inserts or rewrites a preset. Marking one as default clears the
// previous default of its category inside the same transaction.
func (s *AdminStore) SavePreset(ctx context.Context, p TextPreset) (TextPreset, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	uid, err := uuidValue(p.ID)
	if err != nil {
		return TextPreset{}, notFound("text preset")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TextPreset{}, MapError(err, "")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if p.IsDefault {
		if _, err := tx.Exec(ctx, `
			UPDATE text_presets SET is_default = FALSE
			WHERE category = $1 AND is_default AND id <> $2`, p.Category, uid); err != nil {
			return TextPreset{}, MapError(err, "")
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO text_presets (id, category, title, body, is_default)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			category = EXCLUDED.category,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			is_default = EXCLUDED.is_default`,
		uid, p.Category, p.Title, p.Body, p.IsDefault); err != nil {
		return TextPreset{}, MapError(err, "")
	}
	if err := tx.Commit(ctx); err != nil {
		return TextPreset{}, MapError(err, "")
	}
	return p, nil
}

// DeletePreset removes a preset.
func (s *AdminStore) DeletePreset(ctx context.Context, id string) error {
	uid, err := uuidValue(id)
	if err != nil {
		return notFound("text preset")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM text_presets WHERE id = $1`, uid)
	if err != nil {
		return MapError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return notFound("text preset")
	}
	return nil
}

// ListTemplates returns all registered PDF templates.
func (s *AdminStore) ListTemplates(ctx context.Context) ([]PDFTemplate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, file_ref, is_active
		FROM pdf_templates
		ORDER BY is_active DESC, lower(name)`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var result []PDFTemplate
	for rows.Next() {
		var (
			id pgtype.UUID
			t  PDFTemplate
		)
		if err := rows.Scan(&id, &t.Name, &t.FileRef, &t.IsActive); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.ID = uuidString(id)
		result = append(result, t)
	}
	return result, rows.Err()
}

// SaveTemplate inserts or rewrites a template; activating one deactivates
// the rest in the same transaction.
func (s *AdminStore) SaveTemplate(ctx context.Context, t PDFTemplate) (PDFTemplate, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	uid, err := uuidValue(t.ID)
	if err != nil {
		return PDFTemplate{}, notFound("pdf template")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PDFTemplate{}, MapError(err, "")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if t.IsActive {
		if _, err := tx.Exec(ctx, `
			UPDATE pdf_templates SET is_active = FALSE
			WHERE is_active AND id <> $1`, uid); err != nil {
			return PDFTemplate{}, MapError(err, "")
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO pdf_templates (id, name, file_ref, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			file_ref = EXCLUDED.file_ref,
			is_active = EXCLUDED.is_active`,
		uid, t.Name, t.FileRef, t.IsActive); err != nil {
		return PDFTemplate{}, MapError(err, "a template with this name already exists")
	}
	if err := tx.Commit(ctx); err != nil {
		return PDFTemplate{}, MapError(err, "")
	}
	return t, nil
}

// DeleteTemplate removes a template.
func (s *AdminStore) DeleteTemplate(ctx context.Context, id string) error {
	uid, err := uuidValue(id)
	if err != nil {
		return notFound("pdf template")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM pdf_templates WHERE id = $1`, uid)
	if err != nil {
		return MapError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return notFound("pdf template")
	}
	return nil
}

// PasswordHash returns the argon2id hash for a module, or "" when the module
// has no password configured yet.
func (s *AdminStore) PasswordHash(ctx context.Context, module string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `
		SELECT password_hash FROM module_passwords WHERE module = $1`, module).Scan(&hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", MapError(err, "")
	}
	return hash, nil
}

// SetPasswordHash upserts the password hash of a module.
func (s *AdminStore) SetPasswordHash(ctx context.Context, module, hash string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO module_passwords (module, password_hash, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (module) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = now()`,
		module, hash)
	return MapError(err, "")
}
