// Package admin is the console behind the admin role: rounding rules,
// global settings, text presets, the PDF template registry, module
// passwords, and zip backup/restore.
package admin

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/obs"
	"github.com/mveljko/backend-cenik/internal/pricing"
	"github.com/mveljko/backend-cenik/internal/repo"
)

type ruleStore interface {
	List(ctx context.Context) ([]repo.RoundingRuleRow, error)
	Create(ctx context.Context, rule pricing.Rule) (repo.RoundingRuleRow, error)
	Update(ctx context.Context, id int64, rule pricing.Rule) error
	Delete(ctx context.Context, id int64) error
}

type adminStore interface {
	Settings(ctx context.Context) (map[string]string, error)
	PutSetting(ctx context.Context, key, value string) error
	ListPresets(ctx context.Context) ([]repo.TextPreset, error)
	SavePreset(ctx context.Context, p repo.TextPreset) (repo.TextPreset, error)
	DeletePreset(ctx context.Context, id string) error
	ListTemplates(ctx context.Context) ([]repo.PDFTemplate, error)
	SaveTemplate(ctx context.Context, t repo.PDFTemplate) (repo.PDFTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
}

type backupStore interface {
	Dump(ctx context.Context) (map[string]json.RawMessage, error)
	Restore(ctx context.Context, dump map[string]json.RawMessage) error
}

type passwordChanger interface {
	SetPassword(ctx context.Context, module, password string) error
}

type restoreLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service orchestrates the admin console operations.
type Service struct {
	rules     ruleStore
	store     adminStore
	backups   backupStore
	passwords passwordChanger
	lock      restoreLocker
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Rules     ruleStore
	Store     adminStore
	Backups   backupStore
	Passwords passwordChanger
	// RestoreLock serialises restores across instances; optional.
	RestoreLock restoreLocker
}

// RuleInput is a rounding rule write request.
type RuleInput struct {
	Target string
	Limit  decimal.Decimal
	Step   decimal.Decimal
	Method string
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Rules == nil || cfg.Store == nil {
		return nil, errors.New("admin: rules and store are required")
	}
	return &Service{
		rules:     cfg.Rules,
		store:     cfg.Store,
		backups:   cfg.Backups,
		passwords: cfg.Passwords,
		lock:      cfg.RestoreLock,
	}, nil
}

// ListRules returns the configured rounding rules.
func (s *Service) ListRules(ctx context.Context) ([]repo.RoundingRuleRow, error) {
	return s.rules.List(ctx)
}

// CreateRule validates and stores a rounding rule. Malformed rules are
// rejected here so the computation layer can assume every stored rule is
// well formed.
func (s *Service) CreateRule(ctx context.Context, in RuleInput) (repo.RoundingRuleRow, error) {
	rule, err := validateRule(in)
	if err != nil {
		return repo.RoundingRuleRow{}, err
	}
	return s.rules.Create(ctx, rule)
}

// UpdateRule validates and rewrites a rounding rule.
func (s *Service) UpdateRule(ctx context.Context, id int64, in RuleInput) error {
	rule, err := validateRule(in)
	if err != nil {
		return err
	}
	return s.rules.Update(ctx, id, rule)
}

// DeleteRule removes a rule; existing snapshots keep the values they were
// computed with.
func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	return s.rules.Delete(ctx, id)
}

// Settings returns all global settings.
func (s *Service) Settings(ctx context.Context) (map[string]string, error) {
	return s.store.Settings(ctx)
}

// PutSetting upserts one global setting.
func (s *Service) PutSetting(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return common.NewAppError("VALIDATION_ERROR", "setting key is required", http.StatusBadRequest, nil)
	}
	return s.store.PutSetting(ctx, key, value)
}

// ListPresets returns all text presets.
func (s *Service) ListPresets(ctx context.Context) ([]repo.TextPreset, error) {
	return s.store.ListPresets(ctx)
}

// SavePreset creates or updates a text preset.
func (s *Service) SavePreset(ctx context.Context, p repo.TextPreset) (repo.TextPreset, error) {
	p.Category = strings.TrimSpace(p.Category)
	p.Title = strings.TrimSpace(p.Title)
	if p.Category == "" || p.Title == "" {
		return repo.TextPreset{}, common.NewAppError("VALIDATION_ERROR", "preset category and title are required", http.StatusBadRequest, nil)
	}
	return s.store.SavePreset(ctx, p)
}

// DeletePreset removes a text preset.
func (s *Service) DeletePreset(ctx context.Context, id string) error {
	return s.store.DeletePreset(ctx, id)
}

// ListTemplates returns the PDF template registry.
func (s *Service) ListTemplates(ctx context.Context) ([]repo.PDFTemplate, error) {
	return s.store.ListTemplates(ctx)
}

// SaveTemplate creates or updates a PDF template entry.
func (s *Service) SaveTemplate(ctx context.Context, t repo.PDFTemplate) (repo.PDFTemplate, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return repo.PDFTemplate{}, common.NewAppError("VALIDATION_ERROR", "template name is required", http.StatusBadRequest, nil)
	}
	return s.store.SaveTemplate(ctx, t)
}

// DeleteTemplate removes a PDF template entry.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	return s.store.DeleteTemplate(ctx, id)
}

// SetModulePassword rotates the shared password of a module.
func (s *Service) SetModulePassword(ctx context.Context, module, password string) error {
	if s.passwords == nil {
		return errors.New("admin: password changer not configured")
	}
	return s.passwords.SetPassword(ctx, module, password)
}

// BackupZip writes a zip archive with one JSON file per table.
func (s *Service) BackupZip(ctx context.Context, w io.Writer) error {
	if s.backups == nil {
		return errors.New("admin: backup store not configured")
	}
	dump, err := s.backups.Dump(ctx)
	if err != nil {
		obs.CountBackup("dump", "error")
		return err
	}
	zw := zip.NewWriter(w)
	for table, doc := range dump {
		f, err := zw.Create(table + ".json")
		if err != nil {
			return fmt.Errorf("backup %s: %w", table, err)
		}
		if _, err := f.Write(doc); err != nil {
			return fmt.Errorf("backup %s: %w", table, err)
		}
	}
	obs.CountBackup("dump", "ok")
	return zw.Close()
}

// RestoreZip replaces the database content from a backup archive.
func (s *Service) RestoreZip(ctx context.Context, archive []byte) error {
	if s.backups == nil {
		return errors.New("admin: backup store not configured")
	}
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return common.NewAppError("VALIDATION_ERROR", "not a valid zip archive", http.StatusBadRequest, err)
	}
	dump := make(map[string]json.RawMessage)
	for _, file := range zr.File {
		name := strings.TrimSuffix(file.Name, ".json")
		if name == file.Name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return common.NewAppError("VALIDATION_ERROR", "corrupt backup archive", http.StatusBadRequest, err)
		}
		doc, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return common.NewAppError("VALIDATION_ERROR", "corrupt backup archive", http.StatusBadRequest, err)
		}
		if !json.Valid(doc) {
			return common.NewAppError("VALIDATION_ERROR", fmt.Sprintf("%s is not valid JSON", file.Name), http.StatusBadRequest, nil)
		}
		dump[name] = json.RawMessage(doc)
	}
	if len(dump) == 0 {
		return common.NewAppError("VALIDATION_ERROR", "backup archive contains no tables", http.StatusBadRequest, nil)
	}
	restore := func(ctx context.Context) error {
		if err := s.backups.Restore(ctx, dump); err != nil {
			obs.CountBackup("restore", "error")
			return err
		}
		obs.CountBackup("restore", "ok")
		return nil
	}
	if s.lock != nil {
		return s.lock.WithLock(ctx, "admin:restore", 2*time.Minute, restore)
	}
	return restore(ctx)
}

func validateRule(in RuleInput) (pricing.Rule, error) {
	target := pricing.Target(strings.ToLower(strings.TrimSpace(in.Target)))
	if !target.Valid() {
		return pricing.Rule{}, ruleError("target must be price or discount")
	}
	method := pricing.Method(strings.ToUpper(strings.TrimSpace(in.Method)))
	if !method.Valid() {
		return pricing.Rule{}, ruleError("method must be UP, DOWN, or NEAREST")
	}
	if in.Limit.Sign() <= 0 {
		return pricing.Rule{}, ruleError("limit must be positive")
	}
	if in.Step.Sign() <= 0 {
		return pricing.Rule{}, ruleError("step must be positive")
	}
	return pricing.Rule{Target: target, Limit: in.Limit, Step: in.Step, Method: method}, nil
}

func ruleError(message string) *common.AppError {
	return common.NewAppError("VALIDATION_ERROR", message, http.StatusUnprocessableEntity, nil)
}
