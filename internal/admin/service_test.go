package admin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mveljko/backend-cenik/internal/admin"
	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/pricing"
	"github.com/mveljko/backend-cenik/internal/repo"
)

type fakeRules struct {
	rows   []repo.RoundingRuleRow
	nextID int64
}

func (f *fakeRules) List(context.Context) ([]repo.RoundingRuleRow, error) {
	return f.rows, nil
}

func (f *fakeRules) Create(_ context.Context, rule pricing.Rule) (repo.RoundingRuleRow, error) {
	for _, row := range f.rows {
		if row.Target == rule.Target && row.Limit.Equal(rule.Limit) {
			return repo.RoundingRuleRow{}, common.NewAppError("CONFLICT",
				"a rule with this target and limit already exists", http.StatusConflict, nil)
		}
	}
	f.nextID++
	row := repo.RoundingRuleRow{ID: f.nextID, Target: rule.Target, Limit: rule.Limit, Step: rule.Step, Method: rule.Method}
	f.rows = append(f.rows, row)
	return row, nil
}

func (f *fakeRules) Update(_ context.Context, id int64, rule pricing.Rule) error {
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i] = repo.RoundingRuleRow{ID: id, Target: rule.Target, Limit: rule.Limit, Step: rule.Step, Method: rule.Method}
			return nil
		}
	}
	return common.NewAppError("NOT_FOUND", "rounding rule not found", http.StatusNotFound, nil)
}

func (f *fakeRules) Delete(_ context.Context, id int64) error {
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return common.NewAppError("NOT_FOUND", "rounding rule not found", http.StatusNotFound, nil)
}

type fakeAdminStore struct {
	settings  map[string]string
	presets   []repo.TextPreset
	templates []repo.PDFTemplate
}

func (f *fakeAdminStore) Settings(context.Context) (map[string]string, error) {
	return f.settings, nil
}

func (f *fakeAdminStore) PutSetting(_ context.Context, key, value string) error {
	if f.settings == nil {
		f.settings = make(map[string]string)
	}
	f.settings[key] = value
	return nil
}

func (f *fakeAdminStore) ListPresets(context.Context) ([]repo.TextPreset, error) {
	return f.presets, nil
}

func (f *fakeAdminStore) SavePreset(_ context.Context, p repo.TextPreset) (repo.TextPreset, error) {
	f.presets = append(f.presets, p)
	return p, nil
}

func (f *fakeAdminStore) DeletePreset(context.Context, string) error { return nil }

func (f *fakeAdminStore) ListTemplates(context.Context) ([]repo.PDFTemplate, error) {
	return f.templates, nil
}

func (f *fakeAdminStore) SaveTemplate(_ context.Context, t repo.PDFTemplate) (repo.PDFTemplate, error) {
	f.templates = append(f.templates, t)
	return t, nil
}

func (f *fakeAdminStore) DeleteTemplate(context.Context, string) error { return nil }

type fakeBackups struct {
	data     map[string]json.RawMessage
	restored map[string]json.RawMessage
}

func (f *fakeBackups) Dump(context.Context) (map[string]json.RawMessage, error) {
	return f.data, nil
}

func (f *fakeBackups) Restore(_ context.Context, dump map[string]json.RawMessage) error {
	f.restored = dump
	return nil
}

type fakePasswords struct {
	changed map[string]string
}

func (f *fakePasswords) SetPassword(_ context.Context, module, password string) error {
	if f.changed == nil {
		f.changed = make(map[string]string)
	}
	f.changed[module] = password
	return nil
}

func newTestService(t *testing.T, backups *fakeBackups) (*admin.Service, *fakeRules, *fakePasswords) {
	t.Helper()
	rules := &fakeRules{}
	passwords := &fakePasswords{}
	cfg := admin.ServiceConfig{
		Rules:     rules,
		Store:     &fakeAdminStore{},
		Passwords: passwords,
	}
	if backups != nil {
		cfg.Backups = backups
	}
	svc, err := admin.NewService(cfg)
	require.NoError(t, err)
	return svc, rules, passwords
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateRuleNormalizesTargetAndMethod(t *testing.T) {
	svc, rules, _ := newTestService(t, nil)

	row, err := svc.CreateRule(context.Background(), admin.RuleInput{
		Target: " Price ",
		Limit:  dec("1000"),
		Step:   dec("50"),
		Method: "up",
	})
	require.NoError(t, err)
	require.Equal(t, pricing.TargetPrice, row.Target)
	require.Equal(t, pricing.MethodUp, row.Method)
	require.Len(t, rules.rows, 1)
}

func TestCreateRuleRejectsMalformedInput(t *testing.T) {
	svc, rules, _ := newTestService(t, nil)

	cases := []struct {
		name string
		in   admin.RuleInput
	}{
		{"unknown target", admin.RuleInput{Target: "margin", Limit: dec("1000"), Step: dec("50"), Method: "UP"}},
		{"unknown method", admin.RuleInput{Target: "price", Limit: dec("1000"), Step: dec("50"), Method: "BANKERS"}},
		{"zero limit", admin.RuleInput{Target: "price", Limit: decimal.Zero, Step: dec("50"), Method: "UP"}},
		{"negative step", admin.RuleInput{Target: "price", Limit: dec("1000"), Step: dec("-50"), Method: "UP"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRule(context.Background(), tc.in)
			var appErr *common.AppError
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
		})
	}
	require.Empty(t, rules.rows)
}

func TestCreateRuleDuplicateLimitConflicts(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	in := admin.RuleInput{Target: "price", Limit: dec("1000"), Step: dec("50"), Method: "UP"}
	_, err := svc.CreateRule(context.Background(), in)
	require.NoError(t, err)

	in.Step = dec("100")
	_, err = svc.CreateRule(context.Background(), in)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusConflict, appErr.HTTPStatus)
}

func TestSetModulePassword(t *testing.T) {
	svc, _, passwords := newTestService(t, nil)
	require.NoError(t, svc.SetModulePassword(context.Background(), "offer", "nova-lozinka"))
	require.Equal(t, "nova-lozinka", passwords.changed["offer"])
}

func TestBackupRestoreRoundtrip(t *testing.T) {
	backups := &fakeBackups{data: map[string]json.RawMessage{
		"brands":     json.RawMessage(`[{"id":"b1","name":"Metabo"}]`),
		"categories": json.RawMessage(`[]`),
	}}
	svc, _, _ := newTestService(t, backups)

	var buf bytes.Buffer
	require.NoError(t, svc.BackupZip(context.Background(), &buf))

	require.NoError(t, svc.RestoreZip(context.Background(), buf.Bytes()))
	require.Len(t, backups.restored, 2)
	require.JSONEq(t, `[{"id":"b1","name":"Metabo"}]`, string(backups.restored["brands"]))
	require.JSONEq(t, `[]`, string(backups.restored["categories"]))
}

func TestRestoreRejectsGarbage(t *testing.T) {
	backups := &fakeBackups{}
	svc, _, _ := newTestService(t, backups)

	err := svc.RestoreZip(context.Background(), []byte("definitely not a zip"))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	require.Nil(t, backups.restored)
}

func TestBackupWithoutStoreFails(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	err := svc.BackupZip(context.Background(), &bytes.Buffer{})
	require.Error(t, err)
	require.False(t, errors.As(err, new(*common.AppError)))
}
