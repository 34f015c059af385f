package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/repo"
)

// restores are whole-database replacements; cap the accepted archive size.
const maxRestoreBytes = 64 << 20

// Handler exposes the admin console endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type ruleRequest struct {
	Target string          `json:"target"`
	Limit  decimal.Decimal `json:"limit"`
	Step   decimal.Decimal `json:"step"`
	Method string          `json:"method"`
}

type ruleResponse struct {
	ID     int64           `json:"id"`
	Target string          `json:"target"`
	Limit  decimal.Decimal `json:"limit"`
	Step   decimal.Decimal `json:"step"`
	Method string          `json:"method"`
}

type settingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type presetRequest struct {
	Category  string `json:"category"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	IsDefault bool   `json:"is_default"`
}

type templateRequest struct {
	Name     string `json:"name"`
	FileRef  string `json:"file_ref"`
	IsActive bool   `json:"is_active"`
}

type passwordRequest struct {
	Module   string `json:"module"`
	Password string `json:"password"`
}

// Rules handles GET /api/v1/admin/rules.
func (h *Handler) Rules(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ruleResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRuleResponse(row))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// CreateRule handles POST /api/v1/admin/rules.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	row, err := h.service.CreateRule(r.Context(), RuleInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toRuleResponse(row)})
}

// UpdateRule handles PUT /api/v1/admin/rules/{ruleID}.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	if err := h.service.UpdateRule(r.Context(), id, RuleInput(req)); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"updated": true}})
}

// DeleteRule handles DELETE /api/v1/admin/rules/{ruleID}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.DeleteRule(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

// Settings handles GET /api/v1/admin/settings.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Settings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": settings})
}

// PutSetting handles PUT /api/v1/admin/settings.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	if err := h.service.PutSetting(r.Context(), req.Key, req.Value); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"saved": true}})
}

// Presets handles GET /api/v1/admin/presets.
func (h *Handler) Presets(w http.ResponseWriter, r *http.Request) {
	presets, err := h.service.ListPresets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": presets})
}

// SavePreset handles POST /api/v1/admin/presets and
// PUT /api/v1/admin/presets/{presetID}.
func (h *Handler) SavePreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	preset, err := h.service.SavePreset(r.Context(), repo.TextPreset{
		ID:        chi.URLParam(r, "presetID"),
		Category:  req.Category,
		Title:     req.Title,
		Body:      req.Body,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": preset})
}

// DeletePreset handles DELETE /api/v1/admin/presets/{presetID}.
func (h *Handler) DeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePreset(r.Context(), chi.URLParam(r, "presetID")); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

// Templates handles GET /api/v1/admin/templates.
func (h *Handler) Templates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.ListTemplates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": templates})
}

// SaveTemplate handles POST /api/v1/admin/templates and
// PUT /api/v1/admin/templates/{templateID}.
func (h *Handler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	template, err := h.service.SaveTemplate(r.Context(), repo.PDFTemplate{
		ID:       chi.URLParam(r, "templateID"),
		Name:     req.Name,
		FileRef:  req.FileRef,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": template})
}

// DeleteTemplate handles DELETE /api/v1/admin/templates/{templateID}.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTemplate(r.Context(), chi.URLParam(r, "templateID")); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

// SetPassword handles PUT /api/v1/admin/passwords.
func (h *Handler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
		return
	}
	if err := h.service.SetModulePassword(r.Context(), req.Module, req.Password); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"changed": true}})
}

// Backup handles GET /api/v1/admin/backup and streams a zip archive.
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		`attachment; filename="backup-`+time.Now().Format("2006-01-02")+`.zip"`)
	if err := h.service.BackupZip(r.Context(), w); err != nil {
		writeError(w, err)
		return
	}
}

// Restore handles POST /api/v1/admin/restore with the zip archive as body.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	archive, err := io.ReadAll(io.LimitReader(r.Body, maxRestoreBytes+1))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "could not read archive", nil)
		return
	}
	if len(archive) > maxRestoreBytes {
		common.JSONError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "backup archive too large", nil)
		return
	}
	if err := h.service.RestoreZip(r.Context(), archive); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"restored": true}})
}

func toRuleResponse(row repo.RoundingRuleRow) ruleResponse {
	return ruleResponse{
		ID:     row.ID,
		Target: string(row.Target),
		Limit:  row.Limit,
		Step:   row.Step,
		Method: string(row.Method),
	}
}

func ruleID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ruleID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewAppError("BAD_REQUEST", "invalid rule id", http.StatusBadRequest, err)
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
