package fx

import (
	"errors"
	"net/http"

	"github.com/mveljko/backend-cenik/internal/common"
)

// Handler exposes the exchange-rate endpoint.
type Handler struct {
	client *Client
}

// NewHandler constructs a Handler.
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// Rate handles GET /api/v1/fx/rate.
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.client.CurrentRate(r.Context())
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rate})
}
