package records

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

// Handler exposes record editability to the authorization layer.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers record routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{kind}/{id}/editability", h.showEditability)
}

type editabilityParams struct {
	ID int64 `validate:"gt=0"`
}

func (h *Handler) showEditability(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || h.validator.Struct(editabilityParams{ID: id}) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return
	}
	view, err := h.service.Editability(r.Context(), kind, id)
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrNotFound, err))
		return
	case err != nil:
		h.logger.Error("record editability", slog.String("kind", string(kind)), slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, httpx.Wrap(httpx.ErrUnavailable, err))
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}
