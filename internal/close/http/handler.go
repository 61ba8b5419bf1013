package closehttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/close"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

type statusSource interface {
	Status() close.Status
}

type eligibility interface {
	EligibleOfficialClose(ctx context.Context, today time.Time) ([]ledger.Month, error)
	Policy() close.Policy
}

// Handler exposes the closing scheduler state.
type Handler struct {
	logger    *slog.Logger
	scheduler statusSource
	closer    eligibility
	schedule  close.Schedule
	now       func() time.Time
}

// NewHandler builds a Handler. A nil scheduler reports the loop as disabled.
func NewHandler(logger *slog.Logger, scheduler statusSource, closer eligibility, schedule close.Schedule) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		scheduler: scheduler,
		closer:    closer,
		schedule:  schedule,
		now:       time.Now,
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/closing", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/eligible", h.eligible)
	})
}

type statusResponse struct {
	Enabled     bool   `json:"enabled"`
	CanCloseNow bool   `json:"can_close_now"`
	RestartIn   string `json:"restart_in,omitempty"`
	CatchUpScan bool   `json:"catch_up_scan"`
	OfficialDay int    `json:"official_close_day"`
	close.Status
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}
	if h.closer != nil {
		p := h.closer.Policy()
		resp.CatchUpScan = p.CatchUpScan
		resp.OfficialDay = p.OfficialCloseDay
	}
	if h.scheduler != nil {
		resp.Enabled = true
		resp.Status = h.scheduler.Status()
		now := h.now()
		if !resp.StartedAt.IsZero() {
			resp.CanCloseNow = h.schedule.CanClose(resp.StartedAt, now)
			if h.schedule.RestartAfter > 0 {
				resp.RestartIn = resp.RestartAt.Sub(now).Truncate(time.Second).String()
			}
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type eligibleResponse struct {
	Date   string         `json:"date"`
	Months []ledger.Month `json:"months"`
}

func (h *Handler) eligible(w http.ResponseWriter, r *http.Request) {
	if h.closer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "closing is not configured")
		return
	}
	today := h.schedule.Today(h.now())
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		today = ledger.Day(parsed)
	}
	months, err := h.closer.EligibleOfficialClose(r.Context(), today)
	if err != nil {
		h.logger.Error("eligible official close", slog.Any("error", err))
		if ledger.IsUnavailable(err) {
			err = httpx.Wrap(httpx.ErrUnavailable, err)
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, eligibleResponse{Date: today.Format(time.DateOnly), Months: months})
}
