package ledgerhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

type ledgerService interface {
	FindDaily(ctx context.Context, date time.Time) (*ledger.DailyRow, error)
	MonthDetail(ctx context.Context, month ledger.Month) (*ledger.MonthlyRow, error)
}

// Handler serves read-only views of ledger rows.
type Handler struct {
	logger    *slog.Logger
	service   ledgerService
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service ledgerService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/daily/{date}", h.showDaily)
	r.Get("/monthly/{year}/{month}", h.showMonthly)
}

type dailyParams struct {
	Date string `validate:"required,datetime=2006-01-02"`
}

type monthlyParams struct {
	Year  int `validate:"min=2000,max=9999"`
	Month int `validate:"min=1,max=12"`
}

type closingView struct {
	State               ledger.CloseState `json:"state"`
	TemporarilyClosedAt *time.Time        `json:"temporarily_closed_at,omitempty"`
	OfficiallyClosedAt  *time.Time        `json:"officially_closed_at,omitempty"`
}

type totalsView struct {
	GrossRevenue    int64           `json:"gross_revenue"`
	Cost            int64           `json:"cost"`
	Expenses        int64           `json:"expenses"`
	GrossProfit     int64           `json:"gross_profit"`
	OperatingProfit int64           `json:"operating_profit"`
	NetProfit       int64           `json:"net_profit"`
	GrossMargin     decimal.Decimal `json:"gross_margin"`
	NetMargin       decimal.Decimal `json:"net_margin"`
}

type dailyView struct {
	ID      int64          `json:"id"`
	Date    string         `json:"date"`
	Metrics ledger.Metrics `json:"metrics"`
	Totals  totalsView     `json:"totals"`
	Closing closingView    `json:"closing"`
}

type monthlyView struct {
	ID      int64          `json:"id"`
	Month   string         `json:"month"`
	Metrics ledger.Metrics `json:"metrics"`
	Totals  totalsView     `json:"totals"`
	Closing closingView    `json:"closing"`
	Days    []dailyView    `json:"days"`
}

func (h *Handler) showDaily(w http.ResponseWriter, r *http.Request) {
	params := dailyParams{Date: strings.TrimSpace(chi.URLParam(r, "date"))}
	if err := h.validator.Struct(params); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	date, _ := time.Parse(time.DateOnly, params.Date)
	row, err := h.service.FindDaily(r.Context(), date)
	if err != nil {
		h.respondError(w, "find daily", err)
		return
	}
	if row == nil {
		httpx.RespondError(w, fmt.Errorf("%w: no ledger row for %s", httpx.ErrNotFound, params.Date))
		return
	}
	httpx.JSON(w, http.StatusOK, toDailyView(*row))
}

func (h *Handler) showMonthly(w http.ResponseWriter, r *http.Request) {
	year, yerr := strconv.Atoi(chi.URLParam(r, "year"))
	month, merr := strconv.Atoi(chi.URLParam(r, "month"))
	params := monthlyParams{Year: year, Month: month}
	if yerr != nil || merr != nil || h.validator.Struct(params) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "year and month must be numeric, month 1-12")
		return
	}
	target := ledger.Month{Year: params.Year, Month: time.Month(params.Month)}
	row, err := h.service.MonthDetail(r.Context(), target)
	if err != nil {
		h.respondError(w, "month detail", err)
		return
	}
	if row == nil {
		httpx.RespondError(w, fmt.Errorf("%w: no ledger row for %s", httpx.ErrNotFound, target))
		return
	}
	view := monthlyView{
		ID:      row.ID,
		Month:   row.Month.String(),
		Metrics: row.Metrics,
		Totals:  toTotals(row.Metrics),
		Closing: toClosing(row.Closing),
		Days:    make([]dailyView, 0, len(row.Days)),
	}
	for _, d := range row.Days {
		view.Days = append(view.Days, toDailyView(d))
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	if ledger.IsUnavailable(err) {
		err = httpx.Wrap(httpx.ErrUnavailable, err)
	}
	httpx.RespondError(w, err)
}

func toDailyView(row ledger.DailyRow) dailyView {
	return dailyView{
		ID:      row.ID,
		Date:    row.Date.Format(time.DateOnly),
		Metrics: row.Metrics,
		Totals:  toTotals(row.Metrics),
		Closing: toClosing(row.Closing),
	}
}

func toTotals(m ledger.Metrics) totalsView {
	return totalsView{
		GrossRevenue:    m.GrossRevenue(),
		Cost:            m.Cost(),
		Expenses:        m.Expenses(),
		GrossProfit:     m.GrossProfit(),
		OperatingProfit: m.OperatingProfit(),
		NetProfit:       m.NetProfit(),
		GrossMargin:     m.GrossMargin(),
		NetMargin:       m.NetMargin(),
	}
}

func toClosing(c ledger.Closing) closingView {
	return closingView{
		State:               c.State(),
		TemporarilyClosedAt: c.TemporarilyClosedAt(),
		OfficiallyClosedAt:  c.OfficiallyClosedAt(),
	}
}
