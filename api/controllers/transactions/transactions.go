// Package transactions exposes the read-only transaction feed.
package transactions

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/earnings-ledger/api/controllers"
	"github.com/angelmondragon/earnings-ledger/api/responses"
	"github.com/angelmondragon/earnings-ledger/api/validators"
	"github.com/angelmondragon/earnings-ledger/internal/commissions"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	internaltransactions "github.com/angelmondragon/earnings-ledger/internal/transactions"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/pagination"
)

const defaultVolumeDays = 30

// Service is the feed surface the admin API reads.
type Service interface {
	List(ctx context.Context, filter internaltransactions.Filter, params pagination.Params) (*internaltransactions.Page, error)
	Summary(ctx context.Context, filter internaltransactions.Filter) (*internaltransactions.Summary, error)
	Entries(ctx context.Context, filter internaltransactions.Filter) ([]internaltransactions.Entry, error)
	Volume(ctx context.Context, from, to time.Time, interval internaltransactions.Interval) ([]internaltransactions.VolumePoint, error)
	MethodBreakdown(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error)
}

type listResponse struct {
	Items   []internaltransactions.Entry `json:"items"`
	Summary internaltransactions.Summary `json:"summary"`
}

// List returns a page of the feed with totals over every matching entry.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := page.Items
		if items == nil {
			items = []internaltransactions.Entry{}
		}
		responses.WritePage(w, listResponse{Items: items, Summary: page.Summary}, page.Meta)
	}
}

func Summary(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Volume buckets settled money by ?interval= over from..to, defaulting to the
// last 30 days.
func Volume(svc Service, clock ledger.Clock, logg *logger.Logger) http.HandlerFunc {
	if clock == nil {
		clock = ledger.UTCNow
	}
	return func(w http.ResponseWriter, r *http.Request) {
		interval, err := internaltransactions.ParseInterval(strings.ToLower(r.URL.Query().Get("interval")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, to, err := settledWindow(r, clock())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		points, err := svc.Volume(r.Context(), from, to, interval)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, points)
	}
}

// Methods totals completed payouts by payment method over from..to.
func Methods(svc Service, clock ledger.Clock, logg *logger.Logger) http.HandlerFunc {
	if clock == nil {
		clock = ledger.UTCNow
	}
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, err := settledWindow(r, clock())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		totals, err := svc.MethodBreakdown(r.Context(), from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, totals)
	}
}

// Export streams the filtered feed as CSV or XLSX.
func Export(svc Service, clock ledger.Clock, logg *logger.Logger) http.HandlerFunc {
	if clock == nil {
		clock = ledger.UTCNow
	}
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := controllers.ExportFormat(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.Entries(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		controllers.WriteExport(w, r, logg, internaltransactions.Table(entries), clock())
	}
}

func settledWindow(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	from, err := validators.ParseQueryDate(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := validators.ParseQueryDate(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to == nil {
		to = &now
	}
	if from == nil {
		start := to.AddDate(0, 0, -defaultVolumeDays)
		from = &start
	}
	start, end := commissions.DateRange(from, to)
	return *start, *end, nil
}

func parseFilter(r *http.Request) (internaltransactions.Filter, error) {
	var filter internaltransactions.Filter
	var err error
	if filter.From, err = validators.ParseQueryDate(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = validators.ParseQueryDate(r, "to"); err != nil {
		return filter, err
	}
	if filter.MinAmount, err = validators.ParseQueryDecimal(r, "min_amount"); err != nil {
		return filter, err
	}
	if filter.MaxAmount, err = validators.ParseQueryDecimal(r, "max_amount"); err != nil {
		return filter, err
	}
	q := r.URL.Query()
	if raw := strings.ToLower(strings.TrimSpace(q.Get("type"))); raw != "" {
		kind, err := enums.ParseTransactionType(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter")
		}
		filter.Type = kind
	}
	filter.Status = strings.ToLower(strings.TrimSpace(q.Get("status")))
	filter.Method = strings.ToLower(strings.TrimSpace(q.Get("method")))
	filter.Search = strings.TrimSpace(q.Get("search"))
	return filter, nil
}
