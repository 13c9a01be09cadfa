// Package commissions exposes the admin commission endpoints.
package commissions

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/earnings-ledger/api/controllers"
	"github.com/angelmondragon/earnings-ledger/api/responses"
	"github.com/angelmondragon/earnings-ledger/api/validators"
	internalcommissions "github.com/angelmondragon/earnings-ledger/internal/commissions"
	"github.com/angelmondragon/earnings-ledger/internal/exports"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	dbtypes "github.com/angelmondragon/earnings-ledger/pkg/db/types"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/pagination"
)

// Service is the commission surface the admin API drives.
type Service interface {
	Create(ctx context.Context, input internalcommissions.CreateInput) (*models.Commission, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	Approve(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Commission, error)
	Pay(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	Recalculate(ctx context.Context, id uuid.UUID, rate decimal.Decimal) (*models.Commission, error)
	ApproveMany(ctx context.Context, ids []uuid.UUID) (ledger.BatchResult, error)
	RejectMany(ctx context.Context, ids []uuid.UUID, reason string) (ledger.BatchResult, error)
	PayMany(ctx context.Context, ids []uuid.UUID) (ledger.BatchResult, error)
	ApproveFiltered(ctx context.Context, filter internalcommissions.Filter) (ledger.BatchResult, error)
	RejectFiltered(ctx context.Context, filter internalcommissions.Filter, reason string) (ledger.BatchResult, error)
	List(ctx context.Context, filter internalcommissions.Filter, params pagination.Params) (*internalcommissions.Page, error)
	ListForExport(ctx context.Context, filter internalcommissions.Filter, limit int) ([]models.Commission, error)
	Summarize(ctx context.Context, filter internalcommissions.Filter) (*internalcommissions.Summary, error)
}

// Commission is the API representation of a commission.
type Commission struct {
	ID                   string          `json:"id"`
	ResellerID           string          `json:"reseller_id"`
	TransactionReference string          `json:"transaction_reference"`
	ClientName           string          `json:"client_name,omitempty"`
	ProductName          string          `json:"product_name,omitempty"`
	ClientMetadata       dbtypes.JSON    `json:"client_metadata,omitempty"`
	SaleAmount           decimal.Decimal `json:"sale_amount"`
	CommissionRate       decimal.Decimal `json:"commission_rate"`
	Amount               decimal.Decimal `json:"amount"`
	Status               string          `json:"status"`
	Notes                string          `json:"notes,omitempty"`
	CalculationDate      time.Time       `json:"calculation_date"`
	ApprovalDate         *time.Time      `json:"approval_date,omitempty"`
	PaidDate             *time.Time      `json:"paid_date,omitempty"`
	InvoiceID            *string         `json:"invoice_id,omitempty"`
	PayoutID             *string         `json:"payout_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

func toCommission(c *models.Commission) Commission {
	return Commission{
		ID:                   c.ID.String(),
		ResellerID:           c.ResellerID.String(),
		TransactionReference: c.TransactionReference,
		ClientName:           c.ClientName,
		ProductName:          c.ProductName,
		ClientMetadata:       c.ClientMetadata,
		SaleAmount:           c.SaleAmount,
		CommissionRate:       c.CommissionRate,
		Amount:               c.Amount,
		Status:               string(c.Status),
		Notes:                c.Notes,
		CalculationDate:      c.CalculationDate,
		ApprovalDate:         c.ApprovalDate,
		PaidDate:             c.PaidDate,
		InvoiceID:            controllers.UUIDString(c.InvoiceID),
		PayoutID:             controllers.UUIDString(c.PayoutID),
		CreatedAt:            c.CreatedAt,
	}
}

type createRequest struct {
	ResellerID           string           `json:"reseller_id" validate:"required,uuid"`
	SaleAmount           decimal.Decimal  `json:"sale_amount" validate:"money"`
	CommissionRate       *decimal.Decimal `json:"commission_rate" validate:"omitempty,percent"`
	TransactionReference string           `json:"transaction_reference" validate:"required,max=255"`
	ClientName           string           `json:"client_name" validate:"max=255"`
	ProductName          string           `json:"product_name" validate:"max=255"`
	ClientMetadata       map[string]any   `json:"client_metadata"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type recalculateRequest struct {
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

type filterBody struct {
	ResellerID string           `json:"reseller_id" validate:"omitempty,uuid"`
	Status     []string         `json:"status"`
	MinAmount  *decimal.Decimal `json:"min_amount"`
	MaxAmount  *decimal.Decimal `json:"max_amount"`
	From       *time.Time       `json:"from"`
	To         *time.Time       `json:"to"`
	Search     string           `json:"search"`
}

type bulkRequest struct {
	Action  string      `json:"action" validate:"required,oneof=approve reject pay"`
	IDs     []string    `json:"ids"`
	Filters *filterBody `json:"filters"`
	Reason  string      `json:"reason" validate:"max=500"`
}

// List returns a page of commissions plus totals by status for the same filter.
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
		items := make([]Commission, len(page.Items))
		for i := range page.Items {
			items[i] = toCommission(&page.Items[i])
		}
		responses.WritePage(w, items, page.Meta)
	}
}

// Summary totals commissions matching the list filter by status.
func Summary(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summarize(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Create records a commission for a confirmed sale.
func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commission, err := svc.Create(r.Context(), internalcommissions.CreateInput{
			ResellerID:           uuid.MustParse(req.ResellerID),
			SaleAmount:           req.SaleAmount,
			CommissionRate:       req.CommissionRate,
			TransactionReference: req.TransactionReference,
			ClientName:           req.ClientName,
			ProductName:          req.ProductName,
			ClientMetadata:       req.ClientMetadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toCommission(commission))
	}
}

func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCommission(logg, func(r *http.Request, id uuid.UUID) (*models.Commission, error) {
		return svc.Get(r.Context(), id)
	})
}

func Approve(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCommission(logg, func(r *http.Request, id uuid.UUID) (*models.Commission, error) {
		return svc.Approve(r.Context(), id)
	})
}

func Pay(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCommission(logg, func(r *http.Request, id uuid.UUID) (*models.Commission, error) {
		return svc.Pay(r.Context(), id)
	})
}

// Reject accepts an optional {"reason"} body.
func Reject(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCommission(logg, func(r *http.Request, id uuid.UUID) (*models.Commission, error) {
		var req rejectRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
		}
		return svc.Reject(r.Context(), id, req.Reason)
	})
}

func Recalculate(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCommission(logg, func(r *http.Request, id uuid.UUID) (*models.Commission, error) {
		var req recalculateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Recalculate(r.Context(), id, req.CommissionRate)
	})
}

// Bulk applies one action to explicit ids or to every pending commission
// matching filters. Pay only accepts explicit ids.
func Bulk(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := runBulk(r.Context(), svc, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func runBulk(ctx context.Context, svc Service, req bulkRequest) (ledger.BatchResult, error) {
	if len(req.IDs) > 0 && req.Filters != nil {
		return ledger.BatchResult{}, pkgerrors.New(pkgerrors.CodeValidation, "provide ids or filters, not both")
	}
	if len(req.IDs) > 0 {
		ids, err := controllers.ParseUUIDs(req.IDs)
		if err != nil {
			return ledger.BatchResult{}, err
		}
		switch req.Action {
		case "approve":
			return svc.ApproveMany(ctx, ids)
		case "reject":
			return svc.RejectMany(ctx, ids, req.Reason)
		default:
			return svc.PayMany(ctx, ids)
		}
	}
	if req.Filters == nil {
		return ledger.BatchResult{}, pkgerrors.New(pkgerrors.CodeValidation, "ids or filters required")
	}
	filter, err := req.Filters.toFilter()
	if err != nil {
		return ledger.BatchResult{}, err
	}
	switch req.Action {
	case "approve":
		return svc.ApproveFiltered(ctx, filter)
	case "reject":
		return svc.RejectFiltered(ctx, filter, req.Reason)
	default:
		return ledger.BatchResult{}, pkgerrors.New(pkgerrors.CodeValidation, "pay requires explicit ids")
	}
}

func (f filterBody) toFilter() (internalcommissions.Filter, error) {
	filter := internalcommissions.Filter{
		MinAmount: f.MinAmount,
		MaxAmount: f.MaxAmount,
		Search:    strings.TrimSpace(f.Search),
	}
	if f.ResellerID != "" {
		id, err := uuid.Parse(f.ResellerID)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reseller_id")
		}
		filter.ResellerID = &id
	}
	statuses, err := parseStatuses(f.Status)
	if err != nil {
		return filter, err
	}
	filter.Statuses = statuses
	filter.From, filter.To = internalcommissions.DateRange(f.From, f.To)
	return filter, nil
}

// Export streams commissions matching the list filter as CSV or XLSX.
func Export(svc Service, rowLimit int, clock ledger.Clock, logg *logger.Logger) http.HandlerFunc {
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
		rows, err := svc.ListForExport(r.Context(), filter, rowLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		controllers.WriteExport(w, r, logg, exports.Commissions(rows), clock())
	}
}

func withCommission(logg *logger.Logger, fn func(r *http.Request, id uuid.UUID) (*models.Commission, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseURLUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commission, err := fn(r, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCommission(commission))
	}
}

func parseFilter(r *http.Request) (internalcommissions.Filter, error) {
	var filter internalcommissions.Filter
	var err error
	if filter.ResellerID, err = validators.ParseQueryUUID(r, "reseller_id"); err != nil {
		return filter, err
	}
	if filter.Statuses, err = parseStatuses(validators.ParseQueryList(r, "status")); err != nil {
		return filter, err
	}
	if filter.MinAmount, err = validators.ParseQueryDecimal(r, "min_amount"); err != nil {
		return filter, err
	}
	if filter.MaxAmount, err = validators.ParseQueryDecimal(r, "max_amount"); err != nil {
		return filter, err
	}
	from, err := validators.ParseQueryDate(r, "from")
	if err != nil {
		return filter, err
	}
	to, err := validators.ParseQueryDate(r, "to")
	if err != nil {
		return filter, err
	}
	filter.From, filter.To = internalcommissions.DateRange(from, to)
	filter.Search = strings.TrimSpace(r.URL.Query().Get("search"))
	filter.Uninvoiced = r.URL.Query().Get("uninvoiced") == "true"
	return filter, nil
}

func parseStatuses(values []string) ([]enums.CommissionStatus, error) {
	statuses := make([]enums.CommissionStatus, 0, len(values))
	for _, raw := range values {
		status, err := enums.ParseCommissionStatus(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
