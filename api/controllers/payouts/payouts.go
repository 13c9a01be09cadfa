// Package payouts exposes the admin payout endpoints.
package payouts

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
	"github.com/angelmondragon/earnings-ledger/internal/commissions"
	"github.com/angelmondragon/earnings-ledger/internal/exports"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	internalpayouts "github.com/angelmondragon/earnings-ledger/internal/payouts"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/pagination"
)

const (
	batchCommissionBased = "commission_based"
	batchManual          = "manual"
)

// Service is the payout surface the admin API drives.
type Service interface {
	Request(ctx context.Context, input internalpayouts.RequestInput) (*models.Payout, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	Process(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	Complete(ctx context.Context, id uuid.UUID, transactionID string) (*models.Payout, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) (*models.Payout, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Payout, error)
	ProcessMany(ctx context.Context, ids []uuid.UUID) (ledger.BatchResult, error)
	CompleteMany(ctx context.Context, ids []uuid.UUID) (ledger.BatchResult, error)
	FailMany(ctx context.Context, ids []uuid.UUID, reason string) (ledger.BatchResult, error)
	CancelMany(ctx context.Context, ids []uuid.UUID, reason string) (ledger.BatchResult, error)
	CreateCommissionBased(ctx context.Context, input internalpayouts.BatchInput) (*internalpayouts.BatchCreateResult, error)
	CreateManualBatch(ctx context.Context, entries []internalpayouts.ManualEntry) (*internalpayouts.BatchCreateResult, error)
	List(ctx context.Context, filter internalpayouts.Filter, params pagination.Params) (*internalpayouts.Page, error)
	ListForExport(ctx context.Context, filter internalpayouts.Filter, limit int) ([]models.Payout, error)
	Summarize(ctx context.Context, resellerID uuid.UUID) (*internalpayouts.Summary, error)
}

// Payout is the API representation of a payout.
type Payout struct {
	ID              string          `json:"id"`
	ResellerID      string          `json:"reseller_id"`
	InvoiceID       *string         `json:"invoice_id,omitempty"`
	ReferenceNumber string          `json:"reference_number"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionFee  decimal.Decimal `json:"transaction_fee"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentDetails  any             `json:"payment_details,omitempty"`
	Status          string          `json:"status"`
	RequestDate     time.Time       `json:"request_date"`
	ProcessDate     *time.Time      `json:"process_date,omitempty"`
	CompletionDate  *time.Time      `json:"completion_date,omitempty"`
	TransactionID   *string         `json:"transaction_id,omitempty"`
	FailureReason   *string         `json:"failure_reason,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func toPayout(p *models.Payout) Payout {
	out := Payout{
		ID:              p.ID.String(),
		ResellerID:      p.ResellerID.String(),
		InvoiceID:       controllers.UUIDString(p.InvoiceID),
		ReferenceNumber: p.ReferenceNumber,
		Amount:          p.Amount,
		TransactionFee:  p.TransactionFee,
		NetAmount:       p.NetAmount,
		PaymentMethod:   string(p.PaymentMethod),
		Status:          string(p.Status),
		RequestDate:     p.RequestDate,
		ProcessDate:     p.ProcessDate,
		CompletionDate:  p.CompletionDate,
		TransactionID:   p.TransactionID,
		FailureReason:   p.FailureReason,
		Notes:           p.Notes,
		CreatedAt:       p.CreatedAt,
	}
	if len(p.PaymentDetails) > 0 {
		out.PaymentDetails = p.PaymentDetails
	}
	return out
}

type requestBody struct {
	ResellerID     string          `json:"reseller_id" validate:"required,uuid"`
	Amount         decimal.Decimal `json:"amount" validate:"money"`
	PaymentMethod  string          `json:"payment_method" validate:"required"`
	PaymentDetails map[string]any  `json:"payment_details"`
	Notes          string          `json:"notes" validate:"max=1000"`
	CommissionIDs  []string        `json:"commission_ids"`
}

type manualEntryBody struct {
	ResellerID     string          `json:"reseller_id" validate:"required,uuid"`
	Amount         decimal.Decimal `json:"amount" validate:"money"`
	PaymentMethod  string          `json:"payment_method" validate:"required"`
	PaymentDetails map[string]any  `json:"payment_details"`
	Notes          string          `json:"notes" validate:"max=1000"`
}

type batchBody struct {
	Type           string            `json:"type" validate:"required,oneof=commission_based manual"`
	MinAmount      *decimal.Decimal  `json:"min_amount" validate:"omitempty,money"`
	ResellerIDs    []string          `json:"reseller_ids"`
	PaymentMethod  string            `json:"payment_method"`
	PaymentDetails map[string]any    `json:"payment_details"`
	Entries        []manualEntryBody `json:"entries" validate:"dive"`
}

type bulkBody struct {
	Action string   `json:"action" validate:"required,oneof=process complete fail cancel"`
	IDs    []string `json:"ids" validate:"required,min=1"`
	Reason string   `json:"reason" validate:"max=500"`
}

type completeBody struct {
	TransactionID string `json:"transaction_id" validate:"max=255"`
}

type reasonBody struct {
	Reason string `json:"reason" validate:"max=500"`
}

// List returns a page of payouts.
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
		items := make([]Payout, 0, len(page.Items))
		for i := range page.Items {
			items = append(items, toPayout(&page.Items[i]))
		}
		responses.WritePage(w, items, page.Meta)
	}
}

// Summary reports one reseller's payout position; reseller_id is required.
func Summary(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resellerID, err := validators.ParseQueryUUID(r, "reseller_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if resellerID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reseller_id is required"))
			return
		}
		summary, err := svc.Summarize(r.Context(), *resellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Request reserves a payout against the reseller's available balance.
func Request(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req requestBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := parseMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ids, err := controllers.ParseUUIDs(req.CommissionIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.Request(r.Context(), internalpayouts.RequestInput{
			ResellerID:     uuid.MustParse(req.ResellerID),
			Amount:         req.Amount,
			Method:         method,
			PaymentDetails: req.PaymentDetails,
			Notes:          req.Notes,
			CommissionIDs:  ids,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPayout(payout))
	}
}

// Batch creates payouts either from resellers' balances or from manual entries.
func Batch(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var (
			result *internalpayouts.BatchCreateResult
			err    error
		)
		switch req.Type {
		case batchCommissionBased:
			var input internalpayouts.BatchInput
			if input, err = commissionBatchInput(req); err == nil {
				result, err = svc.CreateCommissionBased(r.Context(), input)
			}
		case batchManual:
			var entries []internalpayouts.ManualEntry
			if entries, err = manualEntries(req.Entries); err == nil {
				result, err = svc.CreateManualBatch(r.Context(), entries)
			}
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		logg.Info(logg.WithFields(r.Context(), map[string]any{
			"batch_type":    req.Type,
			"created_count": result.CreatedCount,
			"failed_count":  result.FailedCount,
		}), "payout batch created")
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func commissionBatchInput(req batchBody) (internalpayouts.BatchInput, error) {
	input := internalpayouts.BatchInput{MinAmount: req.MinAmount, PaymentDetails: req.PaymentDetails}
	if req.PaymentMethod != "" {
		method, err := parseMethod(req.PaymentMethod)
		if err != nil {
			return input, err
		}
		input.Method = method
	}
	ids, err := controllers.ParseUUIDs(req.ResellerIDs)
	if err != nil {
		return input, err
	}
	input.ResellerIDs = ids
	return input, nil
}

func manualEntries(body []manualEntryBody) ([]internalpayouts.ManualEntry, error) {
	if len(body) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entries are required for a manual batch")
	}
	entries := make([]internalpayouts.ManualEntry, 0, len(body))
	for _, e := range body {
		method, err := parseMethod(e.PaymentMethod)
		if err != nil {
			return nil, err
		}
		entries = append(entries, internalpayouts.ManualEntry{
			ResellerID:     uuid.MustParse(e.ResellerID),
			Amount:         e.Amount,
			Method:         method,
			PaymentDetails: e.PaymentDetails,
			Notes:          e.Notes,
		})
	}
	return entries, nil
}

// Bulk applies one transition to each listed payout.
func Bulk(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ids, err := controllers.ParseUUIDs(req.IDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var result ledger.BatchResult
		switch req.Action {
		case "process":
			result, err = svc.ProcessMany(r.Context(), ids)
		case "complete":
			result, err = svc.CompleteMany(r.Context(), ids)
		case "fail":
			result, err = svc.FailMany(r.Context(), ids, req.Reason)
		case "cancel":
			result, err = svc.CancelMany(r.Context(), ids, req.Reason)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withPayout(logg, func(r *http.Request, id uuid.UUID) (*models.Payout, error) {
		return svc.Get(r.Context(), id)
	})
}

func Process(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withPayout(logg, func(r *http.Request, id uuid.UUID) (*models.Payout, error) {
		return svc.Process(r.Context(), id)
	})
}

// Complete settles a processing payout; transaction_id is the external reference.
func Complete(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withPayout(logg, func(r *http.Request, id uuid.UUID) (*models.Payout, error) {
		var req completeBody
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
		}
		return svc.Complete(r.Context(), id, strings.TrimSpace(req.TransactionID))
	})
}

func Fail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withPayout(logg, func(r *http.Request, id uuid.UUID) (*models.Payout, error) {
		reason, err := decodeReason(r)
		if err != nil {
			return nil, err
		}
		return svc.Fail(r.Context(), id, reason)
	})
}

func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withPayout(logg, func(r *http.Request, id uuid.UUID) (*models.Payout, error) {
		reason, err := decodeReason(r)
		if err != nil {
			return nil, err
		}
		return svc.Cancel(r.Context(), id, reason)
	})
}

// Export streams payouts matching the list filter as CSV or XLSX.
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
		controllers.WriteExport(w, r, logg, exports.Payouts(rows), clock())
	}
}

func decodeReason(r *http.Request) (string, error) {
	var req reasonBody
	if r.ContentLength != 0 {
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(req.Reason), nil
}

func withPayout(logg *logger.Logger, fn func(r *http.Request, id uuid.UUID) (*models.Payout, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseURLUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := fn(r, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPayout(payout))
	}
}

func parseMethod(raw string) (enums.PayoutMethod, error) {
	method, err := enums.ParsePayoutMethod(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method")
	}
	return method, nil
}

func parseFilter(r *http.Request) (internalpayouts.Filter, error) {
	var filter internalpayouts.Filter
	var err error
	if filter.ResellerID, err = validators.ParseQueryUUID(r, "reseller_id"); err != nil {
		return filter, err
	}
	for _, raw := range validators.ParseQueryList(r, "status") {
		status, err := enums.ParsePayoutStatus(strings.ToLower(raw))
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, raw := range validators.ParseQueryList(r, "method") {
		method, err := parseMethod(raw)
		if err != nil {
			return filter, err
		}
		filter.Methods = append(filter.Methods, method)
	}
	from, err := validators.ParseQueryDate(r, "from")
	if err != nil {
		return filter, err
	}
	to, err := validators.ParseQueryDate(r, "to")
	if err != nil {
		return filter, err
	}
	filter.From, filter.To = commissions.DateRange(from, to)
	filter.Search = strings.TrimSpace(r.URL.Query().Get("search"))
	return filter, nil
}
