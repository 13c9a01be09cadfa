// Package invoices exposes the admin invoice endpoints.
package invoices

import (
	"context"
	"math"
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
	internalinvoices "github.com/angelmondragon/earnings-ledger/internal/invoices"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/pagination"
)

// Service is the invoice surface the admin API drives.
type Service interface {
	Generate(ctx context.Context, input internalinvoices.GenerateInput) (*models.Invoice, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	Send(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt *time.Time) (*models.Invoice, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Invoice, error)
	List(ctx context.Context, filter internalinvoices.Filter, params pagination.Params) (*internalinvoices.Page, error)
	ListForExport(ctx context.Context, filter internalinvoices.Filter, limit int) ([]models.Invoice, error)
	Summarize(ctx context.Context, resellerID *uuid.UUID, year int) (*internalinvoices.Summary, error)
}

// Invoice is the API representation of an invoice with its line item snapshot.
type Invoice struct {
	ID            string                   `json:"id"`
	ResellerID    string                   `json:"reseller_id"`
	InvoiceNumber string                   `json:"invoice_number"`
	PeriodStart   time.Time                `json:"period_start"`
	PeriodEnd     time.Time                `json:"period_end"`
	Subtotal      decimal.Decimal          `json:"subtotal"`
	TaxAmount     decimal.Decimal          `json:"tax_amount"`
	TotalAmount   decimal.Decimal          `json:"total_amount"`
	Status        string                   `json:"status"`
	IssueDate     time.Time                `json:"issue_date"`
	DueDate       time.Time                `json:"due_date"`
	PaymentDate   *time.Time               `json:"payment_date,omitempty"`
	Description   string                   `json:"description,omitempty"`
	Notes         string                   `json:"notes,omitempty"`
	LineItems     []models.InvoiceLineItem `json:"line_items"`
	CreatedAt     time.Time                `json:"created_at"`
}

func toInvoice(inv *models.Invoice) (Invoice, error) {
	items, err := internalinvoices.LineItems(inv)
	if err != nil {
		return Invoice{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode invoice line items")
	}
	if items == nil {
		items = []models.InvoiceLineItem{}
	}
	return Invoice{
		ID:            inv.ID.String(),
		ResellerID:    inv.ResellerID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		PeriodStart:   inv.PeriodStart,
		PeriodEnd:     inv.PeriodEnd,
		Subtotal:      inv.Subtotal,
		TaxAmount:     inv.TaxAmount,
		TotalAmount:   inv.TotalAmount,
		Status:        string(inv.Status),
		IssueDate:     inv.IssueDate,
		DueDate:       inv.DueDate,
		PaymentDate:   inv.PaymentDate,
		Description:   inv.Description,
		Notes:         inv.Notes,
		LineItems:     items,
		CreatedAt:     inv.CreatedAt,
	}, nil
}

type generateRequest struct {
	ResellerID    string           `json:"reseller_id" validate:"required,uuid"`
	CommissionIDs []string         `json:"commission_ids"`
	PeriodStart   *time.Time       `json:"period_start"`
	PeriodEnd     *time.Time       `json:"period_end"`
	TaxRate       *decimal.Decimal `json:"tax_rate" validate:"omitempty,percent"`
	Notes         string           `json:"notes" validate:"max=1000"`
}

type markPaidRequest struct {
	PaidAt *time.Time `json:"paid_at"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// List returns a page of invoices.
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
		items := make([]Invoice, 0, len(page.Items))
		for i := range page.Items {
			item, err := toInvoice(&page.Items[i])
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			items = append(items, item)
		}
		responses.WritePage(w, items, page.Meta)
	}
}

// Summary totals invoices issued in ?year= (default current), optionally for
// one reseller.
func Summary(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resellerID, err := validators.ParseQueryUUID(r, "reseller_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		year, err := validators.ParseQueryInt(r, "year", 0, 1, math.MaxInt16)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summarize(r.Context(), resellerID, year)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Generate builds a draft invoice from explicit commission ids or a period.
func Generate(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ids, err := controllers.ParseUUIDs(req.CommissionIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoice, err := svc.Generate(r.Context(), internalinvoices.GenerateInput{
			ResellerID:    uuid.MustParse(req.ResellerID),
			CommissionIDs: ids,
			PeriodStart:   req.PeriodStart,
			PeriodEnd:     req.PeriodEnd,
			TaxRate:       req.TaxRate,
			Notes:         req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeInvoice(w, r, logg, http.StatusCreated, invoice)
	}
}

func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withInvoice(logg, func(r *http.Request, id uuid.UUID) (*models.Invoice, error) {
		return svc.Get(r.Context(), id)
	})
}

func Send(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withInvoice(logg, func(r *http.Request, id uuid.UUID) (*models.Invoice, error) {
		return svc.Send(r.Context(), id)
	})
}

// MarkPaid accepts an optional {"paid_at"}; the service defaults it to now.
func MarkPaid(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withInvoice(logg, func(r *http.Request, id uuid.UUID) (*models.Invoice, error) {
		var req markPaidRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
		}
		return svc.MarkPaid(r.Context(), id, req.PaidAt)
	})
}

func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withInvoice(logg, func(r *http.Request, id uuid.UUID) (*models.Invoice, error) {
		var req cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
		}
		return svc.Cancel(r.Context(), id, req.Reason)
	})
}

// Export streams invoices matching the list filter as CSV or XLSX.
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
		controllers.WriteExport(w, r, logg, exports.Invoices(rows), clock())
	}
}

func withInvoice(logg *logger.Logger, fn func(r *http.Request, id uuid.UUID) (*models.Invoice, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseURLUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoice, err := fn(r, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeInvoice(w, r, logg, http.StatusOK, invoice)
	}
}

func writeInvoice(w http.ResponseWriter, r *http.Request, logg *logger.Logger, status int, invoice *models.Invoice) {
	body, err := toInvoice(invoice)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, status, body)
}

func parseFilter(r *http.Request) (internalinvoices.Filter, error) {
	var filter internalinvoices.Filter
	var err error
	if filter.ResellerID, err = validators.ParseQueryUUID(r, "reseller_id"); err != nil {
		return filter, err
	}
	for _, raw := range validators.ParseQueryList(r, "status") {
		status, err := enums.ParseInvoiceStatus(strings.ToLower(raw))
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	from, err := validators.ParseQueryDate(r, "from")
	if err != nil {
		return filter, err
	}
	to, err := validators.ParseQueryDate(r, "to")
	if err != nil {
		return filter, err
	}
	filter.IssuedFrom, filter.IssuedTo = commissions.DateRange(from, to)
	filter.Search = strings.TrimSpace(r.URL.Query().Get("search"))
	return filter, nil
}
