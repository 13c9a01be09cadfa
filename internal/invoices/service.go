package invoices

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/internal/audit"
	"github.com/angelmondragon/earnings-ledger/internal/commissions"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	"github.com/angelmondragon/earnings-ledger/internal/resellers"
	"github.com/angelmondragon/earnings-ledger/pkg/db"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	dbtypes "github.com/angelmondragon/earnings-ledger/pkg/db/types"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/metrics"
	"github.com/angelmondragon/earnings-ledger/pkg/money"
	"github.com/angelmondragon/earnings-ledger/pkg/pagination"
)

const (
	resourceType      = "invoice"
	dateLayout        = "2006-01-02"
	defaultDueDays    = 30
	defaultRetries    = 5
	numberSeqDigits   = 4
	invoiceNumberHint = "invoice_number"
)

var errNumberTaken = errors.New("invoice number taken")

// GenerateInput selects the commissions to invoice. When CommissionIDs is
// empty the period bounds (inclusive calendar dates) are used instead.
type GenerateInput struct {
	ResellerID    uuid.UUID
	CommissionIDs []uuid.UUID
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	TaxRate       *decimal.Decimal
	Notes         string
}

// Service generates invoices from approved commissions and drives their
// billing lifecycle.
type Service struct {
	repo        Repository
	commissions commissions.Repository
	resellers   resellers.Repository
	tx          ledger.TxRunner
	audit       audit.Sink
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
	now         ledger.Clock
	taxRate     decimal.Decimal
	dueDays     int
	retries     int
}

// ServiceParams groups the dependencies of the invoice service.
type ServiceParams struct {
	Repo           Repository
	Commissions    commissions.Repository
	Resellers      resellers.Repository
	Tx             ledger.TxRunner
	Audit          audit.Sink
	Metrics        *metrics.LedgerMetrics
	Logger         *logger.Logger
	Clock          ledger.Clock
	DefaultTaxRate decimal.Decimal
	DueDays        int
	NumberRetries  int
}

// NewService wires the invoice service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if params.Commissions == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if params.Resellers == nil {
		return nil, fmt.Errorf("reseller repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	svc := &Service{
		repo:        params.Repo,
		commissions: params.Commissions,
		resellers:   params.Resellers,
		tx:          params.Tx,
		audit:       params.Audit,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         params.Clock,
		taxRate:     params.DefaultTaxRate,
		dueDays:     params.DueDays,
		retries:     params.NumberRetries,
	}
	if svc.audit == nil {
		svc.audit = audit.Discard
	}
	if svc.now == nil {
		svc.now = ledger.UTCNow
	}
	if svc.dueDays <= 0 {
		svc.dueDays = defaultDueDays
	}
	if svc.retries <= 0 {
		svc.retries = defaultRetries
	}
	return svc, nil
}

// Generate creates a draft invoice over the reseller's approved, uninvoiced
// commissions and links them to it.
func (s *Service) Generate(ctx context.Context, input GenerateInput) (*models.Invoice, error) {
	if err := s.validateGenerate(input); err != nil {
		s.metrics.ObserveOperation("invoice_generate", err)
		return nil, err
	}

	var (
		invoice *models.Invoice
		err     error
	)
	for attempt := 1; attempt <= s.retries; attempt++ {
		invoice, err = s.generateOnce(ctx, input)
		if !errors.Is(err, errNumberTaken) {
			break
		}
		s.logg.Debug(s.logg.WithField(ctx, "attempt", attempt), "invoice number collision, retrying")
	}
	if errors.Is(err, errNumberTaken) {
		err = pkgerrors.New(pkgerrors.CodeConflict, "could not allocate an invoice number")
	}
	s.metrics.ObserveOperation("invoice_generate", err)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:          enums.AuditInvoiceGenerate,
		ResourceType:    resourceType,
		ResourceIDs:     []string{invoice.ID.String()},
		ResourceDisplay: invoice.InvoiceNumber,
		Details: map[string]any{
			"reseller_id":  invoice.ResellerID.String(),
			"total_amount": money.Format(invoice.TotalAmount),
		},
	})
	return invoice, nil
}

func (s *Service) validateGenerate(input GenerateInput) error {
	if input.ResellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reseller_id is required")
	}
	if input.PeriodStart != nil && input.PeriodEnd != nil && input.PeriodEnd.Before(*input.PeriodStart) {
		return pkgerrors.New(pkgerrors.CodeValidation, "period_end must not be before period_start")
	}
	if input.TaxRate != nil && (input.TaxRate.IsNegative() || input.TaxRate.GreaterThan(decimal.NewFromInt(100))) {
		return pkgerrors.New(pkgerrors.CodeValidation, "tax_rate must be between 0 and 100")
	}
	return nil
}

func (s *Service) generateOnce(ctx context.Context, input GenerateInput) (*models.Invoice, error) {
	var created *models.Invoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.resellers.WithTx(tx).LockByID(ctx, input.ResellerID); err != nil {
			return ledger.LoadError(err, "reseller", input.ResellerID)
		}

		var from, to *time.Time
		if len(input.CommissionIDs) == 0 {
			from, to = commissions.DateRange(input.PeriodStart, input.PeriodEnd)
		}
		commissionRepo := s.commissions.WithTx(tx)
		eligible, err := commissionRepo.LockEligibleForInvoice(ctx, input.ResellerID, input.CommissionIDs, from, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load eligible commissions")
		}
		if len(eligible) == 0 {
			return pkgerrors.New(pkgerrors.CodeNoEligible, "no approved, uninvoiced commissions match the selection").
				WithDetails(map[string]any{"reseller_id": input.ResellerID.String()})
		}

		invoice, err := s.build(input, eligible)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		number, err := s.nextNumber(ctx, repo, invoice.IssueDate)
		if err != nil {
			return err
		}
		invoice.InvoiceNumber = number
		if err := repo.Create(ctx, invoice); err != nil {
			if db.IsUniqueViolation(err, invoiceNumberHint) {
				return errNumberTaken
			}
			return ledger.WriteError(err, "create invoice")
		}

		ids := make([]uuid.UUID, len(eligible))
		for i, c := range eligible {
			ids[i] = c.ID
		}
		if err := commissionRepo.SetInvoice(ctx, ids, &invoice.ID); err != nil {
			return ledger.WriteError(err, "link commissions")
		}
		created = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) build(input GenerateInput, eligible []models.Commission) (*models.Invoice, error) {
	issue := ledger.StartOfDay(s.now())
	start := ledger.StartOfDay(eligible[0].CalculationDate)
	end := start
	subtotal := decimal.Zero
	items := make([]models.InvoiceLineItem, 0, len(eligible))
	for _, c := range eligible {
		day := ledger.StartOfDay(c.CalculationDate)
		if day.Before(start) {
			start = day
		}
		if day.After(end) {
			end = day
		}
		subtotal = subtotal.Add(c.Amount)
		items = append(items, models.InvoiceLineItem{
			CommissionID: c.ID,
			Description:  fmt.Sprintf("%s - %s", c.ProductName, c.ClientName),
			Amount:       money.Format(c.Amount),
			Reference:    c.TransactionReference,
			Date:         c.CalculationDate.UTC().Format(dateLayout),
		})
	}
	if input.PeriodStart != nil {
		start = ledger.StartOfDay(*input.PeriodStart)
	}
	if input.PeriodEnd != nil {
		end = ledger.StartOfDay(*input.PeriodEnd)
	}

	rate := s.taxRate
	if input.TaxRate != nil {
		rate = *input.TaxRate
	}
	subtotal = money.Round(subtotal)
	tax := money.Percent(subtotal, rate)

	lineItems, err := dbtypes.MarshalJSONValue(items)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode line items")
	}
	return &models.Invoice{
		ResellerID:  input.ResellerID,
		PeriodStart: start,
		PeriodEnd:   end,
		Subtotal:    subtotal,
		TaxAmount:   tax,
		TotalAmount: money.Round(subtotal.Add(tax)),
		Status:      enums.InvoiceStatusDraft,
		IssueDate:   issue,
		DueDate:     issue.AddDate(0, 0, s.dueDays),
		Description: fmt.Sprintf("Commission invoice for %s to %s", start.Format(dateLayout), end.Format(dateLayout)),
		Notes:       strings.TrimSpace(input.Notes),
		LineItems:   lineItems,
	}, nil
}

// NumberPrefix is the per-month invoice number prefix, e.g. INV-202603-.
func NumberPrefix(issue time.Time) string {
	return fmt.Sprintf("INV-%04d%02d-", issue.Year(), int(issue.Month()))
}

func (s *Service) nextNumber(ctx context.Context, repo Repository, issue time.Time) (string, error) {
	prefix := NumberPrefix(issue)
	last, err := repo.LastNumberWithPrefix(ctx, prefix)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read invoice sequence")
	}
	seq := 1
	if last != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(last, prefix))
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse invoice sequence")
		}
		seq = n + 1
	}
	return fmt.Sprintf("%s%0*d", prefix, numberSeqDigits, seq), nil
}

// Get returns one invoice.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ledger.LoadError(err, resourceType, id)
	}
	return invoice, nil
}

// LineItems decodes the invoice's line item snapshot.
func LineItems(invoice *models.Invoice) ([]models.InvoiceLineItem, error) {
	var items []models.InvoiceLineItem
	if err := invoice.LineItems.Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}

// Send marks a draft (or re-sends a sent) invoice as sent.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var sent *models.Invoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := repo.LockByID(ctx, id)
		if err != nil {
			return ledger.LoadError(err, resourceType, id)
		}
		if invoice.Status != enums.InvoiceStatusDraft && invoice.Status != enums.InvoiceStatusSent {
			return ledger.InvalidState(resourceType, id, string(invoice.Status), "send")
		}
		invoice.Status = enums.InvoiceStatusSent
		if err := repo.Save(ctx, invoice); err != nil {
			return ledger.WriteError(err, "send invoice")
		}
		sent = invoice
		return nil
	})
	s.metrics.ObserveOperation("invoice_send", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditInvoiceSend, sent, nil)
	return sent, nil
}

// MarkPaid settles the invoice and every commission linked to it. Approved
// commissions that no payout has reserved are converted out of pending.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, paidAt *time.Time) (*models.Invoice, error) {
	var (
		paid      *models.Invoice
		converted = decimal.Zero
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return ledger.LoadError(err, resourceType, id)
		}
		resellerRepo := s.resellers.WithTx(tx)
		reseller, err := resellerRepo.LockByID(ctx, current.ResellerID)
		if err != nil {
			return ledger.LoadError(err, "reseller", current.ResellerID)
		}
		invoice, err := repo.LockByID(ctx, id)
		if err != nil {
			return ledger.LoadError(err, resourceType, id)
		}
		if invoice.Status == enums.InvoiceStatusPaid || invoice.Status == enums.InvoiceStatusCancelled {
			return ledger.InvalidState(resourceType, id, string(invoice.Status), "mark paid")
		}

		when := s.now()
		if paidAt != nil {
			when = paidAt.UTC()
		}
		commissionRepo := s.commissions.WithTx(tx)
		linked, err := commissionRepo.LockByInvoice(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice commissions")
		}
		settle := make([]uuid.UUID, 0, len(linked))
		for _, c := range linked {
			if c.Status != enums.CommissionStatusApproved {
				continue
			}
			if c.PayoutID == nil {
				if err := ledger.Convert(reseller, c.Amount); err != nil {
					return err
				}
				converted = converted.Add(c.Amount)
			}
			settle = append(settle, c.ID)
		}
		if err := commissionRepo.MarkPaid(ctx, settle, when); err != nil {
			return ledger.WriteError(err, "mark commissions paid")
		}
		if converted.IsPositive() {
			if err := resellerRepo.SaveBalances(ctx, reseller); err != nil {
				return ledger.WriteError(err, "save reseller balances")
			}
		}

		invoice.Status = enums.InvoiceStatusPaid
		invoice.PaymentDate = &when
		if err := repo.Save(ctx, invoice); err != nil {
			return ledger.WriteError(err, "mark invoice paid")
		}
		paid = invoice
		return nil
	})
	s.metrics.ObserveOperation("invoice_mark_paid", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditInvoiceMarkPaid, paid, map[string]any{"converted": money.Format(converted)})
	return paid, nil
}

// Cancel voids an unpaid invoice and frees its commissions for re-invoicing.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Invoice, error) {
	reason = strings.TrimSpace(reason)
	var (
		cancelled *models.Invoice
		unlinked  int64
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := repo.LockByID(ctx, id)
		if err != nil {
			return ledger.LoadError(err, resourceType, id)
		}
		if invoice.Status == enums.InvoiceStatusPaid || invoice.Status == enums.InvoiceStatusCancelled {
			return ledger.InvalidState(resourceType, id, string(invoice.Status), "cancel")
		}
		invoice.Status = enums.InvoiceStatusCancelled
		if reason != "" {
			invoice.Notes = "Cancelled: " + reason
		}
		if err := repo.Save(ctx, invoice); err != nil {
			return ledger.WriteError(err, "cancel invoice")
		}
		unlinked, err = s.commissions.WithTx(tx).ClearInvoice(ctx, id)
		if err != nil {
			return ledger.WriteError(err, "unlink commissions")
		}
		cancelled = invoice
		return nil
	})
	s.metrics.ObserveOperation("invoice_cancel", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditInvoiceCancel, cancelled, map[string]any{"reason": reason, "unlinked": unlinked})
	return cancelled, nil
}

// SweepOverdue flips sent invoices whose due date is before today to overdue
// and returns how many changed.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	ids, err := s.repo.MarkOverdue(ctx, ledger.StartOfDay(s.now()))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sweep overdue invoices")
	}
	if len(ids) > 0 {
		resourceIDs := make([]string, len(ids))
		for i, id := range ids {
			resourceIDs[i] = id.String()
		}
		s.audit.Record(ctx, audit.Entry{
			Action:       enums.AuditInvoiceMarkOverdue,
			ResourceType: resourceType,
			ResourceIDs:  resourceIDs,
			Details:      map[string]any{"count": len(ids)},
		})
	}
	return len(ids), nil
}

func (s *Service) record(ctx context.Context, action enums.AuditAction, invoice *models.Invoice, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["reseller_id"] = invoice.ResellerID.String()
	details["status"] = invoice.Status
	details["total_amount"] = money.Format(invoice.TotalAmount)
	s.audit.Record(ctx, audit.Entry{
		Action:          action,
		ResourceType:    resourceType,
		ResourceIDs:     []string{invoice.ID.String()},
		ResourceDisplay: invoice.InvoiceNumber,
		Details:         details,
	})
}

// Page is one page of invoices.
type Page struct {
	Items []models.Invoice
	Meta  pagination.Meta
}

// List returns invoices matching filter, newest first.
func (s *Service) List(ctx context.Context, filter Filter, params pagination.Params) (*Page, error) {
	rows, total, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list invoices")
	}
	return &Page{Items: rows, Meta: pagination.NewMeta(params, total)}, nil
}

// ListForExport returns up to limit invoices matching filter.
func (s *Service) ListForExport(ctx context.Context, filter Filter, limit int) ([]models.Invoice, error) {
	rows, err := s.repo.ListForExport(ctx, filter, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list invoices for export")
	}
	return rows, nil
}

// StatusTotal is the count and billed amount of invoices in one status.
type StatusTotal struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary aggregates a reseller's invoices for one calendar year.
type Summary struct {
	Year        int                                  `json:"year"`
	Count       int                                  `json:"count"`
	TotalBilled decimal.Decimal                      `json:"total_billed"`
	TotalPaid   decimal.Decimal                      `json:"total_paid"`
	Outstanding decimal.Decimal                      `json:"outstanding"`
	ByStatus    map[enums.InvoiceStatus]*StatusTotal `json:"by_status"`
}

// Summarize totals invoices issued in year, optionally for one reseller.
func (s *Service) Summarize(ctx context.Context, resellerID *uuid.UUID, year int) (*Summary, error) {
	if year <= 0 {
		year = s.now().Year()
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0).Add(-time.Nanosecond)
	rows, err := s.repo.ListTotals(ctx, Filter{ResellerID: resellerID, IssuedFrom: &from, IssuedTo: &to})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summarize invoices")
	}

	summary := &Summary{
		Year:        year,
		TotalBilled: decimal.Zero,
		TotalPaid:   decimal.Zero,
		Outstanding: decimal.Zero,
		ByStatus:    make(map[enums.InvoiceStatus]*StatusTotal),
	}
	for _, status := range enums.InvoiceStatusValues() {
		summary.ByStatus[status] = &StatusTotal{Amount: decimal.Zero}
	}
	for _, row := range rows {
		bucket := summary.ByStatus[row.Status]
		if bucket == nil {
			bucket = &StatusTotal{Amount: decimal.Zero}
			summary.ByStatus[row.Status] = bucket
		}
		bucket.Count++
		bucket.Amount = bucket.Amount.Add(row.TotalAmount)
		summary.Count++
		switch row.Status {
		case enums.InvoiceStatusCancelled:
			continue
		case enums.InvoiceStatusPaid:
			summary.TotalPaid = summary.TotalPaid.Add(row.TotalAmount)
		default:
			summary.Outstanding = summary.Outstanding.Add(row.TotalAmount)
		}
		summary.TotalBilled = summary.TotalBilled.Add(row.TotalAmount)
	}
	return summary, nil
}
