package transactions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/earnings-ledger/internal/exports"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/money"
	"github.com/angelmondragon/earnings-ledger/pkg/pagination"
)

const (
	defaultScanLimit = 10000
	invoiceMethod    = "invoice"
	sourceInvoice    = "invoice"
	sourcePayout     = "payout"
)

// Entry is one line of the unified transaction feed.
type Entry struct {
	ID           string                `json:"id"`
	Type         enums.TransactionType `json:"type"`
	Source       string                `json:"source"`
	Amount       decimal.Decimal       `json:"amount"`
	Method       string                `json:"method"`
	Status       string                `json:"status"`
	Date         time.Time             `json:"date"`
	Counterparty string                `json:"counterparty"`
}

// Filter selects feed entries. Window bounds and the amount range are applied
// by the database; the rest after the two sources are merged.
type Filter struct {
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Type      enums.TransactionType
	Status    string
	Method    string
	Search    string
}

// Summary totals a filtered feed. TotalOutgoing is a positive magnitude.
type Summary struct {
	TotalIncoming    decimal.Decimal `json:"total_incoming"`
	TotalOutgoing    decimal.Decimal `json:"total_outgoing"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	TransactionCount int             `json:"transaction_count"`
}

// Page is one page of the feed plus totals over every matching entry.
type Page struct {
	Items   []Entry
	Meta    pagination.Meta
	Summary Summary
}

// Service merges paid invoices and live payouts into one chronological feed.
// It holds no state between calls.
type Service struct {
	repo      Repository
	logg      *logger.Logger
	scanLimit int
}

// NewService wires the feed reconciler. scanLimit caps each source query.
func NewService(repo Repository, logg *logger.Logger, scanLimit int) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if scanLimit <= 0 {
		scanLimit = defaultScanLimit
	}
	return &Service{repo: repo, logg: logg, scanLimit: scanLimit}, nil
}

// List returns one page of the feed, newest first, with its summary.
func (s *Service) List(ctx context.Context, filter Filter, params pagination.Params) (*Page, error) {
	entries, err := s.Entries(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Page{
		Items:   pagination.Slice(entries, params),
		Meta:    pagination.NewMeta(params, int64(len(entries))),
		Summary: Summarize(entries),
	}, nil
}

// Summary totals every entry matching filter.
func (s *Service) Summary(ctx context.Context, filter Filter) (*Summary, error) {
	entries, err := s.Entries(ctx, filter)
	if err != nil {
		return nil, err
	}
	summary := Summarize(entries)
	return &summary, nil
}

// Entries returns the full filtered feed, newest first.
func (s *Service) Entries(ctx context.Context, filter Filter) ([]Entry, error) {
	if err := validate(filter); err != nil {
		return nil, err
	}
	from, to := window(filter)
	w := Window{From: from, To: to, MinAmount: filter.MinAmount, MaxAmount: filter.MaxAmount}

	var entries []Entry
	if filter.Type == "" || filter.Type == enums.TransactionTypeIncoming {
		invoices, err := s.repo.PaidInvoices(ctx, w, s.scanLimit)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load paid invoices")
		}
		s.warnIfCapped(ctx, sourceInvoice, len(invoices))
		for _, row := range invoices {
			entries = append(entries, fromInvoice(row))
		}
	}
	if filter.Type == "" || filter.Type == enums.TransactionTypeOutgoing {
		payouts, err := s.repo.ActivePayouts(ctx, w, s.scanLimit)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payouts")
		}
		s.warnIfCapped(ctx, sourcePayout, len(payouts))
		for _, row := range payouts {
			entries = append(entries, fromPayout(row))
		}
	}

	entries = applyFilter(entries, filter)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (s *Service) warnIfCapped(ctx context.Context, source string, n int) {
	if n >= s.scanLimit {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"source": source, "limit": s.scanLimit}), "transaction feed scan limit reached; results are truncated")
	}
}

func validate(filter Filter) error {
	if filter.Type != "" && !filter.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown transaction type %q", filter.Type)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end date must not be before start date")
	}
	if filter.MinAmount != nil && filter.MaxAmount != nil && filter.MaxAmount.LessThan(*filter.MinAmount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "max_amount must not be below min_amount")
	}
	return nil
}

// window widens the calendar dates of filter to whole UTC days.
func window(filter Filter) (*time.Time, *time.Time) {
	var from, to *time.Time
	if filter.From != nil {
		v := ledger.StartOfDay(*filter.From)
		from = &v
	}
	if filter.To != nil {
		v := ledger.StartOfDay(*filter.To).Add(24*time.Hour - time.Nanosecond)
		to = &v
	}
	return from, to
}

func fromInvoice(row InvoiceRow) Entry {
	entry := Entry{
		ID:           "inv-" + row.ID.String(),
		Type:         enums.TransactionTypeIncoming,
		Source:       sourceInvoice,
		Amount:       money.Round(row.TotalAmount),
		Method:       invoiceMethod,
		Status:       string(row.Status),
		Counterparty: row.Counterparty,
	}
	if row.PaymentDate != nil {
		entry.Date = row.PaymentDate.UTC()
	}
	return entry
}

func fromPayout(row PayoutRow) Entry {
	date := row.RequestDate
	switch {
	case row.CompletionDate != nil:
		date = *row.CompletionDate
	case row.ProcessDate != nil:
		date = *row.ProcessDate
	}
	return Entry{
		ID:           "pay-" + row.ID.String(),
		Type:         enums.TransactionTypeOutgoing,
		Source:       sourcePayout,
		Amount:       money.Round(row.Amount).Neg(),
		Method:       string(row.PaymentMethod),
		Status:       string(row.Status),
		Date:         date.UTC(),
		Counterparty: row.Counterparty,
	}
}

func applyFilter(entries []Entry, filter Filter) []Entry {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := entries[:0]
	for _, e := range entries {
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Method != "" && e.Method != filter.Method {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(e.Counterparty), search) &&
			!strings.Contains(strings.ToLower(e.ID), search) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Summarize totals entries by direction.
func Summarize(entries []Entry) Summary {
	summary := Summary{TotalIncoming: decimal.Zero, TotalOutgoing: decimal.Zero}
	for _, e := range entries {
		switch e.Type {
		case enums.TransactionTypeIncoming:
			summary.TotalIncoming = summary.TotalIncoming.Add(e.Amount)
		case enums.TransactionTypeOutgoing:
			summary.TotalOutgoing = summary.TotalOutgoing.Add(e.Amount.Neg())
		}
	}
	summary.NetAmount = summary.TotalIncoming.Sub(summary.TotalOutgoing)
	summary.TransactionCount = len(entries)
	return summary
}

// Table lays out feed entries for export.
func Table(entries []Entry) exports.Table {
	table := exports.Table{
		Name:    "transactions",
		Columns: []string{"ID", "Type", "Amount", "Method", "Status", "Date", "Counterparty"},
		Rows:    make([][]string, 0, len(entries)),
	}
	for _, e := range entries {
		table.Rows = append(table.Rows, []string{
			e.ID,
			string(e.Type),
			money.Format(e.Amount),
			e.Method,
			e.Status,
			exports.FormatTime(e.Date),
			e.Counterparty,
		})
	}
	return table
}
