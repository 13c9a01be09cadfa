package commissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/internal/audit"
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
	defaultBulkLimit = 100
	resourceType     = "commission"
)

var maxRate = decimal.NewFromInt(100)

// CreateInput describes a confirmed sale attributed to a reseller.
type CreateInput struct {
	ResellerID           uuid.UUID
	SaleAmount           decimal.Decimal
	CommissionRate       *decimal.Decimal
	TransactionReference string
	ClientName           string
	ProductName          string
	ClientMetadata       map[string]any
}

// Service runs the commission lifecycle and keeps the reseller pending balance
// in step with it.
type Service struct {
	repo      Repository
	resellers resellers.Repository
	tx        ledger.TxRunner
	audit     audit.Sink
	batch     *ledger.BatchRunner
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	now       ledger.Clock
	bulkLimit int
}

// ServiceParams groups the dependencies of the commission service.
type ServiceParams struct {
	Repo      Repository
	Resellers resellers.Repository
	Tx        ledger.TxRunner
	Audit     audit.Sink
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
	Clock     ledger.Clock
	BulkLimit int
}

// NewService wires the commission service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
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
		repo:      params.Repo,
		resellers: params.Resellers,
		tx:        params.Tx,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       params.Clock,
		bulkLimit: params.BulkLimit,
	}
	if svc.audit == nil {
		svc.audit = audit.Discard
	}
	if svc.now == nil {
		svc.now = ledger.UTCNow
	}
	if svc.bulkLimit <= 0 {
		svc.bulkLimit = defaultBulkLimit
	}
	svc.batch = ledger.NewBatchRunner(params.Logger, params.Metrics)
	return svc, nil
}

// Create records a pending commission for a sale and reserves its amount on
// the reseller. A transaction reference can only ever be recorded once.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Commission, error) {
	commission, err := s.create(ctx, input)
	s.metrics.ObserveOperation("commission_create", err)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action:          enums.AuditCommissionCreate,
		ResourceType:    resourceType,
		ResourceIDs:     []string{commission.ID.String()},
		ResourceDisplay: commission.TransactionReference,
		Details: map[string]any{
			"reseller_id": commission.ResellerID.String(),
			"amount":      money.Format(commission.Amount),
			"rate":        money.Format(commission.CommissionRate),
		},
	})
	return commission, nil
}

func (s *Service) create(ctx context.Context, input CreateInput) (*models.Commission, error) {
	reference := strings.TrimSpace(input.TransactionReference)
	if err := validateCreate(input, reference); err != nil {
		return nil, err
	}
	metadata, err := encodeMetadata(input.ClientMetadata)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByReference(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check transaction reference")
	}
	if exists {
		return nil, duplicate(reference)
	}

	var created *models.Commission
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		resellerRepo := s.resellers.WithTx(tx)
		reseller, err := resellerRepo.LockByID(ctx, input.ResellerID)
		if err != nil {
			return ledger.LoadError(err, "reseller", input.ResellerID)
		}
		if !reseller.IsActive {
			return pkgerrors.Newf(pkgerrors.CodeInvalidState, "reseller %s is inactive", reseller.ID)
		}

		rate := reseller.CommissionRate
		if input.CommissionRate != nil {
			rate = money.Round(*input.CommissionRate)
		}
		sale := money.Round(input.SaleAmount)
		amount := money.Percent(sale, rate)
		if !amount.IsPositive() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "commission on %s at %s%% rounds to zero", money.Format(sale), money.Format(rate))
		}

		commission := &models.Commission{
			ResellerID:           reseller.ID,
			TransactionReference: reference,
			ClientName:           strings.TrimSpace(input.ClientName),
			ProductName:          strings.TrimSpace(input.ProductName),
			ClientMetadata:       metadata,
			SaleAmount:           sale,
			CommissionRate:       rate,
			Amount:               amount,
			Status:               enums.CommissionStatusPending,
			CalculationDate:      s.now(),
		}
		if err := s.repo.WithTx(tx).Create(ctx, commission); err != nil {
			if db.IsUniqueViolation(err, "transaction_reference") {
				return duplicate(reference)
			}
			return ledger.WriteError(err, "create commission")
		}

		if err := ledger.Reserve(reseller, amount); err != nil {
			return err
		}
		reseller.TotalSales = money.Round(reseller.TotalSales.Add(sale))
		if err := resellerRepo.SaveBalances(ctx, reseller); err != nil {
			return ledger.WriteError(err, "save reseller balances")
		}
		created = commission
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func validateCreate(input CreateInput, reference string) error {
	if input.ResellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reseller_id is required")
	}
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction_reference is required")
	}
	if !input.SaleAmount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale_amount must be positive")
	}
	if input.CommissionRate != nil {
		if err := validateRate(*input.CommissionRate); err != nil {
			return err
		}
	}
	return nil
}

func validateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() || rate.GreaterThan(maxRate) {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission_rate must be between 0 and 100")
	}
	return nil
}

func encodeMetadata(meta map[string]any) (dbtypes.JSON, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	encoded, err := dbtypes.MarshalJSONValue(meta)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "client_metadata must be a JSON object")
	}
	return encoded, nil
}

func duplicate(reference string) error {
	return pkgerrors.Newf(pkgerrors.CodeDuplicateTransaction, "transaction %s already has a commission", reference).
		WithDetails(map[string]any{"transaction_reference": reference})
}

// Get returns a single commission.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	commission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ledger.LoadError(err, resourceType, id)
	}
	return commission, nil
}

// Approve moves a pending commission to approved. Balances do not change.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var approved *models.Commission
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		commission, err := repo.LockByID(ctx, id)
		if err != nil {
			return ledger.LoadError(err, resourceType, id)
		}
		if commission.Status != enums.CommissionStatusPending {
			return ledger.InvalidState(resourceType, id, string(commission.Status), "approve")
		}
		now := s.now()
		commission.Status = enums.CommissionStatusApproved
		commission.ApprovalDate = &now
		if err := repo.Save(ctx, commission); err != nil {
			return ledger.WriteError(err, "approve commission")
		}
		approved = commission
		return nil
	})
	s.metrics.ObserveOperation("commission_approve", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditCommissionApprove, approved, nil)
	return approved, nil
}

// Reject moves a pending commission to rejected and releases its amount.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Commission, error) {
	reason = strings.TrimSpace(reason)
	var rejected *models.Commission
	err := s.withLockedPair(ctx, id, func(tx *gorm.DB, reseller *models.Reseller, commission *models.Commission) error {
		if commission.Status != enums.CommissionStatusPending {
			return ledger.InvalidState(resourceType, id, string(commission.Status), "reject")
		}
		if err := ledger.Release(reseller, commission.Amount); err != nil {
			return err
		}
		commission.Status = enums.CommissionStatusRejected
		if reason != "" {
			commission.Notes = "Rejected: " + reason
		}
		if err := s.repo.WithTx(tx).Save(ctx, commission); err != nil {
			return ledger.WriteError(err, "reject commission")
		}
		if err := s.resellers.WithTx(tx).SaveBalances(ctx, reseller); err != nil {
			return ledger.WriteError(err, "save reseller balances")
		}
		rejected = commission
		return nil
	})
	s.metrics.ObserveOperation("commission_reject", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditCommissionReject, rejected, map[string]any{"reason": reason})
	return rejected, nil
}

// Pay settles an approved commission directly, outside any payout. The amount
// leaves pending and is added to the paid and earned totals.
func (s *Service) Pay(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var paid *models.Commission
	err := s.withLockedPair(ctx, id, func(tx *gorm.DB, reseller *models.Reseller, commission *models.Commission) error {
		if commission.Status != enums.CommissionStatusApproved {
			return ledger.InvalidState(resourceType, id, string(commission.Status), "pay")
		}
		if commission.PayoutID != nil {
			return pkgerrors.Newf(pkgerrors.CodeInvalidState, "commission %s is settled by payout %s", id, commission.PayoutID).
				WithDetails(map[string]any{"id": id.String(), "payout_id": commission.PayoutID.String()})
		}
		if err := ledger.Convert(reseller, commission.Amount); err != nil {
			return err
		}
		now := s.now()
		commission.Status = enums.CommissionStatusPaid
		commission.PaidDate = &now
		if err := s.repo.WithTx(tx).Save(ctx, commission); err != nil {
			return ledger.WriteError(err, "pay commission")
		}
		if err := s.resellers.WithTx(tx).SaveBalances(ctx, reseller); err != nil {
			return ledger.WriteError(err, "save reseller balances")
		}
		paid = commission
		return nil
	})
	s.metrics.ObserveOperation("commission_pay", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditCommissionPay, paid, nil)
	return paid, nil
}

// Recalculate applies a new rate to a pending commission and moves the
// difference through the pending balance.
func (s *Service) Recalculate(ctx context.Context, id uuid.UUID, rate decimal.Decimal) (*models.Commission, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	rate = money.Round(rate)

	var (
		updated  *models.Commission
		previous decimal.Decimal
	)
	err := s.withLockedPair(ctx, id, func(tx *gorm.DB, reseller *models.Reseller, commission *models.Commission) error {
		if commission.Status != enums.CommissionStatusPending {
			return ledger.InvalidState(resourceType, id, string(commission.Status), "recalculate")
		}
		amount := money.Percent(commission.SaleAmount, rate)
		if !amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "recalculated commission rounds to zero")
		}
		previous = commission.Amount
		delta := amount.Sub(previous)
		switch {
		case delta.IsPositive():
			if err := ledger.Reserve(reseller, delta); err != nil {
				return err
			}
		case delta.IsNegative():
			if err := ledger.Release(reseller, delta.Neg()); err != nil {
				return err
			}
		}
		commission.CommissionRate = rate
		commission.Amount = amount
		if err := s.repo.WithTx(tx).Save(ctx, commission); err != nil {
			return ledger.WriteError(err, "recalculate commission")
		}
		if err := s.resellers.WithTx(tx).SaveBalances(ctx, reseller); err != nil {
			return ledger.WriteError(err, "save reseller balances")
		}
		updated = commission
		return nil
	})
	s.metrics.ObserveOperation("commission_recalculate", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditCommissionRecalculate, updated, map[string]any{
		"previous_amount": money.Format(previous),
		"rate":            money.Format(rate),
	})
	return updated, nil
}

// withLockedPair locks the owning reseller before the commission so every
// balance-moving path takes locks in the same order.
func (s *Service) withLockedPair(ctx context.Context, id uuid.UUID, fn func(tx *gorm.DB, reseller *models.Reseller, commission *models.Commission) error) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return ledger.LoadError(err, resourceType, id)
		}
		reseller, err := s.resellers.WithTx(tx).LockByID(ctx, current.ResellerID)
		if err != nil {
			return ledger.LoadError(err, "reseller", current.ResellerID)
		}
		commission, err := repo.LockByID(ctx, id)
		if err != nil {
			return ledger.LoadError(err, resourceType, id)
		}
		return fn(tx, reseller, commission)
	})
}

func (s *Service) record(ctx context.Context, action enums.AuditAction, commission *models.Commission, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["reseller_id"] = commission.ResellerID.String()
	details["amount"] = money.Format(commission.Amount)
	details["status"] = commission.Status
	s.audit.Record(ctx, audit.Entry{
		Action:          action,
		ResourceType:    resourceType,
		ResourceIDs:     []string{commission.ID.String()},
		ResourceDisplay: commission.TransactionReference,
		Details:         details,
	})
}

// ApproveMany approves each id on its own.
func (s *Service) ApproveMany(ctx context.Context, ids []uuid.UUID) (ledger.BatchResult, error) {
	if err := ledger.ValidateBatch(ids, s.bulkLimit); err != nil {
		return ledger.BatchResult{}, err
	}
	return s.batch.Run(ctx, "commission_approve", ids, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Approve(ctx, id)
		return err
	}), nil
}

// RejectMany rejects each id on its own with the same reason.
func (s *Service) RejectMany(ctx context.Context, ids []uuid.UUID, reason string) (ledger.BatchResult, error) {
	if err := ledger.ValidateBatch(ids, s.bulkLimit); err != nil {
		return ledger.BatchResult{}, err
	}
	return s.batch.Run(ctx, "commission_reject", ids, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Reject(ctx, id, reason)
		return err
	}), nil
}

// PayMany pays each id on its own.
func (s *Service) PayMany(ctx context.Context, ids []uuid.UUID) (ledger.BatchResult, error) {
	if err := ledger.ValidateBatch(ids, s.bulkLimit); err != nil {
		return ledger.BatchResult{}, err
	}
	return s.batch.Run(ctx, "commission_pay", ids, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Pay(ctx, id)
		return err
	}), nil
}

// ApproveFiltered approves up to the bulk limit of pending commissions
// matching filter.
func (s *Service) ApproveFiltered(ctx context.Context, filter Filter) (ledger.BatchResult, error) {
	ids, err := s.pendingIDs(ctx, filter)
	if err != nil || len(ids) == 0 {
		return ledger.BatchResult{}, err
	}
	return s.ApproveMany(ctx, ids)
}

// RejectFiltered rejects up to the bulk limit of pending commissions matching
// filter.
func (s *Service) RejectFiltered(ctx context.Context, filter Filter, reason string) (ledger.BatchResult, error) {
	ids, err := s.pendingIDs(ctx, filter)
	if err != nil || len(ids) == 0 {
		return ledger.BatchResult{}, err
	}
	return s.RejectMany(ctx, ids, reason)
}

func (s *Service) pendingIDs(ctx context.Context, filter Filter) ([]uuid.UUID, error) {
	filter.Statuses = []enums.CommissionStatus{enums.CommissionStatusPending}
	ids, err := s.repo.ListIDs(ctx, filter, s.bulkLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending commissions")
	}
	return ids, nil
}

// Page is one page of commissions.
type Page struct {
	Items []models.Commission
	Meta  pagination.Meta
}

// List returns commissions matching filter, newest first.
func (s *Service) List(ctx context.Context, filter Filter, params pagination.Params) (*Page, error) {
	rows, total, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list commissions")
	}
	return &Page{Items: rows, Meta: pagination.NewMeta(params, total)}, nil
}

// ListForExport returns up to limit commissions matching filter.
func (s *Service) ListForExport(ctx context.Context, filter Filter, limit int) ([]models.Commission, error) {
	rows, err := s.repo.ListForExport(ctx, filter, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list commissions for export")
	}
	return rows, nil
}

// StatusTotal is the count and amount of commissions in one status.
type StatusTotal struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary aggregates commissions matching a filter.
type Summary struct {
	Count       int                                     `json:"count"`
	TotalAmount decimal.Decimal                         `json:"total_amount"`
	TotalSales  decimal.Decimal                         `json:"total_sales"`
	ByStatus    map[enums.CommissionStatus]*StatusTotal `json:"by_status"`
}

// Summarize totals commissions by status.
func (s *Service) Summarize(ctx context.Context, filter Filter) (*Summary, error) {
	rows, err := s.repo.AmountsByStatus(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summarize commissions")
	}
	summary := &Summary{
		TotalAmount: decimal.Zero,
		TotalSales:  decimal.Zero,
		ByStatus:    make(map[enums.CommissionStatus]*StatusTotal, len(enums.CommissionStatusValues())),
	}
	for _, status := range enums.CommissionStatusValues() {
		summary.ByStatus[status] = &StatusTotal{Amount: decimal.Zero}
	}
	for _, row := range rows {
		summary.Count++
		summary.TotalAmount = summary.TotalAmount.Add(row.Amount)
		summary.TotalSales = summary.TotalSales.Add(row.SaleAmount)
		bucket, ok := summary.ByStatus[row.Status]
		if !ok {
			bucket = &StatusTotal{Amount: decimal.Zero}
			summary.ByStatus[row.Status] = bucket
		}
		bucket.Count++
		bucket.Amount = bucket.Amount.Add(row.Amount)
	}
	return summary, nil
}

// DateRange converts optional inclusive calendar dates into a filter window.
func DateRange(from, to *time.Time) (*time.Time, *time.Time) {
	var start, end *time.Time
	if from != nil {
		v := ledger.StartOfDay(*from)
		start = &v
	}
	if to != nil {
		v := ledger.StartOfDay(*to).Add(24*time.Hour - time.Nanosecond)
		end = &v
	}
	return start, end
}
