package payouts

import (
	"context"
	"fmt"
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
	resourceType       = "payout"
	defaultBulkLimit   = 50
	defaultPayoutDay   = 15
	referenceLayout    = "20060102150405"
	referenceAttempts  = 10
	referenceNumberKey = "reference_number"
)

var defaultMinPayout = money.MustParse("50.00")

// RequestInput asks for a payout against the reseller's available balance.
// CommissionIDs optionally ties approved commissions to the payout so they
// settle when it completes.
type RequestInput struct {
	ResellerID     uuid.UUID
	Amount         decimal.Decimal
	Method         enums.PayoutMethod
	PaymentDetails map[string]any
	Notes          string
	CommissionIDs  []uuid.UUID
}

// Service reserves, processes and settles payouts.
type Service struct {
	repo        Repository
	commissions commissions.Repository
	resellers   resellers.Repository
	tx          ledger.TxRunner
	audit       audit.Sink
	batch       *ledger.BatchRunner
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
	now         ledger.Clock
	minPayout   decimal.Decimal
	bulkLimit   int
	payoutDay   int
}

// ServiceParams groups the dependencies of the payout service.
type ServiceParams struct {
	Repo        Repository
	Commissions commissions.Repository
	Resellers   resellers.Repository
	Tx          ledger.TxRunner
	Audit       audit.Sink
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
	Clock       ledger.Clock
	MinPayout   decimal.Decimal
	BulkLimit   int
	PayoutDay   int
}

// NewService wires the payout service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payout repository required")
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
		minPayout:   params.MinPayout,
		bulkLimit:   params.BulkLimit,
		payoutDay:   params.PayoutDay,
	}
	if svc.audit == nil {
		svc.audit = audit.Discard
	}
	if svc.now == nil {
		svc.now = ledger.UTCNow
	}
	if !svc.minPayout.IsPositive() {
		svc.minPayout = defaultMinPayout
	}
	if svc.bulkLimit <= 0 {
		svc.bulkLimit = defaultBulkLimit
	}
	if svc.payoutDay <= 0 {
		svc.payoutDay = defaultPayoutDay
	}
	svc.batch = ledger.NewBatchRunner(params.Logger, params.Metrics)
	return svc, nil
}

// Request reserves amount from the reseller's pending balance and records a
// requested payout. The balance check and the decrement happen under the
// reseller row lock.
func (s *Service) Request(ctx context.Context, input RequestInput) (*models.Payout, error) {
	payout, err := s.request(ctx, input)
	s.metrics.ObserveOperation("payout_request", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditPayoutRequest, payout, map[string]any{"method": payout.PaymentMethod})
	return payout, nil
}

func (s *Service) request(ctx context.Context, input RequestInput) (*models.Payout, error) {
	if input.ResellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reseller_id is required")
	}
	amount := money.Round(input.Amount)
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if amount.LessThan(s.minPayout) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "minimum payout amount is %s", money.Format(s.minPayout)).
			WithDetails(map[string]any{"minimum": money.Format(s.minPayout)})
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", input.Method)
	}
	details := input.PaymentDetails
	if details == nil {
		details = map[string]any{}
	}
	encoded, err := dbtypes.MarshalJSONValue(details)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment_details must be a JSON object")
	}

	var created *models.Payout
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		resellerRepo := s.resellers.WithTx(tx)
		reseller, err := resellerRepo.LockByID(ctx, input.ResellerID)
		if err != nil {
			return ledger.LoadError(err, "reseller", input.ResellerID)
		}
		if !reseller.IsActive {
			return pkgerrors.Newf(pkgerrors.CodeInvalidState, "reseller %s is inactive", reseller.ID)
		}

		rows, err := s.commissions.WithTx(tx).LockApprovedUnlinked(ctx, reseller.ID, input.CommissionIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load commissions")
		}
		var linked []uuid.UUID
		if len(input.CommissionIDs) > 0 {
			if len(rows) != len(dedupe(input.CommissionIDs)) {
				return pkgerrors.New(pkgerrors.CodeValidation, "every commission must be approved, uninvoiced and not tied to another payout")
			}
			for _, c := range rows {
				linked = append(linked, c.ID)
			}
		} else {
			linked = allocate(rows, amount)
		}

		payout, err := s.reserve(ctx, tx, reseller, amount, input.Method, encoded, strings.TrimSpace(input.Notes), linked)
		if err != nil {
			return err
		}
		created = payout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// reserve creates the payout row and releases its amount from pending. The
// caller holds the reseller lock.
func (s *Service) reserve(ctx context.Context, tx *gorm.DB, reseller *models.Reseller, amount decimal.Decimal, method enums.PayoutMethod, details dbtypes.JSON, notes string, linked []uuid.UUID) (*models.Payout, error) {
	if err := ledger.Release(reseller, amount); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	now := s.now()
	reference, err := s.reference(ctx, repo, reseller.ID, now)
	if err != nil {
		return nil, err
	}
	fee := CalculateFee(method, amount)
	payout := &models.Payout{
		ResellerID:      reseller.ID,
		ReferenceNumber: reference,
		Amount:          amount,
		TransactionFee:  fee,
		NetAmount:       money.Round(amount.Sub(fee)),
		PaymentMethod:   method,
		PaymentDetails:  details,
		Status:          enums.PayoutStatusRequested,
		RequestDate:     now,
		Notes:           notes,
	}
	if err := repo.Create(ctx, payout); err != nil {
		if db.IsUniqueViolation(err, referenceNumberKey) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payout reference already in use")
		}
		return nil, ledger.WriteError(err, "create payout")
	}
	if err := s.commissions.WithTx(tx).SetPayout(ctx, linked, &payout.ID); err != nil {
		return nil, ledger.WriteError(err, "link commissions")
	}
	if err := s.resellers.WithTx(tx).SaveBalances(ctx, reseller); err != nil {
		return nil, ledger.WriteError(err, "save reseller balances")
	}
	return payout, nil
}

func (s *Service) reference(ctx context.Context, repo Repository, resellerID uuid.UUID, now time.Time) (string, error) {
	base := fmt.Sprintf("PAY-%s-%s", now.Format(referenceLayout), resellerID)
	candidate := base
	for i := 2; i <= referenceAttempts; i++ {
		exists, err := repo.ReferenceExists(ctx, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check payout reference")
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a payout reference")
}

// allocate picks approved commissions, oldest first, whose amounts fit inside
// the payout. Allocation stops at the first commission that would overflow it.
func allocate(rows []models.Commission, amount decimal.Decimal) []uuid.UUID {
	var (
		ids       []uuid.UUID
		allocated = decimal.Zero
	)
	for _, c := range rows {
		next := allocated.Add(c.Amount)
		if next.GreaterThan(amount) {
			break
		}
		allocated = next
		ids = append(ids, c.ID)
	}
	return ids
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Get returns one payout.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ledger.LoadError(err, resourceType, id)
	}
	return payout, nil
}

// Process moves a requested payout to processing.
func (s *Service) Process(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var processed *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := repo.LockByID(ctx, id)
		if err != nil {
			return ledger.LoadError(err, resourceType, id)
		}
		if payout.Status != enums.PayoutStatusRequested {
			return ledger.InvalidState(resourceType, id, string(payout.Status), "process")
		}
		now := s.now()
		payout.Status = enums.PayoutStatusProcessing
		payout.ProcessDate = &now
		if err := repo.Save(ctx, payout); err != nil {
			return ledger.WriteError(err, "process payout")
		}
		processed = payout
		return nil
	})
	s.metrics.ObserveOperation("payout_process", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditPayoutProcess, processed, nil)
	return processed, nil
}

// Complete settles a processing payout: its amount is added to the reseller's
// paid and earned totals and linked commissions become paid.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, transactionID string) (*models.Payout, error) {
	transactionID = strings.TrimSpace(transactionID)
	var completed *models.Payout
	err := s.withLockedPair(ctx, id, func(tx *gorm.DB, reseller *models.Reseller, payout *models.Payout) error {
		if payout.Status != enums.PayoutStatusProcessing {
			return ledger.InvalidState(resourceType, id, string(payout.Status), "complete")
		}
		if err := ledger.Settle(reseller, payout.Amount); err != nil {
			return err
		}
		now := s.now()
		commissionRepo := s.commissions.WithTx(tx)
		linked, err := commissionRepo.LockByPayout(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout commissions")
		}
		ids := make([]uuid.UUID, 0, len(linked))
		for _, c := range linked {
			if c.Status == enums.CommissionStatusApproved {
				ids = append(ids, c.ID)
			}
		}
		if err := commissionRepo.MarkPaid(ctx, ids, now); err != nil {
			return ledger.WriteError(err, "mark commissions paid")
		}

		payout.Status = enums.PayoutStatusCompleted
		payout.CompletionDate = &now
		payout.NetAmount = money.Round(payout.Amount.Sub(payout.TransactionFee))
		if transactionID != "" {
			payout.TransactionID = &transactionID
		}
		if err := s.repo.WithTx(tx).Save(ctx, payout); err != nil {
			return ledger.WriteError(err, "complete payout")
		}
		if err := s.resellers.WithTx(tx).SaveBalances(ctx, reseller); err != nil {
			return ledger.WriteError(err, "save reseller balances")
		}
		completed = payout
		return nil
	})
	s.metrics.ObserveOperation("payout_complete", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditPayoutComplete, completed, map[string]any{"transaction_id": transactionID})
	return completed, nil
}

// Fail marks an in-flight payout failed and restores its amount to pending.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, reason string) (*models.Payout, error) {
	payout, err := s.unwind(ctx, id, enums.PayoutStatusFailed, "fail", reason)
	s.metrics.ObserveOperation("payout_fail", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditPayoutFail, payout, map[string]any{"reason": strings.TrimSpace(reason)})
	return payout, nil
}

// Cancel withdraws an in-flight payout and restores its amount to pending.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Payout, error) {
	payout, err := s.unwind(ctx, id, enums.PayoutStatusCancelled, "cancel", reason)
	s.metrics.ObserveOperation("payout_cancel", err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, enums.AuditPayoutCancel, payout, map[string]any{"reason": strings.TrimSpace(reason)})
	return payout, nil
}

func (s *Service) unwind(ctx context.Context, id uuid.UUID, to enums.PayoutStatus, action, reason string) (*models.Payout, error) {
	reason = strings.TrimSpace(reason)
	var updated *models.Payout
	err := s.withLockedPair(ctx, id, func(tx *gorm.DB, reseller *models.Reseller, payout *models.Payout) error {
		if !payout.Status.HoldsReservation() {
			return ledger.InvalidState(resourceType, id, string(payout.Status), action)
		}
		commissionRepo := s.commissions.WithTx(tx)
		linked, err := commissionRepo.LockByPayout(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout commissions")
		}
		for _, c := range linked {
			if c.Status == enums.CommissionStatusPaid {
				return pkgerrors.Newf(pkgerrors.CodeInvalidState, "commission %s linked to payout %s is already paid", c.ID, id).
					WithDetails(map[string]any{"id": id.String(), "commission_id": c.ID.String()})
			}
		}
		if err := ledger.Restore(reseller, payout.Amount); err != nil {
			return err
		}
		if _, err := commissionRepo.ClearPayout(ctx, id); err != nil {
			return ledger.WriteError(err, "unlink commissions")
		}
		payout.Status = to
		if to == enums.PayoutStatusFailed {
			if reason == "" {
				reason = "unspecified"
			}
			payout.FailureReason = &reason
		} else if reason != "" {
			payout.Notes = "Cancelled: " + reason
		}
		if err := s.repo.WithTx(tx).Save(ctx, payout); err != nil {
			return ledger.WriteError(err, action+" payout")
		}
		if err := s.resellers.WithTx(tx).SaveBalances(ctx, reseller); err != nil {
			return ledger.WriteError(err, "save reseller balances")
		}
		updated = payout
		return nil
	})
	return updated, err
}

// withLockedPair locks the reseller before the payout, matching the order the
// commission paths use.
func (s *Service) withLockedPair(ctx context.Context, id uuid.UUID, fn func(tx *gorm.DB, reseller *models.Reseller, payout *models.Payout) error) error {
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
		payout, err := repo.LockByID(ctx, id)
		if err != nil {
			return ledger.LoadError(err, resourceType, id)
		}
		return fn(tx, reseller, payout)
	})
}

func (s *Service) record(ctx context.Context, action enums.AuditAction, payout *models.Payout, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["reseller_id"] = payout.ResellerID.String()
	details["amount"] = money.Format(payout.Amount)
	details["status"] = payout.Status
	s.audit.Record(ctx, audit.Entry{
		Action:          action,
		ResourceType:    resourceType,
		ResourceIDs:     []string{payout.ID.String()},
		ResourceDisplay: payout.ReferenceNumber,
		Details:         details,
	})
}

// ProcessMany processes each id on its own.
func (s *Service) ProcessMany(ctx context.Context, ids []uuid.UUID) (ledger.BatchResult, error) {
	return s.runMany(ctx, "payout_process", ids, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Process(ctx, id)
		return err
	})
}

// CompleteMany completes each id on its own, without external references.
func (s *Service) CompleteMany(ctx context.Context, ids []uuid.UUID) (ledger.BatchResult, error) {
	return s.runMany(ctx, "payout_complete", ids, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Complete(ctx, id, "")
		return err
	})
}

// FailMany fails each id on its own with the same reason.
func (s *Service) FailMany(ctx context.Context, ids []uuid.UUID, reason string) (ledger.BatchResult, error) {
	return s.runMany(ctx, "payout_fail", ids, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Fail(ctx, id, reason)
		return err
	})
}

// CancelMany cancels each id on its own with the same reason.
func (s *Service) CancelMany(ctx context.Context, ids []uuid.UUID, reason string) (ledger.BatchResult, error) {
	return s.runMany(ctx, "payout_cancel", ids, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Cancel(ctx, id, reason)
		return err
	})
}

func (s *Service) runMany(ctx context.Context, op string, ids []uuid.UUID, fn func(context.Context, uuid.UUID) error) (ledger.BatchResult, error) {
	if err := ledger.ValidateBatch(ids, s.bulkLimit); err != nil {
		return ledger.BatchResult{}, err
	}
	return s.batch.Run(ctx, op, ids, fn), nil
}

// Page is one page of payouts.
type Page struct {
	Items []models.Payout
	Meta  pagination.Meta
}

// List returns payouts matching filter, newest first.
func (s *Service) List(ctx context.Context, filter Filter, params pagination.Params) (*Page, error) {
	rows, total, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payouts")
	}
	return &Page{Items: rows, Meta: pagination.NewMeta(params, total)}, nil
}

// ListForExport returns up to limit payouts matching filter.
func (s *Service) ListForExport(ctx context.Context, filter Filter, limit int) ([]models.Payout, error) {
	rows, err := s.repo.ListForExport(ctx, filter, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payouts for export")
	}
	return rows, nil
}
