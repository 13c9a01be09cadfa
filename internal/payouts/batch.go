package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	dbtypes "github.com/angelmondragon/earnings-ledger/pkg/db/types"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/money"
)

// BatchInput selects resellers for a commission-based payout run. Each
// eligible reseller gets one payout for their whole available balance.
type BatchInput struct {
	MinAmount      *decimal.Decimal
	ResellerIDs    []uuid.UUID
	Method         enums.PayoutMethod
	PaymentDetails map[string]any
}

// ManualEntry is one line of an admin-entered payout batch.
type ManualEntry struct {
	ResellerID     uuid.UUID          `json:"reseller_id"`
	Amount         decimal.Decimal    `json:"amount"`
	Method         enums.PayoutMethod `json:"payment_method"`
	PaymentDetails map[string]any     `json:"payment_details"`
	Notes          string             `json:"notes"`
}

// BatchError reports one reseller the batch could not pay.
type BatchError struct {
	ResellerID string `json:"reseller_id"`
	Error      string `json:"error"`
	Code       string `json:"code"`
}

// BatchCreateResult summarises a payout creation batch.
type BatchCreateResult struct {
	CreatedCount int             `json:"created_count"`
	FailedCount  int             `json:"failed_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	PayoutIDs    []string        `json:"payout_ids"`
	Errors       []BatchError    `json:"errors"`
	// Truncated is set when more resellers qualified than one batch may hold.
	Truncated bool `json:"truncated"`
}

func newBatchCreateResult() *BatchCreateResult {
	return &BatchCreateResult{TotalAmount: decimal.Zero, PayoutIDs: []string{}, Errors: []BatchError{}}
}

func (r *BatchCreateResult) add(payout *models.Payout) {
	r.CreatedCount++
	r.TotalAmount = r.TotalAmount.Add(payout.Amount)
	r.PayoutIDs = append(r.PayoutIDs, payout.ID.String())
}

func (r *BatchCreateResult) fail(resellerID uuid.UUID, err error) {
	r.FailedCount++
	r.Errors = append(r.Errors, BatchError{
		ResellerID: resellerID.String(),
		Error:      pkgerrors.Message(err),
		Code:       string(pkgerrors.CodeOf(err)),
	})
}

// CreateCommissionBased pays out every eligible reseller's available balance,
// one transaction per reseller. Approved commissions that are neither invoiced
// nor tied to a payout are linked to the new payout.
func (s *Service) CreateCommissionBased(ctx context.Context, input BatchInput) (*BatchCreateResult, error) {
	minAmount := s.minPayout
	if input.MinAmount != nil {
		if input.MinAmount.LessThan(s.minPayout) {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "min_amount cannot be below %s", money.Format(s.minPayout))
		}
		minAmount = money.Round(*input.MinAmount)
	}
	method := input.Method
	if method == "" {
		method = enums.PayoutMethodBankTransfer
	}
	if !method.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", method)
	}
	if len(input.ResellerIDs) > s.bulkLimit {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "batch exceeds the limit of %d resellers", s.bulkLimit)
	}
	details := input.PaymentDetails
	if details == nil {
		details = map[string]any{}
	}
	encoded, err := dbtypes.MarshalJSONValue(details)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment_details must be a JSON object")
	}

	eligible, err := s.resellers.ListEligibleForPayout(ctx, minAmount, input.ResellerIDs, s.bulkLimit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list eligible resellers")
	}

	result := newBatchCreateResult()
	if len(eligible) > s.bulkLimit {
		eligible = eligible[:s.bulkLimit]
		result.Truncated = true
		s.logg.Warn(s.logg.WithField(ctx, "limit", s.bulkLimit), "more resellers qualify than one payout batch holds; run the batch again for the rest")
	}
	for _, candidate := range eligible {
		payout, err := s.payoutBalance(ctx, candidate.ID, minAmount, method, encoded)
		s.metrics.ObserveBatchItem("payout_batch_commission", err)
		if err != nil {
			result.fail(candidate.ID, err)
			s.logg.Warn(s.logg.WithResellerID(ctx, candidate.ID.String()), "commission payout skipped: "+err.Error())
			continue
		}
		result.add(payout)
		s.record(ctx, enums.AuditPayoutRequest, payout, map[string]any{"method": method, "batch": "commission"})
	}
	result.TotalAmount = money.Round(result.TotalAmount)
	return result, nil
}

func (s *Service) payoutBalance(ctx context.Context, resellerID uuid.UUID, minAmount decimal.Decimal, method enums.PayoutMethod, details dbtypes.JSON) (*models.Payout, error) {
	var created *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reseller, err := s.resellers.WithTx(tx).LockByID(ctx, resellerID)
		if err != nil {
			return ledger.LoadError(err, "reseller", resellerID)
		}
		amount := reseller.AvailableBalance()
		if amount.LessThan(minAmount) || !amount.IsPositive() {
			return pkgerrors.Newf(pkgerrors.CodeInsufficientBalance, "available balance %s is below %s", money.Format(amount), money.Format(minAmount))
		}
		rows, err := s.commissions.WithTx(tx).LockApprovedUnlinked(ctx, reseller.ID, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load commissions")
		}
		linked := make([]uuid.UUID, len(rows))
		for i, c := range rows {
			linked[i] = c.ID
		}
		payout, err := s.reserve(ctx, tx, reseller, amount, method, details, "Commission-based payout", linked)
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

// CreateManualBatch requests one payout per entry. Entries fail on their own.
func (s *Service) CreateManualBatch(ctx context.Context, entries []ManualEntry) (*BatchCreateResult, error) {
	if len(entries) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one payout entry is required")
	}
	if len(entries) > s.bulkLimit {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "batch exceeds the limit of %d entries", s.bulkLimit)
	}
	result := newBatchCreateResult()
	for _, entry := range entries {
		method := entry.Method
		if method == "" {
			method = enums.PayoutMethodBankTransfer
		}
		payout, err := s.Request(ctx, RequestInput{
			ResellerID:     entry.ResellerID,
			Amount:         entry.Amount,
			Method:         method,
			PaymentDetails: entry.PaymentDetails,
			Notes:          entry.Notes,
		})
		s.metrics.ObserveBatchItem("payout_batch_manual", err)
		if err != nil {
			result.fail(entry.ResellerID, err)
			continue
		}
		result.add(payout)
	}
	result.TotalAmount = money.Round(result.TotalAmount)
	return result, nil
}

// Summary describes a reseller's payout position.
type Summary struct {
	TotalPaid        decimal.Decimal            `json:"total_paid"`
	AvailableBalance decimal.Decimal            `json:"available_balance"`
	PendingPayouts   decimal.Decimal            `json:"pending_payouts"`
	Counts           map[enums.PayoutStatus]int `json:"counts"`
	MinimumPayout    decimal.Decimal            `json:"minimum_payout"`
	CanRequest       bool                       `json:"can_request"`
	NextPayoutDate   time.Time                  `json:"next_payout_date"`
}

// Summarize reports the reseller's paid total, available balance and payouts
// still in flight.
func (s *Service) Summarize(ctx context.Context, resellerID uuid.UUID) (*Summary, error) {
	reseller, err := s.resellers.FindByID(ctx, resellerID)
	if err != nil {
		return nil, ledger.LoadError(err, "reseller", resellerID)
	}
	rows, err := s.repo.StatusAmounts(ctx, &resellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summarize payouts")
	}
	summary := &Summary{
		TotalPaid:        reseller.TotalCommissionPaid,
		AvailableBalance: reseller.AvailableBalance(),
		PendingPayouts:   decimal.Zero,
		Counts:           make(map[enums.PayoutStatus]int),
		MinimumPayout:    s.minPayout,
		NextPayoutDate:   NextPayoutDate(s.now(), s.payoutDay),
	}
	for _, status := range enums.PayoutStatusValues() {
		summary.Counts[status] = 0
	}
	for _, row := range rows {
		summary.Counts[row.Status]++
		if row.Status.HoldsReservation() {
			summary.PendingPayouts = summary.PendingPayouts.Add(row.Amount)
		}
	}
	summary.CanRequest = reseller.IsActive && !summary.AvailableBalance.LessThan(s.minPayout)
	return summary, nil
}
