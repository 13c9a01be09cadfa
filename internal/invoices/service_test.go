package invoices

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/internal/audit"
	"github.com/angelmondragon/earnings-ledger/internal/commissions"
	"github.com/angelmondragon/earnings-ledger/internal/resellers"
	"github.com/angelmondragon/earnings-ledger/pkg/db"
	"github.com/angelmondragon/earnings-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/money"
	"github.com/angelmondragon/earnings-ledger/pkg/pagination"
)

type recordingSink struct {
	entries []audit.Entry
}

func (r *recordingSink) Record(_ context.Context, entry audit.Entry) {
	r.entries = append(r.entries, entry)
}

type fixture struct {
	svc         *Service
	commissions *commissions.Service
	conn        *gorm.DB
	sink        *recordingSink
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t, &models.Reseller{}, &models.Commission{}, &models.Invoice{})
	f := &fixture{conn: conn, sink: &recordingSink{}, now: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	tx := db.NewFromGorm(conn)

	commissionSvc, err := commissions.NewService(commissions.ServiceParams{
		Repo:      commissions.NewRepository(conn),
		Resellers: resellers.NewRepository(conn),
		Tx:        tx,
		Logger:    logg,
		Clock:     clock,
	})
	require.NoError(t, err)
	f.commissions = commissionSvc

	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Commissions: commissions.NewRepository(conn),
		Resellers:   resellers.NewRepository(conn),
		Tx:          tx,
		Audit:       f.sink,
		Logger:      logg,
		Clock:       clock,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) reseller(t *testing.T) *models.Reseller {
	t.Helper()
	r := &models.Reseller{
		UserID:                uuid.New(),
		CompanyName:           "Acme",
		ReferralCode:          uuid.NewString()[:8],
		Tier:                  enums.ResellerTierBronze,
		CommissionRate:        money.MustParse("10"),
		TotalSales:            decimal.Zero,
		TotalCommissionEarned: decimal.Zero,
		TotalCommissionPaid:   decimal.Zero,
		PendingCommission:     decimal.Zero,
		IsActive:              true,
	}
	require.NoError(t, f.conn.Create(r).Error)
	return r
}

func (f *fixture) approved(t *testing.T, resellerID uuid.UUID, ref, sale string) *models.Commission {
	t.Helper()
	ctx := context.Background()
	c, err := f.commissions.Create(ctx, commissions.CreateInput{
		ResellerID:           resellerID,
		SaleAmount:           money.MustParse(sale),
		TransactionReference: ref,
		ClientName:           "Globex",
		ProductName:          "Pro plan",
	})
	require.NoError(t, err)
	c, err = f.commissions.Approve(ctx, c.ID)
	require.NoError(t, err)
	return c
}

func (f *fixture) loadReseller(t *testing.T, id uuid.UUID) *models.Reseller {
	t.Helper()
	var r models.Reseller
	require.NoError(t, f.conn.First(&r, "id = ?", id).Error)
	return &r
}

func (f *fixture) loadCommission(t *testing.T, id uuid.UUID) *models.Commission {
	t.Helper()
	var c models.Commission
	require.NoError(t, f.conn.First(&c, "id = ?", id).Error)
	return &c
}

func TestGenerate_BuildsDraftWithSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reseller(t)
	a := f.approved(t, r.ID, "txn-a", "1000.00")
	f.now = f.now.AddDate(0, 0, 2)
	b := f.approved(t, r.ID, "txn-b", "500.00")
	rate := money.MustParse("8")

	invoice, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID, CommissionIDs: []uuid.UUID{a.ID, b.ID}, TaxRate: &rate})
	require.NoError(t, err)

	assert.Equal(t, "INV-202603-0001", invoice.InvoiceNumber)
	assert.Equal(t, enums.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, "150.00", money.Format(invoice.Subtotal))
	assert.Equal(t, "12.00", money.Format(invoice.TaxAmount))
	assert.Equal(t, "162.00", money.Format(invoice.TotalAmount))
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), invoice.PeriodStart)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), invoice.PeriodEnd)
	assert.Equal(t, time.Date(2026, 4, 11, 0, 0, 0, 0, time.UTC), invoice.DueDate)
	assert.Equal(t, "Commission invoice for 2026-03-10 to 2026-03-12", invoice.Description)

	items, err := LineItems(invoice)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Pro plan - Globex", items[0].Description)
	assert.Equal(t, "100.00", items[0].Amount)
	assert.Equal(t, "txn-a", items[0].Reference)
	assert.Equal(t, "2026-03-10", items[0].Date)

	linked := f.loadCommission(t, a.ID)
	require.NotNil(t, linked.InvoiceID)
	assert.Equal(t, invoice.ID, *linked.InvoiceID)
}

func TestGenerate_SequenceIsPerMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reseller(t)

	f.approved(t, r.ID, "txn-1", "100.00")
	first, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID})
	require.NoError(t, err)

	f.approved(t, r.ID, "txn-2", "100.00")
	second, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID})
	require.NoError(t, err)

	f.now = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	f.approved(t, r.ID, "txn-3", "100.00")
	third, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID})
	require.NoError(t, err)

	assert.Equal(t, "INV-202603-0001", first.InvoiceNumber)
	assert.Equal(t, "INV-202603-0002", second.InvoiceNumber)
	assert.Equal(t, "INV-202604-0001", third.InvoiceNumber)
}

func TestGenerate_SequenceGrowsPastFourDigits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reseller(t)

	for _, number := range []string{"INV-202603-9999", "INV-202603-10000"} {
		require.NoError(t, f.conn.Create(&models.Invoice{
			ResellerID:    r.ID,
			InvoiceNumber: number,
			PeriodStart:   f.now,
			PeriodEnd:     f.now,
			Subtotal:      decimal.Zero,
			TaxAmount:     decimal.Zero,
			TotalAmount:   decimal.Zero,
			Status:        enums.InvoiceStatusDraft,
			IssueDate:     f.now,
			DueDate:       f.now,
		}).Error)
	}

	f.approved(t, r.ID, "txn-10001", "100.00")
	invoice, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID})
	require.NoError(t, err)
	assert.Equal(t, "INV-202603-10001", invoice.InvoiceNumber)
}

func TestGenerate_NoEligibleCommissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reseller(t)

	pending, err := f.commissions.Create(ctx, commissions.CreateInput{
		ResellerID:           r.ID,
		SaleAmount:           money.MustParse("100"),
		TransactionReference: "txn-pending",
	})
	require.NoError(t, err)

	_, err = f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID, CommissionIDs: []uuid.UUID{pending.ID}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNoEligible))

	a := f.approved(t, r.ID, "txn-once", "100.00")
	_, err = f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID, CommissionIDs: []uuid.UUID{a.ID}})
	require.NoError(t, err)
	_, err = f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID, CommissionIDs: []uuid.UUID{a.ID}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNoEligible), "an invoiced commission is never invoiced twice")
}

func TestGenerate_PeriodSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reseller(t)
	f.approved(t, r.ID, "txn-early", "100.00")
	f.now = time.Date(2026, 3, 20, 23, 0, 0, 0, time.UTC)
	late := f.approved(t, r.ID, "txn-late", "300.00")

	start := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	invoice, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID, PeriodStart: &start, PeriodEnd: &end})
	require.NoError(t, err)
	assert.Equal(t, "30.00", money.Format(invoice.TotalAmount))
	assert.Equal(t, start, invoice.PeriodStart)
	assert.Equal(t, end, invoice.PeriodEnd)
	assert.Equal(t, invoice.ID, *f.loadCommission(t, late.ID).InvoiceID)
}

func TestMarkPaid_ConvertsLinkedCommissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reseller(t)
	a := f.approved(t, r.ID, "txn-a", "1000.00")
	b := f.approved(t, r.ID, "txn-b", "500.00")
	f.approved(t, r.ID, "txn-c", "200.00")

	invoice, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID, CommissionIDs: []uuid.UUID{a.ID, b.ID}})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, invoice.ID)
	require.NoError(t, err)

	paidAt := time.Date(2026, 3, 25, 0, 0, 0, 0, time.UTC)
	paid, err := f.svc.MarkPaid(ctx, invoice.ID, &paidAt)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaymentDate)
	assert.True(t, paid.PaymentDate.Equal(paidAt))

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		c := f.loadCommission(t, id)
		assert.Equal(t, enums.CommissionStatusPaid, c.Status)
		require.NotNil(t, c.PaidDate)
	}
	loaded := f.loadReseller(t, r.ID)
	assert.Equal(t, "20.00", money.Format(loaded.PendingCommission))
	assert.Equal(t, "150.00", money.Format(loaded.TotalCommissionPaid))
	assert.Equal(t, "150.00", money.Format(loaded.TotalCommissionEarned))

	_, err = f.svc.MarkPaid(ctx, invoice.ID, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))
	_, err = f.svc.Cancel(ctx, invoice.ID, "late")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))
}

func TestMarkPaid_PayoutReservedCommissionOnlyChangesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reseller(t)
	a := f.approved(t, r.ID, "txn-a", "1000.00")

	invoice, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID})
	require.NoError(t, err)

	// a payout request already moved the amount out of pending
	payoutID := uuid.New()
	require.NoError(t, f.conn.Model(&models.Commission{}).Where("id = ?", a.ID).Update("payout_id", payoutID).Error)
	require.NoError(t, f.conn.Model(&models.Reseller{}).Where("id = ?", r.ID).Update("pending_commission", decimal.Zero).Error)

	_, err = f.svc.MarkPaid(ctx, invoice.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.CommissionStatusPaid, f.loadCommission(t, a.ID).Status)
	loaded := f.loadReseller(t, r.ID)
	assert.True(t, loaded.PendingCommission.IsZero())
	assert.True(t, loaded.TotalCommissionPaid.IsZero())
}

func TestCancel_UnlinksForReinvoicing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reseller(t)
	a := f.approved(t, r.ID, "txn-a", "1000.00")

	invoice, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID})
	require.NoError(t, err)
	cancelled, err := f.svc.Cancel(ctx, invoice.ID, "wrong period")
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusCancelled, cancelled.Status)
	assert.Equal(t, "Cancelled: wrong period", cancelled.Notes)
	assert.Nil(t, f.loadCommission(t, a.ID).InvoiceID)
	assert.Equal(t, "100.00", money.Format(f.loadReseller(t, r.ID).PendingCommission))

	_, err = f.svc.Send(ctx, invoice.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))

	again, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID})
	require.NoError(t, err)
	assert.Equal(t, "INV-202603-0002", again.InvoiceNumber)
}

func TestSweepOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reseller(t)
	f.approved(t, r.ID, "txn-a", "100.00")
	sent, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, sent.ID)
	require.NoError(t, err)

	f.approved(t, r.ID, "txn-b", "100.00")
	draft, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID})
	require.NoError(t, err)

	// due date is 2026-04-09; the sweep only fires once that day has passed
	f.now = time.Date(2026, 4, 9, 23, 0, 0, 0, time.UTC)
	n, err := f.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = time.Date(2026, 4, 10, 0, 5, 0, 0, time.UTC)
	n, err = f.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusOverdue, got.Status)
	got, err = f.svc.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusDraft, got.Status)

	// overdue invoices can still be collected
	_, err = f.svc.MarkPaid(ctx, sent.ID, nil)
	require.NoError(t, err)
}

func TestListAndSummarize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reseller(t)
	f.approved(t, r.ID, "txn-a", "100.00")
	first, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID})
	require.NoError(t, err)
	f.approved(t, r.ID, "txn-b", "200.00")
	second, err := f.svc.Generate(ctx, GenerateInput{ResellerID: r.ID})
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, first.ID, nil)
	require.NoError(t, err)

	page, err := f.svc.List(ctx, Filter{Statuses: []enums.InvoiceStatus{enums.InvoiceStatusDraft}}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, second.ID, page.Items[0].ID)

	page, err = f.svc.List(ctx, Filter{Search: "0001"}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)

	summary, err := f.svc.Summarize(ctx, &r.ID, 2026)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, "30.00", money.Format(summary.TotalBilled))
	assert.Equal(t, "10.00", money.Format(summary.TotalPaid))
	assert.Equal(t, "20.00", money.Format(summary.Outstanding))
	assert.Equal(t, 1, summary.ByStatus[enums.InvoiceStatusPaid].Count)

	empty, err := f.svc.Summarize(ctx, &r.ID, 2025)
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
}

func TestNumberPrefix(t *testing.T) {
	assert.Equal(t, "INV-202601-", NumberPrefix(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "INV-202612-", NumberPrefix(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)))
}
