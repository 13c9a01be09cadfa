package commissions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalcommissions "github.com/angelmondragon/earnings-ledger/internal/commissions"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/pagination"
	"github.com/angelmondragon/earnings-ledger/pkg/types"
)

type fakeService struct {
	created      internalcommissions.CreateInput
	filter       internalcommissions.Filter
	rejectReason string
	approvedIDs  []uuid.UUID
	filtered     bool
	exportLimit  int
	rows         []models.Commission
	err          error
}

func (f *fakeService) commission(id uuid.UUID, status enums.CommissionStatus) *models.Commission {
	return &models.Commission{
		ID:                   id,
		ResellerID:           uuid.New(),
		TransactionReference: "txn-1",
		SaleAmount:           decimal.RequireFromString("100.00"),
		CommissionRate:       decimal.RequireFromString("10.00"),
		Amount:               decimal.RequireFromString("10.00"),
		Status:               status,
	}
}

func (f *fakeService) Create(_ context.Context, input internalcommissions.CreateInput) (*models.Commission, error) {
	f.created = input
	if f.err != nil {
		return nil, f.err
	}
	return f.commission(uuid.New(), enums.CommissionStatusPending), nil
}

func (f *fakeService) Get(_ context.Context, id uuid.UUID) (*models.Commission, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.commission(id, enums.CommissionStatusPending), nil
}

func (f *fakeService) Approve(_ context.Context, id uuid.UUID) (*models.Commission, error) {
	return f.commission(id, enums.CommissionStatusApproved), f.err
}

func (f *fakeService) Reject(_ context.Context, id uuid.UUID, reason string) (*models.Commission, error) {
	f.rejectReason = reason
	return f.commission(id, enums.CommissionStatusRejected), f.err
}

func (f *fakeService) Pay(_ context.Context, id uuid.UUID) (*models.Commission, error) {
	return f.commission(id, enums.CommissionStatusPaid), f.err
}

func (f *fakeService) Recalculate(_ context.Context, id uuid.UUID, _ decimal.Decimal) (*models.Commission, error) {
	return f.commission(id, enums.CommissionStatusPending), f.err
}

func (f *fakeService) ApproveMany(_ context.Context, ids []uuid.UUID) (ledger.BatchResult, error) {
	f.approvedIDs = ids
	return ledger.BatchResult{Total: len(ids), Succeeded: len(ids)}, nil
}

func (f *fakeService) RejectMany(_ context.Context, ids []uuid.UUID, reason string) (ledger.BatchResult, error) {
	f.rejectReason = reason
	return ledger.BatchResult{Total: len(ids)}, nil
}

func (f *fakeService) PayMany(_ context.Context, ids []uuid.UUID) (ledger.BatchResult, error) {
	return ledger.BatchResult{Total: len(ids)}, nil
}

func (f *fakeService) ApproveFiltered(_ context.Context, filter internalcommissions.Filter) (ledger.BatchResult, error) {
	f.filter = filter
	f.filtered = true
	return ledger.BatchResult{}, nil
}

func (f *fakeService) RejectFiltered(_ context.Context, filter internalcommissions.Filter, reason string) (ledger.BatchResult, error) {
	f.filter = filter
	f.filtered = true
	f.rejectReason = reason
	return ledger.BatchResult{}, nil
}

func (f *fakeService) List(_ context.Context, filter internalcommissions.Filter, params pagination.Params) (*internalcommissions.Page, error) {
	f.filter = filter
	items := []models.Commission{*f.commission(uuid.New(), enums.CommissionStatusApproved)}
	return &internalcommissions.Page{Items: items, Meta: pagination.NewMeta(params, 1)}, nil
}

func (f *fakeService) ListForExport(_ context.Context, filter internalcommissions.Filter, limit int) ([]models.Commission, error) {
	f.filter = filter
	f.exportLimit = limit
	return f.rows, nil
}

func (f *fakeService) Summarize(_ context.Context, filter internalcommissions.Filter) (*internalcommissions.Summary, error) {
	f.filter = filter
	return &internalcommissions.Summary{Count: 2}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "api-test", Output: io.Discard})
}

func newRouter(svc Service) http.Handler {
	logg := testLogger()
	clock := func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Get("/", List(svc, logg))
	r.Post("/", Create(svc, logg))
	r.Get("/summary", Summary(svc, logg))
	r.Get("/export", Export(svc, 500, clock, logg))
	r.Post("/bulk", Bulk(svc, logg))
	r.Get("/{id}", Get(svc, logg))
	r.Post("/{id}/approve", Approve(svc, logg))
	r.Post("/{id}/reject", Reject(svc, logg))
	r.Post("/{id}/pay", Pay(svc, logg))
	r.Post("/{id}/recalculate", Recalculate(svc, logg))
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestCreate(t *testing.T) {
	svc := &fakeService{}
	resellerID := uuid.New()
	rec := do(t, newRouter(svc), http.MethodPost, "/", `{"reseller_id":"`+resellerID.String()+`","sale_amount":"250.00","transaction_reference":"pay_123","client_name":"Initech"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, resellerID, svc.created.ResellerID)
	assert.True(t, decimal.RequireFromString("250").Equal(svc.created.SaleAmount))
	assert.Nil(t, svc.created.CommissionRate)

	var body Commission
	decodeData(t, rec, &body)
	assert.Equal(t, "pending", body.Status)
	assert.Equal(t, "10", body.Amount.String())
}

func TestCreateMapsServiceErrors(t *testing.T) {
	svc := &fakeService{err: pkgerrors.New(pkgerrors.CodeDuplicateTransaction, "transaction reference already recorded")}
	rec := do(t, newRouter(svc), http.MethodPost, "/", `{"reseller_id":"`+uuid.NewString()+`","sale_amount":"10","transaction_reference":"dup"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var env types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, string(pkgerrors.CodeDuplicateTransaction), env.Error.Code)
}

func TestCreateValidatesBody(t *testing.T) {
	rec := do(t, newRouter(&fakeService{}), http.MethodPost, "/", `{"reseller_id":"x","sale_amount":"10"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListParsesFilters(t *testing.T) {
	svc := &fakeService{}
	resellerID := uuid.New()
	rec := do(t, newRouter(svc), http.MethodGet, "/?reseller_id="+resellerID.String()+"&status=approved,paid&min_amount=5&from=2026-03-01&to=2026-03-31&search=acme&uninvoiced=true&page_size=10", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, resellerID, *svc.filter.ResellerID)
	assert.Equal(t, []enums.CommissionStatus{enums.CommissionStatusApproved, enums.CommissionStatusPaid}, svc.filter.Statuses)
	assert.Equal(t, "acme", svc.filter.Search)
	assert.True(t, svc.filter.Uninvoiced)
	assert.Equal(t, time.Date(2026, 3, 31, 23, 59, 59, 999999999, time.UTC), *svc.filter.To)

	var env struct {
		Data []Commission    `json:"data"`
		Meta pagination.Meta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Len(t, env.Data, 1)
	assert.Equal(t, 10, env.Meta.PageSize)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	rec := do(t, newRouter(&fakeService{}), http.MethodGet, "/?status=settled", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitions(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc)
	id := uuid.New()

	rec := do(t, h, http.MethodPost, "/"+id.String()+"/approve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body Commission
	decodeData(t, rec, &body)
	assert.Equal(t, "approved", body.Status)
	assert.Equal(t, id.String(), body.ID)

	rec = do(t, h, http.MethodPost, "/"+id.String()+"/reject", `{"reason":"fraud"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fraud", svc.rejectReason)

	rec = do(t, h, http.MethodPost, "/"+id.String()+"/reject", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", svc.rejectReason)

	rec = do(t, h, http.MethodPost, "/not-a-uuid/pay", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = pkgerrors.New(pkgerrors.CodeNotFound, "commission not found")
	rec = do(t, h, http.MethodGet, "/"+id.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulk(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc)
	a, b := uuid.New(), uuid.New()

	rec := do(t, h, http.MethodPost, "/bulk", `{"action":"approve","ids":["`+a.String()+`","`+b.String()+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []uuid.UUID{a, b}, svc.approvedIDs)

	rec = do(t, h, http.MethodPost, "/bulk", `{"action":"reject","filters":{"status":["pending"],"search":"acme"},"reason":"cleanup"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, svc.filtered)
	assert.Equal(t, "acme", svc.filter.Search)
	assert.Equal(t, "cleanup", svc.rejectReason)

	tests := []struct {
		name string
		body string
	}{
		{"unknown action", `{"action":"archive","ids":["` + a.String() + `"]}`},
		{"no selector", `{"action":"approve"}`},
		{"both selectors", `{"action":"approve","ids":["` + a.String() + `"],"filters":{}}`},
		{"pay by filter", `{"action":"pay","filters":{}}`},
		{"bad id", `{"action":"approve","ids":["nope"]}`},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodPost, "/bulk", tt.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.name)
	}
}

func TestExport(t *testing.T) {
	svc := &fakeService{}
	svc.rows = []models.Commission{*svc.commission(uuid.New(), enums.CommissionStatusApproved)}
	h := newRouter(svc)

	rec := do(t, h, http.MethodGet, "/export?status=approved", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Record-Count"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "commissions_20260310.csv")
	assert.Equal(t, 500, svc.exportLimit)

	rec = do(t, h, http.MethodGet, "/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummary(t *testing.T) {
	rec := do(t, newRouter(&fakeService{}), http.MethodGet, "/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary internalcommissions.Summary
	decodeData(t, rec, &summary)
	assert.Equal(t, 2, summary.Count)
}
