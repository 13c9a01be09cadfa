package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
)

type payoutBody struct {
	ResellerID string           `json:"reseller_id" validate:"required,uuid"`
	Amount     decimal.Decimal  `json:"amount" validate:"money"`
	Method     string           `json:"payment_method" validate:"required,oneof=bank_transfer paypal check"`
	TaxRate    *decimal.Decimal `json:"tax_rate" validate:"omitempty,percent"`
	Entries    []entryBody      `json:"entries" validate:"dive"`
}

type entryBody struct {
	Amount decimal.Decimal `json:"amount" validate:"money"`
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{"valid", `{"reseller_id":"7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10","amount":"50.00","payment_method":"paypal"}`, false, ""},
		{"numeric amount", `{"reseller_id":"7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10","amount":12.5,"payment_method":"check"}`, false, ""},
		{"sub-cent amount", `{"reseller_id":"7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10","amount":"5.005","payment_method":"paypal"}`, true, "amount"},
		{"negative amount", `{"reseller_id":"7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10","amount":"-5","payment_method":"paypal"}`, true, "amount"},
		{"tax rate in range", `{"reseller_id":"7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10","amount":"5","payment_method":"paypal","tax_rate":"0"}`, false, ""},
		{"tax rate above 100", `{"reseller_id":"7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10","amount":"5","payment_method":"paypal","tax_rate":"100.5"}`, true, "tax_rate"},
		{"nested entry", `{"reseller_id":"7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10","amount":"5","payment_method":"paypal","entries":[{"amount":"1"},{"amount":"0"}]}`, true, "entries[1].amount"},
		{"trailing object", `{"reseller_id":"7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10","amount":"5","payment_method":"paypal"} {}`, true, ""},
		{"zero amount", `{"reseller_id":"7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10","amount":"0","payment_method":"paypal"}`, true, "amount"},
		{"bad method", `{"reseller_id":"7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10","amount":"5","payment_method":"cash"}`, true, "payment_method"},
		{"bad uuid", `{"reseller_id":"nope","amount":"5","payment_method":"paypal"}`, true, "reseller_id"},
		{"unknown field", `{"reseller_id":"7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10","amount":"5","payment_method":"paypal","x":1}`, true, ""},
		{"malformed", `{`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dest payoutBody
			err := DecodeJSONBody(req, &dest)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
			if tt.field != "" {
				details, ok := pkgerrors.As(err).Details().(map[string]string)
				require.True(t, ok)
				assert.Contains(t, details, tt.field)
			}
		})
	}
}

func TestQueryParsers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01&to=2026-03-31T23:59:59Z&min_amount=10.5&reseller_id=7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10&status=approved,,paid&page=2&page_size=10", nil)

	from, err := ParseQueryDate(req, "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *from)

	to, err := ParseQueryDate(req, "to")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC), *to)

	minAmount, err := ParseQueryDecimal(req, "min_amount")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.5").Equal(*minAmount))

	id, err := ParseQueryUUID(req, "reseller_id")
	require.NoError(t, err)
	assert.Equal(t, "7f8f1f2e-8d64-4f55-9a57-7d2b4f8d9a10", id.String())

	assert.Equal(t, []string{"approved", "paid"}, ParseQueryList(req, "status"))

	params, err := ParsePagination(req)
	require.NoError(t, err)
	assert.Equal(t, 2, params.Page)
	assert.Equal(t, 10, params.PageSize)

	missing, err := ParseQueryDate(req, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestQueryParsersRejectBadValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=03/01/2026&min_amount=ten&reseller_id=42&page_size=500", nil)

	_, err := ParseQueryDate(req, "from")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryDecimal(req, "min_amount")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryUUID(req, "reseller_id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParsePagination(req)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseURLUUID(t *testing.T) {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", "not-a-uuid")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	_, err := ParseURLUUID(req, "id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseURLUUID(req, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
