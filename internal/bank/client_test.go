package bank

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chispitas/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", AccountID: "acc-1", Token: "secret", RatePerSec: 100}, srv.Client(), logx.Nop())
}

func TestTransactions(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/acc-1/transactions/", r.URL.Path)
		assert.Equal(t, "2026-09-20", r.URL.Query().Get("date_from"))
		assert.Equal(t, "2026-10-01", r.URL.Query().Get("date_to"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transactions":{"booked":[
			{"transactionId":"t1","bookingDate":"2026-09-30","transactionAmount":{"amount":"-850.00","currency":"EUR"},"creditorName":"CASERO SL","remittanceInformationUnstructuredArray":["ALQUILER OCTUBRE"]},
			{"transactionId":"t2","bookingDate":"2026-09-28","transactionAmount":{"amount":"250.00","currency":"EUR"},"debtorName":"MARCO POLO"}
		],"pending":[]}}`))
	})

	from := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 1, 9, 5, 0, 0, time.UTC)
	txs, err := c.Transactions(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, txs.Booked, 2)
	assert.Equal(t, -850.0, txs.Booked[0].TransactionAmount.Value())
	assert.Equal(t, "CASERO SL", txs.Booked[0].Counterparty())
	assert.Equal(t, []string{"ALQUILER OCTUBRE"}, txs.Booked[0].Remittance)
	assert.Equal(t, "MARCO POLO", txs.Booked[1].Counterparty())
}

func TestBalancesAndDetails(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts/acc-1/balances/":
			_, _ = w.Write([]byte(`{"balances":[{"balanceAmount":{"amount":"1234.50","currency":"EUR"},"balanceType":"interimAvailable"}]}`))
		case "/accounts/acc-1/details/":
			_, _ = w.Write([]byte(`{"account":{"iban":"ES9121000418450200051332","currency":"EUR","ownerName":"PISO COMPARTIDO"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	bals, err := c.Balances(context.Background())
	require.NoError(t, err)
	require.Len(t, bals, 1)
	assert.Equal(t, 1234.5, bals[0].BalanceAmount.Value())

	acc, err := c.Details(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ES9121000418450200051332", acc.IBAN)
	assert.Equal(t, "PISO COMPARTIDO", acc.OwnerName)
}

func TestRateLimited(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"summary":"Rate limit exceeded","detail":"Request limit exceeded. Please try again in 90 seconds","status_code":429}`))
	})

	_, err := c.Balances(context.Background())
	rl, ok := AsRateLimited(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, 90, rl.Wait.Seconds)
	assert.Equal(t, "1 minuto y 30 segundos", rl.Wait.Text)
}

func TestExternalError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"summary":"Authentication failed","detail":"Token is invalid or expired","status_code":401}`))
	})

	_, err := c.Details(context.Background())
	var ext *ExternalError
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, 401, ext.Status)
	assert.Equal(t, "Authentication failed: Token is invalid or expired", ext.Message)
	_, limited := AsRateLimited(err)
	assert.False(t, limited)
}

func TestUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(Config{BaseURL: srv.URL, AccountID: "a"}, nil, logx.Nop())

	_, err := c.Balances(context.Background())
	var ext *ExternalError
	require.True(t, errors.As(err, &ext))
	assert.Zero(t, ext.Status)
}

func TestCounterpartyFallback(t *testing.T) {
	t.Parallel()

	in := Transaction{TransactionAmount: Amount{Amount: "300"}, CreditorName: "ALEJANDRO"}
	assert.Equal(t, "ALEJANDRO", in.Counterparty())
	out := Transaction{TransactionAmount: Amount{Amount: "-20"}, DebtorName: "YO"}
	assert.Equal(t, "YO", out.Counterparty())
	assert.Zero(t, Amount{Amount: "n/a"}.Value())
}
