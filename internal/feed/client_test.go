package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/finacct/balance-service/internal/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewClient(&config.Config{
		AggregatorURL:      server.URL,
		AggregatorClientID: "client-id",
		AggregatorSecret:   "secret",
	}, log)
}

func TestSyncTransactions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/sync", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"added": [{"transaction_id": "tx-1", "account_id": "acc-1", "amount": "125.40", "type": "income", "date": "2024-01-05T00:00:00Z"}],
			"modified": [],
			"removed": [{"transaction_id": "tx-0"}],
			"next_cursor": "c2",
			"has_more": true
		}`))
	}))

	page, err := client.SyncTransactions(context.Background(), "item-1", "c1")
	require.NoError(t, err)

	require.Len(t, page.Added, 1)
	assert.Equal(t, "tx-1", page.Added[0].TransactionID)
	assert.True(t, page.Added[0].Amount.Equal(decimal.RequireFromString("125.40")))
	require.Len(t, page.Removed, 1)
	assert.Equal(t, "c2", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestSyncTransactions_MutationConflict(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_code": "MUTATION_DURING_PAGINATION", "error_message": "underlying data changed"}`))
	}))

	_, err := client.SyncTransactions(context.Background(), "item-1", "c1")
	assert.ErrorIs(t, err, ErrPaginationMutation)
}

func TestSyncTransactions_ServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.SyncTransactions(context.Background(), "item-1", "")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestGetAccountBalance(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/balance", r.URL.Path)
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
			<BalanceResponse>
				<AccountID>acc-1</AccountID>
				<Current>1042.17</Current>
				<Currency>USD</Currency>
			</BalanceResponse>`))
	}))

	balance, err := client.GetAccountBalance(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1042.17")))
}

func TestGetAccountBalance_MalformedXML(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<BalanceResponse><Wrong>1</Wrong></BalanceResponse>`))
	}))

	_, err := client.GetAccountBalance(context.Background(), "acc-1")
	assert.Error(t, err)
}

func TestGetAccountBalance_Unavailable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.GetAccountBalance(context.Background(), "acc-1")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}
