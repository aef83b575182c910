package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/memstore"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

func newInventoryServer(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	log := zap.NewNop()
	router := NewRouter()
	h := &InventoryHandler{
		Ledger: ledger.New(store, log),
		Resv:   reservation.NewManager(store, 15*time.Minute, log),
	}
	h.Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestAdjustAndBalanceEndpoints(t *testing.T) {
	srv, store := newInventoryServer(t)
	store.SeedVariant("v1", 5, 0)

	resp, err := http.Post(srv.URL+"/inventory/adjustments", "application/json",
		strings.NewReader(`{"variant_id":"v1","delta":5,"reason":"admin_adjustment"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/variants/v1/balance")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Unknown variants are 404, depleting below zero is 409.
	resp, err = http.Get(srv.URL + "/variants/ghost/balance")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/inventory/adjustments", "application/json",
		strings.NewReader(`{"variant_id":"v1","delta":-100,"reason":"admin_adjustment"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRegisterVariantEndpoint(t *testing.T) {
	srv, _ := newInventoryServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/variants/v9",
		strings.NewReader(`{"low_stock_threshold":3}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/variants/v9/available")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
