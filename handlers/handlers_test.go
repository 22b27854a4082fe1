package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ve-ledger/bank"
	"ve-ledger/db"
	"ve-ledger/handlers"
	"ve-ledger/ledger"
	"ve-ledger/logger"
	"ve-ledger/repository"
	"ve-ledger/routers"
)

func testServer(t *testing.T) *mux.Router {
	t.Helper()
	logger.Logger = zap.NewNop()

	ldb, err := db.NewLevelDB(filepath.Join(t.TempDir(), "api"))
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })

	repo := repository.NewLedgerRepository(ldb)
	tokenBank := bank.NewLevelBank(ldb)
	// epoch starts just before the test so the current period is 0
	led := ledger.NewLedger(repo, tokenBank, time.Now().Unix()-1)
	handler := handlers.NewHandler(led, tokenBank)
	router := mux.NewRouter()
	routers.RegisterRoutes(router, handler)
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func week(n uint64) uint64 {
	return n * ledger.PeriodSeconds
}

func TestCreateLockAndQueryPower(t *testing.T) {
	router := testServer(t)

	rec := doJSON(t, router, "POST", "/bank/deposit", map[string]interface{}{
		"account": "alice", "amount": 1000,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "POST", "/locks", map[string]interface{}{
		"account": "alice", "amount": 100, "duration": week(10),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// boosted initial power at period 0
	want := ledger.Coefficient(10).Mul(decimal.NewFromInt(100))
	rec = doJSON(t, router, "GET", "/voting-power/alice?period=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	power := decimal.RequireFromString(payload["power"].(string))
	assert.True(t, power.Equal(want), "power %s, want %s", power, want)

	rec = doJSON(t, router, "GET", "/total-voting-power?period=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload = decodeBody(t, rec)
	power = decimal.RequireFromString(payload["power"].(string))
	assert.True(t, power.Equal(want), "total %s, want %s", power, want)

	// the staked principal moved to escrow
	rec = doJSON(t, router, "GET", "/bank/balance/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload = decodeBody(t, rec)
	assert.Equal(t, float64(900), payload["balance"])

	// lock record
	rec = doJSON(t, router, "GET", "/locks/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload = decodeBody(t, rec)
	lock := payload["lock"].(map[string]interface{})
	assert.Equal(t, float64(100), lock["amount"])
	assert.Equal(t, float64(10), lock["end"])

	// principal history
	rec = doJSON(t, router, "GET", "/locked-balance/alice?period=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload = decodeBody(t, rec)
	assert.Equal(t, float64(100), payload["amount"])
}

func TestCreateLockErrors(t *testing.T) {
	router := testServer(t)

	// no balance deposited
	rec := doJSON(t, router, "POST", "/locks", map[string]interface{}{
		"account": "carol", "amount": 10, "duration": week(4),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, doJSON(t, router, "POST", "/bank/deposit", map[string]interface{}{
		"account": "alice", "amount": 1000,
	}).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, router, "POST", "/locks", map[string]interface{}{
		"account": "alice", "amount": 100, "duration": week(4),
	}).Code)

	// duplicate lock
	rec = doJSON(t, router, "POST", "/locks", map[string]interface{}{
		"account": "alice", "amount": 100, "duration": week(4),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// duration out of range
	rec = doJSON(t, router, "POST", "/locks", map[string]interface{}{
		"account": "bob", "amount": 100, "duration": week(200),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// withdraw before expiry
	rec = doJSON(t, router, "POST", "/locks/withdraw", map[string]interface{}{
		"account": "alice",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// unknown account
	rec = doJSON(t, router, "GET", "/locks/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// malformed payload
	req := httptest.NewRequest("POST", "/locks", bytes.NewBufferString("{"))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestBlacklistEndpoints(t *testing.T) {
	router := testServer(t)

	// empty batch rejected
	rec := doJSON(t, router, "POST", "/blacklist", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "POST", "/blacklist", map[string]interface{}{
		"add": []string{"mallory", "trudy"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// blacklisted accounts may not lock
	require.Equal(t, http.StatusOK, doJSON(t, router, "POST", "/bank/deposit", map[string]interface{}{
		"account": "mallory", "amount": 100,
	}).Code)
	rec = doJSON(t, router, "POST", "/locks", map[string]interface{}{
		"account": "mallory", "amount": 10, "duration": week(4),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, "GET", "/blacklist/check?accounts=mallory,alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	status := payload["blacklisted"].(map[string]interface{})
	assert.Equal(t, true, status["mallory"])
	assert.Equal(t, false, status["alice"])

	rec = doJSON(t, router, "GET", "/blacklist?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload = decodeBody(t, rec)
	assert.Equal(t, []interface{}{"mallory"}, payload["accounts"])

	rec = doJSON(t, router, "POST", "/blacklist", map[string]interface{}{
		"remove": []string{"trudy"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "GET", "/blacklist", nil)
	payload = decodeBody(t, rec)
	assert.Equal(t, []interface{}{"mallory"}, payload["accounts"])
}

func TestExtendEndpoints(t *testing.T) {
	router := testServer(t)

	require.Equal(t, http.StatusOK, doJSON(t, router, "POST", "/bank/deposit", map[string]interface{}{
		"account": "alice", "amount": 1000,
	}).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, router, "POST", "/locks", map[string]interface{}{
		"account": "alice", "amount": 100, "duration": week(10),
	}).Code)

	rec := doJSON(t, router, "POST", "/locks/extend-amount", map[string]interface{}{
		"account": "alice", "amount": 50,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "POST", "/locks/extend-time", map[string]interface{}{
		"account": "alice", "delta": week(5),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "GET", "/locks/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	lock := payload["lock"].(map[string]interface{})
	assert.Equal(t, float64(150), lock["amount"])
	assert.Equal(t, float64(15), lock["end"])

	// extending past the maximum duration fails
	rec = doJSON(t, router, "POST", "/locks/extend-time", map[string]interface{}{
		"account": "alice", "delta": week(95),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
