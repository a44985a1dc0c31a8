package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/split-engine/api"
	"github.com/warp/split-engine/engine"
	"github.com/warp/split-engine/engine/store"
	"github.com/warp/split-engine/worker"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newTestServer runs the full router over the in-memory store. No
// dispatcher: balance reads go through the lazy recompute path, which
// keeps the tests deterministic.
func newTestServer(t *testing.T) *httptest.Server {
	mem := store.NewMemory()
	rec := engine.NewRecomputer(mem)
	rec.Sleep = func(time.Duration) {}
	h := api.NewHandler(mem, rec, nil)
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func createTestGroup(t *testing.T, srv *httptest.Server, members ...string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/groups", map[string]any{
		"name": "trip", "members": members,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func createTestExpense(t *testing.T, srv *httptest.Server, groupID string, req map[string]any) map[string]any {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+groupID+"/expenses", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", body)
	return body
}

// =============================================================================
// GROUP ENDPOINTS
// =============================================================================

func TestAPI_GroupLifecycle(t *testing.T) {
	srv := newTestServer(t)

	groupID := createTestGroup(t, srv, "alice", "bob")
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+groupID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "trip", body["name"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/groups/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/groups", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// EXPENSE ENDPOINTS
// =============================================================================

func TestAPI_ExpenseAndDebtsFlow(t *testing.T) {
	// GIVEN: Alice pays 100.00 USD split equally with Bob
	// WHEN: Reading the simplified debts
	// THEN: One transfer, Bob pays Alice 50.00

	srv := newTestServer(t)
	groupID := createTestGroup(t, srv, "alice", "bob")

	createTestExpense(t, srv, groupID, map[string]any{
		"paid_by": "alice", "amount": "100.00", "currency": "USD",
		"split_type": "equal", "participants": []string{"alice", "bob"},
	})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+groupID+"/debts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	debts := body["debts"].(map[string]any)["USD"].([]any)
	require.Len(t, debts, 1)
	transfer := debts[0].(map[string]any)
	assert.Equal(t, "bob", transfer["from"])
	assert.Equal(t, "alice", transfer["to"])
	assert.Equal(t, "50.00", transfer["amount"])
}

func TestAPI_ExpenseValidationErrors(t *testing.T) {
	srv := newTestServer(t)
	groupID := createTestGroup(t, srv, "alice", "bob")

	cases := []struct {
		name string
		req  map[string]any
	}{
		{"percentages under 100", map[string]any{
			"paid_by": "alice", "amount": "100.00", "currency": "USD",
			"split_type": "percentage", "participants": []string{"alice", "bob"},
			"splits": []map[string]any{
				{"user_id": "alice", "percentage": "50"},
				{"user_id": "bob", "percentage": "49"},
			},
		}},
		{"exact splits off by a cent", map[string]any{
			"paid_by": "alice", "amount": "50.00", "currency": "USD",
			"split_type": "exact", "participants": []string{"alice", "bob"},
			"splits": []map[string]any{
				{"user_id": "alice", "amount": "25.00"},
				{"user_id": "bob", "amount": "24.99"},
			},
		}},
		{"payer not participating", map[string]any{
			"paid_by": "alice", "amount": "10.00", "currency": "USD",
			"split_type": "equal", "participants": []string{"bob"},
		}},
		{"participant outside group", map[string]any{
			"paid_by": "alice", "amount": "10.00", "currency": "USD",
			"split_type": "equal", "participants": []string{"alice", "mallory"},
		}},
		{"sub-cent amount", map[string]any{
			"paid_by": "alice", "amount": "10.001", "currency": "USD",
			"split_type": "equal", "participants": []string{"alice", "bob"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+groupID+"/expenses", tc.req)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body: %v", body)
		})
	}
}

func TestAPI_EditSupersedesExpense(t *testing.T) {
	// GIVEN: An expense edited via PUT
	// THEN: The original shows superseded_by, deleting it returns 409,
	//       and debts reflect only the replacement

	srv := newTestServer(t)
	groupID := createTestGroup(t, srv, "alice", "bob")

	created := createTestExpense(t, srv, groupID, map[string]any{
		"paid_by": "alice", "amount": "100.00", "currency": "USD",
		"split_type": "equal", "participants": []string{"alice", "bob"},
	})
	originalID := created["id"].(string)

	resp, updated := doJSON(t, http.MethodPut, srv.URL+"/api/expenses/"+originalID, map[string]any{
		"paid_by": "alice", "amount": "60.00", "currency": "USD",
		"split_type": "equal", "participants": []string{"alice", "bob"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	replacementID := updated["id"].(string)
	require.NotEqual(t, originalID, replacementID)

	resp, original := doJSON(t, http.MethodGet, srv.URL+"/api/expenses/"+originalID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, replacementID, original["superseded_by"])

	// Superseded rows are terminal.
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/expenses/"+originalID,
		map[string]any{"deleted_by": "alice"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/expenses/"+originalID, map[string]any{
		"paid_by": "alice", "amount": "10.00", "currency": "USD",
		"split_type": "equal", "participants": []string{"alice", "bob"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, debtsBody := doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+groupID+"/debts", nil)
	debts := debtsBody["debts"].(map[string]any)["USD"].([]any)
	require.Len(t, debts, 1)
	assert.Equal(t, "30.00", debts[0].(map[string]any)["amount"])
}

func TestAPI_DeleteExpenseSettlesDebts(t *testing.T) {
	srv := newTestServer(t)
	groupID := createTestGroup(t, srv, "alice", "bob")

	created := createTestExpense(t, srv, groupID, map[string]any{
		"paid_by": "alice", "amount": "100.00", "currency": "USD",
		"split_type": "equal", "participants": []string{"alice", "bob"},
	})
	id := created["id"].(string)

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/expenses/"+id,
		map[string]any{"deleted_by": "bob"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, debtsBody := doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+groupID+"/debts", nil)
	debts := debtsBody["debts"].(map[string]any)["USD"].([]any)
	assert.Empty(t, debts)
}

// =============================================================================
// SETTLEMENT ENDPOINTS
// =============================================================================

func TestAPI_SettlementZeroesDebt(t *testing.T) {
	// GIVEN: Bob owes Alice 50.00 and records a settlement for it
	// THEN: Debts come back empty

	srv := newTestServer(t)
	groupID := createTestGroup(t, srv, "alice", "bob")

	createTestExpense(t, srv, groupID, map[string]any{
		"paid_by": "alice", "amount": "100.00", "currency": "USD",
		"split_type": "equal", "participants": []string{"alice", "bob"},
	})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+groupID+"/settlements", map[string]any{
		"payer_id": "bob", "payee_id": "alice", "amount": "50.00", "currency": "USD",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, debtsBody := doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+groupID+"/debts", nil)
	debts := debtsBody["debts"].(map[string]any)["USD"].([]any)
	assert.Empty(t, debts)
}

func TestAPI_SelfSettlementRejected(t *testing.T) {
	srv := newTestServer(t)
	groupID := createTestGroup(t, srv, "alice", "bob")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+groupID+"/settlements", map[string]any{
		"payer_id": "alice", "payee_id": "alice", "amount": "5.00", "currency": "USD",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// BALANCE ENDPOINTS
// =============================================================================

func TestAPI_RecomputeAndBalances(t *testing.T) {
	// GIVEN: Multi-currency history
	// WHEN: Forcing a recompute and reading balances
	// THEN: Both currency slices are present with exact nets

	srv := newTestServer(t)
	groupID := createTestGroup(t, srv, "alice", "bob", "carol")

	createTestExpense(t, srv, groupID, map[string]any{
		"paid_by": "alice", "amount": "100.00", "currency": "USD",
		"split_type": "equal", "participants": []string{"alice", "bob", "carol"},
	})
	createTestExpense(t, srv, groupID, map[string]any{
		"paid_by": "bob", "amount": "3000", "currency": "JPY",
		"split_type": "equal", "participants": []string{"alice", "bob", "carol"},
	})

	resp, recomputed := doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+groupID+"/recompute", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	currencies := recomputed["currencies"].(map[string]any)
	require.Contains(t, currencies, "USD")
	require.Contains(t, currencies, "JPY")

	resp, balances := doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+groupID+"/balances", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	usd := balances["currencies"].(map[string]any)["USD"].(map[string]any)
	users := usd["users"].(map[string]any)
	alice := users["alice"].(map[string]any)
	// 100.00 / 3 = 33.34 + 33.33 + 33.33; alice is owed the other two shares.
	assert.Equal(t, "66.66", alice["net_balance"])

	jpy := balances["currencies"].(map[string]any)["JPY"].(map[string]any)
	bob := jpy["users"].(map[string]any)["bob"].(map[string]any)
	assert.Equal(t, "2000", bob["net_balance"])
}

func TestAPI_BalancesReportStaleBeforeFirstProjection(t *testing.T) {
	// GIVEN: A dispatcher that has accepted a write but not yet drained it,
	//        so the currency has no projection slice at all
	// WHEN: Reading balances
	// THEN: The empty projection is flagged stale, not fresh

	mem := store.NewMemory()
	rec := engine.NewRecomputer(mem)
	rec.Sleep = func(time.Duration) {}
	disp := worker.NewDispatcher(rec, 0) // queues keys, never recomputes
	disp.Start()
	t.Cleanup(disp.Stop)

	h := api.NewHandler(mem, rec, disp)
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)

	groupID := createTestGroup(t, srv, "alice", "bob")
	createTestExpense(t, srv, groupID, map[string]any{
		"paid_by": "alice", "amount": "100.00", "currency": "USD",
		"split_type": "equal", "participants": []string{"alice", "bob"},
	})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+groupID+"/balances", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["version"])
	assert.Equal(t, string(worker.StateStale), body["state"])
}

// casLoserStore fails every conditional projection write, as if a
// concurrent writer always commits first.
type casLoserStore struct {
	engine.Store
}

func (c *casLoserStore) WriteGroupBalanceIfVersionMatches(context.Context, engine.GroupID, *engine.GroupBalance, int64) error {
	return engine.ErrConcurrentModification
}

func TestAPI_RecomputeExhaustionReturns503WithRetryAfter(t *testing.T) {
	// GIVEN: Sustained lock contention exhausting the retry budget
	// WHEN: Forcing a recompute
	// THEN: 503 with a Retry-After hint for the caller

	flaky := &casLoserStore{Store: store.NewMemory()}
	rec := engine.NewRecomputer(flaky)
	rec.Sleep = func(time.Duration) {}
	h := api.NewHandler(flaky, rec, nil)
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)

	groupID := createTestGroup(t, srv, "alice", "bob")
	createTestExpense(t, srv, groupID, map[string]any{
		"paid_by": "alice", "amount": "100.00", "currency": "USD",
		"split_type": "equal", "participants": []string{"alice", "bob"},
	})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+groupID+"/recompute", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestAPI_BalancesForQuietGroup(t *testing.T) {
	// A group with no history returns an empty projection, not an error.
	srv := newTestServer(t)
	groupID := createTestGroup(t, srv, "alice")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/groups/"+groupID+"/balances", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["version"])
}

func TestAPI_Healthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_MetricsExposed(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
