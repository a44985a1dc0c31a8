/*
handlers.go - HTTP API handlers for the balance engine

PURPOSE:
  Exposes the split/balance engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Groups:
    POST   /api/groups                        Create group
    GET    /api/groups/{id}                   Get group
    GET    /api/groups/{id}/expenses          List active expenses
    GET    /api/groups/{id}/settlements       List active settlements
    GET    /api/groups/{id}/balances          Balance projection
    GET    /api/groups/{id}/debts             Simplified debts per currency
    POST   /api/groups/{id}/recompute         Force synchronous recompute

  Expenses:
    POST   /api/groups/{id}/expenses          Record expense
    GET    /api/expenses/{id}                 Get expense (any chain state)
    PUT    /api/expenses/{id}                 Edit = supersede with replacement
    DELETE /api/expenses/{id}                 Soft delete

  Settlements:
    POST   /api/groups/{id}/settlements       Record payment
    GET    /api/settlements/{id}              Get settlement
    DELETE /api/settlements/{id}              Soft delete

WRITE FLOW:
  Every expense/settlement write commits to storage first, then marks
  the (group, currency) key stale on the dispatcher. The projection
  catches up asynchronously; reads meanwhile serve the last committed
  version plus a staleness flag.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Group/expense/settlement not found
  - 409: Editing or deleting a superseded expense
  - 503: Recompute retries exhausted (caller may retry)
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware. Callers identify themselves in request
  bodies (paid_by, deleted_by); an auth layer belongs in front of this
  service.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - worker/worker.go: the dispatcher MarkStale feeds
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/split-engine/engine"
	"github.com/warp/split-engine/money"
	"github.com/warp/split-engine/worker"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      engine.Store
	Recomputer *engine.Recomputer
	Dispatcher *worker.Dispatcher
}

// NewHandler creates a handler over the given store and recompute path.
func NewHandler(store engine.Store, rec *engine.Recomputer, disp *worker.Dispatcher) *Handler {
	return &Handler{Store: store, Recomputer: rec, Dispatcher: disp}
}

// markStale notifies the dispatcher that a write invalidated the
// projection for one (group, currency) key. Nil dispatcher (tests that
// recompute synchronously) is a no-op.
func (h *Handler) markStale(groupID engine.GroupID, currency money.Currency) {
	if h.Dispatcher != nil {
		h.Dispatcher.MarkStale(worker.Key{Group: groupID, Currency: currency})
	}
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// CreateGroup creates a group.
// POST /api/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Group name is required", nil)
		return
	}
	if len(req.Members) == 0 {
		writeError(w, http.StatusBadRequest, "Group needs at least one member", nil)
		return
	}

	g := &engine.Group{Name: req.Name, Members: toUserIDs(req.Members)}
	if err := h.Store.CreateGroup(r.Context(), g); err != nil {
		writeDomainError(w, "Failed to create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(g))
}

// GetGroup returns a single group.
// GET /api/groups/{id}
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.Store.GetGroup(r.Context(), engine.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get group", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(g))
}

// ListGroupExpenses returns the group's active expenses (chain tips only).
// GET /api/groups/{id}/expenses
func (h *Handler) ListGroupExpenses(w http.ResponseWriter, r *http.Request) {
	groupID := engine.GroupID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetGroup(r.Context(), groupID); err != nil {
		writeDomainError(w, "Failed to get group", err)
		return
	}
	expenses, err := h.Store.ListGroupExpenses(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to list expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTOs(expenses))
}

// ListGroupSettlements returns the group's active settlements.
// GET /api/groups/{id}/settlements
func (h *Handler) ListGroupSettlements(w http.ResponseWriter, r *http.Request) {
	groupID := engine.GroupID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetGroup(r.Context(), groupID); err != nil {
		writeDomainError(w, "Failed to get group", err)
		return
	}
	settlements, err := h.Store.ListGroupSettlements(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to list settlements", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTOs(settlements))
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// CreateExpense records a new expense and marks the projection stale.
// POST /api/groups/{id}/expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	groupID := engine.GroupID(chi.URLParam(r, "id"))
	group, err := h.Store.GetGroup(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to get group", err)
		return
	}

	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	e, err := h.expenseFromRequest(group, &req)
	if err != nil {
		writeDomainError(w, "Invalid expense", err)
		return
	}
	if err := h.Store.CreateExpense(r.Context(), e); err != nil {
		writeDomainError(w, "Failed to create expense", err)
		return
	}

	h.markStale(groupID, e.Currency())
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

// GetExpense returns one expense, including soft-deleted and superseded
// chain members (the chain is part of the audit trail).
// GET /api/expenses/{id}
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := h.Store.GetExpense(r.Context(), engine.ExpenseID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// UpdateExpense edits an expense by superseding it with a replacement.
// The original stays in storage, linked via superseded_by. Editing a
// superseded expense returns 409: edits must target the chain tip.
// PUT /api/expenses/{id}
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := engine.ExpenseID(chi.URLParam(r, "id"))
	original, err := h.Store.GetExpense(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get expense", err)
		return
	}
	group, err := h.Store.GetGroup(r.Context(), original.GroupID)
	if err != nil {
		writeDomainError(w, "Failed to get group", err)
		return
	}

	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	replacement, err := h.expenseFromRequest(group, &req)
	if err != nil {
		writeDomainError(w, "Invalid expense", err)
		return
	}
	if err := h.Store.SupersedeExpense(r.Context(), id, replacement); err != nil {
		writeDomainError(w, "Failed to update expense", err)
		return
	}

	// The edit may have changed currency; both slices are now stale.
	h.markStale(original.GroupID, original.Currency())
	if replacement.Currency() != original.Currency() {
		h.markStale(original.GroupID, replacement.Currency())
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(replacement))
}

// DeleteExpense soft-deletes an expense. Deleting a superseded expense
// returns 409; the replacement is the one to delete.
// DELETE /api/expenses/{id}
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := engine.ExpenseID(chi.URLParam(r, "id"))
	e, err := h.Store.GetExpense(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get expense", err)
		return
	}

	var req DeleteRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // body optional
	}

	if err := h.Store.SoftDeleteExpense(r.Context(), id, engine.UserID(req.DeletedBy)); err != nil {
		writeDomainError(w, "Failed to delete expense", err)
		return
	}

	h.markStale(e.GroupID, e.Currency())
	w.WriteHeader(http.StatusNoContent)
}

// expenseFromRequest parses, allocates splits, and validates. Returns
// validation errors for anything the caller got wrong.
func (h *Handler) expenseFromRequest(group *engine.Group, req *CreateExpenseRequest) (*engine.Expense, error) {
	amount, err := money.Parse(req.Amount, money.Currency(req.Currency))
	if err != nil {
		return nil, &engine.ValidationError{Code: engine.CodeNonPositiveAmount, Message: err.Error()}
	}

	participants := toUserIDs(req.Participants)
	for _, p := range participants {
		if !group.HasMember(p) {
			return nil, &engine.ValidationError{
				Code:    engine.CodeSplitUserUnknown,
				Message: "participant " + string(p) + " is not a group member",
			}
		}
	}

	provided, err := parseSplitInputs(req.Splits, engine.SplitType(req.SplitType), amount.Currency)
	if err != nil {
		return nil, err
	}
	splits, err := engine.BuildSplits(engine.SplitType(req.SplitType), amount, participants, provided)
	if err != nil {
		return nil, err
	}

	e := &engine.Expense{
		GroupID:      group.ID,
		PaidBy:       engine.UserID(req.PaidBy),
		Amount:       amount,
		SplitType:    engine.SplitType(req.SplitType),
		Participants: participants,
		Splits:       splits,
	}
	if err := engine.ValidateExpense(e); err != nil {
		return nil, err
	}
	return e, nil
}

func parseSplitInputs(inputs []SplitInput, splitType engine.SplitType, currency money.Currency) ([]engine.Split, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	splits := make([]engine.Split, len(inputs))
	for i, in := range inputs {
		s := engine.Split{UserID: engine.UserID(in.UserID)}
		if in.Amount != "" {
			a, err := money.Parse(in.Amount, currency)
			if err != nil {
				return nil, &engine.ValidationError{Code: engine.CodeSplitMismatch, Message: err.Error()}
			}
			s.Amount = a
		} else {
			s.Amount = money.Zero(currency)
		}
		if in.Percentage != "" {
			p, err := decimal.NewFromString(in.Percentage)
			if err != nil {
				return nil, &engine.ValidationError{Code: engine.CodePercentageSumInvalid, Message: err.Error()}
			}
			s.Percentage = &p
		} else if splitType == engine.SplitPercentage {
			return nil, &engine.ValidationError{
				Code:    engine.CodePercentageSumInvalid,
				Message: "percentage split requires a percentage per share",
			}
		}
		splits[i] = s
	}
	return splits, nil
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// CreateSettlement records a direct payment between two group members.
// POST /api/groups/{id}/settlements
func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	groupID := engine.GroupID(chi.URLParam(r, "id"))
	group, err := h.Store.GetGroup(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to get group", err)
		return
	}

	var req CreateSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := money.Parse(req.Amount, money.Currency(req.Currency))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	for _, u := range []string{req.PayerID, req.PayeeID} {
		if !group.HasMember(engine.UserID(u)) {
			writeError(w, http.StatusBadRequest, "User "+u+" is not a group member", nil)
			return
		}
	}

	st := &engine.Settlement{
		GroupID: groupID,
		PayerID: engine.UserID(req.PayerID),
		PayeeID: engine.UserID(req.PayeeID),
		Amount:  amount,
		Note:    req.Note,
	}
	if req.Date != "" {
		t, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date, want RFC3339", err)
			return
		}
		st.Date = t
	}
	if err := engine.ValidateSettlement(st); err != nil {
		writeDomainError(w, "Invalid settlement", err)
		return
	}
	if err := h.Store.CreateSettlement(r.Context(), st); err != nil {
		writeDomainError(w, "Failed to create settlement", err)
		return
	}

	h.markStale(groupID, st.Currency())
	writeJSON(w, http.StatusCreated, toSettlementDTO(st))
}

// GetSettlement returns one settlement.
// GET /api/settlements/{id}
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	st, err := h.Store.GetSettlement(r.Context(), engine.SettlementID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(st))
}

// DeleteSettlement soft-deletes a settlement (recorded in error).
// DELETE /api/settlements/{id}
func (h *Handler) DeleteSettlement(w http.ResponseWriter, r *http.Request) {
	id := engine.SettlementID(chi.URLParam(r, "id"))
	st, err := h.Store.GetSettlement(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get settlement", err)
		return
	}

	var req DeleteRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.Store.SoftDeleteSettlement(r.Context(), id, engine.UserID(req.DeletedBy)); err != nil {
		writeDomainError(w, "Failed to delete settlement", err)
		return
	}

	h.markStale(st.GroupID, st.Currency())
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalances returns the stored balance projection. A projection that
// lags recent writes is served as-is with state=stale; clients poll or
// call recompute for a synchronous answer.
// GET /api/groups/{id}/balances
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	groupID := engine.GroupID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetGroup(r.Context(), groupID); err != nil {
		writeDomainError(w, "Failed to get group", err)
		return
	}

	bal, _, err := h.Store.ReadGroupBalance(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to read balances", err)
		return
	}
	if bal == nil {
		bal = &engine.GroupBalance{GroupID: groupID}
	}

	dto := toBalanceDTO(bal)
	dto.State = h.projectionState(r.Context(), groupID)
	writeJSON(w, http.StatusOK, dto)
}

// GetDebts returns the simplified debts per currency, lazily recomputing
// currencies missing from the projection.
// GET /api/groups/{id}/debts
func (h *Handler) GetDebts(w http.ResponseWriter, r *http.Request) {
	groupID := engine.GroupID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetGroup(r.Context(), groupID); err != nil {
		writeDomainError(w, "Failed to get group", err)
		return
	}

	debts, err := h.Recomputer.SimplifiedDebts(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to compute debts", err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtsDTO(groupID, debts))
}

// RecomputeBalances forces a synchronous recompute of every currency in
// the group's history and returns the fresh projection.
// POST /api/groups/{id}/recompute
func (h *Handler) RecomputeBalances(w http.ResponseWriter, r *http.Request) {
	groupID := engine.GroupID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetGroup(r.Context(), groupID); err != nil {
		writeDomainError(w, "Failed to get group", err)
		return
	}

	currencies, err := h.Store.ListCurrencies(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to list currencies", err)
		return
	}

	bal := &engine.GroupBalance{GroupID: groupID}
	for _, ccy := range currencies {
		if bal, err = h.Recomputer.Recompute(r.Context(), groupID, ccy); err != nil {
			writeDomainError(w, "Recompute failed", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(bal))
}

// projectionState summarizes per-currency dispatcher states into one
// flag: any stale/recomputing currency makes the whole response stale.
// Keys come from the group's history, not the stored projection: a
// currency written once but not yet projected has no projection slice,
// and that window is exactly the staleness the flag must report.
func (h *Handler) projectionState(ctx context.Context, groupID engine.GroupID) string {
	if h.Dispatcher == nil {
		return ""
	}
	currencies, err := h.Store.ListCurrencies(ctx, groupID)
	if err != nil {
		return ""
	}
	state := string(worker.StateFresh)
	for _, ccy := range currencies {
		s, ok := h.Dispatcher.State(worker.Key{Group: groupID, Currency: ccy})
		if ok && s != worker.StateFresh {
			state = string(s)
		}
	}
	return state
}

// =============================================================================
// HELPERS
// =============================================================================

func toUserIDs(ss []string) []engine.UserID {
	out := make([]engine.UserID, len(ss))
	for i, s := range ss {
		out[i] = engine.UserID(s)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// retryAfterSeconds is the hint sent with 503 responses when the
// optimistic-lock retry budget is exhausted; it covers the recomputer's
// full backoff window, so a retry after it starts with a clean budget.
const retryAfterSeconds = "1"

// writeDomainError maps engine errors onto HTTP statuses. Consistency
// violations deliberately surface as 500: they are server-side bugs,
// never the caller's fault.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	var code string

	var ve *engine.ValidationError
	switch {
	case errors.Is(err, engine.ErrExpenseSuperseded):
		status = http.StatusConflict
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		code = string(ve.Code)
	case engine.IsClientError(err):
		status = http.StatusBadRequest
	case engine.IsNotFound(err):
		status = http.StatusNotFound
	case engine.IsRetryable(err):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
