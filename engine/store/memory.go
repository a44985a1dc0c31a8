// Package store provides an in-memory engine.Store for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/split-engine/engine"
	"github.com/warp/split-engine/money"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements engine.Store with maps and a mutex. The CAS semantics
// on the balance projection match the SQLite implementation exactly so
// recompute tests exercise the real contract.
type Memory struct {
	mu          sync.RWMutex
	groups      map[engine.GroupID]engine.Group
	expenses    map[engine.ExpenseID]engine.Expense
	settlements map[engine.SettlementID]engine.Settlement
	balances    map[engine.GroupID]*engine.GroupBalance
}

var _ engine.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		groups:      make(map[engine.GroupID]engine.Group),
		expenses:    make(map[engine.ExpenseID]engine.Expense),
		settlements: make(map[engine.SettlementID]engine.Settlement),
		balances:    make(map[engine.GroupID]*engine.GroupBalance),
	}
}

func (m *Memory) Close() error { return nil }

// =============================================================================
// GROUPS
// =============================================================================

func (m *Memory) CreateGroup(_ context.Context, g *engine.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = engine.GroupID(uuid.New().String())
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	m.groups[g.ID] = *g
	return nil
}

func (m *Memory) GetGroup(_ context.Context, id engine.GroupID) (*engine.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, engine.ErrGroupNotFound
	}
	out := g
	out.Members = append([]engine.UserID(nil), g.Members...)
	return &out, nil
}

// =============================================================================
// EXPENSES
// =============================================================================

func (m *Memory) CreateExpense(_ context.Context, e *engine.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createExpenseLocked(e)
	return nil
}

func (m *Memory) createExpenseLocked(e *engine.Expense) {
	if e.ID == "" {
		e.ID = engine.ExpenseID(uuid.New().String())
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	m.expenses[e.ID] = *e
}

func (m *Memory) GetExpense(_ context.Context, id engine.ExpenseID) (*engine.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.expenses[id]
	if !ok {
		return nil, engine.ErrExpenseNotFound
	}
	out := e
	return &out, nil
}

func (m *Memory) SupersedeExpense(_ context.Context, originalID engine.ExpenseID, replacement *engine.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	orig, ok := m.expenses[originalID]
	if !ok {
		return engine.ErrExpenseNotFound
	}
	if orig.Superseded() {
		return engine.ErrExpenseSuperseded
	}
	if orig.DeletedAt != nil {
		return engine.ErrExpenseNotFound
	}

	m.createExpenseLocked(replacement)

	now := time.Now().UTC()
	orig.SupersededBy = replacement.ID
	orig.DeletedAt = &now
	orig.UpdatedAt = now
	m.expenses[originalID] = orig
	return nil
}

func (m *Memory) SoftDeleteExpense(_ context.Context, id engine.ExpenseID, deletedBy engine.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.expenses[id]
	if !ok {
		return engine.ErrExpenseNotFound
	}
	if e.Superseded() {
		return engine.ErrExpenseSuperseded
	}
	if e.DeletedAt != nil {
		return engine.ErrExpenseNotFound
	}

	now := time.Now().UTC()
	e.DeletedAt = &now
	e.DeletedBy = deletedBy
	e.UpdatedAt = now
	m.expenses[id] = e
	return nil
}

func (m *Memory) ListActiveExpenses(_ context.Context, groupID engine.GroupID, currency money.Currency) ([]engine.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Expense
	for _, e := range m.expenses {
		if e.GroupID == groupID && e.Currency() == currency && e.Active() {
			out = append(out, e)
		}
	}
	sortExpenses(out)
	return out, nil
}

func (m *Memory) ListGroupExpenses(_ context.Context, groupID engine.GroupID) ([]engine.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Expense
	for _, e := range m.expenses {
		if e.GroupID == groupID && e.Active() {
			out = append(out, e)
		}
	}
	sortExpenses(out)
	return out, nil
}

func sortExpenses(es []engine.Expense) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.Before(es[j].CreatedAt)
		}
		return es[i].ID < es[j].ID
	})
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func (m *Memory) CreateSettlement(_ context.Context, s *engine.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = engine.SettlementID(uuid.New().String())
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Date.IsZero() {
		s.Date = s.CreatedAt
	}
	m.settlements[s.ID] = *s
	return nil
}

func (m *Memory) GetSettlement(_ context.Context, id engine.SettlementID) (*engine.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settlements[id]
	if !ok {
		return nil, engine.ErrSettlementNotFound
	}
	out := s
	return &out, nil
}

func (m *Memory) SoftDeleteSettlement(_ context.Context, id engine.SettlementID, deletedBy engine.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settlements[id]
	if !ok || s.DeletedAt != nil {
		return engine.ErrSettlementNotFound
	}
	now := time.Now().UTC()
	s.DeletedAt = &now
	s.DeletedBy = deletedBy
	m.settlements[id] = s
	return nil
}

func (m *Memory) ListActiveSettlements(_ context.Context, groupID engine.GroupID, currency money.Currency) ([]engine.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Settlement
	for _, s := range m.settlements {
		if s.GroupID == groupID && s.Currency() == currency && s.Active() {
			out = append(out, s)
		}
	}
	sortSettlements(out)
	return out, nil
}

func (m *Memory) ListGroupSettlements(_ context.Context, groupID engine.GroupID) ([]engine.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Settlement
	for _, s := range m.settlements {
		if s.GroupID == groupID && s.Active() {
			out = append(out, s)
		}
	}
	sortSettlements(out)
	return out, nil
}

func sortSettlements(ss []engine.Settlement) {
	sort.Slice(ss, func(i, j int) bool {
		if !ss[i].CreatedAt.Equal(ss[j].CreatedAt) {
			return ss[i].CreatedAt.Before(ss[j].CreatedAt)
		}
		return ss[i].ID < ss[j].ID
	})
}

// =============================================================================
// BALANCE PROJECTION - compare-and-swap
// =============================================================================

func (m *Memory) ReadGroupBalance(_ context.Context, groupID engine.GroupID) (*engine.GroupBalance, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bal, ok := m.balances[groupID]
	if !ok {
		return nil, 0, nil
	}
	return bal.Clone(), bal.Version, nil
}

func (m *Memory) WriteGroupBalanceIfVersionMatches(_ context.Context, groupID engine.GroupID, bal *engine.GroupBalance, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.balances[groupID]
	switch {
	case !ok && expectedVersion != 0:
		return engine.ErrConcurrentModification
	case ok && current.Version != expectedVersion:
		return engine.ErrConcurrentModification
	}
	m.balances[groupID] = bal.Clone()
	return nil
}

// =============================================================================
// CURRENCIES
// =============================================================================

func (m *Memory) ListCurrencies(_ context.Context, groupID engine.GroupID) ([]money.Currency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := map[money.Currency]bool{}
	for _, e := range m.expenses {
		if e.GroupID == groupID && e.Active() {
			seen[e.Currency()] = true
		}
	}
	for _, s := range m.settlements {
		if s.GroupID == groupID && s.Active() {
			seen[s.Currency()] = true
		}
	}
	out := make([]money.Currency, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
