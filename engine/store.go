/*
store.go - Persistence interfaces for the balance engine

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  reads history and conditionally writes the balance projection; it never
  sees SQL. Implementations: store/sqlite (production), engine/store
  (in-memory, tests/dev).

EDIT-CHAIN CONTRACT:
  Expenses are an append-only edit chain. SupersedeExpense atomically
  writes the replacement and marks the original superseded+deleted.
  There is no UpdateExpense: in-place split mutation does not exist.
  SoftDeleteExpense fails with ErrExpenseSuperseded on a superseded
  record - chain interiors are immutable-terminal.

OPTIMISTIC LOCK CONTRACT:
  WriteGroupBalanceIfVersionMatches is a compare-and-swap: the write
  succeeds only if the stored version still equals expectedVersion
  (0 = no row yet). On mismatch it returns ErrConcurrentModification and
  the caller must RE-READ and RECOMPUTE - re-attempting the same stale
  write would overwrite a newer result.

SEE ALSO:
  - recompute.go: the only writer of the projection
  - store/sqlite/sqlite.go: production implementation
*/
package engine

import (
	"context"

	"github.com/warp/split-engine/money"
)

// GroupStore persists groups.
type GroupStore interface {
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id GroupID) (*Group, error)
}

// ExpenseStore persists the expense edit chains.
type ExpenseStore interface {
	// CreateExpense writes a new chain tip. Populates ID/CreatedAt if unset.
	CreateExpense(ctx context.Context, e *Expense) error

	GetExpense(ctx context.Context, id ExpenseID) (*Expense, error)

	// SupersedeExpense atomically writes the replacement and marks the
	// original superseded (SupersededBy=replacement.ID) and soft-deleted.
	// Fails with ErrExpenseSuperseded if the original already has a
	// replacement, ErrExpenseNotFound if it is missing or hard-gone.
	SupersedeExpense(ctx context.Context, originalID ExpenseID, replacement *Expense) error

	// SoftDeleteExpense marks a chain tip deleted. Fails with
	// ErrExpenseSuperseded on superseded records.
	SoftDeleteExpense(ctx context.Context, id ExpenseID, deletedBy UserID) error

	// ListActiveExpenses returns non-deleted, non-superseded expenses for
	// the group+currency, ordered by creation time then id.
	ListActiveExpenses(ctx context.Context, groupID GroupID, currency money.Currency) ([]Expense, error)

	// ListGroupExpenses returns every chain tip (active) for the group,
	// all currencies, for the API list view.
	ListGroupExpenses(ctx context.Context, groupID GroupID) ([]Expense, error)
}

// SettlementStore persists settlements.
type SettlementStore interface {
	CreateSettlement(ctx context.Context, s *Settlement) error
	GetSettlement(ctx context.Context, id SettlementID) (*Settlement, error)
	SoftDeleteSettlement(ctx context.Context, id SettlementID, deletedBy UserID) error
	ListActiveSettlements(ctx context.Context, groupID GroupID, currency money.Currency) ([]Settlement, error)
	ListGroupSettlements(ctx context.Context, groupID GroupID) ([]Settlement, error)
}

// BalanceStore is the optimistic-lock storage primitive for the
// GroupBalance projection.
type BalanceStore interface {
	// ReadGroupBalance returns the stored projection and its version.
	// (nil, 0, nil) means no projection exists yet.
	ReadGroupBalance(ctx context.Context, groupID GroupID) (*GroupBalance, int64, error)

	// WriteGroupBalanceIfVersionMatches persists bal only if the stored
	// version equals expectedVersion (0 = must not exist yet). Returns
	// ErrConcurrentModification on version mismatch.
	WriteGroupBalanceIfVersionMatches(ctx context.Context, groupID GroupID, bal *GroupBalance, expectedVersion int64) error
}

// CurrencyLister reports which currencies appear in a group's active
// history. Used by the read path to recompute a missing projection.
type CurrencyLister interface {
	ListCurrencies(ctx context.Context, groupID GroupID) ([]money.Currency, error)
}

// Store is the full persistence surface the engine and API need.
type Store interface {
	GroupStore
	ExpenseStore
	SettlementStore
	BalanceStore
	CurrencyLister
	Close() error
}
