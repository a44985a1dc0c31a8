/*
Package engine is the core balance engine: split calculation, balance
aggregation, debt simplification, and the optimistic-lock recompute path.

PURPOSE:
  Turns a group's transaction history (expenses + settlements, partitioned
  by currency) into net per-user balances and a minimal set of pairwise
  transfers, and keeps the cached GroupBalance projection consistent under
  concurrent writes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Expense:      one shared cost with per-participant splits
  - Settlement:   a direct payment between two users
  - GroupBalance: the derived, versioned per-group projection
  - Transfer:     a "debtor pays creditor X" settlement instruction

DESIGN PRINCIPLES:
  1. Immutability: expenses are never edited in place. An "update" writes a
     replacement and links the original to it via SupersededBy. The full
     edit chain stays in storage; only the chain tip aggregates.
  2. Precision: all money is money.Amount (decimal-backed), never float.
  3. Single writer path: GroupBalance is owned by the Recomputer. Nothing
     else writes it.

SEE ALSO:
  - split.go:     per-participant allocation
  - aggregate.go: history -> net balances
  - simplify.go:  net balances -> transfers
  - recompute.go: versioned projection rebuild
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/split-engine/money"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type GroupID string
type UserID string
type ExpenseID string
type SettlementID string

// =============================================================================
// GROUP
// =============================================================================

// Group is a set of users who share expenses.
type Group struct {
	ID        GroupID
	Name      string
	Members   []UserID
	CreatedAt time.Time
}

// HasMember reports whether the user belongs to the group.
func (g *Group) HasMember(u UserID) bool {
	for _, m := range g.Members {
		if m == u {
			return true
		}
	}
	return false
}

// =============================================================================
// EXPENSE - One shared cost
// =============================================================================

type SplitType string

const (
	SplitEqual      SplitType = "equal"
	SplitExact      SplitType = "exact"
	SplitPercentage SplitType = "percentage"
)

// Split is one participant's allocated share of an expense.
// Percentage is set only for percentage-type expenses.
type Split struct {
	UserID     UserID           `json:"user_id"`
	Amount     money.Amount     `json:"amount"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
}

// Expense records one shared cost.
//
// Lifecycle: created once; "edited" by writing a replacement expense and
// setting SupersededBy on the original (which is also soft-deleted);
// deleted by setting DeletedAt/DeletedBy. A superseded expense is
// terminal: it can never be deleted or superseded again.
type Expense struct {
	ID           ExpenseID
	GroupID      GroupID
	PaidBy       UserID
	Amount       money.Amount
	SplitType    SplitType
	Participants []UserID // ordered; remainder cents go to the first ones
	Splits       []Split

	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
	DeletedBy    UserID
	SupersededBy ExpenseID // replacement expense, empty if this is the chain tip
}

// Currency returns the expense currency (carried by its amount).
func (e *Expense) Currency() money.Currency { return e.Amount.Currency }

// Active reports whether the expense counts toward aggregation:
// not soft-deleted and not superseded.
func (e *Expense) Active() bool {
	return e.DeletedAt == nil && e.SupersededBy == ""
}

// Superseded reports whether a replacement expense exists.
func (e *Expense) Superseded() bool { return e.SupersededBy != "" }

// HasParticipant reports whether the user is in the participant set.
func (e *Expense) HasParticipant(u UserID) bool {
	for _, p := range e.Participants {
		if p == u {
			return true
		}
	}
	return false
}

// =============================================================================
// SETTLEMENT - Direct payment between two users
// =============================================================================

type Settlement struct {
	ID      SettlementID
	GroupID GroupID
	PayerID UserID // who handed over money (debtor settling up)
	PayeeID UserID // who received it (creditor being paid)
	Amount  money.Amount
	Date    time.Time
	Note    string

	CreatedAt time.Time
	DeletedAt *time.Time
	DeletedBy UserID
}

func (s *Settlement) Currency() money.Currency { return s.Amount.Currency }

func (s *Settlement) Active() bool { return s.DeletedAt == nil }

// =============================================================================
// GROUP BALANCE - Derived, versioned projection
// =============================================================================

// Transfer is one simplified debt: From pays To the given amount.
type Transfer struct {
	From   UserID       `json:"from"`
	To     UserID       `json:"to"`
	Amount money.Amount `json:"amount"`
}

// UserBalance is one user's position within a single currency.
// Owes/OwedBy are derived from the simplified transfers, not from raw
// all-pairs debts; Net is the canonical value.
type UserBalance struct {
	Owes   map[UserID]money.Amount `json:"owes"`
	OwedBy map[UserID]money.Amount `json:"owed_by"`
	Net    money.Amount            `json:"net_balance"`
}

// CurrencyBalance is the projection for one (group, currency) pair.
type CurrencyBalance struct {
	Users     map[UserID]UserBalance `json:"users"`
	Transfers []Transfer             `json:"simplified_debts"`
}

// GroupBalance is the cached per-group snapshot, one CurrencyBalance per
// currency seen in the group's history. Version is the optimistic-lock
// counter: every successful recompute writes Version = read version + 1,
// conditional on the stored version still matching the read.
type GroupBalance struct {
	GroupID     GroupID                             `json:"group_id"`
	Currencies  map[money.Currency]*CurrencyBalance `json:"currencies"`
	Version     int64                               `json:"version"`
	LastUpdated time.Time                           `json:"last_updated"`
}

// Clone returns a deep copy. The recomputer mutates a clone so a failed
// CAS write never leaves a half-updated projection in memory.
func (gb *GroupBalance) Clone() *GroupBalance {
	if gb == nil {
		return nil
	}
	out := &GroupBalance{
		GroupID:     gb.GroupID,
		Currencies:  make(map[money.Currency]*CurrencyBalance, len(gb.Currencies)),
		Version:     gb.Version,
		LastUpdated: gb.LastUpdated,
	}
	for ccy, cb := range gb.Currencies {
		cc := &CurrencyBalance{
			Users:     make(map[UserID]UserBalance, len(cb.Users)),
			Transfers: append([]Transfer(nil), cb.Transfers...),
		}
		for u, ub := range cb.Users {
			owes := make(map[UserID]money.Amount, len(ub.Owes))
			for k, v := range ub.Owes {
				owes[k] = v
			}
			owedBy := make(map[UserID]money.Amount, len(ub.OwedBy))
			for k, v := range ub.OwedBy {
				owedBy[k] = v
			}
			cc.Users[u] = UserBalance{Owes: owes, OwedBy: owedBy, Net: ub.Net}
		}
		out.Currencies[ccy] = cc
	}
	return out
}
