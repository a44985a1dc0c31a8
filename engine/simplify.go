/*
simplify.go - Debt Simplifier

PURPOSE:
  Reduces net per-user balances (mixed signs, summing to zero) into a
  minimal list of "A pays B amount X" transfers for one currency.

ALGORITHM (greedy largest-creditor / largest-debtor matching):
  1. Partition users into creditors (net > 0) and debtors (net < 0),
     each in a max-heap ordered by |balance| descending, user id
     ascending as tie-break (determinism for caching and tests).
  2. Pop the largest of each; transfer min(creditor, |debtor|).
  3. Push back whichever side still has a remainder.
  4. Repeat until both heaps are empty.

GUARANTEES:
  - At most n-1 transfers for n users with non-zero balances (every
    round fully settles at least one party).
  - Every transfer amount is positive and exact in the minor unit.
  - Applying the transfers to the input zeroes every balance exactly
    (round-trip invariant).
  - Deterministic output: ties always break lexicographically.

SEE ALSO:
  - aggregate.go: produces the input
  - recompute.go: stores the output in the projection
*/
package engine

import (
	"container/heap"

	"github.com/warp/split-engine/money"
)

// =============================================================================
// PARTY HEAP - max-heap by |balance|, user id tie-break
// =============================================================================

type party struct {
	user  UserID
	units int64 // |net| in minor units, always > 0 while on the heap
}

type partyHeap []party

func (h partyHeap) Len() int { return len(h) }
func (h partyHeap) Less(i, j int) bool {
	if h[i].units != h[j].units {
		return h[i].units > h[j].units
	}
	return h[i].user < h[j].user
}
func (h partyHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *partyHeap) Push(x any)        { *h = append(*h, x.(party)) }
func (h *partyHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}

// =============================================================================
// SIMPLIFY
// =============================================================================

// Simplify turns net balances into the minimal pairwise transfer list.
// Zero balances are ignored. The input is assumed to satisfy the zero-sum
// invariant (AggregateNet enforces it); if it does not, leftover balance
// on one side is silently unreachable, which is exactly why the
// aggregator treats non-zero sums as fatal before calling here.
func Simplify(currency money.Currency, net NetBalances) []Transfer {
	creditors := &partyHeap{}
	debtors := &partyHeap{}

	for _, u := range net.SortedUsers() {
		units := net[u].MinorUnits()
		switch {
		case units > 0:
			*creditors = append(*creditors, party{user: u, units: units})
		case units < 0:
			*debtors = append(*debtors, party{user: u, units: -units})
		}
	}
	heap.Init(creditors)
	heap.Init(debtors)

	transfers := []Transfer{}
	for creditors.Len() > 0 && debtors.Len() > 0 {
		cr := heap.Pop(creditors).(party)
		db := heap.Pop(debtors).(party)

		amount := cr.units
		if db.units < amount {
			amount = db.units
		}
		transfers = append(transfers, Transfer{
			From:   db.user,
			To:     cr.user,
			Amount: money.FromMinorUnits(amount, currency),
		})

		if cr.units -= amount; cr.units > 0 {
			heap.Push(creditors, cr)
		}
		if db.units -= amount; db.units > 0 {
			heap.Push(debtors, db)
		}
	}
	return transfers
}

// PairwiseViews derives each user's owes/owed-by maps from the simplified
// transfers. The canonical state is net-per-user; these maps exist only
// for display and always mirror the transfer list.
func PairwiseViews(currency money.Currency, net NetBalances, transfers []Transfer) map[UserID]UserBalance {
	users := make(map[UserID]UserBalance, len(net))
	for _, u := range net.SortedUsers() {
		users[u] = UserBalance{
			Owes:   map[UserID]money.Amount{},
			OwedBy: map[UserID]money.Amount{},
			Net:    net[u],
		}
	}
	for _, t := range transfers {
		from := users[t.From]
		from.Owes[t.To] = t.Amount
		users[t.From] = from

		to := users[t.To]
		to.OwedBy[t.From] = t.Amount
		users[t.To] = to
	}
	return users
}
