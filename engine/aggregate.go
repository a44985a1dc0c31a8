/*
aggregate.go - Balance Aggregator

PURPOSE:
  Folds a group's full non-deleted transaction history for one currency
  into net per-user balances. This is a full recompute from history, not
  an incremental patch: simpler, idempotent, and safe to run twice.

ALGORITHM:
  For each active (non-deleted, non-superseded) expense: the payer is
  owed every other participant's share, so
      net[payer]       += split.Amount   (for each non-payer split)
      net[participant] -= split.Amount
  For each active settlement, the payer's debt shrinks and the payee's
  credit shrinks:
      net[payer] += amount
      net[payee] -= amount

FAILURE SEMANTICS:
  A broken individual record (payer outside the participant set, splits
  that no longer sum, a self-settlement) is reported through the violation
  callback and SKIPPED - one bad record must not take down the whole
  group's balances. A non-zero sum over the final map, however, means the
  aggregation itself is wrong: that is fatal and never auto-corrected.

INVARIANT:
  sum(net over all users) == 0 for every currency (conservation of money).

SEE ALSO:
  - simplify.go: consumes the net map
  - recompute.go: drives aggregation inside the CAS loop
*/
package engine

import (
	"sort"

	"github.com/warp/split-engine/money"
)

// NetBalances maps each user to their net position within one currency.
// Positive = owed money by the group, negative = owes money.
type NetBalances map[UserID]money.Amount

// SortedUsers returns the user ids in lexicographic order. All iteration
// that can leak into output goes through this, keeping recomputes
// deterministic for identical histories.
func (nb NetBalances) SortedUsers() []UserID {
	users := make([]UserID, 0, len(nb))
	for u := range nb {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// ViolationReporter receives per-record consistency violations during
// aggregation. May be nil.
type ViolationReporter func(*ConsistencyViolationError)

// AggregateNet folds expenses and settlements into net balances for one
// (group, currency) pair. Inactive records are ignored; inconsistent
// records are reported and skipped; a non-zero total is returned as a
// fatal ConsistencyViolationError.
func AggregateNet(
	groupID GroupID,
	currency money.Currency,
	expenses []Expense,
	settlements []Settlement,
	report ViolationReporter,
) (NetBalances, error) {

	net := make(NetBalances)
	add := func(u UserID, delta money.Amount) {
		cur, ok := net[u]
		if !ok {
			cur = money.Zero(currency)
		}
		net[u] = cur.Add(delta)
	}
	violation := func(v *ConsistencyViolationError) {
		if report != nil {
			report(v)
		}
	}

	for i := range expenses {
		e := &expenses[i]
		if !e.Active() || e.Currency() != currency || e.GroupID != groupID {
			continue
		}
		if !e.HasParticipant(e.PaidBy) {
			violation(&ConsistencyViolationError{
				GroupID: groupID, Currency: currency,
				Kind:     ViolationOrphanedRecord,
				RecordID: string(e.ID),
				Detail:   "payer " + string(e.PaidBy) + " not in participant set",
			})
			continue
		}
		if !splitsSum(e) {
			violation(&ConsistencyViolationError{
				GroupID: groupID, Currency: currency,
				Kind:     ViolationSplitSum,
				RecordID: string(e.ID),
				Detail:   "stored splits do not sum to expense total",
			})
			continue
		}
		for _, s := range e.Splits {
			if s.UserID == e.PaidBy {
				continue // the payer's own share cancels out
			}
			add(e.PaidBy, s.Amount)
			add(s.UserID, s.Amount.Neg())
		}
	}

	for i := range settlements {
		s := &settlements[i]
		if !s.Active() || s.Currency() != currency || s.GroupID != groupID {
			continue
		}
		if s.PayerID == s.PayeeID {
			violation(&ConsistencyViolationError{
				GroupID: groupID, Currency: currency,
				Kind:     ViolationSelfSettlement,
				RecordID: string(s.ID),
				Detail:   "settlement payer and payee are identical",
			})
			continue
		}
		add(s.PayerID, s.Amount)
		add(s.PayeeID, s.Amount.Neg())
	}

	// Conservation check. A violation here is a bug in this file or in the
	// stored splits, not a user error; surface it, never "fix" it.
	total := money.Zero(currency)
	for _, u := range net.SortedUsers() {
		total = total.Add(net[u])
	}
	if !total.IsZero() {
		return nil, &ConsistencyViolationError{
			GroupID: groupID, Currency: currency,
			Kind:   ViolationNonZeroSum,
			Detail: "net balances sum to " + total.String() + ", expected zero",
		}
	}

	return net, nil
}

func splitsSum(e *Expense) bool {
	sum := money.Zero(e.Currency())
	for _, s := range e.Splits {
		if s.Amount.Currency != e.Currency() {
			return false
		}
		sum = sum.Add(s.Amount)
	}
	return sum.Equal(e.Amount)
}
