/*
split.go - Split Calculator

PURPOSE:
  Pure functions turning an expense's total amount, currency, and split
  policy into per-participant allocations whose sum equals the total
  EXACTLY in the currency's minor unit.

SPLIT POLICIES:
  equal:      total divided by participant count; remainder minor units go
              one each to the first participants (input order), so
              100.00 USD across three people is 33.34 / 33.33 / 33.33.
  exact:      caller supplies the amounts; they must sum to the total with
              zero tolerance.
  percentage: caller supplies percentages summing to exactly 100; shares
              are rounded to the minor unit and the rounding residue is
              distributed to the largest share(s), ties broken by user id.

CRITICAL INVARIANT:
  sum(splits) == total, always, for every currency exponent. The remainder
  distribution works in integer minor units so no sub-cent residue can
  survive.

SEE ALSO:
  - money/money.go: minor-unit conversion
  - aggregate.go: consumes the splits
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/split-engine/money"
)

var hundred = decimal.NewFromInt(100)

// PercentageShare is the caller-supplied input for a percentage split.
type PercentageShare struct {
	UserID     UserID
	Percentage decimal.Decimal
}

// =============================================================================
// EQUAL SPLITS
// =============================================================================

// EqualSplits divides total evenly among participants. If the division
// leaves a remainder in minor units, the first participants (input order)
// each absorb one extra minor unit. Deterministic for a given input order.
func EqualSplits(total money.Amount, participants []UserID) ([]Split, error) {
	if err := validateTotal(total); err != nil {
		return nil, err
	}
	if err := validateParticipants(participants); err != nil {
		return nil, err
	}

	n := int64(len(participants))
	units := total.MinorUnits()
	base := units / n
	remainder := units % n

	splits := make([]Split, len(participants))
	for i, p := range participants {
		share := base
		if int64(i) < remainder {
			share++
		}
		splits[i] = Split{
			UserID: p,
			Amount: money.FromMinorUnits(share, total.Currency),
		}
	}
	return splits, nil
}

// =============================================================================
// EXACT SPLITS
// =============================================================================

// ExactSplits validates caller-supplied splits against the total.
// The sum must match exactly: there is no tolerance, because the caller
// chose every amount.
func ExactSplits(total money.Amount, splits []Split) ([]Split, error) {
	if err := validateTotal(total); err != nil {
		return nil, err
	}
	if len(splits) == 0 {
		return nil, validationErrorf(CodeNoParticipants, "exact split requires at least one share")
	}

	sum := money.Zero(total.Currency)
	out := make([]Split, len(splits))
	for i, s := range splits {
		if s.Amount.Currency != total.Currency {
			return nil, validationErrorf(CodeCurrencyMismatch,
				"split for %s is in %s, expense is in %s", s.UserID, s.Amount.Currency, total.Currency)
		}
		if s.Amount.IsNegative() {
			return nil, validationErrorf(CodeNonPositiveAmount,
				"split for %s is negative (%s)", s.UserID, s.Amount)
		}
		sum = sum.Add(s.Amount)
		out[i] = Split{UserID: s.UserID, Amount: s.Amount}
	}

	if !sum.Equal(total) {
		return nil, validationErrorf(CodeSplitMismatch,
			"splits sum to %s, expense total is %s", sum, total)
	}
	return out, nil
}

// =============================================================================
// PERCENTAGE SPLITS
// =============================================================================

// PercentageSplits computes each share as total x percentage/100, rounded
// to the currency's minor unit. Percentages must sum to exactly 100. Any
// rounding residue is distributed one minor unit at a time to the largest
// share(s), ties broken lexicographically by user id, preserving the
// exact-sum invariant.
func PercentageSplits(total money.Amount, shares []PercentageShare) ([]Split, error) {
	if err := validateTotal(total); err != nil {
		return nil, err
	}
	if len(shares) == 0 {
		return nil, validationErrorf(CodeNoParticipants, "percentage split requires at least one share")
	}

	pctSum := decimal.Zero
	for _, sh := range shares {
		if sh.Percentage.IsNegative() || sh.Percentage.GreaterThan(hundred) {
			return nil, validationErrorf(CodePercentageSumInvalid,
				"percentage for %s out of range: %s", sh.UserID, sh.Percentage)
		}
		pctSum = pctSum.Add(sh.Percentage)
	}
	if !pctSum.Equal(hundred) {
		return nil, validationErrorf(CodePercentageSumInvalid,
			"percentages sum to %s, must be exactly 100", pctSum)
	}

	exp := total.Currency.Exponent()
	splits := make([]Split, len(shares))
	allocated := int64(0)
	for i, sh := range shares {
		pct := sh.Percentage
		raw := total.Value.Mul(pct).Div(hundred)
		rounded := raw.Round(exp)
		amt := money.New(rounded, total.Currency)
		allocated += amt.MinorUnits()
		splits[i] = Split{UserID: sh.UserID, Amount: amt, Percentage: &pct}
	}

	// Distribute the rounding residue to the largest shares first,
	// ties by user id, one minor unit per share per pass.
	residue := total.MinorUnits() - allocated
	if residue != 0 {
		order := make([]int, len(splits))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			sa, sb := splits[order[a]], splits[order[b]]
			if !sa.Amount.Equal(sb.Amount) {
				return sa.Amount.GreaterThan(sb.Amount)
			}
			return sa.UserID < sb.UserID
		})

		step := int64(1)
		if residue < 0 {
			step = -1
		}
		for k := 0; residue != 0; k++ {
			i := order[k%len(order)]
			splits[i].Amount = money.FromMinorUnits(splits[i].Amount.MinorUnits()+step, total.Currency)
			residue -= step
		}
	}
	return splits, nil
}

// =============================================================================
// EXPENSE-LEVEL HELPERS
// =============================================================================

// BuildSplits produces the authoritative split list for an expense being
// created: it validates the policy inputs and returns splits that sum to
// the total exactly. `provided` carries caller-supplied amounts (exact)
// or percentages (percentage); it is ignored for equal splits.
func BuildSplits(splitType SplitType, total money.Amount, participants []UserID, provided []Split) ([]Split, error) {
	if err := validateParticipants(participants); err != nil {
		return nil, err
	}

	switch splitType {
	case SplitEqual:
		return EqualSplits(total, participants)

	case SplitExact:
		if err := splitsCoverParticipants(participants, provided); err != nil {
			return nil, err
		}
		return ExactSplits(total, provided)

	case SplitPercentage:
		if err := splitsCoverParticipants(participants, provided); err != nil {
			return nil, err
		}
		shares := make([]PercentageShare, len(provided))
		for i, s := range provided {
			if s.Percentage == nil {
				return nil, validationErrorf(CodePercentageSumInvalid,
					"missing percentage for %s", s.UserID)
			}
			shares[i] = PercentageShare{UserID: s.UserID, Percentage: *s.Percentage}
		}
		return PercentageSplits(total, shares)

	default:
		return nil, validationErrorf(CodeSplitMismatch, "unknown split type %q", splitType)
	}
}

// ValidateExpense checks the cross-field invariants of a fully built
// expense: payer membership, positive total, and the exact-sum invariant.
func ValidateExpense(e *Expense) error {
	if err := validateTotal(e.Amount); err != nil {
		return err
	}
	if err := validateParticipants(e.Participants); err != nil {
		return err
	}
	if !e.HasParticipant(e.PaidBy) {
		return validationErrorf(CodePayerNotParticipant,
			"payer %s is not a participant", e.PaidBy)
	}
	sum := money.Zero(e.Currency())
	for _, s := range e.Splits {
		if !e.HasParticipant(s.UserID) {
			return validationErrorf(CodeSplitUserUnknown,
				"split user %s is not a participant", s.UserID)
		}
		sum = sum.Add(s.Amount)
	}
	if !sum.Equal(e.Amount) {
		return validationErrorf(CodeSplitMismatch,
			"splits sum to %s, expense total is %s", sum, e.Amount)
	}
	return nil
}

// ValidateSettlement checks a settlement before it is written.
func ValidateSettlement(s *Settlement) error {
	if err := validateTotal(s.Amount); err != nil {
		return err
	}
	if s.PayerID == s.PayeeID {
		return validationErrorf(CodePayerIsPayee,
			"settlement payer and payee are both %s", s.PayerID)
	}
	return nil
}

func validateTotal(total money.Amount) error {
	if !total.IsPositive() {
		return validationErrorf(CodeNonPositiveAmount, "amount must be positive, got %s", total)
	}
	return nil
}

func validateParticipants(participants []UserID) error {
	if len(participants) == 0 {
		return validationErrorf(CodeNoParticipants, "at least one participant required")
	}
	seen := make(map[UserID]bool, len(participants))
	for _, p := range participants {
		if seen[p] {
			return validationErrorf(CodeDuplicateParticipant, "participant %s listed twice", p)
		}
		seen[p] = true
	}
	return nil
}

func splitsCoverParticipants(participants []UserID, splits []Split) error {
	members := make(map[UserID]bool, len(participants))
	for _, p := range participants {
		members[p] = true
	}
	seen := make(map[UserID]bool, len(splits))
	for _, s := range splits {
		if !members[s.UserID] {
			return validationErrorf(CodeSplitUserUnknown,
				"split user %s is not a participant", s.UserID)
		}
		if seen[s.UserID] {
			return validationErrorf(CodeDuplicateParticipant,
				"split user %s listed twice", s.UserID)
		}
		seen[s.UserID] = true
	}
	return nil
}
