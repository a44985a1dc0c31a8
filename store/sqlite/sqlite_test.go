package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/split-engine/engine"
	"github.com/warp/split-engine/money"
	"github.com/warp/split-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createGroup(t *testing.T, s *sqlite.Store, members ...engine.UserID) *engine.Group {
	t.Helper()
	g := &engine.Group{Name: "ski trip", Members: members}
	require.NoError(t, s.CreateGroup(context.Background(), g))
	return g
}

func createEqualExpense(t *testing.T, s *sqlite.Store, groupID engine.GroupID, paidBy engine.UserID, amount string, currency money.Currency, participants ...engine.UserID) *engine.Expense {
	t.Helper()
	total := money.MustParse(amount, currency)
	splits, err := engine.EqualSplits(total, participants)
	require.NoError(t, err)
	e := &engine.Expense{
		GroupID:      groupID,
		PaidBy:       paidBy,
		Amount:       total,
		SplitType:    engine.SplitEqual,
		Participants: participants,
		Splits:       splits,
	}
	require.NoError(t, s.CreateExpense(context.Background(), e))
	return e
}

// =============================================================================
// GROUP PERSISTENCE
// =============================================================================

func TestGroup_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := createGroup(t, s, "alice", "bob", "carol")
	loaded, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)

	assert.Equal(t, g.Name, loaded.Name)
	assert.Equal(t, []engine.UserID{"alice", "bob", "carol"}, loaded.Members)
	assert.True(t, loaded.HasMember("bob"))
}

func TestGroup_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetGroup(context.Background(), "nope")
	assert.ErrorIs(t, err, engine.ErrGroupNotFound)
}

// =============================================================================
// EXPENSE PERSISTENCE
// =============================================================================

func TestExpense_RoundTripPreservesOrderAndSplits(t *testing.T) {
	// GIVEN: An expense with ordered participants and percentage splits
	// WHEN: Reading it back
	// THEN: Participant order, amounts, and percentages survive exactly

	s := newTestStore(t)
	ctx := context.Background()
	g := createGroup(t, s, "alice", "bob", "carol")

	total := money.MustParse("90.00", "USD")
	p60 := decimal.RequireFromString("60")
	p40 := decimal.RequireFromString("40")
	e := &engine.Expense{
		GroupID:      g.ID,
		PaidBy:       "carol",
		Amount:       total,
		SplitType:    engine.SplitPercentage,
		Participants: []engine.UserID{"carol", "alice"},
		Splits: []engine.Split{
			{UserID: "carol", Amount: money.MustParse("54.00", "USD"), Percentage: &p60},
			{UserID: "alice", Amount: money.MustParse("36.00", "USD"), Percentage: &p40},
		},
	}
	require.NoError(t, s.CreateExpense(ctx, e))

	loaded, err := s.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []engine.UserID{"carol", "alice"}, loaded.Participants)
	require.Len(t, loaded.Splits, 2)
	assert.Equal(t, "54.00", loaded.Splits[0].Amount.String())
	require.NotNil(t, loaded.Splits[0].Percentage)
	assert.True(t, loaded.Splits[0].Percentage.Equal(p60))
	assert.True(t, loaded.Active())
}

func TestSupersedeExpense_ChainSemantics(t *testing.T) {
	// GIVEN: An expense edited once
	// THEN: The original is soft-deleted with a superseded_by link, the
	//       replacement is the active chain tip, and only the tip lists

	s := newTestStore(t)
	ctx := context.Background()
	g := createGroup(t, s, "alice", "bob")
	original := createEqualExpense(t, s, g.ID, "alice", "100.00", "USD", "alice", "bob")

	total := money.MustParse("80.00", "USD")
	splits, err := engine.EqualSplits(total, original.Participants)
	require.NoError(t, err)
	replacement := &engine.Expense{
		GroupID: g.ID, PaidBy: "alice", Amount: total,
		SplitType: engine.SplitEqual, Participants: original.Participants, Splits: splits,
	}
	require.NoError(t, s.SupersedeExpense(ctx, original.ID, replacement))

	old, err := s.GetExpense(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, old.SupersededBy)
	assert.NotNil(t, old.DeletedAt)
	assert.False(t, old.Active())

	active, err := s.ListActiveExpenses(ctx, g.ID, "USD")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, replacement.ID, active[0].ID)
}

func TestSupersedeExpense_SupersededIsTerminal(t *testing.T) {
	// GIVEN: An already-superseded expense
	// WHEN: Superseding or deleting it again
	// THEN: ErrExpenseSuperseded - chain interiors are immutable

	s := newTestStore(t)
	ctx := context.Background()
	g := createGroup(t, s, "alice", "bob")
	original := createEqualExpense(t, s, g.ID, "alice", "100.00", "USD", "alice", "bob")

	first := createReplacement(t, g.ID, "80.00")
	require.NoError(t, s.SupersedeExpense(ctx, original.ID, first))

	second := createReplacement(t, g.ID, "70.00")
	err := s.SupersedeExpense(ctx, original.ID, second)
	assert.ErrorIs(t, err, engine.ErrExpenseSuperseded)

	err = s.SoftDeleteExpense(ctx, original.ID, "alice")
	assert.ErrorIs(t, err, engine.ErrExpenseSuperseded)

	// The tip is still editable.
	require.NoError(t, s.SoftDeleteExpense(ctx, first.ID, "bob"))
}

func createReplacement(t *testing.T, groupID engine.GroupID, amount string) *engine.Expense {
	t.Helper()
	total := money.MustParse(amount, "USD")
	participants := []engine.UserID{"alice", "bob"}
	splits, err := engine.EqualSplits(total, participants)
	require.NoError(t, err)
	return &engine.Expense{
		GroupID: groupID, PaidBy: "alice", Amount: total,
		SplitType: engine.SplitEqual, Participants: participants, Splits: splits,
	}
}

func TestSoftDeleteExpense_RemovesFromActiveList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := createGroup(t, s, "alice", "bob")
	e := createEqualExpense(t, s, g.ID, "alice", "50.00", "USD", "alice", "bob")

	require.NoError(t, s.SoftDeleteExpense(ctx, e.ID, "bob"))

	active, err := s.ListActiveExpenses(ctx, g.ID, "USD")
	require.NoError(t, err)
	assert.Empty(t, active)

	// Still readable for the audit trail.
	loaded, err := s.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.UserID("bob"), loaded.DeletedBy)

	// Double delete fails: the row is already gone from the active set.
	err = s.SoftDeleteExpense(ctx, e.ID, "bob")
	assert.ErrorIs(t, err, engine.ErrExpenseNotFound)
}

// =============================================================================
// SETTLEMENT PERSISTENCE
// =============================================================================

func TestSettlement_RoundTripAndSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := createGroup(t, s, "alice", "bob")

	st := &engine.Settlement{
		GroupID: g.ID, PayerID: "bob", PayeeID: "alice",
		Amount: money.MustParse("25.00", "USD"),
		Date:   time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC),
		Note:   "venmo",
	}
	require.NoError(t, s.CreateSettlement(ctx, st))

	loaded, err := s.GetSettlement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "25.00", loaded.Amount.String())
	assert.Equal(t, "venmo", loaded.Note)

	require.NoError(t, s.SoftDeleteSettlement(ctx, st.ID, "bob"))
	active, err := s.ListActiveSettlements(ctx, g.ID, "USD")
	require.NoError(t, err)
	assert.Empty(t, active)

	err = s.SoftDeleteSettlement(ctx, st.ID, "bob")
	assert.ErrorIs(t, err, engine.ErrSettlementNotFound)
}

// =============================================================================
// BALANCE PROJECTION CAS
// =============================================================================

func TestGroupBalance_FirstWriteRequiresVersionZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := createGroup(t, s, "alice")

	// Nothing stored yet.
	bal, version, err := s.ReadGroupBalance(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, bal)
	assert.Zero(t, version)

	first := &engine.GroupBalance{
		GroupID:     g.ID,
		Currencies:  map[money.Currency]*engine.CurrencyBalance{},
		Version:     1,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, s.WriteGroupBalanceIfVersionMatches(ctx, g.ID, first, 0))

	// A second "first write" loses: the row exists now.
	err = s.WriteGroupBalanceIfVersionMatches(ctx, g.ID, first, 0)
	assert.ErrorIs(t, err, engine.ErrConcurrentModification)
}

func TestGroupBalance_StaleVersionLoses(t *testing.T) {
	// GIVEN: A stored projection at version 1
	// WHEN: Writing with expected version 1 (wins) then 1 again (stale)
	// THEN: The second writer gets ErrConcurrentModification

	s := newTestStore(t)
	ctx := context.Background()
	g := createGroup(t, s, "alice", "bob")

	v1 := &engine.GroupBalance{
		GroupID: g.ID, Version: 1, LastUpdated: time.Now().UTC(),
		Currencies: map[money.Currency]*engine.CurrencyBalance{},
	}
	require.NoError(t, s.WriteGroupBalanceIfVersionMatches(ctx, g.ID, v1, 0))

	v2 := &engine.GroupBalance{
		GroupID: g.ID, Version: 2, LastUpdated: time.Now().UTC(),
		Currencies: map[money.Currency]*engine.CurrencyBalance{
			"USD": {Users: map[engine.UserID]engine.UserBalance{}, Transfers: []engine.Transfer{}},
		},
	}
	require.NoError(t, s.WriteGroupBalanceIfVersionMatches(ctx, g.ID, v2, 1))

	stale := &engine.GroupBalance{
		GroupID: g.ID, Version: 2, LastUpdated: time.Now().UTC(),
		Currencies: map[money.Currency]*engine.CurrencyBalance{},
	}
	err := s.WriteGroupBalanceIfVersionMatches(ctx, g.ID, stale, 1)
	assert.ErrorIs(t, err, engine.ErrConcurrentModification)

	// The committed projection is v2's.
	loaded, version, err := s.ReadGroupBalance(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	assert.Contains(t, loaded.Currencies, money.Currency("USD"))
}

func TestGroupBalance_PayloadRoundTrip(t *testing.T) {
	// The JSON payload must survive storage with decimal precision intact.
	s := newTestStore(t)
	ctx := context.Background()
	g := createGroup(t, s, "alice", "bob")

	bal := &engine.GroupBalance{
		GroupID: g.ID, Version: 1, LastUpdated: time.Now().UTC(),
		Currencies: map[money.Currency]*engine.CurrencyBalance{
			"USD": {
				Users: map[engine.UserID]engine.UserBalance{
					"alice": {
						Owes:   map[engine.UserID]money.Amount{},
						OwedBy: map[engine.UserID]money.Amount{"bob": money.MustParse("33.34", "USD")},
						Net:    money.MustParse("33.34", "USD"),
					},
				},
				Transfers: []engine.Transfer{
					{From: "bob", To: "alice", Amount: money.MustParse("33.34", "USD")},
				},
			},
		},
	}
	require.NoError(t, s.WriteGroupBalanceIfVersionMatches(ctx, g.ID, bal, 0))

	loaded, _, err := s.ReadGroupBalance(ctx, g.ID)
	require.NoError(t, err)
	cb := loaded.Currencies["USD"]
	require.NotNil(t, cb)
	assert.Equal(t, "33.34", cb.Users["alice"].Net.String())
	require.Len(t, cb.Transfers, 1)
	assert.True(t, cb.Transfers[0].Amount.Equal(money.MustParse("33.34", "USD")))
}

// =============================================================================
// CURRENCY LISTING
// =============================================================================

func TestListCurrencies_UnionOfActiveHistory(t *testing.T) {
	// GIVEN: Expenses in USD+JPY (one deleted), a settlement in EUR
	// THEN: Currencies of active records only, sorted

	s := newTestStore(t)
	ctx := context.Background()
	g := createGroup(t, s, "alice", "bob")

	createEqualExpense(t, s, g.ID, "alice", "10.00", "USD", "alice", "bob")
	doomed := createEqualExpense(t, s, g.ID, "alice", "1000", "JPY", "alice", "bob")
	require.NoError(t, s.SoftDeleteExpense(ctx, doomed.ID, "alice"))
	require.NoError(t, s.CreateSettlement(ctx, &engine.Settlement{
		GroupID: g.ID, PayerID: "bob", PayeeID: "alice",
		Amount: money.MustParse("5.00", "EUR"),
	}))

	currencies, err := s.ListCurrencies(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []money.Currency{"EUR", "USD"}, currencies)
}
