/*
recompute.go - Versioned projection rebuild (optimistic locking)

PURPOSE:
  The ONLY write path for the GroupBalance projection. Rebuilds one
  (group, currency) slice of the projection from full history and writes
  it back with a compare-and-swap on the stored version.

CONCURRENCY MODEL:
  Recompute events for the same group may race (two expense writes, two
  workers). The loop is:

    1. READ  projection (version v) and the full active history
    2. COMPUTE net balances + simplified transfers
    3. WRITE conditional on version still being v (new version v+1)

  All reads happen before the write. A conflict means someone committed
  between our read and write: we back off (exponential + jitter) and
  redo the WHOLE loop against fresh state - a losing writer never
  re-attempts its stale write. After MaxAttempts the conflict surfaces
  as ErrConcurrentModification, which IsRetryable reports true for; the
  dispatcher re-queues it rather than dropping it.

IDEMPOTENCY:
  Recompute is a pure function of history, so at-least-once delivery is
  safe: running it twice writes the same balances (only the version and
  timestamp move).

SEE ALSO:
  - worker/worker.go: queue + state machine driving this
  - store.go: the CAS contract
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/warp/split-engine/money"
)

const (
	// DefaultMaxAttempts bounds the optimistic-lock retry loop. Repeated
	// contention becomes a surfaced, retryable failure instead of an
	// unbounded spin.
	DefaultMaxAttempts = 3

	// DefaultBaseBackoff is the first retry delay; each retry doubles it,
	// plus up to 50% jitter to de-synchronize colliding workers.
	DefaultBaseBackoff = 25 * time.Millisecond
)

// Recomputer rebuilds GroupBalance projections. Safe for concurrent use.
type Recomputer struct {
	Store       Store
	MaxAttempts int
	BaseBackoff time.Duration

	// OnViolation receives consistency violations (skipped records and
	// fatal zero-sum failures) for monitoring. May be nil.
	OnViolation ViolationReporter

	// OnConflict is called once per lost optimistic-lock round, before
	// the backoff. May be nil.
	OnConflict func()

	Logger *slog.Logger

	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// NewRecomputer returns a Recomputer with production defaults.
func NewRecomputer(store Store) *Recomputer {
	return &Recomputer{
		Store:       store,
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
		Logger:      slog.Default(),
		Now:         time.Now,
		Sleep:       time.Sleep,
	}
}

// Recompute rebuilds the projection slice for one group+currency and
// CAS-writes the whole projection. Returns the committed projection.
func (r *Recomputer) Recompute(ctx context.Context, groupID GroupID, currency money.Currency) (*GroupBalance, error) {
	var lastErr error

	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		if attempt > 0 {
			r.Sleep(r.backoff(attempt))
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bal, err := r.recomputeOnce(ctx, groupID, currency)
		if err == nil {
			return bal, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
		if r.OnConflict != nil {
			r.OnConflict()
		}
		r.Logger.Warn("balance recompute lost optimistic lock, retrying",
			"group", groupID, "currency", currency, "attempt", attempt+1)
	}

	return nil, fmt.Errorf("recompute %s/%s: retries exhausted after %d attempts: %w",
		groupID, currency, r.MaxAttempts, lastErr)
}

// recomputeOnce performs one read-compute-write round.
// All reads strictly precede the single conditional write.
func (r *Recomputer) recomputeOnce(ctx context.Context, groupID GroupID, currency money.Currency) (*GroupBalance, error) {
	current, version, err := r.Store.ReadGroupBalance(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("read projection: %w", err)
	}

	expenses, err := r.Store.ListActiveExpenses(ctx, groupID, currency)
	if err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}
	settlements, err := r.Store.ListActiveSettlements(ctx, groupID, currency)
	if err != nil {
		return nil, fmt.Errorf("load settlements: %w", err)
	}

	net, err := AggregateNet(groupID, currency, expenses, settlements, r.OnViolation)
	if err != nil {
		var cv *ConsistencyViolationError
		if errors.As(err, &cv) && r.OnViolation != nil {
			r.OnViolation(cv)
		}
		return nil, err
	}
	transfers := Simplify(currency, net)

	next := current.Clone()
	if next == nil {
		next = &GroupBalance{GroupID: groupID, Currencies: map[money.Currency]*CurrencyBalance{}}
	}
	next.Currencies[currency] = &CurrencyBalance{
		Users:     PairwiseViews(currency, net, transfers),
		Transfers: transfers,
	}
	next.Version = version + 1
	next.LastUpdated = r.Now().UTC()

	if err := r.Store.WriteGroupBalanceIfVersionMatches(ctx, groupID, next, version); err != nil {
		return nil, err
	}
	return next, nil
}

// SimplifiedDebts is the read path for display: returns the simplified
// transfers per currency from the stored projection, lazily recomputing
// any currency present in history but missing from the projection.
func (r *Recomputer) SimplifiedDebts(ctx context.Context, groupID GroupID) (map[money.Currency][]Transfer, error) {
	bal, _, err := r.Store.ReadGroupBalance(ctx, groupID)
	if err != nil {
		return nil, err
	}

	currencies, err := r.Store.ListCurrencies(ctx, groupID)
	if err != nil {
		return nil, err
	}
	for _, ccy := range currencies {
		if bal != nil && bal.Currencies[ccy] != nil {
			continue
		}
		if bal, err = r.Recompute(ctx, groupID, ccy); err != nil {
			return nil, err
		}
	}

	out := make(map[money.Currency][]Transfer)
	if bal != nil {
		for ccy, cb := range bal.Currencies {
			out[ccy] = cb.Transfers
		}
	}
	return out, nil
}

func (r *Recomputer) backoff(attempt int) time.Duration {
	d := r.BaseBackoff << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d + jitter
}
