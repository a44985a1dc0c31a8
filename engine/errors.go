/*
errors.go - Centralized error types for the balance engine

PURPOSE:
  All engine errors in one place. Three families, with different
  propagation rules:

  1. Validation errors - bad caller input, rejected before any state
     change. Surfaced to the caller, never retried.
  2. Concurrency conflicts - optimistic-lock version mismatch. Retried
     internally up to a bounded count, then surfaced as retryable.
  3. Consistency violations - the stored history itself is broken
     (orphaned reference, non-zero sum). Logged and counted for
     monitoring; never silently corrected.

USAGE:
  if errors.Is(err, engine.ErrConcurrentModification) { requeue() }
  var verr *engine.ValidationError
  if errors.As(err, &verr) { http 400 with verr.Code }

SEE ALSO:
  - recompute.go: retry loop around ErrConcurrentModification
  - aggregate.go: ConsistencyViolationError reporting
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/warp/split-engine/money"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input-validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrConcurrentModification is returned when the optimistic-lock
	// version check fails and the retry budget is exhausted.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrConsistencyViolation is the root of internal-consistency failures
	// detected during aggregation.
	ErrConsistencyViolation = errors.New("consistency violation")

	// ErrExpenseSuperseded is returned when deleting or re-editing an
	// expense that already has a replacement. Superseded records are
	// immutable-terminal.
	ErrExpenseSuperseded = errors.New("expense is superseded and immutable")

	ErrGroupNotFound      = errors.New("group not found")
	ErrExpenseNotFound    = errors.New("expense not found")
	ErrSettlementNotFound = errors.New("settlement not found")
)

// =============================================================================
// VALIDATION ERRORS - Structured, with machine-readable codes
// =============================================================================

type ValidationCode string

const (
	CodeSplitMismatch        ValidationCode = "split_mismatch"
	CodePercentageSumInvalid ValidationCode = "percentage_sum_invalid"
	CodeNonPositiveAmount    ValidationCode = "non_positive_amount"
	CodeNoParticipants       ValidationCode = "no_participants"
	CodePayerNotParticipant  ValidationCode = "payer_not_participant"
	CodePayerIsPayee         ValidationCode = "payer_is_payee"
	CodeSplitUserUnknown     ValidationCode = "split_user_unknown"
	CodeDuplicateParticipant ValidationCode = "duplicate_participant"
	CodeCurrencyMismatch     ValidationCode = "currency_mismatch"
)

// ValidationError rejects caller input before any state change.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func validationErrorf(code ValidationCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// CONSISTENCY VIOLATIONS - Latent bugs, surfaced to monitoring
// =============================================================================

// ViolationKind classifies consistency violations for metrics.
type ViolationKind string

const (
	ViolationOrphanedRecord ViolationKind = "orphaned_record"
	ViolationSplitSum       ViolationKind = "split_sum_mismatch"
	ViolationSelfSettlement ViolationKind = "self_settlement"
	ViolationNonZeroSum     ViolationKind = "non_zero_sum"
)

// ConsistencyViolationError describes a broken stored record or a broken
// aggregate. Per-record violations are reported and the record skipped;
// a non-zero-sum after aggregation is fatal for the recompute.
type ConsistencyViolationError struct {
	GroupID  GroupID
	Currency money.Currency
	Kind     ViolationKind
	RecordID string
	Detail   string
}

func (e *ConsistencyViolationError) Error() string {
	return fmt.Sprintf("consistency violation (%s) in group %s [%s]: %s",
		e.Kind, e.GroupID, e.Currency, e.Detail)
}

func (e *ConsistencyViolationError) Unwrap() error { return ErrConsistencyViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether the operation might succeed if re-run
// against fresh state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError reports whether the error is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrExpenseSuperseded)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrExpenseNotFound) ||
		errors.Is(err, ErrSettlementNotFound)
}
