/*
Package money provides fixed-point monetary amounts.

PURPOSE:
  All monetary values in the engine flow through this package. Amounts are
  backed by decimal.Decimal (never float64) and carry their currency, so
  arithmetic across currencies is a programming error that fails loudly
  instead of silently producing garbage.

KEY CONCEPTS:
  - Currency: ISO 4217 code with a minor-unit exponent (USD=2, JPY=0, KWD=3)
  - Amount:   currency + decimal value, always valid at the currency's
              minor-unit granularity
  - Minor units: integer representation (cents, fils, yen) used by the
              split calculator for exact remainder distribution

INVARIANTS:
  1. An Amount constructed via Parse/FromMinorUnits is exact at the
     currency's minor unit (no hidden sub-cent residue).
  2. Arithmetic between mismatched currencies panics: mixing currencies is
     a bug, not a runtime condition to handle.

SEE ALSO:
  - engine/split.go: remainder distribution over minor units
  - engine/aggregate.go: net balance accumulation
*/
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CURRENCY - ISO code with minor-unit exponent
// =============================================================================

// Currency is an ISO 4217 currency code.
type Currency string

// minorUnitExponents lists currencies whose exponent differs from the
// default of 2. Source: ISO 4217 active code list.
var minorUnitExponents = map[Currency]int32{
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
}

// Exponent returns the number of minor-unit decimal places for the currency.
func (c Currency) Exponent() int32 {
	if exp, ok := minorUnitExponents[c]; ok {
		return exp
	}
	return 2
}

// Valid reports whether the code looks like an ISO 4217 code.
// The engine accepts any three-letter uppercase code; it does not maintain
// a closed allowlist because new group currencies appear without releases.
func (c Currency) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// =============================================================================
// AMOUNT - Fixed-point value in a currency
// =============================================================================

// Amount is a monetary value. The zero Amount has empty currency and value
// zero; it is only useful as a map miss sentinel.
type Amount struct {
	Currency Currency        `json:"currency"`
	Value    decimal.Decimal `json:"value"`
}

// New builds an Amount without granularity validation. Callers that accept
// external input should use Parse instead.
func New(value decimal.Decimal, currency Currency) Amount {
	return Amount{Currency: currency, Value: value}
}

// Zero returns the zero amount in the given currency.
func Zero(currency Currency) Amount {
	return Amount{Currency: currency, Value: decimal.Zero}
}

// Parse converts a decimal string ("12.34") into an Amount, rejecting values
// that are not representable at the currency's minor unit.
func Parse(s string, currency Currency) (Amount, error) {
	if !currency.Valid() {
		return Amount{}, fmt.Errorf("invalid currency code %q", currency)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if v.Exponent() < -currency.Exponent() && !v.Equal(v.Truncate(currency.Exponent())) {
		return Amount{}, fmt.Errorf("amount %q has more precision than %s allows (%d decimal places)",
			s, currency, currency.Exponent())
	}
	return Amount{Currency: currency, Value: v}, nil
}

// MustParse is Parse for tests and constants. Panics on error.
func MustParse(s string, currency Currency) Amount {
	a, err := Parse(s, currency)
	if err != nil {
		panic(err)
	}
	return a
}

// FromMinorUnits builds an Amount from an integer count of minor units
// (e.g. 1234 cents -> 12.34 USD, 1234 yen -> 1234 JPY).
func FromMinorUnits(units int64, currency Currency) Amount {
	return Amount{
		Currency: currency,
		Value:    decimal.New(units, -currency.Exponent()),
	}
}

// MinorUnits returns the amount as an integer count of minor units.
// Amounts built through Parse/FromMinorUnits are always exact.
func (a Amount) MinorUnits() int64 {
	return a.Value.Shift(a.Currency.Exponent()).IntPart()
}

func (a Amount) sameCurrency(b Amount) {
	if a.Currency != b.Currency {
		panic(fmt.Sprintf("currency mismatch: %s vs %s", a.Currency, b.Currency))
	}
}

func (a Amount) Add(b Amount) Amount {
	a.sameCurrency(b)
	return Amount{Currency: a.Currency, Value: a.Value.Add(b.Value)}
}

func (a Amount) Sub(b Amount) Amount {
	a.sameCurrency(b)
	return Amount{Currency: a.Currency, Value: a.Value.Sub(b.Value)}
}

func (a Amount) Neg() Amount {
	return Amount{Currency: a.Currency, Value: a.Value.Neg()}
}

func (a Amount) Abs() Amount {
	return Amount{Currency: a.Currency, Value: a.Value.Abs()}
}

func (a Amount) IsZero() bool     { return a.Value.IsZero() }
func (a Amount) IsNegative() bool { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool { return a.Value.IsPositive() }

func (a Amount) Equal(b Amount) bool {
	return a.Currency == b.Currency && a.Value.Equal(b.Value)
}

func (a Amount) GreaterThan(b Amount) bool {
	a.sameCurrency(b)
	return a.Value.GreaterThan(b.Value)
}

func (a Amount) LessThan(b Amount) bool {
	a.sameCurrency(b)
	return a.Value.LessThan(b.Value)
}

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// String renders the amount at the currency's minor-unit precision
// ("50.00" for USD, "100" for JPY). Used for API responses and the stored
// projection, so output is byte-stable for identical values.
func (a Amount) String() string {
	return a.Value.StringFixed(a.Currency.Exponent())
}
