// Package money provides a fixed-precision monetary value type.
//
// Amounts are stored as int64 minor units (cents, paise) together with an
// ISO 4217 currency code. Arithmetic between different currencies is an
// error; there is no implicit conversion. All intermediate allocation math
// runs on big.Int so large totals with large weights cannot overflow.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
)

var (
	// ErrCurrencyMismatch is returned when values of different currencies are combined.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrNegativeAmount is returned when a negative amount is supplied where not permitted.
	ErrNegativeAmount = errors.New("amount cannot be negative")
	// ErrInvalidCurrency is returned for an empty or malformed currency code.
	ErrInvalidCurrency = errors.New("invalid currency code")
	// ErrInvalidWeights is returned by Allocate for empty, negative or all-zero weights.
	ErrInvalidWeights = errors.New("invalid allocation weights")
)

// Money is an immutable amount of a single currency in minor units.
// The zero value is not usable; construct with New, NewSigned or Zero.
type Money struct {
	amount   int64
	currency string
}

// New creates a non-negative Money value.
func New(minorUnits int64, currency string) (Money, error) {
	if minorUnits < 0 {
		return Money{}, ErrNegativeAmount
	}
	return NewSigned(minorUnits, currency)
}

// NewSigned creates a Money value that may be negative. Signed amounts are
// used for ledger deltas and running balances.
func NewSigned(minorUnits int64, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	return Money{amount: minorUnits, currency: currency}, nil
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return Money{amount: 0, currency: currency}
}

// MinorUnits returns the amount in minor units.
func (m Money) MinorUnits() int64 { return m.amount }

// Currency returns the ISO 4217 currency code.
func (m Money) Currency() string { return m.currency }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.amount == 0 }

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.amount > 0 }

// IsNegative reports whether the amount is less than zero.
func (m Money) IsNegative() bool { return m.amount < 0 }

// SameCurrency reports whether both values share a currency.
func (m Money) SameCurrency(o Money) bool { return m.currency == o.currency }

// Add returns m + o. Fails with ErrCurrencyMismatch for differing currencies.
func (m Money) Add(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	return Money{amount: m.amount + o.amount, currency: m.currency}, nil
}

// Sub returns m - o. Fails with ErrCurrencyMismatch for differing currencies.
func (m Money) Sub(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	return Money{amount: m.amount - o.amount, currency: m.currency}, nil
}

// Negate returns -m.
func (m Money) Negate() Money {
	return Money{amount: -m.amount, currency: m.currency}
}

// Abs returns the absolute value of m.
func (m Money) Abs() Money {
	if m.amount < 0 {
		return m.Negate()
	}
	return m
}

// Cmp compares m to o: -1 if m < o, 0 if equal, 1 if m > o.
func (m Money) Cmp(o Money) (int, error) {
	if !m.SameCurrency(o) {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	switch {
	case m.amount < o.amount:
		return -1, nil
	case m.amount > o.amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// Equal reports whether two values have the same amount and currency.
func (m Money) Equal(o Money) bool {
	return m.currency == o.currency && m.amount == o.amount
}

// String formats the amount with two decimal places, e.g. "1234.50 INR".
func (m Money) String() string {
	units := m.amount / 100
	frac := m.amount % 100
	if frac < 0 {
		frac = -frac
	}
	if m.amount < 0 && units == 0 {
		return fmt.Sprintf("-0.%02d %s", frac, m.currency)
	}
	return fmt.Sprintf("%d.%02d %s", units, frac, m.currency)
}

// Allocate distributes m's minor units across len(weights) buckets
// proportionally to weights using largest-remainder rounding: each bucket
// gets the floor of its exact share, then the leftover minor units go
// one-by-one to the buckets with the largest fractional remainder, ties
// broken by ascending bucket index.
//
// The results always sum exactly to m. Every bucket is non-negative when m
// is non-negative and all weights are non-negative.
func (m Money) Allocate(weights []int64) ([]Money, error) {
	if m.amount < 0 {
		return nil, ErrNegativeAmount
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: no weights", ErrInvalidWeights)
	}

	weightSum := new(big.Int)
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight %d", ErrInvalidWeights, w)
		}
		weightSum.Add(weightSum, big.NewInt(w))
	}
	if weightSum.Sign() == 0 {
		return nil, fmt.Errorf("%w: weights sum to zero", ErrInvalidWeights)
	}

	total := big.NewInt(m.amount)
	shares := make([]Money, len(weights))
	remainders := make([]struct {
		index int
		frac  *big.Int
	}, len(weights))

	var assigned int64
	for i, w := range weights {
		exact := new(big.Int).Mul(total, big.NewInt(w))
		quo, rem := new(big.Int).QuoRem(exact, weightSum, new(big.Int))
		shares[i] = Money{amount: quo.Int64(), currency: m.currency}
		assigned += quo.Int64()
		remainders[i].index = i
		remainders[i].frac = rem
	}

	// Leftover is strictly less than len(weights).
	leftover := m.amount - assigned
	sort.SliceStable(remainders, func(i, j int) bool {
		c := remainders[i].frac.Cmp(remainders[j].frac)
		if c != 0 {
			return c > 0
		}
		return remainders[i].index < remainders[j].index
	})
	for k := int64(0); k < leftover; k++ {
		shares[remainders[k].index].amount++
	}

	return shares, nil
}

// moneyJSON is the wire form used for JSON and cache serialization.
type moneyJSON struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount, Currency: m.currency})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := NewSigned(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
