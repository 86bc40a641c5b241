// Package split computes per-participant allocations for an expense total.
//
// Each split type has one pure allocation function; Compute dispatches over
// the closed set of types. Every function either returns allocations whose
// amounts sum exactly to the total, or fails with ErrInvalidInput; it never
// truncates or pads silently.
package split

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/splitzy/expense-service/pkg/money"
)

// Type identifies a split policy.
type Type string

const (
	TypeEqual       Type = "EQUAL"
	TypePercentage  Type = "PERCENTAGE"
	TypeExact       Type = "EXACT"
	TypeShares      Type = "SHARES"
	TypeWeighted    Type = "WEIGHTED"
	TypeCustomRatio Type = "CUSTOM_RATIO"
	TypeItemized    Type = "ITEMIZED"
	TypeUnequal     Type = "UNEQUAL"
	TypeAdjustment  Type = "ADJUSTMENT"
)

// Valid reports whether t is a known split type.
func (t Type) Valid() bool {
	switch t {
	case TypeEqual, TypePercentage, TypeExact, TypeShares, TypeWeighted,
		TypeCustomRatio, TypeItemized, TypeUnequal, TypeAdjustment:
		return true
	}
	return false
}

// ErrInvalidInput is returned for malformed or unbalanced split requests:
// missing participant values, non-positive weights where positive is
// required, or declared sums that do not match the total.
var ErrInvalidInput = errors.New("invalid split input")

// percentageEpsilon is the tolerance for the percentage-sum check.
var percentageEpsilon = decimal.NewFromFloat(0.01)

var oneHundred = decimal.NewFromInt(100)

// Input carries one participant's contribution to a split request. Which
// field must be set depends on the split type.
type Input struct {
	ParticipantID uuid.UUID

	// Amount is the exact owed share (EXACT, UNEQUAL, ITEMIZED, ADJUSTMENT).
	Amount *money.Money
	// Percentage of the total (PERCENTAGE).
	Percentage *decimal.Decimal
	// Shares is an integer share count (SHARES).
	Shares *int64
	// Weight is a positive rational weight (WEIGHTED, CUSTOM_RATIO).
	Weight *decimal.Decimal
}

// Allocation is one participant's computed share. Percentage and Shares are
// retained from the input for traceability; they are never re-derived.
type Allocation struct {
	ParticipantID uuid.UUID
	Amount        money.Money
	Percentage    *decimal.Decimal
	Shares        *int64
}

// Compute partitions total among the participants according to the split
// type. The returned allocations preserve input order and sum exactly to
// total.
func Compute(total money.Money, t Type, inputs []Input) ([]Allocation, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown split type %q", ErrInvalidInput, t)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidInput)
	}
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: negative total", ErrInvalidInput)
	}
	seen := make(map[uuid.UUID]struct{}, len(inputs))
	for _, in := range inputs {
		if in.ParticipantID == uuid.Nil {
			return nil, fmt.Errorf("%w: missing participant id", ErrInvalidInput)
		}
		if _, dup := seen[in.ParticipantID]; dup {
			return nil, fmt.Errorf("%w: duplicate participant %s", ErrInvalidInput, in.ParticipantID)
		}
		seen[in.ParticipantID] = struct{}{}
	}

	switch t {
	case TypeEqual:
		return equalSplit(total, inputs)
	case TypePercentage:
		return percentageSplit(total, inputs)
	case TypeExact, TypeUnequal:
		return exactSplit(total, inputs)
	case TypeShares:
		return sharesSplit(total, inputs)
	case TypeWeighted, TypeCustomRatio:
		return weightedSplit(total, inputs)
	case TypeItemized:
		return itemizedSplit(total, inputs)
	case TypeAdjustment:
		return adjustmentSplit(total, inputs)
	default:
		return nil, fmt.Errorf("%w: unknown split type %q", ErrInvalidInput, t)
	}
}

func equalSplit(total money.Money, inputs []Input) ([]Allocation, error) {
	weights := make([]int64, len(inputs))
	for i := range weights {
		weights[i] = 1
	}
	return allocate(total, inputs, weights)
}

func percentageSplit(total money.Money, inputs []Input) ([]Allocation, error) {
	percentages := make([]decimal.Decimal, len(inputs))
	sum := decimal.Zero
	for i, in := range inputs {
		if in.Percentage == nil {
			return nil, fmt.Errorf("%w: participant %s missing percentage", ErrInvalidInput, in.ParticipantID)
		}
		if in.Percentage.IsNegative() {
			return nil, fmt.Errorf("%w: participant %s has negative percentage", ErrInvalidInput, in.ParticipantID)
		}
		percentages[i] = *in.Percentage
		sum = sum.Add(*in.Percentage)
	}
	if sum.Sub(oneHundred).Abs().GreaterThan(percentageEpsilon) {
		return nil, fmt.Errorf("%w: percentages sum to %s, want 100", ErrInvalidInput, sum)
	}

	weights, err := scaleToIntegerWeights(percentages)
	if err != nil {
		return nil, err
	}
	allocs, err := allocate(total, inputs, weights)
	if err != nil {
		return nil, err
	}
	for i := range allocs {
		p := percentages[i]
		allocs[i].Percentage = &p
	}
	return allocs, nil
}

func sharesSplit(total money.Money, inputs []Input) ([]Allocation, error) {
	weights := make([]int64, len(inputs))
	for i, in := range inputs {
		if in.Shares == nil {
			return nil, fmt.Errorf("%w: participant %s missing shares", ErrInvalidInput, in.ParticipantID)
		}
		if *in.Shares <= 0 {
			return nil, fmt.Errorf("%w: participant %s has non-positive shares", ErrInvalidInput, in.ParticipantID)
		}
		weights[i] = *in.Shares
	}
	allocs, err := allocate(total, inputs, weights)
	if err != nil {
		return nil, err
	}
	for i, in := range inputs {
		n := *in.Shares
		allocs[i].Shares = &n
	}
	return allocs, nil
}

func weightedSplit(total money.Money, inputs []Input) ([]Allocation, error) {
	ratios := make([]decimal.Decimal, len(inputs))
	for i, in := range inputs {
		if in.Weight == nil {
			return nil, fmt.Errorf("%w: participant %s missing weight", ErrInvalidInput, in.ParticipantID)
		}
		if !in.Weight.IsPositive() {
			return nil, fmt.Errorf("%w: participant %s has non-positive weight", ErrInvalidInput, in.ParticipantID)
		}
		ratios[i] = *in.Weight
	}
	weights, err := scaleToIntegerWeights(ratios)
	if err != nil {
		return nil, err
	}
	return allocate(total, inputs, weights)
}

func exactSplit(total money.Money, inputs []Input) ([]Allocation, error) {
	allocs := make([]Allocation, len(inputs))
	sum := money.Zero(total.Currency())
	for i, in := range inputs {
		if in.Amount == nil {
			return nil, fmt.Errorf("%w: participant %s missing amount", ErrInvalidInput, in.ParticipantID)
		}
		if in.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: participant %s has negative amount", ErrInvalidInput, in.ParticipantID)
		}
		var err error
		sum, err = sum.Add(*in.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		allocs[i] = Allocation{ParticipantID: in.ParticipantID, Amount: *in.Amount}
	}
	if !sum.Equal(total) {
		return nil, fmt.Errorf("%w: amounts sum to %s, want %s", ErrInvalidInput, sum, total)
	}
	return allocs, nil
}

// itemizedSplit validates pre-summed per-participant item costs. The engine
// performs no further allocation; item assignment happened upstream.
func itemizedSplit(total money.Money, inputs []Input) ([]Allocation, error) {
	return exactSplit(total, inputs)
}

// adjustmentSplit handles manual corrections between one or two participants.
func adjustmentSplit(total money.Money, inputs []Input) ([]Allocation, error) {
	if len(inputs) > 2 {
		return nil, fmt.Errorf("%w: adjustment supports at most two participants, got %d", ErrInvalidInput, len(inputs))
	}
	return exactSplit(total, inputs)
}

// allocate runs largest-remainder allocation and pairs the results with
// their participants.
func allocate(total money.Money, inputs []Input, weights []int64) ([]Allocation, error) {
	shares, err := total.Allocate(weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	allocs := make([]Allocation, len(inputs))
	for i, in := range inputs {
		allocs[i] = Allocation{ParticipantID: in.ParticipantID, Amount: shares[i]}
	}
	return allocs, nil
}

// scaleToIntegerWeights converts decimal ratios to integer weights by
// shifting every value by the largest number of fractional digits present.
// The shift is exact, so relative proportions are preserved.
func scaleToIntegerWeights(values []decimal.Decimal) ([]int64, error) {
	var shift int32
	for _, v := range values {
		if exp := v.Exponent(); exp < 0 && -exp > shift {
			shift = -exp
		}
	}
	weights := make([]int64, len(values))
	for i, v := range values {
		scaled := v.Shift(shift)
		if !scaled.IsInteger() {
			return nil, fmt.Errorf("%w: weight %s cannot be scaled to an integer", ErrInvalidInput, v)
		}
		if !scaled.BigInt().IsInt64() {
			return nil, fmt.Errorf("%w: weight %s too large", ErrInvalidInput, v)
		}
		weights[i] = scaled.IntPart()
	}
	return weights, nil
}
