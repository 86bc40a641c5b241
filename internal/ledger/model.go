package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/splitzy/expense-service/internal/split"
	"github.com/splitzy/expense-service/pkg/money"
)

// Category classifies an expense.
type Category string

const (
	CategoryFoodDining     Category = "FOOD_DINING"
	CategoryGroceries      Category = "GROCERIES"
	CategoryHousing        Category = "HOUSING"
	CategoryTransportation Category = "TRANSPORTATION"
	CategoryUtilities      Category = "UTILITIES"
	CategoryShopping       Category = "SHOPPING"
	CategoryEntertainment  Category = "ENTERTAINMENT"
	CategoryTravel         Category = "TRAVEL"
	CategoryHealthcare     Category = "HEALTHCARE"
	CategoryEducation      Category = "EDUCATION"
	CategoryInsurance      Category = "INSURANCE"
	CategoryFinance        Category = "FINANCE"
	CategoryGiftsDonations Category = "GIFTS_DONATIONS"
	CategoryPets           Category = "PETS"
	CategoryFamilyKids     Category = "FAMILY_KIDS"
	CategoryPersonalMisc   Category = "PERSONAL_MISC"
	CategoryOther          Category = "OTHER"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryFoodDining, CategoryGroceries, CategoryHousing,
		CategoryTransportation, CategoryUtilities, CategoryShopping,
		CategoryEntertainment, CategoryTravel, CategoryHealthcare,
		CategoryEducation, CategoryInsurance, CategoryFinance,
		CategoryGiftsDonations, CategoryPets, CategoryFamilyKids,
		CategoryPersonalMisc, CategoryOther:
		return true
	}
	return false
}

// Status is an expense lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSettled   Status = "SETTLED"
	StatusCancelled Status = "CANCELLED"
	StatusDisputed  Status = "DISPUTED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSettled, StatusCancelled, StatusDisputed:
		return true
	}
	return false
}

// Expense is the aggregate root for a shared expense. It exclusively owns
// its splits: no split outlives the expense, and the split set is only ever
// replaced as a whole.
type Expense struct {
	ID          uuid.UUID
	Title       string
	Description string
	TotalAmount money.Money
	PayerID     uuid.UUID
	Date        time.Time
	Category    Category
	SplitType   split.Type
	GroupID     *uuid.UUID
	Notes       string
	ReceiptURL  string
	Status      Status
	Splits      []*ExpenseSplit
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks structural fields and the sum invariant: the split
// amounts must sum exactly to the total.
func (e *Expense) Validate() error {
	if e.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidExpense)
	}
	if e.PayerID == uuid.Nil {
		return fmt.Errorf("%w: payer is required", ErrInvalidExpense)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidExpense, e.Category)
	}
	if !e.SplitType.Valid() {
		return fmt.Errorf("%w: unknown split type %q", ErrInvalidExpense, e.SplitType)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidExpense, e.Status)
	}
	if e.TotalAmount.IsNegative() {
		return fmt.Errorf("%w: total cannot be negative", ErrInvalidExpense)
	}
	if len(e.Splits) == 0 {
		return fmt.Errorf("%w: expense has no splits", ErrInvalidExpense)
	}

	sum := money.Zero(e.TotalAmount.Currency())
	for _, s := range e.Splits {
		var err error
		sum, err = sum.Add(s.Amount)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidExpense, err)
		}
		settled, err := s.SettledAmount.Cmp(s.Amount)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidExpense, err)
		}
		if s.SettledAmount.IsNegative() || settled > 0 {
			return fmt.Errorf("%w: settled amount out of range for participant %s",
				ErrInvalidExpense, s.ParticipantID)
		}
	}
	if !sum.Equal(e.TotalAmount) {
		return fmt.Errorf("%w: splits sum to %s, total is %s", ErrInvalidExpense, sum, e.TotalAmount)
	}
	return nil
}

// SplitFor returns the split owned by the given participant, or nil.
func (e *Expense) SplitFor(participantID uuid.UUID) *ExpenseSplit {
	for _, s := range e.Splits {
		if s.ParticipantID == participantID {
			return s
		}
	}
	return nil
}

// IsFullySettled reports whether every split has zero remaining amount.
func (e *Expense) IsFullySettled() bool {
	for _, s := range e.Splits {
		if !s.IsSettled() {
			return false
		}
	}
	return true
}

// ExpenseSplit is one participant's owed share of an expense. Percentage
// and Shares retain the original split inputs for traceability.
type ExpenseSplit struct {
	ID            uuid.UUID
	ExpenseID     uuid.UUID
	ParticipantID uuid.UUID
	Amount        money.Money
	Percentage    *decimal.Decimal
	Shares        *int64
	SettledAmount money.Money
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RemainingAmount is the unsettled portion of the split.
func (s *ExpenseSplit) RemainingAmount() money.Money {
	rem, err := s.Amount.Sub(s.SettledAmount)
	if err != nil {
		// Amount and SettledAmount always share the expense currency.
		return money.Zero(s.Amount.Currency())
	}
	return rem
}

// IsSettled reports whether the split has been settled in full.
func (s *ExpenseSplit) IsSettled() bool {
	return s.RemainingAmount().IsZero()
}
