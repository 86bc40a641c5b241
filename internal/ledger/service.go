package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/splitzy/expense-service/internal/split"
	"github.com/splitzy/expense-service/pkg/logger"
	"github.com/splitzy/expense-service/pkg/money"
)

// maxTxAttempts bounds transparent retries of storage write conflicts
// before an operation surfaces ErrLedgerApply.
const maxTxAttempts = 3

// Service orchestrates expenses, splits and the pairwise balance ledger.
//
// Every expense-level operation is atomic: its split mutations and all of
// its pair deltas land in one repository transaction, or none do. The only
// shared-mutation hotspot is the pair balance row, which the repository
// locks per pair; operations on disjoint pairs proceed in parallel.
type Service struct {
	repo            Repository
	cache           BalanceCache
	log             *logger.Logger
	defaultCurrency string
}

// NewService creates a new ledger service. cache may be nil.
func NewService(repo Repository, cache BalanceCache, log *logger.Logger, defaultCurrency string) *Service {
	return &Service{
		repo:            repo,
		cache:           cache,
		log:             log,
		defaultCurrency: defaultCurrency,
	}
}

// ComputeSplits partitions a total according to the split type without
// touching any state. Exposed for callers that preview splits.
func (s *Service) ComputeSplits(total money.Money, t split.Type, inputs []split.Input) ([]split.Allocation, error) {
	return split.Compute(total, t, inputs)
}

// CreateExpenseInput carries everything needed to create an expense.
type CreateExpenseInput struct {
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
	Inputs      []split.Input
}

// CreateExpense computes the splits, persists the expense and applies one
// ledger delta per participant (the payer's own share produces none).
func (s *Service) CreateExpense(ctx context.Context, in CreateExpenseInput) (*Expense, error) {
	if !in.TotalAmount.IsPositive() {
		return nil, fmt.Errorf("%w: total must be positive", ErrInvalidExpense)
	}

	allocs, err := split.Compute(in.TotalAmount, in.SplitType, in.Inputs)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	date := in.Date
	if date.IsZero() {
		date = now
	}

	e := &Expense{
		ID:          uuid.New(),
		Title:       in.Title,
		Description: in.Description,
		TotalAmount: in.TotalAmount,
		PayerID:     in.PayerID,
		Date:        date,
		Category:    in.Category,
		SplitType:   in.SplitType,
		GroupID:     in.GroupID,
		Notes:       in.Notes,
		ReceiptURL:  in.ReceiptURL,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.Splits = s.buildSplits(e, allocs, nil)
	if err := e.Validate(); err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateExpense(txCtx, e); err != nil {
			return err
		}
		for _, sp := range e.Splits {
			if sp.ParticipantID == e.PayerID {
				continue
			}
			if err := s.applyDelta(txCtx, sp.ParticipantID, e.PayerID, sp.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalances(ctx, e)
	s.log.WithContext(ctx).Info("expense created",
		"expense_id", e.ID,
		"payer_id", e.PayerID,
		"total", e.TotalAmount.String(),
		"split_type", string(e.SplitType),
		"participants", len(e.Splits),
	)
	return e, nil
}

// EditExpenseInput carries the fields an edit may change. Nil fields keep
// their current values. Changing the total, the split type or the
// participant inputs requires Inputs to be set; the split set is always
// replaced as a whole.
type EditExpenseInput struct {
	Title       *string
	Description *string
	TotalAmount *money.Money
	Date        *time.Time
	Category    *Category
	SplitType   *split.Type
	Notes       *string
	ReceiptURL  *string
	Inputs      []split.Input
}

// recomputesSplits reports whether the edit touches anything that requires
// a new split set.
func (in EditExpenseInput) recomputesSplits() bool {
	return in.TotalAmount != nil || in.SplitType != nil || in.Inputs != nil
}

// EditExpense atomically replaces the expense's split set and rebalances
// the ledger: the old deltas are reversed and the new ones applied in the
// same transaction. A SETTLED expense may be edited as long as no split's
// new amount drops below what has already been settled on it.
func (s *Service) EditExpense(ctx context.Context, id uuid.UUID, in EditExpenseInput) (*Expense, error) {
	e, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusActive && e.Status != StatusSettled {
		return nil, fmt.Errorf("%w: cannot edit %s expense", ErrInvalidState, e.Status)
	}

	total := e.TotalAmount
	if in.TotalAmount != nil {
		total = *in.TotalAmount
		if !total.IsPositive() {
			return nil, fmt.Errorf("%w: total must be positive", ErrInvalidExpense)
		}
	}
	splitType := e.SplitType
	if in.SplitType != nil {
		splitType = *in.SplitType
	}

	var newSplits []*ExpenseSplit
	if in.recomputesSplits() {
		if in.Inputs == nil {
			return nil, fmt.Errorf("%w: split inputs required when total or split type changes", split.ErrInvalidInput)
		}
		allocs, err := split.Compute(total, splitType, in.Inputs)
		if err != nil {
			return nil, err
		}
		settled, err := carriedSettlements(e, allocs)
		if err != nil {
			return nil, err
		}
		newSplits = s.buildSplits(e, allocs, settled)
	}

	oldSplits := e.Splits
	applyFieldEdits(e, in, total, splitType)
	if newSplits != nil {
		e.Splits = newSplits
	}
	e.Status = deriveStatus(e)
	e.UpdatedAt = time.Now()
	if err := e.Validate(); err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(txCtx context.Context) error {
		if newSplits != nil {
			// Reverse the old deltas, then apply the new ones. Settlement
			// deltas already applied are untouched; settled amounts carry
			// over to the replacement splits.
			for _, sp := range oldSplits {
				if sp.ParticipantID == e.PayerID {
					continue
				}
				if err := s.applyDelta(txCtx, sp.ParticipantID, e.PayerID, sp.Amount.Negate()); err != nil {
					return err
				}
			}
			for _, sp := range newSplits {
				if sp.ParticipantID == e.PayerID {
					continue
				}
				if err := s.applyDelta(txCtx, sp.ParticipantID, e.PayerID, sp.Amount); err != nil {
					return err
				}
			}
			if err := s.repo.ReplaceSplits(txCtx, e.ID, newSplits); err != nil {
				return err
			}
		}
		return s.repo.UpdateExpense(txCtx, e)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalances(ctx, e)
	s.log.WithContext(ctx).Info("expense edited", "expense_id", e.ID, "status", string(e.Status))
	return e, nil
}

// CancelExpense reverses the unsettled remainder of every split and marks
// the expense CANCELLED. Cancelled expenses are terminal and never
// physically removed once they have affected a balance.
func (s *Service) CancelExpense(ctx context.Context, id uuid.UUID) (*Expense, error) {
	e, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusActive {
		return nil, fmt.Errorf("%w: cannot cancel %s expense", ErrInvalidState, e.Status)
	}

	err = s.inTx(ctx, func(txCtx context.Context) error {
		for _, sp := range e.Splits {
			if sp.ParticipantID == e.PayerID {
				continue
			}
			remaining := sp.RemainingAmount()
			if remaining.IsZero() {
				continue
			}
			if err := s.applyDelta(txCtx, sp.ParticipantID, e.PayerID, remaining.Negate()); err != nil {
				return err
			}
		}
		e.Status = StatusCancelled
		e.UpdatedAt = time.Now()
		return s.repo.UpdateExpense(txCtx, e)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalances(ctx, e)
	s.log.WithContext(ctx).Info("expense cancelled", "expense_id", e.ID)
	return e, nil
}

// GetExpense retrieves an expense with its splits.
func (s *Service) GetExpense(ctx context.Context, id uuid.UUID) (*Expense, error) {
	return s.repo.GetExpense(ctx, id)
}

// buildSplits converts allocations into splits owned by e. The payer's own
// share, if present, is created fully settled: the payer covered it by
// paying the bill. settled optionally carries over prior settled amounts
// keyed by participant.
func (s *Service) buildSplits(e *Expense, allocs []split.Allocation, settled map[uuid.UUID]money.Money) []*ExpenseSplit {
	now := time.Now()
	splits := make([]*ExpenseSplit, len(allocs))
	for i, a := range allocs {
		settledAmount := money.Zero(e.TotalAmount.Currency())
		if a.ParticipantID == e.PayerID {
			settledAmount = a.Amount
		} else if prev, ok := settled[a.ParticipantID]; ok {
			settledAmount = prev
		}
		splits[i] = &ExpenseSplit{
			ID:            uuid.New(),
			ExpenseID:     e.ID,
			ParticipantID: a.ParticipantID,
			Amount:        a.Amount,
			Percentage:    a.Percentage,
			Shares:        a.Shares,
			SettledAmount: settledAmount,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	return splits
}

// carriedSettlements maps prior settled amounts onto the new allocation
// set. Fails with ErrSettlementConflict if a settled participant vanishes
// or their new share drops below what they already settled.
func carriedSettlements(e *Expense, allocs []split.Allocation) (map[uuid.UUID]money.Money, error) {
	newAmounts := make(map[uuid.UUID]money.Money, len(allocs))
	for _, a := range allocs {
		newAmounts[a.ParticipantID] = a.Amount
	}

	settled := make(map[uuid.UUID]money.Money)
	for _, sp := range e.Splits {
		if sp.ParticipantID == e.PayerID || sp.SettledAmount.IsZero() {
			continue
		}
		newAmount, ok := newAmounts[sp.ParticipantID]
		if !ok {
			return nil, fmt.Errorf("%w: participant %s has settled %s but is removed by the edit",
				ErrSettlementConflict, sp.ParticipantID, sp.SettledAmount)
		}
		c, err := sp.SettledAmount.Cmp(newAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSettlementConflict, err)
		}
		if c > 0 {
			return nil, fmt.Errorf("%w: participant %s has settled %s, new share is %s",
				ErrSettlementConflict, sp.ParticipantID, sp.SettledAmount, newAmount)
		}
		settled[sp.ParticipantID] = sp.SettledAmount
	}
	return settled, nil
}

func applyFieldEdits(e *Expense, in EditExpenseInput, total money.Money, splitType split.Type) {
	if in.Title != nil {
		e.Title = *in.Title
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.Date != nil {
		e.Date = *in.Date
	}
	if in.Category != nil {
		e.Category = *in.Category
	}
	if in.Notes != nil {
		e.Notes = *in.Notes
	}
	if in.ReceiptURL != nil {
		e.ReceiptURL = *in.ReceiptURL
	}
	e.TotalAmount = total
	e.SplitType = splitType
}

// deriveStatus computes the ACTIVE/SETTLED state from the splits. SETTLED
// is derived, never set independently.
func deriveStatus(e *Expense) Status {
	if e.Status == StatusCancelled || e.Status == StatusDisputed {
		return e.Status
	}
	if e.IsFullySettled() {
		return StatusSettled
	}
	return StatusActive
}

// inTx runs fn inside a repository transaction, retrying bounded times on
// write conflicts. On exhaustion the conflict is surfaced as ErrLedgerApply
// with no partial effects applied.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		txCtx, err := s.repo.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLedgerApply, err)
		}

		if err := fn(txCtx); err != nil {
			_ = s.repo.RollbackTx(txCtx)
			if errors.Is(err, ErrTxConflict) {
				lastErr = err
				s.log.WithContext(ctx).Warn("transaction conflict, retrying", "attempt", attempt)
				continue
			}
			return err
		}

		if err := s.repo.CommitTx(txCtx); err != nil {
			_ = s.repo.RollbackTx(txCtx)
			if errors.Is(err, ErrTxConflict) {
				lastErr = err
				s.log.WithContext(ctx).Warn("commit conflict, retrying", "attempt", attempt)
				continue
			}
			return fmt.Errorf("%w: %v", ErrLedgerApply, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrLedgerApply, lastErr)
}

// invalidateBalances drops cached balance listings for every user an
// expense touches. Cache errors are logged, never surfaced: the cache is
// read-through and self-heals.
func (s *Service) invalidateBalances(ctx context.Context, e *Expense) {
	if s.cache == nil {
		return
	}
	users := make([]uuid.UUID, 0, len(e.Splits)+1)
	users = append(users, e.PayerID)
	for _, sp := range e.Splits {
		if sp.ParticipantID != e.PayerID {
			users = append(users, sp.ParticipantID)
		}
	}
	if err := s.cache.Invalidate(ctx, users...); err != nil {
		s.log.WithContext(ctx).Warn("failed to invalidate balance cache", "error", err)
	}
}
