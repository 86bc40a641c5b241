package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/splitzy/expense-service/pkg/money"
)

// SettleSplit records a partial or full payment against a split: the
// split's settled amount grows by amount and an equal-and-opposite delta
// lands on the pair balance between the expense payer and the participant.
// Both mutations share one transaction; if the ledger update cannot be
// applied, the split update is rolled back with it.
//
// When the payment settles the expense's last open split, the expense
// transitions to SETTLED (a derived state).
func (s *Service) SettleSplit(ctx context.Context, splitID uuid.UUID, amount money.Money) (*Expense, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return s.settle(ctx, splitID, &amount)
}

// SettleSplitFully settles a split's entire remaining amount.
func (s *Service) SettleSplitFully(ctx context.Context, splitID uuid.UUID) (*Expense, error) {
	return s.settle(ctx, splitID, nil)
}

// settle applies a settlement of the given amount, or of the split's full
// remainder when amount is nil.
func (s *Service) settle(ctx context.Context, splitID uuid.UUID, amount *money.Money) (*Expense, error) {
	var result *Expense
	err := s.inTx(ctx, func(txCtx context.Context) error {
		// GetExpenseBySplit locks the expense row inside the transaction,
		// serializing concurrent settlements of the same expense.
		e, err := s.repo.GetExpenseBySplit(txCtx, splitID)
		if err != nil {
			return err
		}
		if e.Status != StatusActive {
			return fmt.Errorf("%w: cannot settle split of %s expense", ErrInvalidState, e.Status)
		}

		var sp *ExpenseSplit
		for _, candidate := range e.Splits {
			if candidate.ID == splitID {
				sp = candidate
				break
			}
		}
		if sp == nil {
			return ErrSplitNotFound
		}

		remaining := sp.RemainingAmount()
		pay := remaining
		if amount != nil {
			pay = *amount
			c, err := pay.Cmp(remaining)
			if err != nil {
				return err
			}
			if c > 0 {
				return fmt.Errorf("%w: settling %s, remaining %s", ErrOverSettlement, pay, remaining)
			}
		}
		if !pay.IsPositive() {
			return fmt.Errorf("%w: split already settled", ErrOverSettlement)
		}

		settled, err := sp.SettledAmount.Add(pay)
		if err != nil {
			return err
		}
		sp.SettledAmount = settled
		sp.UpdatedAt = time.Now()
		if err := s.repo.UpdateSplit(txCtx, sp); err != nil {
			return err
		}

		if err := s.applyDelta(txCtx, sp.ParticipantID, e.PayerID, pay.Negate()); err != nil {
			return err
		}

		if e.IsFullySettled() {
			e.Status = StatusSettled
			e.UpdatedAt = time.Now()
			if err := s.repo.UpdateExpense(txCtx, e); err != nil {
				return err
			}
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalances(ctx, result)
	s.log.WithContext(ctx).Info("split settled",
		"split_id", splitID,
		"expense_id", result.ID,
		"expense_status", string(result.Status),
	)
	return result, nil
}
