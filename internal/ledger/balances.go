package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/splitzy/expense-service/pkg/money"
)

// applyDelta records that debtor owes creditor an additional amount
// (negative amounts reduce the debt). It must run inside a repository
// transaction: the pair row is locked for the duration.
func (s *Service) applyDelta(ctx context.Context, debtor, creditor uuid.UUID, amount money.Money) error {
	if debtor == creditor {
		return ErrSelfPair
	}
	userA, userB, flipped := CanonicalPair(debtor, creditor)

	// Canonical sign: positive means userA owes userB. If the debtor is
	// userB, the debt runs against the canonical direction.
	delta := amount
	if flipped {
		delta = delta.Negate()
	}

	row, err := s.repo.GetPairBalanceForUpdate(ctx, userA, userB, amount.Currency())
	if err != nil {
		return err
	}
	updated, err := row.Amount.Add(delta)
	if err != nil {
		return err
	}
	row.Amount = updated
	row.UpdatedAt = time.Now()
	return s.repo.UpdatePairBalance(ctx, row)
}

// ApplyDelta applies a single signed delta between two users in its own
// transaction. Expense and settlement operations use the transactional
// internals directly; this entry point serves standalone corrections.
func (s *Service) ApplyDelta(ctx context.Context, debtor, creditor uuid.UUID, amount money.Money) error {
	err := s.inTx(ctx, func(txCtx context.Context) error {
		return s.applyDelta(txCtx, debtor, creditor, amount)
	})
	if err != nil {
		return err
	}
	s.invalidateUsers(ctx, debtor, creditor)
	return nil
}

// GetBalance returns the signed balance between two users from userID's
// perspective: positive means userID owes otherUserID. A pair with no
// ledger row has a zero balance, not an error.
func (s *Service) GetBalance(ctx context.Context, userID, otherUserID uuid.UUID) (money.Money, error) {
	if userID == otherUserID {
		return money.Money{}, ErrSelfPair
	}
	userA, userB, flipped := CanonicalPair(userID, otherUserID)

	row, err := s.repo.GetPairBalance(ctx, userA, userB)
	if err != nil {
		return money.Money{}, err
	}
	if row == nil {
		return money.Zero(s.defaultCurrency), nil
	}
	if flipped {
		return row.Amount.Negate(), nil
	}
	return row.Amount, nil
}

// ListBalances returns every non-zero balance involving userID, each from
// userID's perspective (positive = userID owes the other user). Results
// are served from the cache when possible.
func (s *Service) ListBalances(ctx context.Context, userID uuid.UUID) ([]UserBalance, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.GetUserBalances(ctx, userID)
		if err != nil {
			s.log.WithContext(ctx).Warn("balance cache read failed", "error", err)
		} else if ok {
			return cached, nil
		}
	}

	rows, err := s.repo.ListNonZeroBalances(ctx, userID)
	if err != nil {
		return nil, err
	}
	balances := make([]UserBalance, 0, len(rows))
	for _, row := range rows {
		if row.UserA == userID {
			balances = append(balances, UserBalance{OtherUserID: row.UserB, Amount: row.Amount})
		} else {
			balances = append(balances, UserBalance{OtherUserID: row.UserA, Amount: row.Amount.Negate()})
		}
	}

	if s.cache != nil {
		if err := s.cache.SetUserBalances(ctx, userID, balances); err != nil {
			s.log.WithContext(ctx).Warn("balance cache write failed", "error", err)
		}
	}
	return balances, nil
}

// SettlePairBalance applies a direct payment between two users, moving
// their balance toward zero by the given positive amount. Fails with
// ErrOverSettlement if the amount exceeds the absolute balance.
func (s *Service) SettlePairBalance(ctx context.Context, userID, otherUserID uuid.UUID, amount money.Money) error {
	if userID == otherUserID {
		return ErrSelfPair
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	userA, userB, _ := CanonicalPair(userID, otherUserID)

	err := s.inTx(ctx, func(txCtx context.Context) error {
		row, err := s.repo.GetPairBalanceForUpdate(txCtx, userA, userB, amount.Currency())
		if err != nil {
			return err
		}
		c, err := amount.Cmp(row.Amount.Abs())
		if err != nil {
			return err
		}
		if c > 0 {
			return fmt.Errorf("%w: settling %s against balance %s", ErrOverSettlement, amount, row.Amount)
		}

		// Move toward zero: subtract from a positive balance, add to a
		// negative one.
		if row.Amount.IsPositive() {
			row.Amount, err = row.Amount.Sub(amount)
		} else {
			row.Amount, err = row.Amount.Add(amount)
		}
		if err != nil {
			return err
		}
		row.UpdatedAt = time.Now()
		return s.repo.UpdatePairBalance(txCtx, row)
	})
	if err != nil {
		return err
	}
	s.invalidateUsers(ctx, userID, otherUserID)
	return nil
}

func (s *Service) invalidateUsers(ctx context.Context, users ...uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, users...); err != nil {
		s.log.WithContext(ctx).Warn("failed to invalidate balance cache", "error", err)
	}
}
