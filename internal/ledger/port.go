package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence operations the ledger core needs.
//
// Write methods participate in an explicit transaction carried in the
// context (BeginTx/CommitTx/RollbackTx); a repository that returns
// ErrTxConflict from any write signals a retryable serialization failure.
type Repository interface {
	// Expense operations
	CreateExpense(ctx context.Context, e *Expense) error
	GetExpense(ctx context.Context, id uuid.UUID) (*Expense, error)
	// GetExpenseBySplit loads the expense owning the given split. Inside a
	// transaction it locks the expense row, serializing concurrent
	// settlements against the same expense.
	GetExpenseBySplit(ctx context.Context, splitID uuid.UUID) (*Expense, error)
	UpdateExpense(ctx context.Context, e *Expense) error
	ReplaceSplits(ctx context.Context, expenseID uuid.UUID, splits []*ExpenseSplit) error
	UpdateSplit(ctx context.Context, s *ExpenseSplit) error

	// Pair balance operations. Arguments are always in canonical order.
	// GetPairBalance returns (nil, nil) for a pair with no row: a pair
	// with no history has a zero balance, not an error.
	GetPairBalance(ctx context.Context, userA, userB uuid.UUID) (*PairBalance, error)
	// GetPairBalanceForUpdate locks the pair row for the duration of the
	// surrounding transaction, creating a zero row first if none exists.
	GetPairBalanceForUpdate(ctx context.Context, userA, userB uuid.UUID, currency string) (*PairBalance, error)
	UpdatePairBalance(ctx context.Context, b *PairBalance) error
	ListNonZeroBalances(ctx context.Context, userID uuid.UUID) ([]*PairBalance, error)

	// Transaction management. BeginTx returns a derived context that routes
	// subsequent repository calls through the transaction.
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}

// BalanceCache caches per-user non-zero balance listings. Implementations
// must treat a miss as (nil, false, nil); the service tolerates a nil cache.
type BalanceCache interface {
	GetUserBalances(ctx context.Context, userID uuid.UUID) ([]UserBalance, bool, error)
	SetUserBalances(ctx context.Context, userID uuid.UUID, balances []UserBalance) error
	Invalidate(ctx context.Context, userIDs ...uuid.UUID) error
}
