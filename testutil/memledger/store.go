// Package memledger provides an in-memory ledger.Repository for tests.
//
// Transactions are serialized by a single mutex and implemented as
// copy-on-begin snapshots, so rollback genuinely restores prior state.
// Pair-level parallelism is a property of the Postgres implementation;
// tests only need atomicity and isolation.
package memledger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/splitzy/expense-service/internal/ledger"
	"github.com/splitzy/expense-service/pkg/money"
)

type pairKey struct {
	a uuid.UUID
	b uuid.UUID
}

type ctxKey struct{}

// Store is an in-memory ledger.Repository.
type Store struct {
	mu       sync.Mutex
	expenses map[uuid.UUID]*ledger.Expense
	splits   map[uuid.UUID]uuid.UUID // split ID -> owning expense ID
	balances map[pairKey]*ledger.PairBalance

	// PairUpdateErr, when non-nil, is returned by every UpdatePairBalance
	// call. Used to exercise rollback paths.
	PairUpdateErr error
	// ConflictsRemaining makes UpdatePairBalance fail with
	// ledger.ErrTxConflict that many times before succeeding. Used to
	// exercise the bounded retry loop.
	ConflictsRemaining int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		expenses: make(map[uuid.UUID]*ledger.Expense),
		splits:   make(map[uuid.UUID]uuid.UUID),
		balances: make(map[pairKey]*ledger.PairBalance),
	}
}

type snapshot struct {
	expenses map[uuid.UUID]*ledger.Expense
	splits   map[uuid.UUID]uuid.UUID
	balances map[pairKey]*ledger.PairBalance
}

// BeginTx locks the store and snapshots its state for rollback.
func (s *Store) BeginTx(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	snap := &snapshot{
		expenses: make(map[uuid.UUID]*ledger.Expense, len(s.expenses)),
		splits:   make(map[uuid.UUID]uuid.UUID, len(s.splits)),
		balances: make(map[pairKey]*ledger.PairBalance, len(s.balances)),
	}
	for id, e := range s.expenses {
		snap.expenses[id] = copyExpense(e)
	}
	for id, eid := range s.splits {
		snap.splits[id] = eid
	}
	for k, b := range s.balances {
		snap.balances[k] = copyBalance(b)
	}
	return context.WithValue(ctx, ctxKey{}, snap), nil
}

// CommitTx releases the store lock, keeping all changes.
func (s *Store) CommitTx(ctx context.Context) error {
	if ctx.Value(ctxKey{}) == nil {
		return nil
	}
	s.mu.Unlock()
	return nil
}

// RollbackTx restores the snapshot taken at BeginTx and releases the lock.
func (s *Store) RollbackTx(ctx context.Context) error {
	snap, ok := ctx.Value(ctxKey{}).(*snapshot)
	if !ok {
		return nil
	}
	s.expenses = snap.expenses
	s.splits = snap.splits
	s.balances = snap.balances
	s.mu.Unlock()
	return nil
}

// lockIfOutsideTx takes the store lock for a standalone call; calls inside
// a transaction already hold it.
func (s *Store) lockIfOutsideTx(ctx context.Context) func() {
	if ctx.Value(ctxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) CreateExpense(ctx context.Context, e *ledger.Expense) error {
	defer s.lockIfOutsideTx(ctx)()
	s.expenses[e.ID] = copyExpense(e)
	for _, sp := range e.Splits {
		s.splits[sp.ID] = e.ID
	}
	return nil
}

func (s *Store) GetExpense(ctx context.Context, id uuid.UUID) (*ledger.Expense, error) {
	defer s.lockIfOutsideTx(ctx)()
	e, ok := s.expenses[id]
	if !ok {
		return nil, ledger.ErrExpenseNotFound
	}
	return copyExpense(e), nil
}

func (s *Store) GetExpenseBySplit(ctx context.Context, splitID uuid.UUID) (*ledger.Expense, error) {
	defer s.lockIfOutsideTx(ctx)()
	eid, ok := s.splits[splitID]
	if !ok {
		return nil, ledger.ErrSplitNotFound
	}
	e, ok := s.expenses[eid]
	if !ok {
		return nil, ledger.ErrExpenseNotFound
	}
	return copyExpense(e), nil
}

func (s *Store) UpdateExpense(ctx context.Context, e *ledger.Expense) error {
	defer s.lockIfOutsideTx(ctx)()
	if _, ok := s.expenses[e.ID]; !ok {
		return ledger.ErrExpenseNotFound
	}
	s.expenses[e.ID] = copyExpense(e)
	return nil
}

func (s *Store) ReplaceSplits(ctx context.Context, expenseID uuid.UUID, splits []*ledger.ExpenseSplit) error {
	defer s.lockIfOutsideTx(ctx)()
	e, ok := s.expenses[expenseID]
	if !ok {
		return ledger.ErrExpenseNotFound
	}
	for _, sp := range e.Splits {
		delete(s.splits, sp.ID)
	}
	e.Splits = make([]*ledger.ExpenseSplit, len(splits))
	for i, sp := range splits {
		e.Splits[i] = copySplit(sp)
		s.splits[sp.ID] = expenseID
	}
	return nil
}

func (s *Store) UpdateSplit(ctx context.Context, sp *ledger.ExpenseSplit) error {
	defer s.lockIfOutsideTx(ctx)()
	eid, ok := s.splits[sp.ID]
	if !ok {
		return ledger.ErrSplitNotFound
	}
	e := s.expenses[eid]
	for i, existing := range e.Splits {
		if existing.ID == sp.ID {
			e.Splits[i] = copySplit(sp)
			return nil
		}
	}
	return ledger.ErrSplitNotFound
}

func (s *Store) GetPairBalance(ctx context.Context, userA, userB uuid.UUID) (*ledger.PairBalance, error) {
	defer s.lockIfOutsideTx(ctx)()
	b, ok := s.balances[pairKey{userA, userB}]
	if !ok {
		return nil, nil
	}
	return copyBalance(b), nil
}

func (s *Store) GetPairBalanceForUpdate(ctx context.Context, userA, userB uuid.UUID, currency string) (*ledger.PairBalance, error) {
	defer s.lockIfOutsideTx(ctx)()
	key := pairKey{userA, userB}
	b, ok := s.balances[key]
	if !ok {
		b = &ledger.PairBalance{
			ID:     uuid.New(),
			UserA:  userA,
			UserB:  userB,
			Amount: money.Zero(currency),
		}
		s.balances[key] = b
	}
	return copyBalance(b), nil
}

func (s *Store) UpdatePairBalance(ctx context.Context, b *ledger.PairBalance) error {
	defer s.lockIfOutsideTx(ctx)()
	if s.PairUpdateErr != nil {
		return s.PairUpdateErr
	}
	if s.ConflictsRemaining > 0 {
		s.ConflictsRemaining--
		return ledger.ErrTxConflict
	}
	s.balances[pairKey{b.UserA, b.UserB}] = copyBalance(b)
	return nil
}

func (s *Store) ListNonZeroBalances(ctx context.Context, userID uuid.UUID) ([]*ledger.PairBalance, error) {
	defer s.lockIfOutsideTx(ctx)()
	var out []*ledger.PairBalance
	for _, b := range s.balances {
		if b.Amount.IsZero() {
			continue
		}
		if b.UserA == userID || b.UserB == userID {
			out = append(out, copyBalance(b))
		}
	}
	return out, nil
}

func copyExpense(e *ledger.Expense) *ledger.Expense {
	clone := *e
	clone.Splits = make([]*ledger.ExpenseSplit, len(e.Splits))
	for i, sp := range e.Splits {
		clone.Splits[i] = copySplit(sp)
	}
	if e.GroupID != nil {
		gid := *e.GroupID
		clone.GroupID = &gid
	}
	return &clone
}

func copySplit(sp *ledger.ExpenseSplit) *ledger.ExpenseSplit {
	clone := *sp
	if sp.Percentage != nil {
		p := *sp.Percentage
		clone.Percentage = &p
	}
	if sp.Shares != nil {
		n := *sp.Shares
		clone.Shares = &n
	}
	return &clone
}

func copyBalance(b *ledger.PairBalance) *ledger.PairBalance {
	clone := *b
	return &clone
}
