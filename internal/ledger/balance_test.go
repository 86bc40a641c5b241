package ledger_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitzy/expense-service/internal/ledger"
	"github.com/splitzy/expense-service/pkg/logger"
	"github.com/splitzy/expense-service/pkg/money"
	"github.com/splitzy/expense-service/testutil/memledger"
)

func TestCanonicalPair(t *testing.T) {
	x, y := uuid.New(), uuid.New()

	a1, b1, _ := ledger.CanonicalPair(x, y)
	a2, b2, _ := ledger.CanonicalPair(y, x)

	// Both argument orders resolve to the same canonical row
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.True(t, bytes.Compare(a1[:], b1[:]) < 0)

	_, _, flippedFwd := ledger.CanonicalPair(a1, b1)
	_, _, flippedRev := ledger.CanonicalPair(b1, a1)
	assert.False(t, flippedFwd)
	assert.True(t, flippedRev)
}

func TestGetBalance_DefaultsToZero(t *testing.T) {
	svc, _ := newTestService(t)

	b, err := svc.GetBalance(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.True(t, b.IsZero())
	assert.Equal(t, "INR", b.Currency())
}

func TestGetBalance_RejectsSelfPair(t *testing.T) {
	svc, _ := newTestService(t)
	id := uuid.New()

	_, err := svc.GetBalance(context.Background(), id, id)
	assert.ErrorIs(t, err, ledger.ErrSelfPair)
}

func TestApplyDelta_PerspectiveSigns(t *testing.T) {
	svc, _ := newTestService(t)
	debtor, creditor := uuid.New(), uuid.New()

	require.NoError(t, svc.ApplyDelta(context.Background(), debtor, creditor, inr(t, 100)))

	assert.Equal(t, int64(100), balance(t, svc, debtor, creditor))
	assert.Equal(t, int64(-100), balance(t, svc, creditor, debtor))

	// Deltas accumulate regardless of argument order
	require.NoError(t, svc.ApplyDelta(context.Background(), debtor, creditor, inr(t, 50)))
	assert.Equal(t, int64(150), balance(t, svc, debtor, creditor))

	reduction, err := money.NewSigned(-150, "INR")
	require.NoError(t, err)
	require.NoError(t, svc.ApplyDelta(context.Background(), debtor, creditor, reduction))
	assert.Equal(t, int64(0), balance(t, svc, debtor, creditor))
}

func TestApplyDelta_RejectsSelfPair(t *testing.T) {
	svc, _ := newTestService(t)
	id := uuid.New()

	err := svc.ApplyDelta(context.Background(), id, id, inr(t, 100))
	assert.ErrorIs(t, err, ledger.ErrSelfPair)
}

func TestListBalances_Perspective(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b, c := uuid.New(), uuid.New(), uuid.New()
	createEqualExpense(t, svc, 9000, payer, payer, b, c)

	fromPayer, err := svc.ListBalances(context.Background(), payer)
	require.NoError(t, err)
	require.Len(t, fromPayer, 2)
	byOther := make(map[uuid.UUID]int64, len(fromPayer))
	for _, ub := range fromPayer {
		byOther[ub.OtherUserID] = ub.Amount.MinorUnits()
	}
	// The payer is owed, so both entries are negative from their side
	assert.Equal(t, int64(-3000), byOther[b])
	assert.Equal(t, int64(-3000), byOther[c])

	fromB, err := svc.ListBalances(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, fromB, 1)
	assert.Equal(t, payer, fromB[0].OtherUserID)
	assert.Equal(t, int64(3000), fromB[0].Amount.MinorUnits())
}

func TestListBalances_OmitsSettledPairs(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	_, err := svc.SettleSplitFully(context.Background(), e.SplitFor(b).ID)
	require.NoError(t, err)

	balances, err := svc.ListBalances(context.Background(), b)
	require.NoError(t, err)
	assert.Empty(t, balances)
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]ledger.UserBalance
	sets    int
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[uuid.UUID][]ledger.UserBalance)}
}

func (c *fakeCache) GetUserBalances(_ context.Context, userID uuid.UUID) ([]ledger.UserBalance, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	balances, ok := c.entries[userID]
	if ok {
		c.hits++
	}
	return balances, ok, nil
}

func (c *fakeCache) SetUserBalances(_ context.Context, userID uuid.UUID, balances []ledger.UserBalance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = balances
	c.sets++
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userIDs ...uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.entries, id)
	}
	return nil
}

func TestListBalances_CacheReadThroughAndInvalidation(t *testing.T) {
	store := memledger.New()
	cache := newFakeCache()
	svc := ledger.NewService(store, cache, logger.New("test", io.Discard), "INR")
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	// First read misses and populates the cache
	balances, err := svc.ListBalances(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 0, cache.hits)

	// Second read is served from the cache
	_, err = svc.ListBalances(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 1, cache.sets)

	// A settlement invalidates both participants' entries
	_, err = svc.SettleSplit(context.Background(), e.SplitFor(b).ID, inr(t, 1000))
	require.NoError(t, err)

	balances, err = svc.ListBalances(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, int64(4000), balances[0].Amount.MinorUnits())
}

func TestSettlePairBalance_MovesTowardZero(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	createEqualExpense(t, svc, 10000, payer, payer, b)
	require.Equal(t, int64(5000), balance(t, svc, b, payer))

	require.NoError(t, svc.SettlePairBalance(context.Background(), b, payer, inr(t, 2000)))
	assert.Equal(t, int64(3000), balance(t, svc, b, payer))

	// The creditor can record the payment too; direction is irrelevant
	require.NoError(t, svc.SettlePairBalance(context.Background(), payer, b, inr(t, 3000)))
	assert.Equal(t, int64(0), balance(t, svc, b, payer))
}

func TestSettlePairBalance_RejectsOverSettlement(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	createEqualExpense(t, svc, 10000, payer, payer, b)

	err := svc.SettlePairBalance(context.Background(), b, payer, inr(t, 5001))
	assert.ErrorIs(t, err, ledger.ErrOverSettlement)
	assert.Equal(t, int64(5000), balance(t, svc, b, payer))
}

func TestSettlePairBalance_RejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()

	err := svc.SettlePairBalance(context.Background(), b, payer, money.Zero("INR"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestApplyDelta_ConcurrentDeltasCommute(t *testing.T) {
	svc, _ := newTestService(t)
	debtor, creditor := uuid.New(), uuid.New()

	pos := inr(t, 100)
	neg, err := money.NewSigned(-100, "INR")
	require.NoError(t, err)

	const pairs = 16
	var wg sync.WaitGroup
	errs := make(chan error, 2*pairs)
	for i := 0; i < pairs; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- svc.ApplyDelta(context.Background(), debtor, creditor, pos)
		}()
		go func() {
			defer wg.Done()
			errs <- svc.ApplyDelta(context.Background(), debtor, creditor, neg)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Equal numbers of opposing deltas cancel exactly
	assert.Equal(t, int64(0), balance(t, svc, debtor, creditor))
}
