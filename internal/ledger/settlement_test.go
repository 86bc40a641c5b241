package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitzy/expense-service/internal/ledger"
	"github.com/splitzy/expense-service/pkg/money"
)

func TestSettleSplit_PartialThenFull(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)
	splitID := e.SplitFor(b).ID

	// First installment: 20.00 of a 50.00 share
	after, err := svc.SettleSplit(context.Background(), splitID, inr(t, 2000))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusActive, after.Status)
	assert.Equal(t, int64(2000), after.SplitFor(b).SettledAmount.MinorUnits())
	assert.Equal(t, int64(3000), balance(t, svc, b, payer))

	// Second installment clears the remainder and the whole expense
	after, err = svc.SettleSplit(context.Background(), splitID, inr(t, 3000))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSettled, after.Status)
	assert.True(t, after.SplitFor(b).IsSettled())
	assert.Equal(t, int64(0), balance(t, svc, b, payer))
}

func TestSettleSplit_ExpenseSettlesOnlyWhenAllSplitsDo(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b, c := uuid.New(), uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 9000, payer, payer, b, c)

	after, err := svc.SettleSplitFully(context.Background(), e.SplitFor(b).ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusActive, after.Status)

	after, err = svc.SettleSplitFully(context.Background(), e.SplitFor(c).ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSettled, after.Status)
}

func TestSettleSplit_RejectsOverSettlement(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	_, err := svc.SettleSplit(context.Background(), e.SplitFor(b).ID, inr(t, 6000))
	assert.ErrorIs(t, err, ledger.ErrOverSettlement)

	// A failed settlement leaves the split and balance untouched
	assert.Equal(t, int64(5000), balance(t, svc, b, payer))
}

func TestSettleSplit_RejectsAlreadySettledSplit(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	_, err := svc.SettleSplitFully(context.Background(), e.SplitFor(b).ID)
	require.NoError(t, err)

	_, err = svc.SettleSplit(context.Background(), e.SplitFor(b).ID, inr(t, 100))
	assert.ErrorIs(t, err, ledger.ErrOverSettlement)

	_, err = svc.SettleSplitFully(context.Background(), e.SplitFor(b).ID)
	assert.ErrorIs(t, err, ledger.ErrOverSettlement)
}

func TestSettleSplit_RejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	_, err := svc.SettleSplit(context.Background(), e.SplitFor(b).ID, money.Zero("INR"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestSettleSplit_RejectsCurrencyMismatch(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	usd, err := money.New(1000, "USD")
	require.NoError(t, err)

	_, err = svc.SettleSplit(context.Background(), e.SplitFor(b).ID, usd)
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestSettleSplit_RejectsCancelledExpense(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	_, err := svc.CancelExpense(context.Background(), e.ID)
	require.NoError(t, err)

	_, err = svc.SettleSplit(context.Background(), e.SplitFor(b).ID, inr(t, 1000))
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestSettleSplit_UnknownSplit(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SettleSplit(context.Background(), uuid.New(), inr(t, 100))
	assert.ErrorIs(t, err, ledger.ErrSplitNotFound)
}
