package ledger_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitzy/expense-service/internal/ledger"
	"github.com/splitzy/expense-service/internal/split"
	"github.com/splitzy/expense-service/pkg/logger"
	"github.com/splitzy/expense-service/pkg/money"
	"github.com/splitzy/expense-service/testutil/memledger"
)

func newTestService(t *testing.T) (*ledger.Service, *memledger.Store) {
	t.Helper()
	store := memledger.New()
	log := logger.New("test", io.Discard)
	return ledger.NewService(store, nil, log, "INR"), store
}

func inr(t *testing.T, minorUnits int64) money.Money {
	t.Helper()
	m, err := money.New(minorUnits, "INR")
	require.NoError(t, err)
	return m
}

func equalInputs(ids ...uuid.UUID) []split.Input {
	inputs := make([]split.Input, len(ids))
	for i, id := range ids {
		inputs[i] = split.Input{ParticipantID: id}
	}
	return inputs
}

func createEqualExpense(t *testing.T, svc *ledger.Service, total int64, payer uuid.UUID, all ...uuid.UUID) *ledger.Expense {
	t.Helper()
	e, err := svc.CreateExpense(context.Background(), ledger.CreateExpenseInput{
		Title:       "dinner",
		TotalAmount: inr(t, total),
		PayerID:     payer,
		Category:    ledger.CategoryFoodDining,
		SplitType:   split.TypeEqual,
		Inputs:      equalInputs(all...),
	})
	require.NoError(t, err)
	return e
}

func balance(t *testing.T, svc *ledger.Service, userID, otherID uuid.UUID) int64 {
	t.Helper()
	b, err := svc.GetBalance(context.Background(), userID, otherID)
	require.NoError(t, err)
	return b.MinorUnits()
}

func TestCreateExpense_EqualSplitUpdatesBalances(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b, c := uuid.New(), uuid.New(), uuid.New()

	e := createEqualExpense(t, svc, 10000, payer, payer, b, c)

	assert.Equal(t, ledger.StatusActive, e.Status)
	require.Len(t, e.Splits, 3)

	// The payer covered their own share by paying the bill
	payerSplit := e.SplitFor(payer)
	require.NotNil(t, payerSplit)
	assert.True(t, payerSplit.IsSettled())
	assert.Equal(t, int64(3334), payerSplit.Amount.MinorUnits())

	// Each other participant owes the payer their share
	assert.Equal(t, int64(3333), balance(t, svc, b, payer))
	assert.Equal(t, int64(3333), balance(t, svc, c, payer))
	assert.Equal(t, int64(-3333), balance(t, svc, payer, b))

	// The two debtors have no balance between themselves
	assert.Equal(t, int64(0), balance(t, svc, b, c))
}

func TestCreateExpense_RejectsNonPositiveTotal(t *testing.T) {
	svc, _ := newTestService(t)
	payer := uuid.New()

	_, err := svc.CreateExpense(context.Background(), ledger.CreateExpenseInput{
		Title:       "nothing",
		TotalAmount: money.Zero("INR"),
		PayerID:     payer,
		Category:    ledger.CategoryOther,
		SplitType:   split.TypeEqual,
		Inputs:      equalInputs(payer, uuid.New()),
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidExpense)
}

func TestCreateExpense_RollsBackWhenLedgerUpdateFails(t *testing.T) {
	svc, store := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	store.PairUpdateErr = errors.New("disk on fire")

	_, err := svc.CreateExpense(context.Background(), ledger.CreateExpenseInput{
		Title:       "doomed",
		TotalAmount: inr(t, 5000),
		PayerID:     payer,
		Category:    ledger.CategoryOther,
		SplitType:   split.TypeEqual,
		Inputs:      equalInputs(payer, b),
	})
	require.Error(t, err)

	// Nothing was persisted: no expense, no balance
	store.PairUpdateErr = nil
	assert.Equal(t, int64(0), balance(t, svc, b, payer))
}

func TestCreateExpense_RetriesWriteConflicts(t *testing.T) {
	svc, store := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	store.ConflictsRemaining = 2

	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	assert.Equal(t, int64(5000), balance(t, svc, b, payer))
	assert.Equal(t, ledger.StatusActive, e.Status)
}

func TestCreateExpense_SurfacesLedgerApplyOnExhaustedRetries(t *testing.T) {
	svc, store := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	store.ConflictsRemaining = 3

	_, err := svc.CreateExpense(context.Background(), ledger.CreateExpenseInput{
		Title:       "contended",
		TotalAmount: inr(t, 10000),
		PayerID:     payer,
		Category:    ledger.CategoryOther,
		SplitType:   split.TypeEqual,
		Inputs:      equalInputs(payer, b),
	})
	assert.ErrorIs(t, err, ledger.ErrLedgerApply)
	assert.Equal(t, int64(0), balance(t, svc, b, payer))
}

func TestCancelExpense_RestoresBalances(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b, c := uuid.New(), uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 9000, payer, payer, b, c)

	cancelled, err := svc.CancelExpense(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, cancelled.Status)

	assert.Equal(t, int64(0), balance(t, svc, b, payer))
	assert.Equal(t, int64(0), balance(t, svc, c, payer))

	// Cancelled expenses stay queryable
	got, err := svc.GetExpense(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, got.Status)
}

func TestCancelExpense_ReversesOnlyUnsettledRemainder(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	// b settles part of their 50.00 share before the cancel
	_, err := svc.SettleSplit(context.Background(), e.SplitFor(b).ID, inr(t, 1000))
	require.NoError(t, err)
	assert.Equal(t, int64(4000), balance(t, svc, b, payer))

	_, err = svc.CancelExpense(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance(t, svc, b, payer))
}

func TestCancelExpense_RequiresActiveStatus(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 1000, payer, payer, b)

	_, err := svc.CancelExpense(context.Background(), e.ID)
	require.NoError(t, err)

	_, err = svc.CancelExpense(context.Background(), e.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestEditExpense_RebalancesLedger(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)
	assert.Equal(t, int64(5000), balance(t, svc, b, payer))

	newTotal := inr(t, 20000)
	edited, err := svc.EditExpense(context.Background(), e.ID, ledger.EditExpenseInput{
		TotalAmount: &newTotal,
		Inputs:      equalInputs(payer, b),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(20000), edited.TotalAmount.MinorUnits())
	assert.Equal(t, int64(10000), balance(t, svc, b, payer))
}

func TestEditExpense_FieldOnlyEditKeepsSplits(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	title := "team lunch"
	notes := "friday"
	edited, err := svc.EditExpense(context.Background(), e.ID, ledger.EditExpenseInput{
		Title: &title,
		Notes: &notes,
	})
	require.NoError(t, err)

	assert.Equal(t, "team lunch", edited.Title)
	assert.Equal(t, int64(5000), balance(t, svc, b, payer))
	assert.Equal(t, e.SplitFor(b).ID, edited.SplitFor(b).ID)
}

func TestEditExpense_RequiresInputsWhenTotalChanges(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	newTotal := inr(t, 12000)
	_, err := svc.EditExpense(context.Background(), e.ID, ledger.EditExpenseInput{
		TotalAmount: &newTotal,
	})
	assert.ErrorIs(t, err, split.ErrInvalidInput)
}

func TestEditExpense_CarriesSettledAmounts(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	_, err := svc.SettleSplit(context.Background(), e.SplitFor(b).ID, inr(t, 1000))
	require.NoError(t, err)

	newTotal := inr(t, 20000)
	edited, err := svc.EditExpense(context.Background(), e.ID, ledger.EditExpenseInput{
		TotalAmount: &newTotal,
		Inputs:      equalInputs(payer, b),
	})
	require.NoError(t, err)

	// Settled amount carries over to the replacement split
	assert.Equal(t, int64(1000), edited.SplitFor(b).SettledAmount.MinorUnits())
	// b now owes the new share minus what was already settled
	assert.Equal(t, int64(9000), balance(t, svc, b, payer))
}

func TestEditExpense_RejectsShrinkingBelowSettled(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 10000, payer, payer, b)

	_, err := svc.SettleSplitFully(context.Background(), e.SplitFor(b).ID)
	require.NoError(t, err)

	newTotal := inr(t, 6000)
	_, err = svc.EditExpense(context.Background(), e.ID, ledger.EditExpenseInput{
		TotalAmount: &newTotal,
		Inputs:      equalInputs(payer, b),
	})
	assert.ErrorIs(t, err, ledger.ErrSettlementConflict)
}

func TestEditExpense_RejectsRemovingSettledParticipant(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b, c := uuid.New(), uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 9000, payer, payer, b, c)

	_, err := svc.SettleSplit(context.Background(), e.SplitFor(b).ID, inr(t, 500))
	require.NoError(t, err)

	newTotal := inr(t, 9000)
	_, err = svc.EditExpense(context.Background(), e.ID, ledger.EditExpenseInput{
		TotalAmount: &newTotal,
		Inputs:      equalInputs(payer, c),
	})
	assert.ErrorIs(t, err, ledger.ErrSettlementConflict)
}

func TestEditExpense_RejectsCancelledExpense(t *testing.T) {
	svc, _ := newTestService(t)
	payer, b := uuid.New(), uuid.New()
	e := createEqualExpense(t, svc, 1000, payer, payer, b)

	_, err := svc.CancelExpense(context.Background(), e.ID)
	require.NoError(t, err)

	title := "too late"
	_, err = svc.EditExpense(context.Background(), e.ID, ledger.EditExpenseInput{Title: &title})
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestGetExpense_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetExpense(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ledger.ErrExpenseNotFound)
}
