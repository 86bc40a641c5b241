package ledger

import "errors"

// Expense lifecycle errors
var (
	ErrExpenseNotFound = errors.New("expense not found")
	ErrSplitNotFound   = errors.New("expense split not found")
	ErrInvalidExpense  = errors.New("invalid expense")
	ErrInvalidState    = errors.New("operation not allowed in current state")
)

// Settlement errors
var (
	ErrInvalidAmount      = errors.New("settlement amount must be positive")
	ErrOverSettlement     = errors.New("settlement exceeds remaining amount")
	ErrSettlementConflict = errors.New("edit would reduce settled amount below its current value")
)

// Ledger application errors
var (
	// ErrSelfPair is returned when a delta names the same user on both sides.
	ErrSelfPair = errors.New("pair balance requires two distinct users")

	// ErrTxConflict marks a storage-level write conflict (serialization
	// failure, deadlock). The service retries these transparently.
	ErrTxConflict = errors.New("transaction conflict")

	// ErrLedgerApply is returned when a delta could not be applied after
	// bounded retries; no partial effects remain.
	ErrLedgerApply = errors.New("failed to apply ledger delta")
)
