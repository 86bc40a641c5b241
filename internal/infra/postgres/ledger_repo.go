package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/splitzy/expense-service/internal/ledger"
	"github.com/splitzy/expense-service/internal/split"
	"github.com/splitzy/expense-service/pkg/money"
)

// LedgerRepository implements the ledger repository interface using PostgreSQL
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Expense operations

// CreateExpense inserts an expense with its splits
func (r *LedgerRepository) CreateExpense(ctx context.Context, e *ledger.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO expenses (id, title, description, total_amount, currency, payer_id, expense_date, category, split_type, group_id, notes, receipt_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	q := r.getQueryer(ctx)
	_, err := q.Exec(ctx, query,
		e.ID,
		e.Title,
		e.Description,
		e.TotalAmount.MinorUnits(),
		e.TotalAmount.Currency(),
		e.PayerID,
		e.Date,
		string(e.Category),
		string(e.SplitType),
		e.GroupID,
		e.Notes,
		e.ReceiptURL,
		string(e.Status),
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return wrapDBError("failed to create expense", err)
	}

	for _, sp := range e.Splits {
		if err := r.insertSplit(ctx, sp); err != nil {
			return err
		}
	}

	return nil
}

// insertSplit inserts a single split row (helper method)
func (r *LedgerRepository) insertSplit(ctx context.Context, sp *ledger.ExpenseSplit) error {
	query := `
		INSERT INTO expense_splits (id, expense_id, participant_id, amount, percentage, shares, settled_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var percentage *string
	if sp.Percentage != nil {
		s := sp.Percentage.String()
		percentage = &s
	}

	q := r.getQueryer(ctx)
	_, err := q.Exec(ctx, query,
		sp.ID,
		sp.ExpenseID,
		sp.ParticipantID,
		sp.Amount.MinorUnits(),
		percentage,
		sp.Shares,
		sp.SettledAmount.MinorUnits(),
		sp.CreatedAt,
		sp.UpdatedAt,
	)
	if err != nil {
		return wrapDBError("failed to insert split", err)
	}

	return nil
}

const expenseColumns = `id, title, description, total_amount, currency, payer_id, expense_date, category, split_type, group_id, notes, receipt_url, status, created_at, updated_at`

// GetExpense retrieves an expense with its splits
func (r *LedgerRepository) GetExpense(ctx context.Context, id uuid.UUID) (*ledger.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = $1`

	q := r.getQueryer(ctx)
	e, err := r.scanExpense(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	e.Splits, err = r.getSplits(ctx, e.ID, e.TotalAmount.Currency())
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetExpenseBySplit loads the expense owning the given split. Inside a
// transaction the expense row is locked, so concurrent settlements against
// the same expense serialize on it.
func (r *LedgerRepository) GetExpenseBySplit(ctx context.Context, splitID uuid.UUID) (*ledger.Expense, error) {
	query := `
		SELECT ` + prefixColumns("e", expenseColumns) + `
		FROM expenses e
		JOIN expense_splits s ON s.expense_id = e.id
		WHERE s.id = $1
	`
	if r.getTxFromContext(ctx) != nil {
		query += " FOR UPDATE OF e"
	}

	q := r.getQueryer(ctx)
	e, err := r.scanExpense(q.QueryRow(ctx, query, splitID))
	if err != nil {
		if errors.Is(err, ledger.ErrExpenseNotFound) {
			return nil, ledger.ErrSplitNotFound
		}
		return nil, err
	}

	e.Splits, err = r.getSplits(ctx, e.ID, e.TotalAmount.Currency())
	if err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateExpense updates the expense row; splits are managed separately
func (r *LedgerRepository) UpdateExpense(ctx context.Context, e *ledger.Expense) error {
	query := `
		UPDATE expenses
		SET title = $2, description = $3, total_amount = $4, currency = $5,
		    expense_date = $6, category = $7, split_type = $8, group_id = $9,
		    notes = $10, receipt_url = $11, status = $12, updated_at = $13
		WHERE id = $1
	`

	q := r.getQueryer(ctx)
	result, err := q.Exec(ctx, query,
		e.ID,
		e.Title,
		e.Description,
		e.TotalAmount.MinorUnits(),
		e.TotalAmount.Currency(),
		e.Date,
		string(e.Category),
		string(e.SplitType),
		e.GroupID,
		e.Notes,
		e.ReceiptURL,
		string(e.Status),
		e.UpdatedAt,
	)
	if err != nil {
		return wrapDBError("failed to update expense", err)
	}
	if result.RowsAffected() == 0 {
		return ledger.ErrExpenseNotFound
	}

	return nil
}

// ReplaceSplits swaps the expense's split set atomically
func (r *LedgerRepository) ReplaceSplits(ctx context.Context, expenseID uuid.UUID, splits []*ledger.ExpenseSplit) error {
	q := r.getQueryer(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM expense_splits WHERE expense_id = $1`, expenseID); err != nil {
		return wrapDBError("failed to delete splits", err)
	}

	for _, sp := range splits {
		if err := r.insertSplit(ctx, sp); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSplit updates a single split row
func (r *LedgerRepository) UpdateSplit(ctx context.Context, sp *ledger.ExpenseSplit) error {
	query := `
		UPDATE expense_splits
		SET amount = $2, settled_amount = $3, updated_at = $4
		WHERE id = $1
	`

	q := r.getQueryer(ctx)
	result, err := q.Exec(ctx, query,
		sp.ID,
		sp.Amount.MinorUnits(),
		sp.SettledAmount.MinorUnits(),
		sp.UpdatedAt,
	)
	if err != nil {
		return wrapDBError("failed to update split", err)
	}
	if result.RowsAffected() == 0 {
		return ledger.ErrSplitNotFound
	}

	return nil
}

// getSplits loads the split rows for an expense in insertion order
func (r *LedgerRepository) getSplits(ctx context.Context, expenseID uuid.UUID, currency string) ([]*ledger.ExpenseSplit, error) {
	query := `
		SELECT id, expense_id, participant_id, amount, percentage, shares, settled_amount, created_at, updated_at
		FROM expense_splits
		WHERE expense_id = $1
		ORDER BY created_at ASC, id ASC
	`

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, expenseID)
	if err != nil {
		return nil, wrapDBError("failed to query splits", err)
	}
	defer rows.Close()

	var splits []*ledger.ExpenseSplit
	for rows.Next() {
		var sp ledger.ExpenseSplit
		var amount, settled int64
		var percentage sql.NullString
		var shares sql.NullInt64

		err := rows.Scan(
			&sp.ID,
			&sp.ExpenseID,
			&sp.ParticipantID,
			&amount,
			&percentage,
			&shares,
			&settled,
			&sp.CreatedAt,
			&sp.UpdatedAt,
		)
		if err != nil {
			return nil, wrapDBError("failed to scan split", err)
		}

		if sp.Amount, err = money.NewSigned(amount, currency); err != nil {
			return nil, fmt.Errorf("invalid split amount: %w", err)
		}
		if sp.SettledAmount, err = money.NewSigned(settled, currency); err != nil {
			return nil, fmt.Errorf("invalid settled amount: %w", err)
		}
		if percentage.Valid {
			p, err := decimal.NewFromString(percentage.String)
			if err != nil {
				return nil, fmt.Errorf("invalid percentage: %w", err)
			}
			sp.Percentage = &p
		}
		if shares.Valid {
			n := shares.Int64
			sp.Shares = &n
		}

		splits = append(splits, &sp)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapDBError("error iterating splits", err)
	}
	return splits, nil
}

// scanExpense scans an expense row without its splits
func (r *LedgerRepository) scanExpense(row pgx.Row) (*ledger.Expense, error) {
	var e ledger.Expense
	var total int64
	var currency, category, splitType, status string
	var groupID *uuid.UUID

	err := row.Scan(
		&e.ID,
		&e.Title,
		&e.Description,
		&total,
		&currency,
		&e.PayerID,
		&e.Date,
		&category,
		&splitType,
		&groupID,
		&e.Notes,
		&e.ReceiptURL,
		&status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrExpenseNotFound
		}
		return nil, wrapDBError("failed to get expense", err)
	}

	if e.TotalAmount, err = money.NewSigned(total, currency); err != nil {
		return nil, fmt.Errorf("invalid expense amount: %w", err)
	}
	e.Category = ledger.Category(category)
	e.SplitType = split.Type(splitType)
	e.Status = ledger.Status(status)
	e.GroupID = groupID

	return &e, nil
}

// Pair balance operations

// GetPairBalance reads the balance row for a canonical pair. A pair with no
// row returns (nil, nil).
func (r *LedgerRepository) GetPairBalance(ctx context.Context, userA, userB uuid.UUID) (*ledger.PairBalance, error) {
	query := `
		SELECT id, user_a, user_b, amount, currency, updated_at
		FROM pair_balances
		WHERE user_a = $1 AND user_b = $2
	`

	q := r.getQueryer(ctx)
	b, err := r.scanPairBalance(q.QueryRow(ctx, query, userA, userB))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// GetPairBalanceForUpdate locks the pair row for the surrounding
// transaction, creating a zero row first when none exists. The blind
// INSERT ... ON CONFLICT DO NOTHING makes row creation race-free.
func (r *LedgerRepository) GetPairBalanceForUpdate(ctx context.Context, userA, userB uuid.UUID, currency string) (*ledger.PairBalance, error) {
	insertQuery := `
		INSERT INTO pair_balances (id, user_a, user_b, amount, currency, updated_at)
		VALUES ($1, $2, $3, 0, $4, NOW())
		ON CONFLICT (user_a, user_b) DO NOTHING
	`

	q := r.getQueryer(ctx)
	if _, err := q.Exec(ctx, insertQuery, uuid.New(), userA, userB, currency); err != nil {
		return nil, wrapDBError("failed to ensure pair balance row", err)
	}

	selectQuery := `
		SELECT id, user_a, user_b, amount, currency, updated_at
		FROM pair_balances
		WHERE user_a = $1 AND user_b = $2
		FOR UPDATE
	`

	b, err := r.scanPairBalance(q.QueryRow(ctx, selectQuery, userA, userB))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// UpdatePairBalance writes back a locked pair balance row
func (r *LedgerRepository) UpdatePairBalance(ctx context.Context, b *ledger.PairBalance) error {
	query := `
		UPDATE pair_balances
		SET amount = $3, currency = $4, updated_at = $5
		WHERE user_a = $1 AND user_b = $2
	`

	q := r.getQueryer(ctx)
	result, err := q.Exec(ctx, query,
		b.UserA,
		b.UserB,
		b.Amount.MinorUnits(),
		b.Amount.Currency(),
		b.UpdatedAt,
	)
	if err != nil {
		return wrapDBError("failed to update pair balance", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("pair balance row missing for %s/%s", b.UserA, b.UserB)
	}

	return nil
}

// ListNonZeroBalances returns every pair row involving the user with a
// non-zero amount
func (r *LedgerRepository) ListNonZeroBalances(ctx context.Context, userID uuid.UUID) ([]*ledger.PairBalance, error) {
	query := `
		SELECT id, user_a, user_b, amount, currency, updated_at
		FROM pair_balances
		WHERE (user_a = $1 OR user_b = $1) AND amount <> 0
		ORDER BY updated_at DESC
	`

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, wrapDBError("failed to query balances", err)
	}
	defer rows.Close()

	var balances []*ledger.PairBalance
	for rows.Next() {
		b, err := r.scanPairBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapDBError("error iterating balances", err)
	}
	return balances, nil
}

// scanPairBalance scans a single pair balance row
func (r *LedgerRepository) scanPairBalance(row pgx.Row) (*ledger.PairBalance, error) {
	var b ledger.PairBalance
	var amount int64
	var currency string

	err := row.Scan(
		&b.ID,
		&b.UserA,
		&b.UserB,
		&amount,
		&currency,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, wrapDBError("failed to scan pair balance", err)
	}

	if b.Amount, err = money.NewSigned(amount, currency); err != nil {
		return nil, fmt.Errorf("invalid balance amount: %w", err)
	}
	return &b, nil
}

// Transaction management using pgx transactions
// Transactions are stored in context using txKey

// txKey is the context key for storing database transactions
type ctxKey string

const txContextKey ctxKey = "ledger_tx"

// BeginTx starts a new database transaction and stores it in the context
func (r *LedgerRepository) BeginTx(ctx context.Context) (context.Context, error) {
	if tx := r.getTxFromContext(ctx); tx != nil {
		return ctx, fmt.Errorf("transaction already in progress")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return context.WithValue(ctx, txContextKey, tx), nil
}

// CommitTx commits the database transaction from the context
func (r *LedgerRepository) CommitTx(ctx context.Context) error {
	tx := r.getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapDBError("failed to commit transaction", err)
	}

	return nil
}

// RollbackTx rolls back the database transaction from the context
func (r *LedgerRepository) RollbackTx(ctx context.Context) error {
	tx := r.getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Rollback(ctx); err != nil {
		if errors.Is(err, pgx.ErrTxClosed) {
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

// getTxFromContext retrieves the transaction from context if one exists
func (r *LedgerRepository) getTxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// getQueryer returns the transaction if one exists in context, otherwise
// returns the pool. This allows all repository methods to work both inside
// and outside transactions
func (r *LedgerRepository) getQueryer(ctx context.Context) interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	if tx := r.getTxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// wrapDBError classifies Postgres errors. Serialization failures and
// deadlocks surface as ledger.ErrTxConflict so callers can retry.
func wrapDBError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s: %v", ledger.ErrTxConflict, msg, err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// prefixColumns qualifies a comma-separated column list with a table alias
func prefixColumns(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
