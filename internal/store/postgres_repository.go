/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. All multi-row mutations go through a single database transaction
 * with row-level locks, so a reported failure never leaves a partial write
 * visible to future reads.
 *
 * @dependencies
 * - context, errors, fmt, sort: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/corebank/ledger-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository. The pool
// is injected at construction; no package-level connection state exists.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// wrapStorageErr classifies a driver error. Serialization failures and
// deadlocks become ErrConflict so callers can retry; everything else is a
// storage failure the caller must treat as not-applied.
func wrapStorageErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// CreateAccount inserts a new account. A non-zero opening balance is posted
// as a seed deposit entry in the same transaction, so the account balance
// stays equal to the sum of its log entries from the first read onward.
func (r *PostgresRepository) CreateAccount(ctx context.Context, ownerID uuid.UUID, initialBalance int64) (*domain.Account, error) {
	if initialBalance < 0 {
		return nil, ErrInsufficientFunds
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	defer tx.Rollback(ctx)

	account := &domain.Account{ID: uuid.New(), OwnerID: ownerID, Balance: initialBalance}
	err = tx.QueryRow(ctx,
		`INSERT INTO accounts (id, owner_id, balance) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		account.ID, account.OwnerID, account.Balance,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, wrapStorageErr(err)
	}

	if initialBalance > 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO transactions (id, account_id, kind, amount, posted_at) VALUES ($1, $2, $3, $4, now())`,
			uuid.New(), account.ID, domain.KindDeposit, initialBalance,
		)
		if err != nil {
			return nil, wrapStorageErr(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapStorageErr(err)
	}
	return account, nil
}

// GetAccount retrieves an account by id.
func (r *PostgresRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, owner_id, balance, created_at, updated_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.OwnerID, &account.Balance, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapStorageErr(err)
	}
	return &account, nil
}

// GetBalance returns the current balance for an account. Side-effect-free.
func (r *PostgresRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, wrapStorageErr(err)
	}
	return balance, nil
}

// ListAccountsByOwner retrieves all accounts belonging to one owner.
func (r *PostgresRepository) ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	query := `SELECT id, owner_id, balance, created_at, updated_at FROM accounts WHERE owner_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(&account.ID, &account.OwnerID, &account.Balance, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, wrapStorageErr(err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorageErr(err)
	}
	return accounts, nil
}

// Apply posts a set of ledger entries as one atomic unit of work.
//
// All touched account rows are locked with FOR UPDATE in ascending id order,
// which serializes concurrent applies on overlapping accounts and prevents
// lock-order deadlocks between concurrent transfers. Sufficiency is verified
// against the locked balances, never a snapshot read from outside the
// transaction. Entry timestamps come from now(), which is stable for the
// whole transaction, so both legs of a transfer carry the same commit time.
func (r *PostgresRepository) Apply(ctx context.Context, entries []domain.EntryInput) (*ApplyResult, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyApply
	}
	for _, e := range entries {
		if e.Delta == 0 {
			return nil, ErrZeroDelta
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	defer tx.Rollback(ctx)

	// Net delta per account, with accounts locked in a deterministic order.
	netDelta := make(map[uuid.UUID]int64, len(entries))
	for _, e := range entries {
		netDelta[e.AccountID] += e.Delta
	}
	lockOrder := make([]uuid.UUID, 0, len(netDelta))
	for id := range netDelta {
		lockOrder = append(lockOrder, id)
	}
	sort.Slice(lockOrder, func(i, j int) bool {
		return lockOrder[i].String() < lockOrder[j].String()
	})

	for _, accountID := range lockOrder {
		var balance int64
		err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrAccountNotFound
			}
			return nil, wrapStorageErr(err)
		}
		if balance+netDelta[accountID] < 0 {
			return nil, ErrInsufficientFunds
		}
	}

	balances := make(map[uuid.UUID]int64, len(netDelta))
	for accountID, delta := range netDelta {
		var newBalance int64
		err := tx.QueryRow(ctx,
			`UPDATE accounts SET balance = balance + $1, updated_at = now() WHERE id = $2 RETURNING balance`,
			delta, accountID,
		).Scan(&newBalance)
		if err != nil {
			return nil, wrapStorageErr(err)
		}
		balances[accountID] = newBalance
	}

	posted := make([]domain.Transaction, 0, len(entries))
	for _, e := range entries {
		entry := domain.Transaction{
			ID:        uuid.New(),
			AccountID: e.AccountID,
			Kind:      e.Kind,
			Amount:    e.Delta,
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO transactions (id, account_id, kind, amount, posted_at) VALUES ($1, $2, $3, $4, now()) RETURNING posted_at`,
			entry.ID, entry.AccountID, entry.Kind, entry.Amount,
		).Scan(&entry.PostedAt)
		if err != nil {
			return nil, wrapStorageErr(err)
		}
		posted = append(posted, entry)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapStorageErr(err)
	}
	return &ApplyResult{Entries: posted, Balances: balances}, nil
}

// ListTransactions retrieves an account's log entries, optionally bounded by
// [rng.From, rng.To). The query runs at the pool's default read isolation and
// takes no row locks, so it never blocks concurrent applies.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, rng domain.TimeRange, order domain.SortOrder) ([]domain.Transaction, error) {
	// Distinguish a missing account from an account with no entries.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return nil, wrapStorageErr(err)
	}
	if !exists {
		return nil, ErrAccountNotFound
	}

	query := `SELECT id, account_id, kind, amount, posted_at FROM transactions WHERE account_id = $1`
	args := []interface{}{accountID}
	if rng.From != nil {
		args = append(args, *rng.From)
		query += fmt.Sprintf(" AND posted_at >= $%d", len(args))
	}
	if rng.To != nil {
		args = append(args, *rng.To)
		query += fmt.Sprintf(" AND posted_at < $%d", len(args))
	}
	if order == domain.OrderAscending {
		query += " ORDER BY posted_at ASC, id ASC"
	} else {
		query += " ORDER BY posted_at DESC, id DESC"
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var entry domain.Transaction
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Kind, &entry.Amount, &entry.PostedAt); err != nil {
			return nil, wrapStorageErr(err)
		}
		transactions = append(transactions, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorageErr(err)
	}
	return transactions, nil
}
