/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all ledger storage operations required by the transfer engine and the
 * statement reader. Defining an interface decouples the business logic from
 * the PostgreSQL implementation and lets tests substitute an in-memory fake.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For account and transaction identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/corebank/ledger-service/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrEmptyApply        = errors.New("apply called with no entries")
	ErrZeroDelta         = errors.New("ledger entry delta must be non-zero")
	// ErrStorageUnavailable wraps underlying I/O failures. An operation that
	// surfaces this error is guaranteed not to have been applied.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConflict indicates a concurrent writer invalidated the operation's
	// precondition; callers may retry a bounded number of times.
	ErrConflict = errors.New("concurrent update conflict")
)

// ApplyResult reports what one atomic Apply committed: the log entries in
// input order and the post-commit balance of every touched account.
type ApplyResult struct {
	Entries  []domain.Transaction
	Balances map[uuid.UUID]int64
}

// Repository defines the set of methods for interacting with the ledger store.
type Repository interface {
	// Account methods
	CreateAccount(ctx context.Context, ownerID uuid.UUID, initialBalance int64) (*domain.Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error)

	// Apply posts every entry in the slice as one atomic unit of work: all
	// balance deltas and all log rows commit together or none do. Timestamps
	// are assigned at commit time. Apply fails with ErrAccountNotFound if any
	// referenced account does not exist and ErrInsufficientFunds if any
	// resulting balance would go negative; in both cases nothing is applied.
	Apply(ctx context.Context, entries []domain.EntryInput) (*ApplyResult, error)

	// ListTransactions returns the account's log entries, optionally bounded
	// by [rng.From, rng.To), in the requested order. Read-only: it never
	// takes the write path's row locks.
	ListTransactions(ctx context.Context, accountID uuid.UUID, rng domain.TimeRange, order domain.SortOrder) ([]domain.Transaction, error)
}
