/**
 * @description
 * This file defines the core domain models for the ledger service: accounts,
 * ledger entries (transactions), and the inputs used to post balance changes.
 * These structs are shared by the storage layer, the transfer engine, and the
 * statement reader.
 *
 * @notes
 * - Amounts are stored as `int64` in minor currency units (cents), which
 *   avoids floating-point inaccuracies with financial data.
 * - Ledger entries are immutable once committed: corrections are posted as
 *   new offsetting entries, never as edits or deletes.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind classifies a single ledger entry. The kind determines the sign of
// the entry amount: debits are negative, credits are positive.
type EntryKind string

const (
	KindDeposit             EntryKind = "deposit"
	KindWithdrawal          EntryKind = "withdrawal"
	KindTransferOut         EntryKind = "transfer_out"
	KindTransferIn          EntryKind = "transfer_in"
	KindExternalTransferOut EntryKind = "external_transfer_out"
)

// Debit reports whether entries of this kind carry a negative amount.
func (k EntryKind) Debit() bool {
	switch k {
	case KindWithdrawal, KindTransferOut, KindExternalTransferOut:
		return true
	default:
		return false
	}
}

// Valid reports whether k is one of the known entry kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindTransferOut, KindTransferIn, KindExternalTransferOut:
		return true
	default:
		return false
	}
}

// Account represents a user-owned balance. The balance is never mutated
// except through a committed ledger entry; it is always equal to the sum of
// all entry amounts ever posted against the account.
type Account struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Balance   int64     `json:"balance"` // in cents
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is one immutable row of the append-only transaction log. The
// amount is signed: positive for credits, negative for debits, never zero.
// PostedAt is assigned by the store at commit time.
type Transaction struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Kind      EntryKind `json:"kind"`
	Amount    int64     `json:"amount"` // in cents, signed
	PostedAt  time.Time `json:"posted_at"`
}

// EntryInput describes one balance delta to be posted by the store. A slice
// of EntryInputs passed to Apply commits as a single unit of work.
type EntryInput struct {
	AccountID uuid.UUID
	Delta     int64 // in cents, signed
	Kind      EntryKind
}

// SortOrder controls the ordering of transaction listings.
type SortOrder string

const (
	OrderAscending  SortOrder = "asc"
	OrderDescending SortOrder = "desc"
)

// TimeRange bounds a transaction listing: inclusive From, exclusive To.
// A nil boundary leaves that side unbounded.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}
