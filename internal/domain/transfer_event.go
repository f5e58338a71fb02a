package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryPostedEvent is emitted after a ledger entry has been durably committed.
type EntryPostedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AccountID     uuid.UUID `json:"account_id"`
	Kind          EntryKind `json:"kind"`
	Amount        int64     `json:"amount"`
	PostedAt      time.Time `json:"posted_at"`
}

// TransferCompletedEvent is emitted once after an internal transfer commits,
// carrying both legs of the paired debit/credit.
type TransferCompletedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	FromAccountID uuid.UUID `json:"from_account_id"`
	ToAccountID   uuid.UUID `json:"to_account_id"`
	Amount        int64     `json:"amount"`
	DebitEntryID  uuid.UUID `json:"debit_entry_id"`
	CreditEntryID uuid.UUID `json:"credit_entry_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}
