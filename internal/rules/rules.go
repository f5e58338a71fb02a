/**
 * @description
 * Pure validation rules evaluated by the transfer engine before any store
 * mutation is attempted. The functions here hold no state and perform no I/O,
 * which keeps them trivially testable in isolation. Passing these checks is
 * necessary but not sufficient: the store re-verifies balance sufficiency
 * inside its own transaction, because a balance read outside the transaction
 * can be stale under concurrent load.
 */

package rules

import (
	"github.com/corebank/ledger-service/internal/domain"
	"github.com/google/uuid"
)

// Sufficient reports whether a balance can absorb the requested debit without
// going negative. The debit is expressed as a positive magnitude.
func Sufficient(balance, requestedDebit int64) bool {
	return requestedDebit <= balance
}

// PositiveAmount reports whether an operation amount is strictly positive.
// The engine never accepts zero or negative amounts as input; the sign is
// applied internally when an amount becomes a debit or credit delta.
func PositiveAmount(amount int64) bool {
	return amount > 0
}

// DistinctAccounts reports whether the two legs of an internal transfer name
// different accounts.
func DistinctAccounts(from, to uuid.UUID) bool {
	return from != to
}

// KindSignConsistent reports whether a signed entry amount matches its kind:
// debit kinds are negative, credit kinds positive, and zero is never valid.
func KindSignConsistent(kind domain.EntryKind, amount int64) bool {
	if amount == 0 {
		return false
	}
	if kind.Debit() {
		return amount < 0
	}
	return amount > 0
}
