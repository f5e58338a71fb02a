/**
 * @description
 * This file contains the core business logic for the ledger service. The
 * `Service` struct is the transfer engine: it composes ledger store mutations
 * into the semantic operations the system offers (deposit, withdrawal,
 * internal transfer, external transfer), applying the pure validation rules
 * before any I/O and translating failures into typed errors.
 *
 * Key properties:
 * - Validation failures (invalid amount, same account, limit exceeded) are
 *   detected before any store mutation and never require rollback.
 * - Balance sufficiency is re-verified inside the store's transaction; the
 *   engine's pre-check only exists for fast failure without a write attempt.
 * - Ledger events are published to RabbitMQ only after the unit of work has
 *   committed, and publish failures never fail the operation.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/google/uuid: For identifiers.
 * - internal/domain, internal/rules, internal/store: Models, validation, data access.
 * - pkg/rabbitmq: Event publication.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/corebank/ledger-service/internal/domain"
	"github.com/corebank/ledger-service/internal/rules"
	"github.com/corebank/ledger-service/internal/store"
	"github.com/corebank/ledger-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

var (
	ErrInvalidAmount      = errors.New("amount must be a positive value")
	ErrSameAccount        = errors.New("source and destination accounts are identical")
	ErrLimitExceeded      = errors.New("amount exceeds the external transfer limit")
	ErrTargetNotFound     = errors.New("destination account not found")
	ErrDuplicateOperation = errors.New("operation with this idempotency key was already accepted")
)

// conflictRetryDelay is the pause between retries of a conflicted apply.
const conflictRetryDelay = 25 * time.Millisecond

// Service provides the core business logic for ledger operations.
type Service struct {
	repo            store.Repository
	events          rabbitmq.Publisher
	idem            IdempotencyGuard
	conflictRetries int
}

// NewService creates a new ledger service instance. A nil producer degrades
// to a no-op publisher; conflictRetries bounds how often a conflicted apply
// is retried before the conflict surfaces to the caller.
func NewService(repo store.Repository, events rabbitmq.Publisher, conflictRetries int) *Service {
	if events == nil {
		events = &rabbitmq.NopProducer{}
	}
	if conflictRetries < 0 {
		conflictRetries = 0
	}
	return &Service{
		repo:            repo,
		events:          events,
		conflictRetries: conflictRetries,
	}
}

// SetIdempotencyGuard installs an optional duplicate-suppression guard for
// mutating operations. The engine works without one.
func (s *Service) SetIdempotencyGuard(guard IdempotencyGuard) {
	s.idem = guard
}

// ReserveIdempotencyKey claims a caller-supplied idempotency key before a
// mutating operation. A key that was already claimed within its TTL fails
// with ErrDuplicateOperation. Without a configured guard this is a no-op:
// idempotency is an opt-in hardening layer, not a correctness requirement.
func (s *Service) ReserveIdempotencyKey(ctx context.Context, key string) error {
	if s.idem == nil || key == "" {
		return nil
	}
	fresh, err := s.idem.Reserve(ctx, key)
	if err != nil {
		return err
	}
	if !fresh {
		return ErrDuplicateOperation
	}
	return nil
}

// OpenAccount creates a new account for an owner, optionally seeded with an
// opening balance posted as the account's first ledger entry.
func (s *Service) OpenAccount(ctx context.Context, ownerID uuid.UUID, initialBalance int64) (*domain.Account, error) {
	if initialBalance < 0 {
		return nil, ErrInvalidAmount
	}
	return s.repo.CreateAccount(ctx, ownerID, initialBalance)
}

// ListAccounts returns all accounts belonging to one owner.
func (s *Service) ListAccounts(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	return s.repo.ListAccountsByOwner(ctx, ownerID)
}

// GetBalance returns the current balance of an account. Ownership is assumed
// to have been verified by the caller.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.repo.GetBalance(ctx, accountID)
}

// Deposit credits an account and returns the new balance.
func (s *Service) Deposit(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	if !rules.PositiveAmount(amount) {
		return 0, ErrInvalidAmount
	}

	result, err := s.applyWithRetry(ctx, []domain.EntryInput{
		{AccountID: accountID, Delta: amount, Kind: domain.KindDeposit},
	})
	if err != nil {
		return 0, err
	}

	s.publishEntries(ctx, result.Entries)
	return result.Balances[accountID], nil
}

// Withdraw debits an account and returns the new balance. The sufficiency
// pre-check here can race with concurrent writers; the store repeats it under
// the row lock, so a stale read can only cause an early ErrInsufficientFunds,
// never an overdraft.
func (s *Service) Withdraw(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	if !rules.PositiveAmount(amount) {
		return 0, ErrInvalidAmount
	}

	balance, err := s.repo.GetBalance(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if !rules.Sufficient(balance, amount) {
		return 0, store.ErrInsufficientFunds
	}

	result, err := s.applyWithRetry(ctx, []domain.EntryInput{
		{AccountID: accountID, Delta: -amount, Kind: domain.KindWithdrawal},
	})
	if err != nil {
		return 0, err
	}

	s.publishEntries(ctx, result.Entries)
	return result.Balances[accountID], nil
}

// InternalTransfer moves funds between two accounts as one unit of work: a
// reader never observes the debit without the matching credit. No balance is
// returned, so a caller authorized only on the source account learns nothing
// about the counterparty's funds.
func (s *Service) InternalTransfer(ctx context.Context, fromID, toID uuid.UUID, amount int64) error {
	if !rules.PositiveAmount(amount) {
		return ErrInvalidAmount
	}
	if !rules.DistinctAccounts(fromID, toID) {
		return ErrSameAccount
	}

	// The source's existence surfaces as ErrAccountNotFound, the target's as
	// ErrTargetNotFound: the caller has authenticated ownership of the source
	// but knows nothing about the destination.
	sourceBalance, err := s.repo.GetBalance(ctx, fromID)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetAccount(ctx, toID); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return ErrTargetNotFound
		}
		return err
	}
	if !rules.Sufficient(sourceBalance, amount) {
		return store.ErrInsufficientFunds
	}

	result, err := s.applyWithRetry(ctx, []domain.EntryInput{
		{AccountID: fromID, Delta: -amount, Kind: domain.KindTransferOut},
		{AccountID: toID, Delta: amount, Kind: domain.KindTransferIn},
	})
	if err != nil {
		return err
	}

	s.publishEntries(ctx, result.Entries)
	if len(result.Entries) == 2 {
		event := domain.TransferCompletedEvent{
			EventID:       uuid.New(),
			FromAccountID: fromID,
			ToAccountID:   toID,
			Amount:        amount,
			DebitEntryID:  result.Entries[0].ID,
			CreditEntryID: result.Entries[1].ID,
			OccurredAt:    result.Entries[0].PostedAt,
		}
		if err := s.events.PublishTransferCompleted(ctx, event); err != nil {
			log.Printf("level=warn component=ledger_service msg=\"transfer event publish failed\" from=%s to=%s err=%v", fromID, toID, err)
		}
	}
	return nil
}

// ExternalTransfer debits an account for a transfer leaving the system. The
// external leg is assumed to succeed once the local debit commits; a
// compensating credit protocol with the external network is out of scope.
func (s *Service) ExternalTransfer(ctx context.Context, fromID uuid.UUID, destination string, amount, policyLimit int64) error {
	if !rules.PositiveAmount(amount) {
		return ErrInvalidAmount
	}
	if policyLimit > 0 && amount > policyLimit {
		return ErrLimitExceeded
	}

	balance, err := s.repo.GetBalance(ctx, fromID)
	if err != nil {
		return err
	}
	if !rules.Sufficient(balance, amount) {
		return store.ErrInsufficientFunds
	}

	result, err := s.applyWithRetry(ctx, []domain.EntryInput{
		{AccountID: fromID, Delta: -amount, Kind: domain.KindExternalTransferOut},
	})
	if err != nil {
		return err
	}

	log.Printf("level=info component=ledger_service msg=\"external transfer debited\" account_id=%s destination=%s amount=%d", fromID, destination, amount)
	s.publishEntries(ctx, result.Entries)
	return nil
}

// ListTransactions returns an account's ledger entries, optionally bounded by
// a time range, in the requested order.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, rng domain.TimeRange, order domain.SortOrder) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, accountID, rng, order)
}

// applyWithRetry runs one Apply, retrying a bounded number of times when the
// store reports a concurrency conflict. All other errors surface immediately.
func (s *Service) applyWithRetry(ctx context.Context, entries []domain.EntryInput) (*store.ApplyResult, error) {
	var lastErr error
	for attempt := 0; attempt <= s.conflictRetries; attempt++ {
		result, err := s.repo.Apply(ctx, entries)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		lastErr = err
		log.Printf("level=warn component=ledger_service msg=\"apply conflicted; retrying\" attempt=%d err=%v", attempt+1, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(conflictRetryDelay):
		}
	}
	return nil, lastErr
}

// publishEntries emits one event per committed entry. Publication is
// best-effort: the ledger is already durable when this runs.
func (s *Service) publishEntries(ctx context.Context, entries []domain.Transaction) {
	for _, entry := range entries {
		event := domain.EntryPostedEvent{
			EventID:       uuid.New(),
			TransactionID: entry.ID,
			AccountID:     entry.AccountID,
			Kind:          entry.Kind,
			Amount:        entry.Amount,
			PostedAt:      entry.PostedAt,
		}
		if err := s.events.PublishEntryPosted(ctx, event); err != nil {
			log.Printf("level=warn component=ledger_service msg=\"entry event publish failed\" transaction_id=%s err=%v", entry.ID, err)
		}
	}
}
