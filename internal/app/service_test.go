package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corebank/ledger-service/internal/domain"
	"github.com/corebank/ledger-service/internal/store"
	"github.com/google/uuid"
)

// fakeRepository is an in-memory Repository honoring the same atomicity
// contract as the Postgres implementation: Apply mutates balances and
// appends log entries under one lock, and a failed Apply changes nothing.
type fakeRepository struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
	entries  []domain.Transaction
	seq      int64

	// applyErrs is a queue of errors returned by Apply before it starts
	// succeeding again; used to exercise conflict retries.
	applyErrs []error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (f *fakeRepository) CreateAccount(ctx context.Context, ownerID uuid.UUID, initialBalance int64) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account := &domain.Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Balance:   initialBalance,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.accounts[account.ID] = account
	if initialBalance > 0 {
		f.seq++
		f.entries = append(f.entries, domain.Transaction{
			ID:        uuid.New(),
			AccountID: account.ID,
			Kind:      domain.KindDeposit,
			Amount:    initialBalance,
			PostedAt:  time.Now().UTC().Add(time.Duration(f.seq) * time.Microsecond),
		})
	}
	return account, nil
}

func (f *fakeRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (f *fakeRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[accountID]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	return account.Balance, nil
}

func (f *fakeRepository) ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var accounts []domain.Account
	for _, account := range f.accounts {
		if account.OwnerID == ownerID {
			accounts = append(accounts, *account)
		}
	}
	return accounts, nil
}

func (f *fakeRepository) Apply(ctx context.Context, entries []domain.EntryInput) (*store.ApplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.applyErrs) > 0 {
		err := f.applyErrs[0]
		f.applyErrs = f.applyErrs[1:]
		return nil, err
	}

	if len(entries) == 0 {
		return nil, store.ErrEmptyApply
	}
	netDelta := make(map[uuid.UUID]int64)
	for _, e := range entries {
		if e.Delta == 0 {
			return nil, store.ErrZeroDelta
		}
		netDelta[e.AccountID] += e.Delta
	}
	for accountID, delta := range netDelta {
		account, ok := f.accounts[accountID]
		if !ok {
			return nil, store.ErrAccountNotFound
		}
		if account.Balance+delta < 0 {
			return nil, store.ErrInsufficientFunds
		}
	}

	result := &store.ApplyResult{Balances: make(map[uuid.UUID]int64)}
	commitTime := time.Now().UTC()
	for accountID, delta := range netDelta {
		f.accounts[accountID].Balance += delta
		result.Balances[accountID] = f.accounts[accountID].Balance
	}
	for _, e := range entries {
		f.seq++
		entry := domain.Transaction{
			ID:        uuid.New(),
			AccountID: e.AccountID,
			Kind:      e.Kind,
			Amount:    e.Delta,
			PostedAt:  commitTime.Add(time.Duration(f.seq) * time.Microsecond),
		}
		f.entries = append(f.entries, entry)
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

func (f *fakeRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, rng domain.TimeRange, order domain.SortOrder) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[accountID]; !ok {
		return nil, store.ErrAccountNotFound
	}

	var matched []domain.Transaction
	for _, entry := range f.entries {
		if entry.AccountID != accountID {
			continue
		}
		if rng.From != nil && entry.PostedAt.Before(*rng.From) {
			continue
		}
		if rng.To != nil && !entry.PostedAt.Before(*rng.To) {
			continue
		}
		matched = append(matched, entry)
	}
	if order == domain.OrderDescending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	return matched, nil
}

func (f *fakeRepository) entriesFor(accountID uuid.UUID) []domain.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []domain.Transaction
	for _, entry := range f.entries {
		if entry.AccountID == accountID {
			matched = append(matched, entry)
		}
	}
	return matched
}

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	mu        sync.Mutex
	posted    []domain.EntryPostedEvent
	transfers []domain.TransferCompletedEvent
}

func (p *capturingPublisher) PublishEntryPosted(ctx context.Context, event domain.EntryPostedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted = append(p.posted, event)
	return nil
}

func (p *capturingPublisher) PublishTransferCompleted(ctx context.Context, event domain.TransferCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, event)
	return nil
}

func (p *capturingPublisher) Close() {}

func mustOpenAccount(t *testing.T, svc *Service, balance int64) *domain.Account {
	t.Helper()
	account, err := svc.OpenAccount(context.Background(), uuid.New(), balance)
	if err != nil {
		t.Fatalf("failed to open account: %v", err)
	}
	return account
}

func TestDepositReturnsNewBalance(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)
	account := mustOpenAccount(t, svc, 0)

	newBalance, err := svc.Deposit(context.Background(), account.ID, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newBalance != 5000 {
		t.Fatalf("expected balance 5000, got %d", newBalance)
	}
}

func TestDepositRejectsNonPositiveAmounts(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)
	account := mustOpenAccount(t, svc, 100000)

	for _, amount := range []int64{0, -100} {
		if _, err := svc.Deposit(context.Background(), account.ID, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount for %d, got %v", amount, err)
		}
	}
	if len(repo.entriesFor(account.ID)) != 1 {
		t.Fatal("rejected deposits must not create log entries")
	}
}

func TestWithdrawInsufficientFundsLeavesBalanceUnchanged(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)
	// Open with 1000.00, attempt to withdraw 1500.00.
	account := mustOpenAccount(t, svc, 100000)

	_, err := svc.Withdraw(context.Background(), account.ID, 150000)
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, err := svc.GetBalance(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 100000 {
		t.Fatalf("expected balance to remain 100000, got %d", balance)
	}
	if got := len(repo.entriesFor(account.ID)); got != 1 {
		t.Fatalf("expected only the opening entry, got %d entries", got)
	}
}

func TestWithdrawMissingAccount(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)

	if _, err := svc.Withdraw(context.Background(), uuid.New(), 100); !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestInternalTransferMovesFundsAndPairsEntries(t *testing.T) {
	repo := newFakeRepository()
	events := &capturingPublisher{}
	svc := NewService(repo, events, 0)
	// A opens with 1000.00, B with 0.00; transfer 300.00.
	accountA := mustOpenAccount(t, svc, 100000)
	accountB := mustOpenAccount(t, svc, 0)

	if err := svc.InternalTransfer(context.Background(), accountA.ID, accountB.ID, 30000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	balanceA, _ := svc.GetBalance(context.Background(), accountA.ID)
	balanceB, _ := svc.GetBalance(context.Background(), accountB.ID)
	if balanceA != 70000 {
		t.Fatalf("expected source balance 70000, got %d", balanceA)
	}
	if balanceB != 30000 {
		t.Fatalf("expected destination balance 30000, got %d", balanceB)
	}

	entriesA := repo.entriesFor(accountA.ID)
	if len(entriesA) != 2 {
		t.Fatalf("expected opening entry plus transfer-out, got %d entries", len(entriesA))
	}
	debit := entriesA[1]
	if debit.Kind != domain.KindTransferOut || debit.Amount != -30000 {
		t.Fatalf("expected transfer_out of -30000, got %s %d", debit.Kind, debit.Amount)
	}

	entriesB := repo.entriesFor(accountB.ID)
	if len(entriesB) != 1 {
		t.Fatalf("expected a single transfer-in entry, got %d", len(entriesB))
	}
	credit := entriesB[0]
	if credit.Kind != domain.KindTransferIn || credit.Amount != 30000 {
		t.Fatalf("expected transfer_in of +30000, got %s %d", credit.Kind, credit.Amount)
	}

	if len(events.transfers) != 1 {
		t.Fatalf("expected one transfer completed event, got %d", len(events.transfers))
	}
	transfer := events.transfers[0]
	if transfer.DebitEntryID != debit.ID || transfer.CreditEntryID != credit.ID {
		t.Fatal("transfer event must reference both committed legs")
	}
}

func TestInternalTransferSameAccount(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)
	account := mustOpenAccount(t, svc, 100000)

	err := svc.InternalTransfer(context.Background(), account.ID, account.ID, 1000)
	if !errors.Is(err, ErrSameAccount) {
		t.Fatalf("expected ErrSameAccount, got %v", err)
	}
	if got := len(repo.entriesFor(account.ID)); got != 1 {
		t.Fatalf("expected no new log entries, got %d total", got)
	}
}

func TestInternalTransferDistinguishesMissingTarget(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)
	source := mustOpenAccount(t, svc, 100000)

	err := svc.InternalTransfer(context.Background(), source.ID, uuid.New(), 1000)
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}

	err = svc.InternalTransfer(context.Background(), uuid.New(), source.ID, 1000)
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound for missing source, got %v", err)
	}
}

func TestExternalTransferLimitExceeded(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)
	account := mustOpenAccount(t, svc, 1000000)

	// 6000.00 against a 5000.00 limit.
	err := svc.ExternalTransfer(context.Background(), account.ID, "EXT1", 600000, 500000)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}

	balance, _ := svc.GetBalance(context.Background(), account.ID)
	if balance != 1000000 {
		t.Fatalf("expected balance unchanged at 1000000, got %d", balance)
	}
}

func TestExternalTransferDebitsWithinLimit(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)
	account := mustOpenAccount(t, svc, 1000000)

	if err := svc.ExternalTransfer(context.Background(), account.ID, "EXT1", 400000, 500000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	balance, _ := svc.GetBalance(context.Background(), account.ID)
	if balance != 600000 {
		t.Fatalf("expected balance 600000, got %d", balance)
	}
	entries := repo.entriesFor(account.ID)
	last := entries[len(entries)-1]
	if last.Kind != domain.KindExternalTransferOut || last.Amount != -400000 {
		t.Fatalf("expected external_transfer_out of -400000, got %s %d", last.Kind, last.Amount)
	}
}

func TestConcurrentDepositsAllPost(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)
	account := mustOpenAccount(t, svc, 100000)

	const workers = 20
	const amount = 5000 // 50.00

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Deposit(context.Background(), account.ID, amount); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent deposit failed: %v", err)
	}

	balance, _ := svc.GetBalance(context.Background(), account.ID)
	if balance != 100000+workers*amount {
		t.Fatalf("expected balance %d, got %d", 100000+workers*amount, balance)
	}
	// Opening entry plus one entry per deposit.
	if got := len(repo.entriesFor(account.ID)); got != workers+1 {
		t.Fatalf("expected %d log entries, got %d", workers+1, got)
	}
}

func TestBalanceEqualsEntrySumAcrossMixedOperations(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)
	ctx := context.Background()

	accountA := mustOpenAccount(t, svc, 100000)
	accountB := mustOpenAccount(t, svc, 0)

	svc.Deposit(ctx, accountA.ID, 25000)
	svc.Withdraw(ctx, accountA.ID, 10000)
	svc.InternalTransfer(ctx, accountA.ID, accountB.ID, 30000)
	svc.ExternalTransfer(ctx, accountA.ID, "EXT1", 5000, 500000)
	// Failed attempts must contribute zero.
	svc.Withdraw(ctx, accountB.ID, 999999)
	svc.InternalTransfer(ctx, accountB.ID, accountB.ID, 100)
	svc.ExternalTransfer(ctx, accountB.ID, "EXT1", 600000, 500000)

	for _, accountID := range []uuid.UUID{accountA.ID, accountB.ID} {
		balance, err := svc.GetBalance(ctx, accountID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var sum int64
		for _, entry := range repo.entriesFor(accountID) {
			sum += entry.Amount
		}
		if balance != sum {
			t.Fatalf("balance diverged from entry sum for %s: balance=%d sum=%d", accountID, balance, sum)
		}
	}
}

func TestListTransactionsIsReadIdempotent(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)
	ctx := context.Background()
	account := mustOpenAccount(t, svc, 100000)
	svc.Deposit(ctx, account.ID, 5000)
	svc.Withdraw(ctx, account.ID, 2500)

	first, err := svc.ListTransactions(ctx, account.ID, domain.TimeRange{}, domain.OrderDescending)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.ListTransactions(ctx, account.ID, domain.TimeRange{}, domain.OrderDescending)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected identical sequences, got lengths %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Amount != second[i].Amount {
			t.Fatalf("sequence diverged at index %d", i)
		}
	}
}

func TestApplyConflictIsRetriedWithinBound(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 3)
	account := mustOpenAccount(t, svc, 0)

	repo.applyErrs = []error{store.ErrConflict, store.ErrConflict}
	newBalance, err := svc.Deposit(context.Background(), account.ID, 1000)
	if err != nil {
		t.Fatalf("expected retries to absorb conflicts, got %v", err)
	}
	if newBalance != 1000 {
		t.Fatalf("expected balance 1000, got %d", newBalance)
	}
}

func TestApplyConflictSurfacesWhenRetriesExhausted(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 1)
	account := mustOpenAccount(t, svc, 0)

	repo.applyErrs = []error{store.ErrConflict, store.ErrConflict, store.ErrConflict}
	if _, err := svc.Deposit(context.Background(), account.ID, 1000); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict after exhausted retries, got %v", err)
	}
}

func TestStorageFailureIsNotRetried(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 3)
	account := mustOpenAccount(t, svc, 0)

	repo.applyErrs = []error{store.ErrStorageUnavailable}
	if _, err := svc.Deposit(context.Background(), account.ID, 1000); !errors.Is(err, store.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable to surface immediately, got %v", err)
	}
	if len(repo.applyErrs) != 0 {
		t.Fatal("expected exactly one apply attempt")
	}
	if got := len(repo.entriesFor(account.ID)); got != 0 {
		t.Fatalf("failed apply must not leave entries, got %d", got)
	}
}

type fakeGuard struct {
	claimed map[string]bool
}

func (g *fakeGuard) Reserve(ctx context.Context, key string) (bool, error) {
	if g.claimed == nil {
		g.claimed = make(map[string]bool)
	}
	if g.claimed[key] {
		return false, nil
	}
	g.claimed[key] = true
	return true, nil
}

func TestReserveIdempotencyKey(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil, 0)
	svc.SetIdempotencyGuard(&fakeGuard{})
	ctx := context.Background()

	if err := svc.ReserveIdempotencyKey(ctx, "op-1"); err != nil {
		t.Fatalf("unexpected error on fresh key: %v", err)
	}
	if err := svc.ReserveIdempotencyKey(ctx, "op-1"); !errors.Is(err, ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
	// Empty keys and missing guards are no-ops.
	if err := svc.ReserveIdempotencyKey(ctx, ""); err != nil {
		t.Fatalf("unexpected error on empty key: %v", err)
	}
}
