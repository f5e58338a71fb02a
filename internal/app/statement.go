/**
 * @description
 * Statement reading: read-only retrieval of an account's transaction history
 * for a calendar month. The month window is [first-of-month,
 * first-of-next-month) in UTC; time.Date normalizes month 13 to January of
 * the following year, which handles the December rollover.
 */

package app

import (
	"context"
	"errors"
	"time"

	"github.com/corebank/ledger-service/internal/domain"
	"github.com/google/uuid"
)

// ErrInvalidPeriod is returned for a statement request outside calendar bounds.
var ErrInvalidPeriod = errors.New("statement period out of range")

// MonthWindow computes the half-open UTC window covering one calendar month.
func MonthWindow(year, month int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 || year < 1 {
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return start, end, nil
}

// MonthlyStatement returns an account's ledger entries for one calendar
// month in ascending posted order. It takes no write locks and produces no
// side effects.
func (s *Service) MonthlyStatement(ctx context.Context, accountID uuid.UUID, year, month int) ([]domain.Transaction, error) {
	start, end, err := MonthWindow(year, month)
	if err != nil {
		return nil, err
	}
	rng := domain.TimeRange{From: &start, To: &end}
	return s.repo.ListTransactions(ctx, accountID, rng, domain.OrderAscending)
}
