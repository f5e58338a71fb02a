/**
 * @description
 * This package converts between human-facing decimal amount strings
 * (e.g. "1000.00") and the int64 minor-unit (cent) representation used by the
 * ledger. All arithmetic inside the service happens on int64 cents; decimal
 * parsing is confined to the boundary.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Exact decimal parsing and formatting.
 */

package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for unparseable amounts or amounts with more
// precision than the ledger's two decimal places.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseCents parses a decimal amount string into int64 cents.
// "1000.00" -> 100000. More than two fractional digits is rejected rather
// than rounded: silently dropping sub-cent precision would break the
// replayability of the ledger.
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	scaled := d.Mul(decimal.NewFromInt(100))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, s)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return scaled.IntPart(), nil
}

// FormatCents renders int64 cents as a decimal string with two fractional
// digits. 100000 -> "1000.00", -30000 -> "-300.00".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
