package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a USD amount used for bids and lead prices. Amounts are
// rounded half-up to two decimal places at construction and must fall within
// [0.00, 99999.99]. All arithmetic and comparisons are decimal; float math on
// bids is forbidden.
type Money struct {
	amount decimal.Decimal
}

// MaxAmount is the largest representable lead price.
var MaxAmount = decimal.RequireFromString("99999.99")

// NewMoney creates a Money value, rounding half-up to cents.
func NewMoney(amount decimal.Decimal) (Money, error) {
	rounded := amount.Round(2)
	if rounded.IsNegative() {
		return Money{}, fmt.Errorf("amount cannot be negative: %s", rounded)
	}
	if rounded.GreaterThan(MaxAmount) {
		return Money{}, fmt.Errorf("amount exceeds maximum %s: %s", MaxAmount, rounded)
	}

	return Money{amount: rounded}, nil
}

// NewMoneyFromString creates Money from a decimal string (e.g., "80.00").
func NewMoneyFromString(amount string) (Money, error) {
	dec, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount: %w", err)
	}

	return NewMoney(dec)
}

// NewMoneyFromFloat creates Money from a float64 amount.
// Note: Use with caution due to floating point precision issues
func NewMoneyFromFloat(amount float64) (Money, error) {
	return NewMoney(decimal.NewFromFloat(amount))
}

// MustNewMoney creates Money and panics on error (for constants/tests)
func MustNewMoney(amount string) Money {
	m, err := NewMoneyFromString(amount)
	if err != nil {
		panic(err)
	}
	return m
}

// MustNewMoneyFromFloat creates Money from float and panics on error (for constants/tests)
func MustNewMoneyFromFloat(amount float64) Money {
	m, err := NewMoneyFromFloat(amount)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns a zero Money value.
func ZeroMoney() Money {
	return Money{amount: decimal.Zero}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// String returns the fixed two-place decimal string (e.g., "80.00"), which is
// also the wire and storage format.
func (m Money) String() string {
	return m.amount.StringFixed(2)
}

// IsZero checks if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive checks if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Equal checks if two Money values are equal
func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

// Compare returns -1, 0, or 1 based on comparison with other Money
func (m Money) Compare(other Money) int {
	return m.amount.Cmp(other.amount)
}

// GreaterThan reports whether m is strictly greater than other.
func (m Money) GreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

// LessThan reports whether m is strictly less than other.
func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

// Add adds two Money values. The sum must stay within the valid range.
func (m Money) Add(other Money) (Money, error) {
	return NewMoney(m.amount.Add(other.amount))
}

// Sub subtracts other Money from this Money. The result cannot be negative.
func (m Money) Sub(other Money) (Money, error) {
	return NewMoney(m.amount.Sub(other.amount))
}

// MulFloat multiplies by a float factor, rounding half-up to cents.
// Used for pricing discounts (e.g. shared-delivery hybrid pricing).
func (m Money) MulFloat(factor float64) (Money, error) {
	return NewMoney(m.amount.Mul(decimal.NewFromFloat(factor)))
}

// Max returns the larger of m and other.
func (m Money) Max(other Money) Money {
	if m.amount.GreaterThanOrEqual(other.amount) {
		return m
	}
	return other
}

// ToCents converts to integer cents (smallest unit)
func (m Money) ToCents() int64 {
	return m.amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// ToFloat64 converts to float64 (use with caution for precision)
func (m Money) ToFloat64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// MarshalJSON encodes the amount as a decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a decimal string or a bare JSON number,
// since buyer endpoints are inconsistent about quoting bid amounts.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	raw = strings.Trim(raw, `"`)

	if raw == "" || raw == "null" {
		*m = Money{amount: decimal.Zero}
		return nil
	}

	money, err := NewMoneyFromString(raw)
	if err != nil {
		return err
	}

	*m = money
	return nil
}

// Database scanning (implements sql.Scanner)
func (m *Money) Scan(value interface{}) error {
	if value == nil {
		*m = Money{amount: decimal.Zero}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return m.scanFromString(string(v))
	case string:
		return m.scanFromString(v)
	case int64:
		money, err := NewMoney(decimal.NewFromInt(v))
		if err != nil {
			return err
		}
		*m = money
		return nil
	case float64:
		money, err := NewMoneyFromFloat(v)
		if err != nil {
			return err
		}
		*m = money
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
}

// Database value (implements driver.Valuer). Stored as NUMERIC(7,2) text.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

func (m *Money) scanFromString(s string) error {
	money, err := NewMoneyFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money format: %w", err)
	}

	*m = money
	return nil
}
