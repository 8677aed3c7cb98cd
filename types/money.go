// Package types provides common types used across Tally.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Arithmetic errors returned by Money operations.
var (
	ErrOverflow         = errors.New("tally: arithmetic overflow")
	ErrUnderflow        = errors.New("tally: arithmetic underflow")
	ErrCurrencyMismatch = errors.New("tally: currency mismatch")
	ErrInvalidAmount    = errors.New("tally: invalid amount")
)

// Money represents a non-negative monetary value in the smallest currency unit.
// Amounts are unsigned 256-bit integers; arithmetic fails with ErrOverflow
// or ErrUnderflow instead of wrapping.
//
// Examples:
//   - USD(4900) = $49.00 (4900 cents)
//   - ETH(10_000_000_000_000_000) = Ξ0.010000000000000000 (wei)
type Money struct {
	Amount   Amount `json:"amount"`   // Smallest unit (cents, wei, etc)
	Currency string `json:"currency"` // ISO 4217 style lowercase: "usd", "eur", "eth"
}

// Common currency constructors

// USD creates a Money value in US Dollars (cents).
func USD(cents uint64) Money { return New(cents, "usd") }

// EUR creates a Money value in Euros (cents).
func EUR(cents uint64) Money { return New(cents, "eur") }

// GBP creates a Money value in British Pounds (pence).
func GBP(pence uint64) Money { return New(pence, "gbp") }

// JPY creates a Money value in Japanese Yen (no decimal).
func JPY(yen uint64) Money { return New(yen, "jpy") }

// ETH creates a Money value in Ether (wei).
func ETH(wei uint64) Money { return New(wei, "eth") }

// Zero returns a zero Money value in the given currency.
func Zero(currency string) Money { return Money{Currency: strings.ToLower(currency)} }

// New returns a Money value with the given minor-unit amount.
func New(amount uint64, currency string) Money {
	return Money{Amount: NewAmount(amount), Currency: strings.ToLower(currency)}
}

// FromAmount returns a Money value holding amount.
func FromAmount(amount Amount, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// Parse converts a major-unit decimal string ("0.01", "12") into Money.
// Amounts with more fractional digits than the currency allows, negative
// amounts, and amounts that do not fit in 256 bits are rejected.
func Parse(s, currency string) (Money, error) {
	currency = strings.ToLower(currency)
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}

	minor := d.Shift(int32(currencyDecimals(currency)))
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: %q has too many decimal places for %s", ErrInvalidAmount, s, currency)
	}

	amount, err := AmountFromBig(minor.BigInt())
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", err, s)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded values.
func MustParse(s, currency string) Money {
	m, err := Parse(s, currency)
	if err != nil {
		panic(fmt.Sprintf("money: must parse %q: %v", s, err))
	}
	return m
}

// Arithmetic operations

// Add adds two Money values.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	sum, err := m.Amount.Add(other.Amount)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: sum, Currency: m.Currency}, nil
}

// Subtract subtracts another Money value. The result never goes below zero:
// a larger subtrahend returns ErrUnderflow.
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	diff, err := m.Amount.Sub(other.Amount)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: diff, Currency: m.Currency}, nil
}

// SaturatingSubtract subtracts other, clamping at zero.
func (m Money) SaturatingSubtract(other Money) Money {
	diff, err := m.Amount.Sub(other.Amount)
	if err != nil {
		return Money{Currency: m.Currency}
	}
	return Money{Amount: diff, Currency: m.Currency}
}

// Multiply multiplies the Money by a quantity.
func (m Money) Multiply(qty uint64) (Money, error) {
	product, err := m.Amount.Mul(qty)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: product, Currency: m.Currency}, nil
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return !m.Amount.IsZero() }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Cmp(other.Amount) == 0
}

// LessThan returns true if this Money is less than other.
// Values in different currencies are never ordered.
func (m Money) LessThan(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Cmp(other.Amount) < 0
}

// SameCurrency reports whether both values share a currency.
func (m Money) SameCurrency(other Money) bool {
	return m.Currency == other.Currency
}

// Formatting methods

// FormatMajor returns the major unit string without currency symbol.
// For currencies with 2 decimal places: "49.00" for USD(4900).
// For currencies with 0 decimal places (JPY): "100" for JPY(100).
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	d := decimal.NewFromBigInt(m.Amount.bigInt(), -int32(decimals))
	return d.StringFixed(int32(decimals))
}

// String returns a human-readable string with currency symbol.
// Examples: "$49.00", "€199.00", "£99.00", "¥100"
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// AmountString returns the minor-unit amount in base 10. Stores persist
// amounts this way because no SQL integer type carries 256 bits.
func (m Money) AmountString() string {
	return m.Amount.String()
}

// FromStorage rebuilds Money from a persisted base-10 minor-unit amount.
func FromStorage(amount, currency string) (Money, error) {
	if amount == "" {
		return Zero(currency), nil
	}
	v, err := ParseAmount(amount)
	if err != nil {
		return Money{}, fmt.Errorf("stored amount: %w", err)
	}
	return Money{Amount: v, Currency: strings.ToLower(currency)}, nil
}

// MarshalJSON implements json.Marshaler. The amount is encoded as a string
// because JSON numbers lose precision above 2^53.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.AmountString(),
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. It accepts the string amount
// written by MarshalJSON as well as a bare JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   json.Number `json:"amount"`
		Currency string      `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromStorage(raw.Amount.String(), raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Helper functions

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s != %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}

// currencySymbol returns the symbol for a currency code.
func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"jpy": "¥",
		"cad": "C$",
		"aud": "A$",
		"chf": "CHF ",
		"eth": "Ξ",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// currencyDecimals returns the number of decimal places for a currency.
func currencyDecimals(currency string) int {
	switch strings.ToLower(currency) {
	case "jpy", "krw", "vnd", "clp", "pyg", "idr":
		return 0
	case "gwei":
		return 9
	case "eth":
		return 18
	default:
		return 2
	}
}

// Decimals returns the number of minor-unit digits used by a currency.
func Decimals(currency string) int { return currencyDecimals(currency) }
