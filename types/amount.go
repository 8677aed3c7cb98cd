package types

import (
	"fmt"
	"math/big"
)

// maxAmount is 2^256 - 1.
var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Amount is an unsigned 256-bit count of minor units (cents, wei). The zero
// value is zero. Amounts are immutable: arithmetic returns a new value and
// never modifies its operands.
type Amount struct {
	v *big.Int // nil means zero
}

// NewAmount returns v as an Amount.
func NewAmount(v uint64) Amount {
	return wrap(new(big.Int).SetUint64(v))
}

// MaxAmount returns the largest representable amount, 2^256 - 1.
func MaxAmount() Amount { return Amount{v: new(big.Int).Set(maxAmount)} }

// AmountFromBig converts b, rejecting negative values and values above
// MaxAmount.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	return checked(new(big.Int).Set(b))
}

// ParseAmount parses a base-10 minor-unit amount.
func ParseAmount(s string) (Amount, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	a, err := checked(b)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", err, s)
	}
	return a, nil
}

// Add returns a + b, or ErrOverflow above MaxAmount.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := new(big.Int).Add(a.bigInt(), b.bigInt())
	if sum.Cmp(maxAmount) > 0 {
		return Amount{}, ErrOverflow
	}
	return wrap(sum), nil
}

// Sub returns a - b, or ErrUnderflow when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Cmp(b) < 0 {
		return Amount{}, ErrUnderflow
	}
	return wrap(new(big.Int).Sub(a.bigInt(), b.bigInt())), nil
}

// Mul returns a * qty, or ErrOverflow above MaxAmount.
func (a Amount) Mul(qty uint64) (Amount, error) {
	p := new(big.Int).Mul(a.bigInt(), new(big.Int).SetUint64(qty))
	if p.Cmp(maxAmount) > 0 {
		return Amount{}, ErrOverflow
	}
	return wrap(p), nil
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.bigInt().Cmp(b.bigInt()) }

// IsZero reports whether a is zero.
func (a Amount) IsZero() bool { return a.v == nil || a.v.Sign() == 0 }

// Uint64 returns a as a uint64 and whether it fits.
func (a Amount) Uint64() (uint64, bool) {
	return a.bigInt().Uint64(), a.bigInt().IsUint64()
}

// Big returns a copy of a as a big.Int.
func (a Amount) Big() *big.Int { return new(big.Int).Set(a.bigInt()) }

// String returns a in base 10.
func (a Amount) String() string { return a.bigInt().String() }

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) bigInt() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

func checked(b *big.Int) (Amount, error) {
	if b.Sign() < 0 {
		return Amount{}, ErrInvalidAmount
	}
	if b.Cmp(maxAmount) > 0 {
		return Amount{}, ErrOverflow
	}
	return wrap(b), nil
}

// wrap keeps zero as a nil pointer so equal amounts are also deeply equal.
func wrap(b *big.Int) Amount {
	if b.Sign() == 0 {
		return Amount{}
	}
	return Amount{v: b}
}
