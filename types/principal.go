package types

import "strings"

// Principal identifies an account holder or the administrator. It is an
// opaque identity such as a wallet address or a user ID.
type Principal string

// NewPrincipal trims surrounding whitespace from s.
func NewPrincipal(s string) Principal { return Principal(strings.TrimSpace(s)) }

// String implements fmt.Stringer.
func (p Principal) String() string { return string(p) }

// IsZero reports whether the principal is empty.
func (p Principal) IsZero() bool { return strings.TrimSpace(string(p)) == "" }
