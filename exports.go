package tally

import "github.com/xraph/tally/types"

// Re-export common types so callers don't have to import the types package.

// Money is re-exported from types package.
type Money = types.Money

// Principal is re-exported from types package.
type Principal = types.Principal

// Re-export Money constructors
var (
	USD        = types.USD
	EUR        = types.EUR
	GBP        = types.GBP
	JPY        = types.JPY
	ETH        = types.ETH
	Zero       = types.Zero
	ParseMoney = types.Parse
)
