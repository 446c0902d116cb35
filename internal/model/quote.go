package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price observation for a symbol. Quotes are
// ephemeral and never persisted.
type Quote struct {
	Symbol       string          `json:"symbol"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	AsOf         time.Time       `json:"as_of"`
}

// stablecoins are pinned to 1.0 by domain rule and never carry profit/loss.
var stablecoins = map[string]struct{}{
	"usdt": {},
	"usdc": {},
	"dai":  {},
	"busd": {},
	"tusd": {},
	"usdp": {},
	"gusd": {},
}

func IsStablecoin(symbol string) bool {
	_, ok := stablecoins[strings.ToLower(symbol)]
	return ok
}

// StablecoinQuote returns the fixed 1.0 quote for a pinned symbol.
func StablecoinQuote(symbol string, asOf time.Time) Quote {
	return Quote{
		Symbol:       symbol,
		CurrentPrice: decimal.NewFromInt(1),
		AsOf:         asOf,
	}
}
