package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Exchange struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Asset struct {
	ID               string          `json:"id"`
	ExchangeID       string          `json:"exchange_id"`
	Symbol           string          `json:"symbol"`
	Quantity         decimal.Decimal `json:"quantity"`
	PurchasePriceAvg decimal.Decimal `json:"purchase_price_avg"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// AssetWithValue is an Asset enriched with pricing data. It is derived on
// every valuation pass and never stored. LastPricedAt stays zero when no
// fresh quote was available for the pass.
type AssetWithValue struct {
	Asset
	CurrentPrice         decimal.Decimal `json:"current_price"`
	CurrentValue         decimal.Decimal `json:"current_value"`
	ProfitLoss           decimal.Decimal `json:"profit_loss"`
	ProfitLossPercentage decimal.Decimal `json:"profit_loss_percentage"`
	LastPricedAt         time.Time       `json:"last_priced_at"`
}

type ExchangeWithAssets struct {
	Exchange
	Assets     []AssetWithValue `json:"assets"`
	TotalValue decimal.Decimal  `json:"total_value"`
}

type Distribution struct {
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	Percentage decimal.Decimal `json:"percentage"`
}

// PortfolioSummary aggregates the whole portfolio. TotalInvestment is the
// user-set initial capital baseline, not the sum of purchase costs.
type PortfolioSummary struct {
	TotalValue             decimal.Decimal `json:"total_value"`
	TotalInvestment        decimal.Decimal `json:"total_investment"`
	TotalProfitLoss        decimal.Decimal `json:"total_profit_loss"`
	ProfitLossPercentage   decimal.Decimal `json:"profit_loss_percentage"`
	DistributionByExchange []Distribution  `json:"distribution_by_exchange"`
	DistributionByAsset    []Distribution  `json:"distribution_by_asset"`
	AsOf                   time.Time       `json:"as_of"`
}
