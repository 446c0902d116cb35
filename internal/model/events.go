package model

import "github.com/shopspring/decimal"

// Event payloads published on the bus. The field sets are a stable
// contract for subscribers.

type AssetAddedEvent struct {
	Asset Asset
}

type AssetUpdatedEvent struct {
	Asset      Asset
	ExchangeID string
	Portfolio  []ExchangeWithAssets
}

type AssetDeletedEvent struct {
	AssetID string
}

type PortfolioRefreshedEvent struct {
	Portfolio []ExchangeWithAssets
	Summary   PortfolioSummary
}

type SettingsUpdatedEvent struct {
	InitialCapital decimal.Decimal
}
