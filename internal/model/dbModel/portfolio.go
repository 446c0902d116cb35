package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Exchange struct {
	ID        string    `db:"exchange_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"dt_create"`
}

type Asset struct {
	ID               string          `db:"asset_id"`
	ExchangeID       string          `db:"exchange_id"`
	Symbol           string          `db:"symbol"`
	Quantity         decimal.Decimal `db:"quantity"`
	PurchasePriceAvg decimal.Decimal `db:"purchase_price_avg"`
	LastUpdated      time.Time       `db:"dt_update"`
}
