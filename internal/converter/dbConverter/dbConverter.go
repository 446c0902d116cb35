package dbConverter

import (
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model/dbModel"
)

func ConvertExchange(dbExchange dbModel.Exchange) model.Exchange {
	return model.Exchange{
		ID:        dbExchange.ID,
		Name:      dbExchange.Name,
		CreatedAt: dbExchange.CreatedAt,
	}
}

func ConvertExchanges(dbExchanges []dbModel.Exchange) []model.Exchange {
	exchanges := make([]model.Exchange, 0, len(dbExchanges))
	for _, e := range dbExchanges {
		exchanges = append(exchanges, ConvertExchange(e))
	}
	return exchanges
}

func ConvertAsset(dbAsset dbModel.Asset) model.Asset {
	return model.Asset{
		ID:               dbAsset.ID,
		ExchangeID:       dbAsset.ExchangeID,
		Symbol:           dbAsset.Symbol,
		Quantity:         dbAsset.Quantity,
		PurchasePriceAvg: dbAsset.PurchasePriceAvg,
		LastUpdated:      dbAsset.LastUpdated,
	}
}

func ConvertAssets(dbAssets []dbModel.Asset) []model.Asset {
	assets := make([]model.Asset, 0, len(dbAssets))
	for _, a := range dbAssets {
		assets = append(assets, ConvertAsset(a))
	}
	return assets
}
