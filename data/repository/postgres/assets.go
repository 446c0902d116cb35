package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/crypto_portfolio_tracker/data/repository"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/converter/dbConverter"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model/dbModel"
	"github.com/KotFed0t/crypto_portfolio_tracker/utils"
	"github.com/google/uuid"
)

const assetColumns = `asset_id, exchange_id, symbol, quantity, purchase_price_avg, dt_update`

func (p *Postgres) GetAssetsByExchange(ctx context.Context, exchangeID string) (assets []model.Asset, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT ` + assetColumns + ` FROM assets WHERE exchange_id = $1 ORDER BY symbol`

	slog.Debug("GetAssetsByExchange start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetAssetsByExchange failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetAssetsByExchange completed", slog.String("rqID", rqID))
		}
	}()

	dbAssets := []dbModel.Asset{}
	err = p.txOrDb(ctx).SelectContext(ctx, &dbAssets, query, exchangeID)
	if err != nil {
		return nil, classify(err)
	}

	return dbConverter.ConvertAssets(dbAssets), nil
}

func (p *Postgres) CreateAsset(ctx context.Context, asset model.Asset) (created model.Asset, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO assets(asset_id, exchange_id, symbol, quantity, purchase_price_avg)
		VALUES($1, $2, lower($3), $4, $5)
		RETURNING ` + assetColumns

	slog.Debug("CreateAsset start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CreateAsset failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateAsset completed", slog.String("rqID", rqID))
		}
	}()

	dbAsset := dbModel.Asset{}
	err = p.txOrDb(ctx).
		QueryRowxContext(ctx, query, uuid.NewString(), asset.ExchangeID, asset.Symbol, asset.Quantity, asset.PurchasePriceAvg).
		StructScan(&dbAsset)
	if err != nil {
		return model.Asset{}, classify(err)
	}

	return dbConverter.ConvertAsset(dbAsset), nil
}

func (p *Postgres) UpdateAsset(ctx context.Context, asset model.Asset) (updated model.Asset, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		UPDATE assets
		SET quantity = $2, purchase_price_avg = $3, dt_update = now()
		WHERE asset_id = $1
		RETURNING ` + assetColumns

	slog.Debug("UpdateAsset start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdateAsset failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateAsset completed", slog.String("rqID", rqID))
		}
	}()

	dbAsset := dbModel.Asset{}
	err = p.txOrDb(ctx).
		QueryRowxContext(ctx, query, asset.ID, asset.Quantity, asset.PurchasePriceAvg).
		StructScan(&dbAsset)
	if err != nil {
		return model.Asset{}, classify(err)
	}

	return dbConverter.ConvertAsset(dbAsset), nil
}

func (p *Postgres) DeleteAsset(ctx context.Context, assetID string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM assets WHERE asset_id = $1`

	slog.Debug("DeleteAsset start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteAsset failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteAsset completed", slog.String("rqID", rqID))
		}
	}()

	res, err := p.txOrDb(ctx).ExecContext(ctx, query, assetID)
	if err != nil {
		return classify(err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
