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

func (p *Postgres) GetExchanges(ctx context.Context) (exchanges []model.Exchange, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT exchange_id, name, dt_create FROM exchanges ORDER BY dt_create`

	slog.Debug("GetExchanges start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetExchanges failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetExchanges completed", slog.String("rqID", rqID))
		}
	}()

	dbExchanges := []dbModel.Exchange{}
	err = p.txOrDb(ctx).SelectContext(ctx, &dbExchanges, query)
	if err != nil {
		return nil, classify(err)
	}

	return dbConverter.ConvertExchanges(dbExchanges), nil
}

func (p *Postgres) CreateExchange(ctx context.Context, name string) (exchange model.Exchange, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO exchanges(exchange_id, name) VALUES($1, $2) RETURNING exchange_id, name, dt_create`

	slog.Debug("CreateExchange start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CreateExchange failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateExchange completed", slog.String("rqID", rqID))
		}
	}()

	dbExchange := dbModel.Exchange{}
	err = p.txOrDb(ctx).QueryRowxContext(ctx, query, uuid.NewString(), name).StructScan(&dbExchange)
	if err != nil {
		return model.Exchange{}, classify(err)
	}

	return dbConverter.ConvertExchange(dbExchange), nil
}

func (p *Postgres) UpdateExchange(ctx context.Context, exchangeID, name string) (exchange model.Exchange, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `UPDATE exchanges SET name = $2 WHERE exchange_id = $1 RETURNING exchange_id, name, dt_create`

	slog.Debug("UpdateExchange start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdateExchange failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateExchange completed", slog.String("rqID", rqID))
		}
	}()

	dbExchange := dbModel.Exchange{}
	err = p.txOrDb(ctx).QueryRowxContext(ctx, query, exchangeID, name).StructScan(&dbExchange)
	if err != nil {
		return model.Exchange{}, classify(err)
	}

	return dbConverter.ConvertExchange(dbExchange), nil
}

func (p *Postgres) DeleteExchange(ctx context.Context, exchangeID string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM exchanges WHERE exchange_id = $1`

	slog.Debug("DeleteExchange start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteExchange failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteExchange completed", slog.String("rqID", rqID))
		}
	}()

	res, err := p.txOrDb(ctx).ExecContext(ctx, query, exchangeID)
	if err != nil {
		return classify(err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
