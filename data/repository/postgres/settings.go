package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/crypto_portfolio_tracker/utils"
	"github.com/shopspring/decimal"
)

// Settings live in a single-row table keyed by name. Only the
// initial-capital baseline is stored today.

func (p *Postgres) GetInitialCapital(ctx context.Context) (amount decimal.Decimal, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT value FROM settings WHERE name = 'initial_capital'`

	slog.Debug("GetInitialCapital start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetInitialCapital failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetInitialCapital completed", slog.String("rqID", rqID))
		}
	}()

	err = p.txOrDb(ctx).GetContext(ctx, &amount, query)
	if err != nil {
		return decimal.Zero, classify(err)
	}

	return amount, nil
}

func (p *Postgres) UpdateInitialCapital(ctx context.Context, amount decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO settings(name, value) VALUES('initial_capital', $1)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, dt_update = now()`

	slog.Debug("UpdateInitialCapital start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdateInitialCapital failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateInitialCapital completed", slog.String("rqID", rqID))
		}
	}()

	_, err = p.txOrDb(ctx).ExecContext(ctx, query, amount)
	if err != nil {
		return classify(err)
	}

	return nil
}
