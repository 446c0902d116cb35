package coingeckoApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/KotFed0t/crypto_portfolio_tracker/config"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/externalApi"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model"
	"github.com/KotFed0t/crypto_portfolio_tracker/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

type CoingeckoApi struct {
	client *resty.Client
}

func New(cfg *config.Config) *CoingeckoApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.CoingeckoApi.Url)
	return &CoingeckoApi{client: client}
}

type rawQuote struct {
	USD           float64 `json:"usd"`
	LastUpdatedAt int64   `json:"last_updated_at"`
}

// GetQuotes prices a batch of symbols in a single request. Symbols the
// provider does not know are omitted from the result rather than failing
// the batch.
func (a *CoingeckoApi) GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "CoingeckoApi.GetQuotes"

	if len(symbols) == 0 {
		return map[string]model.Quote{}, nil
	}

	params := map[string]string{
		"ids":                     strings.ToLower(strings.Join(symbols, ",")),
		"vs_currencies":           "usd",
		"include_last_updated_at": "true",
	}

	slog.Debug("start GetQuotes request", slog.String("rqID", rqID), slog.String("op", op), slog.Any("symbols", symbols))

	resp, err := a.client.R().
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		SetContext(ctx).
		Get("/simple/price")

	if err != nil {
		slog.Error("error while dialing CoingeckoApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	if resp.IsError() {
		slog.Error("CoingeckoApi returned error status", slog.String("rqID", rqID), slog.String("op", op), slog.Int("status", resp.StatusCode()))
		if resp.StatusCode() == http.StatusNotFound {
			return nil, externalApi.ErrNotFound
		}
		return nil, fmt.Errorf("coingecko responded with status %d", resp.StatusCode())
	}

	raw := map[string]rawQuote{}
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		slog.Error("can't unmarshal CoingeckoApi response", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	quotes := make(map[string]model.Quote, len(raw))
	for symbol, q := range raw {
		if q.USD <= 0 {
			slog.Warn("skipping symbol without usable price", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
			continue
		}

		asOf := time.Now()
		if q.LastUpdatedAt > 0 {
			asOf = time.Unix(q.LastUpdatedAt, 0)
		}

		quotes[symbol] = model.Quote{
			Symbol:       symbol,
			CurrentPrice: decimal.NewFromFloat(q.USD),
			AsOf:         asOf,
		}
	}

	slog.Debug("GetQuotes request complete", slog.String("rqID", rqID), slog.String("op", op), slog.Int("priced", len(quotes)))

	return quotes, nil
}

// Ping checks provider reachability. Used by the connectivity probe.
func (a *CoingeckoApi) Ping(ctx context.Context) error {
	resp, err := a.client.R().SetContext(ctx).Get("/ping")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("coingecko ping responded with status %d", resp.StatusCode())
	}
	return nil
}
