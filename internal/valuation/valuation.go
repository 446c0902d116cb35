// Package valuation implements the portfolio aggregation pass as a pure
// function of holdings, quotes and the capital baseline, so it can be
// exercised in isolation with no ambient cache state.
package valuation

import (
	"sort"
	"strings"
	"time"

	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Result struct {
	Portfolio []model.ExchangeWithAssets
	Summary   model.PortfolioSummary
}

// Recompute derives a fresh portfolio-with-prices and summary. Per asset:
// stablecoins pin to 1.0 with zero profit/loss; a fresh quote yields value
// and cost-basis profit/loss; an absent quote falls back to the purchase
// average for display and contributes zero profit/loss. The summary's
// total investment is the user-set initial capital, not the sum of
// purchase costs.
func Recompute(
	portfolio []model.ExchangeWithAssets,
	quotes map[string]model.Quote,
	initialCapital decimal.Decimal,
	now time.Time,
) Result {
	updated := make([]model.ExchangeWithAssets, 0, len(portfolio))
	totalValue := decimal.Zero

	for _, exchange := range portfolio {
		revalued := model.ExchangeWithAssets{
			Exchange:   exchange.Exchange,
			Assets:     make([]model.AssetWithValue, 0, len(exchange.Assets)),
			TotalValue: decimal.Zero,
		}

		for _, asset := range exchange.Assets {
			valued := revalue(asset.Asset, quotes, now)
			revalued.Assets = append(revalued.Assets, valued)
			revalued.TotalValue = revalued.TotalValue.Add(valued.CurrentValue)
		}

		totalValue = totalValue.Add(revalued.TotalValue)
		updated = append(updated, revalued)
	}

	summary := model.PortfolioSummary{
		TotalValue:      totalValue,
		TotalInvestment: initialCapital,
		TotalProfitLoss: totalValue.Sub(initialCapital),
		AsOf:            now,
	}

	if initialCapital.IsPositive() {
		summary.ProfitLossPercentage = summary.TotalProfitLoss.Div(initialCapital).Mul(hundred)
	}

	if totalValue.IsPositive() {
		summary.DistributionByExchange = distributionByExchange(updated, totalValue)
		summary.DistributionByAsset = distributionByAsset(updated, totalValue)
	}

	return Result{Portfolio: updated, Summary: summary}
}

func revalue(asset model.Asset, quotes map[string]model.Quote, now time.Time) model.AssetWithValue {
	valued := model.AssetWithValue{Asset: asset}
	symbol := strings.ToLower(asset.Symbol)

	if model.IsStablecoin(symbol) {
		valued.CurrentPrice = decimal.NewFromInt(1)
		valued.CurrentValue = asset.Quantity
		valued.ProfitLoss = decimal.Zero
		valued.ProfitLossPercentage = decimal.Zero
		valued.LastPricedAt = now
		return valued
	}

	quote, ok := quotes[symbol]
	if !ok {
		// No quote this pass: keep the purchase average for display
		// continuity and never fabricate a gain or loss.
		valued.CurrentPrice = asset.PurchasePriceAvg
		valued.CurrentValue = asset.Quantity.Mul(asset.PurchasePriceAvg)
		valued.ProfitLoss = decimal.Zero
		valued.ProfitLossPercentage = decimal.Zero
		return valued
	}

	valued.CurrentPrice = quote.CurrentPrice
	valued.CurrentValue = asset.Quantity.Mul(quote.CurrentPrice)
	valued.LastPricedAt = quote.AsOf

	investment := asset.Quantity.Mul(asset.PurchasePriceAvg)
	valued.ProfitLoss = valued.CurrentValue.Sub(investment)
	if investment.IsPositive() {
		valued.ProfitLossPercentage = valued.ProfitLoss.Div(investment).Mul(hundred)
	}

	return valued
}

func distributionByExchange(portfolio []model.ExchangeWithAssets, totalValue decimal.Decimal) []model.Distribution {
	dist := make([]model.Distribution, 0, len(portfolio))
	for _, exchange := range portfolio {
		dist = append(dist, model.Distribution{
			Name:       exchange.Name,
			Value:      exchange.TotalValue,
			Percentage: exchange.TotalValue.Div(totalValue).Mul(hundred),
		})
	}
	return dist
}

func distributionByAsset(portfolio []model.ExchangeWithAssets, totalValue decimal.Decimal) []model.Distribution {
	bySymbol := make(map[string]decimal.Decimal)
	for _, exchange := range portfolio {
		for _, asset := range exchange.Assets {
			symbol := strings.ToLower(asset.Symbol)
			bySymbol[symbol] = bySymbol[symbol].Add(asset.CurrentValue)
		}
	}

	dist := make([]model.Distribution, 0, len(bySymbol))
	for symbol, value := range bySymbol {
		dist = append(dist, model.Distribution{
			Name:       symbol,
			Value:      value,
			Percentage: value.Div(totalValue).Mul(hundred),
		})
	}

	sort.Slice(dist, func(i, j int) bool {
		if !dist[i].Value.Equal(dist[j].Value) {
			return dist[i].Value.GreaterThan(dist[j].Value)
		}
		return dist[i].Name < dist[j].Name
	})

	return dist
}
