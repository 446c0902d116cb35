package xlsxGenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model"
	"github.com/KotFed0t/crypto_portfolio_tracker/utils"
	"github.com/xuri/excelize/v2"
)

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

// Generate renders the portfolio into a workbook: one summary sheet plus
// one sheet per exchange.
func (g *XLSXGenerator) Generate(ctx context.Context, portfolio []model.ExchangeWithAssets, summary model.PortfolioSummary) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	if len(portfolio) == 0 {
		return nil, "", errors.New("empty portfolio")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	if err := g.fillSummarySheet(f, summary); err != nil {
		slog.Error("got error while filling summary sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	for i, exchange := range portfolio {
		if err := g.fillExchangeSheet(f, exchange, i+2); err != nil {
			slog.Error("got error while filling exchange sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, "", err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
	})
}

func (g *XLSXGenerator) fillSummarySheet(f *excelize.File, summary model.PortfolioSummary) error {
	const sheetName = "1. Summary"

	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	styleID, err := g.headerStyle(f)
	if err != nil {
		return err
	}

	rows := [][]any{
		{"Total value", summary.TotalValue.String()},
		{"Initial capital", summary.TotalInvestment.String()},
		{"Profit/loss", summary.TotalProfitLoss.String()},
		{"Profit/loss %", summary.ProfitLossPercentage.StringFixed(2)},
		{"As of", summary.AsOf.Format("2006-01-02 15:04:05")},
	}

	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheetName, "A1", "A5", styleID); err != nil {
		return err
	}

	distHeader := []any{"Asset", "Value", "Percentage"}
	if err := f.SetSheetRow(sheetName, "A7", &distHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A7", "C7", styleID); err != nil {
		return err
	}

	for i, dist := range summary.DistributionByAsset {
		row := []any{strings.ToUpper(dist.Name), dist.Value.String(), dist.Percentage.StringFixed(2)}
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", i+8), &row); err != nil {
			return err
		}
	}

	return nil
}

func (g *XLSXGenerator) fillExchangeSheet(f *excelize.File, exchange model.ExchangeWithAssets, ordinal int) error {
	sheetName := fmt.Sprintf("%d. %s", ordinal, exchange.Name)

	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	styleID, err := g.headerStyle(f)
	if err != nil {
		return err
	}

	header := []any{"Symbol", "Quantity", "Avg purchase price", "Current price", "Current value", "Profit/loss", "Profit/loss %"}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "G1", styleID); err != nil {
		return err
	}

	for i, asset := range exchange.Assets {
		row := []any{
			strings.ToUpper(asset.Symbol),
			asset.Quantity.String(),
			asset.PurchasePriceAvg.String(),
			asset.CurrentPrice.String(),
			asset.CurrentValue.String(),
			asset.ProfitLoss.String(),
			asset.ProfitLossPercentage.StringFixed(2),
		}
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}

	totalRow := []any{"Total", "", "", "", exchange.TotalValue.String()}
	if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", len(exchange.Assets)+3), &totalRow); err != nil {
		return err
	}

	return nil
}
