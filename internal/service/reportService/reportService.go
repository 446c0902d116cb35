package reportService

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model"
	"github.com/KotFed0t/crypto_portfolio_tracker/utils"
)

type PortfolioReader interface {
	PortfolioWithPrices() []model.ExchangeWithAssets
	Summary() model.PortfolioSummary
}

type Generator interface {
	Generate(ctx context.Context, portfolio []model.ExchangeWithAssets, summary model.PortfolioSummary) (fileBytes []byte, fileExtension string, err error)
}

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
}

// ReportService renders the current portfolio snapshot into a workbook and
// optionally uploads it to cloud storage.
type ReportService struct {
	portfolio PortfolioReader
	generator Generator
	storage   CloudStorage
	clock     func() time.Time
}

// New builds a ReportService. storage may be nil, in which case Export
// returns the file bytes without a download link.
func New(portfolio PortfolioReader, generator Generator, storage CloudStorage, clock func() time.Time) *ReportService {
	if clock == nil {
		clock = time.Now
	}
	return &ReportService{portfolio: portfolio, generator: generator, storage: storage, clock: clock}
}

func (s *ReportService) Export(ctx context.Context) (fileBytes []byte, filename string, downloadLink string, err error) {
	ctx = utils.CtxWithRqID(ctx)
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "ReportService.Export"

	slog.Debug("Export start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("Export finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	snapshot := s.portfolio.PortfolioWithPrices()
	if len(snapshot) == 0 {
		return nil, "", "", errors.New("nothing to export")
	}

	fileBytes, ext, err := s.generator.Generate(ctx, snapshot, s.portfolio.Summary())
	if err != nil {
		slog.Error("got error from generator.Generate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", "", err
	}

	filename = fmt.Sprintf("portfolio_%s%s", s.clock().Format("2006-01-02_15-04-05"), ext)

	if s.storage == nil {
		return fileBytes, filename, "", nil
	}

	downloadLink, err = s.storage.UploadFile(ctx, bytes.NewReader(fileBytes), filename)
	if err != nil {
		slog.Error("got error from storage.UploadFile", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		// The report itself is still usable locally.
		return fileBytes, filename, "", nil
	}

	return fileBytes, filename, downloadLink, nil
}
