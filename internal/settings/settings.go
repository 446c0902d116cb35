package settings

import (
	"context"
	"errors"
	"log/slog"

	"github.com/KotFed0t/crypto_portfolio_tracker/data/repository"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/retry"
	"github.com/KotFed0t/crypto_portfolio_tracker/utils"
	"github.com/shopspring/decimal"
)

type RemoteStore interface {
	GetInitialCapital(ctx context.Context) (decimal.Decimal, error)
	UpdateInitialCapital(ctx context.Context, amount decimal.Decimal) error
}

type FallbackStore interface {
	InitialCapital() (decimal.Decimal, bool, error)
	SaveInitialCapital(amount decimal.Decimal) error
	Clear() error
}

// Service reads and writes the initial-capital baseline against the remote
// store, degrading to the on-device fallback while the remote is
// unreachable. A pending fallback value wins over the remote one until it
// is reconciled on a successful remote read.
type Service struct {
	remote   RemoteStore
	fallback FallbackStore
	policy   retry.Policy
	offline  func() bool
}

func New(remote RemoteStore, fallback FallbackStore, policy retry.Policy, offline func() bool) *Service {
	return &Service{remote: remote, fallback: fallback, policy: policy, offline: offline}
}

func (s *Service) InitialCapital(ctx context.Context) (decimal.Decimal, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Settings.InitialCapital"

	remoteVal, err := retry.Do(ctx, op, s.policy, s.offline, repository.IsPermanent, func(ctx context.Context) (decimal.Decimal, error) {
		return s.remote.GetInitialCapital(ctx)
	})

	if err == nil {
		return s.reconcile(ctx, remoteVal), nil
	}

	if errors.Is(err, repository.ErrNotFound) {
		// Setting never written remotely; a pending local value still counts.
		if pending, ok, fbErr := s.fallback.InitialCapital(); fbErr == nil && ok {
			return pending, nil
		}
		return decimal.Zero, nil
	}

	slog.Warn("remote settings unreachable, using fallback", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))

	if pending, ok, fbErr := s.fallback.InitialCapital(); fbErr == nil && ok {
		return pending, nil
	}

	return decimal.Zero, err
}

func (s *Service) UpdateInitialCapital(ctx context.Context, amount decimal.Decimal) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Settings.UpdateInitialCapital"

	_, err := retry.Do(ctx, op, s.policy, s.offline, repository.IsPermanent, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.remote.UpdateInitialCapital(ctx, amount)
	})

	if err == nil {
		if clearErr := s.fallback.Clear(); clearErr != nil {
			slog.Warn("can't clear settings fallback", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", clearErr.Error()))
		}
		return nil
	}

	if repository.IsPermanent(err) {
		return err
	}

	slog.Warn("remote settings write failed, keeping value locally", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))

	if fbErr := s.fallback.SaveInitialCapital(amount); fbErr != nil {
		slog.Error("settings fallback write failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", fbErr.Error()))
		return err
	}

	return nil
}

// reconcile pushes a pending local value to the remote store. The local
// value is newer than the remote one, so it wins either way.
func (s *Service) reconcile(ctx context.Context, remoteVal decimal.Decimal) decimal.Decimal {
	pending, ok, err := s.fallback.InitialCapital()
	if err != nil || !ok {
		return remoteVal
	}

	op := "Settings.reconcile"
	rqID := utils.GetRequestIDFromCtx(ctx)

	if err := s.remote.UpdateInitialCapital(ctx, pending); err != nil {
		slog.Warn("can't reconcile pending settings value", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return pending
	}

	if err := s.fallback.Clear(); err != nil {
		slog.Warn("can't clear settings fallback after reconcile", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	slog.Info("reconciled pending settings value", slog.String("rqID", rqID), slog.String("op", op))

	return pending
}
