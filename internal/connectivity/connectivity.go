// Package connectivity tracks whether the network is reachable. The flag
// is flipped by a periodic probe against the quote provider and consulted
// by the retryable loader to short-circuit before any I/O.
package connectivity

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/KotFed0t/crypto_portfolio_tracker/utils"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Monitor struct {
	pinger  Pinger
	offline atomic.Bool
}

func NewMonitor(pinger Pinger) *Monitor {
	return &Monitor{pinger: pinger}
}

func (m *Monitor) IsOffline() bool {
	return m.offline.Load()
}

// Probe checks reachability and reports whether connectivity was just
// restored, so the caller can trigger a refresh on reconnect.
func (m *Monitor) Probe(ctx context.Context) (reconnected bool) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	if err := m.pinger.Ping(ctx); err != nil {
		if !m.offline.Swap(true) {
			slog.Warn("connectivity lost", slog.String("rqID", rqID), slog.String("err", err.Error()))
		}
		return false
	}

	if m.offline.Swap(false) {
		slog.Info("connectivity restored", slog.String("rqID", rqID))
		return true
	}

	return false
}
