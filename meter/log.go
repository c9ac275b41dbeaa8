// Package meter provides Meter implementations for pool observability.
package meter

import (
	"log/slog"

	"github.com/vantari/imagefront"
)

// LogMeter logs pool events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ imagefront.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnSelect(e imagefront.SelectEvent) {
	m.Logger.Debug("select",
		"pool", e.Pool,
		"credential", e.ID,
		"strategy", e.Strategy,
		"eligible", e.Eligible,
		"scoped", e.Scoped,
	)
}

func (m *LogMeter) OnUsage(e imagefront.UsageEvent) {
	m.Logger.Debug("usage",
		"pool", e.Pool,
		"credential", e.ID,
	)
}
