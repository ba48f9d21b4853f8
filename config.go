package foreman

import (
	"log/slog"
	"sync/atomic"
)

// Config holds process-wide configuration shared by foreman and its subpackages
var Config config = config{}

type config struct {
	logger atomic.Pointer[slog.Logger]
}

// SetLogger replaces the log sink. Job failures, queued-operation failures and
// scheduler diagnostics all end up here.
func (c *config) SetLogger(logger *slog.Logger) {
	c.logger.Store(logger)
}

// Logger returns the configured log sink, slog.Default when unset
func (c *config) Logger() *slog.Logger {
	if l := c.logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}
