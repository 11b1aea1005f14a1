// ABOUTME: Cron-driven connection status poller
// ABOUTME: Re-reads Evolution connection state on a fixed interval

package connection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Poller periodically reconciles Evolution connection statuses through
// the service's Poll method, covering webhooks that never arrived.
type Poller struct {
	service  *Service
	cron     *cron.Cron
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller that runs every interval
func NewPoller(service *Service, interval time.Duration) *Poller {
	return &Poller{
		service:  service,
		cron:     cron.New(),
		interval: interval,
		logger:   slog.Default().With("component", "poller"),
	}
}

// Start schedules the poll job. The context bounds each poll run, not
// the scheduler itself; call Stop to halt it.
func (p *Poller) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", p.interval)
	_, err := p.cron.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, p.interval)
		defer cancel()
		p.service.Poll(runCtx)
	})
	if err != nil {
		return fmt.Errorf("scheduling poll: %w", err)
	}

	p.cron.Start()
	p.logger.Info("status poller started", "interval", p.interval)
	return nil
}

// Stop halts the scheduler and waits for a running poll to finish
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Info("status poller stopped")
}
