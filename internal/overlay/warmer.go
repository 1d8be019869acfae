package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trading-overlays/internal/metrics"

	"github.com/robfig/cron/v3"
)

// Warmer recomputes the preset overlays of configured series on a cron
// schedule so that chart opens hit a warm cache.
type Warmer struct {
	Cron *cron.Cron

	svc     *Service
	targets []WarmTarget
	prom    *metrics.Metrics
	ctx     context.Context
}

// NewWarmer registers the warm job on schedule (standard five-field cron or
// a descriptor such as "@every 1m"). ctx bounds every run.
func NewWarmer(ctx context.Context, svc *Service, targets []WarmTarget, schedule string, prom *metrics.Metrics) (*Warmer, error) {
	w := &Warmer{
		Cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:     svc,
		targets: targets,
		prom:    prom,
		ctx:     ctx,
	}
	if _, err := w.Cron.AddFunc(schedule, w.run); err != nil {
		return nil, fmt.Errorf("register warm job %q: %w", schedule, err)
	}
	return w, nil
}

// Start starts the cron scheduler.
func (w *Warmer) Start() {
	w.Cron.Start()
	slog.Info("cache warmer started", "targets", len(w.targets))
}

// Stop stops the scheduler and waits for a running job to finish.
func (w *Warmer) Stop() {
	<-w.Cron.Stop().Done()
	slog.Info("cache warmer stopped")
}

func (w *Warmer) run() {
	start := time.Now()
	err := w.RunOnce(w.ctx)
	result := "ok"
	if err != nil {
		result = "error"
		slog.Warn("cache warm run failed", "error", err)
	}
	if w.prom != nil {
		w.prom.WarmRunsTotal.WithLabelValues(result).Inc()
		w.prom.WarmRunDur.Observe(time.Since(start).Seconds())
	}
}

// RunOnce computes every target's preset overlays once. Series without
// candles yet are skipped; other failures are joined.
func (w *Warmer) RunOnce(ctx context.Context) error {
	var errs []error
	for _, t := range w.targets {
		for _, preset := range t.Presets {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := w.svc.Overlays(ctx, Request{Symbol: t.Symbol, TF: t.TF, Preset: preset, Window: t.Window})
			if errors.Is(err, ErrNoCandles) {
				continue
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("warm %s/%d %s: %w", t.Symbol, t.TF, preset, err))
			}
		}
	}
	return errors.Join(errs...)
}
