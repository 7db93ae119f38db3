package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ranking-engine/internal/config"
	"github.com/ranking-engine/internal/domain"
)

// PageLoader assembles a leaderboard page, populating the page cache as a
// side effect. Implemented by the ranking service.
type PageLoader interface {
	GetLeaderboardPage(ctx context.Context, period domain.Period, page, pageSize int) (*domain.LeaderboardPage, error)
}

// Warmer periodically recomputes the first page of every period so the hot
// path serves from cache even right after an invalidation burst.
type Warmer struct {
	loader  PageLoader
	config  *config.WarmerConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewWarmer creates a new cache warmer
func NewWarmer(loader PageLoader, cfg *config.WarmerConfig, logger *slog.Logger) *Warmer {
	return &Warmer{
		loader: loader,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background warming process
func (w *Warmer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("cache warmer started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background warming process
func (w *Warmer) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("cache warmer stopped")
	return nil
}

// run is the main worker loop
func (w *Warmer) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.warmAll(ctx)
		}
	}
}

// warmAll recomputes the front page of every period
func (w *Warmer) warmAll(ctx context.Context) {
	startTime := time.Now()
	warmed := 0
	errorCount := 0

	for _, period := range domain.Periods {
		if _, err := w.loader.GetLeaderboardPage(ctx, period, 1, 0); err != nil {
			w.logger.Error("failed to warm leaderboard page",
				"period", period,
				"error", err,
			)
			errorCount++
		} else {
			warmed++
		}
	}

	w.logger.Debug("warm cycle completed",
		"duration", time.Since(startTime),
		"warmed", warmed,
		"errors", errorCount,
	)
}

// IsRunning returns whether the worker is currently running
func (w *Warmer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single warm cycle (useful for startup priming)
func (w *Warmer) RunOnce(ctx context.Context) {
	w.warmAll(ctx)
}
