package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/switchboard/internal/domain"
	"go.uber.org/zap"
)

const defaultFlushInterval = 15 * time.Second

// DiagnosticSource is the queue the flusher drains, implemented by gateway.DiagnosticLog.
type DiagnosticSource interface {
	Drain() []domain.Diagnostic
}

// DiagnosticsFlusher persists gateway diagnostics on a schedule so the
// message path never waits on the database.
type DiagnosticsFlusher struct {
	source DiagnosticSource
	store  domain.DiagnosticStore
	logger *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewDiagnosticsFlusher(src DiagnosticSource, store domain.DiagnosticStore, logger *zap.Logger) *DiagnosticsFlusher {
	return &DiagnosticsFlusher{
		source:   src,
		store:    store,
		logger:   logger,
		interval: defaultFlushInterval,
		stopCh:   make(chan struct{}),
	}
}

func (f *DiagnosticsFlusher) SetInterval(d time.Duration) {
	f.interval = d
}

// Start runs the flusher on a periodic schedule in a background goroutine.
func (f *DiagnosticsFlusher) Start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		f.logger.Info("diagnostics flusher started", zap.Duration("interval", f.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				f.Flush(ctx)
				cancel()
			case <-f.stopCh:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				f.Flush(ctx)
				cancel()
				f.logger.Info("diagnostics flusher stopped")
				return
			}
		}
	}()
}

// Stop flushes what is left and stops the background goroutine.
func (f *DiagnosticsFlusher) Stop() {
	close(f.stopCh)
	f.wg.Wait()
}

// Flush writes every pending diagnostic. A failed batch is logged and dropped;
// diagnostics are operational data and are not retried.
func (f *DiagnosticsFlusher) Flush(ctx context.Context) int {
	batch := f.source.Drain()
	if len(batch) == 0 {
		return 0
	}
	if err := f.store.InsertBatch(ctx, batch); err != nil {
		f.logger.Error("failed to persist diagnostics", zap.Int("count", len(batch)), zap.Error(err))
		return 0
	}
	f.logger.Debug("persisted diagnostics", zap.Int("count", len(batch)))
	return len(batch)
}
