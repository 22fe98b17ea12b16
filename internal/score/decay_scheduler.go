package score

import (
	"context"
	"log"
	"time"

	"github.com/ocx/trustcore/internal/metrics"
)

// DecaySweeper periodically folds owed decay into every stored score, so that
// inactive agents lose trust even when nothing reads them. Reads already fold
// decay in on their own; the sweep only keeps the persisted table and any
// exported gauges from going stale.
type DecaySweeper struct {
	engine   *Engine
	interval time.Duration
	stopCh   chan struct{}
	logger   *log.Logger
	metrics  *metrics.Metrics
}

// NewDecaySweeper creates and starts a decay sweep loop. m may be nil, which
// disables sweep instrumentation.
func NewDecaySweeper(engine *Engine, interval time.Duration, m *metrics.Metrics) *DecaySweeper {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	ds := &DecaySweeper{
		engine:   engine,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   log.New(log.Writer(), "[DecaySweep] ", log.LstdFlags),
		metrics:  m,
	}
	go ds.run()
	return ds
}

// Stop gracefully stops the sweeper.
func (ds *DecaySweeper) Stop() {
	close(ds.stopCh)
}

func (ds *DecaySweeper) run() {
	ticker := time.NewTicker(ds.interval)
	defer ticker.Stop()

	ds.logger.Printf("Started score decay sweeper (interval=%s, rate=%.4f/day)",
		ds.interval, ds.engine.cfg.DecayRatePerDay)

	for {
		select {
		case <-ticker.C:
			ds.sweep()
		case <-ds.stopCh:
			ds.logger.Println("Decay sweeper stopped")
			return
		}
	}
}

func (ds *DecaySweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	ids, err := ds.engine.store.List(ctx)
	if err != nil {
		ds.logger.Printf("Sweep aborted, listing scores failed: %v", err)
		return
	}

	swept := 0
	for _, id := range ids {
		// Revoked agents are skipped: score operations on them fail by
		// design and their score is no longer meaningful.
		if err := ds.engine.Decay(ctx, id); err == nil {
			swept++
		}
	}
	if ds.metrics != nil {
		ds.metrics.DecaySweeps.Inc()
		ds.metrics.ObserveScoreOp("sweep", time.Since(start).Seconds())
	}
	if swept > 0 {
		ds.logger.Printf("Sweep complete: %d agents decayed", swept)
	}
}
