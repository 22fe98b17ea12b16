package revocation

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically releases agents whose automatic quarantine window has
// expired. Runs as a background goroutine.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	stopCh   chan struct{}
	logger   *log.Logger
}

// NewSweeper creates and starts an auto-release sweep loop.
func NewSweeper(registry *Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	s := &Sweeper{
		registry: registry,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   log.New(log.Writer(), "[ReleaseSweep] ", log.LstdFlags),
	}
	go s.run()
	return s
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Printf("Started auto-release sweeper (interval=%s)", s.interval)

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if released := s.registry.SweepAutoReleases(ctx); released > 0 {
				s.logger.Printf("Sweep complete: %d agents released", released)
			}
			cancel()
		case <-s.stopCh:
			s.logger.Println("Auto-release sweeper stopped")
			return
		}
	}
}
