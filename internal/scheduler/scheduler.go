// Package scheduler runs the periodic maintenance jobs: score decay and
// anomaly detection sweeps.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/anomaly"
	"github.com/fyrsmithlabs/patternd/internal/quality"
)

// jobTimeout bounds a single decay or sweep run.
const jobTimeout = 10 * time.Minute

// Scheduler runs decay and sweep jobs on independent cadences.
//
// All public methods are thread-safe. The running state is protected by a
// mutex so concurrent Start/Stop calls cannot race.
type Scheduler struct {
	decayInterval time.Duration
	sweepInterval time.Duration

	engine   *quality.Engine
	detector *anomaly.Detector
	source   anomaly.PatternSource

	decayThreshold int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger *zap.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDecayInterval sets the decay cadence. Defaults to 24 hours.
func WithDecayInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.decayInterval = interval
	}
}

// WithSweepInterval sets the anomaly sweep cadence. Defaults to 1 hour.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.sweepInterval = interval
	}
}

// WithDecayThreshold sets the score below which decayed patterns are
// reported as dropped. Defaults to 30.
func WithDecayThreshold(threshold int) Option {
	return func(s *Scheduler) {
		s.decayThreshold = threshold
	}
}

// New creates a scheduler. It does not start automatically; call Start.
// The pattern source feeds both jobs: decay walks every tenant's patterns,
// sweeps scan them for abuse.
func New(engine *quality.Engine, detector *anomaly.Detector, source anomaly.PatternSource, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if engine == nil {
		return nil, fmt.Errorf("quality engine cannot be nil")
	}
	if detector == nil {
		return nil, fmt.Errorf("anomaly detector cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("pattern source cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Scheduler{
		decayInterval:  24 * time.Hour,
		sweepInterval:  time.Hour,
		decayThreshold: 30,
		engine:         engine,
		detector:       detector,
		source:         source,
		stopCh:         make(chan struct{}),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start begins the background jobs. Calling Start on a running scheduler
// returns an error without spawning more goroutines.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info("scheduler started",
		zap.Duration("decay_interval", s.decayInterval),
		zap.Duration("sweep_interval", s.sweepInterval),
	)

	s.wg.Add(2)
	go s.loop("decay", s.decayInterval, s.runDecay)
	go s.loop("sweep", s.sweepInterval, s.runSweep)

	return nil
}

// Stop signals the background jobs to stop and waits for them to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// loop ticks at the given interval until the stop channel closes. A
// panicking job is logged and the loop continues.
func (s *Scheduler) loop(name string, interval time.Duration, job func(ctx context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRun(name, job)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) safeRun(name string, job func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked, continuing",
				zap.String("job", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	job(ctx)
}

// runDecay applies score decay to every tenant's patterns.
func (s *Scheduler) runDecay(ctx context.Context) {
	tenants, err := s.source.ListTenants(ctx)
	if err != nil {
		s.logger.Error("decay run could not list tenants", zap.Error(err))
		return
	}

	var processed, dropped int
	for _, tenant := range tenants {
		patterns, err := s.source.ListPatterns(ctx, tenant)
		if err != nil {
			s.logger.Warn("decay run skipping tenant",
				zap.String("tenant", tenant),
				zap.Error(err),
			)
			continue
		}
		result := s.engine.RunDecayJob(ctx, patterns, s.decayThreshold)
		processed += result.ProcessedCount
		dropped += len(result.DroppedBelowThreshold)
	}

	s.logger.Info("scheduled decay completed",
		zap.Int("tenants", len(tenants)),
		zap.Int("processed", processed),
		zap.Int("dropped_below_threshold", dropped),
	)
}

// runSweep runs the anomaly detection sweep across all tenants.
func (s *Scheduler) runSweep(ctx context.Context) {
	results, err := s.detector.RunDetectionSweep(ctx, "")
	if err != nil {
		s.logger.Error("anomaly sweep failed", zap.Error(err))
		return
	}

	var found int
	for _, r := range results {
		found += len(r.Anomalies)
	}
	s.logger.Info("scheduled anomaly sweep completed",
		zap.Int("tenants", len(results)),
		zap.Int("anomalies", found),
	)
}
