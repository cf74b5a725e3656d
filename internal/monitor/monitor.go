package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"devicemonitor/internal/logger"
	"devicemonitor/internal/models"
	"devicemonitor/internal/storage"
)

// DefaultInterval is the pause between cycles in continuous mode.
const DefaultInterval = 5 * time.Minute

// CycleRunner executes one monitoring pass.
type CycleRunner interface {
	RunOnce(ctx context.Context) (models.CycleReport, error)
}

// Monitor repeatedly runs a cycle at a fixed interval.
//
// The wait starts when a cycle finishes, so a slow cycle pushes the next one
// back by its own duration and missed ticks are never replayed.
type Monitor struct {
	cycle    CycleRunner
	interval time.Duration
	clock    Clock
	log      zerolog.Logger

	mu    sync.Mutex
	hooks []func(models.CycleReport)

	startOnce sync.Once
	cancel    context.CancelFunc
	doneCh    chan struct{}
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithClock replaces the timer source.
func WithClock(clock Clock) Option {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Monitor) {
		m.log = logger.WithComponent(log, "monitor")
	}
}

// New creates a monitor for the given cycle and interval.
func New(cycle CycleRunner, interval time.Duration, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}

	m := &Monitor{
		cycle:    cycle,
		interval: interval,
		clock:    realClock{},
		log:      logger.NewTestLogger(),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnCycle registers a callback invoked after every successful cycle.
func (m *Monitor) OnCycle(fn func(models.CycleReport)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = append(m.hooks, fn)
}

// RunOnce executes a single cycle.
func (m *Monitor) RunOnce(ctx context.Context) (models.CycleReport, error) {
	report, err := m.cycle.RunOnce(ctx)
	if err != nil {
		return report, err
	}

	m.mu.Lock()
	hooks := append([]func(models.CycleReport){}, m.hooks...)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn(report)
	}
	return report, nil
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled, which returns nil. A corrupt registry stops the loop and is
// returned; other cycle failures are logged and the loop goes on.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info().Dur("interval", m.interval).Msg("starting monitor loop")

	for {
		if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			if errors.Is(err, storage.ErrStoreCorrupt) {
				m.log.Error().Err(err).Msg("registry is corrupt, stopping monitor loop")
				return err
			}
			m.log.Error().Err(err).Msg("monitor cycle failed")
		}

		timer := m.clock.NewTimer(m.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.log.Info().Msg("monitor loop stopped")
			return nil
		case <-timer.C():
		}
	}
}

// Start launches the monitoring loop in a goroutine.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.mu.Lock()
		m.cancel = cancel
		m.mu.Unlock()

		go func() {
			defer close(m.doneCh)
			_ = m.Run(ctx)
		}()
	})
}

// Stop requests loop termination and waits until it is done. It is a no-op
// when the loop was never started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-m.doneCh
}
