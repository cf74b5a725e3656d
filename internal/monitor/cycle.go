//go:generate mockgen -destination=mock_monitor.go -package=monitor devicemonitor/internal/monitor Prober,RegistrySource,RecordSink

package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"devicemonitor/internal/logger"
	"devicemonitor/internal/models"
)

const defaultConcurrency = 8

// RegistrySource supplies the device snapshot probed by a cycle.
type RegistrySource interface {
	Load() (models.Registry, error)
}

// RecordSink receives the records produced by a cycle.
type RecordSink interface {
	Append(records []models.AvailabilityRecord) error
}

// Cycle probes every registered device once and appends the results as a
// single batch.
type Cycle struct {
	registry    RegistrySource
	prober      Prober
	sink        RecordSink
	concurrency int
	now         func() time.Time
	log         zerolog.Logger
}

// CycleOption customises a Cycle.
type CycleOption func(*Cycle)

// WithConcurrency bounds the number of probes in flight.
func WithConcurrency(n int) CycleOption {
	return func(c *Cycle) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithNow replaces the wall clock used for record timestamps.
func WithNow(now func() time.Time) CycleOption {
	return func(c *Cycle) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCycleLogger sets the cycle logger.
func WithCycleLogger(log zerolog.Logger) CycleOption {
	return func(c *Cycle) {
		c.log = logger.WithComponent(log, "cycle")
	}
}

// NewCycle wires a cycle from its collaborators.
func NewCycle(registry RegistrySource, prober Prober, sink RecordSink, opts ...CycleOption) *Cycle {
	c := &Cycle{
		registry:    registry,
		prober:      prober,
		sink:        sink,
		concurrency: defaultConcurrency,
		now:         time.Now,
		log:         logger.NewTestLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunOnce executes a single pass. Records are ordered by device id no matter
// in which order the probes complete. Nothing is appended when the registry
// cannot be read or ctx is cancelled before all probes finish.
func (c *Cycle) RunOnce(ctx context.Context) (models.CycleReport, error) {
	report := models.CycleReport{StartedAt: c.now()}

	reg, err := c.registry.Load()
	if err != nil {
		return report, fmt.Errorf("load registry: %w", err)
	}
	entries := reg.Entries()

	records := make([]models.AvailabilityRecord, len(entries))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			status := c.prober.Probe(ctx, entry.IP)
			c.log.Debug().
				Int("device_id", entry.ID).
				Str("ip", entry.IP).
				Stringer("status", status).
				Msg("device probed")
			records[i] = models.AvailabilityRecord{
				DeviceID:  entry.ID,
				Status:    status,
				Timestamp: c.now(),
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("cycle interrupted: %w", err)
	}

	if err := c.sink.Append(records); err != nil {
		return report, fmt.Errorf("append availability records: %w", err)
	}

	report.Records = records
	report.FinishedAt = c.now()

	reachable := 0
	for _, rec := range records {
		if rec.Status == models.StatusReachable {
			reachable++
		}
	}
	c.log.Info().
		Int("devices", len(records)).
		Int("reachable", reachable).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("cycle completed")

	return report, nil
}
