package control

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/projecta-dev/projecta/internal/deverr"
	"github.com/projecta-dev/projecta/internal/logging"
	"github.com/projecta-dev/projecta/internal/protocol"
)

// Telemetry interval bounds
const (
	DefaultInterval = 200 * time.Millisecond
	MinInterval     = 50 * time.Millisecond
	MaxInterval     = 1000 * time.Millisecond
)

// Querier is the part of Client a Monitor needs
type Querier interface {
	QueryStepperInfo() ([]protocol.StepperInfo, error)
	Addr() string
}

// Snapshot is one telemetry poll result
type Snapshot struct {
	Steppers []protocol.StepperInfo `json:"steppers"`
	At       time.Time              `json:"at"`

	// Err is set when the device answered with a malformed reply. The
	// connection is still usable.
	Err error `json:"-"`
}

// Monitor polls a client for telemetry on an interval and publishes the
// latest snapshot. Slow readers only ever see the newest snapshot.
type Monitor struct {
	client   Querier
	interval atomic.Int64
	out      chan Snapshot
}

// NewMonitor creates a monitor; interval is clamped to [MinInterval, MaxInterval]
func NewMonitor(client Querier, interval time.Duration) *Monitor {
	m := &Monitor{
		client: client,
		out:    make(chan Snapshot, 1),
	}
	m.SetInterval(interval)
	return m
}

// ClampInterval limits d to the supported polling range. Zero means default.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	default:
		return d
	}
}

// SetInterval changes the poll interval; it takes effect after the next poll
func (m *Monitor) SetInterval(d time.Duration) {
	m.interval.Store(int64(ClampInterval(d)))
}

// Interval returns the current poll interval
func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.interval.Load())
}

// Snapshots delivers telemetry. It is closed when Run returns.
func (m *Monitor) Snapshots() <-chan Snapshot {
	return m.out
}

// Run polls until ctx is cancelled or the connection fails. It returns nil on
// cancellation and the client error otherwise. Replies without telemetry are
// skipped; malformed replies are delivered as snapshots with Err set.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.out)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		steppers, err := m.client.QueryStepperInfo()
		switch {
		case err == nil && steppers == nil:
			// no data this round
		case err == nil:
			m.publish(Snapshot{Steppers: steppers, At: time.Now()})
		case deverr.IsProtocolError(err):
			m.publish(Snapshot{At: time.Now(), Err: err})
		default:
			logging.Warn("Telemetry monitor stopped",
				zap.String("remote_addr", m.client.Addr()),
				zap.Error(err),
			)
			return err
		}

		timer.Reset(m.Interval())
	}
}

func (m *Monitor) publish(s Snapshot) {
	select {
	case m.out <- s:
		return
	default:
	}
	// drop the stale snapshot; Run is the only sender
	select {
	case <-m.out:
	default:
	}
	m.out <- s
}
