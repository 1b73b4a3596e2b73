package discovery

import (
	"context"
	"time"
)

// Scanner runs complete UDP discovery sessions with fixed settings
type Scanner struct {
	// Port is the UDP port probes are sent to
	Port uint16

	// Timeout is how long responses are collected after the probes go out
	Timeout time.Duration

	// ProbeCount is how many probes are broadcast
	ProbeCount int

	// BroadcastAddr overrides the broadcast destination (default 255.255.255.255)
	BroadcastAddr string
}

// NewScanner creates a scanner with the default discovery settings
func NewScanner() *Scanner {
	return &Scanner{
		Port:          DefaultPort,
		Timeout:       DefaultTimeout,
		ProbeCount:    DefaultProbeCount,
		BroadcastAddr: DefaultBroadcastAddr,
	}
}

// Scan runs one session to completion and returns the devices found.
// Cancelling ctx stops the session early and returns what was collected
// together with the context error.
func (s *Scanner) Scan(ctx context.Context) ([]Device, error) {
	sess := NewSession()
	if s.BroadcastAddr != "" {
		sess.BroadcastAddr = s.BroadcastAddr
	}
	return run(ctx, sess, s.Port, s.Timeout, s.ProbeCount)
}

// DiscoverDevices runs one discovery session against the limited broadcast
// address and spins Poll until the session finishes or ctx is done.
func DiscoverDevices(ctx context.Context, port uint16, timeout time.Duration, probeCount int) ([]Device, error) {
	return run(ctx, NewSession(), port, timeout, probeCount)
}

func run(ctx context.Context, sess *Session, port uint16, timeout time.Duration, probeCount int) ([]Device, error) {
	if err := sess.Start(port, timeout, probeCount); err != nil {
		return nil, err
	}
	defer sess.Close()

	for {
		if err := ctx.Err(); err != nil {
			return sess.Devices(), err
		}

		status, err := sess.Poll(time.Now())
		if err != nil {
			return sess.Devices(), err
		}
		if status == StatusFinished {
			return sess.Devices(), nil
		}
	}
}
