package simulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/projecta-dev/projecta/internal/discovery"
	"github.com/projecta-dev/projecta/internal/logging"
)

// Defaults for a simulated device
const (
	DefaultName         = "projecta-sim"
	DefaultSteppers     = 2
	DefaultStepRate     = 50
	DefaultTickInterval = 20 * time.Millisecond
)

// Config holds the simulator configuration
type Config struct {
	Name              string
	Host              string        // Bind address; empty means all interfaces
	DiscoveryPort     uint16        // 0 picks a free port
	ControlPort       uint16        // 0 picks a free port
	Steppers          int           // Number of motors
	RejectConnections bool          // Answer every handshake with a rejection
	Advertise         bool          // Register the mDNS service
	StepRate          int32         // Positions moved per tick
	TickInterval      time.Duration // Kinematics step
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Steppers <= 0 {
		c.Steppers = DefaultSteppers
	}
	if c.StepRate <= 0 {
		c.StepRate = DefaultStepRate
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
}

// Simulator is an in-process Project-A device: a UDP discovery responder
// plus a TCP control server backed by simulated steppers.
type Simulator struct {
	config Config
	bank   *bank

	udp      net.PacketConn
	listener net.Listener
	adv      *discovery.Advertisement

	conns  *xsync.MapOf[string, net.Conn]
	wg     sync.WaitGroup
	cancel context.CancelFunc
	closed atomic.Bool

	closeOnce sync.Once
}

// New creates a simulator; nothing is bound until Start
func New(config Config) *Simulator {
	config.applyDefaults()
	return &Simulator{
		config: config,
		bank:   newBank(config.Steppers, config.StepRate),
		conns:  xsync.NewMapOf[string, net.Conn](),
	}
}

// Start binds both sockets and serves until ctx is cancelled or Close is
// called. It returns once the simulator is reachable.
func (s *Simulator) Start(ctx context.Context) error {
	if s.cancel != nil {
		return errors.New("simulator already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	lc := discovery.ListenConfig()
	udp, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort(s.config.Host, strconv.Itoa(int(s.config.DiscoveryPort))))
	if err != nil {
		cancel()
		return fmt.Errorf("failed to bind discovery port: %w", err)
	}

	listener, err := net.Listen("tcp4", net.JoinHostPort(s.config.Host, strconv.Itoa(int(s.config.ControlPort))))
	if err != nil {
		cancel()
		udp.Close()
		return fmt.Errorf("failed to bind control port: %w", err)
	}

	s.udp = udp
	s.listener = listener
	s.cancel = cancel

	if s.config.Advertise {
		adv, err := discovery.Advertise(s.config.Name, s.ControlPort(), s.config.Name)
		if err != nil {
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			s.adv = adv
		}
	}

	logging.Info("Simulator started",
		zap.String("name", s.config.Name),
		zap.String("control_addr", listener.Addr().String()),
		zap.String("discovery_addr", udp.LocalAddr().String()),
		zap.Int("steppers", s.config.Steppers),
		zap.Bool("reject", s.config.RejectConnections),
	)

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.respondToProbes()
	}()
	go func() {
		defer s.wg.Done()
		s.acceptConnections()
	}()
	go func() {
		defer s.wg.Done()
		s.runKinematics(ctx)
	}()

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return nil
}

// Addr returns the TCP control address
func (s *Simulator) Addr() *net.TCPAddr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr().(*net.TCPAddr)
}

// ControlPort returns the bound TCP control port
func (s *Simulator) ControlPort() uint16 {
	if a := s.Addr(); a != nil {
		return uint16(a.Port)
	}
	return 0
}

// DiscoveryAddr returns the UDP discovery address
func (s *Simulator) DiscoveryAddr() *net.UDPAddr {
	if s.udp == nil {
		return nil
	}
	return s.udp.LocalAddr().(*net.UDPAddr)
}

// DiscoveryPort returns the bound UDP discovery port
func (s *Simulator) DiscoveryPort() uint16 {
	if a := s.DiscoveryAddr(); a != nil {
		return uint16(a.Port)
	}
	return 0
}

// Name returns the announced device name
func (s *Simulator) Name() string {
	return s.config.Name
}

// Connections returns the number of open control connections
func (s *Simulator) Connections() int {
	return s.conns.Size()
}

// Close stops serving, closes every socket and waits for the handlers
func (s *Simulator) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.closed.Store(true)
		s.adv.Shutdown()
		if s.udp != nil {
			_ = s.udp.Close()
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.conns.Range(func(addr string, conn net.Conn) bool {
			logging.Debug("Closing control connection", zap.String("remote_addr", addr))
			_ = conn.Close()
			return true
		})
		s.wg.Wait()
		logging.Info("Simulator stopped", zap.String("name", s.config.Name))
	})
	return nil
}

func (s *Simulator) runKinematics(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.bank.tick()
		}
	}
}
