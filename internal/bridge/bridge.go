package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/projecta-dev/projecta/internal/control"
	"github.com/projecta-dev/projecta/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum command size accepted from a client
	maxMessageSize = 1024

	// Outbound messages queued per client before new ones are dropped
	sendQueue = 16

	shutdownTimeout = 5 * time.Second
)

// ErrUnknownCommand is returned for a command type the bridge does not handle
var ErrUnknownCommand = errors.New("unknown command")

// Device is the control surface the bridge drives; *control.Client implements it
type Device interface {
	control.Querier
	MoveStepperTo(stepper uint8, position int32) error
	SetStepperEnabled(stepper uint8, enabled bool) error
}

// Bridge exposes one device to WebSocket clients
type Bridge struct {
	device   Device
	monitor  *control.Monitor
	upgrader websocket.Upgrader
	clients  *xsync.MapOf[string, *client]
	last     atomic.Pointer[control.Snapshot]
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// New creates a bridge polling device every interval
func New(device Device, interval time.Duration) *Bridge {
	return &Bridge{
		device:  device,
		monitor: control.NewMonitor(device, interval),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local tool; GUIs are served from anywhere
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: xsync.NewMapOf[string, *client](),
	}
}

// Monitor returns the telemetry monitor so callers can adjust its interval
func (b *Bridge) Monitor() *control.Monitor {
	return b.monitor
}

// Clients returns the number of connected WebSocket clients
func (b *Bridge) Clients() int {
	return b.clients.Size()
}

// Handler returns the HTTP routes: /ws and /healthz
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWebSocket)
	mux.HandleFunc("/healthz", b.handleHealth)
	return mux
}

// Run polls the device and fans telemetry out to every client until ctx is
// cancelled or the device connection fails.
func (b *Bridge) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- b.monitor.Run(ctx)
	}()

	for snap := range b.monitor.Snapshots() {
		b.last.Store(&snap)
		b.broadcast(telemetryEvent(snap))
	}

	err := <-errc
	if err != nil {
		b.broadcast(errorEvent("", err))
	}
	return err
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
func (b *Bridge) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return b.ServeListener(ctx, listener)
}

// ServeListener is Serve on an existing listener
func (b *Bridge) ServeListener(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Bridge listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("device", b.device.Addr()),
	)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(listener)
	}()

	select {
	case err := <-errc:
		b.closeClients()
		return err
	case <-ctx.Done():
	}

	logging.Info("Shutting down bridge...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server
	b.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		_ = srv.Close()
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := struct {
		Device     string     `json:"device"`
		State      string     `json:"state,omitempty"`
		Clients    int        `json:"clients"`
		LastUpdate *time.Time `json:"last_update,omitempty"`
		Interval   string     `json:"interval"`
	}{
		Device:   b.device.Addr(),
		Clients:  b.clients.Size(),
		Interval: b.monitor.Interval().String(),
	}
	if s, ok := b.device.(interface{ State() control.State }); ok {
		status.State = s.State().String()
	}
	if snap := b.last.Load(); snap != nil {
		at := snap.At
		status.LastUpdate = &at
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logging.Debug("Failed to write health response", zap.Error(err))
	}
}

func (b *Bridge) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	remoteAddr := conn.RemoteAddr().String()
	c := &client{
		conn: conn,
		send: make(chan []byte, sendQueue),
		done: make(chan struct{}),
	}
	b.clients.Store(remoteAddr, c)
	logging.LogConnection(remoteAddr, "websocket_opened")

	if snap := b.last.Load(); snap != nil {
		b.enqueue(remoteAddr, c, telemetryEvent(*snap))
	}

	go b.writePump(remoteAddr, c)
	b.readPump(remoteAddr, c)
}

// readPump handles commands until the client goes away
func (b *Bridge) readPump(remoteAddr string, c *client) {
	defer func() {
		b.clients.Delete(remoteAddr)
		close(c.done)
		_ = c.conn.Close()
		logging.LogConnection(remoteAddr, "websocket_closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Info("WebSocket read failed",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			b.enqueue(remoteAddr, c, errorEvent("", fmt.Errorf("invalid command: %w", err)))
			continue
		}

		logging.Debug("Bridge command",
			zap.String("remote_addr", remoteAddr),
			zap.String("type", cmd.Type),
			zap.Uint8("stepper", cmd.Stepper),
		)

		if err := b.execute(cmd); err != nil {
			b.enqueue(remoteAddr, c, errorEvent(cmd.Type, err))
			continue
		}
		b.enqueue(remoteAddr, c, ackEvent(cmd))
	}
}

func (b *Bridge) execute(cmd Command) error {
	switch cmd.Type {
	case TypeMove:
		return b.device.MoveStepperTo(cmd.Stepper, cmd.Position)
	case TypeEnable:
		return b.device.SetStepperEnabled(cmd.Stepper, cmd.Enabled)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}

// writePump owns all writes to the connection
func (b *Bridge) writePump(remoteAddr string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logging.Debug("WebSocket write failed",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
				_ = c.conn.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (b *Bridge) broadcast(e Event) {
	b.clients.Range(func(addr string, c *client) bool {
		b.enqueue(addr, c, e)
		return true
	})
}

// enqueue never blocks; a client that cannot keep up loses messages
func (b *Bridge) enqueue(remoteAddr string, c *client, e Event) {
	data, err := e.encode()
	if err != nil {
		logging.Error("Failed to marshal event", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	default:
		logging.Debug("Dropping event for slow client",
			zap.String("remote_addr", remoteAddr),
			zap.String("type", e.Type),
		)
	}
}

func (b *Bridge) closeClients() {
	b.clients.Range(func(addr string, c *client) bool {
		logging.Info("Closing WebSocket client", zap.String("remote_addr", addr))
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge shutting down"),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
		return true
	})
}
