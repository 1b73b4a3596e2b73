package control

import (
	"context"
	"net"
	"time"
)

const (
	// DefaultPort is the TCP control port of a Project-A device
	DefaultPort = 8085

	// DefaultDialTimeout bounds TCPConnect when the context has no deadline
	DefaultDialTimeout = 5 * time.Second
)

// Dialer opens the TCP connection to the device. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Option configures a Client
type Option func(*Client)

// WithDialTimeout bounds the TCP connect. Zero leaves only the context.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// WithIOTimeout bounds every send and every reply wait on the connection.
// Zero (the default) blocks until the device answers or the connection is
// closed.
func WithIOTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.ioTimeout = d
	}
}

// WithDialer replaces the network dialer
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}
