//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package discovery

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// controlBroadcast enables broadcast and port reuse on the discovery socket
func controlBroadcast(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		for _, opt := range []struct {
			name  string
			value int
		}{
			{"SO_REUSEADDR", unix.SO_REUSEADDR},
			{"SO_REUSEPORT", unix.SO_REUSEPORT},
			{"SO_BROADCAST", unix.SO_BROADCAST},
		} {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt.value, 1); err != nil {
				sockErr = fmt.Errorf("setsockopt %s: %w", opt.name, err)
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
