//go:build windows

package discovery

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// controlBroadcast enables broadcast and address reuse on the discovery socket
func controlBroadcast(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		h := windows.Handle(fd)
		if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
			sockErr = fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
			return
		}
		if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_BROADCAST, 1); err != nil {
			sockErr = fmt.Errorf("setsockopt SO_BROADCAST: %w", err)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
