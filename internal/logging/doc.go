// Package logging provides structured logging for the projecta tools.
//
// It wraps a global zap logger that is silent unless a level is given on the
// command line or through PROJECTA_LOG_LEVEL. Library packages log through
// the helpers here and never configure output themselves.
//
// # Log Levels
//
//   - Debug: packet hex dumps, dropped datagrams, state transitions
//   - Info: connections, handshakes, discovery results
//   - Warn: rejected handshakes, lost connections
//   - Error: socket failures
//
// # Specialized Logging
//
//	logging.LogConnection(addr, "tcp_connected")
//	logging.LogPacket(addr, "sent", protocol.OpStepperMoveTo, pkt)
//	logging.LogDatagram(from, "received", data, "foreign device id")
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
