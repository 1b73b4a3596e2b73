// Package control implements the TCP control session with a Project-A device.
//
// A Client moves through four states:
//
//	unconnected --TCPConnect--> connected --ProtoConnect(approved)--> ready
//	     any failure, rejection, Reset or Close -----------------> closed
//
// Closed is terminal. A new Client is needed to reconnect.
//
// # Commands
//
// Move and enable/disable commands are fire-and-forget: they are written and
// no reply is read. GetStepperInfo is the only request/response exchange. It
// reads the reply until the header's length field is satisfied, bounded by a
// 1024-byte ceiling, and decodes the has_next record chain.
//
// # Usage Example
//
//	c := control.NewClient(dev.IP, dev.Port)
//	if err := c.Connect(ctx); err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if err := c.SetStepperEnabled(0, true); err != nil {
//	    return err
//	}
//	if err := c.MoveStepperTo(0, 1200); err != nil {
//	    return err
//	}
//	steppers, err := c.QueryStepperInfo()
//
// # Errors
//
// Failures are deverr errors: ConnectError from TCPConnect, TransportError
// when a send or receive fails (the client is closed afterwards),
// ProtocolError for a malformed telemetry reply (the client stays ready) and
// PreconditionViolation when an operation is used in the wrong state. The
// handshake never returns a transport or protocol error: it resets the
// connection and reports false.
//
// # Monitor
//
// Monitor polls telemetry on an interval for views that refresh
// continuously, such as the terminal monitor and the WebSocket bridge.
package control
