// Package deverr defines the error taxonomy shared by the discovery and
// control clients.
//
// Every failure surfaced by the core is an *Error carrying an ErrorType:
//   - Socket: the UDP discovery socket could not be created or bound
//   - Connect: the TCP connection to the device could not be opened
//   - Transport: a send or receive failed on an established connection
//   - Protocol: a malformed header, unexpected opcode or wrong length
//   - Precondition: an operation was invoked in the wrong state
//
// Kinds can be matched either with the Is* helpers or with errors.Is against
// the kind sentinels:
//
//	if errors.Is(err, deverr.ErrTransport) {
//	    // session is closed, reconnect
//	}
//
// Network failures are further classified into a NetworkErrorSubtype
// (timeout, refused, unreachable, reset ...) for troubleshooting hints.
package deverr
