// Package bridge exposes a Project-A device to browser and desktop GUIs over
// WebSocket.
//
// A Bridge owns a control.Monitor for one connected device. Every telemetry
// snapshot is sent to all clients on GET /ws as a JSON event:
//
//	{"type":"telemetry","at":"...","steppers":[{"motor":0,...}]}
//
// Clients send commands on the same socket:
//
//	{"type":"move","stepper":0,"position":1200}
//	{"type":"enable","stepper":0,"enabled":true}
//
// Each command is answered with an "ack" or "error" event. GET /healthz
// returns the device address, connection state and client count.
package bridge
