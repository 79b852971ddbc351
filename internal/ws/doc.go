// Package ws adapts WebSocket connections to the session hub.
//
// The package implements:
//   - Client: one connection with a bounded outbound queue, attached to the hub
//   - Handler: upgrades requests and runs the read and write pumps
//
// Wire format:
//   - Program output goes out as binary frames carrying the raw bytes
//   - Control messages (exited, restarted, error, pong) are JSON text frames
//   - Inbound text frames are JSON messages (input, resize, restart, ping)
//   - Inbound binary frames are raw input for the program
package ws
