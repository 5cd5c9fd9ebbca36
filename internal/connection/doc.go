// Package connection implements the venue WebSocket transport and the
// connection supervisor.
//
// The Client wraps one gorilla/websocket connection:
//   - Reads frames into a buffered channel with receive timestamps
//   - Answers server pings and sends keepalives (protocol or application level)
//   - Reports stale connections when no traffic arrives within PingTimeout
//
// The Supervisor owns the lifecycle of a logical connection:
//   - Disconnected -> Connecting -> Connected state machine
//   - Exponential backoff with 50-100% jitter, capped at MaxDelay
//   - Gives up after MaxRetries consecutive failures until Connect is called again
//   - Runs the OnOpen hook after each connect so callers can resubscribe
package connection
