package connection

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no traffic)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrSuperseded      = errors.New("connection attempt superseded by disconnect")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// State is the supervisor connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL
	Header           http.Header   // Extra handshake headers
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingInterval     time.Duration // Keepalive send interval
	PingTimeout      time.Duration // Max time without inbound traffic before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size

	// Keepalive returns an application-level ping payload sent as a text
	// frame on every PingInterval. Nil sends protocol ping frames instead.
	Keepalive func() []byte
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     20 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       4096,
	}
}

// SupervisorConfig configures reconnection behaviour.
type SupervisorConfig struct {
	BaseDelay     time.Duration // Backoff base for the first reconnect
	MaxDelay      time.Duration // Backoff ceiling before jitter
	MaxRetries    int           // Consecutive reconnects before giving up
	AutoReconnect bool          // Schedule reconnects on drop
	DialTimeout   time.Duration // Bound on a single connect attempt
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		BaseDelay:     time.Second,
		MaxDelay:      60 * time.Second,
		MaxRetries:    10,
		AutoReconnect: true,
		DialTimeout:   15 * time.Second,
	}
}
