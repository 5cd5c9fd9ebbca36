package connection

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// ClientFactory creates a fresh, unconnected client for each attempt.
type ClientFactory func() Client

// Hooks receive supervisor events. All hooks are optional and are called
// without the supervisor lock held.
type Hooks struct {
	// OnConnecting runs before every dial attempt, while the state is
	// Connecting. Per-connection bookkeeping is reset here so nothing can
	// observe Connected with stale state.
	OnConnecting func()

	// OnOpen runs after every successful connect, before Connect returns.
	OnOpen func()

	// OnMessage runs for each inbound message, in arrival order, on the
	// connection's read goroutine.
	OnMessage func(TimestampedMessage)

	// OnError receives dial failures and connection drops.
	OnError func(error)
}

// Supervisor keeps one logical connection alive across transport failures.
//
// State machine:
//
//	Disconnected -> Connecting -> Connected -> Disconnected
//
// Every drop or failed dial schedules a reconnect with exponential backoff
// until MaxRetries consecutive attempts have been made. The attempt counter
// resets on every successful connect and on every external Connect call.
type Supervisor struct {
	cfg       SupervisorConfig
	newClient ClientFactory
	hooks     Hooks
	logger    *slog.Logger
	jitter    func() float64

	mu         sync.Mutex
	state      State
	client     Client
	attempts   int
	reconnects int
	gen        uint64 // bumped on every dial and teardown
	timer      *time.Timer
	lastErr    error
}

// NewSupervisor creates a supervisor in the Disconnected state.
func NewSupervisor(cfg SupervisorConfig, newClient ClientFactory, hooks Hooks, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultSupervisorConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Supervisor{
		cfg:       cfg,
		newClient: newClient,
		hooks:     hooks,
		logger:    logger,
		jitter:    rand.Float64,
	}
}

// Connect dials if the supervisor is Disconnected and resets the retry
// counter. It is a no-op while Connecting or Connected. A failed dial is
// returned and also schedules a reconnect.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.attempts = 0
	s.stopTimerLocked()
	s.mu.Unlock()

	return s.dial(ctx)
}

// Disconnect tears down the connection and cancels any pending reconnect.
// It is idempotent and always returns nil.
func (s *Supervisor) Disconnect() error {
	s.mu.Lock()
	s.gen++
	s.stopTimerLocked()
	c := s.client
	s.client = nil
	prev := s.state
	s.state = StateDisconnected
	s.mu.Unlock()

	if c != nil {
		c.Close()
	}
	if prev != StateDisconnected {
		s.logger.Info("disconnected")
	}
	return nil
}

// Send writes to the live connection.
func (s *Supervisor) Send(data []byte) error {
	s.mu.Lock()
	c := s.client
	state := s.state
	s.mu.Unlock()

	if c == nil || state != StateConnected {
		return ErrNotConnected
	}
	return c.Send(data)
}

// SetAutoReconnect toggles reconnect scheduling. Disabling it cancels a
// pending reconnect.
func (s *Supervisor) SetAutoReconnect(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.AutoReconnect = enabled
	if !enabled {
		s.stopTimerLocked()
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the consecutive reconnect attempts since the last
// successful connect.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Reconnects returns the total number of reconnects scheduled.
func (s *Supervisor) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// ReconnectPending reports whether a reconnect timer is armed.
func (s *Supervisor) ReconnectPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// LastError returns the most recent dial or connection error.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// dial performs one connect attempt.
func (s *Supervisor) dial(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	attempt := s.attempts
	s.mu.Unlock()

	s.logger.Debug("connecting", "attempt", attempt)

	if s.hooks.OnConnecting != nil {
		s.hooks.OnConnecting()
	}

	c := s.newClient()
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	err := c.Connect(dctx)
	cancel()

	s.mu.Lock()
	if gen != s.gen {
		// Disconnect ran while dialing.
		s.mu.Unlock()
		c.Close()
		return ErrSuperseded
	}

	if err != nil {
		c.Close()
		s.state = StateDisconnected
		s.lastErr = err
		s.scheduleLocked()
		s.mu.Unlock()

		err = fmt.Errorf("dial: %w", err)
		s.logger.Warn("connect failed", "attempt", attempt, "error", err)
		s.report(err)
		return err
	}

	s.client = c
	s.state = StateConnected
	s.attempts = 0
	s.mu.Unlock()

	s.logger.Info("connected")

	go s.readLoop(gen, c)

	if s.hooks.OnOpen != nil {
		s.hooks.OnOpen()
	}
	return nil
}

// readLoop forwards messages until the client fails or is closed.
func (s *Supervisor) readLoop(gen uint64, c Client) {
	for {
		select {
		case msg := <-c.Messages():
			s.deliver(msg)
		case err := <-c.Errors():
			s.drain(c)
			s.handleDrop(gen, c, err)
			return
		case <-c.Done():
			return
		}
	}
}

// drain flushes messages read before a failure.
func (s *Supervisor) drain(c Client) {
	for {
		select {
		case msg := <-c.Messages():
			s.deliver(msg)
		default:
			return
		}
	}
}

func (s *Supervisor) deliver(msg TimestampedMessage) {
	if s.hooks.OnMessage != nil {
		s.hooks.OnMessage(msg)
	}
}

func (s *Supervisor) handleDrop(gen uint64, c Client, err error) {
	c.Close()

	s.mu.Lock()
	if gen != s.gen || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.client = nil
	s.state = StateDisconnected
	s.lastErr = err
	s.scheduleLocked()
	s.mu.Unlock()

	err = fmt.Errorf("connection lost: %w", err)
	s.logger.Warn("connection dropped", "error", err)
	s.report(err)
}

// scheduleLocked arms the reconnect timer if policy allows.
// Must be called with lock held.
func (s *Supervisor) scheduleLocked() {
	if !s.cfg.AutoReconnect {
		return
	}
	if s.attempts >= s.cfg.MaxRetries {
		s.logger.Error("max reconnect attempts reached, staying disconnected",
			"attempts", s.attempts,
		)
		return
	}

	delay := Backoff(s.cfg.BaseDelay, s.cfg.MaxDelay, s.attempts, s.jitter())
	s.attempts++
	s.reconnects++
	gen := s.gen

	s.logger.Info("scheduling reconnect", "attempt", s.attempts, "delay", delay)

	s.stopTimerLocked()
	s.timer = time.AfterFunc(delay, func() { s.fire(gen) })
}

func (s *Supervisor) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	s.dial(context.Background())
}

func (s *Supervisor) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Supervisor) report(err error) {
	if s.hooks.OnError != nil {
		s.hooks.OnError(err)
	}
}
