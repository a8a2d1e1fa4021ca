package chat

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatnest/internal/protocol"
)

// Channel is the raw bidirectional event transport. Dial starts a single
// connection attempt; its outcome arrives later as protocol.ChannelUp or
// protocol.ChannelDown through the loop. Only Connection calls Dial and Close.
type Channel interface {
	Dial()
	Close()
	Emit(event string, payload any) error
}

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateJoining
	StateJoined
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateJoining:
		return "Joining"
	case StateJoined:
		return "Joined"
	case StateFailed:
		return "Connection failed"
	}
	return "unknown"
}

// ReconnectPolicy is a fixed number of retries with a fixed delay between them.
type ReconnectPolicy struct {
	Attempts int
	Delay    time.Duration
}

var DefaultReconnectPolicy = ReconnectPolicy{Attempts: 5, Delay: time.Second}

// Session exists from join_success until leave.
type Session struct {
	Username string
	JoinedAt time.Time
}

// Connection owns the channel, its reconnect policy and the join/leave handshake.
type Connection struct {
	channel Channel
	clock   Clock
	policy  ReconnectPolicy
	log     zerolog.Logger

	state      ConnState
	session    *Session
	joiningAs  string
	retries    int
	retryTimer Timer
	retryGen   uint64
	lastErr    error
}

func NewConnection(channel Channel, clock Clock, policy ReconnectPolicy, log zerolog.Logger) *Connection {
	if policy.Attempts < 0 {
		policy.Attempts = 0
	}
	return &Connection{channel: channel, clock: clock, policy: policy, log: log}
}

func (c *Connection) State() ConnState {
	return c.state
}

// Session returns the joined session or nil.
func (c *Connection) Session() *Session {
	return c.session
}

func (c *Connection) Joined() bool {
	return c.state == StateJoined && c.session != nil
}

// LastError is the most recent channel-level failure, cleared once connected.
func (c *Connection) LastError() error {
	return c.lastErr
}

// Connect opens the channel. Calling it while a connection is up or underway is a no-op.
func (c *Connection) Connect() {
	switch c.state {
	case StateConnecting, StateConnected, StateJoining, StateJoined:
		return
	}
	c.cancelRetry()
	c.retries = 0
	c.dial()
}

func (c *Connection) dial() {
	c.state = StateConnecting
	c.log.Debug().Int("retry", c.retries).Msg("dialing channel")
	c.channel.Dial()
}

// Join validates the name locally, then sends the join request.
func (c *Connection) Join(username string) error {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if c.state == StateJoining {
		return invalid("Join already in progress")
	}
	if c.state != StateConnected {
		if c.state == StateDisconnected || c.state == StateFailed {
			c.Connect()
		}
		return invalid("Not connected to server. Please try again.")
	}
	if err := c.channel.Emit(protocol.EventJoin, protocol.JoinRequest{Username: username}); err != nil {
		return channelErr("Failed to send join request", err)
	}
	c.joiningAs = username
	c.state = StateJoining
	return nil
}

// Emit sends an event on behalf of the joined session.
func (c *Connection) Emit(event string, payload any) error {
	if !c.Joined() {
		return channelErr("Not connected to server", nil)
	}
	if err := c.channel.Emit(event, payload); err != nil {
		return channelErr("Failed to reach server", err)
	}
	return nil
}

// Leave tears the channel down and destroys the session.
func (c *Connection) Leave() {
	c.cancelRetry()
	c.channel.Close()
	c.state = StateDisconnected
	c.session = nil
	c.joiningAs = ""
	c.retries = 0
	c.lastErr = nil
}

// handleUp returns false for a channel nobody asked for, which is closed again.
func (c *Connection) handleUp() bool {
	if c.state != StateConnecting {
		c.log.Debug().Str("state", c.state.String()).Msg("closing unsolicited channel")
		c.channel.Close()
		return false
	}
	c.cancelRetry()
	c.retries = 0
	c.lastErr = nil
	c.state = StateConnected
	if c.session != nil {
		c.rejoin()
	}
	return true
}

// rejoin claims the live session's name again on a fresh channel.
func (c *Connection) rejoin() {
	name := c.session.Username
	if err := c.channel.Emit(protocol.EventJoin, protocol.JoinRequest{Username: name}); err != nil {
		c.log.Warn().Err(err).Str("user", name).Msg("rejoin after reconnect failed")
		return
	}
	c.joiningAs = name
	c.state = StateJoining
}

// scheduleRejoin retries a refused rejoin within the reconnect policy. The
// server may still hold our previous connection until it times out.
func (c *Connection) scheduleRejoin() bool {
	if c.retries >= c.policy.Attempts {
		return false
	}
	c.retries++
	c.retryGen++
	gen := c.retryGen
	c.retryTimer = c.clock.AfterFunc(c.policy.Delay, func() {
		if gen != c.retryGen || c.state != StateConnected || c.session == nil {
			return
		}
		c.retryTimer = nil
		c.rejoin()
	})
	return true
}

// handleDown reports whether the drop was unexpected and should be surfaced.
func (c *Connection) handleDown(err error) bool {
	switch c.state {
	case StateDisconnected, StateFailed:
		return false
	}
	c.lastErr = err
	if c.state == StateJoining && c.session == nil {
		c.joiningAs = ""
	}
	c.state = StateDisconnected
	c.scheduleRetry()
	return true
}

func (c *Connection) scheduleRetry() {
	if c.retries >= c.policy.Attempts {
		c.state = StateFailed
		c.log.Warn().Err(c.lastErr).Int("attempts", c.retries).Msg("giving up on channel")
		return
	}
	c.retries++
	c.retryGen++
	gen := c.retryGen
	c.retryTimer = c.clock.AfterFunc(c.policy.Delay, func() {
		if gen != c.retryGen || c.state != StateDisconnected {
			return
		}
		c.retryTimer = nil
		c.dial()
	})
}

func (c *Connection) cancelRetry() {
	c.retryGen++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// handleJoinSuccess returns true when a brand-new session was created.
func (c *Connection) handleJoinSuccess() bool {
	if c.state != StateJoining {
		return false
	}
	c.state = StateJoined
	c.retries = 0
	if c.session != nil {
		c.joiningAs = ""
		return false
	}
	c.session = &Session{Username: c.joiningAs, JoinedAt: c.clock.Now()}
	c.joiningAs = ""
	return true
}

func (c *Connection) handleJoinError(reason string) error {
	if c.state != StateJoining {
		return nil
	}
	c.state = StateConnected
	c.joiningAs = ""
	if reason == "" {
		reason = "Failed to join chat"
	}
	if c.session == nil {
		return channelErr(reason, nil)
	}
	// a refused rejoin keeps the session; only Leave ends it
	c.log.Warn().Str("user", c.session.Username).Str("reason", reason).Int("retry", c.retries).Msg("rejoin refused")
	if c.scheduleRejoin() {
		return channelErr(reason+". Retrying...", nil)
	}
	c.cancelRetry()
	c.channel.Close()
	c.state = StateFailed
	return channelErr(reason, nil)
}
