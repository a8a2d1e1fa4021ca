package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatnest/internal/protocol"
)

const (
	// DefaultConnectTimeout bounds a single dial, handshake included.
	DefaultConnectTimeout = 10 * time.Second

	writeWait    = 10 * time.Second
	maxFrameSize = 32 << 20
)

var ErrNotConnected = errors.New("websocket not connected")

// Socket is a websocket implementation of chat.Channel. Lifecycle changes and
// decoded frames are handed to deliver, which must hand them to the chat loop.
// Events from a connection that was closed or replaced are never delivered.
type Socket struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer
	deliver func(protocol.Event)
	log     zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	gen  uint64

	writeMu sync.Mutex
}

type Option func(*Socket)

func WithConnectTimeout(d time.Duration) Option {
	return func(s *Socket) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Socket) { s.log = log }
}

func New(wsURL string, deliver func(protocol.Event), opts ...Option) (*Socket, error) {
	if err := validateURL(wsURL); err != nil {
		return nil, err
	}
	s := &Socket{
		url:     wsURL,
		timeout: DefaultConnectTimeout,
		deliver: deliver,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dialer = &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: s.timeout,
	}
	return s, nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	return nil
}

func (s *Socket) URL() string {
	return s.url
}

// Dial starts one connection attempt in the background, replacing any
// connection that is still open.
func (s *Socket) Dial() {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	old := s.conn
	s.conn = nil
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	go s.run(gen)
}

func (s *Socket) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Socket) run(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	cancel()
	if err != nil {
		s.log.Debug().Err(err).Str("url", s.url).Msg("dial failed")
		if s.current(gen) {
			s.deliver(protocol.ChannelDown{Err: err})
		}
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	conn.SetReadLimit(maxFrameSize)
	s.deliver(protocol.ChannelUp{})

	for {
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			if s.release(gen, conn) {
				s.log.Debug().Err(err).Msg("read loop ended")
				s.deliver(protocol.ChannelDown{Err: err})
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		ev, err := protocol.Decode(frame)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		if !s.current(gen) {
			return
		}
		s.deliver(ev)
	}
}

// release forgets conn if it is still the live one and reports whether the
// caller should announce the drop.
func (s *Socket) release(gen uint64, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	if s.conn == conn {
		s.conn = nil
	}
	_ = conn.Close()
	return true
}

// Close shuts the connection without producing a ChannelDown.
func (s *Socket) Close() {
	s.mu.Lock()
	s.gen++
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return
	}
	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	_ = conn.Close()
}

func (s *Socket) Emit(event string, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}
