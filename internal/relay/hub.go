package relay

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chatnest/internal/chat"
	"chatnest/internal/protocol"
	"chatnest/internal/storage"
)

const (
	DefaultHistoryLimit = 50
	DefaultKeepMessages = 1000

	messageTimeLayout  = "03:04 PM"
	presenceTimeLayout = "15:04:05"
	storeTimeout       = 5 * time.Second
)

// user-facing rejections; clients show these verbatim
const (
	msgAlreadyJoined = "Already joined"
	msgNameTaken     = "Username already taken"
	msgNotJoined     = "Join the chat before sending messages"
	msgEmpty         = "Please enter a message"
	msgMarkup        = "Messages cannot contain HTML markup"
	msgBadImageURL   = "Please enter a valid image URL"
	msgBadType       = "Unsupported message type"
	msgTooFast       = "You're sending messages too quickly. Please wait a moment and try again."
	msgStoreFailed   = "Message could not be saved"
)

// Hub tracks live connections and the single shared room.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	users   map[string]*Client

	store        *storage.Store
	metrics      *Metrics
	limiter      *RateLimiter
	historyLimit int
	keepMessages int
	now          func() time.Time
}

func NewHub(store *storage.Store, metrics *Metrics, limiter *RateLimiter) *Hub {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Hub{
		clients:      make(map[*Client]struct{}),
		users:        make(map[string]*Client),
		store:        store,
		metrics:      metrics,
		limiter:      limiter,
		historyLimit: DefaultHistoryLimit,
		keepMessages: DefaultKeepMessages,
		now:          time.Now,
	}
}

// Attach registers conn and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn) *Client {
	c := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.IncConn()
	go c.writePump()
	go c.readPump()
	return c
}

// Online returns the number of joined users.
func (h *Hub) Online() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.closeLocked(c)
	name := c.username
	if name != "" && h.users[name] == c {
		delete(h.users, name)
		h.broadcastLocked(protocol.EventUserLeft, protocol.Presence{Username: name, Timestamp: h.now().Format(presenceTimeLayout)}, nil)
		h.broadcastLocked(protocol.EventUpdateUsers, h.rosterLocked(), nil)
		h.metrics.SetOnline(len(h.users))
	}
	h.mu.Unlock()
	h.metrics.DecConn()
	if h.limiter != nil {
		h.limiter.Forget(c.id)
	}
	if name != "" {
		log.Info().Str("user", name).Msg("left")
	}
}

func (h *Hub) handle(c *Client, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoin:
		var req protocol.JoinRequest
		if err := env.Decode(&req); err != nil {
			h.reply(c, protocol.EventJoinError, protocol.JoinError{Error: "Invalid join request"})
			return
		}
		h.join(c, strings.TrimSpace(req.Username))
	case protocol.EventSendMessage:
		var req protocol.SendMessage
		if err := env.Decode(&req); err != nil {
			h.reply(c, protocol.EventServerError, protocol.ServerError{Error: "Invalid message"})
			return
		}
		h.message(c, req)
	case protocol.EventTyping:
		var req protocol.TypingRequest
		if err := env.Decode(&req); err != nil {
			return
		}
		h.typing(c, req.IsTyping)
	default:
		log.Debug().Str("event", env.Event).Str("conn", c.id).Msg("ignoring event")
	}
}

func (h *Hub) join(c *Client, name string) {
	if err := chat.ValidateUsername(name); err != nil {
		h.reply(c, protocol.EventJoinError, protocol.JoinError{Error: err.Error()})
		return
	}
	history := h.history()

	h.mu.Lock()
	defer h.mu.Unlock()
	if c.username != "" {
		h.sendLocked(c, protocol.EventJoinError, protocol.JoinError{Error: msgAlreadyJoined})
		return
	}
	if _, taken := h.users[name]; taken {
		h.sendLocked(c, protocol.EventJoinError, protocol.JoinError{Error: msgNameTaken})
		return
	}
	now := h.now()
	c.username = name
	c.joinedAt = now.Format(presenceTimeLayout)
	h.users[name] = c
	h.metrics.IncJoin()
	h.metrics.SetOnline(len(h.users))

	h.sendLocked(c, protocol.EventJoinSuccess, nil)
	h.sendLocked(c, protocol.EventMessageHistory, history)
	h.broadcastLocked(protocol.EventUserJoined, protocol.Presence{Username: name, Timestamp: c.joinedAt}, nil)
	h.broadcastLocked(protocol.EventUpdateUsers, h.rosterLocked(), nil)
	log.Info().Str("user", name).Msg("joined")
}

func (h *Hub) history() []protocol.ChatMessage {
	out := []protocol.ChatMessage{}
	if h.store == nil {
		return out
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	rows, err := h.store.RecentMessages(ctx, h.historyLimit)
	if err != nil {
		log.Error().Err(err).Msg("load history")
		return out
	}
	for _, row := range rows {
		out = append(out, toWire(row))
	}
	return out
}

func (h *Hub) message(c *Client, req protocol.SendMessage) {
	name := h.joinedName(c)
	if name == "" {
		h.reply(c, protocol.EventServerError, protocol.ServerError{Error: msgNotJoined})
		return
	}
	if h.limiter != nil && !h.limiter.Allow(c.id) {
		h.metrics.IncRateLimited()
		h.reply(c, protocol.EventServerError, protocol.ServerError{Error: msgTooFast})
		return
	}
	msg, reason := h.buildMessage(name, req)
	if reason != "" {
		h.reply(c, protocol.EventServerError, protocol.ServerError{Error: reason})
		return
	}
	if h.store != nil {
		if err := h.persist(msg); err != nil {
			log.Error().Err(err).Str("user", name).Msg("persist message")
			h.reply(c, protocol.EventServerError, protocol.ServerError{Error: msgStoreFailed})
			return
		}
	}
	h.metrics.IncMessage()

	h.mu.Lock()
	h.broadcastLocked(protocol.EventNewMessage, toWire(msg), nil)
	h.mu.Unlock()
}

func (h *Hub) buildMessage(name string, req protocol.SendMessage) (storage.Message, string) {
	body := strings.TrimSpace(req.Message)
	if body == "" {
		return storage.Message{}, msgEmpty
	}
	msg := storage.Message{
		ID:        uuid.NewString(),
		Username:  name,
		Body:      body,
		Type:      req.Type,
		Timestamp: h.now().Format(messageTimeLayout),
	}
	switch req.Type {
	case "", protocol.TypeText:
		msg.Type = protocol.TypeText
		if hasMarkup(body) {
			return storage.Message{}, msgMarkup
		}
	case protocol.TypePhoto, protocol.TypeGIF:
		if !chat.IsImageURL(body) && !h.isStoredPhoto(body) {
			return storage.Message{}, msgBadImageURL
		}
		msg.PhotoURL = body
	default:
		return storage.Message{}, msgBadType
	}
	return msg, ""
}

// isStoredPhoto reports whether link points at a photo this relay saved.
func (h *Hub) isStoredPhoto(link string) bool {
	if h.store == nil {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	id, ok := strings.CutPrefix(u.Path, PhotosPath+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	photo, err := h.store.GetPhoto(ctx, id)
	return err == nil && photo != nil
}

func (h *Hub) persist(msg storage.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.AppendMessage(ctx, msg); err != nil && !errors.Is(err, storage.ErrMessageExists) {
		return err
	}
	if h.keepMessages > 0 {
		if _, err := h.store.TrimMessages(ctx, h.keepMessages); err != nil {
			log.Warn().Err(err).Msg("trim history")
		}
	}
	return nil
}

func (h *Hub) typing(c *Client, isTyping bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.username == "" {
		return
	}
	h.broadcastLocked(protocol.EventUserTyping, protocol.UserTyping{Username: c.username, IsTyping: isTyping}, c)
}

func (h *Hub) joinedName(c *Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return c.username
}

func (h *Hub) reply(c *Client, event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendLocked(c, event, payload)
}

func (h *Hub) rosterLocked() []protocol.User {
	users := make([]protocol.User, 0, len(h.users))
	for _, c := range h.users {
		users = append(users, protocol.User{Username: c.username, JoinedAt: c.joinedAt})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// broadcastLocked sends to every joined client except skip.
func (h *Hub) broadcastLocked(event string, payload any, skip *Client) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode broadcast")
		return
	}
	for _, c := range h.users {
		if c == skip {
			continue
		}
		h.queueLocked(c, frame)
	}
}

func (h *Hub) sendLocked(c *Client, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode reply")
		return
	}
	h.queueLocked(c, frame)
}

// queueLocked drops a client that cannot keep up; its writePump then closes the socket.
func (h *Hub) queueLocked(c *Client, frame []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Warn().Str("conn", c.id).Str("user", c.username).Msg("send buffer full, dropping client")
		h.closeLocked(c)
	}
}

func (h *Hub) closeLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func toWire(m storage.Message) protocol.ChatMessage {
	return protocol.ChatMessage{
		ID:        protocol.MessageID(m.ID),
		Username:  m.Username,
		Message:   m.Body,
		Timestamp: m.Timestamp,
		Type:      m.Type,
		PhotoURL:  m.PhotoURL,
	}
}
