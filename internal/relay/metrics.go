package relay

import (
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	joins       atomic.Uint64
	messages    atomic.Uint64
	uploads     atomic.Uint64
	rateLimited atomic.Uint64
	activeConns atomic.Int64
	onlineUsers atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncJoin()        { m.joins.Add(1) }
func (m *Metrics) IncMessage()     { m.messages.Add(1) }
func (m *Metrics) IncUpload()      { m.uploads.Add(1) }
func (m *Metrics) IncRateLimited() { m.rateLimited.Add(1) }
func (m *Metrics) IncConn()        { m.activeConns.Add(1) }
func (m *Metrics) DecConn()        { m.activeConns.Add(-1) }

func (m *Metrics) SetOnline(n int) {
	m.onlineUsers.Store(int64(n))
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"joins_total":        m.joins.Load(),
		"messages_total":     m.messages.Load(),
		"uploads_total":      m.uploads.Load(),
		"rate_limited_total": m.rateLimited.Load(),
		"active_connections": m.activeConns.Load(),
		"online_users":       m.onlineUsers.Load(),
	})
}
