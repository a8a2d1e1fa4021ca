package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chatnest/internal/chat"
	"chatnest/internal/protocol"
	"chatnest/internal/storage"
)

const (
	DefaultMessageBurst  = 5
	DefaultMessageWindow = 3 * time.Second
	DefaultUploadBurst   = 10
	DefaultUploadWindow  = time.Minute

	PhotosPath = "/photos"
	uploadPath = "/api/save_photo"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Config tunes the relay. Zero values fall back to the defaults above.
type Config struct {
	WSPath        string
	UploadDir     string
	MaxPhotoBytes int64
	MessageBurst  int
	MessageWindow time.Duration
	UploadBurst   int
	UploadWindow  time.Duration
	HistoryLimit  int
	KeepMessages  int
}

// Server serves the chat websocket and the photo endpoints.
type Server struct {
	hub     *Hub
	photos  *PhotoStore
	metrics *Metrics
	uploads *RateLimiter
	wsPath  string
	maxBody int64
}

func NewServer(store *storage.Store, cfg Config) (*Server, error) {
	if store == nil {
		return nil, errors.New("relay: store is required")
	}
	if cfg.WSPath == "" {
		cfg.WSPath = "/ws"
	}
	if cfg.MaxPhotoBytes <= 0 {
		cfg.MaxPhotoBytes = chat.MaxPhotoBytes
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = DefaultMessageBurst
	}
	if cfg.MessageWindow <= 0 {
		cfg.MessageWindow = DefaultMessageWindow
	}
	if cfg.UploadBurst <= 0 {
		cfg.UploadBurst = DefaultUploadBurst
	}
	if cfg.UploadWindow <= 0 {
		cfg.UploadWindow = DefaultUploadWindow
	}
	photos, err := NewPhotoStore(cfg.UploadDir, store, cfg.MaxPhotoBytes)
	if err != nil {
		return nil, err
	}
	metrics := NewMetrics()
	hub := NewHub(store, metrics, NewRateLimiter(cfg.MessageBurst, cfg.MessageWindow))
	if cfg.HistoryLimit > 0 {
		hub.historyLimit = cfg.HistoryLimit
	}
	if cfg.KeepMessages != 0 {
		hub.keepMessages = cfg.KeepMessages
	}
	return &Server{
		hub:     hub,
		photos:  photos,
		metrics: metrics,
		uploads: NewRateLimiter(cfg.UploadBurst, cfg.UploadWindow),
		wsPath:  cfg.WSPath,
		// base64 inflates by 4/3, plus room for the JSON envelope
		maxBody: cfg.MaxPhotoBytes/3*4 + 64*1024,
	}, nil
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the relay router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get(s.wsPath, s.ServeWS)
	r.Post(uploadPath, s.HandleSavePhoto)
	r.Get(PhotosPath+"/{id}", s.HandlePhoto)
	r.Handle("/metrics", s.metrics)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "online": s.hub.Online()})
	})
	return r
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", clientIP(r)).Msg("upgrade")
		return
	}
	c := s.hub.Attach(conn)
	log.Debug().Str("conn", c.id).Str("remote", clientIP(r)).Msg("connected")
}

func (s *Server) HandleSavePhoto(w http.ResponseWriter, r *http.Request) {
	if !s.uploads.Allow(clientIP(r)) {
		s.metrics.IncRateLimited()
		writePhotoError(w, http.StatusTooManyRequests, "Too many uploads. Please wait a moment and try again.")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	var req protocol.SavePhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writePhotoError(w, http.StatusRequestEntityTooLarge, errImageTooBig.Error())
			return
		}
		writePhotoError(w, http.StatusBadRequest, errInvalidImage.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	photo, err := s.photos.Save(ctx, req.Photo)
	switch {
	case errors.Is(err, errImageTooBig):
		writePhotoError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, errInvalidImage):
		writePhotoError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Msg("save photo")
		writePhotoError(w, http.StatusInternalServerError, "Failed to upload photo")
		return
	}
	s.metrics.IncUpload()
	log.Info().Str("photo", photo.ID).Int64("bytes", photo.SizeBytes).Msg("photo saved")
	writeJSON(w, http.StatusOK, protocol.SavePhotoResponse{Success: true, PhotoURL: PhotosPath + "/" + photo.ID})
}

func (s *Server) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	photo, f, err := s.photos.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.Error().Err(err).Msg("open photo")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if photo == nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", photo.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	http.ServeContent(w, r, photo.ID, photo.UploadedAt, f)
}

func writePhotoError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.SavePhotoResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
