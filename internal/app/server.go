package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"chatnest/internal/relay"
	"chatnest/internal/storage"
)

// ServerHandle represents a running relay instance.
type ServerHandle struct {
	addr   string
	server *http.Server
	store  *storage.Store
	done   chan struct{}
	err    error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the SQLite store, runs migrations, wires the relay and
// starts serving in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	cfg.Path = NormalizeJoinPath(cfg.Path)
	if cfg.UploadDir == "" {
		cfg.UploadDir = DefaultUploadDir()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	srv, err := relay.NewServer(store, relay.Config{
		WSPath:        cfg.Path,
		UploadDir:     cfg.UploadDir,
		MaxPhotoBytes: cfg.MaxPhotoBytes,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &ServerHandle{
		addr:   listener.Addr().String(),
		server: httpServer,
		store:  store,
		done:   make(chan struct{}),
	}

	go func() {
		if ctx == nil {
			return
		}
		select {
		case <-ctx.Done():
		case <-handle.done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	go handle.serve(listener)

	log.Info().Str("addr", handle.addr).Str("path", cfg.Path).Str("db", cfg.DBPath).Str("uploads", cfg.UploadDir).Msg("relay listening")
	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if err := h.store.Close(); err != nil {
		log.Error().Err(err).Msg("store close")
	}
	h.err = err
}
