package app

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeJoinPath(t *testing.T) {
	cases := map[string]string{
		"":       "/ws",
		"ws":     "/ws",
		"/chat":  "/chat",
		"a/b/ws": "/a/b/ws",
	}
	for in, want := range cases {
		if got := NormalizeJoinPath(in); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}

func TestDefaultPathsHonourEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHATNEST_DATA_DIR", dir)
	t.Setenv("CHATNEST_DB_PATH", "")
	t.Setenv("CHATNEST_UPLOAD_DIR", "")
	if got := DefaultDBPath(); got != filepath.Join(dir, "chatnest.db") {
		t.Fatalf("db path %s", got)
	}
	if got := DefaultUploadDir(); got != filepath.Join(dir, "photos") {
		t.Fatalf("upload dir %s", got)
	}
	t.Setenv("CHATNEST_DB_PATH", "/tmp/other.db")
	if got := DefaultDBPath(); got != "/tmp/other.db" {
		t.Fatalf("db path override %s", got)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.json")
	empty, err := LoadProfile(path)
	if err != nil || empty.Username != "" {
		t.Fatalf("missing profile: %+v %v", empty, err)
	}
	if err := SaveProfile(path, Profile{Username: "Ann", ServerURL: "ws://h/ws"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Username != "Ann" || got.ServerURL != "ws://h/ws" {
		t.Fatalf("got %+v", got)
	}
}

func TestRunServerLifecycle(t *testing.T) {
	dir := t.TempDir()
	handle, err := RunServer(context.Background(), ServerConfig{
		Addr:      "127.0.0.1:0",
		DBPath:    filepath.Join(dir, "data", "chatnest.db"),
		UploadDir: filepath.Join(dir, "photos"),
	})
	if err != nil {
		t.Fatalf("RunServer: %v", err)
	}

	resp, err := http.Get("http://" + handle.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handle.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := handle.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestRunServerRequiresDB(t *testing.T) {
	if _, err := RunServer(context.Background(), ServerConfig{Addr: "127.0.0.1:0"}); err == nil {
		t.Fatalf("expected error without db path")
	}
}
