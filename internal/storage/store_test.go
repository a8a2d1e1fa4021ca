package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMessageHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for i := 1; i <= 5; i++ {
		msg := Message{ID: fmt.Sprintf("m%d", i), Username: "alice", Body: fmt.Sprintf("hello %d", i), Type: "text", Timestamp: "10:00 AM"}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}
	if err := store.AppendMessage(ctx, Message{ID: "m3", Username: "bob", Body: "dup", Type: "text", Timestamp: "10:01 AM"}); !errors.Is(err, ErrMessageExists) {
		t.Fatalf("expected ErrMessageExists, got %v", err)
	}

	recent, err := store.RecentMessages(ctx, 3)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != "m3" || recent[2].ID != "m5" {
		t.Fatalf("unexpected recent: %+v", recent)
	}
}

func TestTrimMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := store.AppendMessage(ctx, Message{ID: fmt.Sprintf("id-%d", i), Username: "a", Body: "x", Type: "text", Timestamp: "t"}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	removed, err := store.TrimMessages(ctx, 20)
	if err != nil || removed != 0 {
		t.Fatalf("trim under limit: removed=%d err=%v", removed, err)
	}
	removed, err = store.TrimMessages(ctx, 4)
	if err != nil {
		t.Fatalf("TrimMessages: %v", err)
	}
	if removed != 6 {
		t.Fatalf("removed %d, want 6", removed)
	}
	count, err := store.CountMessages(ctx)
	if err != nil || count != 4 {
		t.Fatalf("count=%d err=%v", count, err)
	}
	recent, _ := store.RecentMessages(ctx, 10)
	if recent[0].ID != "id-6" {
		t.Fatalf("oldest kept %s, want id-6", recent[0].ID)
	}
}

func TestPhotoMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	photo := Photo{ID: "p1", ContentType: "image/png", SizeBytes: 42, SHA256: "abc", StoragePath: "p1.png"}
	if err := store.SavePhoto(ctx, photo); err != nil {
		t.Fatalf("SavePhoto: %v", err)
	}
	got, err := store.GetPhoto(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPhoto: %v", err)
	}
	if got == nil || got.ContentType != "image/png" || got.SizeBytes != 42 {
		t.Fatalf("unexpected photo: %+v", got)
	}
	same, err := store.PhotoBySHA256(ctx, "abc")
	if err != nil || same == nil || same.ID != "p1" {
		t.Fatalf("PhotoBySHA256: %+v err=%v", same, err)
	}
	missing, err := store.GetPhoto(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil photo, got %+v err=%v", missing, err)
	}
}

func TestBuildDSN(t *testing.T) {
	cases := map[string]string{
		"chat.db":                     "file:chat.db?_pragma=busy_timeout=5000&_pragma=foreign_keys=ON",
		"sqlite://file:x?mode=memory": "file:x?mode=memory&_pragma=busy_timeout=5000&_pragma=foreign_keys=ON",
	}
	for in, want := range cases {
		if got := buildDSN(in); got != want {
			t.Fatalf("buildDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "sqlite://file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
