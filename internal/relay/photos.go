package relay

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"chatnest/internal/chat"
	"chatnest/internal/storage"
)

var (
	errInvalidImage = errors.New("Invalid image data")
	errImageTooBig  = fmt.Errorf("Image size should be less than %dMB", chat.MaxPhotoBytes>>20)
)

// PhotoStore keeps uploaded image bytes on disk and their metadata in sqlite.
type PhotoStore struct {
	dir      string
	store    *storage.Store
	maxBytes int64
	now      func() time.Time
}

func NewPhotoStore(dir string, store *storage.Store, maxBytes int64) (*PhotoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = chat.MaxPhotoBytes
	}
	return &PhotoStore{dir: dir, store: store, maxBytes: maxBytes, now: time.Now}, nil
}

// Save decodes a base64 data URL and stores the image. Identical bytes are
// stored once and share an id.
func (p *PhotoStore) Save(ctx context.Context, dataURL string) (*storage.Photo, error) {
	data, err := p.decode(dataURL)
	if err != nil {
		return nil, err
	}
	mt := mimetype.Detect(data)
	ext, ok := chat.PhotoExtension(mt.String())
	if !ok {
		return nil, errInvalidImage
	}

	digest := sha256.Sum256(data)
	sum := hex.EncodeToString(digest[:])
	existing, err := p.store.PhotoBySHA256(ctx, sum)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if _, statErr := os.Stat(existing.StoragePath); statErr == nil {
			return existing, nil
		}
	}

	id := uuid.NewString() + ext
	path := filepath.Join(p.dir, id)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write photo: %w", err)
	}
	photo := storage.Photo{
		ID:          id,
		ContentType: mt.String(),
		SizeBytes:   int64(len(data)),
		SHA256:      sum,
		StoragePath: path,
		UploadedAt:  p.now().UTC(),
	}
	if err := p.store.SavePhoto(ctx, photo); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &photo, nil
}

func (p *PhotoStore) decode(dataURL string) ([]byte, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return nil, errInvalidImage
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > p.maxBytes+2 {
		return nil, errImageTooBig
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return nil, errInvalidImage
	}
	if int64(len(data)) > p.maxBytes {
		return nil, errImageTooBig
	}
	return data, nil
}

// Open returns the metadata and an open file for id, or nil metadata if unknown.
func (p *PhotoStore) Open(ctx context.Context, id string) (*storage.Photo, *os.File, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, nil, nil
	}
	photo, err := p.store.GetPhoto(ctx, id)
	if err != nil || photo == nil {
		return nil, nil, err
	}
	f, err := os.Open(photo.StoragePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return photo, f, nil
}
