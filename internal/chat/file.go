package chat

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type localPhoto struct {
	path        string
	contentType string
	size        int64
}

// OpenPhotoFile stats path and resolves its declared content type, first from
// the extension and then by sniffing the leading bytes.
func OpenPhotoFile(path string) (PhotoFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat photo: %w", err)
	}
	if info.IsDir() {
		return nil, invalid("Please select an image file (jpg, png, gif, webp)")
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		mt, err := mimetype.DetectFile(path)
		if err != nil {
			return nil, fmt.Errorf("detect photo type: %w", err)
		}
		contentType = mt.String()
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return &localPhoto{path: path, contentType: contentType, size: info.Size()}, nil
}

func (f *localPhoto) Name() string {
	return filepath.Base(f.path)
}

func (f *localPhoto) ContentType() string {
	return f.contentType
}

func (f *localPhoto) Size() int64 {
	return f.size
}

func (f *localPhoto) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}
