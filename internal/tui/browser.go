package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type fileItem struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// browseDirectory lists subdirectories and image files under path.
func browseDirectory(path string) ([]fileItem, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	items := make([]fileItem, 0, len(entries)+1)
	if parent := filepath.Dir(path); parent != path {
		items = append(items, fileItem{Name: "..", Path: parent, IsDir: true})
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !entry.IsDir() && !imageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		item := fileItem{
			Name:  entry.Name(),
			Path:  filepath.Join(path, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if !entry.IsDir() {
			if info, err := entry.Info(); err == nil {
				item.Size = info.Size()
			}
		}
		items = append(items, item)
	}

	// directories first, then files, both alphabetically; ".." stays on top
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Name == ".." || items[j].Name == ".." {
			return items[i].Name == ".."
		}
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

// defaultBrowsePath prefers ~/Pictures, then ~/Downloads, then home.
func defaultBrowsePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		for _, sub := range []string{"Pictures", "Downloads"} {
			candidate := filepath.Join(home, sub)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		return home
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// browser is the state of the photo picker.
type browser struct {
	dir      string
	items    []fileItem
	selected int
	err      error
}

func (b *browser) open(dir string) {
	items, err := browseDirectory(dir)
	if err != nil {
		b.err = err
		return
	}
	b.dir = dir
	b.items = items
	b.selected = 0
	b.err = nil
}

func (b *browser) move(delta int) {
	if len(b.items) == 0 {
		return
	}
	b.selected = (b.selected + delta + len(b.items)) % len(b.items)
}

func (b *browser) current() (fileItem, bool) {
	if b.selected < 0 || b.selected >= len(b.items) {
		return fileItem{}, false
	}
	return b.items[b.selected], true
}
