package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minUsernameLen = 2
	maxUsernameLen = 20
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\s]+$`)
	imageURLPattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)(\?.*)?$`)
	gifURLPattern   = regexp.MustCompile(`(?i)\.gif(\?.*)?$`)
)

// ValidateUsername applies the local join rules so obviously bad names never
// cost a round trip.
func ValidateUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minUsernameLen || n > maxUsernameLen {
		return invalid("Username must be 2-20 characters")
	}
	if !usernamePattern.MatchString(name) {
		return invalid("Username can only contain letters, numbers, spaces, and underscores")
	}
	return nil
}

// IsImageURL reports whether link looks like something an image message can carry.
func IsImageURL(link string) bool {
	return imageURLPattern.MatchString(link) ||
		strings.HasPrefix(link, "data:image") ||
		strings.Contains(link, "imgur") ||
		strings.Contains(link, "giphy")
}

// photoTypes are the image formats a photo upload may carry.
var photoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// IsPhotoType reports whether contentType is an uploadable photo format.
// Parameters such as "; charset=" are ignored.
func IsPhotoType(contentType string) bool {
	_, ok := PhotoExtension(contentType)
	return ok
}

// PhotoExtension returns the file extension stored photos of contentType get.
func PhotoExtension(contentType string) (string, bool) {
	mediaType, _, _ := strings.Cut(contentType, ";")
	ext, ok := photoTypes[strings.ToLower(strings.TrimSpace(mediaType))]
	return ext, ok
}

func kindForImageURL(link string) Kind {
	if gifURLPattern.MatchString(link) || strings.HasPrefix(link, "data:image/gif") || strings.Contains(link, "giphy") {
		return KindGIF
	}
	return KindPhoto
}
