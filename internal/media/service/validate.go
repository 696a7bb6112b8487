package service

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	DefaultTitle   = "Untitled Upload"
	minTitleLength = 3
	maxTitleLength = 100
)

var allowedExtensions = map[string]struct{}{
	"mp4": {}, "avi": {}, "mov": {}, "mkv": {},
	"mp3": {}, "ogg": {}, "flac": {}, "wav": {},
}

// AllowedExtension reports whether filename ends in one of the accepted container extensions.
func AllowedExtension(filename string) bool {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return false
	}
	_, ok := allowedExtensions[strings.ToLower(ext)]
	return ok
}

// ValidateTitle trims title and checks its length and character set.
// Only printable ASCII is accepted: letters, digits, punctuation and plain spaces.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if len(title) < minTitleLength || len(title) > maxTitleLength {
		return "", fmt.Errorf("%w: title should be at least %d characters long and within %d characters",
			ErrInvalidTitle, minTitleLength, maxTitleLength)
	}
	for i := 0; i < len(title); i++ {
		if c := title[i]; c < 0x20 || c > 0x7e {
			return "", fmt.Errorf("%w: title contains disallowed characters", ErrInvalidTitle)
		}
	}
	return title, nil
}
