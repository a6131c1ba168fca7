package utils

import (
	"regexp"
	"strings"
)

// --- Filename Sanitization ---
var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`) // Characters invalid in Windows/Unix filenames
var consecutiveUnderscores = regexp.MustCompile(`_+`)                  // Pattern to replace multiple underscores with one
const maxFilenameStemLength = 80                                       // Max length for a sanitized filename stem

// SanitizeFilename cleans a string to be safe for use as a filename component.
// Returns the empty string when nothing usable remains; callers supply their
// own default stem in that case.
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_ ")

	if len(sanitized) > maxFilenameStemLength {
		sanitized = sanitized[:maxFilenameStemLength]
		sanitized = strings.Trim(sanitized, "_ ")
	}
	return sanitized
}
