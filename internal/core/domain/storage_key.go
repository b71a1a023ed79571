package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// BuildStorageKey derives the durable object key for a file:
// {namespace}/{year}/{month}/{day}/{filename}, using the UTC calendar date
// of the ingestion timestamp. The filename must already be sanitized.
func BuildStorageKey(namespace, filename string, ingestedAt time.Time) string {
	utc := ingestedAt.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s",
		namespace, utc.Year(), int(utc.Month()), utc.Day(), filename)
}

// DisambiguateKey appends a short fingerprint suffix before the extension
// so two unrelated files sharing a name on the same day never overwrite
// each other.
func DisambiguateKey(key, fingerprint string) string {
	suffix := fingerprint
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	ext := filepath.Ext(key)
	return strings.TrimSuffix(key, ext) + "-" + suffix + ext
}

// SanitizeFilename keeps keys predictable: anything outside letters,
// digits, dot, dash and underscore becomes an underscore.
func SanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
