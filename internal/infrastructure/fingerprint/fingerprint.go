// Package fingerprint computes content fingerprints for deduplication.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// SHA256 fingerprints files by hashing their bytes. The same bytes always
// produce the same fingerprint regardless of filename.
type SHA256 struct{}

func New() *SHA256 {
	return &SHA256{}
}

func (SHA256) File(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for fingerprint: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes fingerprints an in-memory payload; used by tests and by callers
// that already hold the content.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
