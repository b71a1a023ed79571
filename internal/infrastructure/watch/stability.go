// Package watch observes the ingestion root and decides when files are
// safe to read.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/facturo/ingesta/internal/core/domain"
)

// WaitSteady polls sample until it returns the same value on two
// consecutive polls taken interval apart, or until maxWait elapses. It is
// the generic form of the file stability check and can wait on any
// comparable observation.
func WaitSteady[T comparable](ctx context.Context, interval, maxWait time.Duration, sample func() (T, error)) (T, error) {
	var zero T

	deadline := time.Now().Add(maxWait)
	prev, err := sample()
	if err != nil {
		return zero, err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-ticker.C:
		}

		cur, err := sample()
		if err != nil {
			return zero, err
		}
		if cur == prev {
			return cur, nil
		}
		prev = cur

		if time.Now().After(deadline) {
			return zero, fmt.Errorf("still changing after %s", maxWait)
		}
	}
}

type fileSample struct {
	size    int64
	modTime time.Time
}

// Stability waits for a file's size and mtime to hold across consecutive
// samples. For PDFs it additionally verifies the file parses, so a
// partially written PDF keeps counting as unstable.
type Stability struct {
	interval time.Duration
	maxWait  time.Duration
	sniffPDF bool
}

func NewStability(interval, maxWait time.Duration, sniffPDF bool) *Stability {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxWait < interval {
		maxWait = 10 * interval
	}
	return &Stability{interval: interval, maxWait: maxWait, sniffPDF: sniffPDF}
}

func (s *Stability) WaitStable(ctx context.Context, path string) error {
	_, err := WaitSteady(ctx, s.interval, s.maxWait, func() (fileSample, error) {
		info, err := os.Stat(path)
		if err != nil {
			return fileSample{}, fmt.Errorf("stat %s: %w", path, err)
		}
		return fileSample{size: info.Size(), modTime: info.ModTime()}, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.WrapError(domain.ErrNeverStabilized, "stability gate", err)
	}

	if s.sniffPDF && strings.EqualFold(filepath.Ext(path), ".pdf") {
		if err := sniffPDF(path); err != nil {
			return domain.WrapError(domain.ErrNeverStabilized, "pdf sniff", err)
		}
	}
	return nil
}

// sniffPDF rejects truncated uploads before they reach object storage.
func sniffPDF(path string) error {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	if reader.NumPage() < 1 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}
