package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Feed yields events in delivery order. Next returns io.EOF once the feed
// is drained.
type Feed interface {
	Next(ctx context.Context) (*Envelope, error)
}

// NDJSONFeed reads one JSON envelope per line, the format the CLI accepts
// from files and stdin. Blank lines and lines starting with # are skipped.
type NDJSONFeed struct {
	scanner *bufio.Scanner
	line    int
}

// NewNDJSONFeed creates a feed over r.
func NewNDJSONFeed(r io.Reader) *NDJSONFeed {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &NDJSONFeed{scanner: scanner}
}

// Next returns the next envelope in the file.
func (f *NDJSONFeed) Next(ctx context.Context) (*Envelope, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !f.scanner.Scan() {
			if err := f.scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading feed line %d: %w", f.line+1, err)
			}
			return nil, io.EOF
		}
		f.line++
		text := strings.TrimSpace(f.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var envelope Envelope
		if err := json.Unmarshal([]byte(text), &envelope); err != nil {
			return nil, fmt.Errorf("feed line %d: %w", f.line, err)
		}
		return &envelope, nil
	}
}
