package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultMaxSize is the log file size at which the file is truncated.
const DefaultMaxSize = 10 << 20

// CappedFile is an append-only log file that starts over once it would grow
// past its limit. Writes are dropped while it is disabled.
type CappedFile struct {
	mu      sync.Mutex
	f       *os.File
	size    int64
	limit   int64
	enabled bool
}

// OpenCapped opens or creates path for appending. A limit <= 0 means
// [DefaultMaxSize]. The file starts enabled.
func OpenCapped(path string, limit int64) (*CappedFile, error) {
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	return &CappedFile{f: f, size: info.Size(), limit: limit, enabled: true}, nil
}

// Write appends p, truncating the file first if p would take it past the limit.
func (c *CappedFile) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || c.f == nil {
		return len(p), nil
	}

	if c.size+int64(len(p)) > c.limit {
		if err := c.f.Truncate(0); err != nil {
			return 0, fmt.Errorf("truncate log file: %w", err)
		}
		c.size = 0
	}

	n, err := c.f.Write(p)
	c.size += int64(n)
	return n, err
}

// SetEnabled turns writing on or off.
func (c *CappedFile) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

// Enabled reports whether writes reach the file.
func (c *CappedFile) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Size returns the current file size as tracked by the writer.
func (c *CappedFile) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Close closes the file. Later writes are dropped.
func (c *CappedFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}
