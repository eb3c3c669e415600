package capture

import (
	"fmt"
	"time"
)

const (
	defaultFileMaxBytes int64 = 1 << 30
	defaultBufferSize         = 256 * 1024
	defaultFilePrefix         = "capture"
)

var defaultFileMaxDuration = 5 * time.Minute

// Config controls capture writer behavior.
type Config struct {
	Dir             string
	FileMaxBytes    int64
	FileMaxDuration time.Duration
	BufferSize      int
	FilePrefix      string
}

// DefaultConfig returns a baseline configuration for the capture writer.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:             dir,
		FileMaxBytes:    defaultFileMaxBytes,
		FileMaxDuration: defaultFileMaxDuration,
		BufferSize:      defaultBufferSize,
		FilePrefix:      defaultFilePrefix,
	}
}

func (c Config) withDefaults() Config {
	if c.FileMaxBytes == 0 {
		c.FileMaxBytes = defaultFileMaxBytes
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("invalid capture config: Dir is empty")
	}
	if c.FileMaxBytes <= 0 {
		return fmt.Errorf("invalid capture config: FileMaxBytes must be > 0")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid capture config: BufferSize must be > 0")
	}
	if c.FilePrefix == "" {
		return fmt.Errorf("invalid capture config: FilePrefix is empty")
	}
	return nil
}
