package fractus

import (
	"log/slog"

	"github.com/rawbytedev/fractus/pkg/decode"
	"github.com/rawbytedev/fractus/pkg/encode"
	"github.com/rawbytedev/fractus/pkg/schema"
)

// DefaultInitialCapacity is the starting size of buffers Marshal allocates.
const DefaultInitialCapacity = 256

// Config holds the settings shared by writes and reads.
type Config struct {
	// MaxDepth bounds table nesting for schemas that can recurse.
	MaxDepth int
	// FileIdentifier is written at bytes 4..8 and, on reads, required there.
	FileIdentifier string
	Logger         *slog.Logger
	// InitialCapacity sizes the buffers Marshal and Fractus allocate.
	InitialCapacity int
}

type Option func(*Config)

func WithMaxDepth(n int) Option {
	return func(c *Config) { c.MaxDepth = n }
}

// WithFileIdentifier sets the 4-byte identifier written after the root
// offset and checked by Parse and Validate.
func WithFileIdentifier(id string) Option {
	return func(c *Config) { c.FileIdentifier = id }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func WithInitialCapacity(n int) Option {
	return func(c *Config) { c.InitialCapacity = n }
}

func newConfig(opts []Option) Config {
	c := Config{
		MaxDepth:        schema.DefaultMaxDepth,
		InitialCapacity: DefaultInitialCapacity,
	}
	for _, o := range opts {
		o(&c)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = schema.DefaultMaxDepth
	}
	if c.InitialCapacity < 0 {
		c.InitialCapacity = 0
	}
	return c
}

func (c Config) encodeOptions() encode.Options {
	return encode.Options{MaxDepth: c.MaxDepth, FileIdentifier: c.FileIdentifier, Logger: c.Logger}
}

func (c Config) decodeOptions() decode.Options {
	return decode.Options{MaxDepth: c.MaxDepth, FileIdentifier: c.FileIdentifier, Logger: c.Logger}
}
