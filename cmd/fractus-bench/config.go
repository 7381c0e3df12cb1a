package main

import (
	"log/slog"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/pkg/decode"
)

// Config drives one benchmark run. Every field can be set from the
// environment and most can be overridden by a flag.
type Config struct {
	Iterations int           `env:"ITERATIONS" envDefault:"10000"`
	Workers    int           `env:"WORKERS"    envDefault:"4"`
	Strategy   string        `env:"STRATEGY"   envDefault:"lazy"`
	Pprof      string        `env:"PPROF_ADDR"`
	HeapFile   string        `env:"HEAP_PROFILE"`
	Hold       time.Duration `env:"HOLD"`
	LogLevel   slog.Level    `env:"LOG_LEVEL"  envDefault:"info"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "FRACTUS_"}); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return &cfg, nil
}

func (c *Config) validate() (decode.Strategy, error) {
	if c.Iterations <= 0 {
		return 0, errors.Newf("iterations must be positive, got %d", c.Iterations)
	}
	if c.Workers <= 0 {
		return 0, errors.Newf("workers must be positive, got %d", c.Workers)
	}
	return decode.ParseStrategy(c.Strategy)
}
