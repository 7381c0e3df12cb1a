// Command fractus-bench encodes and parses a sample record in a loop across
// several workers and reports throughput. It can expose net/http/pprof and
// write a heap profile when it finishes.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/rawbytedev/fractus"
)

type record struct {
	Val      []string  `fbs:"0"`
	Mod      []int8    `fbs:"1"`
	Integers []int16   `fbs:"2"`
	Float3   []float32 `fbs:"3"`
	Float6   []float64 `fbs:"4"`
	Label    string    `fbs:"5,required"`
}

func sample() *record {
	return &record{
		Val:      []string{"azerty", "hello", "world", "random"},
		Mod:      []int8{12, 10, 13, 0},
		Integers: []int16{100, 250, 300},
		Float3:   []float32{12.13, 16.23, 75.1},
		Float6:   []float64{100.5, 165.63, 153.5},
		Label:    "bench",
	}
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("fractus-bench", "error", err)
		os.Exit(1)
	}
	flag.IntVar(&cfg.Iterations, "n", cfg.Iterations, "iterations per worker")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent workers")
	flag.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "lazy, progressive, greedy or greedy-mutable")
	flag.StringVar(&cfg.Pprof, "pprof", cfg.Pprof, "serve net/http/pprof on this address")
	flag.StringVar(&cfg.HeapFile, "heap", cfg.HeapFile, "write a heap profile to this file")
	flag.DurationVar(&cfg.Hold, "hold", cfg.Hold, "keep the process alive after the run")
	flag.Parse()

	log := newLogger(os.Stderr, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("fractus-bench", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, log *slog.Logger) error {
	strategy, err := cfg.validate()
	if err != nil {
		return err
	}
	if cfg.Pprof != "" {
		srv := &http.Server{Addr: cfg.Pprof, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("pprof server stopped", "error", err)
			}
		}()
		defer srv.Close()
		log.Info("pprof listening", "addr", cfg.Pprof)
	}
	if cfg.HeapFile != "" {
		runtime.MemProfileRate = 1
	}

	v := sample()
	size, err := fractus.Size(v)
	if err != nil {
		return err
	}
	log.Debug("record sized", "bytes", size)

	var (
		ops   atomic.Int64
		bytes atomic.Int64
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		g.Go(func() error {
			codec := fractus.New(fractus.WithLogger(log))
			for i := 0; i < cfg.Iterations; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				data, err := codec.Encode(v)
				if err != nil {
					return errors.Wrapf(err, "worker %d: encode", w)
				}
				t, err := fractus.Parse[record](data, strategy)
				if err != nil {
					return errors.Wrapf(err, "worker %d: parse", w)
				}
				if _, err := t.Get("Label"); err != nil {
					return errors.Wrapf(err, "worker %d: read", w)
				}
				ops.Add(1)
				bytes.Add(int64(len(data)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	log.Info("run complete",
		"strategy", strategy.String(),
		"workers", cfg.Workers,
		"ops", ops.Load(),
		"bytes", bytes.Load(),
		"elapsed", elapsed,
		"ns_per_op", elapsed.Nanoseconds()/max(ops.Load(), 1),
	)

	if cfg.HeapFile != "" {
		if err := writeHeap(cfg.HeapFile); err != nil {
			return err
		}
		log.Info("heap profile written", "file", cfg.HeapFile)
	}
	if cfg.Hold > 0 {
		log.Info("holding", "for", cfg.Hold)
		select {
		case <-time.After(cfg.Hold):
		case <-ctx.Done():
		}
	}
	return nil
}

func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create heap profile")
	}
	defer f.Close()
	runtime.GC()
	return errors.Wrap(pprof.WriteHeapProfile(f), "write heap profile")
}
