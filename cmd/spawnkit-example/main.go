// Command spawnkit-example is a minimal program exercising spawnkit's
// public surface end to end: configuration loading, the worker
// re-exec check, Spawn/Shutdown, and the cross-isolate primitives in
// pkg/global. Run `go generate ./...` over this directory before
// building it so cmd/spawnkit-gen rewrites the Spawn call below into a
// real Dispatch call; built as-is it still runs, just without ever
// leaving this process.
package main

//go:generate go run spawnkit/cmd/spawnkit-gen -pkg .

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"spawnkit"
	"spawnkit/internal/config"
	"spawnkit/internal/statsserver"
	"spawnkit/pkg/global"
	"spawnkit/pkg/gmutex"
)

func main() {
	ranAsWorker, err := spawnkit.RunIfWorker()
	if err != nil {
		fmt.Fprintln(os.Stderr, "spawnkit-example: worker exited with error:", err)
		os.Exit(1)
	}
	if ranAsWorker {
		return
	}

	var configFile string
	flag.StringVar(&configFile, "config", "", "path to a spawnkit YAML config file")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "spawnkit-example: failed to load config:", err)
		os.Exit(1)
	}
	spawnkit.Init(cfg)

	logger := logrus.New()
	if lvl, lvlErr := logrus.ParseLevel(cfg.LogLevel); lvlErr == nil {
		logger.SetLevel(lvl)
	}

	var stats *statsserver.Server
	if cfg.Stats.Enabled {
		stats = statsserver.New(cfg.Stats.Addr, nil, logger)
		stats.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = stats.Shutdown(ctx)
		}()
	}

	if err := run(); err != nil {
		logger.WithError(err).Error("spawnkit-example: run failed")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := spawnkit.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("spawnkit-example: shutdown failed")
		os.Exit(1)
	}
}

// run demonstrates the primitives a generated program composes:
// Global(SharedBuffer), Global(Mutex) guarding it, and a Spawn call
// whose closure captures both.
func run() error {
	buf, err := global.NewBuffer(64)
	if err != nil {
		return err
	}
	mu, err := global.NewMutex()
	if err != nil {
		return err
	}

	counter := 0
	result, err := spawnkit.Spawn(func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		guard, lockErr := gmutex.LockGuard(ctx, mu)
		if lockErr != nil {
			return nil, lockErr
		}
		defer guard.Release()

		copy(buf.Bytes(), []byte("hello from an isolate"))
		counter++
		return counter, nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("spawn result: %v, shared buffer now reads %q\n", result, string(buf.Bytes()[:22]))
	return nil
}
