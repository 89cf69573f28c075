// Command overlaysim runs the in-process peer-to-peer overlay
// simulator headlessly: it generates the static graph, admits nodes in
// staged batches, and ticks the population until interrupted.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prax-labs/overlaysim/internal/config"
	"github.com/prax-labs/overlaysim/internal/obslog"
	"github.com/prax-labs/overlaysim/internal/overlay"
)

func main() {
	var (
		workerCount = flag.Int("workers", 0, "override worker pool size (0 = use default config)")
		levels      = flag.Int("levels", 0, "override geographic hierarchy depth (0 = use default config)")
		verbose     = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := obslog.New(os.Stdout, obslog.PrettyHandlerOptions{
		SlogOpts:   slog.HandlerOptions{Level: level},
		UseColor:   true,
		ShowSource: false,
		TimeFormat: time.Kitchen,
	})

	config.Init()
	if *workerCount > 0 {
		config.Update(func(c *config.Config) { c.WorkerCount = *workerCount })
	}
	if *levels > 0 {
		config.Update(func(c *config.Config) { c.Levels = *levels })
	}

	cfg := *config.Load()
	log.Info("starting overlay simulation",
		"workers", cfg.WorkerCount,
		"levels", cfg.Levels,
		"core", cfg.Core,
		"hash_size", cfg.HashSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	world := overlay.NewWorld(cfg, log)

	done := make(chan error, 1)
	go func() { done <- world.Run(ctx) }()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				log.Error("simulation exited with error", "err", err)
				os.Exit(1)
			}
			logStats(log, world, "simulation stopped")
			return
		case <-statsTicker.C:
			logStats(log, world, "progress")
		}
	}
}

func logStats(log *slog.Logger, w *overlay.World, msg string) {
	s := w.Stats()
	log.Info(msg,
		"total_nodes", s.TotalNodes,
		"active", s.Active,
		"pending", s.Pending,
		"adding", s.Adding,
		"message_no", s.MessageNo,
		"last_seen_message", s.LastSeenMessage,
	)
}
