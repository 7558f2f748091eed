package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sarathavasarala/markly/internal/config"
	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/indexer"
	"github.com/sarathavasarala/markly/internal/llm"
	"github.com/sarathavasarala/markly/internal/logging"
	"github.com/sarathavasarala/markly/internal/scraper"
	"go.uber.org/zap"
)

// shutdownGrace bounds how long a command waits for in-flight enrichment
// after it is interrupted.
const shutdownGrace = 30 * time.Second

// app bundles what a command needs. The store is already scoped to the
// configured owner.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *db.Store
	service  *indexer.Service
	embedder *llm.Embedder
}

type appOptions struct {
	// pipeline requires a working chat model.
	pipeline bool
	// logToFile sends logs to the data dir instead of stderr.
	logToFile bool
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dir, _ := rootCmd.PersistentFlags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	if owner, _ := rootCmd.PersistentFlags().GetString("owner"); owner != "" {
		cfg.Owner = owner
	}
	if verbose, _ := rootCmd.PersistentFlags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func openApp(opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logFile := ""
	if opts.logToFile {
		logFile = cfg.LogPath()
	}
	logger, err := logging.New(cfg.Log, logFile)
	if err != nil {
		return nil, err
	}

	root, err := db.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := root.WithOwner(cfg.Owner)

	var synth indexer.Synthesizer
	if s, err := llm.NewSynthesizer(cfg.LLM, logger.Named("llm")); err == nil {
		synth = s
	} else if opts.pipeline {
		root.Close()
		return nil, fmt.Errorf("chat model unavailable: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	var embedder indexer.Embedder
	if e, err := llm.NewEmbedder(cfg.Embeddings); err == nil {
		a.embedder = e
		embedder = e
	} else {
		logger.Debug("embeddings disabled", zap.Error(err))
	}

	extractor := scraper.New(cfg, logger.Named("scraper"))
	a.service = indexer.NewService(store, extractor, synth, embedder, cfg.Workers, logger)
	return a, nil
}

// close drains queued enrichment before releasing the store.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := a.service.Shutdown(ctx); err != nil {
		a.logger.Warn("enrichment did not finish before exit", zap.Error(err))
	}
	a.store.Close()
	a.logger.Sync()
}

// waitForQueue blocks until the queue drains or the user interrupts,
// drawing a progress bar while bookmarks are being enriched.
func (a *app) waitForQueue(total int, label string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		pending := a.service.Pending()
		printProgress(total-pending, total, label)
		if pending == 0 {
			fmt.Println()
			return nil
		}
		select {
		case <-ctx.Done():
			fmt.Println()
			return fmt.Errorf("interrupted with %d bookmark(s) still queued; run `markly retry --stuck` to resume", pending)
		case <-ticker.C:
		}
	}
}

// semanticQuery embeds a search query, or returns nil when embeddings are off.
func (a *app) semanticQuery(ctx context.Context, query string) []float32 {
	if a.embedder == nil {
		return nil
	}
	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		a.logger.Warn("query embedding failed", zap.Error(err))
		return nil
	}
	return vec
}

func printProgress(current, total int, prefix string) {
	if total <= 0 {
		return
	}
	if current < 0 {
		current = 0
	}
	if current > total {
		current = total
	}
	pct := float64(current) / float64(total) * 100
	barWidth := 30
	filled := int(float64(barWidth) * float64(current) / float64(total))

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Printf("\r%s [%s] %d/%d (%.0f%%)", prefix, bar, current, total, pct)
}
