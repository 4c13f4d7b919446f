package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"imagefetch/internal/config"
	"imagefetch/internal/download"
	"imagefetch/internal/lifecycle"
	"imagefetch/internal/logging"
	"imagefetch/internal/store"
	"imagefetch/internal/ui"
)

// run parses args, executes one download session and returns once cleanup
// is done. A non-nil error means startup failed.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := config.New()

	app := &cli.Command{
		Name:      "imagefetch",
		Usage:     "Download random images and delete them again on Ctrl+C",
		Version:   cfg.Version,
		Flags:     cfg.Flags(),
		Writer:    stdout,
		ErrWriter: stderr,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := cfg.Validate(); err != nil {
				return nil, goerr.Wrap(err, "invalid configuration")
			}
			logging.Init(logging.Options{
				Level:  logging.ParseLevel(cfg.LogLevel),
				JSON:   cfg.LogJSON,
				Color:  !cfg.NoColor && !color.NoColor,
				Writer: stderr,
			})
			return ctx, nil
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return execute(ctx, cfg, stdout, stderr)
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logger := logging.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("imagefetch failed", slog.Any("error", err))
		return err
	}
	return nil
}

func execute(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := cfg.ResolveOutputDir(); err != nil {
		return goerr.Wrap(err, "resolve output dir")
	}
	if err := cfg.ResolveLedgerPath(); err != nil {
		return goerr.Wrap(err, "resolve ledger path")
	}
	if err := os.MkdirAll(cfg.AbsOutputDir, 0o755); err != nil {
		return goerr.Wrap(err, "create output dir", goerr.V("path", cfg.AbsOutputDir))
	}
	logging.Logger.Debug("configuration loaded", "config", cfg.Summary())

	console := ui.NewConsole(stdout, stderr, cfg.NoColor)
	hooks := []download.Hooks{console}
	cleanupHooks := []lifecycle.CleanupHooks{console}

	var ledger *store.Ledger
	if cfg.AbsLedgerPath != "" {
		st, err := store.Open(cfg.AbsLedgerPath)
		if err != nil {
			return goerr.Wrap(err, "open ledger", goerr.V("path", cfg.AbsLedgerPath))
		}
		defer st.Close()

		ledger, err = store.NewLedger(ctx, st, cfg.ImageURL(), cfg.AbsOutputDir, cfg.Count)
		if err != nil {
			return goerr.Wrap(err, "start ledger run")
		}
		hooks = append(hooks, ledger)
		cleanupHooks = append(cleanupHooks, ledger)
	}

	client := download.NewClient(download.ClientOptions{
		Timeout:             cfg.Timeout,
		MaxIdleConnsPerHost: download.DefaultClientOptions().MaxIdleConnsPerHost,
	})
	defer client.CloseIdleConnections()

	session := download.NewSession(cfg.Count)
	dl := download.NewDownloader(client, download.Options{
		URL:       cfg.ImageURL(),
		OutputDir: cfg.AbsOutputDir,
		Count:     cfg.Count,
		Extension: cfg.Extension,
		ChunkSize: cfg.ChunkSize,
		Delay:     cfg.Delay,
		Hooks:     download.ChainHooks(hooks...),
	})

	ctrl := lifecycle.New(session, dl, lifecycle.Options{
		Count:     cfg.Count,
		OutputDir: cfg.OutputDir,
		Reporter:  console,
		Hooks:     lifecycle.ChainCleanupHooks(cleanupHooks...),
	})
	if err := ctrl.Run(ctx); err != nil {
		return err
	}

	if ledger != nil {
		// The run context may already be cancelled at this point.
		finishCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := ledger.Finish(finishCtx); err != nil {
			logging.LogLedger("finish_run", 0, err)
		}
	}
	return nil
}
