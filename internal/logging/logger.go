package logging

import (
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/clog"
)

var (
	// Logger is the global structured logger instance
	Logger *slog.Logger
)

// Options controls how Init builds the global logger.
type Options struct {
	Level slog.Level
	JSON  bool
	Color bool
	// Writer defaults to os.Stderr so console output on stdout stays readable.
	Writer io.Writer
}

// Init initializes the global structured logger
func Init(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: opts.Level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				// Format time as ISO8601
				if a.Key == slog.TimeKey {
					if t, ok := a.Value.Any().(time.Time); ok {
						a.Value = slog.StringValue(t.Format(time.RFC3339))
					}
				}
				return a
			},
		})
	} else {
		handler = clog.New(
			clog.WithWriter(w),
			clog.WithLevel(opts.Level),
			clog.WithColor(opts.Color),
		)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
	return Logger
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactURL removes secrets from URL logs while retaining debugging value.
// It strips userinfo and masks query parameter values.
func RedactURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed == nil {
		return rawURL
	}

	parsed.User = nil

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			query.Set(key, "***")
		}
		parsed.RawQuery = query.Encode()
	}

	return parsed.String()
}

// LogRunStart logs the start of a download run
func LogRunStart(count int, url, outDir string) {
	if Logger == nil {
		return
	}
	Logger.Info("download run started",
		"event", "run_start",
		"count", count,
		"url", RedactURL(url),
		"output_dir", outDir)
}

// LogRunFinished logs the end of the download loop
func LogRunFinished(attempted, saved, failed, aborted int, stopped bool) {
	if Logger == nil {
		return
	}
	Logger.Info("download run finished",
		"event", "run_finished",
		"attempted", attempted,
		"saved", saved,
		"failed", failed,
		"aborted", aborted,
		"stopped", stopped)
}

// LogImageStart logs the start of a single image request
func LogImageStart(index int, url string) {
	if Logger == nil {
		return
	}
	Logger.Debug("image request started",
		"event", "image_start",
		"index", index,
		"url", RedactURL(url))
}

// LogImageSaved logs a fully written image
func LogImageSaved(index int, path string, size int64) {
	if Logger == nil {
		return
	}
	Logger.Info("image saved",
		"event", "image_saved",
		"index", index,
		"path", path,
		"bytes", size)
}

// LogImageError logs a per-image failure
func LogImageError(index int, msg string, err error) {
	if Logger == nil {
		return
	}
	Logger.Error(msg,
		"event", "image_error",
		"index", index,
		"error", err)
}

// LogImageAborted logs an image whose write stopped because a stop was requested
func LogImageAborted(index int, path string, removeErr error) {
	if Logger == nil {
		return
	}
	if removeErr != nil {
		Logger.Error("partial image not removed",
			"event", "image_abort_error",
			"index", index,
			"path", path,
			"error", removeErr)
		return
	}
	Logger.Info("partial image removed",
		"event", "image_aborted",
		"index", index,
		"path", path)
}

// LogCleanup logs a cleanup pass over the registered files
func LogCleanup(registered, deleted int, errs int) {
	if Logger == nil {
		return
	}
	Logger.Info("cleanup finished",
		"event", "cleanup",
		"registered", registered,
		"deleted", deleted,
		"errors", errs)
}

// LogDeleteError logs a registered file that could not be removed
func LogDeleteError(path string, err error) {
	if Logger == nil {
		return
	}
	Logger.Warn("delete registered file failed",
		"event", "delete_error",
		"path", path,
		"error", err)
}

// LogStateChange logs lifecycle state transitions
func LogStateChange(from, to string) {
	if Logger == nil {
		return
	}
	Logger.Info("lifecycle state changed",
		"event", "state_change",
		"from", from,
		"to", to)
}

// LogSignal logs a received termination request
func LogSignal(sig os.Signal) {
	if Logger == nil {
		return
	}
	Logger.Info("termination requested",
		"event", "signal",
		"signal", sig.String())
}

// LogLedger logs ledger writes
func LogLedger(operation string, id int64, err error) {
	if Logger == nil {
		return
	}
	if err != nil {
		Logger.Error("ledger operation failed",
			"event", "ledger_error",
			"operation", operation,
			"id", id,
			"error", err)
	} else {
		Logger.Debug("ledger operation",
			"event", "ledger",
			"operation", operation,
			"id", id)
	}
}

// With returns a logger with additional context
func With(attrs ...any) *slog.Logger {
	if Logger == nil {
		return slog.Default()
	}
	return Logger.With(attrs...)
}
