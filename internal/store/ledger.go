package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"imagefetch/internal/logging"
)

// Ledger records the outcomes of one run. It satisfies download.Hooks and
// lifecycle.CleanupHooks so it can be chained next to the console reporter.
// Writes are best-effort: failures are logged and never reach the caller.
type Ledger struct {
	st      *Store
	runID   string
	timeout time.Duration

	mu      sync.Mutex
	saved   int
	failed  int
	aborted int
	deleted int
}

// NewLedger creates the run row and returns a Ledger bound to it. Run IDs
// are KSUIDs so they sort by start time.
func NewLedger(ctx context.Context, st *Store, url, outputDir string, count int) (*Ledger, error) {
	l := &Ledger{
		st:      st,
		runID:   ksuid.New().String(),
		timeout: 2 * time.Second,
	}
	if err := st.CreateRun(ctx, Run{ID: l.runID, URL: url, OutputDir: outputDir, Count: count}); err != nil {
		return nil, err
	}
	return l, nil
}

// RunID returns the ID of the run being recorded.
func (l *Ledger) RunID() string { return l.runID }

func (l *Ledger) OnSaved(index int, path string, size int64) {
	l.bump(&l.saved)
	l.record(Entry{Index: index, Path: path, Status: StatusSaved, Bytes: size})
}

func (l *Ledger) OnFailed(index int, err error) {
	l.bump(&l.failed)
	l.record(Entry{Index: index, Status: StatusFailed, ErrorMessage: errString(err)})
}

func (l *Ledger) OnAborted(index int, path string, removeErr error) {
	l.bump(&l.aborted)
	l.record(Entry{Index: index, Path: path, Status: StatusAborted, ErrorMessage: errString(removeErr)})
}

func (l *Ledger) OnDeleted(path string) {
	l.bump(&l.deleted)
	l.mark(path, StatusDeleted, "")
}

func (l *Ledger) OnMissing(path string) {
	l.mark(path, StatusMissing, "")
}

func (l *Ledger) OnDeleteFailed(path string, err error) {
	// The file is still on disk, so the row keeps its saved status.
	l.mark(path, StatusSaved, errString(err))
}

// Finish stores the run counters.
func (l *Ledger) Finish(ctx context.Context) error {
	l.mu.Lock()
	saved, failed, aborted, deleted := l.saved, l.failed, l.aborted, l.deleted
	l.mu.Unlock()
	return l.st.FinishRun(ctx, l.runID, saved, failed, aborted, deleted)
}

func (l *Ledger) bump(n *int) {
	l.mu.Lock()
	*n++
	l.mu.Unlock()
}

func (l *Ledger) record(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	e.RunID = l.runID
	// RecordImage logs its own failures
	_, _ = l.st.RecordImage(ctx, e)
}

func (l *Ledger) mark(path, status, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.st.MarkPath(ctx, l.runID, path, status, errMsg); err != nil && !errors.Is(err, ErrPathNotFound) {
		logging.LogLedger("mark_path", 0, err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
