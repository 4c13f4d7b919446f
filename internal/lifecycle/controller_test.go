package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"imagefetch/internal/download"
)

// fileRunner writes count files into dir and registers them. When block is
// set it then waits for the stop request before returning.
type fileRunner struct {
	dir      string
	count    int
	block    bool
	finished atomic.Bool
}

func (r *fileRunner) RunAll(ctx context.Context, s *download.Session) download.Result {
	defer r.finished.Store(true)
	var res download.Result
	for i := 0; i < r.count; i++ {
		res.Attempted++
		path := filepath.Join(r.dir, fmt.Sprintf("img-%d.jpg", i))
		if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
			res.Failed++
			continue
		}
		if !s.Register(path) {
			_ = os.Remove(path)
			res.Aborted++
			continue
		}
		res.Saved++
	}
	if r.block {
		<-s.Done()
		// Simulate the tail of an in-flight chunk
		time.Sleep(20 * time.Millisecond)
	}
	res.Stopped = s.Stopped()
	return res
}

type recordingReporter struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingReporter) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recordingReporter) Starting(count int, dir string)  { r.add("starting %d", count) }
func (r *recordingReporter) Finished(saved int)              { r.add("finished %d", saved) }
func (r *recordingReporter) Completed(saved int, dir string) { r.add("completed %d", saved) }
func (r *recordingReporter) Interrupted()                    { r.add("interrupted") }
func (r *recordingReporter) CleanupComplete(deleted int)     { r.add("cleanup %d", deleted) }

func (r *recordingReporter) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type recordingCleanupHooks struct {
	mu      sync.Mutex
	deleted []string
	missing []string
	failed  []string
}

func (h *recordingCleanupHooks) OnDeleted(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, path)
}

func (h *recordingCleanupHooks) OnMissing(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.missing = append(h.missing, path)
}

func (h *recordingCleanupHooks) OnDeleteFailed(path string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, path)
}

// newTestController swaps signal.Notify for a fake that hands the
// subscribed channel to the test.
func newTestController(t *testing.T, runner Runner, opts Options) (*Controller, *download.Session, <-chan chan<- os.Signal) {
	t.Helper()
	s := download.NewSession(4)
	c := New(s, runner, opts)
	subscribed := make(chan chan<- os.Signal, 1)
	c.notify = func(ch chan<- os.Signal, _ ...os.Signal) { subscribed <- ch }
	c.stopNotify = func(chan<- os.Signal) {}
	return c, s, subscribed
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state %s not reached, current %s", want, c.State())
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	gt.NoError(t, err)
	return len(entries)
}

func runAsync(c *Controller, ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRun_CompletedThenSignal(t *testing.T) {
	dir := t.TempDir()
	runner := &fileRunner{dir: dir, count: 3}
	rep := &recordingReporter{}
	hooks := &recordingCleanupHooks{}
	c, s, subscribed := newTestController(t, runner, Options{Count: 3, OutputDir: dir, Reporter: rep, Hooks: hooks})

	errCh := runAsync(c, context.Background())
	sigCh := <-subscribed

	waitForState(t, c, StateCompleted)
	gt.Equal(t, countFiles(t, dir), 3)
	gt.Equal(t, s.Size(), 3)

	sigCh <- syscall.SIGTERM
	gt.NoError(t, waitRun(t, errCh))

	gt.Equal(t, c.State(), StateTerminated)
	gt.Equal(t, countFiles(t, dir), 0)
	gt.Equal(t, len(hooks.deleted), 3)
	gt.V(t, rep.snapshot()).Equal([]string{
		"starting 3",
		"finished 3",
		"completed 3",
		"interrupted",
		"cleanup 3",
	})
}

func TestRun_SignalDuringDownload(t *testing.T) {
	dir := t.TempDir()
	runner := &fileRunner{dir: dir, count: 2, block: true}
	rep := &recordingReporter{}
	c, s, subscribed := newTestController(t, runner, Options{Count: 5, OutputDir: dir, Reporter: rep})

	errCh := runAsync(c, context.Background())
	sigCh := <-subscribed
	waitForState(t, c, StateDownloading)
	deadline := time.Now().Add(2 * time.Second)
	for s.Size() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	gt.Equal(t, s.Size(), 2)

	sigCh <- syscall.SIGINT
	// A second signal must not block or panic
	select {
	case sigCh <- syscall.SIGINT:
	default:
	}
	gt.NoError(t, waitRun(t, errCh))

	gt.True(t, runner.finished.Load())
	gt.Equal(t, c.State(), StateTerminated)
	gt.Equal(t, countFiles(t, dir), 0)

	lines := rep.snapshot()
	gt.Equal(t, lines[len(lines)-1], "cleanup 2")
	for _, l := range lines {
		gt.V(t, l).NotEqual("completed 2")
	}
}

func TestRun_ContextCancelCleansUp(t *testing.T) {
	dir := t.TempDir()
	runner := &fileRunner{dir: dir, count: 2}
	c, _, subscribed := newTestController(t, runner, Options{Count: 2, OutputDir: dir})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(c, ctx)
	<-subscribed
	waitForState(t, c, StateCompleted)

	cancel()
	gt.NoError(t, waitRun(t, errCh))
	gt.Equal(t, countFiles(t, dir), 0)
	gt.Equal(t, c.State(), StateTerminated)
}

func TestRun_Twice(t *testing.T) {
	dir := t.TempDir()
	c, _, subscribed := newTestController(t, &fileRunner{dir: dir}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	errCh := runAsync(c, ctx)
	<-subscribed
	gt.NoError(t, waitRun(t, errCh))

	gt.Error(t, c.Run(context.Background()))
}

func TestCleanup_Idempotent(t *testing.T) {
	dir := t.TempDir()
	c, s, _ := newTestController(t, nil, Options{})

	for i := 0; i < 2; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%d.jpg", i))
		gt.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		gt.True(t, s.Register(path))
	}

	gt.Equal(t, c.Cleanup(), 2)
	gt.Equal(t, c.Cleanup(), 0)
	gt.Equal(t, countFiles(t, dir), 0)
	gt.True(t, s.Stopped())
}

func TestCleanup_MissingAndFailed(t *testing.T) {
	dir := t.TempDir()
	hooks := &recordingCleanupHooks{}
	rep := &recordingReporter{}
	c, s, _ := newTestController(t, nil, Options{Hooks: hooks, Reporter: rep})

	ok := filepath.Join(dir, "ok.jpg")
	gt.NoError(t, os.WriteFile(ok, []byte("x"), 0o644))
	missing := filepath.Join(dir, "gone.jpg")
	// A non-empty directory cannot be removed with os.Remove
	stuck := filepath.Join(dir, "stuck")
	gt.NoError(t, os.MkdirAll(filepath.Join(stuck, "child"), 0o755))

	gt.True(t, s.Register(missing))
	gt.True(t, s.Register(stuck))
	gt.True(t, s.Register(ok))

	gt.Equal(t, c.Cleanup(), 1)
	gt.V(t, hooks.deleted).Equal([]string{ok})
	gt.V(t, hooks.missing).Equal([]string{missing})
	gt.V(t, hooks.failed).Equal([]string{stuck})
	gt.V(t, rep.snapshot()).Equal([]string{"cleanup 1"})
}

func TestCleanup_ConcurrentWithRegister(t *testing.T) {
	dir := t.TempDir()
	c, s, _ := newTestController(t, nil, Options{})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				path := filepath.Join(dir, fmt.Sprintf("w%d-%d.jpg", w, i))
				if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
					t.Errorf("write: %v", err)
					return
				}
				if !s.Register(path) {
					_ = os.Remove(path)
					return
				}
			}
		}(w)
	}

	time.Sleep(time.Millisecond)
	c.Cleanup()
	wg.Wait()

	// Anything registered after the first sweep was refused, so nothing is left behind
	gt.Equal(t, s.Size(), 0)
	gt.Equal(t, countFiles(t, dir), 0)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateDownloading, true},
		{StateDownloading, StateCompleted, true},
		{StateDownloading, StateInterrupted, true},
		{StateCompleted, StateInterrupted, true},
		{StateInterrupted, StateTerminated, true},
		{StateIdle, StateTerminated, false},
		{StateCompleted, StateTerminated, false},
		{StateDownloading, StateTerminated, false},
		{StateTerminated, StateIdle, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			gt.Equal(t, canTransition(tt.from, tt.to), tt.want)
		})
	}
}

func TestChainCleanupHooks(t *testing.T) {
	a, b := &recordingCleanupHooks{}, &recordingCleanupHooks{}
	h := ChainCleanupHooks(a, nil, b)

	h.OnDeleted("x")
	h.OnMissing("y")
	h.OnDeleteFailed("z", os.ErrPermission)

	for _, r := range []*recordingCleanupHooks{a, b} {
		gt.V(t, r.deleted).Equal([]string{"x"})
		gt.V(t, r.missing).Equal([]string{"y"})
		gt.V(t, r.failed).Equal([]string{"z"})
	}
}
