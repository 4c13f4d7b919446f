package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/m-mizutani/goerr/v2"

	"imagefetch/internal/download"
	"imagefetch/internal/logging"
)

// Runner performs the downloads of one run. *download.Downloader implements it.
type Runner interface {
	RunAll(ctx context.Context, s *download.Session) download.Result
}

// Options configures a Controller.
type Options struct {
	Count     int
	OutputDir string
	Reporter  Reporter
	Hooks     CleanupHooks
	// Signals that request termination. Defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// Controller owns the process lifecycle of a run: it subscribes to
// termination signals, drives the downloader on a worker goroutine, waits
// for a stop request and deletes every registered file exactly once.
type Controller struct {
	session *download.Session
	runner  Runner
	opts    Options

	mu    sync.Mutex
	state State

	notify     func(c chan<- os.Signal, sig ...os.Signal)
	stopNotify func(c chan<- os.Signal)
}

// New creates a Controller for session. The same session must be the one
// runner registers saved files into.
func New(session *download.Session, runner Runner, opts Options) *Controller {
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	return &Controller{
		session:    session,
		runner:     runner,
		opts:       opts,
		state:      StateIdle,
		notify:     signal.Notify,
		stopNotify: signal.Stop,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(to State) error {
	c.mu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.mu.Unlock()
		return goerr.New("invalid state transition", goerr.V("from", from), goerr.V("to", to))
	}
	c.state = to
	c.mu.Unlock()

	logging.LogStateChange(string(from), string(to))
	return nil
}

// Run executes one run and returns once cleanup has finished. A termination
// signal or cancellation of ctx stops the run; both end in Cleanup. Run
// returns nil on every path that reaches cleanup.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.setState(StateDownloading); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	c.notify(sigCh, c.opts.Signals...)
	defer c.stopNotify(sigCh)

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		c.watch(ctx, sigCh)
	}()

	c.opts.Reporter.Starting(c.opts.Count, c.opts.OutputDir)

	results := make(chan download.Result, 1)
	go func() {
		results <- c.runner.RunAll(ctx, c.session)
	}()

	workerDone := false
	select {
	case res := <-results:
		workerDone = true
		c.opts.Reporter.Finished(res.Saved)
		if !res.Stopped && !c.session.Stopped() {
			if err := c.setState(StateCompleted); err != nil {
				return err
			}
			c.opts.Reporter.Completed(res.Saved, c.opts.OutputDir)
		}
	case <-c.session.Done():
	}

	<-c.session.Done()
	if err := c.setState(StateInterrupted); err != nil {
		return err
	}
	c.opts.Reporter.Interrupted()
	c.Cleanup()

	// The worker removes its own partial file when it notices the stop.
	if !workerDone {
		<-results
	}
	<-watchDone

	return c.setState(StateTerminated)
}

// watch turns the first termination signal or ctx cancellation into a stop
// request. Later signals are swallowed until Run unsubscribes.
func (c *Controller) watch(ctx context.Context, sigCh <-chan os.Signal) {
	select {
	case sig := <-sigCh:
		logging.LogSignal(sig)
		c.session.Stop()
	case <-ctx.Done():
		c.session.Stop()
	case <-c.session.Done():
	}
}

// Cleanup stops the session and deletes every registered file. The registry
// is drained atomically, so concurrent or repeated calls never delete a path
// twice; a second call deletes zero files. Missing files and delete errors
// are logged and do not stop the sweep. Returns the number of files deleted.
func (c *Controller) Cleanup() int {
	c.session.Stop()
	paths := c.session.Drain()

	deleted, failed := 0, 0
	for _, path := range paths {
		err := os.Remove(path)
		switch {
		case err == nil:
			deleted++
			if c.opts.Hooks != nil {
				c.opts.Hooks.OnDeleted(path)
			}
		case os.IsNotExist(err):
			logging.LogDeleteError(path, err)
			if c.opts.Hooks != nil {
				c.opts.Hooks.OnMissing(path)
			}
		default:
			failed++
			logging.LogDeleteError(path, err)
			if c.opts.Hooks != nil {
				c.opts.Hooks.OnDeleteFailed(path, err)
			}
		}
	}

	logging.LogCleanup(len(paths), deleted, failed)
	c.opts.Reporter.CleanupComplete(deleted)
	return deleted
}
