package lifecycle

// CleanupHooks observe the outcome of each registered path during cleanup.
type CleanupHooks interface {
	OnDeleted(path string)
	// OnMissing reports a registered path that no longer exists. It is not
	// counted as deleted.
	OnMissing(path string)
	OnDeleteFailed(path string, err error)
}

// Reporter prints the human progress lines of a run. *ui.Console implements it.
type Reporter interface {
	Starting(count int, dir string)
	Finished(saved int)
	Completed(saved int, dir string)
	Interrupted()
	CleanupComplete(deleted int)
}

type chainedCleanupHooks []CleanupHooks

// ChainCleanupHooks fans every callback out to each non-nil hook in order.
func ChainCleanupHooks(hooks ...CleanupHooks) CleanupHooks {
	out := make(chainedCleanupHooks, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (c chainedCleanupHooks) OnDeleted(path string) {
	for _, h := range c {
		h.OnDeleted(path)
	}
}

func (c chainedCleanupHooks) OnMissing(path string) {
	for _, h := range c {
		h.OnMissing(path)
	}
}

func (c chainedCleanupHooks) OnDeleteFailed(path string, err error) {
	for _, h := range c {
		h.OnDeleteFailed(path, err)
	}
}

type nopReporter struct{}

func (nopReporter) Starting(int, string)  {}
func (nopReporter) Finished(int)          {}
func (nopReporter) Completed(int, string) {}
func (nopReporter) Interrupted()          {}
func (nopReporter) CleanupComplete(int)   {}
