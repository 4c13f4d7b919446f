package download

// Hooks provide optional callbacks for console reporting and the run ledger.
// Implementations should be fast; the Downloader invokes them synchronously
// from the download goroutine.
type Hooks interface {
	OnSaved(index int, path string, size int64)
	OnFailed(index int, err error)
	// OnAborted reports a partial file dropped after a stop request.
	// removeErr is non-nil when the partial file could not be removed.
	OnAborted(index int, path string, removeErr error)
}

type chainedHooks []Hooks

// ChainHooks fans every callback out to each non-nil hook in order.
func ChainHooks(hooks ...Hooks) Hooks {
	out := make(chainedHooks, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (c chainedHooks) OnSaved(index int, path string, size int64) {
	for _, h := range c {
		h.OnSaved(index, path, size)
	}
}

func (c chainedHooks) OnFailed(index int, err error) {
	for _, h := range c {
		h.OnFailed(index, err)
	}
}

func (c chainedHooks) OnAborted(index int, path string, removeErr error) {
	for _, h := range c {
		h.OnAborted(index, path, removeErr)
	}
}
