package download

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"imagefetch/internal/logging"
)

// Getter fetches a streaming response body. *Client implements it.
type Getter interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures a Downloader.
type Options struct {
	URL       string
	OutputDir string
	Count     int
	Extension string
	ChunkSize int
	Delay     time.Duration
	Hooks     Hooks
}

// Result summarizes one RunAll call.
type Result struct {
	Attempted int
	Saved     int
	Failed    int
	Aborted   int
	// Stopped is true when the loop ended early because of a stop request.
	Stopped bool
}

// Downloader fetches images one after another and saves them to disk.
// It encapsulates the chunked write protocol that keeps partial files out
// of the session registry.
type Downloader struct {
	client Getter
	opts   Options

	newName func() string
}

// NewDownloader creates a new Downloader using client for every request.
func NewDownloader(client Getter, opts Options) *Downloader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 8192
	}
	if opts.Extension == "" {
		opts.Extension = ".jpg"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	return &Downloader{
		client:  client,
		opts:    opts,
		newName: uuid.NewString,
	}
}

// RunAll attempts to fetch and save up to Count images sequentially.
// Per-image failures are reported through hooks and never stop the loop;
// only a stop request on the session (or ctx cancellation) ends it early.
func (d *Downloader) RunAll(ctx context.Context, s *Session) Result {
	var res Result
	logging.LogRunStart(d.opts.Count, d.opts.URL, d.opts.OutputDir)

	for i := 0; i < d.opts.Count; i++ {
		if s.Stopped() || ctx.Err() != nil {
			res.Stopped = true
			break
		}

		res.Attempted++
		switch d.downloadOne(ctx, s, i) {
		case outcomeSaved:
			res.Saved++
		case outcomeFailed:
			res.Failed++
		case outcomeAborted:
			res.Aborted++
		}

		if i < d.opts.Count-1 && !d.pause(ctx, s) {
			res.Stopped = true
			break
		}
	}
	if s.Stopped() {
		res.Stopped = true
	}

	logging.LogRunFinished(res.Attempted, res.Saved, res.Failed, res.Aborted, res.Stopped)
	return res
}

type outcome int

const (
	outcomeSaved outcome = iota
	outcomeFailed
	outcomeAborted
)

// downloadOne fetches a single image into a fresh <uuid><ext> file.
func (d *Downloader) downloadOne(ctx context.Context, s *Session, index int) outcome {
	logging.LogImageStart(index, d.opts.URL)

	body, err := d.client.Get(ctx, d.opts.URL)
	if err != nil {
		d.fail(index, goerr.Wrap(err, "download image", goerr.V("index", index)))
		return outcomeFailed
	}
	defer body.Close()

	path := filepath.Join(d.opts.OutputDir, d.newName()+d.opts.Extension)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		d.fail(index, goerr.Wrap(err, "create image file", goerr.V("path", path)))
		return outcomeFailed
	}

	size, err := d.stream(s, f, body)
	if errors.Is(err, ErrStopped) {
		d.abort(index, f, path)
		return outcomeAborted
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		d.fail(index, goerr.Wrap(err, "save image", goerr.V("path", path)))
		return outcomeFailed
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		d.fail(index, goerr.Wrap(err, "close image file", goerr.V("path", path)))
		return outcomeFailed
	}

	// A stop may land between the last chunk and here; the file is ours to drop then.
	if !s.Register(path) {
		removeErr := os.Remove(path)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			removeErr = goerr.Wrap(removeErr, "remove unregistered image", goerr.V("path", path))
		} else {
			removeErr = nil
		}
		logging.LogImageAborted(index, path, removeErr)
		d.hookAborted(index, path, removeErr)
		return outcomeAborted
	}

	logging.LogImageSaved(index, path, size)
	if d.opts.Hooks != nil {
		d.opts.Hooks.OnSaved(index, path, size)
	}
	return outcomeSaved
}

// stream copies body to f in ChunkSize pieces, checking the stop token
// before every write.
func (d *Downloader) stream(s *Session, f *os.File, body io.Reader) (int64, error) {
	buf := make([]byte, d.opts.ChunkSize)
	var written int64
	for {
		n, rerr := io.ReadFull(body, buf)
		if n > 0 {
			if s.Stopped() {
				return written, ErrStopped
			}
			if _, err := f.Write(buf[:n]); err != nil {
				return written, goerr.Wrap(err, "write chunk")
			}
			written += int64(n)
		}
		switch {
		case rerr == nil:
			continue
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			return written, nil
		default:
			return written, goerr.Wrap(rerr, "read image body")
		}
	}
}

// abort closes and removes a partially written file. Close and remove
// failures are reported rather than ignored.
func (d *Downloader) abort(index int, f *os.File, path string) {
	var errs []error
	if err := f.Close(); err != nil {
		errs = append(errs, goerr.Wrap(err, "close partial image", goerr.V("path", path)))
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, goerr.Wrap(err, "remove partial image", goerr.V("path", path)))
	}
	removeErr := errors.Join(errs...)

	logging.LogImageAborted(index, path, removeErr)
	d.hookAborted(index, path, removeErr)
}

func (d *Downloader) fail(index int, err error) {
	logging.LogImageError(index, "image download failed", err)
	if d.opts.Hooks != nil {
		d.opts.Hooks.OnFailed(index, err)
	}
}

func (d *Downloader) hookAborted(index int, path string, removeErr error) {
	if d.opts.Hooks != nil {
		d.opts.Hooks.OnAborted(index, path, removeErr)
	}
}

// pause waits Delay between two images. Returns false if a stop arrived meanwhile.
func (d *Downloader) pause(ctx context.Context, s *Session) bool {
	if d.opts.Delay <= 0 {
		return !s.Stopped() && ctx.Err() == nil
	}
	t := time.NewTimer(d.opts.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.Done():
		return false
	case <-ctx.Done():
		return false
	}
}
