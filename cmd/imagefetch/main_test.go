package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

// syncBuffer is a bytes.Buffer safe for the console and the logger writing concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(bytes.Repeat([]byte{0xFF}, 1024))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"negative count", []string{"--count=-1"}},
		{"zero width", []string{"--width=0"}},
		{"non-http template", []string{"--url-template", "ftp://example.com/{width}"}},
		{"bad log level", []string{"--log-level", "loud"}},
		{"unknown flag", []string{"--bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut syncBuffer
			args := append([]string{"imagefetch", "--no-color", "--output-dir", t.TempDir()}, tt.args...)
			err := run(context.Background(), args, &out, &errOut)
			gt.Error(t, err)
		})
	}
}

func TestRun_UnwritableOutputDir(t *testing.T) {
	// A regular file where the directory should be
	blocker := filepath.Join(t.TempDir(), "file")
	gt.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	var out, errOut syncBuffer
	err := run(context.Background(), []string{"imagefetch", "--no-color", "--output-dir", filepath.Join(blocker, "sub")}, &out, &errOut)
	gt.Error(t, err)
}

func TestRun_DownloadThenCancelCleansUp(t *testing.T) {
	srv := imageServer(t)
	dir := filepath.Join(t.TempDir(), "images")
	ledgerPath := filepath.Join(t.TempDir(), "ledger.db")

	var out, errOut syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	args := []string{
		"imagefetch",
		"--no-color",
		"--count", "2",
		"--delay", "0s",
		"--url-template", srv.URL + "/{width}/{height}",
		"--output-dir", dir,
		"--ledger", ledgerPath,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, args, &out, &errOut) }()

	waitFor(t, func() bool { return strings.Contains(out.String(), "Press Ctrl+C") })

	entries, err := os.ReadDir(dir)
	gt.NoError(t, err)
	gt.Equal(t, len(entries), 2)
	for _, e := range entries {
		gt.True(t, strings.HasSuffix(e.Name(), ".jpg"))
	}

	cancel()
	select {
	case err := <-errCh:
		gt.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	entries, err = os.ReadDir(dir)
	gt.NoError(t, err)
	gt.Equal(t, len(entries), 0)

	stdout := out.String()
	gt.String(t, stdout).Contains("Starting download of 2 images into " + dir)
	gt.String(t, stdout).Contains("Finished downloading attempts. 2 images saved.")
	gt.String(t, stdout).Contains("Successfully downloaded 2 images")
	gt.String(t, stdout).Contains("Cleanup complete. Deleted 2 images.")

	_, err = os.Stat(ledgerPath)
	gt.NoError(t, err)
}

func TestRun_ServerErrorsAreSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	dir := t.TempDir()

	var out, errOut syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	args := []string{
		"imagefetch",
		"--no-color",
		"--count", "2",
		"--delay", "0s",
		"--url-template", srv.URL + "/{width}/{height}",
		"--output-dir", dir,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, args, &out, &errOut) }()

	waitFor(t, func() bool { return strings.Contains(out.String(), "Press Ctrl+C") })
	cancel()
	gt.NoError(t, <-errCh)

	gt.String(t, errOut.String()).Contains("Error downloading image 1")
	gt.String(t, errOut.String()).Contains("Error downloading image 2")
	gt.String(t, out.String()).Contains("Cleanup complete. Deleted 0 images.")
}
