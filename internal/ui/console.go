package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// maxErrRunes bounds how much of an error is echoed on the console. The full
// error always goes to the structured log.
const maxErrRunes = 200

// Console prints the human progress lines of a run. Progress goes to out and
// failures to errOut. It satisfies download.Hooks and lifecycle.CleanupHooks.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer

	ok   *color.Color
	warn *color.Color
	bad  *color.Color
	info *color.Color
}

// NewConsole creates a Console. Nil writers default to stdout and stderr.
func NewConsole(out, errOut io.Writer, noColor bool) *Console {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	c := &Console{
		out:    out,
		errOut: errOut,
		ok:     color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		bad:    color.New(color.FgRed),
		info:   color.New(color.FgCyan),
	}
	if noColor {
		for _, col := range []*color.Color{c.ok, c.warn, c.bad, c.info} {
			col.DisableColor()
		}
	}
	return c
}

// Starting announces the run.
func (c *Console) Starting(count int, dir string) {
	c.println(c.out, c.info, fmt.Sprintf("Starting download of %d images into %s...", count, DirLabel(dir)))
}

// Finished reports how many images were saved once all attempts are done.
func (c *Console) Finished(saved int) {
	c.println(c.out, nil, fmt.Sprintf("Finished downloading attempts. %d images saved.", saved))
}

// Completed prints the success line and the idle hint shown while waiting
// for a termination request.
func (c *Console) Completed(saved int, dir string) {
	c.println(c.out, c.ok, fmt.Sprintf("\nSuccessfully downloaded %d images to %s.", saved, DirLabel(dir)))
	c.println(c.out, nil, "Running. Press Ctrl+C to stop and clean up.")
}

// Interrupted is printed once a termination request starts the cleanup.
func (c *Console) Interrupted() {
	c.println(c.out, c.warn, "\nSignal received. Cleaning up downloaded images...")
}

// CleanupComplete reports the number of files removed by cleanup.
func (c *Console) CleanupComplete(deleted int) {
	c.println(c.out, c.ok, fmt.Sprintf("Cleanup complete. Deleted %d images.", deleted))
}

func (c *Console) OnSaved(int, string, int64) {}

func (c *Console) OnFailed(index int, err error) {
	c.println(c.errOut, c.bad, fmt.Sprintf("Error downloading image %d: %s", index+1, errText(err)))
}

func (c *Console) OnAborted(_ int, path string, removeErr error) {
	if removeErr != nil {
		c.println(c.errOut, c.bad, fmt.Sprintf("Error deleting partial file %s: %s", path, errText(removeErr)))
		return
	}
	c.println(c.out, c.warn, "Partially downloaded file deleted: "+path)
}

func (c *Console) OnDeleted(string) {}

func (c *Console) OnMissing(path string) {
	c.println(c.errOut, c.warn, "File already gone: "+path)
}

func (c *Console) OnDeleteFailed(path string, err error) {
	c.println(c.errOut, c.bad, fmt.Sprintf("Error deleting file %s: %s", path, errText(err)))
}

func (c *Console) println(w io.Writer, col *color.Color, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col == nil {
		_, _ = fmt.Fprintln(w, line)
		return
	}
	_, _ = col.Fprintln(w, line)
}

// DirLabel names an output directory for humans.
func DirLabel(dir string) string {
	if dir == "" || dir == "." {
		return "the current directory"
	}
	return dir
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return TruncateWithEllipsis(err.Error(), maxErrRunes)
}
