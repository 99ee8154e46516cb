package cli

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// progress draws a file counter on stderr while indexing. A nil *progress
// is valid and draws nothing.
type progress struct {
	w           io.Writer
	description string
	bar         *progressbar.ProgressBar
}

func newProgress(w io.Writer, description string, enabled bool) *progress {
	if !enabled {
		return nil
	}
	return &progress{w: w, description: description}
}

// Start is called once the number of files is known.
func (p *progress) Start(total int) {
	if p == nil || total <= 0 {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(p.description),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// Done marks one file finished. Safe for concurrent use.
func (p *progress) Done(string) {
	if p == nil || p.bar == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *progress) Finish() {
	if p == nil || p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}

// onFilesListed and onFileDone return nil callbacks when there is no bar.
func (p *progress) onFilesListed() func(int) {
	if p == nil {
		return nil
	}
	return p.Start
}

func (p *progress) onFileDone() func(string) {
	if p == nil {
		return nil
	}
	return p.Done
}

// isTerminal reports whether w is a terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
