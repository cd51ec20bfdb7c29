package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"charm.land/bubbles/v2/progress"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"

	"github.com/meigma/partialzip"
)

// progressBar draws download progress on a terminal.
type progressBar struct {
	w     io.Writer
	model progress.Model
	every rate.Sometimes

	mu   sync.Mutex
	last partialzip.ProgressEvent
	done bool
}

// newProgressBar returns nil unless enabled and w is a terminal.
func newProgressBar(w io.Writer, enabled bool) *progressBar {
	if !enabled || !isTerminal(w) {
		return nil
	}
	return &progressBar{
		w:     w,
		model: progress.New(progress.WithWidth(40)),
		every: rate.Sometimes{Interval: 100 * time.Millisecond},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Update records ev and redraws at most every 100ms.
func (p *progressBar) Update(ev partialzip.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.last = ev
	if ev.Stage == partialzip.StageVerified {
		p.draw()
		return
	}
	p.every.Do(p.draw)
}

// Done finishes the line. It is safe to call more than once.
func (p *progressBar) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	fmt.Fprintln(p.w)
}

func (p *progressBar) draw() {
	fmt.Fprintf(p.w, "\r%s", renderProgress(p.model, p.last))
}

// renderProgress formats one progress line.
func renderProgress(model progress.Model, ev partialzip.ProgressEvent) string {
	if ev.Stage != partialzip.StageDownloading && ev.Stage != partialzip.StageVerified {
		return fmt.Sprintf("%-60s", ev.Stage.String()+"...")
	}
	var percent float64
	if ev.BytesTotal > 0 {
		percent = min(float64(ev.BytesDone)/float64(ev.BytesTotal), 1)
	}
	return fmt.Sprintf("%s %s / %s", model.ViewAs(percent),
		humanize.Bytes(ev.BytesDone), humanize.Bytes(ev.BytesTotal))
}
