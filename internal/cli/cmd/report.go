package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"usmconv/internal/progress"
	"usmconv/internal/util"
)

// textReporter prints progress lines for non-interactive output. A line is
// written when the phase or a track label changes, or every 5 percent.
type textReporter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool

	phase   progress.Phase
	video   string
	audio   string
	step    int
	printed bool
}

func newTextReporter(w io.Writer, verbose bool) *textReporter {
	return &textReporter{w: w, verbose: verbose, step: -1}
}

func (r *textReporter) Update(u progress.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	step := int(math.Floor(u.Percent / 5))
	changed := u.Phase != r.phase || u.VideoStatus != r.video || u.AudioStatus != r.audio
	if !changed && step == r.step {
		return
	}
	r.phase, r.video, r.audio, r.step = u.Phase, u.VideoStatus, u.AudioStatus, step
	line := fmt.Sprintf("[%-18s] %5.1f%%  ETA %s", u.Phase, u.Percent, progress.FormatETA(u.ETA))
	if u.VideoStatus != "" {
		line += "  video: " + u.VideoStatus
	}
	if u.AudioStatus != "" {
		line += "  audio: " + u.AudioStatus
	}
	fmt.Fprintln(r.w, line)
	r.printed = true
}

func (r *textReporter) Log(l progress.Log) {
	if !r.verbose {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, l.Line)
}

func (r *textReporter) Result(progress.Result) {}

// logTap copies subprocess stderr lines to the current reporter's Log.
type logTap struct {
	next util.CmdRunner

	mu  sync.RWMutex
	rep progress.Reporter
}

func newLogTap(next util.CmdRunner) *logTap {
	return &logTap{next: next}
}

func (t *logTap) attach(rep progress.Reporter) {
	t.mu.Lock()
	t.rep = rep
	t.mu.Unlock()
}

func (t *logTap) Run(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
	t.mu.RLock()
	rep := t.rep
	t.mu.RUnlock()
	if rep != nil {
		prev := spec.StderrLine
		spec.StderrLine = func(line string) {
			if prev != nil {
				prev(line)
			}
			rep.Log(progress.Log{Stream: progress.StreamStderr, Line: line})
		}
	}
	return t.next.Run(ctx, spec)
}
