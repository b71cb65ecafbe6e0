package ui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"usmconv/internal/progress"
)

// ErrForcedExit is returned when a cancelled run did not unwind within the
// grace period. The caller should exit the process.
var ErrForcedExit = errors.New("run did not stop within the grace period")

// RunFunc executes one run and reports through rep.
type RunFunc func(ctx context.Context, rep progress.Reporter) (progress.Result, error)

// Run drives fn under a full-screen progress view and returns its outcome.
func Run(ctx context.Context, title string, fn RunFunc, grace time.Duration, verbose bool) (progress.Result, error) {
	if grace <= 0 {
		grace = DefaultGrace
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewModel(title, cancel, grace, verbose)
	prog := tea.NewProgram(m, tea.WithContext(ctx))

	var (
		res    progress.Result
		runErr error
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		res, runErr = fn(runCtx, teaReporter{send: prog.Send})
		prog.Send(runDoneMsg{Err: runErr})
	}()

	final, err := prog.Run()
	if fm, ok := final.(Model); ok && fm.Forced {
		return progress.Result{}, ErrForcedExit
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-done
		return res, err
	}
	// The view may have closed on ctx cancellation; wait for the run to unwind.
	cancel()
	select {
	case <-done:
	case <-time.After(grace):
		return progress.Result{}, ErrForcedExit
	}
	return res, runErr
}
