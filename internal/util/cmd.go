package util

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// CmdSpec describes a subprocess to run.
type CmdSpec struct {
	Path    string   // Binary path
	Args    []string // Arguments
	Env     []string // Extra environment variables (KEY=VALUE) appended to the inherited env.
	Dir     string   // Working directory; empty = inherit.
	Verbose bool     // Echo the command line and stream stdout/stderr to the terminal

	StdoutLine    func(string) // Called for each stdout line (if non-nil)
	StderrLine    func(string) // Called for each stderr line (if non-nil)
	CaptureStdout bool         // When false and StdoutLine is set, stdout is not buffered

	Logger hclog.Logger // Receives the command line at Debug; nil = discard
}

// CmdResult contains captured output and exit status.
type CmdResult struct {
	Stdout []byte
	Stderr []byte
	Code   int
	Err    error
}

// CmdRunner runs subprocesses. Stages take one so tests can simulate the
// external tools.
type CmdRunner interface {
	Run(ctx context.Context, spec CmdSpec) (CmdResult, error)
}

// DefaultRunner executes real processes via Run.
type DefaultRunner struct{}

// NewDefaultRunner returns the process-backed runner.
func NewDefaultRunner() DefaultRunner { return DefaultRunner{} }

func (DefaultRunner) Run(ctx context.Context, spec CmdSpec) (CmdResult, error) {
	return Run(ctx, spec)
}

// waitDelay bounds how long Wait blocks on output pipes after the process
// was killed by context cancellation.
const waitDelay = 5 * time.Second

// stderrKeep is how many trailing stderr lines CmdResult retains. ffmpeg
// and the packaging tool can log for the whole length of an encode.
const stderrKeep = 200

// Run executes the command. The last stderrKeep stderr lines are captured; stdout capture can be
// disabled with CaptureStdout=false when a StdoutLine callback is present.
// Cancelling ctx kills the child. On non-zero exit the returned error carries
// the exit code while CmdResult holds the captured buffers.
func Run(ctx context.Context, spec CmdSpec) (CmdResult, error) {
	var stdoutBuf bytes.Buffer
	stderrTail := newLineRing(stderrKeep)

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.WaitDelay = waitDelay
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if spec.Env != nil {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return CmdResult{Code: -1, Err: err}, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return CmdResult{Code: -1, Err: err}, err
	}

	line := shellQuote(spec.Path, spec.Args)
	if spec.Logger != nil {
		spec.Logger.Debug("exec", "cmd", line, "dir", spec.Dir)
	}
	if spec.Verbose {
		fmt.Fprintf(os.Stderr, "+ %s\n", line)
	}

	if err := cmd.Start(); err != nil {
		return CmdResult{Code: -1, Err: err}, err
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanLines(stdoutPipe, func(l string) {
			if spec.StdoutLine != nil {
				spec.StdoutLine(l)
			}
			if spec.Verbose {
				fmt.Fprintln(os.Stdout, l)
			}
			if spec.CaptureStdout || spec.StdoutLine == nil {
				stdoutBuf.WriteString(l)
				stdoutBuf.WriteByte('\n')
			}
		}, spec.Verbose)
	}()

	go func() {
		defer wg.Done()
		scanLines(stderrPipe, func(l string) {
			if spec.StderrLine != nil {
				spec.StderrLine(l)
			}
			if spec.Verbose {
				fmt.Fprintln(os.Stderr, l)
			}
			stderrTail.add(l)
		}, spec.Verbose)
	}()

	// Readers must drain before Wait closes the pipes.
	wg.Wait()
	waitErr := cmd.Wait()

	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	res := CmdResult{
		Stdout: stdoutBuf.Bytes(),
		Stderr: stderrTail.bytes(),
		Code:   code,
		Err:    waitErr,
	}

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("command interrupted: %w", ctxErr)
		}
		return res, fmt.Errorf("command failed (exit %d): %w", code, waitErr)
	}
	return res, nil
}

func scanLines(r io.Reader, fn func(string), verbose bool) {
	sc := bufio.NewScanner(r)
	// yt-dlp --dump-json manifests are routinely several hundred KB on one line.
	const maxCapacity = 4 * 1024 * 1024
	sc.Buffer(make([]byte, 0, 64*1024), maxCapacity)
	for sc.Scan() {
		fn(sc.Text())
	}
	if err := sc.Err(); err != nil && verbose {
		fmt.Fprintf(os.Stderr, "scan error: %v\n", err)
	}
}

// lineRing keeps the most recent lines written to it.
type lineRing struct {
	lines []string
	next  int
	full  bool
}

func newLineRing(n int) *lineRing {
	return &lineRing{lines: make([]string, n)}
}

func (r *lineRing) add(l string) {
	r.lines[r.next] = l
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

func (r *lineRing) bytes() []byte {
	ordered := r.lines[:r.next]
	if r.full {
		ordered = append(append([]string{}, r.lines[r.next:]...), r.lines[:r.next]...)
	}
	if len(ordered) == 0 {
		return nil
	}
	var b bytes.Buffer
	for _, l := range ordered {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// Tail returns the last n non-empty lines of b, for error messages.
func Tail(b []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// shellQuote returns a printable shell-like command string for logging.
func shellQuote(path string, args []string) string {
	b := &strings.Builder{}
	b.WriteString(quote(path))
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(quote(a))
	}
	return b.String()
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n\"'\\$`(){}[]*&;|<>?!") {
		return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
	}
	return s
}
