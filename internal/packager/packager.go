// Package packager drives the external USM packaging tool and finalizes
// its output.
package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"usmconv/internal/model"
	"usmconv/internal/util"
	"usmconv/internal/util/media"
)

// ErrOutputMissing means the tool exited without writing the container.
var ErrOutputMissing = errors.New("packaging output missing")

const (
	DefaultModule = "wannacri"
	DefaultSettle = time.Second
)

// Packager runs "<python> -m <module> createusm|extractusm".
type Packager struct {
	python       string
	module       string
	workdir      string
	settle       time.Duration
	strictUnpack bool
	runner       util.CmdRunner
	log          hclog.Logger
	verbose      bool
}

// Option configures a Packager.
type Option func(*Packager)

// WithModule sets the Python module name of the tool.
func WithModule(m string) Option {
	return func(p *Packager) {
		if m != "" {
			p.module = m
		}
	}
}

// WithWorkdir sets the tool's working directory.
func WithWorkdir(dir string) Option {
	return func(p *Packager) { p.workdir = dir }
}

// WithSettle sets how long the intermediate must be quiet before packaging.
func WithSettle(d time.Duration) Option {
	return func(p *Packager) { p.settle = d }
}

// WithStrictUnpack makes a non-zero extract exit a failure.
func WithStrictUnpack(strict bool) Option {
	return func(p *Packager) { p.strictUnpack = strict }
}

// WithRunner injects a custom command runner (useful for testing).
func WithRunner(r util.CmdRunner) Option {
	return func(p *Packager) { p.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(p *Packager) { p.log = l }
}

// WithVerbose echoes the tool's command line and output to the terminal.
func WithVerbose(v bool) Option {
	return func(p *Packager) { p.verbose = v }
}

// New returns a Packager using the interpreter at python.
func New(python string, opts ...Option) *Packager {
	p := &Packager{python: python, module: DefaultModule, settle: DefaultSettle}
	for _, o := range opts {
		o(p)
	}
	if p.runner == nil {
		p.runner = util.NewDefaultRunner()
	}
	if p.log == nil {
		p.log = hclog.NewNullLogger()
	}
	p.log = p.log.Named("packager")
	return p
}

// Output describes the finalized container.
type Output struct {
	Path  string
	Bytes int64
}

// Package runs Create then Finalize.
func (p *Packager) Package(ctx context.Context, l media.Layout, key model.Key) (Output, error) {
	if err := p.Create(ctx, l, key); err != nil {
		return Output{}, err
	}
	if err := Finalize(l); err != nil {
		return Output{}, model.Wrap(model.KindPackaging, "finalize", err)
	}
	p.log.Info("packaged", "output", l.Final)
	return Output{Path: l.Final, Bytes: util.FileSize(l.Final)}, nil
}

// Create waits for l.Intermediate to settle and runs createusm on it. The
// presence of l.Produced after the tool exits is the success signal; the
// exit code is only logged.
func (p *Packager) Create(ctx context.Context, l media.Layout, key model.Key) error {
	if err := util.WaitQuiet(ctx, l.Intermediate, p.settle, 5*p.settle); err != nil {
		return model.Wrap(model.KindPackaging, "settle", err)
	}

	args := []string{"-m", p.module, "createusm", l.Intermediate, "--output", l.ProducedBase()}
	args = appendKey(args, key)

	res, runErr := p.run(ctx, args)
	if ctx.Err() != nil {
		return model.Wrap(model.KindPackaging, "createusm", ctx.Err())
	}
	if runErr != nil {
		p.log.Warn("createusm exited with error", "code", res.Code, "error", runErr, "stderr", util.Tail(res.Stderr, 3))
	}
	if !util.FileExists(l.Produced) {
		if runErr != nil {
			return model.Wrap(model.KindPackaging, "createusm", fmt.Errorf("%w: %v", ErrOutputMissing, runErr))
		}
		return model.Wrap(model.KindPackaging, "createusm", ErrOutputMissing)
	}
	return nil
}

// Finalize moves l.Produced to l.Final and deletes l.Intermediate. An
// existing l.Final is staged aside and restored if the rename fails.
// Produced and Final may be the same path.
func Finalize(l media.Layout) error {
	if err := util.ReplaceFile(l.Produced, l.Final); err != nil {
		return err
	}
	if err := util.RemoveIfExists(l.Intermediate); err != nil {
		return fmt.Errorf("remove intermediate: %w", err)
	}
	return nil
}

// Finalize is the method form of the package-level Finalize.
func (p *Packager) Finalize(l media.Layout) error {
	return Finalize(l)
}

// Unpack extracts src into outDir. The tool names the output itself, so no
// file check is made: the run succeeds once the tool exits, and a non-zero
// exit is only a warning unless strict unpacking is enabled.
func (p *Packager) Unpack(ctx context.Context, src, outDir string, key model.Key) error {
	if err := util.EnsureDir(outDir); err != nil {
		return model.Wrap(model.KindPackaging, "extractusm", err)
	}
	args := []string{"-m", p.module, "extractusm", src, "--output", outDir}
	args = appendKey(args, key)

	res, err := p.run(ctx, args)
	if ctx.Err() != nil {
		return model.Wrap(model.KindPackaging, "extractusm", ctx.Err())
	}
	if err != nil {
		if res.Code < 0 || p.strictUnpack {
			return model.Wrap(model.KindPackaging, "extractusm", fmt.Errorf("%w: %s", err, util.Tail(res.Stderr, 3)))
		}
		p.log.Warn("extractusm exited with error", "code", res.Code, "stderr", util.Tail(res.Stderr, 3))
	}
	p.log.Info("extracted", "source", filepath.Base(src), "dir", outDir)
	return nil
}

func (p *Packager) run(ctx context.Context, args []string) (util.CmdResult, error) {
	if p.python == "" {
		err := errors.New("python path is required")
		return util.CmdResult{Code: -1, Err: err}, err
	}
	dir := p.workdir
	if dir != "" {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			p.log.Warn("packager workdir unavailable; using current directory", "dir", dir)
			dir = ""
		}
	}
	return p.runner.Run(ctx, util.CmdSpec{
		Path:    p.python,
		Args:    args,
		Dir:     dir,
		Verbose: p.verbose,
		Logger:  p.log,
	})
}

func appendKey(args []string, key model.Key) []string {
	if key.Enabled() {
		return append(args, "--key", string(key))
	}
	return args
}
