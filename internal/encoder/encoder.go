// Package encoder runs ffmpeg to produce the video intermediate and the
// audio track of a conversion.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"usmconv/internal/codec"
	"usmconv/internal/model"
	"usmconv/internal/util"
	"usmconv/internal/util/bitrate"
)

// Output describes a finished transcode.
type Output struct {
	Path    string
	Bytes   int64
	Verdict codec.Verdict // video only
}

// Transcoder wraps the ffmpeg binary.
type Transcoder struct {
	ffmpegPath string
	runner     util.CmdRunner
	log        hclog.Logger
	threads    int
	verbose    bool
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithRunner injects a custom command runner (useful for testing).
func WithRunner(r util.CmdRunner) Option {
	return func(t *Transcoder) { t.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(t *Transcoder) { t.log = l }
}

// WithThreads caps encoder threads; 0 uses every logical processor.
func WithThreads(n int) Option {
	return func(t *Transcoder) { t.threads = n }
}

// WithVerbose echoes ffmpeg command lines and output to the terminal.
func WithVerbose(v bool) Option {
	return func(t *Transcoder) { t.verbose = v }
}

// New returns a Transcoder for the ffmpeg binary at ffmpegPath.
func New(ffmpegPath string, opts ...Option) *Transcoder {
	t := &Transcoder{ffmpegPath: ffmpegPath}
	for _, o := range opts {
		o(t)
	}
	if t.runner == nil {
		t.runner = util.NewDefaultRunner()
	}
	if t.log == nil {
		t.log = hclog.NewNullLogger()
	}
	t.log = t.log.Named("encoder")
	t.threads = bitrate.Threads(t.threads, util.LogicalCPUs())
	return t
}

// TranscodeVideo writes the video-only intermediate at out. verdict comes
// from codec.Decide; a Copy verdict must only be paired with brightness 1.
// onProgress receives completion in [0,100] against src.Duration.
func (t *Transcoder) TranscodeVideo(ctx context.Context, in, out string, verdict codec.Verdict, opts model.ConversionOptions, src model.MediaDescriptor, onProgress func(float64)) (Output, error) {
	if verdict == codec.Copy && opts.Brightness != 1 {
		return Output{}, model.Wrap(model.KindInternal, "transcode video", errors.New("stream copy cannot apply a brightness filter"))
	}
	args := BuildVideoArgs(VideoParams{
		Input:            in,
		Output:           out,
		Verdict:          verdict,
		CRF:              opts.CRF,
		Brightness:       opts.Brightness,
		SourceBitrateBps: src.BitrateBps,
		Threads:          t.threads,
	}, true)
	t.log.Info("transcoding video", "input", filepath.Base(in), "verdict", verdict, "output", filepath.Base(out))
	o, err := t.run(ctx, "transcode video", args, out, src.Duration, onProgress)
	o.Verdict = verdict
	return o, err
}

// TranscodeAudio writes the audio track at out.
func (t *Transcoder) TranscodeAudio(ctx context.Context, in, out string, opts model.ConversionOptions, duration time.Duration, onProgress func(float64)) (Output, error) {
	args := BuildAudioArgs(AudioParams{Input: in, Output: out, Volume: opts.Volume}, true)
	t.log.Info("transcoding audio", "input", filepath.Base(in), "output", filepath.Base(out))
	return t.run(ctx, "transcode audio", args, out, duration, onProgress)
}

func (t *Transcoder) run(ctx context.Context, op string, args []string, out string, duration time.Duration, onProgress func(float64)) (Output, error) {
	if t.ffmpegPath == "" {
		return Output{}, model.Wrap(model.KindTranscode, op, errors.New("ffmpeg path is required"))
	}
	if onProgress == nil {
		onProgress = func(float64) {}
	}
	if err := util.EnsureDir(filepath.Dir(out)); err != nil {
		return Output{}, model.Wrap(model.KindTranscode, op, fmt.Errorf("ensure output dir: %w", err))
	}

	var ps ProgressState
	res, runErr := t.runner.Run(ctx, util.CmdSpec{
		Path:    t.ffmpegPath,
		Args:    args,
		Verbose: t.verbose,
		Logger:  t.log,
		StdoutLine: func(line string) {
			if p, ok := ps.UpdateFromLine(line, duration); ok {
				onProgress(p)
			}
		},
	})
	if runErr != nil {
		// Delete incomplete file
		_ = util.RemoveIfExists(out)
		if tail := util.Tail(res.Stderr, 3); tail != "" {
			runErr = fmt.Errorf("ffmpeg failed: %w: %s", runErr, tail)
		} else {
			runErr = fmt.Errorf("ffmpeg failed: %w", runErr)
		}
		return Output{}, model.Wrap(model.KindTranscode, op, runErr)
	}
	if !util.FileExists(out) {
		return Output{}, model.Wrap(model.KindTranscode, op, fmt.Errorf("ffmpeg produced no %s", filepath.Base(out)))
	}
	onProgress(100)
	return Output{Path: out, Bytes: util.FileSize(out)}, nil
}
