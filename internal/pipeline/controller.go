// Package pipeline sequences acquisition, transcoding and packaging of one
// conversion run and publishes its progress.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"usmconv/internal/acquire"
	"usmconv/internal/catalog"
	"usmconv/internal/codec"
	"usmconv/internal/encoder"
	"usmconv/internal/model"
	"usmconv/internal/progress"
	"usmconv/internal/util"
	"usmconv/internal/util/media"
)

// ErrRunInProgress is returned while another run holds the run-lock.
var ErrRunInProgress = errors.New("a conversion is already running")

// StreamCatalog lists and resolves remote streams.
type StreamCatalog interface {
	Manifest(ctx context.Context, url string) (*catalog.Manifest, error)
}

// Acquirer downloads remote streams.
type Acquirer interface {
	Acquire(ctx context.Context, req acquire.Request, onProgress func(acquire.Progress), onAudioReady func(path string)) (acquire.Result, error)
}

// Prober describes local media files.
type Prober interface {
	Describe(ctx context.Context, path string) (model.MediaDescriptor, error)
}

// Transcoder produces the video intermediate and the audio track.
type Transcoder interface {
	TranscodeVideo(ctx context.Context, in, out string, verdict codec.Verdict, opts model.ConversionOptions, src model.MediaDescriptor, onProgress func(float64)) (encoder.Output, error)
	TranscodeAudio(ctx context.Context, in, out string, opts model.ConversionOptions, duration time.Duration, onProgress func(float64)) (encoder.Output, error)
}

// Packager wraps the container tool.
type Packager interface {
	Create(ctx context.Context, l media.Layout, key model.Key) error
	Finalize(l media.Layout) error
	Unpack(ctx context.Context, src, outDir string, key model.Key) error
}

// Summary describes a finished run.
type Summary struct {
	RunID    string
	Mode     model.WorkMode
	Input    string
	Output   string
	Phase    progress.Phase
	Codec    model.Codec
	Verdict  codec.Verdict
	Err      error
	Started  time.Time
	Finished time.Time
}

// Recorder persists run summaries.
type Recorder interface {
	Record(ctx context.Context, s Summary) error
}

// Controller runs at most one conversion at a time.
type Controller struct {
	catalog    StreamCatalog
	acquirer   Acquirer
	prober     Prober
	transcoder Transcoder
	packager   Packager

	reporter progress.Reporter
	recorder Recorder
	log      hclog.Logger
	now      func() time.Time
	newID    func() string

	lock chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithCatalog sets the remote stream catalog.
func WithCatalog(c StreamCatalog) Option {
	return func(ctl *Controller) { ctl.catalog = c }
}

// WithAcquirer sets the download stage.
func WithAcquirer(a Acquirer) Option {
	return func(ctl *Controller) { ctl.acquirer = a }
}

// WithProber sets the local file analyzer.
func WithProber(p Prober) Option {
	return func(ctl *Controller) { ctl.prober = p }
}

// WithTranscoder sets the transcode stage.
func WithTranscoder(t Transcoder) Option {
	return func(ctl *Controller) { ctl.transcoder = t }
}

// WithPackager sets the packaging stage.
func WithPackager(p Packager) Option {
	return func(ctl *Controller) { ctl.packager = p }
}

// WithReporter attaches a progress reporter (used by TUI).
func WithReporter(rp progress.Reporter) Option {
	return func(ctl *Controller) { ctl.reporter = rp }
}

// WithRecorder persists a Summary of each run.
func WithRecorder(r Recorder) Option {
	return func(ctl *Controller) { ctl.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(ctl *Controller) { ctl.now = now }
}

// WithIDGenerator replaces the UUID run ID source.
func WithIDGenerator(f func() string) Option {
	return func(ctl *Controller) { ctl.newID = f }
}

// New constructs a Controller with the provided options.
func New(opts ...Option) *Controller {
	c := &Controller{lock: make(chan struct{}, 1)}
	for _, o := range opts {
		o(c)
	}
	if c.reporter == nil {
		c.reporter = progress.Nop{}
	}
	if c.log == nil {
		c.log = hclog.NewNullLogger()
	}
	c.log = c.log.Named("pipeline")
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// Busy reports whether a run currently holds the run-lock.
func (c *Controller) Busy() bool {
	return len(c.lock) > 0
}

// Run executes req to completion. Precondition failures return before any
// state is created or any event is emitted. Otherwise the run always ends
// with an Update at 100% followed by one Result, and the lock is released
// before the Result is reported.
func (c *Controller) Run(ctx context.Context, req model.Request) (progress.Result, error) {
	if err := c.preflight(req); err != nil {
		return progress.Result{}, err
	}
	select {
	case c.lock <- struct{}{}:
	default:
		return progress.Result{}, &model.Error{Kind: model.KindBusy, Op: "run", Err: ErrRunInProgress}
	}
	locked := true
	unlock := func() {
		if locked {
			locked = false
			<-c.lock
		}
	}
	defer unlock()

	id := c.newID()
	r := &run{
		ctl:     c,
		req:     req,
		st:      newState(id, req.Mode),
		log:     c.log.With("run", id),
		started: c.now(),
	}
	r.loop = startLoop(r.st, c.reporter, c.now, r.log)
	r.log.Info("run started", "mode", req.Mode, "input", req.Source(), "output", req.OutputPath)

	err := r.execute(ctx)
	r.cleanup()

	res := progress.Result{RunID: id, OutputPath: r.output, Err: err}
	if err != nil {
		res.Phase = progress.PhaseFailed
		r.loop.send(event{phase: progress.PhaseFailed, message: model.UserMessage(err)})
		r.log.Error("run failed", "error", err)
	} else {
		res.Phase = progress.PhaseSucceeded
		if req.Mode != model.ModeLocalArchive {
			res.Bytes = util.FileSize(r.output)
		}
		r.loop.send(event{phase: progress.PhaseSucceeded, message: model.UserMessage(nil)})
		r.log.Info("run succeeded", "output", r.output)
	}
	r.loop.close()
	c.record(r, res)

	unlock()
	c.reporter.Result(res)
	return res, err
}

// preflight checks preconditions that must hold before any stage starts.
func (c *Controller) preflight(req model.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Mode == model.ModeLocalFile || req.Mode == model.ModeLocalArchive {
		if _, err := os.Stat(req.InputPath); err != nil {
			return &model.Error{Kind: model.KindInput, Op: "validate", Err: err}
		}
	}
	if req.Mode == model.ModeLocalFile {
		if err := checkOverwritesInput(req); err != nil {
			return &model.Error{Kind: model.KindInput, Op: "validate", Err: err}
		}
	}
	var missing string
	switch req.Mode {
	case model.ModeRemote:
		switch {
		case c.catalog == nil:
			missing = "catalog"
		case c.acquirer == nil:
			missing = "acquirer"
		}
	case model.ModeLocalFile:
		if c.prober == nil {
			missing = "prober"
		}
	}
	if missing == "" && req.Mode != model.ModeLocalArchive && c.transcoder == nil {
		missing = "transcoder"
	}
	if missing == "" && c.packager == nil {
		missing = "packager"
	}
	if missing != "" {
		return &model.Error{Kind: model.KindInternal, Op: "run", Err: fmt.Errorf("controller has no %s", missing)}
	}
	return nil
}

// ErrOutputIsInput means a file the run writes or deletes is the input file.
var ErrOutputIsInput = errors.New("run would overwrite its input file")

// checkOverwritesInput rejects a local run whose layout, for either target
// codec, names the input file as the audio track, the intermediate, the
// tool output or the final container.
func checkOverwritesInput(req model.Request) error {
	in, err := filepath.Abs(req.InputPath)
	if err != nil {
		return err
	}
	for _, c := range []model.Codec{model.CodecVP9, model.CodecH264} {
		l := media.NewLayout(req.OutputDir(), req.OutputBase(), c)
		for _, p := range []string{l.Audio, l.Intermediate, l.Produced, l.Final} {
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			if abs == in {
				return fmt.Errorf("%w: %s", ErrOutputIsInput, req.InputPath)
			}
		}
	}
	return nil
}

func (c *Controller) record(r *run, res progress.Result) {
	if c.recorder == nil {
		return
	}
	s := Summary{
		RunID:    res.RunID,
		Mode:     r.req.Mode,
		Input:    r.req.Source(),
		Output:   res.OutputPath,
		Phase:    res.Phase,
		Codec:    r.target,
		Verdict:  r.verdict,
		Err:      res.Err,
		Started:  r.started,
		Finished: c.now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.recorder.Record(ctx, s); err != nil {
		c.log.Warn("recording run failed", "run", res.RunID, "error", err)
	}
}

// run is the per-invocation context of Controller.Run.
type run struct {
	ctl     *Controller
	req     model.Request
	st      *state
	loop    *loop
	log     hclog.Logger
	started time.Time

	target    model.Codec
	verdict   codec.Verdict
	output    string
	downloads []string
}

func (r *run) send(e event) { r.loop.send(e) }

// recovered converts a panic value into an internal error.
func (r *run) recovered(p any) error {
	r.log.Error("panic in pipeline", "panic", p, "stack", string(debug.Stack()))
	return &model.Error{Kind: model.KindInternal, Op: "run", Err: fmt.Errorf("panic: %v", p)}
}

// guard wraps a stage goroutine so a panic fails the run instead of the process.
func (r *run) guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = r.recovered(p)
			}
		}()
		return fn()
	}
}

// execute runs the mode's stage chain.
func (r *run) execute(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = r.recovered(p)
		}
	}()
	switch r.req.Mode {
	case model.ModeRemote:
		return r.remote(ctx)
	case model.ModeLocalFile:
		return r.local(ctx)
	case model.ModeLocalArchive:
		return r.extract(ctx)
	}
	return &model.Error{Kind: model.KindInput, Op: "run", Err: fmt.Errorf("unknown mode %s", r.req.Mode)}
}

// plan resolves the target codec, the copy decision and the file layout.
func (r *run) plan(md model.MediaDescriptor) media.Layout {
	opts := r.req.Options
	r.target = codec.Resolve(opts.Codec, md.Codec)
	r.verdict = codec.Decide(md.Codec, r.target, opts.Brightness)
	r.log.Info("plan", "source_codec", md.Codec, "target", r.target, "verdict", r.verdict, "duration", md.Duration)
	l := media.NewLayout(r.req.OutputDir(), r.req.OutputBase(), r.target)
	r.output = l.Final
	return l
}

func (r *run) remote(ctx context.Context) error {
	r.send(event{phase: progress.PhaseAcquiring, video: statusAnalyzing, audio: statusWaiting})

	m, err := r.ctl.catalog.Manifest(ctx, r.req.URL)
	if err != nil {
		return model.Wrap(model.KindAcquisition, "manifest", err)
	}
	video, err := catalog.SelectVideo(m.Video, r.req.Selection)
	if err != nil {
		return model.Wrap(model.KindAcquisition, "select stream", err)
	}
	var audio *model.StreamDescriptor
	if a, err := catalog.BestAudio(m.Audio); err == nil {
		audio = &a
	}
	md := m.Media(video, audio != nil, audioCodec(audio))
	if !md.Valid() {
		return &model.Error{Kind: model.KindMedia, Op: "manifest", Err: fmt.Errorf("unknown codec or duration for %q", m.Title)}
	}
	l := r.plan(md)
	if err := util.EnsureDir(l.Dir); err != nil {
		return model.Wrap(model.KindInput, "output dir", err)
	}

	actx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(actx)
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	if audio == nil {
		r.send(event{stage: stageAudioDownload, value: 100})
		r.send(event{stage: stageAudioTranscode, value: 100, audio: statusNone})
	}
	r.send(event{video: statusWaiting, audio: statusDownloading})

	res, acqErr := r.ctl.acquirer.Acquire(gctx, acquire.Request{
		Video:     video,
		Audio:     audio,
		Dir:       l.Dir,
		SafeTitle: md.SafeTitle(),
	}, func(p acquire.Progress) {
		r.send(event{stage: stageAudioDownload, value: p.Audio})
		r.send(event{stage: stageVideoDownload, value: p.Video})
	}, func(path string) {
		r.send(event{video: statusDownloading, audio: statusConverting})
		g.Go(r.guard(func() error { return r.audio(gctx, path, l.Audio, md.Duration) }))
	})
	r.downloads = append(r.downloads, res.AudioPath, res.VideoPath)
	if acqErr != nil {
		cancel()
		if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
			return werr
		}
		return acqErr
	}

	r.send(event{phase: progress.PhaseTranscodingVideo, video: statusConverting})
	if err := r.video(gctx, res.VideoPath, l, md); err != nil {
		cancel()
		if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
			return werr
		}
		return err
	}

	r.send(event{phase: progress.PhaseTranscodingAudio, video: statusDone})
	if err := g.Wait(); err != nil {
		return err
	}
	return r.pack(ctx, l)
}

func (r *run) local(ctx context.Context) error {
	r.send(event{video: statusAnalyzing, audio: statusWaiting})
	md, err := r.ctl.prober.Describe(ctx, r.req.InputPath)
	if err != nil {
		return model.Wrap(model.KindMedia, "probe", err)
	}
	if !md.Valid() {
		return &model.Error{Kind: model.KindMedia, Op: "probe", Err: errors.New("unknown codec or duration")}
	}
	l := r.plan(md)
	if err := util.EnsureDir(l.Dir); err != nil {
		return model.Wrap(model.KindInput, "output dir", err)
	}

	actx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(actx)
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	r.send(event{phase: progress.PhaseTranscodingVideo, video: statusConverting})
	if md.HasAudio {
		r.send(event{audio: statusConverting})
		g.Go(r.guard(func() error { return r.audio(gctx, r.req.InputPath, l.Audio, md.Duration) }))
	} else {
		r.send(event{stage: stageAudioTranscode, value: 100, audio: statusNone})
	}

	if err := r.video(gctx, r.req.InputPath, l, md); err != nil {
		cancel()
		if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
			return werr
		}
		return err
	}
	r.send(event{phase: progress.PhaseTranscodingAudio, video: statusDone})
	if err := g.Wait(); err != nil {
		return err
	}
	return r.pack(ctx, l)
}

func (r *run) extract(ctx context.Context) error {
	r.send(event{phase: progress.PhaseUnpacking, video: statusExtracting})
	dir := r.req.OutputDir()
	if err := r.ctl.packager.Unpack(ctx, r.req.InputPath, dir, r.req.Options.Key); err != nil {
		return model.Wrap(model.KindPackaging, "unpack", err)
	}
	r.output = dir
	r.send(event{packaged: true})
	return nil
}

func (r *run) video(ctx context.Context, in string, l media.Layout, md model.MediaDescriptor) error {
	_, err := r.ctl.transcoder.TranscodeVideo(ctx, in, l.Intermediate, r.verdict, r.req.Options, md, func(p float64) {
		r.send(event{stage: stageVideoTranscode, value: p})
	})
	if err != nil {
		return model.Wrap(model.KindTranscode, "transcode video", err)
	}
	r.send(event{stage: stageVideoTranscode, value: 100})
	return nil
}

func (r *run) audio(ctx context.Context, in, out string, d time.Duration) error {
	_, err := r.ctl.transcoder.TranscodeAudio(ctx, in, out, r.req.Options, d, func(p float64) {
		r.send(event{stage: stageAudioTranscode, value: p})
	})
	if err != nil {
		return model.Wrap(model.KindTranscode, "transcode audio", err)
	}
	r.send(event{stage: stageAudioTranscode, value: 100, audio: statusDone})
	return nil
}

func (r *run) pack(ctx context.Context, l media.Layout) error {
	r.send(event{phase: progress.PhaseAwaitingPackaging, video: statusPackaging})
	if err := r.ctl.packager.Create(ctx, l, r.req.Options.Key); err != nil {
		return model.Wrap(model.KindPackaging, "package", err)
	}
	r.send(event{phase: progress.PhaseFinalizing, packaged: true})
	if err := r.ctl.packager.Finalize(l); err != nil {
		return model.Wrap(model.KindPackaging, "finalize", err)
	}
	return nil
}

// cleanup removes downloaded sources unless the request keeps them.
func (r *run) cleanup() {
	if r.req.KeepTemp {
		return
	}
	for _, p := range r.downloads {
		if p == "" {
			continue
		}
		if err := util.RemoveIfExists(p); err != nil {
			r.log.Warn("remove download", "path", filepath.Base(p), "error", err)
		}
	}
}

func audioCodec(a *model.StreamDescriptor) string {
	if a == nil {
		return ""
	}
	return a.Codec
}
