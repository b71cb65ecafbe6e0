package pipeline

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"usmconv/internal/progress"
)

type stageID int

const (
	stageNone stageID = iota
	stageAudioDownload
	stageVideoDownload
	stageAudioTranscode
	stageVideoTranscode
)

// Status labels shown per track.
const (
	statusWaiting     = "Waiting"
	statusAnalyzing   = "Analyzing"
	statusDownloading = "Downloading"
	statusConverting  = "Converting"
	statusPackaging   = "Packaging"
	statusExtracting  = "Extracting"
	statusDone        = "Done"
	statusNone        = "No audio"
	statusFailed      = "Failed"
)

// event is one state change sent to the loop. Zero fields are ignored.
type event struct {
	phase    progress.Phase
	stage    stageID
	value    float64
	video    string
	audio    string
	message  string
	packaged bool
}

// emitInterval throttles progress-only updates to the reporter.
const emitInterval = 100 * time.Millisecond

// loop owns the run state. It applies events in order, recomputes the
// aggregate and ETA, and forwards updates to the reporter.
type loop struct {
	st       *state
	events   chan event
	done     chan struct{}
	reporter progress.Reporter
	eta      *progress.Estimator
	now      func() time.Time
	log      hclog.Logger

	lastEmit time.Time
}

func startLoop(st *state, reporter progress.Reporter, now func() time.Time, log hclog.Logger) *loop {
	l := &loop{
		st:       st,
		events:   make(chan event, 256),
		done:     make(chan struct{}),
		reporter: reporter,
		eta:      progress.NewEstimator(now),
		now:      now,
		log:      log,
	}
	go l.run()
	return l
}

func (l *loop) send(e event) { l.events <- e }

// close drains remaining events and waits for the loop to exit.
func (l *loop) close() {
	close(l.events)
	<-l.done
}

func (l *loop) run() {
	defer close(l.done)
	for e := range l.events {
		l.handle(e)
	}
}

func (l *loop) handle(e event) {
	st := l.st
	force := false
	if e.phase != "" && e.phase != st.phase {
		if err := st.advance(e.phase); err != nil {
			l.log.Error("dropping phase change", "error", err)
		} else {
			l.log.Debug("phase", "run", st.runID, "phase", st.phase)
			force = true
		}
	}
	if e.stage != stageNone {
		st.apply(e.stage, e.value)
	}
	if e.packaged && !st.packaged {
		st.packaged = true
		force = true
	}
	if e.video != "" && e.video != st.videoStatus {
		st.videoStatus = e.video
		force = true
	}
	if e.audio != "" && e.audio != st.audioStatus {
		st.audioStatus = e.audio
		force = true
	}
	switch st.phase {
	case progress.PhaseFailed:
		if st.videoStatus != statusDone {
			st.videoStatus = statusFailed
		}
		if st.audioStatus != statusDone && st.audioStatus != statusNone {
			st.audioStatus = statusFailed
		}
	case progress.PhaseSucceeded:
		st.videoStatus = statusDone
		if st.audioStatus != "" && st.audioStatus != statusNone {
			st.audioStatus = statusDone
		}
	}
	if e.message != "" {
		st.message = e.message
		force = true
	}

	st.recompute()
	if !st.phase.Terminal() {
		if eta, ok := l.eta.Observe(st.percent); ok {
			st.eta = eta
		}
	}

	now := l.now()
	if !force && st.percent < 100 && now.Sub(l.lastEmit) < emitInterval {
		return
	}
	l.lastEmit = now
	l.reporter.Update(st.update())
}
