package progress

import "time"

// Phase is the state of the pipeline state machine.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseAcquiring         Phase = "acquiring"
	PhaseTranscodingVideo  Phase = "transcoding-video"
	PhaseTranscodingAudio  Phase = "transcoding-audio"
	PhaseAwaitingPackaging Phase = "awaiting-packaging"
	PhaseFinalizing        Phase = "finalizing"
	PhaseUnpacking         Phase = "unpacking"
	PhaseSucceeded         Phase = "succeeded"
	PhaseFailed            Phase = "failed"
)

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// LogStream indicates which stream produced a log line.
type LogStream int

const (
	StreamStdout LogStream = iota
	StreamStderr
)

// Update conveys overall progress and status labels for a run.
type Update struct {
	RunID   string
	Phase   Phase
	Percent float64       // overall, 0..100
	ETA     time.Duration // <0 when unknown

	VideoStatus string // e.g. "DownloadingVideo"
	AudioStatus string // e.g. "ConvertingAudio"
	Message     string
}

// Log is a subprocess output line associated with a run.
type Log struct {
	RunID  string
	Stream LogStream
	Line   string
}

// Result is emitted once per run when it reaches a terminal phase.
type Result struct {
	RunID      string
	Phase      Phase
	OutputPath string
	Bytes      int64
	Err        error // nil on success
}

// Reporter is implemented by UI or any observer interested in progress events.
type Reporter interface {
	Update(u Update)
	Log(l Log)
	Result(r Result)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Update(Update) {}
func (Nop) Log(Log)       {}
func (Nop) Result(Result) {}
