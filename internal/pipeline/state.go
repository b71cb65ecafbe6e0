package pipeline

import (
	"fmt"
	"time"

	"usmconv/internal/model"
	"usmconv/internal/progress"
)

// isValidTransition enforces the allowed phase edges. Failed is reachable
// from every non-terminal phase.
func isValidTransition(mode model.WorkMode, from, to progress.Phase) bool {
	if to == progress.PhaseFailed {
		return !from.Terminal()
	}
	switch from {
	case progress.PhaseIdle:
		switch mode {
		case model.ModeRemote:
			return to == progress.PhaseAcquiring
		case model.ModeLocalFile:
			return to == progress.PhaseTranscodingVideo
		case model.ModeLocalArchive:
			return to == progress.PhaseUnpacking
		}
		return false
	case progress.PhaseAcquiring:
		return to == progress.PhaseTranscodingVideo
	case progress.PhaseTranscodingVideo:
		return to == progress.PhaseTranscodingAudio
	case progress.PhaseTranscodingAudio:
		return to == progress.PhaseAwaitingPackaging
	case progress.PhaseAwaitingPackaging:
		return to == progress.PhaseFinalizing
	case progress.PhaseFinalizing:
		return to == progress.PhaseSucceeded
	case progress.PhaseUnpacking:
		return to == progress.PhaseSucceeded
	default:
		return false
	}
}

// state is the single live PipelineState. Only the event loop touches it.
type state struct {
	runID    string
	mode     model.WorkMode
	phase    progress.Phase
	stages   progress.Stages
	packaged bool

	videoStatus string
	audioStatus string
	message     string

	percent float64
	eta     time.Duration
}

func newState(runID string, mode model.WorkMode) *state {
	return &state{runID: runID, mode: mode, phase: progress.PhaseIdle, eta: -1}
}

func (s *state) advance(to progress.Phase) error {
	if !isValidTransition(s.mode, s.phase, to) {
		return fmt.Errorf("invalid transition: %s -> %s", s.phase, to)
	}
	s.phase = to
	return nil
}

// raise sets a stage value without letting it go backwards.
func raise(dst *float64, v float64) {
	if v > *dst {
		*dst = v
	}
}

func (s *state) apply(st stageID, v float64) {
	switch st {
	case stageAudioDownload:
		raise(&s.stages.AudioDownload, v)
	case stageVideoDownload:
		raise(&s.stages.VideoDownload, v)
	case stageAudioTranscode:
		raise(&s.stages.AudioTranscode, v)
	case stageVideoTranscode:
		raise(&s.stages.VideoTranscode, v)
	}
}

// recompute refreshes the overall percent. Terminal phases force success,
// which pins the percent at 100.
func (s *state) recompute() {
	terminal := s.phase.Terminal()
	p := progress.Aggregate(s.mode, s.stages, s.packaged, terminal)
	if terminal {
		s.percent = p
		s.eta = 0
		return
	}
	if p > s.percent {
		s.percent = p
	}
}

func (s *state) update() progress.Update {
	return progress.Update{
		RunID:       s.runID,
		Phase:       s.phase,
		Percent:     s.percent,
		ETA:         s.eta,
		VideoStatus: s.videoStatus,
		AudioStatus: s.audioStatus,
		Message:     s.message,
	}
}
