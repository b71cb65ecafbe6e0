package progress

import "usmconv/internal/model"

// Stages holds per-stage fractional progress, each in [0,100].
type Stages struct {
	AudioDownload  float64
	VideoDownload  float64
	AudioTranscode float64
	VideoTranscode float64
}

// packagingWeight is added once the packaging tool has produced its output.
const packagingWeight = 5

// Aggregate folds stage progress into one overall percentage using the
// weight table of mode. A done packaging step always yields 100 in archive
// mode; in the other modes it contributes its fixed weight. forceSuccess
// returns 100 whatever the stage values are; a run that ends, successfully
// or not, is reported with it.
func Aggregate(mode model.WorkMode, s Stages, packagingDone, forceSuccess bool) float64 {
	if forceSuccess {
		return 100
	}
	var p float64
	switch mode {
	case model.ModeRemote:
		p = clampStage(s.AudioDownload)*0.10 +
			clampStage(s.VideoDownload)*0.35 +
			clampStage(s.AudioTranscode)*0.05 +
			clampStage(s.VideoTranscode)*0.45
	case model.ModeLocalFile:
		p = clampStage(s.VideoTranscode)*0.75 + clampStage(s.AudioTranscode)*0.20
	case model.ModeLocalArchive:
		if packagingDone {
			return 100
		}
		return 0
	}
	if packagingDone {
		p += packagingWeight
	}
	return clampStage(p)
}

func clampStage(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
