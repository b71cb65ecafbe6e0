// Package acquire downloads the selected remote audio and video streams into
// the output directory.
package acquire

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"usmconv/internal/fetch"
	"usmconv/internal/model"
	"usmconv/internal/util/media"
)

// Resolver turns a stream descriptor into a download URL.
type Resolver interface {
	Resolve(ctx context.Context, d model.StreamDescriptor) (string, error)
}

// Fetcher downloads one URL to a file.
type Fetcher interface {
	Download(ctx context.Context, url, dest string, onProgress fetch.ProgressFunc) (fetch.Result, error)
}

// Progress is the download completion of each stream, in [0,100].
type Progress struct {
	Audio float64
	Video float64
}

// Request names what to download and where.
type Request struct {
	Video     model.StreamDescriptor
	Audio     *model.StreamDescriptor // nil when the source has no audio
	Dir       string
	SafeTitle string
}

// Result holds the local paths of the downloaded streams.
type Result struct {
	VideoPath string
	AudioPath string // empty when Request.Audio is nil
}

// Stage downloads audio then video. The two transfers are sequential; the
// audio transcode may start as soon as audio is on disk.
type Stage struct {
	resolver Resolver
	fetcher  Fetcher
	log      hclog.Logger
}

// New constructs a Stage.
func New(r Resolver, f Fetcher, log hclog.Logger) *Stage {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Stage{resolver: r, fetcher: f, log: log.Named("acquire")}
}

// Acquire downloads req. onProgress reports audio progress with video pinned
// at 0, then video progress with audio pinned at 100. onAudioReady is called
// once the audio file is complete, before the video download starts. Every
// error is of kind acquisition; paths already downloaded are returned with it
// so the caller can clean them up.
func (s *Stage) Acquire(ctx context.Context, req Request, onProgress func(Progress), onAudioReady func(path string)) (Result, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	var res Result

	videoURL, err := s.resolver.Resolve(ctx, req.Video)
	if err != nil {
		return res, model.Wrap(model.KindAcquisition, "resolve video", err)
	}
	audioURL := ""
	if req.Audio != nil {
		if audioURL, err = s.resolver.Resolve(ctx, *req.Audio); err != nil {
			return res, model.Wrap(model.KindAcquisition, "resolve audio", err)
		}
	}

	if req.Audio != nil {
		dest := media.AudioDownload(req.Dir, req.SafeTitle)
		s.log.Info("downloading audio", "stream", req.Audio.ID, "dest", dest)
		onProgress(Progress{})
		if _, err := s.fetcher.Download(ctx, audioURL, dest, func(done, total int64) {
			onProgress(Progress{Audio: percent(done, total)})
		}); err != nil {
			return res, model.Wrap(model.KindAcquisition, "download audio", err)
		}
		res.AudioPath = dest
		if onAudioReady != nil {
			onAudioReady(dest)
		}
	}

	dest := media.VideoDownload(req.Dir, req.SafeTitle, req.Video.Label)
	s.log.Info("downloading video", "stream", req.Video.ID, "dest", dest)
	onProgress(Progress{Audio: 100})
	if _, err := s.fetcher.Download(ctx, videoURL, dest, func(done, total int64) {
		onProgress(Progress{Audio: 100, Video: percent(done, total)})
	}); err != nil {
		return res, model.Wrap(model.KindAcquisition, "download video", err)
	}
	res.VideoPath = dest
	onProgress(Progress{Audio: 100, Video: 100})
	return res, nil
}

func percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// String implements fmt.Stringer for logging.
func (p Progress) String() string {
	return fmt.Sprintf("audio=%.1f%% video=%.1f%%", p.Audio, p.Video)
}
