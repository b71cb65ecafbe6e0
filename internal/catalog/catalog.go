// Package catalog lists the selectable streams of a remote video using the
// yt-dlp manifest.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"usmconv/internal/codec"
	"usmconv/internal/model"
	"usmconv/internal/util"
)

var (
	ErrNoStreams      = errors.New("no usable streams in manifest")
	ErrStreamNotFound = errors.New("requested stream not found in manifest")
)

// Manifest is the parsed stream list of one remote video.
type Manifest struct {
	URL      string
	Title    string
	Duration time.Duration
	Video    []model.StreamDescriptor // vp9/avc video-only streams, best first
	Audio    []model.StreamDescriptor // audio-only streams, highest bitrate first
}

// Catalog resolves URLs to manifests. Manifests are cached per URL for the
// lifetime of the Catalog.
type Catalog struct {
	dlPath string
	runner util.CmdRunner
	log    hclog.Logger

	mu    sync.Mutex
	cache map[string]*Manifest
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithRunner injects a custom command runner (useful for testing).
func WithRunner(r util.CmdRunner) Option {
	return func(c *Catalog) { c.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(c *Catalog) { c.log = l }
}

// New returns a Catalog that runs the yt-dlp binary at dlPath.
func New(dlPath string, opts ...Option) *Catalog {
	c := &Catalog{dlPath: dlPath, cache: map[string]*Manifest{}}
	for _, o := range opts {
		o(c)
	}
	if c.runner == nil {
		c.runner = util.NewDefaultRunner()
	}
	if c.log == nil {
		c.log = hclog.NewNullLogger()
	}
	c.log = c.log.Named("catalog")
	return c
}

// Manifest fetches (or returns the cached) manifest for url.
func (c *Catalog) Manifest(ctx context.Context, url string) (*Manifest, error) {
	c.mu.Lock()
	if m, ok := c.cache[url]; ok {
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	if c.dlPath == "" {
		return nil, errors.New("downloader path is required")
	}
	if _, err := util.ParseMediaURL(url); err != nil {
		return nil, err
	}
	info, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	m := buildManifest(url, info)
	if len(m.Video) == 0 {
		return nil, fmt.Errorf("%w: no vp9 or avc video-only stream", ErrNoStreams)
	}
	c.log.Debug("manifest loaded", "url", url, "video", len(m.Video), "audio", len(m.Audio))

	c.mu.Lock()
	c.cache[url] = m
	c.mu.Unlock()
	return m, nil
}

// ListVideoStreams returns the video-only vp9/avc streams of url, best first.
func (c *Catalog) ListVideoStreams(ctx context.Context, url string) ([]model.StreamDescriptor, error) {
	m, err := c.Manifest(ctx, url)
	if err != nil {
		return nil, err
	}
	return m.Video, nil
}

// ListAudioStreams returns the audio-only streams of url, highest bitrate first.
func (c *Catalog) ListAudioStreams(ctx context.Context, url string) ([]model.StreamDescriptor, error) {
	m, err := c.Manifest(ctx, url)
	if err != nil {
		return nil, err
	}
	return m.Audio, nil
}

// Resolve returns the download URL of d.
func (c *Catalog) Resolve(_ context.Context, d model.StreamDescriptor) (string, error) {
	if d.URL == "" {
		return "", fmt.Errorf("%w: %s", ErrStreamNotFound, d.ID)
	}
	return d.URL, nil
}

func (c *Catalog) fetch(ctx context.Context, url string) (ytdlpInfo, error) {
	args := []string{
		"--dump-json",
		"--no-playlist",
		"--no-warnings",
		url,
	}
	res, runErr := c.runner.Run(ctx, util.CmdSpec{
		Path:   c.dlPath,
		Args:   args,
		Logger: c.log,
	})
	if runErr != nil && len(res.Stdout) == 0 {
		if tail := util.Tail(res.Stderr, 3); tail != "" {
			return ytdlpInfo{}, fmt.Errorf("manifest fetch failed: %w: %s", runErr, tail)
		}
		return ytdlpInfo{}, fmt.Errorf("manifest fetch failed: %w", runErr)
	}
	return parseInfo(res.Stdout)
}

// parseInfo decodes the manifest. yt-dlp may print more than one JSON line;
// the last one with an ID wins.
func parseInfo(stdout []byte) (ytdlpInfo, error) {
	data := strings.TrimSpace(string(stdout))
	var info ytdlpInfo
	if err := json.Unmarshal([]byte(data), &info); err == nil && info.ID != "" {
		return info, nil
	}
	lines := strings.Split(data, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var tmp ytdlpInfo
		if json.Unmarshal([]byte(line), &tmp) == nil && tmp.ID != "" {
			return tmp, nil
		}
	}
	return ytdlpInfo{}, errors.New("parse manifest JSON: no manifest object in output")
}

func buildManifest(url string, info ytdlpInfo) *Manifest {
	m := &Manifest{
		URL:      url,
		Title:    info.Title,
		Duration: time.Duration(info.Duration * float64(time.Second)),
	}
	for _, f := range info.Formats {
		switch {
		case f.videoOnly():
			fam := codec.Normalize(f.VCodec)
			if fam != codec.FamilyVP9 && fam != codec.FamilyH26x {
				continue
			}
			m.Video = append(m.Video, descriptor(model.StreamVideo, f, f.VBR))
		case f.audioOnly():
			m.Audio = append(m.Audio, descriptor(model.StreamAudio, f, f.ABR))
		}
	}
	sort.SliceStable(m.Video, func(i, j int) bool {
		a, b := m.Video[i], m.Video[j]
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		return a.BitrateBps > b.BitrateBps
	})
	sort.SliceStable(m.Audio, func(i, j int) bool {
		return m.Audio[i].BitrateBps > m.Audio[j].BitrateBps
	})
	return m
}

func descriptor(kind model.StreamKind, f ytdlpFormat, specificKbps float64) model.StreamDescriptor {
	kbps := f.TBR
	if kbps <= 0 {
		kbps = specificKbps
	}
	size := f.Filesize
	if size <= 0 {
		size = f.FilesizeApprox
	}
	d := model.StreamDescriptor{
		ID:         f.FormatID,
		Kind:       kind,
		Codec:      f.VCodec,
		Width:      f.Width,
		Height:     f.Height,
		FPS:        f.FPS,
		BitrateBps: int64(kbps * 1000),
		SizeBytes:  size,
		Ext:        f.Ext,
		URL:        f.URL,
	}
	if kind == model.StreamAudio {
		d.Codec = f.ACodec
		return d
	}
	d.Label = f.FormatNote
	if d.Label == "" && f.Height > 0 {
		d.Label = fmt.Sprintf("%dp", f.Height)
	}
	return d
}

// SelectVideo picks a stream matching sel from streams, which must be sorted
// best first. Empty selection fields match anything.
func SelectVideo(streams []model.StreamDescriptor, sel model.StreamSelection) (model.StreamDescriptor, error) {
	if len(streams) == 0 {
		return model.StreamDescriptor{}, ErrNoStreams
	}
	var want codec.Family
	if sel.Codec != "" {
		want = codec.Normalize(sel.Codec)
	}
	for _, s := range streams {
		if sel.Quality != "" && !strings.EqualFold(s.Label, sel.Quality) {
			continue
		}
		if want != "" && codec.Normalize(s.Codec) != want {
			continue
		}
		return s, nil
	}
	return model.StreamDescriptor{}, fmt.Errorf("%w: quality=%q codec=%q", ErrStreamNotFound, sel.Quality, sel.Codec)
}

// BestAudio returns the highest-bitrate audio stream.
func BestAudio(streams []model.StreamDescriptor) (model.StreamDescriptor, error) {
	if len(streams) == 0 {
		return model.StreamDescriptor{}, fmt.Errorf("%w: no audio-only stream", ErrNoStreams)
	}
	return streams[0], nil
}

// Media describes the remote subject using the chosen video stream.
func (m *Manifest) Media(video model.StreamDescriptor, hasAudio bool, audioCodec string) model.MediaDescriptor {
	return model.MediaDescriptor{
		Title:      m.Title,
		Codec:      video.Codec,
		BitrateBps: video.BitrateBps,
		Duration:   m.Duration,
		AudioCodec: audioCodec,
		HasAudio:   hasAudio,
	}
}
