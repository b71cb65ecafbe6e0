// Package probe reads codec, bitrate and duration of a local media file
// with ffprobe.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"usmconv/internal/model"
	"usmconv/internal/util"
)

// ErrNoVideoStream is returned for files without a video stream.
var ErrNoVideoStream = errors.New("no video stream")

// Stream is one ffprobe stream entry.
type Stream struct {
	Index     int               `json:"index"`
	CodecName string            `json:"codec_name"`
	CodecType string            `json:"codec_type"`
	Width     int               `json:"width,omitempty"`
	Height    int               `json:"height,omitempty"`
	BitRate   string            `json:"bit_rate,omitempty"`
	Duration  string            `json:"duration,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Format is the container section of ffprobe output.
type Format struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// Result holds the parsed ffprobe output.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Video returns the first video stream.
func (r *Result) Video() (Stream, bool) {
	for _, s := range r.Streams {
		if s.CodecType == "video" {
			return s, true
		}
	}
	return Stream{}, false
}

// Audio returns the first audio stream.
func (r *Result) Audio() (Stream, bool) {
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			return s, true
		}
	}
	return Stream{}, false
}

// Duration prefers the container duration and falls back to the video stream.
func (r *Result) Duration() (time.Duration, error) {
	raw := r.Format.Duration
	if raw == "" {
		if v, ok := r.Video(); ok {
			raw = v.Duration
		}
	}
	if raw == "" {
		return 0, fmt.Errorf("duration not available in metadata")
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

// Prober runs ffprobe.
type Prober struct {
	path   string
	runner util.CmdRunner
}

// New returns a Prober for the ffprobe binary at path.
func New(path string, runner util.CmdRunner) *Prober {
	if runner == nil {
		runner = util.NewDefaultRunner()
	}
	return &Prober{path: path, runner: runner}
}

// Probe runs ffprobe on src and parses its JSON output.
func (p *Prober) Probe(ctx context.Context, src string) (*Result, error) {
	if src == "" {
		return nil, fmt.Errorf("source path cannot be empty")
	}
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		src,
	}
	res, err := p.runner.Run(ctx, util.CmdSpec{Path: p.path, Args: args})
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	var out Result
	if err := json.Unmarshal(res.Stdout, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON output: %w", err)
	}
	return &out, nil
}

// Describe probes src and builds its MediaDescriptor. Any failure, including
// a file with no video stream or unknown duration, is a media error.
func (p *Prober) Describe(ctx context.Context, src string) (model.MediaDescriptor, error) {
	r, err := p.Probe(ctx, src)
	if err != nil {
		return model.MediaDescriptor{}, model.Wrap(model.KindMedia, "probe", err)
	}
	md, err := r.Describe(src)
	if err != nil {
		return model.MediaDescriptor{}, model.Wrap(model.KindMedia, "probe", err)
	}
	return md, nil
}

// Describe converts the probe result into a MediaDescriptor.
func (r *Result) Describe(src string) (model.MediaDescriptor, error) {
	v, ok := r.Video()
	if !ok {
		return model.MediaDescriptor{}, ErrNoVideoStream
	}
	d, err := r.Duration()
	if err != nil {
		return model.MediaDescriptor{}, err
	}
	md := model.MediaDescriptor{
		Title:      title(r, src),
		Codec:      v.CodecName,
		BitrateBps: parseInt(v.BitRate),
		Duration:   d,
	}
	if md.BitrateBps == 0 {
		md.BitrateBps = parseInt(r.Format.BitRate)
	}
	if a, ok := r.Audio(); ok {
		md.HasAudio = true
		md.AudioCodec = a.CodecName
	}
	if !md.Valid() {
		return model.MediaDescriptor{}, fmt.Errorf("incomplete metadata for %s", filepath.Base(src))
	}
	return md, nil
}

func title(r *Result, src string) string {
	if t := strings.TrimSpace(r.Format.Tags["title"]); t != "" {
		return t
	}
	base := filepath.Base(src)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
