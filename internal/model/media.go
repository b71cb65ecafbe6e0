package model

import (
	"regexp"
	"strings"
	"time"
)

// StreamKind distinguishes video-only from audio-only stream descriptors.
type StreamKind string

const (
	StreamVideo StreamKind = "video"
	StreamAudio StreamKind = "audio"
)

// StreamDescriptor is one selectable stream from a remote manifest.
type StreamDescriptor struct {
	ID         string     `json:"id" yaml:"id"`
	Kind       StreamKind `json:"kind" yaml:"kind"`
	Codec      string     `json:"codec" yaml:"codec"`
	Label      string     `json:"label,omitempty" yaml:"label,omitempty"` // quality label, e.g. "1080p60"
	Width      int        `json:"width,omitempty" yaml:"width,omitempty"`
	Height     int        `json:"height,omitempty" yaml:"height,omitempty"`
	FPS        float64    `json:"fps,omitempty" yaml:"fps,omitempty"`
	BitrateBps int64      `json:"bitrate_bps" yaml:"bitrate_bps"`
	SizeBytes  int64      `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
	Ext        string     `json:"ext,omitempty" yaml:"ext,omitempty"`
	URL        string     `json:"-" yaml:"-"`
}

// MediaDescriptor is the subject of a conversion. It is filled once by
// acquisition or local analysis and read-only afterwards.
type MediaDescriptor struct {
	Title      string        `json:"title" yaml:"title"`
	Codec      string        `json:"codec" yaml:"codec"`
	BitrateBps int64         `json:"bitrate_bps" yaml:"bitrate_bps"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	AudioCodec string        `json:"audio_codec,omitempty" yaml:"audio_codec,omitempty"`
	HasAudio   bool          `json:"has_audio" yaml:"has_audio"`
}

// Valid reports whether both codec and duration are known. An invalid
// descriptor blocks transcoding.
func (m MediaDescriptor) Valid() bool {
	return strings.TrimSpace(m.Codec) != "" && m.Duration > 0
}

var unsafeTitleChars = regexp.MustCompile(`[\\/:*?"'|<>]`)

// SafeTitle is Title with path and shell-hostile characters stripped.
func (m MediaDescriptor) SafeTitle() string {
	return SanitizeTitle(m.Title)
}

// SanitizeTitle strips \ / : * ? " ' | < > from s.
func SanitizeTitle(s string) string {
	return unsafeTitleChars.ReplaceAllString(s, "")
}
