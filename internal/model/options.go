package model

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Key is an optional packaging encryption key. The empty key disables encryption.
type Key string

var keyPattern = regexp.MustCompile(`^0x[0-9A-Za-z]{16}$`)

// Enabled reports whether a key was supplied.
func (k Key) Enabled() bool { return k != "" }

// Valid accepts the empty key or exactly "0x" plus 16 alphanumerics.
func (k Key) Valid() bool {
	if !k.Enabled() {
		return true
	}
	return keyPattern.MatchString(string(k))
}

// ConversionOptions are the user parameters of one run.
type ConversionOptions struct {
	Codec      Codec   `json:"codec" yaml:"codec"`
	CRF        int     `json:"crf" yaml:"crf"`
	Volume     float64 `json:"volume" yaml:"volume"`
	Brightness float64 `json:"brightness" yaml:"brightness"`
	Key        Key     `json:"-" yaml:"-"`
}

// DefaultConversionOptions returns neutral filters and automatic codec choice.
func DefaultConversionOptions() ConversionOptions {
	return ConversionOptions{
		Codec:      CodecAuto,
		CRF:        24,
		Volume:     1,
		Brightness: 1,
	}
}

// StreamSelection narrows the remote manifest to one video stream.
type StreamSelection struct {
	Quality string // quality label, e.g. "1080p"; empty selects the best
	Codec   string // "vp9" or "avc"; empty accepts both
}

// Request is everything one run needs.
type Request struct {
	Mode       WorkMode
	URL        string // remote mode
	InputPath  string // local file or archive
	OutputPath string // final container path; for extraction, the output directory
	Options    ConversionOptions
	Selection  StreamSelection
	KeepTemp   bool
}

// Validate checks run preconditions that must hold before any stage starts.
func (r Request) Validate() error {
	switch r.Mode {
	case ModeRemote:
		if strings.TrimSpace(r.URL) == "" {
			return &Error{Kind: KindInput, Op: "validate", Err: ErrEmptyInput}
		}
	case ModeLocalFile, ModeLocalArchive:
		if strings.TrimSpace(r.InputPath) == "" {
			return &Error{Kind: KindInput, Op: "validate", Err: ErrEmptyInput}
		}
	default:
		return &Error{Kind: KindInput, Op: "validate", Err: fmt.Errorf("unknown mode %d", int(r.Mode))}
	}
	if strings.TrimSpace(r.OutputPath) == "" {
		return &Error{Kind: KindInput, Op: "validate", Err: ErrEmptyOutput}
	}
	if !r.Options.Key.Valid() {
		return &Error{Kind: KindInput, Op: "validate", Err: ErrInvalidKey}
	}
	if r.Mode != ModeLocalArchive {
		if r.Options.Volume < 0 || r.Options.Brightness < 0 {
			return &Error{Kind: KindInput, Op: "validate", Err: fmt.Errorf("volume and brightness must not be negative")}
		}
	}
	return nil
}

// Source is the URL in remote mode and the input path otherwise.
func (r Request) Source() string {
	if r.Mode == ModeRemote {
		return r.URL
	}
	return r.InputPath
}

// OutputDir is the directory every artifact of the run lands in.
func (r Request) OutputDir() string {
	if r.Mode == ModeLocalArchive {
		return filepath.Clean(r.OutputPath)
	}
	return filepath.Dir(r.OutputPath)
}

// OutputBase is the user's chosen file name without extension.
func (r Request) OutputBase() string {
	base := filepath.Base(r.OutputPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
