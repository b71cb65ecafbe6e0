package model

import (
	"fmt"
	"strings"
)

// WorkMode selects which stages a run executes and which progress weights apply.
type WorkMode int

const (
	ModeRemote WorkMode = iota
	ModeLocalFile
	ModeLocalArchive
)

func (m WorkMode) String() string {
	switch m {
	case ModeRemote:
		return "remote"
	case ModeLocalFile:
		return "local"
	case ModeLocalArchive:
		return "extract"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Codec is a target video codec supported by the packaging tool.
type Codec string

const (
	CodecVP9  Codec = "vp9"
	CodecH264 Codec = "h264"
	// CodecAuto defers the choice to codec.Recommend.
	CodecAuto Codec = "auto"
)

// ParseCodec accepts vp9, h264 (or h.264/avc) and auto.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return CodecAuto, nil
	case "vp9":
		return CodecVP9, nil
	case "h264", "h.264", "avc", "x264":
		return CodecH264, nil
	default:
		return "", fmt.Errorf("invalid codec %q (valid: auto|vp9|h264)", s)
	}
}

// Suffix is the elementary container suffix the transcode stage writes for this codec.
func (c Codec) Suffix() string {
	if c == CodecH264 {
		return ".h264"
	}
	return ".ivf"
}

// Label is a human-facing name.
func (c Codec) Label() string {
	switch c {
	case CodecVP9:
		return "VP9"
	case CodecH264:
		return "H.264"
	default:
		return "auto"
	}
}
