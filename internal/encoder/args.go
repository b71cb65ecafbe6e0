package encoder

import (
	"strconv"

	"usmconv/internal/codec"
	"usmconv/internal/util/bitrate"
)

const (
	AudioCodec      = "libvorbis"
	AudioSampleRate = 44100
	AudioBitrate    = "320k"
	// vp9Speed is libvpx-vp9's -speed; x264 uses x264Preset instead.
	vp9Speed   = "4"
	x264Preset = "veryfast"
)

// VideoParams are the inputs of one video transcode.
type VideoParams struct {
	Input            string
	Output           string
	Verdict          codec.Verdict
	CRF              int
	Brightness       float64
	SourceBitrateBps int64
	Threads          int
}

// BuildVideoArgs constructs ffmpeg arguments for the video-only intermediate.
// A Copy verdict carries no rate control or filters.
func BuildVideoArgs(p VideoParams, includeProgress bool) []string {
	args := []string{
		"-y",
		"-i", p.Input,
		"-an",
		"-c:v", string(p.Verdict),
	}

	if p.Verdict != codec.Copy {
		args = append(args,
			"-b:v", strconv.FormatInt(bitrate.VideoTargetBps(p.SourceBitrateBps), 10),
			"-crf", strconv.Itoa(p.CRF),
			"-threads", strconv.Itoa(p.Threads),
		)
		if p.Verdict == codec.EncoderVP9 {
			args = append(args, "-speed", vp9Speed)
		} else {
			args = append(args, "-preset", x264Preset)
		}
		args = append(args, "-vf", BrightnessFilter(p.Brightness))
	}

	if includeProgress {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}

	args = append(args, p.Output)
	return args
}

// BrightnessFilter maps full input white to brightness.
func BrightnessFilter(brightness float64) string {
	return "curves=all='0/0 1/" + strconv.FormatFloat(brightness, 'f', -1, 64) + "'"
}

// AudioParams are the inputs of one audio transcode.
type AudioParams struct {
	Input  string
	Output string
	Volume float64
}

// BuildAudioArgs constructs ffmpeg arguments for the audio track. The volume
// filter is omitted when Volume is exactly 1.
func BuildAudioArgs(p AudioParams, includeProgress bool) []string {
	args := []string{
		"-y",
		"-i", p.Input,
		"-vn",
		"-c:a", AudioCodec,
		"-ar", strconv.Itoa(AudioSampleRate),
		"-b:a", AudioBitrate,
	}
	if p.Volume != 1 {
		args = append(args, "-af", "volume="+strconv.FormatFloat(p.Volume, 'f', -1, 64))
	}

	if includeProgress {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}

	args = append(args, p.Output)
	return args
}
