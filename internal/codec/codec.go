// Package codec decides whether a source video stream can be stream-copied
// into the target elementary format or has to be re-encoded.
package codec

import (
	"strings"

	"usmconv/internal/model"
)

// Family is the normalized codec family of a source stream.
type Family string

const (
	FamilyVP9   Family = "vp9"
	FamilyH26x  Family = "h26"
	FamilyOther Family = "other"
)

// aliases maps three-letter codec tag prefixes to families.
var aliases = map[string]Family{
	"vp9": FamilyVP9,
	"h26": FamilyH26x,
	"avc": FamilyH26x,
}

// Verdict is either Copy or the encoder name handed to ffmpeg's -c:v.
type Verdict string

const (
	Copy        Verdict = "copy"
	EncoderVP9  Verdict = "libvpx-vp9"
	EncoderH264 Verdict = "libx264"
)

// Normalize maps a codec tag such as "vp09.00.51.08", "avc1.640028" or
// "h264" onto a Family. Tags shorter than three characters are FamilyOther.
func Normalize(tag string) Family {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if len(tag) < 3 {
		return FamilyOther
	}
	if f, ok := aliases[tag[:3]]; ok {
		return f
	}
	// Manifest tags spell VP9 as vp09.*.
	if strings.HasPrefix(tag, "vp09") {
		return FamilyVP9
	}
	return FamilyOther
}

// FamilyOf returns the family a target codec belongs to.
func FamilyOf(c model.Codec) Family {
	switch c {
	case model.CodecVP9:
		return FamilyVP9
	case model.CodecH264:
		return FamilyH26x
	default:
		return FamilyOther
	}
}

// EncoderFor returns the re-encode verdict for a target codec.
func EncoderFor(c model.Codec) Verdict {
	if c == model.CodecH264 {
		return EncoderH264
	}
	return EncoderVP9
}

// Decide returns Copy iff the source family equals the target's family and no
// brightness filter is requested. Stream copy cannot apply pixel filters, so
// Copy never coexists with a brightness other than 1.
func Decide(sourceTag string, target model.Codec, brightness float64) Verdict {
	src := Normalize(sourceTag)
	if src != FamilyOther && src == FamilyOf(target) && brightness == 1 {
		return Copy
	}
	return EncoderFor(target)
}

// Recommend picks the target codec that allows stream copy for the source.
// Sources outside both families default to VP9.
func Recommend(sourceTag string) model.Codec {
	if Normalize(sourceTag) == FamilyH26x {
		return model.CodecH264
	}
	return model.CodecVP9
}

// Resolve replaces CodecAuto with the recommendation for sourceTag.
func Resolve(c model.Codec, sourceTag string) model.Codec {
	if c == model.CodecAuto || c == "" {
		return Recommend(sourceTag)
	}
	return c
}
