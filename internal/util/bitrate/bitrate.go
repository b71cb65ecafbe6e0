// Package bitrate holds the rate-control arithmetic of video re-encodes.
package bitrate

// FloorBps is the lowest target bitrate used when re-encoding video.
const FloorBps int64 = 6_000_000

// VideoTargetBps returns the re-encode target: the source bitrate, but
// never below FloorBps.
func VideoTargetBps(sourceBps int64) int64 {
	if sourceBps < FloorBps {
		return FloorBps
	}
	return sourceBps
}

// Clamp returns v constrained to [min, max].
func Clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Threads caps a requested encoder thread count to the available processors.
// A non-positive request means "all of them".
func Threads(requested, available int) int {
	if available < 1 {
		available = 1
	}
	if requested <= 0 {
		return available
	}
	return Clamp(requested, 1, available)
}
