package encoder

import (
	"strconv"
	"strings"
	"time"
)

// ProgressState tracks ffmpeg -progress output across lines.
type ProgressState struct {
	OutTimeUs int64
	SpeedStr  string
	TotalSize int64
	Percent   float64
}

// UpdateFromLine consumes one "key=value" line. When the line closes a
// progress block it returns the completion against duration, and ok=true.
// The returned percent never decreases and is 100 at progress=end.
func (ps *ProgressState) UpdateFromLine(line string, duration time.Duration) (percent float64, ok bool) {
	kv := strings.SplitN(line, "=", 2)
	if len(kv) != 2 {
		return 0, false
	}

	key := strings.TrimSpace(kv[0])
	val := strings.TrimSpace(kv[1])

	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys are microseconds.
		if v, err := strconv.ParseInt(val, 10, 64); err == nil && v >= 0 {
			ps.OutTimeUs = v
		}
	case "speed":
		ps.SpeedStr = val
	case "total_size":
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			ps.TotalSize = v
		}
	case "progress":
		p := ps.Percent
		if val == "end" {
			p = 100
		} else if duration > 0 {
			p = float64(ps.OutTimeUs) / float64(duration.Microseconds()) * 100
			if p > 100 {
				p = 100
			}
		}
		if p > ps.Percent {
			ps.Percent = p
		}
		return ps.Percent, true
	}

	return 0, false
}
