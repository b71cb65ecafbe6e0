// Package format renders sizes and rates for terminal output.
package format

import "strconv"

var (
	byteUnits = []string{"KB", "MB", "GB", "TB"}
	rateUnits = []string{"kb/s", "Mb/s", "Gb/s"}
)

// HumanizeBytes renders a byte count with binary units, e.g. "1.5 MB".
func HumanizeBytes(b int64) string {
	return humanize(b, 1024, "B", byteUnits)
}

// HumanizeBitrate renders bits per second with decimal units, e.g. "6.0 Mb/s".
func HumanizeBitrate(bps int64) string {
	return humanize(bps, 1000, "b/s", rateUnits)
}

// humanize prints v as an integer below base and otherwise with one decimal
// in the largest unit that keeps the value at or above 1.
func humanize(v int64, base float64, unit string, units []string) string {
	if float64(v) < base {
		return strconv.FormatInt(v, 10) + " " + unit
	}
	f := float64(v) / base
	i := 0
	for f >= base && i < len(units)-1 {
		f /= base
		i++
	}
	return strconv.FormatFloat(f, 'f', 1, 64) + " " + units[i]
}
