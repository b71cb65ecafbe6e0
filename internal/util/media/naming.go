// Package media names the files a conversion run reads and writes.
package media

import (
	"path/filepath"

	"usmconv/internal/model"
)

// SafeName is the fixed base name of tool-produced intermediate artifacts.
// It keeps user titles out of the packaging tool's command line.
const SafeName = "converttempfile"

const (
	AudioExt     = ".ogg"
	ContainerExt = ".usm"
	DownloadExt  = ".webm"
)

// Layout lists the on-disk artifacts of one packaging run.
type Layout struct {
	Dir          string
	Intermediate string // <dir>/<safe><codec suffix>
	Audio        string // <dir>/<base>.ogg
	Produced     string // <dir>/<safe>.usm, written by the packaging tool
	Final        string // <dir>/<base>.usm
}

// NewLayout derives the run layout from the output directory, the user's
// chosen base name and the resolved target codec.
func NewLayout(dir, base string, c model.Codec) Layout {
	return Layout{
		Dir:          dir,
		Intermediate: filepath.Join(dir, SafeName+c.Suffix()),
		Audio:        filepath.Join(dir, base+AudioExt),
		Produced:     filepath.Join(dir, SafeName+ContainerExt),
		Final:        filepath.Join(dir, base+ContainerExt),
	}
}

// ProducedBase is the --output argument handed to the packaging tool.
func (l Layout) ProducedBase() string {
	return filepath.Join(l.Dir, SafeName)
}

// AudioDownload is where the remote audio stream is saved.
func AudioDownload(dir, safeTitle string) string {
	return filepath.Join(dir, safeTitle+"audio"+DownloadExt)
}

// VideoDownload is where the remote video stream is saved.
func VideoDownload(dir, safeTitle, label string) string {
	return filepath.Join(dir, safeTitle+label+DownloadExt)
}
