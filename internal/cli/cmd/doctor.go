package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"usmconv/internal/config"
	"usmconv/internal/util"
	"usmconv/internal/util/deps"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose external dependencies (yt-dlp, ffmpeg, ffprobe, python + packaging module)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := config.Load()
			out := cmd.OutOrStdout()
			var missing []error

			check := func(label, path string, err error) {
				if err != nil {
					fmt.Fprintf(out, "%-11s missing (%v)\n", label+":", err)
					missing = append(missing, err)
					return
				}
				fmt.Fprintf(out, "%-11s %s\n", label+":", path)
			}

			dl, err := deps.FindDownloader(s.Downloader)
			check("Downloader", dl, err)
			ff, err := deps.FindFFmpeg(s.FFmpeg)
			check("FFmpeg", ff, err)
			fp, err := deps.FindFFprobe(s.FFprobe)
			check("FFprobe", fp, err)
			py, err := deps.FindPython(s.Python)
			check("Python", py, err)

			if py != "" {
				_, err := runner.Run(cmd.Context(), util.CmdSpec{
					Path: py,
					Args: []string{"-c", "import " + s.PackagerModule},
				})
				if err != nil {
					err = fmt.Errorf("python module %q is not importable: %w", s.PackagerModule, err)
				}
				check("Packager", s.PackagerModule, err)
			}

			if len(missing) > 0 {
				return &ExitError{Code: ExitMissingDep, Err: fmt.Errorf("%d dependency check(s) failed", len(missing))}
			}
			return nil
		},
	}
}
