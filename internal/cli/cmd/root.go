package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"usmconv/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "usmconv",
		Short: "Convert videos to and from USM containers",
		Long: "usmconv turns a video link or a local video file into a USM container: it fetches " +
			"the streams, transcodes them to VP9 or H.264 plus Vorbis audio, and packages the result. " +
			"It can also extract an existing USM archive.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Init(cmd.Root()); err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.BoolP("verbose", "v", false, "Debug logging and full subprocess output")
	pf.String("ffmpeg", "", "Path to ffmpeg")
	pf.String("ffprobe", "", "Path to ffprobe")
	pf.String("dl-binary", "", "Path to yt-dlp or youtube-dl")
	pf.String("python", "", "Path to the Python interpreter running the packaging module")

	root.AddCommand(
		newRemoteCmd(),
		newLocalCmd(),
		newExtractCmd(),
		newStreamsCmd(),
		newProbeCmd(),
		newHistoryCmd(),
		newDoctorCmd(),
		newCompletionCmd(),
	)

	return root
}

// Execute runs the CLI. Cancelling ctx interrupts a running conversion.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
