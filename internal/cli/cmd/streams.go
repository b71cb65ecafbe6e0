package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"usmconv/internal/catalog"
	"usmconv/internal/config"
	"usmconv/internal/model"
	"usmconv/internal/util"
	"usmconv/internal/util/format"
)

type streamsView struct {
	Title    string                   `json:"title" yaml:"title"`
	Duration string                   `json:"duration" yaml:"duration"`
	Video    []model.StreamDescriptor `json:"video" yaml:"video"`
	Audio    *model.StreamDescriptor  `json:"audio,omitempty" yaml:"audio,omitempty"`
}

func newStreamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streams <url>",
		Short: "List the VP9/AVC video streams and the best audio stream of a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := util.ParseMediaURL(args[0])
			if err != nil {
				return &ExitError{Code: ExitInputError, Err: err}
			}
			s := config.Load()
			t, err := locate(s, needDownloader)
			if err != nil {
				return err
			}
			log, closeLog := newLogger(s, false)
			defer closeLog()

			cat := catalog.New(t.Downloader, catalog.WithRunner(runner), catalog.WithLogger(log))
			m, err := cat.Manifest(cmd.Context(), u.String())
			if err != nil {
				return exitFor(model.Wrap(model.KindAcquisition, "manifest", err))
			}
			v := streamsView{Title: m.Title, Duration: m.Duration.String(), Video: m.Video}
			if a, err := catalog.BestAudio(m.Audio); err == nil {
				v.Audio = &a
			}
			f, _ := cmd.Flags().GetString("format")
			return writeFormatted(cmd.OutOrStdout(), f, v, func(w io.Writer) error {
				return printStreams(w, v)
			})
		},
	}
	cmd.Flags().String("format", "text", "Output format: text, json, yaml")
	return cmd
}

func printStreams(w io.Writer, v streamsView) error {
	fmt.Fprintf(w, "%s (%s)\n\n", v.Title, v.Duration)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUALITY\tCODEC\tRESOLUTION\tBITRATE\tSIZE")
	for _, s := range v.Video {
		size := "-"
		if s.SizeBytes > 0 {
			size = format.HumanizeBytes(s.SizeBytes)
		}
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%s\t%s\n", s.Label, s.Codec, s.Width, s.Height, format.HumanizeBitrate(s.BitrateBps), size)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if v.Audio != nil {
		fmt.Fprintf(w, "\naudio: %s %s\n", v.Audio.Codec, format.HumanizeBitrate(v.Audio.BitrateBps))
	} else {
		fmt.Fprintln(w, "\naudio: none")
	}
	return nil
}
