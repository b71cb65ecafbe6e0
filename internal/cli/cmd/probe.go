package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"usmconv/internal/codec"
	"usmconv/internal/config"
	"usmconv/internal/probe"
	"usmconv/internal/util/format"
)

type probeView struct {
	File            string  `json:"file" yaml:"file"`
	Codec           string  `json:"codec" yaml:"codec"`
	Family          string  `json:"family" yaml:"family"`
	BitrateBps      int64   `json:"bitrate_bps" yaml:"bitrate_bps"`
	DurationSeconds float64 `json:"duration_seconds" yaml:"duration_seconds"`
	HasAudio        bool    `json:"has_audio" yaml:"has_audio"`
	AudioCodec      string  `json:"audio_codec,omitempty" yaml:"audio_codec,omitempty"`
	Recommended     string  `json:"recommended_codec" yaml:"recommended_codec"`
}

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Analyze a local video file and recommend a target codec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := config.Load()
			t, err := locate(s, needFFprobe)
			if err != nil {
				return err
			}
			md, err := probe.New(t.FFprobe, runner).Describe(cmd.Context(), args[0])
			if err != nil {
				return exitFor(err)
			}
			v := probeView{
				File:            args[0],
				Codec:           md.Codec,
				Family:          string(codec.Normalize(md.Codec)),
				BitrateBps:      md.BitrateBps,
				DurationSeconds: md.Duration.Seconds(),
				HasAudio:        md.HasAudio,
				AudioCodec:      md.AudioCodec,
				Recommended:     string(codec.Recommend(md.Codec)),
			}
			f, _ := cmd.Flags().GetString("format")
			return writeFormatted(cmd.OutOrStdout(), f, v, func(w io.Writer) error {
				audio := "none"
				if v.HasAudio {
					audio = v.AudioCodec
				}
				fmt.Fprintf(w, "File:        %s\n", v.File)
				fmt.Fprintf(w, "Codec:       %s (%s)\n", v.Codec, v.Family)
				fmt.Fprintf(w, "Bitrate:     %s\n", format.HumanizeBitrate(v.BitrateBps))
				fmt.Fprintf(w, "Duration:    %s\n", md.Duration)
				fmt.Fprintf(w, "Audio:       %s\n", audio)
				fmt.Fprintf(w, "Recommended: %s\n", v.Recommended)
				return nil
			})
		},
	}
	cmd.Flags().String("format", "text", "Output format: text, json, yaml")
	return cmd
}
