package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"usmconv/internal/config"
	"usmconv/internal/model"
	"usmconv/internal/pipeline"
	"usmconv/internal/progress"
	"usmconv/internal/ui"
	"usmconv/internal/util"
	"usmconv/internal/util/format"
)

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote <url>",
		Short: "Download a video by link and convert it to USM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return convert(cmd, model.ModeRemote, args[0])
		},
	}
	bindConvertFlags(cmd.Flags())
	cmd.Flags().String("quality", "", "Video quality label to select (e.g. 1080p); default is the best")
	cmd.Flags().String("stream-codec", "", "Restrict the source stream codec: vp9, avc")
	cmd.Flags().Bool("keep-temp", false, "Keep downloaded source streams")
	return cmd
}

func newLocalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local <file>",
		Short: "Convert a local video file to USM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return convert(cmd, model.ModeLocalFile, args[0])
		},
	}
	bindConvertFlags(cmd.Flags())
	return cmd
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file.usm>",
		Short: "Extract the streams of a USM archive into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return convert(cmd, model.ModeLocalArchive, args[0])
		},
	}
	fs := cmd.Flags()
	fs.StringP("output", "o", "", "Output directory (default: <name>_extracted next to the archive)")
	fs.String("key", "", "Decryption key: 0x followed by 16 alphanumeric characters")
	fs.Bool("no-ui", false, "Disable TUI; use plain textual output")
	return cmd
}

func bindConvertFlags(fs *pflag.FlagSet) {
	fs.StringP("output", "o", "", "Output .usm path")
	fs.String("codec", "auto", "Target codec: auto, vp9, h264")
	fs.Int("crf", 24, "Constant rate factor for re-encoding")
	fs.Float64("volume", 1.0, "Audio volume multiplier")
	fs.Float64("brightness", 1.0, "Video brightness multiplier (1 keeps the source)")
	fs.String("key", "", "Encryption key: 0x followed by 16 alphanumeric characters")
	fs.Bool("no-ui", false, "Disable TUI; use plain textual output")
}

// defaultOutput derives the output path when -o is omitted.
func defaultOutput(mode model.WorkMode, src string) string {
	switch mode {
	case model.ModeLocalFile:
		return strings.TrimSuffix(src, filepath.Ext(src)) + ".usm"
	case model.ModeLocalArchive:
		return strings.TrimSuffix(src, filepath.Ext(src)) + "_extracted"
	}
	return ""
}

// buildRequest assembles the run request from flags. Flag syntax errors are
// CLI errors; semantic checks are left to the controller.
func buildRequest(cmd *cobra.Command, mode model.WorkMode, src string) (model.Request, error) {
	fs := cmd.Flags()
	req := model.Request{Mode: mode, Options: model.DefaultConversionOptions()}

	key, _ := fs.GetString("key")
	req.Options.Key = model.Key(strings.TrimSpace(key))
	req.OutputPath, _ = fs.GetString("output")

	switch mode {
	case model.ModeRemote:
		u, err := util.ParseMediaURL(src)
		if err != nil {
			return req, &ExitError{Code: ExitInputError, Err: err}
		}
		req.URL = u.String()
	default:
		req.InputPath = src
	}
	if req.OutputPath == "" {
		req.OutputPath = defaultOutput(mode, src)
	}

	if mode == model.ModeLocalArchive {
		return req, nil
	}

	c, _ := fs.GetString("codec")
	codec, err := model.ParseCodec(c)
	if err != nil {
		return req, &ExitError{Code: ExitCLIError, Err: err}
	}
	req.Options.Codec = codec
	req.Options.CRF, _ = fs.GetInt("crf")
	req.Options.Volume, _ = fs.GetFloat64("volume")
	req.Options.Brightness, _ = fs.GetFloat64("brightness")

	if mode == model.ModeRemote {
		req.Selection.Quality, _ = fs.GetString("quality")
		sc, _ := fs.GetString("stream-codec")
		switch strings.ToLower(sc) {
		case "", "vp9", "avc":
			req.Selection.Codec = strings.ToLower(sc)
		default:
			return req, &ExitError{Code: ExitCLIError, Err: fmt.Errorf("invalid --stream-codec: %q (valid: vp9|avc)", sc)}
		}
		req.KeepTemp, _ = fs.GetBool("keep-temp")
	}
	return req, nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func convert(cmd *cobra.Command, mode model.WorkMode, src string) error {
	req, err := buildRequest(cmd, mode, src)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return exitFor(err)
	}

	s := config.Load()
	noUI, _ := cmd.Flags().GetBool("no-ui")
	useTUI := !noUI && isTerminal()

	t, err := locate(s, needsFor(mode))
	if err != nil {
		return err
	}

	log, closeLog := newLogger(s, useTUI)
	defer closeLog()

	tap := newLogTap(runner)
	st := buildStages(s, t, tap, log, s.Verbose && !useTUI)
	opts := append(st.controllerOptions(), pipeline.WithLogger(log))
	if h := openHistory(s, log); h != nil {
		defer h.Close()
		opts = append(opts, pipeline.WithRecorder(h))
	}

	run := func(ctx context.Context, rep progress.Reporter) (progress.Result, error) {
		tap.attach(rep)
		ctl := pipeline.New(append(opts, pipeline.WithReporter(rep))...)
		return ctl.Run(ctx, req)
	}

	var res progress.Result
	if useTUI {
		res, err = ui.Run(cmd.Context(), req.Source(), run, ui.DefaultGrace, s.Verbose)
	} else {
		res, err = run(cmd.Context(), newTextReporter(cmd.ErrOrStderr(), s.Verbose))
	}
	if err != nil {
		ee := exitFor(err)
		ee.Err = fmt.Errorf("%s %w", model.UserMessage(err), err)
		return ee
	}

	out := cmd.OutOrStdout()
	if mode == model.ModeLocalArchive {
		fmt.Fprintf(out, "Extracted: %s\n", res.OutputPath)
	} else {
		fmt.Fprintf(out, "Saved: %s (%s)\n", res.OutputPath, format.HumanizeBytes(res.Bytes))
	}
	return nil
}
