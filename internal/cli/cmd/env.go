package cmd

import (
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"usmconv/internal/acquire"
	"usmconv/internal/catalog"
	"usmconv/internal/config"
	"usmconv/internal/dirs"
	"usmconv/internal/encoder"
	"usmconv/internal/fetch"
	"usmconv/internal/history"
	"usmconv/internal/logging"
	"usmconv/internal/model"
	"usmconv/internal/packager"
	"usmconv/internal/pipeline"
	"usmconv/internal/probe"
	"usmconv/internal/util"
	"usmconv/internal/util/deps"
)

// runner executes every subprocess; tests replace it.
var runner util.CmdRunner = util.NewDefaultRunner()

// tools are the resolved external binaries.
type tools struct {
	Downloader string
	FFmpeg     string
	FFprobe    string
	Python     string
}

type need int

const (
	needDownloader need = 1 << iota
	needFFmpeg
	needFFprobe
	needPython
)

// needsFor lists the tools a mode requires.
func needsFor(mode model.WorkMode) need {
	switch mode {
	case model.ModeRemote:
		return needDownloader | needFFmpeg | needPython
	case model.ModeLocalFile:
		return needFFprobe | needFFmpeg | needPython
	default:
		return needPython
	}
}

// locate resolves the tools in n. Any miss is a missing-dependency exit.
func locate(s config.Settings, n need) (tools, error) {
	var t tools
	var err error
	if n&needDownloader != 0 {
		if t.Downloader, err = deps.FindDownloader(s.Downloader); err != nil {
			return t, &ExitError{Code: ExitMissingDep, Err: err}
		}
	}
	if n&needFFmpeg != 0 {
		if t.FFmpeg, err = deps.FindFFmpeg(s.FFmpeg); err != nil {
			return t, &ExitError{Code: ExitMissingDep, Err: err}
		}
	}
	if n&needFFprobe != 0 {
		if t.FFprobe, err = deps.FindFFprobe(s.FFprobe); err != nil {
			return t, &ExitError{Code: ExitMissingDep, Err: err}
		}
	}
	if n&needPython != 0 {
		if t.Python, err = deps.FindPython(s.Python); err != nil {
			return t, &ExitError{Code: ExitMissingDep, Err: err}
		}
	}
	return t, nil
}

// newLogger builds the root logger. With toFile set, output goes to the
// state-dir log so it does not tear the TUI.
func newLogger(s config.Settings, toFile bool) (hclog.Logger, func() error) {
	opts := logging.Options{Verbose: s.Verbose}
	if toFile {
		if p, err := dirs.LogPath(); err == nil {
			opts.File = p
		}
	}
	log, closeFn, err := logging.New(opts)
	if err != nil {
		log, closeFn, _ = logging.New(logging.Options{Verbose: s.Verbose})
		log.Warn("log file unavailable; logging to stderr", "error", err)
	}
	return log, closeFn
}

// openHistory opens the run history when enabled. Failures only disable it.
func openHistory(s config.Settings, log hclog.Logger) *history.Store {
	if !s.History || s.HistoryPath == "" {
		return nil
	}
	st, err := history.Open(s.HistoryPath, log)
	if err != nil {
		log.Warn("run history disabled", "error", err)
		return nil
	}
	return st
}

// stages holds the wired pipeline components.
type stages struct {
	catalog    *catalog.Catalog
	prober     *probe.Prober
	transcoder *encoder.Transcoder
	packager   *packager.Packager
	acquirer   *acquire.Stage
}

// buildStages wires each stage that has its tool available. verbose echoes
// subprocess output to the terminal and must be off while the TUI runs.
func buildStages(s config.Settings, t tools, r util.CmdRunner, log hclog.Logger, verbose bool) stages {
	var st stages
	if t.Downloader != "" {
		st.catalog = catalog.New(t.Downloader, catalog.WithRunner(r), catalog.WithLogger(log))
		dl := fetch.New(
			fetch.WithChunks(s.DownloadChunks),
			fetch.WithRetries(s.DownloadRetries),
			fetch.WithUserAgent(s.UserAgent),
			fetch.WithLogger(log),
		)
		st.acquirer = acquire.New(st.catalog, dl, log)
	}
	if t.FFprobe != "" {
		st.prober = probe.New(t.FFprobe, r)
	}
	if t.FFmpeg != "" {
		st.transcoder = encoder.New(t.FFmpeg,
			encoder.WithRunner(r),
			encoder.WithLogger(log),
			encoder.WithVerbose(verbose),
		)
	}
	if t.Python != "" {
		workdir := s.PackagerWorkdir
		if workdir == "" && t.FFmpeg != "" {
			workdir = filepath.Dir(t.FFmpeg)
		}
		st.packager = packager.New(t.Python,
			packager.WithModule(s.PackagerModule),
			packager.WithWorkdir(workdir),
			packager.WithSettle(s.Settle),
			packager.WithStrictUnpack(s.StrictUnpack),
			packager.WithRunner(r),
			packager.WithLogger(log),
			packager.WithVerbose(verbose),
		)
	}
	return st
}

// controllerOptions turns the wired stages into pipeline options. Nil
// stages are skipped so the controller reports them as missing.
func (st stages) controllerOptions() []pipeline.Option {
	var opts []pipeline.Option
	if st.catalog != nil {
		opts = append(opts, pipeline.WithCatalog(st.catalog))
	}
	if st.acquirer != nil {
		opts = append(opts, pipeline.WithAcquirer(st.acquirer))
	}
	if st.prober != nil {
		opts = append(opts, pipeline.WithProber(st.prober))
	}
	if st.transcoder != nil {
		opts = append(opts, pipeline.WithTranscoder(st.transcoder))
	}
	if st.packager != nil {
		opts = append(opts, pipeline.WithPackager(st.packager))
	}
	return opts
}
