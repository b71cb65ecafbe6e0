package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usmconv/internal/history"
	"usmconv/internal/model"
	"usmconv/internal/pipeline"
	"usmconv/internal/progress"
	"usmconv/internal/ui"
	"usmconv/internal/util"
)

func TestExitFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"input", &model.Error{Kind: model.KindInput, Err: model.ErrInvalidKey}, ExitInputError},
		{"media", &model.Error{Kind: model.KindMedia, Err: errors.New("x")}, ExitInputError},
		{"acquisition", &model.Error{Kind: model.KindAcquisition, Err: errors.New("x")}, ExitAcquisitionError},
		{"transcode", &model.Error{Kind: model.KindTranscode, Err: errors.New("x")}, ExitTranscodeError},
		{"packaging", &model.Error{Kind: model.KindPackaging, Err: errors.New("x")}, ExitPackagingError},
		{"internal", &model.Error{Kind: model.KindInternal, Err: errors.New("x")}, ExitCLIError},
		{"busy", &model.Error{Kind: model.KindBusy, Err: errors.New("x")}, ExitCLIError},
		{"cancelled", &model.Error{Kind: model.KindTranscode, Err: fmt.Errorf("ffmpeg failed: %w", context.Canceled)}, ExitInterrupted},
		{"forced", ui.ErrForcedExit, ExitInterrupted},
		{"passthrough", &ExitError{Code: ExitMissingDep}, ExitMissingDep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitFor(tt.err).Code; got != tt.want {
				t.Errorf("exitFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
	if exitFor(nil) != nil {
		t.Error("exitFor(nil) should be nil")
	}
}

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"remote", "local", "extract", "streams", "probe", "history", "doctor", "completion"} {
		c, _, err := root.Find([]string{name})
		if err != nil || c.Name() != name {
			t.Errorf("subcommand %q not found", name)
		}
	}
}

func TestBuildRequest(t *testing.T) {
	root := newRootCmd()

	remote, _, _ := root.Find([]string{"remote"})
	require.NoError(t, remote.ParseFlags([]string{
		"-o", "/out/movie.usm", "--codec", "h264", "--crf", "30", "--volume", "0.5",
		"--brightness", "1.3", "--key", "0x0123456789abcdef", "--quality", "720p",
		"--stream-codec", "AVC", "--keep-temp",
	}))
	req, err := buildRequest(remote, model.ModeRemote, "youtube.com/watch?v=abc")
	require.NoError(t, err)
	assert.Equal(t, "https://youtube.com/watch?v=abc", req.URL)
	assert.Equal(t, "/out/movie.usm", req.OutputPath)
	assert.Equal(t, model.CodecH264, req.Options.Codec)
	assert.Equal(t, 30, req.Options.CRF)
	assert.Equal(t, 0.5, req.Options.Volume)
	assert.Equal(t, 1.3, req.Options.Brightness)
	assert.Equal(t, model.Key("0x0123456789abcdef"), req.Options.Key)
	assert.Equal(t, model.StreamSelection{Quality: "720p", Codec: "avc"}, req.Selection)
	assert.True(t, req.KeepTemp)
	require.NoError(t, req.Validate())

	local, _, _ := root.Find([]string{"local"})
	require.NoError(t, local.ParseFlags(nil))
	req, err = buildRequest(local, model.ModeLocalFile, "/videos/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "/videos/clip.usm", req.OutputPath)
	assert.Equal(t, model.DefaultConversionOptions(), req.Options)

	extract, _, _ := root.Find([]string{"extract"})
	require.NoError(t, extract.ParseFlags(nil))
	req, err = buildRequest(extract, model.ModeLocalArchive, "/videos/movie.usm")
	require.NoError(t, err)
	assert.Equal(t, "/videos/movie_extracted", req.OutputPath)
}

func TestBuildRequest_Errors(t *testing.T) {
	root := newRootCmd()
	remote, _, _ := root.Find([]string{"remote"})
	require.NoError(t, remote.ParseFlags([]string{"--stream-codec", "av1"}))
	_, err := buildRequest(remote, model.ModeRemote, "https://example.com/v")
	assert.Equal(t, ExitCLIError, exitFor(err).Code)

	_, err = buildRequest(remote, model.ModeRemote, "ftp://example.com/v")
	assert.Equal(t, ExitInputError, exitFor(err).Code)

	local, _, _ := root.Find([]string{"local"})
	require.NoError(t, local.ParseFlags([]string{"--codec", "av1"}))
	_, err = buildRequest(local, model.ModeLocalFile, "a.mp4")
	assert.Equal(t, ExitCLIError, exitFor(err).Code)
}

func TestWriteFormatted(t *testing.T) {
	v := struct {
		Codec string `json:"codec" yaml:"codec"`
	}{"vp9"}
	text := func(w io.Writer) error { _, err := io.WriteString(w, "TEXT\n"); return err }

	tests := []struct {
		format string
		want   string
	}{
		{"", "TEXT\n"},
		{"text", "TEXT\n"},
		{"json", "{\n  \"codec\": \"vp9\"\n}\n"},
		{"yaml", "codec: vp9\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		require.NoError(t, writeFormatted(&buf, tt.format, v, text))
		assert.Equal(t, tt.want, buf.String(), tt.format)
	}
	err := writeFormatted(io.Discard, "xml", v, text)
	assert.Equal(t, ExitCLIError, exitFor(err).Code)
}

func TestTextReporter_Throttles(t *testing.T) {
	var buf bytes.Buffer
	r := newTextReporter(&buf, false)
	r.Update(progress.Update{Phase: progress.PhaseTranscodingVideo, Percent: 1, ETA: -1, VideoStatus: "Converting"})
	r.Update(progress.Update{Phase: progress.PhaseTranscodingVideo, Percent: 2, ETA: -1, VideoStatus: "Converting"})
	r.Update(progress.Update{Phase: progress.PhaseTranscodingVideo, Percent: 4.9, ETA: -1, VideoStatus: "Converting"})
	r.Update(progress.Update{Phase: progress.PhaseTranscodingVideo, Percent: 5, ETA: 0, VideoStatus: "Converting"})
	r.Update(progress.Update{Phase: progress.PhaseTranscodingVideo, Percent: 5.5, ETA: 0, VideoStatus: "Done"})
	r.Log(progress.Log{Line: "hidden"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "--:--")
	assert.Contains(t, lines[2], "video: Done")
	assert.NotContains(t, buf.String(), "hidden")
}

// fakeTools simulates ffprobe, ffmpeg and the packaging module by binary name.
type fakeTools struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTools) Run(_ context.Context, spec util.CmdSpec) (util.CmdResult, error) {
	name := filepath.Base(spec.Path)
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	switch name {
	case "ffprobe":
		return util.CmdResult{Stdout: []byte(`{"streams":[{"index":0,"codec_name":"vp9","codec_type":"video"},{"index":1,"codec_name":"opus","codec_type":"audio"}],"format":{"duration":"4.5","bit_rate":"800000"}}`)}, nil
	case "ffmpeg":
		if spec.StderrLine != nil {
			spec.StderrLine("Input #0, matroska,webm")
		}
		return util.CmdResult{}, os.WriteFile(spec.Args[len(spec.Args)-1], []byte("enc"), 0o644)
	case "python3":
		switch spec.Args[0] {
		case "-c":
			return util.CmdResult{}, nil
		}
		switch spec.Args[2] {
		case "createusm":
			return util.CmdResult{}, os.WriteFile(spec.Args[5]+".usm", []byte("usm-bytes"), 0o644)
		case "extractusm":
			return util.CmdResult{}, os.WriteFile(filepath.Join(spec.Args[5], "video.ivf"), []byte("ivf"), 0o644)
		}
	}
	return util.CmdResult{Code: 1}, fmt.Errorf("unexpected tool %s", name)
}

func (f *fakeTools) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type cliEnv struct {
	bin   string
	work  string
	tools *fakeTools
}

func setupCLI(t *testing.T) cliEnv {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "cfg"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	t.Setenv("USMCONV_SETTLE", "5ms")
	t.Setenv("USMCONV_HISTORY_PATH", filepath.Join(root, "state", "history.db"))

	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	for _, name := range []string{"ffmpeg", "ffprobe", "python3"} {
		require.NoError(t, os.WriteFile(filepath.Join(bin, name), nil, 0o755))
	}
	work := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(work, 0o755))

	ft := &fakeTools{}
	prev := runner
	runner = ft
	t.Cleanup(func() { runner = prev })
	return cliEnv{bin: bin, work: work, tools: ft}
}

func (e cliEnv) exec(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args,
		"--ffmpeg", filepath.Join(e.bin, "ffmpeg"),
		"--ffprobe", filepath.Join(e.bin, "ffprobe"),
		"--python", filepath.Join(e.bin, "python3"),
	))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestCLI_LocalThenHistory(t *testing.T) {
	e := setupCLI(t)
	in := filepath.Join(e.work, "clip.webm")
	require.NoError(t, os.WriteFile(in, []byte("webm"), 0o644))

	out, errOut, err := e.exec(t, "local", in, "--no-ui")
	require.NoError(t, err, errOut)
	assert.Contains(t, out, "Saved: "+filepath.Join(e.work, "clip.usm"))
	assert.FileExists(t, filepath.Join(e.work, "clip.usm"))
	assert.FileExists(t, filepath.Join(e.work, "clip.ogg"))
	assert.NoFileExists(t, filepath.Join(e.work, "converttempfile.ivf"))
	assert.Contains(t, errOut, "succeeded")

	out, _, err = e.exec(t, "history", "--format", "json")
	require.NoError(t, err)
	var runs []history.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "local", runs[0].Mode)
	assert.Equal(t, "succeeded", runs[0].Phase)
	assert.Equal(t, "copy", runs[0].Verdict)
}

func TestCLI_Extract(t *testing.T) {
	e := setupCLI(t)
	in := filepath.Join(e.work, "movie.usm")
	require.NoError(t, os.WriteFile(in, []byte("usm"), 0o644))

	out, errOut, err := e.exec(t, "extract", in, "--no-ui", "--key", "0xAAAABBBBCCCCDDDD")
	require.NoError(t, err, errOut)
	dir := filepath.Join(e.work, "movie_extracted")
	assert.Contains(t, out, "Extracted: "+dir)
	assert.FileExists(t, filepath.Join(dir, "video.ivf"))
}

func TestCLI_InvalidKeyRunsNothing(t *testing.T) {
	e := setupCLI(t)
	in := filepath.Join(e.work, "clip.webm")
	require.NoError(t, os.WriteFile(in, []byte("webm"), 0o644))

	_, _, err := e.exec(t, "local", in, "--no-ui", "--key", "123")
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitInputError, ee.Code)
	assert.ErrorIs(t, err, model.ErrInvalidKey)
	assert.Zero(t, e.tools.count())
}

func TestCLI_DefaultOutputWouldOverwriteAudioInput(t *testing.T) {
	e := setupCLI(t)
	in := filepath.Join(e.work, "clip.ogg")
	require.NoError(t, os.WriteFile(in, []byte("ogg"), 0o644))

	_, _, err := e.exec(t, "local", in, "--no-ui")
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitInputError, ee.Code)
	assert.ErrorIs(t, err, pipeline.ErrOutputIsInput)
	assert.Zero(t, e.tools.count())
	assert.FileExists(t, in)
}

func TestCLI_MissingDependency(t *testing.T) {
	e := setupCLI(t)
	in := filepath.Join(e.work, "clip.webm")
	require.NoError(t, os.WriteFile(in, []byte("webm"), 0o644))

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"local", in, "--no-ui", "--ffprobe", filepath.Join(e.bin, "nope"),
		"--ffmpeg", filepath.Join(e.bin, "ffmpeg"), "--python", filepath.Join(e.bin, "python3")})
	err := root.ExecuteContext(context.Background())
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitMissingDep, ee.Code)
}

func TestCLI_ProbeYAML(t *testing.T) {
	e := setupCLI(t)
	in := filepath.Join(e.work, "clip.webm")
	require.NoError(t, os.WriteFile(in, []byte("webm"), 0o644))

	out, _, err := e.exec(t, "probe", in, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "codec: vp9")
	assert.Contains(t, out, "recommended_codec: vp9")
	assert.Contains(t, out, "duration_seconds: 4.5")
	assert.Contains(t, out, "has_audio: true")
}

func TestLogTap(t *testing.T) {
	e := setupCLI(t)
	tap := newLogTap(e.tools)
	rec := &logRecorder{}
	tap.attach(rec)
	out := filepath.Join(e.work, "x.ivf")
	_, err := tap.Run(context.Background(), util.CmdSpec{Path: "/bin/ffmpeg", Args: []string{out}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Input #0, matroska,webm"}, rec.lines)
}

type logRecorder struct {
	progress.Nop
	lines []string
}

func (r *logRecorder) Log(l progress.Log) { r.lines = append(r.lines, l.Line) }

func TestCLI_Completion(t *testing.T) {
	e := setupCLI(t)
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, _, err := e.exec(t, "completion", shell)
			require.NoError(t, err)
			assert.Contains(t, out, "usmconv")
		})
	}
	_, _, err := e.exec(t, "completion", "tcsh")
	assert.Error(t, err)
}
