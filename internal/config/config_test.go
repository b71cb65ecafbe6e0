package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "cfg"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	return root
}

func TestDefaults(t *testing.T) {
	isolate(t)
	v := viper.New()
	require.NoError(t, initViper(v, nil))
	s := FromViper(v)

	assert.Equal(t, "wannacri", s.PackagerModule)
	assert.Equal(t, time.Second, s.Settle)
	assert.Equal(t, 8, s.DownloadChunks)
	assert.Equal(t, 10, s.DownloadRetries)
	assert.Equal(t, DefaultUserAgent, s.UserAgent)
	assert.True(t, s.History)
	assert.False(t, s.StrictUnpack)
	assert.Contains(t, s.HistoryPath, "history.db")
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("USMCONV_SETTLE", "250ms")
	t.Setenv("USMCONV_DOWNLOAD_CHUNKS", "4")
	t.Setenv("USMCONV_STRICT_UNPACK", "true")
	t.Setenv("USMCONV_FFMPEG", "/opt/ff/ffmpeg")

	v := viper.New()
	require.NoError(t, initViper(v, nil))
	s := FromViper(v)
	assert.Equal(t, 250*time.Millisecond, s.Settle)
	assert.Equal(t, 4, s.DownloadChunks)
	assert.True(t, s.StrictUnpack)
	assert.Equal(t, "/opt/ff/ffmpeg", s.FFmpeg)
}

func TestConfigFileAndFlags(t *testing.T) {
	root := isolate(t)
	cfgDir := filepath.Join(root, "cfg", "usmconv")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"),
		[]byte("python: /usr/local/bin/python3\nhistory: false\ndl_binary: /from/file\n"), 0o644))

	cmd := &cobra.Command{Use: "usmconv"}
	cmd.PersistentFlags().String("dl-binary", "", "")
	require.NoError(t, cmd.PersistentFlags().Set("dl-binary", "/from/flag"))

	v := viper.New()
	require.NoError(t, initViper(v, cmd))
	s := FromViper(v)
	assert.Equal(t, "/usr/local/bin/python3", s.Python)
	assert.False(t, s.History)
	assert.Equal(t, "/from/flag", s.Downloader)
}

func TestFromViper_Sanitizes(t *testing.T) {
	v := viper.New()
	v.Set(KeyDownloadChunks, 0)
	v.Set(KeyDownloadRetries, -3)
	s := FromViper(v)
	assert.Equal(t, 8, s.DownloadChunks)
	assert.Equal(t, 0, s.DownloadRetries)
	assert.Equal(t, "wannacri", s.PackagerModule)
}
