// Package config wires viper with the config file, environment and flags.
package config

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"usmconv/internal/dirs"
)

// Keys.
const (
	KeyVerbose         = "verbose"
	KeyFFmpeg          = "ffmpeg"
	KeyFFprobe         = "ffprobe"
	KeyDownloader      = "dl_binary"
	KeyPython          = "python"
	KeyPackagerModule  = "packager_module"
	KeyPackagerWorkdir = "packager_workdir"
	KeySettle          = "settle"
	KeyDownloadChunks  = "download_chunks"
	KeyDownloadRetries = "download_retries"
	KeyUserAgent       = "user_agent"
	KeyHistory         = "history"
	KeyHistoryPath     = "history_path"
	KeyStrictUnpack    = "strict_unpack"
)

// DefaultUserAgent is sent by the download engine.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Settings is the resolved configuration.
type Settings struct {
	Verbose         bool
	FFmpeg          string
	FFprobe         string
	Downloader      string
	Python          string
	PackagerModule  string
	PackagerWorkdir string
	Settle          time.Duration
	DownloadChunks  int
	DownloadRetries int
	UserAgent       string
	History         bool
	HistoryPath     string
	StrictUnpack    bool
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPackagerModule, "wannacri")
	v.SetDefault(KeySettle, time.Second)
	v.SetDefault(KeyDownloadChunks, 8)
	v.SetDefault(KeyDownloadRetries, 10)
	v.SetDefault(KeyUserAgent, DefaultUserAgent)
	v.SetDefault(KeyHistory, true)
	if p, err := dirs.HistoryPath(); err == nil {
		v.SetDefault(KeyHistoryPath, p)
	}
}

// Init wires Viper with config paths, env, defaults, and flag bindings.
// It is non-fatal: any errors are returned for optional handling by caller.
func Init(root *cobra.Command) error {
	return initViper(viper.GetViper(), root)
}

func initViper(v *viper.Viper, root *cobra.Command) error {
	_ = dirs.EnsureAll()

	if cfgDir, err := dirs.ConfigDir(); err == nil {
		v.AddConfigPath(cfgDir)
	}
	v.SetConfigName("config") // supports config.{yaml|yml|json|toml}

	// Environment variables: USMCONV_*
	v.SetEnvPrefix("USMCONV")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if root != nil {
		flags := root.PersistentFlags()
		for key, flag := range map[string]string{
			KeyVerbose:    "verbose",
			KeyFFmpeg:     "ffmpeg",
			KeyFFprobe:    "ffprobe",
			KeyDownloader: "dl-binary",
			KeyPython:     "python",
		} {
			if f := flags.Lookup(flag); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	// Read config file if present (ignore not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

// Load resolves Settings from the global viper instance.
func Load() Settings {
	return FromViper(viper.GetViper())
}

// FromViper resolves Settings from v.
func FromViper(v *viper.Viper) Settings {
	s := Settings{
		Verbose:         v.GetBool(KeyVerbose),
		FFmpeg:          v.GetString(KeyFFmpeg),
		FFprobe:         v.GetString(KeyFFprobe),
		Downloader:      v.GetString(KeyDownloader),
		Python:          v.GetString(KeyPython),
		PackagerModule:  v.GetString(KeyPackagerModule),
		PackagerWorkdir: v.GetString(KeyPackagerWorkdir),
		Settle:          v.GetDuration(KeySettle),
		DownloadChunks:  v.GetInt(KeyDownloadChunks),
		DownloadRetries: v.GetInt(KeyDownloadRetries),
		UserAgent:       v.GetString(KeyUserAgent),
		History:         v.GetBool(KeyHistory),
		HistoryPath:     v.GetString(KeyHistoryPath),
		StrictUnpack:    v.GetBool(KeyStrictUnpack),
	}
	if s.PackagerModule == "" {
		s.PackagerModule = "wannacri"
	}
	if s.DownloadChunks <= 0 {
		s.DownloadChunks = 8
	}
	if s.DownloadRetries < 0 {
		s.DownloadRetries = 0
	}
	return s
}
