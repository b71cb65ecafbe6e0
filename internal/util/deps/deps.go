// Package deps locates the external tools a conversion needs.
package deps

import (
	"fmt"
	"os"
	"os/exec"
)

// find returns customPath when it exists on disk or in PATH, else the first
// of candidates found in PATH.
func find(customPath string, hint string, candidates ...string) (string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err == nil {
			return customPath, nil
		}
		if p, err := exec.LookPath(customPath); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("could not find %s at %q", candidates[0], customPath)
	}
	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("could not find %s in PATH. %s", candidates[0], hint)
}

// FindDownloader returns the path to yt-dlp or youtube-dl, used to read
// remote stream manifests.
func FindDownloader(customPath string) (string, error) {
	return find(customPath, "Please install yt-dlp.", "yt-dlp", "youtube-dl")
}

// FindFFmpeg returns the path to the ffmpeg binary.
func FindFFmpeg(customPath string) (string, error) {
	return find(customPath, "Please install ffmpeg.", "ffmpeg")
}

// FindFFprobe returns the path to the ffprobe binary.
func FindFFprobe(customPath string) (string, error) {
	return find(customPath, "Please install ffmpeg (ffprobe ships with it).", "ffprobe")
}

// FindPython returns the interpreter that runs the packaging module.
func FindPython(customPath string) (string, error) {
	return find(customPath, "Please install Python 3 and the wannacri package.", "python3", "python")
}
