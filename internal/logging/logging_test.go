package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
	}{
		{"info by default", false, false},
		{"debug when verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log, closeFn, err := New(Options{Verbose: tt.verbose, Output: &buf})
			require.NoError(t, err)
			defer closeFn()

			log.Debug("debug line")
			log.Info("info line")
			assert.Contains(t, buf.String(), "info line")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug line")))
			assert.Contains(t, buf.String(), "usmconv")
		})
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "usmconv.log")
	log, closeFn, err := New(Options{File: path})
	require.NoError(t, err)
	log.Named("pipeline").Info("run started", "mode", "local")
	require.NoError(t, closeFn())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "usmconv.pipeline: run started")
	assert.Contains(t, string(b), "mode=local")
}
