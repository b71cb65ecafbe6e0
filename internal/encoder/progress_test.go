package encoder

import (
	"testing"
	"time"
)

func TestProgressState_UpdateFromLine(t *testing.T) {
	tests := []struct {
		name        string
		lines       []string
		duration    time.Duration
		wantOk      bool
		wantPercent float64
	}{
		{
			name: "mid-run block",
			lines: []string{
				"out_time_ms=30000000", // 30 seconds
				"speed=1.5x",
				"total_size=10485760",
				"progress=continue",
			},
			duration:    60 * time.Second,
			wantOk:      true,
			wantPercent: 50.0,
		},
		{
			name:        "out_time_us spelling",
			lines:       []string{"out_time_us=15000000", "progress=continue"},
			duration:    60 * time.Second,
			wantOk:      true,
			wantPercent: 25.0,
		},
		{
			name:        "unknown duration stays at zero",
			lines:       []string{"out_time_ms=5000000", "progress=continue"},
			duration:    0,
			wantOk:      true,
			wantPercent: 0,
		},
		{
			name:        "overshoot clamps",
			lines:       []string{"out_time_ms=90000000", "progress=continue"},
			duration:    60 * time.Second,
			wantOk:      true,
			wantPercent: 100,
		},
		{
			name:        "end forces completion",
			lines:       []string{"out_time_ms=1000000", "progress=end"},
			duration:    60 * time.Second,
			wantOk:      true,
			wantPercent: 100.0,
		},
		{
			name:     "non-progress line",
			lines:    []string{"frame=100"},
			duration: 60 * time.Second,
			wantOk:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := &ProgressState{}
			var p float64
			var ok bool
			for _, line := range tt.lines {
				p, ok = ps.UpdateFromLine(line, tt.duration)
			}
			if ok != tt.wantOk {
				t.Fatalf("UpdateFromLine() ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && p != tt.wantPercent {
				t.Errorf("UpdateFromLine() percent = %v, want %v", p, tt.wantPercent)
			}
		})
	}
}

func TestProgressState_NeverDecreases(t *testing.T) {
	ps := &ProgressState{}
	ps.UpdateFromLine("out_time_ms=30000000", time.Minute)
	ps.UpdateFromLine("progress=continue", time.Minute)
	// ffmpeg reports N/A or a smaller value around seeks.
	ps.UpdateFromLine("out_time_ms=1000000", time.Minute)
	p, _ := ps.UpdateFromLine("progress=continue", time.Minute)
	if p != 50 {
		t.Errorf("percent = %v, want 50", p)
	}
}

func TestProgressState_StateTracking(t *testing.T) {
	ps := &ProgressState{}

	ps.UpdateFromLine("out_time_ms=15000000", time.Minute)
	if ps.OutTimeUs != 15000000 {
		t.Errorf("OutTimeUs = %v, want 15000000", ps.OutTimeUs)
	}
	ps.UpdateFromLine("out_time_ms=N/A", time.Minute)
	if ps.OutTimeUs != 15000000 {
		t.Errorf("OutTimeUs = %v after N/A, want unchanged", ps.OutTimeUs)
	}
	ps.UpdateFromLine("speed=1.2x", time.Minute)
	if ps.SpeedStr != "1.2x" {
		t.Errorf("SpeedStr = %v, want '1.2x'", ps.SpeedStr)
	}
	ps.UpdateFromLine("total_size=1048576", time.Minute)
	if ps.TotalSize != 1048576 {
		t.Errorf("TotalSize = %v, want 1048576", ps.TotalSize)
	}
}
