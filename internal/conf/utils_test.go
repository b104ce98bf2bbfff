package conf

import (
	"path/filepath"
	"testing"
	"time"
)

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Weekday
		wantErr bool
	}{
		{"Sunday", time.Sunday, false},
		{"monday", time.Monday, false},
		{"SATURDAY", time.Saturday, false},
		{"Funday", time.Sunday, true},
		{"", time.Sunday, true},
	}

	for _, tt := range tests {
		got, err := ParseWeekday(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseWeekday(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseWeekday(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestGetDefaultConfigPaths(t *testing.T) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		t.Fatalf("GetDefaultConfigPaths() error = %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("GetDefaultConfigPaths() returned no paths")
	}
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			t.Errorf("config path %q is not absolute", p)
		}
	}
}

func TestSchedulerStateFilePath(t *testing.T) {
	s := &Settings{}

	s.Scheduler.StateFile = filepath.Join(t.TempDir(), "custom-state.json")
	got, err := SchedulerStateFilePath(s)
	if err != nil {
		t.Fatalf("SchedulerStateFilePath() error = %v", err)
	}
	if got != s.Scheduler.StateFile {
		t.Errorf("SchedulerStateFilePath() = %q, want the configured path %q", got, s.Scheduler.StateFile)
	}

	s.Scheduler.StateFile = ""
	got, err = SchedulerStateFilePath(s)
	if err != nil {
		t.Fatalf("SchedulerStateFilePath() error = %v", err)
	}
	if filepath.Base(got) != SchedulerStateFile {
		t.Errorf("default state file = %q, want base name %q", got, SchedulerStateFile)
	}
}
