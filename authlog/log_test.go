package authlog

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNilLogger(t *testing.T) {
	var l *Logger
	l.SetVerbosity(3)
	l.EnableArea(AreaKDC)
	l.Info(AreaKDC, "ignored", "k", 1)
	l.Error(AreaKDC, "ignored")
	if err := l.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestVerbosityAndAreas(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZap(zap.New(core), 1)

	l.Error(AreaKDC, "error")
	l.Info(AreaKDC, "info")
	l.Debug(AreaKDC, "debug")
	l.Trace(AreaKDC, "trace")
	if got := logs.Len(); got != 2 {
		t.Fatalf("verbosity 1: got %d entries, want 2", got)
	}

	l.SetVerbosity(3)
	l.Trace(AreaTGS, "trace")
	if got := logs.Len(); got != 3 {
		t.Fatalf("verbosity 3: got %d entries, want 3", got)
	}

	l.EnableArea(AreaService)
	l.Info(AreaTGS, "filtered")
	l.Info(AreaService, "kept")
	all := logs.All()
	if len(all) != 4 {
		t.Fatalf("area filter: got %d entries, want 4", len(all))
	}
	if last := all[3]; last.LoggerName != "ss" || last.Message != "kept" {
		t.Fatalf("last entry = %q/%q", last.LoggerName, last.Message)
	}
}

func TestParseArea(t *testing.T) {
	tests := []struct {
		name    string
		want    Area
		wantErr bool
	}{
		{"kdc", AreaKDC, false},
		{"TGS", AreaTGS, false},
		{"ss", AreaService, false},
		{"registry", AreaRegistry, false},
		{"smb", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArea(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseArea(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Fatalf("ParseArea(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNewRejectsEnvironment(t *testing.T) {
	if _, err := New(Config{Environment: "staging"}); err == nil {
		t.Fatal("expected error for unknown environment")
	}
	l, err := New(Config{Environment: "development", Verbosity: 2, Areas: []string{"kdc"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug(AreaKDC, "hello")
}
