package logging

import "testing"

func TestNew_LevelParsing(t *testing.T) {
	tests := []struct {
		level     string
		debugOn   bool
		warnOnly  bool
	}{
		{"debug", true, false},
		{" INFO ", false, false},
		{"warn", false, true},
		{"bogus", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log, err := New(tt.level, "blog")
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := log.Core().Enabled(-1); got != tt.debugOn {
				t.Fatalf("debug enabled = %v, want %v", got, tt.debugOn)
			}
			if got := !log.Core().Enabled(0); got != tt.warnOnly {
				t.Fatalf("info disabled = %v, want %v", got, tt.warnOnly)
			}
		})
	}
}
