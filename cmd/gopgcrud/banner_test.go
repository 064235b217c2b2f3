package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintBanner(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		useColor bool
	}{
		{"color", true},
		{"plain", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			printBanner(&buf, tt.useColor)

			lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
			if len(lines) != len(bannerLines) {
				t.Fatalf("expected %d lines, got %d", len(bannerLines), len(lines))
			}
			for i, line := range lines {
				hasEscape := strings.Contains(line, "\033[")
				if hasEscape != tt.useColor {
					t.Fatalf("line %d: escape codes present=%v, want %v: %q", i, hasEscape, tt.useColor, line)
				}
				if tt.useColor && !strings.HasSuffix(line, "\033[0m") {
					t.Fatalf("line %d does not reset color: %q", i, line)
				}
				if !strings.Contains(line, bannerLines[i]) {
					t.Fatalf("line %d: expected art %q in %q", i, bannerLines[i], line)
				}
			}
		})
	}
}
