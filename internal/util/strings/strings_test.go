package strings

import (
	"testing"
	"time"
)

func TestPluralize(t *testing.T) {
	if got := Pluralize("file", 1); got != "file" {
		t.Errorf("Pluralize(file, 1) = %q", got)
	}
	if got := Pluralize("file", 0); got != "files" {
		t.Errorf("Pluralize(file, 0) = %q", got)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.in); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTime_Zero(t *testing.T) {
	if got := FormatTime(time.Time{}); got != "-" {
		t.Errorf("FormatTime(zero) = %q", got)
	}
}
