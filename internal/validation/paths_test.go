package validation

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple file", "report.pdf", false},
		{"no extension", "README", false},
		{"dotfile", ".bashrc", false},
		{"double dots inside", "data..v2.csv", false},
		{"spaces", "my notes.txt", false},
		{"unicode", "résumé.docx", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"forward slash", "a/b", true},
		{"backslash", `a\b`, true},
		{"dot", ".", true},
		{"dot dot", "..", true},
		{"null byte", "a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("ValidateName(%q) error should wrap ErrInvalidName, got %v", tt.input, err)
			}
		})
	}
}

func TestValidatePathInDirectory(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"nested key", "users/alice/files/a.txt", false},
		{"same dir", ".", false},
		{"escape", "../outside", true},
		{"deep escape", "users/../../outside", true},
		{"absolute inside", filepath.Join(base, "x"), false},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathInDirectory(tt.path, base)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathInDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}
