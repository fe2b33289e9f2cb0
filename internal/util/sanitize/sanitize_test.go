package sanitize

import "testing"

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"plain", "report.pdf", "report.pdf"},
		{"surrounding spaces", "  report.pdf\t", "report.pdf"},
		{"zero-width space", "rep\u200Bort.pdf", "report.pdf"},
		{"BOM prefix", "\uFEFFnotes.txt", "notes.txt"},
		{"soft hyphen", "data\u00ADset", "dataset"},
		{"inner spaces kept", "my  file.txt", "my  file.txt"},
		{"slash left for validation", "a/b", "a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Name(tt.input); got != tt.expected {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPath(t *testing.T) {
	if got := Path("/docs\u200B/ 2024 /a.txt"); got != "/docs/2024/a.txt" {
		t.Errorf("Path() = %q", got)
	}
	if got := Path("/"); got != "/" {
		t.Errorf("Path(/) = %q", got)
	}
}
