// Package sanitize cleans names typed or pasted by users before they are
// validated. It removes invisible Unicode characters and surrounding
// whitespace. It never repairs a name validation would reject.
package sanitize

import (
	"strings"
)

// invisibleChars are removed from names. They survive copy and paste but
// make two names that look identical compare unequal.
var invisibleChars = []string{
	"\u200B", // Zero-width space
	"\u200C", // Zero-width non-joiner
	"\u200D", // Zero-width joiner
	"\uFEFF", // Zero-width no-break space (BOM)
	"\u00AD", // Soft hyphen
	"\u2060", // Word joiner
	"\u180E", // Mongolian vowel separator
}

// Name strips invisible characters and leading or trailing whitespace.
func Name(name string) string {
	if name == "" {
		return name
	}
	return strings.TrimSpace(removeInvisibleChars(name))
}

// Path applies Name to every slash-separated segment of a tree path.
func Path(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = Name(s)
	}
	return strings.Join(segs, "/")
}

func removeInvisibleChars(s string) string {
	for _, char := range invisibleChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}
