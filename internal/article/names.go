package article

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// CleanName trims a display name and rejects empty results.
func CleanName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", Validationf("article name must not be empty")
	}
	return n, nil
}

// NameKey is the comparison key for display names: trimmed, NFC-normalized and
// case-folded. Two live articles never share a NameKey.
func NameKey(name string) string {
	// cases.Caser is stateful; a fresh one per call keeps NameKey goroutine safe.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// SameName reports whether two display names collide.
func SameName(a, b string) bool {
	return NameKey(a) == NameKey(b)
}
