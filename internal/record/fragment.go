package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Fragment renders v for diagnostics, truncated to MaxFragmentRunes runes.
// JSON is preferred; values that cannot be marshaled fall back to %v.
func Fragment(v any) string {
	var s string
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err == nil {
		s = string(bytes.TrimRight(buf.Bytes(), "\n"))
	} else {
		s = fmt.Sprintf("%v", v)
	}
	return Truncate(s, MaxFragmentRunes)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
