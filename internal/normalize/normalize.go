// Package normalize decides whether two field values are materially
// different. Extracted document values arrive as strings while
// user-submitted values are typed, so a naive comparison manufactures
// spurious edit records ("10000" vs 10000.0). Each value is reduced to a
// canonical form before comparison.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// Value normalizes a single value:
//   - nil, or a string that is empty after trimming, becomes nil
//   - values that parse as numbers become int64 when integral, else float64
//   - anything else becomes its trimmed string form
func Value(v any) any {
	if v == nil {
		return nil
	}

	s, isString := v.(string)
	if isString {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
	} else {
		s = strings.TrimSpace(fmt.Sprintf("%v", v))
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	}

	return s
}

// Equal reports whether a and b normalize to the same canonical value.
func Equal(a, b any) bool {
	return Value(a) == Value(b)
}
