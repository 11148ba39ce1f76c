package rules

import (
	"strings"
	"time"
)

// Accepted date layouts, tried in order. Claim dates arrive from forms
// and document extraction, so both combined date-times and bare calendar
// dates must parse.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseClaimDate parses s against the accepted layouts. The ok result
// is false when s is empty or matches no layout; predicates treat that
// as "not triggered" rather than an error.
func ParseClaimDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
