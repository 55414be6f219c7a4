package render

import "strings"

// Classes joins a fixed default class list with caller-supplied class
// names. Caller classes are appended, never substituted, and empty values
// are dropped.
func Classes(defaults string, extra ...string) string {
	parts := make([]string, 0, len(extra)+1)
	if s := strings.TrimSpace(defaults); s != "" {
		parts = append(parts, s)
	}
	for _, e := range extra {
		if s := strings.TrimSpace(e); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
