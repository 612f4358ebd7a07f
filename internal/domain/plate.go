package domain

import "strings"

// NormalizePlate canonicalizes a plate number so that "abc 1234",
// "ABC-1234" and " abc_1234 " all address the same vehicle: uppercase,
// whitespace stripped, separators collapsed to a single dash.
func NormalizePlate(plate string) string {
	var b strings.Builder
	b.Grow(len(plate))

	prevDash := true // suppress a leading dash
	for _, r := range strings.ToUpper(strings.TrimSpace(plate)) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		case r == ' ' || r == '-' || r == '_' || r == '.':
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}
