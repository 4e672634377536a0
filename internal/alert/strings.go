package alert

import "strings"

// containsFold reports whether s contains sub, case-insensitively
func containsFold(s, sub string) bool {
	if sub == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// removeFold removes every case-insensitive occurrence of sub from s,
// returning the result and the number of removals.
func removeFold(s, sub string) (string, int) {
	if sub == "" {
		return s, 0
	}

	lower := strings.ToLower(s)
	lowerSub := strings.ToLower(sub)

	var b strings.Builder
	removed := 0
	i := 0
	for {
		j := strings.Index(lower[i:], lowerSub)
		if j < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(s[i : i+j])
		i += j + len(sub)
		removed++
	}
	if removed == 0 {
		return s, 0
	}
	return b.String(), removed
}
