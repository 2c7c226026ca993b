package observability

import "unicode"

const scrubLimit = 256

// scrub strips control characters and caps the length so attacker-supplied
// values cannot inject log lines or bloat entries.
func scrub(value string, limit int) string {
	if limit <= 0 {
		limit = scrubLimit
	}

	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		cleaned = append(cleaned, r)
	}
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return string(cleaned)
}

// SanitizeRoute cleans a chi route pattern before it reaches a log field.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return scrub(route, 180)
}

// SanitizeMethod cleans an HTTP method string.
func SanitizeMethod(method string) string {
	return scrub(method, 10)
}

// SanitizeUserID caps user ids so logs carry a reference, not arbitrary input.
func SanitizeUserID(uid string) string {
	if len(uid) == 0 {
		return ""
	}
	return scrub(uid, 64)
}
