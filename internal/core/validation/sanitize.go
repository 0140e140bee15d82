package validation

import (
	"regexp"
	"strings"
)

// Rules names the fields each cleaning transform applies to. Membership is by
// field name at any depth: a nested "email" is normalized exactly like a
// top-level one, since rules are declared per field name, not per path.
type Rules struct {
	StripHTML          []string
	TrimWhitespace     []string
	ToLowerCase        []string
	NormalizeEmail     []string
	SanitizePhone      []string
	RemoveSpecialChars []string
}

var (
	htmlTagPattern     = regexp.MustCompile(`<[^>]*>`)
	specialCharPattern = regexp.MustCompile(`[^a-zA-Z0-9 ]`)
	nonPhonePattern    = regexp.MustCompile(`[^0-9]`)
)

// Sanitize returns a cleaned copy of data; the input is never mutated.
// Containers are shallow-copied and selectively overwritten, nested
// containers are cleaned recursively with the same rules. When several rules
// name the same field they apply in declaration order: strip HTML, trim,
// lowercase, normalize email, sanitize phone, remove special characters.
// The pipeline is a projection: applying it twice changes nothing further.
func Sanitize(data any, rules Rules) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[key] = sanitizeField(key, value, rules)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = Sanitize(elem, rules)
		}
		return out
	default:
		return data
	}
}

func sanitizeField(name string, value any, rules Rules) any {
	s, isString := value.(string)
	if !isString {
		return Sanitize(value, rules)
	}
	if contains(rules.StripHTML, name) {
		s = htmlTagPattern.ReplaceAllString(s, "")
	}
	if contains(rules.TrimWhitespace, name) {
		s = strings.TrimSpace(s)
	}
	if contains(rules.ToLowerCase, name) {
		s = strings.ToLower(s)
	}
	if contains(rules.NormalizeEmail, name) {
		s = strings.ToLower(strings.TrimSpace(s))
	}
	if contains(rules.SanitizePhone, name) {
		s = sanitizePhone(s)
	}
	if contains(rules.RemoveSpecialChars, name) {
		s = specialCharPattern.ReplaceAllString(s, "")
	}
	return s
}

// sanitizePhone keeps digits plus a leading "+".
func sanitizePhone(s string) string {
	plus := strings.HasPrefix(s, "+")
	digits := nonPhonePattern.ReplaceAllString(s, "")
	if plus {
		return "+" + digits
	}
	return digits
}

func contains(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
