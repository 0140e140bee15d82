package validation

import (
	"regexp"
	"strings"
)

// Format validators keyed by the schema "format" keyword. Extend by adding
// entries; unknown formats are skipped at validation time, not rejected.
var formatValidators = map[string]func(string) bool{
	"email":     isEmail,
	"uri":       isURI,
	"date-time": regexpMatcher(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z?$`),
	"date":      regexpMatcher(`^\d{4}-\d{2}-\d{2}$`),
	"time":      regexpMatcher(`^\d{2}:\d{2}:\d{2}$`),
	"uuid":      regexpMatcher(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`),
	"phone":     regexpMatcher(`^\+?[1-9]\d{1,14}$`),
}

func regexpMatcher(pattern string) func(string) bool {
	re := regexp.MustCompile(pattern)
	return re.MatchString
}

// isEmail requires a single "@" with non-empty local and domain parts and at
// least one dot inside the domain.
func isEmail(s string) bool {
	at := strings.Index(s, "@")
	if at <= 0 || at != strings.LastIndex(s, "@") {
		return false
	}
	domain := s[at+1:]
	if domain == "" {
		return false
	}
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

func isURI(s string) bool {
	for _, prefix := range []string{"http://", "https://"} {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			return true
		}
	}
	return false
}
