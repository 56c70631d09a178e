package config

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ParseLanguage validates a BCP 47 code such as "hi" or "en-US".
func ParseLanguage(code string) (language.Tag, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return language.Und, errors.New("language code required")
	}
	tag, err := language.Parse(code)
	if err != nil {
		return language.Und, fmt.Errorf("invalid language code %q: %w", code, err)
	}
	return tag, nil
}

// LanguageName returns the English name of code, e.g. "Hindi" for "hi". Codes
// that cannot be parsed are returned unchanged.
func LanguageName(code string) string {
	tag, err := ParseLanguage(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
