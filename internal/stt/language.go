package stt

import "strings"

type Language string

const (
	Portuguese Language = "pt"
	English    Language = "en"
)

var Supported = []Language{Portuguese, English}

// ParseLanguage normalizes code and reports whether it is supported.
func ParseLanguage(code string) (Language, bool) {
	lang := Language(strings.ToLower(strings.TrimSpace(code)))
	for _, s := range Supported {
		if lang == s {
			return lang, true
		}
	}
	return lang, false
}
