package shared

import (
	"strings"

	"translator-api-scalable/api"
)

// supportedLanguages is served in this order by /api/languages.
var supportedLanguages = []api.Language{
	{Code: "sk", Name: "Slovak"},
	{Code: "cs", Name: "Czech"},
	{Code: "en", Name: "English"},
	{Code: "de", Name: "German"},
	{Code: "fr", Name: "French"},
	{Code: "es", Name: "Spanish"},
	{Code: "it", Name: "Italian"},
	{Code: "pl", Name: "Polish"},
	{Code: "hu", Name: "Hungarian"},
	{Code: "uk", Name: "Ukrainian"},
	{Code: "ru", Name: "Russian"},
	{Code: "nl", Name: "Dutch"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "sv", Name: "Swedish"},
	{Code: "fi", Name: "Finnish"},
}

// Languages returns a copy of the supported target languages.
func Languages() []api.Language {
	out := make([]api.Language, len(supportedLanguages))
	copy(out, supportedLanguages)
	return out
}

// NormalizeLanguage lower-cases code and reports whether it is supported.
func NormalizeLanguage(code string) (string, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, l := range supportedLanguages {
		if l.Code == code {
			return code, true
		}
	}
	return code, false
}
