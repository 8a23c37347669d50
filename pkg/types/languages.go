package types

import "strings"

// Language describes a language the translator can work with.
type Language struct {
	// Code is the lower-case ISO 639-1 code.
	Code string `json:"code"`

	// Name is the English name.
	Name string `json:"name"`

	// NativeName is the name in the language itself.
	NativeName string `json:"nativeName"`

	// Flag is an emoji flag used in terminal output.
	Flag string `json:"flag"`
}

// Languages is the catalogue of supported languages in display order.
var Languages = []Language{
	{Code: "en", Name: "English", NativeName: "English", Flag: "🇺🇸"},
	{Code: "es", Name: "Spanish", NativeName: "Español", Flag: "🇪🇸"},
	{Code: "fr", Name: "French", NativeName: "Français", Flag: "🇫🇷"},
	{Code: "de", Name: "German", NativeName: "Deutsch", Flag: "🇩🇪"},
	{Code: "it", Name: "Italian", NativeName: "Italiano", Flag: "🇮🇹"},
	{Code: "pt", Name: "Portuguese", NativeName: "Português", Flag: "🇵🇹"},
	{Code: "ru", Name: "Russian", NativeName: "Русский", Flag: "🇷🇺"},
	{Code: "ja", Name: "Japanese", NativeName: "日本語", Flag: "🇯🇵"},
	{Code: "ko", Name: "Korean", NativeName: "한국어", Flag: "🇰🇷"},
	{Code: "zh", Name: "Chinese", NativeName: "中文", Flag: "🇨🇳"},
	{Code: "ar", Name: "Arabic", NativeName: "العربية", Flag: "🇸🇦"},
	{Code: "hi", Name: "Hindi", NativeName: "हिन्दी", Flag: "🇮🇳"},
	{Code: "nl", Name: "Dutch", NativeName: "Nederlands", Flag: "🇳🇱"},
	{Code: "sv", Name: "Swedish", NativeName: "Svenska", Flag: "🇸🇪"},
	{Code: "da", Name: "Danish", NativeName: "Dansk", Flag: "🇩🇰"},
	{Code: "no", Name: "Norwegian", NativeName: "Norsk", Flag: "🇳🇴"},
	{Code: "fi", Name: "Finnish", NativeName: "Suomi", Flag: "🇫🇮"},
	{Code: "pl", Name: "Polish", NativeName: "Polski", Flag: "🇵🇱"},
	{Code: "tr", Name: "Turkish", NativeName: "Türkçe", Flag: "🇹🇷"},
	{Code: "th", Name: "Thai", NativeName: "ไทย", Flag: "🇹🇭"},
	{Code: "vi", Name: "Vietnamese", NativeName: "Tiếng Việt", Flag: "🇻🇳"},
	{Code: "id", Name: "Indonesian", NativeName: "Bahasa Indonesia", Flag: "🇮🇩"},
	{Code: "ms", Name: "Malay", NativeName: "Bahasa Melayu", Flag: "🇲🇾"},
	{Code: "tl", Name: "Filipino", NativeName: "Filipino", Flag: "🇵🇭"},
}

// LookupLanguage returns the catalogue entry for code. The comparison is
// case-insensitive and ignores a region suffix ("pt-BR" matches "pt").
func LookupLanguage(code string) (Language, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	for _, l := range Languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// IsSupportedLanguage reports whether code is in the catalogue.
func IsSupportedLanguage(code string) bool {
	_, ok := LookupLanguage(code)
	return ok
}

// NormalizeLanguage turns a provider-reported language into a lower-case
// ISO 639-1 code. It accepts codes with or without a region suffix and the
// English names speech models report ("Spanish"). Unknown values are returned
// lower-cased.
func NormalizeLanguage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if l, ok := LookupLanguage(s); ok {
		return l.Code
	}
	if s == "tagalog" {
		return "tl"
	}
	for _, l := range Languages {
		if strings.ToLower(l.Name) == s {
			return l.Code
		}
	}
	return s
}
