package language

import "strings"

// Language represents a supported transcription language
type Language struct {
	Code       string // ISO 639-1 code (e.g., "en", "es", "zh")
	Name       string // English name (e.g., "English", "Spanish")
	NativeName string // Native name (e.g., "English", "Español", "中文")
}

// Auto represents auto-detection - used when the caller doesn't specify a language
var Auto = Language{Code: "", Name: "Auto-detect", NativeName: ""}

// languages is the master list of languages Deepgram's streaming models accept
var languages = []Language{
	{Code: "bg", Name: "Bulgarian", NativeName: "Български"},
	{Code: "ca", Name: "Catalan", NativeName: "Català"},
	{Code: "zh", Name: "Chinese", NativeName: "中文"},
	{Code: "cs", Name: "Czech", NativeName: "Čeština"},
	{Code: "da", Name: "Danish", NativeName: "Dansk"},
	{Code: "nl", Name: "Dutch", NativeName: "Nederlands"},
	{Code: "en", Name: "English", NativeName: "English"},
	{Code: "et", Name: "Estonian", NativeName: "Eesti"},
	{Code: "fi", Name: "Finnish", NativeName: "Suomi"},
	{Code: "fr", Name: "French", NativeName: "Français"},
	{Code: "de", Name: "German", NativeName: "Deutsch"},
	{Code: "el", Name: "Greek", NativeName: "Ελληνικά"},
	{Code: "hi", Name: "Hindi", NativeName: "हिन्दी"},
	{Code: "hu", Name: "Hungarian", NativeName: "Magyar"},
	{Code: "id", Name: "Indonesian", NativeName: "Bahasa Indonesia"},
	{Code: "it", Name: "Italian", NativeName: "Italiano"},
	{Code: "ja", Name: "Japanese", NativeName: "日本語"},
	{Code: "ko", Name: "Korean", NativeName: "한국어"},
	{Code: "lv", Name: "Latvian", NativeName: "Latviešu"},
	{Code: "lt", Name: "Lithuanian", NativeName: "Lietuvių"},
	{Code: "ms", Name: "Malay", NativeName: "Bahasa Melayu"},
	{Code: "no", Name: "Norwegian", NativeName: "Norsk"},
	{Code: "pl", Name: "Polish", NativeName: "Polski"},
	{Code: "pt", Name: "Portuguese", NativeName: "Português"},
	{Code: "ro", Name: "Romanian", NativeName: "Română"},
	{Code: "ru", Name: "Russian", NativeName: "Русский"},
	{Code: "sk", Name: "Slovak", NativeName: "Slovenčina"},
	{Code: "es", Name: "Spanish", NativeName: "Español"},
	{Code: "sv", Name: "Swedish", NativeName: "Svenska"},
	{Code: "th", Name: "Thai", NativeName: "ไทย"},
	{Code: "tr", Name: "Turkish", NativeName: "Türkçe"},
	{Code: "uk", Name: "Ukrainian", NativeName: "Українська"},
	{Code: "vi", Name: "Vietnamese", NativeName: "Tiếng Việt"},
}

// localeOverrides maps bare ISO codes to the locale Deepgram expects
var localeOverrides = map[string]string{
	"en": "en-US",
	"pt": "pt-BR",
	"zh": "zh-CN",
}

// codeIndex maps language codes to their Language structs for fast lookup
var codeIndex map[string]Language

func init() {
	codeIndex = make(map[string]Language, len(languages)+1)
	codeIndex[""] = Auto // auto-detect is valid
	for _, lang := range languages {
		codeIndex[lang.Code] = lang
	}
}

// FromCode returns the Language for the given code.
// Locale forms like "en-US" resolve through their base code.
// Returns Auto if code is not found.
func FromCode(code string) Language {
	if lang, ok := codeIndex[code]; ok {
		return lang
	}
	if base, _, found := strings.Cut(code, "-"); found {
		if lang, ok := codeIndex[base]; ok {
			return lang
		}
	}
	return Auto
}

// List returns all supported languages (excluding Auto)
func List() []Language {
	result := make([]Language, len(languages))
	copy(result, languages)
	return result
}

// Codes returns all language codes (excluding empty string for auto)
func Codes() []string {
	codes := make([]string, len(languages))
	for i, lang := range languages {
		codes[i] = lang.Code
	}
	return codes
}

// IsValidCode returns true if the code is recognized (including empty for auto)
func IsValidCode(code string) bool {
	if _, ok := codeIndex[code]; ok {
		return true
	}
	base, _, found := strings.Cut(code, "-")
	if !found {
		return false
	}
	_, ok := codeIndex[base]
	return ok
}

// Normalize converts a code into the form sent to Deepgram.
// Bare codes with a locale override are expanded (en -> en-US),
// locale forms pass through unchanged, empty stays empty for
// auto-detection. The second return reports whether the code is
// recognized at all.
func Normalize(code string) (string, bool) {
	if code == "" {
		return "", true
	}
	if _, ok := codeIndex[code]; ok {
		if locale, mapped := localeOverrides[code]; mapped {
			return locale, true
		}
		return code, true
	}
	if base, _, found := strings.Cut(code, "-"); found {
		if _, ok := codeIndex[base]; ok {
			return code, true
		}
	}
	return "", false
}
