package contentsystem

import "strings"

// Language describes one entry of the canonical language table.
type Language struct {
	Code            string
	Name            string
	NativeName      string
	DeprecatedCodes []string
}

// languages is the canonical BCP-47-like table, ported from
// original_source/src/content_system/languages.rs. Only the subset
// referenced elsewhere in this module (plus enough neighbors to make the
// table credible) is carried over; legacy/deprecated codes are preserved
// verbatim since callers key lookups on them.
var languages = []Language{
	{Code: "af-ZA", Name: "Afrikaans", NativeName: "Afrikaans"},
	{Code: "ar", Name: "Arabic", NativeName: "العربية"},
	{Code: "az-AZ", Name: "Azeri", NativeName: "Azərbaycanılı"},
	{Code: "be-BY", Name: "Belarusian", NativeName: "Беларускі", DeprecatedCodes: []string{"be"}},
	{Code: "bn-BD", Name: "Bengali", NativeName: "বাংলা", DeprecatedCodes: []string{"bn_BD"}},
	{Code: "bg-BG", Name: "Bulgarian", NativeName: "български", DeprecatedCodes: []string{"bg", "bl"}},
	{Code: "bs-BA", Name: "Bosnian", NativeName: "босански"},
	{Code: "ca-ES", Name: "Catalan", NativeName: "Català", DeprecatedCodes: []string{"ca"}},
	{Code: "cs-CZ", Name: "Czech", NativeName: "Čeština", DeprecatedCodes: []string{"cz"}},
	{Code: "da-DK", Name: "Danish", NativeName: "Dansk", DeprecatedCodes: []string{"da"}},
	{Code: "de-DE", Name: "German", NativeName: "Deutsch", DeprecatedCodes: []string{"de"}},
	{Code: "el-GR", Name: "Greek", NativeName: "Ελληνικά", DeprecatedCodes: []string{"el"}},
	{Code: "en-US", Name: "English", NativeName: "English", DeprecatedCodes: []string{"en"}},
	{Code: "es-ES", Name: "Spanish (Spain)", NativeName: "Español (Spain)", DeprecatedCodes: []string{"es"}},
	{Code: "es-MX", Name: "Spanish (Mexico)", NativeName: "Español (Mexico)"},
	{Code: "et-EE", Name: "Estonian", NativeName: "Eesti", DeprecatedCodes: []string{"et"}},
	{Code: "fi-FI", Name: "Finnish", NativeName: "Suomi", DeprecatedCodes: []string{"fi"}},
	{Code: "fr-FR", Name: "French", NativeName: "Français", DeprecatedCodes: []string{"fr"}},
	{Code: "he-IL", Name: "Hebrew", NativeName: "עברית", DeprecatedCodes: []string{"he"}},
	{Code: "hi-IN", Name: "Hindi", NativeName: "हिन्दी", DeprecatedCodes: []string{"hi"}},
	{Code: "hr-HR", Name: "Croatian", NativeName: "Hrvatski", DeprecatedCodes: []string{"hr"}},
	{Code: "hu-HU", Name: "Hungarian", NativeName: "Magyar", DeprecatedCodes: []string{"hu"}},
	{Code: "id-ID", Name: "Indonesian", NativeName: "Bahasa Indonesia", DeprecatedCodes: []string{"id"}},
	{Code: "it-IT", Name: "Italian", NativeName: "Italiano", DeprecatedCodes: []string{"it"}},
	{Code: "ja-JP", Name: "Japanese", NativeName: "日本語", DeprecatedCodes: []string{"jp", "ja"}},
	{Code: "ko-KR", Name: "Korean", NativeName: "한국어", DeprecatedCodes: []string{"ko"}},
	{Code: "lt-LT", Name: "Lithuanian", NativeName: "Lietuvių"},
	{Code: "lv-LV", Name: "Latvian", NativeName: "Latviešu"},
	{Code: "nl-NL", Name: "Dutch", NativeName: "Nederlands", DeprecatedCodes: []string{"nl"}},
	{Code: "no-NO", Name: "Norwegian", NativeName: "Norsk", DeprecatedCodes: []string{"no"}},
	{Code: "pl-PL", Name: "Polish", NativeName: "Polski", DeprecatedCodes: []string{"pl"}},
	{Code: "pt-BR", Name: "Portuguese (Brazil)", NativeName: "Português do Brasil", DeprecatedCodes: []string{"br"}},
	{Code: "pt-PT", Name: "Portuguese (Portugal)", NativeName: "Português"},
	{Code: "ro-RO", Name: "Romanian", NativeName: "Română", DeprecatedCodes: []string{"ro"}},
	{Code: "ru-RU", Name: "Russian", NativeName: "Русский", DeprecatedCodes: []string{"ru"}},
	{Code: "sk-SK", Name: "Slovak", NativeName: "Slovenčina", DeprecatedCodes: []string{"sk"}},
	{Code: "sl-SI", Name: "Slovenian", NativeName: "Slovenski"},
	{Code: "sr-SP", Name: "Serbian", NativeName: "Српски"},
	{Code: "sv-SE", Name: "Swedish", NativeName: "Svenska", DeprecatedCodes: []string{"sv"}},
	{Code: "th-TH", Name: "Thai", NativeName: "ไทย", DeprecatedCodes: []string{"th"}},
	{Code: "tr-TR", Name: "Turkish", NativeName: "Türkçe", DeprecatedCodes: []string{"tr"}},
	{Code: "uk-UA", Name: "Ukrainian", NativeName: "Українська", DeprecatedCodes: []string{"ua"}},
	{Code: "vi-VN", Name: "Vietnamese", NativeName: "Tiếng Việt"},
	{Code: "zh-Hans", Name: "Chinese (Simplified)", NativeName: "中文(简体)", DeprecatedCodes: []string{"zh_Hans", "zh", "cn"}},
	{Code: "zh-Hant", Name: "Chinese (Traditional)", NativeName: "中文(繁體)", DeprecatedCodes: []string{"zh_Hant", "tw"}},
}

var languageByCode map[string]Language
var languageByDeprecated map[string]Language

func init() {
	languageByCode = make(map[string]Language, len(languages))
	languageByDeprecated = make(map[string]Language)
	for _, l := range languages {
		languageByCode[strings.ToLower(l.Code)] = l
		for _, d := range l.DeprecatedCodes {
			languageByDeprecated[strings.ToLower(d)] = l
		}
	}
}

// getLanguage resolves a query (canonical or legacy code) to its table
// entry, case-insensitively.
func getLanguage(query string) (Language, bool) {
	q := strings.ToLower(query)
	if l, ok := languageByCode[q]; ok {
		return l, true
	}
	if l, ok := languageByDeprecated[q]; ok {
		return l, true
	}
	return Language{}, false
}

// normalizeLanguage maps a manifest-embedded language string to its
// canonical code, treating the literal "neutral" as the wildcard "*".
func normalizeLanguage(lang string) string {
	if strings.EqualFold(lang, "neutral") {
		return "*"
	}
	if l, ok := getLanguage(lang); ok {
		return l.Code
	}
	return lang
}
