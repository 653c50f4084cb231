package transcript

import "strings"

// Porcupine keyword files follow the naming convention
// "Hey-Ascolta_en_linux_v3_0_0.ppn". The phrase identifier derived from the
// basename keeps the locale, platform, and version tail, none of which is
// ever spoken.
var (
	phraseLocales = map[string]struct{}{
		"ar": {}, "de": {}, "en": {}, "es": {}, "fa": {}, "fr": {},
		"hi": {}, "it": {}, "ja": {}, "ko": {}, "nl": {}, "pl": {},
		"pt": {}, "ru": {}, "sv": {}, "vn": {}, "zh": {},
	}
	phrasePlatforms = map[string]struct{}{
		"android": {}, "beaglebone": {}, "ios": {}, "jetson": {},
		"linux": {}, "mac": {}, "macos": {}, "pi": {}, "raspberry": {},
		"web": {}, "windows": {},
	}
)

// SpokenPhrase converts a wake-model phrase identifier into the words a user
// actually says: it lowercases the identifier, splits it on "_" and "-", and
// drops trailing locale, platform, and version tokens. "Hey-Ascolta_en_linux"
// becomes "hey ascolta"; built-in keyword names such as "computer" pass
// through unchanged.
func SpokenPhrase(id string) string {
	fields := strings.FieldsFunc(strings.ToLower(id), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for len(fields) > 1 && isMetaToken(fields[len(fields)-1]) {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// isMetaToken reports whether a token is part of the locale/platform/version
// tail rather than the phrase itself.
func isMetaToken(tok string) bool {
	if _, ok := phraseLocales[tok]; ok {
		return true
	}
	if _, ok := phrasePlatforms[tok]; ok {
		return true
	}
	return isVersionToken(tok)
}

// isVersionToken reports whether a token looks like a version fragment:
// all digits, or a "v" followed by digits.
func isVersionToken(tok string) bool {
	if tok == "" {
		return false
	}
	rest := tok
	if rest[0] == 'v' {
		rest = rest[1:]
		if rest == "" {
			return false
		}
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
