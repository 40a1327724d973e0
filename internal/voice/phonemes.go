package voice

import (
	"slices"
	"strings"
)

// phonemeMaps lists the IPA phonemes each letter commonly produces.
var phonemeMaps = map[string]map[string][]string{
	"fr": {
		"a": {"a"}, "b": {"b"}, "c": {"k", "s"}, "d": {"d"}, "e": {"ə", "e", "ɛ"},
		"f": {"f"}, "g": {"ɡ", "ʒ"}, "h": {}, "i": {"i"}, "j": {"ʒ"},
		"k": {"k"}, "l": {"l"}, "m": {"m"}, "n": {"n"}, "o": {"o", "ɔ"},
		"p": {"p"}, "q": {"k"}, "r": {"ʁ"}, "s": {"s", "z"}, "t": {"t"},
		"u": {"y"}, "v": {"v"}, "w": {"w"}, "x": {"ks", "s"}, "y": {"i", "j"},
		"z": {"z"},
	},
	"en": {
		"a": {"æ", "eɪ"}, "b": {"b"}, "c": {"k", "s"}, "d": {"d"}, "e": {"ɛ", "iː"},
		"f": {"f"}, "g": {"ɡ", "dʒ"}, "h": {"h"}, "i": {"ɪ", "aɪ"}, "j": {"dʒ"},
		"k": {"k"}, "l": {"l"}, "m": {"m"}, "n": {"n"}, "o": {"ɒ", "oʊ"},
		"p": {"p"}, "q": {"k"}, "r": {"ɹ"}, "s": {"s", "z"}, "t": {"t"},
		"u": {"ʌ", "juː"}, "v": {"v"}, "w": {"w"}, "x": {"ks"}, "y": {"j", "aɪ"},
		"z": {"z"},
	},
}

// voskAliases maps the ARPAbet-like tokens Vosk emits in phoneme mode to IPA.
var voskAliases = map[string][]string{
	"ah": {"a", "ʌ", "ə"}, "ae": {"æ"}, "b": {"b"}, "ch": {"tʃ"},
	"d": {"d"}, "eh": {"ɛ", "e"}, "er": {"ɜ", "ə"}, "ey": {"eɪ"},
	"f": {"f"}, "g": {"ɡ"}, "hh": {"h"}, "ih": {"ɪ", "i"},
	"iy": {"iː", "i"}, "jh": {"dʒ", "ʒ"}, "k": {"k"}, "l": {"l"},
	"m": {"m"}, "n": {"n"}, "ow": {"oʊ", "o", "ɔ"}, "p": {"p"},
	"r": {"ɹ", "ʁ"}, "s": {"s"}, "sh": {"ʃ"}, "t": {"t"},
	"uw": {"uː", "y"}, "v": {"v"}, "w": {"w"}, "y": {"j"},
	"z": {"z"}, "zh": {"ʒ"}, "aa": {"ɑ", "a"}, "ao": {"ɔ", "o"},
	"ay": {"aɪ"}, "oy": {"ɔɪ"}, "aw": {"aʊ"}, "ng": {"ŋ"},
	"th": {"θ"}, "dh": {"ð"}, "ks": {"ks"},
}

// MatchPhoneme reports whether the phoneme token spoken can stand for the
// letter expected in lang. Letters with no sound of their own (French "h")
// never match.
func MatchPhoneme(spoken, expected, lang string) bool {
	expected = strings.ToLower(expected)
	want := phonemeMaps[baseLanguage(lang)][expected]
	if len(want) == 0 {
		return false
	}

	spoken = strings.ToLower(strings.TrimSpace(spoken))
	if spoken == "" {
		return false
	}
	if slices.Contains(want, spoken) {
		return true
	}
	for _, ipa := range voskAliases[spoken] {
		if slices.Contains(want, ipa) {
			return true
		}
	}

	// Short tokens starting with the letter itself ("t", "th") count.
	if len([]rune(spoken)) <= 2 && len([]rune(expected)) == 1 {
		return []rune(spoken)[0] == []rune(expected)[0]
	}
	return false
}
