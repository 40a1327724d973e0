package voice

import (
	"slices"
	"strings"
)

// letterNames lists how children say each letter out loud, per base
// language. Recognisers tend to return these words instead of the bare
// letter.
var letterNames = map[string]map[string][]string{
	"en": {
		"a": {"ay"}, "b": {"bee", "be"}, "c": {"see", "sea", "cee"}, "d": {"dee"},
		"e": {"ee"}, "f": {"ef", "eff"}, "g": {"gee", "jee"}, "h": {"aitch", "haitch"},
		"i": {"eye", "aye"}, "j": {"jay"}, "k": {"kay"}, "l": {"el", "ell"},
		"m": {"em"}, "n": {"en"}, "o": {"oh", "owe"}, "p": {"pee", "pea"},
		"q": {"cue", "queue"}, "r": {"ar", "are"}, "s": {"es", "ess"}, "t": {"tee", "tea"},
		"u": {"you", "yoo"}, "v": {"vee"}, "w": {"double you"}, "x": {"ex"},
		"y": {"why", "wye"}, "z": {"zee", "zed"},
	},
	"fr": {
		"a": {"ah"}, "b": {"bé", "bay"}, "c": {"cé", "say"}, "d": {"dé"},
		"e": {"eu", "euh"}, "f": {"effe"}, "g": {"gé"}, "h": {"hache"},
		"i": {"hi"}, "j": {"ji"}, "k": {"ka"}, "l": {"elle"},
		"m": {"emme"}, "n": {"enne"}, "o": {"oh", "eau"}, "p": {"pé"},
		"q": {"qu"}, "r": {"erre", "ère"}, "s": {"esse"}, "t": {"té"},
		"u": {"hu"}, "v": {"vé"}, "w": {"double vé"}, "x": {"ixe"},
		"y": {"i grec"}, "z": {"zède"},
		"é": {"e accent aigu"}, "è": {"e accent grave"}, "ê": {"e accent circonflexe"},
		"à": {"a accent grave"}, "ç": {"c cédille"},
	},
}

// reverseNames maps a spoken name back to its letter, per base language.
var reverseNames = func() map[string]map[string]string {
	out := make(map[string]map[string]string, len(letterNames))
	for lang, table := range letterNames {
		rev := make(map[string]string)
		letters := make([]string, 0, len(table))
		for l := range table {
			letters = append(letters, l)
		}
		slices.Sort(letters)
		for _, l := range letters {
			for _, name := range table[l] {
				if _, dup := rev[name]; !dup {
					rev[name] = l
				}
			}
		}
		out[lang] = rev
	}
	return out
}()

func baseLanguage(tag string) string {
	tag = strings.ToLower(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	if _, ok := letterNames[tag]; ok {
		return tag
	}
	return "en"
}

// Names returns the spoken names of letter in lang. Unknown languages use
// English names.
func Names(letter, lang string) []string {
	return slices.Clone(letterNames[baseLanguage(lang)][strings.ToLower(letter)])
}

// LetterForName returns the letter whose spoken name is name.
func LetterForName(name, lang string) (string, bool) {
	l, ok := reverseNames[baseLanguage(lang)][strings.ToLower(strings.TrimSpace(name))]
	return l, ok
}

// Grammar returns the recognition vocabulary for an expected answer: the
// answer itself plus its spoken names.
func Grammar(expected, lang string) []string {
	expected = strings.ToLower(expected)
	if strings.TrimSpace(expected) == "" {
		return nil
	}
	return append([]string{expected}, Names(expected, lang)...)
}
