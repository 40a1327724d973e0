package lesson

import "slices"

var wordBanks = map[string][]string{
	"en": {
		"cat", "dog", "hat", "bat", "sun", "moon", "star", "tree",
		"book", "pen", "cup", "ball", "fish", "bird", "hand", "foot",
		"head", "nose", "eyes", "ears", "baby", "mama", "papa", "home",
	},
	"fr": {
		"chat", "chien", "maison", "soleil", "lune", "étoile", "arbre",
		"livre", "stylo", "tasse", "balle", "poisson", "oiseau", "main",
		"pied", "tête", "nez", "yeux", "oreille", "bébé", "maman", "papa", "école",
	},
}

// WordBank returns the practice vocabulary for lang. Unknown languages get
// the English words.
func WordBank(lang string) []string {
	words, ok := wordBanks[baseLanguage(lang)]
	if !ok {
		words = wordBanks["en"]
	}
	return slices.Clone(words)
}
