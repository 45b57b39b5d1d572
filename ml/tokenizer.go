package ml

import (
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const minTokenLen = 2

// Tokenize lower-cases NFC-normalised text and returns runs of word
// characters (letters, digits, underscore) at least two runes long.
func Tokenize(text string) []string {
	folded := cases.Lower(language.Und).String(norm.NFC.String(text))

	var (
		tokens []string
		word   []rune
	)
	flush := func() {
		if len(word) >= minTokenLen {
			tokens = append(tokens, string(word))
		}
		word = word[:0]
	}
	for _, r := range folded {
		if isWordRune(r) {
			word = append(word, r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
