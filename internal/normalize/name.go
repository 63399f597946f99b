package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	multiSpaceRe = regexp.MustCompile(`\s+`)
	apostrophes  = strings.NewReplacer("'", "", "’", "", "`", "")
	articles     = []string{"the ", "a ", "an ", "le ", "la ", "el ", "los ", "las "}
)

// foldDiacritics decomposes s and drops combining marks, so "Café" becomes "Cafe".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Name returns the comparison key for a venue name: diacritics folded,
// lowercased, "&" spelled "and", punctuation removed, one leading article
// dropped and whitespace collapsed. Names that are only an article keep it.
func Name(name string) string {
	s := strings.ToLower(foldDiacritics(name))
	s = strings.ReplaceAll(s, "&", " and ")
	s = apostrophes.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
	s = strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))

	for _, a := range articles {
		if rest := strings.TrimPrefix(s, a); rest != s && rest != "" {
			return rest
		}
	}
	return s
}

// DisplayName returns the canonical title-cased form of a source name with
// whitespace collapsed. A Caser is stateful, so each call builds its own.
func DisplayName(name string) string {
	s := strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))
	return cases.Title(language.English).String(s)
}
