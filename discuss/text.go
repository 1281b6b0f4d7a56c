package discuss

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// PascalCase joins the words of a category name, capitalizing each one:
// "Python Help" becomes "PythonHelp". The first word is capitalized with the
// rest of it lowercased; following words are title cased.
func PascalCase(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(capitalize(words[0]))
	for _, w := range words[1:] {
		sb.WriteString(titleCaser.String(w))
	}
	return sb.String()
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}

// Hashtag renders a category or tag name as a hashtag. Characters which can not
// appear in a hashtag are dropped.
func Hashtag(s string) string {
	pc := PascalCase(s)
	tag := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return -1
	}, pc)
	if tag == "" {
		return ""
	}
	return "#" + tag
}
