package service

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const previewLength = 140

var (
	sanitizer    = bluemonday.StrictPolicy()
	markupRe     = regexp.MustCompile(`@\[([^\]\n]{1,100})\]\([0-9a-fA-F-]{36}\)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Preview renders comment content as plain text of at most 140 characters.
// Longer text is cut at the last word boundary and gets a trailing "…".
func Preview(content string) string {
	text := markupRe.ReplaceAllString(content, "@$1")
	text = html.UnescapeString(sanitizer.Sanitize(text))
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))

	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}

	cut := runes[:previewLength]
	// Only back off to a space when the next rune would have continued a word.
	if !unicode.IsSpace(runes[previewLength]) {
		for i := len(cut) - 1; i > 0; i-- {
			if unicode.IsSpace(cut[i]) {
				cut = cut[:i]
				break
			}
		}
	}

	return strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':'
	}) + "…"
}
