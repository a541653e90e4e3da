// Package mention extracts @mentions from comment text and resolves them to recipients.
package mention

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"anoa.com/casethreads/internal/entity"
	"github.com/google/uuid"
)

type Kind string

const (
	KindUser Kind = "user"
	KindRole Kind = "role"
	KindAll  Kind = "all"
)

// Token is one mention found in a text. Start is a byte offset into the text.
type Token struct {
	Kind  Kind
	Raw   string
	Start int

	// KindUser: UserID is set for explicit markup, Name always holds the display name.
	UserID uuid.UUID
	Name   string

	// KindRole: the internal role the keyword maps to.
	Role string
}

// Explicit reports whether the token carries a user id chosen by the input assist.
func (t Token) Explicit() bool {
	return t.Kind == KindUser && t.UserID != uuid.Nil
}

var (
	explicitRe = regexp.MustCompile(`@\[([^\]\n]{1,100})\]\(([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\)`)
	roleRe     = regexp.MustCompile(`(?i)@(tekniker|koordinator|admin|alla)`)
	// Legacy free-text mentions: 1-4 capitalised words.
	nameRe = regexp.MustCompile(`@(\p{Lu}[\p{L}\p{N}]*(?:[ \t]+\p{Lu}[\p{L}\p{N}]*){0,3})`)
)

var roleKeywords = map[string]string{
	"tekniker":    entity.RoleTechnician,
	"koordinator": entity.RoleKoordinator,
	"admin":       entity.RoleAdmin,
}

// Markup renders the explicit mention format produced by the input assist.
func Markup(displayName string, userID uuid.UUID) string {
	return fmt.Sprintf("@[%s](%s)", displayName, userID)
}

// Parse returns the mentions in text ordered by position. It never touches a store.
//
// Explicit markup is claimed first, then role keywords. The capitalised-name
// heuristic only runs when the text has no explicit markup at all and is
// best-effort support for text written before the input assist existed.
func Parse(text string) []Token {
	var (
		tokens  []Token
		claimed [][2]int
	)

	overlaps := func(start, end int) bool {
		for _, span := range claimed {
			if start < span[1] && span[0] < end {
				return true
			}
		}
		return false
	}

	explicit := explicitRe.FindAllStringSubmatchIndex(text, -1)
	for _, m := range explicit {
		id, err := uuid.Parse(text[m[4]:m[5]])
		if err != nil {
			continue
		}
		tokens = append(tokens, Token{
			Kind:   KindUser,
			Raw:    text[m[0]:m[1]],
			Start:  m[0],
			UserID: id,
			Name:   strings.TrimSpace(text[m[2]:m[3]]),
		})
		claimed = append(claimed, [2]int{m[0], m[1]})
	}

	for _, m := range roleRe.FindAllStringSubmatchIndex(text, -1) {
		if !leftBoundary(text, m[0]) || !wordEnd(text, m[1]) || overlaps(m[0], m[1]) {
			continue
		}
		keyword := strings.ToLower(text[m[2]:m[3]])
		tok := Token{Raw: text[m[0]:m[1]], Start: m[0]}
		if keyword == "alla" {
			tok.Kind = KindAll
		} else {
			tok.Kind = KindRole
			tok.Role = roleKeywords[keyword]
		}
		tokens = append(tokens, tok)
		claimed = append(claimed, [2]int{m[0], m[1]})
	}

	if len(explicit) == 0 {
		for _, m := range nameRe.FindAllStringSubmatchIndex(text, -1) {
			if !leftBoundary(text, m[0]) || !nameEnd(text, m[1]) || overlaps(m[0], m[1]) {
				continue
			}
			tokens = append(tokens, Token{
				Kind:  KindUser,
				Raw:   text[m[0]:m[1]],
				Start: m[0],
				Name:  text[m[2]:m[3]],
			})
			claimed = append(claimed, [2]int{m[0], m[1]})
		}
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].Start < tokens[j].Start
	})
	return tokens
}

// DisplayNames maps every explicitly mentioned user id in text to the name in its markup.
func DisplayNames(text string) map[uuid.UUID]string {
	names := make(map[uuid.UUID]string)
	for _, m := range explicitRe.FindAllStringSubmatch(text, -1) {
		id, err := uuid.Parse(m[2])
		if err != nil {
			continue
		}
		if _, ok := names[id]; !ok {
			names[id] = strings.TrimSpace(m[1])
		}
	}
	return names
}

// leftBoundary: the @ must not be glued to a preceding word (e.g. an e-mail address).
func leftBoundary(text string, at int) bool {
	if at == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:at])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

func wordEnd(text string, at int) bool {
	if at >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[at:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

func nameEnd(text string, at int) bool {
	if at >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[at:])
	return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
}
