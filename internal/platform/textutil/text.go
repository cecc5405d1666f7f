// Package textutil normalises free-form user text before it is persisted.
package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// PlainText strips markup, collapses whitespace runs and truncates to maxRunes (0 means no limit).
func PlainText(value string, maxRunes int) string {
	cleaned := html.UnescapeString(strict.Sanitize(value))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return cleaned
}

// AppendNote appends a sanitised line to existing notes, one note per line.
func AppendNote(existing, note string, maxRunes int) string {
	note = PlainText(note, maxRunes)
	if note == "" {
		return existing
	}
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
