package tasks

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	MinTitleLength = 1
	MaxTitleLength = 255
)

// NormalizeTitle trims the title and collapses every internal whitespace
// run into a single space.
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// validTitle normalizes s and checks its encoding and its length in code
// points. Invalid UTF-8 would not survive a JSON round trip.
func validTitle(s string) (string, error) {
	title := NormalizeTitle(s)
	if !utf8.ValidString(title) {
		return "", &ValidationError{Field: "title", Err: ErrInvalidTitleEncoding}
	}
	n := utf8.RuneCountInString(title)
	if n < MinTitleLength || n > MaxTitleLength {
		return "", &ValidationError{Field: "title", Length: n, Err: ErrInvalidTitleLength}
	}
	return title, nil
}

// searchKey is the form both titles and queries are compared in.
func searchKey(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}
