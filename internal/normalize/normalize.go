// Package normalize implements the pure, I/O-free canonicalization
// functions the rest of the dedup core is built on. All normalizers
// treat null/empty input as the empty string and are idempotent:
// normalizing an already-normalized value returns it unchanged.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lowerCaser = cases.Lower(language.Und)

// Email lowercases and trims. It does not alter local-part casing beyond
// lowercasing — there is no separate local-part/domain split.
func Email(s string) string {
	if s == "" {
		return ""
	}
	return lowerCaser.String(strings.TrimSpace(s))
}

// Domain lowercases, trims, strips a leading scheme and "www.", cuts off
// anything from the first path/query/fragment delimiter, and strips
// trailing dots.
func Domain(s string) string {
	if s == "" {
		return ""
	}
	d := lowerCaser.String(strings.TrimSpace(s))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if idx := strings.IndexAny(d, "/?#"); idx >= 0 {
		d = d[:idx]
	}
	d = strings.TrimRight(d, ".")
	return d
}

// Phone is the result of normalizing a phone number: full is every digit
// after stripping an international prefix; national additionally drops a
// leading country code "1" from an 11-digit US/Canada number.
type Phone struct {
	Full            string
	National        string
	IsInternational bool
}

// Usable reports whether Full has enough digits to be a candidate for exact
// identity matching: a 9-digit phone is ignored.
func (p Phone) Usable() bool {
	return len(p.Full) >= 10
}

var nonDigitExceptLeadingPlus = regexp.MustCompile(`[^\d+]`)

// NormalizePhone strips everything but digits (and a leading '+'), then
// strips a recognized international prefix (+, 00, 011), and drops a
// leading US/Canada country code "1" from 11-digit numbers for National.
func NormalizePhone(s string) Phone {
	if s == "" {
		return Phone{}
	}

	cleaned := nonDigitExceptLeadingPlus.ReplaceAllString(strings.TrimSpace(s), "")
	// A '+' is only meaningful as the very first character; the regexp
	// above keeps every '+', so drop any that is not first.
	if len(cleaned) > 1 {
		cleaned = cleaned[:1] + strings.ReplaceAll(cleaned[1:], "+", "")
	}

	isInternational := false
	switch {
	case strings.HasPrefix(cleaned, "+"):
		isInternational = true
		cleaned = cleaned[1:]
	case strings.HasPrefix(cleaned, "00"):
		isInternational = true
		cleaned = cleaned[2:]
	case strings.HasPrefix(cleaned, "011"):
		isInternational = true
		cleaned = cleaned[3:]
	}

	full := cleaned
	national := cleaned
	if len(cleaned) == 11 && strings.HasPrefix(cleaned, "1") {
		national = cleaned[1:]
	}

	return Phone{Full: full, National: national, IsInternational: isInternational}
}

var nonWordNonSpace = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// String lowercases, trims, strips non-word/non-whitespace characters, and
// collapses internal whitespace runs to a single space. Used for name/
// title/company comparison ahead of fuzzy scoring.
func String(s string) string {
	if s == "" {
		return ""
	}
	v := lowerCaser.String(strings.TrimSpace(s))
	v = nonWordNonSpace.ReplaceAllString(v, "")
	v = whitespaceRun.ReplaceAllString(v, " ")
	return strings.TrimSpace(v)
}
