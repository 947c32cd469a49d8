package util

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NormalizeSpace trims s and collapses every whitespace run to one space
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RuneLen returns the number of characters in s
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate cuts s to at most n characters
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// IsHangul reports whether r is a precomposed hangul syllable
func IsHangul(r rune) bool {
	return r >= '가' && r <= '힣'
}

// HangulRatio returns the share of hangul syllables among all characters
func HangulRatio(s string) float64 {
	total := 0
	hangul := 0
	for _, r := range s {
		total++
		if IsHangul(r) {
			hangul++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hangul) / float64(total)
}

const keptPunctuation = `.,!?:;()-"'`

// CleanText prepares text for embedding: NFKC folding, whitespace
// normalisation, and replacement of symbols other than basic punctuation.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(NormalizeSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r), r == '_':
			b.WriteRune(r)
		case strings.ContainsRune(keptPunctuation, r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return NormalizeSpace(b.String())
}
