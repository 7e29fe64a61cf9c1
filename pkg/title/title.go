// Package title turns raw episode titles into display- and filesystem-safe
// chapter names, optionally reshaped by a user rename rule such as
// "3idx&short".
package title

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

var (
	dupNumberPrefix = regexp.MustCompile(`^(\d+)\s+第(\d+)话`)
	dupNumberOnly   = regexp.MustCompile(`^(\d+)\s+第(\d+)$`)
	dupSpecial      = regexp.MustCompile(`^特别篇\s+特别篇`)
	bareNumberHua   = regexp.MustCompile(`^([0-9\-.]+)话`)
	bareNumberSpace = regexp.MustCompile(`^([0-9\-.]+) `)
	bareNumberOnly  = regexp.MustCompile(`^([0-9\-.]+)$`)
)

// Normalize merges the short and long titles into the canonical chapter
// title. Running it again on its own output with an empty long title is a
// no-op.
func Normalize(short, long string) string {
	short = foldDigits(strings.TrimSpace(short))
	long = foldDigits(strings.TrimSpace(long))

	var title string
	switch {
	case short == long || long == "":
		title = short
	case strings.HasPrefix(long, short):
		title = long
	default:
		title = short + " " + long
	}

	if m := dupNumberPrefix.FindStringSubmatch(title); m != nil && m[1] == m[2] {
		title = strings.TrimLeftFunc(title[len(m[1]):], unicode.IsSpace)
	}
	if m := dupNumberOnly.FindStringSubmatch(title); m != nil && m[1] == m[2] {
		title = "第" + m[2] + "话"
	}
	if loc := dupSpecial.FindStringIndex(title); loc != nil {
		title = "特别篇" + title[loc[1]:]
	}

	switch {
	case bareNumberHua.MatchString(title):
		title = bareNumberHua.ReplaceAllString(title, "第${1}话")
	case bareNumberSpace.MatchString(title):
		title = bareNumberSpace.ReplaceAllString(title, "第${1}话 ")
	case bareNumberOnly.MatchString(title):
		title = bareNumberOnly.ReplaceAllString(title, "第${1}话")
	}
	return title
}

// foldDigits maps full-width digits to ASCII so the numeral cleanups apply
// to both spellings.
func foldDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII || !unicode.IsDigit(r) {
			return r
		}
		if n := width.LookupRune(r).Narrow(); n != 0 {
			return n
		}
		return r
	}, s)
}

var illegal = strings.NewReplacer(
	"/", "／",
	"\\", "＼",
	":", "：",
	"*", "＊",
	"?", "？",
	"\"", "＂",
	"<", "＜",
	">", "＞",
	"|", "｜",
	"\r", "",
	"\n", " ",
	"\t", " ",
)

// Sanitize makes s usable as a single path element on every platform.
// Reserved ASCII characters are swapped for their full-width forms so the
// title stays readable.
func Sanitize(s string) string {
	s = illegal.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	return strings.TrimRight(s, ". ")
}
