package title

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknownToken = errors.New("unknown rename token")
	ErrEmptyTitle   = errors.New("rename rule produced an empty title")
)

// Token is one element of a rename rule.
type Token string

const (
	TokenDefault Token = "default"
	TokenIdx     Token = "idx"
	TokenIdx3    Token = "3idx"
	TokenIdx4    Token = "4idx"
	TokenOrd     Token = "ord"
	TokenOrd3    Token = "3ord"
	TokenOrd4    Token = "4ord"
	TokenShort   Token = "short"
	TokenLong    Token = "long"
)

var knownTokens = map[Token]struct{}{
	TokenDefault: {}, TokenIdx: {}, TokenIdx3: {}, TokenIdx4: {},
	TokenOrd: {}, TokenOrd3: {}, TokenOrd4: {}, TokenShort: {}, TokenLong: {},
}

// Rule is an ordered list of tokens joined by "&" in configuration.
type Rule []Token

// ParseRule splits and validates a rule string. An empty string yields the
// default rule.
func ParseRule(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rule{TokenDefault}, nil
	}
	parts := strings.Split(s, "&")
	rule := make(Rule, 0, len(parts))
	for _, p := range parts {
		tok := Token(strings.ToLower(strings.TrimSpace(p)))
		if _, ok := knownTokens[tok]; !ok {
			return nil, fmt.Errorf("%w %q in %q", ErrUnknownToken, p, s)
		}
		rule = append(rule, tok)
	}
	return rule, nil
}

// String renders the rule back to its configuration form.
func (r Rule) String() string {
	parts := make([]string, len(r))
	for i, t := range r {
		parts[i] = string(t)
	}
	return strings.Join(parts, "&")
}

// IsDefault reports whether applying the rule leaves the canonical title as is.
func (r Rule) IsDefault() bool {
	return len(r) == 0 || (len(r) == 1 && r[0] == TokenDefault)
}

func (r Rule) has(t Token) bool {
	for _, tok := range r {
		if tok == t {
			return true
		}
	}
	return false
}

// Fields are the chapter values a rule can reference.
type Fields struct {
	Short string
	Long  string
	Index int
	Ord   float64
}

// Apply renders the rule. canonical is the output of Normalize and is what
// the "default" token expands to. On error the caller keeps canonical.
func (r Rule) Apply(canonical string, f Fields) (string, error) {
	if r.IsDefault() {
		return canonical, nil
	}

	short, long := f.Short, f.Long
	if long == "" && r.has(TokenLong) && !r.has(TokenShort) {
		long = short
	}
	// the long title usually repeats the short one; keep a single copy
	if r.has(TokenShort) && r.has(TokenLong) && strings.HasPrefix(long, short) {
		short, long = long, ""
	}

	parts := make([]string, 0, len(r))
	for _, tok := range r {
		var piece string
		switch tok {
		case TokenDefault:
			piece = canonical
		case TokenIdx:
			piece = strconv.Itoa(f.Index)
		case TokenIdx3:
			piece = fmt.Sprintf("%03d", f.Index)
		case TokenIdx4:
			piece = fmt.Sprintf("%04d", f.Index)
		case TokenOrd, TokenOrd3, TokenOrd4:
			s, err := formatOrd(f.Ord, ordWidth(tok))
			if err != nil {
				return canonical, err
			}
			piece = s
		case TokenShort:
			piece = short
		case TokenLong:
			piece = long
		default:
			return canonical, fmt.Errorf("%w %q", ErrUnknownToken, tok)
		}
		if piece = strings.TrimSpace(piece); piece != "" {
			parts = append(parts, piece)
		}
	}

	out := Sanitize(strings.Join(parts, " "))
	if out == "" {
		return canonical, ErrEmptyTitle
	}
	return out, nil
}

func ordWidth(t Token) int {
	switch t {
	case TokenOrd3:
		return 3
	case TokenOrd4:
		return 4
	}
	return 0
}

// formatOrd pads the integer part of a possibly fractional ordinal and
// appends the decimal remainder verbatim, so 7.5 with width 3 is "007.5".
func formatOrd(ord float64, pad int) (string, error) {
	if math.IsNaN(ord) || math.IsInf(ord, 0) || ord < 0 {
		return "", fmt.Errorf("invalid chapter ordinal %v", ord)
	}
	s := strconv.FormatFloat(ord, 'f', -1, 64)
	intPart, decimal, _ := strings.Cut(s, ".")
	if decimal != "" {
		decimal = "." + decimal
	}
	n, err := strconv.Atoi(intPart)
	if err != nil {
		return "", fmt.Errorf("invalid chapter ordinal %v: %w", ord, err)
	}
	if pad == 0 {
		return strconv.Itoa(n) + decimal, nil
	}
	return fmt.Sprintf("%0*d", pad, n) + decimal, nil
}
