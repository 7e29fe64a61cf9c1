package title

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name  string
		short string
		long  string
		want  string
	}{
		{"identical titles", "第1话", "第1话", "第1话"},
		{"empty long", "第3话", "", "第3话"},
		{"long repeats short", "第1话", "第1话 开始", "第1话 开始"},
		{"concatenated", "第2话", "相遇", "第2话 相遇"},
		{"duplicated bare number", "12", "第12话", "第12话"},
		{"duplicated bare number with tail", "12", "第12话 终章", "第12话 终章"},
		{"mismatched bare number kept", "12", "第13话", "第12话 第13话"},
		{"duplicated number without hua", "5", "第5", "第5话"},
		{"duplicated special", "特别篇", "特别篇 番外", "特别篇 番外"},
		{"special repeated twice", "特别篇", "特别篇特别篇", "特别篇特别篇"},
		{"special doubled in short title", "特别篇 特别篇", "", "特别篇"},
		{"numeral with hua", "7话", "", "第7话"},
		{"numeral then title", "7", "出发", "第7话 出发"},
		{"bare numeral", "7.5", "", "第7.5话"},
		{"full width digits", "１２", "", "第12话"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Normalize(c.short, c.long))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := [][2]string{
		{"12", "第12话"},
		{"7", "出发"},
		{"特别篇", "特别篇 番外"},
		{"第1话", "第1话 开始"},
		{"7.5", ""},
		{"", "只有长标题"},
	}
	for _, in := range inputs {
		once := Normalize(in[0], in[1])
		assert.Equal(t, once, Normalize(once, ""), "input %v", in)
		assert.Equal(t, once, Normalize(once, once), "input %v", in)
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a／b：c？", Sanitize(`a/b:c?`))
	assert.Equal(t, "x＜y＞z｜w＊＂＼", Sanitize(`x<y>z|w*"\`))
	assert.Equal(t, "line one", Sanitize("line\none"))
	assert.Equal(t, "trailing", Sanitize("  trailing.. "))
	assert.Equal(t, "第1话 开始", Sanitize("第1话 开始"))
}

func TestParseRule(t *testing.T) {
	rule, err := ParseRule("3idx&short")
	require.NoError(t, err)
	assert.Equal(t, Rule{TokenIdx3, TokenShort}, rule)
	assert.Equal(t, "3idx&short", rule.String())

	rule, err = ParseRule("")
	require.NoError(t, err)
	assert.True(t, rule.IsDefault())

	rule, err = ParseRule(" ORD & Long ")
	require.NoError(t, err)
	assert.Equal(t, Rule{TokenOrd, TokenLong}, rule)

	_, err = ParseRule("idx&volume")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestRuleApply(t *testing.T) {
	cases := []struct {
		name   string
		rule   string
		fields Fields
		want   string
	}{
		{"padded index and short", "3idx&short", Fields{Short: "测试", Index: 7}, "007 测试"},
		{"four digit index", "4idx&long", Fields{Short: "第1话", Long: "开始", Index: 12}, "0012 开始"},
		{"plain index", "idx", Fields{Index: 3}, "3"},
		{"short and long collapse", "short&long", Fields{Short: "第1话", Long: "第1话 开始"}, "第1话 开始"},
		{"short and long distinct", "short&long", Fields{Short: "第2话", Long: "相遇"}, "第2话 相遇"},
		{"empty long falls back to short", "idx&long", Fields{Short: "第4话", Index: 4}, "4 第4话"},
		{"empty long with short requested", "short&long", Fields{Short: "第4话"}, "第4话"},
		{"ordinal", "ord&short", Fields{Short: "x", Ord: 12}, "12 x"},
		{"fractional ordinal padded", "3ord&short", Fields{Short: "番外", Ord: 7.5}, "007.5 番外"},
		{"four digit ordinal", "4ord", Fields{Ord: 21}, "0021"},
		{"default token inside rule", "3idx&default", Fields{Index: 1}, "001 第1话 开始"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rule, err := ParseRule(c.rule)
			require.NoError(t, err)
			got, err := rule.Apply("第1话 开始", c.fields)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestRuleApplyCollapseKeepsSingleShort(t *testing.T) {
	rule, err := ParseRule("short&long")
	require.NoError(t, err)

	got, err := rule.Apply("", Fields{Short: "第1话", Long: "第1话 开始"})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(got, "第1话"))
}

func TestRuleApplyDefault(t *testing.T) {
	rule, err := ParseRule("default")
	require.NoError(t, err)
	got, err := rule.Apply("第9话", Fields{Short: "ignored", Index: 9})
	require.NoError(t, err)
	assert.Equal(t, "第9话", got)
}

func TestRuleApplyFailuresKeepCanonical(t *testing.T) {
	rule, err := ParseRule("3ord")
	require.NoError(t, err)

	got, err := rule.Apply("第9话", Fields{Ord: math.NaN()})
	assert.Error(t, err)
	assert.Equal(t, "第9话", got)

	got, err = rule.Apply("第9话", Fields{Ord: -1})
	assert.Error(t, err)
	assert.Equal(t, "第9话", got)

	rule, err = ParseRule("long")
	require.NoError(t, err)
	got, err = rule.Apply("第9话", Fields{})
	assert.ErrorIs(t, err, ErrEmptyTitle)
	assert.Equal(t, "第9话", got)

	got, err = Rule{Token("volume")}.Apply("第9话", Fields{})
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.Equal(t, "第9话", got)
}

func TestRuleApplySanitizes(t *testing.T) {
	rule, err := ParseRule("idx&short")
	require.NoError(t, err)
	got, err := rule.Apply("", Fields{Short: "a/b", Index: 1})
	require.NoError(t, err)
	assert.Equal(t, "1 a／b", got)
}
