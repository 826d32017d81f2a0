package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpr(t *testing.T) {
	tests := []struct {
		expr string
		want []Token
	}{
		{"", nil},
		{"  ", nil},
		{"3", []Token{Int(3)}},
		{"-1", []Token{Int(-1)}},
		{":", []Token{Full()}},
		{"::", []Token{Full()}},
		{"2:", []Token{From(2)}},
		{":5", []Token{To(5)}},
		{"::-2", []Token{Step(-2)}},
		{"1:9:4", []Token{Stepped(1, 9, 4)}},
		{"..., 0", []Token{Ellipsis{}, Int(0)}},
		{"[1, 3, 3, 7]", []Token{List{1, 3, 3, 7}}},
		{"[]", []Token{List{}}},
		{"[7,3], 1:3, ..., 2", []Token{List{7, 3}, Span(1, 3), Ellipsis{}, Int(2)}},
		{"None, 4", []Token{NewAxis{}, Int(4)}},
		{"::2, newaxis", []Token{Step(2), NewAxis{}}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseExpr(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseExprErrors(t *testing.T) {
	for _, expr := range []string{
		"a",
		"1,,2",
		"1:2:3:4",
		"[1, x]",
		"[1, 2",
		"1]",
		"[[1]]",
		"1:b",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseExpr(expr)
			assert.ErrorIs(t, err, ErrIndex)
		})
	}
}

func TestParseExprMatchesTokens(t *testing.T) {
	tokens, err := ParseExpr("::-2, 1:3, ..., 0")
	require.NoError(t, err)

	fromExpr, err := Parse(tokens, video)
	require.NoError(t, err)
	fromTokens, err := Parse([]Token{Step(-2), Span(1, 3), Ellipsis{}, Int(0)}, video)
	require.NoError(t, err)

	assert.Equal(t, fromTokens, fromExpr)
	assert.Equal(t, []int{5, 2, 6}, fromExpr.Shape())
}
