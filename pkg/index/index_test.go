package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var video = []int{10, 4, 6, 3}

func TestParseShapes(t *testing.T) {
	tests := []struct {
		name   string
		tokens []Token
		shape  []int
	}{
		{"empty", nil, []int{10, 4, 6, 3}},
		{"single frame", []Token{Int(3)}, []int{4, 6, 3}},
		{"negative frame", []Token{Int(-1)}, []int{4, 6, 3}},
		{"one frame slice", []Token{Span(3, 4)}, []int{1, 4, 6, 3}},
		{"stepped", []Token{Step(3)}, []int{4, 4, 6, 3}},
		{"reverse by two", []Token{Step(-2)}, []int{5, 4, 6, 3}},
		{"clamped", []Token{Span(-100, 100)}, []int{10, 4, 6, 3}},
		{"empty range", []Token{Span(5, 2)}, []int{0, 4, 6, 3}},
		{"fancy dupes", []Token{List{1, 3, 3, 7}}, []int{4, 4, 6, 3}},
		{"empty list", []Token{List{}}, []int{0, 4, 6, 3}},
		{"ellipsis channel", []Token{Ellipsis{}, Int(0)}, []int{10, 4, 6}},
		{"ellipsis middle", []Token{Int(0), Ellipsis{}, Int(2)}, []int{4, 6}},
		{"ellipsis alone", []Token{Ellipsis{}}, []int{10, 4, 6, 3}},
		{"ellipsis full", []Token{Int(1), Int(1), Int(1), Ellipsis{}, Int(1)}, []int{}},
		{"crop", []Token{Full(), Span(1, 3), Stepped(5, 0, -2)}, []int{10, 2, 3, 3}},
		{"fancy spatial", []Token{Int(2), List{0, 0}, List{5, 1, 2}}, []int{2, 3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Parse(tt.tokens, video)
			require.NoError(t, err)
			assert.Len(t, plan.Axes, len(video))
			assert.Equal(t, tt.shape, plan.Shape())
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		tokens []Token
	}{
		{"two ellipses", []Token{Ellipsis{}, Int(0), Ellipsis{}}},
		{"too many", []Token{Int(0), Int(0), Int(0), Int(0), Int(0)}},
		{"frame out of range", []Token{Int(10)}},
		{"negative out of range", []Token{Int(-11)}},
		{"row out of range", []Token{Full(), Int(4)}},
		{"list out of range", []Token{List{0, 10}}},
		{"zero step", []Token{Step(0)}},
		{"frame and spatial fancy", []Token{List{0, 1}, Full(), List{0}}},
		{"nil token", []Token{nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.tokens, video)
			assert.ErrorIs(t, err, ErrIndex)
		})
	}
}

func TestSliceNormalization(t *testing.T) {
	tests := []struct {
		slice Slice
		want  []int
	}{
		{Span(2, 5), []int{2, 3, 4}},
		{Step(-1), []int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}},
		{Step(-2), []int{9, 7, 5, 3, 1}},
		{Stepped(-1, -4, -1), []int{9, 8, 7}},
		{Stepped(8, 1, -3), []int{8, 5, 2}},
		{From(-3), []int{7, 8, 9}},
		{To(-8), []int{0, 1}},
		{Stepped(100, -100, -4), []int{9, 5, 1}},
		{Stepped(1, 9, 4), []int{1, 5}},
		{Span(9, 1), []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.slice.String(), func(t *testing.T) {
			plan, err := Parse([]Token{tt.slice}, video)
			require.NoError(t, err)
			sel := plan.Axes[0]
			assert.Equal(t, tt.want, sel.Positions())
			assert.Equal(t, len(tt.want), sel.Len())
		})
	}
}

func TestEllipsisEquivalence(t *testing.T) {
	a, err := Parse([]Token{Ellipsis{}, Int(0)}, video)
	require.NoError(t, err)
	b, err := Parse([]Token{Full(), Full(), Full(), Int(0)}, video)
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestFancyPreservesOrder(t *testing.T) {
	plan, err := Parse([]Token{List{7, -1, 3, 3}}, video)
	require.NoError(t, err)
	assert.Equal(t, KindFancy, plan.Axes[0].Kind)
	assert.Equal(t, []int{7, 9, 3, 3}, plan.Axes[0].Positions())
	assert.False(t, plan.Axes[0].Collapses())
}

func TestSelectorIdentity(t *testing.T) {
	plan, err := Parse([]Token{Full(), Span(0, 4), Span(0, 5), Step(-1)}, video)
	require.NoError(t, err)
	assert.True(t, plan.Axes[0].Identity())
	assert.True(t, plan.Axes[1].Identity())
	assert.False(t, plan.Axes[2].Identity())
	assert.False(t, plan.Axes[3].Identity())
}

func TestParseNewAxis(t *testing.T) {
	shape := []int{10, 4, 6, 3}

	tests := []struct {
		name    string
		tokens  []Token
		newAxes []int
		want    []int
	}{
		{"alone", []Token{NewAxis{}}, []int{0}, []int{1, 10, 4, 6, 3}},
		{"before collapsed frame", []Token{NewAxis{}, Int(2)}, []int{0}, []int{1, 4, 6, 3}},
		{"after collapsed frame", []Token{Int(2), NewAxis{}}, []int{0}, []int{1, 4, 6, 3}},
		{"after frame range", []Token{Span(0, 3), NewAxis{}, Ellipsis{}, Int(0)}, []int{1}, []int{3, 1, 4, 6}},
		{"trailing", []Token{Ellipsis{}, NewAxis{}}, []int{4}, []int{10, 4, 6, 3, 1}},
		{"repeated", []Token{NewAxis{}, NewAxis{}, Int(0), Int(0)}, []int{0, 1}, []int{1, 1, 6, 3}},
		{"beside fancy", []Token{List{1, 1}, NewAxis{}, Int(0), Span(0, 2)}, []int{1}, []int{2, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Parse(tt.tokens, shape)
			require.NoError(t, err)
			assert.Len(t, plan.Axes, len(shape), "new axes consume no input axis")
			assert.Equal(t, tt.newAxes, plan.NewAxes)
			assert.Equal(t, tt.want, plan.Shape())
		})
	}

	// Not counted against the number of indexable axes
	_, err := Parse([]Token{NewAxis{}, Int(0), Int(0), Int(0), Int(0), NewAxis{}}, shape)
	assert.NoError(t, err)
}
