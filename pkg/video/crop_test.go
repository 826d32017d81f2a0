package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/video-system/vrw/pkg/array"
	"github.com/video-system/vrw/pkg/index"
)

func spatialPlan(t *testing.T, shape []int, tokens ...index.Token) []index.Selector {
	t.Helper()
	plan, err := index.Parse(tokens, shape)
	require.NoError(t, err)
	return plan.Axes
}

func TestCropIdentityShares(t *testing.T) {
	f := array.New(array.Uint8, 2, 3, 3)
	got, err := crop(f, spatialPlan(t, []int{2, 3, 3}), false)
	require.NoError(t, err)
	assert.Same(t, f, got)
}

func TestCropCollapsesSingles(t *testing.T) {
	f := array.New(array.Uint8, 4, 5, 3)
	f.Set(7, 3, 1, 2)

	got, err := crop(f, spatialPlan(t, []int{4, 5, 3}, index.Int(-1), index.Full(), index.Int(2)), false)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, got.Shape())
	assert.Equal(t, uint16(7), got.At(1))
}

func TestCropGrayBeforeAxes(t *testing.T) {
	f := array.New(array.Uint8, 2, 2, 3)
	f.Set(255, 1, 0, 1)

	got, err := crop(f, spatialPlan(t, []int{2, 2}, index.Int(1)), true)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, got.Shape())
	assert.Equal(t, uint16(150), got.At(0))
	assert.Equal(t, uint16(0), got.At(1))
}

func TestCropRejectsUnexpectedFrame(t *testing.T) {
	axes := spatialPlan(t, []int{4, 5, 3})

	_, err := crop(array.New(array.Uint8, 4, 6, 3), axes, false)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = crop(array.New(array.Uint8, 4, 5), axes, false)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestSelectFrames(t *testing.T) {
	plan := func(tok index.Token) index.Selector {
		p, err := index.Parse([]index.Token{tok}, []int{10})
		require.NoError(t, err)
		return p.Axes[0]
	}

	tests := []struct {
		name string
		sel  index.Selector
		want selection
	}{
		{"single", plan(index.Int(-2)), selection{frames: []int{8}, collapse: true}},
		{"all", plan(index.Full()), selection{frames: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}}},
		{"forward range", plan(index.Stepped(1, 8, 3)), selection{frames: []int{1, 4, 7}}},
		{"reverse range", plan(index.Stepped(7, 0, -3)), selection{frames: []int{1, 4, 7}, reverse: true}},
		{"reverse all", plan(index.Step(-1)), selection{frames: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, reverse: true}},
		{"empty reverse", plan(index.Stepped(2, 5, -1)), selection{frames: []int{}}},
		{"fancy", plan(index.List{5, 1, 5}), selection{frames: []int{5, 1, 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectFrames(tt.sel))
		})
	}
}

func TestCropSizeMismatchReportsCroppedShape(t *testing.T) {
	tests := []struct {
		name  string
		frame *array.Array
		axes  []index.Selector
		gray  bool
		shape string
	}{
		{
			name:  "after gray reduction",
			frame: array.New(array.Uint8, 4, 6, 3),
			axes:  spatialPlan(t, []int{4, 5}),
			gray:  true,
			shape: "[4 6]",
		},
		{
			name:  "after a collapsed row",
			frame: array.New(array.Uint8, 4, 6),
			axes:  spatialPlan(t, []int{4, 5}, index.Int(1)),
			shape: "[6]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := crop(tt.frame, tt.axes, tt.gray)
			require.ErrorIs(t, err, ErrDecode)
			assert.Contains(t, err.Error(), "has shape "+tt.shape+",")
		})
	}
}
