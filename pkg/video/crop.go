package video

import (
	"fmt"

	"github.com/video-system/vrw/pkg/array"
	"github.com/video-system/vrw/pkg/index"
)

// crop applies the row, column and channel selectors to one decoded frame.
// Gray reduction happens first so that axes index the reduced frame. Each
// selector is an independent take along its own axis. The result may share
// memory with frame when every selector is the identity.
func crop(frame *array.Array, axes []index.Selector, gray bool) (*array.Array, error) {
	f := frame
	if gray {
		g, err := f.Gray()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		f = g
	}
	if f.NDim() != len(axes) {
		return nil, fmt.Errorf("%w: decoded frame has shape %v, expected %d axes", ErrDecode, f.Shape(), len(axes))
	}

	axis := 0
	for _, sel := range axes {
		if size := f.Shape()[axis]; size != sel.Size {
			return nil, fmt.Errorf("%w: decoded frame has shape %v, axis %d should have size %d",
				ErrDecode, f.Shape(), axis, sel.Size)
		}
		switch {
		case sel.Identity():
			axis++
		case sel.Collapses():
			f = f.Take(axis, []int{sel.Index}).Squeeze(axis)
		default:
			f = f.Take(axis, sel.Positions())
			axis++
		}
	}
	return f, nil
}
