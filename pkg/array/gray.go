package array

import (
	"encoding/binary"
	"fmt"
)

// Fixed-point luma weights (Q14) for R, G, B.
const (
	lumaR     = 4899
	lumaG     = 9617
	lumaB     = 1868
	lumaShift = 14
	lumaRound = 1 << (lumaShift - 1)
)

// Gray reduces an H×W×3 RGB array to H×W using Y = 0.299R + 0.587G + 0.114B,
// rounded to nearest. H×W×1 arrays are squeezed; 2-D arrays are returned as is.
func (a *Array) Gray() (*Array, error) {
	switch {
	case len(a.shape) == 2:
		return a, nil
	case len(a.shape) == 3 && a.shape[2] == 1:
		return a.Squeeze(2), nil
	case len(a.shape) == 3 && a.shape[2] >= 3:
	default:
		return nil, fmt.Errorf("cannot convert shape %v to gray", a.shape)
	}

	h, w, c := a.shape[0], a.shape[1], a.shape[2]
	out := New(a.dtype, h, w)
	size := a.dtype.Size()
	for p := 0; p < h*w; p++ {
		base := p * c * size
		var r, g, b uint32
		if a.dtype == Uint16 {
			r = uint32(binary.LittleEndian.Uint16(a.data[base:]))
			g = uint32(binary.LittleEndian.Uint16(a.data[base+2:]))
			b = uint32(binary.LittleEndian.Uint16(a.data[base+4:]))
		} else {
			r, g, b = uint32(a.data[base]), uint32(a.data[base+1]), uint32(a.data[base+2])
		}
		y := (r*lumaR + g*lumaG + b*lumaB + lumaRound) >> lumaShift
		if a.dtype == Uint16 {
			binary.LittleEndian.PutUint16(out.data[p*2:], uint16(y))
		} else {
			out.data[p] = byte(y)
		}
	}
	return out, nil
}
