package api

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/video-system/vrw/pkg/array"
)

// toImage converts an H×W or H×W×C frame to an image. Uint16 frames keep
// their full precision.
func toImage(a *array.Array) (image.Image, error) {
	shape := a.Shape()
	if len(shape) == 3 && shape[2] == 1 {
		a = a.Squeeze(2)
		shape = shape[:2]
	}

	var channels int
	switch {
	case len(shape) == 2:
		channels = 1
	case len(shape) == 3 && (shape[2] == 3 || shape[2] == 4):
		channels = shape[2]
	default:
		return nil, fmt.Errorf("cannot render array of shape %v as an image", shape)
	}

	h, w := shape[0], shape[1]
	rect := image.Rect(0, 0, w, h)
	wide := a.DType() == array.Uint16

	switch {
	case channels == 1 && !wide:
		img := image.NewGray(rect)
		copy(img.Pix, a.Bytes())
		return img, nil

	case channels == 1:
		img := image.NewGray16(rect)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := a.At(y, x)
				o := img.PixOffset(x, y)
				img.Pix[o], img.Pix[o+1] = byte(v>>8), byte(v)
			}
		}
		return img, nil

	case !wide:
		img := image.NewNRGBA(rect)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				o := img.PixOffset(x, y)
				for ch := 0; ch < 3; ch++ {
					img.Pix[o+ch] = byte(a.At(y, x, ch))
				}
				img.Pix[o+3] = 0xff
				if channels == 4 {
					img.Pix[o+3] = byte(a.At(y, x, 3))
				}
			}
		}
		return img, nil

	default:
		img := image.NewNRGBA64(rect)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				o := img.PixOffset(x, y)
				for ch := 0; ch < 4; ch++ {
					v := uint16(0xffff)
					if ch < channels {
						v = a.At(y, x, ch)
					}
					img.Pix[o+2*ch], img.Pix[o+2*ch+1] = byte(v>>8), byte(v)
				}
			}
		}
		return img, nil
	}
}

func encodePNG(a *array.Array) ([]byte, error) {
	img, err := toImage(a)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
