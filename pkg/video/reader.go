package video

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/video-system/vrw/pkg/array"
	"github.com/video-system/vrw/pkg/index"
)

// DefaultBackend is used when a config leaves Backend empty
const DefaultBackend = "ffmpeg"

// ReaderConfig holds reader configuration
type ReaderConfig struct {
	Backend string            // Decoder backend name (default ffmpeg)
	ToGray  bool              // Reduce frames to luma; shape becomes N×H×W
	Order   DecodeOrder       // Fetch strategy for multi-frame requests
	Options map[string]string // Backend options
}

// Reader exposes a video as a lazily decoded N×H×W×C (or N×H×W) array.
// A Reader owns its decoder and is not safe for concurrent use.
type Reader struct {
	path    string
	backend string
	cfg     ReaderConfig

	dec  Decoder
	cur  *cursor
	meta Metadata

	frameCount int   // -1 until known
	frameShape []int // decoded (and gray-reduced) frame shape, nil until known
	dtype      array.DType

	closed bool
}

// OpenReader opens path with the configured decoder backend. Frame
// dimensions missing from the container metadata are discovered on first
// use by decoding frame 0, which is then served from the cache.
func OpenReader(ctx context.Context, path string, cfg ReaderConfig) (*Reader, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = DefaultBackend
	}

	dec, err := NewDecoder(backend, cfg.Options)
	if err != nil {
		return nil, err
	}
	meta, err := dec.Open(ctx, path, DecodeOptions{PreferGray: cfg.ToGray})
	if err != nil {
		dec.Close()
		return nil, fmt.Errorf("%w: open %s: %v", ErrBackend, path, err)
	}

	r := &Reader{
		path:       path,
		backend:    backend,
		cfg:        cfg,
		dec:        dec,
		cur:        newCursor(dec, backend),
		meta:       meta,
		frameCount: meta.FrameCount,
	}
	if meta.Height > 0 && meta.Width > 0 && meta.Channels > 0 && meta.DTypeKnown {
		shape := []int{meta.Height, meta.Width}
		if meta.Channels > 1 {
			shape = append(shape, meta.Channels)
		}
		r.frameShape = r.reduce(shape)
		r.dtype = meta.DType
	}

	logrus.WithFields(logrus.Fields{
		"function":     "OpenReader",
		"path":         path,
		"backend":      backend,
		"frames":       meta.FrameCount,
		"width":        meta.Width,
		"height":       meta.Height,
		"fps":          meta.FPS,
		"to_gray":      cfg.ToGray,
		"decode_order": cfg.Order.String(),
	}).Info("Video reader opened")

	return r, nil
}

// WithReader opens a reader, runs fn and always closes the reader
func WithReader(ctx context.Context, path string, cfg ReaderConfig, fn func(*Reader) error) error {
	r, err := OpenReader(ctx, path, cfg)
	if err != nil {
		return err
	}
	err = fn(r)
	return errors.Join(err, r.Close())
}

// reduce maps a decoded H×W×C shape to the logical frame shape
func (r *Reader) reduce(shape []int) []int {
	if r.cfg.ToGray || len(shape) == 2 {
		return shape[:2]
	}
	return shape
}

func (r *Reader) checkOpen() error {
	if r.closed {
		return fmt.Errorf("%w: reader for %s", ErrState, r.path)
	}
	return nil
}

// probe decodes frame 0 to learn the frame shape and dtype
func (r *Reader) probe() error {
	if r.frameShape != nil {
		return nil
	}
	f, err := r.cur.frame(0)
	if err != nil {
		return fmt.Errorf("probe first frame of %s: %w", r.path, err)
	}
	r.frameShape = r.reduce(f.Shape())
	r.dtype = f.DType()

	logrus.WithFields(logrus.Fields{
		"function": "Reader.probe",
		"path":     r.path,
		"shape":    f.Shape(),
		"dtype":    f.DType().String(),
	}).Debug("Frame shape discovered from first frame")
	return nil
}

// Len returns the number of frames, scanning the stream once if the
// container did not declare it
func (r *Reader) Len() (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	if r.frameCount >= 0 {
		return r.frameCount, nil
	}
	n, err := r.cur.count()
	if err != nil {
		return 0, err
	}
	r.frameCount = n

	logrus.WithFields(logrus.Fields{
		"function": "Reader.Len",
		"path":     r.path,
		"frames":   n,
	}).Debug("Frame count discovered by scanning")
	return n, nil
}

// Shape returns (N, H, W, C), or (N, H, W) when reducing to gray
func (r *Reader) Shape() ([]int, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if err := r.probe(); err != nil {
		return nil, err
	}
	n, err := r.Len()
	if err != nil {
		return nil, err
	}
	return append([]int{n}, r.frameShape...), nil
}

// DType returns the element type of decoded frames
func (r *Reader) DType() (array.DType, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	if err := r.probe(); err != nil {
		return 0, err
	}
	return r.dtype, nil
}

// FPS returns the frame rate declared by the container
func (r *Reader) FPS() float64 { return r.meta.FPS }

// Metadata returns the metadata reported by the decoder on open
func (r *Reader) Metadata() Metadata { return r.meta }

// Path returns the path the reader was opened with
func (r *Reader) Path() string { return r.path }

// Stats returns decoder activity counters for this reader
func (r *Reader) Stats() Stats { return r.cur.stats }

// Frame returns frame i; negative i counts from the end
func (r *Reader) Frame(i int) (*array.Array, error) {
	return r.Get(index.Int(i))
}

// GetExpr indexes the video with a textual expression such as "::2, ..., 0"
func (r *Reader) GetExpr(expr string) (*array.Array, error) {
	tokens, err := index.ParseExpr(expr)
	if err != nil {
		return nil, err
	}
	return r.Get(tokens...)
}

// Get indexes the video with NumPy semantics. A single integer on the frame
// axis collapses it; every other frame selection keeps it. NewAxis tokens
// add length-1 axes without changing what is decoded. On error no
// array is returned.
func (r *Reader) Get(tokens ...index.Token) (*array.Array, error) {
	shape, err := r.Shape()
	if err != nil {
		return nil, err
	}
	plan, err := index.Parse(tokens, shape)
	if err != nil {
		return nil, err
	}

	sel := selectFrames(plan.Axes[0])
	spatial := plan.Axes[1:]

	logrus.WithFields(logrus.Fields{
		"function": "Reader.Get",
		"path":     r.path,
		"frames":   len(sel.frames),
		"collapse": sel.collapse,
		"reverse":  sel.reverse,
	}).Debug("Reading frames")

	frames, err := r.cur.collect(sel.frames, r.cfg.Order, func(f *array.Array) (*array.Array, error) {
		return crop(f, spatial, r.cfg.ToGray)
	})
	if err != nil {
		return nil, err
	}

	var out *array.Array
	if sel.collapse {
		// May alias the cached frame
		out = frames[0].Clone()
	} else {
		if sel.reverse {
			for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
				frames[i], frames[j] = frames[j], frames[i]
			}
		}
		out, err = array.Stack(r.dtype, index.Plan{Axes: spatial}.Shape(), frames)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	for _, axis := range plan.NewAxes {
		out = out.ExpandDims(axis)
	}
	return out, nil
}

// Each calls fn for every frame in order. The frame passed to fn is a copy.
func (r *Reader) Each(fn func(i int, frame *array.Array) error) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if err := r.probe(); err != nil {
		return err
	}
	n, err := r.Len()
	if err != nil {
		return err
	}

	all := make([]index.Selector, len(r.frameShape))
	for axis, size := range r.frameShape {
		all[axis] = index.All(size)
	}
	for i := 0; i < n; i++ {
		raw, err := r.cur.frame(i)
		if err != nil {
			return err
		}
		f, err := crop(raw, all, r.cfg.ToGray)
		if err != nil {
			return err
		}
		if f == raw {
			f = f.Clone()
		}
		if err := fn(i, f); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the decoder. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.cur.cached = nil

	err := r.dec.Close()

	logrus.WithFields(logrus.Fields{
		"function": "Reader.Close",
		"path":     r.path,
		"decoded":  r.cur.stats.Decoded,
		"skipped":  r.cur.stats.Skipped,
		"rewinds":  r.cur.stats.Rewinds,
	}).Info("Video reader closed")

	if err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrBackend, r.path, err)
	}
	return nil
}
