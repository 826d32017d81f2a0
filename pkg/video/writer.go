package video

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/video-system/vrw/pkg/array"
)

// WriterConfig holds writer configuration
type WriterConfig struct {
	Backend     string  // Encoder backend name (default ffmpeg)
	FPS         float64 // Output frame rate
	Codec       string  // Encoder codec name, backend dependent
	FourCC      string  // Container-level format hint
	PixelFormat string  // Output pixel format
	Preset      string
	CRF         int

	EncoderOptions map[string]string // Passed to the codec
	Options        map[string]string // Passed to the backend factory
}

// Writer appends frames to a video file. The frame shape and dtype are
// locked by the first frame. A Writer owns its encoder and is not safe for
// concurrent use.
type Writer struct {
	id      string
	path    string
	backend string
	cfg     WriterConfig
	ctx     context.Context

	enc     Encoder
	started bool

	shape []int
	dtype array.DType

	written int
	closed  bool
}

// OpenWriter creates a writer for path. The encoder itself is opened when
// the first frame arrives.
func OpenWriter(ctx context.Context, path string, cfg WriterConfig) (*Writer, error) {
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("%w: fps %v must be positive", ErrConfig, cfg.FPS)
	}
	backend := cfg.Backend
	if backend == "" {
		backend = DefaultBackend
	}

	enc, err := NewEncoder(backend, cfg.Options)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		id:      uuid.NewString(),
		path:    path,
		backend: backend,
		cfg:     cfg,
		ctx:     ctx,
		enc:     enc,
	}

	logrus.WithFields(logrus.Fields{
		"function":   "OpenWriter",
		"session_id": w.id,
		"path":       path,
		"backend":    backend,
		"fps":        cfg.FPS,
		"codec":      cfg.Codec,
	}).Info("Video writer opened")

	return w, nil
}

// WithWriter opens a writer, runs fn and always closes the writer
func WithWriter(ctx context.Context, path string, cfg WriterConfig, fn func(*Writer) error) error {
	w, err := OpenWriter(ctx, path, cfg)
	if err != nil {
		return err
	}
	err = fn(w)
	return errors.Join(err, w.Close())
}

// Write appends one frame. The first frame must be H×W (gray) or H×W×C
// with C of 1, 3 or 4; every later frame must match its shape and dtype.
func (w *Writer) Write(frame *array.Array) error {
	if w.closed {
		return fmt.Errorf("%w: writer for %s", ErrState, w.path)
	}
	if frame == nil {
		return fmt.Errorf("%w: nil frame", ErrShape)
	}

	if !w.started {
		if err := w.start(frame); err != nil {
			return err
		}
	} else {
		if !array.SameShape(frame.Shape(), w.shape) {
			return fmt.Errorf("%w: frame %d has shape %v, writer expects %v",
				ErrShape, w.written, frame.Shape(), w.shape)
		}
		if frame.DType() != w.dtype {
			return fmt.Errorf("%w: frame %d has dtype %s, writer expects %s",
				ErrType, w.written, frame.DType(), w.dtype)
		}
	}

	if err := w.enc.AppendFrame(frame); err != nil {
		return fmt.Errorf("write frame %d to %s: %w", w.written, w.path, err)
	}
	w.written++
	framesWritten.WithLabelValues(w.backend).Inc()
	return nil
}

// start validates the first frame, locks its shape and opens the encoder
func (w *Writer) start(frame *array.Array) error {
	shape := frame.Shape()
	switch {
	case len(shape) == 2:
	case len(shape) == 3 && (shape[2] == 1 || shape[2] == 3 || shape[2] == 4):
	default:
		return fmt.Errorf("%w: frame shape %v must be (H, W) or (H, W, C) with C in {1, 3, 4}", ErrShape, shape)
	}
	if shape[0] == 0 || shape[1] == 0 {
		return fmt.Errorf("%w: empty frame shape %v", ErrShape, shape)
	}

	cfg := EncoderConfig{
		FPS:         w.cfg.FPS,
		Codec:       w.cfg.Codec,
		FourCC:      w.cfg.FourCC,
		PixelFormat: w.cfg.PixelFormat,
		Preset:      w.cfg.Preset,
		CRF:         w.cfg.CRF,
		Options:     w.cfg.EncoderOptions,
	}
	if err := w.enc.Open(w.ctx, w.path, shape, frame.DType(), cfg); err != nil {
		return fmt.Errorf("%w: open encoder for %s: %v", ErrBackend, w.path, err)
	}

	w.started = true
	w.shape = shape
	w.dtype = frame.DType()

	logrus.WithFields(logrus.Fields{
		"function":   "Writer.start",
		"session_id": w.id,
		"shape":      shape,
		"dtype":      w.dtype.String(),
	}).Debug("Writer frame shape locked")
	return nil
}

// Len returns the number of frames written
func (w *Writer) Len() int { return w.written }

// Shape returns the locked frame shape, or nil before the first frame
func (w *Writer) Shape() []int { return append([]int(nil), w.shape...) }

// DType returns the locked element type; valid after the first frame
func (w *Writer) DType() array.DType { return w.dtype }

// ID returns the writer's session id
func (w *Writer) ID() string { return w.id }

// Close flushes and finalizes the output. It is safe to call more than
// once; only the first call reaches the encoder.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.enc.Close()

	logrus.WithFields(logrus.Fields{
		"function":   "Writer.Close",
		"session_id": w.id,
		"path":       w.path,
		"frames":     w.written,
	}).Info("Video writer closed")

	if err != nil {
		return fmt.Errorf("%w: finalize %s: %v", ErrBackend, w.path, err)
	}
	return nil
}
