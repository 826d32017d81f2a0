package video

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/video-system/vrw/pkg/array"
)

// Metadata describes a video as reported by a decoder on open
type Metadata struct {
	FrameCount int // -1 when unknown until the stream is scanned
	Height     int // 0 when unknown until the first frame is decoded
	Width      int // 0 when unknown until the first frame is decoded
	Channels   int // C of H×W×C frames, or 1 for H×W frames; 0 when unknown
	DType      array.DType
	DTypeKnown bool
	FPS        float64
	Codec      string
}

// Decoder is a sequential frame source. NextFrame returns frames in stream
// order starting at frame 0 and io.EOF after the last frame; Rewind
// restarts the stream at frame 0. Returned frames are owned by the caller
// and must not be reused by the decoder.
type Decoder interface {
	Open(ctx context.Context, path string, opts DecodeOptions) (Metadata, error)
	NextFrame() (*array.Array, error)
	Rewind() error
	Close() error
}

// Skipper is implemented by decoders that can advance past a frame
// without materializing it
type Skipper interface {
	SkipFrame() error
}

// DecodeOptions are hints passed to a decoder on open
type DecodeOptions struct {
	// PreferGray lets a decoder emit H×W frames when the source is
	// natively gray; readers that reduce to gray pass it.
	PreferGray bool
}

// Encoder is an append-only frame sink. Open receives the frame shape
// (H×W or H×W×C) and element type locked by the first written frame.
type Encoder interface {
	Open(ctx context.Context, path string, shape []int, dtype array.DType, cfg EncoderConfig) error
	AppendFrame(frame *array.Array) error
	Close() error
}

// EncoderConfig holds encoder configuration
type EncoderConfig struct {
	FPS         float64
	Codec       string            // Encoder codec name, backend dependent
	FourCC      string            // Container-level format hint, e.g. mp4v, avc1
	PixelFormat string            // Output pixel format, e.g. yuv420p
	Preset      string            // Speed preset for x264/x265
	CRF         int               // Constant rate factor for x264/x265
	Options     map[string]string // Extra backend options
}

// DecoderFactory creates a decoder from backend options
type DecoderFactory func(opts map[string]string) (Decoder, error)

// EncoderFactory creates an encoder from backend options
type EncoderFactory func(opts map[string]string) (Encoder, error)

var (
	registryMu sync.RWMutex
	decoders   = make(map[string]DecoderFactory)
	encoders   = make(map[string]EncoderFactory)
)

// RegisterDecoder registers a decoder backend
func RegisterDecoder(name string, factory DecoderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	decoders[name] = factory
}

// RegisterEncoder registers an encoder backend
func RegisterEncoder(name string, factory EncoderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	encoders[name] = factory
}

// NewDecoder returns a decoder backend by name
func NewDecoder(name string, opts map[string]string) (Decoder, error) {
	registryMu.RLock()
	factory, ok := decoders[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: decoder backend %q is not registered (available: %v)",
			ErrBackend, name, Backends().Decoders)
	}
	dec, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s decoder: %v", ErrBackend, name, err)
	}
	return dec, nil
}

// NewEncoder returns an encoder backend by name
func NewEncoder(name string, opts map[string]string) (Encoder, error) {
	registryMu.RLock()
	factory, ok := encoders[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: encoder backend %q is not registered (available: %v)",
			ErrBackend, name, Backends().Encoders)
	}
	enc, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s encoder: %v", ErrBackend, name, err)
	}
	return enc, nil
}

// BackendList lists registered backend names
type BackendList struct {
	Decoders []string `json:"decoders"`
	Encoders []string `json:"encoders"`
}

// Backends returns the registered backend names, sorted
func Backends() BackendList {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var list BackendList
	for name := range decoders {
		list.Decoders = append(list.Decoders, name)
	}
	for name := range encoders {
		list.Encoders = append(list.Encoders, name)
	}
	sort.Strings(list.Decoders)
	sort.Strings(list.Encoders)
	return list
}
