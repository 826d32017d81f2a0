package video

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/video-system/vrw/pkg/array"
)

// MemoryBackend keeps clips in process memory, keyed by path. It is
// lossless and serves as a reference backend and test double.
//
// Decoder options:
//
//	lazy_metadata: "true" reports no frame shape or dtype on open
//	frame_count:   overrides the declared frame count; -1 declares none
const MemoryBackend = "memory"

type memoryClip struct {
	fps    float64
	frames []*array.Array
}

var memoryStore = struct {
	sync.RWMutex
	clips map[string]*memoryClip
}{clips: make(map[string]*memoryClip)}

func init() {
	RegisterDecoder(MemoryBackend, func(opts map[string]string) (Decoder, error) {
		d := &memoryDecoder{}
		if v, ok := opts["lazy_metadata"]; ok {
			lazy, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("lazy_metadata: %w", err)
			}
			d.lazy = lazy
		}
		if v, ok := opts["frame_count"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("frame_count: %w", err)
			}
			d.declared = &n
		}
		return d, nil
	})
	RegisterEncoder(MemoryBackend, func(map[string]string) (Encoder, error) {
		return &memoryEncoder{}, nil
	})
}

// PutMemoryClip stores frames under path for the memory decoder
func PutMemoryClip(path string, fps float64, frames []*array.Array) {
	clip := &memoryClip{fps: fps, frames: make([]*array.Array, len(frames))}
	for i, f := range frames {
		clip.frames[i] = f.Clone()
	}
	memoryStore.Lock()
	memoryStore.clips[path] = clip
	memoryStore.Unlock()
}

// DeleteMemoryClip removes a stored clip
func DeleteMemoryClip(path string) {
	memoryStore.Lock()
	delete(memoryStore.clips, path)
	memoryStore.Unlock()
}

type memoryDecoder struct {
	clip     *memoryClip
	pos      int
	lazy     bool
	declared *int
}

func (d *memoryDecoder) Open(_ context.Context, path string, _ DecodeOptions) (Metadata, error) {
	memoryStore.RLock()
	clip, ok := memoryStore.clips[path]
	memoryStore.RUnlock()
	if !ok {
		return Metadata{}, fmt.Errorf("no memory clip stored at %q", path)
	}
	d.clip = clip

	meta := Metadata{FrameCount: len(clip.frames), FPS: clip.fps, Codec: "raw"}
	if d.declared != nil {
		meta.FrameCount = *d.declared
	}
	if d.lazy {
		return meta, nil
	}
	if len(clip.frames) == 0 {
		return meta, nil
	}
	// H×W×1 frames cannot be described by Metadata; the reader probes them
	switch shape := clip.frames[0].Shape(); {
	case len(shape) == 2:
		meta.Height, meta.Width, meta.Channels = shape[0], shape[1], 1
	case len(shape) == 3 && shape[2] > 1:
		meta.Height, meta.Width, meta.Channels = shape[0], shape[1], shape[2]
	}
	meta.DType, meta.DTypeKnown = clip.frames[0].DType(), true
	return meta, nil
}

func (d *memoryDecoder) NextFrame() (*array.Array, error) {
	if d.pos >= len(d.clip.frames) {
		return nil, io.EOF
	}
	f := d.clip.frames[d.pos].Clone()
	d.pos++
	return f, nil
}

func (d *memoryDecoder) SkipFrame() error {
	if d.pos >= len(d.clip.frames) {
		return io.EOF
	}
	d.pos++
	return nil
}

func (d *memoryDecoder) Rewind() error {
	d.pos = 0
	return nil
}

func (d *memoryDecoder) Close() error {
	d.clip = nil
	return nil
}

type memoryEncoder struct {
	path   string
	clip   *memoryClip
	closed bool
}

func (e *memoryEncoder) Open(_ context.Context, path string, _ []int, _ array.DType, cfg EncoderConfig) error {
	e.path = path
	e.clip = &memoryClip{fps: cfg.FPS}
	return nil
}

func (e *memoryEncoder) AppendFrame(frame *array.Array) error {
	if e.clip == nil || e.closed {
		return fmt.Errorf("memory encoder is not open")
	}
	e.clip.frames = append(e.clip.frames, frame.Clone())
	return nil
}

// Close commits the clip so that readers can open it
func (e *memoryEncoder) Close() error {
	if e.closed || e.clip == nil {
		e.closed = true
		return nil
	}
	e.closed = true
	memoryStore.Lock()
	memoryStore.clips[e.path] = e.clip
	memoryStore.Unlock()
	return nil
}
