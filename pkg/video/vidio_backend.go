package video

import (
	"context"
	"fmt"
	"io"

	vidio "github.com/AlexEidt/Vidio"
	"github.com/video-system/vrw/pkg/array"
)

// VidioBackend decodes and encodes 8-bit RGB video through the Vidio
// library, which drives ffmpeg itself. Alpha is dropped on read; gray and
// RGB frames are expanded to RGBA on write.
const VidioBackend = "vidio"

func init() {
	RegisterDecoder(VidioBackend, func(map[string]string) (Decoder, error) {
		return &vidioDecoder{}, nil
	})
	RegisterEncoder(VidioBackend, func(map[string]string) (Encoder, error) {
		return &vidioEncoder{}, nil
	})
}

type vidioDecoder struct {
	path          string
	video         *vidio.Video
	width, height int
}

func (d *vidioDecoder) Open(_ context.Context, path string, _ DecodeOptions) (Metadata, error) {
	v, err := vidio.NewVideo(path)
	if err != nil {
		return Metadata{}, err
	}
	d.path = path
	d.video = v
	d.width, d.height = v.Width(), v.Height()

	frames := v.Frames()
	if frames <= 0 {
		frames = -1
	}
	return Metadata{
		FrameCount: frames,
		Height:     d.height,
		Width:      d.width,
		Channels:   3,
		DType:      array.Uint8,
		DTypeKnown: true,
		FPS:        v.FPS(),
		Codec:      v.Codec(),
	}, nil
}

func (d *vidioDecoder) NextFrame() (*array.Array, error) {
	if d.video == nil {
		v, err := vidio.NewVideo(d.path)
		if err != nil {
			return nil, err
		}
		d.video = v
	}
	if !d.video.Read() {
		return nil, io.EOF
	}

	buf := d.video.FrameBuffer()
	pixels := d.width * d.height
	if pixels == 0 || len(buf) < 3*pixels {
		return nil, fmt.Errorf("vidio frame buffer has %d bytes for %dx%d pixels", len(buf), d.width, d.height)
	}
	depth := len(buf) / pixels

	out := array.New(array.Uint8, d.height, d.width, 3)
	dst := out.Bytes()
	for p := 0; p < pixels; p++ {
		copy(dst[3*p:3*p+3], buf[depth*p:depth*p+3])
	}
	return out, nil
}

// Rewind closes the video; the next read reopens it at frame 0
func (d *vidioDecoder) Rewind() error {
	if d.video != nil {
		d.video.Close()
		d.video = nil
	}
	return nil
}

func (d *vidioDecoder) Close() error {
	return d.Rewind()
}

type vidioEncoder struct {
	writer *vidio.VideoWriter
	rgba   []byte
}

func (e *vidioEncoder) Open(_ context.Context, path string, shape []int, dtype array.DType, cfg EncoderConfig) error {
	if dtype != array.Uint8 {
		return fmt.Errorf("vidio encodes uint8 frames only, got %s", dtype)
	}
	w, err := vidio.NewVideoWriter(path, shape[1], shape[0], &vidio.Options{
		FPS:   cfg.FPS,
		Codec: resolveCodec(cfg),
	})
	if err != nil {
		return err
	}
	e.writer = w
	e.rgba = make([]byte, 4*shape[0]*shape[1])
	return nil
}

func (e *vidioEncoder) AppendFrame(frame *array.Array) error {
	if e.writer == nil {
		return fmt.Errorf("vidio encoder is not open")
	}
	src := frame.Bytes()
	channels := len(src) / (len(e.rgba) / 4)
	for p := 0; p < len(e.rgba)/4; p++ {
		px := e.rgba[4*p : 4*p+4]
		switch channels {
		case 1:
			px[0], px[1], px[2], px[3] = src[p], src[p], src[p], 0xff
		case 3:
			px[0], px[1], px[2], px[3] = src[3*p], src[3*p+1], src[3*p+2], 0xff
		default:
			copy(px, src[4*p:4*p+4])
		}
	}
	return e.writer.Write(e.rgba)
}

func (e *vidioEncoder) Close() error {
	if e.writer != nil {
		e.writer.Close()
		e.writer = nil
	}
	return nil
}
