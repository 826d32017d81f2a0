package video

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/video-system/vrw/internal/ffmpeg"
	"github.com/video-system/vrw/pkg/array"
)

// FFmpegBackend decodes and encodes through ffmpeg subprocesses.
//
// Options:
//
//	ffmpeg_path:  ffmpeg binary (default: looked up in PATH)
//	ffprobe_path: ffprobe binary (default: looked up in PATH)
const FFmpegBackend = "ffmpeg"

const (
	defaultCodec  = "libx264"
	defaultCRF    = 23
	defaultPreset = "slow"
)

// fourccCodecs maps container format hints to ffmpeg encoders
var fourccCodecs = map[string]string{
	"mp4v": "mpeg4",
	"avc1": "libx264",
	"h264": "libx264",
	"x264": "libx264",
	"hvc1": "libx265",
	"hev1": "libx265",
	"mjpg": "mjpeg",
	"ffv1": "ffv1",
}

func init() {
	RegisterDecoder(FFmpegBackend, func(opts map[string]string) (Decoder, error) {
		ff, err := ffmpeg.NewWithPaths(opts["ffmpeg_path"], opts["ffprobe_path"])
		if err != nil {
			return nil, err
		}
		return &ffmpegDecoder{ff: ff}, nil
	})
	RegisterEncoder(FFmpegBackend, func(opts map[string]string) (Encoder, error) {
		ff, err := ffmpeg.NewWithPaths(opts["ffmpeg_path"], opts["ffprobe_path"])
		if err != nil {
			return nil, err
		}
		return &ffmpegEncoder{ff: ff}, nil
	})
}

type ffmpegDecoder struct {
	ff   *ffmpeg.FFmpeg
	ctx  context.Context
	path string

	pixFmt string
	shape  []int
	dtype  array.DType
	size   int // bytes per frame

	proc    *ffmpeg.Process
	scratch []byte
}

func (d *ffmpegDecoder) Open(ctx context.Context, path string, opts DecodeOptions) (Metadata, error) {
	info, err := d.ff.GetVideoInfo(ctx, path)
	if err != nil {
		return Metadata{}, fmt.Errorf("probe %s: %w", path, err)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return Metadata{}, fmt.Errorf("probe %s: invalid resolution %s", path, info.Resolution())
	}

	if info.FrameCount < 0 {
		n, err := d.ff.CountFrames(ctx, path)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "ffmpegDecoder.Open",
				"path":     path,
				"error":    err.Error(),
			}).Warn("Frame count unavailable, will scan on demand")
		} else {
			info.FrameCount = n
		}
	}

	d.ctx = ctx
	d.path = path
	d.dtype = array.Uint8
	if info.HighBitDepth() {
		d.dtype = array.Uint16
	}

	channels := 3
	switch gray := opts.PreferGray && info.IsGray(); {
	case gray && d.dtype == array.Uint16:
		d.pixFmt, channels = "gray16le", 1
		d.shape = []int{info.Height, info.Width}
	case gray:
		d.pixFmt, channels = "gray", 1
		d.shape = []int{info.Height, info.Width}
	case d.dtype == array.Uint16:
		d.pixFmt = "rgb48le"
		d.shape = []int{info.Height, info.Width, 3}
	default:
		d.pixFmt = "rgb24"
		d.shape = []int{info.Height, info.Width, 3}
	}
	d.size = info.Width * info.Height * channels * d.dtype.Size()

	logrus.WithFields(logrus.Fields{
		"function":   "ffmpegDecoder.Open",
		"path":       path,
		"codec":      info.Codec,
		"source_fmt": info.PixelFmt,
		"pix_fmt":    d.pixFmt,
		"resolution": info.Resolution(),
		"frames":     info.FrameCount,
	}).Debug("FFmpeg decoder configured")

	return Metadata{
		FrameCount: info.FrameCount,
		Height:     info.Height,
		Width:      info.Width,
		Channels:   channels,
		DType:      d.dtype,
		DTypeKnown: true,
		FPS:        info.Framerate,
		Codec:      info.Codec,
	}, nil
}

// ensure starts the decode process on first use and after a rewind
func (d *ffmpegDecoder) ensure() error {
	if d.proc != nil {
		return nil
	}
	if d.ctx == nil {
		return errors.New("ffmpeg decoder is not open")
	}
	proc, err := d.ff.StartDecoder(d.ctx, ffmpeg.DecoderConfig{
		Input:       d.path,
		PixelFormat: d.pixFmt,
	})
	if err != nil {
		return err
	}
	d.proc = proc
	return nil
}

func (d *ffmpegDecoder) NextFrame() (*array.Array, error) {
	if err := d.ensure(); err != nil {
		return nil, err
	}
	buf := make([]byte, d.size)
	if err := d.proc.ReadFrame(buf); err != nil {
		return nil, err
	}
	return array.FromBytes(d.dtype, buf, d.shape...)
}

func (d *ffmpegDecoder) SkipFrame() error {
	if err := d.ensure(); err != nil {
		return err
	}
	if d.scratch == nil {
		d.scratch = make([]byte, d.size)
	}
	return d.proc.ReadFrame(d.scratch)
}

// Rewind stops the running process; the next read starts a new one at
// frame 0
func (d *ffmpegDecoder) Rewind() error {
	if d.proc == nil {
		return nil
	}
	err := d.proc.Kill()
	d.proc = nil
	return err
}

func (d *ffmpegDecoder) Close() error {
	return d.Rewind()
}

type ffmpegEncoder struct {
	ff   *ffmpeg.FFmpeg
	path string
	proc *ffmpeg.Process
}

func (e *ffmpegEncoder) Open(ctx context.Context, path string, shape []int, dtype array.DType, cfg EncoderConfig) error {
	inFmt, err := inputPixelFormat(shape, dtype)
	if err != nil {
		return err
	}

	codec := resolveCodec(cfg)
	ecfg := ffmpeg.EncoderConfig{
		InputPixelFormat: inFmt,
		Width:            shape[1],
		Height:           shape[0],
		Framerate:        cfg.FPS,
		Codec:            codec,
		Preset:           cfg.Preset,
		CRF:              cfg.CRF,
		PixelFormat:      cfg.PixelFormat,
		Options:          cfg.Options,
		OutputPath:       path,
	}
	if ecfg.Preset == "" {
		ecfg.Preset = defaultPreset
	}
	if ecfg.CRF == 0 {
		ecfg.CRF = defaultCRF
	}
	if ecfg.PixelFormat == "" {
		ecfg.PixelFormat = "yuv420p"
		if len(shape) == 2 || shape[2] == 1 {
			ecfg.PixelFormat = "gray"
		}
	}
	if codec == "libx265" {
		ecfg.Tag = "hvc1"
	}

	proc, err := e.ff.StartEncoder(ctx, ecfg)
	if err != nil {
		return err
	}
	e.path = path
	e.proc = proc

	logrus.WithFields(logrus.Fields{
		"function": "ffmpegEncoder.Open",
		"path":     path,
		"codec":    codec,
		"in_fmt":   inFmt,
		"out_fmt":  ecfg.PixelFormat,
		"size":     fmt.Sprintf("%dx%d", ecfg.Width, ecfg.Height),
	}).Debug("FFmpeg encoder started")
	return nil
}

func (e *ffmpegEncoder) AppendFrame(frame *array.Array) error {
	if e.proc == nil {
		return errors.New("ffmpeg encoder is not open")
	}
	_, err := e.proc.Write(frame.Bytes())
	return err
}

// Close flushes stdin and waits for ffmpeg to finalize the container. An
// encoder that never received a frame has nothing to close.
func (e *ffmpegEncoder) Close() error {
	if e.proc == nil {
		return nil
	}
	return e.proc.Close()
}

// inputPixelFormat maps a frame layout to the rawvideo format piped to ffmpeg
func inputPixelFormat(shape []int, dtype array.DType) (string, error) {
	channels := 1
	if len(shape) == 3 {
		channels = shape[2]
	}
	switch {
	case channels == 1 && dtype == array.Uint8:
		return "gray", nil
	case channels == 1 && dtype == array.Uint16:
		return "gray16le", nil
	case channels == 3 && dtype == array.Uint8:
		return "rgb24", nil
	case channels == 3 && dtype == array.Uint16:
		return "rgb48le", nil
	case channels == 4 && dtype == array.Uint8:
		return "rgba", nil
	case channels == 4 && dtype == array.Uint16:
		return "rgba64le", nil
	}
	return "", fmt.Errorf("unsupported frame layout %v %s", shape, dtype)
}

// resolveCodec picks the encoder from Codec, then from FourCC
func resolveCodec(cfg EncoderConfig) string {
	if cfg.Codec != "" {
		return cfg.Codec
	}
	if codec, ok := fourccCodecs[strings.ToLower(cfg.FourCC)]; ok {
		return codec
	}
	return defaultCodec
}
