package ffmpeg

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ff, err := New()
	if err != nil {
		t.Skipf("FFmpeg not found: %v", err)
	}

	version, err := ff.Version(context.Background())
	require.NoError(t, err)

	t.Logf("FFmpeg version: %s", version)
}

func TestBuildDecoderArgs(t *testing.T) {
	args := buildDecoderArgs(DecoderConfig{Input: "in.mp4"})
	assert.Contains(t, args, "rgb24")
	assert.Equal(t, "pipe:1", args[len(args)-1])

	args = buildDecoderArgs(DecoderConfig{Input: "in.mp4", PixelFormat: "rgb48le"})
	assert.Contains(t, args, "rgb48le")
	assert.NotContains(t, args, "rgb24")
}

func TestBuildEncoderArgs(t *testing.T) {
	args := buildEncoderArgs(EncoderConfig{
		InputPixelFormat: "rgb24",
		Width:            320,
		Height:           240,
		Framerate:        29.97,
		Codec:            "libx265",
		Preset:           "slow",
		CRF:              23,
		PixelFormat:      "yuv420p",
		Tag:              "hvc1",
		Options:          map[string]string{"b:v": "1M", "bf": "0"},
		OutputPath:       "out.mp4",
	})

	assert.Equal(t, "out.mp4", args[len(args)-1])
	assert.Subset(t, args, []string{"320x240", "29.97", "libx265", "slow", "23", "hvc1", "-x265-params", "-b:v", "1M"})
	// Options are emitted in key order
	assert.Less(t, indexOf(args, "-b:v"), indexOf(args, "-bf"))

	args = buildEncoderArgs(EncoderConfig{
		InputPixelFormat: "gray",
		Width:            8,
		Height:           8,
		Framerate:        25,
		Codec:            "ffv1",
		Preset:           "slow",
		CRF:              23,
		OutputPath:       "out.avi",
	})
	assert.Contains(t, args, "25")
	assert.NotContains(t, args, "-preset")
	assert.NotContains(t, args, "-crf")
}

func TestParseFramerate(t *testing.T) {
	assert.Equal(t, 30.0, parseFramerate("30/1"))
	assert.InDelta(t, 29.97, parseFramerate("30000/1001"), 0.001)
	assert.Equal(t, 25.0, parseFramerate("25"))
	assert.Equal(t, 0.0, parseFramerate("0/0"))
}

func TestProbeResultVideoInfo(t *testing.T) {
	probe := &ProbeResult{
		Format: ProbeFormat{Duration: "2.000000", BitRate: "1000"},
		Streams: []ProbeStream{
			{Index: 0, CodecType: "audio", CodecName: "aac"},
			{Index: 1, CodecType: "video", CodecName: "h264", Width: 64, Height: 48,
				PixFmt: "yuv420p10le", AvgFrameRate: "25/1", NbFrames: "50"},
		},
	}

	info, err := probe.VideoInfo()
	require.NoError(t, err)
	assert.Equal(t, "64x48", info.Resolution())
	assert.Equal(t, 25.0, info.Framerate)
	assert.Equal(t, 50, info.FrameCount)
	assert.Equal(t, 2.0, info.Duration)
	assert.Equal(t, int64(1000), info.BitRate)
	assert.True(t, info.HighBitDepth())
	assert.False(t, info.IsGray())

	probe.Streams[1].NbFrames = ""
	info, err = probe.VideoInfo()
	require.NoError(t, err)
	assert.Equal(t, -1, info.FrameCount)

	_, err = (&ProbeResult{}).VideoInfo()
	assert.Error(t, err)
}

// TestEncodeDecodeRoundTrip pipes synthetic frames through a lossless
// encoder and reads them back
func TestEncodeDecodeRoundTrip(t *testing.T) {
	ff, err := New()
	if err != nil {
		t.Skipf("FFmpeg not found: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := filepath.Join(t.TempDir(), "gray.avi")
	const w, h, n = 16, 8, 5

	enc, err := ff.StartEncoder(ctx, EncoderConfig{
		InputPixelFormat: "gray",
		Width:            w,
		Height:           h,
		Framerate:        10,
		Codec:            "ffv1",
		PixelFormat:      "gray",
		OutputPath:       out,
	})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		frame := make([]byte, w*h)
		for p := range frame {
			frame[p] = byte(i*40 + p)
		}
		_, err := enc.Write(frame)
		require.NoError(t, err)
	}
	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close())

	_, err = os.Stat(out)
	require.NoError(t, err)

	info, err := ff.GetVideoInfo(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, w, info.Width)
	assert.Equal(t, h, info.Height)

	count, err := ff.CountFrames(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, n, count)

	dec, err := ff.StartDecoder(ctx, DecoderConfig{Input: out, PixelFormat: "gray"})
	require.NoError(t, err)
	defer dec.Kill()

	buf := make([]byte, w*h)
	for i := 0; i < n; i++ {
		require.NoError(t, dec.ReadFrame(buf))
		assert.Equal(t, byte(i*40), buf[0])
		assert.Equal(t, byte(i*40+w*h-1), buf[w*h-1])
	}
	assert.ErrorIs(t, dec.ReadFrame(buf), io.EOF)
}

// stubFFmpeg returns a wrapper whose ffmpeg binary is a shell script
func stubFFmpeg(t *testing.T, script string) *FFmpeg {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))

	ff, err := NewWithPaths(path, path)
	require.NoError(t, err)
	return ff
}

func TestProcessFramesOutliveExit(t *testing.T) {
	ff := stubFFmpeg(t, "printf AAAABBBBCCCC")

	dec, err := ff.StartDecoder(context.Background(), DecoderConfig{Input: "in.mp4"})
	require.NoError(t, err)
	defer dec.Kill()

	// Let the process exit with every frame still buffered in the pipe
	time.Sleep(300 * time.Millisecond)

	buf := make([]byte, 4)
	for _, want := range []string{"AAAA", "BBBB", "CCCC"} {
		require.NoError(t, dec.ReadFrame(buf))
		assert.Equal(t, want, string(buf))
		time.Sleep(20 * time.Millisecond)
	}
	assert.ErrorIs(t, dec.ReadFrame(buf), io.EOF)
	assert.ErrorIs(t, dec.ReadFrame(buf), io.EOF)
	assert.NoError(t, dec.Close())
}

func TestProcessTruncatedFrame(t *testing.T) {
	ff := stubFFmpeg(t, "printf AAAABB")

	dec, err := ff.StartDecoder(context.Background(), DecoderConfig{Input: "in.mp4"})
	require.NoError(t, err)
	defer dec.Kill()

	time.Sleep(200 * time.Millisecond)

	buf := make([]byte, 4)
	require.NoError(t, dec.ReadFrame(buf))
	err = dec.ReadFrame(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "truncated frame")
}

func TestProcessExitError(t *testing.T) {
	ff := stubFFmpeg(t, "printf AAAA; echo 'Invalid data found when processing input' >&2; exit 1")

	dec, err := ff.StartDecoder(context.Background(), DecoderConfig{Input: "in.mp4"})
	require.NoError(t, err)
	defer dec.Kill()

	buf := make([]byte, 4)
	require.NoError(t, dec.ReadFrame(buf))
	err = dec.ReadFrame(buf)
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestProcessCloseDiscardsUnreadOutput(t *testing.T) {
	ff := stubFFmpeg(t, "head -c 1048576 /dev/zero")

	dec, err := ff.StartDecoder(context.Background(), DecoderConfig{Input: "in.mp4"})
	require.NoError(t, err)

	buf := make([]byte, 16)
	require.NoError(t, dec.ReadFrame(buf))

	done := make(chan struct{})
	go func() {
		dec.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on unread output")
	}
	dec.Close()
}

func indexOf(args []string, s string) int {
	for i, a := range args {
		if a == s {
			return i
		}
	}
	return -1
}
