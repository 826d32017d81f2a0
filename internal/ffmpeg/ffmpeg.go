package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// FFmpeg wraps FFmpeg binary execution
type FFmpeg struct {
	binaryPath string
	probePath  string
}

// New creates a new FFmpeg wrapper
func New() (*FFmpeg, error) {
	return NewWithPaths("", "")
}

// NewWithPaths creates an FFmpeg wrapper using explicit binaries. Empty
// paths are looked up in PATH and common install locations.
func NewWithPaths(ffmpegPath, ffprobePath string) (*FFmpeg, error) {
	var err error
	if ffmpegPath == "" {
		if ffmpegPath, err = findBinary("ffmpeg"); err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
	}
	if ffprobePath == "" {
		if ffprobePath, err = findBinary("ffprobe"); err != nil {
			return nil, fmt.Errorf("ffprobe not found: %w", err)
		}
	}

	return &FFmpeg{
		binaryPath: ffmpegPath,
		probePath:  ffprobePath,
	}, nil
}

// findBinary locates a binary in PATH or common locations
func findBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/opt/homebrew/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "linux":
		paths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "windows":
		paths = []string{
			"C:\\ffmpeg\\bin\\" + name + ".exe",
			"C:\\Program Files\\ffmpeg\\bin\\" + name + ".exe",
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// Version returns the FFmpeg version string
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, f.binaryPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", fmt.Errorf("no version output")
}

// Process represents a running FFmpeg process. A decoder process exposes
// raw frames on its stdout; an encoder process consumes them on stdin.
//
// cmd.Wait closes the stdout pipe, so it only runs once stdout is read to
// EOF or the caller gives up on the process through Close or Kill.
type Process struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     io.ReadCloser
	stderrDone chan struct{}

	waitOnce sync.Once
	exitErr  error

	mu      sync.Mutex
	lastErr string
	closed  bool
	drained bool // stdout reached EOF
}

func (f *FFmpeg) start(ctx context.Context, args []string, pipeIn, pipeOut bool) (*Process, error) {
	cmd := exec.CommandContext(ctx, f.binaryPath, args...)
	proc := &Process{cmd: cmd, stderrDone: make(chan struct{})}

	var err error
	if pipeIn {
		if proc.stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("get stdin pipe: %w", err)
		}
	}
	if pipeOut {
		if proc.stdout, err = cmd.StdoutPipe(); err != nil {
			return nil, fmt.Errorf("get stdout pipe: %w", err)
		}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "ffmpeg.start",
		"pid":      cmd.Process.Pid,
		"args":     strings.Join(args, " "),
	}).Debug("FFmpeg process started")

	go func() {
		defer close(proc.stderrDone)
		proc.monitorOutput(bufio.NewScanner(stderrPipe))
	}()

	return proc, nil
}

// monitorOutput logs FFmpeg error lines and keeps the last one for error reports
func (p *Process) monitorOutput(scanner *bufio.Scanner) {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.mu.Lock()
		p.lastErr = line
		p.mu.Unlock()

		if strings.Contains(strings.ToLower(line), "error") {
			logrus.WithFields(logrus.Fields{
				"function": "ffmpeg.monitorOutput",
				"pid":      p.cmd.Process.Pid,
			}).Warn(line)
		}
	}
}

// LastError returns the last line FFmpeg printed on stderr
func (p *Process) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Write writes raw frame data to FFmpeg stdin
func (p *Process) Write(data []byte) (int, error) {
	if p.stdin == nil {
		return 0, errors.New("ffmpeg process has no stdin pipe")
	}
	n, err := p.stdin.Write(data)
	if err != nil {
		return n, p.annotate(fmt.Errorf("write frame: %w", err))
	}
	return n, nil
}

// ReadFrame fills buf with exactly one raw frame from FFmpeg stdout. It
// returns io.EOF when the stream ended cleanly before the frame started.
// Frames already written by FFmpeg stay readable after it exits.
func (p *Process) ReadFrame(buf []byte) error {
	if p.stdout == nil {
		return errors.New("ffmpeg process has no stdout pipe")
	}
	p.mu.Lock()
	drained := p.drained
	p.mu.Unlock()
	if drained {
		return p.endOfStream()
	}

	_, err := io.ReadFull(p.stdout, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		p.mu.Lock()
		p.drained = true
		p.mu.Unlock()
		return p.endOfStream()
	case errors.Is(err, io.ErrUnexpectedEOF):
		p.mu.Lock()
		p.drained = true
		p.mu.Unlock()
		p.wait()
		return p.annotate(fmt.Errorf("truncated frame: %w", err))
	default:
		return p.annotate(fmt.Errorf("read frame: %w", err))
	}
}

func (p *Process) endOfStream() error {
	// A failed decode also ends the stream; report it instead of EOF
	if err := p.wait(); err != nil {
		return p.annotate(fmt.Errorf("ffmpeg exited: %w", err))
	}
	return io.EOF
}

// Close closes stdin and waits for FFmpeg to finish. Unread output is
// discarded. It is safe to call more than once; later calls return the
// first result.
func (p *Process) Close() error {
	p.mu.Lock()
	closed := p.closed
	p.closed = true
	p.mu.Unlock()

	if !closed {
		if p.stdin != nil {
			p.stdin.Close()
		}
		if p.stdout != nil {
			p.stdout.Close()
		}
	}
	if err := p.wait(); err != nil {
		return p.annotate(fmt.Errorf("ffmpeg exited: %w", err))
	}
	return nil
}

// Kill forcefully terminates the process and reaps it
func (p *Process) Kill() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	if p.stdin != nil {
		p.stdin.Close()
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	p.wait()
	return nil
}

// wait reaps the process once stderr is drained and memoizes its exit error
func (p *Process) wait() error {
	p.waitOnce.Do(func() {
		<-p.stderrDone
		p.exitErr = p.cmd.Wait()
	})
	return p.exitErr
}

func (p *Process) annotate(err error) error {
	if last := p.LastError(); last != "" {
		return fmt.Errorf("%w: %s", err, last)
	}
	return err
}

// DecoderConfig holds configuration for a raw-video decode process
type DecoderConfig struct {
	Input       string // File path or URL
	PixelFormat string // rgb24, rgb48le, gray
}

// StartDecoder starts an FFmpeg process that writes the first video stream
// of Input to stdout as packed raw frames
func (f *FFmpeg) StartDecoder(ctx context.Context, cfg DecoderConfig) (*Process, error) {
	return f.start(ctx, buildDecoderArgs(cfg), false, true)
}

// buildDecoderArgs builds FFmpeg arguments for rawvideo decoding
func buildDecoderArgs(cfg DecoderConfig) []string {
	pixFmt := cfg.PixelFormat
	if pixFmt == "" {
		pixFmt = "rgb24"
	}
	return []string{
		"-nostdin",
		"-hide_banner",
		"-v", "error",
		"-i", cfg.Input,
		"-map", "0:v:0",
		"-an", "-sn",
		"-f", "rawvideo",
		"-pix_fmt", pixFmt,
		"pipe:1",
	}
}

// EncoderConfig holds configuration for the encoder
type EncoderConfig struct {
	// Input
	InputPixelFormat string // gray, rgb24, rgba, gray16le, rgb48le
	Width            int
	Height           int
	Framerate        float64

	// Encoding
	Codec       string // libx264, libx265, mpeg4, ffv1, ...
	Preset      string // ultrafast, fast, medium, slow (x264/x265 only)
	CRF         int    // 0 = codec default (x264/x265 only)
	PixelFormat string // Output pixel format, e.g. yuv420p
	Tag         string // Codec tag, e.g. hvc1
	Options     map[string]string

	// Output
	OutputPath string
}

// StartEncoder starts an FFmpeg encoding process reading raw frames from stdin
func (f *FFmpeg) StartEncoder(ctx context.Context, cfg EncoderConfig) (*Process, error) {
	return f.start(ctx, buildEncoderArgs(cfg), true, false)
}

// buildEncoderArgs builds FFmpeg arguments for rawvideo encoding
func buildEncoderArgs(cfg EncoderConfig) []string {
	args := []string{
		"-y", // Overwrite output
		"-hide_banner",
		"-v", "error",

		// Input
		"-f", "rawvideo",
		"-pix_fmt", cfg.InputPixelFormat,
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", formatRate(cfg.Framerate),
		"-i", "pipe:0",

		// Video encoding
		"-an",
		"-c:v", cfg.Codec,
	}

	if usesX26x(cfg.Codec) {
		if cfg.Preset != "" {
			args = append(args, "-preset", cfg.Preset)
		}
		if cfg.CRF > 0 {
			args = append(args, "-crf", fmt.Sprintf("%d", cfg.CRF))
		}
	}
	if cfg.Codec == "libx265" {
		args = append(args, "-x265-params", "log-level=none")
	}
	if cfg.PixelFormat != "" {
		args = append(args, "-pix_fmt", cfg.PixelFormat)
	}
	if cfg.Tag != "" {
		args = append(args, "-tag:v", cfg.Tag)
	}
	for _, k := range sortedKeys(cfg.Options) {
		args = append(args, "-"+k, cfg.Options[k])
	}

	return append(args, cfg.OutputPath)
}

func usesX26x(codec string) bool {
	return codec == "libx264" || codec == "libx265" || codec == "libx264rgb"
}

// formatRate formats a frame rate without losing fractional rates like 29.97
func formatRate(fps float64) string {
	if fps == float64(int64(fps)) {
		return fmt.Sprintf("%d", int64(fps))
	}
	return fmt.Sprintf("%g", fps)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
