package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult holds video file information
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat holds format-level information
type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream holds stream-level information
type ProbeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"` // video, audio
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	PixFmt       string `json:"pix_fmt,omitempty"`
	FrameRate    string `json:"r_frame_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	Duration     string `json:"duration,omitempty"`
	BitRate      string `json:"bit_rate,omitempty"`
	NbFrames     string `json:"nb_frames,omitempty"`
	NbReadFrames string `json:"nb_read_frames,omitempty"`
}

// Probe analyzes a video file and returns metadata
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	return f.runProbe(ctx, args)
}

// CountFrames decodes the first video stream to count its frames exactly
func (f *FFmpeg) CountFrames(ctx context.Context, path string) (int, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-count_frames",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_read_frames",
		path,
	}
	probe, err := f.runProbe(ctx, args)
	if err != nil {
		return 0, err
	}
	if len(probe.Streams) == 0 {
		return 0, fmt.Errorf("no video stream in %s", path)
	}
	n, err := strconv.Atoi(probe.Streams[0].NbReadFrames)
	if err != nil {
		return 0, fmt.Errorf("parse frame count %q: %w", probe.Streams[0].NbReadFrames, err)
	}
	return n, nil
}

func (f *FFmpeg) runProbe(ctx context.Context, args []string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, f.probePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	return &result, nil
}

// VideoInfo returns simplified video information
type VideoInfo struct {
	Width      int
	Height     int
	Duration   float64
	Framerate  float64
	FrameCount int // -1 when the container does not declare it
	Codec      string
	BitRate    int64
	PixelFmt   string
}

// GetVideoInfo returns simplified information about the first video stream
func (f *FFmpeg) GetVideoInfo(ctx context.Context, path string) (*VideoInfo, error) {
	probe, err := f.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return probe.VideoInfo()
}

// VideoInfo extracts the first video stream's information
func (p *ProbeResult) VideoInfo() (*VideoInfo, error) {
	info := &VideoInfo{FrameCount: -1}

	found := false
	for _, stream := range p.Streams {
		if stream.CodecType != "video" {
			continue
		}
		found = true
		info.Width = stream.Width
		info.Height = stream.Height
		info.Codec = stream.CodecName
		info.PixelFmt = stream.PixFmt

		// Parse framerate (format: "30/1" or "30000/1001")
		if stream.AvgFrameRate != "" && stream.AvgFrameRate != "0/0" {
			info.Framerate = parseFramerate(stream.AvgFrameRate)
		} else if stream.FrameRate != "" {
			info.Framerate = parseFramerate(stream.FrameRate)
		}

		if stream.BitRate != "" {
			info.BitRate, _ = strconv.ParseInt(stream.BitRate, 10, 64)
		}
		if n, err := strconv.Atoi(stream.NbFrames); err == nil && n > 0 {
			info.FrameCount = n
		}
		if stream.Duration != "" {
			info.Duration, _ = strconv.ParseFloat(stream.Duration, 64)
		}
		break
	}
	if !found {
		return nil, fmt.Errorf("no video stream found")
	}

	if info.Duration == 0 && p.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(p.Format.Duration, 64)
	}

	// Fallback bitrate from format
	if info.BitRate == 0 && p.Format.BitRate != "" {
		info.BitRate, _ = strconv.ParseInt(p.Format.BitRate, 10, 64)
	}

	return info, nil
}

// parseFramerate parses a framerate string like "30/1" or "30000/1001"
func parseFramerate(s string) float64 {
	var num, den int
	if n, _ := fmt.Sscanf(s, "%d/%d", &num, &den); n == 2 && den != 0 {
		return float64(num) / float64(den)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return 0
}

// Resolution returns resolution string like "1920x1080"
func (v *VideoInfo) Resolution() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// HighBitDepth reports whether samples need more than 8 bits
func (v *VideoInfo) HighBitDepth() bool {
	for _, suffix := range []string{"10le", "10be", "12le", "12be", "14le", "14be", "16le", "16be", "48le", "48be", "64le", "64be"} {
		if strings.HasSuffix(v.PixelFmt, suffix) {
			return true
		}
	}
	return false
}

// IsGray reports whether the stream carries luma only
func (v *VideoInfo) IsGray() bool {
	return strings.HasPrefix(v.PixelFmt, "gray") || strings.HasPrefix(v.PixelFmt, "ya")
}
