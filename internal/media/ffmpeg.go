package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// FFmpeg shells out to an ffmpeg binary to transcode artifacts.
type FFmpeg struct {
	binary string
}

// NewFFmpeg creates a transcoder using the given ffmpeg binary
// (default "ffmpeg", resolved through PATH).
func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary}
}

// CompressVideo re-encodes a video to a bounded 720p H.264 profile
// suitable for inline playback on mobile clients.
func (f *FFmpeg) CompressVideo(ctx context.Context, inputPath, outputPath string) error {
	return f.run(ctx, outputPath,
		"-i", inputPath,
		"-vcodec", "libx264",
		"-profile:v", "baseline",
		"-level", "3.0",
		"-vf", "scale=-2:720",
		"-crf", "28",
		"-preset", "fast",
		"-acodec", "aac",
		"-b:a", "64k",
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
		"-y", outputPath,
	)
}

// TranscodeToVoice converts any audio input to the OGG/Opus container
// that renders as a playable voice note.
func (f *FFmpeg) TranscodeToVoice(ctx context.Context, inputPath, outputPath string) error {
	return f.run(ctx, outputPath,
		"-i", inputPath,
		"-f", "ogg",
		"-acodec", "libopus",
		"-y", outputPath,
	)
}

func (f *FFmpeg) run(ctx context.Context, outputPath string, args ...string) error {
	cmd := exec.CommandContext(ctx, f.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(stderr.Bytes()))
	}

	// ffmpeg can exit zero and still leave a truncated file behind.
	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced an empty file")
	}
	return nil
}

func lastLine(out []byte) string {
	out = bytes.TrimRight(out, "\n")
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	return string(out)
}
