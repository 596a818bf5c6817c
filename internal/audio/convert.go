package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// FFmpegConverter transcodes raw uploads to AAC in an m4a container.
type FFmpegConverter struct {
	bin     string
	bitrate string
}

// NewFFmpegConverter creates a converter using the given ffmpeg binary and
// audio bitrate (e.g. "192k").
func NewFFmpegConverter(bin, bitrate string) *FFmpegConverter {
	if bin == "" {
		bin = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = "192k"
	}
	return &FFmpegConverter{bin: bin, bitrate: bitrate}
}

// Check reports whether the ffmpeg binary can be found. Call once at startup.
func (c *FFmpegConverter) Check() error {
	if _, err := exec.LookPath(c.bin); err != nil {
		return fmt.Errorf("ffmpeg not found (%s): %w", c.bin, err)
	}
	return nil
}

// Args returns the ffmpeg arguments for one conversion.
func (c *FFmpegConverter) Args(in, out string) []string {
	return []string{
		"-nostdin",
		"-y",
		"-i", in,
		"-acodec", "aac",
		"-b:a", c.bitrate,
		out,
	}
}

// Convert transcodes in to out. On failure any partial output is removed, so
// out either holds a complete file or does not exist.
func (c *FFmpegConverter) Convert(ctx context.Context, in, out string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.bin, c.Args(in, out)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// Clean up partial output
		os.Remove(out)
		return fmt.Errorf("ffmpeg convert %s: %w: %s", in, err, lastLine(stderr.String()))
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
