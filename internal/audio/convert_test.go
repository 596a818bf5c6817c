package audio

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFFmpegConverterArgs(t *testing.T) {
	c := NewFFmpegConverter("", "")
	got := c.Args("in.webm", "out.m4a")
	want := []string{"-nostdin", "-y", "-i", "in.webm", "-acodec", "aac", "-b:a", "192k", "out.m4a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args = %q, want %q", got, want)
	}
}

func TestFFmpegConverterFailure(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.m4a")
	if err := os.WriteFile(out, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewFFmpegConverter(filepath.Join(dir, "no-such-ffmpeg"), "192k")
	if err := c.Check(); err == nil {
		t.Error("Check: expected error for missing binary")
	}
	if err := c.Convert(context.Background(), filepath.Join(dir, "in.webm"), out); err == nil {
		t.Fatal("Convert: expected error for missing binary")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("partial output not removed after failure")
	}
}

func TestLastLine(t *testing.T) {
	if got := lastLine("a\nb\nInvalid data found\n"); got != "Invalid data found" {
		t.Errorf("lastLine = %q", got)
	}
	if got := lastLine("single"); got != "single" {
		t.Errorf("lastLine = %q", got)
	}
}
