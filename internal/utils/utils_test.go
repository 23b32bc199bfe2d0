package utils

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [JPEG] [Garbage]
	// SOI (Start of Image): FF D8
	// EOI (End of Image):   FF D9

	first := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}
	second := []byte{0xFF, 0xD8, 0x04, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00} // Garbage at start
	streamData = append(streamData, first...)
	streamData = append(streamData, second...)
	streamData = append(streamData, []byte{0x00, 0x00}...) // Garbage at end

	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	for i, want := range [][]byte{first, second} {
		if !scanner.Scan() {
			t.Fatalf("Expected token %d, got EOF", i)
		}
		if !bytes.Equal(scanner.Bytes(), want) {
			t.Errorf("Token %d: expected %X, got %X", i, want, scanner.Bytes())
		}
	}

	// The trailing garbage is not a JPEG
	if scanner.Scan() {
		t.Error("Expected only two tokens, found more")
	}
	if err := scanner.Err(); err != nil {
		t.Errorf("Unexpected scanner error: %v", err)
	}
}

func TestSplitJpegTruncated(t *testing.T) {
	// A frame cut off by a dying ffmpeg must not be emitted.
	scanner := bufio.NewScanner(bytes.NewReader([]byte{0xFF, 0xD8, 0x01, 0x02}))
	scanner.Split(SplitJpeg)
	if scanner.Scan() {
		t.Errorf("Expected no token for truncated frame, got %X", scanner.Bytes())
	}
}

func TestFFmpegArgs(t *testing.T) {
	tests := []struct {
		name    string
		in      CaptureArgs
		want    []string
		notWant []string
	}{
		{
			name:    "V4L2 device",
			in:      CaptureArgs{Device: "/dev/video0", Format: "v4l2", FPS: 30},
			want:    []string{"-f v4l2", "-i /dev/video0", "-r 30", "-f image2pipe"},
			notWant: []string{"-rtsp_transport"},
		},
		{
			name:    "RTSP stream uses TCP",
			in:      CaptureArgs{Device: "rtsp://cam.local/stream"},
			want:    []string{"-rtsp_transport tcp", "-i rtsp://cam.local/stream"},
			notWant: []string{"-r "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			joined := strings.Join(FFmpegArgs(tt.in), " ")
			for _, w := range tt.want {
				if !strings.Contains(joined, w) {
					t.Errorf("expected %q in %q", w, joined)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(joined, nw) {
					t.Errorf("did not expect %q in %q", nw, joined)
				}
			}
			if !strings.HasSuffix(joined, "-") {
				t.Errorf("expected output to stdout, got %q", joined)
			}
		})
	}
}

func TestTailBuffer(t *testing.T) {
	b := NewTailBuffer(8)
	b.Write([]byte("0123456789"))
	if got := b.String(); got != "23456789" {
		t.Errorf("expected last 8 bytes, got %q", got)
	}
	b.Write([]byte("ab"))
	if got := b.String(); got != "456789ab" {
		t.Errorf("expected rolling tail, got %q", got)
	}
	if b.Len() != 8 {
		t.Errorf("expected length 8, got %d", b.Len())
	}
}

func TestSafeCommandLogsNil(t *testing.T) {
	var s *SafeCommand
	if s.Logs() != "" {
		t.Error("nil SafeCommand should report no logs")
	}
}
