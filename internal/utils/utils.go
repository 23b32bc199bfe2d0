package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps exec.Cmd with a bounded buffer that catches Stderr (engine or ffmpeg logs)
// so crash information survives the child process.
type SafeCommand struct {
	*exec.Cmd
	Stderr *TailBuffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := NewTailBuffer(64 * 1024)
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// Logs returns whatever the child wrote to stderr, truncated to the buffer size.
func (s *SafeCommand) Logs() string {
	if s == nil || s.Stderr == nil {
		return ""
	}
	return s.Stderr.String()
}

// TailBuffer keeps the last Max bytes written to it. Long-running children
// (ffmpeg, the detection engines) would otherwise grow stderr without bound.
type TailBuffer struct {
	mu  sync.Mutex
	buf []byte
	Max int
}

func NewTailBuffer(max int) *TailBuffer {
	return &TailBuffer{Max: max}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.Max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *TailBuffer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}

func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// ShowError prints a formatted error box and dumps child logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 LOOKOUT ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	if logs := s.Logs(); logs != "" {
		fmt.Fprintf(os.Stderr, "\nENGINE LOGS:\n%s\n", logs)
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy: ShowError, then exit non-zero.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Camera Stream Ingestion ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// CaptureArgs describes an ffmpeg live input.
type CaptureArgs struct {
	Device string // /dev/video0, rtsp://..., or a file
	Format string // optional input format, e.g. v4l2
	FPS    int    // output rate; 0 keeps the source rate
}

// FFmpegArgs builds the argument list that turns a live source into an MJPEG stream on stdout.
func FFmpegArgs(in CaptureArgs) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if in.Format != "" {
		args = append(args, "-f", in.Format)
	}
	if len(in.Device) > 7 && in.Device[:7] == "rtsp://" {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args, "-i", in.Device)
	if in.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(in.FPS))
	}
	// -vcodec mjpeg guarantees JPEGs that SplitJpeg can cut apart
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-")
}

// NewFFmpegCmd creates the capture decoder pipe.
func NewFFmpegCmd(ctx context.Context, in CaptureArgs) *SafeCommand {
	return NewSafeCommand(ctx, "ffmpeg", FFmpegArgs(in)...)
}
