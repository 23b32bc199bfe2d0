package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/andresmejia3/lookout/internal/types"
	"github.com/andresmejia3/lookout/internal/utils"
)

const (
	statusOK    = 0
	statusError = 1

	// maxPayload bounds a single engine response.
	maxPayload = 64 << 20
	maxDim     = 4096
)

// EngineConfig describes how to launch a detection engine process.
type EngineConfig struct {
	Python       string
	Script       string
	DetThreshold float64
	ReadTimeout  time.Duration
}

// PythonWorker is one external detection engine. It is not safe for
// concurrent use; the Pool hands it to one caller at a time.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	Timeout  time.Duration
}

// deadliner is satisfied by *os.File pipes.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

func NewPythonWorker(ctx context.Context, id int, cfg EngineConfig) (*PythonWorker, error) {
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script,
		"--det-threshold", strconv.FormatFloat(cfg.DetThreshold, 'f', -1, 64))

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("engine %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		Timeout:  cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and returns the raw response payload.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(deadliner); ok && w.Timeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(w.Timeout)); err == nil {
			defer d.SetReadDeadline(time.Time{})
		}
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // a crashed engine (e.g. ModuleNotFoundError) surfaces here
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxPayload {
		return nil, fmt.Errorf("engine response too large: %d bytes", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// EngineError is a failure the engine reported cleanly. The engine itself is still usable.
type EngineError struct {
	Msg string
}

func (e *EngineError) Error() string { return "python worker error: " + e.Msg }

// Detect runs the engine on one encoded image.
func (w *PythonWorker) Detect(jpeg []byte) ([]types.Face, error) {
	resp, err := w.Communicate(jpeg)
	if err != nil {
		return nil, err
	}
	return ParseResponse(resp)
}

// ParseResponse decodes a response payload:
// [Status:0][NumFaces] then per face [Box 4xi32][Dim][Dim x f32], or [Status:1][MsgLen][Msg].
func ParseResponse(resp []byte) ([]types.Face, error) {
	r := bytes.NewReader(resp)

	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty engine response: %w", err)
	}

	if status == statusError {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed engine error: %w", err)
		}
		if int(msgLen) > r.Len() {
			return nil, fmt.Errorf("malformed engine error: message length %d exceeds payload", msgLen)
		}
		msg := make([]byte, msgLen)
		io.ReadFull(r, msg)
		return nil, &EngineError{Msg: string(msg)}
	}
	if status != statusOK {
		return nil, fmt.Errorf("unknown engine status %d", status)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read face count: %w", err)
	}
	// 20 bytes is the smallest possible face record
	if int64(count)*20 > int64(r.Len()) {
		return nil, fmt.Errorf("face count %d exceeds payload", count)
	}

	faces := make([]types.Face, 0, count)
	for i := uint32(0); i < count; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d: failed to read box: %w", i, err)
		}
		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return nil, fmt.Errorf("face %d: failed to read dimension: %w", i, err)
		}
		if dim > maxDim {
			return nil, fmt.Errorf("face %d: embedding dimension %d too large", i, dim)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.BigEndian, vec); err != nil {
			return nil, fmt.Errorf("face %d: failed to read embedding: %w", i, err)
		}
		for _, v := range vec {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, fmt.Errorf("face %d: embedding contains non-finite values", i)
			}
		}
		faces = append(faces, types.Face{
			Box:       types.BoundingBox{X1: int(box[0]), Y1: int(box[1]), X2: int(box[2]), Y2: int(box[3])},
			Embedding: vec,
		})
	}
	return faces, nil
}

// Logs returns the engine's captured stderr.
func (w *PythonWorker) Logs() string { return w.Cmd.Logs() }

func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	// Closing stdin is the engine's signal to exit; Wait reaps it.
	err := w.Cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
