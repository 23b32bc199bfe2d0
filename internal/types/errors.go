package types

import "errors"

var (
	// ErrCameraUnavailable means the capture source could not be opened.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrCaptureRead is a transient read failure; capture retries it.
	ErrCaptureRead = errors.New("capture read failed")
	// ErrDetection wraps failures of the detection engine.
	ErrDetection      = errors.New("detection failed")
	ErrNoFaceDetected = errors.New("no face detected")
	ErrImageDecode    = errors.New("image decode failed")
	ErrNotFound       = errors.New("suspect not found")
	// ErrInvalidIdentity rejects identity names that cannot be mapped to a file name.
	ErrInvalidIdentity = errors.New("invalid identity name")
)
