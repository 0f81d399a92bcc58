package capture

import (
	"context"
	"errors"
)

// Frame is one raw image acquired from a source, prior to preprocessing.
type Frame struct {
	Data        []byte
	ContentType string
	Filename    string
}

// ErrNoFileSelected indicates the user cancelled the picker without choosing
// a file. Callers treat it as a no-op, not a user-visible error.
var ErrNoFileSelected = errors.New("no file selected")

// ErrDeviceAccessDenied indicates the camera device refused access. Callers
// must surface an explanation and fall back to upload-only capture.
var ErrDeviceAccessDenied = errors.New("camera access denied")

// Source acquires exactly one raw image per invocation.
type Source interface {
	Acquire(ctx context.Context) (Frame, error)
}

// UploadSource wraps a single user-selected file.
type UploadSource struct {
	frame Frame
}

// NewUploadSource creates a source for an already-received upload.
func NewUploadSource(data []byte, contentType, filename string) *UploadSource {
	return &UploadSource{frame: Frame{Data: data, ContentType: contentType, Filename: filename}}
}

// Acquire returns the uploaded file, or ErrNoFileSelected when the picker
// was cancelled and no bytes arrived.
func (s *UploadSource) Acquire(ctx context.Context) (Frame, error) {
	if len(s.frame.Data) == 0 {
		return Frame{}, ErrNoFileSelected
	}
	return s.frame, nil
}
