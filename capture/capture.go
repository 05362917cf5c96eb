// Package capture provides the video sources the dashboard can grab a face
// still from. A Device opens a Stream at a requested resolution; the stream
// hands out the current frame until it is stopped.
package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
)

var (
	ErrNoDevice = errors.New("no capture device available")
	ErrStopped  = errors.New("capture stream stopped")
)

type Device interface {
	Open(ctx context.Context, width, height int) (Stream, error)
}

// Stream is a live video source. Stop releases every track and is safe to
// call more than once.
type Stream interface {
	Frame() (image.Image, error)
	Stop()
}

// NoDevice is used when no source is configured, e.g. on a headless host.
type NoDevice struct{}

func (NoDevice) Open(context.Context, int, int) (Stream, error) { return nil, ErrNoDevice }

// FromSource returns a StillDevice for a file or directory path and NoDevice
// for an empty one.
func FromSource(src string) Device {
	if src == "" {
		return NoDevice{}
	}
	return &StillDevice{Path: src}
}

const jpegQuality = 92

func EncodeJPEG(img image.Image) ([]byte, error) {
	var b bytes.Buffer
	if err := jpeg.Encode(&b, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
