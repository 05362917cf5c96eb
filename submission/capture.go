package submission

import (
	"context"
	"fmt"

	"github.com/maastricht-university/stressdash/capture"
)

const captureName = "webcam-capture.jpg"

// StartCapture opens the capture device. It is a no-op while a session is
// already active or opening, and is refused while a face image is set.
func (c *Controller) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.stream != nil || c.opening {
		c.mu.Unlock()
		return nil
	}
	if c.face != nil {
		err := c.fail(KindValidation, msgFaceSet, nil)
		c.mu.Unlock()
		return err
	}
	c.opening = true
	gen := c.gen
	c.mu.Unlock()

	s, err := c.device.Open(ctx, c.width, c.height)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.opening = false
	if err != nil {
		c.log.WithError(err).Warn("webcam unavailable")
		return c.fail(KindDevice, fmt.Sprintf(msgNoWebcam, err), err)
	}
	if gen != c.gen || c.disposed || c.face != nil {
		// reset, dispose or an upload won the race
		s.Stop()
		return nil
	}
	c.stream = s
	c.log.WithField("resolution", fmt.Sprintf("%dx%d", c.width, c.height)).Debug("webcam started")
	return nil
}

// CaptureFrame grabs the current frame as a JPEG face image and ends the
// session. The device is released whether or not the grab succeeds.
func (c *Controller) CaptureFrame() error {
	c.mu.Lock()
	s := c.stream
	if s == nil {
		c.mu.Unlock()
		return ErrCaptureInactive
	}
	c.stream = nil
	c.mu.Unlock()

	data, err := grab(s)
	s.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if err != nil {
		c.log.WithError(err).Warn("webcam capture failed")
		return c.fail(KindDevice, fmt.Sprintf(msgCaptureFailed, err), err)
	}
	return c.setFaceLocked(File{Name: captureName, MIME: "image/jpeg", Data: data})
}

// CancelCapture ends the session without producing an image.
func (c *Controller) CancelCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return ErrCaptureInactive
	}
	c.stopStreamLocked()
	return nil
}

// LiveFrame returns the current frame as JPEG for display while a session
// is active.
func (c *Controller) LiveFrame() ([]byte, error) {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s == nil {
		return nil, ErrCaptureInactive
	}
	return grab(s)
}

func grab(s capture.Stream) ([]byte, error) {
	img, err := s.Frame()
	if err != nil {
		return nil, err
	}
	return capture.EncodeJPEG(img)
}

func (c *Controller) stopStreamLocked() {
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
		c.log.Debug("webcam stopped")
	}
}
