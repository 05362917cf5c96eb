// Package submission implements the dashboard's multimodal submission
// workflow: it owns the user's inputs and their preview handles, the webcam
// session, and the in-flight/result/error triple of one analysis request.
//
// A Controller belongs to exactly one dashboard visit. Its methods may be
// called from concurrent HTTP requests; the aggregate is guarded by one mutex
// that is never held across the outbound request or a device open.
package submission

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/stressdash/capture"
	"github.com/maastricht-university/stressdash/clients"
)

type Analyzer interface {
	Analyze(ctx context.Context, url string, in clients.AnalyzeReq) (*clients.AnalyzeResp, error)
}

// Previews creates and releases preview handles. *preview.Registry
// satisfies it.
type Previews interface {
	Create(name, mime string, data []byte) string
	Revoke(url string) bool
}

type Options struct {
	Analyzer Analyzer
	URL      string // analysis service base URL
	Previews Previews
	Device   capture.Device
	Width    int // capture resolution, 640x480 when unset
	Height   int
	Log      logrus.FieldLogger
}

type Controller struct {
	analyzer Analyzer
	url      string
	previews Previews
	device   capture.Device
	width    int
	height   int
	log      logrus.FieldLogger

	mu       sync.Mutex
	face     *input
	voice    *input
	eeg      string
	gsr      string
	stream   capture.Stream
	opening  bool
	inFlight bool
	result   *clients.AnalyzeResp
	err      *Error
	gen      uint64 // bumped by Reset and Dispose; stale completions are dropped
	disposed bool
}

func New(o Options) *Controller {
	c := &Controller{
		analyzer: o.Analyzer,
		url:      o.URL,
		previews: o.Previews,
		device:   o.Device,
		width:    o.Width,
		height:   o.Height,
		log:      o.Log,
	}
	if c.device == nil {
		c.device = capture.NoDevice{}
	}
	if c.width <= 0 || c.height <= 0 {
		c.width, c.height = 640, 480
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	return c
}

// Endpoint is the analysis URL submissions are sent to.
func (c *Controller) Endpoint() string { return clients.AnalyzeEndpoint(c.url) }

func (c *Controller) SetFaceImage(f File) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	return c.setFaceLocked(f)
}

func (c *Controller) setFaceLocked(f File) error {
	if !strings.HasPrefix(f.MIME, "image/") {
		return c.fail(KindValidation, msgBadImage, nil)
	}
	// a face image and a live webcam session are mutually exclusive
	c.stopStreamLocked()
	c.release(c.face)
	c.face = &input{file: f, preview: c.previews.Create(f.Name, f.MIME, f.Data)}
	c.err = nil
	return nil
}

func (c *Controller) SetVoiceAudio(f File) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if !strings.HasPrefix(f.MIME, "audio/") {
		return c.fail(KindValidation, msgBadAudio, nil)
	}
	c.release(c.voice)
	c.voice = &input{file: f, preview: c.previews.Create(f.Name, f.MIME, f.Data)}
	c.err = nil
	return nil
}

func (c *Controller) ClearFaceImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release(c.face)
	c.face = nil
}

func (c *Controller) ClearVoiceAudio() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release(c.voice)
	c.voice = nil
}

// SetEEG stores the series verbatim; parsing is the service's job.
func (c *Controller) SetEEG(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.disposed {
		c.eeg = text
	}
}

func (c *Controller) SetGSR(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.disposed {
		c.gsr = text
	}
}

// Submit sends every present input to the analysis service in one request
// and records the result or the error. It returns ErrInFlight without
// sending anything while another submission is pending.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrInFlight
	}
	if !c.hasInputLocked() {
		err := c.fail(KindValidation, msgNoInput, nil)
		c.mu.Unlock()
		return err
	}
	req := c.requestLocked()
	gen := c.gen
	c.inFlight = true
	c.result, c.err = nil, nil
	c.mu.Unlock()

	log := c.log.WithFields(logrus.Fields{
		"face":  req.Face != nil,
		"voice": req.Voice != nil,
		"eeg":   req.EEG != "",
		"gsr":   req.GSR != "",
	})
	log.Info("submitting analysis")

	resp, err := c.analyzer.Analyze(ctx, c.url, req)
	if err == nil && resp == nil {
		err = errNoResponse
	}

	var failure *Error
	switch {
	case err != nil:
		failure = &Error{Kind: KindTransport, Message: fmt.Sprintf(msgNetwork, err, c.Endpoint()), Err: err}
		log.WithError(err).Warn("analysis request failed")
	case !resp.OK():
		msg := resp.Message
		if msg == "" {
			msg = msgAnalysisFailed
		}
		failure = &Error{Kind: KindService, Message: msg}
		log.WithField("status", resp.Status).Warn("analysis rejected: " + msg)
	default:
		log.WithFields(logrus.Fields{
			"percentage":   resp.Percentage,
			"stress_level": resp.StressLevel,
		}).Info("analysis complete")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen && !c.disposed {
		if failure != nil {
			c.err = failure
		} else {
			c.result = resp
		}
	} else {
		log.Debug("dropping outcome of a submission overtaken by reset")
	}
	c.inFlight = false

	if failure != nil {
		return failure
	}
	return nil
}

// Reset returns the controller to its initial state, releasing every preview
// handle and any webcam session. A submission still in flight completes but
// its outcome is dropped.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Dispose releases everything the controller holds. It is called once when
// the visit ends and is safe at any point, including mid-submission.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.resetLocked()
	c.disposed = true
	c.log.Debug("controller disposed")
}

func (c *Controller) resetLocked() {
	c.release(c.face)
	c.release(c.voice)
	c.face, c.voice = nil, nil
	c.eeg, c.gsr = "", ""
	c.stopStreamLocked()
	c.result, c.err = nil, nil
	c.gen++
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Face:     c.face.attachment(),
		Voice:    c.voice.attachment(),
		EEG:      c.eeg,
		GSR:      c.gsr,
		InFlight: c.inFlight,
		Result:   c.result,
		Error:    c.err,
	}
	if c.stream != nil {
		st.Capture = CaptureActive
	}
	return st
}

func (c *Controller) hasInputLocked() bool {
	return c.face != nil || c.voice != nil || c.eeg != "" || c.gsr != ""
}

func (c *Controller) requestLocked() clients.AnalyzeReq {
	req := clients.AnalyzeReq{EEG: c.eeg, GSR: c.gsr}
	if c.face != nil {
		req.Face = c.face.file.upload()
	}
	if c.voice != nil {
		req.Voice = c.voice.file.upload()
	}
	return req
}

func (c *Controller) release(in *input) {
	if in != nil && in.preview != "" {
		c.previews.Revoke(in.preview)
	}
}

func (c *Controller) fail(kind Kind, msg string, cause error) *Error {
	c.err = &Error{Kind: kind, Message: msg, Err: cause}
	return c.err
}
