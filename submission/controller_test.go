package submission

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/maastricht-university/stressdash/capture"
	"github.com/maastricht-university/stressdash/clients"
	"github.com/maastricht-university/stressdash/preview"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// FAKES
// =============================================================================

type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   int
	last    clients.AnalyzeReq
	resp    *clients.AnalyzeResp
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string, in clients.AnalyzeReq) (*clients.AnalyzeResp, error) {
	f.mu.Lock()
	f.calls++
	f.last = in
	entered, release := f.entered, f.release
	resp, err := f.resp, f.err
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return resp, err
}

func (f *fakeAnalyzer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStream struct {
	mu       sync.Mutex
	stops    int
	frameErr error
}

func (s *fakeStream) Frame() (image.Image, error) {
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	return image.NewRGBA(image.Rect(0, 0, 640, 480)), nil
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

func (s *fakeStream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeDevice struct {
	openErr error
	opened  []*fakeStream
	w, h    int
	next    *fakeStream
}

func (d *fakeDevice) Open(_ context.Context, w, h int) (capture.Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.w, d.h = w, h
	s := d.next
	if s == nil {
		s = &fakeStream{}
	}
	d.next = nil
	d.opened = append(d.opened, s)
	return s, nil
}

func successResp() *clients.AnalyzeResp {
	phys := 0.42
	return &clients.AnalyzeResp{
		Status:              "success",
		Percentage:          42.0,
		StressLevel:         "Moderate",
		PredictedClass:      "stressed",
		Confidence:          0.8,
		StressProbability:   0.5,
		NoStressProbability: 0.5,
		IndividualPredictions: &clients.Predictions{
			Physiological: &phys,
		},
	}
}

type harness struct {
	c        *Controller
	analyzer *fakeAnalyzer
	previews *preview.Registry
	device   *fakeDevice
}

func newHarness() *harness {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := &harness{
		analyzer: &fakeAnalyzer{resp: successResp()},
		previews: preview.NewRegistry(),
		device:   &fakeDevice{},
	}
	h.c = New(Options{
		Analyzer: h.analyzer,
		URL:      "http://analysis.test:5000",
		Previews: h.previews,
		Device:   h.device,
		Log:      logger,
	})
	return h
}

func png(name string) File  { return File{Name: name, MIME: "image/png", Data: []byte(name)} }
func wav(name string) File  { return File{Name: name, MIME: "audio/wav", Data: []byte(name)} }
func text(name string) File { return File{Name: name, MIME: "text/plain", Data: []byte(name)} }

// =============================================================================
// INPUTS AND PREVIEWS
// =============================================================================

func TestSetFaceImage_RejectsNonImage(t *testing.T) {
	for _, mime := range []string{"", "text/plain", "audio/wav", "application/octet-stream", "IMAGE/png", "video/mp4"} {
		t.Run(mime, func(t *testing.T) {
			h := newHarness()
			err := h.c.SetFaceImage(File{Name: "x", MIME: mime, Data: []byte("x")})

			assert.True(t, IsKind(err, KindValidation))
			st := h.c.Snapshot()
			assert.Nil(t, st.Face)
			require.NotNil(t, st.Error)
			assert.Equal(t, msgBadImage, st.Error.Message)
			created, _ := h.previews.Stats()
			assert.Zero(t, created, "no preview for a rejected file")
		})
	}
}

func TestSetVoiceAudio_RejectsNonAudio(t *testing.T) {
	h := newHarness()
	err := h.c.SetVoiceAudio(png("face.png"))

	assert.True(t, IsKind(err, KindValidation))
	assert.Equal(t, msgBadAudio, err.Error())
	assert.Nil(t, h.c.Snapshot().Voice)
	assert.Zero(t, h.previews.Outstanding())
}

func TestSetFaceImage_ReplacementReleasesPreview(t *testing.T) {
	h := newHarness()
	for i, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		require.NoError(t, h.c.SetFaceImage(png(name)))
		created, revoked := h.previews.Stats()
		assert.Equal(t, i+1, created)
		assert.Equal(t, created-1, revoked, "exactly one preview outstanding")
		assert.Equal(t, 1, h.previews.Outstanding())
	}

	st := h.c.Snapshot()
	require.NotNil(t, st.Face)
	assert.Equal(t, "d.png", st.Face.Name)
	_, ok := h.previews.Get(preview.ID(st.Face.PreviewURL))
	assert.True(t, ok, "current preview is live")

	h.c.ClearFaceImage()
	h.c.ClearFaceImage()
	created, revoked := h.previews.Stats()
	assert.Equal(t, created, revoked)
	assert.Nil(t, h.c.Snapshot().Face)
}

func TestSetFaceImage_RejectionKeepsCurrentImage(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.c.SetFaceImage(png("ok.png")))
	require.Error(t, h.c.SetFaceImage(text("notes.txt")))

	st := h.c.Snapshot()
	require.NotNil(t, st.Face)
	assert.Equal(t, "ok.png", st.Face.Name)
	assert.Equal(t, 1, h.previews.Outstanding())

	// a good file clears the displayed error
	require.NoError(t, h.c.SetFaceImage(png("better.png")))
	assert.Nil(t, h.c.Snapshot().Error)
}

func TestSetVoiceAudio_ReplaceAndClear(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.c.SetVoiceAudio(wav("a.wav")))
	require.NoError(t, h.c.SetVoiceAudio(File{Name: "b.mp3", MIME: "audio/mpeg", Data: []byte("b")}))

	st := h.c.Snapshot()
	require.NotNil(t, st.Voice)
	assert.Equal(t, "audio/mpeg", st.Voice.MIME)
	assert.Equal(t, 1, st.Voice.Size)
	assert.Equal(t, 1, h.previews.Outstanding())

	h.c.ClearVoiceAudio()
	assert.Zero(t, h.previews.Outstanding())
}

func TestSeriesStoredVerbatim(t *testing.T) {
	h := newHarness()
	h.c.SetEEG(" 0.5, abc ,,")
	h.c.SetGSR("\n1\n")

	st := h.c.Snapshot()
	assert.Equal(t, " 0.5, abc ,,", st.EEG)
	assert.Equal(t, "\n1\n", st.GSR)
	assert.Nil(t, st.Error)
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_NoInput(t *testing.T) {
	h := newHarness()
	err := h.c.Submit(context.Background())

	assert.True(t, IsKind(err, KindValidation))
	assert.Equal(t, msgNoInput, err.Error())
	assert.Zero(t, h.analyzer.Calls())
	assert.False(t, h.c.Snapshot().InFlight)
}

func TestSubmit_Scenario_EEGOnly(t *testing.T) {
	h := newHarness()
	h.c.SetEEG("0.5,0.7,0.6")

	require.NoError(t, h.c.Submit(context.Background()))
	assert.Equal(t, 1, h.analyzer.Calls())
	assert.Equal(t, clients.AnalyzeReq{EEG: "0.5,0.7,0.6"}, h.analyzer.last)

	st := h.c.Snapshot()
	assert.False(t, st.InFlight)
	assert.Nil(t, st.Error)
	sum := st.Summary()
	require.NotNil(t, sum)
	assert.Equal(t, "42.0%", sum.Percentage)
	assert.Equal(t, TierModerate, sum.Tier)
	assert.Equal(t, RecommendModerate, sum.Recommendation)
	assert.Equal(t, "Moderate Stress - stressed", sum.Headline)
	require.Len(t, sum.Panels, 1)
	assert.Equal(t, Panel{Modality: "physiological", Label: "Physiological", Value: "42.0%"}, sum.Panels[0])
}

func TestSubmit_SendsEveryPresentInput(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.c.SetFaceImage(png("face.png")))
	require.NoError(t, h.c.SetVoiceAudio(wav("voice.wav")))
	h.c.SetGSR("1,2,3")

	require.NoError(t, h.c.Submit(context.Background()))
	req := h.analyzer.last
	require.NotNil(t, req.Face)
	require.NotNil(t, req.Voice)
	assert.Equal(t, "image/png", req.Face.MIME)
	assert.Equal(t, "voice.wav", req.Voice.Name)
	assert.Empty(t, req.EEG)
	assert.Equal(t, "1,2,3", req.GSR)
}

func TestSubmit_ServiceFailure(t *testing.T) {
	tests := []struct {
		name string
		resp *clients.AnalyzeResp
		want string
	}{
		{"service message", &clients.AnalyzeResp{Status: "error", Message: "No face detected"}, "No face detected"},
		{"fallback", &clients.AnalyzeResp{Status: "error"}, msgAnalysisFailed},
		{"unknown status", &clients.AnalyzeResp{Status: "pending"}, msgAnalysisFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.analyzer.resp = tt.resp
			h.c.SetEEG("1")

			err := h.c.Submit(context.Background())
			assert.True(t, IsKind(err, KindService))

			st := h.c.Snapshot()
			assert.Nil(t, st.Result)
			require.NotNil(t, st.Error)
			assert.Equal(t, tt.want, st.Error.Message)
			assert.False(t, st.InFlight)
		})
	}
}

func TestSubmit_TransportFailureNamesEndpoint(t *testing.T) {
	h := newHarness()
	h.analyzer.resp = nil
	h.analyzer.err = errors.New("dial tcp: connection refused")
	h.c.SetGSR("1")

	err := h.c.Submit(context.Background())
	assert.True(t, IsKind(err, KindTransport))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "http://analysis.test:5000/api/multimodal/analyze")

	st := h.c.Snapshot()
	assert.False(t, st.InFlight)
	assert.Nil(t, st.Result)
}

func TestSubmit_NilResponseIsTransportFailure(t *testing.T) {
	h := newHarness()
	h.analyzer.resp = nil
	h.c.SetEEG("1")

	err := h.c.Submit(context.Background())
	assert.True(t, IsKind(err, KindTransport))
	assert.ErrorIs(t, err, errNoResponse)

	st := h.c.Snapshot()
	assert.False(t, st.InFlight)
	assert.Nil(t, st.Result)
	require.NotNil(t, st.Error)
	assert.Equal(t, err.Error(), st.Error.Message)
}

func TestSubmit_ReplacesResultAndClearsError(t *testing.T) {
	h := newHarness()
	h.c.SetEEG("1")
	h.analyzer.resp = &clients.AnalyzeResp{Status: "error", Message: "boom"}
	require.Error(t, h.c.Submit(context.Background()))

	h.analyzer.resp = successResp()
	require.NoError(t, h.c.Submit(context.Background()))
	st := h.c.Snapshot()
	assert.Nil(t, st.Error)
	require.NotNil(t, st.Result)

	h.analyzer.resp = &clients.AnalyzeResp{Status: "error", Message: "again"}
	require.Error(t, h.c.Submit(context.Background()))
	st = h.c.Snapshot()
	assert.Nil(t, st.Result, "result and error are never both fresh")
	assert.Equal(t, "again", st.Error.Message)
}

// startBlocked launches a submit that parks inside the analyzer and returns a
// function that lets it finish and waits for it.
func startBlocked(t *testing.T, h *harness) func() error {
	t.Helper()
	h.analyzer.entered = make(chan struct{})
	h.analyzer.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.c.Submit(context.Background()) }()
	<-h.analyzer.entered

	return func() error {
		close(h.analyzer.release)
		return <-done
	}
}

func TestSubmit_WhileInFlightIsRejected(t *testing.T) {
	h := newHarness()
	h.c.SetEEG("1")
	finish := startBlocked(t, h)

	assert.True(t, h.c.Snapshot().InFlight)
	assert.ErrorIs(t, h.c.Submit(context.Background()), ErrInFlight)
	assert.Equal(t, 1, h.analyzer.Calls())

	require.NoError(t, finish())
	st := h.c.Snapshot()
	assert.False(t, st.InFlight)
	assert.NotNil(t, st.Result)
}

func TestSubmit_ResetDuringFlightDropsOutcome(t *testing.T) {
	h := newHarness()
	h.c.SetEEG("1")
	finish := startBlocked(t, h)

	h.c.Reset()
	// the request is still out, so a new submit stays blocked until it lands
	assert.True(t, h.c.Snapshot().InFlight)
	assert.ErrorIs(t, h.c.Submit(context.Background()), ErrInFlight)
	require.NoError(t, finish())

	st := h.c.Snapshot()
	assert.Nil(t, st.Result)
	assert.False(t, st.InFlight)
	assert.Empty(t, st.EEG)
}

// =============================================================================
// CAPTURE
// =============================================================================

func TestStartCapture_DeviceError(t *testing.T) {
	h := newHarness()
	h.device.openErr = errors.New("Permission denied")

	err := h.c.StartCapture(context.Background())
	assert.True(t, IsKind(err, KindDevice))
	assert.Equal(t, "Could not access webcam: Permission denied", err.Error())

	st := h.c.Snapshot()
	assert.Equal(t, CaptureIdle, st.Capture)
	assert.Equal(t, err.Error(), st.Error.Message)
}

func TestCapture_FrameBecomesFaceImage(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.c.StartCapture(context.Background()))
	require.NoError(t, h.c.StartCapture(context.Background()), "second start is a no-op")
	require.Len(t, h.device.opened, 1)
	assert.Equal(t, 640, h.device.w)
	assert.Equal(t, 480, h.device.h)
	assert.Equal(t, CaptureActive, h.c.Snapshot().Capture)

	live, err := h.c.LiveFrame()
	require.NoError(t, err)
	assert.NotEmpty(t, live)

	require.NoError(t, h.c.CaptureFrame())
	st := h.c.Snapshot()
	assert.Equal(t, CaptureIdle, st.Capture)
	require.NotNil(t, st.Face)
	assert.Equal(t, "webcam-capture.jpg", st.Face.Name)
	assert.Equal(t, "image/jpeg", st.Face.MIME)
	assert.NotEmpty(t, st.Face.PreviewURL)
	assert.Equal(t, 1, h.device.opened[0].Stops())

	assert.ErrorIs(t, h.c.CaptureFrame(), ErrCaptureInactive)
	assert.ErrorIs(t, h.c.CancelCapture(), ErrCaptureInactive)
	_, err = h.c.LiveFrame()
	assert.ErrorIs(t, err, ErrCaptureInactive)
}

func TestCapture_FrameErrorStillReleasesDevice(t *testing.T) {
	h := newHarness()
	h.device.next = &fakeStream{frameErr: errors.New("frame dropped")}
	require.NoError(t, h.c.StartCapture(context.Background()))

	err := h.c.CaptureFrame()
	assert.True(t, IsKind(err, KindDevice))
	assert.Equal(t, 1, h.device.opened[0].Stops())

	st := h.c.Snapshot()
	assert.Equal(t, CaptureIdle, st.Capture)
	assert.Nil(t, st.Face)
}

func TestCapture_Cancel(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.c.StartCapture(context.Background()))
	require.NoError(t, h.c.CancelCapture())

	st := h.c.Snapshot()
	assert.Equal(t, CaptureIdle, st.Capture)
	assert.Nil(t, st.Face)
	assert.Equal(t, 1, h.device.opened[0].Stops())
	assert.Zero(t, h.previews.Outstanding())
}

func TestCapture_ExclusiveWithFaceImage(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.c.SetFaceImage(png("face.png")))

	err := h.c.StartCapture(context.Background())
	assert.True(t, IsKind(err, KindValidation))
	assert.Empty(t, h.device.opened)

	h.c.ClearFaceImage()
	require.NoError(t, h.c.StartCapture(context.Background()))

	// uploading while the webcam runs ends the session
	require.NoError(t, h.c.SetFaceImage(png("upload.png")))
	assert.Equal(t, CaptureIdle, h.c.Snapshot().Capture)
	assert.Equal(t, 1, h.device.opened[0].Stops())
}

// =============================================================================
// RESET AND DISPOSE
// =============================================================================

func TestReset_ReturnsToFreshState(t *testing.T) {
	h := newHarness()
	fresh := New(Options{Previews: preview.NewRegistry()}).Snapshot()

	require.NoError(t, h.c.SetFaceImage(png("a.png")))
	require.NoError(t, h.c.SetVoiceAudio(wav("a.wav")))
	h.c.SetEEG("1,2")
	h.c.SetGSR("3,4")
	require.NoError(t, h.c.Submit(context.Background()))
	_ = h.c.SetVoiceAudio(text("bad.txt"))
	h.c.ClearFaceImage()
	require.NoError(t, h.c.StartCapture(context.Background()))

	h.c.Reset()
	if diff := cmp.Diff(fresh, h.c.Snapshot()); diff != "" {
		t.Errorf("state after reset differs from fresh (-want +got):\n%s", diff)
	}
	assert.Zero(t, h.previews.Outstanding())
	assert.Equal(t, 1, h.device.opened[0].Stops())

	h.c.Reset()
	if diff := cmp.Diff(fresh, h.c.Snapshot()); diff != "" {
		t.Errorf("reset is not idempotent (-want +got):\n%s", diff)
	}
	created, revoked := h.previews.Stats()
	assert.Equal(t, created, revoked)
}

func TestDispose_BeforeAnything(t *testing.T) {
	h := newHarness()
	h.c.Dispose()
	h.c.Dispose()

	assert.ErrorIs(t, h.c.SetFaceImage(png("a.png")), ErrDisposed)
	assert.ErrorIs(t, h.c.Submit(context.Background()), ErrDisposed)
	assert.ErrorIs(t, h.c.StartCapture(context.Background()), ErrDisposed)
	assert.Zero(t, h.previews.Outstanding())
}

func TestDispose_DuringFlight(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.c.SetFaceImage(png("a.png")))
	finish := startBlocked(t, h)

	h.c.Dispose()
	assert.Zero(t, h.previews.Outstanding())
	require.NoError(t, finish())

	st := h.c.Snapshot()
	assert.Nil(t, st.Result)
	assert.False(t, st.InFlight)
}

func TestDispose_AfterFlightReleasesDevice(t *testing.T) {
	h := newHarness()
	h.c.SetEEG("1")
	require.NoError(t, h.c.Submit(context.Background()))
	require.NoError(t, h.c.StartCapture(context.Background()))
	require.NoError(t, h.c.SetVoiceAudio(wav("a.wav")))

	h.c.Dispose()
	assert.Equal(t, 1, h.device.opened[0].Stops())
	assert.Zero(t, h.previews.Outstanding())
	assert.Equal(t, CaptureIdle, h.c.Snapshot().Capture)
}
