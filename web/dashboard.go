package web

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/maastricht-university/stressdash/capture"
	"github.com/maastricht-university/stressdash/preview"
	"github.com/maastricht-university/stressdash/submission"
)

type dashboardView struct {
	chrome
	State            submission.State
	Summary          *submission.Summary
	FacePreview      string
	VoicePreview     string
	FaceSize         string
	VoiceSize        string
	CaptureActive    bool
	CaptureAvailable bool
}

type stateResponse struct {
	State    submission.State    `json:"state"`
	Summary  *submission.Summary `json:"summary,omitempty"`
	Endpoint string              `json:"endpoint"`
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	st := ctrl.Snapshot()

	v := dashboardView{
		chrome:           s.chrome("Dashboard", "dashboard"),
		State:            st,
		Summary:          st.Summary(),
		CaptureActive:    st.Capture == submission.CaptureActive,
		CaptureAvailable: !isNoDevice(s.device),
	}
	if st.Face != nil {
		v.FacePreview = preview.Path(st.Face.PreviewURL)
		v.FaceSize = humanize.Bytes(uint64(st.Face.Size))
	}
	if st.Voice != nil {
		v.VoicePreview = preview.Path(st.Voice.PreviewURL)
		v.VoiceSize = humanize.Bytes(uint64(st.Voice.Size))
	}
	s.render(w, "dashboard", v)
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, s.sessions.Acquire(w, r))
}

func (s *Server) writeState(w http.ResponseWriter, ctrl *submission.Controller) {
	st := ctrl.Snapshot()
	JSONResponse(s.log, w, http.StatusOK, stateResponse{State: st, Summary: st.Summary(), Endpoint: ctrl.Endpoint()})
}

// done finishes a dashboard action: JSON state for API callers, otherwise a
// redirect back to the dashboard view.
func (s *Server) done(w http.ResponseWriter, r *http.Request, ctrl *submission.Controller) {
	if wantsJSON(r) {
		s.writeState(w, ctrl)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) uploadFace(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	f, ok := s.readFile(w, r, "face_image")
	if !ok {
		return
	}
	if f != nil {
		// a rejected file is already recorded as the displayed error
		_ = ctrl.SetFaceImage(*f)
	}
	s.done(w, r, ctrl)
}

func (s *Server) uploadVoice(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	f, ok := s.readFile(w, r, "voice_audio")
	if !ok {
		return
	}
	if f != nil {
		_ = ctrl.SetVoiceAudio(*f)
	}
	s.done(w, r, ctrl)
}

func (s *Server) clearFace(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	ctrl.ClearFaceImage()
	s.done(w, r, ctrl)
}

func (s *Server) clearVoice(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	ctrl.ClearVoiceAudio()
	s.done(w, r, ctrl)
}

func (s *Server) signals(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	if !s.storeSeries(w, r, ctrl) {
		return
	}
	s.done(w, r, ctrl)
}

// storeSeries copies eeg_data and gsr_data from the form when present.
func (s *Server) storeSeries(w http.ResponseWriter, r *http.Request, ctrl *submission.Controller) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Uploads.MaxBytes)
	if err := r.ParseForm(); err != nil {
		writeError(s.log, w, http.StatusBadRequest, "Invalid form")
		return false
	}
	if v, ok := r.PostForm["eeg_data"]; ok {
		ctrl.SetEEG(v[0])
	}
	if v, ok := r.PostForm["gsr_data"]; ok {
		ctrl.SetGSR(v[0])
	}
	return true
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	if !s.storeSeries(w, r, ctrl) {
		return
	}
	// Navigating away must not cancel the request; only the client timeout does.
	err := ctrl.Submit(context.WithoutCancel(r.Context()))
	if errors.Is(err, submission.ErrInFlight) {
		s.log.Debug("analyze ignored, submission in flight")
	}
	s.done(w, r, ctrl)
}

func (s *Server) captureStart(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	_ = ctrl.StartCapture(r.Context())
	s.done(w, r, ctrl)
}

func (s *Server) captureFrame(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	_ = ctrl.CaptureFrame()
	s.done(w, r, ctrl)
}

func (s *Server) captureCancel(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	_ = ctrl.CancelCapture()
	s.done(w, r, ctrl)
}

func (s *Server) captureLive(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	b, err := ctrl.LiveFrame()
	if errors.Is(err, submission.ErrCaptureInactive) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.WithError(err).Warn("live frame failed")
		writeError(s.log, w, http.StatusServiceUnavailable, "webcam frame unavailable")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Acquire(w, r)
	ctrl.Reset()
	s.done(w, r, ctrl)
}

func (s *Server) leave(w http.ResponseWriter, r *http.Request) {
	s.sessions.End(r)
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

// readFile pulls one uploaded file out of a multipart form. It returns
// (nil, true) when the field is empty and (nil, false) after answering the
// request with an error itself.
func (s *Server) readFile(w http.ResponseWriter, r *http.Request, field string) (*submission.File, bool) {
	limit := s.cfg.Uploads.MaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(s.log, w, http.StatusRequestEntityTooLarge, "File exceeds the "+humanize.IBytes(uint64(limit))+" upload limit")
			return nil, false
		}
		writeError(s.log, w, http.StatusBadRequest, "Invalid upload")
		return nil, false
	}

	fd, fh, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		writeError(s.log, w, http.StatusBadRequest, "Invalid upload")
		return nil, false
	}
	defer fd.Close()

	data, err := io.ReadAll(fd)
	if err != nil {
		writeError(s.log, w, http.StatusBadRequest, "Invalid upload")
		return nil, false
	}
	return &submission.File{Name: fh.Filename, MIME: fh.Header.Get("Content-Type"), Data: data}, true
}

func isNoDevice(d capture.Device) bool {
	_, ok := d.(capture.NoDevice)
	return ok
}
