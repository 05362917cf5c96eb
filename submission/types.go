package submission

import (
	"github.com/maastricht-university/stressdash/clients"
)

// File is a user-supplied binary with its declared media type.
type File struct {
	Name string
	MIME string
	Data []byte
}

func (f File) upload() *clients.Upload {
	return &clients.Upload{Name: f.Name, MIME: f.MIME, Data: f.Data}
}

// input is a stored file and the preview handle bound to it.
type input struct {
	file    File
	preview string
}

func (in *input) attachment() *Attachment {
	if in == nil {
		return nil
	}
	return &Attachment{
		Name:       in.file.Name,
		MIME:       in.file.MIME,
		Size:       len(in.file.Data),
		PreviewURL: in.preview,
	}
}

type Attachment struct {
	Name       string `json:"name"`
	MIME       string `json:"mime"`
	Size       int    `json:"size"`
	PreviewURL string `json:"preview_url,omitempty"`
}

type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureActive
)

func (s CaptureState) String() string {
	if s == CaptureActive {
		return "active"
	}
	return "idle"
}

func (s CaptureState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// State is a point-in-time copy of everything the dashboard renders.
type State struct {
	Face     *Attachment          `json:"face,omitempty"`
	Voice    *Attachment          `json:"voice,omitempty"`
	EEG      string               `json:"eeg"`
	GSR      string               `json:"gsr"`
	Capture  CaptureState         `json:"capture"`
	InFlight bool                 `json:"in_flight"`
	Result   *clients.AnalyzeResp `json:"result,omitempty"`
	Error    *Error               `json:"error,omitempty"`
}

// HasInput reports whether a submit would be allowed.
func (s State) HasInput() bool {
	return s.Face != nil || s.Voice != nil || s.EEG != "" || s.GSR != ""
}

// Summary is the rendered breakdown of Result, nil when there is none.
func (s State) Summary() *Summary {
	if s.Result == nil {
		return nil
	}
	sum := Summarize(s.Result)
	return &sum
}
