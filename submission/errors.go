package submission

import (
	"errors"
	"fmt"
)

// Kind classifies a displayed error.
type Kind int

const (
	KindValidation Kind = iota + 1 // bad media type, nothing to submit
	KindDevice                     // webcam unavailable or denied
	KindService                    // analysis service answered with a failure
	KindTransport                  // analysis service unreachable or unreadable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDevice:
		return "device"
	case KindService:
		return "service"
	case KindTransport:
		return "transport"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Error is the user-facing message the dashboard shows. It is returned from
// the failing operation and kept in State until the next submit or reset.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// Control-flow errors. They are returned to the caller but never displayed
// and leave State untouched.
var (
	ErrInFlight        = errors.New("submission already in progress")
	ErrCaptureInactive = errors.New("no active capture session")
	ErrDisposed        = errors.New("controller disposed")
)

// errNoResponse stands in for an Analyzer that returned neither a response
// nor an error.
var errNoResponse = errors.New("empty response from analysis service")

const (
	msgBadImage       = "Please upload a valid image file (JPG, JPEG, PNG)"
	msgBadAudio       = "Please upload a valid audio file (WAV, MP3)"
	msgNoInput        = "Please provide at least one input (image, audio, EEG, or GSR data)"
	msgFaceSet        = "Remove the current face image before using the webcam"
	msgNoWebcam       = "Could not access webcam: %v"
	msgCaptureFailed  = "Could not capture webcam frame: %v"
	msgAnalysisFailed = "Analysis failed"
	msgNetwork        = "Network error: %v. Is the analysis service running at %s?"
)
