package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// --- Multimodal analysis (/api/multimodal/analyze) ---

const (
	analyzePath   = "/api/multimodal/analyze"
	StatusSuccess = "success"
)

// Multipart field names understood by the analysis service.
const (
	FieldFace  = "face_image"
	FieldVoice = "voice_audio"
	FieldEEG   = "eeg_data"
	FieldGSR   = "gsr_data"
)

type Upload struct {
	Name string
	MIME string
	Data []byte
}

// AnalyzeReq carries whichever modalities are present; nil uploads and empty
// series are left out of the request.
type AnalyzeReq struct {
	Face  *Upload
	Voice *Upload
	EEG   string
	GSR   string
}

// Predictions are per-modality stress probabilities; nil when the modality
// was not submitted.
type Predictions struct {
	Facial        *float64 `json:"facial"`
	Voice         *float64 `json:"voice"`
	Physiological *float64 `json:"physiological"`
}

type AnalyzeResp struct {
	Status                string       `json:"status"`
	Message               string       `json:"message,omitempty"`
	Percentage            float64      `json:"percentage"`
	StressLevel           string       `json:"stress_level"`
	PredictedClass        string       `json:"predicted_class"`
	Confidence            float64      `json:"confidence"`
	StressProbability     float64      `json:"stress_probability"`
	NoStressProbability   float64      `json:"no_stress_probability"`
	IndividualPredictions *Predictions `json:"individual_predictions,omitempty"`
}

func (r *AnalyzeResp) OK() bool { return r.Status == StatusSuccess }

// AnalyzeEndpoint is the full URL Analyze posts to for a given base URL.
func AnalyzeEndpoint(url string) string { return strings.TrimRight(url, "/") + analyzePath }

// Analyze posts one combined submission. The service answers with a JSON
// body whatever its HTTP status, so the body is decoded regardless and the
// caller decides on Status; only an undecodable body is an error.
func (h *HTTP) Analyze(ctx context.Context, url string, in AnalyzeReq) (*AnalyzeResp, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	if in.Face != nil {
		if err := writeUpload(w, FieldFace, in.Face); err != nil {
			return nil, err
		}
	}
	if in.Voice != nil {
		if err := writeUpload(w, FieldVoice, in.Voice); err != nil {
			return nil, err
		}
	}
	if in.EEG != "" {
		if err := w.WriteField(FieldEEG, in.EEG); err != nil {
			return nil, err
		}
	}
	if in.GSR != "" {
		if err := w.WriteField(FieldGSR, in.GSR); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, AnalyzeEndpoint(url), &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out AnalyzeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("analyze %s: decode: %w", resp.Status, err)
	}
	return &out, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeUpload is multipart.Writer.CreateFormFile with the upload's own
// content type instead of application/octet-stream.
func writeUpload(w *multipart.Writer, field string, u *Upload) error {
	name := u.Name
	if name == "" {
		name = field
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(field), quoteEscaper.Replace(name)))
	ct := u.MIME
	if ct == "" {
		ct = "application/octet-stream"
	}
	hdr.Set("Content-Type", ct)

	part, err := w.CreatePart(hdr)
	if err != nil {
		return err
	}
	_, err = part.Write(u.Data)
	return err
}
