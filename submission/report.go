package submission

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/maastricht-university/stressdash/clients"
)

// Report is what `stressdash analyze --report` writes next to its console
// output: the inputs that were sent, the raw service answer and its summary.
type Report struct {
	ReportID    string               `json:"report_id"`
	Endpoint    string               `json:"endpoint"`
	GeneratedAt time.Time            `json:"generated_at"`
	Face        *Attachment          `json:"face,omitempty"`
	Voice       *Attachment          `json:"voice,omitempty"`
	EEG         string               `json:"eeg_data,omitempty"`
	GSR         string               `json:"gsr_data,omitempty"`
	Result      *clients.AnalyzeResp `json:"result"`
	Summary     Summary              `json:"summary"`
}

func mkReportDir(outputsRoot string) (string, string, error) {
	ts := time.Now().Format("20060102-150405")
	rid := "report_" + ts
	dir := filepath.Join(outputsRoot, rid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return rid, dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteReport exports a finished submission under outputsRoot and returns the
// path of the written result.json.
func WriteReport(outputsRoot, endpoint string, st State) (string, error) {
	if st.Result == nil {
		return "", errors.New("no analysis result to report")
	}
	rid, dir, err := mkReportDir(outputsRoot)
	if err != nil {
		return "", err
	}

	strip := func(a *Attachment) *Attachment {
		if a == nil {
			return nil
		}
		cp := *a
		cp.PreviewURL = "" // handles die with the process
		return &cp
	}
	rep := Report{
		ReportID:    rid,
		Endpoint:    endpoint,
		GeneratedAt: time.Now(),
		Face:        strip(st.Face),
		Voice:       strip(st.Voice),
		EEG:         st.EEG,
		GSR:         st.GSR,
		Result:      st.Result,
		Summary:     Summarize(st.Result),
	}
	path := filepath.Join(dir, "result.json")
	if err := writeJSON(path, rep); err != nil {
		return "", err
	}
	return path, nil
}
