package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/maastricht-university/stressdash/capture"
	"github.com/maastricht-university/stressdash/preview"
	"github.com/maastricht-university/stressdash/submission"
)

var analyzeOpts struct {
	face, voice string
	eeg, gsr    string
	webcam      bool
	report      bool
	asJSON      bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Submit one multimodal analysis from the command line",
	Long: `Sends any combination of a face image, a voice recording and EEG/GSR series
to the analysis service and prints the stress breakdown.

EEG and GSR accept the series text directly or @path to read it from a file.

Example:
  stressdash analyze --eeg 0.5,0.7,0.6 --face me.jpg --report`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeOpts.face, "face", "", "face image file (JPG, PNG)")
	f.StringVar(&analyzeOpts.voice, "voice", "", "voice recording (WAV, MP3)")
	f.StringVar(&analyzeOpts.eeg, "eeg", "", "EEG series, or @file")
	f.StringVar(&analyzeOpts.gsr, "gsr", "", "GSR series, or @file")
	f.BoolVar(&analyzeOpts.webcam, "webcam", false, "grab the face image from capture.source")
	f.BoolVar(&analyzeOpts.report, "report", false, "write a report under paths.outputs")
	f.BoolVar(&analyzeOpts.asJSON, "json", false, "print the raw state as JSON")
	f.String("outputs", "", "report directory root")
	_ = env.BindPFlag("paths.outputs", f.Lookup("outputs"))
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	ctrl := submission.New(submission.Options{
		Analyzer: newClient(),
		URL:      conf.Services.Analysis.URL,
		Previews: preview.NewRegistry(),
		Device:   capture.FromSource(conf.Capture.Source),
		Width:    conf.Capture.Width,
		Height:   conf.Capture.Height,
		Log:      log,
	})
	defer ctrl.Dispose()

	if analyzeOpts.face != "" {
		f, err := readUpload(analyzeOpts.face)
		if err != nil {
			return err
		}
		if err := ctrl.SetFaceImage(*f); err != nil {
			return err
		}
	}
	if analyzeOpts.webcam {
		if err := ctrl.StartCapture(ctx); err != nil {
			return err
		}
		if err := ctrl.CaptureFrame(); err != nil {
			return err
		}
	}
	if analyzeOpts.voice != "" {
		f, err := readUpload(analyzeOpts.voice)
		if err != nil {
			return err
		}
		if err := ctrl.SetVoiceAudio(*f); err != nil {
			return err
		}
	}
	for _, s := range []struct {
		arg string
		set func(string)
	}{
		{analyzeOpts.eeg, ctrl.SetEEG},
		{analyzeOpts.gsr, ctrl.SetGSR},
	} {
		text, err := seriesArg(s.arg)
		if err != nil {
			return err
		}
		s.set(text)
	}

	if err := ctrl.Submit(ctx); err != nil {
		return err
	}
	st := ctrl.Snapshot()

	out := cmd.OutOrStdout()
	if analyzeOpts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			return err
		}
	} else {
		printSummary(out, st)
	}

	if analyzeOpts.report {
		path, err := submission.WriteReport(conf.Paths.Outputs, ctrl.Endpoint(), st)
		if err != nil {
			return err
		}
		log.WithField("path", path).Info("report written")
	}
	return nil
}

// readUpload loads a file and guesses its media type from the extension,
// falling back to content sniffing.
func readUpload(path string) (*submission.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mt == "" {
		mt = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	log.WithField("file", path).Debugf("%s, %s", mt, humanize.Bytes(uint64(len(data))))
	return &submission.File{Name: filepath.Base(path), MIME: mt, Data: data}, nil
}

func seriesArg(arg string) (string, error) {
	p, ok := strings.CutPrefix(arg, "@")
	if !ok {
		return arg, nil
	}
	if p == "" {
		return "", errors.New("empty @ path")
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func printSummary(w io.Writer, st submission.State) {
	sum := st.Summary()
	if sum == nil {
		return
	}
	fmt.Fprintf(w, "%s  %s (%s)\n", sum.Percentage, sum.Headline, sum.Tier)
	for _, s := range sum.Stats {
		fmt.Fprintf(w, "  %-22s %s\n", s.Label+":", s.Value)
	}
	for _, p := range sum.Panels {
		fmt.Fprintf(w, "  %-22s %s\n", p.Label+":", p.Value)
	}
	fmt.Fprintln(w, sum.Recommendation)
}
