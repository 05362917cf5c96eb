package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/stressdash/capture"
	"github.com/maastricht-university/stressdash/config"
	"github.com/maastricht-university/stressdash/preview"
	"github.com/maastricht-university/stressdash/submission"
)

//go:embed templates/*.html content/*.md
var assets embed.FS

type Deps struct {
	Config   *config.Root
	Analyzer submission.Analyzer
	Device   capture.Device
	Log      logrus.FieldLogger
}

type Server struct {
	cfg      *config.Root
	device   capture.Device
	log      logrus.FieldLogger
	previews *preview.Registry
	sessions *Sessions
	pages    map[string]page
	tmpl     *template.Template
}

func NewServer(d Deps) (*Server, error) {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Device == nil {
		d.Device = capture.NoDevice{}
	}
	tmpl, err := template.ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	pages, err := loadPages(assets)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      d.Config,
		device:   d.Device,
		log:      d.Log,
		previews: preview.NewRegistry(),
		pages:    pages,
		tmpl:     tmpl,
	}
	s.sessions = NewSessions(config.DurSeconds(d.Config.Server.SessionTTL), func() *submission.Controller {
		return submission.New(submission.Options{
			Analyzer: d.Analyzer,
			URL:      d.Config.Services.Analysis.URL,
			Previews: s.previews,
			Device:   s.device,
			Width:    d.Config.Capture.Width,
			Height:   d.Config.Capture.Height,
			Log:      d.Log,
		})
	}, d.Log)
	return s, nil
}

func (s *Server) Sessions() *Sessions { return s.sessions }

// Close ends every visit.
func (s *Server) Close() { s.sessions.Close() }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Marketing pages
	mux.HandleFunc("GET /{$}", s.page("landing"))
	mux.HandleFunc("GET /about", s.page("about"))
	mux.HandleFunc("GET /features", s.page("features"))
	mux.HandleFunc("GET /impact", s.page("impact"))

	// Dashboard
	mux.HandleFunc("GET /dashboard", s.dashboard)
	mux.HandleFunc("GET /api/state", s.state)
	mux.HandleFunc("POST /dashboard/face", s.uploadFace)
	mux.HandleFunc("POST /dashboard/face/clear", s.clearFace)
	mux.HandleFunc("POST /dashboard/voice", s.uploadVoice)
	mux.HandleFunc("POST /dashboard/voice/clear", s.clearVoice)
	mux.HandleFunc("POST /dashboard/signals", s.signals)
	mux.HandleFunc("POST /dashboard/capture/start", s.captureStart)
	mux.HandleFunc("POST /dashboard/capture/frame", s.captureFrame)
	mux.HandleFunc("POST /dashboard/capture/cancel", s.captureCancel)
	mux.HandleFunc("GET /dashboard/capture/live", s.captureLive)
	mux.HandleFunc("POST /dashboard/analyze", s.analyze)
	mux.HandleFunc("POST /dashboard/reset", s.reset)
	mux.HandleFunc("POST /dashboard/leave", s.leave)

	mux.Handle("GET /preview/{id}", s.previews.Handler())

	return Recover(s.log, WithLogging(s.log, mux))
}

type chrome struct {
	Brand  string
	Title  string
	Active string
}

func (s *Server) chrome(title, active string) chrome {
	return chrome{Brand: "StressDetect", Title: title, Active: active}
}

type pageView struct {
	chrome
	Page page
}

// page renders a marketing page. Arriving here ends any dashboard visit the
// browser had open.
func (s *Server) page(slug string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.pages[slug]
		if !ok {
			http.NotFound(w, r)
			return
		}
		s.sessions.End(r)
		s.render(w, "page", pageView{chrome: s.chrome(p.Title, slug), Page: p})
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.WithError(err).WithField("template", name).Error("render failed")
	}
}
