package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. STRESSDASH_SERVICES_ANALYSIS_URL.
const EnvPrefix = "STRESSDASH"

type Service struct {
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout"` // sec
}
type Services struct {
	Analysis Service `yaml:"analysis"`
}
type Server struct {
	Addr          string `yaml:"addr"`
	SessionTTL    int    `yaml:"session_ttl"`    // sec
	SweepInterval int    `yaml:"sweep_interval"` // sec
}
type Capture struct {
	Source string `yaml:"source"` // image file or directory of frames; empty disables the webcam
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}
type Uploads struct {
	MaxBytes int64 `yaml:"max_bytes"`
}
type Root struct {
	Dashboard struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		LogLvl  string `yaml:"log_level"`
	} `yaml:"dashboard"`
	Server   Server   `yaml:"server"`
	Services Services `yaml:"services"`
	Capture  Capture  `yaml:"capture"`
	Uploads  Uploads  `yaml:"uploads"`
	Paths    struct {
		Outputs string `yaml:"outputs"`
	} `yaml:"paths"`
}

// Default returns the configuration used when no file is found.
func Default() *Root {
	var r Root
	r.Dashboard.Name = "stressdash"
	r.Dashboard.Version = "0.1.0"
	r.Dashboard.LogLvl = "info"
	r.Server = Server{Addr: ":3000", SessionTTL: 1800, SweepInterval: 60}
	r.Services.Analysis = Service{URL: "http://localhost:5000", Timeout: 60}
	r.Capture = Capture{Width: 640, Height: 480}
	r.Uploads.MaxBytes = 16 << 20
	r.Paths.Outputs = "outputs"
	return &r
}

// Load decodes the YAML file at path over Default. With an empty path it
// tries config/<CONFIG_ENV>/config.yaml and falls back to defaults when
// nothing is there.
func Load(path string) (*Root, error) {
	if path != "" {
		return loadFile(path)
	}
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	guess := []string{
		filepath.Join("config", env, "config.yaml"),
		filepath.Join("config.yaml"),
	}
	for _, p := range guess {
		cfg, err := loadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return Default(), nil
}

func loadFile(path string) (*Root, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// NewViper returns a viper instance reading STRESSDASH_* environment
// variables. Callers bind their cobra flags to it before Overlay.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Overlay copies every key set in v (environment or a changed flag) onto r.
func (r *Root) Overlay(v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	str("dashboard.log_level", &r.Dashboard.LogLvl)
	str("server.addr", &r.Server.Addr)
	num("server.session_ttl", &r.Server.SessionTTL)
	num("server.sweep_interval", &r.Server.SweepInterval)
	str("services.analysis.url", &r.Services.Analysis.URL)
	num("services.analysis.timeout", &r.Services.Analysis.Timeout)
	str("capture.source", &r.Capture.Source)
	num("capture.width", &r.Capture.Width)
	num("capture.height", &r.Capture.Height)
	if v.IsSet("uploads.max_bytes") {
		r.Uploads.MaxBytes = v.GetInt64("uploads.max_bytes")
	}
	str("paths.outputs", &r.Paths.Outputs)
}

func (r *Root) Validate() error {
	u, err := url.Parse(r.Services.Analysis.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("services.analysis.url %q is not an absolute URL", r.Services.Analysis.URL)
	}
	if r.Capture.Width <= 0 || r.Capture.Height <= 0 {
		return fmt.Errorf("capture resolution %dx%d is invalid", r.Capture.Width, r.Capture.Height)
	}
	if r.Uploads.MaxBytes <= 0 {
		return errors.New("uploads.max_bytes must be positive")
	}
	if r.Server.SessionTTL <= 0 || r.Server.SweepInterval <= 0 {
		return errors.New("server.session_ttl and server.sweep_interval must be positive")
	}
	return nil
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
