package web

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// page is a marketing page rendered once from embedded markdown. The first
// "# " heading becomes the title.
type page struct {
	Slug  string
	Title string
	Body  template.HTML
}

func loadPages(fsys fs.FS) (map[string]page, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	files, err := fs.Glob(fsys, "content/*.md")
	if err != nil {
		return nil, err
	}
	out := make(map[string]page, len(files))
	for _, f := range files {
		src, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := md.Convert(src, &buf); err != nil {
			return nil, fmt.Errorf("render %s: %w", f, err)
		}
		slug := strings.TrimSuffix(path.Base(f), ".md")
		out[slug] = page{Slug: slug, Title: title(src, slug), Body: template.HTML(buf.String())}
	}
	return out, nil
}

func title(src []byte, fallback string) string {
	for _, line := range strings.Split(string(src), "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return t
		}
	}
	return fallback
}
