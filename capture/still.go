package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var frameExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
}

// StillDevice is a virtual camera over an image file or a directory of
// frames. Each Frame call advances to the next still (in name order, looping)
// scaled to the resolution the stream was opened with.
type StillDevice struct {
	Path string
}

func (d *StillDevice) Open(ctx context.Context, width, height int) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid resolution %dx%d", width, height)
	}
	files, err := d.frames()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", ErrNoDevice, d.Path)
	}
	return &stillStream{files: files, w: width, h: height}, nil
}

func (d *StillDevice) frames() ([]string, error) {
	fi, err := os.Stat(d.Path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{d.Path}, nil
	}
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(d.Path, e.Name()))
	}
	return out, nil
}

type stillStream struct {
	mu      sync.Mutex
	files   []string
	next    int
	w, h    int
	stopped bool
}

func (s *stillStream) Frame() (image.Image, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	path := s.files[s.next%len(s.files)]
	s.next++
	s.mu.Unlock()

	src, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

func (s *stillStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
