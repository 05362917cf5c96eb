// Package preview holds revocable display handles for files the user picked
// but has not submitted yet. A handle is a "blob:<uuid>" URL; the bytes stay
// reachable through Handler until the handle is revoked.
package preview

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const Scheme = "blob:"

type Blob struct {
	Name    string
	MIME    string
	Data    []byte
	Created time.Time
}

type Registry struct {
	mu      sync.RWMutex
	blobs   map[string]Blob
	created int
	revoked int
}

func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string]Blob)}
}

// Create registers data and returns its handle.
func (r *Registry) Create(name, mime string, data []byte) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.blobs[id] = Blob{Name: name, MIME: mime, Data: data, Created: time.Now()}
	r.created++
	r.mu.Unlock()
	return Scheme + id
}

// Revoke releases a handle. It reports false for unknown or already revoked
// handles, which are otherwise ignored.
func (r *Registry) Revoke(url string) bool {
	id := ID(url)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[id]; !ok {
		return false
	}
	delete(r.blobs, id)
	r.revoked++
	return true
}

func (r *Registry) Get(id string) (Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[id]
	return b, ok
}

func (r *Registry) Outstanding() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// Stats returns how many handles were ever created and revoked.
func (r *Registry) Stats() (created, revoked int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.created, r.revoked
}

func ID(url string) string { return strings.TrimPrefix(url, Scheme) }

// Path is where Handler serves a handle when mounted at /preview/{id}.
func Path(url string) string {
	if url == "" {
		return ""
	}
	return "/preview/" + ID(url)
}

// Handler serves GET /preview/{id}.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, ok := r.Get(req.PathValue("id"))
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", b.MIME)
		w.Header().Set("Cache-Control", "no-store")
		http.ServeContent(w, req, b.Name, b.Created, bytes.NewReader(b.Data))
	})
}
