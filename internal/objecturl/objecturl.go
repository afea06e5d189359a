// Package objecturl hands out ephemeral local references to in-memory
// binary data. A URL stays resolvable until it is revoked; owners must revoke
// what they create.
package objecturl

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiroq/meetaudio/internal/diaglog"
)

// Scheme prefixes every URL the registry creates.
const Scheme = "blob:"

// Blob is the data behind an object URL.
type Blob struct {
	Data        []byte
	ContentType string
	CreatedAt   time.Time
}

// Registry maps object URLs to blobs. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	blobs map[string]Blob

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string]Blob)}
}

// SetLogger injects a diaglog.Logger.
func (r *Registry) SetLogger(l *diaglog.Logger) {
	r.loggerMu.Lock()
	r.logger = l
	r.loggerMu.Unlock()
}

func (r *Registry) log(event, url string, size int) {
	r.loggerMu.RLock()
	l := r.logger
	r.loggerMu.RUnlock()
	l.Log(diaglog.LogEntry{
		Component: diaglog.ComponentObjectURL,
		Event:     event,
		Payload:   map[string]interface{}{"url": url, "bytes": size, "live": r.Live()},
	})
}

// Create stores data and returns a fresh URL for it. The slice is retained,
// not copied.
func (r *Registry) Create(data []byte, contentType string) string {
	url := Scheme + uuid.NewString()
	r.mu.Lock()
	r.blobs[url] = Blob{Data: data, ContentType: contentType, CreatedAt: time.Now()}
	r.mu.Unlock()
	r.log(diaglog.EventObjectURLCreate, url, len(data))
	return url
}

// Revoke releases url. Returns false if it was unknown or already revoked.
func (r *Registry) Revoke(url string) bool {
	r.mu.Lock()
	_, ok := r.blobs[url]
	delete(r.blobs, url)
	r.mu.Unlock()
	if ok {
		r.log(diaglog.EventObjectURLRevoke, url, 0)
	}
	return ok
}

// Lookup returns the blob behind url.
func (r *Registry) Lookup(url string) (Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[url]
	return b, ok
}

// Live returns the number of unrevoked URLs.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// ServeHTTP serves /<prefix>/<id> for blob:<id>, with range support so media
// elements can seek.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := req.URL.Path[strings.LastIndex(req.URL.Path, "/")+1:]
	if id == "" {
		http.NotFound(w, req)
		return
	}
	b, ok := r.Lookup(Scheme + id)
	if !ok {
		http.NotFound(w, req)
		return
	}
	if b.ContentType != "" {
		w.Header().Set("Content-Type", b.ContentType)
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, req, "", b.CreatedAt, bytes.NewReader(b.Data))
}

// HTTPPath maps an object URL onto the path served by ServeHTTP under prefix.
func HTTPPath(prefix, url string) string {
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimPrefix(url, Scheme)
}
