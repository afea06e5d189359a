package objecturl

import "sync"

// Holder owns at most one object URL at a time. Set revokes the previous URL
// before creating the next; Release is idempotent.
type Holder struct {
	reg *Registry
	mu  sync.Mutex
	url string
}

// NewHolder creates an empty holder backed by reg.
func NewHolder(reg *Registry) *Holder {
	return &Holder{reg: reg}
}

// Set replaces the held URL with a new one for data.
func (h *Holder) Set(data []byte, contentType string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.url != "" {
		h.reg.Revoke(h.url)
		h.url = ""
	}
	h.url = h.reg.Create(data, contentType)
	return h.url
}

// URL returns the held URL, or "".
func (h *Holder) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// Release revokes the held URL. Returns false when nothing was held.
func (h *Holder) Release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.url == "" {
		return false
	}
	h.reg.Revoke(h.url)
	h.url = ""
	return true
}
