package objecturl

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLookupRevoke(t *testing.T) {
	reg := NewRegistry()
	url := reg.Create([]byte("abc"), "audio/webm")

	assert.True(t, strings.HasPrefix(url, Scheme))
	assert.Equal(t, 1, reg.Live())

	b, ok := reg.Lookup(url)
	require.True(t, ok)
	assert.Equal(t, "abc", string(b.Data))
	assert.Equal(t, "audio/webm", b.ContentType)

	assert.True(t, reg.Revoke(url))
	assert.False(t, reg.Revoke(url), "second revoke is a no-op")
	assert.Equal(t, 0, reg.Live())

	_, ok = reg.Lookup(url)
	assert.False(t, ok)
}

func TestURLsAreUnique(t *testing.T) {
	reg := NewRegistry()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		u := reg.Create(nil, "")
		require.False(t, seen[u])
		seen[u] = true
	}
}

func TestHolderKeepsAtMostOneURL(t *testing.T) {
	reg := NewRegistry()
	h := NewHolder(reg)

	first := h.Set([]byte("one"), "audio/webm")
	second := h.Set([]byte("two"), "audio/webm")

	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, reg.Live())
	_, ok := reg.Lookup(first)
	assert.False(t, ok, "previous URL revoked before the new one is held")
	assert.Equal(t, second, h.URL())
}

func TestHolderReleaseIdempotent(t *testing.T) {
	reg := NewRegistry()
	h := NewHolder(reg)
	h.Set([]byte("x"), "")

	assert.True(t, h.Release())
	assert.False(t, h.Release())
	assert.Equal(t, "", h.URL())
	assert.Equal(t, 0, reg.Live())
}

func TestServeHTTP(t *testing.T) {
	reg := NewRegistry()
	url := reg.Create([]byte("0123456789"), "audio/ogg")

	srv := httptest.NewServer(http.StripPrefix("/blob", reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + HTTPPath("/blob", url))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/ogg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "0123456789", string(body))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+HTTPPath("/blob", url), nil)
	req.Header.Set("Range", "bytes=2-4")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "234", string(body))

	reg.Revoke(url)
	resp, err = http.Get(srv.URL + HTTPPath("/blob", url))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
