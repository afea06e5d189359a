package player_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/meetaudio/internal/objecturl"
	"github.com/tiroq/meetaudio/internal/player"
	"github.com/tiroq/meetaudio/testutil"
)

func newPlayer(t *testing.T) (*player.Player, *objecturl.Registry, *httptest.Server) {
	t.Helper()
	fetcher := &testutil.FakeFetcher{Payloads: map[string]testutil.FakePayload{
		"rec-1": {Data: []byte("first"), ContentType: "audio/webm"},
		"rec-2": {Data: []byte("second"), ContentType: "audio/ogg"},
	}}
	objects := objecturl.NewRegistry()
	p := player.New(fetcher, objects)
	ts := httptest.NewServer(p.Handler())
	t.Cleanup(func() {
		_ = p.Close()
		ts.Close()
	})
	return p, objects, ts
}

func connect(t *testing.T, p *player.Player, ts *httptest.Server) *testutil.MediaPeer {
	t.Helper()
	peer, err := testutil.DialMediaPeer(testutil.WSURL(ts.URL) + player.PathWS)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.WaitForPage(ctx))
	return peer
}

func get(t *testing.T, url string) (int, string, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(body)
}

func TestServesPage(t *testing.T) {
	_, _, ts := newPlayer(t)

	code, ct, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, ct, "text/html")
	assert.Contains(t, body, "PROTOCOL_VERSION = 1")

	code, _, _ = get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestOpenPointsPageAtBlob(t *testing.T) {
	p, objects, ts := newPlayer(t)
	peer := connect(t, p, ts)

	url, err := p.Open(context.Background(), "rec-1")
	require.NoError(t, err)
	src := peer.Source()
	assert.Equal(t, objecturl.HTTPPath(player.PathBlob, url), src)
	assert.True(t, strings.HasPrefix(src, "/blob/"))

	code, ct, body := get(t, ts.URL+src)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "audio/webm", ct)
	assert.Equal(t, "first", body)

	// Switching recordings revokes the previous bytes.
	_, err = p.Open(context.Background(), "rec-2")
	require.NoError(t, err)
	assert.Equal(t, 1, objects.Live())
	code, _, _ = get(t, ts.URL+src)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestOpenBeforePageConnects(t *testing.T) {
	p, _, ts := newPlayer(t)

	url, err := p.Open(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.False(t, p.Connected())

	peer := connect(t, p, ts)
	require.Eventually(t, func() bool {
		return peer.Source() == objecturl.HTTPPath(player.PathBlob, url)
	}, 2*time.Second, 5*time.Millisecond, "binding a page adopts the loaded source")
}

func TestResetKeepsPageBound(t *testing.T) {
	p, objects, ts := newPlayer(t)
	connect(t, p, ts)

	_, err := p.Open(context.Background(), "rec-1")
	require.NoError(t, err)
	p.Reset()

	assert.Equal(t, 0, objects.Live())
	assert.Empty(t, p.Controller().State().SourceURL)
	assert.True(t, p.Connected())
}

func TestNewPageReplacesOld(t *testing.T) {
	p, _, ts := newPlayer(t)
	first := connect(t, p, ts)

	second, err := testutil.DialMediaPeer(testutil.WSURL(ts.URL) + player.PathWS)
	require.NoError(t, err)
	defer second.Close()

	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first page not disconnected")
	}

	_, err = p.Open(context.Background(), "rec-2")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return second.Source() != "" }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, first.Source())
}

func TestWaitForPageHonoursContext(t *testing.T) {
	p, _, _ := newPlayer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitForPage(ctx), context.DeadlineExceeded)
}
