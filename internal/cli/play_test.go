package cli

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/meetaudio/internal/objecturl"
	"github.com/tiroq/meetaudio/internal/playback"
	"github.com/tiroq/meetaudio/internal/player"
	"github.com/tiroq/meetaudio/testutil"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var pageURL = regexp.MustCompile(`http://(\S+)/`)

func TestRunPlayer(t *testing.T) {
	fetcher := &testutil.FakeFetcher{Payloads: map[string]testutil.FakePayload{
		"rec-1": {Data: []byte("audio"), ContentType: "audio/webm"},
	}}
	p := player.New(fetcher, objecturl.NewRegistry())
	defer p.Close()

	in, typed := io.Pipe()
	out := &syncBuffer{}
	result := make(chan error, 1)
	go func() {
		result <- runPlayer(context.Background(), p, "rec-1", playSession{
			Addr:    "127.0.0.1:0",
			Timeout: 5 * time.Second,
			In:      in,
			Out:     out,
		})
	}()

	var host string
	require.Eventually(t, func() bool {
		m := pageURL.FindStringSubmatch(out.String())
		if m == nil {
			return false
		}
		host = m[1]
		return true
	}, 2*time.Second, 10*time.Millisecond)

	peer, err := testutil.DialMediaPeer("ws://" + host + player.PathWS)
	require.NoError(t, err)
	defer peer.Close()
	defer typed.Close()

	require.Eventually(t, func() bool { return peer.Source() != "" }, 2*time.Second, 10*time.Millisecond)
	peer.SetDuration(60)
	peer.Emit("durationchange")
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), playHelp)
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return p.Controller().State().DurationKnown }, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(typed, "s 90\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[paused] 1:00 / 1:00")
	}, 2*time.Second, 10*time.Millisecond, "seek past the end is clamped")

	_, err = io.WriteString(typed, "p\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[playing]")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(typed, "q\n")
	require.NoError(t, err)
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("player did not quit")
	}
	assert.Contains(t, peer.Requests(), "Seek")
}

func TestRunPlayerPageTimeout(t *testing.T) {
	p := player.New(&testutil.FakeFetcher{}, objecturl.NewRegistry())
	defer p.Close()

	err := runPlayer(context.Background(), p, "rec-1", playSession{
		Addr:    "127.0.0.1:0",
		Timeout: 50 * time.Millisecond,
		In:      bytes.NewReader(nil),
		Out:     io.Discard,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPlayCommand(t *testing.T) {
	el := testutil.NewFakeMediaElement()
	el.SetDuration(30)
	ctrl := playback.NewController(playback.Options{
		Fetcher: &testutil.FakeFetcher{Payloads: map[string]testutil.FakePayload{
			"rec-1": {Data: []byte("x"), ContentType: "audio/wav"},
		}},
		Objects: objecturl.NewRegistry(),
	})
	defer ctrl.Close()

	_, err := playCommand(ctrl, "p")
	assert.ErrorIs(t, err, playback.ErrNoElement)

	ctrl.Bind(el)
	_, err = ctrl.Load(context.Background(), "rec-1")
	require.NoError(t, err)

	quit, err := playCommand(ctrl, "p")
	require.NoError(t, err)
	assert.False(t, quit)

	_, err = playCommand(ctrl, "s abc")
	assert.Error(t, err)
	_, err = playCommand(ctrl, "s")
	assert.Error(t, err)
	_, err = playCommand(ctrl, "s 12.5")
	require.NoError(t, err)
	assert.Equal(t, 12.5, el.CurrentTime())

	_, err = playCommand(ctrl, "x")
	assert.Error(t, err)

	quit, err = playCommand(ctrl, "q")
	require.NoError(t, err)
	assert.True(t, quit)
}
