package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tiroq/meetaudio/internal/capture"
	"github.com/tiroq/meetaudio/internal/diaglog"
)

const (
	readSize = 32 * 1024
	// stopGrace is how long ffmpeg gets to finalize the container after
	// SIGINT before it is killed.
	stopGrace = 5 * time.Second
)

// ErrPauseUnsupported is returned by Pause and Resume on platforms that
// cannot suspend a process.
var ErrPauseUnsupported = errors.New("ffmpeg: pause not supported on this platform")

// Recorder runs one ffmpeg process and delivers its stdout in timeslices.
type Recorder struct {
	binary   string
	args     []string
	mimeType string
	stream   *stream
	logger   *diaglog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	paused   bool
	stopping bool
	exited   bool
	grace    *time.Timer
	stderr   bytes.Buffer
}

// MimeType returns the encoded type this recorder produces.
func (r *Recorder) MimeType() string { return r.mimeType }

// Start launches ffmpeg. Data is delivered every timeslice; a zero timeslice
// delivers everything once, at exit.
func (r *Recorder) Start(timeslice time.Duration, ev capture.RecorderEvents) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return errors.New("ffmpeg: recorder already started")
	}

	cmd := exec.Command(r.binary, r.args...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Stderr = &lockedWriter{mu: &r.mu, buf: &r.stderr}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg: failed to start subprocess: %w", err)
	}
	r.cmd = cmd

	r.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentEncoder,
		Event:     diaglog.EventCaptureStarted,
		Payload:   map[string]interface{}{"pid": cmd.Process.Pid, "timeslice_ms": timeslice.Milliseconds()},
	})

	go r.pump(stdout, timeslice, ev)
	return nil
}

func (r *Recorder) pump(stdout io.Reader, timeslice time.Duration, ev capture.RecorderEvents) {
	reads := make(chan []byte)
	go func() {
		defer close(reads)
		buf := make([]byte, readSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				reads <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				return
			}
		}
	}()

	var tick <-chan time.Time
	if timeslice > 0 {
		t := time.NewTicker(timeslice)
		defer t.Stop()
		tick = t.C
	}

	var pending []byte
	flush := func() {
		if len(pending) > 0 && ev.OnData != nil {
			ev.OnData(pending)
		}
		pending = nil
	}

	for {
		select {
		case b, ok := <-reads:
			if !ok {
				flush()
				r.finish(ev)
				return
			}
			pending = append(pending, b...)
		case <-tick:
			flush()
		}
	}
}

// finish reaps the process and reports the outcome.
func (r *Recorder) finish(ev capture.RecorderEvents) {
	err := r.cmd.Wait()

	r.mu.Lock()
	r.exited = true
	requested := r.stopping
	if r.grace != nil {
		r.grace.Stop()
	}
	tail := strings.TrimSpace(lastLine(r.stderr.String()))
	r.mu.Unlock()
	r.stream.detach(r)

	// ffmpeg exits non-zero after SIGINT; only unrequested exits are errors.
	if err != nil && !requested && ev.OnError != nil {
		if tail != "" {
			err = fmt.Errorf("ffmpeg exited: %w: %s", err, tail)
		} else {
			err = fmt.Errorf("ffmpeg exited: %w", err)
		}
		ev.OnError(err)
	}

	r.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentEncoder,
		Event:     diaglog.EventCaptureStop,
		Payload:   map[string]interface{}{"requested": requested, "stderr": tail},
	})
	if ev.OnStop != nil {
		ev.OnStop()
	}
}

// Pause suspends the process with SIGSTOP.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.exited || r.paused {
		return nil
	}
	if err := suspendProcess(r.cmd.Process); err != nil {
		return err
	}
	r.paused = true
	return nil
}

// Resume continues a suspended process with SIGCONT.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.exited || !r.paused {
		return nil
	}
	if err := continueProcess(r.cmd.Process); err != nil {
		return err
	}
	r.paused = false
	return nil
}

// Stop asks ffmpeg to finalize the container. The final data and OnStop
// arrive from the pump goroutine once the process exits.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.exited || r.stopping {
		return nil
	}
	r.stopping = true
	p := r.cmd.Process
	if r.paused {
		_ = continueProcess(p)
		r.paused = false
	}
	if err := interruptProcess(p); err != nil {
		_ = killProcess(p)
		return nil
	}
	r.grace = time.AfterFunc(stopGrace, func() { _ = killProcess(p) })
	return nil
}

// kill terminates the process immediately; used when the stream is closed
// before a graceful stop completes.
func (r *Recorder) kill() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.exited {
		return
	}
	r.stopping = true
	if r.paused {
		_ = continueProcess(r.cmd.Process)
		r.paused = false
	}
	_ = killProcess(r.cmd.Process)
}

type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// Only the tail is reported; keep the buffer bounded.
	if w.buf.Len() > 64*1024 {
		w.buf.Reset()
	}
	return w.buf.Write(p)
}
