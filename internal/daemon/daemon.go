// Package daemon runs the background recorder: it owns the capture
// controller, executes commands dropped by the CLI, publishes status.json and
// serves the preview player.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/tiroq/meetaudio/internal/artifact"
	"github.com/tiroq/meetaudio/internal/capture"
	"github.com/tiroq/meetaudio/internal/config"
	"github.com/tiroq/meetaudio/internal/diaglog"
	"github.com/tiroq/meetaudio/internal/fileutil"
	"github.com/tiroq/meetaudio/internal/ipc"
	"github.com/tiroq/meetaudio/internal/player"
	"github.com/tiroq/meetaudio/internal/remote"
)

// StopTimeout bounds the wait for the encoder's final chunk.
const StopTimeout = 10 * time.Second

// ErrNoUploader is returned for upload commands when no server is configured.
var ErrNoUploader = errors.New("no server configured for uploads")

// ErrNothingToUpload is returned when no finished recording exists.
var ErrNothingToUpload = errors.New("no finished recording to upload")

// Options wires a Daemon. Capture, Dir and Config are required.
type Options struct {
	Config   *config.Config
	Dir      ipc.Dir
	Capture  *capture.Controller
	Uploader remote.Uploader // nil disables uploads
	Player   *player.Player  // nil disables the preview page
	Logger   *log.Logger
	Diag     *diaglog.Logger
}

// Daemon executes ipc commands against one capture controller.
type Daemon struct {
	cfg      *config.Config
	dir      ipc.Dir
	capture  *capture.Controller
	uploader remote.Uploader
	player   *player.Player
	logger   *log.Logger
	diag     *diaglog.Logger
	now      func() time.Time

	// cmdMu serialises command execution.
	cmdMu sync.Mutex
	pubMu sync.Mutex

	mu         sync.Mutex
	lastAction string
	actionAt   time.Time
	savedPath  string
	uploadID   string
	lastErr    string
	playerURL  string

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a Daemon and subscribes it to capture status changes.
func New(opts Options) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	d := &Daemon{
		cfg:      opts.Config,
		dir:      opts.Dir,
		capture:  opts.Capture,
		uploader: opts.Uploader,
		player:   opts.Player,
		logger:   logger,
		diag:     opts.Diag,
		now:      time.Now,
		quit:     make(chan struct{}),
	}
	d.capture.Subscribe(d.publish)
	return d
}

// Run serves until ctx is done or a quit command arrives. An active
// recording is stopped and saved before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.dir.Ensure(); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	d.publish(d.capture.Status())

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if d.player != nil && d.cfg.Daemon.ListenAddr != "" {
		ln, err := net.Listen("tcp", d.cfg.Daemon.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", d.cfg.Daemon.ListenAddr, err)
		}
		d.mu.Lock()
		d.playerURL = "http://" + ln.Addr().String() + player.PathPage
		d.mu.Unlock()
		srv = &http.Server{Handler: d.player.Handler(), ReadHeaderTimeout: 10 * time.Second}
		d.logger.Info("[STARTUP] Player listening", "url", d.PlayerURL())
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("player server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		w := &Watcher{
			Path:     d.dir.CommandPath(),
			Interval: time.Duration(d.cfg.Daemon.PollIntervalMs) * time.Millisecond,
			Logger:   d.logger,
		}
		return w.Run(gctx, func() {
			req, err := d.dir.ReadCommand()
			if err != nil {
				d.logger.Error("Failed to read command", "err", err)
				return
			}
			if req.Cmd == "" {
				return
			}
			if err := d.Handle(gctx, req); err != nil {
				d.logger.Error("Command failed", "cmd", req.String(), "err", err)
			}
		})
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-d.quit:
		}
		d.logger.Info("[SHUTDOWN] Shutting down gracefully")
		d.shutdown()
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}
		return errQuit
	})

	err := g.Wait()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

// errQuit ends the errgroup on a normal shutdown.
var errQuit = errors.New("quit")

func (d *Daemon) shutdown() {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	switch d.capture.State() {
	case capture.StateRecording, capture.StatePaused:
		d.logger.Info("[SHUTDOWN] Recording is active - stopping before shutdown...")
		if err := d.stop(context.Background()); err != nil {
			d.logger.Error("[SHUTDOWN] Stop failed", "err", err)
		}
	}
	if d.player != nil {
		_ = d.player.Close()
	}
	d.capture.Clear()
}

// Quit asks Run to return.
func (d *Daemon) Quit() {
	d.quitOnce.Do(func() { close(d.quit) })
}

// PlayerURL returns the preview page address, or "" when not serving.
func (d *Daemon) PlayerURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playerURL
}

// Handle executes one command. Errors are also recorded in status.json.
func (d *Daemon) Handle(ctx context.Context, req ipc.Request) error {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	d.logger.Info("Received command", "cmd", req.String())
	d.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentDaemon,
		Event:     diaglog.EventCommand,
		Payload:   map[string]interface{}{"cmd": string(req.Cmd), "arg": req.Arg},
	})

	var err error
	switch req.Cmd {
	case ipc.CmdStart:
		err = d.capture.Start(ctx)
		if err == nil {
			d.resetResult()
		}
	case ipc.CmdPause:
		err = d.capture.Pause()
	case ipc.CmdResume:
		err = d.capture.Resume()
	case ipc.CmdStop:
		err = d.stop(ctx)
	case ipc.CmdClear:
		d.capture.Clear()
		if d.player != nil {
			d.player.Reset()
		}
		d.resetResult()
	case ipc.CmdUpload:
		err = d.upload(ctx, req.Arg)
	case ipc.CmdQuit:
		d.logger.Info("Quit command received - shutting down")
		d.Quit()
	default:
		err = fmt.Errorf("unknown command %q", req.Cmd)
	}

	d.mu.Lock()
	d.lastAction = string(req.Cmd)
	d.actionAt = d.now()
	if err != nil {
		d.lastErr = err.Error()
	} else {
		d.lastErr = ""
	}
	d.mu.Unlock()
	d.publish(d.capture.Status())
	return err
}

func (d *Daemon) resetResult() {
	d.mu.Lock()
	d.savedPath = ""
	d.uploadID = ""
	d.mu.Unlock()
}

// stop finishes the recording, saves it, opens it in the preview player and
// uploads it when auto-upload is on. A partial artifact from a timed-out
// flush is still saved.
func (d *Daemon) stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, StopTimeout)
	defer cancel()

	a, stopErr := d.capture.Stop(ctx)
	if a == nil && stopErr == nil && d.capture.State() == capture.StateStopped {
		// The encoder ended the session on its own; keep what it left once.
		d.mu.Lock()
		saved := d.savedPath != ""
		d.mu.Unlock()
		if !saved {
			a = d.capture.Artifact()
		}
	}
	if a == nil {
		return stopErr
	}
	st := d.capture.Status()
	d.logger.Info("Recording stopped", "session", st.SessionID, "duration", time.Duration(a.DurationSeconds)*time.Second, "bytes", a.Size())

	var errs []error
	if stopErr != nil {
		errs = append(errs, stopErr)
	}
	if d.cfg.Daemon.SaveLocal && !a.Empty() {
		if err := d.save(st.SessionID, a); err != nil {
			errs = append(errs, err)
		}
	}
	if d.player != nil && !a.Empty() {
		if _, err := d.player.Open(ctx, st.SessionID); err != nil {
			d.logger.Warn("Preview unavailable", "err", err)
		}
	}
	if d.cfg.Daemon.AutoUpload && !a.Empty() {
		if err := d.upload(ctx, d.cfg.Daemon.MeetingID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Daemon) save(sessionID string, a *artifact.Artifact) error {
	dir := d.cfg.Storage.RecordingsDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create recordings dir: %w", err)
	}

	created := a.CreatedAt
	if created.IsZero() {
		created = d.now()
	}
	base := created.Format("2006-01-02_1504")
	if title := d.cfg.Daemon.Title; title != "" {
		base += "_" + fileutil.SanitizeForFilename(title)
	}
	path, err := fileutil.UniquePath(dir, base, a.Extension)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, a.Data, 0644); err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	d.logger.Info("Recording saved", "path", path)

	d.mu.Lock()
	d.savedPath = path
	d.mu.Unlock()

	if d.cfg.Storage.WriteSidecar {
		meta := &fileutil.RecordingMetadata{
			Origin:          fileutil.OriginCapture,
			SessionID:       sessionID,
			CreatedAt:       created.UTC(),
			DurationSeconds: a.DurationSeconds,
			MimeType:        a.ContentType(),
			Bytes:           a.Size(),
			OutputFile:      path,
		}
		if err := fileutil.WriteMetadata(path, meta); err != nil {
			d.logger.Warn("Failed to write metadata sidecar", "err", err)
		}
	}
	return nil
}

func (d *Daemon) upload(ctx context.Context, meetingID string) error {
	if d.uploader == nil {
		return ErrNoUploader
	}
	if meetingID == "" {
		meetingID = d.cfg.Daemon.MeetingID
	}
	a := d.capture.Artifact()
	if a == nil || a.Empty() {
		return ErrNothingToUpload
	}

	res, err := d.uploader.Upload(ctx, remote.UploadRequest{
		MeetingID:     meetingID,
		Title:         d.cfg.Daemon.Title,
		RecordingType: remote.RecordingDirect,
		Artifact:      a,
	})
	d.recordUpload(meetingID, res, err)
	if err != nil {
		return err
	}
	d.logger.Info("Recording uploaded", "meeting", meetingID, "id", res.ID)
	d.mu.Lock()
	d.uploadID = res.ID
	d.mu.Unlock()
	return nil
}

// recordUpload updates the sidecar of the saved copy, if any.
func (d *Daemon) recordUpload(meetingID string, res *remote.UploadResult, uploadErr error) {
	d.mu.Lock()
	path := d.savedPath
	d.mu.Unlock()
	if path == "" || !d.cfg.Storage.WriteSidecar {
		return
	}
	meta, err := fileutil.ReadMetadata(path)
	if err != nil {
		return
	}
	meta.Upload = &fileutil.UploadMeta{
		MeetingID:  meetingID,
		Success:    uploadErr == nil,
		UploadedAt: d.now().UTC(),
	}
	if res != nil {
		meta.Upload.RecordingID = res.ID
	}
	if uploadErr != nil {
		meta.Upload.Error = uploadErr.Error()
	}
	if err := fileutil.WriteMetadata(path, meta); err != nil {
		d.logger.Warn("Failed to update metadata sidecar", "err", err)
	}
}

// publish writes status.json. It runs on every capture change, sampler
// ticks included.
func (d *Daemon) publish(st capture.Status) {
	d.mu.Lock()
	snap := &ipc.StatusSnapshot{
		Status:     st,
		PID:        os.Getpid(),
		PlayerURL:  d.playerURL,
		SavedPath:  d.savedPath,
		UploadID:   d.uploadID,
		LastAction: d.lastAction,
		ActionAt:   d.actionAt,
		Timestamp:  d.now(),

		CommandError: d.lastErr,
	}
	d.mu.Unlock()

	d.pubMu.Lock()
	defer d.pubMu.Unlock()
	if err := d.dir.WriteStatus(snap); err != nil {
		d.logger.Error("Failed to write status", "err", err)
	}
}
