package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiroq/meetaudio/internal/objecturl"
	"github.com/tiroq/meetaudio/internal/playback"
	"github.com/tiroq/meetaudio/internal/player"
)

const playHelp = "Commands: p (play/pause), s <seconds> (seek), q (quit)"

func NewPlayCmd(deps *Dependencies) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "play <recording-id>",
		Short: "Play a stored recording in the browser",
		Long:  "Serve a small player page, load the recording into it and control playback from the terminal.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRemoteClient(deps.Config, deps.Diag)
			if err != nil {
				return err
			}
			if client == nil {
				return ErrNoServer
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			objects := objecturl.NewRegistry()
			objects.SetLogger(deps.Diag)
			p := player.New(client, objects)
			p.SetLogger(deps.Diag)
			defer p.Close()

			return runPlayer(ctx, p, args[0], playSession{
				Addr:    addr,
				Timeout: timeout,
				In:      cmd.InOrStdin(),
				Out:     cmd.OutOrStdout(),
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:0", "listen address for the player page")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for the page to connect")
	return cmd
}

type playSession struct {
	Addr    string
	Timeout time.Duration
	In      io.Reader
	Out     io.Writer
}

func runPlayer(ctx context.Context, p *player.Player, id string, s playSession) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: p.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(s.Out, "Open http://%s/ in a browser to listen.\n", ln.Addr())

	waitCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	if err := p.WaitForPage(waitCtx); err != nil {
		return fmt.Errorf("player page did not connect: %w", err)
	}

	if _, err := p.Open(ctx, id); err != nil {
		return fmt.Errorf("play %s: %w", id, err)
	}

	ctrl := p.Controller()
	var (
		mu   sync.Mutex
		last string
	)
	ctrl.Subscribe(func(st playback.State) {
		line := formatPlayback(st)
		mu.Lock()
		defer mu.Unlock()
		if line != last {
			last = line
			fmt.Fprintln(s.Out, line)
		}
	})
	fmt.Fprintln(s.Out, playHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := playCommand(ctrl, line)
			if err != nil {
				fmt.Fprintf(s.Out, "Error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// playCommand applies one terminal line to ctrl.
func playCommand(ctrl *playback.Controller, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, ctrl.TogglePlayPause()
	}
	switch fields[0] {
	case "p", "play", "pause":
		return false, ctrl.TogglePlayPause()
	case "s", "seek":
		if len(fields) != 2 {
			return false, errors.New("usage: s <seconds>")
		}
		secs, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || math.IsNaN(secs) {
			return false, fmt.Errorf("invalid position %q", fields[1])
		}
		return false, ctrl.Seek(secs)
	case "q", "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (%s)", fields[0], playHelp)
	}
}

func formatPlayback(st playback.State) string {
	state := "paused"
	if st.IsPlaying {
		state = "playing"
	}
	total := "--:--"
	if st.DurationKnown {
		total = formatSeconds(int(st.Duration))
	}
	return fmt.Sprintf("[%s] %s / %s", state, formatSeconds(int(st.CurrentTime)), total)
}
