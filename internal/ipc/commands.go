// Package ipc is the file-based channel between the meetaudio CLI and the
// daemon: the CLI drops a command file, the daemon publishes status.json.
package ipc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Command represents user commands from the CLI to the daemon
type Command string

const (
	CmdStart  Command = "start"  // Acquire the microphone and record
	CmdPause  Command = "pause"  // Pause the active recording
	CmdResume Command = "resume" // Resume a paused recording
	CmdStop   Command = "stop"   // Finish the recording and build the artifact
	CmdClear  Command = "clear"  // Discard everything, back to idle
	CmdUpload Command = "upload" // Upload the finished artifact; Arg is the meeting id
	CmdQuit   Command = "quit"   // Shutdown daemon
)

// Request is one command read from the command file.
type Request struct {
	Cmd Command
	Arg string
}

func (r Request) String() string {
	if r.Arg == "" {
		return string(r.Cmd)
	}
	return string(r.Cmd) + " " + r.Arg
}

// Valid reports whether cmd is known to the daemon.
func (c Command) Valid() bool {
	switch c {
	case CmdStart, CmdPause, CmdResume, CmdStop, CmdClear, CmdUpload, CmdQuit:
		return true
	}
	return false
}

// Dir is a runtime directory holding the command file, status.json and the
// daemon pid file.
type Dir string

// DefaultDir returns $XDG_CACHE_HOME/meetaudio, else ~/.cache/meetaudio.
func DefaultDir() Dir {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return Dir(filepath.Join(xdg, "meetaudio"))
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return Dir(filepath.Join(home, ".cache", "meetaudio"))
}

// CommandPath is the command file location.
func (d Dir) CommandPath() string { return filepath.Join(string(d), "cmd.txt") }

// StatusPath is the status snapshot location.
func (d Dir) StatusPath() string { return filepath.Join(string(d), "status.json") }

// Ensure creates the directory.
func (d Dir) Ensure() error {
	return os.MkdirAll(string(d), 0755)
}

// WriteCommand writes a command for the daemon to pick up.
func (d Dir) WriteCommand(req Request) error {
	if !req.Cmd.Valid() {
		return fmt.Errorf("unknown command %q", req.Cmd)
	}
	if err := d.Ensure(); err != nil {
		return err
	}
	return os.WriteFile(d.CommandPath(), []byte(req.String()+"\n"), 0644)
}

// ReadCommand reads and clears the command file.
// Returns a zero Request if no command is pending or it is unknown.
func (d Dir) ReadCommand() (Request, error) {
	path := d.CommandPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Request{}, nil // No command pending
		}
		return Request{}, err
	}
	if len(data) == 0 {
		return Request{}, nil
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return Request{}, err
	}

	line := strings.TrimSpace(string(data))
	name, arg, _ := strings.Cut(line, " ")
	req := Request{Cmd: Command(name), Arg: strings.TrimSpace(arg)}
	if !req.Cmd.Valid() {
		return Request{}, nil
	}
	return req, nil
}
