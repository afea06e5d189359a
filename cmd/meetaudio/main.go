package main

import (
	"fmt"
	"os"

	"github.com/tiroq/meetaudio/internal/cli"
	"github.com/tiroq/meetaudio/internal/config"
	"github.com/tiroq/meetaudio/internal/diaglog"
	"github.com/tiroq/meetaudio/internal/ipc"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in meetaudio: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	diaglog.Version = Version

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dir := ipc.DefaultDir()

	diag, err := diaglog.New(diaglog.LogPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: diagnostic log disabled: %v\n", err)
		diag = diaglog.NewNoOp()
	}
	defer func() { _ = diag.Close() }()

	root := cli.NewRootCmd(&cli.Dependencies{
		Config:  cfg,
		Dir:     dir,
		Version: Version,
		Diag:    diag,
	})
	return root.Execute()
}
