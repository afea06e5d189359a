//go:build unix

package ffmpeg

import (
	"os"
	"syscall"
)

// The recorder runs in its own process group so signals reach any helper
// processes ffmpeg spawns.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	return syscall.Kill(-p.Pid, sig)
}

func suspendProcess(p *os.Process) error   { return signalGroup(p, syscall.SIGSTOP) }
func continueProcess(p *os.Process) error  { return signalGroup(p, syscall.SIGCONT) }
func interruptProcess(p *os.Process) error { return signalGroup(p, syscall.SIGINT) }
func killProcess(p *os.Process) error      { return signalGroup(p, syscall.SIGKILL) }
