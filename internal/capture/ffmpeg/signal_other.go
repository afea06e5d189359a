//go:build !unix

package ffmpeg

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr { return nil }

func suspendProcess(*os.Process) error  { return ErrPauseUnsupported }
func continueProcess(*os.Process) error { return ErrPauseUnsupported }

// Windows cannot deliver SIGINT to a child; ffmpeg is killed and the
// container may lack its trailer.
func interruptProcess(p *os.Process) error { return p.Kill() }
func killProcess(p *os.Process) error      { return p.Kill() }
