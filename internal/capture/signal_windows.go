//go:build windows

package capture

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("not supported on windows")

func pauseProcess(*os.Process) error { return errUnsupported }

func resumeProcess(*os.Process) error { return errUnsupported }

func interruptProcess(p *os.Process) error { return p.Kill() }
