//go:build !windows

package commands

import (
	"os"
	"syscall"
)

var pauseSignals = []os.Signal{syscall.SIGUSR1}
