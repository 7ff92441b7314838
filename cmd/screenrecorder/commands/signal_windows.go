package commands

import "os"

var pauseSignals []os.Signal
