//go:build !windows

package shutdown

import (
	"os"
	"syscall"
)

// SIGHUP covers the terminal being closed mid-recording.
var signals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
