// Package shutdown turns termination signals into context cancellation so an
// in-flight recording is discarded and the device released before exit.
package shutdown

import (
	"context"
	"os/signal"
)

// Context returns a context cancelled on the first termination signal.
// Calling stop restores default signal handling, so a second Ctrl+C kills
// the process.
func Context(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}
