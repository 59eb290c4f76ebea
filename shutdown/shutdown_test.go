package shutdown

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestContextCancelledByParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := Context(parent)
	defer stop()

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with parent")
	}
}

func TestSignalsIncludeInterrupt(t *testing.T) {
	for _, s := range signals {
		if s == os.Interrupt {
			return
		}
	}
	t.Error("os.Interrupt not handled")
}
