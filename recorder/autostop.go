package recorder

import (
	"context"
	"time"
)

// RecordFor starts s, records for d (or until the buffer fills) and returns
// the encoded WAV. If ctx ends first the recording is stopped and discarded.
func RecordFor(ctx context.Context, s *Session, d time.Duration) ([]byte, error) {
	if err := s.Start(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.Full():
	case <-ctx.Done():
		s.Stop()
		return nil, ctx.Err()
	}
	return s.Stop()
}
