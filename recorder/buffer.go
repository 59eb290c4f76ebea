package recorder

import "wavscribe/audio"

// Buffer accumulates blocks for one session in arrival order. It is not safe
// for concurrent use; the owning Session serializes access.
type Buffer struct {
	blocks     [][]float32
	total      int
	maxSamples int
	dropped    int
}

// NewBuffer returns an empty buffer. maxSamples caps the number of samples
// held; zero means unbounded.
func NewBuffer(maxSamples int) *Buffer {
	return &Buffer{maxSamples: max(maxSamples, 0)}
}

// Append adds a block. Once the cap is reached the part of the block that
// does not fit is dropped and ErrBufferFull is returned.
func (b *Buffer) Append(block audio.Block) error {
	samples := block.Samples
	if b.maxSamples > 0 {
		room := b.maxSamples - b.total
		if len(samples) > room {
			if block.Channels > 1 {
				room -= room % block.Channels
			}
			room = max(room, 0)
			b.dropped += len(samples) - room
			samples = samples[:room]
			if len(samples) > 0 {
				b.blocks = append(b.blocks, samples)
				b.total += len(samples)
			}
			return ErrBufferFull
		}
	}
	if len(samples) == 0 {
		return nil
	}
	b.blocks = append(b.blocks, samples)
	b.total += len(samples)
	return nil
}

// TotalSampleCount is the sum of the lengths of all appended blocks.
func (b *Buffer) TotalSampleCount() int { return b.total }

// Dropped reports samples discarded because the cap was reached.
func (b *Buffer) Dropped() int { return b.dropped }

// Drain returns every sample in arrival order as one slice and empties the
// buffer. Draining an empty buffer yields an empty, non-nil slice.
func (b *Buffer) Drain() []float32 {
	out := make([]float32, 0, b.total)
	for _, blk := range b.blocks {
		out = append(out, blk...)
	}
	b.blocks = nil
	b.total = 0
	return out
}
