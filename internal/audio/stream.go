// Package audio plays rendered blocks in real time through ebiten's audio
// context or a bare oto context.
package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// BlockSource renders audio one interleaved stereo block at a time.
type BlockSource interface {
	// NextBlock returns the next block, or nil once the source has ended.
	// The slice is only read until the next call.
	NextBlock() []float64
}

// Output is a real-time playback backend.
type Output interface {
	Play()
	Pause()
	IsPlaying() bool
	Stop() error
}

// StreamReader turns a BlockSource into a 32-bit float little-endian
// stereo byte stream. Reads may span or split blocks.
type StreamReader struct {
	mu      sync.Mutex
	source  BlockSource
	pending []float64
	done    bool
}

func NewStreamReader(source BlockSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for n+8 <= len(p) {
		if len(r.pending) == 0 {
			if r.done {
				break
			}
			if r.pending = r.source.NextBlock(); r.pending == nil {
				r.done = true
				break
			}
		}
		frames := min(len(r.pending)/2, (len(p)-n)/8)
		for _, v := range r.pending[:frames*2] {
			binary.LittleEndian.PutUint32(p[n:], math.Float32bits(float32(v)))
			n += 4
		}
		r.pending = r.pending[frames*2:]
	}
	if n == 0 && r.done {
		return 0, io.EOF
	}
	return n, nil
}

func (r *StreamReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	r.pending = nil
	return nil
}
