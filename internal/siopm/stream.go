package siopm

import (
	"math"

	"github.com/viterin/vek"

	"github.com/cbegin/siopm-go/internal/pipe"
)

// Stream is an interleaved stereo float buffer one audio block long.
type Stream struct {
	Buffer   []float64
	Channels int
}

// NewStream returns a cleared stereo stream of bufferLength frames.
func NewStream(bufferLength int) *Stream {
	return &Stream{Buffer: make([]float64, bufferLength*2), Channels: 2}
}

// Resize changes the block length and clears the buffer.
func (s *Stream) Resize(bufferLength int) {
	if cap(s.Buffer) >= bufferLength*2 {
		s.Buffer = s.Buffer[:bufferLength*2]
	} else {
		s.Buffer = make([]float64, bufferLength*2)
	}
	s.Clear()
}

// Len returns the block length in frames.
func (s *Stream) Len() int { return len(s.Buffer) / 2 }

// Clear zeroes the buffer.
func (s *Stream) Clear() {
	vek.Zeros_Into(s.Buffer, len(s.Buffer))
}

// Write mixes length samples from a mono pipe starting at frame start and
// returns the cursor after the last sample read.
func (s *Stream) Write(src *pipe.Element[int], start, length int, gainL, gainR float64) *pipe.Element[int] {
	buf := s.Buffer[start*2 : (start+length)*2]
	for i := 0; i < len(buf); i += 2 {
		v := float64(src.Value)
		buf[i] += v * gainL
		buf[i+1] += v * gainR
		src = src.Next()
	}
	return src
}

// WriteStereo mixes two pipes into the left and right channels.
func (s *Stream) WriteStereo(left, right *pipe.Element[int], start, length int, gainL, gainR float64) {
	buf := s.Buffer[start*2 : (start+length)*2]
	for i := 0; i < len(buf); i += 2 {
		buf[i] += float64(left.Value) * gainL
		buf[i+1] += float64(right.Value) * gainR
		left, right = left.Next(), right.Next()
	}
}

// Mix adds other into s scaled by gain.
func (s *Stream) Mix(other *Stream, gain float64) {
	if gain == 1 {
		vek.Add_Inplace(s.Buffer, other.Buffer)
		return
	}
	for i, v := range other.Buffer {
		s.Buffer[i] += v * gain
	}
}

// Limit clamps every sample to [-1, 1].
func (s *Stream) Limit() {
	vek.MinimumNumber_Inplace(s.Buffer, 1)
	vek.MaximumNumber_Inplace(s.Buffer, -1)
}

// Quantize rounds samples to bitRate bits. Zero leaves them untouched.
func (s *Stream) Quantize(bitRate int) {
	if bitRate <= 0 {
		return
	}
	scale := math.Ldexp(1, bitRate-1)
	vek.MulNumber_Inplace(s.Buffer, scale)
	vek.Round_Inplace(s.Buffer)
	vek.MulNumber_Inplace(s.Buffer, 1/scale)
}
