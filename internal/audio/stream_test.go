package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
)

type blocks struct {
	left [][]float64
}

func (b *blocks) NextBlock() []float64 {
	if len(b.left) == 0 {
		return nil
	}
	blk := b.left[0]
	b.left = b.left[1:]
	return blk
}

func TestStreamReaderSpansBlocks(t *testing.T) {
	src := &blocks{left: [][]float64{{0.5, -0.5, 0.25, -0.25}, {1, -1}}}
	r := NewStreamReader(src)
	p := make([]byte, 8*8)
	n, err := r.Read(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 3*8 {
		t.Fatalf("expected 3 frames, got %d bytes", n)
	}
	want := []float32{0.5, -0.5, 0.25, -0.25, 1, -1}
	for i, w := range want {
		if got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:])); got != w {
			t.Fatalf("sample %d: expected %f, got %f", i, w, got)
		}
	}
	if n, err := r.Read(p); n != 0 || err != io.EOF {
		t.Fatalf("expected EOF after the last block, got %d, %v", n, err)
	}
}

func TestStreamReaderSplitsBlocks(t *testing.T) {
	src := &blocks{left: [][]float64{{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}}}
	r := NewStreamReader(src)
	p := make([]byte, 8)
	var got []float32
	for {
		n, err := r.Read(p)
		if n > 0 {
			got = append(got, math.Float32frombits(binary.LittleEndian.Uint32(p)), math.Float32frombits(binary.LittleEndian.Uint32(p[4:])))
		}
		if err == io.EOF {
			break
		}
		if len(got) > 6 {
			t.Fatalf("reader did not end")
		}
	}
	if len(got) != 6 || got[4] != float32(0.5) {
		t.Fatalf("expected 3 single-frame reads, got %v", got)
	}
}

func TestStreamReaderShortBuffer(t *testing.T) {
	r := NewStreamReader(&blocks{left: [][]float64{{1, 1}}})
	if n, err := r.Read(make([]byte, 4)); n != 0 || err != nil {
		t.Fatalf("expected an empty read, got %d, %v", n, err)
	}
	r.Close()
	if _, err := r.Read(make([]byte, 8)); err != io.EOF {
		t.Fatalf("expected EOF after close, got %v", err)
	}
}
