package effects

import (
	"math"
	"testing"

	"github.com/cbegin/siopm-go/internal/siopm"
)

func impulse(frames int) []float64 {
	buf := make([]float64, frames*2)
	buf[0], buf[1] = 1, 1
	return buf
}

func TestDelayProducesOutput(t *testing.T) {
	d := NewDelay(44100, 100, 0.5, 0, 0.5)
	buf := impulse(4411)
	d.Process(buf)
	// 100ms at 44100Hz is 4410 frames
	if l, r := buf[4410*2], buf[4410*2+1]; math.Abs(l) < 0.01 || math.Abs(r) < 0.01 {
		t.Fatalf("expected delayed output, got l=%f r=%f", l, r)
	}
}

func TestChorusReadsBetweenFrames(t *testing.T) {
	// 1ms at 44100Hz is 44.1 frames; the unswept read sits one frame later.
	c := NewChorus(44100, 1, 0, 0, 1, 1)
	buf := impulse(64)
	c.Process(buf)
	if l := buf[45*2]; math.Abs(l-0.9) > 1e-9 {
		t.Fatalf("frame 45: got %f, want 0.9", l)
	}
	if r := buf[46*2+1]; math.Abs(r-0.1) > 1e-9 {
		t.Fatalf("frame 46: got %f, want 0.1", r)
	}
	if buf[0] != 0 || buf[44*2] != 0 {
		t.Fatalf("fully wet chorus leaked the dry signal")
	}
}

func TestLineTapsBehindHead(t *testing.T) {
	l := newLine(3)
	for _, v := range []float64{1, 2, 3, 4} {
		l.push(v)
	}
	if l.tap(1) != 4 || l.tap(2) != 3 || l.tap(3) != 2 {
		t.Fatalf("taps %v %v %v, want 4 3 2", l.tap(1), l.tap(2), l.tap(3))
	}
	if v := l.tapFrac(1.5); v != 3.5 {
		t.Fatalf("tapFrac(1.5) = %v, want 3.5", v)
	}
}

func TestReverbProducesOutput(t *testing.T) {
	r := NewReverb(44100, 0.5, 0.7, 0.5)
	buf := impulse(10000)
	r.Process(buf)
	var maxOut float64
	for i := 200; i < len(buf); i += 2 {
		maxOut = math.Max(maxOut, buf[i])
	}
	if maxOut < 0.001 {
		t.Fatalf("expected reverb tail")
	}
}

func TestDistortionClips(t *testing.T) {
	d := NewDistortion(44100, 10, 0.5, 0)
	buf := []float64{0.5, 0.5}
	d.Process(buf)
	if math.Abs(buf[0]) > 1.0 || math.Abs(buf[1]) > 1.0 {
		t.Fatalf("distortion output should be bounded")
	}
	if math.Abs(buf[0]) < 0.01 {
		t.Fatalf("expected non-zero distortion output")
	}
}

func TestChainAppliesEffectsInOrder(t *testing.T) {
	c := NewChain(&Gain{Level: 4}, NewDistortion(44100, 1, 1, 0))
	buf := []float64{0.5, -0.5}
	c.Process(buf)
	if want := math.Tanh(2); math.Abs(buf[0]-want) > 1e-12 || math.Abs(buf[1]+want) > 1e-12 {
		t.Fatalf("expected gain before distortion, got %v", buf)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 effects, got %d", c.Len())
	}
}

func TestEQ3BandUnityGain(t *testing.T) {
	eq := NewEQ3Band(44100, 1.0, 1.0, 1.0, 300, 3000)
	buf := make([]float64, 2000)
	for i := range buf {
		buf[i] = 0.5
	}
	eq.Process(buf)
	if l, r := buf[len(buf)-2], buf[len(buf)-1]; math.Abs(l-0.5) > 0.1 || math.Abs(r-0.5) > 0.1 {
		t.Fatalf("expected ~0.5 with unity gains, got l=%f r=%f", l, r)
	}
}

func TestEQ5BandGains(t *testing.T) {
	eq := NewEQ5Band(44100)
	buf := impulse(256)
	want := append([]float64(nil), buf...)
	eq.Process(buf)
	for i := range buf {
		if math.Abs(buf[i]-want[i]) > 1e-9 {
			t.Fatalf("unity bands must sum to the input, frame %d: %f", i/2, buf[i])
		}
	}
	for b := 0; b < 5; b++ {
		eq.SetGain(b, 0)
	}
	if eq.Gain(2) != 0 || eq.Gain(9) != 1 {
		t.Fatalf("unexpected gains %f %f", eq.Gain(2), eq.Gain(9))
	}
	eq.Reset()
	buf = impulse(256)
	eq.Process(buf)
	for _, v := range buf {
		if v != 0 {
			t.Fatalf("expected silence with every band muted, got %f", v)
		}
	}
}

func TestCompressorReducesLoud(t *testing.T) {
	c := NewCompressor(44100, -10, 4, 1, 50, 0)
	buf := make([]float64, 2000)
	for i := range buf {
		buf[i] = 1
	}
	c.Process(buf)
	if out := buf[len(buf)-2]; out >= 1.0 {
		t.Fatalf("compressor should reduce loud signals, got %f", out)
	}
}

func TestRouterMixesSends(t *testing.T) {
	m := siopm.NewModule(44100)
	r := NewRouter()
	r.SetChain(1, NewChain(&Gain{Level: 2}))
	r.SetChain(0, NewChain(&Gain{Level: 0.5}))
	r.Prepare(m)
	send := m.StreamSlot(1)
	if send == nil || send.Len() != m.BufferLength() {
		t.Fatalf("expected a send stream on slot 1")
	}
	for i := range send.Buffer {
		send.Buffer[i] = 0.25
	}
	r.Mix(m)
	out := m.OutputStream().Buffer
	if out[0] != 0.25 || out[len(out)-1] != 0.25 {
		t.Fatalf("expected (0.25*2)*0.5, got %f", out[0])
	}
	if m.StreamSlot(2) != nil {
		t.Fatalf("slots without a chain must stay unattached")
	}
}
