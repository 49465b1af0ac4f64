package siopm

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestRenderSamplesLength(t *testing.T) {
	score, err := Compile("t140 o5 l8 cdefgab>c<c")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	samples, err := RenderSamples(score, SampleRate, 1.2)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if want := int(SampleRate*1.2) * 2; len(samples) != want {
		t.Fatalf("got %d samples, want %d", len(samples), want)
	}
	if energy(samples) == 0 {
		t.Fatalf("expected non-zero audio energy")
	}
}

func TestRenderStopsAtEnd(t *testing.T) {
	samples, err := RenderMML("t120 l4 c", SampleRate)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	frames := len(samples) / 2
	if frames < SampleRate/2 || frames > SampleRate*10 {
		t.Fatalf("expected the render to stop after the release, got %d frames", frames)
	}
	for _, s := range samples {
		if s < -1 || s > 1 {
			t.Fatalf("sample %v outside [-1, 1]", s)
		}
	}
}

func TestRenderSendEffect(t *testing.T) {
	dry, err := RenderMML("t120 l4 c", SampleRate)
	if err != nil {
		t.Fatalf("render dry: %v", err)
	}
	wet, err := RenderMML("#EFFECT1{gain 2};\nt120 l4 @s1,128 c", SampleRate)
	if err != nil {
		t.Fatalf("render wet: %v", err)
	}
	if energy(wet) <= energy(dry) {
		t.Fatalf("the send should add to the dry signal, got %v <= %v", energy(wet), energy(dry))
	}
}

func TestRenderNilScore(t *testing.T) {
	if _, err := Render(nil, SampleRate); err == nil {
		t.Fatalf("expected an error for a nil score")
	}
}

func TestWriteWAV(t *testing.T) {
	samples := []float64{0, 0, 0.5, -0.5, 1, -1, 2, -2}
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteWAV(f, samples, SampleRateHalf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	in, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer in.Close()
	dec := wav.NewDecoder(in)
	if !dec.IsValidFile() {
		t.Fatalf("expected a valid wav file")
	}
	if dec.SampleRate != SampleRateHalf || dec.NumChans != 2 || dec.BitDepth != 16 {
		t.Fatalf("unexpected format %d Hz, %d ch, %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []int{0, 0, 16384, -16384, 32767, -32767, 32767, -32767}
	if len(buf.Data) != len(want) {
		t.Fatalf("got %d samples, want %d", len(buf.Data), len(want))
	}
	for i, v := range want {
		if buf.Data[i] != v {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], v)
		}
	}
}

func TestEncodeWAVFloat32LE(t *testing.T) {
	out := EncodeWAVFloat32LE([]float64{0.25, -0.25}, SampleRate, 2)
	if len(out) != 44+8 || string(out[:4]) != "RIFF" || string(out[36:40]) != "data" {
		t.Fatalf("unexpected header")
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(out[48:])); got != -0.25 {
		t.Fatalf("second sample = %v, want -0.25", got)
	}
}

func energy(samples []float64) float64 {
	var e float64
	for _, s := range samples {
		e += math.Abs(s)
	}
	return e
}
