package siopm

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	intfx "github.com/cbegin/siopm-go/internal/effects"
	intseq "github.com/cbegin/siopm-go/internal/sequencer"
)

// MaxRenderSeconds bounds Render for scores that never go silent.
const MaxRenderSeconds = 600

// RenderSamples renders exactly seconds of interleaved stereo audio. The
// tail is silent when the score ends earlier.
func RenderSamples(score *Score, sampleRate int, seconds float64) ([]float64, error) {
	frames := int(float64(sampleRate) * seconds)
	return render(score, sampleRate, frames, false)
}

// Render renders the score until every track has ended and the channels
// have gone silent, up to MaxRenderSeconds.
func Render(score *Score, sampleRate int) ([]float64, error) {
	return render(score, sampleRate, sampleRate*MaxRenderSeconds, true)
}

// RenderMML compiles and renders mmlText.
func RenderMML(mmlText string, sampleRate int) ([]float64, error) {
	score, err := Compile(mmlText)
	if err != nil {
		return nil, err
	}
	return Render(score, sampleRate)
}

func render(score *Score, sampleRate, frames int, stopAtEnd bool) ([]float64, error) {
	if score == nil {
		return nil, errors.New("siopm: nil score")
	}
	router := intfx.NewRouter()
	configureRouter(router, score.Definitions, sampleRate)
	d, err := intseq.New(intseq.WithSampleRate(sampleRate), intseq.WithMixer(router))
	if err != nil {
		return nil, err
	}
	if err := d.Play(score); err != nil {
		return nil, err
	}
	out := make([]float64, 0, min(frames, sampleRate*10)*2)
	for len(out) < frames*2 {
		if stopAtEnd && d.IsFinished() {
			break
		}
		block := d.Process().Buffer
		out = append(out, block[:min(len(block), frames*2-len(out))]...)
	}
	return out, nil
}

// WriteWAV writes interleaved stereo samples as a 16-bit PCM WAV file.
func WriteWAV(w io.WriteSeeker, samples []float64, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Round(math.Max(-1, math.Min(1, s)) * math.MaxInt16))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// EncodeWAVFloat32LE encodes samples as an IEEE float WAV image in memory.
func EncodeWAVFloat32LE(samples []float64, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(float32(s)))
	}
	return out
}
