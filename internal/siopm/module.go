package siopm

import (
	"fmt"

	"github.com/cbegin/siopm-go/internal/pipe"
)

// PipeSize is the number of shared pipes channels can route through.
const PipeSize = 5

// SamplerBankSize is the number of sampler tables a module holds.
const SamplerBankSize = 4

// Module is the sound chip: shared pipes, output streams, channel pools
// and loaded waves. It is not safe for concurrent use.
type Module struct {
	Table *Table

	outputChannels int
	bitRate        int
	bufferLength   int

	streams [StreamSendSize]*Stream

	pool        *pipe.Pool[int]
	zeroRing    *pipe.List[int]
	sinkRing    *pipe.List[int]
	zeroBuffer  *pipe.List[int]
	outputRing  *pipe.List[int]
	outputRingR *pipe.List[int]
	pipeBuffers [PipeSize]*pipe.List[int]

	managers [channelTypeMax]*ChannelManager

	customWaves   [customWaveCount]*WaveTable
	pcmWaves      [pcmWaveCount]*PCMData
	samplerTables [SamplerBankSize]*SamplerTable
}

// NewModule returns a stereo module with 1024-sample blocks.
func NewModule(sampleRate int) *Module {
	m := &Module{
		Table: TableFor(sampleRate),
		pool:  pipe.NewPool[int](),
	}
	m.zeroRing = pipe.NewRing(m.pool, 1, 0)
	m.sinkRing = pipe.NewRing(m.pool, 1, 0)
	for i := range m.managers {
		m.managers[i] = newChannelManager(m, ChannelType(i))
	}
	for i := range m.samplerTables {
		m.samplerTables[i] = &SamplerTable{}
	}
	m.Initialize(2, 0, 1024)
	return m
}

// Initialize sets the output channel count (1 or 2), the quantization bit
// rate (0 disables it) and the block length, reallocating the pipes when
// the block length changes.
func (m *Module) Initialize(channelCount, bitRate, bufferLength int) {
	if channelCount != 1 {
		channelCount = 2
	}
	if bufferLength < 1 {
		bufferLength = 1
	}
	m.outputChannels = channelCount
	m.bitRate = bitRate
	if bufferLength != m.bufferLength || m.zeroBuffer == nil {
		m.bufferLength = bufferLength
		for _, l := range []*pipe.List[int]{m.zeroBuffer, m.outputRing, m.outputRingR} {
			if l != nil {
				l.Clear()
			}
		}
		m.zeroBuffer = pipe.NewRing(m.pool, bufferLength, 0)
		m.outputRing = pipe.NewRing(m.pool, bufferLength, 0)
		m.outputRingR = pipe.NewRing(m.pool, bufferLength, 0)
		for i := range m.pipeBuffers {
			if m.pipeBuffers[i] != nil {
				m.pipeBuffers[i].Clear()
			}
			m.pipeBuffers[i] = pipe.NewRing(m.pool, bufferLength, 0)
		}
	}
	if m.streams[0] == nil {
		m.streams[0] = NewStream(bufferLength)
	}
	for _, s := range m.streams {
		if s != nil && s.Len() != bufferLength {
			s.Resize(bufferLength)
		}
	}
	m.InitializeAllChannels()
}

// Reset clears the pipes and streams and resets every channel.
func (m *Module) Reset() {
	for _, p := range m.pipeBuffers {
		p.Fill(0)
	}
	m.outputRing.Fill(0)
	m.outputRingR.Fill(0)
	for _, s := range m.streams {
		if s != nil {
			s.Clear()
		}
	}
	m.ResetAllChannels()
}

// SampleRate returns the output sample rate.
func (m *Module) SampleRate() int { return m.Table.SampleRate }

// BufferLength returns the block length in samples.
func (m *Module) BufferLength() int { return m.bufferLength }

// BitRate returns the quantization bit rate.
func (m *Module) BitRate() int { return m.bitRate }

// OutputChannels returns 1 for mono or 2 for stereo.
func (m *Module) OutputChannels() int { return m.outputChannels }

// BeginProcess clears the streams and rewinds every channel to the start
// of the block.
func (m *Module) BeginProcess() {
	for _, s := range m.streams {
		if s != nil {
			s.Clear()
		}
	}
	for _, mgr := range m.managers {
		mgr.resetBufferStatus()
	}
}

// EndProcess clamps the output stream to [-1, 1] and quantizes it when a
// bit rate is set.
func (m *Module) EndProcess() {
	out := m.streams[0]
	out.Limit()
	if m.bitRate > 0 {
		out.Quantize(m.bitRate)
	}
}

// OutputStream returns stream slot 0.
func (m *Module) OutputStream() *Stream { return m.streams[0] }

// StreamSlot returns stream slot i, or nil if none is attached.
func (m *Module) StreamSlot(i int) *Stream {
	if i < 0 || i >= StreamSendSize {
		return nil
	}
	return m.streams[i]
}

// SetStreamSlot attaches s to slot i (1-7). Slot 0 is fixed to the output.
func (m *Module) SetStreamSlot(i int, s *Stream) {
	if i <= 0 || i >= StreamSendSize {
		return
	}
	if s != nil && s.Len() != m.bufferLength {
		s.Resize(m.bufferLength)
	}
	m.streams[i] = s
}

// ZeroBuffer returns a block-length ring of zeros.
func (m *Module) ZeroBuffer() *pipe.List[int] { return m.zeroBuffer }

// PipeBuffer returns shared pipe i, wrapped into range.
func (m *Module) PipeBuffer(i int) *pipe.List[int] {
	return m.pipeBuffers[((i%PipeSize)+PipeSize)%PipeSize]
}

func (m *Module) zeroPipe() *pipe.Element[int] { return m.zeroRing.Front() }

// sinkPipe absorbs writes nobody reads.
func (m *Module) sinkPipe() *pipe.Element[int] { return m.sinkRing.Front() }

// Manager returns the pool for a channel type.
func (m *Module) Manager(t ChannelType) *ChannelManager {
	if t < 0 || t >= channelTypeMax {
		return nil
	}
	return m.managers[t]
}

// NewChannel allocates a channel of type t, carrying routing and volume
// state over from prev when it is not nil.
func (m *Module) NewChannel(t ChannelType, prev Channel, bufferIndex int) (Channel, error) {
	mgr := m.Manager(t)
	if mgr == nil {
		return nil, fmt.Errorf("%w: %d", ErrChannelType, t)
	}
	return mgr.Create(prev, bufferIndex), nil
}

// DeleteChannel returns ch to its pool.
func (m *Module) DeleteChannel(ch Channel) {
	if ch == nil {
		return
	}
	m.managers[ch.Type()].Delete(ch)
}

// InitializeAllChannels reinitializes every channel in use.
func (m *Module) InitializeAllChannels() {
	for _, mgr := range m.managers {
		mgr.InitializeAll()
	}
}

// ResetAllChannels resets every channel in use.
func (m *Module) ResetAllChannels() {
	for _, mgr := range m.managers {
		mgr.ResetAll()
	}
}

// SetCustomWave loads w into custom slot i (0-127), selected with wave
// number PGCustom+i.
func (m *Module) SetCustomWave(i int, w *WaveTable) error {
	if i < 0 || i >= customWaveCount {
		return fmt.Errorf("%w: custom %d", ErrWaveIndex, i)
	}
	m.customWaves[i] = w
	return nil
}

// SetPCMWave loads d into PCM slot i (0-127), selected with wave number
// PGPCM+i.
func (m *Module) SetPCMWave(i int, d *PCMData) error {
	if i < 0 || i >= pcmWaveCount {
		return fmt.Errorf("%w: pcm %d", ErrWaveIndex, i)
	}
	m.pcmWaves[i] = d
	return nil
}

// SamplerTable returns sampler bank i.
func (m *Module) SamplerTable(bank int) (*SamplerTable, error) {
	if bank < 0 || bank >= SamplerBankSize {
		return nil, fmt.Errorf("%w: sampler bank %d", ErrWaveIndex, bank)
	}
	return m.samplerTables[bank], nil
}

// waveTable resolves a built-in or custom wave number. It returns nil for
// numbers out of range or slots with nothing loaded.
func (m *Module) waveTable(pg int) *WaveTable {
	switch {
	case pg < 0 || pg >= PGMax:
		return nil
	case pg < PGCustom:
		return m.Table.Wave(pg)
	case pg < PGPCM:
		return m.customWaves[pg-PGCustom]
	}
	return nil
}

func (m *Module) pcmData(i int) *PCMData {
	if i < 0 || i >= pcmWaveCount {
		return nil
	}
	return m.pcmWaves[i]
}
