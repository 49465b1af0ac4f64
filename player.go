package siopm

import (
	"errors"
	"sync"
	"time"

	intaudio "github.com/cbegin/siopm-go/internal/audio"
	intfx "github.com/cbegin/siopm-go/internal/effects"
	intseq "github.com/cbegin/siopm-go/internal/sequencer"
)

// PlaybackEvent carries playback, timing and trigger events from Watch().
type PlaybackEvent struct {
	Kind      int // one of the Event constants
	TriggerID int
	Track     int
	Note      int
	Value     int // beat count, or tempo in bpm*100
}

const (
	EventLoopCompleted int = iota
	EventPlaybackEnded
	EventTrigger
	EventBeat
	EventTempo
)

// Backend selects the real-time audio output.
type Backend string

const (
	BackendEbiten Backend = "ebiten"
	BackendOto    Backend = "oto"
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	backend      Backend
	loopPlayback bool
	bufferLength int
	sampleTap    func([]float64)
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{backend: BackendEbiten, loopPlayback: true, bufferLength: 2048}
}

func WithBackend(b Backend) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.backend = b
	}
}

func WithLoopPlayback(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.loopPlayback = enabled
	}
}

// WithBufferLength sets the frames rendered per block. Shorter blocks
// lower latency at a higher scheduling cost.
func WithBufferLength(frames int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.bufferLength = frames
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float64)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

type Player struct {
	mu         sync.Mutex
	sampleRate int
	backend    Backend
	driver     *intseq.Driver
	router     *intfx.Router
	gain       *intfx.Gain
	masterEQ   *intfx.EQ5Band
	audio      intaudio.Output
	volume     float64
	sampleTap  func([]float64)
	gen        int
	rendered   int64
	ended      bool
	done       chan struct{}
	eventCh    chan PlaybackEvent
	eventChMu  sync.Mutex
}

// blockSource feeds one playback generation to the audio backend. It ends
// as soon as a newer Play or a Stop replaces it.
type blockSource struct {
	p   *Player
	gen int
}

func (s blockSource) NextBlock() []float64 {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.gen != p.gen || p.ended {
		return nil
	}
	out := p.driver.Process().Buffer
	p.rendered += int64(len(out) / 2)
	if p.sampleTap != nil {
		p.sampleTap(out)
	}
	if p.driver.IsFinished() {
		p.ended = true
		if p.done != nil {
			close(p.done)
			p.done = nil
		}
	}
	return out
}

// NewPlayer prepares a player. No audio device is opened until Play.
func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	switch cfg.backend {
	case BackendEbiten, BackendOto:
	default:
		return nil, errors.New("unknown audio backend")
	}
	p := &Player{
		sampleRate: sampleRate,
		backend:    cfg.backend,
		router:     intfx.NewRouter(),
		gain:       &intfx.Gain{Level: 1},
		masterEQ:   intfx.NewEQ5Band(sampleRate),
		volume:     1,
		sampleTap:  cfg.sampleTap,
		ended:      true,
	}
	d, err := intseq.New(
		intseq.WithSampleRate(sampleRate),
		intseq.WithBufferLength(cfg.bufferLength),
		intseq.WithLoop(cfg.loopPlayback),
		intseq.WithMixer(p.router),
		intseq.WithDispatcher(intseq.DispatcherFunc(p.dispatch)),
	)
	if err != nil {
		return nil, err
	}
	p.driver = d
	return p, nil
}

func (p *Player) PlayMML(mmlText string) error {
	p.mu.Lock()
	score, err := p.driver.Compile(mmlText)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.Play(score)
}

func (p *Player) Play(score *Score) error {
	if score == nil {
		return intseq.ErrNoScore
	}
	// Backends read blocks while starting and closing, so they are driven
	// without holding p.mu.
	if old := p.detach(); old != nil {
		_ = old.Stop()
	}

	p.mu.Lock()
	// Signal any existing Wait() that the previous playback was replaced
	if p.done != nil {
		close(p.done)
	}
	p.done = make(chan struct{})
	configureRouter(p.router, score.Definitions, p.sampleRate, p.masterEQ, p.gain)
	if err := p.driver.Play(score); err != nil {
		p.mu.Unlock()
		return err
	}
	p.rendered = 0
	p.ended = false
	backend, err := p.newOutput(blockSource{p: p, gen: p.gen})
	if err != nil {
		p.driver.Stop()
		p.ended = true
		p.mu.Unlock()
		return err
	}
	p.audio = backend
	p.mu.Unlock()

	backend.Play()
	return nil
}

// detach retires the current backend and its block source.
func (p *Player) detach() intaudio.Output {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.audio
	p.audio = nil
	p.gen++
	return old
}

func (p *Player) newOutput(src intaudio.BlockSource) (intaudio.Output, error) {
	if p.backend == BackendOto {
		return intaudio.NewOtoPlayer(p.sampleRate, src)
	}
	return intaudio.NewPlayer(p.sampleRate, src)
}

// dispatch runs inside NextBlock with p.mu held.
func (p *Player) dispatch(e intseq.DispatchEvent) {
	switch e.Kind {
	case intseq.DispatchLoop:
		p.sendEvent(PlaybackEvent{Kind: EventLoopCompleted, Track: -1})
	case intseq.DispatchFinish:
		p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded, Track: -1})
	case intseq.DispatchTrigger:
		p.sendEvent(PlaybackEvent{Kind: EventTrigger, TriggerID: e.Value, Track: e.Track, Note: e.Note})
	case intseq.DispatchBeat:
		p.sendEvent(PlaybackEvent{Kind: EventBeat, Track: -1, Value: e.Value})
	case intseq.DispatchTempo:
		p.sendEvent(PlaybackEvent{Kind: EventTempo, Track: -1, Value: e.Value})
	}
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full or closed; drop event
		}
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a != nil {
		a.Play()
	}
}

// IsPlaying reports whether a score is playing and not paused.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio != nil && !p.ended && p.audio.IsPlaying()
}

func (p *Player) Stop() error {
	a := p.detach()
	if a == nil {
		return nil
	}
	err := a.Stop()
	p.mu.Lock()
	p.driver.Stop()
	p.ended = true
	done := p.done
	p.done = nil
	p.mu.Unlock()
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded, Track: -1})
	if done != nil {
		close(done)
	}
	return err
}

// Wait blocks until the current playback ends. When loop playback is enabled,
// Wait blocks indefinitely (use Watch for loop-counting instead).
// Wait returns immediately if no playback is active or if it was stopped.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events. Events are sent when:
//   - EventLoopCompleted: a whole-score loop iteration finished (when looping)
//   - EventPlaybackEnded: playback finished (when not looping) or was stopped
//   - EventTrigger: a %t command fired (TriggerID, Track and Note set)
//   - EventBeat: a quarter note passed (Value is the beat count)
//   - EventTempo: the tempo changed (Value is bpm*100)
//
// The channel is buffered (cap 8); receive in a goroutine to avoid blocking the sequencer.
// Only the most recent Watch() channel receives events; call Watch before Play.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	p.gain.Level = volume
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// BPM returns the tempo of the playing score.
func (p *Player) BPM() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.driver.BPM()
}

// SetEQBand sets the gain for a master EQ band (0-4). 1.0 = unity.
// Band frequencies: 0=<200Hz, 1=200-800Hz, 2=800-2.5kHz, 3=2.5-8kHz, 4=>8kHz.
// This takes effect immediately on the audio thread (lock-free).
func (p *Player) SetEQBand(band int, gain float64) {
	p.masterEQ.SetGain(band, gain)
}

// EQBand returns the current gain for a master EQ band (0-4).
func (p *Player) EQBand(band int) float64 {
	return p.masterEQ.Gain(band)
}

// PlaybackPosition returns the current output position in frames. Backends
// that report what the listener hears right now are asked directly; others
// report the frames rendered so far. Returns 0 if not playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	a := p.audio
	rendered := p.rendered
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	if pa, ok := a.(interface{ Position() time.Duration }); ok {
		return int64(pa.Position().Seconds() * float64(p.sampleRate))
	}
	return rendered
}
