package sequencer

import (
	"github.com/cbegin/siopm-go/internal/mml"
	"github.com/cbegin/siopm-go/internal/voice"
)

// Option configures a Driver.
type Option func(*config)

type config struct {
	sampleRate   int
	bufferLength int
	bitRate      int
	channels     int
	loop         bool
	dispatcher   Dispatcher
	mixer        Mixer
	voices       *voice.Table
	settings     mml.ParserSettings
}

func defaultConfig() config {
	return config{
		sampleRate:   44100,
		bufferLength: 2048,
		channels:     2,
		settings:     mml.DefaultParserSettings(),
	}
}

// WithSampleRate sets the output sample rate. The chip only supports
// 44100 and 22050.
func WithSampleRate(sr int) Option {
	return func(c *config) {
		c.sampleRate = sr
	}
}

// WithBufferLength sets the frames rendered by one Process call.
func WithBufferLength(n int) Option {
	return func(c *config) {
		c.bufferLength = n
	}
}

// WithBitRate quantizes the output to 8, 16 or 24 bits. 0 leaves it
// unquantized.
func WithBitRate(bits int) Option {
	return func(c *config) {
		c.bitRate = bits
	}
}

// WithLoop restarts the score when every track has finished.
func WithLoop(enabled bool) Option {
	return func(c *config) {
		c.loop = enabled
	}
}

// WithDispatcher receives note, beat, tempo and lifecycle notifications.
func WithDispatcher(d Dispatcher) Option {
	return func(c *config) {
		c.dispatcher = d
	}
}

// WithMixer runs m over the stream slots of every block before the output
// is limited.
func WithMixer(m Mixer) Option {
	return func(c *config) {
		c.mixer = m
	}
}

// WithVoiceTable replaces the built-in presets used by the "@" command.
func WithVoiceTable(t *voice.Table) Option {
	return func(c *config) {
		c.voices = t
	}
}

// WithParserSettings replaces the MML parser defaults.
func WithParserSettings(s mml.ParserSettings) Option {
	return func(c *config) {
		c.settings = s
	}
}
