// Package sequencer drives the sound chip from compiled MML: every track of
// a score gets an executor and a chip channel, and each Process call
// renders one block with note events placed at sample accuracy.
package sequencer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cbegin/siopm-go/internal/mml"
	"github.com/cbegin/siopm-go/internal/siopm"
	"github.com/cbegin/siopm-go/internal/voice"
)

var (
	// ErrConfig reports an unsupported driver option.
	ErrConfig = errors.New("sequencer: invalid configuration")
	// ErrNoScore reports a nil score passed to Play.
	ErrNoScore = errors.New("sequencer: no score")
)

// Mixer post-processes the chip's stream slots once the channels of a
// block are rendered.
type Mixer interface {
	Prepare(m *siopm.Module)
	Mix(m *siopm.Module)
}

// defaultFPS is the table envelope frame rate when a score sets no #FPS.
const defaultFPS = 60

// Driver owns a chip module and an MML sequencer. It is not safe for
// concurrent use.
type Driver struct {
	cfg    config
	module *siopm.Module
	seq    *mml.Sequencer
	voices *voice.Table

	score     *mml.Score
	tracks    []*Track
	byExec    map[*mml.Executor]*Track
	pos       int
	spt       float64
	beatPos   float64
	beats     int
	lastTable int
	fps       int
	finished  bool
	args      []int
}

// New returns a driver with a chip module sized by the options.
func New(opts ...Option) (*Driver, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate != 44100 && cfg.sampleRate != 22050 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrConfig, cfg.sampleRate)
	}
	if cfg.bufferLength < 1 {
		return nil, fmt.Errorf("%w: buffer length %d", ErrConfig, cfg.bufferLength)
	}
	switch cfg.bitRate {
	case 0, 8, 16, 24:
	default:
		return nil, fmt.Errorf("%w: bit rate %d", ErrConfig, cfg.bitRate)
	}
	if cfg.voices == nil {
		cfg.voices = voice.Default()
	}
	d := &Driver{
		cfg:       cfg,
		module:    siopm.NewModule(cfg.sampleRate),
		seq:       mml.NewSequencer(cfg.sampleRate, cfg.settings),
		voices:    cfg.voices,
		byExec:    make(map[*mml.Executor]*Track),
		lastTable: -1,
		finished:  true,
	}
	d.module.Initialize(cfg.channels, cfg.bitRate, cfg.bufferLength)
	d.seq.SetProcessHandler(d.onProcess)
	d.seq.SetTempoHandler(d.onTempo)
	if err := d.registerCommands(); err != nil {
		return nil, err
	}
	return d, nil
}

// Module returns the chip, for loading waves and samples.
func (d *Driver) Module() *siopm.Module { return d.module }

// Sequencer returns the MML sequencer.
func (d *Driver) Sequencer() *mml.Sequencer { return d.seq }

// Voices returns the preset table used by the "@" command.
func (d *Driver) Voices() *voice.Table { return d.voices }

// Tracks returns the tracks of the playing score.
func (d *Driver) Tracks() []*Track { return d.tracks }

// BPM returns the current tempo.
func (d *Driver) BPM() float64 { return d.seq.BPM() }

// Score returns the playing score, nil when stopped.
func (d *Driver) Score() *mml.Score { return d.score }

// Compile parses MML text with the driver's commands registered.
func (d *Driver) Compile(text string) (*mml.Score, error) {
	return d.seq.Compile(text)
}

// PlayMML compiles text and starts playing it.
func (d *Driver) PlayMML(text string) error {
	score, err := d.Compile(text)
	if err != nil {
		return err
	}
	return d.Play(score)
}

// Play stops the current score and starts score from its beginning.
func (d *Driver) Play(score *mml.Score) error {
	if score == nil {
		return ErrNoScore
	}
	d.Stop()
	d.module.Reset()
	if d.cfg.mixer != nil {
		d.cfg.mixer.Prepare(d.module)
	}
	d.score = score
	d.fps = scoreFPS(score)
	d.start()
	return nil
}

func (d *Driver) start() {
	d.seq.Prepare(d.score)
	execs := d.seq.Executors()
	clear(d.byExec)
	for i, x := range execs {
		if i < len(d.tracks) {
			d.tracks[i].bind(x)
		} else {
			d.tracks = append(d.tracks, d.newTrack(i, x))
		}
		d.byExec[x] = d.tracks[i]
	}
	for _, t := range d.tracks[len(execs):] {
		d.module.DeleteChannel(t.ch)
	}
	d.tracks = d.tracks[:len(execs)]
	d.spt = d.seq.SamplesPerTick()
	d.beatPos = 0
	d.beats = 0
	d.lastTable = -1
	d.finished = false
}

func (d *Driver) newTrack(id int, x *mml.Executor) *Track {
	ch, err := d.module.NewChannel(siopm.TypeFM, nil, 0)
	if err != nil {
		panic(err)
	}
	t := &Track{id: id, d: d, ch: ch}
	t.bind(x)
	return t
}

// Stop ends playback and releases every channel.
func (d *Driver) Stop() {
	d.seq.Stop()
	for _, t := range d.tracks {
		d.module.DeleteChannel(t.ch)
	}
	d.tracks = d.tracks[:0]
	clear(d.byExec)
	d.score = nil
	d.finished = true
}

// IsFinished reports whether the score has ended and every channel has
// gone silent. A looping driver never finishes.
func (d *Driver) IsFinished() bool { return d.finished }

// Process renders one block and returns the output stream, valid until
// the next call.
func (d *Driver) Process() *siopm.Stream {
	n := d.module.BufferLength()
	d.module.BeginProcess()
	for _, t := range d.tracks {
		t.offset = 0
	}
	if d.score != nil && !d.seq.IsFinished() {
		restartedAt := -1
		for d.pos = 0; d.pos < n; {
			step := d.seq.StepGlobal(n - d.pos)
			used := 0
			for _, t := range d.tracks {
				c, _ := d.seq.ProcessExecutor(t.exec, step)
				used = max(used, c)
			}
			if d.cfg.loop && len(d.tracks) > 0 && d.seq.IsFinished() {
				at := d.pos + used
				if at == restartedAt {
					// Nothing played since the last restart.
					break
				}
				d.restart(at)
				restartedAt = at
				d.pos = at
				continue
			}
			d.pos += step
		}
	}
	for _, t := range d.tracks {
		t.buffer(n - t.offset)
	}
	if !d.finished {
		d.beat(n)
		d.beatPos -= float64(n)
	}
	if d.cfg.mixer != nil {
		d.cfg.mixer.Mix(d.module)
	}
	d.module.EndProcess()
	d.checkEnd()
	return d.module.OutputStream()
}

// restart loops the score at sample at of the current block. Every track
// renders up to the loop point first so the next pass starts there.
func (d *Driver) restart(at int) {
	for _, t := range d.tracks {
		t.buffer(at - t.offset)
	}
	d.beat(at)
	d.start()
	d.beatPos = float64(at)
	d.dispatch(DispatchEvent{Kind: DispatchLoop, Track: -1, BufferOffset: at})
}

func (d *Driver) checkEnd() {
	if d.finished || d.score == nil || !d.seq.IsFinished() {
		return
	}
	if d.cfg.loop && len(d.seq.Executors()) > 0 {
		d.start()
		d.dispatch(DispatchEvent{Kind: DispatchLoop, Track: -1})
		return
	}
	for _, t := range d.tracks {
		if !t.ch.IsIdling() {
			return
		}
	}
	d.finished = true
	d.dispatch(DispatchEvent{Kind: DispatchFinish, Track: -1, BufferOffset: d.module.BufferLength()})
}

// beat dispatches the beats that fall before sample limit of the current
// block.
func (d *Driver) beat(limit int) {
	beatLen := d.seq.SamplesPerTick() * float64(d.seq.Resolution()/4)
	if beatLen <= 0 {
		return
	}
	for d.beatPos < float64(limit) {
		d.dispatch(DispatchEvent{Kind: DispatchBeat, Track: -1, BufferOffset: int(d.beatPos), Value: d.beats})
		d.beats++
		d.beatPos += beatLen
	}
}

func (d *Driver) dispatch(e DispatchEvent) {
	if d.cfg.dispatcher != nil {
		d.cfg.dispatcher.Dispatch(e)
	}
}

func (d *Driver) onProcess(x *mml.Executor, n int) {
	if t := d.byExec[x]; t != nil {
		t.buffer(n)
	}
}

func (d *Driver) onTempo(bpm float64) {
	if spt := d.seq.SamplesPerTick(); spt != d.spt {
		for _, t := range d.tracks {
			t.rescale(spt / d.spt)
		}
		d.spt = spt
	}
	d.dispatch(DispatchEvent{
		Kind:         DispatchTempo,
		Track:        -1,
		BufferOffset: d.pos,
		Value:        int(math.Round(bpm * mml.TempoScale)),
	})
}

// track returns the track whose executor is running, nil for the global
// executor.
func (d *Driver) track() *Track {
	return d.byExec[d.seq.Current()]
}

func (d *Driver) table(i int) []int {
	if i == mml.ArgUnset {
		i = d.lastTable
	}
	if d.score == nil || i < 0 {
		return nil
	}
	return d.score.Tables[i]
}

func scoreFPS(score *mml.Score) int {
	if raw, ok := score.Definitions["FPS"]; ok {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v > 0 {
			return v
		}
	}
	return defaultFPS
}
