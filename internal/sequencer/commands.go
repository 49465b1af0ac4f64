package sequencer

import (
	"github.com/cbegin/siopm-go/internal/mml"
	"github.com/cbegin/siopm-go/internal/siopm"
)

// moduleTypes maps the first argument of "%" to a channel type.
var moduleTypes = []siopm.ChannelType{siopm.TypeFM, siopm.TypePCM, siopm.TypeSampler, siopm.TypeKS}

type command struct {
	name string
	fn   func(t *Track, args []int)
}

// commands are the channel commands the driver adds to the MML parser.
var commands = []command{
	{"@", (*Track).cmdVoice},
	{"@@", (*Track).cmdWave},
	{"@al", (*Track).cmdAlgorithm},
	{"@fb", (*Track).cmdFeedback},
	{"i", (*Track).cmdActiveOperator},
	{"%", (*Track).cmdModule},
	{"%m", (*Track).cmdMode},
	{"%s", (*Track).cmdSSG},
	{"%f", (*Track).cmdFilterType},
	{"%t", (*Track).cmdTrigger},
	{"@f", (*Track).cmdFilter},
	{"x", (*Track).cmdExpression},
	{"p", (*Track).cmdPan},
	{"@p", (*Track).cmdFinePan},
	{"k", (*Track).cmdDetune},
	{"@s", (*Track).cmdSend},
	{"ma", (*Track).cmdAmpMod},
	{"mp", (*Track).cmdPitchMod},
	{"@lfo", (*Track).cmdLFO},
	{"@i", (*Track).cmdInput},
	{"@o", (*Track).cmdOutput},
	{"@r", (*Track).cmdRing},
	{"@ph", (*Track).cmdPhase},
	{"@er", (*Track).cmdEnvelopeReset},
	{"@reg", (*Track).cmdRegister},
	{"@ks", (*Track).cmdKarplusStrong},
	{"na", func(t *Track, args []int) { t.cmdEnvelope(envAmp, args) }},
	{"np", func(t *Track, args []int) { t.cmdEnvelope(envPitch, args) }},
	{"nt", func(t *Track, args []int) { t.cmdEnvelope(envNote, args) }},
	{"nf", func(t *Track, args []int) { t.cmdEnvelope(envFilter, args) }},
}

func (d *Driver) registerCommands() error {
	for _, c := range commands {
		if _, err := d.seq.SetUserDefinedEvent(c.name, false, d.handle(c.fn)); err != nil {
			return err
		}
	}
	d.seq.SetEventHandler(mml.EventNote, d.onNote)
	d.seq.SetEventHandler(mml.EventRest, d.onRest)
	d.seq.SetEventHandler(mml.EventTable, d.onTable)
	d.seq.SetEventHandler(mml.EventVolume, d.handle(func(t *Track, a []int) {
		t.volume = a[0]
		t.updateVolume()
	}))
	d.seq.SetEventHandler(mml.EventVolumeShift, d.handle(func(t *Track, a []int) {
		t.volume = clampInt(t.volume+a[0], 0, t.d.seq.Parser().Settings().MaxVolume)
		t.updateVolume()
	}))
	d.seq.SetEventHandler(mml.EventFineVolume, d.handle(func(t *Track, a []int) {
		t.fineVolume = a[0]
		t.updateVolume()
	}))
	d.seq.SetEventHandler(mml.EventQuantRatio, d.handle(func(t *Track, a []int) { t.quantRatio = a[0] }))
	d.seq.SetEventHandler(mml.EventQuantCount, d.handle(func(t *Track, a []int) { t.quantCount = a[0] }))
	d.seq.SetEventHandler(mml.EventKeyOnDelay, d.handle(func(t *Track, a []int) { t.keyOnDelay = a[0] }))
	return nil
}

// handle wraps a track command: it collects the arguments and skips the
// command when it runs on the global executor.
func (d *Driver) handle(fn func(t *Track, args []int)) mml.EventHandler {
	return func(e *mml.Event) *mml.Event {
		args, next := e.Args(d.args)
		d.args = args
		if t := d.track(); t != nil {
			fn(t, args)
		}
		return next
	}
}

func (d *Driver) onNote(e *mml.Event) *mml.Event {
	if t := d.track(); t != nil {
		next := tieNone
		switch n := e.Next(); {
		case n == nil:
		case n.ID == mml.EventSlur:
			next = tieSlur
		case n.ID == mml.EventSlurWeak:
			next = tieWeak
		}
		t.scheduleNote(e.Data, e.Length, next)
	}
	return d.seq.PublishProcessing(e)
}

func (d *Driver) onRest(e *mml.Event) *mml.Event {
	if t := d.track(); t != nil {
		t.releaseTie()
	}
	return d.seq.PublishProcessing(e)
}

func (d *Driver) onTable(e *mml.Event) *mml.Event {
	d.lastTable = e.Data
	return e.Next()
}

// operators returns the operators addressed by operator-level commands.
func (t *Track) operators() []*siopm.Operator {
	if fm, ok := t.ch.(interface{ ActiveOperators() []*siopm.Operator }); ok {
		return fm.ActiveOperators()
	}
	ops := make([]*siopm.Operator, 0, t.ch.OperatorCount())
	for i := 0; i < t.ch.OperatorCount(); i++ {
		ops = append(ops, t.ch.Operator(i))
	}
	return ops
}

// cmdVoice applies a preset bound to the program number; without one the
// number selects the waveform of the addressed operators.
func (t *Track) cmdVoice(args []int) {
	n := mml.Arg(args, 0, 0)
	if p, ok := t.d.voices.Program(n); ok {
		t.ch.SetChannelParam(p, false)
		t.ch.SetPan(t.pan)
		t.updateVolume()
		return
	}
	t.setWave(n)
}

func (t *Track) cmdWave(args []int) {
	n := mml.Arg(args, 0, 0)
	if s, ok := t.ch.(interface{ SetBank(int) error }); ok {
		_ = s.SetBank(n)
		return
	}
	if t.ch.Type() == siopm.TypePCM {
		n += siopm.PGPCM
	}
	t.setWave(n)
}

func (t *Track) setWave(pg int) {
	if fm, ok := t.ch.(interface{ SetOperatorWave(int) error }); ok {
		if fm.SetOperatorWave(pg) != nil {
			return
		}
		t.applyPitch()
		return
	}
	for _, op := range t.operators() {
		if op.SetPulseGeneratorType(pg) != nil {
			return
		}
	}
	t.applyPitch()
}

func (t *Track) cmdAlgorithm(args []int) {
	t.ch.SetAlgorithm(mml.Arg(args, 0, t.ch.OperatorCount()), mml.Arg(args, 1, 0))
}

func (t *Track) cmdFeedback(args []int) {
	t.ch.SetFeedback(mml.Arg(args, 0, 0), mml.Arg(args, 1, 0))
}

func (t *Track) cmdActiveOperator(args []int) {
	if fm, ok := t.ch.(interface{ SetActiveOperator(int) }); ok {
		fm.SetActiveOperator(mml.Arg(args, 0, -1))
	}
}

// cmdModule moves the track onto a channel of another type. The new
// channel takes over routing and volumes from the old one.
func (t *Track) cmdModule(args []int) {
	i := mml.Arg(args, 0, 0)
	if i < 0 || i >= len(moduleTypes) {
		return
	}
	typ := moduleTypes[i]
	if typ != t.ch.Type() {
		ch, err := t.d.module.NewChannel(typ, t.ch, t.offset)
		if err != nil {
			return
		}
		t.d.module.DeleteChannel(t.ch)
		t.ch = ch
		t.note = -1
		t.ch.SetPan(t.pan)
		t.updateVolume()
	}
	sub := mml.Arg(args, 1, 0)
	switch c := t.ch.(type) {
	case interface{ SetRegisterChannel(int) }:
		c.SetRegisterChannel(sub)
	case interface{ SetBank(int) error }:
		_ = c.SetBank(sub)
	}
}

func (t *Track) cmdMode(args []int) {
	if fm, ok := t.ch.(interface{ SetMode(int) }); ok {
		fm.SetMode(mml.Arg(args, 0, siopm.ModeNormal))
	}
}

func (t *Track) cmdSSG(args []int) {
	for _, op := range t.operators() {
		op.SetSSGEnvelopeControl(mml.Arg(args, 0, 0))
	}
}

func (t *Track) cmdFilterType(args []int) {
	t.ch.SetFilterType(mml.Arg(args, 0, siopm.FilterLowPass))
}

func (t *Track) cmdTrigger(args []int) {
	t.d.dispatch(DispatchEvent{
		Kind:         DispatchTrigger,
		Track:        t.id,
		Note:         t.note,
		BufferOffset: t.offset,
		Value:        mml.Arg(args, 0, 0),
	})
}

func (t *Track) cmdFilter(args []int) {
	for i := range t.filter {
		t.filter[i] = mml.Arg(args, i, defaultFilter[i])
	}
	t.updateFilter()
}

func (t *Track) cmdExpression(args []int) {
	t.expression = clampInt(mml.Arg(args, 0, 128), 0, 128)
	t.updateVolume()
}

func (t *Track) cmdPan(args []int) {
	t.pan = clampInt(mml.Arg(args, 0, 4), 0, 8) * 16
	t.ch.SetPan(t.pan)
}

func (t *Track) cmdFinePan(args []int) {
	t.pan = clampInt(64+mml.Arg(args, 0, 0), 0, 128)
	t.ch.SetPan(t.pan)
}

func (t *Track) cmdDetune(args []int) {
	t.detune = mml.Arg(args, 0, 0)
	t.applyPitch()
}

func (t *Track) cmdSend(args []int) {
	slot := mml.Arg(args, 0, 0)
	level := clampInt(mml.Arg(args, 1, 64), 0, 128)
	t.ch.SetVolume(slot, float64(level)/128)
}

func (t *Track) cmdAmpMod(args []int) {
	t.ch.SetAmplitudeModulation(mml.Arg(args, 0, 0))
}

func (t *Track) cmdPitchMod(args []int) {
	t.ch.SetPitchModulation(mml.Arg(args, 0, 0))
}

// cmdLFO sets the LFO cycle in frames and optionally its wave.
func (t *Track) cmdLFO(args []int) {
	frames := mml.Arg(args, 0, 0)
	if frames > 0 {
		t.ch.SetLFOCycleTime(float64(frames) * 1000 / float64(t.d.fps))
	}
	if wave := mml.Arg(args, 1, -1); wave >= 0 {
		t.ch.SetLFOWave(wave)
	}
}

func (t *Track) cmdInput(args []int) {
	t.ch.SetInput(mml.Arg(args, 0, 0), mml.Arg(args, 1, 0))
}

func (t *Track) cmdOutput(args []int) {
	t.ch.SetOutput(mml.Arg(args, 0, siopm.OutputStandard), mml.Arg(args, 1, 0))
}

func (t *Track) cmdRing(args []int) {
	t.ch.SetRingModulation(mml.Arg(args, 0, 0), mml.Arg(args, 1, 0))
}

func (t *Track) cmdPhase(args []int) {
	for _, op := range t.operators() {
		op.SetKeyOnPhase(mml.Arg(args, 0, 0))
	}
}

func (t *Track) cmdEnvelopeReset(args []int) {
	for _, op := range t.operators() {
		op.SetEnvelopeReset(mml.Arg(args, 0, 1) != 0)
	}
}

func (t *Track) cmdRegister(args []int) {
	if len(args) < 2 || args[0] == mml.ArgUnset || args[1] == mml.ArgUnset {
		return
	}
	t.ch.SetRegister(args[0], args[1])
}

// cmdKarplusStrong sets the string decay constants in thousandths.
func (t *Track) cmdKarplusStrong(args []int) {
	ks, ok := t.ch.(interface {
		SetDecay(decay, lpf, muteDecay, muteLPF float64)
	})
	if !ok {
		return
	}
	f := func(i, def int) float64 { return float64(mml.Arg(args, i, def)) / 1000 }
	ks.SetDecay(f(0, 998), f(1, 500), f(2, 900), f(3, 500))
}

// cmdEnvelope starts a table envelope; the table index defaults to the
// last table defined and an unknown index switches the envelope off.
func (t *Track) cmdEnvelope(kind int, args []int) {
	table := t.d.table(mml.Arg(args, 0, mml.ArgUnset))
	t.setEnvelope(kind, table, mml.Arg(args, 1, 1))
}
