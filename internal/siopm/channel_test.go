package siopm

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func newTestModule(t testing.TB) *Module {
	t.Helper()
	m := NewModule(44100)
	m.Initialize(2, 0, 256)
	return m
}

func newTestChannel(t testing.TB, m *Module, kind ChannelType) Channel {
	t.Helper()
	ch, err := m.NewChannel(kind, nil, 0)
	if err != nil {
		t.Fatalf("NewChannel(%s): %v", kind, err)
	}
	return ch
}

// render runs n blocks and returns the summed absolute output.
func render(m *Module, blocks int, chs ...Channel) float64 {
	var energy float64
	for b := 0; b < blocks; b++ {
		m.BeginProcess()
		for _, ch := range chs {
			ch.Buffer(m.BufferLength())
		}
		m.EndProcess()
		for _, v := range m.OutputStream().Buffer {
			energy += math.Abs(v)
		}
	}
	return energy
}

func TestChannelPoolRoundTrip(t *testing.T) {
	m := newTestModule(t)
	for kind := TypeFM; kind < channelTypeMax; kind++ {
		ch := newTestChannel(t, m, kind)
		if ch.IsFree() {
			t.Fatalf("%s: new channel reported free", kind)
		}
		ch.SetPan(10)
		ch.SetVolume(0, 0.2)
		ch.SetVolume(3, 0.7)
		ch.SetMute(true)
		ch.SetPitchModulation(20)
		m.DeleteChannel(ch)
		if !ch.IsFree() {
			t.Fatalf("%s: deleted channel not free", kind)
		}
		again := newTestChannel(t, m, kind)
		if again != ch {
			t.Fatalf("%s: expected the freed instance to be reused", kind)
		}
		if again.IsFree() {
			t.Fatalf("%s: reused channel reported free", kind)
		}
		if again.Pan() != 64 || again.Volume(0) != 0.5 || again.Volume(3) != 0 || again.IsMute() {
			t.Fatalf("%s: state leaked: pan=%d vol0=%v vol3=%v mute=%v",
				kind, again.Pan(), again.Volume(0), again.Volume(3), again.IsMute())
		}
		var p ChannelParam
		again.ChannelParam(&p)
		if p.PMD != 0 {
			t.Fatalf("%s: pitch modulation leaked: %d", kind, p.PMD)
		}
		if n := m.Manager(kind).Len(); n != 1 {
			t.Fatalf("%s: manager allocated %d channels, want 1", kind, n)
		}
	}
}

func TestChannelPoolGrows(t *testing.T) {
	m := newTestModule(t)
	a := newTestChannel(t, m, TypeFM)
	b := newTestChannel(t, m, TypeFM)
	if a == b {
		t.Fatalf("two live channels must be distinct")
	}
	m.DeleteChannel(b)
	m.DeleteChannel(a)
	c := newTestChannel(t, m, TypeFM)
	if c != a && c != b {
		t.Fatalf("expected a freed channel to be reused")
	}
	if m.Manager(TypeFM).Len() != 2 {
		t.Fatalf("manager length %d, want 2", m.Manager(TypeFM).Len())
	}
	count := 0
	m.Manager(TypeFM).Each(func(Channel) { count++ })
	if count != 1 {
		t.Fatalf("Each visited %d channels, want 1", count)
	}
}

func TestChannelInitializeFromPrev(t *testing.T) {
	m := newTestModule(t)
	prev := newTestChannel(t, m, TypeFM)
	prev.SetPan(100)
	prev.SetVolume(2, 0.25)
	prev.SetOutput(OutputAdd, 1)
	ch, err := m.NewChannel(TypePCM, prev, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ch.Pan() != 100 || ch.Volume(2) != 0.25 {
		t.Fatalf("routing not copied: pan=%d vol2=%v", ch.Pan(), ch.Volume(2))
	}
	if ch.base().outputMode != OutputAdd || ch.base().outputIndex != 1 {
		t.Fatalf("output routing not copied")
	}
}

func TestUnknownChannelType(t *testing.T) {
	m := newTestModule(t)
	if _, err := m.NewChannel(ChannelType(42), nil, 0); err == nil {
		t.Fatalf("expected error for unknown channel type")
	}
}

func wiringString(a algorithm) string {
	parts := make([]string, len(a))
	for i, c := range a {
		s := fmt.Sprintf("%s>%s+%s", c.in, c.out, c.base)
		if c.final {
			s += "*"
		}
		parts[i] = s
	}
	return strings.Join(parts, " ")
}

func TestAlgorithmWiring(t *testing.T) {
	for _, tc := range []struct {
		ops, alg int
		want     string
	}{
		{1, 0, "in>out+base*"},
		{2, 0, "in>pipe0+zero pipe0>out+base*"},
		{2, 1, "in>out+base* zero>out+out*"},
		{3, 0, "in>pipe0+zero pipe0>pipe0+zero pipe0>out+base*"},
		{3, 1, "in>pipe0+zero zero>pipe0+pipe0 pipe0>out+base*"},
		{3, 2, "in>out+base* zero>pipe0+zero pipe0>out+out*"},
		{3, 3, "in>pipe0+zero pipe0>out+base* zero>out+out*"},
		{3, 4, "in>pipe0+zero pipe0>out+base* pipe0>out+out*"},
		{3, 5, "in>out+base* zero>out+out* zero>out+out*"},
		{4, 0, "in>pipe0+zero pipe0>pipe0+zero pipe0>pipe0+zero pipe0>out+base*"},
		{4, 1, "in>pipe0+zero zero>pipe0+pipe0 pipe0>pipe0+zero pipe0>out+base*"},
		{4, 2, "in>pipe0+zero zero>pipe1+zero pipe1>pipe0+pipe0 pipe0>out+base*"},
		{4, 3, "in>pipe0+zero pipe0>pipe1+zero zero>pipe1+pipe1 pipe1>out+base*"},
		{4, 4, "in>pipe0+zero pipe0>out+base* zero>pipe1+zero pipe1>out+out*"},
		{4, 5, "in>pipe0+zero pipe0>out+base* pipe0>out+out* pipe0>out+out*"},
		{4, 6, "in>pipe0+zero pipe0>out+base* zero>out+out* zero>out+out*"},
		{4, 7, "in>out+base* zero>out+out* zero>out+out* zero>out+out*"},
		{4, 8, "in>pipe0+zero pipe0>pipe0+zero pipe0>out+base* zero>out+out*"},
		{4, 9, "in>out+base* zero>pipe0+zero pipe0>pipe0+zero pipe0>out+out*"},
		{4, 10, "in>out+base* zero>pipe0+zero pipe0>out+out* zero>out+out*"},
		{4, 11, "in>pipe0+zero pipe0>pipe1+zero pipe0>pipe1+pipe1 pipe1>out+base*"},
		{4, 12, "in>pipe0+zero zero>pipe0+pipe0 zero>pipe0+pipe0 pipe0>out+base*"},
	} {
		got := wiringString(algorithmTable(tc.ops)[tc.alg])
		if got != tc.want {
			t.Errorf("%d ops alg %d:\n got  %s\n want %s", tc.ops, tc.alg, got, tc.want)
		}
	}
	for ops, n := range map[int]int{1: 1, 2: 2, 3: 6, 4: 13} {
		if AlgorithmCount(ops) != n {
			t.Errorf("AlgorithmCount(%d) = %d, want %d", ops, AlgorithmCount(ops), n)
		}
	}
}

func TestSetAlgorithmMarksFinalOperators(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypeFM).(*ChannelFM)
	ch.SetAlgorithm(4, 4)
	want := []bool{false, true, false, true}
	for i, w := range want {
		if ch.Operator(i).isFinal != w {
			t.Fatalf("op %d final=%v, want %v", i, ch.Operator(i).isFinal, w)
		}
	}
	ch.SetAlgorithm(4, 99)
	if ch.Algorithm() != 4 || !ch.Operator(3).isFinal {
		t.Fatalf("unknown algorithm must keep algorithm 4, got %d", ch.Algorithm())
	}
	ch.SetMode(42)
	if ch.Mode() != ModeNormal || ch.OperatorCount() != 4 {
		t.Fatalf("unknown mode must be ignored")
	}
	ch.SetAlgorithm(5, 0)
	if ch.OperatorCount() != 4 {
		t.Fatalf("invalid operator count must be ignored")
	}
}

func TestFMChannelRenders(t *testing.T) {
	for _, tc := range []struct {
		name     string
		ops, alg int
		mode     int
		fb       int
	}{
		{"1op", 1, 0, ModeNormal, 0},
		{"2op serial feedback", 2, 0, ModeNormal, 5},
		{"4op alg7", 4, 7, ModeNormal, 0},
		{"4op alg11", 4, 11, ModeNormal, 3},
		{"analog", 2, 0, ModeAnalogLike, 0},
		{"ring", 2, 0, ModeRing, 0},
		{"sync", 2, 0, ModeSync, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestModule(t)
			ch := newTestChannel(t, m, TypeFM).(*ChannelFM)
			ch.SetAlgorithm(tc.ops, tc.alg)
			if tc.mode != ModeNormal {
				ch.SetMode(tc.mode)
				ch.Operator(1).SetMultiple(3)
			}
			ch.SetFeedback(tc.fb, 0)
			if silent := render(m, 2, ch); silent != 0 {
				t.Fatalf("idle channel wrote %v", silent)
			}
			ch.NoteOn()
			if !ch.IsNoteOn() || ch.IsIdling() {
				t.Fatalf("expected active channel after note on")
			}
			if energy := render(m, 4, ch); energy == 0 {
				t.Fatalf("expected output")
			}
			for _, v := range m.OutputStream().Buffer {
				if v < -1 || v > 1 {
					t.Fatalf("sample %v outside [-1, 1]", v)
				}
			}
		})
	}
}

func TestMutedChannelIsSilent(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypeFM)
	ch.SetMute(true)
	ch.NoteOn()
	if energy := render(m, 2, ch); energy != 0 {
		t.Fatalf("muted channel wrote %v", energy)
	}
}

func TestPanBiasesChannels(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypeFM)
	ch.SetPan(0)
	ch.NoteOn()
	render(m, 1, ch)
	var left, right float64
	buf := m.OutputStream().Buffer
	for i := 0; i < len(buf); i += 2 {
		left += math.Abs(buf[i])
		right += math.Abs(buf[i+1])
	}
	if left == 0 || right > left*1e-6 {
		t.Fatalf("expected hard-left output, left=%v right=%v", left, right)
	}
}

func TestEffectSendWritesSlots(t *testing.T) {
	m := newTestModule(t)
	send := NewStream(m.BufferLength())
	m.SetStreamSlot(1, send)
	ch := newTestChannel(t, m, TypeFM)
	ch.SetVolume(1, 1)
	ch.NoteOn()
	render(m, 1, ch)
	var energy float64
	for _, v := range send.Buffer {
		energy += math.Abs(v)
	}
	if energy == 0 {
		t.Fatalf("expected the send slot to receive signal")
	}
}

func TestPipeRoutingFeedsSecondChannel(t *testing.T) {
	m := newTestModule(t)
	src := newTestChannel(t, m, TypeFM)
	src.SetOutput(OutputOverwrite, 2)
	dst := newTestChannel(t, m, TypeFM)
	dst.SetInput(7, 2)
	src.NoteOn()
	render(m, 1, src)
	if m.OutputStream().Buffer[10] != 0 {
		t.Fatalf("overwrite output must not reach the streams")
	}
	var sum int
	m.PipeBuffer(2).Each(func(v int) {
		if v < 0 {
			v = -v
		}
		sum += v
	})
	if sum == 0 {
		t.Fatalf("expected signal in pipe 2")
	}
	dst.NoteOn()
	if energy := render(m, 1, src, dst); energy == 0 {
		t.Fatalf("expected modulated output")
	}
}

func TestPipeIndicesCoverEveryPipe(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypeFM)
	for i := 0; i < PipeSize; i++ {
		ch.SetOutput(OutputOverwrite, i)
		if b := ch.base(); b.outputIndex != i || b.outRing != m.PipeBuffer(i) {
			t.Fatalf("output pipe %d routed to %d", i, b.outputIndex)
		}
		ch.SetInput(3, i)
		if b := ch.base(); b.inputIndex != i || b.inRing != m.PipeBuffer(i) {
			t.Fatalf("input pipe %d routed to %d", i, b.inputIndex)
		}
	}
	for _, bad := range []int{-1, PipeSize, 7} {
		ch.SetOutput(OutputAdd, bad)
		ch.SetInput(5, bad)
		ch.SetRingModulation(4, bad)
		b := ch.base()
		if b.outputMode != OutputOverwrite || b.outputIndex != PipeSize-1 {
			t.Fatalf("pipe %d changed the output routing", bad)
		}
		if b.inputIndex != PipeSize-1 || b.inputLevel != 3 {
			t.Fatalf("pipe %d changed the input routing", bad)
		}
		if b.ringRing != nil {
			t.Fatalf("pipe %d connected ring modulation", bad)
		}
	}
	ch.SetOutput(9, 1)
	if ch.base().outputMode != OutputOverwrite || ch.base().outputIndex != PipeSize-1 {
		t.Fatalf("unknown output mode changed the routing")
	}
}

func TestFilterTypeIgnoresUnknown(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypeFM)
	ch.SetFilterType(FilterHighPass)
	ch.SetFilterType(9)
	ch.SetFilterType(-1)
	if ch.base().filterType != FilterHighPass {
		t.Fatalf("unknown filter type replaced high-pass with %d", ch.base().filterType)
	}
}

func TestRingModulationSilencedByZeroPipe(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypeFM)
	ch.SetRingModulation(8, 3)
	ch.NoteOn()
	if energy := render(m, 1, ch); energy != 0 {
		t.Fatalf("ring modulation by an empty pipe must silence, got %v", energy)
	}
}

func TestFilterEnvelopeMovesCutoff(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypeFM)
	b := ch.base()
	ch.SetSVFilter(128, 2, 60, 60, 0, 60, 32, 64, 64, 128)
	ch.NoteOn()
	render(m, 40, ch)
	if got := b.FilterCutoff(); got != 64 {
		t.Fatalf("cutoff %d after decay, want sustain 64", got)
	}
	ch.NoteOff()
	render(m, 40, ch)
	if got := b.FilterCutoff(); got != 128 {
		t.Fatalf("cutoff %d after release, want 128", got)
	}
}

func TestFilterLowPassAttenuates(t *testing.T) {
	m := newTestModule(t)
	open := newTestChannel(t, m, TypeFM)
	open.SetPitch(96 << HalfToneBits)
	open.NoteOn()
	openEnergy := render(m, 2, open)

	m2 := newTestModule(t)
	closed := newTestChannel(t, m2, TypeFM)
	closed.SetPitch(96 << HalfToneBits)
	closed.SetSVFilter(20, 0, 0, 0, 0, 0, 20, 20, 20, 20)
	closed.NoteOn()
	closedEnergy := render(m2, 2, closed)
	if closedEnergy >= openEnergy/2 {
		t.Fatalf("low-pass did not attenuate: open=%v closed=%v", openEnergy, closedEnergy)
	}
}

func TestLFOModulatesPitch(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypeFM).(*ChannelFM)
	ch.SetLFOCycleTime(10)
	ch.SetPitchModulation(100)
	ch.NoteOn()
	seen := map[int]bool{}
	for i := 0; i < 20; i++ {
		render(m, 1, ch)
		seen[ch.Operator(0).PhaseStep()] = true
	}
	if len(seen) < 2 {
		t.Fatalf("pitch modulation did not change the phase step")
	}
	ch.SetPitchModulation(0)
	if ch.Operator(0).pmOffset != 0 {
		t.Fatalf("turning modulation off must clear the offset")
	}
}

func TestRegisterKeyCode(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypeFM)
	ch.SetRegister(0x28, 0x4a)
	if got, want := ch.Pitch(), 69<<HalfToneBits; got != want {
		t.Fatalf("pitch %d, want %d (A4)", got, want)
	}
	ch.SetRegister(0x30, 32<<2)
	if got, want := ch.Pitch(), 69<<HalfToneBits|32; got != want {
		t.Fatalf("pitch %d, want %d", got, want)
	}
	ch.SetRegister(0x29, 0x00)
	if ch.Pitch()>>HalfToneBits != 69 {
		t.Fatalf("write to another channel must be ignored")
	}
}

func TestRegisterConnection(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypeFM).(*ChannelFM)
	ch.SetRegister(0x20, 0x40|5<<3|4)
	if ch.OperatorCount() != 4 || ch.Algorithm() != 4 {
		t.Fatalf("got %d ops alg %d, want 4 ops alg 4", ch.OperatorCount(), ch.Algorithm())
	}
	if ch.Pan() != 0 || ch.IsMute() {
		t.Fatalf("RL=1 must pan left, got pan %d mute %v", ch.Pan(), ch.IsMute())
	}
	if ch.feedback != 5 {
		t.Fatalf("feedback %d, want 5", ch.feedback)
	}
	ch.SetRegister(0x20, 0x00)
	if !ch.IsMute() {
		t.Fatalf("RL=0 must mute")
	}
	ch.SetRegister(0x60, 0x20)
	if ch.Operator(0).tl != 0x20 {
		t.Fatalf("TL register not applied to M1")
	}
	ch.SetRegister(0x68, 0x10)
	if ch.Operator(2).tl != 0x10 {
		t.Fatalf("TL register slot M2 must address operator 2")
	}
	ch.SetRegister(0x08, 0x78)
	if !ch.IsNoteOn() {
		t.Fatalf("key on register ignored")
	}
	ch.SetRegister(0x08, 0x00)
	if ch.IsNoteOn() {
		t.Fatalf("key off register ignored")
	}
}

func TestPCMChannelPlaysOnce(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypePCM)
	samples := make([]float64, 300)
	for i := range samples {
		samples[i] = math.Sin(float64(i) / 5)
	}
	if err := ch.SetWaveData(NewPCMData(samples, 1, -1)); err != nil {
		t.Fatal(err)
	}
	ch.SetPitch(60 << HalfToneBits)
	ch.NoteOn()
	if energy := render(m, 1, ch); energy == 0 {
		t.Fatalf("expected PCM output")
	}
	render(m, 2, ch)
	if !ch.IsIdling() {
		t.Fatalf("one-shot PCM must idle after its end point")
	}
	if err := ch.SetWaveData(NewWaveTable([]float64{1, -1}, PTOPM)); err == nil {
		t.Fatalf("PCM channel must reject wave tables")
	}
}

func TestStereoPCMChannel(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypePCM)
	samples := make([]float64, 2048)
	for i := 0; i < len(samples); i += 2 {
		samples[i] = 0.8
	}
	if err := ch.SetWaveData(NewPCMData(samples, 2, 0)); err != nil {
		t.Fatal(err)
	}
	ch.NoteOn()
	render(m, 1, ch)
	buf := m.OutputStream().Buffer
	var left, right float64
	for i := 0; i < len(buf); i += 2 {
		left += math.Abs(buf[i])
		right += math.Abs(buf[i+1])
	}
	if left == 0 || right > left*0.01 {
		t.Fatalf("stereo data must keep channels apart, left=%v right=%v", left, right)
	}
}

func TestFMChannelPlaysPCMWave(t *testing.T) {
	m := newTestModule(t)
	if err := m.SetPCMWave(1, NewPCMData([]float64{0.5, -0.5, 0.5, -0.5}, 1, 0)); err != nil {
		t.Fatal(err)
	}
	ch := newTestChannel(t, m, TypeFM)
	p := NewChannelParam()
	p.Operators[0].PGType = PGPCM + 1
	ch.SetChannelParam(p, false)
	ch.NoteOn()
	if energy := render(m, 1, ch); energy == 0 {
		t.Fatalf("expected PCM output from an FM channel")
	}
}

func TestFMChannelKeepsPCMOnOneOperator(t *testing.T) {
	m := newTestModule(t)
	if err := m.SetPCMWave(1, NewPCMData([]float64{0.5, -0.5, 0.5, -0.5}, 1, 0)); err != nil {
		t.Fatal(err)
	}
	ch := newTestChannel(t, m, TypeFM).(*ChannelFM)
	ch.SetAlgorithm(1, 0)
	if err := ch.SetOperatorWave(PGPCM + 1); err != nil {
		t.Fatalf("pcm wave on a one-operator voice: %v", err)
	}
	if ch.Operator(0).pcmChannels == 0 {
		t.Fatalf("expected the operator to hold pcm data")
	}
	ch.SetAlgorithm(4, 0)
	if o := ch.Operator(0); o.pcmChannels != 0 || o.pgType != PGSine {
		t.Fatalf("four-operator voice kept pcm data, pg=%d", o.pgType)
	}
	if err := ch.SetOperatorWave(PGPCM + 1); !errors.Is(err, ErrWaveData) {
		t.Fatalf("expected ErrWaveData for pcm on four operators, got %v", err)
	}
	if err := ch.SetOperatorWave(PGSawUp); err != nil {
		t.Fatalf("saw wave: %v", err)
	}
}

func TestSamplerChannel(t *testing.T) {
	m := newTestModule(t)
	bank, err := m.SamplerTable(0)
	if err != nil {
		t.Fatal(err)
	}
	hit := make([]float64, 100)
	for i := range hit {
		hit[i] = 0.5
	}
	bank.Set(36, NewSamplerData(hit, 1, -1, true))
	ch := newTestChannel(t, m, TypeSampler)
	ch.SetPitch(36 << HalfToneBits)
	ch.NoteOn()
	if ch.IsIdling() {
		t.Fatalf("sampler must be active after note on")
	}
	ch.NoteOff()
	if energy := render(m, 1, ch); energy == 0 {
		t.Fatalf("ignore-note-off sample must keep playing")
	}
	if !ch.IsIdling() {
		t.Fatalf("one-shot sample must stop at its end")
	}
	ch.SetPitch(37 << HalfToneBits)
	ch.NoteOn()
	if !ch.IsIdling() {
		t.Fatalf("unmapped note must stay silent")
	}
	if err := ch.(*ChannelSampler).SetBank(SamplerBankSize); err == nil {
		t.Fatalf("expected error for bank out of range")
	}
}

func TestSamplerSkipsUnplayableSamples(t *testing.T) {
	m := newTestModule(t)
	bank, err := m.SamplerTable(0)
	if err != nil {
		t.Fatal(err)
	}
	bank.Set(40, NewSamplerData(nil, 1, -1, false))
	bank.Set(41, &SamplerData{Samples: make([]float64, 4), Channels: 1, EndPoint: 10})
	bank.Set(42, &SamplerData{Samples: make([]float64, 4), Channels: 2, StartPoint: 2, EndPoint: 2})
	ch := newTestChannel(t, m, TypeSampler)
	for note := 40; note <= 42; note++ {
		ch.SetPitch(note << HalfToneBits)
		ch.NoteOn()
		if !ch.IsIdling() {
			t.Fatalf("note %d: unplayable sample must stay silent", note)
		}
		if energy := render(m, 1, ch); energy != 0 {
			t.Fatalf("note %d: unplayable sample rendered %v", note, energy)
		}
	}
}

func TestKSChannelDecays(t *testing.T) {
	m := newTestModule(t)
	ch := newTestChannel(t, m, TypeKS)
	ch.SetPitch(60 << HalfToneBits)
	ch.NoteOn()
	if energy := render(m, 8, ch); energy == 0 {
		t.Fatalf("expected plucked output")
	}
	ch.NoteOff()
	for i := 0; i < 200 && !ch.IsIdling(); i++ {
		render(m, 1, ch)
	}
	if !ch.IsIdling() {
		t.Fatalf("released string never went idle")
	}
	ks := ch.(*ChannelKS)
	before := ks.delay
	ch.NoteOn()
	for i, v := range ks.delay {
		if math.Abs(v-before[i]*ksNoteOnDamp) > 1e-9 {
			t.Fatalf("note on must damp the residual string, %v -> %v", before[i], v)
		}
	}
}

func TestKSWavelengthFollowsPitch(t *testing.T) {
	m := newTestModule(t)
	ks := newTestChannel(t, m, TypeKS).(*ChannelKS)
	ks.SetPitch(69 << HalfToneBits)
	if got := ks.wavelength(); math.Abs(got-44100.0/440) > 0.01 {
		t.Fatalf("wavelength %v, want %v", got, 44100.0/440)
	}
	ks.SetPitch(-12 << HalfToneBits)
	if ks.wavelength() != KSBufferSize-1 {
		t.Fatalf("low notes must clamp to the buffer")
	}
}

func TestStreamLimitAndQuantize(t *testing.T) {
	s := NewStream(2)
	copy(s.Buffer, []float64{1.5, -2, 0.3, -0.3})
	s.Limit()
	if s.Buffer[0] != 1 || s.Buffer[1] != -1 || s.Buffer[2] != 0.3 {
		t.Fatalf("limit: %v", s.Buffer)
	}
	s.Quantize(2)
	want := []float64{1, -1, 0.5, -0.5}
	for i, w := range want {
		if s.Buffer[i] != w {
			t.Fatalf("quantize: %v, want %v", s.Buffer, want)
		}
	}
}

func TestModuleQuantizesOutput(t *testing.T) {
	m := NewModule(44100)
	m.Initialize(2, 4, 128)
	ch := newTestChannel(t, m, TypeFM)
	ch.NoteOn()
	render(m, 1, ch)
	for _, v := range m.OutputStream().Buffer {
		if q := v * 8; q != math.Round(q) {
			t.Fatalf("sample %v not on a 4-bit grid", v)
		}
	}
}

func BenchmarkFMChannel4Op(b *testing.B) {
	m := newTestModule(b)
	ch := newTestChannel(b, m, TypeFM)
	ch.SetAlgorithm(4, 0)
	ch.SetFeedback(3, 0)
	ch.NoteOn()
	for i := 0; i < b.N; i++ {
		render(m, 1, ch)
	}
}
