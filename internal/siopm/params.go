package siopm

// StreamSendSize is the number of stream slots a channel can send to.
// Slot 0 is the direct output, slots 1-7 feed effect chains.
const StreamSendSize = 8

// Filter types of the channel state-variable filter.
const (
	FilterLowPass = iota
	FilterBandPass
	FilterHighPass
)

// ChannelParam is a complete voice: channel settings plus up to four
// operator parameter sets.
type ChannelParam struct {
	OpCount            int `yaml:"ops"`
	Algorithm          int `yaml:"al"`
	Feedback           int `yaml:"fb"`
	FeedbackConnection int `yaml:"fbc"`
	LFOWave            int `yaml:"lfo_wave"`
	LFOFrequency       int `yaml:"lfo_freq"`
	AMD                int `yaml:"amd"`
	PMD                int `yaml:"pmd"`
	FilterType         int `yaml:"filter"`
	Cutoff             int `yaml:"cutoff"`
	Resonance          int `yaml:"resonance"`
	FilterAR           int `yaml:"far"`
	FilterDR1          int `yaml:"fdr1"`
	FilterDR2          int `yaml:"fdr2"`
	FilterRR           int `yaml:"frr"`
	FilterDC1          int `yaml:"fdc1"`
	FilterDC2          int `yaml:"fdc2"`
	FilterSC           int `yaml:"fsc"`
	FilterRC           int `yaml:"frc"`
	Pan                int `yaml:"pan"`

	Volumes   []float64       `yaml:"volumes,omitempty"`
	Operators []OperatorParam `yaml:"operators"`
}

// NewChannelParam returns a one-operator sine voice with chip defaults.
func NewChannelParam() *ChannelParam {
	p := &ChannelParam{}
	p.Initialize()
	return p
}

// Initialize restores the chip defaults.
func (p *ChannelParam) Initialize() {
	*p = ChannelParam{
		OpCount:      1,
		LFOWave:      2,
		LFOFrequency: 200,
		Cutoff:       128,
		FilterDC1:    128,
		FilterDC2:    128,
		FilterSC:     128,
		FilterRC:     128,
		Pan:          64,
		Operators:    make([]OperatorParam, 4),
	}
	for i := range p.Operators {
		p.Operators[i].Initialize()
	}
}

// Operator returns operator parameter set i, growing the slice as needed.
func (p *ChannelParam) Operator(i int) *OperatorParam {
	for len(p.Operators) <= i {
		var op OperatorParam
		op.Initialize()
		p.Operators = append(p.Operators, op)
	}
	return &p.Operators[i]
}

// Clone returns a deep copy.
func (p *ChannelParam) Clone() *ChannelParam {
	c := *p
	c.Volumes = append([]float64(nil), p.Volumes...)
	c.Operators = append([]OperatorParam(nil), p.Operators...)
	return &c
}
