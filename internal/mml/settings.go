package mml

// MaxRepeatCount bounds the count of a "[...]n" repeat.
const MaxRepeatCount = 65535

// ParserSettings holds the defaults and ranges the parser checks commands
// against.
type ParserSettings struct {
	Resolution        int
	DefaultBPM        float64
	DefaultLValue     int
	DefaultOctave     int
	MinOctave         int
	MaxOctave         int
	DefaultVolume     int
	MaxVolume         int
	DefaultFineVolume int
	MaxFineVolume     int
	DefaultQuantRatio int
	MaxQuantRatio     int
	MaxQuantCount     int
	OctavePolarize    int
	VolumePolarize    int
}

// DefaultParserSettings returns the settings used when none are given.
func DefaultParserSettings() ParserSettings {
	return ParserSettings{
		Resolution:        1920,
		DefaultBPM:        120,
		DefaultLValue:     4,
		DefaultOctave:     5,
		MinOctave:         0,
		MaxOctave:         9,
		DefaultVolume:     16,
		MaxVolume:         16,
		DefaultFineVolume: 128,
		MaxFineVolume:     128,
		DefaultQuantRatio: 6,
		MaxQuantRatio:     8,
		MaxQuantCount:     192,
		OctavePolarize:    -1,
		VolumePolarize:    1,
	}
}

// QuantRatio returns the default gate as EventQuantRatio data.
func (s ParserSettings) QuantRatio() int {
	if s.MaxQuantRatio <= 0 {
		return QuantRatioScale
	}
	return s.DefaultQuantRatio * QuantRatioScale / s.MaxQuantRatio
}
