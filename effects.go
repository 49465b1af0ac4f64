package siopm

import (
	"strconv"
	"strings"
	"unicode"

	intfx "github.com/cbegin/siopm-go/internal/effects"
	intsiopm "github.com/cbegin/siopm-go/internal/siopm"
)

type effectSpec struct {
	name   string
	params []float64
}

// configureRouter connects the chains described by the #EFFECTn
// definitions of a score to the router's stream slots. EFFECT0 is the
// master chain; master effects run after it. Slots without a definition
// are disconnected.
func configureRouter(r *intfx.Router, defs map[string]string, sampleRate int, master ...intfx.Effector) {
	for slot := 0; slot < intsiopm.StreamSendSize; slot++ {
		var chain *intfx.Chain
		for _, spec := range parseEffectList(defs["EFFECT"+strconv.Itoa(slot)]) {
			eff := createEffect(spec.name, spec.params, sampleRate)
			if eff == nil {
				continue
			}
			if chain == nil {
				chain = intfx.NewChain()
			}
			chain.Add(eff)
		}
		if slot == 0 && len(master) > 0 {
			if chain == nil {
				chain = intfx.NewChain()
			}
			for _, eff := range master {
				chain.Add(eff)
			}
		}
		r.SetChain(slot, chain)
	}
}

// parseEffectList reads "type p1,p2 type p1 ...": every word starts an
// effect and the numbers after it are its parameters.
func parseEffectList(raw string) []effectSpec {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(raw), "{"), "}"))
	var specs []effectSpec
	for _, field := range strings.Fields(strings.ReplaceAll(raw, ", ", ",")) {
		if r := rune(field[0]); unicode.IsLetter(r) {
			specs = append(specs, effectSpec{name: strings.ToLower(field)})
			continue
		}
		if len(specs) == 0 {
			continue
		}
		last := &specs[len(specs)-1]
		for _, p := range strings.Split(field, ",") {
			if v, err := strconv.ParseFloat(strings.TrimSpace(p), 64); err == nil {
				last.params = append(last.params, v)
			}
		}
	}
	return specs
}

func createEffect(effectType string, params []float64, sampleRate int) intfx.Effector {
	getParam := func(idx int, def float64) float64 {
		if idx < len(params) {
			return params[idx]
		}
		return def
	}
	switch effectType {
	case "delay":
		return intfx.NewDelay(sampleRate,
			getParam(0, 250), // delay ms
			getParam(1, 0.4), // feedback
			getParam(2, 0.2), // cross
			getParam(3, 0.3), // wet
		)
	case "reverb":
		return intfx.NewReverb(sampleRate,
			getParam(0, 0.5),  // room size
			getParam(1, 0.7),  // feedback
			getParam(2, 0.25), // wet
		)
	case "chorus":
		return intfx.NewChorus(sampleRate,
			getParam(0, 15),  // delay ms
			getParam(1, 0.3), // feedback
			getParam(2, 3),   // depth ms
			getParam(3, 1.5), // rate Hz
			getParam(4, 0.4), // wet
		)
	case "dist", "distortion":
		return intfx.NewDistortion(sampleRate,
			getParam(0, 4),    // pre gain
			getParam(1, 0.5),  // post gain
			getParam(2, 8000), // lpf cutoff
		)
	case "eq":
		return intfx.NewEQ3Band(sampleRate,
			getParam(0, 1.0),  // low gain
			getParam(1, 1.0),  // mid gain
			getParam(2, 1.0),  // high gain
			getParam(3, 300),  // low freq
			getParam(4, 3000), // high freq
		)
	case "comp", "compressor":
		return intfx.NewCompressor(sampleRate,
			getParam(0, -20), // threshold dB
			getParam(1, 4),   // ratio
			getParam(2, 5),   // attack ms
			getParam(3, 100), // release ms
			getParam(4, 6),   // makeup dB
		)
	case "gain":
		return &intfx.Gain{Level: getParam(0, 1)}
	}
	return nil
}
