package fm

import "math"

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type operator struct {
	phase   float64
	env     float64
	state   envState
	mul     float64
	level   float64 // 1 is full output
	attack  float64
	decay   float64
	sustain float64
	release float64
	prevOut float64
}

// advance moves the envelope one frame forward.
func (op *operator) advance(sampleRate float64) {
	switch op.state {
	case envAttack:
		op.env += step(1, op.attack, sampleRate)
		if op.env >= 1 {
			op.env = 1
			op.state = envDecay
		}
	case envDecay:
		op.env -= step(1-op.sustain, op.decay, sampleRate)
		if op.env <= op.sustain {
			op.env = op.sustain
			op.state = envSustain
		}
	case envRelease:
		op.env -= step(op.sustain, op.release, sampleRate)
		if op.env <= 0.0001 {
			op.env = 0
			op.state = envOff
		}
	case envOff:
		op.env = 0
	}
}

// step is the per-frame change covering span over seconds, or the whole
// span at once for instant stages.
func step(span, seconds, sampleRate float64) float64 {
	if seconds <= 0 || span <= 0 {
		return 1
	}
	return span / (seconds * sampleRate)
}

type voice struct {
	freq     float64
	ops      [4]operator
	numOps   int
	alg      int
	fb       float64
	waveform Waveform
	noise    uint32
}

func (s *Synth) noteOn(freq float64) *voice {
	p := s.params
	v := &voice{
		freq:     freq,
		numOps:   p.Operators,
		alg:      p.Algorithm,
		fb:       p.Feedback,
		waveform: p.Waveform,
		noise:    0x7FFF,
	}
	if pat := p.Patch; pat != nil {
		v.numOps = 4
		v.alg = pat.Algorithm
		v.fb = pat.Feedback
		for i, op := range pat.Ops {
			v.ops[i] = operator{
				mul:     op.Mul,
				level:   op.Level,
				attack:  op.Attack,
				decay:   op.Decay,
				sustain: op.Sustain,
				release: op.Release,
			}
		}
		return v
	}
	muls := [4]float64{p.CarrierMul, p.ModMul, 3, 4}
	for i := 0; i < v.numOps; i++ {
		level := 1.0
		if i > 0 {
			level = p.ModIndex / 8
		}
		v.ops[i] = operator{
			mul:     muls[i],
			level:   level,
			attack:  p.Attack,
			decay:   p.Decay,
			sustain: p.Sustain,
			release: p.Release,
		}
	}
	return v
}

func (v *voice) release() {
	for i := 0; i < v.numOps; i++ {
		if v.ops[i].state != envOff {
			v.ops[i].state = envRelease
		}
	}
}

// next advances the envelopes, renders one sample and advances phases.
func (v *voice) next(sampleRate, modIndex float64) float64 {
	for i := 0; i < v.numOps; i++ {
		v.ops[i].advance(sampleRate)
	}
	x := v.render(modIndex)
	for i := 0; i < v.numOps; i++ {
		op := &v.ops[i]
		op.phase += twoPi * v.freq * op.mul / sampleRate
		if op.phase > twoPi {
			op.phase -= twoPi
		}
	}
	return x
}

// render connects the operators for the voice's algorithm. Operator 0 is
// always a carrier; parallel carriers are scaled by 1/sqrt(n).
func (v *voice) render(modIndex float64) float64 {
	ops := &v.ops
	var out [4]float64
	for i := 0; i < v.numOps; i++ {
		out[i] = ops[i].env * ops[i].level
	}
	mod := func(i int, in float64) float64 {
		return math.Sin(ops[i].phase+in) * out[i] * modIndex
	}
	carrier := func(i int, in float64) float64 {
		return v.wave(ops[i].phase+in) * out[i]
	}
	feedback := func(i int) float64 {
		fb := ops[i].prevOut * v.fb * math.Pi
		ops[i].prevOut = math.Sin(ops[i].phase+fb) * out[i]
		return fb
	}

	switch v.numOps {
	case 1:
		fb := ops[0].prevOut * v.fb * math.Pi
		s := carrier(0, fb)
		ops[0].prevOut = s
		return s
	case 2:
		if v.alg == 1 {
			return (carrier(0, 0) + carrier(1, 0)) / math.Sqrt2
		}
		return carrier(0, mod(1, feedback(1)))
	case 3:
		switch v.alg {
		case 1:
			return carrier(0, mod(1, mod(2, feedback(2))))
		case 2:
			return carrier(0, mod(1, 0)+mod(2, 0))
		case 3:
			return (carrier(0, 0) + carrier(1, 0) + carrier(2, 0)) / math.Sqrt(3)
		default:
			return carrier(0, mod(1, mod(2, 0)))
		}
	default:
		switch v.alg {
		case 1:
			return carrier(0, mod(1, mod(2, mod(3, 0))))
		case 2:
			return carrier(0, mod(1, mod(2, 0)+mod(3, 0)))
		case 3:
			return (carrier(0, mod(3, 0)) + carrier(1, mod(2, 0))) / math.Sqrt2
		case 4:
			s1 := math.Sin(ops[1].phase+mod(2, mod(3, 0))) * out[1]
			return (carrier(0, 0) + s1) / math.Sqrt2
		case 5:
			return (carrier(0, 0) + carrier(1, 0) + carrier(2, 0) + carrier(3, 0)) / 2
		default:
			return carrier(0, mod(1, mod(2, mod(3, feedback(3)))))
		}
	}
}

// wave samples the carrier waveform at phase.
func (v *voice) wave(phase float64) float64 {
	cycle := math.Mod(phase, twoPi)
	if cycle < 0 {
		cycle += twoPi
	}
	switch v.waveform {
	case WaveSaw:
		return 1 - 2*cycle/twoPi
	case WaveTriangle:
		return 2*math.Abs(2*cycle/twoPi-1) - 1
	case WaveSquare:
		return pulse(cycle, math.Pi)
	case WavePulse25:
		return pulse(cycle, math.Pi/2)
	case WavePulse12:
		return pulse(cycle, math.Pi/4)
	case WaveHalfSine:
		return max(0, math.Sin(phase))
	case WaveNoise:
		v.noise = (v.noise >> 1) ^ (-(v.noise & 1) & 0xB400)
		return float64(v.noise)/0xFFFF*2 - 1
	default:
		return math.Sin(phase)
	}
}

func pulse(cycle, width float64) float64 {
	if cycle < width {
		return 1
	}
	return -1
}
