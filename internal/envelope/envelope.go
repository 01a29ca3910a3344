package envelope

// ADSR is a linear attack/decay/sustain/release envelope. Times are in
// seconds, Sustain is a level in [0, 1].
type ADSR struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

// DefaultADSR returns a short pluck-like envelope.
func DefaultADSR() ADSR {
	return ADSR{
		Attack:  0.005,
		Decay:   0.12,
		Sustain: 0.75,
		Release: 0.2,
	}
}

// BeforeDuringSustain ramps 0 to 1 over Attack, falls to Sustain over
// Decay, then holds.
func (e ADSR) BeforeDuringSustain(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t < e.Attack {
		return t / e.Attack
	}
	t -= e.Attack
	level := e.level()
	if t < e.Decay {
		return 1 - (1-level)*t/e.Decay
	}
	return level
}

// AfterSustain falls from Sustain to 0 over Release.
func (e ADSR) AfterSustain(t float64) float64 {
	level := e.level()
	if t < 0 {
		return level
	}
	if e.Release <= 0 || t >= e.Release {
		return 0
	}
	return level * (1 - t/e.Release)
}

func (e ADSR) ReleaseDuration() float64 {
	return max(0, e.Release)
}

func (e ADSR) level() float64 {
	return clamp(e.Sustain, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
