// Package fm renders keys with a single-voice, up to four operator FM
// synthesizer. Each key is one note: the operators attack at the first
// frame and are released so their decay ends with the key.
package fm

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cbegin/pcmseq-go/internal/pcm"
)

const twoPi = math.Pi * 2

// Waveform is the carrier shape. Modulators are always sine.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveSaw
	WaveTriangle
	WaveSquare
	WavePulse25
	WavePulse12
	WaveHalfSine
	WaveNoise
)

var waveNames = map[string]Waveform{
	"sine":     WaveSine,
	"saw":      WaveSaw,
	"triangle": WaveTriangle,
	"square":   WaveSquare,
	"pulse25":  WavePulse25,
	"pulse12":  WavePulse12,
	"halfsine": WaveHalfSine,
	"noise":    WaveNoise,
}

// ParseWaveform maps a carrier waveform name to its Waveform.
func ParseWaveform(name string) (Waveform, error) {
	if w, ok := waveNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return w, nil
	}
	return 0, fmt.Errorf("fm: unknown waveform %q", name)
}

// Filter selects how the one-pole output filter is applied.
type Filter int

const (
	FilterLowPass Filter = iota
	FilterHighPass
	FilterBandPass
)

// ParseFilter maps "lowpass", "highpass" or "bandpass" to a Filter.
func ParseFilter(name string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lowpass", "lp", "":
		return FilterLowPass, nil
	case "highpass", "hp":
		return FilterHighPass, nil
	case "bandpass", "bp":
		return FilterBandPass, nil
	}
	return 0, fmt.Errorf("fm: unknown filter %q", name)
}

// Params configures a Synth. Times are in seconds.
type Params struct {
	Operators  int     // 1-4
	Algorithm  int     // operator topology, 0-7; meaning depends on Operators
	Feedback   float64 // self-modulation of the top operator, 0-1
	Waveform   Waveform
	CarrierMul float64
	ModMul     float64
	ModIndex   float64
	Attack     float64
	Decay      float64
	Sustain    float64
	Release    float64
	Gain       float64
	Pan        float64 // -1 left to +1 right; stereo keys only
	Cutoff     float64 // filter cutoff in Hz, 0 disables
	Filter     Filter
	// Patch, when set, replaces the operator count, algorithm, feedback
	// and per-operator envelopes.
	Patch *Patch
}

func DefaultParams() Params {
	return Params{
		Operators:  2,
		CarrierMul: 1.0,
		ModMul:     2.0,
		ModIndex:   1.6,
		Attack:     0.005,
		Decay:      0.12,
		Sustain:    0.75,
		Release:    0.2,
		Gain:       0.8,
		Cutoff:     12000,
	}
}

// Patch is a four operator voice in OPM register terms, converted to
// seconds and linear levels.
type Patch struct {
	Algorithm int
	Feedback  float64
	Ops       [4]PatchOperator
}

type PatchOperator struct {
	Attack, Decay, Release float64
	Sustain                float64
	Level                  float64
	Mul                    float64
}

// PatchLen is the number of values in OPM patch data: algorithm and
// feedback, then AR D1R D2R RR D1L TL KS MUL DT1 DT2 AMS per operator.
const PatchLen = 2 + 4*11

var ErrShortPatch = errors.New("fm: short OPM patch")

// ParsePatch converts OPM patch data. Out of range registers are clamped.
func ParsePatch(data []int) (*Patch, error) {
	if len(data) < PatchLen {
		return nil, fmt.Errorf("%w: %d values, want %d", ErrShortPatch, len(data), PatchLen)
	}
	p := &Patch{
		Algorithm: clampInt(data[0], 0, 7),
		Feedback:  float64(clampInt(data[1], 0, 7)) / 7,
	}
	for i := range p.Ops {
		r := data[2+i*11:]
		ar, d1r, rr, d1l, tl, mul := r[0], r[1], r[3], r[4], r[5], r[7]
		op := &p.Ops[i]
		op.Attack = 0.001 + float64(31-clampInt(ar, 0, 31))/31*0.3
		op.Decay = 0.01 + float64(31-clampInt(d1r, 0, 31))/31*0.2
		op.Release = 0.01 + float64(15-clampInt(rr, 0, 15))/15*0.3
		op.Sustain = float64(clampInt(d1l, 0, 15)) / 15
		op.Level = float64(127-clampInt(tl, 0, 127)) / 127
		op.Mul = 0.5
		if mul != 0 {
			op.Mul = float64(clampInt(mul, 0, 15))
		}
	}
	return p, nil
}

var patchNum = regexp.MustCompile(`-?\d+`)

// ParsePatchText reads the integers of an OPM definition such as
// "@1 { 4 5 31 ... }". Only the text after the first brace is read when
// there is one, so program labels are skipped.
func ParsePatchText(text string) (*Patch, error) {
	if i := strings.Index(text, "{"); i >= 0 {
		text = text[i:]
	}
	nums := patchNum.FindAllString(text, -1)
	data := make([]int, 0, len(nums))
	for _, s := range nums {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("fm: patch value %q: %w", s, err)
		}
		data = append(data, n)
	}
	return ParsePatch(data)
}

// Synth is a sequencer key generator. Keys carry their own envelope, so
// instruments built on it should not loop.
type Synth struct {
	params Params
}

func New(params Params) *Synth {
	params.Operators = clampInt(params.Operators, 1, 4)
	params.Algorithm = clampInt(params.Algorithm, 0, 7)
	params.Feedback = clamp(params.Feedback, 0, 1)
	params.Sustain = clamp(params.Sustain, 0, 1)
	params.Pan = clamp(params.Pan, -1, 1)
	if params.Gain < 0 {
		params.Gain = 0
	}
	return &Synth{params: params}
}

func (s *Synth) Params() Params { return s.params }

// ReleaseDuration is the longest operator release. Key durations passed
// to GenerateKey are expected to include it.
func (s *Synth) ReleaseDuration() float64 {
	if p := s.params.Patch; p != nil {
		var d float64
		for _, op := range p.Ops {
			d = max(d, op.Release)
		}
		return d
	}
	return max(0, s.params.Release)
}

// GenerateKey renders round(sampleRate*duration) frames of one note at
// frequency. The note is released ReleaseDuration before the key ends, so
// keys no longer than the release are silent.
func (s *Synth) GenerateKey(frequency float64, params pcm.Params, duration float64) (*pcm.Buffer, error) {
	if !params.Format.IsFloat() {
		return nil, fmt.Errorf("%w %s", pcm.ErrUnsupportedFormat, params.Format)
	}
	if params.SampleRate <= 0 || params.Channels <= 0 {
		return nil, fmt.Errorf("fm: invalid params %+v", params)
	}
	if math.IsNaN(frequency) || math.IsInf(frequency, 0) || frequency <= 0 {
		return nil, fmt.Errorf("fm: invalid frequency %v", frequency)
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return nil, fmt.Errorf("fm: invalid duration %v", duration)
	}

	sr := float64(params.SampleRate)
	frames := int(math.Round(sr * duration))
	gate := max(0, frames-int(math.Round(sr*s.ReleaseDuration())))
	out := pcm.NewBuffer(params, frames)

	v := s.noteOn(frequency)
	f := newOutputFilter(s.params.Filter, s.params.Cutoff, sr)
	left, right := s.balance(params.Channels)
	for i := 0; i < frames; i++ {
		if i == gate {
			v.release()
		}
		x := clamp(f.apply(v.next(sr, s.params.ModIndex)*s.params.Gain), -1, 1)
		frame := out.Frame(i)
		for c := range frame {
			frame[c] = x
		}
		if params.Channels == 2 {
			frame[0] *= left
			frame[1] *= right
		}
	}
	return out, nil
}

// balance returns stereo channel gains for Pan, with both at 1 in the
// center.
func (s *Synth) balance(channels int) (float64, float64) {
	if channels != 2 {
		return 1, 1
	}
	return min(1, 1-s.params.Pan), min(1, 1+s.params.Pan)
}

// outputFilter is a one-pole smoother used as low, high or band pass.
type outputFilter struct {
	kind  Filter
	alpha float64
	lp    float64
	bp    float64
}

func newOutputFilter(kind Filter, cutoff, sampleRate float64) *outputFilter {
	f := &outputFilter{kind: kind}
	if cutoff > 0 && cutoff < sampleRate/2 {
		rc := 1 / (twoPi * cutoff)
		dt := 1 / sampleRate
		f.alpha = dt / (rc + dt)
	}
	return f
}

func (f *outputFilter) apply(x float64) float64 {
	if f.alpha == 0 {
		return x
	}
	f.lp += f.alpha * (x - f.lp)
	switch f.kind {
	case FilterHighPass:
		return x - f.lp
	case FilterBandPass:
		f.bp += f.alpha * (f.lp - f.bp)
		return f.lp - f.bp
	default:
		return f.lp
	}
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

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
