package tone

import (
	"encoding/hex"
	"errors"
	"math"

	"github.com/cbegin/pcmseq-go/internal/pcm"
)

// Wavetable plays back a single-cycle waveform, resampled with linear
// interpolation to one period of the requested frequency.
type Wavetable struct {
	table []float64
}

// NewWavetable copies samples (typically 32-256 values, one cycle).
func NewWavetable(samples []float64) *Wavetable {
	cp := make([]float64, len(samples))
	copy(cp, samples)
	return &Wavetable{table: cp}
}

// DefaultWavetable is a 64-point sine.
func DefaultWavetable() *Wavetable {
	sine := make([]float64, 64)
	for i := range sine {
		sine[i] = math.Sin(twoPi * float64(i) / float64(len(sine)))
	}
	return &Wavetable{table: sine}
}

func (w *Wavetable) Len() int { return len(w.table) }

func (w *Wavetable) GenerateKey(frequency float64, params pcm.Params, duration float64) (*pcm.Buffer, error) {
	if err := check(frequency, params); err != nil {
		return nil, err
	}
	if len(w.table) == 0 {
		return nil, errors.New("tone: empty wavetable")
	}
	n := cycleFrames(frequency, params.SampleRate)
	out := pcm.NewBuffer(params, n)
	step := float64(len(w.table)) / float64(n)
	for i := 0; i < n; i++ {
		fill(out.Frame(i), w.at(float64(i)*step))
	}
	return out, nil
}

func (w *Wavetable) at(phase float64) float64 {
	idx := math.Floor(phase)
	frac := phase - idx
	i0 := int(idx) % len(w.table)
	if i0 < 0 {
		i0 += len(w.table)
	}
	i1 := (i0 + 1) % len(w.table)
	return w.table[i0]*(1-frac) + w.table[i1]*frac
}

// ParseWAVB converts a hex string (pairs of hex digits representing signed 8-bit
// values) into a slice of float64 samples normalized to the range [-1, 1].
func ParseWAVB(h string) ([]float64, error) {
	data, err := hex.DecodeString(h)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(data))
	for i, b := range data {
		out[i] = max(-1, float64(int8(b))/127.0)
	}
	return out, nil
}
