// Package tone holds the stock key generators. Each is stateless and pure
// given frequency, render parameters and duration.
package tone

import (
	"fmt"
	"math"

	"github.com/cbegin/pcmseq-go/internal/pcm"
)

const twoPi = math.Pi * 2

// Square emits +1 for the first half of every period and -1 for the second,
// for round(sampleRate*duration) frames.
type Square struct{}

func (Square) GenerateKey(frequency float64, params pcm.Params, duration float64) (*pcm.Buffer, error) {
	return periodic(frequency, params, duration, squareAt)
}

// Saw falls linearly from +1 to -1 across each period.
type Saw struct{}

func (Saw) GenerateKey(frequency float64, params pcm.Params, duration float64) (*pcm.Buffer, error) {
	return periodic(frequency, params, duration, sawAt)
}

// Triangle rises from -1 to +1 over the first half period and falls back.
type Triangle struct{}

func (Triangle) GenerateKey(frequency float64, params pcm.Params, duration float64) (*pcm.Buffer, error) {
	return periodic(frequency, params, duration, triangleAt)
}

// Sine emits exactly one cycle of round(sampleRate/frequency) frames
// whatever the requested duration; longer notes rely on looping.
type Sine struct{}

func (Sine) GenerateKey(frequency float64, params pcm.Params, duration float64) (*pcm.Buffer, error) {
	if err := check(frequency, params); err != nil {
		return nil, err
	}
	n := cycleFrames(frequency, params.SampleRate)
	out := pcm.NewBuffer(params, n)
	for i := 0; i < n; i++ {
		fill(out.Frame(i), math.Sin(twoPi*float64(i)/float64(n)))
	}
	return out, nil
}

func squareAt(phase float64) float64 {
	if phase < 0.5 {
		return 1
	}
	return -1
}

func sawAt(phase float64) float64 {
	return 1 - 2*phase
}

func triangleAt(phase float64) float64 {
	if phase < 0.5 {
		return 4*phase - 1
	}
	return 3 - 4*phase
}

func periodic(frequency float64, params pcm.Params, duration float64, shape func(float64) float64) (*pcm.Buffer, error) {
	if err := check(frequency, params); err != nil {
		return nil, err
	}
	sr := float64(params.SampleRate)
	frames := int(math.Round(sr * duration))
	out := pcm.NewBuffer(params, frames)
	for i := 0; i < frames; i++ {
		_, phase := math.Modf(float64(i) * frequency / sr)
		fill(out.Frame(i), shape(phase))
	}
	return out, nil
}

// cycleFrames is the length of one period in frames, at least one.
func cycleFrames(frequency float64, sampleRate int) int {
	return max(1, int(math.Round(float64(sampleRate)/frequency)))
}

func check(frequency float64, params pcm.Params) error {
	if !params.Format.IsFloat() {
		return fmt.Errorf("%w %s", pcm.ErrUnsupportedFormat, params.Format)
	}
	if params.SampleRate <= 0 || params.Channels <= 0 {
		return fmt.Errorf("tone: invalid params %+v", params)
	}
	if math.IsNaN(frequency) || math.IsInf(frequency, 0) || frequency <= 0 {
		return fmt.Errorf("tone: invalid frequency %v", frequency)
	}
	return nil
}

func fill(frame []float64, v float64) {
	for c := range frame {
		frame[c] = v
	}
}
