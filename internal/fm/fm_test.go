package fm

import (
	"errors"
	"math"
	"testing"

	"github.com/cbegin/pcmseq-go/internal/pcm"
)

func monoF32(rate int) pcm.Params {
	return pcm.Params{SampleRate: rate, Channels: 1, Format: pcm.FormatFloat32}
}

func peak(samples []float64) float64 {
	var p float64
	for _, s := range samples {
		p = max(p, math.Abs(s))
	}
	return p
}

func TestGenerateKeySignalAndLength(t *testing.T) {
	buf, err := New(DefaultParams()).GenerateKey(440, monoF32(8000), 0.3)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if got := buf.Frames(); got != 2400 {
		t.Fatalf("frames = %d, want 2400", got)
	}
	p := peak(buf.Samples)
	if p < 0.01 {
		t.Fatalf("expected non-zero output, peak %v", p)
	}
	if p > 1 {
		t.Fatalf("peak = %v, want <= 1", p)
	}
}

func TestGenerateKeyReleasesBeforeEnd(t *testing.T) {
	params := DefaultParams()
	params.Cutoff = 0
	s := New(params)
	if got := s.ReleaseDuration(); got != 0.2 {
		t.Fatalf("ReleaseDuration() = %v, want 0.2", got)
	}
	// 0.3s held, then 0.2s of release.
	buf, err := s.GenerateKey(440, monoF32(8000), 0.5)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	held := peak(buf.Samples[1600:2400])
	if held < 0.3 {
		t.Fatalf("sustain peak = %v, want >= 0.3", held)
	}
	mid := peak(buf.Samples[3100:3300])
	if mid >= held || mid < 0.05 {
		t.Fatalf("mid-release peak = %v, want between 0.05 and %v", mid, held)
	}
	if tail := peak(buf.Samples[3990:]); tail > 0.01 {
		t.Fatalf("end of key = %v, want silent", tail)
	}
}

func TestGenerateKeyShorterThanRelease(t *testing.T) {
	buf, err := New(DefaultParams()).GenerateKey(440, monoF32(8000), 0.05)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if got := buf.Frames(); got != 400 {
		t.Fatalf("frames = %d, want 400", got)
	}
	// Released before the first frame.
	if p := peak(buf.Samples); p != 0 {
		t.Fatalf("peak = %v, want 0", p)
	}
}

func TestGenerateKeyChannels(t *testing.T) {
	params := DefaultParams()
	params.Pan = -1
	stereo := pcm.Params{SampleRate: 8000, Channels: 2, Format: pcm.FormatFloat64}
	buf, err := New(params).GenerateKey(440, stereo, 0.3)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var left, right float64
	for i := 0; i < buf.Frames(); i++ {
		left += math.Abs(buf.Sample(i, 0))
		right += math.Abs(buf.Sample(i, 1))
	}
	if left == 0 || right != 0 {
		t.Fatalf("hard left pan: left=%f right=%f", left, right)
	}

	wide := pcm.Params{SampleRate: 8000, Channels: 3, Format: pcm.FormatFloat32}
	buf, err = New(DefaultParams()).GenerateKey(440, wide, 0.3)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	for i := 0; i < buf.Frames(); i++ {
		f := buf.Frame(i)
		if f[0] != f[1] || f[1] != f[2] {
			t.Fatalf("frame %d channels differ: %v", i, f)
		}
	}
}

func TestGenerateKeyErrors(t *testing.T) {
	s := New(DefaultParams())
	int16Params := pcm.Params{SampleRate: 8000, Channels: 1, Format: pcm.FormatInt16}
	if _, err := s.GenerateKey(440, int16Params, 0.1); !errors.Is(err, pcm.ErrUnsupportedFormat) {
		t.Fatalf("int16 err = %v, want ErrUnsupportedFormat", err)
	}
	for _, f := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := s.GenerateKey(f, monoF32(8000), 0.1); err == nil {
			t.Fatalf("expected error for frequency %v", f)
		}
	}
	if _, err := s.GenerateKey(440, monoF32(8000), math.Inf(1)); err == nil {
		t.Fatalf("expected error for infinite duration")
	}
}

func TestMultiOperatorAlgorithms(t *testing.T) {
	for _, tc := range []struct {
		name    string
		opCount int
		alg     int
	}{
		{"1-op", 1, 0},
		{"2-op serial", 2, 0},
		{"2-op parallel", 2, 1},
		{"3-op cascade", 3, 0},
		{"3-op serial feedback", 3, 1},
		{"3-op two modulators", 3, 2},
		{"3-op all-parallel", 3, 3},
		{"4-op cascade", 4, 0},
		{"4-op serial", 4, 1},
		{"4-op branch", 4, 2},
		{"4-op two pairs", 4, 3},
		{"4-op carrier plus stack", 4, 4},
		{"4-op all-parallel", 4, 5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			params := DefaultParams()
			params.Operators = tc.opCount
			params.Algorithm = tc.alg
			params.Feedback = 0.3
			buf, err := New(params).GenerateKey(261.63, monoF32(48000), 0.25)
			if err != nil {
				t.Fatalf("GenerateKey: %v", err)
			}
			if p := peak(buf.Samples); p < 0.001 || p > 1 {
				t.Fatalf("peak = %f", p)
			}
		})
	}
}

func TestWaveformTypes(t *testing.T) {
	for name, w := range waveNames {
		t.Run(name, func(t *testing.T) {
			parsed, err := ParseWaveform(name)
			if err != nil || parsed != w {
				t.Fatalf("ParseWaveform(%q) = %v, %v", name, parsed, err)
			}
			params := DefaultParams()
			params.Operators = 1
			params.Waveform = w
			buf, err := New(params).GenerateKey(440, monoF32(48000), 0.25)
			if err != nil {
				t.Fatalf("GenerateKey: %v", err)
			}
			if p := peak(buf.Samples); p < 0.001 || p > 1 {
				t.Fatalf("peak = %f", p)
			}
		})
	}
	if _, err := ParseWaveform("kazoo"); err == nil {
		t.Fatalf("expected error for unknown waveform")
	}
}

func TestLowPassSoftensSaw(t *testing.T) {
	render := func(cutoff float64) float64 {
		params := DefaultParams()
		params.Operators = 1
		params.Waveform = WaveSaw
		params.Cutoff = cutoff
		buf, err := New(params).GenerateKey(440, monoF32(8000), 0.4)
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		return peak(buf.Samples)
	}
	if open, closed := render(0), render(100); closed >= open {
		t.Fatalf("cutoff 100 Hz peak = %v, unfiltered %v", closed, open)
	}
}

func TestFilterKinds(t *testing.T) {
	for _, name := range []string{"lowpass", "highpass", "bandpass"} {
		kind, err := ParseFilter(name)
		if err != nil {
			t.Fatalf("ParseFilter(%q): %v", name, err)
		}
		params := DefaultParams()
		params.Cutoff = 1000
		params.Filter = kind
		buf, err := New(params).GenerateKey(440, monoF32(8000), 0.3)
		if err != nil {
			t.Fatalf("%s: GenerateKey: %v", name, err)
		}
		if p := peak(buf.Samples); p < 0.001 || p > 1 {
			t.Fatalf("%s: peak = %f", name, p)
		}
	}
	if _, err := ParseFilter("comb"); err == nil {
		t.Fatalf("expected error for unknown filter")
	}
}

func TestFeedbackProducesDifferentOutput(t *testing.T) {
	render := func(fb float64) []float64 {
		params := DefaultParams()
		params.Operators = 1
		params.Feedback = fb
		buf, err := New(params).GenerateKey(440, monoF32(48000), 0.25)
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		return buf.Samples
	}
	plain, fed := render(0), render(0.8)
	var diff float64
	for i := range plain {
		diff += math.Abs(plain[i] - fed[i])
	}
	if diff < 0.01 {
		t.Fatalf("feedback had no effect, diff=%f", diff)
	}
}

func TestGenerateKeyIsDeterministic(t *testing.T) {
	params := DefaultParams()
	params.Operators = 1
	params.Waveform = WaveNoise
	s := New(params)
	a, err := s.GenerateKey(440, monoF32(8000), 0.25)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	b, err := s.GenerateKey(440, monoF32(8000), 0.25)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a.Samples[i], b.Samples[i])
		}
	}
}

func opmData() []int {
	data := []int{4, 7}
	for op := 0; op < 4; op++ {
		// AR D1R D2R RR D1L TL KS MUL DT1 DT2 AMS
		data = append(data, 31, 31, 0, 15, 15, 0, 0, op, 0, 0, 0)
	}
	return data
}

func TestParsePatch(t *testing.T) {
	if _, err := ParsePatch([]int{1, 2, 3}); !errors.Is(err, ErrShortPatch) {
		t.Fatalf("short patch err = %v, want ErrShortPatch", err)
	}
	p, err := ParsePatch(opmData())
	if err != nil {
		t.Fatalf("ParsePatch: %v", err)
	}
	if p.Algorithm != 4 || p.Feedback != 1 {
		t.Fatalf("patch = %+v", p)
	}
	op := p.Ops[0]
	if math.Abs(op.Attack-0.001) > 1e-12 || math.Abs(op.Decay-0.01) > 1e-12 ||
		math.Abs(op.Release-0.01) > 1e-12 || op.Sustain != 1 || op.Level != 1 || op.Mul != 0.5 {
		t.Fatalf("op 0 = %+v", op)
	}
	if p.Ops[2].Mul != 2 {
		t.Fatalf("op 2 mul = %v, want 2", p.Ops[2].Mul)
	}

	params := DefaultParams()
	params.Patch = p
	s := New(params)
	if got := s.ReleaseDuration(); math.Abs(got-0.01) > 1e-12 {
		t.Fatalf("ReleaseDuration() = %v, want 0.01", got)
	}
	buf, err := s.GenerateKey(440, monoF32(8000), 0.1)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if pk := peak(buf.Samples); pk < 0.001 || pk > 1 {
		t.Fatalf("patch peak = %f", pk)
	}
}

func TestParsePatchText(t *testing.T) {
	text := "@12 {\n 4 7\n"
	for op := 0; op < 4; op++ {
		text += " 31 31 0 15 15 0 0 1 0 0 0\n"
	}
	text += "}"
	p, err := ParsePatchText(text)
	if err != nil {
		t.Fatalf("ParsePatchText: %v", err)
	}
	if p.Algorithm != 4 || p.Ops[3].Mul != 1 {
		t.Fatalf("patch = %+v", p)
	}
	if _, err := ParsePatchText("@1 { 1 2 }"); !errors.Is(err, ErrShortPatch) {
		t.Fatalf("short text err = %v, want ErrShortPatch", err)
	}
}
