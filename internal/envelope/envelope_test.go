package envelope

import (
	"math"
	"testing"
)

func TestADSRStages(t *testing.T) {
	e := ADSR{Attack: 0.1, Decay: 0.2, Sustain: 0.5, Release: 0.4}
	cases := []struct {
		name string
		fn   func(float64) float64
		t    float64
		want float64
	}{
		{"before start", e.BeforeDuringSustain, -1, 0},
		{"attack start", e.BeforeDuringSustain, 0, 0},
		{"mid attack", e.BeforeDuringSustain, 0.05, 0.5},
		{"peak", e.BeforeDuringSustain, 0.1, 1},
		{"mid decay", e.BeforeDuringSustain, 0.2, 0.75},
		{"sustain", e.BeforeDuringSustain, 5, 0.5},
		{"release start", e.AfterSustain, 0, 0.5},
		{"mid release", e.AfterSustain, 0.2, 0.25},
		{"release end", e.AfterSustain, 0.4, 0},
		{"after release", e.AfterSustain, 10, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fn(tc.t); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("f(%v) = %v, want %v", tc.t, got, tc.want)
			}
		})
	}
	if got := e.ReleaseDuration(); got != 0.4 {
		t.Fatalf("ReleaseDuration() = %v, want 0.4", got)
	}
}

func TestADSRStaysInUnitRange(t *testing.T) {
	e := ADSR{Attack: 0, Decay: 0, Sustain: 3, Release: 0}
	if got := e.BeforeDuringSustain(0); got != 1 {
		t.Fatalf("clamped sustain = %v, want 1", got)
	}
	if got := e.AfterSustain(0.01); got != 0 {
		t.Fatalf("zero release should be silent, got %v", got)
	}
	d := DefaultADSR()
	for i := 0; i <= 100; i++ {
		ts := float64(i) / 100
		for _, v := range []float64{d.BeforeDuringSustain(ts), d.AfterSustain(ts)} {
			if v < 0 || v > 1 {
				t.Fatalf("envelope out of range at %v: %v", ts, v)
			}
		}
	}
}
