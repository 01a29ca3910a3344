package sequencer

import (
	"errors"
	"math"
	"testing"
)

func mustNote(t *testing.T, start, dur float64, freq uint32, inst uint16) Note {
	t.Helper()
	n, err := NewNote(start, dur, freq, 1, 1, inst)
	if err != nil {
		t.Fatalf("NewNote(%v, %v): %v", start, dur, err)
	}
	return n
}

func TestValidTimeOrFrequency(t *testing.T) {
	cases := []struct {
		v    float64
		want bool
	}{
		{440, true},
		{1e-300, true},
		{0, false},
		{-1, false},
		{5e-324, false}, // subnormal
		{math.NaN(), false},
		{math.Inf(1), false},
		{math.Inf(-1), false},
	}
	for _, tc := range cases {
		if got := ValidTimeOrFrequency(tc.v); got != tc.want {
			t.Fatalf("ValidTimeOrFrequency(%v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestFrequencyLookupTableGet(t *testing.T) {
	flut := FrequencyLookupTable{0: 440, 1: 0, 2: math.NaN(), 3: math.Inf(1)}
	hz, err := flut.Get(0)
	if err != nil || hz != 440 {
		t.Fatalf("Get(0) = %v, %v; want 440", hz, err)
	}
	if _, err := flut.Get(9); !errors.Is(err, ErrUnknownFrequencyID) {
		t.Fatalf("Get(9) err = %v, want ErrUnknownFrequencyID", err)
	}
	for _, id := range []uint32{1, 2, 3} {
		if _, err := flut.Get(id); !errors.Is(err, ErrInvalidTimeOrFrequency) {
			t.Fatalf("Get(%d) err = %v, want ErrInvalidTimeOrFrequency", id, err)
		}
	}
	if err := flut.Set(4, -3); !errors.Is(err, ErrInvalidTimeOrFrequency) {
		t.Fatalf("Set negative err = %v", err)
	}
	if err := flut.Set(4, 220); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ids := flut.IDs()
	if len(ids) != 5 || ids[0] != 0 || ids[4] != 4 {
		t.Fatalf("IDs() = %v", ids)
	}
}

func TestNoteValidation(t *testing.T) {
	cases := []struct {
		name string
		note Note
	}{
		{"nan start", Note{StartAt: math.NaN(), EndAt: 1, Duration: 1}},
		{"negative start", Note{StartAt: -1, EndAt: 0, Duration: 1}},
		{"negative duration", Note{StartAt: 1, EndAt: 0.5, Duration: -0.5}},
		{"inconsistent end", Note{StartAt: 0, EndAt: 2, Duration: 1}},
		{"infinite velocity", Note{StartAt: 0, EndAt: 1, Duration: 1, OnVelocity: math.Inf(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s Sequence
			if err := s.AddNote(tc.note); !errors.Is(err, ErrInvalidNote) {
				t.Fatalf("AddNote err = %v, want ErrInvalidNote", err)
			}
			if len(s.Notes) != 0 {
				t.Fatalf("rejected note was stored")
			}
		})
	}
	if _, err := NewNote(0.1, 0.2, 0, 1, 0, 0); err != nil {
		t.Fatalf("well-formed note rejected: %v", err)
	}
}

func TestLoopInfo(t *testing.T) {
	var s Sequence
	if err := s.AddLoop(LoopInfo{Start: 2, End: 1}); !errors.Is(err, ErrInvalidLoop) {
		t.Fatalf("AddLoop err = %v, want ErrInvalidLoop", err)
	}
	l := LoopInfo{Start: 0.5, End: 1.5}
	if err := s.AddLoop(l); err != nil {
		t.Fatalf("AddLoop: %v", err)
	}
	start, length := l.Frames(8000)
	if start != 4000 || length != 8000 {
		t.Fatalf("Frames(8000) = %d, %d; want 4000, 8000", start, length)
	}
}

func TestMaxNotesAtOnce(t *testing.T) {
	cases := []struct {
		name  string
		notes [][2]float64 // start, duration
		want  int
	}{
		{"empty", nil, 0},
		{"single", [][2]float64{{0, 1}}, 1},
		{"disjoint", [][2]float64{{0, 1}, {2, 1}, {4, 1}}, 1},
		{"back to back", [][2]float64{{0, 1}, {1, 1}, {2, 1}}, 1},
		{"identical", [][2]float64{{1, 2}, {1, 2}, {1, 2}, {1, 2}}, 4},
		{"staggered", [][2]float64{{0, 3}, {1, 3}, {2, 3}, {3.5, 1}}, 3},
		{"unsorted", [][2]float64{{2, 3}, {0, 3}, {1, 3}}, 3},
		{"nested", [][2]float64{{0, 10}, {1, 1}, {3, 1}, {5, 1}}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s Sequence
			for _, n := range tc.notes {
				if err := s.AddNote(mustNote(t, n[0], n[1], 0, 0)); err != nil {
					t.Fatalf("AddNote: %v", err)
				}
			}
			before := append([]Note(nil), s.Notes...)
			if got := s.MaxNotesAtOnce(); got != tc.want {
				t.Fatalf("MaxNotesAtOnce() = %d, want %d", got, tc.want)
			}
			for i := range before {
				if before[i] != s.Notes[i] {
					t.Fatalf("MaxNotesAtOnce reordered notes")
				}
			}
		})
	}
}

func TestMaxOverlapTails(t *testing.T) {
	cases := []struct {
		name  string
		spans []Span
		want  int
	}{
		{"touching", []Span{{0, 0.1}, {0.1, 0.2}}, 1},
		{"tail into next", []Span{{0, 0.15}, {0.1, 0.25}}, 2},
		{"tail spans two", []Span{{0, 1}, {0.2, 0.3}, {0.4, 0.5}}, 2},
		{"chain", []Span{{0.2, 0.6}, {0, 0.5}, {0.4, 0.7}}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaxOverlap(tc.spans); got != tc.want {
				t.Fatalf("MaxOverlap(%v) = %d, want %d", tc.spans, got, tc.want)
			}
		})
	}
}

func TestSortByTimeIsStable(t *testing.T) {
	s := Sequence{Notes: []Note{
		mustNote(t, 2, 1, 0, 0),
		mustNote(t, 1, 1, 1, 0),
		mustNote(t, 1, 1, 2, 0),
		mustNote(t, 0, 1, 3, 0),
	}}
	s.SortByTime()
	want := []uint32{3, 1, 2, 0}
	for i, id := range want {
		if s.Notes[i].FrequencyID != id {
			t.Fatalf("note %d has frequency id %d, want %d", i, s.Notes[i].FrequencyID, id)
		}
	}
}

func TestDuration(t *testing.T) {
	var s Sequence
	if got := s.Duration(); got != 0 {
		t.Fatalf("empty Duration() = %v, want 0", got)
	}
	s.Notes = []Note{mustNote(t, 0, 5, 0, 0), mustNote(t, 1, 1.5, 0, 0), mustNote(t, 3, 0.5, 0, 1)}
	if got := s.Duration(); got != 5 {
		t.Fatalf("Duration() = %v, want 5", got)
	}
}

func TestFrequenciesForInstruments(t *testing.T) {
	s := Sequence{Notes: []Note{
		mustNote(t, 0, 1, 5, 0),
		mustNote(t, 0, 1, 3, 0),
		mustNote(t, 1, 4, 5, 0),
		mustNote(t, 2, 2, 5, 0),
		mustNote(t, 0, 0.5, 5, 7),
	}}
	got := s.FrequenciesForInstruments()
	if len(got) != 2 {
		t.Fatalf("instruments = %d, want 2", len(got))
	}
	want0 := []FrequencyRequirement{{FrequencyID: 5, Duration: 4}, {FrequencyID: 3, Duration: 1}}
	if len(got[0]) != len(want0) {
		t.Fatalf("instrument 0 = %v, want %v", got[0], want0)
	}
	for i := range want0 {
		if got[0][i] != want0[i] {
			t.Fatalf("instrument 0 = %v, want %v", got[0], want0)
		}
	}
	if len(got[7]) != 1 || got[7][0].Duration != 0.5 {
		t.Fatalf("instrument 7 = %v", got[7])
	}
}
