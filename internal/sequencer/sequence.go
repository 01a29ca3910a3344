package sequencer

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// Note is one sounding event. Times are in seconds.
type Note struct {
	StartAt      float64
	EndAt        float64
	Duration     float64
	FrequencyID  uint32
	OnVelocity   float64
	OffVelocity  float64
	InstrumentID uint16
}

// NewNote builds a well-formed note starting at start and lasting duration.
func NewNote(start, duration float64, frequencyID uint32, onVelocity, offVelocity float64, instrumentID uint16) (Note, error) {
	n := Note{
		StartAt:      start,
		EndAt:        start + duration,
		Duration:     duration,
		FrequencyID:  frequencyID,
		OnVelocity:   onVelocity,
		OffVelocity:  offVelocity,
		InstrumentID: instrumentID,
	}
	return n, n.Validate()
}

// Validate checks the note's timing triple. It rejects NaN or negative
// start times, negative durations and end times that disagree with
// start+duration beyond rounding.
func (n Note) Validate() error {
	if !isFinite(n.StartAt) || n.StartAt < 0 {
		return fmt.Errorf("%w: start %v", ErrInvalidNote, n.StartAt)
	}
	if !isFinite(n.Duration) || n.Duration < 0 {
		return fmt.Errorf("%w: duration %v", ErrInvalidNote, n.Duration)
	}
	want := n.StartAt + n.Duration
	if !isFinite(n.EndAt) || math.Abs(n.EndAt-want) > 1e-9*math.Max(1, math.Abs(want)) {
		return fmt.Errorf("%w: end %v != start %v + duration %v", ErrInvalidNote, n.EndAt, n.StartAt, n.Duration)
	}
	if !isFinite(n.OnVelocity) || !isFinite(n.OffVelocity) {
		return fmt.Errorf("%w: velocity on=%v off=%v", ErrInvalidNote, n.OnVelocity, n.OffVelocity)
	}
	return nil
}

// LoopInfo marks a loop region in seconds. Rendering never reads it; it is
// carried for players.
type LoopInfo struct {
	Start float64
	End   float64
}

// Validate rejects a region unless 0 <= Start < End and both are finite.
func (l LoopInfo) Validate() error {
	if !isFinite(l.Start) || l.Start < 0 || !isFinite(l.End) || l.End <= l.Start {
		return fmt.Errorf("%w: [%v, %v)", ErrInvalidLoop, l.Start, l.End)
	}
	return nil
}

// Frames converts the loop to a start frame and a frame length at the
// given sample rate.
func (l LoopInfo) Frames(sampleRate int) (start, length int64) {
	start = int64(math.Round(l.Start * float64(sampleRate)))
	end := int64(math.Round(l.End * float64(sampleRate)))
	return start, end - start
}

// Sequence is the musical material to render. Notes need not be sorted.
type Sequence struct {
	Notes []Note
	Loops []LoopInfo
}

// AddNote validates n and appends it.
func (s *Sequence) AddNote(n Note) error {
	if err := n.Validate(); err != nil {
		return err
	}
	s.Notes = append(s.Notes, n)
	return nil
}

// AddLoop validates l and appends it.
func (s *Sequence) AddLoop(l LoopInfo) error {
	if err := l.Validate(); err != nil {
		return err
	}
	s.Loops = append(s.Loops, l)
	return nil
}

// Validate checks every note, for sequences assembled by hand.
func (s *Sequence) Validate() error {
	for i, n := range s.Notes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("note %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Sequence) Clone() *Sequence {
	return &Sequence{
		Notes: slices.Clone(s.Notes),
		Loops: slices.Clone(s.Loops),
	}
}

// SortByTime stable-sorts notes by start time. Start times must not be NaN.
func (s *Sequence) SortByTime() {
	sortByStart(s.Notes)
}

func sortByStart(notes []Note) {
	slices.SortStableFunc(notes, func(a, b Note) int {
		return cmp.Compare(a.StartAt, b.StartAt)
	})
}

// MaxNotesAtOnce returns the largest number of notes sounding together.
// A note counts as still sounding for a later one when the later start
// falls inside its half-open [start, end) span. Notes are not reordered.
func (s *Sequence) MaxNotesAtOnce() int {
	spans := make([]Span, len(s.Notes))
	for i, n := range s.Notes {
		spans[i] = Span{Start: n.StartAt, End: n.EndAt}
	}
	return MaxOverlap(spans)
}

// Span is a half-open [Start, End) interval in seconds.
type Span struct {
	Start, End float64
}

// MaxOverlap returns the largest number of spans open at the start of any
// span, or 0 for none. A span ending exactly where another starts does not
// overlap it. spans is not reordered.
func MaxOverlap(spans []Span) int {
	if len(spans) == 0 {
		return 0
	}
	sorted := slices.Clone(spans)
	slices.SortStableFunc(sorted, func(a, b Span) int { return cmp.Compare(a.Start, b.Start) })

	active := make([]Span, 0, 8)
	most := 1
	for _, sp := range sorted {
		kept := active[:0]
		for _, a := range active {
			if sp.Start < a.End {
				kept = append(kept, a)
			}
		}
		active = append(kept, sp)
		most = max(most, len(active))
	}
	return most
}

// FrequencyRequirement is one frequency an instrument must produce and the
// longest note duration requested at it.
type FrequencyRequirement struct {
	FrequencyID uint32
	Duration    float64
}

// FrequenciesForInstruments lists, per instrument, the frequency ids its
// notes use in first-seen order with the maximum duration per id.
func (s *Sequence) FrequenciesForInstruments() map[uint16][]FrequencyRequirement {
	out := make(map[uint16][]FrequencyRequirement)
	index := make(map[uint16]map[uint32]int)
	for _, n := range s.Notes {
		seen, ok := index[n.InstrumentID]
		if !ok {
			seen = make(map[uint32]int)
			index[n.InstrumentID] = seen
		}
		if i, ok := seen[n.FrequencyID]; ok {
			reqs := out[n.InstrumentID]
			if n.Duration > reqs[i].Duration {
				reqs[i].Duration = n.Duration
			}
			continue
		}
		seen[n.FrequencyID] = len(out[n.InstrumentID])
		out[n.InstrumentID] = append(out[n.InstrumentID], FrequencyRequirement{
			FrequencyID: n.FrequencyID,
			Duration:    n.Duration,
		})
	}
	return out
}

// Duration returns the latest note end, or 0 when there are no notes.
func (s *Sequence) Duration() float64 {
	var end float64
	for _, n := range s.Notes {
		if n.EndAt > end {
			end = n.EndAt
		}
	}
	return end
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
