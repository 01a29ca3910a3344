package builder

import (
	"errors"
	"fmt"
	"maps"
	"math"

	"github.com/cbegin/pcmseq-go/internal/sequencer"
)

// FrequencyTolerance is the absolute distance in Hz under which two
// frequencies share an id.
const FrequencyTolerance = 1e-9

var ErrUnknownFrequency = errors.New("frequency not in lookup table")

type voice struct {
	instrument  uint16
	frequencyID uint32
}

type openNote struct {
	start      float64
	onVelocity float64
}

// Builder accumulates notes against a time cursor and assigns frequency ids
// as it goes. It serves both event streams with separate note-on/note-off
// (NoteOn, NoteOff) and streams of complete notes (Note).
type Builder struct {
	seq   sequencer.Sequence
	flut  sequencer.FrequencyLookupTable
	order []float64
	fixed bool
	open  map[voice]openNote
	now   float64
}

// New returns a builder that grows its own frequency table.
func New() *Builder {
	return &Builder{
		flut: make(sequencer.FrequencyLookupTable),
		open: make(map[voice]openNote),
	}
}

// NewWithTable returns a builder that resolves frequencies against a copy
// of flut and never adds to it.
func NewWithTable(flut sequencer.FrequencyLookupTable) *Builder {
	b := New()
	b.flut = maps.Clone(flut)
	if b.flut == nil {
		b.flut = make(sequencer.FrequencyLookupTable)
	}
	b.fixed = true
	return b
}

// Now returns the cursor in seconds.
func (b *Builder) Now() float64 { return b.now }

// Advance moves the cursor forward.
func (b *Builder) Advance(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return fmt.Errorf("%w: advance by %v", sequencer.ErrInvalidTimeOrFrequency, seconds)
	}
	b.now += seconds
	return nil
}

// At places the cursor at an absolute time.
func (b *Builder) At(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return fmt.Errorf("%w: cursor at %v", sequencer.ErrInvalidTimeOrFrequency, seconds)
	}
	b.now = seconds
	return nil
}

// Reset moves the cursor back to 0. Notes and open voices are kept.
func (b *Builder) Reset() { b.now = 0 }

// lookup resolves hz to an id. When grow is set and the builder owns its
// table, unseen frequencies get the next id.
func (b *Builder) lookup(hz float64, grow bool) (uint32, bool, error) {
	if err := sequencer.CheckTimeOrFrequency(hz); err != nil {
		return 0, false, err
	}
	if b.fixed {
		for _, id := range b.flut.IDs() {
			if math.Abs(b.flut[id]-hz) < FrequencyTolerance {
				return id, true, nil
			}
		}
		return 0, false, nil
	}
	for i, f := range b.order {
		if math.Abs(f-hz) < FrequencyTolerance {
			return uint32(i), true, nil
		}
	}
	if !grow {
		return 0, false, nil
	}
	id := uint32(len(b.order))
	b.order = append(b.order, hz)
	b.flut[id] = hz
	return id, true, nil
}

func (b *Builder) resolve(hz float64) (uint32, error) {
	id, ok, err := b.lookup(hz, true)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %v Hz", ErrUnknownFrequency, hz)
	}
	return id, nil
}

// NoteOn opens a note at the cursor. A voice that is already sounding is
// left untouched.
func (b *Builder) NoteOn(hz, onVelocity float64, instrument uint16) error {
	id, err := b.resolve(hz)
	if err != nil {
		return err
	}
	return b.NoteOnID(id, onVelocity, instrument)
}

func (b *Builder) NoteOnID(frequencyID uint32, onVelocity float64, instrument uint16) error {
	if _, err := b.flut.Get(frequencyID); err != nil {
		return err
	}
	if math.IsNaN(onVelocity) || math.IsInf(onVelocity, 0) {
		return fmt.Errorf("%w: velocity %v", sequencer.ErrInvalidNote, onVelocity)
	}
	v := voice{instrument, frequencyID}
	if _, ok := b.open[v]; ok {
		return nil
	}
	b.open[v] = openNote{start: b.now, onVelocity: onVelocity}
	return nil
}

// NoteOff closes the open note for hz on instrument, ending it at the
// cursor. Frequencies never seen and voices not sounding are ignored.
func (b *Builder) NoteOff(hz, offVelocity float64, instrument uint16) error {
	id, ok, err := b.lookup(hz, false)
	if err != nil || !ok {
		return err
	}
	return b.NoteOffID(id, offVelocity, instrument)
}

func (b *Builder) NoteOffID(frequencyID uint32, offVelocity float64, instrument uint16) error {
	v := voice{instrument, frequencyID}
	on, ok := b.open[v]
	if !ok {
		return nil
	}
	n, err := sequencer.NewNote(on.start, b.now-on.start, frequencyID, on.onVelocity, offVelocity, instrument)
	if err != nil {
		return err
	}
	if err := b.seq.AddNote(n); err != nil {
		return err
	}
	delete(b.open, v)
	return nil
}

// Note adds a complete note starting at the cursor. The cursor does not
// move.
func (b *Builder) Note(hz, duration, onVelocity, offVelocity float64, instrument uint16) error {
	id, err := b.resolve(hz)
	if err != nil {
		return err
	}
	return b.NoteID(id, duration, onVelocity, offVelocity, instrument)
}

func (b *Builder) NoteID(frequencyID uint32, duration, onVelocity, offVelocity float64, instrument uint16) error {
	if _, err := b.flut.Get(frequencyID); err != nil {
		return err
	}
	n, err := sequencer.NewNote(b.now, duration, frequencyID, onVelocity, offVelocity, instrument)
	if err != nil {
		return err
	}
	return b.seq.AddNote(n)
}

// Loop records a loop region.
func (b *Builder) Loop(start, end float64) error {
	return b.seq.AddLoop(sequencer.LoopInfo{Start: start, End: end})
}

// Pending returns the number of notes opened but not yet closed.
func (b *Builder) Pending() int { return len(b.open) }

// Sequence returns a copy of the notes built so far.
func (b *Builder) Sequence() *sequencer.Sequence { return b.seq.Clone() }

// FrequencyTable returns a copy of the frequency table.
func (b *Builder) FrequencyTable() sequencer.FrequencyLookupTable { return maps.Clone(b.flut) }
