package sequencer

import (
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	seqlog "github.com/cbegin/pcmseq-go/internal/log"
	"github.com/cbegin/pcmseq-go/internal/pcm"
)

// Options tunes a render. The zero value renders sequentially with
// envelopes applied and logs nothing.
type Options struct {
	// Workers bounds concurrent key generation and mixing. Values <= 1
	// render on the calling goroutine.
	Workers int
	// SkipEnvelopes ignores instrument envelopes while mixing.
	SkipEnvelopes bool
	// Logger receives debug output. A nil Logger discards everything.
	Logger *seqlog.Logger
}

// MusicSequencer renders a Sequence played by an InstrumentTable into one
// PCM buffer. It owns its sequence, instruments and frequency table for
// the duration of a render.
type MusicSequencer struct {
	Params      pcm.Params
	Sequence    *Sequence
	Instruments InstrumentTable
	Frequencies FrequencyLookupTable
	opts        Options
}

// New returns a sequencer with default Options.
func New(params pcm.Params, seq *Sequence, instruments InstrumentTable, flut FrequencyLookupTable) *MusicSequencer {
	return NewWithOptions(params, seq, instruments, flut, Options{})
}

// NewWithOptions returns a sequencer for seq. A nil seq renders as an
// empty sequence.
func NewWithOptions(params pcm.Params, seq *Sequence, instruments InstrumentTable, flut FrequencyLookupTable, opts Options) *MusicSequencer {
	if seq == nil {
		seq = &Sequence{}
	}
	if opts.Logger == nil {
		opts.Logger = seqlog.Discard()
	}
	return &MusicSequencer{
		Params:      params,
		Sequence:    seq,
		Instruments: instruments,
		Frequencies: flut,
		opts:        opts,
	}
}

func (m *MusicSequencer) workers() int {
	if m.opts.Workers < 1 {
		return 1
	}
	return m.opts.Workers
}

// voicing returns the envelope applied to notes on inst, nil when
// envelopes are skipped, and how long those notes ring past their end. A
// generator that is itself a Releaser keeps its tail even without
// envelopes.
func (m *MusicSequencer) voicing(inst *Instrument) (Envelope, float64) {
	var env Envelope
	if !m.opts.SkipEnvelopes {
		env = inst.Envelope
	}
	var tail float64
	if r, ok := env.(Releaser); ok {
		tail = releaseOf(r)
	}
	if r, ok := inst.Generator.(Releaser); ok {
		tail = max(tail, releaseOf(r))
	}
	return env, tail
}

func releaseOf(r Releaser) float64 {
	d := r.ReleaseDuration()
	if !isFinite(d) || d <= 0 {
		return 0
	}
	return d
}

// GenInstrumentKeys regenerates, for every instrument the sequence uses,
// one key per required frequency sized for the longest note at it plus
// the instrument's release tail.
func (m *MusicSequencer) GenInstrumentKeys() error {
	reqs := m.Sequence.FrequenciesForInstruments()
	ids := make([]uint16, 0, len(reqs))
	for id := range reqs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	instruments := make([]*Instrument, len(ids))
	for i, id := range ids {
		inst, err := m.Instruments.Get(id)
		if err != nil {
			return err
		}
		instruments[i] = inst
	}

	var g errgroup.Group
	g.SetLimit(m.workers())
	for i, id := range ids {
		inst := instruments[i]
		need := reqs[id]
		if _, tail := m.voicing(inst); tail > 0 {
			need = slices.Clone(need)
			for j := range need {
				need[j].Duration += tail
			}
		}
		g.Go(func() error {
			if err := inst.GenKeys(need, m.Frequencies, m.Params); err != nil {
				return fmt.Errorf("instrument %d: %w", id, err)
			}
			m.opts.Logger.Debugf("[SEQ] generated %d keys for instrument %d", len(reqs[id]), id)
			return nil
		})
	}
	return g.Wait()
}

// Render generates keys and mixes every note into a buffer sized to the
// end of the last note. Each note is scaled by its on-velocity and by
// 1/max(1, n), where n is the most notes sounding together once release
// tails are counted, and starts at frame round(StartAt*SampleRate).
// Any failure aborts the render and no buffer is returned.
func (m *MusicSequencer) Render() (*pcm.Buffer, error) {
	if err := m.Params.Validate(); err != nil {
		return nil, err
	}
	if err := m.Sequence.Validate(); err != nil {
		return nil, err
	}
	if err := m.GenInstrumentKeys(); err != nil {
		return nil, err
	}

	spans, err := m.soundingSpans()
	if err != nil {
		return nil, err
	}
	divisor := 1 / float64(max(1, MaxOverlap(spans)))
	frames := int(m.Sequence.Duration() * float64(m.Params.SampleRate))
	notes := m.Sequence.Notes
	m.opts.Logger.Debugf("[SEQ] mixing %d notes into %d frames, amplitude divisor %v", len(notes), frames, divisor)

	workers := min(m.workers(), len(notes))
	if workers <= 1 {
		out := pcm.NewBuffer(m.Params, frames)
		if err := m.mixNotes(out, notes, divisor); err != nil {
			return nil, err
		}
		return out, nil
	}

	// Contiguous partitions summed in partition order keep the result
	// deterministic for a given worker count.
	partials := make([]*pcm.Buffer, workers)
	chunk := (len(notes) + workers - 1) / workers
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, len(notes))
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			buf := pcm.NewBuffer(m.Params, frames)
			if err := m.mixNotes(buf, notes[lo:hi], divisor); err != nil {
				return err
			}
			partials[w] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := pcm.NewBuffer(m.Params, frames)
	for _, p := range partials {
		if p != nil {
			out.Add(p, 0, 1)
		}
	}
	return out, nil
}

// soundingSpans returns each note's span extended by its release tail.
func (m *MusicSequencer) soundingSpans() ([]Span, error) {
	spans := make([]Span, len(m.Sequence.Notes))
	for i, n := range m.Sequence.Notes {
		inst, err := m.Instruments.Get(n.InstrumentID)
		if err != nil {
			return nil, err
		}
		_, tail := m.voicing(inst)
		spans[i] = Span{Start: n.StartAt, End: n.EndAt + tail}
	}
	return spans, nil
}

func (m *MusicSequencer) mixNotes(out *pcm.Buffer, notes []Note, divisor float64) error {
	for i := range notes {
		dropped, err := m.mixNote(out, &notes[i], divisor)
		if err != nil {
			return err
		}
		if dropped > 0 {
			m.opts.Logger.Debugf("[SEQ] note at %vs on instrument %d: %d frames past end of output", notes[i].StartAt, notes[i].InstrumentID, dropped)
		}
	}
	return nil
}

// mixNote accumulates one note into out and returns how many of its frames
// fell past the end of the buffer.
func (m *MusicSequencer) mixNote(out *pcm.Buffer, n *Note, divisor float64) (int, error) {
	inst, err := m.Instruments.Get(n.InstrumentID)
	if err != nil {
		return 0, err
	}
	env, tail := m.voicing(inst)
	if tail > 0 {
		if err := CheckTimeOrFrequency(n.Duration); err != nil {
			return 0, err
		}
	}
	sound, err := inst.GenSound(n.FrequencyID, n.Duration+tail)
	if err != nil {
		return 0, fmt.Errorf("note at %vs on instrument %d: %w", n.StartAt, n.InstrumentID, err)
	}
	if sound.Params.Channels != out.Params.Channels {
		return 0, fmt.Errorf("%w: instrument %d renders %d channels, output has %d",
			ErrChannelMismatch, n.InstrumentID, sound.Params.Channels, out.Params.Channels)
	}

	sr := float64(out.Params.SampleRate)
	offset := int(math.Round(n.StartAt * sr))
	gain := divisor * n.OnVelocity
	noteFrames := int(n.Duration * sr)
	total := sound.Frames()
	limit := out.Frames()
	for i := 0; i < total; i++ {
		pos := offset + i
		if pos >= limit {
			return total - i, nil
		}
		g := gain
		t := float64(i) / sr
		switch {
		case env != nil && i < noteFrames:
			g *= env.BeforeDuringSustain(t)
		case env != nil:
			g *= env.AfterSustain(t - n.Duration)
		case tail > 0 && i >= noteFrames:
			// The key is cut from the longest note at this frequency, so a
			// shorter note would stop mid-sustain. Fade its tail out.
			g *= max(0, 1-(t-n.Duration)/tail)
		}
		dst := out.Frame(pos)
		src := sound.Frame(i)
		for c := range dst {
			dst[c] += src[c] * g
		}
	}
	return 0, nil
}
