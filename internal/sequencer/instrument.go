package sequencer

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/cbegin/pcmseq-go/internal/pcm"
)

// KeyGenerator produces the raw waveform of a key.
type KeyGenerator interface {
	// GenerateKey returns audio at frequency (Hz) laid out per params.
	// duration is the longest note the key must serve, in seconds; a
	// generator may return less and rely on looping or hold.
	GenerateKey(frequency float64, params pcm.Params, duration float64) (*pcm.Buffer, error)
}

// Envelope shapes loudness over time. Both phases return a multiplier in
// [0, 1]; t is seconds since note start for BeforeDuringSustain and
// seconds since note end for AfterSustain.
type Envelope interface {
	BeforeDuringSustain(t float64) float64
	AfterSustain(t float64) float64
}

// Releaser is implemented by envelopes, or key generators that shape
// their own release, whose sound outlasts the note. The sequencer sizes
// keys and renders a tail of ReleaseDuration seconds, and counts the tail
// when normalizing overlapping notes.
type Releaser interface {
	ReleaseDuration() float64
}

// Key is a generated waveform for one frequency of an instrument.
type Key struct {
	Audio     *pcm.Buffer
	Frequency float64
}

// Instrument is a sound source with a per-frequency key cache. Without a
// Generator, keys are derived by pitch-changing an existing key.
type Instrument struct {
	mu        sync.Mutex
	Keys      map[uint32]*Key
	Generator KeyGenerator
	// Loopable instruments repeat their key to fill a note; others hold the
	// last frame. Instruments with an envelope should be loopable.
	Loopable bool
	// Envelope is optional; nil plays at full loudness.
	Envelope Envelope
}

// NewInstrument returns an instrument with an empty key cache.
func NewInstrument(gen KeyGenerator, loopable bool) *Instrument {
	return &Instrument{
		Keys:      make(map[uint32]*Key),
		Generator: gen,
		Loopable:  loopable,
	}
}

// SetKey seeds the cache, typically for generator-less instruments.
func (in *Instrument) SetKey(frequencyID uint32, key *Key) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.Keys == nil {
		in.Keys = make(map[uint32]*Key)
	}
	in.Keys[frequencyID] = key
}

// Key returns the cached key for frequencyID.
func (in *Instrument) Key(frequencyID uint32) (*Key, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	k, ok := in.Keys[frequencyID]
	return k, ok
}

// GenKeys (re)generates one key per requirement, overwriting cached keys
// with the same frequency id.
func (in *Instrument) GenKeys(reqs []FrequencyRequirement, flut FrequencyLookupTable, params pcm.Params) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.Keys == nil {
		in.Keys = make(map[uint32]*Key)
	}
	gen := in.Generator
	if gen == nil {
		seed, err := in.anyKey()
		if err != nil {
			return err
		}
		gen = PitchChanger{Original: seed}
	}
	for _, req := range reqs {
		hz, err := flut.Get(req.FrequencyID)
		if err != nil {
			return err
		}
		audio, err := gen.GenerateKey(hz, params, req.Duration)
		if err != nil {
			return fmt.Errorf("generate key for frequency id %d (%v Hz): %w", req.FrequencyID, hz, err)
		}
		in.Keys[req.FrequencyID] = &Key{Audio: audio, Frequency: hz}
	}
	return nil
}

// AnyKey returns a cached key to seed pitch changing. The key with the
// lowest frequency id is chosen so the choice is stable.
func (in *Instrument) AnyKey() (*Key, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.anyKey()
}

func (in *Instrument) anyKey() (*Key, error) {
	if len(in.Keys) == 0 {
		return nil, ErrNoDefaultKey
	}
	ids := make([]uint32, 0, len(in.Keys))
	for id := range in.Keys {
		ids = append(ids, id)
	}
	return in.Keys[slices.Min(ids)], nil
}

// GenSound renders the cached key for frequencyID over duration seconds,
// producing int(duration*sampleRate) frames. Loopable instruments cycle the
// key; the others copy it once and hold its last frame.
func (in *Instrument) GenSound(frequencyID uint32, duration float64) (*pcm.Buffer, error) {
	in.mu.Lock()
	key, ok := in.Keys[frequencyID]
	loopable := in.Loopable
	in.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKeyID, frequencyID)
	}
	if err := CheckTimeOrFrequency(duration); err != nil {
		return nil, err
	}
	src := key.Audio
	keyFrames := src.Frames()
	if keyFrames == 0 {
		return nil, fmt.Errorf("%w: frequency id %d", ErrEmptyKey, frequencyID)
	}
	params := src.Params
	frames := int(duration * float64(params.SampleRate))
	out := pcm.NewBuffer(params, frames)
	ch := params.Channels

	if loopable {
		for pos := 0; pos < frames; pos += keyFrames {
			n := min(keyFrames, frames-pos)
			copy(out.Samples[pos*ch:(pos+n)*ch], src.Samples[:n*ch])
		}
		return out, nil
	}
	n := min(keyFrames, frames)
	copy(out.Samples, src.Samples[:n*ch])
	last := src.Frame(keyFrames - 1)
	for pos := n; pos < frames; pos++ {
		copy(out.Frame(pos), last)
	}
	return out, nil
}

// PitchChanger derives keys from an existing one. It is the fallback for
// instruments without a generator and has no resampling algorithm yet.
type PitchChanger struct {
	Original *Key
}

// GenerateKey always fails with errors.ErrUnsupported.
func (p PitchChanger) GenerateKey(frequency float64, params pcm.Params, duration float64) (*pcm.Buffer, error) {
	if p.Original == nil {
		return nil, fmt.Errorf("%w: pitch changing without an original key", errors.ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: pitch changing from %v Hz to %v Hz", errors.ErrUnsupported, p.Original.Frequency, frequency)
}

// InstrumentTable holds the instruments of a project by id.
type InstrumentTable map[uint16]*Instrument

// Get returns the instrument registered under id.
func (t InstrumentTable) Get(id uint16) (*Instrument, error) {
	in, ok := t[id]
	if !ok || in == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInstrumentID, id)
	}
	return in, nil
}

// IDs returns the registered ids in ascending order.
func (t InstrumentTable) IDs() []uint16 {
	ids := make([]uint16, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
