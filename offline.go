package pcmseq

import (
	"io"

	seqlog "github.com/cbegin/pcmseq-go/internal/log"
	"github.com/cbegin/pcmseq-go/internal/pcm"
	"github.com/cbegin/pcmseq-go/internal/script"
	"github.com/cbegin/pcmseq-go/internal/sequencer"
)

type (
	Params               = pcm.Params
	SampleFormat         = pcm.SampleFormat
	Buffer               = pcm.Buffer
	Note                 = sequencer.Note
	LoopInfo             = sequencer.LoopInfo
	Sequence             = sequencer.Sequence
	FrequencyLookupTable = sequencer.FrequencyLookupTable
	Instrument           = sequencer.Instrument
	InstrumentTable      = sequencer.InstrumentTable
	KeyGenerator         = sequencer.KeyGenerator
	Envelope             = sequencer.Envelope
	Project              = script.Project
	Logger               = seqlog.Logger
)

const (
	FormatFloat32 = pcm.FormatFloat32
	FormatFloat64 = pcm.FormatFloat64
	FormatInt16   = pcm.FormatInt16
)

var (
	ErrInvalidTimeOrFrequency = sequencer.ErrInvalidTimeOrFrequency
	ErrUnknownFrequencyID     = sequencer.ErrUnknownFrequencyID
	ErrUnknownInstrumentID    = sequencer.ErrUnknownInstrumentID
	ErrUnknownKeyID           = sequencer.ErrUnknownKeyID
	ErrNoDefaultKey           = sequencer.ErrNoDefaultKey
	ErrChannelMismatch        = sequencer.ErrChannelMismatch
	ErrUnsupportedFormat      = pcm.ErrUnsupportedFormat
)

// DefaultParams returns 48 kHz stereo float32.
func DefaultParams() Params { return pcm.DefaultParams() }

func NewBuffer(params Params, frames int) *Buffer { return pcm.NewBuffer(params, frames) }

func NewNote(start, duration float64, frequencyID uint32, onVelocity, offVelocity float64, instrumentID uint16) (Note, error) {
	return sequencer.NewNote(start, duration, frequencyID, onVelocity, offVelocity, instrumentID)
}

func NewInstrument(gen KeyGenerator, loopable bool) *Instrument {
	return sequencer.NewInstrument(gen, loopable)
}

// Option configures a render.
type Option func(*renderConfig)

type renderConfig struct {
	params pcm.Params
	opts   sequencer.Options
}

func defaultRenderConfig() renderConfig {
	return renderConfig{params: pcm.DefaultParams()}
}

// WithParams sets the output sample rate, channel count and format.
func WithParams(p Params) Option {
	return func(cfg *renderConfig) {
		cfg.params = p
	}
}

// WithWorkers renders on up to n goroutines. The result matches a
// sequential render within float rounding.
func WithWorkers(n int) Option {
	return func(cfg *renderConfig) {
		cfg.opts.Workers = n
	}
}

// WithoutEnvelopes ignores instrument envelopes.
func WithoutEnvelopes() Option {
	return func(cfg *renderConfig) {
		cfg.opts.SkipEnvelopes = true
	}
}

// WithLogger sends render debug output to l. Without it nothing is logged.
func WithLogger(l *Logger) Option {
	return func(cfg *renderConfig) {
		cfg.opts.Logger = l
	}
}

// Render plays seq with instruments into a single buffer. Keys are
// regenerated on every call.
func Render(seq *Sequence, instruments InstrumentTable, flut FrequencyLookupTable, opts ...Option) (*Buffer, error) {
	cfg := defaultRenderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return sequencer.NewWithOptions(cfg.params, seq, instruments, flut, cfg.opts).Render()
}

// LoadScript runs a Lua song script.
func LoadScript(name, src string) (*Project, error) {
	return script.Load(name, src)
}

// RenderScript loads and renders a Lua song script.
func RenderScript(name, src string, opts ...Option) (*Buffer, *Project, error) {
	p, err := script.Load(name, src)
	if err != nil {
		return nil, nil, err
	}
	buf, err := Render(p.Sequence, p.Instruments, p.Frequencies, opts...)
	if err != nil {
		return nil, p, err
	}
	return buf, p, nil
}

// EncodeWAV writes buf as a RIFF/WAVE file with samples stored as.
func EncodeWAV(w io.Writer, buf *Buffer, as SampleFormat) error {
	return pcm.EncodeWAV(w, buf, as)
}
