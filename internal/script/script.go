package script

import (
	"errors"
	"fmt"
	"math"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/cbegin/pcmseq-go/internal/builder"
	"github.com/cbegin/pcmseq-go/internal/envelope"
	"github.com/cbegin/pcmseq-go/internal/fm"
	"github.com/cbegin/pcmseq-go/internal/sequencer"
	"github.com/cbegin/pcmseq-go/internal/tone"
)

var ErrUnknownWave = errors.New("unknown waveform")

// Project is everything a song script declares.
type Project struct {
	Name        string
	Sequence    *sequencer.Sequence
	Frequencies sequencer.FrequencyLookupTable
	Instruments sequencer.InstrumentTable
}

type loader struct {
	b           *builder.Builder
	instruments sequencer.InstrumentTable
	// err keeps the Go error behind a raised Lua error so callers can
	// still match it with errors.Is.
	err error
}

// Load runs a song script and collects its notes and instruments. Only the
// base, table, string and math libraries are available to the script. A
// script that declares no instrument gets a loopable square wave as
// instrument 0.
func Load(name, src string) (*Project, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			return nil, fmt.Errorf("open lua %s library: %w", lib.name, err)
		}
	}

	ld := &loader{b: builder.New(), instruments: make(sequencer.InstrumentTable)}
	ld.register(L)

	fn, err := L.Load(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", name, err)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		if ld.err != nil {
			return nil, fmt.Errorf("script %s: %w", name, ld.err)
		}
		return nil, fmt.Errorf("script %s: %w", name, err)
	}
	if n := ld.b.Pending(); n > 0 {
		return nil, fmt.Errorf("script %s: %d notes left sounding: %w", name, n, sequencer.ErrInvalidNote)
	}
	if len(ld.instruments) == 0 {
		ld.instruments[0] = sequencer.NewInstrument(tone.Square{}, true)
	}
	return &Project{
		Name:        name,
		Sequence:    ld.b.Sequence(),
		Frequencies: ld.b.FrequencyTable(),
		Instruments: ld.instruments,
	}, nil
}

func (ld *loader) register(L *lua.LState) {
	fns := map[string]lua.LGFunction{
		"note":       ld.note,
		"note_on":    ld.noteOn,
		"note_off":   ld.noteOff,
		"rest":       ld.rest,
		"at":         ld.at,
		"now":        ld.now,
		"loop":       ld.loop,
		"midi":       midi,
		"instrument": ld.instrument,
	}
	for name, fn := range fns {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

// fail records err and raises it inside the interpreter.
func (ld *loader) fail(L *lua.LState, err error) int {
	if ld.err == nil {
		ld.err = err
	}
	L.RaiseError("%s", err.Error())
	return 0
}

func checkID(L *lua.LState, n int) uint16 {
	v := L.OptInt(n, 0)
	if v < 0 || v > math.MaxUint16 {
		L.ArgError(n, fmt.Sprintf("instrument id %d out of range", v))
	}
	return uint16(v)
}

// note(hz, dur [, on [, off [, inst]]])
func (ld *loader) note(L *lua.LState) int {
	hz := float64(L.CheckNumber(1))
	dur := float64(L.CheckNumber(2))
	on := float64(L.OptNumber(3, 1))
	off := float64(L.OptNumber(4, 1))
	inst := checkID(L, 5)
	if err := ld.b.Note(hz, dur, on, off, inst); err != nil {
		return ld.fail(L, err)
	}
	return 0
}

// note_on(hz [, vel [, inst]])
func (ld *loader) noteOn(L *lua.LState) int {
	hz := float64(L.CheckNumber(1))
	vel := float64(L.OptNumber(2, 1))
	inst := checkID(L, 3)
	if err := ld.b.NoteOn(hz, vel, inst); err != nil {
		return ld.fail(L, err)
	}
	return 0
}

// note_off(hz [, vel [, inst]])
func (ld *loader) noteOff(L *lua.LState) int {
	hz := float64(L.CheckNumber(1))
	vel := float64(L.OptNumber(2, 1))
	inst := checkID(L, 3)
	if err := ld.b.NoteOff(hz, vel, inst); err != nil {
		return ld.fail(L, err)
	}
	return 0
}

func (ld *loader) rest(L *lua.LState) int {
	if err := ld.b.Advance(float64(L.CheckNumber(1))); err != nil {
		return ld.fail(L, err)
	}
	return 0
}

func (ld *loader) at(L *lua.LState) int {
	if err := ld.b.At(float64(L.CheckNumber(1))); err != nil {
		return ld.fail(L, err)
	}
	return 0
}

func (ld *loader) now(L *lua.LState) int {
	L.Push(lua.LNumber(ld.b.Now()))
	return 1
}

func (ld *loader) loop(L *lua.LState) int {
	if err := ld.b.Loop(float64(L.CheckNumber(1)), float64(L.CheckNumber(2))); err != nil {
		return ld.fail(L, err)
	}
	return 0
}

// midi converts a MIDI note number to Hz with A4 (69) at 440 Hz.
func midi(L *lua.LState) int {
	n := float64(L.CheckNumber(1))
	L.Push(lua.LNumber(440 * math.Pow(2, (n-69)/12)))
	return 1
}

// instrument(id, wave [, opts])
func (ld *loader) instrument(L *lua.LState) int {
	id := checkID(L, 1)
	wave := L.CheckString(2)
	opts := L.OptTable(3, L.NewTable())

	var gen sequencer.KeyGenerator
	loopable := true
	switch wave {
	case "square":
		gen = tone.Square{}
	case "sine":
		gen = tone.Sine{}
	case "saw":
		gen = tone.Saw{}
	case "triangle":
		gen = tone.Triangle{}
	case "wavetable":
		gen = tone.DefaultWavetable()
		if h, ok := opts.RawGetString("table").(lua.LString); ok {
			samples, err := tone.ParseWAVB(string(h))
			if err != nil {
				return ld.fail(L, fmt.Errorf("instrument %d table: %w", id, err))
			}
			gen = tone.NewWavetable(samples)
		}
	case "fm":
		// FM keys are whole notes with their own envelope, so they are
		// held rather than looped and take the ADSR options themselves.
		synth, err := fmSynth(opts)
		if err != nil {
			return ld.fail(L, fmt.Errorf("instrument %d: %w", id, err))
		}
		if lua.LVAsBool(opts.RawGetString("loopable")) {
			return ld.fail(L, fmt.Errorf("instrument %d: fm instruments cannot loop", id))
		}
		ld.instruments[id] = sequencer.NewInstrument(synth, false)
		return 0
	default:
		return ld.fail(L, fmt.Errorf("%w %q for instrument %d", ErrUnknownWave, wave, id))
	}

	if v := opts.RawGetString("loopable"); v != lua.LNil {
		loopable = lua.LVAsBool(v)
	}
	inst := sequencer.NewInstrument(gen, loopable)

	env := envelope.DefaultADSR()
	shaped := false
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"attack", &env.Attack},
		{"decay", &env.Decay},
		{"sustain", &env.Sustain},
		{"release", &env.Release},
	} {
		if v, ok := opts.RawGetString(f.key).(lua.LNumber); ok {
			*f.dst = float64(v)
			shaped = true
		}
	}
	if shaped {
		inst.Envelope = env
	}
	ld.instruments[id] = inst
	return 0
}

// fmSynth builds an FM key generator from instrument options. A patch,
// given as OPM text or a list of register values, overrides the operator
// layout and envelopes.
func fmSynth(opts *lua.LTable) (*fm.Synth, error) {
	params := fm.DefaultParams()
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"feedback", &params.Feedback},
		{"mod_index", &params.ModIndex},
		{"carrier_mul", &params.CarrierMul},
		{"mod_mul", &params.ModMul},
		{"attack", &params.Attack},
		{"decay", &params.Decay},
		{"sustain", &params.Sustain},
		{"release", &params.Release},
		{"gain", &params.Gain},
		{"pan", &params.Pan},
		{"cutoff", &params.Cutoff},
	} {
		if v, ok := opts.RawGetString(f.key).(lua.LNumber); ok {
			*f.dst = float64(v)
		}
	}
	if v, ok := opts.RawGetString("operators").(lua.LNumber); ok {
		params.Operators = int(v)
	}
	if v, ok := opts.RawGetString("algorithm").(lua.LNumber); ok {
		params.Algorithm = int(v)
	}
	if v, ok := opts.RawGetString("waveform").(lua.LString); ok {
		w, err := fm.ParseWaveform(string(v))
		if err != nil {
			return nil, err
		}
		params.Waveform = w
	}
	if v, ok := opts.RawGetString("filter").(lua.LString); ok {
		f, err := fm.ParseFilter(string(v))
		if err != nil {
			return nil, err
		}
		params.Filter = f
	}
	switch v := opts.RawGetString("patch").(type) {
	case lua.LString:
		p, err := fm.ParsePatchText(string(v))
		if err != nil {
			return nil, err
		}
		params.Patch = p
	case *lua.LTable:
		data := make([]int, 0, v.Len())
		for i := 1; i <= v.Len(); i++ {
			n, ok := v.RawGetInt(i).(lua.LNumber)
			if !ok {
				return nil, fmt.Errorf("fm patch value %d is not a number", i)
			}
			data = append(data, int(n))
		}
		p, err := fm.ParsePatch(data)
		if err != nil {
			return nil, err
		}
		params.Patch = p
	}
	return fm.New(params), nil
}
