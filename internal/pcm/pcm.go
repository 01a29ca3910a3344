package pcm

import (
	"errors"
	"fmt"
)

// SampleFormat is the sample representation of a buffer.
type SampleFormat int

const (
	FormatFloat32 SampleFormat = iota
	FormatFloat64
	FormatInt16
)

// ErrUnsupportedFormat is returned by producers that cannot emit a format.
var ErrUnsupportedFormat = fmt.Errorf("%w: sample format", errors.ErrUnsupported)

func (f SampleFormat) String() string {
	switch f {
	case FormatFloat32:
		return "float32"
	case FormatFloat64:
		return "float64"
	case FormatInt16:
		return "int16"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// IsFloat reports whether samples of this format are floating point.
func (f SampleFormat) IsFloat() bool {
	return f == FormatFloat32 || f == FormatFloat64
}

// ParseFormat maps a format name back to its SampleFormat.
func ParseFormat(name string) (SampleFormat, error) {
	switch name {
	case "float32", "f32":
		return FormatFloat32, nil
	case "float64", "f64":
		return FormatFloat64, nil
	case "int16", "s16":
		return FormatInt16, nil
	}
	return 0, fmt.Errorf("unknown sample format %q", name)
}

// Params describes the shape of PCM audio.
type Params struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
}

// DefaultParams returns 48 kHz stereo float32.
func DefaultParams() Params {
	return Params{
		SampleRate: 48000,
		Channels:   2,
		Format:     FormatFloat32,
	}
}

func (p Params) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	if p.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", p.Channels)
	}
	switch p.Format {
	case FormatFloat32, FormatFloat64, FormatInt16:
	default:
		return fmt.Errorf("%w %s", ErrUnsupportedFormat, p.Format)
	}
	return nil
}

// Buffer holds interleaved samples: frame i, channel c lives at
// Samples[i*Channels+c]. Samples are kept as float64 whatever the
// declared format; conversion happens on encode.
type Buffer struct {
	Params  Params
	Samples []float64
}

// NewBuffer allocates a zeroed buffer of the given frame count.
func NewBuffer(params Params, frames int) *Buffer {
	if frames < 0 {
		frames = 0
	}
	return &Buffer{
		Params:  params,
		Samples: make([]float64, frames*params.Channels),
	}
}

// Frames returns the number of frames in the buffer.
func (b *Buffer) Frames() int {
	if b == nil || b.Params.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Params.Channels
}

// Frame returns the samples of frame i. The slice aliases the buffer.
func (b *Buffer) Frame(i int) []float64 {
	ch := b.Params.Channels
	return b.Samples[i*ch : (i+1)*ch : (i+1)*ch]
}

// Sample returns one sample.
func (b *Buffer) Sample(frame, channel int) float64 {
	return b.Samples[frame*b.Params.Channels+channel]
}

// Seconds returns the buffer length in seconds.
func (b *Buffer) Seconds() float64 {
	if b == nil || b.Params.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.Params.SampleRate)
}

// Add accumulates src into b starting at frame offset. Frames that fall
// outside b are skipped; the number of skipped source frames is returned.
func (b *Buffer) Add(src *Buffer, offset int, gain float64) (dropped int) {
	ch := b.Params.Channels
	n := src.Frames()
	for i := 0; i < n; i++ {
		pos := offset + i
		if pos < 0 || pos >= b.Frames() {
			dropped++
			continue
		}
		dst := b.Samples[pos*ch : (pos+1)*ch]
		s := src.Samples[i*ch : (i+1)*ch]
		for c := range dst {
			dst[c] += s[c] * gain
		}
	}
	return dropped
}
