package pcm

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
)

// Reader exposes a Buffer as interleaved little-endian float32 stereo,
// the layout audio backends consume. Mono input is duplicated to both
// sides; channels past the second are dropped.
type Reader struct {
	mu  sync.Mutex
	buf *Buffer
	pos int64 // byte offset
}

// BytesPerFrame is the size of one stereo float32 frame.
const BytesPerFrame = 8

func NewReader(b *Buffer) *Reader {
	return &Reader{buf: b}
}

// Len returns the total stream length in bytes.
func (r *Reader) Len() int64 {
	return int64(r.buf.Frames()) * BytesPerFrame
}

func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := r.Len()
	if r.pos >= total {
		return 0, io.EOF
	}
	// Only whole frames are emitted so the stream stays aligned.
	frames := len(p) / BytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	first := int(r.pos / BytesPerFrame)
	if rem := r.buf.Frames() - first; frames > rem {
		frames = rem
	}
	ch := r.buf.Params.Channels
	for i := 0; i < frames; i++ {
		frame := r.buf.Frame(first + i)
		l := frame[0]
		rt := l
		if ch > 1 {
			rt = frame[1]
		}
		binary.LittleEndian.PutUint32(p[i*8:], math.Float32bits(float32(l)))
		binary.LittleEndian.PutUint32(p[i*8+4:], math.Float32bits(float32(rt)))
	}
	n := frames * BytesPerFrame
	r.pos += int64(n)
	return n, nil
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.pos + offset
	case io.SeekEnd:
		next = r.Len() + offset
	default:
		return 0, errors.New("pcm: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("pcm: negative position")
	}
	r.pos = next - next%BytesPerFrame
	return r.pos, nil
}

func (r *Reader) Close() error { return nil }
