package audio

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/cbegin/pcmseq-go/internal/pcm"
)

// Backend names an audio output implementation.
type Backend string

const (
	BackendEbiten Backend = "ebiten"
	BackendOto    Backend = "oto"
)

var ErrLoopOutOfRange = errors.New("loop region outside rendered audio")

func ParseBackend(name string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(name))) {
	case BackendEbiten:
		return BackendEbiten, nil
	case BackendOto:
		return BackendOto, nil
	default:
		return "", fmt.Errorf("invalid backend %q (expected ebiten|oto)", name)
	}
}

// Loop is a region in frames that repeats forever once playback reaches
// its end.
type Loop struct {
	Start  int64
	Length int64
}

// Player plays one rendered buffer.
type Player interface {
	Play()
	Pause()
	IsPlaying() bool
	// Position is how far the listener has got into the stream.
	Position() time.Duration
	Close() error
}

// NewPlayer opens backend at buf's sample rate and prepares buf for
// playback. With a loop the stream never ends.
func NewPlayer(backend Backend, buf *pcm.Buffer, loop *Loop) (Player, error) {
	src, err := stream(buf, loop)
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendEbiten, "":
		return newEbitenPlayer(buf.Params.SampleRate, src)
	case BackendOto:
		return newOtoPlayer(buf.Params.SampleRate, src)
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// stream returns the f32le stereo byte stream for buf, wrapped in an
// intro-then-loop reader when loop is set.
func stream(buf *pcm.Buffer, loop *Loop) (io.ReadSeeker, error) {
	if err := buf.Params.Validate(); err != nil {
		return nil, err
	}
	r := pcm.NewReader(buf)
	if loop == nil {
		return r, nil
	}
	frames := int64(buf.Frames())
	if loop.Start < 0 || loop.Length <= 0 || loop.Start+loop.Length > frames {
		return nil, fmt.Errorf("%w: frames [%d, %d) of %d", ErrLoopOutOfRange, loop.Start, loop.Start+loop.Length, frames)
	}
	return ebitaudio.NewInfiniteLoopWithIntroF32(r, loop.Start*pcm.BytesPerFrame, loop.Length*pcm.BytesPerFrame), nil
}
