package audio

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/cbegin/pcmseq-go/internal/pcm"
)

var (
	otoContextOnce sync.Once
	otoContext     *oto.Context
	otoContextErr  error
	otoSampleRate  int
)

func sharedOtoContext(sampleRate int) (*oto.Context, error) {
	otoContextOnce.Do(func() {
		otoSampleRate = sampleRate
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			otoContextErr = err
			return
		}
		<-ready
		otoContext = ctx
	})
	if otoContextErr != nil {
		return nil, otoContextErr
	}
	if otoSampleRate != sampleRate {
		return nil, fmt.Errorf("oto context already initialized at %d Hz (requested %d Hz)", otoSampleRate, sampleRate)
	}
	return otoContext, nil
}

// countingReader tracks how many bytes the driver has pulled.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

type otoPlayer struct {
	player     *oto.Player
	src        *countingReader
	sampleRate int
}

func newOtoPlayer(sampleRate int, src io.Reader) (*otoPlayer, error) {
	ctx, err := sharedOtoContext(sampleRate)
	if err != nil {
		return nil, err
	}
	cr := &countingReader{r: src}
	return &otoPlayer{
		player:     ctx.NewPlayer(cr),
		src:        cr,
		sampleRate: sampleRate,
	}, nil
}

func (p *otoPlayer) Play()  { p.player.Play() }
func (p *otoPlayer) Pause() { p.player.Pause() }

func (p *otoPlayer) IsPlaying() bool {
	return p.player.IsPlaying()
}

// Position subtracts what oto still holds in its buffer from what it has
// read.
func (p *otoPlayer) Position() time.Duration {
	heard := p.src.n.Load() - int64(p.player.BufferedSize())
	if heard < 0 {
		heard = 0
	}
	frames := heard / pcm.BytesPerFrame
	return time.Duration(frames) * time.Second / time.Duration(p.sampleRate)
}

func (p *otoPlayer) Close() error {
	p.player.Pause()
	return p.player.Close()
}
