package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

type ebitenPlayer struct {
	player *ebitaudio.Player
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// sharedAudioContext returns the process-wide ebiten context. ebiten allows
// one context per process, so every buffer must share its sample rate.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

func newEbitenPlayer(sampleRate int, src io.Reader) (*ebitenPlayer, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	pl, err := ctx.NewPlayerF32(src)
	if err != nil {
		return nil, err
	}
	return &ebitenPlayer{player: pl}, nil
}

func (p *ebitenPlayer) Play()  { p.player.Play() }
func (p *ebitenPlayer) Pause() { p.player.Pause() }

func (p *ebitenPlayer) IsPlaying() bool {
	return p.player.IsPlaying()
}

func (p *ebitenPlayer) Position() time.Duration {
	return p.player.Position()
}

func (p *ebitenPlayer) Close() error {
	p.player.Pause()
	return p.player.Close()
}
