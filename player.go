package pcmseq

import (
	"context"
	"errors"
	"sync"
	"time"

	intaudio "github.com/cbegin/pcmseq-go/internal/audio"
)

type Backend = intaudio.Backend

const (
	BackendEbiten = intaudio.BackendEbiten
	BackendOto    = intaudio.BackendOto
)

func ParseBackend(name string) (Backend, error) { return intaudio.ParseBackend(name) }

type PreviewOption func(*previewConfig)

type previewConfig struct {
	backend Backend
	loop    *LoopInfo
}

func defaultPreviewConfig() previewConfig {
	return previewConfig{backend: BackendEbiten}
}

func WithBackend(b Backend) PreviewOption {
	return func(cfg *previewConfig) {
		cfg.backend = b
	}
}

// WithPreviewLoop plays up to the end of loop once, then repeats the loop
// region until the preview is stopped.
func WithPreviewLoop(loop LoopInfo) PreviewOption {
	return func(cfg *previewConfig) {
		cfg.loop = &loop
	}
}

// Preview plays a rendered buffer on the local audio device.
type Preview struct {
	mu      sync.Mutex
	audio   intaudio.Player
	looping bool
	stopped bool
}

// waitPoll is how often Wait checks whether the device has drained.
const waitPoll = 20 * time.Millisecond

func NewPreview(buf *Buffer, opts ...PreviewOption) (*Preview, error) {
	if buf == nil {
		return nil, errors.New("nil buffer")
	}
	cfg := defaultPreviewConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	loop, err := loopRegion(buf, cfg.loop)
	if err != nil {
		return nil, err
	}
	pl, err := intaudio.NewPlayer(cfg.backend, buf, loop)
	if err != nil {
		return nil, err
	}
	return &Preview{audio: pl, looping: loop != nil}, nil
}

func loopRegion(buf *Buffer, loop *LoopInfo) (*intaudio.Loop, error) {
	if loop == nil {
		return nil, nil
	}
	if err := loop.Validate(); err != nil {
		return nil, err
	}
	start, length := loop.Frames(buf.Params.SampleRate)
	return &intaudio.Loop{Start: start, Length: length}, nil
}

func (p *Preview) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.audio.Play()
	}
}

func (p *Preview) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.audio.Pause()
	}
}

// Looping reports whether playback repeats a loop region forever.
func (p *Preview) Looping() bool { return p.looping }

// Position returns what the listener actually hears right now.
func (p *Preview) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return 0
	}
	return p.audio.Position()
}

// Stop closes the device player. It is safe to call more than once.
func (p *Preview) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	return p.audio.Close()
}

// Wait blocks until playback drains or ctx is done. A looping preview only
// returns through ctx or Stop.
func (p *Preview) Wait(ctx context.Context) error {
	ticker := time.NewTicker(waitPoll)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		done := p.stopped || !p.audio.IsPlaying()
		p.mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
