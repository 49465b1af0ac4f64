package audio

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// OtoPlayer plays a BlockSource straight through oto, without ebiten.
type OtoPlayer struct {
	mu     sync.Mutex
	player *oto.Player
	reader *StreamReader
}

var (
	otoOnce       sync.Once
	otoContext    *oto.Context
	otoContextErr error
	otoSampleRate int
)

// sharedOtoContext returns the process-wide oto context; oto allows only
// one.
func sharedOtoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoSampleRate = sampleRate
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			otoContextErr = fmt.Errorf("failed to create oto context: %w", err)
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

func NewOtoPlayer(sampleRate int, source BlockSource) (*OtoPlayer, error) {
	ctx, err := sharedOtoContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	return &OtoPlayer{player: ctx.NewPlayer(reader), reader: reader}, nil
}

func (p *OtoPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player != nil {
		p.player.Play()
	}
}

func (p *OtoPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player != nil {
		p.player.Pause()
	}
}

func (p *OtoPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.player != nil && p.player.IsPlaying()
}

func (p *OtoPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil {
		return nil
	}
	p.player.Pause()
	err := p.player.Close()
	p.player = nil
	if cerr := p.reader.Close(); err == nil {
		err = cerr
	}
	return err
}
