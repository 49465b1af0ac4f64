package siopm

import (
	"errors"
	"testing"

	intseq "github.com/cbegin/siopm-go/internal/sequencer"
)

func TestPlayerMasterVolumeRuntimeAPI(t *testing.T) {
	pl, err := NewPlayer(SampleRate)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if got := pl.MasterVolume(); got != 1 {
		t.Fatalf("default master volume = %v, want 1", got)
	}
	pl.SetMasterVolume(0.35)
	if got := pl.MasterVolume(); got != 0.35 {
		t.Fatalf("master volume = %v, want 0.35", got)
	}
	if pl.gain.Level != 0.35 {
		t.Fatalf("master gain = %v, want 0.35", pl.gain.Level)
	}
	pl.SetMasterVolume(-2)
	if got := pl.MasterVolume(); got != 0 {
		t.Fatalf("master volume should clamp to 0, got %v", got)
	}
}

func TestPlayerEQBand(t *testing.T) {
	pl, err := NewPlayer(SampleRate)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	pl.SetEQBand(2, 0.5)
	if got := pl.EQBand(2); got != 0.5 {
		t.Fatalf("eq band 2 = %v, want 0.5", got)
	}
	if got := pl.EQBand(0); got != 1 {
		t.Fatalf("eq band 0 = %v, want 1", got)
	}
}

func TestNewPlayerRejectsBadConfig(t *testing.T) {
	if _, err := NewPlayer(48000); !errors.Is(err, intseq.ErrConfig) {
		t.Fatalf("expected ErrConfig for 48000 Hz, got %v", err)
	}
	if _, err := NewPlayer(SampleRate, WithBackend("alsa")); err == nil {
		t.Fatalf("expected an error for an unknown backend")
	}
}

func TestPlayerIdle(t *testing.T) {
	pl, err := NewPlayer(SampleRate, WithBackend(BackendOto))
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if pl.IsPlaying() || pl.PlaybackPosition() != 0 {
		t.Fatalf("a new player must be idle")
	}
	if err := pl.Stop(); err != nil {
		t.Fatalf("stop on an idle player: %v", err)
	}
	pl.Wait()
	if err := pl.Play(nil); !errors.Is(err, intseq.ErrNoScore) {
		t.Fatalf("expected ErrNoScore, got %v", err)
	}
}

// The block source is exercised directly so that no audio device opens.
func TestPlayerBlockSourceEvents(t *testing.T) {
	var tapped int
	pl, err := NewPlayer(SampleRate, WithLoopPlayback(false), WithBufferLength(1024), WithSampleTap(func(b []float64) {
		tapped += len(b)
	}))
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	events := pl.Watch()
	score, err := Compile("t240 l8 c %t3 d")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	pl.done = make(chan struct{})
	configureRouter(pl.router, score.Definitions, pl.sampleRate, pl.masterEQ, pl.gain)
	if err := pl.driver.Play(score); err != nil {
		t.Fatalf("play: %v", err)
	}
	pl.ended = false
	src := blockSource{p: pl, gen: pl.gen}
	var trigger, ended bool
	drain := func() {
		for len(events) > 0 {
			switch ev := <-events; ev.Kind {
			case EventTrigger:
				trigger = ev.TriggerID == 3
			case EventPlaybackEnded:
				ended = true
			}
		}
	}
	blocks := 0
	for src.NextBlock() != nil {
		drain()
		if blocks++; blocks > 1000 {
			t.Fatalf("playback did not end")
		}
	}
	drain()
	if tapped != blocks*2048 {
		t.Fatalf("sample tap saw %d samples, want %d", tapped, blocks*2048)
	}
	pl.Wait()
	if !trigger || !ended {
		t.Fatalf("expected trigger and end events, got trigger=%v ended=%v", trigger, ended)
	}
}

func TestStaleBlockSourceEnds(t *testing.T) {
	pl, err := NewPlayer(SampleRate)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	pl.ended = false
	src := blockSource{p: pl, gen: pl.gen}
	pl.detach()
	if src.NextBlock() != nil {
		t.Fatalf("a replaced source must end")
	}
}
