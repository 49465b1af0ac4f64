package siopm

import "errors"

var (
	// ErrWaveIndex reports a wave table or PCM slot that is out of range or
	// not loaded.
	ErrWaveIndex = errors.New("siopm: wave index out of range")
	// ErrWaveData reports wave data the channel type cannot play.
	ErrWaveData = errors.New("siopm: unsupported wave data")
	// ErrChannelType reports an unknown channel type.
	ErrChannelType = errors.New("siopm: unknown channel type")
)
