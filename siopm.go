// Package siopm compiles MML and plays it on an emulated SiOPM sound chip,
// either offline into sample buffers and WAV files or in real time through
// an audio backend.
package siopm

import (
	intmml "github.com/cbegin/siopm-go/internal/mml"
	intseq "github.com/cbegin/siopm-go/internal/sequencer"
)

// Score is a compiled MML score.
type Score = intmml.Score

// Supported output sample rates.
const (
	SampleRate     = 44100
	SampleRateHalf = 22050
)

// Compile parses MML text with the full command set of the player.
func Compile(mmlText string) (*Score, error) {
	d, err := intseq.New()
	if err != nil {
		return nil, err
	}
	return d.Compile(mmlText)
}
