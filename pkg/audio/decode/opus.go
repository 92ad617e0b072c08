// ABOUTME: Opus audio decoder
// ABOUTME: Decodes Opus audio to interleaved float32 samples
package decode

import (
	"fmt"

	"github.com/airwave/endpoint/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// OpusDecoder decodes Opus audio.
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
	scratch []int16
}

// NewOpus creates a new Opus decoder.
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
		scratch: make([]int16, 5760*format.Channels), // max Opus frame size
	}, nil
}

// Decode converts Opus bytes to float32 samples.
func (d *OpusDecoder) Decode(data []byte, out []float32) (int, error) {
	n, err := d.decoder.Decode(data, d.scratch)
	if err != nil {
		return 0, fmt.Errorf("opus decode failed: %w", err)
	}

	actualSamples := n * d.format.Channels
	if actualSamples > len(out) {
		actualSamples = len(out)
	}
	for i := 0; i < actualSamples; i++ {
		out[i] = audio.SampleFromInt16(d.scratch[i])
	}
	return actualSamples, nil
}

// Reset discards decoder state (packet loss concealment history) by
// recreating the underlying libopus decoder, so the next Decode call
// doesn't interpolate across a stream gap.
func (d *OpusDecoder) Reset() error {
	dec, err := opus.NewDecoder(d.format.SampleRate, d.format.Channels)
	if err != nil {
		return fmt.Errorf("failed to reset opus decoder: %w", err)
	}
	d.decoder = dec
	return nil
}

// Close releases decoder resources.
func (d *OpusDecoder) Close() error {
	return nil
}
