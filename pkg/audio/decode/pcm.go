// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 16-bit and 24-bit PCM audio to interleaved float32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/airwave/endpoint/pkg/audio"
)

// PCMDecoder is a pass-through decoder for raw interleaved PCM.
type PCMDecoder struct {
	bitDepth int
}

// NewPCM creates a new PCM decoder.
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	return &PCMDecoder{bitDepth: format.BitDepth}, nil
}

// Decode converts PCM bytes to float32 samples, writing up to len(out).
func (d *PCMDecoder) Decode(data []byte, out []float32) (int, error) {
	if d.bitDepth == 24 {
		numSamples := len(data) / 3
		if numSamples > len(out) {
			numSamples = len(out)
		}
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			out[i] = audio.SampleFrom24Bit(b)
		}
		return numSamples, nil
	}

	numSamples := len(data) / 2
	if numSamples > len(out) {
		numSamples = len(out)
	}
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = audio.SampleFromInt16(sample16)
	}
	return numSamples, nil
}

// Reset is a no-op; PCM decoding carries no cross-chunk state.
func (d *PCMDecoder) Reset() error {
	return nil
}

// Close releases resources.
func (d *PCMDecoder) Close() error {
	return nil
}
