// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes MP3 audio to interleaved float32 samples
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/airwave/endpoint/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes MP3 audio. Each chunk is a self-contained MP3 frame
// (or short run of frames), so a fresh go-mp3 decoder is built per Decode
// call rather than held open across chunks; go-mp3 frames are
// self-synchronizing and carry their own rate/channel info.
type MP3Decoder struct {
	format  audio.Format
	scratch []byte
}

// NewMP3 creates a new MP3 decoder.
func NewMP3(format audio.Format) (Decoder, error) {
	if format.Codec != "mp3" {
		return nil, fmt.Errorf("invalid codec for MP3 decoder: %s", format.Codec)
	}

	return &MP3Decoder{format: format}, nil
}

// Decode converts MP3-encoded bytes to interleaved float32 samples,
// writing up to len(out).
func (d *MP3Decoder) Decode(data []byte, out []float32) (int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	needed := len(out) * 2 // go-mp3 emits 16-bit stereo PCM bytes
	if cap(d.scratch) < needed {
		d.scratch = make([]byte, needed)
	}
	buf := d.scratch[:needed]

	total := 0
	for total < len(buf) {
		n, err := dec.Read(buf[total:])
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("mp3 decode error: %w", err)
		}
		if n == 0 {
			break
		}
	}

	numSamples := total / 2
	if numSamples > len(out) {
		numSamples = len(out)
	}
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		out[i] = audio.SampleFromInt16(sample16)
	}

	return numSamples, nil
}

// Reset is a no-op; each chunk already gets a fresh go-mp3 decoder.
func (d *MP3Decoder) Reset() error {
	return nil
}

// Close releases decoder resources.
func (d *MP3Decoder) Close() error {
	return nil
}
