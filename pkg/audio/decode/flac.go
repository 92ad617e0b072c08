// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes FLAC audio to interleaved float32 samples
package decode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/airwave/endpoint/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACDecoder decodes FLAC audio. The stream's codec header (the "fLaC"
// marker plus STREAMINFO metadata block, carried in Format.CodecHeader)
// is prefixed to each incoming chunk so mewkiz/flac can parse it as a
// standalone mini-stream; chunks arrive as independent frames (§3 "Audio
// Chunk"), so there is no cross-chunk bitstream state to carry beyond
// that header.
type FLACDecoder struct {
	format audio.Format
	header []byte
}

// NewFLAC creates a new FLAC decoder.
func NewFLAC(format audio.Format) (Decoder, error) {
	if format.Codec != "flac" {
		return nil, fmt.Errorf("invalid codec for FLAC decoder: %s", format.Codec)
	}
	if len(format.CodecHeader) == 0 {
		return nil, fmt.Errorf("flac decoder requires a codec header (fLaC marker + STREAMINFO)")
	}

	return &FLACDecoder{
		format: format,
		header: format.CodecHeader,
	}, nil
}

// Decode converts one FLAC frame to interleaved float32 samples, writing
// up to len(out).
func (d *FLACDecoder) Decode(data []byte, out []float32) (int, error) {
	framed := make([]byte, 0, len(d.header)+len(data))
	framed = append(framed, d.header...)
	framed = append(framed, data...)

	stream, err := flac.Parse(bytes.NewReader(framed))
	if err != nil {
		return 0, fmt.Errorf("flac parse failed: %w", err)
	}
	defer stream.Close()

	frame, err := stream.ParseNext()
	if err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("flac frame decode failed: %w", err)
	}

	channels := len(frame.Subframes)
	if channels == 0 {
		return 0, nil
	}

	scale := float32(int64(1) << (frame.BitsPerSample - 1))
	blockSize := int(frame.BlockSize)

	n := 0
	for i := 0; i < blockSize && n+channels <= len(out); i++ {
		for ch := 0; ch < channels; ch++ {
			out[n] = float32(frame.Subframes[ch].Samples[i]) / scale
			n++
		}
	}

	return n, nil
}

// Reset is a no-op; each chunk is decoded as an independent mini-stream.
func (d *FLACDecoder) Reset() error {
	return nil
}

// Close releases decoder resources.
func (d *FLACDecoder) Close() error {
	return nil
}
