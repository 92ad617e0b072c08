// ABOUTME: Tests for FLAC decoder
// ABOUTME: Tests FLAC decoder creation, codec validation, and decode errors
package decode

import (
	"testing"

	"github.com/airwave/endpoint/pkg/audio"
)

// minimalFLACHeader is a "fLaC" marker followed by a 34-byte STREAMINFO
// metadata block (marked last-metadata-block), the shape Format.CodecHeader
// carries for a FLAC stream.
var minimalFLACHeader = append([]byte("fLaC"), append([]byte{0x80, 0x00, 0x00, 0x22}, make([]byte, 34)...)...)

func TestNewFLAC(t *testing.T) {
	format := audio.Format{
		Codec:       "flac",
		SampleRate:  48000,
		Channels:    2,
		BitDepth:    24,
		CodecHeader: minimalFLACHeader,
	}

	decoder, err := NewFLAC(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	if decoder == nil {
		t.Fatal("expected decoder to be created")
	}
}

func TestNewFLAC_InvalidCodec(t *testing.T) {
	format := audio.Format{
		Codec:       "opus",
		SampleRate:  48000,
		Channels:    2,
		BitDepth:    24,
		CodecHeader: minimalFLACHeader,
	}

	decoder, err := NewFLAC(format)
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}

	if decoder != nil {
		t.Fatal("expected decoder to be nil for invalid codec")
	}

	expectedError := "invalid codec for FLAC decoder: opus"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestNewFLAC_MissingCodecHeader(t *testing.T) {
	format := audio.Format{
		Codec:      "flac",
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   24,
	}

	decoder, err := NewFLAC(format)
	if err == nil {
		t.Fatal("expected error for missing codec header, got nil")
	}

	if decoder != nil {
		t.Fatal("expected decoder to be nil without a codec header")
	}
}

func TestFLACDecode_InvalidFrame(t *testing.T) {
	format := audio.Format{
		Codec:       "flac",
		SampleRate:  48000,
		Channels:    2,
		BitDepth:    24,
		CodecHeader: minimalFLACHeader,
	}

	decoder, err := NewFLAC(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	out := make([]float32, 4096)
	_, err = decoder.Decode([]byte{0x00, 0x01, 0x02, 0x03}, out)
	if err == nil {
		t.Fatal("expected error decoding a non-FLAC-frame payload, got nil")
	}
}

func TestFLACClose(t *testing.T) {
	format := audio.Format{
		Codec:       "flac",
		SampleRate:  48000,
		Channels:    2,
		BitDepth:    24,
		CodecHeader: minimalFLACHeader,
	}

	decoder, err := NewFLAC(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	if err := decoder.Close(); err != nil {
		t.Errorf("expected Close to succeed, got error: %v", err)
	}
}

func TestFLACReset(t *testing.T) {
	format := audio.Format{
		Codec:       "flac",
		SampleRate:  48000,
		Channels:    2,
		BitDepth:    24,
		CodecHeader: minimalFLACHeader,
	}

	decoder, err := NewFLAC(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	if err := decoder.Reset(); err != nil {
		t.Errorf("expected Reset to succeed, got error: %v", err)
	}
}
