// ABOUTME: Tests for PCM decoder
// ABOUTME: Tests 16-bit and 24-bit PCM decoding
package decode

import (
	"testing"

	"github.com/airwave/endpoint/pkg/audio"
)

func TestNewPCM(t *testing.T) {
	format := audio.Format{
		Codec:      "pcm",
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	if decoder == nil {
		t.Fatal("expected decoder to be created")
	}
}

func TestPCMDecode16Bit(t *testing.T) {
	format := audio.Format{
		Codec:      "pcm",
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	// Input: 4 bytes -> 2 int16 samples, little-endian.
	input := []byte{0x00, 0x01, 0x02, 0x03}
	out := make([]float32, 2)
	n, err := decoder.Decode(input, out)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if n != 2 {
		t.Fatalf("expected 2 samples, got %d", n)
	}

	expected0 := audio.SampleFromInt16(0x0100)
	if out[0] != expected0 {
		t.Errorf("expected first sample %v, got %v", expected0, out[0])
	}
	expected1 := audio.SampleFromInt16(0x0302)
	if out[1] != expected1 {
		t.Errorf("expected second sample %v, got %v", expected1, out[1])
	}
}

func TestPCMDecode24Bit(t *testing.T) {
	format := audio.Format{
		Codec:      "pcm",
		SampleRate: 192000,
		Channels:   2,
		BitDepth:   24,
	}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	// 24-bit PCM: 3 bytes per sample. Input: 6 bytes -> 2 samples.
	input := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}
	out := make([]float32, 2)
	n, err := decoder.Decode(input, out)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if n != 2 {
		t.Fatalf("expected 2 samples, got %d", n)
	}

	expected0 := audio.SampleFrom24Bit([3]byte{0x00, 0x01, 0x02})
	if out[0] != expected0 {
		t.Errorf("expected first sample %v, got %v", expected0, out[0])
	}
	expected1 := audio.SampleFrom24Bit([3]byte{0x03, 0x04, 0x05})
	if out[1] != expected1 {
		t.Errorf("expected second sample %v, got %v", expected1, out[1])
	}
}

func TestPCMDecode_TruncatesToOutputLength(t *testing.T) {
	format := audio.Format{
		Codec:      "pcm",
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	input := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	out := make([]float32, 2)
	n, err := decoder.Decode(input, out)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if n != 2 {
		t.Errorf("expected decode to cap at output length 2, got %d", n)
	}
}

func TestNewPCM_InvalidCodec(t *testing.T) {
	format := audio.Format{
		Codec:      "opus",
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewPCM(format)
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}

	if decoder != nil {
		t.Fatal("expected decoder to be nil for invalid codec")
	}

	expectedError := "invalid codec for PCM decoder: opus"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestNewPCM_UnsupportedBitDepth(t *testing.T) {
	format := audio.Format{
		Codec:      "pcm",
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   32,
	}

	decoder, err := NewPCM(format)
	if err == nil {
		t.Fatal("expected error for unsupported bit depth, got nil")
	}

	if decoder != nil {
		t.Fatal("expected decoder to be nil for unsupported bit depth")
	}

	expectedError := "unsupported bit depth: 32 (supported: 16, 24)"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestPCMDecode_EmptyInput(t *testing.T) {
	format := audio.Format{
		Codec:      "pcm",
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	out := make([]float32, 4)
	n, err := decoder.Decode([]byte{}, out)
	if err != nil {
		t.Fatalf("decode failed with empty input: %v", err)
	}

	if n != 0 {
		t.Errorf("expected 0 samples from empty input, got %d", n)
	}
}
