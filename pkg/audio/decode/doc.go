// ABOUTME: Audio decoder package for multiple codec support
// ABOUTME: Provides Decoder interface and implementations for PCM, Opus, FLAC, MP3
// Package decode provides audio decoders for various codecs.
//
// Supports: PCM (16-bit and 24-bit), Opus, FLAC, MP3
//
// All decoders implement the Decoder interface and output interleaved
// float32 samples, the currency used throughout the buffer and
// correction pipeline.
//
// Example:
//
//	decoder, err := decode.NewPCM(format)
//	n, err := decoder.Decode(encoded, out)
package decode
