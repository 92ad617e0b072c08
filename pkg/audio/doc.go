// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Chunk types and sample conversion functions
// Package audio provides fundamental audio types shared across the
// endpoint: the decoder, the timed buffer, and the output backends.
//
// This package defines:
//   - Format: describes an audio stream (codec, sample rate, channels, bit depth)
//   - Chunk: one encoded audio chunk plus its server-clock timestamp
//
// Interleaved float32 samples in [-1, 1] are the currency everywhere else
// in the endpoint; this package provides the conversions to/from the
// packed PCM representations a decoder or output device may need.
//
// Example:
//
//	format := audio.Format{
//	    Codec:      "pcm",
//	    SampleRate: 192000,
//	    Channels:   2,
//	    BitDepth:   24,
//	}
//
//	sample := audio.SampleFromInt16(rawSample)
package audio
