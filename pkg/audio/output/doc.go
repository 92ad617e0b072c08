// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides Output interface and oto/malgo backends
// Package output provides audio playback interfaces.
//
// Backends pull samples through a callback (SampleSource) rather than
// being pushed to, so the pipeline orchestrator controls exactly when
// and how much audio is produced. Oto is a true pull model with zero
// calibrated startup latency; Malgo prefills a ring buffer ahead of the
// miniaudio callback and reports a nonzero startup latency instead.
//
// Example:
//
//	out := output.NewOto(clk)
//	lat, err := out.Initialize(format)
//	out.SetSampleSource(player.Read)
//	err = out.Play()
package output
