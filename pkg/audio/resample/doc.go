// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Time-stretches a frame stream at a dynamically adjustable ratio
// Package resample provides the frame-rate time-stretcher behind the
// sync correction controller's resampling tier.
//
// Unlike a fixed sample-rate converter, the ratio here changes every few
// hundred milliseconds as playback drifts and is resmoothed, so the
// resampler keeps its own fractional-position state across calls rather
// than recomputing a static input:output rate once at construction.
//
// Example:
//
//	r := resample.New(channels)
//	r.SetRatio(targetPlaybackRate)
//	ok := r.Next(func(f []float32) bool { return buf.ReadOneFrame(nowUs, f) }, outFrame)
package resample
