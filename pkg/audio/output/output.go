// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for audio playback backends
package output

import "github.com/airwave/endpoint/pkg/audio"

// SampleSource is the callback an Output backend pulls samples from. It
// fills outBuf with up to its length of interleaved float samples and
// returns how many are real (the remainder is expected to be silence).
// Implementations MUST NOT allocate or block (§5 real-time discipline).
type SampleSource func(outBuf []float32, nowLocalUs int64) int

// Latency reports the backend's timing characteristics after Initialize.
type Latency struct {
	// OutputLatencyMs is informational: the backend's best estimate of
	// buffer-to-speaker delay.
	OutputLatencyMs float64

	// CalibratedStartupLatencyMs is 0 for pull-model backends and nonzero
	// for push-model backends that prefill before the first real sample
	// reaches the speaker.
	CalibratedStartupLatencyMs float64
}

// Device describes an enumerable output device for switch_device.
type Device struct {
	ID   string
	Name string
}

// DeviceLister is implemented by backends that can enumerate devices.
type DeviceLister interface {
	ListDevices() ([]Device, error)
}

// VolumeControl is implemented by backends that can apply software
// volume/mute themselves. Callers type-assert for it rather than
// requiring it on every Output.
type VolumeControl interface {
	SetVolume(percent int) error
	SetMuted(muted bool) error
}

// Output represents an audio output device (§6 audio output interface).
type Output interface {
	// Initialize prepares the backend for the given format and reports
	// its latency characteristics.
	Initialize(format audio.Format) (Latency, error)

	// SetSampleSource registers the callback the backend pulls from once
	// playing. Must be called before Play.
	SetSampleSource(src SampleSource)

	Play() error
	Pause() error
	Stop() error

	// SwitchDevice rebuilds the backend against a new device id (empty
	// string selects the default device), preserving the sample source.
	SwitchDevice(id string) error

	Close() error
}
