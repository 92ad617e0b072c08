// ABOUTME: Configuration surface for the audio pipeline orchestrator
package pipeline

// Config enumerates the pipeline's tunable knobs (§6 configuration
// surface). Sample-rate-dependent buffer/controller settings are derived
// from the stream's format at Start time.
type Config struct {
	TargetBufferMs   int // default 250
	BufferCapacityMs int // default 500; must be > TargetBufferMs

	MaxSpeedCorrection     float64 // default 0.02; range (0, 1]
	CorrectionTargetSeconds float64 // default 3.0; range > 0

	DeadbandUs            float64 // default 1000
	ResamplingThresholdUs float64 // default 15000; must be >= DeadbandUs
	ReanchorThresholdUs   int64   // default 500000; must be > ResamplingThresholdUs

	StartupGraceUs              int64 // default 500000
	ScheduledStartGraceWindowUs int64 // default 10000

	StaticDelayMs float64 // default 0; user tunable, typical [-500, +500]

	ConvergenceTimeoutMs int64 // default 5000

	EarlyChunkQueueCapacity int // default 100
}

// DefaultConfig returns the configuration defaults enumerated in §6.
func DefaultConfig() Config {
	return Config{
		TargetBufferMs:              250,
		BufferCapacityMs:            500,
		MaxSpeedCorrection:          0.02,
		CorrectionTargetSeconds:     3.0,
		DeadbandUs:                  1000,
		ResamplingThresholdUs:       15000,
		ReanchorThresholdUs:         500000,
		StartupGraceUs:              500000,
		ScheduledStartGraceWindowUs: 10000,
		StaticDelayMs:               0,
		ConvergenceTimeoutMs:        5000,
		EarlyChunkQueueCapacity:     100,
	}
}

const readinessFillFraction = 0.8
