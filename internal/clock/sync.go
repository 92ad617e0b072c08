// ABOUTME: Clock synchronization using a two-state offset/drift estimator
// ABOUTME: Converts between server and local microsecond time under jitter and drift
package clock

import (
	"math"
	"sync"
)

// convergedUncertaintyUs and convergedMinSamples gate IsConverged.
const (
	convergedUncertaintyUs   = 1000.0
	convergedMinSamples      = 5
	minimalSyncMinSamples    = 2
	driftReliableMinSamples  = 10
	driftReliableMaxUncUsPS  = 100.0
	measurementVarianceFloor = 500.0 // microseconds, see SPEC_FULL open-question decision

	// Process noise: how fast our confidence in offset/drift decays per
	// second of no new measurement. Tuned for LAN RTTs (spec §1 non-goal:
	// WAN not supported), not derived from a closed-form model per §9.
	processNoiseOffsetPerSec = 4.0    // (us)^2 per second
	processNoiseDriftPerSec  = 0.0025 // (us/s)^2 per second

	initialOffsetVariance = 1e12 // (1e6 us)^2 — effectively "unknown"
	initialDriftVariance  = 1e6  // (1e3 us/s)^2
)

// Status is a point-in-time snapshot of the synchronizer's estimate.
type Status struct {
	OffsetUs            float64
	OffsetUncertaintyUs float64
	DriftUsPerS         float64
	DriftUncertaintyUsPerS float64
	MeasurementCount    uint64
	Converged           bool
	DriftReliable       bool
}

// Synchronizer estimates the offset and drift between a server clock and
// this endpoint's local clock (component B, §4.B) using a two-state
// [offset, drift] recursive estimator fed by NTP-style four-timestamp
// exchanges.
type Synchronizer struct {
	mu sync.Mutex

	clk *Clock

	offsetUs    float64
	driftUsPerS float64

	varOffset float64 // variance of offsetUs, (us)^2
	varDrift  float64 // variance of driftUsPerS, (us/s)^2

	measurementCount   uint64
	lastUpdateLocalUs  int64
	haveLastUpdate     bool

	staticDelayUs float64
}

// NewSynchronizer creates a Synchronizer backed by clk for "now" queries
// used during conversion extrapolation.
func NewSynchronizer(clk *Clock) *Synchronizer {
	return &Synchronizer{
		clk:       clk,
		varOffset: initialOffsetVariance,
		varDrift:  initialDriftVariance,
	}
}

// SetStaticDelayUs sets the user-tunable scalar added to every
// server→local conversion (and subtracted from local→server).
func (s *Synchronizer) SetStaticDelayUs(delayUs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staticDelayUs = delayUs
}

// ProcessMeasurement updates the estimator from one NTP-style exchange:
// t1 local send, t2 server receive, t3 server send, t4 local receive (all
// microseconds). Measurements with rtt <= 0 are rejected silently and
// leave the estimator unchanged (§4.B failure semantics, invariant 4).
func (s *Synchronizer) ProcessMeasurement(t1, t2, t3, t4 int64) {
	rtt := (t4 - t1) - (t3 - t2)
	if rtt <= 0 {
		return
	}

	offsetSample := float64((t2-t1)+(t3-t4)) / 2
	measurementVar := rttVariance(rtt)

	s.mu.Lock()
	defer s.mu.Unlock()

	var dtSec float64
	if s.haveLastUpdate {
		dtSec = float64(t4-s.lastUpdateLocalUs) / 1e6
		if dtSec < 0 {
			dtSec = 0
		}
	}

	// Predict forward from the last fused state.
	offsetPred := s.offsetUs + s.driftUsPerS*dtSec
	varOffsetPred := s.varOffset + s.varDrift*dtSec*dtSec + processNoiseOffsetPerSec*dtSec
	varDriftPred := s.varDrift + processNoiseDriftPerSec*dtSec

	// Fuse the offset observation into the predicted offset.
	innovation := offsetSample - offsetPred
	kOffset := varOffsetPred / (varOffsetPred + measurementVar)
	offsetNew := offsetPred + kOffset*innovation
	varOffsetNew := (1 - kOffset) * varOffsetPred

	// Fuse the drift implied by how much the residual grew over dtSec.
	driftNew := s.driftUsPerS
	varDriftNew := varDriftPred
	if dtSec > 1e-6 {
		driftInnovation := innovation / dtSec
		driftMeasurementVar := measurementVar / (dtSec * dtSec)
		kDrift := varDriftPred / (varDriftPred + driftMeasurementVar)
		driftNew = s.driftUsPerS + kDrift*driftInnovation
		varDriftNew = (1 - kDrift) * varDriftPred
	}

	s.offsetUs = offsetNew
	s.varOffset = varOffsetNew
	s.driftUsPerS = driftNew
	s.varDrift = varDriftNew
	s.lastUpdateLocalUs = t4
	s.haveLastUpdate = true
	s.measurementCount++
}

// rttVariance derives the measurement variance from round-trip time: a
// larger RTT implies a noisier offset sample. Any model monotone in RTT
// and positive-definite satisfies §9's open question; this one floors at
// measurementVarianceFloor to avoid a zero-variance (infinitely trusted)
// sample on an implausibly fast loopback exchange.
func rttVariance(rttUs int64) float64 {
	sigma := float64(rttUs) / 2
	if sigma < measurementVarianceFloor {
		sigma = measurementVarianceFloor
	}
	return sigma * sigma
}

// extrapolatedOffset returns the offset estimate extrapolated by drift
// from lastUpdateLocalUs to nowUs. Both ServerToLocal and LocalToServer
// call this with the same "now" so that composing them is symmetric
// (§4.B conversion contract).
func (s *Synchronizer) extrapolatedOffset(nowUs int64) float64 {
	if !s.haveLastUpdate {
		return s.offsetUs
	}
	dtSec := float64(nowUs-s.lastUpdateLocalUs) / 1e6
	return s.offsetUs + s.driftUsPerS*dtSec
}

// ServerToLocal returns the local microsecond instant at which audio
// stamped tServerUs should play.
func (s *Synchronizer) ServerToLocal(tServerUs int64) int64 {
	now := s.clk.NowUs()

	s.mu.Lock()
	offset := s.extrapolatedOffset(now)
	delay := s.staticDelayUs
	s.mu.Unlock()

	return tServerUs - int64(offset) + int64(delay)
}

// LocalToServer is the inverse of ServerToLocal, applying the same
// drift extrapolation so that ServerToLocal(LocalToServer(x)) ≈ x.
func (s *Synchronizer) LocalToServer(tLocalUs int64) int64 {
	now := s.clk.NowUs()

	s.mu.Lock()
	offset := s.extrapolatedOffset(now)
	delay := s.staticDelayUs
	s.mu.Unlock()

	return tLocalUs + int64(offset) - int64(delay)
}

// Status returns a snapshot of the current estimate.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	offsetUncertainty := math.Sqrt(s.varOffset)
	driftUncertainty := math.Sqrt(s.varDrift)

	return Status{
		OffsetUs:               s.offsetUs,
		OffsetUncertaintyUs:     offsetUncertainty,
		DriftUsPerS:             s.driftUsPerS,
		DriftUncertaintyUsPerS:  driftUncertainty,
		MeasurementCount:        s.measurementCount,
		Converged:               s.measurementCount >= convergedMinSamples && offsetUncertainty < convergedUncertaintyUs,
		DriftReliable:           s.measurementCount >= driftReliableMinSamples && driftUncertainty < driftReliableMaxUncUsPS,
	}
}

// IsConverged reports whether the estimator has enough samples and low
// enough offset uncertainty to trust for playback timing.
func (s *Synchronizer) IsConverged() bool {
	st := s.Status()
	return st.Converged
}

// HasMinimalSync reports whether at least two measurements have been
// fused, the threshold below which the estimator is not trusted even
// provisionally.
func (s *Synchronizer) HasMinimalSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.measurementCount >= minimalSyncMinSamples
}

// Reset discards all estimator state; idempotent. Used on reconnect. The
// user-configured static delay is not estimator state and survives reset.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offsetUs = 0
	s.driftUsPerS = 0
	s.varOffset = initialOffsetVariance
	s.varDrift = initialDriftVariance
	s.measurementCount = 0
	s.lastUpdateLocalUs = 0
	s.haveLastUpdate = false
}
