// ABOUTME: Sync correction controller deciding how to reconcile buffer drift
// ABOUTME: Tiers between doing nothing, resampling, and dropping/inserting frames
package correction

import (
	"math"
	"sync"

	"github.com/airwave/endpoint/internal/buffer"
)

// Mode is the correction strategy currently in effect.
type Mode int

const (
	ModeNone Mode = iota
	ModeResampling
	ModeDropping
	ModeInserting
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeResampling:
		return "resampling"
	case ModeDropping:
		return "dropping"
	case ModeInserting:
		return "inserting"
	default:
		return "unknown"
	}
}

const (
	resampleSmoothingAlpha = 0.125 // midpoint of the 0.10-0.15 band (§4.D)
	resampleDeadband       = 0.0001
	minCorrectionFrames    = 10 // floor, multiplied by channels below
)

// Config configures a Controller (§4.D state/policy constants).
type Config struct {
	SampleRate int
	Channels   int

	DeadbandUs            float64
	ResamplingThresholdUs float64
	MaxSpeedCorrection    float64 // M
	TargetBufferSeconds   float64
	StartupGraceUs        int64
}

// State is a point-in-time snapshot for observability.
type State struct {
	Mode                      Mode
	DropEveryNFrames          uint32
	InsertEveryNFrames        uint32
	TargetPlaybackRate        float64
	FramesEmittedSinceStartup uint64
	InStartupGrace            bool
}

// Controller implements the tiered sync correction policy (component D,
// §4.D). Update recomputes the tier from the buffer's smoothed error;
// Apply drives one block of output through the buffer, applying
// drop/insert interpolation when the tier calls for it.
type Controller struct {
	cfg Config

	mu sync.Mutex

	mode               Mode
	dropEveryNFrames   uint32
	insertEveryNFrames uint32
	targetPlaybackRate float64
	haveSmoothedRate   bool
	smoothedRate       float64

	framesEmittedSinceStartup uint64
	inStartupGrace            bool

	frameCounter uint32

	lastOutputFrame []float32
	dropA           []float32
	dropB           []float32
	insertPeek      []float32
}

// New creates a Controller ready for use; callers should call Reset (or
// rely on the initial state New sets, which is equivalent) before the
// first stream start.
func New(cfg Config) *Controller {
	return &Controller{
		cfg:                cfg,
		targetPlaybackRate: 1.0,
		inStartupGrace:     true,
		lastOutputFrame:    make([]float32, cfg.Channels),
		dropA:              make([]float32, cfg.Channels),
		dropB:              make([]float32, cfg.Channels),
		insertPeek:         make([]float32, cfg.Channels),
	}
}

// Reset returns the controller to its initial state: no correction, unity
// rate, zeroed counters, startup grace re-armed. Called by the
// orchestrator on stream start, clear, and re-anchor.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = ModeNone
	c.dropEveryNFrames = 0
	c.insertEveryNFrames = 0
	c.targetPlaybackRate = 1.0
	c.haveSmoothedRate = false
	c.smoothedRate = 0
	c.framesEmittedSinceStartup = 0
	c.inStartupGrace = true
	c.frameCounter = 0
	for i := range c.lastOutputFrame {
		c.lastOutputFrame[i] = 0
	}
}

// State returns a snapshot of the controller's current policy.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Mode:                      c.mode,
		DropEveryNFrames:          c.dropEveryNFrames,
		InsertEveryNFrames:        c.insertEveryNFrames,
		TargetPlaybackRate:        c.targetPlaybackRate,
		FramesEmittedSinceStartup: c.framesEmittedSinceStartup,
		InStartupGrace:            c.inStartupGrace,
	}
}

// Update recomputes the active tier from the buffer's current smoothed
// sync error, in microseconds (sign: positive means behind schedule).
func (c *Controller) Update(smoothedErrorUs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsedUs := float64(c.framesEmittedSinceStartup) * 1e6 / float64(c.cfg.SampleRate)
	c.inStartupGrace = elapsedUs < float64(c.cfg.StartupGraceUs)

	absE := math.Abs(smoothedErrorUs)

	switch {
	case c.inStartupGrace:
		c.setBypassLocked(ModeNone)
	case absE < c.cfg.DeadbandUs:
		c.setBypassLocked(ModeNone)
	case absE < c.cfg.ResamplingThresholdUs:
		c.setResamplingLocked(smoothedErrorUs)
	default:
		c.setDropOrInsertLocked(smoothedErrorUs)
	}
}

// setBypassLocked implements tiers 0 and 1: no correction, rate pinned to
// exactly 1.0 (bypassing the resampling smoother so the next resampling
// engagement starts clean).
func (c *Controller) setBypassLocked(mode Mode) {
	c.mode = mode
	c.dropEveryNFrames = 0
	c.insertEveryNFrames = 0
	c.targetPlaybackRate = 1.0
	c.haveSmoothedRate = false
}

// setResamplingLocked implements tier 2.
func (c *Controller) setResamplingLocked(smoothedErrorUs float64) {
	c.mode = ModeResampling
	c.dropEveryNFrames = 0
	c.insertEveryNFrames = 0

	raw := 1 + clamp(smoothedErrorUs/c.cfg.TargetBufferSeconds/1e6, -c.cfg.MaxSpeedCorrection, c.cfg.MaxSpeedCorrection)
	c.targetPlaybackRate = c.smoothRateLocked(raw)
}

// smoothRateLocked applies the exponential smoothing + deadband required
// of the resampling rate so it doesn't disturb the resampler's filter
// state with noisy updates.
func (c *Controller) smoothRateLocked(raw float64) float64 {
	if !c.haveSmoothedRate {
		// Engagement starts from the unity rate the bypass tiers left behind.
		c.smoothedRate = 1.0
		c.haveSmoothedRate = true
	}

	next := resampleSmoothingAlpha*raw + (1-resampleSmoothingAlpha)*c.smoothedRate
	if math.Abs(next-c.smoothedRate) < resampleDeadband {
		return c.smoothedRate
	}
	c.smoothedRate = next
	return next
}

// setDropOrInsertLocked implements tier 3. The running frameCounter only
// resets when the mode or the computed interval actually changes, so
// fractional progress toward the interval survives across callbacks that
// each cover less than one drop/insert period.
func (c *Controller) setDropOrInsertLocked(smoothedErrorUs float64) {
	c.targetPlaybackRate = 1.0
	c.haveSmoothedRate = false

	framesError := math.Abs(smoothedErrorUs) * float64(c.cfg.SampleRate) / 1e6
	desiredPerSec := framesError / c.cfg.TargetBufferSeconds
	maxPerSec := float64(c.cfg.SampleRate) * c.cfg.MaxSpeedCorrection
	if desiredPerSec > maxPerSec {
		desiredPerSec = maxPerSec
	}
	if desiredPerSec <= 0 {
		desiredPerSec = maxPerSec
	}

	interval := float64(c.cfg.SampleRate) / desiredPerSec
	if min := float64(c.cfg.Channels * minCorrectionFrames); interval < min {
		interval = min
	}
	newInterval := uint32(interval)

	newMode := ModeInserting
	if smoothedErrorUs > 0 {
		newMode = ModeDropping
	}

	changed := newMode != c.mode
	if newMode == ModeDropping {
		changed = changed || newInterval != c.dropEveryNFrames
	} else {
		changed = changed || newInterval != c.insertEveryNFrames
	}
	if changed {
		c.frameCounter = 0
	}

	c.mode = newMode
	if newMode == ModeDropping {
		c.dropEveryNFrames = newInterval
		c.insertEveryNFrames = 0
	} else {
		c.insertEveryNFrames = newInterval
		c.dropEveryNFrames = 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Apply drives one output block from buf into out, applying this
// controller's current tier. Tiers None/Resampling pass consumption
// straight through to the buffer (resampling is applied by the caller's
// external resampler against TargetPlaybackRate, not here); Dropping and
// Inserting interpolate at the computed frame interval. Returns how many
// samples of out are real (the remainder, if any, is silence from an
// underrun).
func (c *Controller) Apply(buf *buffer.Buffer, out []float32, nowLocalUs int64) int {
	for i := range out {
		out[i] = 0
	}

	if !buf.BeginRead(nowLocalUs) {
		return 0
	}

	ch := c.cfg.Channels
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()

	frames := len(out) / ch
	produced := 0

	for i := 0; i < frames; i++ {
		slot := out[i*ch : (i+1)*ch]

		var ok bool
		switch mode {
		case ModeDropping:
			ok = c.stepDrop(buf, nowLocalUs, slot)
		case ModeInserting:
			ok = c.stepInsert(buf, nowLocalUs, slot)
		default:
			ok = buf.ReadOneFrame(nowLocalUs, slot)
			if ok {
				copy(c.lastOutputFrame, slot)
			}
		}

		c.mu.Lock()
		c.framesEmittedSinceStartup++
		c.mu.Unlock()

		if ok {
			produced += ch
		} else if mode == ModeNone || mode == ModeResampling {
			break // underrun on the plain path; remaining slots stay silent
		}
	}

	return produced
}

// stepDrop implements the drop-frame action: on the frame where the
// running counter reaches drop_every_n_frames, consume two frames and
// emit their linear crossfade.
func (c *Controller) stepDrop(buf *buffer.Buffer, nowLocalUs int64, slot []float32) bool {
	c.mu.Lock()
	c.frameCounter++
	fire := c.dropEveryNFrames > 0 && c.frameCounter >= c.dropEveryNFrames
	if fire {
		c.frameCounter = 0
	}
	c.mu.Unlock()

	if !fire {
		ok := buf.ReadOneFrame(nowLocalUs, slot)
		if ok {
			copy(c.lastOutputFrame, slot)
		}
		return ok
	}

	okA := buf.ReadOneFrame(nowLocalUs, c.dropA)
	okB := buf.ReadAhead(c.dropB)

	switch {
	case okA && okB:
		for i := range slot {
			slot[i] = (c.dropA[i] + c.dropB[i]) / 2
		}
		buf.NotifyExternalCorrection(uint32(len(slot)), 0)
		copy(c.lastOutputFrame, slot)
		return true
	case okA:
		copy(slot, c.dropA)
		copy(c.lastOutputFrame, slot)
		return true
	default:
		for i := range slot {
			slot[i] = 0
		}
		return false
	}
}

// stepInsert implements the insert-frame action: on the frame where the
// running counter reaches insert_every_n_frames, peek the next frame
// without consuming it and emit the crossfade with the last real output.
func (c *Controller) stepInsert(buf *buffer.Buffer, nowLocalUs int64, slot []float32) bool {
	c.mu.Lock()
	c.frameCounter++
	fire := c.insertEveryNFrames > 0 && c.frameCounter >= c.insertEveryNFrames
	if fire {
		c.frameCounter = 0
	}
	c.mu.Unlock()

	if !fire {
		ok := buf.ReadOneFrame(nowLocalUs, slot)
		if ok {
			copy(c.lastOutputFrame, slot)
		}
		return ok
	}

	if buf.PeekFrame(c.insertPeek) {
		for i := range slot {
			slot[i] = (c.lastOutputFrame[i] + c.insertPeek[i]) / 2
		}
	} else {
		copy(slot, c.lastOutputFrame)
	}
	buf.NotifyExternalCorrection(0, uint32(len(slot)))
	copy(c.lastOutputFrame, slot)
	return true
}
