// ABOUTME: Timed audio buffer bridging decoder writes and device reads
// ABOUTME: Associates PCM with server timestamps, releases on schedule, tracks sync error
package buffer

import (
	"log"
	"sync"

	"github.com/airwave/endpoint/internal/clock"
)

// Config configures a Buffer (§4.C, §6 configuration surface).
type Config struct {
	SampleRate int
	Channels   int

	CapacityMs     int // must be > TargetBufferMs
	TargetBufferMs int

	StartupGraceUs              int64
	ScheduledStartGraceWindowUs int64
	ReanchorThresholdUs         int64

	// CalibratedStartupLatencyUs is 0 for pull-model outputs, nonzero for
	// push-model backends that prefill.
	CalibratedStartupLatencyUs int64
}

const (
	smoothingAlpha        = 0.1
	underrunLogIntervalUs = int64(time1Second)
	time1Second           = 1_000_000
)

type segment struct {
	localPlaybackTimeUs int64
	sampleCount         uint32
}

type segQueue struct {
	items []segment
	front int
}

func (q *segQueue) push(s segment) {
	q.items = append(q.items, s)
}

func (q *segQueue) len() int {
	return len(q.items) - q.front
}

func (q *segQueue) peek() *segment {
	if q.len() == 0 {
		return nil
	}
	return &q.items[q.front]
}

func (q *segQueue) pop() {
	q.front++
	if q.front > 64 && q.front*2 > len(q.items) {
		q.items = append([]segment(nil), q.items[q.front:]...)
		q.front = 0
	}
}

func (q *segQueue) reset() {
	q.items = q.items[:0]
	q.front = 0
}

// Stats is an observability snapshot of buffer state (§4.C stats()).
type Stats struct {
	FillSamples              int
	CapacitySamples           int
	OverrunCount              uint64
	UnderrunCount             uint64
	SamplesReadSinceStart     uint64
	SamplesOutputSinceStart   uint64
	SmoothedErrorUs           float64
	RawErrorUs                float64
	PlaybackStarted           bool
	WaitingForScheduledStart  bool
	CumulativeDroppedSamples  uint64
	CumulativeInsertedSamples uint64
}

// Buffer is the single-producer/single-consumer timed audio buffer
// (component C, §4.C). The producer (decoder) calls Write; the consumer
// (device callback, directly or via the correction controller) calls
// ReadRaw or the BeginRead/ReadOneFrame/ReadAhead/PeekFrame family.
type Buffer struct {
	cfg  Config
	sync *clock.Synchronizer
	clk  *clock.Clock

	mu sync.Mutex

	store    []float32
	capacity int // interleaved samples
	writePos int
	readPos  int
	fill     int

	segs segQueue

	playbackStarted          bool
	waitingForScheduledStart bool
	scheduledStartLocalUs    int64
	haveScheduledStart       bool
	playbackStartLocalUs     int64

	samplesReadSinceStart   uint64
	samplesOutputSinceStart uint64

	smoothedErrorUs float64
	rawErrorUs      float64

	overrunCount  uint64
	underrunCount uint64

	cumulativeDropped  uint64
	cumulativeInserted uint64

	reanchorPending bool
	reanchor        chan struct{}

	lastUnderrunLogUs int64
	haveUnderrunLog   bool

	readRawScratch []float32 // reused by ReadRaw; single-consumer, no allocation per call
}

// New creates a Buffer for the given format/config, tagging writes via
// sync's server→local conversion.
func New(cfg Config, sync *clock.Synchronizer, clk *clock.Clock) *Buffer {
	capacity := cfg.CapacityMs * cfg.SampleRate * cfg.Channels / 1000

	return &Buffer{
		cfg:      cfg,
		sync:     sync,
		clk:      clk,
		store:          make([]float32, capacity),
		capacity:       capacity,
		reanchor:       make(chan struct{}, 1),
		readRawScratch: make([]float32, cfg.Channels),
	}
}

// ReanchorEvents delivers a coalesced, single-slot signal each time the
// buffer wants the orchestrator to clear and restart scheduled-start
// (§4.C re-anchor condition, §9 event coalescing).
func (b *Buffer) ReanchorEvents() <-chan struct{} {
	return b.reanchor
}

// Write appends interleaved samples tagged with a server timestamp,
// dropping from the oldest end on overflow. Never blocks.
func (b *Buffer) Write(samples []float32, serverTimestampUs int64) {
	localUs := b.sync.ServerToLocal(serverTimestampUs)

	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(samples)
	if n == 0 {
		return
	}

	if n > b.capacity {
		drop := n - b.capacity
		samples = samples[drop:]
		n = b.capacity
		b.overrunCount++
	}

	if over := b.fill + n - b.capacity; over > 0 {
		b.dropOldestLocked(over)
		b.overrunCount++
	}

	for i := 0; i < n; i++ {
		b.store[b.writePos] = samples[i]
		b.writePos++
		if b.writePos == b.capacity {
			b.writePos = 0
		}
	}
	b.fill += n
	b.segs.push(segment{localPlaybackTimeUs: localUs, sampleCount: uint32(n)})
}

// dropOldestLocked discards `count` samples from the oldest end of the
// store, trimming or popping segment heads so their sum stays equal to
// the new fill level.
func (b *Buffer) dropOldestLocked(count int) {
	if count > b.fill {
		count = b.fill
	}
	b.readPos = (b.readPos + count) % max1(b.capacity)
	b.fill -= count

	remaining := count
	for remaining > 0 {
		head := b.segs.peek()
		if head == nil {
			break
		}
		if int(head.sampleCount) <= remaining {
			remaining -= int(head.sampleCount)
			b.segs.pop()
		} else {
			head.sampleCount -= uint32(remaining)
			remaining = 0
		}
	}
}

func max1(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}

// Clear resets all indices, segments, and flags except the cumulative
// overrun/underrun/drop/insert totals. Clock sync state is untouched.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writePos = 0
	b.readPos = 0
	b.fill = 0
	b.segs.reset()

	b.playbackStarted = false
	b.waitingForScheduledStart = false
	b.haveScheduledStart = false
	b.scheduledStartLocalUs = 0
	b.playbackStartLocalUs = 0

	b.samplesReadSinceStart = 0
	b.samplesOutputSinceStart = 0
	b.smoothedErrorUs = 0
	b.rawErrorUs = 0

	b.reanchorPending = false
	// Drain any coalesced signal that hasn't been consumed yet.
	select {
	case <-b.reanchor:
	default:
	}
}

// SoftReset clears the scheduled-start/playback timing state (and the
// re-anchor flag) without discarding already-buffered audio or touching
// the overrun/underrun/drop/insert totals. Used on device switch, where
// the audio is still valid but the output's timing characteristics have
// changed and must not be mistaken for drift.
func (b *Buffer) SoftReset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.playbackStarted = false
	b.waitingForScheduledStart = false
	b.haveScheduledStart = false
	b.scheduledStartLocalUs = 0
	b.playbackStartLocalUs = 0
	b.samplesReadSinceStart = 0
	b.samplesOutputSinceStart = 0
	b.smoothedErrorUs = 0
	b.rawErrorUs = 0

	b.reanchorPending = false
	select {
	case <-b.reanchor:
	default:
	}
}

// Stats returns a snapshot for observability.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		FillSamples:               b.fill,
		CapacitySamples:           b.capacity,
		OverrunCount:              b.overrunCount,
		UnderrunCount:             b.underrunCount,
		SamplesReadSinceStart:     b.samplesReadSinceStart,
		SamplesOutputSinceStart:   b.samplesOutputSinceStart,
		SmoothedErrorUs:           b.smoothedErrorUs,
		RawErrorUs:                b.rawErrorUs,
		PlaybackStarted:           b.playbackStarted,
		WaitingForScheduledStart:  b.waitingForScheduledStart,
		CumulativeDroppedSamples:  b.cumulativeDropped,
		CumulativeInsertedSamples: b.cumulativeInserted,
	}
}

// ReadRaw is the canonical, uncorrected consumption path: it fills out
// with up to len(out) interleaved samples, handling the scheduled-start
// protocol, underrun silence, and re-anchor signaling internally. It
// returns how many samples of `out` are real (the remainder is silence).
func (b *Buffer) ReadRaw(out []float32, nowLocalUs int64) int {
	for i := range out {
		out[i] = 0
	}

	if !b.BeginRead(nowLocalUs) {
		return 0
	}

	frames := len(out) / b.cfg.Channels
	produced := 0

	for i := 0; i < frames; i++ {
		if !b.ReadOneFrame(nowLocalUs, b.readRawScratch) {
			break
		}
		copy(out[i*b.cfg.Channels:(i+1)*b.cfg.Channels], b.readRawScratch)
		produced += b.cfg.Channels
	}

	return produced
}

// BeginRead runs the scheduled-start and re-anchor gating shared by
// ReadRaw and the correction controller's frame-level path. It returns
// true if the caller should proceed to pull frames this cycle, false if
// it already emitted (conceptual) silence and the caller must return 0.
func (b *Buffer) BeginRead(nowLocalUs int64) bool {
	b.mu.Lock()

	if !b.playbackStarted {
		proceed := b.advanceScheduledStartLocked(nowLocalUs)
		if !proceed {
			b.mu.Unlock()
			return false
		}
		b.mu.Unlock()
		return true
	}

	if b.reanchorPending {
		b.reanchorPending = false
		b.mu.Unlock()
		b.signalReanchor()
		return false
	}

	b.mu.Unlock()
	return true
}

// advanceScheduledStartLocked implements §4.C's scheduled-start protocol.
// Caller holds b.mu.
func (b *Buffer) advanceScheduledStartLocked(nowLocalUs int64) bool {
	if !b.haveScheduledStart {
		head := b.segs.peek()
		if head == nil {
			return false
		}
		b.scheduledStartLocalUs = head.localPlaybackTimeUs
		b.haveScheduledStart = true
		b.waitingForScheduledStart = true
	}

	if b.scheduledStartLocalUs-nowLocalUs > b.cfg.ScheduledStartGraceWindowUs {
		return false
	}

	b.playbackStartLocalUs = nowLocalUs - b.cfg.CalibratedStartupLatencyUs
	b.playbackStarted = true
	b.waitingForScheduledStart = false
	b.samplesReadSinceStart = 0
	b.samplesOutputSinceStart = 0
	return true
}

// ReadOneFrame consumes one frame (channels samples) from storage into
// frame, bumping samples_read_since_start on success and
// samples_output_since_start unconditionally (the frame occupies one
// device output slot whether real or silence), then recomputes the
// smoothed sync error and checks the re-anchor condition.
func (b *Buffer) ReadOneFrame(nowLocalUs int64, frame []float32) bool {
	b.mu.Lock()

	ok := b.popFrameLocked(frame)
	if ok {
		b.samplesReadSinceStart += uint64(b.cfg.Channels)
	} else {
		b.underrunCount++
		b.maybeLogUnderrunLocked(nowLocalUs)
	}
	b.samplesOutputSinceStart += uint64(b.cfg.Channels)

	if ok {
		b.recordSyncSampleLocked(nowLocalUs)
	}
	b.checkReanchorLocked(nowLocalUs)

	b.mu.Unlock()
	return ok
}

// ReadAhead consumes one frame from storage without touching the read/
// output counters or sync error. It is used by the correction
// controller to pull the second ("B") frame of a drop's interpolation
// pair — real consumption that is folded into an already-accounted
// emitted slot, reconciled afterward via NotifyExternalCorrection.
func (b *Buffer) ReadAhead(frame []float32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.popFrameLocked(frame)
}

// PeekFrame copies the next frame into `frame` without consuming it.
// Used by the correction controller's insert path.
func (b *Buffer) PeekFrame(frame []float32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fill < b.cfg.Channels {
		for i := range frame {
			frame[i] = 0
		}
		return false
	}

	pos := b.readPos
	for i := range frame {
		frame[i] = b.store[pos]
		pos++
		if pos == b.capacity {
			pos = 0
		}
	}
	return true
}

// popFrameLocked removes one frame from the circular store, adjusting
// segment heads. Caller holds b.mu.
func (b *Buffer) popFrameLocked(frame []float32) bool {
	ch := b.cfg.Channels
	if b.fill < ch {
		for i := range frame {
			frame[i] = 0
		}
		return false
	}

	for i := 0; i < ch; i++ {
		frame[i] = b.store[b.readPos]
		b.readPos++
		if b.readPos == b.capacity {
			b.readPos = 0
		}
	}
	b.fill -= ch
	b.consumeSegmentLocked(ch)
	return true
}

func (b *Buffer) consumeSegmentLocked(n int) {
	remaining := n
	for remaining > 0 {
		head := b.segs.peek()
		if head == nil {
			return
		}
		if int(head.sampleCount) <= remaining {
			remaining -= int(head.sampleCount)
			b.segs.pop()
		} else {
			head.sampleCount -= uint32(remaining)
			remaining = 0
		}
	}
}

// NotifyExternalCorrection reconciles accounting after the correction
// controller applies drop/insert externally. At most one of dropped,
// inserted is expected to be nonzero. Dropping adds to
// samples_read_since_start (consumed beyond what was emitted); inserting
// subtracts from samples_read_since_start and adds to
// samples_output_since_start (emitted beyond what was consumed).
func (b *Buffer) NotifyExternalCorrection(dropped, inserted uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if dropped > 0 {
		b.samplesReadSinceStart += uint64(dropped)
		b.cumulativeDropped += uint64(dropped)
	}
	if inserted > 0 {
		if uint64(inserted) > b.samplesReadSinceStart {
			b.samplesReadSinceStart = 0
		} else {
			b.samplesReadSinceStart -= uint64(inserted)
		}
		b.samplesOutputSinceStart += uint64(inserted)
		b.cumulativeInserted += uint64(inserted)
	}

	if dropped > 0 || inserted > 0 {
		b.recordSyncSampleLocked(b.clk.NowUs())
		b.checkReanchorLocked(b.clk.NowUs())
	}
}

// recordSyncSampleLocked implements §4.C's sync-error calculation. Caller
// holds b.mu and playbackStarted is true.
func (b *Buffer) recordSyncSampleLocked(nowLocalUs int64) {
	elapsedUs := float64(nowLocalUs - b.playbackStartLocalUs)
	samplesReadTimeUs := float64(b.samplesReadSinceStart) * 1e6 / float64(b.cfg.SampleRate*b.cfg.Channels)
	raw := elapsedUs - samplesReadTimeUs

	b.rawErrorUs = raw
	if b.smoothedErrorUs == 0 && raw != 0 {
		b.smoothedErrorUs = raw
	} else {
		b.smoothedErrorUs = smoothingAlpha*raw + (1-smoothingAlpha)*b.smoothedErrorUs
	}
}

// checkReanchorLocked sets the pending re-anchor flag once the startup
// grace has elapsed (measured in emitted-output time, not wall clock,
// per SPEC_FULL's Open Question #2 resolution) and the raw error exceeds
// the re-anchor threshold. Caller holds b.mu.
func (b *Buffer) checkReanchorLocked(nowLocalUs int64) bool {
	if !b.playbackStarted || b.reanchorPending {
		return false
	}

	elapsedOutputUs := float64(b.samplesOutputSinceStart) * 1e6 / float64(b.cfg.SampleRate*b.cfg.Channels)
	if elapsedOutputUs < float64(b.cfg.StartupGraceUs) {
		return false
	}

	abs := b.rawErrorUs
	if abs < 0 {
		abs = -abs
	}
	if abs > float64(b.cfg.ReanchorThresholdUs) {
		b.reanchorPending = true
		return true
	}
	return false
}

func (b *Buffer) signalReanchor() {
	select {
	case b.reanchor <- struct{}{}:
	default:
	}
}

func (b *Buffer) maybeLogUnderrunLocked(nowLocalUs int64) {
	if b.haveUnderrunLog && nowLocalUs-b.lastUnderrunLogUs < underrunLogIntervalUs {
		return
	}
	b.haveUnderrunLog = true
	b.lastUnderrunLogUs = nowLocalUs
	log.Printf("buffer: underrun (total=%d)", b.underrunCount)
}
