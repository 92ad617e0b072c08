// ABOUTME: Audio pipeline orchestrator tying decoder, buffer, controller, and output together
// ABOUTME: Drives the Idle/Starting/Buffering/Playing/Stopping/Error state machine
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/airwave/endpoint/internal/buffer"
	"github.com/airwave/endpoint/internal/clock"
	"github.com/airwave/endpoint/internal/correction"
	"github.com/airwave/endpoint/pkg/audio"
	"github.com/airwave/endpoint/pkg/audio/decode"
	"github.com/airwave/endpoint/pkg/audio/output"
	"github.com/airwave/endpoint/pkg/audio/resample"
)

// DecoderFactory constructs a codec-specific decoder for a stream format.
type DecoderFactory func(format audio.Format) (decode.Decoder, error)

// OutputFactory constructs an output backend for a stream format.
type OutputFactory func(format audio.Format) (output.Output, error)

// VolumeControl is implemented by output backends that apply gain/mute
// themselves rather than leaving it to the orchestrator.
type VolumeControl interface {
	SetVolume(percent int) error
	SetMuted(muted bool) error
}

var errNoActiveStream = errors.New("pipeline: no active stream")

// Pipeline is the audio pipeline orchestrator (component E, §4.E). It
// holds no lock across calls into its collaborators; its mutex protects
// only the small bookkeeping fields below.
type Pipeline struct {
	cfg  Config
	sync *clock.Synchronizer
	clk  *clock.Clock

	newDecoder DecoderFactory
	newOutput  OutputFactory

	mu     sync.Mutex
	state  State
	format audio.Format

	decoder decode.Decoder
	buf     *buffer.Buffer
	ctrl    *correction.Controller
	rs      *resample.Resampler
	out     output.Output

	decodeScratch []float32

	volume int
	muted  bool

	haveReadyLocalUs bool
	readyLocalUs     int64

	earlyChunks []audio.Chunk

	watcherCancel context.CancelFunc

	events chan Event
}

// New creates a Pipeline in the Idle state.
func New(cfg Config, syncer *clock.Synchronizer, clk *clock.Clock, newDecoder DecoderFactory, newOutput OutputFactory) *Pipeline {
	syncer.SetStaticDelayUs(cfg.StaticDelayMs * 1000)

	return &Pipeline{
		cfg:        cfg,
		sync:       syncer,
		clk:        clk,
		newDecoder: newDecoder,
		newOutput:  newOutput,
		volume:     100,
		events:     make(chan Event, eventQueueCapacity),
	}
}

// Events delivers StateChanged/ErrorOccurred notifications.
func (p *Pipeline) Events() <-chan Event {
	return p.events
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Snapshot is an observability bundle combining orchestrator, buffer,
// controller, and clock-sync state for a status display.
type Snapshot struct {
	State      State
	Buffer     buffer.Stats
	Controller correction.State
	Clock      clock.Status
}

// Snapshot returns a point-in-time view across all collaborators.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	state := p.state
	buf := p.buf
	ctrl := p.ctrl
	p.mu.Unlock()

	snap := Snapshot{State: state, Clock: p.sync.Status()}
	if buf != nil {
		snap.Buffer = buf.Stats()
	}
	if ctrl != nil {
		snap.Controller = ctrl.State()
	}
	return snap
}

// Start tears down any existing stream, then constructs a decoder,
// buffer, controller, and output for format and transitions
// Idle → Starting → Buffering.
func (p *Pipeline) Start(ctx context.Context, format audio.Format) error {
	if p.State() != StateIdle {
		if err := p.Stop(); err != nil {
			return fmt.Errorf("pipeline: stop prior stream: %w", err)
		}
	}

	p.setState(StateStarting)

	decoder, err := p.newDecoder(format)
	if err != nil {
		p.fail("decoder construction failed", err)
		return err
	}

	out, err := p.newOutput(format)
	if err != nil {
		decoder.Close()
		p.fail("output construction failed", err)
		return err
	}

	lat, err := out.Initialize(format)
	if err != nil {
		decoder.Close()
		out.Close()
		p.fail("output initialization failed", err)
		return err
	}

	bufCfg := buffer.Config{
		SampleRate:                  format.SampleRate,
		Channels:                    format.Channels,
		CapacityMs:                  p.cfg.BufferCapacityMs,
		TargetBufferMs:              p.cfg.TargetBufferMs,
		StartupGraceUs:              p.cfg.StartupGraceUs,
		ScheduledStartGraceWindowUs: p.cfg.ScheduledStartGraceWindowUs,
		ReanchorThresholdUs:         p.cfg.ReanchorThresholdUs,
		CalibratedStartupLatencyUs:  int64(lat.CalibratedStartupLatencyMs * 1000),
	}
	buf := buffer.New(bufCfg, p.sync, p.clk)

	ctrlCfg := correction.Config{
		SampleRate:            format.SampleRate,
		Channels:              format.Channels,
		DeadbandUs:            p.cfg.DeadbandUs,
		ResamplingThresholdUs: p.cfg.ResamplingThresholdUs,
		MaxSpeedCorrection:    p.cfg.MaxSpeedCorrection,
		TargetBufferSeconds:   p.cfg.CorrectionTargetSeconds,
		StartupGraceUs:        p.cfg.StartupGraceUs,
	}
	ctrl := correction.New(ctrlCfg)
	rs := resample.New(format.Channels)

	out.SetSampleSource(func(outBuf []float32, nowLocalUs int64) int {
		return p.readCallback(buf, ctrl, rs, outBuf, nowLocalUs)
	})

	watchCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.format = format
	p.decoder = decoder
	p.buf = buf
	p.ctrl = ctrl
	p.rs = rs
	p.out = out
	p.decodeScratch = make([]float32, format.SampleRate*format.Channels) // generous 1s scratch
	p.haveReadyLocalUs = false
	p.watcherCancel = cancel
	early := p.earlyChunks
	p.earlyChunks = nil
	vol, muted := p.volume, p.muted
	p.mu.Unlock()

	if vc, ok := out.(VolumeControl); ok {
		vc.SetVolume(vol)
		vc.SetMuted(muted)
	}

	go p.watchReanchor(watchCtx, buf)

	if err := out.Play(); err != nil {
		p.fail("output play failed", err)
		return err
	}

	p.setState(StateBuffering)

	for _, c := range early {
		p.ProcessChunk(c)
	}

	return nil
}

// ProcessChunk decodes one chunk and writes it into the buffer. Decoder
// failures are logged and skipped, never propagated. Chunks arriving
// before the buffer exists are queued (§4.E early-chunk queue).
func (p *Pipeline) ProcessChunk(c audio.Chunk) {
	p.mu.Lock()
	buf := p.buf
	decoder := p.decoder
	scratch := p.decodeScratch
	state := p.state
	p.mu.Unlock()

	if buf == nil || decoder == nil {
		p.queueEarlyChunk(c)
		return
	}

	n, err := decoder.Decode(c.EncodedBytes, scratch)
	if err != nil {
		log.Printf("pipeline: decode failed, dropping chunk: %v", err)
		return
	}

	buf.Write(scratch[:n], c.ServerTimestampUs)

	if state == StateBuffering {
		p.checkReadiness(buf)
	}
}

func (p *Pipeline) queueEarlyChunk(c audio.Chunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.earlyChunks) >= p.cfg.EarlyChunkQueueCapacity {
		return // overflow drops newest
	}
	p.earlyChunks = append(p.earlyChunks, c)
}

// checkReadiness implements the playback-start readiness gate (§4.E).
func (p *Pipeline) checkReadiness(buf *buffer.Buffer) {
	st := buf.Stats()
	threshold := int(readinessFillFraction * float64(p.cfg.TargetBufferMs) * float64(p.format.SampleRate*p.format.Channels) / 1000)
	if st.FillSamples < threshold {
		return
	}

	p.mu.Lock()
	if p.state != StateBuffering {
		p.mu.Unlock()
		return
	}
	if !p.haveReadyLocalUs {
		p.readyLocalUs = p.clk.NowUs()
		p.haveReadyLocalUs = true
	}
	readyLocalUs := p.readyLocalUs
	p.mu.Unlock()

	if p.sync.HasMinimalSync() {
		p.setState(StatePlaying)
		return
	}

	if p.sync.IsConverged() {
		p.setState(StatePlaying)
		return
	}

	elapsedMs := (p.clk.NowUs() - readyLocalUs) / 1000
	if elapsedMs > p.cfg.ConvergenceTimeoutMs {
		log.Printf("pipeline: convergence timeout after %dms, starting playback degraded", elapsedMs)
		p.setState(StatePlaying)
	}
}

// readCallback is the SampleSource registered with the output backend.
// It is the real-time hot path: no allocation, forwards straight into
// the correction controller, which applies its current tier against the
// buffer. The buffer's own scheduled-start gate controls exactly when
// real audio begins, independent of the orchestrator's own state.
func (p *Pipeline) readCallback(buf *buffer.Buffer, ctrl *correction.Controller, rs *resample.Resampler, out []float32, nowLocalUs int64) int {
	p.mu.Lock()
	state := p.state
	activeBuf := p.buf
	channels := p.format.Channels
	p.mu.Unlock()

	if activeBuf != buf || state == StateIdle || state == StateStopping || state == StateError {
		for i := range out {
			out[i] = 0
		}
		return 0
	}

	ctrl.Update(buf.Stats().SmoothedErrorUs)

	var n int
	if st := ctrl.State(); st.Mode == correction.ModeResampling {
		n = p.applyResampling(buf, rs, st.TargetPlaybackRate, channels, out, nowLocalUs)
	} else {
		rs.Reset()
		n = ctrl.Apply(buf, out, nowLocalUs)
	}

	if state == StateBuffering {
		p.checkReadiness(buf)
	}

	return n
}

// applyResampling drives the controller's tier 2 path: the resampler
// pulls frames from buf at the controller's smoothed target playback
// rate instead of 1:1, stretching or compressing the stream to correct
// drift without audible drop/insert artifacts.
func (p *Pipeline) applyResampling(buf *buffer.Buffer, rs *resample.Resampler, rate float64, channels int, out []float32, nowLocalUs int64) int {
	for i := range out {
		out[i] = 0
	}

	if !buf.BeginRead(nowLocalUs) {
		return 0
	}

	rs.SetRatio(rate)
	src := func(frame []float32) bool { return buf.ReadOneFrame(nowLocalUs, frame) }

	frames := len(out) / channels
	produced := 0
	for i := 0; i < frames; i++ {
		slot := out[i*channels : (i+1)*channels]
		if !rs.Next(src, slot) {
			break
		}
		produced += channels
	}

	return produced
}

// watchReanchor relays the buffer's coalesced re-anchor signal into a
// Clear() call, as required by §4.E's re-anchor handler.
func (p *Pipeline) watchReanchor(ctx context.Context, buf *buffer.Buffer) {
	events := buf.ReanchorEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			p.mu.Lock()
			current := p.buf
			p.mu.Unlock()
			if current != buf {
				continue // stale event from a torn-down stream
			}
			log.Printf("pipeline: re-anchor signaled, clearing stream")
			p.Clear()
		}
	}
}

// Clear invokes the buffer's clear, the controller's reset, and the
// decoder's reset. If Playing, the pipeline returns to Buffering to
// re-arm the readiness gate.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	buf := p.buf
	ctrl := p.ctrl
	rs := p.rs
	decoder := p.decoder
	state := p.state
	p.haveReadyLocalUs = false
	p.mu.Unlock()

	if buf == nil || ctrl == nil {
		return
	}

	buf.Clear()
	ctrl.Reset()
	if rs != nil {
		rs.Reset()
	}
	if decoder != nil {
		if err := decoder.Reset(); err != nil {
			log.Printf("pipeline: decoder reset failed: %v", err)
		}
	}

	if state == StatePlaying {
		p.setState(StateBuffering)
	}
}

// Stop halts output, tears down the decoder/buffer, and returns to Idle.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if p.state == StateIdle {
		p.mu.Unlock()
		return nil
	}

	decoder := p.decoder
	out := p.out
	cancel := p.watcherCancel
	p.decoder, p.buf, p.ctrl, p.rs, p.out, p.watcherCancel = nil, nil, nil, nil, nil, nil
	p.earlyChunks = nil
	p.mu.Unlock()

	p.setState(StateStopping)

	if cancel != nil {
		cancel()
	}
	if out != nil {
		out.Stop()
		out.Close()
	}
	if decoder != nil {
		decoder.Close()
	}

	p.setState(StateIdle)
	return nil
}

// SetVolume caches the volume and forwards it to the output backend.
func (p *Pipeline) SetVolume(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	p.mu.Lock()
	p.volume = percent
	out := p.out
	p.mu.Unlock()

	if vc, ok := out.(VolumeControl); ok {
		vc.SetVolume(percent)
	}
}

// SetMuted caches the mute flag and forwards it to the output backend.
func (p *Pipeline) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	out := p.out
	p.mu.Unlock()

	if vc, ok := out.(VolumeControl); ok {
		vc.SetMuted(muted)
	}
}

// SwitchDevice rebuilds the output against a new device id (empty
// selects the default), preserving buffered audio via the buffer's soft
// reset so the timing discontinuity does not trigger false correction.
func (p *Pipeline) SwitchDevice(id string) error {
	p.mu.Lock()
	out := p.out
	buf := p.buf
	ctrl := p.ctrl
	rs := p.rs
	state := p.state
	p.haveReadyLocalUs = false
	p.mu.Unlock()

	if out == nil || buf == nil {
		return errNoActiveStream
	}

	if err := out.SwitchDevice(id); err != nil {
		p.fail("device switch failed", err)
		return err
	}

	buf.SoftReset()
	if ctrl != nil {
		ctrl.Reset()
	}
	if rs != nil {
		rs.Reset()
	}

	if state == StatePlaying || state == StateBuffering {
		p.setState(StateBuffering)
	}
	return nil
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.emit(Event{Kind: EventStateChanged, State: s})
}

func (p *Pipeline) fail(message string, cause error) {
	p.mu.Lock()
	decoder := p.decoder
	out := p.out
	cancel := p.watcherCancel
	p.decoder, p.buf, p.ctrl, p.rs, p.out, p.watcherCancel = nil, nil, nil, nil, nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if out != nil {
		out.Stop()
		out.Close()
	}
	if decoder != nil {
		decoder.Close()
	}

	p.mu.Lock()
	p.state = StateError
	p.mu.Unlock()
	p.emit(Event{Kind: EventStateChanged, State: StateError})
	p.emit(Event{Kind: EventErrorOccurred, Message: message, Cause: cause})
}

func (p *Pipeline) emit(e Event) {
	select {
	case p.events <- e:
	default:
		log.Printf("pipeline: event queue full, dropping %+v", e)
	}
}
