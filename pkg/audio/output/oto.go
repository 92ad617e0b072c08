// ABOUTME: Oto-based audio output implementation (pull model)
// ABOUTME: Oto pulls PCM bytes via an io.Reader on its own playback goroutine
package output

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/airwave/endpoint/internal/clock"
	"github.com/airwave/endpoint/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// Oto is a pull-model Output backend: oto.Player reads from sampleReader
// exactly when its own output ring needs more bytes, so there is no
// internal prefill and CalibratedStartupLatencyMs is 0 (§6).
type Oto struct {
	ctx    context.Context
	cancel context.CancelFunc
	clk    *clock.Clock

	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	reader     *sampleReader
	sampleRate int
	channels   int
	volume     int
	muted      bool
}

// NewOto creates a new Oto output. clk supplies the local time passed to
// the registered SampleSource on every pull so it stays in the same
// clock domain as the buffer's scheduled-start and sync-error logic.
func NewOto(clk *clock.Clock) Output {
	ctx, cancel := context.WithCancel(context.Background())
	return &Oto{
		ctx:    ctx,
		cancel: cancel,
		clk:    clk,
		volume: 100,
	}
}

// Initialize prepares the oto context for format and reports latency.
func (o *Oto) Initialize(format audio.Format) (Latency, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if format.BitDepth != 0 && format.BitDepth != 16 {
		log.Printf("oto: only 16-bit output is supported, ignoring requested bitDepth=%d", format.BitDepth)
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return Latency{}, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.reader = &sampleReader{out: o, channels: format.Channels}
	o.otoCtx = otoCtx
	o.player = otoCtx.NewPlayer(o.reader)
	o.sampleRate = format.SampleRate
	o.channels = format.Channels

	log.Printf("oto output initialized: %dHz, %d channels", format.SampleRate, format.Channels)

	return Latency{OutputLatencyMs: 0, CalibratedStartupLatencyMs: 0}, nil
}

// SetSampleSource registers the callback the reader pulls from.
func (o *Oto) SetSampleSource(src SampleSource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.reader != nil {
		o.reader.src = src
	}
}

// Play starts (or resumes) playback.
func (o *Oto) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return fmt.Errorf("oto: not initialized")
	}
	o.player.Play()
	return nil
}

// Pause suspends playback without tearing down the player.
func (o *Oto) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return fmt.Errorf("oto: not initialized")
	}
	o.player.Pause()
	return nil
}

// Stop is equivalent to Pause for oto; the player has no separate
// stopped state short of closing it.
func (o *Oto) Stop() error {
	return o.Pause()
}

// SwitchDevice is unsupported: oto plays to the platform's default
// output and exposes no device enumeration. Use the malgo backend for
// device selection.
func (o *Oto) SwitchDevice(id string) error {
	if id == "" {
		return nil
	}
	return fmt.Errorf("oto: device selection not supported, use the malgo backend")
}

// Close releases the player and context.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
		o.otoCtx = nil
	}
	o.cancel()
	return nil
}

// SetVolume implements VolumeControl.
func (o *Oto) SetVolume(percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	o.mu.Lock()
	o.volume = percent
	o.mu.Unlock()
	return nil
}

// SetMuted implements VolumeControl.
func (o *Oto) SetMuted(muted bool) error {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
	return nil
}

// sampleReader adapts the SampleSource pull callback to the io.Reader
// oto.Player expects, converting interleaved float32 to 16-bit LE PCM.
type sampleReader struct {
	out      *Oto
	src      SampleSource
	channels int
	scratch  []float32
	leftover []byte
}

// Read fills p with PCM bytes pulled from src, applying the output's
// current volume/mute.
func (r *sampleReader) Read(p []byte) (int, error) {
	if len(r.leftover) > 0 {
		n := copy(p, r.leftover)
		r.leftover = r.leftover[n:]
		if n == len(p) {
			return n, nil
		}
		p = p[n:]
		return n + r.fill(p), nil
	}
	return r.fill(p), nil
}

func (r *sampleReader) fill(p []byte) int {
	if r.src == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p)
	}

	wantSamples := len(p) / 2
	if cap(r.scratch) < wantSamples {
		r.scratch = make([]float32, wantSamples)
	}
	samples := r.scratch[:wantSamples]

	now := r.out.nowUs()
	r.src(samples, now)

	r.out.mu.Lock()
	volume, muted := r.out.volume, r.out.muted
	r.out.mu.Unlock()
	applyVolume(samples, volume, muted)

	byteLen := wantSamples * 2
	for i, s := range samples {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(audio.SampleToInt16(s)))
	}
	return byteLen
}

func (o *Oto) nowUs() int64 {
	if o.clk == nil {
		return 0
	}
	return o.clk.NowUs()
}
