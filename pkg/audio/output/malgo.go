// ABOUTME: Malgo-based audio output implementation with 24-bit support
// ABOUTME: Uses miniaudio via malgo; prefills a ring buffer before playback
package output

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/airwave/endpoint/internal/clock"
	"github.com/airwave/endpoint/pkg/audio"
	"github.com/gen2brain/malgo"
)

// malgoPrefillMs is how much audio malgo buffers before Play reports
// playback has started. Unlike oto's pull model, miniaudio's callback can
// underrun if the ring is empty on the first few calls, so Play prefills
// synchronously and Initialize reports that fixed cost up front (§6).
const malgoPrefillMs = 150

// Malgo is a push/prefill-model Output backend built on miniaudio via
// gen2brain/malgo. A background goroutine keeps a ring buffer topped up
// from the registered SampleSource; miniaudio's own callback drains it.
type Malgo struct {
	ctx    context.Context
	cancel context.CancelFunc
	clk    *clock.Clock

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	format   audio.Format
	deviceID string // empty selects the platform default

	src  SampleSource
	ring *floatRing

	fillCancel context.CancelFunc
	fillDone   chan struct{}

	volume int
	muted  bool
	ready  bool
}

// NewMalgo creates a new Malgo output. clk supplies the local time passed
// to SampleSource pulls.
func NewMalgo(clk *clock.Clock) Output {
	ctx, cancel := context.WithCancel(context.Background())
	return &Malgo{
		ctx:    ctx,
		cancel: cancel,
		clk:    clk,
		volume: 100,
	}
}

// Initialize builds (but does not start) the playback device for format.
// The reported latency is the ring's fixed prefill budget; actual
// prefilling happens in Play, once SetSampleSource has been called.
func (m *Malgo) Initialize(format audio.Format) (Latency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.buildDeviceLocked(format, m.deviceID); err != nil {
		return Latency{}, err
	}
	m.format = format

	return Latency{
		OutputLatencyMs:            malgoPrefillMs,
		CalibratedStartupLatencyMs: malgoPrefillMs,
	}, nil
}

// buildDeviceLocked tears down any existing device and builds a new one
// for format against deviceID (empty = default). Caller holds m.mu.
func (m *Malgo) buildDeviceLocked(format audio.Format, deviceID string) error {
	m.closeDeviceLocked()

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	bitDepth := format.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	var sampleFormat malgo.FormatType
	switch bitDepth {
	case 16:
		sampleFormat = malgo.FormatS16
	case 24:
		sampleFormat = malgo.FormatS24
	case 32:
		sampleFormat = malgo.FormatS32
	default:
		return fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", bitDepth)
	}

	ringFrames := (format.SampleRate * (malgoPrefillMs * 3)) / 1000
	m.ring = newFloatRing(ringFrames * format.Channels)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = sampleFormat
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if deviceID != "" {
		id, err := m.resolveDeviceIDLocked(deviceID)
		if err != nil {
			return err
		}
		deviceConfig.Playback.DeviceID = &id
	}

	bitsPerSample := bitDepth
	channels := format.Channels

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			m.dataCallback(pOutput, int(frameCount), channels, bitsPerSample)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	m.device = device
	m.deviceID = deviceID
	m.ready = true

	log.Printf("malgo output ready: %dHz, %d channels, %d-bit", format.SampleRate, format.Channels, bitDepth)
	return nil
}

// resolveDeviceIDLocked looks up a device previously reported by
// ListDevices by its opaque string id.
func (m *Malgo) resolveDeviceIDLocked(id string) (malgo.DeviceID, error) {
	infos, err := m.malgoCtx.Devices(malgo.Playback)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, info := range infos {
		if fmt.Sprintf("%v", info.ID) == id {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("unknown device id %q", id)
}

// ListDevices implements DeviceLister.
func (m *Malgo) ListDevices() ([]Device, error) {
	m.mu.Lock()
	ctx := m.malgoCtx
	owned := false
	if ctx == nil {
		var err error
		ctx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		owned = true
	}
	m.mu.Unlock()

	if owned {
		defer func() {
			ctx.Uninit()
			ctx.Free()
		}()
	}

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			ID:   fmt.Sprintf("%v", info.ID),
			Name: info.Name(),
		})
	}
	return devices, nil
}

// SetSampleSource registers the callback the fill loop pulls from.
func (m *Malgo) SetSampleSource(src SampleSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.src = src
}

// Play prefills the ring from the sample source, starts the background
// fill loop, and starts the device.
func (m *Malgo) Play() error {
	m.mu.Lock()
	if !m.ready || m.device == nil {
		m.mu.Unlock()
		return fmt.Errorf("malgo: not initialized")
	}
	ring := m.ring
	m.mu.Unlock()

	m.prefill(ring)

	m.mu.Lock()
	if m.fillCancel == nil {
		fillCtx, fillCancel := context.WithCancel(m.ctx)
		m.fillCancel = fillCancel
		m.fillDone = make(chan struct{})
		go m.fillLoop(fillCtx, m.fillDone)
	}
	device := m.device
	m.mu.Unlock()

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

// prefill calls the sample source until the ring is full or the source
// is not yet registered, so Play doesn't underrun on the first callback.
func (m *Malgo) prefill(ring *floatRing) {
	m.mu.Lock()
	src := m.src
	channels := m.format.Channels
	m.mu.Unlock()
	if src == nil || ring == nil {
		return
	}

	scratch := make([]float32, channels*256)
	for ring.Free() >= len(scratch) {
		src(scratch, m.nowUs())
		ring.Write(scratch)
	}
}

// fillLoop keeps the ring topped up as the device callback drains it.
func (m *Malgo) fillLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			src := m.src
			ring := m.ring
			channels := m.format.Channels
			m.mu.Unlock()
			if src == nil || ring == nil || channels == 0 {
				continue
			}

			scratch := make([]float32, channels*256)
			for ring.Free() >= len(scratch) {
				src(scratch, m.nowUs())
				ring.Write(scratch)
			}
		}
	}
}

func (m *Malgo) nowUs() int64 {
	if m.clk == nil {
		return 0
	}
	return m.clk.NowUs()
}

// dataCallback is invoked by miniaudio on its own audio thread to drain
// the ring buffer into the device's output format.
func (m *Malgo) dataCallback(pOutput []byte, frameCount, channels, bitDepth int) {
	m.mu.Lock()
	ring := m.ring
	volume, muted := m.volume, m.muted
	m.mu.Unlock()
	if ring == nil {
		return
	}

	total := frameCount * channels
	samples := make([]float32, total)
	ring.Read(samples)
	applyVolume(samples, volume, muted)

	switch bitDepth {
	case 16:
		writeInt16(pOutput, samples)
	case 24:
		writeInt24(pOutput, samples)
	case 32:
		writeInt32(pOutput, samples)
	}
}

func writeInt16(out []byte, samples []float32) {
	for i, s := range samples {
		v := audio.SampleToInt16(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
}

func writeInt24(out []byte, samples []float32) {
	for i, s := range samples {
		b := audio.SampleTo24Bit(s)
		out[i*3] = b[0]
		out[i*3+1] = b[1]
		out[i*3+2] = b[2]
	}
}

func writeInt32(out []byte, samples []float32) {
	for i, s := range samples {
		b := audio.SampleTo24Bit(s)
		v32 := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
		v32 <<= 8
		out[i*4] = byte(v32)
		out[i*4+1] = byte(v32 >> 8)
		out[i*4+2] = byte(v32 >> 16)
		out[i*4+3] = byte(v32 >> 24)
	}
}

// Pause stops the device without tearing down the ring or fill loop.
func (m *Malgo) Pause() error {
	m.mu.Lock()
	device := m.device
	m.mu.Unlock()
	if device == nil {
		return fmt.Errorf("malgo: not initialized")
	}
	return device.Stop()
}

// Stop is equivalent to Pause; the device is fully torn down on Close.
func (m *Malgo) Stop() error {
	return m.Pause()
}

// SwitchDevice rebuilds the device against a different id, preserving
// the registered sample source and current volume/mute state.
func (m *Malgo) SwitchDevice(id string) error {
	m.mu.Lock()
	format := m.format
	m.mu.Unlock()

	m.stopFillLoop()

	m.mu.Lock()
	err := m.buildDeviceLocked(format, id)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	return m.Play()
}

func (m *Malgo) stopFillLoop() {
	m.mu.Lock()
	cancel := m.fillCancel
	done := m.fillDone
	m.fillCancel = nil
	m.fillDone = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Close releases the device and context.
func (m *Malgo) Close() error {
	m.stopFillLoop()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDeviceLocked()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("malgo: context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}

	m.cancel()
	return nil
}

// closeDeviceLocked stops and uninitializes the device. Caller holds m.mu.
func (m *Malgo) closeDeviceLocked() {
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Printf("malgo: device stop error: %v", err)
		}
		m.device.Uninit()
		m.device = nil
	}
	m.ready = false
}

// SetVolume implements VolumeControl.
func (m *Malgo) SetVolume(percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	m.mu.Lock()
	m.volume = percent
	m.mu.Unlock()
	return nil
}

// SetMuted implements VolumeControl.
func (m *Malgo) SetMuted(muted bool) error {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
	return nil
}

// floatRing is a thread-safe circular buffer of interleaved float32
// samples, sized in samples (not frames).
type floatRing struct {
	mu    sync.Mutex
	buf   []float32
	r, w  int
	count int
	size  int
}

func newFloatRing(capacitySamples int) *floatRing {
	if capacitySamples < 1 {
		capacitySamples = 1
	}
	return &floatRing{buf: make([]float32, capacitySamples), size: capacitySamples}
}

func (rb *floatRing) Write(samples []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for i := 0; i < len(samples) && rb.count < rb.size; i++ {
		rb.buf[rb.w] = samples[i]
		rb.w = (rb.w + 1) % rb.size
		rb.count++
		written++
	}
	return written
}

func (rb *floatRing) Read(samples []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for i := 0; i < len(samples) && rb.count > 0; i++ {
		samples[i] = rb.buf[rb.r]
		rb.r = (rb.r + 1) % rb.size
		rb.count--
		read++
	}
	for i := read; i < len(samples); i++ {
		samples[i] = 0
	}
	return read
}

func (rb *floatRing) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.count
}
