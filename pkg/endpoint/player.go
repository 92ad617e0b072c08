// ABOUTME: High-level Player API wiring transport, decode, buffer/clock/correction, and output
// ABOUTME: Mirrors the teacher's pkg/resonate.Player shape, rebuilt on the timed-buffer pipeline
package endpoint

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/airwave/endpoint/internal/clock"
	"github.com/airwave/endpoint/internal/pipeline"
	"github.com/airwave/endpoint/internal/version"
	"github.com/airwave/endpoint/pkg/audio"
	"github.com/airwave/endpoint/pkg/audio/decode"
	"github.com/airwave/endpoint/pkg/audio/output"
	"github.com/airwave/endpoint/pkg/protocol"
	"github.com/google/uuid"
)

// Backend selects an output implementation.
type Backend string

const (
	BackendOto   Backend = "oto"
	BackendMalgo Backend = "malgo"
)

// Config holds endpoint player configuration.
type Config struct {
	ServerAddr string
	PlayerName string
	Volume     int // initial volume, 1-100; 0 selects the default of 100
	Backend    Backend

	Pipeline pipeline.Config // zero value uses pipeline.DefaultConfig()

	OnMetadata    func(Metadata)
	OnStateChange func(Status)
	OnError       func(error)
}

// Metadata carries now-playing information surfaced to callers.
type Metadata struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	ArtworkURL  string
	Track       int
	Year        int
	DurationSec int
}

// Status is a point-in-time snapshot of the player for UI/telemetry.
type Status struct {
	Connected   bool
	ServerName  string
	State       pipeline.State
	Codec       string
	SampleRate  int
	Channels    int
	BitDepth    int
	Volume      int
	Muted       bool
	Buffer      pipeline.Snapshot
}

// Player connects to a server, negotiates a stream, and plays it through
// a timed-buffer pipeline with clock sync and drift correction.
type Player struct {
	cfg    Config
	clk    *clock.Clock
	syncer *clock.Synchronizer
	client *protocol.Client
	pipe   *pipeline.Pipeline

	ctx    context.Context
	cancel context.CancelFunc

	// connCtx/connCancel scope the background loops to a single
	// connection so Reconnect can tear them down without killing the
	// player's own lifetime context.
	connCtx    context.Context
	connCancel context.CancelFunc

	connected  bool
	serverName string
	volume     int
	muted      bool
	format     audio.Format // active stream format, set by streamStartLoop
}

// New creates a Player in the disconnected state.
func New(cfg Config) *Player {
	if cfg.Volume == 0 {
		cfg.Volume = 100
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendOto
	}
	pcfg := cfg.Pipeline
	if pcfg == (pipeline.Config{}) {
		pcfg = pipeline.DefaultConfig()
	}

	clk := clock.New()
	syncer := clock.NewSynchronizer(clk)

	ctx, cancel := context.WithCancel(context.Background())

	p := &Player{
		cfg:    cfg,
		clk:    clk,
		syncer: syncer,
		ctx:    ctx,
		cancel: cancel,
		volume: cfg.Volume,
	}

	p.pipe = pipeline.New(pcfg, syncer, clk, p.newDecoder, p.newOutput)
	p.pipe.SetVolume(cfg.Volume)
	return p
}

func (p *Player) newDecoder(format audio.Format) (decode.Decoder, error) {
	switch format.Codec {
	case "pcm":
		return decode.NewPCM(format)
	case "opus":
		return decode.NewOpus(format)
	case "flac":
		return decode.NewFLAC(format)
	case "mp3":
		return decode.NewMP3(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}

func (p *Player) newOutput(format audio.Format) (output.Output, error) {
	switch p.cfg.Backend {
	case BackendMalgo:
		return output.NewMalgo(p.clk), nil
	default:
		return output.NewOto(p.clk), nil
	}
}

// Connect dials the server, performs the handshake and initial clock
// sync rounds, and starts the background message loops.
func (p *Player) Connect() error {
	clientID := uuid.New().String()

	clientCfg := protocol.Config{
		ServerAddr: p.cfg.ServerAddr,
		ClientID:   clientID,
		Name:       p.cfg.PlayerName,
		Version:    1,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		PlayerSupport: protocol.PlayerSupport{
			SupportFormats: []protocol.AudioFormat{
				{Codec: "pcm", Channels: 2, SampleRate: 192000, BitDepth: 24},
				{Codec: "pcm", Channels: 2, SampleRate: 96000, BitDepth: 24},
				{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 16},
				{Codec: "pcm", Channels: 2, SampleRate: 44100, BitDepth: 16},
				{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
				{Codec: "flac", Channels: 2, SampleRate: 48000, BitDepth: 16},
				{Codec: "mp3", Channels: 2, SampleRate: 44100, BitDepth: 16},
			},
			BufferCapacity:    1048576,
			SupportedCommands: []string{"volume", "mute"},
		},
		MetadataSupport: protocol.MetadataSupport{
			SupportPictureFormats: []string{"jpeg", "png", "webp"},
			MediaWidth:            600,
			MediaHeight:           600,
		},
		VisualizerSupport: protocol.VisualizerSupport{
			BufferCapacity: 1048576,
		},
	}

	p.client = protocol.NewClient(clientCfg)
	if err := p.client.Connect(); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}

	p.connCtx, p.connCancel = context.WithCancel(p.ctx)
	p.connected = true
	p.serverName = p.client.ServerName()
	p.notifyStateChange()

	if err := p.performInitialSync(); err != nil {
		log.Printf("endpoint: initial clock sync incomplete: %v", err)
	}

	go p.streamStartLoop()
	go p.audioChunkLoop()
	go p.controlLoop()
	go p.metadataLoop()
	go p.sessionUpdateLoop()
	go p.clockSyncLoop()
	go p.pipelineEventLoop()

	return nil
}

// Reconnect tears down the current connection's background loops and
// client, resets clock-sync state (a fresh connection means the prior
// offset/drift estimate no longer applies), and dials again. The
// pipeline and any buffered audio are left alone; a new stream_start
// will arrive once the server resumes sending to this client.
func (p *Player) Reconnect() error {
	if p.connCancel != nil {
		p.connCancel()
	}
	if p.client != nil {
		p.client.Close()
	}
	p.connected = false
	p.syncer.Reset()

	return p.Connect()
}

// performInitialSync runs several sync rounds back-to-back before
// relying on HasMinimalSync for the readiness gate.
func (p *Player) performInitialSync() error {
	for i := 0; i < 5; i++ {
		t1 := p.clk.NowUs()
		if err := p.client.SendTimeSync(t1); err != nil {
			return err
		}

		select {
		case resp := <-p.client.TimeSyncResp:
			t4 := p.clk.NowUs()
			p.syncer.ProcessMeasurement(resp.ClientTransmitted, resp.ServerReceived, resp.ServerTransmitted, t4)
		case <-time.After(500 * time.Millisecond):
			log.Printf("endpoint: initial sync round %d timed out", i+1)
		}

		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func (p *Player) clockSyncLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		drain:
			for {
				select {
				case <-p.client.TimeSyncResp:
				default:
					break drain
				}
			}
			p.client.SendTimeSync(p.clk.NowUs())

		case resp := <-p.client.TimeSyncResp:
			p.syncer.ProcessMeasurement(resp.ClientTransmitted, resp.ServerReceived, resp.ServerTransmitted, p.clk.NowUs())

		case <-p.connCtx.Done():
			return
		}
	}
}

// streamStartLoop drives the three stream control triggers of §6:
// stream_start, stream_clear, and stream_end.
func (p *Player) streamStartLoop() {
	for {
		select {
		case start := <-p.client.StreamStart:
			if start.Player == nil {
				continue
			}

			var header []byte
			if start.Player.CodecHeader != "" {
				decoded, err := base64.StdEncoding.DecodeString(start.Player.CodecHeader)
				if err != nil {
					p.notifyError(fmt.Errorf("invalid codec header: %w", err))
					continue
				}
				header = decoded
			}

			format := audio.Format{
				Codec:       start.Player.Codec,
				SampleRate:  start.Player.SampleRate,
				Channels:    start.Player.Channels,
				BitDepth:    start.Player.BitDepth,
				CodecHeader: header,
			}

			if err := p.pipe.Start(p.ctx, format); err != nil {
				p.notifyError(fmt.Errorf("pipeline start failed: %w", err))
				continue
			}
			p.format = format
			p.notifyStateChange()

		case <-p.client.StreamClear:
			p.pipe.Clear()
			p.notifyStateChange()

		case <-p.client.StreamEnd:
			if err := p.pipe.Stop(); err != nil {
				p.notifyError(fmt.Errorf("pipeline stop failed: %w", err))
			}
			p.format = audio.Format{}
			p.notifyStateChange()

		case <-p.connCtx.Done():
			return
		}
	}
}

func (p *Player) audioChunkLoop() {
	for {
		select {
		case chunk := <-p.client.AudioChunks:
			p.pipe.ProcessChunk(audio.Chunk{
				ServerTimestampUs: chunk.Timestamp,
				EncodedBytes:      chunk.Data,
			})

		case <-p.connCtx.Done():
			return
		}
	}
}

func (p *Player) controlLoop() {
	for {
		select {
		case cmd := <-p.client.ControlMsgs:
			switch cmd.Command {
			case "volume":
				p.SetVolume(cmd.Volume)
			case "mute":
				p.SetMuted(cmd.Mute)
			}

		case <-p.connCtx.Done():
			return
		}
	}
}

func (p *Player) metadataLoop() {
	for {
		select {
		case meta := <-p.client.Metadata:
			if p.cfg.OnMetadata != nil {
				p.cfg.OnMetadata(Metadata{Title: meta.Title, Artist: meta.Artist, Album: meta.Album})
			}

		case <-p.connCtx.Done():
			return
		}
	}
}

func (p *Player) sessionUpdateLoop() {
	for {
		select {
		case update := <-p.client.SessionUpdate:
			if update.Metadata != nil && p.cfg.OnMetadata != nil {
				m := update.Metadata
				p.cfg.OnMetadata(Metadata{
					Title:       m.Title,
					Artist:      m.Artist,
					Album:       m.Album,
					AlbumArtist: m.AlbumArtist,
					ArtworkURL:  m.ArtworkURL,
					Track:       m.Track,
					Year:        m.Year,
					DurationSec: m.TrackDuration,
				})
			}

		case <-p.connCtx.Done():
			return
		}
	}
}

// pipelineEventLoop forwards StateChanged/ErrorOccurred events from the
// pipeline to the configured callbacks.
func (p *Player) pipelineEventLoop() {
	for {
		select {
		case e := <-p.pipe.Events():
			switch e.Kind {
			case pipeline.EventStateChanged:
				p.notifyStateChange()
			case pipeline.EventErrorOccurred:
				p.notifyError(e.Cause)
			}

		case <-p.connCtx.Done():
			return
		}
	}
}

// SetVolume sets playback volume (0-100) and reports it to the server.
func (p *Player) SetVolume(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	p.volume = percent
	p.pipe.SetVolume(percent)
	p.sendState()
	p.notifyStateChange()
}

// SetMuted sets the mute state and reports it to the server.
func (p *Player) SetMuted(muted bool) {
	p.muted = muted
	p.pipe.SetMuted(muted)
	p.sendState()
	p.notifyStateChange()
}

// SwitchDevice rebuilds the active output against a new device id.
func (p *Player) SwitchDevice(id string) error {
	return p.pipe.SwitchDevice(id)
}

func (p *Player) sendState() {
	if p.client == nil || !p.connected {
		return
	}
	state := "idle"
	if p.pipe.State() == pipeline.StatePlaying || p.pipe.State() == pipeline.StateBuffering {
		state = "playing"
	}
	p.client.SendState(protocol.ClientState{State: state, Volume: p.volume, Muted: p.muted})
}

// Status returns a point-in-time snapshot for display or telemetry.
func (p *Player) Status() Status {
	return Status{
		Connected:  p.connected,
		ServerName: p.serverName,
		State:      p.pipe.State(),
		Codec:      p.format.Codec,
		SampleRate: p.format.SampleRate,
		Channels:   p.format.Channels,
		BitDepth:   p.format.BitDepth,
		Volume:     p.volume,
		Muted:      p.muted,
		Buffer:     p.pipe.Snapshot(),
	}
}

// Close tears down the player and all background goroutines, announcing
// a graceful disconnect to the server first.
func (p *Player) Close() error {
	p.cancel()
	if p.client != nil {
		if err := p.client.SendGoodbye("user_request"); err != nil {
			log.Printf("endpoint: goodbye send failed: %v", err)
		}
		p.client.Close()
	}
	if err := p.pipe.Stop(); err != nil {
		log.Printf("endpoint: pipeline stop during close: %v", err)
	}
	p.connected = false
	p.notifyStateChange()
	return nil
}

func (p *Player) notifyStateChange() {
	if p.cfg.OnStateChange != nil {
		p.cfg.OnStateChange(p.Status())
	}
}

func (p *Player) notifyError(err error) {
	if p.cfg.OnError != nil {
		p.cfg.OnError(err)
	} else {
		log.Printf("endpoint: %v", err)
	}
}
