// ABOUTME: Runnable endpoint binary: connects to a server and plays synchronized audio
// ABOUTME: Wires pkg/endpoint.Player to the Bubble Tea status TUI
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/airwave/endpoint/internal/ui"
	"github.com/airwave/endpoint/pkg/discovery"
	"github.com/airwave/endpoint/pkg/endpoint"
)

func main() {
	serverAddr := flag.String("server", "", "server address (host:port); leave empty to discover via mDNS")
	name := flag.String("name", "Airwave Endpoint", "player name announced to the server")
	volume := flag.Int("volume", 100, "initial volume (1-100; 0 selects 100)")
	backend := flag.String("backend", "oto", "output backend: oto or malgo")
	headless := flag.Bool("headless", false, "disable the status TUI and log instead")
	discoverTimeout := flag.Duration("discover-timeout", 5*time.Second, "how long to browse for a server when -server is unset")
	flag.Parse()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	addr := *serverAddr
	if addr == "" {
		discovered, err := discoverServer(*discoverTimeout)
		if err != nil {
			log.Fatalf("mDNS discovery failed: %v (pass -server to dial directly)", err)
		}
		addr = discovered
		log.Printf("discovered server at %s", addr)
	}

	var volCtrl *ui.VolumeControl
	var program *tea.Program
	if !*headless {
		volCtrl = ui.NewVolumeControl()
		var err error
		program, err = ui.Run(volCtrl)
		if err != nil {
			log.Fatalf("failed to start TUI: %v", err)
		}
		go func() {
			if _, err := program.Run(); err != nil {
				log.Printf("TUI exited: %v", err)
			}
			sigCh <- syscall.SIGTERM
		}()
	}

	cfg := endpoint.Config{
		ServerAddr: addr,
		PlayerName: *name,
		Volume:     *volume,
		Backend:    endpoint.Backend(*backend),
		OnStateChange: func(status endpoint.Status) {
			if program != nil {
				program.Send(statusToMsg(status))
			} else {
				log.Printf("state: connected=%v state=%s volume=%d muted=%v",
					status.Connected, status.State, status.Volume, status.Muted)
			}
		},
		OnMetadata: func(meta endpoint.Metadata) {
			if program != nil {
				program.Send(ui.StatusMsg{Title: meta.Title, Artist: meta.Artist})
			} else {
				log.Printf("now playing: %s - %s (%s)", meta.Artist, meta.Title, meta.Album)
			}
		},
		OnError: func(err error) {
			log.Printf("error: %v", err)
		},
	}

	player := endpoint.New(cfg)
	if err := player.Connect(); err != nil {
		log.Fatalf("failed to connect to %s: %v", addr, err)
	}
	defer player.Close()

	if volCtrl != nil {
		go watchVolumeControl(player, volCtrl, sigCh)
	}

	<-sigCh
	log.Printf("shutting down")
}

// statusToMsg projects an endpoint.Status (itself a projection of
// internal/pipeline.Snapshot) onto the TUI's StatusMsg.
func statusToMsg(status endpoint.Status) ui.StatusMsg {
	connected := status.Connected
	snap := status.Buffer

	var bufferDepthMs float64
	if status.SampleRate > 0 && status.Channels > 0 {
		frames := float64(snap.Buffer.FillSamples) / float64(status.Channels)
		bufferDepthMs = frames / float64(status.SampleRate) * 1000.0
	}

	return ui.StatusMsg{
		Connected:  &connected,
		ServerName: status.ServerName,

		SyncOffsetUs:      snap.Clock.OffsetUs,
		SyncUncertaintyUs: snap.Clock.OffsetUncertaintyUs,
		DriftUsPerS:       snap.Clock.DriftUsPerS,
		SyncQuality:       syncQuality(snap.Clock.Converged, snap.Clock.DriftReliable),

		Codec:      status.Codec,
		SampleRate: status.SampleRate,
		Channels:   status.Channels,
		BitDepth:   status.BitDepth,

		Volume: status.Volume,
		Muted:  status.Muted,

		BufferDepthMs:   bufferDepthMs,
		SmoothedErrorUs: snap.Buffer.SmoothedErrorUs,
		CorrectionMode:  snap.Controller.Mode.String(),
		OverrunCount:    snap.Buffer.OverrunCount,
		UnderrunCount:   snap.Buffer.UnderrunCount,

		Received: int64(snap.Buffer.SamplesReadSinceStart),
		Played:   int64(snap.Buffer.SamplesOutputSinceStart),
		Dropped:  int64(snap.Buffer.CumulativeDroppedSamples),

		RawErrorUs:       snap.Buffer.RawErrorUs,
		MeasurementCount: snap.Clock.MeasurementCount,
		FramesEmitted:    snap.Controller.FramesEmittedSinceStartup,
		InStartupGrace:   snap.Controller.InStartupGrace,
	}
}

// discoverServer browses for a _resonate-server._tcp service and returns
// the first one found, dialable as "host:port".
func discoverServer(timeout time.Duration) (string, error) {
	mgr := discovery.NewManager(discovery.Config{ServiceName: "airwave-endpoint"})
	if err := mgr.Browse(); err != nil {
		return "", fmt.Errorf("browse failed: %w", err)
	}
	defer mgr.Stop()

	select {
	case server := <-mgr.Servers():
		return fmt.Sprintf("%s:%d", server.Host, server.Port), nil
	case <-time.After(timeout):
		return "", fmt.Errorf("no server found on the LAN within %s", timeout)
	}
}

func syncQuality(converged, driftReliable bool) ui.SyncQuality {
	switch {
	case converged && driftReliable:
		return ui.QualityGood
	case converged:
		return ui.QualityDegraded
	default:
		return ui.QualityLost
	}
}

// watchVolumeControl applies TUI-originated volume/mute changes to the
// player and forwards its quit signal to the main shutdown channel.
func watchVolumeControl(player *endpoint.Player, volCtrl *ui.VolumeControl, sigCh chan os.Signal) {
	for {
		select {
		case change := <-volCtrl.Changes:
			player.SetVolume(change.Volume)
			player.SetMuted(change.Muted)
		case <-volCtrl.Quit:
			sigCh <- syscall.SIGTERM
			return
		}
	}
}
