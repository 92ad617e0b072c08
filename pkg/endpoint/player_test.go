// ABOUTME: Tests for Player construction, defaults, and state-only operations
// ABOUTME: Exercises the parts of the endpoint API that don't require a live server
package endpoint

import (
	"testing"

	"github.com/airwave/endpoint/internal/pipeline"
)

func TestNewDefaults(t *testing.T) {
	p := New(Config{ServerAddr: "localhost:9123", PlayerName: "Test Endpoint"})
	defer p.Close()

	if p.cfg.Volume != 100 {
		t.Errorf("expected default volume 100, got %d", p.cfg.Volume)
	}
	if p.cfg.Backend != BackendOto {
		t.Errorf("expected default backend %q, got %q", BackendOto, p.cfg.Backend)
	}

	st := p.Status()
	if st.Connected {
		t.Error("expected Connected=false before Connect")
	}
	if st.State != pipeline.StateIdle {
		t.Errorf("expected initial pipeline state Idle, got %v", st.State)
	}
	if st.Volume != 100 {
		t.Errorf("expected status volume 100, got %d", st.Volume)
	}
}

func TestNewExplicitVolume(t *testing.T) {
	p := New(Config{ServerAddr: "localhost:9123", PlayerName: "Test Endpoint", Volume: 42})
	defer p.Close()

	if p.cfg.Volume != 42 {
		t.Errorf("expected volume 42, got %d", p.cfg.Volume)
	}
}

func TestSetVolumeClampsRange(t *testing.T) {
	p := New(Config{ServerAddr: "localhost:9123", PlayerName: "Test Endpoint"})
	defer p.Close()

	p.SetVolume(-5)
	if p.volume != 0 {
		t.Errorf("expected volume clamped to 0, got %d", p.volume)
	}

	p.SetVolume(150)
	if p.volume != 100 {
		t.Errorf("expected volume clamped to 100, got %d", p.volume)
	}
}

func TestSetMuted(t *testing.T) {
	p := New(Config{ServerAddr: "localhost:9123", PlayerName: "Test Endpoint"})
	defer p.Close()

	p.SetMuted(true)
	if !p.muted {
		t.Error("expected muted=true")
	}
	if !p.Status().Muted {
		t.Error("expected Status().Muted=true")
	}
}

// CloseWithoutConnect verifies Close is safe to call on a Player that was
// never connected (client is nil, SendGoodbye/Close on it must be skipped).
func TestCloseWithoutConnect(t *testing.T) {
	p := New(Config{ServerAddr: "localhost:9123", PlayerName: "Test Endpoint"})
	if err := p.Close(); err != nil {
		t.Fatalf("Close on unconnected player: %v", err)
	}
}

func TestSwitchDeviceWithoutStreamErrors(t *testing.T) {
	p := New(Config{ServerAddr: "localhost:9123", PlayerName: "Test Endpoint"})
	defer p.Close()

	if err := p.SwitchDevice(""); err == nil {
		t.Error("expected SwitchDevice to fail with no active stream")
	}
}
