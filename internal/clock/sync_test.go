// ABOUTME: Tests for the clock synchronizer's two-state estimator
package clock

import (
	"math"
	"testing"
)

func TestProcessMeasurement_RejectsNonPositiveRTT(t *testing.T) {
	s := NewSynchronizer(New())

	// rtt = (t4-t1)-(t3-t2) = (100-0)-(100-0) = 0
	before := s.Status()
	s.ProcessMeasurement(0, 0, 100, 100)
	after := s.Status()

	if after != before {
		t.Fatalf("estimator changed on rtt<=0 measurement: before=%+v after=%+v", before, after)
	}
	if after.MeasurementCount != 0 {
		t.Fatalf("expected measurement count 0, got %d", after.MeasurementCount)
	}
}

func TestProcessMeasurement_AccumulatesSamples(t *testing.T) {
	s := NewSynchronizer(New())

	// Simulate a server clock exactly 50ms ahead, negligible network delay.
	const serverAheadUs = 50000
	for i := 0; i < 10; i++ {
		t1 := int64(i * 1_000_000)
		t2 := t1 + serverAheadUs + 1000
		t3 := t2 + 100
		t4 := t1 + 2200
		s.ProcessMeasurement(t1, t2, t3, t4)
	}

	st := s.Status()
	if st.MeasurementCount != 10 {
		t.Fatalf("expected 10 measurements, got %d", st.MeasurementCount)
	}
	if math.Abs(st.OffsetUs-serverAheadUs) > 2000 {
		t.Fatalf("offset estimate %v far from expected %v", st.OffsetUs, serverAheadUs)
	}
}

func TestIsConverged(t *testing.T) {
	s := NewSynchronizer(New())

	if s.IsConverged() {
		t.Fatal("should not be converged with zero measurements")
	}

	for i := 0; i < 4; i++ {
		t1 := int64(i * 1_000_000)
		s.ProcessMeasurement(t1, t1+1000, t1+1100, t1+2200)
	}
	if s.IsConverged() {
		t.Fatal("should not be converged with only 4 measurements")
	}

	t1 := int64(4_000_000)
	s.ProcessMeasurement(t1, t1+1000, t1+1100, t1+2200)
	if !s.IsConverged() {
		t.Fatalf("expected convergence after 5 tight measurements, status=%+v", s.Status())
	}
}

func TestHasMinimalSync(t *testing.T) {
	s := NewSynchronizer(New())
	if s.HasMinimalSync() {
		t.Fatal("should not have minimal sync with zero measurements")
	}
	s.ProcessMeasurement(0, 1000, 1100, 2200)
	if s.HasMinimalSync() {
		t.Fatal("should not have minimal sync with one measurement")
	}
	s.ProcessMeasurement(10_000_000, 10_001_000, 10_001_100, 10_002_200)
	if !s.HasMinimalSync() {
		t.Fatal("expected minimal sync after two measurements")
	}
}

func TestReset_Idempotent(t *testing.T) {
	s := NewSynchronizer(New())
	s.ProcessMeasurement(0, 1000, 1100, 2200)
	s.ProcessMeasurement(10_000_000, 10_001_000, 10_001_100, 10_002_200)

	s.Reset()
	first := s.Status()
	if first.MeasurementCount != 0 {
		t.Fatalf("expected 0 measurements after reset, got %d", first.MeasurementCount)
	}

	s.Reset()
	second := s.Status()
	if second != first {
		t.Fatalf("reset is not idempotent: %+v != %+v", first, second)
	}
}

func TestServerToLocal_AppliesStaticDelay(t *testing.T) {
	s := NewSynchronizer(New())
	s.ProcessMeasurement(0, 1000, 1100, 2200)
	s.ProcessMeasurement(10_000_000, 10_001_000, 10_001_100, 10_002_200)

	withoutDelay := s.ServerToLocal(20_000_000)
	s.SetStaticDelayUs(5000)
	withDelay := s.ServerToLocal(20_000_000)

	if withDelay-withoutDelay != 5000 {
		t.Fatalf("expected static delay to shift server_to_local by 5000us, got %d", withDelay-withoutDelay)
	}
}

func TestConversionRoundTrip(t *testing.T) {
	s := NewSynchronizer(New())
	for i := 0; i < 20; i++ {
		t1 := int64(i * 500_000)
		s.ProcessMeasurement(t1, t1+20000, t1+20500, t1+41000)
	}

	x := int64(123_456_789)
	server := s.LocalToServer(x)
	back := s.ServerToLocal(server)

	// Both conversions are evaluated at "now" a few instructions apart;
	// with near-zero drift in this synthetic scenario the round trip
	// should be tight.
	if diff := back - x; diff > 50 || diff < -50 {
		t.Fatalf("round trip drifted too far: x=%d back=%d diff=%d", x, back, diff)
	}
}
