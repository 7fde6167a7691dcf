package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fleetwave/dc600core/pkg/dc600/record"
)

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	r := NewRegistry(time.Minute)
	a := r.GetOrCreate("496076898991")
	b := r.GetOrCreate("496076898991")
	if a != b {
		t.Fatalf("expected the same *DeviceSession instance on repeated GetOrCreate")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 session, got %d", r.Count())
	}
}

func TestGetOrCreateDistinctDevices(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.GetOrCreate("111111111111")
	r.GetOrCreate("222222222222")
	if r.Count() != 2 {
		t.Errorf("expected 2 sessions, got %d", r.Count())
	}
}

func TestOutboundSequenceMonotonic(t *testing.T) {
	s := NewDeviceSession("1")
	seqs := make([]uint16, 5)
	for i := range seqs {
		seqs[i] = s.NextOutboundSequence()
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			t.Errorf("outbound sequence not strictly increasing: %v", seqs)
		}
	}
}

func TestMediaAssemblyLifecycle(t *testing.T) {
	s := NewDeviceSession("1")
	f := &record.MultimediaFile{DeviceID: "1", MultimediaID: 42, TotalPackages: 3}
	s.StartMediaAssembly(f)

	if got := s.MediaAssembly(42); got != f {
		t.Fatalf("expected to retrieve the same assembly")
	}
	if s.MediaAssemblyCount() != 1 {
		t.Errorf("expected 1 pending assembly, got %d", s.MediaAssemblyCount())
	}

	s.FinishMediaAssembly(42)
	if s.MediaAssembly(42) != nil {
		t.Errorf("expected assembly to be removed after finish")
	}
	if s.MediaAssemblyCount() != 0 {
		t.Errorf("expected 0 pending assemblies, got %d", s.MediaAssemblyCount())
	}
}

func TestCorrelationSweepRemovesOnlyExpired(t *testing.T) {
	s := NewDeviceSession("1")
	now := time.Now()

	s.PutCorrelation("live", &record.EventMediaCorrelation{ExpiresAt: now.Add(time.Hour)})
	s.PutCorrelation("dead", &record.EventMediaCorrelation{ExpiresAt: now.Add(-time.Hour)})

	removed := s.SweepCorrelations(now)
	if removed != 1 {
		t.Fatalf("expected 1 entry swept, got %d", removed)
	}
	if _, ok := s.Correlation("live"); !ok {
		t.Errorf("expected live entry to survive the sweep")
	}
	if _, ok := s.Correlation("dead"); ok {
		t.Errorf("expected dead entry to be removed")
	}
}

func TestDestroyRemovesSessionAndSweepsCorrelations(t *testing.T) {
	r := NewRegistry(time.Minute)
	s := r.GetOrCreate("496076898991")
	s.PutCorrelation("k", &record.EventMediaCorrelation{ExpiresAt: time.Now().Add(time.Hour)})

	r.Destroy("496076898991")

	if _, ok := r.Get("496076898991"); ok {
		t.Errorf("expected session to be gone after Destroy")
	}
}

func TestGetOrCreateConcurrentCallsCoalesce(t *testing.T) {
	r := NewRegistry(time.Minute)

	const workers = 32
	results := make([]*DeviceSession, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i] = r.GetOrCreate("496076898991")
		}()
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatalf("expected every concurrent GetOrCreate to return the same session instance")
		}
	}
	if r.Count() != 1 {
		t.Errorf("expected exactly 1 session despite %d concurrent callers, got %d", workers, r.Count())
	}
}

func TestSweepAllCorrelationsAcrossShards(t *testing.T) {
	r := NewRegistry(time.Minute)
	now := time.Now()

	for _, id := range []string{"111111111111", "222222222222", "333333333333"} {
		s := r.GetOrCreate(id)
		s.PutCorrelation("dead", &record.EventMediaCorrelation{ExpiresAt: now.Add(-time.Hour)})
		s.PutCorrelation("live", &record.EventMediaCorrelation{ExpiresAt: now.Add(time.Hour)})
	}

	removed, err := r.SweepAllCorrelations(context.Background())
	if err != nil {
		t.Fatalf("SweepAllCorrelations failed: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 expired entries removed across sessions, got %d", removed)
	}

	for _, id := range []string{"111111111111", "222222222222", "333333333333"} {
		s, _ := r.Get(id)
		if s.CorrelationCount() != 1 {
			t.Errorf("expected %s to retain its live correlation, got %d entries", id, s.CorrelationCount())
		}
	}
}

func TestIdleReaperEvictsPastTimeout(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	r.GetOrCreate("111111111111")

	stop := make(chan struct{})
	r.RunIdleReaper(5*time.Millisecond, stop)
	defer close(stop)

	time.Sleep(60 * time.Millisecond)

	if _, ok := r.Get("111111111111"); ok {
		t.Errorf("expected idle session to be reaped")
	}
}
