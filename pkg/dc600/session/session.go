// Package session implements the §3.1/§5 Session Registry: per-device
// state (authentication status, sequence counters, provisioning flag,
// pending sub-package and correlation buffers) and its sharded, concurrent
// registry. The registry shards on device id with xxhash64, the same
// hash-for-O(1)-lookup approach arloliu/mebo uses for its metric index,
// since §5 calls the map "reader-heavy, contended" under many concurrent
// device connections.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fleetwave/dc600core/pkg/dc600/record"
)

// AuthStatus is a DeviceSession's place in the registration/authentication
// lifecycle (§4.3).
type AuthStatus int

const (
	Unregistered AuthStatus = iota
	Registered
	Authenticated
)

func (s AuthStatus) String() string {
	switch s {
	case Registered:
		return "registered"
	case Authenticated:
		return "authenticated"
	default:
		return "unregistered"
	}
}

// DeviceSession is the per-device state a connection accumulates across
// its lifetime (§3.1).
type DeviceSession struct {
	mu sync.Mutex

	DeviceID string
	Model    string // from the 0x0100 registration body
	Variant  string

	Status AuthStatus

	LastInboundSeq  uint16
	haveLastInbound bool
	outboundSeq     uint16

	Provisioned bool

	pendingMedia       map[uint32]*record.MultimediaFile
	correlations       map[string]*record.EventMediaCorrelation
	lastActivity       time.Time
}

// NewDeviceSession returns a freshly created session for deviceID, as
// created on first frame from a connection (§3.1 lifetime).
func NewDeviceSession(deviceID string) *DeviceSession {
	return &DeviceSession{
		DeviceID:     deviceID,
		Status:       Unregistered,
		pendingMedia: make(map[uint32]*record.MultimediaFile),
		correlations: make(map[string]*record.EventMediaCorrelation),
		lastActivity: time.Now(),
	}
}

// Touch records inbound activity, resetting the idle-reaper clock.
func (s *DeviceSession) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IdleSince reports how long it has been since the last inbound activity.
func (s *DeviceSession) IdleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// AcceptSequence records seq as the last inbound sequence seen. Per §3.1
// invariant 6, every inbound sequence is echoed back; this does not
// reject out-of-order sequences, it only records the latest observed one
// for echoing and logging.
func (s *DeviceSession) AcceptSequence(seq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastInboundSeq = seq
	s.haveLastInbound = true
}

// NextOutboundSequence increments and returns the session-local outbound
// sequence counter (§3.1, §5: "strictly increasing", independent of the
// inbound sequence stream).
func (s *DeviceSession) NextOutboundSequence() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outboundSeq++
	return s.outboundSeq
}

// SetStatus transitions the session's authentication status.
func (s *DeviceSession) SetStatus(status AuthStatus) {
	s.mu.Lock()
	s.Status = status
	s.mu.Unlock()
}

// MediaAssembly returns the in-progress MultimediaFile for multimediaID,
// or nil if none exists.
func (s *DeviceSession) MediaAssembly(multimediaID uint32) *record.MultimediaFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingMedia[multimediaID]
}

// StartMediaAssembly registers a new in-progress MultimediaFile, replacing
// any existing incomplete assembly for the same id (§7 ReassemblyError:
// a new first packet discards the stale one).
func (s *DeviceSession) StartMediaAssembly(f *record.MultimediaFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingMedia[f.MultimediaID] = f
}

// FinishMediaAssembly removes the completed assembly for multimediaID.
func (s *DeviceSession) FinishMediaAssembly(multimediaID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingMedia, multimediaID)
}

// MediaAssemblyCount reports how many sub-package assemblies are
// currently in progress, for enforcing the §5 per-session cap of 8.
func (s *DeviceSession) MediaAssemblyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingMedia)
}

// PutCorrelation stores a correlation entry keyed by its own composite
// key (device id + alarm id, see media.BuildCorrelationKey).
func (s *DeviceSession) PutCorrelation(key string, c *record.EventMediaCorrelation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.correlations[key] = c
}

// Correlation looks up a correlation entry by key.
func (s *DeviceSession) Correlation(key string) (*record.EventMediaCorrelation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.correlations[key]
	return c, ok
}

// CorrelationByAlarmNumber looks up a correlation entry by the 32-byte
// alarm number string stamped on it at creation, for the JT/T 1078 0x1210
// attachment file list, which addresses a correlation by alarm number
// rather than by the device id + alarm id key the 0x0801 path uses.
func (s *DeviceSession) CorrelationByAlarmNumber(alarmNumber string) (*record.EventMediaCorrelation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.correlations {
		if c.AlarmNumber == alarmNumber {
			return c, true
		}
	}
	return nil, false
}

// SweepCorrelations deletes every correlation entry expired as of now and
// returns how many were removed. Called both periodically (§5: ~10%
// probabilistic sweep) and unconditionally on session destruction.
func (s *DeviceSession) SweepCorrelations(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, c := range s.correlations {
		if c.Expired(now) {
			delete(s.correlations, k)
			removed++
		}
	}
	return removed
}

// CorrelationCount reports the live correlation-table size, for metrics.
// No cap is enforced on the table: entries leave it only through the TTL
// sweeps and session destruction.
func (s *DeviceSession) CorrelationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.correlations)
}

// OnlyOpenCorrelation returns the session's sole live correlation entry,
// when exactly one is open. A completed multimedia file that cannot be
// matched by alarm id falls back to this (§4.6 step 4: the common case of
// a single alarm in flight per device).
func (s *DeviceSession) OnlyOpenCorrelation() (*record.EventMediaCorrelation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.correlations) != 1 {
		return nil, false
	}
	for _, c := range s.correlations {
		return c, true
	}
	return nil, false
}

const shardCount = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*DeviceSession
}

// Registry is the sharded map of all live DeviceSessions, keyed by device
// id. Sharding on xxhash64(deviceID) spreads lock contention across
// shardCount buckets instead of a single global mutex.
type Registry struct {
	shards [shardCount]*shard

	// creation coalesces concurrent first-frame arrivals for the same
	// device id (a reconnect storm racing several sockets before any of
	// them has registered) so only one goroutine allocates the session.
	creation singleflight.Group

	idleTimeout time.Duration
	stopReaper  chan struct{}
	reaperOnce  sync.Once
}

// NewRegistry returns an empty Registry whose idle reaper evicts sessions
// that have been idle longer than idleTimeout.
func NewRegistry(idleTimeout time.Duration) *Registry {
	r := &Registry{idleTimeout: idleTimeout, stopReaper: make(chan struct{})}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]*DeviceSession)}
	}
	return r
}

func (r *Registry) shardFor(deviceID string) *shard {
	h := xxhash.Sum64String(deviceID)
	return r.shards[h%shardCount]
}

// GetOrCreate returns the existing session for deviceID, creating one if
// none exists (§3.1 lifetime: "created on first frame from a connection").
func (r *Registry) GetOrCreate(deviceID string) *DeviceSession {
	sh := r.shardFor(deviceID)

	sh.mu.RLock()
	s, ok := sh.sessions[deviceID]
	sh.mu.RUnlock()
	if ok {
		return s
	}

	v, _, _ := r.creation.Do(deviceID, func() (any, error) {
		sh.mu.Lock()
		defer sh.mu.Unlock()
		if existing, ok := sh.sessions[deviceID]; ok {
			return existing, nil
		}
		created := NewDeviceSession(deviceID)
		sh.sessions[deviceID] = created
		return created, nil
	})
	return v.(*DeviceSession)
}

// Get looks up an existing session without creating one.
func (r *Registry) Get(deviceID string) (*DeviceSession, bool) {
	sh := r.shardFor(deviceID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[deviceID]
	return s, ok
}

// Destroy removes deviceID's session, sweeping its correlation table
// unconditionally first (§3.1 lifetime: destroyed on disconnect or idle
// timeout; in-progress sub-package buffers are released unflushed).
func (r *Registry) Destroy(deviceID string) {
	sh := r.shardFor(deviceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok := sh.sessions[deviceID]; ok {
		s.SweepCorrelations(time.Now().Add(24 * 365 * time.Hour))
		delete(sh.sessions, deviceID)
	}
}

// Count returns the total number of live sessions across all shards, for
// metrics.
func (r *Registry) Count() int {
	total := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}

// RunIdleReaper starts a goroutine that periodically evicts sessions idle
// longer than r.idleTimeout, the generalized form of the teacher's
// per-connection read-deadline pattern lifted to registry scope (§12
// supplement: a centrally owned reaper rather than one per connection).
// It stops when stop is closed or StopReaper is called.
func (r *Registry) RunIdleReaper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.reapIdle()
				r.SweepAllCorrelations(context.Background())
			case <-stop:
				return
			case <-r.stopReaper:
				return
			}
		}
	}()
}

// StopReaper signals a running RunIdleReaper goroutine to exit.
func (r *Registry) StopReaper() {
	r.reaperOnce.Do(func() { close(r.stopReaper) })
}

func (r *Registry) reapIdle() {
	now := time.Now()
	for _, sh := range r.shards {
		sh.mu.Lock()
		for id, s := range sh.sessions {
			if s.IdleSince(now) > r.idleTimeout {
				s.SweepCorrelations(now.Add(24 * 365 * time.Hour))
				delete(sh.sessions, id)
			}
		}
		sh.mu.Unlock()
	}
}

// SweepAllCorrelations runs SweepCorrelations across every live session,
// one shard at a time but shards in parallel, returning the total number
// of expired entries removed. This is the registry-wide complement to the
// per-message probabilistic sweep in media.ShouldSweep: the reaper calls
// it on a fixed interval so a device that stops reporting mid-correlation
// (never completing its 0x0801 upload) doesn't hold the entry forever.
func (r *Registry) SweepAllCorrelations(ctx context.Context) (int, error) {
	var mu sync.Mutex
	total := 0

	g, ctx := errgroup.WithContext(ctx)
	for _, sh := range r.shards {
		sh := sh
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			now := time.Now()
			sh.mu.RLock()
			sessions := make([]*DeviceSession, 0, len(sh.sessions))
			for _, s := range sh.sessions {
				sessions = append(sessions, s)
			}
			sh.mu.RUnlock()

			removed := 0
			for _, s := range sessions {
				removed += s.SweepCorrelations(now)
			}
			mu.Lock()
			total += removed
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}
