// Package scheduler runs the two background reconciliation tasks: a
// coarse unconditional heartbeat resync and a cheap "anything changed
// since T" probe that escalates to the same resync path. Both are safety
// nets: every failure is swallowed and self-heals on a later tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type State string

const (
	StateIdle      State = "idle"
	StateArmed     State = "armed"
	StateProbing   State = "probing"
	StateResyncing State = "resyncing"
)

// Syncer is the slice of the engine the scheduler drives.
type Syncer interface {
	Sync(ctx context.Context, silent bool) error
	LastChange() time.Time
}

// ChangeProber answers the lightweight delta probe.
type ChangeProber interface {
	HasChangesSince(ctx context.Context, userID int64, since time.Time) (bool, error)
}

type Config struct {
	// HeartbeatInterval is user-tunable; the default is five minutes.
	HeartbeatInterval time.Duration
	// ProbeInterval is fixed at two minutes unless overridden in tests.
	ProbeInterval time.Duration
	ProbeRetries  int
	ProbeBackoff  time.Duration
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Minute
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 2 * time.Minute
	}
	if c.ProbeRetries <= 0 {
		c.ProbeRetries = 3
	}
	if c.ProbeBackoff <= 0 {
		c.ProbeBackoff = 2 * time.Second
	}
}

// Scheduler owns its timers: armed on Start, cleared on Stop, nothing runs
// while no user is signed in.
type Scheduler struct {
	syncer Syncer
	prober ChangeProber
	logger *zap.Logger
	config Config

	mu     sync.Mutex
	state  State
	stop   chan struct{}
	done   chan struct{}
	userID int64
}

func New(syncer Syncer, prober ChangeProber, logger *zap.Logger, config Config) *Scheduler {
	config.applyDefaults()
	return &Scheduler{
		syncer: syncer,
		prober: prober,
		logger: logger,
		config: config,
		state:  StateIdle,
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start arms both timers for the given user. Starting an armed scheduler
// is a no-op.
func (s *Scheduler) Start(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return
	}
	s.state = StateArmed
	s.userID = userID
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done, userID)
}

// Stop clears the timers and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	stop := s.stop
	done := s.done
	s.mu.Unlock()

	close(stop)
	<-done

	s.mu.Lock()
	s.state = StateIdle
	s.userID = 0
	s.stop = nil
	s.done = nil
	s.mu.Unlock()
}

func (s *Scheduler) run(stop chan struct{}, done chan struct{}, userID int64) {
	defer close(done)

	heartbeat := time.NewTicker(s.config.HeartbeatInterval)
	defer heartbeat.Stop()
	probe := time.NewTicker(s.config.ProbeInterval)
	defer probe.Stop()

	for {
		select {
		case <-stop:
			return
		case <-heartbeat.C:
			s.resync(stop)
		case <-probe.C:
			s.probe(stop, userID)
		}
	}
}

// resync is the unconditional safety net: it re-fetches the first page of
// every collection regardless of what the probe saw.
func (s *Scheduler) resync(stop chan struct{}) {
	s.setState(StateResyncing)
	defer s.setState(StateArmed)

	ctx, cancel := s.tickContext(stop)
	defer cancel()

	if err := s.syncer.Sync(ctx, true); err != nil {
		// Sync in silent mode reports nothing; anything that does come
		// back is logged and dropped.
		s.logger.Warn("Heartbeat resync failed", zap.Error(err))
	}
}

func (s *Scheduler) probe(stop chan struct{}, userID int64) {
	s.setState(StateProbing)
	defer s.setState(StateArmed)

	ctx, cancel := s.tickContext(stop)
	defer cancel()

	since := s.syncer.LastChange()
	changed, err := s.prober.HasChangesSince(ctx, userID, since)
	for attempt := 1; err != nil && attempt < s.config.ProbeRetries; attempt++ {
		select {
		case <-stop:
			return
		case <-time.After(s.config.ProbeBackoff * time.Duration(attempt)):
		}
		changed, err = s.prober.HasChangesSince(ctx, userID, since)
	}
	if err != nil {
		// The heartbeat will catch whatever this probe missed.
		s.logger.Warn("Delta probe failed",
			zap.Error(err),
			zap.Int64("user_id", userID))
		return
	}
	if !changed {
		return
	}

	s.setState(StateResyncing)
	if err := s.syncer.Sync(ctx, true); err != nil {
		s.logger.Warn("Probe-triggered resync failed", zap.Error(err))
	}
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// tickContext cancels the tick's work as soon as Stop is called.
func (s *Scheduler) tickContext(stop chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
