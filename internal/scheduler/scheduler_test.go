package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSyncer struct {
	syncs      atomic.Int32
	lastChange time.Time
}

func (f *fakeSyncer) Sync(ctx context.Context, silent bool) error {
	f.syncs.Add(1)
	return nil
}

func (f *fakeSyncer) LastChange() time.Time { return f.lastChange }

type fakeProber struct {
	changed atomic.Bool
	fail    atomic.Bool
	calls   atomic.Int32
	since   atomic.Value // time.Time
}

func (f *fakeProber) HasChangesSince(ctx context.Context, userID int64, since time.Time) (bool, error) {
	f.calls.Add(1)
	f.since.Store(since)
	if f.fail.Load() {
		return false, errors.New("probe endpoint unreachable")
	}
	return f.changed.Load(), nil
}

func fastConfig() Config {
	return Config{
		HeartbeatInterval: 20 * time.Millisecond,
		ProbeInterval:     5 * time.Millisecond,
		ProbeRetries:      2,
		ProbeBackoff:      time.Millisecond,
	}
}

func TestHeartbeatResyncsUnconditionally(t *testing.T) {
	syncer := &fakeSyncer{}
	prober := &fakeProber{} // never reports changes
	s := New(syncer, prober, zap.NewNop(), fastConfig())

	s.Start(1)
	defer s.Stop()

	require.Eventually(t, func() bool {
		return syncer.syncs.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond, "heartbeat must resync even when the probe sees nothing")
}

func TestProbeTriggersResyncOnChanges(t *testing.T) {
	syncer := &fakeSyncer{lastChange: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	prober := &fakeProber{}
	prober.changed.Store(true)
	cfg := fastConfig()
	cfg.HeartbeatInterval = time.Hour // isolate the probe path
	s := New(syncer, prober, zap.NewNop(), cfg)

	s.Start(1)
	defer s.Stop()

	require.Eventually(t, func() bool {
		return syncer.syncs.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, syncer.lastChange, prober.since.Load(), "probe baseline is the last content change")
}

func TestProbeWithoutChangesDoesNotResync(t *testing.T) {
	syncer := &fakeSyncer{}
	prober := &fakeProber{}
	cfg := fastConfig()
	cfg.HeartbeatInterval = time.Hour
	s := New(syncer, prober, zap.NewNop(), cfg)

	s.Start(1)
	defer s.Stop()

	require.Eventually(t, func() bool {
		return prober.calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), syncer.syncs.Load())
}

func TestProbeFailuresAreRetriedThenSwallowed(t *testing.T) {
	syncer := &fakeSyncer{}
	prober := &fakeProber{}
	prober.fail.Store(true)
	cfg := fastConfig()
	cfg.HeartbeatInterval = time.Hour
	s := New(syncer, prober, zap.NewNop(), cfg)

	s.Start(1)
	defer s.Stop()

	// Retries happen, nothing escalates, the scheduler re-arms.
	require.Eventually(t, func() bool {
		return prober.calls.Load() >= int32(cfg.ProbeRetries)*2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), syncer.syncs.Load())
	assert.NotEqual(t, StateIdle, s.State())
}

func TestStartStopLifecycle(t *testing.T) {
	syncer := &fakeSyncer{}
	prober := &fakeProber{}
	s := New(syncer, prober, zap.NewNop(), fastConfig())
	assert.Equal(t, StateIdle, s.State())

	s.Start(1)
	require.Eventually(t, func() bool {
		return s.State() != StateIdle
	}, time.Second, time.Millisecond)

	s.Stop()
	assert.Equal(t, StateIdle, s.State())

	synced := syncer.syncs.Load()
	probed := prober.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, synced, syncer.syncs.Load(), "no ticks after Stop")
	assert.Equal(t, probed, prober.calls.Load())

	// Restart is allowed after a full stop.
	s.Start(2)
	require.Eventually(t, func() bool {
		return prober.calls.Load() > probed
	}, time.Second, time.Millisecond)
	s.Stop()
}

func TestStartWhileArmedIsNoOp(t *testing.T) {
	syncer := &fakeSyncer{}
	prober := &fakeProber{}
	s := New(syncer, prober, zap.NewNop(), fastConfig())

	s.Start(1)
	s.Start(1)
	s.Stop()
	assert.Equal(t, StateIdle, s.State())
}
