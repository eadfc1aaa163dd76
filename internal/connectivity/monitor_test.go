package connectivity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/brunovarela/notesync/internal/domain/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Debounce:       30 * time.Millisecond,
		ProbeInterval:  time.Hour, // tests drive probes explicitly
		ProbeStaleness: time.Hour,
		ProbeTimeout:   time.Second,
	}
}

func healthyProbe() ProbeFunc {
	return func(context.Context) error { return nil }
}

func drainTransitions(ch <-chan bool) []bool {
	var out []bool
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestMonitor_OfflineByDefault(t *testing.T) {
	m := NewMonitor(testConfig(), healthyProbe(), zerolog.Nop())

	snap := m.Snapshot()
	assert.False(t, snap.IsOnline)
	assert.False(t, snap.EffectiveOnline)
}

func TestMonitor_RawSignalAloneIsNotEffective(t *testing.T) {
	m := NewMonitor(testConfig(), healthyProbe(), zerolog.Nop())

	m.SetRawOnline(true)
	time.Sleep(60 * time.Millisecond) // past debounce, but no probe yet

	snap := m.Snapshot()
	assert.True(t, snap.IsOnline)
	assert.False(t, snap.EffectiveOnline, "raw online must not count without a verified probe")
}

func TestMonitor_EffectiveAfterDebouncedRawAndProbe(t *testing.T) {
	m := NewMonitor(testConfig(), healthyProbe(), zerolog.Nop())

	m.SetRawOnline(true)
	time.Sleep(60 * time.Millisecond)
	m.Verify(context.Background())

	snap := m.Snapshot()
	assert.True(t, snap.EffectiveOnline)
	assert.False(t, snap.LastCheckedAt.IsZero())

	got := drainTransitions(m.Transitions())
	require.Len(t, got, 1)
	assert.True(t, got[0])
}

func TestMonitor_FlappingCommitsAtMostOnce(t *testing.T) {
	m := NewMonitor(testConfig(), healthyProbe(), zerolog.Nop())

	// Establish a stable online state first.
	m.SetRawOnline(true)
	time.Sleep(60 * time.Millisecond)
	m.Verify(context.Background())
	drainTransitions(m.Transitions())

	// Ten rapid flips inside the debounce window, landing on online.
	for i := 0; i < 10; i++ {
		m.SetRawOnline(i%2 == 0)
		time.Sleep(time.Millisecond)
	}
	m.SetRawOnline(true)
	time.Sleep(60 * time.Millisecond)

	got := drainTransitions(m.Transitions())
	assert.Empty(t, got, "flapping that settles on the same state must publish nothing")
	assert.True(t, m.Snapshot().EffectiveOnline)
}

func TestMonitor_FlapLandingOffline(t *testing.T) {
	m := NewMonitor(testConfig(), healthyProbe(), zerolog.Nop())

	m.SetRawOnline(true)
	time.Sleep(60 * time.Millisecond)
	m.Verify(context.Background())
	drainTransitions(m.Transitions())

	for i := 0; i < 9; i++ {
		m.SetRawOnline(i%2 == 0)
		time.Sleep(time.Millisecond)
	}
	m.SetRawOnline(false)
	time.Sleep(60 * time.Millisecond)

	got := drainTransitions(m.Transitions())
	require.Len(t, got, 1, "a settled flip publishes exactly one transition")
	assert.False(t, got[0])
}

func TestMonitor_FailedProbeForcesOffline(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	probe := ProbeFunc(func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return domainErrors.ErrBackendUnavailable
	})
	m := NewMonitor(testConfig(), probe, zerolog.Nop())

	m.SetRawOnline(true)
	time.Sleep(60 * time.Millisecond)
	m.Verify(context.Background())
	require.True(t, m.Snapshot().EffectiveOnline)

	healthy.Store(false)
	m.Verify(context.Background())

	snap := m.Snapshot()
	assert.True(t, snap.IsOnline, "raw signal still says online")
	assert.False(t, snap.EffectiveOnline, "failed probe overrides the raw signal")
}

func TestMonitor_StaleProbeIsNotTrusted(t *testing.T) {
	cfg := testConfig()
	cfg.ProbeStaleness = 20 * time.Millisecond
	m := NewMonitor(cfg, healthyProbe(), zerolog.Nop())

	m.SetRawOnline(true)
	time.Sleep(60 * time.Millisecond)
	m.Verify(context.Background())
	require.True(t, m.Snapshot().EffectiveOnline)

	time.Sleep(40 * time.Millisecond)
	assert.False(t, m.Snapshot().EffectiveOnline, "a probe older than the staleness window no longer counts")
}

func TestMonitor_RunProbesPeriodically(t *testing.T) {
	var probes atomic.Int32
	probe := ProbeFunc(func(context.Context) error {
		probes.Add(1)
		return nil
	})
	cfg := testConfig()
	cfg.ProbeInterval = 10 * time.Millisecond
	m := NewMonitor(cfg, probe, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := m.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, probes.Load(), int32(2))
}
