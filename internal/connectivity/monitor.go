// Package connectivity derives a debounced "effectively online" signal from
// the raw platform signal plus active verification probes. The raw signal
// alone is not trusted: it is known to report online while the backend is
// unreachable, so effective online additionally requires a fresh successful
// probe.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/brunovarela/notesync/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Prober actively verifies that the backend is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// Snapshot is the externally visible connectivity state.
type Snapshot struct {
	IsOnline        bool      `json:"is_online"`
	EffectiveOnline bool      `json:"effective_online"`
	LastChangeAt    time.Time `json:"last_change_at"`
	LastCheckedAt   time.Time `json:"last_checked_at"`
}

// Config controls debounce and probe cadence.
type Config struct {
	// Debounce is how long a raw transition must hold before it is believed.
	Debounce time.Duration
	// ProbeInterval is the periodic verification cadence.
	ProbeInterval time.Duration
	// ProbeStaleness bounds how old a successful probe may be and still
	// count toward effective online.
	ProbeStaleness time.Duration
	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration
	// Metrics is optional.
	Metrics *observability.Metrics
}

func DefaultConfig() Config {
	return Config{
		Debounce:       2 * time.Second,
		ProbeInterval:  30 * time.Second,
		ProbeStaleness: 90 * time.Second,
		ProbeTimeout:   5 * time.Second,
	}
}

// Monitor tracks raw and verified connectivity and publishes effective-online
// transitions. A transition is published only after the new raw state has
// held stable for the debounce window, so rapid flapping wakes the flush
// scheduler at most once.
type Monitor struct {
	cfg    Config
	prober Prober
	logger zerolog.Logger

	mu            sync.Mutex
	raw           bool
	stableRaw     bool
	probeOK       bool
	lastProbeAt   time.Time
	lastChangeAt  time.Time
	lastEffective bool
	pending       *time.Timer

	transitions chan bool
	probeNow    chan struct{}
}

func NewMonitor(cfg Config, prober Prober, logger zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:         cfg,
		prober:      prober,
		logger:      logger,
		transitions: make(chan bool, 4),
		probeNow:    make(chan struct{}, 1),
	}
}

// Transitions delivers effective-online state changes: true when the engine
// may flush, false when it should stop dispatching.
func (m *Monitor) Transitions() <-chan bool {
	return m.transitions
}

// SetRawOnline feeds the raw platform signal. The new state is committed only
// once it has held for the debounce window.
func (m *Monitor) SetRawOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.raw = online
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	if online == m.stableRaw {
		return
	}
	candidate := online
	m.pending = time.AfterFunc(m.cfg.Debounce, func() {
		m.commitRaw(candidate)
	})
}

func (m *Monitor) commitRaw(online bool) {
	m.mu.Lock()
	if m.raw != online {
		m.mu.Unlock()
		return // flipped again while the timer was pending
	}
	m.stableRaw = online
	m.pending = nil
	m.publishLocked()
	m.mu.Unlock()

	if online {
		// Never trust a raw online edge on its own; verify immediately.
		select {
		case m.probeNow <- struct{}{}:
		default:
		}
	}
}

// Run drives periodic verification probes until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.probe(ctx)
		case <-m.probeNow:
			m.probe(ctx)
		}
	}
}

// ProbeNow requests an immediate verification probe.
func (m *Monitor) ProbeNow() {
	select {
	case m.probeNow <- struct{}{}:
	default:
	}
}

// Verify runs one probe synchronously and updates the effective state.
func (m *Monitor) Verify(ctx context.Context) {
	m.probe(ctx)
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.prober.Probe(probeCtx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeOK = err == nil
	m.lastProbeAt = time.Now()
	if err != nil {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.ProbeFailures.Inc()
		}
		m.logger.Debug().Err(err).Msg("connectivity probe failed")
	}
	m.publishLocked()
}

// effectiveLocked computes the gate: debounced raw online AND a successful
// probe within the staleness window.
func (m *Monitor) effectiveLocked() bool {
	if !m.stableRaw || !m.probeOK {
		return false
	}
	return time.Since(m.lastProbeAt) <= m.cfg.ProbeStaleness
}

func (m *Monitor) publishLocked() {
	eff := m.effectiveLocked()
	if m.cfg.Metrics != nil {
		v := 0.0
		if eff {
			v = 1.0
		}
		m.cfg.Metrics.EffectiveOnline.Set(v)
	}
	if eff == m.lastEffective {
		return
	}
	m.lastEffective = eff
	m.lastChangeAt = time.Now()
	m.logger.Info().Bool("effective_online", eff).Msg("connectivity transition")
	select {
	case m.transitions <- eff:
	default: // subscriber is behind; it will see the state via Snapshot
	}
}

// Snapshot returns the current connectivity view.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		IsOnline:        m.raw,
		EffectiveOnline: m.effectiveLocked(),
		LastChangeAt:    m.lastChangeAt,
		LastCheckedAt:   m.lastProbeAt,
	}
}
