// Package restart implements the tunnel-side Restart Manager: exponential
// backoff restarts on sustained unhealth, with concurrent restart attempts
// coalesced into one (spec §4.10).
package restart

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Daemon is the subset of daemon control the Restart Manager needs — either
// a systemd unit or a container runtime, per pkg/config.DaemonControlMode.
type Daemon interface {
	Restart(ctx context.Context) error
}

// backoffSchedule is the fixed {5s,15s,30s,60s,300s} ladder, capped at the
// last entry for any further consecutive failure (spec §4.10).
var backoffSchedule = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
	300 * time.Second,
}

// Manager tracks consecutive probe failures and restarts the daemon with
// backoff once the threshold is crossed.
type Manager struct {
	daemon             Daemon
	failureThreshold   int
	consecutiveFailures int
	backoffIdx         int

	mu         sync.Mutex
	restarting bool

	sleep func(d time.Duration)
}

// New creates a Manager. failureThreshold is the number of consecutive
// failed probes, 30s apart, before a restart is attempted (spec §4.10
// default 3).
func New(daemon Daemon, failureThreshold int) *Manager {
	return &Manager{
		daemon:           daemon,
		failureThreshold: failureThreshold,
		sleep:            time.Sleep,
	}
}

// RecordProbe reports the outcome of one health probe. A nil err resets the
// failure count and backoff index (spec §4.10 "A successful restart resets
// the backoff index" — extended here to any successful probe, since a
// healthy daemon needs no restart at all).
func (m *Manager) RecordProbe(ctx context.Context, probeErr error) {
	if probeErr == nil {
		m.mu.Lock()
		m.consecutiveFailures = 0
		m.backoffIdx = 0
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.consecutiveFailures++
	crossed := m.consecutiveFailures >= m.failureThreshold
	alreadyRestarting := m.restarting
	if crossed && !alreadyRestarting {
		m.restarting = true
	}
	m.mu.Unlock()

	if crossed && !alreadyRestarting {
		go m.restartWithBackoff(ctx)
	}
}

// restartWithBackoff retries Restart using the backoff ladder, with
// unlimited retries, until one succeeds. Concurrent RecordProbe calls while
// a restart is in flight are coalesced — the `restarting` flag prevents a
// second goroutine from starting.
func (m *Manager) restartWithBackoff(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		m.restarting = false
		m.mu.Unlock()
	}()

	for {
		m.mu.Lock()
		idx := m.backoffIdx
		m.mu.Unlock()

		wait := backoffSchedule[idx]
		slog.Warn("restart manager: restarting daemon", "backoff", wait)
		m.sleep(wait)

		err := m.daemon.Restart(ctx)

		m.mu.Lock()
		if err == nil {
			m.consecutiveFailures = 0
			m.backoffIdx = 0
			m.mu.Unlock()
			return
		}
		if m.backoffIdx < len(backoffSchedule)-1 {
			m.backoffIdx++
		}
		m.mu.Unlock()
		slog.Error("restart manager: restart attempt failed", "error", err)
	}
}

// IsRestarting reports whether a restart attempt is currently in flight.
func (m *Manager) IsRestarting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarting
}
