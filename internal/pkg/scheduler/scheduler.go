package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/Resonant-Projects/parkpick/internal/pkg/referral"
	"github.com/Resonant-Projects/parkpick/internal/pkg/reward"
)

const (
	// DefaultSweepInterval is how often failed reward grants are retried.
	DefaultSweepInterval = 1 * time.Hour
	// DefaultExpiryInterval is how often stale pending referrals are expired.
	DefaultExpiryInterval = 24 * time.Hour
)

// Manager runs the periodic background tasks: the failed-reward recovery
// sweep and the referral expiry pass.
type Manager struct {
	referrals *referral.Service
	recovery  *reward.Recovery

	sweepInterval  time.Duration
	expiryInterval time.Duration

	sweepTicker  *time.Ticker
	expiryTicker *time.Ticker
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

// NewManager creates a background task manager with default intervals.
func NewManager(referrals *referral.Service, recovery *reward.Recovery) *Manager {
	return &Manager{
		referrals:      referrals,
		recovery:       recovery,
		sweepInterval:  DefaultSweepInterval,
		expiryInterval: DefaultExpiryInterval,
	}
}

// Start starts the background tasks. Safe to call more than once.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Scheduler] Starting background tasks")

	m.sweepTicker = time.NewTicker(m.sweepInterval)
	m.wg.Add(1)
	go m.sweepWorker()

	m.expiryTicker = time.NewTicker(m.expiryInterval)
	m.wg.Add(1)
	go m.expiryWorker()

	log.Info("[Scheduler] Started successfully")
}

// Stop stops the background tasks and waits for in-flight runs to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] Stopping background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.expiryTicker != nil {
		m.expiryTicker.Stop()
	}

	close(m.stopCh)
	m.wg.Wait()
	m.running = false

	log.Info("[Scheduler] Stopped")
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.sweepTicker.C:
			m.runSweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) expiryWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.expiryTicker.C:
			m.runExpiry()
		case <-m.stopCh:
			return
		}
	}
}

// runSweep executes one recovery sweep.
func (m *Manager) runSweep() {
	result, err := m.recovery.Sweep(context.Background())
	if err != nil {
		log.Errorf("[Scheduler] Reward recovery sweep failed: %v", err)
		return
	}
	if result.Attempted > 0 {
		log.Infof("[Scheduler] Reward recovery sweep: attempted=%d resolved=%d escalated=%d",
			result.Attempted, result.Resolved, result.Escalated)
	}
}

// runExpiry expires stale pending referrals batch by batch until the backlog
// is drained.
func (m *Manager) runExpiry() {
	total := 0
	for {
		count, more, err := m.referrals.ExpireBatch(context.Background())
		if err != nil {
			log.Errorf("[Scheduler] Referral expiry failed after %d: %v", total, err)
			return
		}
		total += count
		if !more {
			break
		}
	}
	if total > 0 {
		log.Infof("[Scheduler] Expired %d stale pending referrals", total)
	}
}
