package ml

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// BufferStats holds counters about scratch-buffer usage.
type BufferStats struct {
	TotalAcquired int64     `json:"total_acquired"`
	TotalReleased int64     `json:"total_released"`
	CurrentActive int64     `json:"current_active"`
	ReleaseErrors int64     `json:"release_errors"`
	LastReleaseAt time.Time `json:"last_release_at"`
}

type trackedBuffer struct {
	id         string
	acquiredAt time.Time
	release    func() error
}

// BufferManager tracks the numeric scratch buffers allocated for
// training, evaluation and prediction so they are released
// deterministically on both success and failure paths. Repeated runs
// that skip release would otherwise accumulate workspaces for the
// lifetime of the process.
type BufferManager struct {
	logger *logrus.Logger

	mu      sync.Mutex
	buffers map[string]*trackedBuffer

	totalAcquired int64
	totalReleased int64
	releaseErrors int64
	lastRelease   atomic.Int64
}

func NewBufferManager(logger *logrus.Logger) *BufferManager {
	return &BufferManager{
		logger:  logger,
		buffers: make(map[string]*trackedBuffer),
	}
}

// Acquire registers a buffer with its release function. The id must be
// unique among live buffers.
func (m *BufferManager) Acquire(id string, release func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffers[id] = &trackedBuffer{
		id:         id,
		acquiredAt: time.Now(),
		release:    release,
	}
	atomic.AddInt64(&m.totalAcquired, 1)

	m.logger.WithFields(logrus.Fields{
		"buffer_id": id,
	}).Debug("Buffer acquired")
}

// Release runs the buffer's release function and drops the tracking
// entry. Releasing an unknown id is a no-op so deferred releases stay
// safe after an early failure already cleaned up.
func (m *BufferManager) Release(id string) {
	m.mu.Lock()
	tracked, ok := m.buffers[id]
	if ok {
		delete(m.buffers, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	atomic.AddInt64(&m.totalReleased, 1)
	m.lastRelease.Store(time.Now().UnixNano())

	if tracked.release == nil {
		return
	}
	if err := tracked.release(); err != nil {
		atomic.AddInt64(&m.releaseErrors, 1)
		m.logger.WithFields(logrus.Fields{
			"buffer_id": id,
			"error":     err.Error(),
		}).Warn("Buffer release failed")
	}
}

// ReleaseAll releases every live buffer, used on shutdown.
func (m *BufferManager) ReleaseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Release(id)
	}
}

// ActiveCount returns the number of live buffers.
func (m *BufferManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers)
}

// Stats returns a snapshot of usage counters.
func (m *BufferManager) Stats() BufferStats {
	m.mu.Lock()
	active := len(m.buffers)
	m.mu.Unlock()

	stats := BufferStats{
		TotalAcquired: atomic.LoadInt64(&m.totalAcquired),
		TotalReleased: atomic.LoadInt64(&m.totalReleased),
		CurrentActive: int64(active),
		ReleaseErrors: atomic.LoadInt64(&m.releaseErrors),
	}
	if ns := m.lastRelease.Load(); ns > 0 {
		stats.LastReleaseAt = time.Unix(0, ns)
	}
	return stats
}
