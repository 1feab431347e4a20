package handlers

import (
	"sync"

	"github.com/cryptovista/forecast-go/internal/ml"
	"github.com/cryptovista/forecast-go/internal/models"
)

// ModelStore holds the single in-memory model artifact of the service:
// the most recently trained network and the normalization stats of its
// training partition. Each successful training run replaces the pair
// atomically; nothing persists beyond process lifetime unless the
// caller exports the artifact.
type ModelStore struct {
	mu         sync.RWMutex
	net        *ml.Network
	stats      *models.NormalizationStats
	generation int64
}

func NewModelStore() *ModelStore {
	return &ModelStore{}
}

// Put installs a freshly trained network with its stats.
func (s *ModelStore) Put(net *ml.Network, stats *models.NormalizationStats) {
	s.mu.Lock()
	s.net = net
	s.stats = stats
	s.generation++
	s.mu.Unlock()
}

// Get returns the current network, stats and generation; the network is
// nil when no training run has completed yet.
func (s *ModelStore) Get() (*ml.Network, *models.NormalizationStats, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.net, s.stats, s.generation
}

// Ready reports whether a trained model is available.
func (s *ModelStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.net != nil
}
