package storage

import (
	"sync"
	"time"
)

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
)

// Health is a point-in-time view of a store
type Health struct {
	LastCheck time.Time `json:"last_check"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// HealthTracker records the outcome of the latest store operation
type HealthTracker struct {
	mu     sync.RWMutex
	health Health
}

// NewHealthTracker starts in the unknown state
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{health: Health{Status: StatusUnknown}}
}

// Update records the outcome of an operation described by message
func (h *HealthTracker) Update(message string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.health = Health{
		LastCheck: time.Now(),
		Status:    StatusHealthy,
		Message:   message,
	}
	if err != nil {
		h.health.Status = StatusUnhealthy
		h.health.Error = err.Error()
	}
}

// Get returns a copy of the current health
func (h *HealthTracker) Get() *Health {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.health
	return &c
}
