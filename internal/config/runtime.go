package config

import (
	"sync"
	"sync/atomic"
)

// LLMSettings is an immutable snapshot of the model selection. A turn loads
// one snapshot and uses it throughout.
type LLMSettings struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Version     uint64  `json:"version"`
}

// SettingsCell holds the current LLMSettings. Reads are lock-free; writers
// are serialized and each successful write bumps Version.
type SettingsCell struct {
	mu  sync.Mutex
	cur atomic.Pointer[LLMSettings]
}

// NewSettingsCell returns a cell holding initial at version 1.
func NewSettingsCell(initial LLMSettings) *SettingsCell {
	c := &SettingsCell{}
	initial.Version = 1
	c.cur.Store(&initial)
	return c
}

// Load returns the current snapshot.
func (c *SettingsCell) Load() LLMSettings {
	return *c.cur.Load()
}

// Update applies fn to a copy of the current snapshot and publishes it.
// If fn fails the cell is left untouched.
func (c *SettingsCell) Update(fn func(s *LLMSettings) error) (LLMSettings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := *c.cur.Load()
	if err := fn(&next); err != nil {
		return c.Load(), err
	}
	next.Version++
	c.cur.Store(&next)
	return next, nil
}
