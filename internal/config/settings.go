package config

import (
	"sync"

	"github.com/spf13/viper"
)

// ViperSettings exposes a viper instance as a settings.Provider. Reads are
// guarded so they can run while Reload swaps the instance after a config
// file change.
type ViperSettings struct {
	mu sync.RWMutex
	v  *viper.Viper
}

// NewViperSettings wraps v
func NewViperSettings(v *viper.Viper) *ViperSettings {
	return &ViperSettings{v: v}
}

// Reload replaces the backing instance
func (s *ViperSettings) Reload(v *viper.Viper) {
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

// Has implements settings.Lookup
func (s *ViperSettings) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v != nil && s.v.IsSet(key)
}

// GetInt implements settings.Provider
func (s *ViperSettings) GetInt(key string, def int) int {
	if !s.Has(key) {
		return def
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetInt(key)
}

// GetBool implements settings.Provider
func (s *ViperSettings) GetBool(key string, def bool) bool {
	if !s.Has(key) {
		return def
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetBool(key)
}

// GetString implements settings.Provider
func (s *ViperSettings) GetString(key string, def string) string {
	if !s.Has(key) {
		return def
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetString(key)
}
