// Package settings defines the read-only key/value source the engine and
// queue consult for tunables.
package settings

// Provider is a typed, read-only settings source. Implementations return
// def when the key is unset or cannot be converted.
type Provider interface {
	GetInt(key string, def int) int
	GetBool(key string, def bool) bool
	GetString(key string, def string) string
}

// Lookup is implemented by providers that can tell whether a key is set
type Lookup interface {
	Has(key string) bool
}

// Chain consults providers in order and answers from the first one that
// has the key. Providers that do not implement Lookup are treated as
// having every key.
type Chain []Provider

// GetInt implements Provider
func (c Chain) GetInt(key string, def int) int {
	if p := c.find(key); p != nil {
		return p.GetInt(key, def)
	}
	return def
}

// GetBool implements Provider
func (c Chain) GetBool(key string, def bool) bool {
	if p := c.find(key); p != nil {
		return p.GetBool(key, def)
	}
	return def
}

// GetString implements Provider
func (c Chain) GetString(key string, def string) string {
	if p := c.find(key); p != nil {
		return p.GetString(key, def)
	}
	return def
}

func (c Chain) find(key string) Provider {
	for _, p := range c {
		if p == nil {
			continue
		}
		if l, ok := p.(Lookup); ok && !l.Has(key) {
			continue
		}
		return p
	}
	return nil
}

// Static is an in-memory provider, mostly useful in tests
type Static map[string]any

// Has implements Lookup
func (s Static) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// GetInt implements Provider
func (s Static) GetInt(key string, def int) int {
	if v, ok := s[key].(int); ok {
		return v
	}
	return def
}

// GetBool implements Provider
func (s Static) GetBool(key string, def bool) bool {
	if v, ok := s[key].(bool); ok {
		return v
	}
	return def
}

// GetString implements Provider
func (s Static) GetString(key string, def string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return def
}
