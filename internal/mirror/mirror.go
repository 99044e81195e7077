// Package mirror keeps a per-form, in-memory copy of the current bacteria
// selection so the UI layer can render instantly while the database write
// settles. Entries expire on their own; the database stays the source of
// truth.
package mirror

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultTTL   = 12 * time.Hour
	cleanupEvery = 30 * time.Minute
	keyPrefix    = "selection:"
)

type Mirror struct {
	cache *gocache.Cache
}

func New() *Mirror {
	return &Mirror{cache: gocache.New(defaultTTL, cleanupEvery)}
}

// Put stores the display-name list for a form, replacing any previous
// entry.
func (m *Mirror) Put(formID string, names []string) {
	cp := make([]string, len(names))
	copy(cp, names)
	m.cache.Set(keyPrefix+formID, cp, gocache.DefaultExpiration)
}

// Get returns the mirrored list and whether one exists.
func (m *Mirror) Get(formID string) ([]string, bool) {
	v, ok := m.cache.Get(keyPrefix + formID)
	if !ok {
		return nil, false
	}
	names, ok := v.([]string)
	if !ok {
		return nil, false
	}
	cp := make([]string, len(names))
	copy(cp, names)
	return cp, true
}

// Delete drops the mirrored entry for a form, typically on form deletion.
func (m *Mirror) Delete(formID string) {
	m.cache.Delete(keyPrefix + formID)
}
