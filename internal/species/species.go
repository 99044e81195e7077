// Package species holds the incubation-delay catalog and the readiness
// calculator for bacteria readings. Everything here is pure: callers pass
// the clock in, and an unknown species falls back to a one-unit delay
// instead of failing.
package species

import (
	"fmt"
	"time"

	"microlab/internal/config"
)

// DefaultDelayUnits is used when a species name has no catalog entry:
// one hour in normal mode, one minute in demo mode.
const DefaultDelayUnits = 1

// ReadyLabel is returned by Remaining once the target time has elapsed.
const ReadyLabel = "ready"

type Species struct {
	ID               string
	DisplayName      string
	NormalDelayHours int
	DemoDelayMinutes int
}

// Catalog resolves species by display name (the persisted key) and by
// catalog id. Display-name lookup stays primary for compatibility with
// rows written before ids existed.
type Catalog struct {
	byName  map[string]Species
	byID    map[string]Species
	ordered []Species
}

// NewCatalog builds a catalog from validated config entries.
func NewCatalog(entries []config.SpeciesEntry) Catalog {
	c := Catalog{
		byName: make(map[string]Species, len(entries)),
		byID:   make(map[string]Species, len(entries)),
	}
	for _, e := range entries {
		s := Species{
			ID:               e.ID,
			DisplayName:      e.DisplayName,
			NormalDelayHours: e.NormalDelayHours,
			DemoDelayMinutes: e.DemoDelayMinutes,
		}
		c.byName[s.DisplayName] = s
		c.byID[s.ID] = s
		c.ordered = append(c.ordered, s)
	}
	return c
}

// List returns all species in catalog order.
func (c Catalog) List() []Species {
	out := make([]Species, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// ByName resolves a species by display name.
func (c Catalog) ByName(name string) (Species, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// ByID resolves a species by catalog id.
func (c Catalog) ByID(id string) (Species, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// DelayOf returns the incubation delay for a species display name, in
// minutes when demo mode is on and hours otherwise. Unknown names get
// DefaultDelayUnits rather than an error.
func (c Catalog) DelayOf(name string, demo bool) int {
	s, ok := c.byName[name]
	if !ok {
		return DefaultDelayUnits
	}
	if demo {
		return s.DemoDelayMinutes
	}
	return s.NormalDelayHours
}

// DelayLabel renders the delay as the display string persisted on
// selection rows, e.g. "48h" or "4m".
func (c Catalog) DelayLabel(name string, demo bool) string {
	if demo {
		return fmt.Sprintf("%dm", c.DelayOf(name, demo))
	}
	return fmt.Sprintf("%dh", c.DelayOf(name, demo))
}

// TargetTime is the moment the reading becomes due.
func (c Catalog) TargetTime(name string, createdAt time.Time, demo bool) time.Time {
	delay := c.DelayOf(name, demo)
	if demo {
		return createdAt.Add(time.Duration(delay) * time.Minute)
	}
	return createdAt.Add(time.Duration(delay) * time.Hour)
}

// IsReady reports whether the reading is due at now. The boundary is
// inclusive: a reading is ready exactly at its target time.
func (c Catalog) IsReady(name string, createdAt, now time.Time, demo bool) bool {
	return !now.Before(c.TargetTime(name, createdAt, demo))
}

// ReadingDay is the weekday name of the target time, denormalized onto
// new selection rows for display.
func (c Catalog) ReadingDay(name string, createdAt time.Time, demo bool) string {
	return c.TargetTime(name, createdAt, demo).Weekday().String()
}

// Remaining formats the time left until the reading is due. Partial units
// round up so the label never reaches zero before IsReady flips; once
// ready it returns ReadyLabel. Normal-mode spans of a day or more render
// as days plus hours.
func (c Catalog) Remaining(name string, createdAt, now time.Time, demo bool) string {
	target := c.TargetTime(name, createdAt, demo)
	if !now.Before(target) {
		return ReadyLabel
	}
	left := target.Sub(now)
	if demo {
		mins := ceilDiv(left, time.Minute)
		return fmt.Sprintf("%dm remaining", mins)
	}
	hours := ceilDiv(left, time.Hour)
	if hours >= 24 {
		days := hours / 24
		rest := hours % 24
		if rest == 0 {
			return fmt.Sprintf("%dd remaining", days)
		}
		return fmt.Sprintf("%dd %dh remaining", days, rest)
	}
	return fmt.Sprintf("%dh remaining", hours)
}

func ceilDiv(d, unit time.Duration) int {
	n := int(d / unit)
	if d%unit != 0 {
		n++
	}
	return n
}
