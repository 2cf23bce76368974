// Package clock implements a global version clock: a monotonically
// increasing counter incremented on every mutation of a slot, array
// element, or record field. For each cached reactive value the reactive
// engine records the versions of the locations its evaluation read (not
// the tick at which it was computed); a read is a cache hit iff those
// versions are unchanged.
package clock

import "github.com/chazu/reactor/pkg/loc"

// Clock tracks the current tick and the tick each location was last
// written at. The VM is single-threaded, so no locking is required; the
// type exists to give the counter and the per-location version table one
// clear owner instead of scattering them across packages.
type Clock struct {
	now      uint64
	versions map[loc.Location]uint64
}

// New creates a clock starting at tick 0.
func New() *Clock {
	return &Clock{versions: make(map[loc.Location]uint64)}
}

// Bump advances the clock and records the new tick as l's version,
// returning the new tick. Called on every write to a slot, array element,
// or record field.
func (c *Clock) Bump(l loc.Location) uint64 {
	c.now++
	c.versions[l] = c.now
	return c.now
}

// Version returns the tick at which l was last written, or 0 if it has
// never been written (e.g. a zero-initialized array element).
func (c *Clock) Version(l loc.Location) uint64 {
	return c.versions[l]
}

// Now returns the current tick without advancing it.
func (c *Clock) Now() uint64 {
	return c.now
}
