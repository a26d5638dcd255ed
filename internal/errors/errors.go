// Package errors provides the typed failures of the resolution pipeline and
// a collect-all aggregator used wherever several concurrent operations must
// all settle before their outcomes are inspected.
package errors

import (
	"errors"
	"sync"
)

// Collector collects errors from concurrent operations. It never short
// circuits: every Add is kept, and callers decide what to do once all
// operations have settled.
type Collector struct {
	errors []error
	mutex  sync.RWMutex
}

// NewCollector creates a new error collector.
func NewCollector() *Collector {
	return &Collector{
		errors: make([]error, 0),
	}
}

// Add records err. Nil errors are ignored.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.errors = append(c.errors, err)
}

// Errors returns a copy of the collected errors in insertion order.
func (c *Collector) Errors() []error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]error, len(c.errors))
	copy(result, c.errors)
	return result
}

// HasErrors returns true if there are any errors.
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.errors) > 0
}

// Len returns the number of collected errors.
func (c *Collector) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.errors)
}

// ByType returns the collected errors of the given type.
func (c *Collector) ByType(t ErrorType) []error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var out []error
	for _, err := range c.errors {
		if IsType(err, t) {
			out = append(out, err)
		}
	}
	return out
}

// Join returns all collected errors joined, or nil.
func (c *Collector) Join() error {
	return errors.Join(c.Errors()...)
}

// Clear clears all errors.
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.errors = c.errors[:0]
}
