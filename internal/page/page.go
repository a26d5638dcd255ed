// Package page models the document whose content regions are populated by
// remote sources and then resolved.
//
// A Region is a named slot of markup. Writers replace its markup with
// SetHTML or Update; observers Subscribe to be told when it changes. This is
// the Go stand-in for a DOM container observed through a mutation observer.
package page

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrRegionDetached is returned when writing to a region that has been
	// removed from its document.
	ErrRegionDetached = errors.New("region detached from document")
	// ErrMountNotFound is returned when no region contains the requested
	// mount element.
	ErrMountNotFound = errors.New("mount element not found")
)

// Mutation describes one change to a region's markup.
type Mutation struct {
	RegionID string    `json:"region"`
	Version  uint64    `json:"version"`
	Size     int       `json:"size"`
	At       time.Time `json:"at"`
}

// Subscription is a handle returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// listeners is a set of change callbacks keyed by subscription number.
type listeners struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(Mutation)
}

func (l *listeners) add(fn func(Mutation)) Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[uint64]func(Mutation))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	return &subscription{cancel: func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}}
}

func (l *listeners) snapshot() []func(Mutation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]func(Mutation), 0, len(l.fns))
	for _, fn := range l.fns {
		out = append(out, fn)
	}
	return out
}

func (l *listeners) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// Region is a named, observable slot of markup.
type Region struct {
	id  string
	doc *Document

	mu       sync.RWMutex
	html     string
	version  uint64
	detached bool

	subs listeners
}

// ID returns the region id.
func (r *Region) ID() string {
	return r.id
}

// HTML returns the current markup.
func (r *Region) HTML() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.html
}

// Version returns the number of writes applied so far.
func (r *Region) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// SetHTML replaces the region markup and notifies subscribers.
func (r *Region) SetHTML(markup string) error {
	return r.Update(func(string) (string, error) {
		return markup, nil
	})
}

// Update applies fn to the current markup while holding the region's write
// lock, so concurrent read-modify-write cycles cannot lose updates.
// Subscribers are notified after the lock is released, on the caller's
// goroutine. A callback may therefore write to the region again.
func (r *Region) Update(fn func(current string) (string, error)) error {
	r.mu.Lock()
	if r.detached {
		r.mu.Unlock()
		return ErrRegionDetached
	}
	next, err := fn(r.html)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.html = next
	r.version++
	m := Mutation{RegionID: r.id, Version: r.version, Size: len(next), At: time.Now()}
	r.mu.Unlock()

	r.notify(m)
	return nil
}

// Subscribe registers fn to be called after every change to the region.
func (r *Region) Subscribe(fn func(Mutation)) Subscription {
	return r.subs.add(fn)
}

// Subscribers returns the number of active subscriptions.
func (r *Region) Subscribers() int {
	return r.subs.len()
}

func (r *Region) notify(m Mutation) {
	for _, fn := range r.subs.snapshot() {
		fn(m)
	}
	if r.doc != nil {
		for _, fn := range r.doc.subs.snapshot() {
			fn(m)
		}
	}
}

func (r *Region) detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
}

// Document is an ordered collection of regions.
type Document struct {
	mu      sync.RWMutex
	regions map[string]*Region
	order   []string

	subs listeners
}

// NewDocument creates a document with one empty region per id.
func NewDocument(regionIDs ...string) *Document {
	d := &Document{regions: make(map[string]*Region)}
	for _, id := range regionIDs {
		d.AddRegion(id)
	}
	return d
}

// AddRegion adds an empty region, or returns the existing one.
func (d *Document) AddRegion(id string) *Region {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.regions[id]; ok {
		return r
	}
	r := &Region{id: id, doc: d}
	d.regions[id] = r
	d.order = append(d.order, id)
	return r
}

// RemoveRegion detaches a region. Later writes to it fail with
// ErrRegionDetached.
func (d *Document) RemoveRegion(id string) {
	d.mu.Lock()
	r, ok := d.regions[id]
	if ok {
		delete(d.regions, id)
		for i, rid := range d.order {
			if rid == id {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
	}
	d.mu.Unlock()

	if ok {
		r.detach()
	}
}

// Region looks up a region by id.
func (d *Document) Region(id string) (*Region, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.regions[id]
	return r, ok
}

// Regions returns the regions in insertion order.
func (d *Document) Regions() []*Region {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Region, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.regions[id])
	}
	return out
}

// Reset clears every region's markup.
func (d *Document) Reset() error {
	for _, r := range d.Regions() {
		if err := r.SetHTML(""); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers fn to be called after any region changes.
func (d *Document) Subscribe(fn func(Mutation)) Subscription {
	return d.subs.add(fn)
}
