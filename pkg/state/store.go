// Package state provides the hierarchical reactive store. Keys are
// dot-delimited paths into a nested mapping; components read values with
// Get and register per-path callbacks that fire synchronously on Set.
package state

import (
	"strings"
	"sync"
	"time"
)

// Change is the immutable record delivered to subscribers on every write.
type Change struct {
	Path     string
	OldValue any
	NewValue any
}

// Callback receives change records for a subscribed path.
type Callback func(Change)

// Subscription identifies one registered callback. Cancel is idempotent.
type Subscription struct {
	store *Store
	path  string
	id    uint64
}

// Cancel unsubscribes. Cancelling twice is a no-op, never an error.
func (s *Subscription) Cancel() {
	if s == nil || s.store == nil {
		return
	}
	s.store.Unsubscribe(s)
}

type subscriber struct {
	id uint64
	fn Callback
}

type pendingWrite struct {
	path   string
	value  any
	ttl    time.Duration
	hasTTL bool
}

// Store holds keyed hierarchical state with per-path subscriptions and
// optional per-leaf expiry. Mutation goes through Set only; the underlying
// mapping is never handed out, preserving the notify-on-write invariant.
//
// Subscribers on a path are invoked in registration order. By default a
// write also notifies subscribers on ancestor paths (exact-path
// subscribers first, then ancestors from root-most to nearest); see
// WithExactMatch. A Set issued from inside a callback is queued and
// processed after the current notification round completes.
type Store struct {
	mu     sync.Mutex
	state  map[string]any
	expiry map[string]time.Time
	subs   map[string][]subscriber
	nextID uint64

	exact bool
	now   func() time.Time

	notifying bool
	queue     []pendingWrite

	batchDepth   int
	batched      map[string]*pendingWrite
	batchedOrder []string

	sweepEvery time.Duration
	stopSweep  chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithExactMatch restricts notification to subscribers on the exact
// written path, disabling ancestor propagation.
func WithExactMatch() Option {
	return func(s *Store) { s.exact = true }
}

// WithSweepInterval enables a background goroutine that proactively evicts
// expired entries. Without it expiry is lazy: an expired path reads as
// unset and is dropped on first access.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepEvery = d }
}

// WithClock overrides the time source. Tests use it to step TTLs
// deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store.
func New(opts ...Option) *Store {
	s := &Store{
		state:  make(map[string]any),
		expiry: make(map[string]time.Time),
		subs:   make(map[string][]subscriber),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepEvery > 0 {
		s.stopSweep = make(chan struct{})
		go s.sweepLoop(s.stopSweep)
	}
	return s
}

// Close stops the background sweeper, if any.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopSweep != nil {
		close(s.stopSweep)
		s.stopSweep = nil
	}
}

// Get returns the value at path if set and not expired, else def. A
// non-leaf path reads back a detached copy of its subtree: mutation must
// go through Set only, never through a returned mapping.
func (s *Store) Get(path string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.expiry[path]; ok && !s.now().Before(exp) {
		s.deleteLocked(path)
		return def
	}
	value, ok := s.lookupLocked(path)
	if !ok {
		return def
	}
	return detach(value)
}

// detach copies nested mappings so callers cannot reach the internal
// state tree through a Get result.
func detach(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = detach(v)
	}
	return out
}

// Set writes value at path and synchronously notifies subscribers.
func (s *Store) Set(path string, value any) {
	s.write(pendingWrite{path: path, value: value})
}

// SetWithTTL writes value at path with an expiry. After ttl elapses the
// path reads as unset. A non-positive ttl expires immediately.
func (s *Store) SetWithTTL(path string, value any, ttl time.Duration) {
	s.write(pendingWrite{path: path, value: value, ttl: ttl, hasTTL: true})
}

// Subscribe registers a callback for writes to path.
func (s *Store) Subscribe(path string, fn Callback) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs[path] = append(s.subs[path], subscriber{id: id, fn: fn})
	return &Subscription{store: s, path: path, id: id}
}

// Unsubscribe removes a subscription. Idempotent.
func (s *Store) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[sub.path]
	for i, entry := range list {
		if entry.id == sub.id {
			s.subs[sub.path] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Batch coalesces all writes issued inside fn: each written path gets one
// notification round when the outermost batch completes, carrying the
// final value. Without Batch every Set notifies individually.
func (s *Store) Batch(fn func()) {
	s.mu.Lock()
	s.batchDepth++
	if s.batched == nil {
		s.batched = make(map[string]*pendingWrite)
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.batchDepth--
		var flush []pendingWrite
		if s.batchDepth == 0 {
			for _, path := range s.batchedOrder {
				flush = append(flush, *s.batched[path])
			}
			s.batched = nil
			s.batchedOrder = nil
		}
		s.mu.Unlock()

		for _, w := range flush {
			s.write(w)
		}
	}()

	fn()
}

// write applies one write, deferring it when a batch is open or a
// notification round is in flight on this store.
func (s *Store) write(w pendingWrite) {
	s.mu.Lock()
	if s.batchDepth > 0 {
		if prev, ok := s.batched[w.path]; ok {
			*prev = w
		} else {
			entry := w
			s.batched[w.path] = &entry
			s.batchedOrder = append(s.batchedOrder, w.path)
		}
		s.mu.Unlock()
		return
	}
	if s.notifying {
		s.queue = append(s.queue, w)
		s.mu.Unlock()
		return
	}

	s.notifying = true
	change, targets := s.commitLocked(w)
	s.mu.Unlock()

	for {
		for _, fn := range targets {
			fn(change)
		}

		s.mu.Lock()
		if len(s.queue) == 0 {
			s.notifying = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		change, targets = s.commitLocked(next)
		s.mu.Unlock()
	}
}

// commitLocked mutates the state tree and snapshots the callbacks to run.
// Caller holds the lock; callbacks run after it is released.
func (s *Store) commitLocked(w pendingWrite) (Change, []Callback) {
	old, _ := s.lookupLocked(w.path)
	s.storeLocked(w.path, w.value)
	if w.hasTTL {
		s.expiry[w.path] = s.now().Add(w.ttl)
	} else {
		delete(s.expiry, w.path)
	}

	change := Change{Path: w.path, OldValue: old, NewValue: w.value}

	var targets []Callback
	for _, entry := range s.subs[w.path] {
		targets = append(targets, entry.fn)
	}
	if !s.exact {
		parts := strings.Split(w.path, ".")
		for i := 1; i < len(parts); i++ {
			ancestor := strings.Join(parts[:i], ".")
			for _, entry := range s.subs[ancestor] {
				targets = append(targets, entry.fn)
			}
		}
	}
	return change, targets
}

// lookupLocked walks the nested mapping. Caller holds the lock.
func (s *Store) lookupLocked(path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := any(s.state)
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// storeLocked writes a leaf, creating intermediate maps. A non-map value
// sitting on an intermediate segment is overwritten.
func (s *Store) storeLocked(path string, value any) {
	parts := strings.Split(path, ".")
	target := s.state
	for _, part := range parts[:len(parts)-1] {
		next, ok := target[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			target[part] = next
		}
		target = next
	}
	target[parts[len(parts)-1]] = value
}

// deleteLocked drops a leaf and its expiry. Caller holds the lock.
func (s *Store) deleteLocked(path string) {
	delete(s.expiry, path)
	parts := strings.Split(path, ".")
	target := s.state
	for _, part := range parts[:len(parts)-1] {
		next, ok := target[part].(map[string]any)
		if !ok {
			return
		}
		target = next
	}
	delete(target, parts[len(parts)-1])
}

// Flatten returns the current path -> value mapping for leaves that are
// set and not expired. This is the persisted state layout.
func (s *Store) Flatten() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	flat := make(map[string]any)
	flattenInto(flat, "", s.state)
	for path := range flat {
		if exp, ok := s.expiry[path]; ok && !now.Before(exp) {
			delete(flat, path)
		}
	}
	return flat
}

func flattenInto(flat map[string]any, prefix string, m map[string]any) {
	for key, value := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if child, ok := value.(map[string]any); ok {
			flattenInto(flat, path, child)
			continue
		}
		flat[path] = value
	}
}

// seed loads a flat snapshot without notifying anyone. Used by the
// persistent variant on startup.
func (s *Store) seed(flat map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, value := range flat {
		s.storeLocked(path, value)
	}
}

// Sweep evicts every expired entry now. The background sweeper calls this
// on its interval; callers may invoke it directly.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for path, exp := range s.expiry {
		if !now.Before(exp) {
			s.deleteLocked(path)
		}
	}
}

func (s *Store) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-stop:
			return
		}
	}
}
