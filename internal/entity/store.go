package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("entity not found")
	ErrExists   = errors.New("entity already exists")
)

// Entity is implemented by every stored type. Clone must return a deep copy;
// stores never hand out or keep references to caller-owned values.
type Entity[T any] interface {
	EntityID() string
	Clone() T
}

// Persister saves and restores one namespaced snapshot per store.
type Persister interface {
	LoadSnapshot(ctx context.Context, namespace string) ([]byte, *time.Time, bool, error)
	SaveSnapshot(ctx context.Context, namespace string, payload []byte, cursor *time.Time) error
}

// Change describes one committed mutation.
type Change struct {
	Store   string
	Updated []string
	Removed []string
	Cleared bool
	Loaded  bool
}

// Observer is called synchronously after every committed mutation.
type Observer func(Change)

type snapshot[T any] struct {
	Items []T                  `json:"items"`
	Marks map[string]time.Time `json:"marks,omitempty"`
}

// Store is an in-memory keyed collection with merge-by-id semantics and a
// best-effort durable flush. The in-memory state is authoritative: a failed
// flush is logged and never undoes a mutation.
//
// T is expected to be a pointer type. Values passed to the store are cloned on
// the way in and on the way out.
type Store[T Entity[T]] struct {
	name      string
	persist   Persister
	logger    *zap.Logger
	normalize func(T)

	mu     sync.RWMutex
	items  map[string]T
	order  []string
	cursor *time.Time
	marks  map[string]time.Time
	gen    uint64

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	flushMu sync.Mutex
	saved   uint64
	flushCh chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an empty store. A nil persister keeps the store memory-only.
func New[T Entity[T]](name string, persist Persister, logger *zap.Logger) *Store[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store[T]{
		name:      name,
		persist:   persist,
		logger:    logger.With(zap.String("store", name)),
		items:     make(map[string]T),
		marks:     make(map[string]time.Time),
		observers: make(map[int]Observer),
		flushCh:   make(chan struct{}, 1),
	}
}

// SetNormalizer installs a hook run on every value written to the store.
// It must be set before the store is used.
func (s *Store[T]) SetNormalizer(fn func(T)) {
	s.normalize = fn
}

// Name returns the store's namespace.
func (s *Store[T]) Name() string { return s.name }

// Get returns a copy of the entity with id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	return v.Clone(), true
}

// Has reports whether id is present.
func (s *Store[T]) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Len returns the number of entities.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// All returns copies of every entity in insertion order.
func (s *Store[T]) All() []T {
	return s.Find(nil)
}

// Find returns copies of the entities matching pred, in insertion order.
// pred sees the stored values and must not modify them.
func (s *Store[T]) Find(pred func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		v := s.items[id]
		if pred == nil || pred(v) {
			out = append(out, v.Clone())
		}
	}
	return out
}

// Add inserts v unless its id is already present. Returns false on a duplicate.
func (s *Store[T]) Add(v T) bool {
	added := false
	_ = s.Tx(func(tx *Tx[T]) error {
		if tx.Has(v.EntityID()) {
			return nil
		}
		tx.Put(v)
		added = true
		return nil
	})
	return added
}

// Put inserts or replaces v.
func (s *Store[T]) Put(v T) {
	_ = s.Tx(func(tx *Tx[T]) error {
		tx.Put(v)
		return nil
	})
}

// Update applies fn to a copy of the entity with id. fn mutates its argument
// and reports whether anything changed; unchanged entities are not written.
func (s *Store[T]) Update(id string, fn func(T) bool) error {
	return s.Tx(func(tx *Tx[T]) error {
		return tx.Update(id, fn)
	})
}

// Remove deletes id. Returns false if it was not present.
func (s *Store[T]) Remove(id string) bool {
	removed := false
	_ = s.Tx(func(tx *Tx[T]) error {
		removed = tx.Remove(id)
		return nil
	})
	return removed
}

// Merge upserts a server record by id. Keys present in record overwrite the
// local fields; absent keys keep their local values.
func (s *Store[T]) Merge(record map[string]json.RawMessage) (T, error) {
	var out T
	err := s.Tx(func(tx *Tx[T]) error {
		v, err := tx.Merge(record)
		out = v
		return err
	})
	return out, err
}

// Clear drops every entity, the cursor and all marks.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	s.items = make(map[string]T)
	s.order = nil
	s.cursor = nil
	s.marks = make(map[string]time.Time)
	s.gen++
	s.mu.Unlock()

	s.notify(Change{Store: s.name, Cleared: true})
	s.markDirty()
}

// Cursor returns the last successful sync time, or nil if the store was never synced.
func (s *Store[T]) Cursor() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cursor == nil {
		return nil
	}
	c := *s.cursor
	return &c
}

// SetCursor records the last successful sync time. nil resets to bootstrap.
func (s *Store[T]) SetCursor(t *time.Time) {
	s.mu.Lock()
	if t == nil {
		s.cursor = nil
	} else {
		c := *t
		s.cursor = &c
	}
	s.gen++
	s.mu.Unlock()
	s.markDirty()
}

// Mark returns a named auxiliary cursor kept alongside the store.
func (s *Store[T]) Mark(key string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.marks[key]
	if !ok {
		return nil
	}
	return &t
}

// SetMark stores a named auxiliary cursor. nil deletes it.
func (s *Store[T]) SetMark(key string, t *time.Time) {
	s.mu.Lock()
	if t == nil {
		delete(s.marks, key)
	} else {
		s.marks[key] = *t
	}
	s.gen++
	s.mu.Unlock()
	s.markDirty()
}

// Subscribe registers fn for change notifications. Returns an unsubscribe function.
func (s *Store[T]) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *Store[T]) notify(c Change) {
	s.obsMu.Lock()
	obs := make([]Observer, 0, len(s.observers))
	for _, id := range slices.Sorted(maps.Keys(s.observers)) {
		obs = append(obs, s.observers[id])
	}
	s.obsMu.Unlock()
	for _, fn := range obs {
		fn(c)
	}
}

// Tx runs fn with exclusive access to the store. All writes made by fn are
// committed together and observers see a single Change. If fn returns an
// error, the store is restored to its state before the call.
func (s *Store[T]) Tx(fn func(tx *Tx[T]) error) error {
	s.mu.Lock()
	tx := &Tx[T]{s: s, touched: make(map[string]bool)}
	if err := fn(tx); err != nil {
		tx.rollback()
		s.mu.Unlock()
		return err
	}
	if !tx.dirty {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	change := tx.change()
	s.mu.Unlock()

	s.notify(change)
	s.markDirty()
	return nil
}

// Tx is a view of a store held under its write lock. It must not be used
// after the function passed to Store.Tx returns.
type Tx[T Entity[T]] struct {
	s       *Store[T]
	dirty   bool
	touched map[string]bool // id -> present after tx

	backupItems map[string]T
	backupOrder []string
}

func (tx *Tx[T]) Has(id string) bool {
	_, ok := tx.s.items[id]
	return ok
}

// Get returns a copy of the entity with id.
func (tx *Tx[T]) Get(id string) (T, bool) {
	v, ok := tx.s.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	return v.Clone(), true
}

// Find returns copies of the matching entities in insertion order.
func (tx *Tx[T]) Find(pred func(T) bool) []T {
	var out []T
	for _, id := range tx.s.order {
		if v := tx.s.items[id]; pred(v) {
			out = append(out, v.Clone())
		}
	}
	return out
}

// Put inserts or replaces v.
func (tx *Tx[T]) Put(v T) {
	tx.backup()
	v = v.Clone()
	if tx.s.normalize != nil {
		tx.s.normalize(v)
	}
	id := v.EntityID()
	if _, ok := tx.s.items[id]; !ok {
		tx.s.order = append(tx.s.order, id)
	}
	tx.s.items[id] = v
	tx.touched[id] = true
	tx.dirty = true
}

// Update applies fn to a copy of id and writes it back if fn reports a change.
func (tx *Tx[T]) Update(id string, fn func(T) bool) error {
	cur, ok := tx.s.items[id]
	if !ok {
		return fmt.Errorf("%s %s: %w", tx.s.name, id, ErrNotFound)
	}
	next := cur.Clone()
	if !fn(next) {
		return nil
	}
	tx.Put(next)
	return nil
}

// Remove deletes id. Returns false if it was not present.
func (tx *Tx[T]) Remove(id string) bool {
	if _, ok := tx.s.items[id]; !ok {
		return false
	}
	tx.backup()
	delete(tx.s.items, id)
	if i := slices.Index(tx.s.order, id); i >= 0 {
		tx.s.order = slices.Delete(tx.s.order, i, i+1)
	}
	tx.touched[id] = false
	tx.dirty = true
	return true
}

// Merge overlays record onto the entity with the same id, inserting it if unknown.
func (tx *Tx[T]) Merge(record map[string]json.RawMessage) (T, error) {
	var zero T
	var id string
	if raw, ok := record["id"]; ok {
		if err := json.Unmarshal(raw, &id); err != nil {
			return zero, fmt.Errorf("merge %s: id: %w", tx.s.name, err)
		}
	}
	if id == "" {
		return zero, fmt.Errorf("merge %s: record has no id", tx.s.name)
	}

	fields := make(map[string]json.RawMessage, len(record))
	if cur, ok := tx.s.items[id]; ok {
		b, err := json.Marshal(cur)
		if err != nil {
			return zero, fmt.Errorf("merge %s %s: %w", tx.s.name, id, err)
		}
		if err := json.Unmarshal(b, &fields); err != nil {
			return zero, fmt.Errorf("merge %s %s: %w", tx.s.name, id, err)
		}
	}
	maps.Copy(fields, record)

	b, err := json.Marshal(fields)
	if err != nil {
		return zero, fmt.Errorf("merge %s %s: %w", tx.s.name, id, err)
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return zero, fmt.Errorf("merge %s %s: %w", tx.s.name, id, err)
	}
	tx.Put(v)
	return tx.s.items[id].Clone(), nil
}

func (tx *Tx[T]) backup() {
	if tx.backupItems != nil {
		return
	}
	tx.backupItems = maps.Clone(tx.s.items)
	tx.backupOrder = slices.Clone(tx.s.order)
}

func (tx *Tx[T]) rollback() {
	if tx.backupItems == nil {
		return
	}
	tx.s.items = tx.backupItems
	tx.s.order = tx.backupOrder
}

func (tx *Tx[T]) change() Change {
	c := Change{Store: tx.s.name}
	for _, id := range slices.Sorted(maps.Keys(tx.touched)) {
		if tx.touched[id] {
			c.Updated = append(c.Updated, id)
		} else {
			c.Removed = append(c.Removed, id)
		}
	}
	return c
}
