package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const stopFlushTimeout = 5 * time.Second

// Load restores the store from its persisted snapshot. A missing snapshot
// leaves the store empty.
func (s *Store[T]) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	payload, cursor, found, err := s.persist.LoadSnapshot(ctx, s.name)
	if err != nil {
		return fmt.Errorf("load %s: %w", s.name, err)
	}
	if !found {
		return nil
	}

	var snap snapshot[T]
	if err := json.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("decode %s: %w", s.name, err)
	}

	items := make(map[string]T, len(snap.Items))
	order := make([]string, 0, len(snap.Items))
	for _, v := range snap.Items {
		if s.normalize != nil {
			s.normalize(v)
		}
		id := v.EntityID()
		if _, dup := items[id]; !dup {
			order = append(order, id)
		}
		items[id] = v
	}
	marks := snap.Marks
	if marks == nil {
		marks = make(map[string]time.Time)
	}

	s.flushMu.Lock()
	s.mu.Lock()
	s.items = items
	s.order = order
	s.cursor = cursor
	s.marks = marks
	s.gen++
	s.saved = s.gen
	s.mu.Unlock()
	s.flushMu.Unlock()

	s.notify(Change{Store: s.name, Updated: order, Loaded: true})
	s.logger.Debug("store loaded", zap.Int("items", len(order)))
	return nil
}

// Flush synchronously saves the current state if it changed since the last save.
func (s *Store[T]) Flush(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	gen := s.gen
	if gen == s.saved {
		s.mu.RUnlock()
		return nil
	}
	snap := snapshot[T]{Items: make([]T, 0, len(s.order)), Marks: s.marks}
	for _, id := range s.order {
		snap.Items = append(snap.Items, s.items[id])
	}
	payload, err := json.Marshal(snap)
	var cursor *time.Time
	if s.cursor != nil {
		c := *s.cursor
		cursor = &c
	}
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.name, err)
	}

	if err := s.persist.SaveSnapshot(ctx, s.name, payload, cursor); err != nil {
		return fmt.Errorf("save %s: %w", s.name, err)
	}
	s.saved = gen
	return nil
}

// Start runs the background flusher. Mutations are coalesced: several writes
// between two flushes produce a single save.
func (s *Store[T]) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the flusher and saves any remaining changes.
func (s *Store[T]) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil

	ctx, cancel := context.WithTimeout(context.Background(), stopFlushTimeout)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		s.logger.Error("final flush failed", zap.Error(err))
	}
}

func (s *Store[T]) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-s.flushCh:
			if err := s.Flush(ctx); err != nil {
				s.logger.Warn("flush failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Store[T]) markDirty() {
	if s.persist == nil {
		return
	}
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}
