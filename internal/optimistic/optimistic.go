package optimistic

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/momento/internal/bus"
	"go.uber.org/zap"
)

var (
	ErrNoop       = errors.New("mutation changes nothing")
	ErrValidation = errors.New("invalid mutation")
)

// Alerter surfaces a failed user action.
type Alerter interface {
	Alert(title string, err error)
}

// Alert is the bus payload for a failed mutation.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// BusAlerter publishes alerts on the event bus.
type BusAlerter struct {
	Bus *bus.Bus
}

func (a BusAlerter) Alert(title string, err error) {
	a.Bus.Emit(bus.KindAlert, Alert{Title: title, Message: err.Error()})
}

// Mutation describes one optimistic change to a single slot of an entity,
// such as the like set or the title.
type Mutation[V any] struct {
	Title string
	Slot  string
	Get   func() (V, error)
	Set   func(V) error
	// Next computes the optimistic value. An error rejects the mutation
	// before anything is applied.
	Next  func(V) (V, error)
	Equal func(a, b V) bool
}

type key struct {
	id   string
	slot string
}

type entry struct {
	base       any
	superseded bool
}

// Manager tracks in-flight mutations per (entity, slot) so overlapping
// mutations roll back consistently. Rollback rules for a failed mutation:
//   - a newer mutation on the slot already succeeded: nothing is written
//   - a newer mutation is still pending: it inherits the failed one's base
//   - otherwise the failed mutation's base is restored
type Manager struct {
	mu      sync.Mutex
	chains  map[key][]*entry
	alerter Alerter
	logger  *zap.Logger
}

func NewManager(alerter Alerter, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		chains:  make(map[key][]*entry),
		alerter: alerter,
		logger:  logger,
	}
}

// Pending returns the number of in-flight mutations on a slot.
func (m *Manager) Pending(id, slot string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chains[key{id, slot}])
}

// Run applies mut locally, calls send, and rolls back if send fails.
// The store always holds either the optimistic or the rolled-back value.
func Run[V any](ctx context.Context, m *Manager, id string, mut Mutation[V], send func(context.Context) error) error {
	k := key{id: id, slot: mut.Slot}

	m.mu.Lock()
	cur, err := mut.Get()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	next, err := mut.Next(cur)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if mut.Equal != nil && mut.Equal(cur, next) {
		m.mu.Unlock()
		return ErrNoop
	}
	if err := mut.Set(next); err != nil {
		m.mu.Unlock()
		return err
	}
	e := &entry{base: cur}
	m.chains[k] = append(m.chains[k], e)
	m.mu.Unlock()

	sendErr := send(ctx)

	m.mu.Lock()
	chain := m.chains[k]
	i := slices.Index(chain, e)
	if sendErr == nil {
		for _, older := range chain[:i] {
			older.superseded = true
		}
	} else if !e.superseded {
		if i < len(chain)-1 {
			chain[i+1].base = e.base
		} else if err := mut.Set(e.base.(V)); err != nil {
			m.logger.Warn("rollback failed", zap.String("id", id), zap.String("slot", mut.Slot), zap.Error(err))
		}
	}
	chain = slices.Delete(chain, i, i+1)
	if len(chain) == 0 {
		delete(m.chains, k)
	} else {
		m.chains[k] = chain
	}
	m.mu.Unlock()

	if sendErr != nil {
		m.logger.Info("mutation rolled back", zap.String("id", id), zap.String("slot", mut.Slot), zap.Error(sendErr))
		if m.alerter != nil {
			m.alerter.Alert(mut.Title, sendErr)
		}
		return sendErr
	}
	return nil
}
