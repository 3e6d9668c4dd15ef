package daemon

import (
	"github.com/matheus3301/momento/internal/bus"
	"github.com/matheus3301/momento/internal/entity"
	"github.com/matheus3301/momento/internal/local"
)

// bridgeStoreEvents republishes every committed store change on the bus as
// bus.KindStoreChanged. The returned func detaches the bridge.
func bridgeStoreEvents(stores *local.Stores, b *bus.Bus) func() {
	return stores.Subscribe(func(c entity.Change) {
		b.Emit(bus.KindStoreChanged, c)
	})
}
