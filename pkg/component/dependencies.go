package component

import (
	"github.com/veesix-networks/segmentd/pkg/allocator"
	"github.com/veesix-networks/segmentd/pkg/config"
	"github.com/veesix-networks/segmentd/pkg/events"
	"github.com/veesix-networks/segmentd/pkg/pool"
	"github.com/veesix-networks/segmentd/pkg/scope"
	"github.com/veesix-networks/segmentd/pkg/store"
)

type Dependencies struct {
	Config    *config.Config
	Store     store.Store
	EventBus  events.Bus
	Allocator *allocator.Allocator
	Scope     *scope.Index
	Pool      *pool.Querier
}
