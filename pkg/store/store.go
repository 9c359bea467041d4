package store

import (
	"context"

	"github.com/veesix-networks/segmentd/pkg/models/segment"
)

// Removed selects whether soft-deleted segments take part in a query. Every
// segment listing takes one so each call site states its choice.
type Removed bool

const (
	ExcludeRemoved Removed = false
	IncludeRemoved Removed = true
)

// ReadTx is a consistent snapshot of segments, scope maps and address usage.
type ReadTx interface {
	GetSegment(ctx context.Context, id int64, removed Removed) (*segment.Segment, error)
	FindByZoneAndTag(ctx context.Context, zoneID int64, tag string, removed Removed) (*segment.Segment, error)
	ListByZone(ctx context.Context, zoneID int64, removed Removed) ([]*segment.Segment, error)
	ListByZoneAndType(ctx context.Context, zoneID int64, typ segment.Type, removed Removed) ([]*segment.Segment, error)
	ListByType(ctx context.Context, typ segment.Type, removed Removed) ([]*segment.Segment, error)
	ListByNetwork(ctx context.Context, networkID int64, removed Removed) ([]*segment.Segment, error)
	CountSegments(ctx context.Context) (int, error)

	// ListZoneWide returns segments of the zone and type that are not
	// dedicated to any account, minus excludeID.
	ListZoneWide(ctx context.Context, zoneID int64, typ segment.Type, excludeID int64, removed Removed) ([]*segment.Segment, error)

	ListPodMappings(ctx context.Context, podID int64) ([]*segment.PodMapping, error)
	ListAccountMappings(ctx context.Context, accountID int64) ([]*segment.AccountMapping, error)
	AccountForSegment(ctx context.Context, segmentID int64) (*segment.AccountMapping, error)

	// ListPodScoped returns segments of the zone and type mapped to the pod.
	ListPodScoped(ctx context.Context, zoneID, podID int64, typ segment.Type, removed Removed) ([]*segment.Segment, error)

	// HasPodMappedSegments reports whether any segment of the zone and type
	// has at least one pod mapping.
	HasPodMappedSegments(ctx context.Context, zoneID int64, typ segment.Type, removed Removed) (bool, error)

	CountAddresses(ctx context.Context, zoneID, segmentID int64, allocatedOnly bool) (int, error)
	FindAddress(ctx context.Context, zoneID int64, address string) (*segment.Address, error)
}

type Tx interface {
	ReadTx

	// CreateSegment fails with segment.ErrInvalidSegment when an address of
	// the new range is already held by another segment of the zone.
	CreateSegment(ctx context.Context, s *segment.Segment) (int64, error)
	RemoveSegment(ctx context.Context, id int64) error

	AddPodMapping(ctx context.Context, podID, segmentID int64) (int64, error)
	RemovePodMapping(ctx context.Context, id int64) error
	AddAccountMapping(ctx context.Context, accountID, segmentID int64) (int64, error)
	RemoveAccountMapping(ctx context.Context, segmentID int64) error

	// DrawAddress marks the lowest free address of the segment as allocated.
	DrawAddress(ctx context.Context, segmentID int64, accountID *int64) (*segment.Address, error)
	ReleaseAddress(ctx context.Context, zoneID int64, address string) (*segment.Address, error)
}

// Store runs callbacks in transactions. Update callbacks are serialised per
// store, so a read-then-write sequence inside one Update cannot interleave
// with another.
type Store interface {
	View(ctx context.Context, fn func(ReadTx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}
