package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veesix-networks/segmentd/pkg/events"
	"github.com/veesix-networks/segmentd/pkg/logger"
	"github.com/veesix-networks/segmentd/pkg/metrics"
	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/scope"
	"github.com/veesix-networks/segmentd/pkg/store"
)

var ErrNoCapacity = errors.New("no capacity")

// NoCapacityError is returned when a zone has no segment of the requested
// type with a free address. It matches ErrNoCapacity with errors.Is.
type NoCapacityError struct {
	ZoneID int64
	Type   segment.Type
}

func (e *NoCapacityError) Error() string {
	return fmt.Sprintf("no available network segment of type %s in zone %d", e.Type, e.ZoneID)
}

func (e *NoCapacityError) Is(target error) bool {
	return target == ErrNoCapacity
}

type Request struct {
	ZoneID    int64
	Type      segment.Type
	AccountID *int64
}

type Allocation struct {
	Segment *segment.Segment `json:"segment"`
	Address *segment.Address `json:"address"`
}

type Allocator struct {
	store  store.Store
	bus    events.Bus
	logger *slog.Logger
}

func New(st store.Store, bus events.Bus) *Allocator {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Allocator{
		store:  st,
		bus:    bus,
		logger: logger.Get(logger.Allocator),
	}
}

// SelectSegment returns the segment the next address in the zone would be
// drawn from without drawing it. Only the shared pool is considered, so the
// answer matches an allocation made without an account.
func (a *Allocator) SelectSegment(ctx context.Context, zoneID int64, typ segment.Type) (*segment.Segment, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown segment type %q", segment.ErrInvalidSegment, typ)
	}

	var selected *segment.Segment
	err := a.store.View(ctx, func(tx store.ReadTx) error {
		s, err := a.selectIn(ctx, tx, zoneID, typ)
		selected = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return selected, nil
}

// Allocate selects a segment and draws one address from it in a single
// write transaction. Concurrent callers never receive the same address.
//
// When the request names an account, segments dedicated to that account in
// the zone are tried first. Otherwise, and when those are full, the address
// comes from the zone-wide pool, which never includes a segment dedicated to
// any account.
func (a *Allocator) Allocate(ctx context.Context, req Request) (*Allocation, error) {
	if req.ZoneID <= 0 {
		return nil, fmt.Errorf("%w: zone id must be positive", segment.ErrInvalidSegment)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown segment type %q", segment.ErrInvalidSegment, req.Type)
	}

	log := logger.WithScope(a.logger, logger.ScopeAttrs{
		ZoneID:    req.ZoneID,
		AccountID: derefID(req.AccountID),
		Type:      string(req.Type),
	})

	var alloc *Allocation
	err := a.store.Update(ctx, func(tx store.Tx) error {
		var (
			s   *segment.Segment
			err error
		)
		if req.AccountID != nil {
			s, err = a.selectDedicated(ctx, tx, req)
		}
		if s == nil && err == nil {
			s, err = a.selectIn(ctx, tx, req.ZoneID, req.Type)
		}
		if err != nil {
			return err
		}

		addr, err := tx.DrawAddress(ctx, s.ID, req.AccountID)
		if err != nil {
			return fmt.Errorf("allocate from segment %d: %w", s.ID, err)
		}
		alloc = &Allocation{Segment: s, Address: addr}
		return nil
	})

	if err != nil {
		var nc *NoCapacityError
		if errors.As(err, &nc) {
			log.Warn("Zone has no capacity left")
			a.bus.Publish(events.TopicSegmentExhausted, events.Event{
				Source: logger.Allocator,
				Data:   events.ExhaustedEvent{ZoneID: req.ZoneID, Type: string(req.Type)},
			})
			return nil, err
		}
		metrics.Allocations.WithLabelValues(string(req.Type), metrics.ResultError).Inc()
		log.Error("Allocation failed", "error", err)
		return nil, err
	}

	log.Debug("Address allocated", "segment_id", alloc.Segment.ID, "tag", alloc.Segment.Tag, "address", alloc.Address.Address)
	a.bus.Publish(events.TopicSegmentAllocated, events.Event{
		Source: logger.Allocator,
		Data: events.AllocatedEvent{
			ZoneID:    req.ZoneID,
			SegmentID: alloc.Segment.ID,
			Type:      string(req.Type),
			Tag:       alloc.Segment.Tag,
			Address:   alloc.Address.Address,
			AccountID: req.AccountID,
		},
	})
	return alloc, nil
}

// Release returns an allocated address in the zone to its segment.
func (a *Allocator) Release(ctx context.Context, zoneID int64, address string) (*segment.Address, error) {
	var released *segment.Address
	err := a.store.Update(ctx, func(tx store.Tx) error {
		addr, err := tx.ReleaseAddress(ctx, zoneID, address)
		released = addr
		return err
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Address released", "zone_id", zoneID, "segment_id", released.SegmentID, "address", address)
	a.bus.Publish(events.TopicSegmentReleased, events.Event{
		Source: logger.Allocator,
		Data:   events.ReleasedEvent{ZoneID: zoneID, SegmentID: released.SegmentID, Address: address},
	})
	return released, nil
}

func (a *Allocator) selectIn(ctx context.Context, tx store.ReadTx, zoneID int64, typ segment.Type) (*segment.Segment, error) {
	start := time.Now()
	defer func() { metrics.SelectionDuration.Observe(time.Since(start).Seconds()) }()

	candidates, err := tx.ListZoneWide(ctx, zoneID, typ, 0, store.ExcludeRemoved)
	if err != nil {
		return nil, err
	}

	s, err := Select(candidates, usageFrom(ctx, tx))
	if errors.Is(err, ErrNoCapacity) {
		return nil, &NoCapacityError{ZoneID: zoneID, Type: typ}
	}
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Segment selected", "zone_id", zoneID, "type", string(typ), "segment_id", s.ID, "candidates", len(candidates))
	return s, nil
}

// selectDedicated returns nil without error when the account holds no
// segment with room in the zone.
func (a *Allocator) selectDedicated(ctx context.Context, tx store.ReadTx, req Request) (*segment.Segment, error) {
	dedicated, err := scope.AccountSegments(ctx, tx, *req.AccountID)
	if err != nil {
		return nil, err
	}

	var candidates []*segment.Segment
	for _, s := range dedicated {
		if s.ZoneID == req.ZoneID && s.Type == req.Type {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	s, err := Select(candidates, usageFrom(ctx, tx))
	if errors.Is(err, ErrNoCapacity) {
		return nil, nil
	}
	return s, err
}

func usageFrom(ctx context.Context, tx store.ReadTx) UsageFunc {
	return func(s *segment.Segment) (segment.Usage, error) {
		allocated, err := tx.CountAddresses(ctx, s.ZoneID, s.ID, true)
		if err != nil {
			return segment.Usage{}, err
		}
		total, err := tx.CountAddresses(ctx, s.ZoneID, s.ID, false)
		if err != nil {
			return segment.Usage{}, err
		}
		return segment.Usage{Allocated: allocated, Total: total}, nil
	}
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
