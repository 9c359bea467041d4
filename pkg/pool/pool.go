// Package pool answers read-only questions about which segments a caller
// may draw from.
package pool

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veesix-networks/segmentd/pkg/logger"
	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/scope"
	"github.com/veesix-networks/segmentd/pkg/store"
)

type Querier struct {
	store  store.Store
	logger *slog.Logger
}

func New(st store.Store) *Querier {
	return &Querier{
		store:  st,
		logger: logger.Get(logger.Pool),
	}
}

func (q *Querier) Get(ctx context.Context, segmentID int64, removed store.Removed) (*segment.Segment, error) {
	var out *segment.Segment
	err := q.store.View(ctx, func(tx store.ReadTx) error {
		s, err := tx.GetSegment(ctx, segmentID, removed)
		out = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Usage reports how many of the segment's addresses are allocated.
func (q *Querier) Usage(ctx context.Context, s *segment.Segment) (segment.Usage, error) {
	var u segment.Usage
	err := q.store.View(ctx, func(tx store.ReadTx) error {
		allocated, err := tx.CountAddresses(ctx, s.ZoneID, s.ID, true)
		if err != nil {
			return err
		}
		total, err := tx.CountAddresses(ctx, s.ZoneID, s.ID, false)
		if err != nil {
			return err
		}
		u = segment.Usage{Allocated: allocated, Total: total}
		return nil
	})
	return u, err
}

// ZoneWidePool returns the live segments of the type in the zone that no
// account has dedicated, minus excludeSegmentID. Pass 0 to exclude nothing.
func (q *Querier) ZoneWidePool(ctx context.Context, zoneID int64, typ segment.Type, excludeSegmentID int64) ([]*segment.Segment, error) {
	var out []*segment.Segment
	err := q.store.View(ctx, func(tx store.ReadTx) error {
		segs, err := tx.ListZoneWide(ctx, zoneID, typ, excludeSegmentID, store.ExcludeRemoved)
		out = segs
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("zone %d %s pool: %w", zoneID, typ, err)
	}
	return out, nil
}

// ListByPod returns the live segments mapped to the pod. A nil typ returns
// every type.
func (q *Querier) ListByPod(ctx context.Context, podID int64, typ *segment.Type) ([]*segment.Segment, error) {
	var out []*segment.Segment
	err := q.store.View(ctx, func(tx store.ReadTx) error {
		segs, err := scope.PodSegments(ctx, tx, podID)
		if err != nil {
			return err
		}
		for _, s := range segs {
			if typ == nil || s.Type == *typ {
				out = append(out, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByAccount returns the live segments of the type dedicated to the
// account, limited to one zone when zoneID is set.
func (q *Querier) ListByAccount(ctx context.Context, zoneID *int64, accountID int64, typ segment.Type) ([]*segment.Segment, error) {
	var out []*segment.Segment
	err := q.store.View(ctx, func(tx store.ReadTx) error {
		segs, err := scope.AccountSegments(ctx, tx, accountID)
		if err != nil {
			return err
		}
		for _, s := range segs {
			if s.Type != typ {
				continue
			}
			if zoneID != nil && s.ZoneID != *zoneID {
				continue
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Querier) ListByZone(ctx context.Context, zoneID int64) ([]*segment.Segment, error) {
	var out []*segment.Segment
	err := q.store.View(ctx, func(tx store.ReadTx) error {
		segs, err := tx.ListByZone(ctx, zoneID, store.ExcludeRemoved)
		out = segs
		return err
	})
	return out, err
}

func (q *Querier) ListByNetwork(ctx context.Context, networkID int64) ([]*segment.Segment, error) {
	var out []*segment.Segment
	err := q.store.View(ctx, func(tx store.ReadTx) error {
		segs, err := tx.ListByNetwork(ctx, networkID, store.ExcludeRemoved)
		out = segs
		return err
	})
	return out, err
}

// PodScopedSegment returns the first segment of the type in the zone mapped
// to the pod, removed segments included. It returns nil, nil when the pod
// has none.
func (q *Querier) PodScopedSegment(ctx context.Context, zoneID, podID int64, typ segment.Type) (*segment.Segment, error) {
	var out *segment.Segment
	err := q.store.View(ctx, func(tx store.ReadTx) error {
		segs, err := tx.ListPodScoped(ctx, zoneID, podID, typ, store.IncludeRemoved)
		if err != nil {
			return err
		}
		if len(segs) > 0 {
			out = segs[0]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignPodDirectAttachAddress finds the pod's direct-attached segment.
// Drawing the address itself is not supported yet; once the segment is
// found ErrNotImplemented is returned alongside it.
func (q *Querier) AssignPodDirectAttachAddress(ctx context.Context, zoneID, podID int64) (*segment.Segment, error) {
	s, err := q.PodScopedSegment(ctx, zoneID, podID, segment.TypeDirectAttached)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("zone %d pod %d direct-attached segment: %w", zoneID, podID, segment.ErrNotFound)
	}

	q.logger.Debug("Pod scoped segment found", "zone_id", zoneID, "pod_id", podID, "segment_id", s.ID)
	return s, fmt.Errorf("direct-attach address draw for pod %d: %w", podID, segment.ErrNotImplemented)
}
