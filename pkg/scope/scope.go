// Package scope manages which pods and accounts may draw from a segment.
//
// Pod mappings restrict a segment to the racks it is wired into. Account
// mappings dedicate a segment to one account and take it out of the
// zone-wide pool.
package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/veesix-networks/segmentd/pkg/events"
	"github.com/veesix-networks/segmentd/pkg/logger"
	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/store"
)

type Index struct {
	store  store.Store
	bus    events.Bus
	logger *slog.Logger
}

func New(st store.Store, bus events.Bus) *Index {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Index{
		store:  st,
		bus:    bus,
		logger: logger.Get(logger.Scope),
	}
}

// SegmentsForPod returns every live segment mapped to the pod, in mapping
// order. A segment mapped twice is returned twice.
func (i *Index) SegmentsForPod(ctx context.Context, podID int64) ([]*segment.Segment, error) {
	var out []*segment.Segment
	err := i.store.View(ctx, func(tx store.ReadTx) error {
		segs, err := PodSegments(ctx, tx, podID)
		out = segs
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (i *Index) SegmentsForPodByType(ctx context.Context, podID int64, typ segment.Type) ([]*segment.Segment, error) {
	segs, err := i.SegmentsForPod(ctx, podID)
	if err != nil {
		return nil, err
	}
	return filterType(segs, typ), nil
}

// SegmentsForAccount returns the live segments of the type dedicated to the
// account. A nil zoneID matches every zone.
func (i *Index) SegmentsForAccount(ctx context.Context, zoneID *int64, accountID int64, typ segment.Type) ([]*segment.Segment, error) {
	var out []*segment.Segment
	err := i.store.View(ctx, func(tx store.ReadTx) error {
		segs, err := AccountSegments(ctx, tx, accountID)
		if err != nil {
			return err
		}
		for _, s := range filterType(segs, typ) {
			if zoneID == nil || s.ZoneID == *zoneID {
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

// AddPodMapping maps a live segment to a pod. Repeated calls create
// repeated mappings.
func (i *Index) AddPodMapping(ctx context.Context, podID, segmentID int64) (*segment.PodMapping, error) {
	var m *segment.PodMapping
	err := i.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetSegment(ctx, segmentID, store.ExcludeRemoved); err != nil {
			return err
		}
		id, err := tx.AddPodMapping(ctx, podID, segmentID)
		if err != nil {
			return err
		}
		m = &segment.PodMapping{ID: id, PodID: podID, SegmentID: segmentID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	i.logger.Info("Segment mapped to pod", "pod_id", podID, "segment_id", segmentID, "mapping_id", m.ID)
	i.publish(events.ScopeChangedEvent{Change: events.ScopePodMapped, SegmentID: segmentID, PodID: podID})
	return m, nil
}

func (i *Index) RemovePodMapping(ctx context.Context, mappingID int64) error {
	if err := i.store.Update(ctx, func(tx store.Tx) error {
		return tx.RemovePodMapping(ctx, mappingID)
	}); err != nil {
		return err
	}

	i.logger.Info("Pod mapping removed", "mapping_id", mappingID)
	i.publish(events.ScopeChangedEvent{Change: events.ScopePodUnmapped})
	return nil
}

// DedicateToAccount reserves a live segment for one account. A segment
// already dedicated to any account yields ErrAlreadyDedicated.
func (i *Index) DedicateToAccount(ctx context.Context, accountID, segmentID int64) (*segment.AccountMapping, error) {
	var m *segment.AccountMapping
	err := i.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetSegment(ctx, segmentID, store.ExcludeRemoved); err != nil {
			return err
		}
		id, err := tx.AddAccountMapping(ctx, accountID, segmentID)
		if err != nil {
			return err
		}
		m = &segment.AccountMapping{ID: id, AccountID: accountID, SegmentID: segmentID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	i.logger.Info("Segment dedicated to account", "account_id", accountID, "segment_id", segmentID)
	i.publish(events.ScopeChangedEvent{Change: events.ScopeDedicated, SegmentID: segmentID, AccountID: accountID})
	return m, nil
}

// ReleaseDedication returns a dedicated segment to the zone-wide pool.
func (i *Index) ReleaseDedication(ctx context.Context, segmentID int64) error {
	if err := i.store.Update(ctx, func(tx store.Tx) error {
		return tx.RemoveAccountMapping(ctx, segmentID)
	}); err != nil {
		return err
	}

	i.logger.Info("Segment dedication released", "segment_id", segmentID)
	i.publish(events.ScopeChangedEvent{Change: events.ScopeDedicationEnded, SegmentID: segmentID})
	return nil
}

// CreateSegment validates and stores a new segment together with its
// address rows.
func (i *Index) CreateSegment(ctx context.Context, s *segment.Segment) (*segment.Segment, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	err := i.store.Update(ctx, func(tx store.Tx) error {
		_, err := tx.CreateSegment(ctx, s)
		return err
	})
	if err != nil {
		return nil, err
	}

	i.logger.Info("Segment created", "segment_id", s.ID, "zone_id", s.ZoneID, "type", string(s.Type), "tag", s.Tag)
	i.publish(events.ScopeChangedEvent{Change: events.ScopeSegmentCreated, SegmentID: s.ID})
	return s, nil
}

// RemoveSegment soft-deletes a segment. Its mappings and addresses stay.
func (i *Index) RemoveSegment(ctx context.Context, segmentID int64) error {
	if err := i.store.Update(ctx, func(tx store.Tx) error {
		return tx.RemoveSegment(ctx, segmentID)
	}); err != nil {
		return err
	}

	i.logger.Info("Segment removed", "segment_id", segmentID)
	i.publish(events.ScopeChangedEvent{Change: events.ScopeSegmentRemoved, SegmentID: segmentID})
	return nil
}

// ZoneHasUntaggedDirectAttachSegments reports whether any direct-attached
// segment of the zone is mapped to a pod. Removed segments count. The tag is
// not consulted: a pod-mapped direct-attached segment counts as untagged
// whatever its Tag holds.
func (i *Index) ZoneHasUntaggedDirectAttachSegments(ctx context.Context, zoneID int64) (bool, error) {
	var found bool
	err := i.store.View(ctx, func(tx store.ReadTx) error {
		ok, err := tx.HasPodMappedSegments(ctx, zoneID, segment.TypeDirectAttached, store.IncludeRemoved)
		found = ok
		return err
	})
	return found, err
}

func (i *Index) publish(data events.ScopeChangedEvent) {
	i.bus.Publish(events.TopicScopeChanged, events.Event{Source: logger.Scope, Data: data})
}

// PodSegments resolves pod mappings to their live segments inside tx. A
// mapping whose segment does not exist at all is reported as
// ErrInconsistentScope.
func PodSegments(ctx context.Context, tx store.ReadTx, podID int64) ([]*segment.Segment, error) {
	mappings, err := tx.ListPodMappings(ctx, podID)
	if err != nil {
		return nil, err
	}

	out := make([]*segment.Segment, 0, len(mappings))
	for _, m := range mappings {
		s, err := resolve(ctx, tx, m.SegmentID, func() error {
			return fmt.Errorf("pod %d mapping %d references segment %d: %w",
				m.PodID, m.ID, m.SegmentID, segment.ErrInconsistentScope)
		})
		if err != nil {
			return nil, err
		}
		if !s.Removed {
			out = append(out, s)
		}
	}
	return out, nil
}

// AccountSegments resolves the account's dedications to live segments.
func AccountSegments(ctx context.Context, tx store.ReadTx, accountID int64) ([]*segment.Segment, error) {
	mappings, err := tx.ListAccountMappings(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make([]*segment.Segment, 0, len(mappings))
	for _, m := range mappings {
		s, err := resolve(ctx, tx, m.SegmentID, func() error {
			return fmt.Errorf("account %d mapping %d references segment %d: %w",
				m.AccountID, m.ID, m.SegmentID, segment.ErrInconsistentScope)
		})
		if err != nil {
			return nil, err
		}
		if !s.Removed {
			out = append(out, s)
		}
	}
	return out, nil
}

func resolve(ctx context.Context, tx store.ReadTx, segmentID int64, inconsistent func() error) (*segment.Segment, error) {
	s, err := tx.GetSegment(ctx, segmentID, store.IncludeRemoved)
	if errors.Is(err, segment.ErrNotFound) {
		return nil, inconsistent()
	}
	return s, err
}

func filterType(segs []*segment.Segment, typ segment.Type) []*segment.Segment {
	out := make([]*segment.Segment, 0, len(segs))
	for _, s := range segs {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}
