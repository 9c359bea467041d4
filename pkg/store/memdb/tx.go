package memdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/store"
)

type segmentRow struct {
	ID      int64
	ZoneID  int64
	Type    string
	Tag     string
	Network int64
	Removed bool
	Segment segment.Segment
}

func newSegmentRow(s *segment.Segment) *segmentRow {
	row := &segmentRow{
		ID:      s.ID,
		ZoneID:  s.ZoneID,
		Type:    string(s.Type),
		Tag:     s.Tag,
		Removed: s.Removed,
		Segment: *s,
	}
	if s.NetworkID != nil {
		row.Network = *s.NetworkID
		id := *s.NetworkID
		row.Segment.NetworkID = &id
	}
	return row
}

func (r *segmentRow) copy() *segment.Segment {
	s := r.Segment
	if r.Segment.NetworkID != nil {
		id := *r.Segment.NetworkID
		s.NetworkID = &id
	}
	return &s
}

type podMapRow struct {
	ID        int64
	PodID     int64
	SegmentID int64
}

type accountMapRow struct {
	ID        int64
	AccountID int64
	SegmentID int64
}

type addressRow struct {
	ID          int64
	SegmentID   int64
	ZoneID      int64
	Address     string
	AccountID   *int64
	AllocatedAt *time.Time
}

func (r *addressRow) copy() *segment.Address {
	a := &segment.Address{
		ID:        r.ID,
		SegmentID: r.SegmentID,
		ZoneID:    r.ZoneID,
		Address:   r.Address,
	}
	if r.AccountID != nil {
		id := *r.AccountID
		a.AccountID = &id
	}
	if r.AllocatedAt != nil {
		ts := *r.AllocatedAt
		a.AllocatedAt = &ts
	}
	return a
}

type readTx struct {
	txn *memdb.Txn
}

var _ store.ReadTx = (*readTx)(nil)

type tx struct {
	readTx
	seq *sequences
}

var _ store.Tx = (*tx)(nil)

func (t *readTx) segments(op string, removed store.Removed, keep func(*segmentRow) bool, index string, args ...any) ([]*segment.Segment, error) {
	it, err := t.txn.Get(tableSegment, index, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []*segment.Segment
	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*segmentRow)
		if removed == store.ExcludeRemoved && row.Segment.Removed {
			continue
		}
		if keep != nil && !keep(row) {
			continue
		}
		result = append(result, row.copy())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (t *readTx) segmentRow(id int64) (*segmentRow, error) {
	obj, err := t.txn.First(tableSegment, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("get segment %d: %w", id, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("segment %d: %w", id, segment.ErrNotFound)
	}
	return obj.(*segmentRow), nil
}

func (t *readTx) GetSegment(ctx context.Context, id int64, removed store.Removed) (*segment.Segment, error) {
	row, err := t.segmentRow(id)
	if err != nil {
		return nil, err
	}
	if removed == store.ExcludeRemoved && row.Segment.Removed {
		return nil, fmt.Errorf("segment %d: %w", id, segment.ErrNotFound)
	}
	return row.copy(), nil
}

func (t *readTx) FindByZoneAndTag(ctx context.Context, zoneID int64, tag string, removed store.Removed) (*segment.Segment, error) {
	result, err := t.segments(fmt.Sprintf("find segment by zone %d tag %s", zoneID, tag), removed, nil, indexZoneTag, zoneID, tag)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("zone %d tag %s: %w", zoneID, tag, segment.ErrNotFound)
	}
	return result[0], nil
}

func (t *readTx) ListByZone(ctx context.Context, zoneID int64, removed store.Removed) ([]*segment.Segment, error) {
	return t.segments(fmt.Sprintf("list segments by zone %d", zoneID), removed, nil, indexZone, zoneID)
}

func (t *readTx) ListByZoneAndType(ctx context.Context, zoneID int64, typ segment.Type, removed store.Removed) ([]*segment.Segment, error) {
	return t.segments(fmt.Sprintf("list segments by zone %d type %s", zoneID, typ), removed, nil, indexZoneType, zoneID, string(typ))
}

func (t *readTx) ListByType(ctx context.Context, typ segment.Type, removed store.Removed) ([]*segment.Segment, error) {
	return t.segments(fmt.Sprintf("list segments by type %s", typ), removed, nil, indexType, string(typ))
}

func (t *readTx) ListByNetwork(ctx context.Context, networkID int64, removed store.Removed) ([]*segment.Segment, error) {
	if networkID == 0 {
		return nil, nil
	}
	return t.segments(fmt.Sprintf("list segments by network %d", networkID), removed, nil, indexNetwork, networkID)
}

func (t *readTx) CountSegments(ctx context.Context) (int, error) {
	n := 0
	for _, removed := range []bool{false, true} {
		it, err := t.txn.Get(tableSegment, indexRemoved, removed)
		if err != nil {
			return 0, fmt.Errorf("count segments: %w", err)
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			n++
		}
	}
	return n, nil
}

func (t *readTx) dedicated(segmentID int64) (bool, error) {
	obj, err := t.txn.First(tableAccountMap, indexSegment, segmentID)
	if err != nil {
		return false, err
	}
	return obj != nil, nil
}

func (t *readTx) ListZoneWide(ctx context.Context, zoneID int64, typ segment.Type, excludeID int64, removed store.Removed) ([]*segment.Segment, error) {
	op := fmt.Sprintf("list zone wide segments zone %d type %s", zoneID, typ)

	var lookupErr error
	result, err := t.segments(op, removed, func(row *segmentRow) bool {
		if row.ID == excludeID || lookupErr != nil {
			return false
		}
		dedicated, err := t.dedicated(row.ID)
		if err != nil {
			lookupErr = err
			return false
		}
		return !dedicated
	}, indexZoneType, zoneID, string(typ))
	if err != nil {
		return nil, err
	}
	if lookupErr != nil {
		return nil, fmt.Errorf("%s: %w", op, lookupErr)
	}
	return result, nil
}

func (t *readTx) ListPodMappings(ctx context.Context, podID int64) ([]*segment.PodMapping, error) {
	it, err := t.txn.Get(tablePodMap, indexPod, podID)
	if err != nil {
		return nil, fmt.Errorf("list pod mappings for pod %d: %w", podID, err)
	}

	var result []*segment.PodMapping
	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*podMapRow)
		result = append(result, &segment.PodMapping{ID: row.ID, PodID: row.PodID, SegmentID: row.SegmentID})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (t *readTx) ListAccountMappings(ctx context.Context, accountID int64) ([]*segment.AccountMapping, error) {
	it, err := t.txn.Get(tableAccountMap, indexAccount, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account mappings for account %d: %w", accountID, err)
	}

	var result []*segment.AccountMapping
	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*accountMapRow)
		result = append(result, &segment.AccountMapping{ID: row.ID, AccountID: row.AccountID, SegmentID: row.SegmentID})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (t *readTx) AccountForSegment(ctx context.Context, segmentID int64) (*segment.AccountMapping, error) {
	obj, err := t.txn.First(tableAccountMap, indexSegment, segmentID)
	if err != nil {
		return nil, fmt.Errorf("account for segment %d: %w", segmentID, err)
	}
	if obj == nil {
		return nil, nil
	}
	row := obj.(*accountMapRow)
	return &segment.AccountMapping{ID: row.ID, AccountID: row.AccountID, SegmentID: row.SegmentID}, nil
}

func (t *readTx) podMapped(segmentID int64, podID *int64) (bool, error) {
	it, err := t.txn.Get(tablePodMap, indexSegment, segmentID)
	if err != nil {
		return false, err
	}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		if podID == nil || obj.(*podMapRow).PodID == *podID {
			return true, nil
		}
	}
	return false, nil
}

func (t *readTx) ListPodScoped(ctx context.Context, zoneID, podID int64, typ segment.Type, removed store.Removed) ([]*segment.Segment, error) {
	op := fmt.Sprintf("list pod scoped segments zone %d pod %d", zoneID, podID)

	var lookupErr error
	result, err := t.segments(op, removed, func(row *segmentRow) bool {
		if lookupErr != nil {
			return false
		}
		mapped, err := t.podMapped(row.ID, &podID)
		if err != nil {
			lookupErr = err
			return false
		}
		return mapped
	}, indexZoneType, zoneID, string(typ))
	if err != nil {
		return nil, err
	}
	if lookupErr != nil {
		return nil, fmt.Errorf("%s: %w", op, lookupErr)
	}
	return result, nil
}

func (t *readTx) HasPodMappedSegments(ctx context.Context, zoneID int64, typ segment.Type, removed store.Removed) (bool, error) {
	candidates, err := t.segments(fmt.Sprintf("pod mapped segments zone %d type %s", zoneID, typ), removed, nil, indexZoneType, zoneID, string(typ))
	if err != nil {
		return false, err
	}
	for _, s := range candidates {
		mapped, err := t.podMapped(s.ID, nil)
		if err != nil {
			return false, fmt.Errorf("pod mapped segments zone %d type %s: %w", zoneID, typ, err)
		}
		if mapped {
			return true, nil
		}
	}
	return false, nil
}

func (t *readTx) addressRows(segmentID int64) ([]*addressRow, error) {
	it, err := t.txn.Get(tableAddress, indexSegment, segmentID)
	if err != nil {
		return nil, err
	}
	var rows []*addressRow
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rows = append(rows, obj.(*addressRow))
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}

func (t *readTx) CountAddresses(ctx context.Context, zoneID, segmentID int64, allocatedOnly bool) (int, error) {
	rows, err := t.addressRows(segmentID)
	if err != nil {
		return 0, fmt.Errorf("count addresses zone %d segment %d: %w", zoneID, segmentID, err)
	}
	n := 0
	for _, row := range rows {
		if row.ZoneID != zoneID {
			continue
		}
		if allocatedOnly && row.AllocatedAt == nil {
			continue
		}
		n++
	}
	return n, nil
}

func (t *readTx) zoneAddressRows(zoneID int64, address string) ([]*addressRow, error) {
	it, err := t.txn.Get(tableAddress, indexZoneAddress, zoneID, address)
	if err != nil {
		return nil, err
	}
	var rows []*addressRow
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rows = append(rows, obj.(*addressRow))
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}

// addressOwner returns the segment holding address in the zone, or zero. A
// removed segment still holds the addresses it has handed out.
func (t *readTx) addressOwner(zoneID int64, address string) (int64, error) {
	rows, err := t.zoneAddressRows(zoneID, address)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if row.AllocatedAt != nil {
			return row.SegmentID, nil
		}
		seg, err := t.segmentRow(row.SegmentID)
		if err != nil {
			return 0, err
		}
		if !seg.Removed {
			return row.SegmentID, nil
		}
	}
	return 0, nil
}

func (t *readTx) FindAddress(ctx context.Context, zoneID int64, address string) (*segment.Address, error) {
	rows, err := t.zoneAddressRows(zoneID, address)
	if err != nil {
		return nil, fmt.Errorf("find address zone %d %s: %w", zoneID, address, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("zone %d address %s: %w", zoneID, address, segment.ErrAddressNotFound)
	}
	for _, row := range rows {
		if row.AllocatedAt != nil {
			return row.copy(), nil
		}
	}
	return rows[0].copy(), nil
}

func (t *tx) CreateSegment(ctx context.Context, s *segment.Segment) (int64, error) {
	addrs, err := s.Addresses()
	if err != nil {
		return 0, err
	}

	for _, addr := range addrs {
		owner, err := t.addressOwner(s.ZoneID, addr.String())
		if err != nil {
			return 0, fmt.Errorf("failed to create segment: %w", err)
		}
		if owner != 0 {
			return 0, fmt.Errorf("%w: address %s already belongs to segment %d in zone %d",
				segment.ErrInvalidSegment, addr, owner, s.ZoneID)
		}
	}

	t.seq.segment++
	s.ID = t.seq.segment
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	if err := t.txn.Insert(tableSegment, newSegmentRow(s)); err != nil {
		return 0, fmt.Errorf("failed to create segment: %w", err)
	}

	for _, addr := range addrs {
		t.seq.address++
		row := &addressRow{
			ID:        t.seq.address,
			SegmentID: s.ID,
			ZoneID:    s.ZoneID,
			Address:   addr.String(),
		}
		if err := t.txn.Insert(tableAddress, row); err != nil {
			return 0, fmt.Errorf("failed to add address %s to segment %d: %w", addr, s.ID, err)
		}
	}
	return s.ID, nil
}

func (t *tx) RemoveSegment(ctx context.Context, id int64) error {
	row, err := t.segmentRow(id)
	if err != nil {
		return err
	}
	if row.Segment.Removed {
		return fmt.Errorf("segment %d: %w", id, segment.ErrNotFound)
	}

	s := row.copy()
	s.Removed = true
	if err := t.txn.Insert(tableSegment, newSegmentRow(s)); err != nil {
		return fmt.Errorf("failed to remove segment %d: %w", id, err)
	}
	return nil
}

func (t *tx) AddPodMapping(ctx context.Context, podID, segmentID int64) (int64, error) {
	t.seq.podMap++
	row := &podMapRow{ID: t.seq.podMap, PodID: podID, SegmentID: segmentID}
	if err := t.txn.Insert(tablePodMap, row); err != nil {
		return 0, fmt.Errorf("failed to map segment %d to pod %d: %w", segmentID, podID, err)
	}
	return row.ID, nil
}

func (t *tx) RemovePodMapping(ctx context.Context, id int64) error {
	obj, err := t.txn.First(tablePodMap, indexID, id)
	if err != nil {
		return fmt.Errorf("failed to remove pod mapping %d: %w", id, err)
	}
	if obj == nil {
		return fmt.Errorf("pod mapping %d: %w", id, segment.ErrNotFound)
	}
	if err := t.txn.Delete(tablePodMap, obj); err != nil {
		return fmt.Errorf("failed to remove pod mapping %d: %w", id, err)
	}
	return nil
}

func (t *tx) AddAccountMapping(ctx context.Context, accountID, segmentID int64) (int64, error) {
	existing, err := t.txn.First(tableAccountMap, indexSegment, segmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to dedicate segment %d to account %d: %w", segmentID, accountID, err)
	}
	if existing != nil {
		return 0, fmt.Errorf("failed to dedicate segment %d to account %d: %w", segmentID, accountID, segment.ErrAlreadyDedicated)
	}

	t.seq.accountMap++
	row := &accountMapRow{ID: t.seq.accountMap, AccountID: accountID, SegmentID: segmentID}
	if err := t.txn.Insert(tableAccountMap, row); err != nil {
		return 0, fmt.Errorf("failed to dedicate segment %d to account %d: %w", segmentID, accountID, err)
	}
	return row.ID, nil
}

func (t *tx) RemoveAccountMapping(ctx context.Context, segmentID int64) error {
	obj, err := t.txn.First(tableAccountMap, indexSegment, segmentID)
	if err != nil {
		return fmt.Errorf("failed to release dedication of segment %d: %w", segmentID, err)
	}
	if obj == nil {
		return fmt.Errorf("account mapping for segment %d: %w", segmentID, segment.ErrNotFound)
	}
	if err := t.txn.Delete(tableAccountMap, obj); err != nil {
		return fmt.Errorf("failed to release dedication of segment %d: %w", segmentID, err)
	}
	return nil
}

func (t *tx) DrawAddress(ctx context.Context, segmentID int64, accountID *int64) (*segment.Address, error) {
	rows, err := t.addressRows(segmentID)
	if err != nil {
		return nil, fmt.Errorf("draw address from segment %d: %w", segmentID, err)
	}

	for _, row := range rows {
		if row.AllocatedAt != nil {
			continue
		}

		now := time.Now().UTC()
		updated := *row
		updated.AllocatedAt = &now
		if accountID != nil {
			id := *accountID
			updated.AccountID = &id
		}
		if err := t.txn.Insert(tableAddress, &updated); err != nil {
			return nil, fmt.Errorf("draw address from segment %d: %w", segmentID, err)
		}
		return updated.copy(), nil
	}

	return nil, fmt.Errorf("segment %d: %w", segmentID, segment.ErrNoFreeAddress)
}

func (t *tx) ReleaseAddress(ctx context.Context, zoneID int64, address string) (*segment.Address, error) {
	rows, err := t.zoneAddressRows(zoneID, address)
	if err != nil {
		return nil, fmt.Errorf("release address zone %d %s: %w", zoneID, address, err)
	}

	for _, row := range rows {
		if row.AllocatedAt == nil {
			continue
		}
		updated := *row
		updated.AllocatedAt = nil
		updated.AccountID = nil
		if err := t.txn.Insert(tableAddress, &updated); err != nil {
			return nil, fmt.Errorf("release address zone %d %s: %w", zoneID, address, err)
		}
		return updated.copy(), nil
	}

	return nil, fmt.Errorf("zone %d address %s: %w", zoneID, address, segment.ErrAddressNotFound)
}
