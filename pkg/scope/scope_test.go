package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/store"
	"github.com/veesix-networks/segmentd/pkg/store/memdb"
	"github.com/veesix-networks/segmentd/pkg/store/storetest"
)

func ids(segs []*segment.Segment) []int64 {
	out := make([]int64, 0, len(segs))
	for _, s := range segs {
		out = append(out, s.ID)
	}
	return out
}

func removeSegment(t *testing.T, st store.Store, id int64) {
	t.Helper()
	require.NoError(t, st.Update(context.Background(), func(tx store.Tx) error {
		return tx.RemoveSegment(context.Background(), id)
	}))
}

func TestSegmentsForPod(t *testing.T) {
	st := memdb.New()
	ctx := context.Background()
	segIDs := storetest.Create(t, st,
		storetest.NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29"),
		storetest.NewSegment(t, 1, segment.TypeDirectAttached, segment.Untagged, "10.0.1.0/29"),
		storetest.NewSegment(t, 1, segment.TypeDirectAttached, segment.Untagged, "10.0.2.0/29"),
	)
	idx := New(st, nil)

	for _, id := range segIDs {
		_, err := idx.AddPodMapping(ctx, 7, id)
		require.NoError(t, err)
	}
	removeSegment(t, st, segIDs[2])

	all, err := idx.SegmentsForPod(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, segIDs[:2], ids(all), "removed segments are hidden")

	direct, err := idx.SegmentsForPodByType(ctx, 7, segment.TypeDirectAttached)
	require.NoError(t, err)
	assert.Equal(t, []int64{segIDs[1]}, ids(direct))

	none, err := idx.SegmentsForPod(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAddPodMappingDuplicates(t *testing.T) {
	st := memdb.New()
	ctx := context.Background()
	segIDs := storetest.Create(t, st, storetest.NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29"))
	idx := New(st, nil)

	first, err := idx.AddPodMapping(ctx, 3, segIDs[0])
	require.NoError(t, err)
	second, err := idx.AddPodMapping(ctx, 3, segIDs[0])
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	segs, err := idx.SegmentsForPod(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, segs, 2)

	require.NoError(t, idx.RemovePodMapping(ctx, first.ID))
	segs, err = idx.SegmentsForPod(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, segs, 1)

	require.ErrorIs(t, idx.RemovePodMapping(ctx, first.ID), segment.ErrNotFound)
}

func TestAddPodMappingRequiresLiveSegment(t *testing.T) {
	st := memdb.New()
	ctx := context.Background()
	segIDs := storetest.Create(t, st, storetest.NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29"))
	removeSegment(t, st, segIDs[0])
	idx := New(st, nil)

	_, err := idx.AddPodMapping(ctx, 1, segIDs[0])
	require.ErrorIs(t, err, segment.ErrNotFound)

	_, err = idx.AddPodMapping(ctx, 1, 404)
	require.ErrorIs(t, err, segment.ErrNotFound)
}

func TestSegmentsForAccount(t *testing.T) {
	st := memdb.New()
	ctx := context.Background()
	segIDs := storetest.Create(t, st,
		storetest.NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29"),
		storetest.NewSegment(t, 2, segment.TypeVirtual, "20", "10.0.1.0/29"),
		storetest.NewSegment(t, 1, segment.TypeDirectAttached, "30", "10.0.2.0/29"),
	)
	idx := New(st, nil)
	for _, id := range segIDs {
		_, err := idx.DedicateToAccount(ctx, 50, id)
		require.NoError(t, err)
	}

	everywhere, err := idx.SegmentsForAccount(ctx, nil, 50, segment.TypeVirtual)
	require.NoError(t, err)
	assert.Equal(t, segIDs[:2], ids(everywhere))

	zone := int64(2)
	inZone, err := idx.SegmentsForAccount(ctx, &zone, 50, segment.TypeVirtual)
	require.NoError(t, err)
	assert.Equal(t, []int64{segIDs[1]}, ids(inZone))

	other, err := idx.SegmentsForAccount(ctx, nil, 51, segment.TypeVirtual)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDedicationIsExclusive(t *testing.T) {
	st := memdb.New()
	ctx := context.Background()
	segIDs := storetest.Create(t, st, storetest.NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29"))
	idx := New(st, nil)

	_, err := idx.DedicateToAccount(ctx, 1, segIDs[0])
	require.NoError(t, err)

	_, err = idx.DedicateToAccount(ctx, 2, segIDs[0])
	require.ErrorIs(t, err, segment.ErrAlreadyDedicated)

	require.NoError(t, idx.ReleaseDedication(ctx, segIDs[0]))
	require.ErrorIs(t, idx.ReleaseDedication(ctx, segIDs[0]), segment.ErrNotFound)

	_, err = idx.DedicateToAccount(ctx, 2, segIDs[0])
	require.NoError(t, err)
}

func TestInconsistentScope(t *testing.T) {
	st := memdb.New()
	ctx := context.Background()
	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.AddPodMapping(ctx, 9, 1234); err != nil {
			return err
		}
		_, err := tx.AddAccountMapping(ctx, 9, 1234)
		return err
	}))
	idx := New(st, nil)

	_, err := idx.SegmentsForPod(ctx, 9)
	require.ErrorIs(t, err, segment.ErrInconsistentScope)
	assert.Contains(t, err.Error(), "segment 1234")

	_, err = idx.SegmentsForAccount(ctx, nil, 9, segment.TypeVirtual)
	require.ErrorIs(t, err, segment.ErrInconsistentScope)
}

func TestZoneHasUntaggedDirectAttachSegments(t *testing.T) {
	st := memdb.New()
	ctx := context.Background()
	segIDs := storetest.Create(t, st,
		storetest.NewSegment(t, 1, segment.TypeDirectAttached, segment.Untagged, "10.0.0.0/29"),
		storetest.NewSegment(t, 2, segment.TypeDirectAttached, segment.Untagged, "10.0.1.0/29"),
		storetest.NewSegment(t, 3, segment.TypeVirtual, "30", "10.0.2.0/29"),
	)
	idx := New(st, nil)

	has, err := idx.ZoneHasUntaggedDirectAttachSegments(ctx, 1)
	require.NoError(t, err)
	assert.False(t, has, "unmapped segment does not count")

	_, err = idx.AddPodMapping(ctx, 100, segIDs[0])
	require.NoError(t, err)
	removeSegment(t, st, segIDs[0])

	has, err = idx.ZoneHasUntaggedDirectAttachSegments(ctx, 1)
	require.NoError(t, err)
	assert.True(t, has, "removed but pod-mapped direct-attached segment still counts")

	has, err = idx.ZoneHasUntaggedDirectAttachSegments(ctx, 2)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = idx.AddPodMapping(ctx, 100, segIDs[2])
	require.NoError(t, err)
	has, err = idx.ZoneHasUntaggedDirectAttachSegments(ctx, 3)
	require.NoError(t, err)
	assert.False(t, has, "virtual segments never count")

	tagged := storetest.Create(t, st, storetest.NewSegment(t, 4, segment.TypeDirectAttached, "400", "10.0.4.0/29"))
	_, err = idx.AddPodMapping(ctx, 101, tagged[0])
	require.NoError(t, err)
	has, err = idx.ZoneHasUntaggedDirectAttachSegments(ctx, 4)
	require.NoError(t, err)
	assert.True(t, has, "the segment tag is not consulted")
}

func TestCreateAndRemoveSegment(t *testing.T) {
	st := memdb.New()
	ctx := context.Background()
	idx := New(st, nil)

	_, err := idx.CreateSegment(ctx, &segment.Segment{ZoneID: 1, Type: segment.TypeVirtual, Tag: "10"})
	require.ErrorIs(t, err, segment.ErrInvalidSegment)

	s := storetest.NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29")
	created, err := idx.CreateSegment(ctx, s)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	require.NoError(t, idx.RemoveSegment(ctx, created.ID))
	require.ErrorIs(t, idx.RemoveSegment(ctx, created.ID), segment.ErrNotFound)

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		got, err := tx.GetSegment(ctx, created.ID, store.IncludeRemoved)
		require.NoError(t, err)
		assert.True(t, got.Removed)
		return nil
	}))
}
