package provision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veesix-networks/segmentd/pkg/config"
	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/store"
	"github.com/veesix-networks/segmentd/pkg/store/memdb"
)

func seedConfig() config.Provisioning {
	return config.Provisioning{
		Segments: []config.SegmentSeed{
			{Zone: 1, Type: "virtual", Tag: "100", Network: "10.1.0.0/29"},
			{Zone: 1, Type: "direct-attached", Tag: segment.Untagged, Network: "10.2.0.0/29"},
		},
		PodMappings:     []config.PodMappingSeed{{Pod: 4, Zone: 1, Tag: segment.Untagged}},
		AccountMappings: []config.AccountMappingSeed{{Account: 30, Zone: 1, Tag: "100"}},
	}
}

func TestApplySeedsEmptyStore(t *testing.T) {
	st := memdb.New()
	ctx := context.Background()

	res, err := Apply(ctx, st, seedConfig())
	require.NoError(t, err)
	assert.Equal(t, Result{Segments: 2, PodMappings: 1, AccountMappings: 1}, res)

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		segs, err := tx.ListByZone(ctx, 1, store.ExcludeRemoved)
		require.NoError(t, err)
		require.Len(t, segs, 2)

		total, err := tx.CountAddresses(ctx, 1, segs[0].ID, false)
		require.NoError(t, err)
		assert.Equal(t, 5, total)

		pods, err := tx.ListPodMappings(ctx, 4)
		require.NoError(t, err)
		require.Len(t, pods, 1)
		assert.Equal(t, segs[1].ID, pods[0].SegmentID)

		owner, err := tx.AccountForSegment(ctx, segs[0].ID)
		require.NoError(t, err)
		require.NotNil(t, owner)
		assert.Equal(t, int64(30), owner.AccountID)
		return nil
	}))
}

func TestApplySkipsPopulatedStore(t *testing.T) {
	st := memdb.New()
	ctx := context.Background()

	_, err := Apply(ctx, st, seedConfig())
	require.NoError(t, err)

	res, err := Apply(ctx, st, seedConfig())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		n, err := tx.CountSegments(ctx)
		assert.Equal(t, 2, n)
		return err
	}))
}

func TestApplyNothingToSeed(t *testing.T) {
	res, err := Apply(context.Background(), memdb.New(), config.Provisioning{})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	st := memdb.New()
	ctx := context.Background()
	p := seedConfig()
	p.PodMappings = append(p.PodMappings, config.PodMappingSeed{Pod: 1, Zone: 9, Tag: "missing"})

	_, err := Apply(ctx, st, p)
	require.ErrorIs(t, err, segment.ErrNotFound)

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		n, err := tx.CountSegments(ctx)
		assert.Zero(t, n)
		return err
	}))
}
