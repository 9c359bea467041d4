// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/store"
)

type Factory func(t *testing.T) store.Store

// NewSegment builds a valid segment for zone with the given tag and /29 prefix.
func NewSegment(t *testing.T, zoneID int64, typ segment.Type, tag, cidr string) *segment.Segment {
	t.Helper()
	s := &segment.Segment{ZoneID: zoneID, Type: typ, Tag: tag}
	require.NoError(t, s.FromPrefix(cidr))
	return s
}

// Create inserts segments in order and returns their ids.
func Create(t *testing.T, st store.Store, segs ...*segment.Segment) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(segs))
	err := st.Update(context.Background(), func(tx store.Tx) error {
		for _, s := range segs {
			id, err := tx.CreateSegment(context.Background(), s)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	require.NoError(t, err)
	return ids
}

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateRejectsOverlappingRange", testCreateRejectsOverlappingRange},
		{"ListingsHonourRemovedFilter", testListingsHonourRemovedFilter},
		{"ListByTypeAndNetwork", testListByTypeAndNetwork},
		{"FindByZoneAndTag", testFindByZoneAndTag},
		{"ZoneWideExcludesDedicated", testZoneWideExcludesDedicated},
		{"PodMappingsAllowDuplicates", testPodMappingsAllowDuplicates},
		{"PodScopedIncludesRemoved", testPodScopedIncludesRemoved},
		{"HasPodMappedSegments", testHasPodMappedSegments},
		{"AccountMappingIsExclusive", testAccountMappingIsExclusive},
		{"DrawAndReleaseAddresses", testDrawAndReleaseAddresses},
		{"FailedUpdateRollsBack", testFailedUpdateRollsBack},
		{"ConcurrentDrawsNeverCollide", testConcurrentDrawsNeverCollide},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			t.Cleanup(func() { st.Close() })
			tt.fn(t, st)
		})
	}
}

func testCreateAndGet(t *testing.T, st store.Store) {
	ctx := context.Background()
	network := int64(42)
	s := NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29")
	s.NetworkID = &network

	ids := Create(t, st, s)

	err := st.View(ctx, func(tx store.ReadTx) error {
		got, err := tx.GetSegment(ctx, ids[0], store.ExcludeRemoved)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ZoneID)
		assert.Equal(t, segment.TypeVirtual, got.Type)
		assert.Equal(t, "10.0.0.1", got.Gateway)
		assert.Equal(t, "255.255.255.248", got.Netmask)
		require.NotNil(t, got.NetworkID)
		assert.Equal(t, network, *got.NetworkID)

		total, err := tx.CountAddresses(ctx, 1, ids[0], false)
		require.NoError(t, err)
		assert.Equal(t, 5, total)

		_, err = tx.GetSegment(ctx, ids[0]+100, store.IncludeRemoved)
		assert.True(t, errors.Is(err, segment.ErrNotFound))
		return nil
	})
	require.NoError(t, err)
}

func createErr(st store.Store, s *segment.Segment) error {
	ctx := context.Background()
	return st.Update(ctx, func(tx store.Tx) error {
		_, err := tx.CreateSegment(ctx, s)
		return err
	})
}

func testCreateRejectsOverlappingRange(t *testing.T, st store.Store) {
	ctx := context.Background()
	first := Create(t, st, NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29"))

	// Same subnet group, range overlapping the first segment at .6.
	overlap := NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29")
	overlap.RangeStart = "10.0.0.6"
	err := createErr(st, overlap)
	require.ErrorIs(t, err, segment.ErrInvalidSegment)
	assert.Contains(t, err.Error(), "10.0.0.6")

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		n, err := tx.CountSegments(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "rejected segment must not be stored")
		return nil
	}))

	// Other zones do not share address space.
	require.NoError(t, createErr(st, NewSegment(t, 2, segment.TypeVirtual, "10", "10.0.0.0/29")))

	// A removed segment gives up its free addresses but keeps allocated ones.
	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.DrawAddress(ctx, first[0], nil); err != nil {
			return err
		}
		return tx.RemoveSegment(ctx, first[0])
	}))
	require.ErrorIs(t, createErr(st, NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29")), segment.ErrInvalidSegment)

	disjoint := NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29")
	disjoint.RangeStart = "10.0.0.3"
	require.NoError(t, createErr(st, disjoint))
}

func testListingsHonourRemovedFilter(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := Create(t, st,
		NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29"),
		NewSegment(t, 1, segment.TypeVirtual, "11", "10.0.1.0/29"),
		NewSegment(t, 2, segment.TypeVirtual, "12", "10.0.2.0/29"),
	)

	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		return tx.RemoveSegment(ctx, ids[0])
	}))

	err := st.Update(ctx, func(tx store.Tx) error {
		return tx.RemoveSegment(ctx, ids[0])
	})
	assert.True(t, errors.Is(err, segment.ErrNotFound), "second removal should report not found")

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		live, err := tx.ListByZone(ctx, 1, store.ExcludeRemoved)
		require.NoError(t, err)
		require.Len(t, live, 1)
		assert.Equal(t, ids[1], live[0].ID)

		all, err := tx.ListByZone(ctx, 1, store.IncludeRemoved)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, ids[0], all[0].ID)
		assert.True(t, all[0].Removed)

		typed, err := tx.ListByZoneAndType(ctx, 1, segment.TypeVirtual, store.ExcludeRemoved)
		require.NoError(t, err)
		assert.Len(t, typed, 1)

		_, err = tx.GetSegment(ctx, ids[0], store.ExcludeRemoved)
		assert.True(t, errors.Is(err, segment.ErrNotFound))

		removed, err := tx.GetSegment(ctx, ids[0], store.IncludeRemoved)
		require.NoError(t, err)
		assert.True(t, removed.Removed)

		n, err := tx.CountSegments(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		return nil
	}))
}

func testListByTypeAndNetwork(t *testing.T, st store.Store) {
	ctx := context.Background()
	network := int64(7)
	withNetwork := NewSegment(t, 1, segment.TypeDirectAttached, segment.Untagged, "10.0.0.0/29")
	withNetwork.NetworkID = &network

	ids := Create(t, st,
		NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.1.0/29"),
		withNetwork,
		NewSegment(t, 2, segment.TypeDirectAttached, segment.Untagged, "10.0.2.0/29"),
	)

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		direct, err := tx.ListByType(ctx, segment.TypeDirectAttached, store.ExcludeRemoved)
		require.NoError(t, err)
		require.Len(t, direct, 2)
		assert.Equal(t, ids[1], direct[0].ID)
		assert.Equal(t, ids[2], direct[1].ID)

		byNetwork, err := tx.ListByNetwork(ctx, network, store.ExcludeRemoved)
		require.NoError(t, err)
		require.Len(t, byNetwork, 1)
		assert.Equal(t, ids[1], byNetwork[0].ID)
		return nil
	}))
}

func testFindByZoneAndTag(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := Create(t, st,
		NewSegment(t, 1, segment.TypeVirtual, "100", "10.0.0.0/29"),
		NewSegment(t, 2, segment.TypeVirtual, "100", "10.0.1.0/29"),
	)

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		got, err := tx.FindByZoneAndTag(ctx, 2, "100", store.ExcludeRemoved)
		require.NoError(t, err)
		assert.Equal(t, ids[1], got.ID)

		_, err = tx.FindByZoneAndTag(ctx, 1, "200", store.ExcludeRemoved)
		assert.True(t, errors.Is(err, segment.ErrNotFound))
		return nil
	}))
}

func testZoneWideExcludesDedicated(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := Create(t, st,
		NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29"),
		NewSegment(t, 1, segment.TypeVirtual, "11", "10.0.1.0/29"),
		NewSegment(t, 1, segment.TypeVirtual, "12", "10.0.2.0/29"),
		NewSegment(t, 1, segment.TypeDirectAttached, segment.Untagged, "10.0.3.0/29"),
	)

	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		_, err := tx.AddAccountMapping(ctx, 500, ids[1])
		return err
	}))

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		pool, err := tx.ListZoneWide(ctx, 1, segment.TypeVirtual, ids[0], store.ExcludeRemoved)
		require.NoError(t, err)
		require.Len(t, pool, 1)
		assert.Equal(t, ids[2], pool[0].ID)
		return nil
	}))
}

func testPodMappingsAllowDuplicates(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := Create(t, st, NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29"))

	var first int64
	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		var err error
		first, err = tx.AddPodMapping(ctx, 9, ids[0])
		if err != nil {
			return err
		}
		_, err = tx.AddPodMapping(ctx, 9, ids[0])
		return err
	}))

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		maps, err := tx.ListPodMappings(ctx, 9)
		require.NoError(t, err)
		assert.Len(t, maps, 2)
		return nil
	}))

	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		return tx.RemovePodMapping(ctx, first)
	}))

	err := st.Update(ctx, func(tx store.Tx) error {
		return tx.RemovePodMapping(ctx, first)
	})
	assert.True(t, errors.Is(err, segment.ErrNotFound))

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		maps, err := tx.ListPodMappings(ctx, 9)
		require.NoError(t, err)
		assert.Len(t, maps, 1)
		return nil
	}))
}

func testPodScopedIncludesRemoved(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := Create(t, st,
		NewSegment(t, 1, segment.TypeDirectAttached, segment.Untagged, "10.0.0.0/29"),
		NewSegment(t, 1, segment.TypeDirectAttached, segment.Untagged, "10.0.1.0/29"),
	)

	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.AddPodMapping(ctx, 3, ids[0]); err != nil {
			return err
		}
		if _, err := tx.AddPodMapping(ctx, 3, ids[0]); err != nil {
			return err
		}
		if _, err := tx.AddPodMapping(ctx, 4, ids[1]); err != nil {
			return err
		}
		return tx.RemoveSegment(ctx, ids[0])
	}))

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		live, err := tx.ListPodScoped(ctx, 1, 3, segment.TypeDirectAttached, store.ExcludeRemoved)
		require.NoError(t, err)
		assert.Empty(t, live)

		all, err := tx.ListPodScoped(ctx, 1, 3, segment.TypeDirectAttached, store.IncludeRemoved)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, ids[0], all[0].ID)
		return nil
	}))
}

func testHasPodMappedSegments(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := Create(t, st,
		NewSegment(t, 1, segment.TypeDirectAttached, segment.Untagged, "10.0.0.0/29"),
		NewSegment(t, 2, segment.TypeDirectAttached, segment.Untagged, "10.0.1.0/29"),
	)

	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.AddPodMapping(ctx, 3, ids[0]); err != nil {
			return err
		}
		return tx.RemoveSegment(ctx, ids[0])
	}))

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		has, err := tx.HasPodMappedSegments(ctx, 1, segment.TypeDirectAttached, store.IncludeRemoved)
		require.NoError(t, err)
		assert.True(t, has)

		has, err = tx.HasPodMappedSegments(ctx, 1, segment.TypeDirectAttached, store.ExcludeRemoved)
		require.NoError(t, err)
		assert.False(t, has)

		has, err = tx.HasPodMappedSegments(ctx, 2, segment.TypeDirectAttached, store.IncludeRemoved)
		require.NoError(t, err)
		assert.False(t, has, "zone 2 segment has no pod mapping")
		return nil
	}))
}

func testAccountMappingIsExclusive(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := Create(t, st, NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29"))

	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		_, err := tx.AddAccountMapping(ctx, 100, ids[0])
		return err
	}))

	err := st.Update(ctx, func(tx store.Tx) error {
		_, err := tx.AddAccountMapping(ctx, 200, ids[0])
		return err
	})
	assert.True(t, errors.Is(err, segment.ErrAlreadyDedicated))

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		m, err := tx.AccountForSegment(ctx, ids[0])
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, int64(100), m.AccountID)

		maps, err := tx.ListAccountMappings(ctx, 100)
		require.NoError(t, err)
		assert.Len(t, maps, 1)
		return nil
	}))

	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		return tx.RemoveAccountMapping(ctx, ids[0])
	}))

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		m, err := tx.AccountForSegment(ctx, ids[0])
		require.NoError(t, err)
		assert.Nil(t, m)
		return nil
	}))
}

func testDrawAndReleaseAddresses(t *testing.T, st store.Store) {
	ctx := context.Background()
	s := NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/30")
	ids := Create(t, st, s)
	account := int64(77)

	var drawn *segment.Address
	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		var err error
		drawn, err = tx.DrawAddress(ctx, ids[0], &account)
		return err
	}))
	assert.Equal(t, "10.0.0.2", drawn.Address)
	require.NotNil(t, drawn.AccountID)
	assert.Equal(t, account, *drawn.AccountID)
	assert.True(t, drawn.Allocated())

	err := st.Update(ctx, func(tx store.Tx) error {
		_, err := tx.DrawAddress(ctx, ids[0], nil)
		return err
	})
	assert.True(t, errors.Is(err, segment.ErrNoFreeAddress), "a /30 has one usable address after the gateway")

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		allocated, err := tx.CountAddresses(ctx, 1, ids[0], true)
		require.NoError(t, err)
		assert.Equal(t, 1, allocated)

		found, err := tx.FindAddress(ctx, 1, "10.0.0.2")
		require.NoError(t, err)
		assert.True(t, found.Allocated())
		return nil
	}))

	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		released, err := tx.ReleaseAddress(ctx, 1, "10.0.0.2")
		if err != nil {
			return err
		}
		assert.False(t, released.Allocated())
		return nil
	}))

	err = st.Update(ctx, func(tx store.Tx) error {
		_, err := tx.ReleaseAddress(ctx, 1, "10.0.0.2")
		return err
	})
	assert.True(t, errors.Is(err, segment.ErrAddressNotFound))

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		allocated, err := tx.CountAddresses(ctx, 1, ids[0], true)
		require.NoError(t, err)
		assert.Equal(t, 0, allocated)
		return nil
	}))
}

func testFailedUpdateRollsBack(t *testing.T, st store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.CreateSegment(ctx, NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/29")); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	require.NoError(t, st.View(ctx, func(tx store.ReadTx) error {
		n, err := tx.CountSegments(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		return nil
	}))
}

func testConcurrentDrawsNeverCollide(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := Create(t, st, NewSegment(t, 1, segment.TypeVirtual, "10", "10.0.0.0/28"))

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		seen    = make(map[string]bool)
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var a *segment.Address
			err := st.Update(ctx, func(tx store.Tx) error {
				var err error
				a, err = tx.DrawAddress(ctx, ids[0], nil)
				return err
			})
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[a.Address], "address %s drawn twice", a.Address)
			seen[a.Address] = true
			success++
		}()
	}
	wg.Wait()

	// A /28 holds 14 usable addresses, one of which is the gateway.
	assert.Equal(t, 13, success)
}
