package memdb

import (
	"context"
	"sync"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/veesix-networks/segmentd/pkg/store"
)

const (
	tableSegment    = "segment"
	tablePodMap     = "pod_segment_map"
	tableAccountMap = "account_segment_map"
	tableAddress    = "segment_address"

	indexID          = "id"
	indexZone        = "zone"
	indexType        = "type"
	indexZoneType    = "zone_type"
	indexZoneTag     = "zone_tag"
	indexNetwork     = "network"
	indexRemoved     = "removed"
	indexPod         = "pod"
	indexAccount     = "account"
	indexSegment     = "segment"
	indexZoneAddress = "zone_address"
)

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableSegment: {
			Name: tableSegment,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "ID"},
				},
				indexZone: {
					Name:    indexZone,
					Indexer: &memdb.IntFieldIndex{Field: "ZoneID"},
				},
				indexType: {
					Name:    indexType,
					Indexer: &memdb.StringFieldIndex{Field: "Type"},
				},
				indexZoneType: {
					Name: indexZoneType,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.IntFieldIndex{Field: "ZoneID"},
							&memdb.StringFieldIndex{Field: "Type"},
						},
					},
				},
				indexZoneTag: {
					Name: indexZoneTag,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.IntFieldIndex{Field: "ZoneID"},
							&memdb.StringFieldIndex{Field: "Tag"},
						},
					},
				},
				indexNetwork: {
					Name:    indexNetwork,
					Indexer: &memdb.IntFieldIndex{Field: "Network"},
				},
				indexRemoved: {
					Name:    indexRemoved,
					Indexer: &memdb.BoolFieldIndex{Field: "Removed"},
				},
			},
		},
		tablePodMap: {
			Name: tablePodMap,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "ID"},
				},
				indexPod: {
					Name:    indexPod,
					Indexer: &memdb.IntFieldIndex{Field: "PodID"},
				},
				indexSegment: {
					Name:    indexSegment,
					Indexer: &memdb.IntFieldIndex{Field: "SegmentID"},
				},
			},
		},
		tableAccountMap: {
			Name: tableAccountMap,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "ID"},
				},
				indexAccount: {
					Name:    indexAccount,
					Indexer: &memdb.IntFieldIndex{Field: "AccountID"},
				},
				indexSegment: {
					Name:    indexSegment,
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "SegmentID"},
				},
			},
		},
		tableAddress: {
			Name: tableAddress,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "ID"},
				},
				indexSegment: {
					Name:    indexSegment,
					Indexer: &memdb.IntFieldIndex{Field: "SegmentID"},
				},
				indexZoneAddress: {
					Name: indexZoneAddress,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.IntFieldIndex{Field: "ZoneID"},
							&memdb.StringFieldIndex{Field: "Address"},
						},
					},
				},
			},
		},
	},
}

type sequences struct {
	segment    int64
	podMap     int64
	accountMap int64
	address    int64
}

// Store is a concurrency-safe, in-memory implementation of store.Store.
// Objects held by memdb are never mutated in place; updates insert a copy.
type Store struct {
	// updateLock must be held during an update transaction.
	updateLock sync.Mutex

	db *memdb.MemDB

	// seq is only touched while updateLock is held.
	seq sequences
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		// The schema is static; failing here is a programming error.
		panic(err)
	}
	return &Store{db: db}
}

func (s *Store) View(ctx context.Context, fn func(store.ReadTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()

	return fn(&readTx{txn: txn})
}

func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	s.updateLock.Lock()
	defer s.updateLock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	t := &tx{readTx: readTx{txn: txn}, seq: &s.seq}
	if err := fn(t); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) Close() error {
	return nil
}
