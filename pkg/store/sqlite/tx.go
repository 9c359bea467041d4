package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inet.af/netaddr"

	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/store"
)

const segmentColumns = `s.id, s.zone_id, s.type, s.tag, s.gateway, s.netmask,
	s.range_start, s.range_end, s.network_id, s.removed, s.created_at`

type tx struct {
	tx *sql.Tx
}

var _ store.Tx = (*tx)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanSegment(row scanner) (*segment.Segment, error) {
	var s segment.Segment
	var typ string
	var networkID sql.NullInt64
	var createdAt sql.NullTime

	err := row.Scan(
		&s.ID,
		&s.ZoneID,
		&typ,
		&s.Tag,
		&s.Gateway,
		&s.Netmask,
		&s.RangeStart,
		&s.RangeEnd,
		&networkID,
		&s.Removed,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	s.Type = segment.Type(typ)
	if networkID.Valid {
		id := networkID.Int64
		s.NetworkID = &id
	}
	if createdAt.Valid {
		s.CreatedAt = createdAt.Time
	}
	return &s, nil
}

func removedClause(removed store.Removed) string {
	if removed == store.IncludeRemoved {
		return ""
	}
	return " AND s.removed = 0"
}

func (t *tx) querySegments(ctx context.Context, op, query string, args ...any) ([]*segment.Segment, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*segment.Segment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func (t *tx) GetSegment(ctx context.Context, id int64, removed store.Removed) (*segment.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segment s WHERE s.id = ?` + removedClause(removed)

	s, err := scanSegment(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("segment %d: %w", id, segment.ErrNotFound)
		}
		return nil, fmt.Errorf("get segment %d: %w", id, err)
	}
	return s, nil
}

func (t *tx) FindByZoneAndTag(ctx context.Context, zoneID int64, tag string, removed store.Removed) (*segment.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segment s
	          WHERE s.zone_id = ? AND s.tag = ?` + removedClause(removed) + `
	          ORDER BY s.id LIMIT 1`

	s, err := scanSegment(t.tx.QueryRowContext(ctx, query, zoneID, tag))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("zone %d tag %s: %w", zoneID, tag, segment.ErrNotFound)
		}
		return nil, fmt.Errorf("find segment by zone %d tag %s: %w", zoneID, tag, err)
	}
	return s, nil
}

func (t *tx) ListByZone(ctx context.Context, zoneID int64, removed store.Removed) ([]*segment.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segment s
	          WHERE s.zone_id = ?` + removedClause(removed) + ` ORDER BY s.id`
	return t.querySegments(ctx, fmt.Sprintf("list segments by zone %d", zoneID), query, zoneID)
}

func (t *tx) ListByZoneAndType(ctx context.Context, zoneID int64, typ segment.Type, removed store.Removed) ([]*segment.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segment s
	          WHERE s.zone_id = ? AND s.type = ?` + removedClause(removed) + ` ORDER BY s.id`
	return t.querySegments(ctx, fmt.Sprintf("list segments by zone %d type %s", zoneID, typ), query, zoneID, string(typ))
}

func (t *tx) ListByType(ctx context.Context, typ segment.Type, removed store.Removed) ([]*segment.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segment s
	          WHERE s.type = ?` + removedClause(removed) + ` ORDER BY s.id`
	return t.querySegments(ctx, fmt.Sprintf("list segments by type %s", typ), query, string(typ))
}

func (t *tx) ListByNetwork(ctx context.Context, networkID int64, removed store.Removed) ([]*segment.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segment s
	          WHERE s.network_id = ?` + removedClause(removed) + ` ORDER BY s.id`
	return t.querySegments(ctx, fmt.Sprintf("list segments by network %d", networkID), query, networkID)
}

func (t *tx) CountSegments(ctx context.Context) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM segment`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count segments: %w", err)
	}
	return n, nil
}

func (t *tx) ListZoneWide(ctx context.Context, zoneID int64, typ segment.Type, excludeID int64, removed store.Removed) ([]*segment.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segment s
	          WHERE s.zone_id = ? AND s.type = ? AND s.id != ?
	            AND s.id NOT IN (SELECT segment_id FROM account_segment_map)` + removedClause(removed) + `
	          ORDER BY s.id`
	return t.querySegments(ctx, fmt.Sprintf("list zone wide segments zone %d type %s", zoneID, typ), query, zoneID, string(typ), excludeID)
}

func (t *tx) ListPodMappings(ctx context.Context, podID int64) ([]*segment.PodMapping, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, pod_id, segment_id FROM pod_segment_map WHERE pod_id = ? ORDER BY id`, podID)
	if err != nil {
		return nil, fmt.Errorf("list pod mappings for pod %d: %w", podID, err)
	}
	defer rows.Close()

	var result []*segment.PodMapping
	for rows.Next() {
		var m segment.PodMapping
		if err := rows.Scan(&m.ID, &m.PodID, &m.SegmentID); err != nil {
			return nil, fmt.Errorf("list pod mappings for pod %d: scan: %w", podID, err)
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

func (t *tx) ListAccountMappings(ctx context.Context, accountID int64) ([]*segment.AccountMapping, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, account_id, segment_id FROM account_segment_map WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account mappings for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var result []*segment.AccountMapping
	for rows.Next() {
		var m segment.AccountMapping
		if err := rows.Scan(&m.ID, &m.AccountID, &m.SegmentID); err != nil {
			return nil, fmt.Errorf("list account mappings for account %d: scan: %w", accountID, err)
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

func (t *tx) AccountForSegment(ctx context.Context, segmentID int64) (*segment.AccountMapping, error) {
	var m segment.AccountMapping
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, account_id, segment_id FROM account_segment_map WHERE segment_id = ?`, segmentID,
	).Scan(&m.ID, &m.AccountID, &m.SegmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("account for segment %d: %w", segmentID, err)
	}
	return &m, nil
}

func (t *tx) ListPodScoped(ctx context.Context, zoneID, podID int64, typ segment.Type, removed store.Removed) ([]*segment.Segment, error) {
	query := `SELECT DISTINCT ` + segmentColumns + ` FROM segment s
	          INNER JOIN pod_segment_map p ON p.segment_id = s.id
	          WHERE s.zone_id = ? AND s.type = ? AND p.pod_id = ?` + removedClause(removed) + `
	          ORDER BY s.id`
	return t.querySegments(ctx, fmt.Sprintf("list pod scoped segments zone %d pod %d", zoneID, podID), query, zoneID, string(typ), podID)
}

func (t *tx) HasPodMappedSegments(ctx context.Context, zoneID int64, typ segment.Type, removed store.Removed) (bool, error) {
	query := `SELECT EXISTS (
	            SELECT 1 FROM segment s
	            INNER JOIN pod_segment_map p ON p.segment_id = s.id
	            WHERE s.zone_id = ? AND s.type = ? AND p.pod_id IS NOT NULL` + removedClause(removed) + `
	          )`

	var exists bool
	if err := t.tx.QueryRowContext(ctx, query, zoneID, string(typ)).Scan(&exists); err != nil {
		return false, fmt.Errorf("pod mapped segments zone %d type %s: %w", zoneID, typ, err)
	}
	return exists, nil
}

func (t *tx) CountAddresses(ctx context.Context, zoneID, segmentID int64, allocatedOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM segment_address WHERE zone_id = ? AND segment_id = ?`
	if allocatedOnly {
		query += ` AND allocated_at IS NOT NULL`
	}

	var n int
	if err := t.tx.QueryRowContext(ctx, query, zoneID, segmentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count addresses zone %d segment %d: %w", zoneID, segmentID, err)
	}
	return n, nil
}

func scanAddress(row scanner) (*segment.Address, error) {
	var a segment.Address
	var accountID sql.NullInt64
	var allocatedAt sql.NullTime

	if err := row.Scan(&a.ID, &a.SegmentID, &a.ZoneID, &a.Address, &accountID, &allocatedAt); err != nil {
		return nil, err
	}
	if accountID.Valid {
		id := accountID.Int64
		a.AccountID = &id
	}
	if allocatedAt.Valid {
		ts := allocatedAt.Time
		a.AllocatedAt = &ts
	}
	return &a, nil
}

const addressColumns = `id, segment_id, zone_id, address, account_id, allocated_at`

func (t *tx) FindAddress(ctx context.Context, zoneID int64, address string) (*segment.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM segment_address
	          WHERE zone_id = ? AND address = ?
	          ORDER BY allocated_at IS NULL, id LIMIT 1`

	a, err := scanAddress(t.tx.QueryRowContext(ctx, query, zoneID, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("zone %d address %s: %w", zoneID, address, segment.ErrAddressNotFound)
		}
		return nil, fmt.Errorf("find address zone %d %s: %w", zoneID, address, err)
	}
	return a, nil
}

func (t *tx) CreateSegment(ctx context.Context, s *segment.Segment) (int64, error) {
	addrs, err := s.Addresses()
	if err != nil {
		return 0, err
	}

	if err := t.checkAddressesFree(ctx, s.ZoneID, addrs); err != nil {
		return 0, err
	}

	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO segment (zone_id, type, tag, gateway, netmask, range_start, range_end, network_id, removed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ZoneID, string(s.Type), s.Tag, s.Gateway, s.Netmask, s.RangeStart, s.RangeEnd, s.NetworkID, s.Removed, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create segment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO segment_address (segment_id, zone_id, address) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare address insert: %w", err)
	}
	defer stmt.Close()

	for _, addr := range addrs {
		if _, err := stmt.ExecContext(ctx, id, s.ZoneID, addr.String()); err != nil {
			return 0, fmt.Errorf("failed to add address %s to segment %d: %w", addr, id, err)
		}
	}

	s.ID = id
	s.CreatedAt = createdAt
	return id, nil
}

// checkAddressesFree fails when a live segment of the zone already holds one
// of addrs. A removed segment still holds the addresses it has handed out.
func (t *tx) checkAddressesFree(ctx context.Context, zoneID int64, addrs []netaddr.IP) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		SELECT a.segment_id FROM segment_address a
		JOIN segment s ON s.id = a.segment_id
		WHERE a.zone_id = ? AND a.address = ? AND (s.removed = 0 OR a.allocated_at IS NOT NULL)
		LIMIT 1`)
	if err != nil {
		return fmt.Errorf("prepare address overlap check: %w", err)
	}
	defer stmt.Close()

	for _, addr := range addrs {
		var owner int64
		err := stmt.QueryRowContext(ctx, zoneID, addr.String()).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("check address %s in zone %d: %w", addr, zoneID, err)
		}
		return fmt.Errorf("%w: address %s already belongs to segment %d in zone %d",
			segment.ErrInvalidSegment, addr, owner, zoneID)
	}
	return nil
}

func (t *tx) RemoveSegment(ctx context.Context, id int64) error {
	result, err := t.tx.ExecContext(ctx, `UPDATE segment SET removed = 1 WHERE id = ? AND removed = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to remove segment %d: %w", id, err)
	}
	return expectAffected(result, fmt.Errorf("segment %d: %w", id, segment.ErrNotFound))
}

func (t *tx) AddPodMapping(ctx context.Context, podID, segmentID int64) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `INSERT INTO pod_segment_map (pod_id, segment_id) VALUES (?, ?)`, podID, segmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to map segment %d to pod %d: %w", segmentID, podID, err)
	}
	return result.LastInsertId()
}

func (t *tx) RemovePodMapping(ctx context.Context, id int64) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM pod_segment_map WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove pod mapping %d: %w", id, err)
	}
	return expectAffected(result, fmt.Errorf("pod mapping %d: %w", id, segment.ErrNotFound))
}

func (t *tx) AddAccountMapping(ctx context.Context, accountID, segmentID int64) (int64, error) {
	existing, err := t.AccountForSegment(ctx, segmentID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("failed to dedicate segment %d to account %d: %w", segmentID, accountID, segment.ErrAlreadyDedicated)
	}

	result, err := t.tx.ExecContext(ctx, `INSERT INTO account_segment_map (account_id, segment_id) VALUES (?, ?)`, accountID, segmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to dedicate segment %d to account %d: %w", segmentID, accountID, err)
	}
	return result.LastInsertId()
}

func (t *tx) RemoveAccountMapping(ctx context.Context, segmentID int64) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM account_segment_map WHERE segment_id = ?`, segmentID)
	if err != nil {
		return fmt.Errorf("failed to release dedication of segment %d: %w", segmentID, err)
	}
	return expectAffected(result, fmt.Errorf("account mapping for segment %d: %w", segmentID, segment.ErrNotFound))
}

func (t *tx) DrawAddress(ctx context.Context, segmentID int64, accountID *int64) (*segment.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM segment_address
	          WHERE segment_id = ? AND allocated_at IS NULL
	          ORDER BY id LIMIT 1`

	a, err := scanAddress(t.tx.QueryRowContext(ctx, query, segmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("segment %d: %w", segmentID, segment.ErrNoFreeAddress)
		}
		return nil, fmt.Errorf("draw address from segment %d: %w", segmentID, err)
	}

	now := time.Now().UTC()
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE segment_address SET account_id = ?, allocated_at = ? WHERE id = ?`,
		accountID, now, a.ID,
	); err != nil {
		return nil, fmt.Errorf("draw address from segment %d: %w", segmentID, err)
	}

	a.AccountID = accountID
	a.AllocatedAt = &now
	return a, nil
}

func (t *tx) ReleaseAddress(ctx context.Context, zoneID int64, address string) (*segment.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM segment_address
	          WHERE zone_id = ? AND address = ? AND allocated_at IS NOT NULL
	          ORDER BY id LIMIT 1`

	a, err := scanAddress(t.tx.QueryRowContext(ctx, query, zoneID, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("zone %d address %s: %w", zoneID, address, segment.ErrAddressNotFound)
		}
		return nil, fmt.Errorf("release address zone %d %s: %w", zoneID, address, err)
	}

	if _, err := t.tx.ExecContext(ctx,
		`UPDATE segment_address SET account_id = NULL, allocated_at = NULL WHERE id = ?`, a.ID,
	); err != nil {
		return nil, fmt.Errorf("release address zone %d %s: %w", zoneID, address, err)
	}

	a.AccountID = nil
	a.AllocatedAt = nil
	return a, nil
}

func expectAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
