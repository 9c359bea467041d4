package segment

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Type string

const (
	TypeVirtual        Type = "virtual"
	TypeDirectAttached Type = "direct-attached"
)

// Untagged is the tag carried by segments that are not 802.1Q tagged.
const Untagged = "untagged"

func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeVirtual:
		return TypeVirtual, nil
	case TypeDirectAttached:
		return TypeDirectAttached, nil
	default:
		return "", fmt.Errorf("%w: unknown segment type %q", ErrInvalidSegment, s)
	}
}

func (t Type) Valid() bool {
	return t == TypeVirtual || t == TypeDirectAttached
}

func (t Type) String() string {
	return string(t)
}

// Segment is a VLAN/subnet address range owned by exactly one zone.
type Segment struct {
	ID         int64     `json:"id"`
	ZoneID     int64     `json:"zoneId"`
	Type       Type      `json:"type"`
	Tag        string    `json:"tag"`
	Gateway    string    `json:"gateway"`
	Netmask    string    `json:"netmask"`
	RangeStart string    `json:"rangeStart"`
	RangeEnd   string    `json:"rangeEnd"`
	NetworkID  *int64    `json:"networkId,omitempty"`
	Removed    bool      `json:"removed"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Group identifies a subnet family. Distinct segments with the same group
// describe the same subnet.
type Group struct {
	Tag     string
	Gateway string
	Netmask string
}

func (s *Segment) Group() Group {
	return Group{Tag: s.Tag, Gateway: s.Gateway, Netmask: s.Netmask}
}

func SameGroup(a, b *Segment) bool {
	return a.Group() == b.Group()
}

func (s *Segment) Untagged() bool {
	return strings.EqualFold(s.Tag, Untagged)
}

func (s *Segment) Validate() error {
	if s.ZoneID <= 0 {
		return fmt.Errorf("%w: zone id must be positive", ErrInvalidSegment)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unknown segment type %q", ErrInvalidSegment, s.Type)
	}
	if s.Tag == "" {
		return fmt.Errorf("%w: tag is required", ErrInvalidSegment)
	}
	addrs, err := s.Addresses()
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: range %s-%s holds no usable address", ErrInvalidSegment, s.RangeStart, s.RangeEnd)
	}
	return nil
}

func (s *Segment) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.Int64("segment_id", s.ID),
		slog.Int64("zone_id", s.ZoneID),
		slog.String("type", string(s.Type)),
		slog.String("tag", s.Tag),
	}
	if s.NetworkID != nil {
		attrs = append(attrs, slog.Int64("network_id", *s.NetworkID))
	}
	if s.Removed {
		attrs = append(attrs, slog.Bool("removed", true))
	}
	return attrs
}

type PodMapping struct {
	ID        int64 `json:"id"`
	PodID     int64 `json:"podId"`
	SegmentID int64 `json:"segmentId"`
}

type AccountMapping struct {
	ID        int64 `json:"id"`
	AccountID int64 `json:"accountId"`
	SegmentID int64 `json:"segmentId"`
}

// Usage is the occupancy of one segment as reported by the address table.
type Usage struct {
	Allocated int `json:"allocated"`
	Total     int `json:"total"`
}

func (u Usage) Empty() bool {
	return u.Allocated == 0
}

func (u Usage) Partial() bool {
	return u.Allocated > 0 && u.Allocated < u.Total
}

func (u Usage) Full() bool {
	return u.Allocated == u.Total
}

type Address struct {
	ID          int64      `json:"id"`
	SegmentID   int64      `json:"segmentId"`
	ZoneID      int64      `json:"zoneId"`
	Address     string     `json:"address"`
	AccountID   *int64     `json:"accountId,omitempty"`
	AllocatedAt *time.Time `json:"allocatedAt,omitempty"`
}

func (a *Address) Allocated() bool {
	return a.AllocatedAt != nil
}
