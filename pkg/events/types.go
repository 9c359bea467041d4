package events

type AllocatedEvent struct {
	ZoneID    int64
	SegmentID int64
	Type      string
	Tag       string
	Address   string
	AccountID *int64
}

type ReleasedEvent struct {
	ZoneID    int64
	SegmentID int64
	Address   string
}

// ExhaustedEvent is published when a zone has no segment of the type left
// with free addresses.
type ExhaustedEvent struct {
	ZoneID int64
	Type   string
}

type ScopeChange string

const (
	ScopePodMapped       ScopeChange = "pod-mapped"
	ScopePodUnmapped     ScopeChange = "pod-unmapped"
	ScopeDedicated       ScopeChange = "dedicated"
	ScopeDedicationEnded ScopeChange = "dedication-ended"
	ScopeSegmentCreated  ScopeChange = "segment-created"
	ScopeSegmentRemoved  ScopeChange = "segment-removed"
)

type ScopeChangedEvent struct {
	Change    ScopeChange
	SegmentID int64
	PodID     int64
	AccountID int64
}
