package api

import (
	"github.com/veesix-networks/segmentd/pkg/models/segment"
)

type Status struct {
	State         string `json:"state"`
	ListenAddress string `json:"listenAddress"`
	Running       bool   `json:"running"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type AllocateRequest struct {
	Type      string `json:"type"`
	AccountID *int64 `json:"accountId,omitempty"`
}

type MappingRequest struct {
	SegmentID int64 `json:"segmentId"`
}

type SegmentList struct {
	Segments []*segment.Segment `json:"segments"`
}

type SegmentDetail struct {
	Segment *segment.Segment `json:"segment"`
	Usage   segment.Usage    `json:"usage"`
}

type DirectAttachStatus struct {
	ZoneID   int64 `json:"zoneId"`
	Untagged bool  `json:"untagged"`
}

type PodSegment struct {
	ZoneID  int64            `json:"zoneId"`
	PodID   int64            `json:"podId"`
	Segment *segment.Segment `json:"segment"`
}
