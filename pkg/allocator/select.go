package allocator

import (
	"github.com/veesix-networks/segmentd/pkg/models/segment"
)

// UsageFunc reports the occupancy of one candidate segment.
type UsageFunc func(s *segment.Segment) (segment.Usage, error)

// Select picks the segment new addresses should come from. Candidates are
// considered in the order given:
//
//   - the first partially used segment wins outright
//   - with none, an empty segment in the same subnet group as a full one is
//     preferred, scanning full segments in order
//   - otherwise the first empty segment is returned
//
// When no segment is partial or empty, Select returns ErrNoCapacity.
func Select(candidates []*segment.Segment, usage UsageFunc) (*segment.Segment, error) {
	var empty, full []*segment.Segment

	for _, s := range candidates {
		u, err := usage(s)
		if err != nil {
			return nil, err
		}
		switch {
		case u.Partial():
			return s, nil
		case u.Empty():
			empty = append(empty, s)
		case u.Full():
			full = append(full, s)
		}
	}

	if len(empty) == 0 {
		return nil, ErrNoCapacity
	}

	for _, f := range full {
		for _, e := range empty {
			if segment.SameGroup(f, e) {
				return e, nil
			}
		}
	}

	return empty[0], nil
}
