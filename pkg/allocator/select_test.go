package allocator

import (
	"errors"
	"testing"

	"github.com/veesix-networks/segmentd/pkg/models/segment"
)

func seg(id int64, tag, gw string) *segment.Segment {
	return &segment.Segment{
		ID:      id,
		ZoneID:  1,
		Type:    segment.TypeVirtual,
		Tag:     tag,
		Gateway: gw,
		Netmask: "255.255.255.0",
	}
}

func usageTable(u map[int64]segment.Usage) UsageFunc {
	return func(s *segment.Segment) (segment.Usage, error) {
		return u[s.ID], nil
	}
}

func TestSelectPrefersPartialRegardlessOfOrder(t *testing.T) {
	usage := usageTable(map[int64]segment.Usage{
		1: {Allocated: 0, Total: 10},
		2: {Allocated: 10, Total: 10},
		3: {Allocated: 4, Total: 10},
	})

	orders := [][]*segment.Segment{
		{seg(1, "10", "10.0.0.1"), seg(2, "10", "10.0.0.1"), seg(3, "20", "10.0.1.1")},
		{seg(3, "20", "10.0.1.1"), seg(1, "10", "10.0.0.1"), seg(2, "10", "10.0.0.1")},
		{seg(2, "10", "10.0.0.1"), seg(3, "20", "10.0.1.1"), seg(1, "10", "10.0.0.1")},
	}
	for i, candidates := range orders {
		got, err := Select(candidates, usage)
		if err != nil {
			t.Fatalf("order %d: unexpected error: %v", i, err)
		}
		if got.ID != 3 {
			t.Fatalf("order %d: got segment %d, want partial segment 3", i, got.ID)
		}
	}
}

func TestSelectFirstPartialWins(t *testing.T) {
	usage := usageTable(map[int64]segment.Usage{
		1: {Allocated: 9, Total: 10},
		2: {Allocated: 1, Total: 10},
	})
	got, err := Select([]*segment.Segment{seg(1, "10", "10.0.0.1"), seg(2, "20", "10.0.1.1")}, usage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 1 {
		t.Fatalf("got segment %d, want 1", got.ID)
	}
}

func TestSelectExhausted(t *testing.T) {
	usage := usageTable(map[int64]segment.Usage{
		1: {Allocated: 10, Total: 10},
		2: {Allocated: 5, Total: 5},
	})
	_, err := Select([]*segment.Segment{seg(1, "10", "10.0.0.1"), seg(2, "20", "10.0.1.1")}, usage)
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("got %v, want ErrNoCapacity", err)
	}
}

func TestSelectNoCandidates(t *testing.T) {
	_, err := Select(nil, usageTable(nil))
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("got %v, want ErrNoCapacity", err)
	}
}

func TestSelectSubnetAffinity(t *testing.T) {
	s1 := seg(1, "10", "10.0.0.1")
	s3 := seg(3, "20", "10.0.1.1")
	s2 := seg(2, "10", "10.0.0.1")
	usage := usageTable(map[int64]segment.Usage{
		1: {Allocated: 254, Total: 254},
		2: {Allocated: 0, Total: 254},
		3: {Allocated: 0, Total: 254},
	})

	// s3 precedes s2 so the first-empty fallback would pick the wrong one.
	got, err := Select([]*segment.Segment{s1, s3, s2}, usage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 2 {
		t.Fatalf("got segment %d, want 2", got.ID)
	}
}

func TestSelectAffinityScansFullSegmentsInOrder(t *testing.T) {
	usage := usageTable(map[int64]segment.Usage{
		1: {Allocated: 8, Total: 8},
		2: {Allocated: 8, Total: 8},
		3: {Allocated: 0, Total: 8},
		4: {Allocated: 0, Total: 8},
	})
	candidates := []*segment.Segment{
		seg(1, "30", "10.0.3.1"),
		seg(2, "40", "10.0.4.1"),
		seg(3, "40", "10.0.4.1"),
		seg(4, "30", "10.0.3.1"),
	}
	got, err := Select(candidates, usage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 4 {
		t.Fatalf("got segment %d, want 4 (matches first full segment)", got.ID)
	}
}

func TestSelectAffinityNeedsFullGroupMatch(t *testing.T) {
	full := seg(1, "10", "10.0.0.1")
	otherMask := seg(2, "10", "10.0.0.1")
	otherMask.Netmask = "255.255.255.128"
	first := seg(3, "50", "10.0.5.1")
	usage := usageTable(map[int64]segment.Usage{
		1: {Allocated: 4, Total: 4},
		2: {Allocated: 0, Total: 4},
		3: {Allocated: 0, Total: 4},
	})

	got, err := Select([]*segment.Segment{full, first, otherMask}, usage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 3 {
		t.Fatalf("got segment %d, want fallback 3", got.ID)
	}
}

func TestSelectFallbackIsDeterministic(t *testing.T) {
	candidates := []*segment.Segment{seg(7, "70", "10.0.7.1"), seg(8, "80", "10.0.8.1")}
	usage := usageTable(map[int64]segment.Usage{
		7: {Allocated: 0, Total: 6},
		8: {Allocated: 0, Total: 6},
	})

	for i := 0; i < 50; i++ {
		got, err := Select(candidates, usage)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != 7 {
			t.Fatalf("call %d: got segment %d, want 7", i, got.ID)
		}
	}
}

func TestSelectPropagatesUsageError(t *testing.T) {
	boom := errors.New("count failed")
	_, err := Select([]*segment.Segment{seg(1, "10", "10.0.0.1")}, func(*segment.Segment) (segment.Usage, error) {
		return segment.Usage{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want usage error", err)
	}
}

func TestNoCapacityErrorMessage(t *testing.T) {
	err := error(&NoCapacityError{ZoneID: 4, Type: segment.TypeDirectAttached})
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatal("NoCapacityError should match ErrNoCapacity")
	}
	want := "no available network segment of type direct-attached in zone 4"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}
