package segment

import (
	"errors"
	"testing"
)

func TestParseType(t *testing.T) {
	typ, err := ParseType("Direct-Attached")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typ != TypeDirectAttached {
		t.Fatalf("got %q, want %q", typ, TypeDirectAttached)
	}

	_, err = ParseType("bogus")
	if !errors.Is(err, ErrInvalidSegment) {
		t.Fatalf("got %v, want ErrInvalidSegment", err)
	}
}

func TestSameGroup(t *testing.T) {
	a := &Segment{ID: 1, Tag: "10", Gateway: "10.0.0.1", Netmask: "255.255.255.0"}
	b := &Segment{ID: 2, Tag: "10", Gateway: "10.0.0.1", Netmask: "255.255.255.0"}
	c := &Segment{ID: 3, Tag: "20", Gateway: "10.0.0.1", Netmask: "255.255.255.0"}

	if !SameGroup(a, b) {
		t.Fatal("expected segments with identical tag/gateway/netmask to share a group")
	}
	if SameGroup(a, c) {
		t.Fatal("expected different tags to split groups")
	}
}

func TestUsageClassification(t *testing.T) {
	if !(Usage{Allocated: 0, Total: 4}).Empty() {
		t.Fatal("0/4 should be empty")
	}
	if !(Usage{Allocated: 2, Total: 4}).Partial() {
		t.Fatal("2/4 should be partial")
	}
	if !(Usage{Allocated: 4, Total: 4}).Full() {
		t.Fatal("4/4 should be full")
	}
	if (Usage{Allocated: 4, Total: 4}).Partial() {
		t.Fatal("4/4 should not be partial")
	}
}

func TestAddressesSkipsGateway(t *testing.T) {
	s := &Segment{
		Gateway:    "10.0.0.1",
		Netmask:    "255.255.255.0",
		RangeStart: "10.0.0.1",
		RangeEnd:   "10.0.0.4",
	}
	addrs, err := s.Addresses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(addrs) != 3 {
		t.Fatalf("got %d addresses, want 3", len(addrs))
	}
	if addrs[0].String() != "10.0.0.2" {
		t.Fatalf("first address = %s, want 10.0.0.2", addrs[0])
	}
}

func TestAddressesInvalidRange(t *testing.T) {
	s := &Segment{
		Gateway:    "10.0.0.1",
		Netmask:    "255.255.255.0",
		RangeStart: "10.0.0.9",
		RangeEnd:   "10.0.0.2",
	}
	if _, err := s.Addresses(); !errors.Is(err, ErrInvalidSegment) {
		t.Fatalf("got %v, want ErrInvalidSegment", err)
	}
}

func TestAddressesBadNetmask(t *testing.T) {
	s := &Segment{
		Gateway:    "10.0.0.1",
		Netmask:    "255.0.255.0",
		RangeStart: "10.0.0.2",
		RangeEnd:   "10.0.0.3",
	}
	if _, err := s.Addresses(); !errors.Is(err, ErrInvalidSegment) {
		t.Fatalf("got %v, want ErrInvalidSegment", err)
	}
}

func TestFromPrefix(t *testing.T) {
	s := &Segment{}
	if err := s.FromPrefix("192.168.10.0/29"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Gateway != "192.168.10.1" {
		t.Fatalf("gateway = %s, want 192.168.10.1", s.Gateway)
	}
	if s.Netmask != "255.255.255.248" {
		t.Fatalf("netmask = %s, want 255.255.255.248", s.Netmask)
	}
	if s.RangeStart != "192.168.10.2" || s.RangeEnd != "192.168.10.6" {
		t.Fatalf("range = %s-%s, want 192.168.10.2-192.168.10.6", s.RangeStart, s.RangeEnd)
	}
}

func TestFromPrefixKeepsExplicitGateway(t *testing.T) {
	s := &Segment{Gateway: "192.168.10.6"}
	if err := s.FromPrefix("192.168.10.0/29"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.RangeStart != "192.168.10.1" {
		t.Fatalf("range start = %s, want 192.168.10.1", s.RangeStart)
	}
	addrs, err := s.Addresses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(addrs) != 5 {
		t.Fatalf("got %d addresses, want 5", len(addrs))
	}
}

func TestValidate(t *testing.T) {
	s := &Segment{ZoneID: 1, Type: TypeVirtual, Tag: "10"}
	if err := s.FromPrefix("10.1.0.0/24"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.ZoneID = 0
	if err := s.Validate(); !errors.Is(err, ErrInvalidSegment) {
		t.Fatalf("got %v, want ErrInvalidSegment", err)
	}
}
