package segment

import (
	"fmt"
	"net"

	"inet.af/netaddr"
)

// MaxAddresses bounds how many address rows a single segment may expand to.
const MaxAddresses = 1 << 16

// Addresses expands the segment's range into the addresses it can hand out.
// The gateway is never part of the result.
func (s *Segment) Addresses() ([]netaddr.IP, error) {
	gw, err := netaddr.ParseIP(s.Gateway)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway %q: %v", ErrInvalidSegment, s.Gateway, err)
	}
	if _, err := parseNetmask(s.Netmask); err != nil {
		return nil, err
	}

	start, err := netaddr.ParseIP(s.RangeStart)
	if err != nil {
		return nil, fmt.Errorf("%w: range start %q: %v", ErrInvalidSegment, s.RangeStart, err)
	}
	end, err := netaddr.ParseIP(s.RangeEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: range end %q: %v", ErrInvalidSegment, s.RangeEnd, err)
	}

	r := netaddr.IPRangeFrom(start, end)
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: range %s-%s", ErrInvalidSegment, s.RangeStart, s.RangeEnd)
	}

	var addrs []netaddr.IP
	for addr := r.From(); addr.Compare(r.To()) <= 0; addr = addr.Next() {
		if addr == gw {
			continue
		}
		if len(addrs) == MaxAddresses {
			return nil, fmt.Errorf("%w: range %s exceeds %d addresses", ErrInvalidSegment, r, MaxAddresses)
		}
		addrs = append(addrs, addr)
		if addr == r.To() {
			break
		}
	}
	return addrs, nil
}

// FromPrefix fills gateway, netmask and range from a CIDR when they are not
// already set. The first usable address becomes the gateway.
func (s *Segment) FromPrefix(cidr string) error {
	prefix, err := netaddr.ParseIPPrefix(cidr)
	if err != nil {
		return fmt.Errorf("%w: network %q: %v", ErrInvalidSegment, cidr, err)
	}
	prefix = prefix.Masked()
	if !prefix.IP().Is4() {
		return fmt.Errorf("%w: network %q is not IPv4", ErrInvalidSegment, cidr)
	}

	first := prefix.Range().From().Next()
	last := prefix.Range().To().Prior()

	if s.Gateway == "" {
		s.Gateway = first.String()
	}
	if s.Netmask == "" {
		s.Netmask = net.IP(net.CIDRMask(int(prefix.Bits()), 32)).String()
	}
	if s.RangeStart == "" {
		start := first
		if s.Gateway == first.String() {
			start = first.Next()
		}
		s.RangeStart = start.String()
	}
	if s.RangeEnd == "" {
		s.RangeEnd = last.String()
	}
	return nil
}

func parseNetmask(mask string) (int, error) {
	ip := net.ParseIP(mask).To4()
	if ip == nil {
		return 0, fmt.Errorf("%w: netmask %q", ErrInvalidSegment, mask)
	}
	ones, bits := net.IPMask(ip).Size()
	if bits == 0 {
		return 0, fmt.Errorf("%w: netmask %q is not contiguous", ErrInvalidSegment, mask)
	}
	return ones, nil
}
