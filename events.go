package norstore

import "context"

// Descriptor locates one staged event blob.
type Descriptor struct {
	Start  int
	Length int
}

// EventStore appends variable-length serialized events into a region. The
// descriptor array lives only in RAM: blobs staged before a reset are not
// reachable afterwards.
type EventStore struct {
	flash   *Flash
	scanner *Scanner
	region  Region
	max     int

	descs  []Descriptor
	next   int // offset of the next blob
	erased int // offset past the last unit erased since Reset
}

func NewEventStore(f *Flash, sc *Scanner, r Region, maxDescriptors int) (*EventStore, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if f.Chip() != r.Chip {
		return nil, errorf(KindOutOfBounds, "event store", r.Start, "region %s is not on cs%d", r, f.Chip())
	}
	if maxDescriptors <= 0 {
		return nil, errorf(KindOutOfBounds, "event store", r.Start, "max descriptors must be positive")
	}
	return &EventStore{flash: f, scanner: sc, region: r, max: maxDescriptors}, nil
}

// Stage writes blob after the previous one and records its descriptor.
// Erase units are erased the first time a blob reaches into them. A failed
// Stage still consumes the space of blob, so a retry lands on bytes that
// were never programmed.
func (s *EventStore) Stage(blob []byte) (Descriptor, error) {
	if len(blob) == 0 {
		return Descriptor{}, errorf(KindOutOfBounds, "stage event", NoAddr, "empty event")
	}
	if len(s.descs) >= s.max {
		return Descriptor{}, errorf(KindRegionFull, "stage event", NoAddr, "%d descriptors in use", s.max)
	}
	if s.next+len(blob) > s.region.Length {
		return Descriptor{}, errorf(KindRegionFull, "stage event", s.region.Start+s.next, "%d bytes left in %s", s.region.Length-s.next, s.region.Name)
	}

	addr := s.region.Start + s.next
	if err := s.write(addr, blob); err != nil {
		s.next += len(blob)
		return Descriptor{}, err
	}
	d := Descriptor{Start: addr, Length: len(blob)}
	s.descs = append(s.descs, d)
	s.next += len(blob)
	return d, nil
}

// write erases the units of [addr, addr+len(blob)) not yet erased since
// Reset, then programs blob.
func (s *EventStore) write(addr int, blob []byte) error {
	unit := int(s.region.EraseSize)
	for u := addr / unit * unit; u < addr+len(blob); u += unit {
		if u-s.region.Start < s.erased {
			continue
		}
		if err := s.flash.Erase(s.region.EraseSize, u); err != nil {
			return err
		}
		s.erased = u - s.region.Start + unit
	}
	return s.flash.Program(addr, blob)
}

// Fetch reads the blob of descriptor i.
func (s *EventStore) Fetch(i int) ([]byte, error) {
	if i < 0 || i >= len(s.descs) {
		return nil, errorf(KindOutOfBounds, "fetch event", NoAddr, "no descriptor %d", i)
	}
	d := s.descs[i]
	buf := make([]byte, d.Length)
	if err := s.flash.Read(d.Start, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Descriptors returns a copy of the descriptor array.
func (s *EventStore) Descriptors() []Descriptor {
	return append([]Descriptor(nil), s.descs...)
}

func (s *EventStore) Len() int { return len(s.descs) }

// Used is the number of bytes staged.
func (s *EventStore) Used() int { return s.next }

// Reset clears the region and drops every descriptor.
func (s *EventStore) Reset(ctx context.Context) (ClearStats, error) {
	st, err := s.scanner.Clear(ctx, s.region)
	if err != nil {
		return st, err
	}
	s.descs = nil
	s.next = 0
	s.erased = 0
	return st, nil
}
