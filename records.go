package norstore

import (
	"context"
	"encoding/binary"
)

// RecordStore is an append-only log of fixed-length records in one region.
// Record i lives at r.Start + i*recordLength and carries i in its first four
// bytes. The store never wraps: once full it refuses appends until ClearAll.
type RecordStore struct {
	flash   *Flash
	scanner *Scanner
	region  Region
	recLen  int

	next uint32
	full bool
	// dirty is set when the slot at next may hold an interrupted write.
	dirty bool
}

func NewRecordStore(f *Flash, sc *Scanner, r Region, recordLength int) (*RecordStore, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := checkRecordLength(recordLength, r.EraseSize); err != nil {
		return nil, err
	}
	if f.Chip() != r.Chip {
		return nil, errorf(KindOutOfBounds, "record store", r.Start, "region %s is not on cs%d", r, f.Chip())
	}
	return &RecordStore{flash: f, scanner: sc, region: r, recLen: recordLength}, nil
}

func (s *RecordStore) Region() Region    { return s.region }
func (s *RecordStore) RecordLength() int { return s.recLen }

// Capacity is the number of whole records the region holds.
func (s *RecordStore) Capacity() int { return s.region.Length / s.recLen }

// Next is the index the next Append will write.
func (s *RecordStore) Next() uint32 { return s.next }

// Full reports the sticky full condition.
func (s *RecordStore) Full() bool { return s.full }

// LastIndex scans the region for the next index to write.
func (s *RecordStore) LastIndex() (uint32, error) {
	return s.scanner.LastFrameNumber(s.region, s.region.EraseSize, s.recLen)
}

// Recover sets the write position from LastIndex.
func (s *RecordStore) Recover() (uint32, error) {
	n, err := s.LastIndex()
	if err != nil {
		return 0, err
	}
	s.next = n
	s.full = int(n) >= s.Capacity()
	s.dirty = true // a reset may have cut the last program short
	return n, nil
}

// Append stamps rec with the next index, writes it and advances the index.
// After a failed write, or a Recover, the next slot is checked to be blank
// first: Append refuses with a KindTransport error rather than program over
// a torn record. ClearAll lifts the refusal.
func (s *RecordStore) Append(rec []byte) (uint32, error) {
	if s.full {
		return 0, errorf(KindRegionFull, "append", s.region.Start, "%s holds %d records", s.region.Name, s.Capacity())
	}
	if len(rec) != s.recLen {
		return 0, errorf(KindAlignment, "append", NoAddr, "record is %d bytes, want %d", len(rec), s.recLen)
	}
	idx := s.next
	if int(idx) >= s.Capacity() {
		s.full = true
		return 0, errorf(KindRegionFull, "append", s.region.Start, "%s holds %d records", s.region.Name, s.Capacity())
	}
	buf := make([]byte, s.recLen)
	copy(buf, rec)
	binary.LittleEndian.PutUint32(buf, idx)
	if s.dirty {
		if err := s.checkBlank(idx); err != nil {
			return 0, err
		}
	}
	if err := s.WriteAt(idx, buf); err != nil {
		s.dirty = true
		return 0, err
	}
	s.dirty = false
	s.next++
	return idx, nil
}

// checkBlank fails unless record index is erased. Slots on a unit boundary
// pass unread, WriteAt erases them anyway.
func (s *RecordStore) checkBlank(index uint32) error {
	addr, err := s.addr(index)
	if err != nil {
		return err
	}
	if addr%int(s.region.EraseSize) == 0 {
		return nil
	}
	buf := make([]byte, s.recLen)
	if err := s.flash.Read(addr, buf); err != nil {
		return err
	}
	if !isErased(buf) {
		return errorf(KindTransport, "append", addr, "record %d holds a torn write, clear the log", index)
	}
	return nil
}

// AppendFrame appends f and sets its frame number.
func (s *RecordStore) AppendFrame(f *Frame) (uint32, error) {
	b, err := f.MarshalBinary()
	if err != nil {
		return 0, err
	}
	idx, err := s.Append(b)
	if err != nil {
		return 0, err
	}
	f.FrameNumber = idx
	return idx, nil
}

// WriteAt programs rec as record index. The erase unit is erased first when
// the record starts on a unit boundary.
func (s *RecordStore) WriteAt(index uint32, rec []byte) error {
	if len(rec) != s.recLen {
		return errorf(KindAlignment, "write record", NoAddr, "record is %d bytes, want %d", len(rec), s.recLen)
	}
	addr, err := s.addr(index)
	if err != nil {
		return err
	}
	if addr%int(s.region.EraseSize) == 0 {
		if err := s.flash.Erase(s.region.EraseSize, addr); err != nil {
			return err
		}
	}
	return s.flash.Program(addr, rec)
}

// Read returns record index.
func (s *RecordStore) Read(index uint32) ([]byte, error) {
	addr, err := s.addr(index)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, s.recLen)
	if err := s.flash.Read(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadFrame returns record index decoded as a Frame.
func (s *RecordStore) ReadFrame(index uint32) (*Frame, error) {
	b, err := s.Read(index)
	if err != nil {
		return nil, err
	}
	f := &Frame{}
	if err := f.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return f, nil
}

// ClearAll blank-skip clears the region and restarts the log at index 0.
func (s *RecordStore) ClearAll(ctx context.Context) (ClearStats, error) {
	st, err := s.scanner.Clear(ctx, s.region)
	if err != nil {
		return st, err
	}
	s.next = 0
	s.full = false
	s.dirty = false
	return st, nil
}

func (s *RecordStore) addr(index uint32) (int, error) {
	off := int(index) * s.recLen
	if int(index) >= s.Capacity() {
		return 0, errorf(KindOutOfBounds, "record", s.region.Start+off, "index %d past %s capacity %d", index, s.region.Name, s.Capacity())
	}
	return s.region.Start + off, nil
}
