package norstore

import (
	"context"
	"encoding/binary"

	"github.com/sirupsen/logrus"
)

const blankSampleSize = 16

// Watchdog is kicked during long erase loops. *watchdog.Watchdog from
// u-root satisfies it.
type Watchdog interface {
	KeepAlive() error
}

type nopWatchdog struct{}

func (nopWatchdog) KeepAlive() error { return nil }

// ScanOptions configure a Scanner.
type ScanOptions struct {
	// Verify makes LastFrameNumber check every record up to the write
	// position instead of trusting the first record of each full sector.
	Verify   bool
	Watchdog Watchdog
	Logger   logrus.FieldLogger
}

// Scanner walks a region of one chip to clear it or to find the write
// position of a record log.
type Scanner struct {
	flash *Flash
	opts  ScanOptions
	log   logrus.FieldLogger
}

func NewScanner(f *Flash, opts ScanOptions) *Scanner {
	if opts.Watchdog == nil {
		opts.Watchdog = nopWatchdog{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Scanner{flash: f, opts: opts, log: opts.Logger}
}

// ClearStats reports what Clear did.
type ClearStats struct {
	Erased  int
	Skipped int
}

// Clear erases every erase unit of r that does not look blank. A unit is
// blank when the 16 bytes at its start average 0xFF; stale data outside
// that window is not detected. This trades completeness for erase cycles.
func (s *Scanner) Clear(ctx context.Context, r Region) (ClearStats, error) {
	var st ClearStats
	if err := r.Validate(); err != nil {
		return st, err
	}
	sample := make([]byte, blankSampleSize)
	for addr := r.Start; addr < r.End(); addr += int(r.EraseSize) {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if err := s.flash.Read(addr, sample); err != nil {
			return st, err
		}
		if mean(sample) == 0xFF {
			st.Skipped++
		} else {
			if err := s.flash.Erase(r.EraseSize, addr); err != nil {
				return st, err
			}
			st.Erased++
		}
		if err := s.opts.Watchdog.KeepAlive(); err != nil {
			s.log.WithError(err).Warn("watchdog keepalive failed")
		}
	}
	s.log.Debugf("clear %s: erased %d, skipped %d", r, st.Erased, st.Skipped)
	return st, nil
}

func mean(b []byte) int {
	sum := 0
	for _, v := range b {
		sum += int(v)
	}
	return sum / len(b)
}

// LastFrameNumber returns the index of the next record to write in r, a
// log of recordLength-byte records whose first four bytes hold their index.
//
// The coarse phase steps one subSector at a time while the sector's first
// record carries the expected index. The fine phase then steps record by
// record through the last started sector while the index stays sequential.
// An erased region yields 0.
func (s *Scanner) LastFrameNumber(r Region, subSector EraseSize, recordLength int) (uint32, error) {
	if err := checkRecordLength(recordLength, subSector); err != nil {
		return 0, err
	}
	fps := int(subSector) / recordLength
	capacity := r.Length / recordLength

	started := 0
	for started*fps < capacity {
		v, err := s.frameNumber(r, recordLength, started*fps)
		if err != nil {
			return 0, err
		}
		if v != uint32(started*fps) {
			break
		}
		started++
	}
	if started == 0 {
		return 0, nil
	}

	total := (started - 1) * fps
	if s.opts.Verify {
		total = 0
	}
	limit := min(started*fps, capacity)
	for total < limit {
		v, err := s.frameNumber(r, recordLength, total)
		if err != nil {
			return 0, err
		}
		if v != uint32(total) {
			break
		}
		total++
	}
	s.log.Debugf("recover %s: %d sectors started, next frame %d", r, started, total)
	return uint32(total), nil
}

func (s *Scanner) frameNumber(r Region, recordLength, index int) (uint32, error) {
	var buf [frameNumberSize]byte
	if err := s.flash.Read(r.Start+index*recordLength, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
