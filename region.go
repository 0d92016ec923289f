package norstore

import "fmt"

// EraseSize is an erase granularity of the flash.
type EraseSize int

const (
	Erase4KB  EraseSize = 4 << 10  // subsector
	Erase32KB EraseSize = 32 << 10 // half block
	Erase64KB EraseSize = 64 << 10 // sector / block
)

func (s EraseSize) opcode() (byte, bool) {
	switch s {
	case Erase4KB:
		return flashCmdErase4KB, true
	case Erase32KB:
		return flashCmdErase32KB, true
	case Erase64KB:
		return flashCmdErase64KB, true
	}
	return 0, false
}

// Valid reports whether s is one of the supported granularities.
func (s EraseSize) Valid() bool {
	_, ok := s.opcode()
	return ok
}

func (s EraseSize) String() string {
	if s.Valid() {
		return fmt.Sprintf("%dKB", int(s)>>10)
	}
	return fmt.Sprintf("EraseSize(%d)", int(s))
}

// align rounds addr down to the erase unit.
func (s EraseSize) align(addr int) int {
	return addr &^ (int(s) - 1)
}

// Region is a contiguous address range on one chip.
type Region struct {
	Name      string
	Chip      int // chip select index
	Start     int
	Length    int
	EraseSize EraseSize
}

// End is the first address past the region.
func (r Region) End() int { return r.Start + r.Length }

// Units is the number of erase units touched by the region.
func (r Region) Units() int {
	return (r.Length + int(r.EraseSize) - 1) / int(r.EraseSize)
}

func (r Region) String() string {
	return fmt.Sprintf("%s[cs%d 0x%06X+0x%X/%s]", r.Name, r.Chip, r.Start, r.Length, r.EraseSize)
}

// Validate checks the region on its own.
func (r Region) Validate() error {
	if !r.EraseSize.Valid() {
		return errorf(KindAlignment, "region "+r.Name, r.Start, "unsupported erase size %d", int(r.EraseSize))
	}
	if r.Start < 0 || r.Length <= 0 {
		return errorf(KindOutOfBounds, "region "+r.Name, r.Start, "invalid length %d", r.Length)
	}
	if r.Start%int(r.EraseSize) != 0 {
		return errorf(KindAlignment, "region "+r.Name, r.Start, "start not aligned to %s", r.EraseSize)
	}
	return nil
}

func (r Region) overlaps(o Region) bool {
	return r.Chip == o.Chip && r.Start < o.End() && o.Start < r.End()
}

// Layout is the set of regions used by Storage.
type Layout struct {
	Log    Region
	Params Region
	Device Region
	Events Region

	RecordLength   int // datalog record length
	BlockLength    int // parameter and device block length
	MaxDescriptors int // event descriptor array capacity
}

// DefaultLayout is the tracker's production flash layout. The log lives on
// chip 0; settings and staged events share chip 1.
func DefaultLayout() Layout {
	return Layout{
		Log:    Region{Name: "log", Chip: 0, Start: 0x000000, Length: 0x7FFFFF, EraseSize: Erase4KB},
		Params: Region{Name: "params", Chip: 1, Start: 0x010000, Length: 0xFFFF, EraseSize: Erase4KB},
		Device: Region{Name: "device", Chip: 1, Start: 0x020000, Length: 0x1000, EraseSize: Erase4KB},
		Events: Region{Name: "events", Chip: 1, Start: 0x100000, Length: 0x100000, EraseSize: Erase4KB},

		RecordLength:   FrameSize,
		BlockLength:    BlockSize,
		MaxDescriptors: 64,
	}
}

// Regions returns the layout's regions in a fixed order.
func (l Layout) Regions() []Region {
	return []Region{l.Log, l.Params, l.Device, l.Events}
}

// Validate checks every region and that no two regions on the same chip
// overlap.
func (l Layout) Validate() error {
	rs := l.Regions()
	for i, r := range rs {
		if err := r.Validate(); err != nil {
			return err
		}
		for _, o := range rs[:i] {
			if r.overlaps(o) {
				return errorf(KindAlignment, "layout", r.Start, "region %s overlaps %s", r, o)
			}
		}
	}
	if err := checkRecordLength(l.RecordLength, l.Log.EraseSize); err != nil {
		return err
	}
	if l.BlockLength <= 0 || l.BlockLength > l.Params.Length || l.BlockLength > l.Device.Length {
		return errorf(KindAlignment, "layout", -1, "block length %d does not fit", l.BlockLength)
	}
	if l.MaxDescriptors <= 0 {
		return errorf(KindOutOfBounds, "layout", -1, "max descriptors must be positive")
	}
	return nil
}

func checkRecordLength(n int, unit EraseSize) error {
	if n < frameNumberSize || n&(n-1) != 0 {
		return errorf(KindAlignment, "record length", -1, "%d is not a power of two >= %d", n, frameNumberSize)
	}
	if int(unit)%n != 0 {
		return errorf(KindAlignment, "record length", -1, "%d does not divide %s", n, unit)
	}
	return nil
}
