package norstore

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Flash commands:
//   - [N25Q32|Table 16: Command Set]
//   - [W25Q128|8.1.2 Instruction Set Table 1]
//   - [MX25R6435F|Table 6. Command Set]
const (
	flashCmdPowerUp             = 0xAB // Release Power Down
	flashCmdPowerDown           = 0xB9
	flashCmdReadID              = 0x9F
	flashCmdRead                = 0x03
	flashCmdFastRead            = 0x0B
	flashCmdWriteEnable         = 0x06
	flashCmdWriteDisable        = 0x04
	flashCmdPageProgram         = 0x02
	flashCmdErase4KB            = 0x20 // Subsector Erase / Sector Erase (4KB)
	flashCmdErase32KB           = 0x52 // Block Erase (32KB)
	flashCmdErase64KB           = 0xD8 // Sector Erase / Block Erase (64KB)
	flashCmdEraseChip           = 0xC7 // Bulk Erase / Chip Erase
	flashCmdEraseDie            = 0xC4
	flashCmdEnter4ByteMode      = 0xB7
	flashCmdReadStatusRegister  = 0x05
	flashCmdReadStatusRegister2 = 0x35
	flashCmdReadStatusRegister3 = 0x15
	flashPageSize               = 256
	flashFastReadDummyBytes     = 1
	defaultMaxTransfer          = 1
	defaultPollInterval         = 100 * time.Microsecond
	busyTimeoutFactor           = 2 // slack over the datasheet maximum
	highAddrBoundary            = 1 << 24

	// DefaultHighAddressCorrection is added to addresses at or past the
	// 24-bit boundary on the tracker board's 4-byte address parts.
	DefaultHighAddressCorrection = 131072
)

// FlashOptions tune the primitive layer.
type FlashOptions struct {
	// MaxTransfer caps the data bytes of a single bus transaction. The
	// tracker hardware runs with 1.
	MaxTransfer int
	// PollInterval is the status register polling period.
	PollInterval time.Duration
	// BusyTimeout overrides the per-operation timeouts derived from the
	// chip datasheet when non-zero.
	BusyTimeout time.Duration
	// HighAddressCorrection is added to every address at or past 1<<24
	// before it goes on the bus. It must be a multiple of 64KB so that page
	// and erase unit alignment survive the shift.
	HighAddressCorrection int

	Logger logrus.FieldLogger
}

// Flash is one NOR flash chip on a Bus.
type Flash struct {
	bus  *Bus
	chip int
	id   [3]byte // JEDEC ID of the flash chip
	pr   *chipParams

	maxTransfer  int
	pollInterval time.Duration
	busyTimeout  time.Duration
	highAddr     int
	log          logrus.FieldLogger
}

func NewFlash(bus *Bus, chip int, opts FlashOptions) *Flash {
	f := &Flash{
		bus:          bus,
		chip:         chip,
		maxTransfer:  opts.MaxTransfer,
		pollInterval: opts.PollInterval,
		busyTimeout:  opts.BusyTimeout,
		highAddr:     opts.HighAddressCorrection,
		log:          opts.Logger,
	}
	if f.maxTransfer <= 0 {
		f.maxTransfer = defaultMaxTransfer
	}
	if f.pollInterval <= 0 {
		f.pollInterval = defaultPollInterval
	}
	if f.log == nil {
		f.log = logrus.StandardLogger()
	}
	f.log = f.log.WithField("cs", chip)
	return f
}

// physical maps addr to the address sent to the chip. Callers and errors
// keep using addr.
func (f *Flash) physical(addr int) int {
	if addr >= highAddrBoundary {
		return addr + f.highAddr
	}
	return addr
}

// Chip is the chip select index of f.
func (f *Flash) Chip() int { return f.chip }

// Size is the capacity of an identified chip, or 0.
func (f *Flash) Size() int {
	if f.pr == nil {
		return 0
	}
	return f.pr.size
}

func (f *Flash) cmd(c byte) error {
	return f.bus.Transact(f.chip, Transfer{Cmd: c, Addr: NoAddr})
}

func (f *Flash) timeout(datasheet time.Duration) time.Duration {
	if f.busyTimeout > 0 {
		return f.busyTimeout
	}
	return busyTimeoutFactor * datasheet
}

func (f *Flash) PowerUp() error {
	if err := f.cmd(flashCmdPowerUp); err != nil {
		return err
	}
	time.Sleep(f.tRES1())
	return nil
}

func (f *Flash) PowerDown() error {
	if err := f.cmd(flashCmdPowerDown); err != nil {
		return err
	}
	time.Sleep(f.tDP())
	return nil
}

// ReadID returns the JEDEC ID of the flash chip and configures its parameters.
// It returns a non-empty name for known IDs. The extended device string is ignored.
func (f *Flash) ReadID() (id [3]byte, name string, err error) {
	buf := make([]byte, 3)
	if err = f.bus.Transact(f.chip, Transfer{Cmd: flashCmdReadID, Addr: NoAddr, In: buf}); err != nil {
		return
	}

	f.id = [3]byte(buf)
	if params, ok := knownFlash[f.id]; ok {
		f.pr = &params
		name = params.name
	}
	return f.id, name, err
}

// Identify reads the JEDEC ID and switches chips larger than 16MB into
// 4-byte address mode.
func (f *Flash) Identify() (name string, err error) {
	id, name, err := f.ReadID()
	if err != nil {
		return "", err
	}
	if name == "" {
		f.log.Warnf("unknown flash ID %X, using worst-case timings", id)
		return "", nil
	}
	if f.pr.addrWidth() == 4 {
		if err := f.Enter4ByteMode(); err != nil {
			return name, err
		}
	}
	return name, nil
}

// Enter4ByteMode switches the chip and the bus to 32-bit addresses.
func (f *Flash) Enter4ByteMode() error {
	if err := f.cmd(flashCmdEnter4ByteMode); err != nil {
		return err
	}
	return f.bus.SetAddrWidth(f.chip, 4)
}

// WriteEnable waits for any operation in progress, then sets the write
// enable latch. The chip clears the latch after every program or erase.
func (f *Flash) WriteEnable() error {
	if err := f.BusyWait(f.pollInterval, f.timeout(f.tErase(Erase64KB))); err != nil {
		return err
	}
	return f.cmd(flashCmdWriteEnable)
}

func (f *Flash) WriteDisable() error {
	return f.cmd(flashCmdWriteDisable)
}

// Erase erases the unit of the given size containing addr. It returns
// after the chip reports ready.
func (f *Flash) Erase(size EraseSize, addr int) error {
	op, ok := size.opcode()
	if !ok {
		return errorf(KindAlignment, "erase", addr, "unsupported erase size %d", int(size))
	}
	addr = size.align(addr)
	if err := f.WriteEnable(); err != nil {
		return err
	}
	if err := f.bus.Transact(f.chip, Transfer{Cmd: op, Addr: f.physical(addr)}); err != nil {
		return err
	}
	f.log.Debugf("erase %s @ %06x", size, addr)
	return f.BusyWait(f.pollInterval, f.timeout(f.tErase(size)))
}

// EraseRange erases size bytes starting from baseAddr by repeatedly calling
// Erase with 64KB sectors where aligned and 4KB subsectors for the rest.
func (f *Flash) EraseRange(baseAddr, size int) error {
	if baseAddr%int(Erase4KB) != 0 {
		return errorf(KindAlignment, "erase range", baseAddr, "base not aligned to %s", Erase4KB)
	}
	addr, end := baseAddr, baseAddr+size
	for addr < end {
		unit := Erase4KB
		if addr%int(Erase64KB) == 0 && end-addr >= int(Erase64KB) {
			unit = Erase64KB
		}
		if err := f.Erase(unit, addr); err != nil {
			return err
		}
		addr += int(unit)
	}
	return nil
}

// EraseChip bulk erases the entire chip.
func (f *Flash) EraseChip() error {
	if err := f.WriteEnable(); err != nil {
		return err
	}
	if err := f.cmd(flashCmdEraseChip); err != nil {
		return err
	}
	f.log.Info("chip erase started")
	return f.BusyWait(time.Millisecond, f.timeout(f.tEraseChip()))
}

// EraseDie erases the die containing addr on stacked-die parts.
func (f *Flash) EraseDie(addr int) error {
	if err := f.WriteEnable(); err != nil {
		return err
	}
	if err := f.bus.Transact(f.chip, Transfer{Cmd: flashCmdEraseDie, Addr: f.physical(addr)}); err != nil {
		return err
	}
	return f.BusyWait(time.Millisecond, f.timeout(f.tEraseChip()))
}

// chunk returns the length of the next transfer at addr. Programs never
// cross a page, the chip would wrap inside it. No transfer crosses the
// corrected boundary.
func (f *Flash) chunk(addr, remaining int, program bool) int {
	n := min(remaining, f.maxTransfer)
	if program {
		n = min(n, flashPageSize-addr%flashPageSize)
	}
	if f.highAddr != 0 && addr < highAddrBoundary {
		n = min(n, highAddrBoundary-addr)
	}
	return n
}

// Program writes buf at addr, split into transactions of at most
// MaxTransfer bytes. The target must have been erased.
func (f *Flash) Program(addr int, buf []byte) error {
	for off := 0; off < len(buf); {
		n := f.chunk(addr+off, len(buf)-off, true)
		if err := f.WriteEnable(); err != nil {
			return err
		}
		if err := f.bus.Transact(f.chip, Transfer{Cmd: flashCmdPageProgram, Addr: f.physical(addr + off), Out: buf[off : off+n]}); err != nil {
			return err
		}
		if err := f.BusyWait(f.pollInterval, f.timeout(f.tPP())); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// Read fills buf from addr, waiting for the chip to be idle before every
// transaction.
func (f *Flash) Read(addr int, buf []byte) error {
	for off := 0; off < len(buf); {
		n := f.chunk(addr+off, len(buf)-off, false)
		if err := f.BusyWait(f.pollInterval, f.timeout(f.tErase(Erase64KB))); err != nil {
			return err
		}
		if err := f.bus.Transact(f.chip, Transfer{Cmd: flashCmdRead, Addr: f.physical(addr + off), In: buf[off : off+n]}); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// FastRead is Read without the busy wait, using the fast read command. A
// read issued while the chip is busy returns stale data; use it only where
// that is tolerable.
func (f *Flash) FastRead(addr int, buf []byte) error {
	for off := 0; off < len(buf); {
		n := f.chunk(addr+off, len(buf)-off, false)
		t := Transfer{Cmd: flashCmdFastRead, Addr: f.physical(addr + off), Dummy: flashFastReadDummyBytes, In: buf[off : off+n]}
		if err := f.bus.Transact(f.chip, t); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// BusyWait waits for the flash to become ready by polling the status
// register's bit 0 with specified intervals. It gives up with a KindTimeout
// error after timeout.
func (f *Flash) BusyWait(interval, timeout time.Duration) error {
	// Fast path
	sr, err := f.ReadStatusRegister()
	if err != nil {
		return err
	}
	if !sr.Busy() {
		return nil
	}

	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for polls := int(timeout / interval); polls >= 0; polls-- {
		<-ticker.C
		sr, err := f.ReadStatusRegister()
		if err != nil {
			return err
		}
		if !sr.Busy() {
			return nil
		}
	}
	return errorf(KindTimeout, "busy wait", NoAddr, "chip %d still busy after %v", f.chip, timeout)
}

// ReadStatus reads status register n (1, 2 or 3).
func (f *Flash) ReadStatus(n int) (StatusRegister, error) {
	var op byte
	switch n {
	case 1:
		op = flashCmdReadStatusRegister
	case 2:
		op = flashCmdReadStatusRegister2
	case 3:
		op = flashCmdReadStatusRegister3
	default:
		return 0, errorf(KindOutOfBounds, "read status", NoAddr, "no status register %d", n)
	}
	buf := []byte{0}
	if err := f.bus.Transact(f.chip, Transfer{Cmd: op, Addr: NoAddr, In: buf}); err != nil {
		return 0, err
	}
	return StatusRegister(buf[0]), nil
}

func (f *Flash) ReadStatusRegister() (StatusRegister, error) {
	return f.ReadStatus(1)
}

func (f *Flash) String() string {
	name := "unknown"
	if f.pr != nil {
		name = f.pr.name
	}
	return fmt.Sprintf("cs%d %X %s", f.chip, f.id, name)
}
