package norstore

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// NoAddr marks a command without an address phase.
const NoAddr = -1

// Transfer is one chip-select framed transaction: command byte, optional
// address phase, optional dummy bytes, then a data phase in one direction.
type Transfer struct {
	Cmd   byte
	Addr  int // NoAddr for register commands
	Dummy int
	Out   []byte // shifted out after the header
	In    []byte // filled from the bus after the header
}

// Bus shares one SPI connection between several chips, each behind its own
// chip-select line. Transact is atomic: only one chip is selected at a time.
type Bus struct {
	mu    sync.Mutex
	conn  spi.Conn
	cs    []gpio.PinOut
	addr4 []bool // chip uses 4-byte addresses
}

// NewBus deasserts every chip select and returns the bus.
func NewBus(conn spi.Conn, cs ...gpio.PinOut) (*Bus, error) {
	if len(cs) == 0 {
		return nil, errors.New("bus needs at least one chip select")
	}
	for i, p := range cs {
		if err := p.Out(gpio.High); err != nil {
			return nil, newError(KindTransport, fmt.Sprintf("deselect cs%d", i), NoAddr, err)
		}
	}
	return &Bus{conn: conn, cs: cs, addr4: make([]bool, len(cs))}, nil
}

// Chips is the number of chip selects on the bus.
func (b *Bus) Chips() int { return len(b.cs) }

// SetAddrWidth selects 3- or 4-byte address phases for chip.
func (b *Bus) SetAddrWidth(chip, width int) error {
	if chip < 0 || chip >= len(b.cs) {
		return errorf(KindOutOfBounds, "set address width", NoAddr, "no chip select %d", chip)
	}
	if width != 3 && width != 4 {
		return errorf(KindAlignment, "set address width", NoAddr, "unsupported width %d", width)
	}
	b.mu.Lock()
	b.addr4[chip] = width == 4
	b.mu.Unlock()
	return nil
}

// AddrWidth returns the address phase width of chip.
func (b *Bus) AddrWidth(chip int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if chip >= 0 && chip < len(b.addr4) && b.addr4[chip] {
		return 4
	}
	return 3
}

// Transact runs t against chip. The chip select is asserted before the
// header is shifted and released after the data phase, even on error.
func (b *Bus) Transact(chip int, t Transfer) (err error) {
	if chip < 0 || chip >= len(b.cs) {
		return errorf(KindOutOfBounds, "transact", t.Addr, "no chip select %d", chip)
	}
	if len(t.Out) > 0 && len(t.In) > 0 {
		return errorf(KindAlignment, "transact", t.Addr, "transfer cannot both send and receive data")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	hdr := 1
	if t.Addr != NoAddr {
		width := 3
		if b.addr4[chip] {
			width = 4
		}
		if t.Addr < 0 || t.Addr >= 1<<(8*width) {
			return errorf(KindOutOfBounds, "transact", t.Addr, "address out of %d-bit range", 8*width)
		}
		hdr += width
	}
	hdr += t.Dummy

	buf := make([]byte, hdr+len(t.Out)+len(t.In))
	buf[0] = t.Cmd
	if t.Addr != NoAddr {
		n := hdr - t.Dummy - 1
		for i := 0; i < n; i++ {
			buf[1+i] = byte(t.Addr >> (8 * (n - 1 - i)))
		}
	}
	copy(buf[hdr:], t.Out)

	cs := b.cs[chip]
	if err = cs.Out(gpio.Low); err != nil {
		return newError(KindTransport, "select", t.Addr, err)
	}
	defer func() {
		if csErr := cs.Out(gpio.High); csErr != nil && err == nil {
			err = newError(KindTransport, "deselect", t.Addr, csErr)
		}
	}()
	if err = b.conn.Tx(buf, buf); err != nil {
		return newError(KindTransport, fmt.Sprintf("tx 0x%02X", t.Cmd), t.Addr, err)
	}
	copy(t.In, buf[hdr:])
	return nil
}

func (b *Bus) String() string {
	return fmt.Sprintf("%s (%d chip selects)", b.conn, len(b.cs))
}
