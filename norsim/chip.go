// Package norsim simulates SPI NOR flash chips behind a periph.io spi.Conn.
//
// Chips keep NOR semantics: erased bytes read 0xFF, programming can only
// clear bits, programs and erases need the write enable latch and clear it.
package norsim

import (
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

const pageSize = 256

// Chip is one simulated flash chip.
type Chip struct {
	mu  sync.Mutex
	id  [3]byte
	mem []byte
	cs  *gpiotest.Pin

	wel   bool
	addr4 bool
	busy  int

	// BusyPolls is the number of status reads reporting busy after each
	// program or erase.
	BusyPolls int
	// Stuck keeps the busy bit set forever.
	Stuck bool

	erases       []int
	programs     int
	ignored      int
	busyAccess   int
	transactions int
}

// NewChip returns an erased chip of size bytes answering id to JEDEC ID reads.
func NewChip(name string, id [3]byte, size int) *Chip {
	c := &Chip{
		id:  id,
		mem: make([]byte, size),
		cs:  &gpiotest.Pin{N: name, L: gpio.High},
	}
	for i := range c.mem {
		c.mem[i] = 0xFF
	}
	return c
}

// CS is the chip select line to hand to the bus under test.
func (c *Chip) CS() *gpiotest.Pin { return c.cs }

func (c *Chip) Size() int { return len(c.mem) }

// Bytes returns a copy of n bytes at addr.
func (c *Chip) Bytes(addr, n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.mem[addr:addr+n]...)
}

// Poke overwrites memory without NOR semantics, e.g. to fake a torn write.
func (c *Chip) Poke(addr int, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.mem[addr:], b)
}

// Erases returns the addresses of every erase command since the last
// ResetStats, in order.
func (c *Chip) Erases() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.erases...)
}

// Programs is the number of accepted page program commands.
func (c *Chip) Programs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.programs
}

// Ignored counts program and erase commands dropped for lack of write enable.
func (c *Chip) Ignored() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ignored
}

// BusyAccesses counts reads and writes issued while the chip was busy.
func (c *Chip) BusyAccesses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyAccess
}

// Transactions counts chip-select framed transactions.
func (c *Chip) Transactions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transactions
}

func (c *Chip) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.erases = nil
	c.programs = 0
	c.ignored = 0
	c.busyAccess = 0
	c.transactions = 0
}

// ReadFrom loads a raw image into the chip, starting at address 0.
func (c *Chip) ReadFrom(r io.Reader) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := io.ReadFull(r, c.mem)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}
	return int64(n), err
}

// WriteTo dumps the chip memory.
func (c *Chip) WriteTo(w io.Writer) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := w.Write(c.mem)
	return int64(n), err
}

func (c *Chip) isBusy() bool {
	return c.Stuck || c.busy > 0
}

// tx executes one framed transaction. w and r may alias.
func (c *Chip) tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions++

	if len(w) == 0 {
		return nil
	}
	cmd := w[0]
	switch cmd {
	case 0x05: // read status register 1
		var sr byte
		if c.isBusy() {
			sr |= 0x01
			if c.busy > 0 {
				c.busy--
			}
		}
		if c.wel {
			sr |= 0x02
		}
		fill(r[1:], sr)
	case 0x35, 0x15:
		fill(r[1:], 0)
	case 0x9F:
		copy(r[1:], c.id[:])
	case 0x06:
		c.wel = true
	case 0x04:
		c.wel = false
	case 0xB7:
		c.addr4 = true
	case 0xE9:
		c.addr4 = false
	case 0xAB, 0xB9:
	case 0x03, 0x0B:
		dummy := 0
		if cmd == 0x0B {
			dummy = 1
		}
		addr, data, err := c.split(w, dummy)
		if err != nil {
			return err
		}
		if c.isBusy() {
			c.busyAccess++
		}
		out := r[len(w)-len(data):]
		for i := range out {
			out[i] = c.mem[(addr+i)%len(c.mem)]
		}
	case 0x02:
		addr, data, err := c.split(w, 0)
		if err != nil {
			return err
		}
		if !c.writable() {
			return nil
		}
		page := addr &^ (pageSize - 1)
		for i, b := range data {
			a := page + (addr-page+i)%pageSize
			c.mem[a%len(c.mem)] &= b
		}
		c.programs++
		c.done()
	case 0x20, 0x52, 0xD8:
		addr, _, err := c.split(w, 0)
		if err != nil {
			return err
		}
		if !c.writable() {
			return nil
		}
		size := map[byte]int{0x20: 4 << 10, 0x52: 32 << 10, 0xD8: 64 << 10}[cmd]
		start := addr &^ (size - 1)
		fill(c.mem[start:min(start+size, len(c.mem))], 0xFF)
		c.erases = append(c.erases, start)
		c.done()
	case 0xC7, 0x60, 0xC4:
		if !c.writable() {
			return nil
		}
		fill(c.mem, 0xFF)
		c.erases = append(c.erases, 0)
		c.done()
	default:
		return fmt.Errorf("norsim: %s: unsupported command 0x%02X", c.cs.N, cmd)
	}
	return nil
}

func (c *Chip) writable() bool {
	if c.isBusy() {
		c.busyAccess++
	}
	if !c.wel {
		c.ignored++
		return false
	}
	return true
}

func (c *Chip) done() {
	c.wel = false
	c.busy = c.BusyPolls
}

// split decodes the address phase of w and returns the data phase.
func (c *Chip) split(w []byte, dummy int) (addr int, data []byte, err error) {
	width := 3
	if c.addr4 {
		width = 4
	}
	hdr := 1 + width + dummy
	if len(w) < hdr {
		return 0, nil, fmt.Errorf("norsim: %s: short header for 0x%02X", c.cs.N, w[0])
	}
	for _, b := range w[1 : 1+width] {
		addr = addr<<8 | int(b)
	}
	return addr % len(c.mem), w[hdr:], nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
