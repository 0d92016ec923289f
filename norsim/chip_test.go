package norsim

import (
	"bytes"
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
)

// frame runs one transaction against chips with c selected.
func frame(t *testing.T, bus *Conn, c *Chip, w []byte) []byte {
	t.Helper()
	if err := c.CS().Out(gpio.Low); err != nil {
		t.Fatalf("cs low: %v", err)
	}
	defer c.CS().Out(gpio.High)
	r := make([]byte, len(w))
	if err := bus.Tx(w, r); err != nil {
		t.Fatalf("Tx(% X) err=%v", w[:1], err)
	}
	return r
}

func TestChip_ProgramAndsBits(t *testing.T) {
	c := NewChip("CS0", [3]byte{0xC2, 0x28, 0x17}, 4096)
	bus := New(c)

	frame(t, bus, c, []byte{0x06})
	frame(t, bus, c, []byte{0x02, 0, 0, 0x10, 0xF0})
	frame(t, bus, c, []byte{0x06})
	frame(t, bus, c, []byte{0x02, 0, 0, 0x10, 0x3C})

	if got := c.Bytes(0x10, 1)[0]; got != 0x30 {
		t.Fatalf("byte = %02X, want 30", got)
	}
	r := frame(t, bus, c, []byte{0x03, 0, 0, 0x10, 0})
	if r[4] != 0x30 {
		t.Fatalf("read back %02X", r[4])
	}
}

func TestChip_ProgramWrapsInPage(t *testing.T) {
	c := NewChip("CS0", [3]byte{}, 4096)
	bus := New(c)
	frame(t, bus, c, []byte{0x06})
	frame(t, bus, c, []byte{0x02, 0, 0x01, 0xFF, 0x11, 0x22})

	if c.Bytes(0x1FF, 1)[0] != 0x11 || c.Bytes(0x100, 1)[0] != 0x22 {
		t.Fatalf("page program did not wrap to the page start")
	}
	if c.Bytes(0x200, 1)[0] != 0xFF {
		t.Fatalf("page program spilled into the next page")
	}
}

func TestChip_RequiresWriteEnable(t *testing.T) {
	c := NewChip("CS0", [3]byte{}, 8192)
	bus := New(c)

	frame(t, bus, c, []byte{0x02, 0, 0, 0, 0x00})
	frame(t, bus, c, []byte{0x20, 0, 0, 0})
	if c.Ignored() != 2 || c.Programs() != 0 || len(c.Erases()) != 0 {
		t.Fatalf("ignored=%d programs=%d erases=%d", c.Ignored(), c.Programs(), len(c.Erases()))
	}

	// The latch clears after every program.
	frame(t, bus, c, []byte{0x06})
	if sr := frame(t, bus, c, []byte{0x05, 0})[1]; sr&0x02 == 0 {
		t.Fatalf("status %02X without WEL", sr)
	}
	frame(t, bus, c, []byte{0x02, 0, 0, 0, 0x00})
	if sr := frame(t, bus, c, []byte{0x05, 0})[1]; sr&0x02 != 0 {
		t.Fatalf("status %02X still has WEL", sr)
	}
}

func TestChip_Erase(t *testing.T) {
	c := NewChip("CS0", [3]byte{}, 16<<10)
	bus := New(c)
	c.Poke(0, bytes.Repeat([]byte{0}, 16<<10))

	frame(t, bus, c, []byte{0x06})
	frame(t, bus, c, []byte{0x20, 0, 0x12, 0x34})
	if !bytes.Equal(c.Bytes(0x1000, 0x1000), bytes.Repeat([]byte{0xFF}, 0x1000)) {
		t.Fatalf("4KB unit not erased")
	}
	if c.Bytes(0x0FFF, 1)[0] != 0 || c.Bytes(0x2000, 1)[0] != 0 {
		t.Fatalf("erase touched neighbouring units")
	}
	if got := c.Erases(); len(got) != 1 || got[0] != 0x1000 {
		t.Fatalf("erases = %#x", got)
	}
}

func TestChip_BusyPolls(t *testing.T) {
	c := NewChip("CS0", [3]byte{}, 4096)
	c.BusyPolls = 2
	bus := New(c)
	frame(t, bus, c, []byte{0x06})
	frame(t, bus, c, []byte{0x02, 0, 0, 0, 0x00})

	for i, want := range []byte{0x01, 0x01, 0x00} {
		if sr := frame(t, bus, c, []byte{0x05, 0})[1]; sr != want {
			t.Fatalf("poll %d status = %02X, want %02X", i, sr, want)
		}
	}
}

func TestChip_ReadID(t *testing.T) {
	c := NewChip("CS0", [3]byte{0xEF, 0x40, 0x19}, 4096)
	r := frame(t, New(c), c, []byte{0x9F, 0, 0, 0})
	if !bytes.Equal(r[1:], []byte{0xEF, 0x40, 0x19}) {
		t.Fatalf("ID = % X", r[1:])
	}
}

func TestConn_Select(t *testing.T) {
	a := NewChip("CS0", [3]byte{}, 4096)
	b := NewChip("CS1", [3]byte{}, 4096)
	bus := New(a, b)

	if err := bus.Tx([]byte{0x05, 0}, make([]byte, 2)); err == nil {
		t.Fatalf("Tx with no chip selected succeeded")
	}
	a.CS().Out(gpio.Low)
	b.CS().Out(gpio.Low)
	if err := bus.Tx([]byte{0x05, 0}, make([]byte, 2)); err == nil {
		t.Fatalf("Tx with two chips selected succeeded")
	}
	b.CS().Out(gpio.High)
	if err := bus.Tx([]byte{0x05, 0}, make([]byte, 2)); err != nil {
		t.Fatalf("Tx() err=%v", err)
	}
	if a.Transactions() != 1 || b.Transactions() != 0 {
		t.Fatalf("transactions a=%d b=%d", a.Transactions(), b.Transactions())
	}
}

func TestConn_FailAfter(t *testing.T) {
	c := NewChip("CS0", [3]byte{}, 4096)
	bus := New(c)
	bus.FailAfter(1)
	c.CS().Out(gpio.Low)

	if err := bus.Tx([]byte{0x06}, nil); err != nil {
		t.Fatalf("first Tx err=%v", err)
	}
	if err := bus.Tx([]byte{0x06}, nil); !errors.Is(err, ErrInjected) {
		t.Fatalf("second Tx err=%v, want ErrInjected", err)
	}
	bus.FailAfter(-1)
	if err := bus.Tx([]byte{0x06}, nil); err != nil {
		t.Fatalf("Tx after reset err=%v", err)
	}
}

func TestChip_Image(t *testing.T) {
	c := NewChip("CS0", [3]byte{}, 1024)
	c.Poke(10, []byte{1, 2, 3})
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() err=%v", err)
	}

	d := NewChip("CS0", [3]byte{}, 1024)
	if _, err := d.ReadFrom(bytes.NewReader(buf.Bytes()[:100])); err != nil {
		t.Fatalf("ReadFrom() err=%v", err)
	}
	if !bytes.Equal(d.Bytes(10, 3), []byte{1, 2, 3}) || d.Bytes(500, 1)[0] != 0xFF {
		t.Fatalf("short image not loaded over an erased chip")
	}
}
