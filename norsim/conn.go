package norsim

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// ErrInjected is returned by Tx when a fault was scheduled with FailAfter.
var ErrInjected = errors.New("norsim: injected bus fault")

// Conn is a shared SPI bus. Each Tx is routed to the one chip whose chip
// select is low.
type Conn struct {
	mu        sync.Mutex
	chips     []*Chip
	failAfter int // transactions before an injected fault, -1 for never
}

var _ spi.Conn = (*Conn)(nil)

func New(chips ...*Chip) *Conn {
	return &Conn{chips: chips, failAfter: -1}
}

// FailAfter makes the n+1th following transaction fail, and every one after
// it until FailAfter(-1).
func (c *Conn) FailAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAfter = n
}

func (c *Conn) String() string { return fmt.Sprintf("norsim(%d chips)", len(c.chips)) }

func (c *Conn) Duplex() conn.Duplex { return conn.Full }

func (c *Conn) Tx(w, r []byte) error {
	if len(r) != 0 && len(w) != len(r) {
		return errors.New("norsim: w and r must have the same length")
	}
	c.mu.Lock()
	switch {
	case c.failAfter == 0:
		c.mu.Unlock()
		return ErrInjected
	case c.failAfter > 0:
		c.failAfter--
	}
	c.mu.Unlock()

	var sel *Chip
	for _, ch := range c.chips {
		if ch.cs.Read() != gpio.Low {
			continue
		}
		if sel != nil {
			return errors.New("norsim: more than one chip selected")
		}
		sel = ch
	}
	if sel == nil {
		return errors.New("norsim: no chip selected")
	}
	if len(r) == 0 {
		r = make([]byte, len(w))
	}
	return sel.tx(w, r)
}

func (c *Conn) TxPackets(p []spi.Packet) error {
	for _, pkt := range p {
		if err := c.Tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}
