package norstore

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"

	"github.com/gentam/norstore/norsim"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testFlashOptions() FlashOptions {
	return FlashOptions{
		MaxTransfer:  64,
		PollInterval: time.Microsecond,
		BusyTimeout:  5 * time.Millisecond,
		Logger:       quietLogger(),
	}
}

// newTestBus returns a bus with n simulated chips of size bytes.
func newTestBus(t *testing.T, id [3]byte, size, n int) (*Bus, []*norsim.Chip) {
	t.Helper()
	var (
		chips []*norsim.Chip
		pins  []gpio.PinOut
	)
	for i := 0; i < n; i++ {
		c := norsim.NewChip(fmt.Sprintf("CS%d", i), id, size)
		chips = append(chips, c)
		pins = append(pins, c.CS())
	}
	bus, err := NewBus(norsim.New(chips...), pins...)
	if err != nil {
		t.Fatalf("NewBus() err=%v", err)
	}
	return bus, chips
}

func newTestFlash(t *testing.T, size int) (*Flash, *norsim.Chip) {
	t.Helper()
	bus, chips := newTestBus(t, flashIDMacronixMX25R6435, size, 1)
	return NewFlash(bus, 0, testFlashOptions()), chips[0]
}

// simConn is the simulated connection under f, for fault injection.
func simConn(t *testing.T, f *Flash) *norsim.Conn {
	t.Helper()
	c, ok := f.bus.conn.(*norsim.Conn)
	if !ok {
		t.Fatalf("bus runs on %T, not norsim", f.bus.conn)
	}
	return c
}

// newHighAddrFlash is an identified 32MB part with the tracker's address
// correction.
func newHighAddrFlash(t *testing.T) (*Flash, *norsim.Chip) {
	t.Helper()
	bus, chips := newTestBus(t, flashIDWinbondW25Q256, 32<<20, 1)
	opts := testFlashOptions()
	opts.HighAddressCorrection = DefaultHighAddressCorrection
	f := NewFlash(bus, 0, opts)
	if _, err := f.Identify(); err != nil {
		t.Fatalf("Identify() err=%v", err)
	}
	return f, chips[0]
}

func newTestScanner(f *Flash, verify bool) *Scanner {
	return NewScanner(f, ScanOptions{Verify: verify, Logger: quietLogger()})
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if !IsKind(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}
