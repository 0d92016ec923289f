package norstore

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// Device is the SPI bus to the flash chips with one GPIO chip select per
// chip, either through an FT2232H adapter or a host SPI port.
type Device struct {
	FTDI *ftdi.FT232H // nil unless the bus is "ftdi"
	Bus  *Bus

	port  spi.PortCloser // nil for FTDI, which owns its port
	cs    []gpio.PinIO
	clock physic.Frequency
	conn  spi.Conn
}

var (
	hostMu    sync.Mutex
	hostReady bool
	hostInit  = func() error { _, err := host.Init(); return err }
)

// initHost loads the periph.io drivers once. A failed attempt is retried by
// the next caller.
func initHost() error {
	hostMu.Lock()
	defer hostMu.Unlock()
	if hostReady {
		return nil
	}
	if err := hostInit(); err != nil {
		return fmt.Errorf("host initialization failed: %w", err)
	}
	hostReady = true
	return nil
}

// OpenDevice initializes periph.io and connects to the bus described by c.
func OpenDevice(c SPIConfig) (*Device, error) {
	if err := initHost(); err != nil {
		return nil, err
	}

	d := &Device{clock: c.Clock.Frequency}
	var err error
	if c.Bus == "ftdi" {
		err = d.connectFTDI(c.ChipSelects)
	} else {
		err = d.connectPort(c.Bus, c.ChipSelects)
	}
	if err != nil {
		return nil, err
	}

	cs := make([]gpio.PinOut, len(d.cs))
	for i, p := range d.cs {
		cs[i] = p
	}
	if d.Bus, err = NewBus(d.conn, cs...); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Close deselects every chip and releases a host SPI port. FTDI adapters
// stay open for the process. It returns the first error.
func (d *Device) Close() error {
	var first error
	for i, p := range d.cs {
		if err := p.Out(gpio.High); err != nil && first == nil {
			first = fmt.Errorf("release cs%d: %w", i, err)
		}
	}
	if d.port != nil {
		if err := d.port.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (d *Device) connectFTDI(pins []string) error {
	const (
		vendorID  = 0x0403 // FTDI
		productID = 0x6010 // FT2232H
	)

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != vendorID || info.DevID != productID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			d.FTDI = ft
			break
		}
	}
	if d.FTDI == nil {
		return errors.New("FT2232H device not found")
	}

	// ADBUS0 | SCK
	// ADBUS1 | MOSI
	// ADBUS2 | MISO
	// ADBUS3 | driven by MPSSE, unused
	// ADBUS4 | CS0 (datalog flash)
	// ADBUS5 | CS1 (settings and event flash)
	byName := map[string]gpio.PinIO{
		"D4": d.FTDI.D4, "D5": d.FTDI.D5, "D6": d.FTDI.D6, "D7": d.FTDI.D7,
		"C0": d.FTDI.C0, "C1": d.FTDI.C1, "C2": d.FTDI.C2, "C3": d.FTDI.C3,
	}
	for _, name := range pins {
		p, ok := byName[name]
		if !ok {
			return fmt.Errorf("FT2232H pin %q cannot be a chip select", name)
		}
		d.cs = append(d.cs, p)
	}

	port, err := d.FTDI.SPI()
	if err != nil {
		return fmt.Errorf("failed to get SPI port: %w", err)
	}

	// [FTDI AN_114|1.2]> FTDI device can only support mode 0 and mode 2 due to the limitation of MPSSE engine
	// [MX25R6435F|Figure 2. Serial Modes Supported] mode 0 and mode 3 are supported
	d.conn, err = port.Connect(d.clock, spi.Mode0, 8)
	return err
}

func (d *Device) connectPort(bus string, pins []string) error {
	for _, name := range pins {
		p := gpioreg.ByName(name)
		if p == nil {
			return fmt.Errorf("chip select pin %q not found", name)
		}
		d.cs = append(d.cs, p)
	}

	port, err := spireg.Open(bus)
	if err != nil {
		return fmt.Errorf("failed to open SPI port %q: %w", bus, err)
	}
	// Chip selects are GPIOs shared by both chips, keep the controller off CS.
	conn, err := port.Connect(d.clock, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		port.Close()
		return err
	}
	d.port = port
	d.conn = conn
	return nil
}
