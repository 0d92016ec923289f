package norstore

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Options configure Storage.
type Options struct {
	Layout Layout
	Flash  FlashOptions
	// VerifyRecovery makes Recover check every record, see ScanOptions.
	VerifyRecovery bool
	Watchdog       Watchdog
	Logger         logrus.FieldLogger
}

// Storage owns the flash chips and every store built on them. All methods
// are serialized by one mutex, so appends block while Recover scans.
type Storage struct {
	mu  sync.Mutex
	log logrus.FieldLogger

	bus      *Bus
	layout   Layout
	flashes  []*Flash
	scanners []*Scanner

	records *RecordStore
	params  *BlockStore
	device  *BlockStore
	events  *EventStore

	ram Params
	dev DeviceInfo
}

// New builds Storage on bus. RAM settings start at their defaults.
func New(bus *Bus, opts Options) (*Storage, error) {
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}
	for _, r := range opts.Layout.Regions() {
		if r.Chip >= bus.Chips() {
			return nil, errorf(KindOutOfBounds, "storage", r.Start, "region %s needs cs%d, bus has %d", r, r.Chip, bus.Chips())
		}
	}
	if c := opts.Flash.HighAddressCorrection; c < 0 || c%int(Erase64KB) != 0 {
		return nil, errorf(KindAlignment, "storage", NoAddr, "high address correction %#x is not a multiple of %s", c, Erase64KB)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Flash.Logger == nil {
		opts.Flash.Logger = opts.Logger
	}

	s := &Storage{log: opts.Logger, bus: bus, layout: opts.Layout}
	for chip := 0; chip < bus.Chips(); chip++ {
		f := NewFlash(bus, chip, opts.Flash)
		s.flashes = append(s.flashes, f)
		s.scanners = append(s.scanners, NewScanner(f, ScanOptions{
			Verify:   opts.VerifyRecovery,
			Watchdog: opts.Watchdog,
			Logger:   opts.Logger,
		}))
	}

	l := opts.Layout
	var err error
	if s.records, err = NewRecordStore(s.flashes[l.Log.Chip], s.scanners[l.Log.Chip], l.Log, l.RecordLength); err != nil {
		return nil, err
	}
	if s.params, err = NewBlockStore(s.flashes[l.Params.Chip], l.Params, l.BlockLength); err != nil {
		return nil, err
	}
	if s.device, err = NewBlockStore(s.flashes[l.Device.Chip], l.Device, l.BlockLength); err != nil {
		return nil, err
	}
	if s.events, err = NewEventStore(s.flashes[l.Events.Chip], s.scanners[l.Events.Chip], l.Events, l.MaxDescriptors); err != nil {
		return nil, err
	}
	s.ram = DefaultParams()
	return s, nil
}

func (s *Storage) Layout() Layout { return s.layout }

// Flash returns the primitive layer of chip, or nil.
func (s *Storage) Flash(chip int) *Flash {
	if chip < 0 || chip >= len(s.flashes) {
		return nil
	}
	return s.flashes[chip]
}

// Scanner returns the region scanner of chip, or nil.
func (s *Storage) Scanner(chip int) *Scanner {
	if chip < 0 || chip >= len(s.scanners) {
		return nil
	}
	return s.scanners[chip]
}

// Identify reads the JEDEC ID of every chip and returns their names.
func (s *Storage) Identify() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.flashes))
	for i, f := range s.flashes {
		name, err := f.Identify()
		if err != nil {
			return nil, err
		}
		names[i] = name
		s.log.Infof("flash %s", f)
	}
	return names, nil
}

// Recover finds the log write position on flash. Appends wait until it
// returns.
func (s *Storage) Recover() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.records.Recover()
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"next": n, "full": s.records.Full()}).Info("datalog recovered")
	return n, nil
}

// Append logs f and returns its frame number.
func (s *Storage) Append(f *Frame) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.records.AppendFrame(f)
	if err != nil && IsKind(err, KindRegionFull) {
		s.log.Debug("datalog full, frame dropped")
	}
	return idx, err
}

// AppendRecord logs a raw record.
func (s *Storage) AppendRecord(rec []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Append(rec)
}

func (s *Storage) ReadFrame(index uint32) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.ReadFrame(index)
}

func (s *Storage) ReadRecord(index uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Read(index)
}

// Next is the frame number the next Append will use.
func (s *Storage) Next() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Next()
}

// Full reports whether the datalog stopped accepting frames.
func (s *Storage) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Full()
}

// Capacity is the number of frames the datalog holds.
func (s *Storage) Capacity() int { return s.records.Capacity() }

// ClearLog clears the datalog region and restarts at frame 0.
func (s *Storage) ClearLog(ctx context.Context) (ClearStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.records.ClearAll(ctx)
	if err != nil {
		return st, err
	}
	s.log.WithFields(logrus.Fields{"erased": st.Erased, "skipped": st.Skipped}).Info("datalog cleared")
	return st, nil
}

// InitRAM resets the RAM settings to the compiled-in defaults.
func (s *Storage) InitRAM() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ram = DefaultParams()
	s.dev = DeviceInfo{}
}

func (s *Storage) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ram
}

// SetParams changes the RAM settings. They reach flash on PushRAMToFlash.
func (s *Storage) SetParams(p Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ram = p
}

// PopFlashToRAM loads the settings from flash. On a blank block the RAM copy
// is left unchanged and a KindBlank error is returned.
func (s *Storage) PopFlashToRAM() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.params.Load()
	if err != nil {
		return err
	}
	var p Params
	if err := p.UnmarshalBinary(b); err != nil {
		return err
	}
	if p.Version != paramsVersion {
		s.log.Warnf("parameter block version %d, want %d", p.Version, paramsVersion)
	}
	s.ram = p
	return nil
}

// PushRAMToFlash persists the RAM settings.
func (s *Storage) PushRAMToFlash() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.ram.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.params.Save(b); err != nil {
		return err
	}
	s.log.Info("parameters saved")
	return nil
}

func (s *Storage) Device() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev
}

func (s *Storage) SetDevice(d DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dev = d
}

// LoadDevice reads the device block into RAM.
func (s *Storage) LoadDevice() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.device.Load()
	if err != nil {
		return err
	}
	var d DeviceInfo
	if err := d.UnmarshalBinary(b); err != nil {
		return err
	}
	s.dev = d
	return nil
}

// SaveDevice persists the RAM device block.
func (s *Storage) SaveDevice() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.dev.MarshalBinary()
	if err != nil {
		return err
	}
	return s.device.Save(b)
}

// StageEvent writes an outsourced event blob.
func (s *Storage) StageEvent(blob []byte) (Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Stage(blob)
}

func (s *Storage) FetchEvent(i int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Fetch(i)
}

func (s *Storage) Events() []Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Descriptors()
}

// ResetEvents clears the event region, typically after a cloud sync.
func (s *Storage) ResetEvents(ctx context.Context) (ClearStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Reset(ctx)
}
