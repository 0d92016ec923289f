package norstore

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// Config is the YAML description of the hardware and flash layout.
type Config struct {
	SPI      SPIConfig      `yaml:"spi"`
	Flash    FlashConfig    `yaml:"flash"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Layout   LayoutConfig   `yaml:"layout"`
}

// ---- SPI ----

type SPIConfig struct {
	// Bus is "ftdi" for an FT2232H, or a periph.io spireg port name.
	Bus         string    `yaml:"bus"`
	Clock       Frequency `yaml:"clock"`
	ChipSelects []string  `yaml:"chip_selects"`
}

// Frequency is a physic.Frequency parsed from strings like "30MHz".
type Frequency struct {
	physic.Frequency
}

func (f *Frequency) UnmarshalYAML(n *yaml.Node) error {
	return errors.Wrapf(f.Set(n.Value), "line %d: frequency", n.Line)
}

func (f Frequency) MarshalYAML() (any, error) {
	return f.String(), nil
}

// ---- FLASH ----

type FlashConfig struct {
	MaxTransfer  int           `yaml:"max_transfer"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"` // 0: datasheet based
}

// ---- RECOVERY ----

type RecoveryConfig struct {
	Verify                bool `yaml:"verify"`
	HighAddressCorrection int  `yaml:"high_address_correction"`
}

// ---- LAYOUT ----

type LayoutConfig struct {
	RecordLength   int          `yaml:"record_length"`
	BlockLength    int          `yaml:"block_length"`
	MaxDescriptors int          `yaml:"max_descriptors"`
	Log            RegionConfig `yaml:"log"`
	Params         RegionConfig `yaml:"params"`
	Device         RegionConfig `yaml:"device"`
	Events         RegionConfig `yaml:"events"`
}

type RegionConfig struct {
	Chip      int `yaml:"chip"`
	Start     int `yaml:"start"`
	Length    int `yaml:"length"`
	EraseSize int `yaml:"erase_size"`
}

// DefaultConfig matches the tracker board: an FT2232H adapter with chip
// selects on ADBUS4 and ADBUS5 and the production layout.
func DefaultConfig() *Config {
	l := DefaultLayout()
	region := func(r Region) RegionConfig {
		return RegionConfig{Chip: r.Chip, Start: r.Start, Length: r.Length, EraseSize: int(r.EraseSize)}
	}
	return &Config{
		SPI: SPIConfig{
			Bus:         "ftdi",
			Clock:       Frequency{30 * physic.MegaHertz}, // [AN_135 3.2.1 Divisors]
			ChipSelects: []string{"D4", "D5"},
		},
		Flash: FlashConfig{
			MaxTransfer:  defaultMaxTransfer,
			PollInterval: defaultPollInterval,
		},
		Recovery: RecoveryConfig{
			HighAddressCorrection: DefaultHighAddressCorrection,
		},
		Layout: LayoutConfig{
			RecordLength:   l.RecordLength,
			BlockLength:    l.BlockLength,
			MaxDescriptors: l.MaxDescriptors,
			Log:            region(l.Log),
			Params:         region(l.Params),
			Device:         region(l.Device),
			Events:         region(l.Events),
		},
	}
}

// LoadConfig reads path on top of DefaultConfig and validates the result.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validate %s", path)
	}
	return cfg, nil
}

// RegionLayout converts the layout section.
func (c *Config) RegionLayout() Layout {
	region := func(name string, r RegionConfig) Region {
		return Region{Name: name, Chip: r.Chip, Start: r.Start, Length: r.Length, EraseSize: EraseSize(r.EraseSize)}
	}
	return Layout{
		Log:            region("log", c.Layout.Log),
		Params:         region("params", c.Layout.Params),
		Device:         region("device", c.Layout.Device),
		Events:         region("events", c.Layout.Events),
		RecordLength:   c.Layout.RecordLength,
		BlockLength:    c.Layout.BlockLength,
		MaxDescriptors: c.Layout.MaxDescriptors,
	}
}

// Options converts the configuration into Storage options.
func (c *Config) Options() Options {
	return Options{
		Layout: c.RegionLayout(),
		Flash: FlashOptions{
			MaxTransfer:  c.Flash.MaxTransfer,
			PollInterval: c.Flash.PollInterval,
			BusyTimeout:  c.Flash.BusyTimeout,

			HighAddressCorrection: c.Recovery.HighAddressCorrection,
		},
		VerifyRecovery: c.Recovery.Verify,
	}
}

// Validate checks configuration correctness. It does not mutate c.
func (c *Config) Validate() error {
	if c.SPI.Bus == "" {
		return errors.New("spi.bus is required")
	}
	if len(c.SPI.ChipSelects) == 0 {
		return errors.New("spi.chip_selects needs at least one pin")
	}
	if c.SPI.Clock.Frequency <= 0 {
		return errors.New("spi.clock must be positive")
	}
	if c.Flash.MaxTransfer < 0 {
		return errors.Errorf("flash.max_transfer %d must not be negative", c.Flash.MaxTransfer)
	}
	if h := c.Recovery.HighAddressCorrection; h < 0 || h%int(Erase64KB) != 0 {
		return errors.Errorf("recovery.high_address_correction %#x must be a non-negative multiple of 64KB", h)
	}
	l := c.RegionLayout()
	for _, r := range l.Regions() {
		if r.Chip < 0 || r.Chip >= len(c.SPI.ChipSelects) {
			return errors.Errorf("layout.%s: chip %d has no chip select", r.Name, r.Chip)
		}
	}
	return l.Validate()
}
