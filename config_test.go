package norstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "norstore.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
spi:
  bus: SPI0.0
  clock: 10MHz
  chip_selects: [GPIO8, GPIO7]
flash:
  max_transfer: 256
  poll_interval: 50us
  busy_timeout: 2s
recovery:
  verify: true
layout:
  max_descriptors: 16
  events:
    chip: 1
    start: 0x200000
    length: 0x80000
    erase_size: 0x10000
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() err=%v", err)
	}
	if cfg.SPI.Bus != "SPI0.0" || cfg.SPI.Clock.Frequency != 10*physic.MegaHertz {
		t.Fatalf("spi = %+v", cfg.SPI)
	}
	if len(cfg.SPI.ChipSelects) != 2 || cfg.SPI.ChipSelects[1] != "GPIO7" {
		t.Fatalf("chip selects = %q", cfg.SPI.ChipSelects)
	}
	if cfg.Flash.MaxTransfer != 256 || cfg.Flash.PollInterval != 50*time.Microsecond || cfg.Flash.BusyTimeout != 2*time.Second {
		t.Fatalf("flash = %+v", cfg.Flash)
	}

	opts := cfg.Options()
	if !opts.VerifyRecovery || opts.Flash.HighAddressCorrection != DefaultHighAddressCorrection {
		t.Fatalf("recovery options = %+v", opts)
	}
	l := opts.Layout
	want := Region{Name: "events", Chip: 1, Start: 0x200000, Length: 0x80000, EraseSize: Erase64KB}
	if l.Events != want {
		t.Fatalf("events = %s, want %s", l.Events, want)
	}
	if l.MaxDescriptors != 16 || l.Log != DefaultLayout().Log {
		t.Fatalf("layout = %+v", l)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("LoadConfig() err=%v", err)
	}
	if cfg.RegionLayout() != DefaultLayout() {
		t.Fatalf("empty file changed the default layout")
	}
	if cfg.SPI.Clock.String() != "30MHz" {
		t.Fatalf("clock = %s", cfg.SPI.Clock)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad frequency", "spi:\n  clock: fast\n", "frequency"},
		{"no chip selects", "spi:\n  chip_selects: []\n", "chip_selects"},
		{"zero clock", "spi:\n  clock: 0Hz\n", "spi.clock"},
		{"negative transfer", "flash:\n  max_transfer: -1\n", "max_transfer"},
		{"chip without select", "layout:\n  events:\n    chip: 2\n", "no chip select"},
		{"misaligned region", "layout:\n  device:\n    start: 0x20100\n", "alignment"},
		{"unknown erase size", "layout:\n  log:\n    erase_size: 8192\n", "erase size"},
		{"odd address correction", "recovery:\n  high_address_correction: 0x1000\n", "high_address_correction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestConfig_ValidateDoesNotMutate(t *testing.T) {
	cfg := DefaultConfig()
	before := cfg.RegionLayout()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	if cfg.RegionLayout() != before {
		t.Fatalf("Validate() changed the layout")
	}
}
