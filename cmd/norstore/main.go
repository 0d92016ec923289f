// Command norstore inspects and maintains the tracker's external NOR flash,
// either on real hardware or on a simulated image.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/u-root/u-root/pkg/watchdog"
	"periph.io/x/conn/v3/gpio"

	"github.com/gentam/norstore"
	"github.com/gentam/norstore/norsim"
)

var (
	configPath  string
	simImage    string
	simSize     int
	watchdogDev string
	verbose     bool

	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:           "norstore",
	Short:         "Inspect and maintain the tracker NOR flash",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML configuration (default: built-in FT2232H layout)")
	pf.StringVar(&simImage, "sim", "", "use simulated chips backed by IMAGE.cs0.bin, IMAGE.cs1.bin")
	pf.IntVar(&simSize, "sim-size", 8<<20, "simulated chip size in bytes")
	pf.StringVar(&watchdogDev, "watchdog", "", "kick this watchdog device during long erases")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatalf("%v", err)
	}
}

// session is an opened Storage plus whatever must be released afterwards.
type session struct {
	*norstore.Storage
	closers []func() error
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.WithError(err).Warn("close")
		}
	}
}

func openStorage() (*session, error) {
	cfg := norstore.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = norstore.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}
	opts := cfg.Options()
	opts.Logger = log
	s := &session{}

	var bus *norstore.Bus
	if simImage != "" {
		b, closeSim, err := openSim(len(cfg.SPI.ChipSelects))
		if err != nil {
			return nil, err
		}
		bus = b
		s.closers = append(s.closers, closeSim)
	} else {
		d, err := norstore.OpenDevice(cfg.SPI)
		if err != nil {
			return nil, err
		}
		bus = d.Bus
		s.closers = append(s.closers, d.Close)
	}

	if watchdogDev != "" {
		wd, err := watchdog.Open(watchdogDev)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open watchdog: %w", err)
		}
		opts.Watchdog = wd
		s.closers = append(s.closers, wd.MagicClose)
	}

	st, err := norstore.New(bus, opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Storage = st

	for i := 0; i < bus.Chips(); i++ {
		if err := st.Flash(i).PowerUp(); err != nil {
			s.Close()
			return nil, err
		}
	}
	if _, err := st.Identify(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func openSim(chips int) (*norstore.Bus, func() error, error) {
	var sims []*norsim.Chip
	for i := 0; i < chips; i++ {
		c := norsim.NewChip(fmt.Sprintf("CS%d", i), [3]byte{0xC2, 0x28, 0x17}, simSize)
		if f, err := os.Open(simPath(i)); err == nil {
			_, err = c.ReadFrom(f)
			f.Close()
			if err != nil {
				return nil, nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, nil, err
		}
		sims = append(sims, c)
	}

	pins := make([]gpio.PinOut, len(sims))
	for i, c := range sims {
		pins[i] = c.CS()
	}
	bus, err := norstore.NewBus(norsim.New(sims...), pins...)
	if err != nil {
		return nil, nil, err
	}

	save := func() error {
		for i, c := range sims {
			f, err := os.Create(simPath(i))
			if err != nil {
				return err
			}
			if _, err := c.WriteTo(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
		return nil
	}
	return bus, save, nil
}

func simPath(chip int) string {
	ext := filepath.Ext(simImage)
	return fmt.Sprintf("%s.cs%d.bin", strings.TrimSuffix(simImage, ext), chip)
}
