package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/spf13/cobra"
)

var (
	readChip int
	readAddr int
	readN    int
	readFast bool
	readOut  string
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read raw flash memory",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		f := s.Flash(readChip)
		if f == nil {
			return fmt.Errorf("no chip select %d", readChip)
		}
		data := make([]byte, readN)
		if readFast {
			err = f.FastRead(readAddr, data)
		} else {
			err = f.Read(readAddr, data)
		}
		if err != nil {
			return fmt.Errorf("read flash failed: %w", err)
		}
		if readOut == "" {
			fmt.Println(hex.Dump(data))
			return nil
		}
		if strings.EqualFold(filepath.Ext(readOut), ".hex") {
			return writeIntelHex(readOut, uint32(readAddr), data)
		}
		return os.WriteFile(readOut, data, 0644)
	},
}

// writeIntelHex dumps data as an Intel HEX image placed at addr.
func writeIntelHex(path string, addr uint32, data []byte) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(addr, data); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := mem.DumpIntelHex(f, 16); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	fs := readCmd.Flags()
	fs.IntVar(&readChip, "cs", 0, "chip select")
	fs.IntVarP(&readAddr, "addr", "a", 0, "start address")
	fs.IntVarP(&readN, "count", "n", 256, "number of bytes to read")
	fs.BoolVar(&readFast, "fast", false, "use fast read without busy polling")
	fs.StringVarP(&readOut, "out", "o", "", "output file, Intel HEX if it ends in .hex (default: hexdump)")
	rootCmd.AddCommand(readCmd)
}
