package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print chip IDs, status registers and the flash layout",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		l := s.Layout()
		for chip := 0; ; chip++ {
			f := s.Flash(chip)
			if f == nil {
				break
			}
			fmt.Printf("Chip:            %s\n", f)
			fmt.Printf("Size:            %d bytes\n", f.Size())
			for n := 1; n <= 3; n++ {
				sr, err := f.ReadStatus(n)
				if err != nil {
					return err
				}
				fmt.Printf("Status %d:        %s\n", n, sr)
			}
		}
		for _, r := range l.Regions() {
			fmt.Printf("Region:          %s\n", r)
		}
		fmt.Printf("Record length:   %d (%d frames)\n", l.RecordLength, s.Capacity())
		fmt.Printf("Block length:    %d\n", l.BlockLength)
		fmt.Printf("Descriptors:     %d\n", l.MaxDescriptors)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
