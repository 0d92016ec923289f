package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Recover the datalog write position",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		next, err := s.Recover()
		if err != nil {
			return err
		}
		fmt.Printf("next frame:  %d\n", next)
		fmt.Printf("capacity:    %d\n", s.Capacity())
		fmt.Printf("full:        %t\n", s.Full())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
