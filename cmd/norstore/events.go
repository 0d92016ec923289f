package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events FILE...",
	Short: "Stage event blobs and read them back",
	Long: `Stage each FILE into the event region and read it back.

Descriptors only live in RAM, so blobs staged by an earlier run cannot be
listed again.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		for _, name := range args {
			blob, err := os.ReadFile(name)
			if err != nil {
				return err
			}
			d, err := s.StageEvent(blob)
			if err != nil {
				return fmt.Errorf("stage %s: %w", name, err)
			}
			fmt.Printf("%s: 0x%06X+%d\n", name, d.Start, d.Length)
		}
		for i := range s.Events() {
			b, err := s.FetchEvent(i)
			if err != nil {
				return err
			}
			log.Debugf("event %d: %d bytes", i, len(b))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
