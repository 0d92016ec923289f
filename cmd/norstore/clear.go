package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:       "clear {log|events|all}",
	Short:     "Erase a region, skipping units that are already blank",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"log", "events", "all"},
	RunE: func(_ *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		what := args[0]
		if what == "log" || what == "all" {
			st, err := s.ClearLog(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("log:    erased %d, skipped %d\n", st.Erased, st.Skipped)
		}
		if what == "events" || what == "all" {
			st, err := s.ResetEvents(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("events: erased %d, skipped %d\n", st.Erased, st.Skipped)
		}
		return nil
	},
}

var eraseChipNum int

var eraseChipCmd = &cobra.Command{
	Use:   "erase-chip",
	Short: "Bulk erase an entire chip",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		f := s.Flash(eraseChipNum)
		if f == nil {
			return fmt.Errorf("no chip select %d", eraseChipNum)
		}
		if err := f.EraseChip(); err != nil {
			return fmt.Errorf("bulk erase flash failed: %w", err)
		}
		return nil
	},
}

func init() {
	eraseChipCmd.Flags().IntVar(&eraseChipNum, "cs", 0, "chip select")
	rootCmd.AddCommand(clearCmd, eraseChipCmd)
}
