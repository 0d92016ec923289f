package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gentam/norstore"
)

var (
	framesFrom  uint32
	framesCount int
	appendCount int
)

var framesCmd = &cobra.Command{
	Use:   "frames",
	Short: "Print datalog frames",
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
		for i := framesFrom; i < next && int(i-framesFrom) < framesCount; i++ {
			f, err := s.ReadFrame(i)
			if err != nil {
				return err
			}
			fmt.Printf("%6d %s acc=%v gyro=%v bat=%dmV/%d%% tag=%X mop=%t/%d\n",
				f.FrameNumber, time.Unix(int64(f.Timestamp), 0).UTC().Format(time.RFC3339),
				f.Accel, f.Gyro, f.BatteryMV, f.StateOfCharge, f.Tag, f.Mopping, f.MopScore)
		}
		return nil
	},
}

var framesAppendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append synthetic frames after the recovered write position",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		if _, err := s.Recover(); err != nil {
			return err
		}
		now := uint32(time.Now().Unix())
		for i := 0; i < appendCount; i++ {
			f := &norstore.Frame{
				Timestamp:     now + uint32(i),
				Accel:         [3]int16{0, 0, 1000},
				BatteryMV:     3900,
				StateOfCharge: 80,
			}
			idx, err := s.Append(f)
			if err != nil {
				return err
			}
			log.Debugf("appended frame %d", idx)
		}
		fmt.Printf("next frame %d\n", s.Next())
		return nil
	},
}

func init() {
	framesCmd.Flags().Uint32Var(&framesFrom, "from", 0, "first frame")
	framesCmd.Flags().IntVarP(&framesCount, "count", "n", 32, "number of frames")
	framesAppendCmd.Flags().IntVarP(&appendCount, "count", "n", 1, "number of frames")
	framesCmd.AddCommand(framesAppendCmd)
	rootCmd.AddCommand(framesCmd)
}
