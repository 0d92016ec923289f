package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gentam/norstore"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Show the parameter and device blocks stored on flash",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.PopFlashToRAM(); err != nil {
			if !norstore.IsKind(err, norstore.KindBlank) {
				return err
			}
			fmt.Println("parameter block is blank, showing defaults")
		}
		p := s.Params()
		fmt.Printf("Version:         %d\n", p.Version)
		fmt.Printf("Sample rate:     %d Hz\n", p.SampleRateHz)
		fmt.Printf("Upload interval: %d s\n", p.UploadIntervalS)
		fmt.Printf("Mop threshold:   %d over %d s\n", p.MopThreshold, p.MopWindowS)
		fmt.Printf("LED / RFID:      %t / %t (%d dBm)\n", p.LEDEnabled, p.RFIDEnabled, p.RFIDPowerDBm)
		fmt.Printf("Battery low:     %d mV\n", p.BatteryLowMV)
		fmt.Printf("Sleep timeout:   %d s\n", p.SleepTimeoutS)
		fmt.Printf("Logging:         %t\n", p.LogEnabled)
		fmt.Printf("Cloud:           %s:%d\n", p.Host(), p.CloudPort)

		if err := s.LoadDevice(); err != nil {
			if !norstore.IsKind(err, norstore.KindBlank) {
				return err
			}
			fmt.Println("Device:          blank")
			return nil
		}
		d := s.Device()
		fmt.Printf("Device:          %s\n", &d)
		return nil
	},
}

var (
	setSampleRate uint16
	setUpload     uint32
	setHost       string
	setLogging    bool
	resetDefaults bool
)

var paramsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change parameters and write the block back to flash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		if !resetDefaults {
			if err := s.PopFlashToRAM(); err != nil && !norstore.IsKind(err, norstore.KindBlank) {
				return err
			}
		}
		p := s.Params()
		fs := cmd.Flags()
		if fs.Changed("sample-rate") {
			p.SampleRateHz = setSampleRate
		}
		if fs.Changed("upload-interval") {
			p.UploadIntervalS = setUpload
		}
		if fs.Changed("host") {
			p.SetCloudHost(setHost)
		}
		if fs.Changed("logging") {
			p.LogEnabled = setLogging
		}
		s.SetParams(p)
		return s.PushRAMToFlash()
	},
}

func init() {
	fs := paramsSetCmd.Flags()
	fs.Uint16Var(&setSampleRate, "sample-rate", 0, "IMU sample rate in Hz")
	fs.Uint32Var(&setUpload, "upload-interval", 0, "cloud upload interval in seconds")
	fs.StringVar(&setHost, "host", "", "cloud host")
	fs.BoolVar(&setLogging, "logging", true, "enable the datalog")
	fs.BoolVar(&resetDefaults, "defaults", false, "start from the compiled-in defaults")
	paramsCmd.AddCommand(paramsSetCmd)
	rootCmd.AddCommand(paramsCmd)
}
