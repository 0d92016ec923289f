package norstore

import (
	"bytes"
	"fmt"
)

const paramsVersion = 1

// Params are the tracker settings, mirrored in RAM and persisted on demand.
type Params struct {
	Version         uint16
	SampleRateHz    uint16
	UploadIntervalS uint32
	MopThreshold    uint16 // mopping score that counts as mopping
	MopWindowS      uint16
	LEDEnabled      bool
	RFIDEnabled     bool
	BatteryLowMV    uint16
	SleepTimeoutS   uint32
	LogEnabled      bool
	RFIDPowerDBm    int8
	CloudPort       uint16
	CloudHost       [64]byte
	_               [168]byte
}

// DefaultParams are the compiled-in settings applied at boot.
func DefaultParams() Params {
	p := Params{
		Version:         paramsVersion,
		SampleRateHz:    52,
		UploadIntervalS: 3600,
		MopThreshold:    40,
		MopWindowS:      10,
		LEDEnabled:      true,
		RFIDEnabled:     true,
		BatteryLowMV:    3400,
		SleepTimeoutS:   300,
		LogEnabled:      true,
		RFIDPowerDBm:    20,
		CloudPort:       5683,
	}
	p.SetCloudHost("coap.example.net")
	return p
}

// SetCloudHost stores h, truncated to the field size.
func (p *Params) SetCloudHost(h string) {
	p.CloudHost = [64]byte{}
	copy(p.CloudHost[:], h)
}

func (p *Params) Host() string {
	return cstring(p.CloudHost[:])
}

func (p *Params) MarshalBinary() ([]byte, error) { return encodeBlock(p) }

func (p *Params) UnmarshalBinary(b []byte) error { return decodeBlock(b, p) }

// DeviceInfo is the factory block identifying the unit.
type DeviceInfo struct {
	HardwareRev    uint16
	Serial         uint32
	IMEI           [16]byte
	ManufacturedAt uint32 // unix seconds
	BootCount      uint32
	_              [226]byte
}

func (d *DeviceInfo) SetIMEI(s string) {
	d.IMEI = [16]byte{}
	copy(d.IMEI[:], s)
}

func (d *DeviceInfo) IMEIString() string {
	return cstring(d.IMEI[:])
}

func (d *DeviceInfo) String() string {
	return fmt.Sprintf("hw rev %d serial %08d imei %s boots %d", d.HardwareRev, d.Serial, d.IMEIString(), d.BootCount)
}

func (d *DeviceInfo) MarshalBinary() ([]byte, error) { return encodeBlock(d) }

func (d *DeviceInfo) UnmarshalBinary(b []byte) error { return decodeBlock(b, d) }

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
