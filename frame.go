package norstore

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// FrameSize is the datalog record length. 32 frames fill a 4KB subsector.
	FrameSize       = 128
	frameNumberSize = 4
	blankFrame      = 0xFFFFFFFF
)

// Frame is one datalog record. FrameNumber is its index in the log.
type Frame struct {
	FrameNumber   uint32
	Timestamp     uint32 // unix seconds
	Millis        uint16
	Accel         [3]int16 // mg
	Gyro          [3]int16 // 0.1 dps
	BatteryMV     uint16
	StateOfCharge uint8 // %
	GaugeTemp     int8  // °C
	Tag           [12]byte
	Mopping       bool
	MopScore      uint8
	_             [88]byte
}

func (f *Frame) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(FrameSize)
	if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
		return nil, errors.Wrap(err, "encode frame")
	}
	return buf.Bytes(), nil
}

func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) != FrameSize {
		return errorf(KindAlignment, "decode frame", NoAddr, "got %d bytes, want %d", len(data), FrameSize)
	}
	return errors.Wrap(binary.Read(bytes.NewReader(data), binary.LittleEndian, f), "decode frame")
}

// Blank reports whether the frame was read from erased flash.
func (f *Frame) Blank() bool { return f.FrameNumber == blankFrame }
