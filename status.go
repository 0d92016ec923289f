package norstore

import (
	"fmt"
	"strings"
)

// StatusRegister represents status register 1 of the flash chip.
//
//	Bits| [N25Q32|Table 9]                     | [W25Q128|7.1 Status Registers]
//	----+--------------------------------------+-------------------------------
//	7   | Status register write enable/disable | SRP: Status Register Protect
//	6   | Reserved                             | SEC: Sector protect
//	5   | Top/bottom                           | TB: Top/Bottom protect
//	4:2 | Block protect 2-0                    | BP2-0: Block Protect bit 2-0
//	1   | Write enable latch                   | WEL: Write Enable Latch
//	0   | Write in progress                    | BUSY: Erase/Write in progress
//
// Registers 2 and 3 are returned with the same type; only Busy and
// WriteEnabled are meaningful for register 1.
type StatusRegister byte

const (
	statusBusy         StatusRegister = 0x01
	statusWriteEnabled StatusRegister = 0x02
)

func (sr StatusRegister) StatusRegisterProtect() bool { return sr&(1<<7) != 0 }
func (sr StatusRegister) BlockProtect() int           { return int(sr>>2) & 0x7 }
func (sr StatusRegister) WriteEnabled() bool          { return sr&statusWriteEnabled != 0 }
func (sr StatusRegister) Busy() bool                  { return sr&statusBusy != 0 }

func (sr StatusRegister) String() string {
	b := fmt.Sprintf("%08b", byte(sr))
	s := []string{}
	if sr.StatusRegisterProtect() {
		s = append(s, "SRP")
	}
	if bp := sr.BlockProtect(); bp != 0 {
		s = append(s, fmt.Sprintf("BP=%d", bp))
	}
	if sr.WriteEnabled() {
		s = append(s, "WEL")
	}
	if sr.Busy() {
		s = append(s, "BUSY")
	}
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}
