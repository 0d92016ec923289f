// Package norstore is the external NOR flash storage layer of the mop
// tracker: a datalog of fixed-length frames, parameter and device blocks,
// and a staging area for serialized events, on SPI NOR chips sharing one
// bus.
//
// The layers, leaf to root, are Bus (chip-select framed transactions),
// Flash (write enable, busy polling, erase, chunked program and read),
// Scanner (blank-skip clearing and log position recovery), RecordStore,
// BlockStore and EventStore, all owned by Storage.
//
// # References:
//
// FTDI (https://ftdichip.com/document/application-notes/)
//   - [FTDI-AN_108]: Command Processor for MPSSE and MCU Host Bus Emulation Modes (https://ftdichip.com/wp-content/uploads/2020/08/AN_108_Command_Processor_for_MPSSE_and_MCU_Host_Bus_Emulation_Modes.pdf)
//   - [FTDI-AN_114]: Interfacing FT2232H Hi-Speed Devices To SPI Bus (https://ftdichip.com/wp-content/uploads/2020/08/AN_114_FTDI_Hi_Speed_USB_To_SPI_Example.pdf)
//   - [FTDI-AN_135]: FTDI MPSSE Basics (https://ftdichip.com/wp-content/uploads/2020/08/AN_135_MPSSE_Basics.pdf)
//
// SPI Flash
//   - [N25Q32]: N25Q032A Micron Serial NOR Flash Memory datasheet (could not find the official public URL)
//   - [W25Q128]: W25Q128JV-DTR Winbond Serial Flash Memory (https://www.winbond.com/resource-files/W25Q128JV_DTR%20RevD%2012232024%20Plus.pdf)
//   - [W25Q256]: W25Q256JV Winbond Serial Flash Memory
//   - [MX25R6435F]: Macronix MX25R6435F Ultra Low Power Serial NOR Flash
package norstore
