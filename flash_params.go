package norstore

import "time"

type chipParams struct {
	name string
	size int // bytes

	tRES1      time.Duration
	tDP        time.Duration
	tPP        time.Duration
	tErase4KB  time.Duration
	tErase32KB time.Duration
	tErase64KB time.Duration
	tEraseChip time.Duration
}

// addrWidth is the address phase width needed to reach the whole chip.
func (p *chipParams) addrWidth() int {
	if p.size > 1<<24 {
		return 4
	}
	return 3
}

var (
	flashIDMicronN25Q32      = [3]byte{0x20, 0xBA, 0x16}
	flashIDWinbondW25Q128    = [3]byte{0xEF, 0x70, 0x18}
	flashIDWinbondW25Q256    = [3]byte{0xEF, 0x40, 0x19}
	flashIDMacronixMX25R6435 = [3]byte{0xC2, 0x28, 0x17}
)

var knownFlash = map[[3]byte]chipParams{
	flashIDMicronN25Q32: {
		name: "Micron N25Q 32Mb",
		size: 4 << 20,

		// [N25Q32|Table 38: AC Characteristics and Operating Conditions]
		tPP:        5 * time.Millisecond,
		tErase4KB:  800 * time.Millisecond,
		tErase64KB: 3 * time.Second,
		tEraseChip: 60 * time.Second,
	},

	flashIDWinbondW25Q128: {
		name: "Winbond W25Q 128Mb",
		size: 16 << 20,

		// [W25Q128|9.6 AC Electrical Characteristics]
		tRES1:      3 * time.Microsecond,
		tDP:        3 * time.Microsecond,
		tPP:        3 * time.Millisecond,
		tErase4KB:  400 * time.Millisecond,
		tErase32KB: 1600 * time.Millisecond,
		tErase64KB: 2000 * time.Millisecond,
		tEraseChip: 200 * time.Second,
	},

	flashIDWinbondW25Q256: {
		name: "Winbond W25Q 256Mb",
		size: 32 << 20,

		// [W25Q256|9.6 AC Electrical Characteristics]
		tRES1:      3 * time.Microsecond,
		tDP:        3 * time.Microsecond,
		tPP:        3 * time.Millisecond,
		tErase4KB:  400 * time.Millisecond,
		tErase32KB: 1600 * time.Millisecond,
		tErase64KB: 2000 * time.Millisecond,
		tEraseChip: 400 * time.Second,
	},

	// External flash of the nRF9160 DK.
	flashIDMacronixMX25R6435: {
		name: "Macronix MX25R 64Mb",
		size: 8 << 20,

		// [MX25R6435F|Table 19. AC Characteristics], maximum values
		tRES1:      35 * time.Microsecond,
		tDP:        10 * time.Microsecond,
		tPP:        10 * time.Millisecond,
		tErase4KB:  240 * time.Millisecond,
		tErase32KB: 1500 * time.Millisecond,
		tErase64KB: 3 * time.Second,
		tEraseChip: 240 * time.Second,
	},
}

func (f *Flash) paramOrMax(get func(*chipParams) time.Duration) time.Duration {
	// get parameter if configured
	if f.pr != nil {
		if d := get(f.pr); d > 0 {
			return d
		}
	}

	// fall back to maximum duration from all known flash parameters
	var tmax time.Duration
	for _, param := range knownFlash {
		tmax = max(tmax, get(&param))
	}
	return tmax
}

func (f *Flash) tRES1() time.Duration {
	return f.paramOrMax(func(p *chipParams) time.Duration { return p.tRES1 })
}
func (f *Flash) tDP() time.Duration {
	return f.paramOrMax(func(p *chipParams) time.Duration { return p.tDP })
}
func (f *Flash) tPP() time.Duration {
	return f.paramOrMax(func(p *chipParams) time.Duration { return p.tPP })
}
func (f *Flash) tEraseChip() time.Duration {
	return f.paramOrMax(func(p *chipParams) time.Duration { return p.tEraseChip })
}

func (f *Flash) tErase(s EraseSize) time.Duration {
	switch s {
	case Erase4KB:
		return f.paramOrMax(func(p *chipParams) time.Duration { return p.tErase4KB })
	case Erase32KB:
		return f.paramOrMax(func(p *chipParams) time.Duration { return p.tErase32KB })
	default:
		return f.paramOrMax(func(p *chipParams) time.Duration { return p.tErase64KB })
	}
}
