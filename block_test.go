package norstore

import (
	"bytes"
	"testing"
)

func newTestBlock(t *testing.T) (*BlockStore, *Flash) {
	t.Helper()
	f, _ := newTestFlash(t, 64<<10)
	s, err := NewBlockStore(f, Region{Name: "params", Start: 0x1000, Length: 0x1000, EraseSize: Erase4KB}, BlockSize)
	if err != nil {
		t.Fatalf("NewBlockStore() err=%v", err)
	}
	return s, f
}

func TestBlockStore_Blank(t *testing.T) {
	s, _ := newTestBlock(t)
	b, err := s.Load()
	wantKind(t, err, KindBlank)
	if len(b) != BlockSize || !isErased(b) {
		t.Fatalf("blank Load() returned %d bytes", len(b))
	}
}

func TestBlockStore_SaveIsRepeatable(t *testing.T) {
	s, _ := newTestBlock(t)
	for seed := byte(0); seed < 3; seed++ {
		want := pattern(BlockSize, seed)
		if err := s.Save(want); err != nil {
			t.Fatalf("Save() err=%v", err)
		}
		if err := s.Save(want); err != nil {
			t.Fatalf("second Save() err=%v", err)
		}
		got, err := s.Load()
		if err != nil {
			t.Fatalf("Load() err=%v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Load() after Save(seed=%d) differs", seed)
		}
	}
}

func TestBlockStore_WrongSize(t *testing.T) {
	s, _ := newTestBlock(t)
	wantKind(t, s.Save(make([]byte, BlockSize-1)), KindAlignment)
}

func TestNewBlockStore_TooLarge(t *testing.T) {
	f, _ := newTestFlash(t, 64<<10)
	_, err := NewBlockStore(f, Region{Name: "b", Start: 0, Length: 0x100, EraseSize: Erase4KB}, 0x200)
	wantKind(t, err, KindOutOfBounds)
}

func TestParams_Block(t *testing.T) {
	p := DefaultParams()
	p.SampleRateHz = 104
	p.RFIDPowerDBm = -3
	p.SetCloudHost("tracker.example.org")

	b, err := p.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() err=%v", err)
	}
	if len(b) != BlockSize {
		t.Fatalf("params block is %d bytes", len(b))
	}

	var q Params
	if err := q.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() err=%v", err)
	}
	if q != p {
		t.Fatalf("got %+v, want %+v", q, p)
	}
	if q.Host() != "tracker.example.org" {
		t.Fatalf("Host() = %q", q.Host())
	}
	wantKind(t, q.UnmarshalBinary(b[:10]), KindAlignment)
}

func TestParams_LongHostTruncated(t *testing.T) {
	var p Params
	long := bytes.Repeat([]byte("h"), 80)
	p.SetCloudHost(string(long))
	if len(p.Host()) != len(p.CloudHost) {
		t.Fatalf("Host() has %d bytes, want %d", len(p.Host()), len(p.CloudHost))
	}
}

func TestDeviceInfo_Block(t *testing.T) {
	d := DeviceInfo{HardwareRev: 3, Serial: 4711, ManufacturedAt: 1690000000, BootCount: 12}
	d.SetIMEI("352656100367872")

	b, err := d.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() err=%v", err)
	}
	if len(b) != BlockSize {
		t.Fatalf("device block is %d bytes", len(b))
	}
	var e DeviceInfo
	if err := e.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() err=%v", err)
	}
	if e != d {
		t.Fatalf("got %+v, want %+v", e, d)
	}
	if got := e.String(); got != "hw rev 3 serial 00004711 imei 352656100367872 boots 12" {
		t.Fatalf("String() = %q", got)
	}
}
