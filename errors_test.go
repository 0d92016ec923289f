package norstore

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
)

func TestIsKind_ThroughWrapping(t *testing.T) {
	base := errorf(KindTimeout, "erase", 0x1000, "waited %s", "2s")

	tests := []struct {
		name string
		err  error
	}{
		{"plain", base},
		{"pkg/errors", errors.Wrap(base, "clear log")},
		{"fmt", fmt.Errorf("clear log: %w", base)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsKind(tt.err, KindTimeout) {
				t.Fatalf("IsKind(%v, timeout) = false", tt.err)
			}
			if IsKind(tt.err, KindBlank) {
				t.Fatalf("IsKind(%v, blank) = true", tt.err)
			}
			if KindOf(tt.err) != KindTimeout {
				t.Fatalf("KindOf() = %s", KindOf(tt.err))
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errorf(KindOutOfBounds, "record", 0x2000, "index %d", 64), "record: out of bounds at 0x002000: index 64"},
		{newError(KindBlank, "load params", NoAddr, nil), "load params: blank block"},
		{newError(KindTransport, "tx", 0, errors.New("usb gone")), "tx: transport fault at 0x000000: usb gone"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Fatalf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestKindOf_Foreign(t *testing.T) {
	if k := KindOf(errors.New("other")); k != 0 {
		t.Fatalf("KindOf(foreign) = %s", k)
	}
	if KindOf(nil) != 0 {
		t.Fatalf("KindOf(nil) != 0")
	}
}
