package norstore

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// BlockSize is the length of the parameter and device blocks.
const BlockSize = 256

// BlockStore persists one fixed-size block at the start of a region. Save
// always erases the unit and rewrites the whole block.
type BlockStore struct {
	flash  *Flash
	region Region
	size   int
}

func NewBlockStore(f *Flash, r Region, size int) (*BlockStore, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if size <= 0 || size > r.Length || size > int(r.EraseSize) {
		return nil, errorf(KindOutOfBounds, "block store", r.Start, "block of %d bytes does not fit %s", size, r)
	}
	if f.Chip() != r.Chip {
		return nil, errorf(KindOutOfBounds, "block store", r.Start, "region %s is not on cs%d", r, f.Chip())
	}
	return &BlockStore{flash: f, region: r, size: size}, nil
}

func (s *BlockStore) Region() Region { return s.region }

// Load reads the block. An erased block is returned together with a
// KindBlank error.
func (s *BlockStore) Load() ([]byte, error) {
	buf := make([]byte, s.size)
	if err := s.flash.Read(s.region.Start, buf); err != nil {
		return nil, err
	}
	if isErased(buf) {
		return buf, newError(KindBlank, "load "+s.region.Name, s.region.Start, nil)
	}
	return buf, nil
}

// Save erases the block's unit and programs b.
func (s *BlockStore) Save(b []byte) error {
	if len(b) != s.size {
		return errorf(KindAlignment, "save "+s.region.Name, s.region.Start, "block is %d bytes, want %d", len(b), s.size)
	}
	if err := s.flash.Erase(s.region.EraseSize, s.region.Start); err != nil {
		return err
	}
	return s.flash.Program(s.region.Start, b)
}

func isErased(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}

func encodeBlock(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(BlockSize)
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, errors.Wrap(err, "encode block")
	}
	if buf.Len() != BlockSize {
		return nil, errors.Errorf("encode block: got %d bytes, want %d", buf.Len(), BlockSize)
	}
	return buf.Bytes(), nil
}

func decodeBlock(b []byte, v any) error {
	if len(b) != BlockSize {
		return errorf(KindAlignment, "decode block", NoAddr, "got %d bytes, want %d", len(b), BlockSize)
	}
	return errors.Wrap(binary.Read(bytes.NewReader(b), binary.LittleEndian, v), "decode block")
}
