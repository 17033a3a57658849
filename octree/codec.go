package octree

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/labiraus/svo-tracer-sub000/octree/addr"
)

// BlockSize is the encoded size of a Block in bytes.
const BlockSize = 16

// The encoded size of the header (base depth + block count).
const headerSize = 5

var (
	ErrCorrupt = errors.New("octree: corrupt tree data")
)

// Get the encoded size of the tree in bytes.
func (t *Octree) EncodedSize() int {
	return headerSize + 2*len(t.BaseBlocks) + BlockSize*len(t.Blocks)
}

// Write the tree to w. All fields are little endian:
//
//	baseDepth  u8
//	blockCount u32
//	baseBlocks [PowSum(baseDepth)]u16
//	blocks     [blockCount]Block
//
// Each block is encoded as child u32, chunk u16, pitch i16, yaw i16,
// r, g, b, opacity, specularity, gloss u8.
func (t *Octree) Encode(w io.Writer) error {
	if err := t.Validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	var scratch [BlockSize]byte

	scratch[0] = t.BaseDepth
	binary.LittleEndian.PutUint32(scratch[1:5], t.BlockCount)
	if _, err := bw.Write(scratch[:headerSize]); err != nil {
		return err
	}

	for _, m := range t.BaseBlocks {
		binary.LittleEndian.PutUint16(scratch[:2], uint16(m))
		if _, err := bw.Write(scratch[:2]); err != nil {
			return err
		}
	}

	for i := range t.Blocks {
		putBlock(scratch[:], &t.Blocks[i])
		if _, err := bw.Write(scratch[:]); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Read a tree written by Encode. Truncated or inconsistent input yields an
// error wrapping ErrCorrupt.
func Decode(r io.Reader) (*Octree, error) {
	br := bufio.NewReader(r)
	var scratch [BlockSize]byte

	if _, err := io.ReadFull(br, scratch[:headerSize]); err != nil {
		return nil, corrupt("header", err)
	}

	t := &Octree{
		BaseDepth:  scratch[0],
		BlockCount: binary.LittleEndian.Uint32(scratch[1:5]),
	}
	if t.BaseDepth == 0 || t.BaseDepth > MaxBaseDepth {
		return nil, fmt.Errorf("%w: unsupported base depth %d", ErrCorrupt, t.BaseDepth)
	}

	t.BaseBlocks = make([]ChunkMask, addr.PowSum(uint16(t.BaseDepth)))
	for i := range t.BaseBlocks {
		if _, err := io.ReadFull(br, scratch[:2]); err != nil {
			return nil, corrupt("base blocks", err)
		}
		t.BaseBlocks[i] = ChunkMask(binary.LittleEndian.Uint16(scratch[:2]))
	}

	// Grow the block list while reading so that a bogus block count in a
	// truncated file does not trigger a huge allocation.
	t.Blocks = make([]Block, 0, min(t.BlockCount, 1<<20))
	for i := uint32(0); i < t.BlockCount; i++ {
		if _, err := io.ReadFull(br, scratch[:]); err != nil {
			return nil, corrupt(fmt.Sprintf("block %d", i), err)
		}
		t.Blocks = append(t.Blocks, getBlock(scratch[:]))
	}

	return t, nil
}

// Implements encoding.BinaryMarshaler.
func (t *Octree) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(t.EncodedSize())
	if err := t.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Implements encoding.BinaryUnmarshaler. Trailing bytes are rejected.
func (t *Octree) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	decoded, err := Decode(r)
	if err != nil {
		return err
	}
	if decoded.EncodedSize() != len(data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data)-decoded.EncodedSize())
	}
	*t = *decoded
	return nil
}

func putBlock(buf []byte, b *Block) {
	binary.LittleEndian.PutUint32(buf[0:4], b.Child)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(b.Chunk))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(b.NormalPitch))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(b.NormalYaw))
	buf[10] = b.Colour[0]
	buf[11] = b.Colour[1]
	buf[12] = b.Colour[2]
	buf[13] = b.Opacity
	buf[14] = b.Specularity
	buf[15] = b.Gloss
}

func getBlock(buf []byte) Block {
	return Block{
		Child:       binary.LittleEndian.Uint32(buf[0:4]),
		Chunk:       ChunkMask(binary.LittleEndian.Uint16(buf[4:6])),
		NormalPitch: int16(binary.LittleEndian.Uint16(buf[6:8])),
		NormalYaw:   int16(binary.LittleEndian.Uint16(buf[8:10])),
		Colour:      [3]uint8{buf[10], buf[11], buf[12]},
		Opacity:     buf[13],
		Specularity: buf[14],
		Gloss:       buf[15],
	}
}

func corrupt(section string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated %s", ErrCorrupt, section)
	}
	return fmt.Errorf("octree: reading %s: %w", section, err)
}
