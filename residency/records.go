// Package residency implements the records exchanged between the tracer and
// the code that grows and shrinks the resident tree between frames.
package residency

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/labiraus/svo-tracer-sub000/octree/addr"
)

// Encoded record sizes in bytes.
const (
	ChildRequestSize = 31
	PruneRecordSize  = 16
	GraftRecordSize  = 13
	UsageRecordSize  = 6
)

var (
	ErrShortRecord = errors.New("residency: short record")
)

// ChildRequest is emitted by a ray that needed children of a block that has
// none.
type ChildRequest struct {
	// Index of the block whose children are missing.
	Address uint32

	// The frame tick the request was made at.
	Tick uint16

	// Depth of the block.
	Depth uint8

	// Location of the block's minimum corner.
	Location addr.Location
}

func (r ChildRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ChildRequestSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.Address)
	binary.LittleEndian.PutUint16(buf[4:6], r.Tick)
	buf[6] = r.Depth
	binary.LittleEndian.PutUint64(buf[7:15], r.Location.X)
	binary.LittleEndian.PutUint64(buf[15:23], r.Location.Y)
	binary.LittleEndian.PutUint64(buf[23:31], r.Location.Z)
	return buf, nil
}

func (r *ChildRequest) UnmarshalBinary(data []byte) error {
	if len(data) != ChildRequestSize {
		return fmt.Errorf("%w: child request needs %d bytes; got %d", ErrShortRecord, ChildRequestSize, len(data))
	}
	r.Address = binary.LittleEndian.Uint32(data[0:4])
	r.Tick = binary.LittleEndian.Uint16(data[4:6])
	r.Depth = data[6]
	r.Location = addr.Location{
		X: binary.LittleEndian.Uint64(data[7:15]),
		Y: binary.LittleEndian.Uint64(data[15:23]),
		Z: binary.LittleEndian.Uint64(data[23:31]),
	}
	return nil
}

// PruneFlag selects the operations performed by a PruneRecord.
type PruneFlag uint8

const (
	// Detach the child group and release its address.
	CullChild PruneFlag = 1 << iota

	// Change the eviction status of the group holding the block.
	AlterViolability

	// Used with AlterViolability; marks the group inviolate instead of
	// evictable.
	MakeInviolate

	// Overwrite the block's chunk mask.
	UpdateChunk

	// The address refers to the dense prefix instead of the block array.
	IsBaseBlock
)

// PruneRecord describes a change that removes or demotes tree data.
type PruneRecord struct {
	Properties PruneFlag
	Depth      uint8

	// Index of the block (or dense prefix entry) to change.
	Address uint32

	// Replacement chunk mask for UpdateChunk.
	Chunk uint16

	// Index of the block whose surface data replaces the culled block's.
	// NoChildren keeps the current data.
	ColourAddress uint32

	// The group released by CullChild.
	ChildAddress uint32
}

func (p PruneFlag) Has(flag PruneFlag) bool {
	return p&flag != 0
}

func (r PruneRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, PruneRecordSize)
	buf[0] = uint8(r.Properties)
	buf[1] = r.Depth
	binary.LittleEndian.PutUint32(buf[2:6], r.Address)
	binary.LittleEndian.PutUint16(buf[6:8], r.Chunk)
	binary.LittleEndian.PutUint32(buf[8:12], r.ColourAddress)
	binary.LittleEndian.PutUint32(buf[12:16], r.ChildAddress)
	return buf, nil
}

func (r *PruneRecord) UnmarshalBinary(data []byte) error {
	if len(data) != PruneRecordSize {
		return fmt.Errorf("%w: prune record needs %d bytes; got %d", ErrShortRecord, PruneRecordSize, len(data))
	}
	r.Properties = PruneFlag(data[0])
	r.Depth = data[1]
	r.Address = binary.LittleEndian.Uint32(data[2:6])
	r.Chunk = binary.LittleEndian.Uint16(data[6:8])
	r.ColourAddress = binary.LittleEndian.Uint32(data[8:12])
	r.ChildAddress = binary.LittleEndian.Uint32(data[12:16])
	return nil
}

// GraftRecord attaches a batch of blocks below an existing block.
type GraftRecord struct {
	// Group address the batch is stored at. Child pointers inside the
	// batch are relative to it.
	GraftDataAddress uint32

	// Number of blocks in the batch.
	GraftTotalSize uint32

	// Depth of the block receiving the batch.
	Depth uint8

	// Index of the block receiving the batch.
	GraftAddress uint32
}

func (r GraftRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, GraftRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.GraftDataAddress)
	binary.LittleEndian.PutUint32(buf[4:8], r.GraftTotalSize)
	buf[8] = r.Depth
	binary.LittleEndian.PutUint32(buf[9:13], r.GraftAddress)
	return buf, nil
}

func (r *GraftRecord) UnmarshalBinary(data []byte) error {
	if len(data) != GraftRecordSize {
		return fmt.Errorf("%w: graft record needs %d bytes; got %d", ErrShortRecord, GraftRecordSize, len(data))
	}
	r.GraftDataAddress = binary.LittleEndian.Uint32(data[0:4])
	r.GraftTotalSize = binary.LittleEndian.Uint32(data[4:8])
	r.Depth = data[8]
	r.GraftAddress = binary.LittleEndian.Uint32(data[9:13])
	return nil
}

// UsageRecord tracks when a block group was last needed.
type UsageRecord struct {
	LastTick uint16

	// Index of the block pointing at the group.
	ParentAddress uint32
}

// Inviolate marks groups that are never evicted.
var Inviolate = UsageRecord{LastTick: math.MaxUint16, ParentAddress: math.MaxUint32}

func (r UsageRecord) IsInviolate() bool {
	return r == Inviolate
}

func (r UsageRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, UsageRecordSize)
	binary.LittleEndian.PutUint16(buf[0:2], r.LastTick)
	binary.LittleEndian.PutUint32(buf[2:6], r.ParentAddress)
	return buf, nil
}

func (r *UsageRecord) UnmarshalBinary(data []byte) error {
	if len(data) != UsageRecordSize {
		return fmt.Errorf("%w: usage record needs %d bytes; got %d", ErrShortRecord, UsageRecordSize, len(data))
	}
	r.LastTick = binary.LittleEndian.Uint16(data[0:2])
	r.ParentAddress = binary.LittleEndian.Uint32(data[2:6])
	return nil
}

// Returns true if a request made at requestTick is still relevant at now.
// Ticks wrap around so the age is computed modulo 2^16.
func Fresh(requestTick, now, threshold uint16) bool {
	return now-requestTick <= threshold
}
