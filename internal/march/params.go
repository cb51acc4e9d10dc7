package march

import (
	"encoding/binary"
	"math"
)

// paramsSize is the byte size of the uniform block shared by all three
// kernels.
const paramsSize = 32

// Params is the per-update uniform block. The byte layout mirrors the
// WGSL struct exactly: vec3<u32> packs against the following u32, and
// vec3<f32> against the trailing f32, giving a 32-byte block with no
// padding.
type Params struct {
	// DimX, DimY, DimZ are the voxel dimensions of the field.
	DimX, DimY, DimZ uint32

	// MaxTriangles is the fixed triangle budget.
	MaxTriangles uint32

	// ScaleX, ScaleY, ScaleZ map the unit grid to world space.
	ScaleX, ScaleY, ScaleZ float32

	// Isovalue is the surface threshold.
	Isovalue float32
}

// CellsX, CellsY, CellsZ return the cell dimensions (one less than the
// voxel dimensions on each axis).
func (p Params) CellsX() uint32 { return p.DimX - 1 }
func (p Params) CellsY() uint32 { return p.DimY - 1 }
func (p Params) CellsZ() uint32 { return p.DimZ - 1 }

func (p Params) toBytes() []byte {
	buf := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(buf[0:], p.DimX)
	binary.LittleEndian.PutUint32(buf[4:], p.DimY)
	binary.LittleEndian.PutUint32(buf[8:], p.DimZ)
	binary.LittleEndian.PutUint32(buf[12:], p.MaxTriangles)
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(p.ScaleX))
	binary.LittleEndian.PutUint32(buf[20:], math.Float32bits(p.ScaleY))
	binary.LittleEndian.PutUint32(buf[24:], math.Float32bits(p.ScaleZ))
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(p.Isovalue))
	return buf
}
