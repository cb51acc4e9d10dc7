package isosurface

import (
	"errors"
	"fmt"
)

// Grid errors.
var (
	// ErrInvalidGrid is returned when a grid dimension is not positive
	// or too small to contain a single cell.
	ErrInvalidGrid = errors.New("isosurface: grid dimensions must be at least 2 on every axis")
)

// GridDesc describes a regular voxel grid. Each dimension counts voxel
// samples, not cells; a grid of DimX x DimY x DimZ voxels contains
// (DimX-1) x (DimY-1) x (DimZ-1) extractable cells. A GridDesc is
// immutable for the lifetime of the Builder constructed from it.
type GridDesc struct {
	// DimX is the number of voxels along X (the fastest-varying axis).
	DimX int

	// DimY is the number of voxels along Y.
	DimY int

	// DimZ is the number of voxels along Z (the slowest-varying axis).
	DimZ int
}

// Validate checks that every dimension can host at least one cell.
func (g GridDesc) Validate() error {
	if g.DimX < 2 || g.DimY < 2 || g.DimZ < 2 {
		return fmt.Errorf("%w: got %dx%dx%d", ErrInvalidGrid, g.DimX, g.DimY, g.DimZ)
	}
	return nil
}

// VoxelCount returns the total number of scalar samples in the grid.
func (g GridDesc) VoxelCount() int {
	return g.DimX * g.DimY * g.DimZ
}

// CellCount returns the number of extractable cells. Voxels at the +axis
// boundary do not originate cells.
func (g GridDesc) CellCount() int {
	return (g.DimX - 1) * (g.DimY - 1) * (g.DimZ - 1)
}

// Index returns the flat field index of voxel (x, y, z): x is the
// fastest-varying coordinate, z the slowest.
func (g GridDesc) Index(x, y, z int) int {
	return x + g.DimX*(y+g.DimY*z)
}
