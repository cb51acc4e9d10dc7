package isosurface

import (
	"errors"
	"testing"
)

func TestGridDescValidate(t *testing.T) {
	tests := []struct {
		name    string
		grid    GridDesc
		wantErr bool
	}{
		{"minimum", GridDesc{2, 2, 2}, false},
		{"typical", GridDesc{64, 64, 64}, false},
		{"anisotropic", GridDesc{16, 128, 2}, false},
		{"flat x", GridDesc{1, 8, 8}, true},
		{"flat y", GridDesc{8, 1, 8}, true},
		{"flat z", GridDesc{8, 8, 1}, true},
		{"zero", GridDesc{}, true},
		{"negative", GridDesc{-4, 8, 8}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grid.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGrid) {
					t.Errorf("Validate() = %v, want ErrInvalidGrid", err)
				}
			} else if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestGridDescCounts(t *testing.T) {
	g := GridDesc{DimX: 4, DimY: 5, DimZ: 6}
	if got := g.VoxelCount(); got != 120 {
		t.Errorf("VoxelCount() = %d, want 120", got)
	}
	if got := g.CellCount(); got != 3*4*5 {
		t.Errorf("CellCount() = %d, want %d", got, 3*4*5)
	}
}

func TestGridDescIndex(t *testing.T) {
	g := GridDesc{DimX: 4, DimY: 5, DimZ: 6}
	if got := g.Index(0, 0, 0); got != 0 {
		t.Errorf("Index(0,0,0) = %d, want 0", got)
	}
	// x is fastest-varying.
	if got := g.Index(1, 0, 0); got != 1 {
		t.Errorf("Index(1,0,0) = %d, want 1", got)
	}
	if got := g.Index(0, 1, 0); got != 4 {
		t.Errorf("Index(0,1,0) = %d, want 4", got)
	}
	if got := g.Index(0, 0, 1); got != 20 {
		t.Errorf("Index(0,0,1) = %d, want 20", got)
	}
	if got := g.Index(3, 4, 5); got != g.VoxelCount()-1 {
		t.Errorf("Index(max) = %d, want %d", got, g.VoxelCount()-1)
	}
}
