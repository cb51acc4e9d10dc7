package march

import (
	"math"
	"testing"
)

// planeField fills a field with its z coordinate, so isovalues between
// two sample planes cut a flat horizontal surface.
func planeField(p Params) []float32 {
	field := make([]float32, int(p.DimX*p.DimY*p.DimZ))
	i := 0
	for z := uint32(0); z < p.DimZ; z++ {
		for y := uint32(0); y < p.DimY; y++ {
			for x := uint32(0); x < p.DimX; x++ {
				field[i] = float32(z)
				i++
			}
		}
	}
	return field
}

// sphereField fills a field with the signed distance to a sphere of the
// given radius centered in the grid. Negative inside.
func sphereField(p Params, radius float32) []float32 {
	field := make([]float32, int(p.DimX*p.DimY*p.DimZ))
	cx := float32(p.DimX-1) / 2
	cy := float32(p.DimY-1) / 2
	cz := float32(p.DimZ-1) / 2
	i := 0
	for z := uint32(0); z < p.DimZ; z++ {
		for y := uint32(0); y < p.DimY; y++ {
			for x := uint32(0); x < p.DimX; x++ {
				dx := float32(x) - cx
				dy := float32(y) - cy
				dz := float32(z) - cz
				field[i] = float32(math.Sqrt(float64(dx*dx+dy*dy+dz*dz))) - radius
				i++
			}
		}
	}
	return field
}

func unitParams(dim, budget uint32) Params {
	return Params{
		DimX: dim, DimY: dim, DimZ: dim,
		MaxTriangles: budget,
		ScaleX:       1, ScaleY: 1, ScaleZ: 1,
	}
}

func TestReferenceSingleCellStep(t *testing.T) {
	p := unitParams(2, 16)
	p.Isovalue = 0.5
	r := newRefPipeline(p)

	// Bottom four corners at 0, top four at 1: the surface is the flat
	// plane halfway up, case 15, two triangles.
	field := []float32{0, 0, 0, 0, 1, 1, 1, 1}
	count := r.update(field)
	if count != 2 {
		t.Fatalf("live triangles = %d, want 2", count)
	}

	for tri := uint32(0); tri < count; tri++ {
		for _, pos := range r.triangle(tri) {
			// The crossing sits exactly between the sample planes, which
			// is world z = 0 on a unit-scaled 2^3 grid.
			if math.Abs(float64(pos.Z())) > 1e-6 {
				t.Errorf("triangle %d vertex at z=%g, want 0", tri, pos.Z())
			}
			if pos.X() < -0.5 || pos.X() > 0.5 || pos.Y() < -0.5 || pos.Y() > 0.5 {
				t.Errorf("triangle %d vertex %v outside the scaled grid", tri, pos)
			}
		}
		for k := uint32(0); k < 3; k++ {
			n := r.normal(tri*3 + k)
			if math.Abs(float64(n.Len()-1)) > 1e-5 {
				t.Errorf("vertex %d: normal length %g, want 1", tri*3+k, n.Len())
			}
			if math.Abs(math.Abs(float64(n.Z()))-1) > 1e-5 {
				t.Errorf("vertex %d: normal %v not aligned with z axis", tri*3+k, n)
			}
		}
	}

	// Everything past the live region stays degenerate.
	for tri := count; tri < p.MaxTriangles; tri++ {
		if !r.isDegenerate(tri) {
			t.Errorf("triangle %d past live region is not degenerate", tri)
		}
	}
}

func TestReferenceDeterminism(t *testing.T) {
	p := unitParams(8, 2048)
	field := sphereField(p, 2.5)

	a := newRefPipeline(p)
	b := newRefPipeline(p)
	ca := a.update(field)
	cb := b.update(field)
	if ca != cb {
		t.Fatalf("counts differ: %d vs %d", ca, cb)
	}
	if ca == 0 {
		t.Fatal("sphere extraction produced no triangles")
	}

	for i := range a.vertices {
		if a.vertices[i] != b.vertices[i] {
			t.Fatalf("vertex data diverges at f32 %d: %g vs %g", i, a.vertices[i], b.vertices[i])
		}
	}
	for i := range a.indices {
		if a.indices[i] != b.indices[i] {
			t.Fatalf("index data diverges at %d: %d vs %d", i, a.indices[i], b.indices[i])
		}
	}

	// Re-running the same field on the same pipeline is also stable.
	if c := a.update(field); c != ca {
		t.Fatalf("repeat update count = %d, want %d", c, ca)
	}
}

func TestReferenceIdentityIndices(t *testing.T) {
	p := unitParams(8, 1024)
	r := newRefPipeline(p)
	r.update(sphereField(p, 2.5))

	for i, idx := range r.indices {
		if idx != uint32(i) {
			t.Fatalf("index[%d] = %d, want identity", i, idx)
		}
	}
}

func TestReferenceOutOfRangeIsovalue(t *testing.T) {
	p := unitParams(8, 512)
	r := newRefPipeline(p)

	// Populate with real geometry first so the empty update has a tail
	// to clear.
	if c := r.update(sphereField(p, 2.5)); c == 0 {
		t.Fatal("setup extraction produced no triangles")
	}

	// An isovalue below every sample puts every cell in case 0.
	empty := unitParams(8, 512)
	empty.Isovalue = -100
	r.params = empty
	if c := r.update(sphereField(p, 2.5)); c != 0 {
		t.Fatalf("live triangles = %d, want 0", c)
	}
	for tri := uint32(0); tri < p.MaxTriangles; tri++ {
		if !r.isDegenerate(tri) {
			t.Fatalf("triangle %d not degenerate after empty update", tri)
		}
	}
}

func TestReferenceTailClear(t *testing.T) {
	p := unitParams(10, 4096)
	r := newRefPipeline(p)

	big := r.update(sphereField(p, 3.5))
	small := r.update(sphereField(p, 1.5))
	if small >= big {
		t.Fatalf("shrinking the sphere did not shrink the mesh: %d -> %d", big, small)
	}
	if small == 0 {
		t.Fatal("small sphere produced no triangles")
	}

	// The stale region [small, big) and everything beyond must be
	// degenerate; the live region must contain real geometry.
	for tri := small; tri < p.MaxTriangles; tri++ {
		if !r.isDegenerate(tri) {
			t.Fatalf("stale triangle %d survived the tail clear", tri)
		}
	}
	live := 0
	for tri := uint32(0); tri < small; tri++ {
		if !r.isDegenerate(tri) {
			live++
		}
	}
	if live == 0 {
		t.Fatal("no live geometry in the live region")
	}
}

func TestReferenceBudgetSaturation(t *testing.T) {
	// Count the demand first with a generous budget.
	generous := unitParams(8, 1<<16)
	demand := newRefPipeline(generous).update(sphereField(generous, 2.5))
	if demand < 8 {
		t.Fatalf("sphere demand %d too small for a saturation test", demand)
	}

	// A budget below demand saturates exactly at the budget.
	tight := unitParams(8, demand/2)
	r := newRefPipeline(tight)
	if c := r.update(sphereField(tight, 2.5)); c != tight.MaxTriangles {
		t.Fatalf("saturated count = %d, want %d", c, tight.MaxTriangles)
	}
	for tri := uint32(0); tri < tight.MaxTriangles; tri++ {
		if r.isDegenerate(tri) {
			t.Fatalf("triangle %d inside saturated budget is degenerate", tri)
		}
	}

	// A budget of exactly the demand fits without clamping.
	exact := unitParams(8, demand)
	if c := newRefPipeline(exact).update(sphereField(exact, 2.5)); c != demand {
		t.Fatalf("exact-fit count = %d, want %d", c, demand)
	}
}

func TestReferenceScaleAppliesPerAxis(t *testing.T) {
	p := unitParams(2, 16)
	p.Isovalue = 0.5
	p.ScaleX, p.ScaleY, p.ScaleZ = 4, 2, 8
	r := newRefPipeline(p)
	count := r.update([]float32{0, 0, 0, 0, 1, 1, 1, 1})
	if count != 2 {
		t.Fatalf("live triangles = %d, want 2", count)
	}
	for tri := uint32(0); tri < count; tri++ {
		for _, pos := range r.triangle(tri) {
			if math.Abs(float64(pos.X())) > 2+1e-5 || math.Abs(float64(pos.Y())) > 1+1e-5 {
				t.Errorf("vertex %v escapes the scaled bounds", pos)
			}
			if math.Abs(float64(pos.Z())) > 1e-5 {
				t.Errorf("vertex %v off the crossing plane", pos)
			}
		}
	}
}

func TestReferencePlaneSweepMonotone(t *testing.T) {
	// Sweeping the isovalue through a z-gradient field keeps the
	// triangle count constant (one flat sheet) while moving the sheet.
	p := unitParams(6, 512)
	field := planeField(p)

	r := newRefPipeline(p)
	var lastZ float32 = -10
	for _, iso := range []float32{0.5, 1.5, 2.5, 3.5, 4.5} {
		pp := p
		pp.Isovalue = iso
		r.params = pp
		count := r.update(field)
		if count == 0 {
			t.Fatalf("iso %g: no triangles", iso)
		}
		z := r.triangle(0)[0].Z()
		if z <= lastZ {
			t.Fatalf("iso %g: sheet at z=%g did not advance past %g", iso, z, lastZ)
		}
		lastZ = z
	}
}
