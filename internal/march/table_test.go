package march

import (
	"encoding/binary"
	"testing"
)

func TestTriangleTableEmptyCases(t *testing.T) {
	table := PackedTriangleTable()
	for _, c := range []uint8{0, 255} {
		if got := table[c]; got != 0xFFFFFFFFFFFFFFFF {
			t.Errorf("case %d: packed entry = %#x, want all sentinel nibbles", c, got)
		}
		if edges := CaseEdges(c); len(edges) != 0 {
			t.Errorf("case %d: got %d edges, want 0", c, len(edges))
		}
	}
}

func TestTriangleTableEdgeRange(t *testing.T) {
	for c := 0; c < 256; c++ {
		edges := CaseEdges(uint8(c))
		if len(edges)%3 != 0 {
			t.Errorf("case %d: edge count %d not a multiple of 3", c, len(edges))
		}
		if len(edges) > 3*MaxTrianglesPerCell {
			t.Errorf("case %d: %d edges exceeds %d triangles", c, len(edges), MaxTrianglesPerCell)
		}
		for slot, e := range edges {
			if e < 0 || e > 11 {
				t.Errorf("case %d slot %d: edge index %d out of range", c, slot, e)
			}
		}
	}
}

// Every case's triangulation must place a vertex on every edge its mask
// crosses: the surface intersects each crossed edge exactly once, so the
// referenced edge set and the crossed edge set coincide. Complementary
// masks cross the same edges, so this also ties each complement pair to
// a shared edge set even where their triangle counts differ.
func TestTriangleTableCoversCrossedEdges(t *testing.T) {
	for c := 0; c < 256; c++ {
		var crossed, referenced [12]bool
		for e, corners := range EdgeCorners {
			insideA := c&(1<<corners[0]) != 0
			insideB := c&(1<<corners[1]) != 0
			crossed[e] = insideA != insideB
		}
		for _, e := range CaseEdges(uint8(c)) {
			referenced[e] = true
		}
		if crossed != referenced {
			t.Errorf("case %d: referenced edges %v, crossed edges %v", c, referenced, crossed)
		}
	}
}

// Complementary masks do not triangulate symmetrically in the classic
// table: the surface is the same point set but the fan decomposition is
// chosen per case. Pin a pair where the counts differ so a rewrite to a
// "symmetric" table variant is caught.
func TestTriangleTableAsymmetricComplements(t *testing.T) {
	if n := len(CaseEdges(41)) / 3; n != 3 {
		t.Errorf("case 41: %d triangles, want 3", n)
	}
	if n := len(CaseEdges(214)) / 3; n != 5 {
		t.Errorf("case 214: %d triangles, want 5", n)
	}
}

// Every edge a case references must separate an inside corner from an
// outside corner of that case's mask.
func TestTriangleTableEdgesCrossSurface(t *testing.T) {
	for c := 0; c < 256; c++ {
		for _, e := range CaseEdges(uint8(c)) {
			a, b := EdgeCorners[e][0], EdgeCorners[e][1]
			insideA := c&(1<<a) != 0
			insideB := c&(1<<b) != 0
			if insideA == insideB {
				t.Errorf("case %d: edge %d joins corners %d,%d on the same side", c, e, a, b)
			}
		}
	}
}

func TestTriangleTableKnownCase(t *testing.T) {
	// Mask 15: bottom four corners inside, the surface is a flat quad
	// crossing the four vertical edges.
	want := []int{9, 8, 10, 10, 8, 11}
	got := CaseEdges(15)
	if len(got) != len(want) {
		t.Fatalf("case 15: got %d edges, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("case 15 slot %d: edge %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEdgeCornersTopology(t *testing.T) {
	// Each corner participates in exactly three edges.
	var degree [8]int
	for _, e := range EdgeCorners {
		degree[e[0]]++
		degree[e[1]]++
	}
	for corner, d := range degree {
		if d != 3 {
			t.Errorf("corner %d: degree %d, want 3", corner, d)
		}
	}
	// Edge endpoints differ on exactly one axis.
	for i, e := range EdgeCorners {
		diff := 0
		for axis := 0; axis < 3; axis++ {
			if CornerOffsets[e[0]][axis] != CornerOffsets[e[1]][axis] {
				diff++
			}
		}
		if diff != 1 {
			t.Errorf("edge %d: corners %v differ on %d axes, want 1", i, e, diff)
		}
	}
}

func TestTriangleTableBytesLayout(t *testing.T) {
	buf := TriangleTableBytes()
	if len(buf) != 256*8 {
		t.Fatalf("serialized table is %d bytes, want %d", len(buf), 256*8)
	}
	// Case 1 emits the single triangle (0, 8, 3); the low u32 word must
	// decode back to those nibbles followed by sentinels.
	lo := binary.LittleEndian.Uint32(buf[1*8:])
	if e0 := lo & 0xF; e0 != 0 {
		t.Errorf("case 1 slot 0: edge %d, want 0", e0)
	}
	if e1 := (lo >> 4) & 0xF; e1 != 8 {
		t.Errorf("case 1 slot 1: edge %d, want 8", e1)
	}
	if e2 := (lo >> 8) & 0xF; e2 != 3 {
		t.Errorf("case 1 slot 2: edge %d, want 3", e2)
	}
	if e3 := (lo >> 12) & 0xF; e3 != edgeSentinel {
		t.Errorf("case 1 slot 3: nibble %#x, want sentinel", e3)
	}
}
