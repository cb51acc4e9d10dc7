// reference.go is a CPU mirror of the GPU pipeline: the same cell
// classification, interpolation, budget clamping and tail-clear
// semantics as the WGSL kernels, operating on plain slices. It backs
// the semantic tests, which cannot observe kernel output on a noop
// device. All arithmetic is float32 to track the shaders.

package march

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// refPipeline runs marching cubes on the host with the exact buffer
// semantics of the GPU pipeline: fixed-capacity vertex/index slices,
// a saturating triangle cursor, and cross-update tail clearing.
type refPipeline struct {
	params Params

	// vertices holds 3*MaxTriangles vertices, 6 f32 each, mirroring the
	// GPU vertex buffer layout.
	vertices []float32

	// indices holds 3*MaxTriangles entries.
	indices []uint32

	// prevCount is the clamped triangle count of the previous update.
	prevCount uint32
}

func newRefPipeline(params Params) *refPipeline {
	r := &refPipeline{
		params:   params,
		vertices: make([]float32, int(params.MaxTriangles)*3*6),
		indices:  make([]uint32, int(params.MaxTriangles)*3),
	}
	// Fresh buffers start fully degenerate with identity indices, the
	// same state AllocateBuffers establishes on the device. Zero indices
	// happen to also be degenerate, but the clear pass writes identity,
	// so start from the post-clear state.
	r.clearRange(0, params.MaxTriangles)
	return r
}

func (r *refPipeline) fieldAt(field []float32, x, y, z uint32) float32 {
	return field[x+r.params.DimX*(y+r.params.DimY*z)]
}

func (r *refPipeline) toWorld(p mgl32.Vec3) mgl32.Vec3 {
	ext := mgl32.Vec3{
		float32(r.params.DimX - 1),
		float32(r.params.DimY - 1),
		float32(r.params.DimZ - 1),
	}
	return mgl32.Vec3{
		(p.X()/ext.X() - 0.5) * r.params.ScaleX,
		(p.Y()/ext.Y() - 0.5) * r.params.ScaleY,
		(p.Z()/ext.Z() - 0.5) * r.params.ScaleZ,
	}
}

func (r *refPipeline) edgeVertex(cx, cy, cz uint32, e int, values *[8]float32) mgl32.Vec3 {
	a, b := EdgeCorners[e][0], EdgeCorners[e][1]
	va, vb := values[a], values[b]
	t := float32(0.5)
	denom := vb - va
	if float32(math.Abs(float64(denom))) > 1e-30 {
		t = (r.params.Isovalue - va) / denom
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	pa := mgl32.Vec3{
		float32(cx + uint32(CornerOffsets[a][0])),
		float32(cy + uint32(CornerOffsets[a][1])),
		float32(cz + uint32(CornerOffsets[a][2])),
	}
	pb := mgl32.Vec3{
		float32(cx + uint32(CornerOffsets[b][0])),
		float32(cy + uint32(CornerOffsets[b][1])),
		float32(cz + uint32(CornerOffsets[b][2])),
	}
	return r.toWorld(pa.Add(pb.Sub(pa).Mul(t)))
}

func (r *refPipeline) writeVertex(v uint32, p, n mgl32.Vec3) {
	base := int(v) * 6
	r.vertices[base+0] = p.X()
	r.vertices[base+1] = p.Y()
	r.vertices[base+2] = p.Z()
	r.vertices[base+3] = n.X()
	r.vertices[base+4] = n.Y()
	r.vertices[base+5] = n.Z()
	r.indices[v] = v
}

func (r *refPipeline) clearRange(base, count uint32) {
	for tri := base; tri < base+count; tri++ {
		for k := uint32(0); k < 3; k++ {
			v := tri*3 + k
			for j := 0; j < 6; j++ {
				r.vertices[int(v)*6+j] = 0
			}
			r.indices[v] = v
		}
	}
}

// update runs one extraction over the field and returns the clamped
// live triangle count.
func (r *refPipeline) update(field []float32) uint32 {
	p := r.params
	var counter uint32

	for cz := uint32(0); cz < p.CellsZ(); cz++ {
		for cy := uint32(0); cy < p.CellsY(); cy++ {
			for cx := uint32(0); cx < p.CellsX(); cx++ {
				var values [8]float32
				mask := 0
				for i := 0; i < 8; i++ {
					v := r.fieldAt(field,
						cx+uint32(CornerOffsets[i][0]),
						cy+uint32(CornerOffsets[i][1]),
						cz+uint32(CornerOffsets[i][2]))
					values[i] = v
					if v < p.Isovalue {
						mask |= 1 << i
					}
				}
				if mask == 0 || mask == 255 {
					continue
				}

				edges := CaseEdges(uint8(mask))
				for t := 0; t < len(edges); t += 3 {
					idx := counter
					counter++
					if idx >= p.MaxTriangles {
						continue
					}

					p0 := r.edgeVertex(cx, cy, cz, edges[t], &values)
					p1 := r.edgeVertex(cx, cy, cz, edges[t+1], &values)
					p2 := r.edgeVertex(cx, cy, cz, edges[t+2], &values)

					n := p1.Sub(p0).Cross(p2.Sub(p0))
					if l := n.Len(); l > 1e-20 {
						n = n.Mul(1 / l)
					} else {
						n = mgl32.Vec3{}
					}

					r.writeVertex(idx*3+0, p0, n)
					r.writeVertex(idx*3+1, p1, n)
					r.writeVertex(idx*3+2, p2, n)
				}
			}
		}
	}

	// Resolve + tail clear, exactly as the resolver computes them.
	cur := counter
	if cur > p.MaxTriangles {
		cur = p.MaxTriangles
	}
	if r.prevCount > cur {
		r.clearRange(cur, r.prevCount-cur)
	}
	r.prevCount = cur
	return cur
}

// triangle returns the three vertex positions of triangle i.
func (r *refPipeline) triangle(i uint32) [3]mgl32.Vec3 {
	var out [3]mgl32.Vec3
	for k := uint32(0); k < 3; k++ {
		base := int(i*3+k) * 6
		out[k] = mgl32.Vec3{r.vertices[base], r.vertices[base+1], r.vertices[base+2]}
	}
	return out
}

// normal returns the stored normal of vertex v.
func (r *refPipeline) normal(v uint32) mgl32.Vec3 {
	base := int(v) * 6
	return mgl32.Vec3{r.vertices[base+3], r.vertices[base+4], r.vertices[base+5]}
}

// isDegenerate reports whether triangle i has all three positions at
// the origin.
func (r *refPipeline) isDegenerate(i uint32) bool {
	tri := r.triangle(i)
	return tri[0] == (mgl32.Vec3{}) && tri[1] == (mgl32.Vec3{}) && tri[2] == (mgl32.Vec3{})
}
