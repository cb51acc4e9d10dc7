package isosurface

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/isosurface/internal/march"
)

// Vertex layout constants. Every vertex is a position followed by a
// per-face normal, six contiguous float32 values. The extraction and
// tail-clear shaders write this exact layout; swapping it without
// changing the shaders breaks the output silently.
const (
	// VertexStride is the byte size of one vertex (3x f32 position +
	// 3x f32 normal).
	VertexStride = march.VertexStride

	// IndexSize is the byte size of one index buffer entry (uint32).
	IndexSize = march.IndexSize
)

// Submesh describes the renderable index range of a Mesh. There is
// always exactly one submesh and it spans the full allocated capacity,
// not the live triangle count: the tail-clear kernel, not the submesh
// range, hides unused geometry by degenerating it.
type Submesh struct {
	// FirstIndex is the offset of the first index. Always 0.
	FirstIndex uint32

	// IndexCount is the number of indices, 3 x triangle budget.
	IndexCount uint32
}

// Bounds is an axis-aligned bounding box. For meshes produced by this
// package the box is a pessimistic bound derived from the caller's
// world scale, never a tight fit to the extracted geometry.
type Bounds struct {
	// Center of the box in world space. Always the origin.
	Center mgl32.Vec3

	// Size is the full extent of the box on each axis.
	Size mgl32.Vec3
}

// Mesh is the render artifact produced by a Builder. Its identity is
// stable for the Builder's lifetime: Update mutates the buffer contents
// in place, so callers that cache the Mesh keep seeing current geometry.
//
// The vertex and index buffers are the very storage the compute kernels
// write; no copy sits between extraction and the render consumer. They
// carry Vertex/Index usage in addition to Storage so a render pass can
// bind them directly.
//
// A Mesh is borrowed from its Builder. It must not be used after the
// Builder is disposed.
type Mesh struct {
	vertexBuf hal.Buffer
	indexBuf  hal.Buffer
	budget    int

	// mu guards bounds, the only field Update mutates; the buffers and
	// budget are fixed at construction.
	mu     sync.RWMutex
	bounds Bounds
}

// VertexBuffer returns the device-resident vertex buffer
// (position+normal, VertexStride bytes per vertex, 3 x budget vertices).
func (m *Mesh) VertexBuffer() hal.Buffer { return m.vertexBuf }

// IndexBuffer returns the device-resident 32-bit index buffer
// (3 x budget entries).
func (m *Mesh) IndexBuffer() hal.Buffer { return m.indexBuf }

// TriangleBudget returns the fixed triangle capacity the buffers were
// allocated for.
func (m *Mesh) TriangleBudget() int { return m.budget }

// Submesh returns the single submesh descriptor covering the entire
// allocated capacity.
func (m *Mesh) Submesh() Submesh {
	return Submesh{FirstIndex: 0, IndexCount: uint32(3 * m.budget)}
}

// Bounds returns the axis-aligned bounding box set by the most recent
// Update call. The box is {origin, worldScale} regardless of the actual
// geometry extent. Safe to call concurrently with Update.
func (m *Mesh) Bounds() Bounds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bounds
}

func (m *Mesh) setBounds(b Bounds) {
	m.mu.Lock()
	m.bounds = b
	m.mu.Unlock()
}
