package march

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer sizing constants shared with the root package.
const (
	// VertexStride is the byte size of one output vertex: vec3 position
	// followed by vec3 normal, six f32 values.
	VertexStride = 24

	// IndexSize is the byte size of one index entry.
	IndexSize = 4

	// triTableBytes is the byte size of the packed configuration table.
	triTableBytes = 256 * 8

	// counterBytes is the byte size of the triangle counter.
	counterBytes = 4

	// clearRangeBytes is the byte size of the ClearRange struct the
	// resolver writes (base + count).
	clearRangeBytes = 8

	// dispatchArgsBytes is the byte size of the indirect dispatch args
	// (x, y, z workgroup counts).
	dispatchArgsBytes = 12
)

// Buffers holds the device buffers for one extraction pipeline instance.
// All buffers except the caller-provided field buffer are allocated once
// for a fixed grid and triangle budget and reused across updates.
type Buffers struct {
	// Params is the uniform block shared by all stages.
	// Bound at group(0) binding(0) in extract and resolve.
	Params hal.Buffer

	// TriTable holds the packed 256-entry configuration table, uploaded
	// once at allocation. Read by extract.
	TriTable hal.Buffer

	// Counter is the atomic triangle cursor. Zeroed before every
	// extraction, bumped by atomicAdd in extract.
	Counter hal.Buffer

	// RawCount receives a copy of Counter between the extract and
	// resolve passes so the resolver reads it as plain storage.
	RawCount hal.Buffer

	// PrevCount carries the clamped triangle count of the previous
	// update across frames. Read and rewritten by resolve.
	PrevCount hal.Buffer

	// ClearRange holds the [base, base+count) triangle span the
	// tail-clear kernel degenerates. Written by resolve, read by clear.
	ClearRange hal.Buffer

	// ClearDispatch holds the indirect workgroup counts for the
	// tail-clear dispatch. Written by resolve.
	ClearDispatch hal.Buffer

	// Vertex is the output vertex buffer: 3 x budget vertices of
	// VertexStride bytes. Written by extract and clear, carries Vertex
	// usage so a render pass can bind it directly.
	Vertex hal.Buffer

	// Index is the output index buffer: 3 x budget uint32 entries.
	// Written by extract and clear, carries Index usage.
	Index hal.Buffer

	// maxTriangles is the triangle budget the output buffers were sized for.
	maxTriangles uint32
}

// MaxTriangles returns the triangle budget the buffers were allocated for.
func (b *Buffers) MaxTriangles() uint32 { return b.maxTriangles }

// VertexBytes returns the byte size of the vertex buffer for a budget.
func VertexBytes(maxTriangles uint32) uint64 {
	return uint64(maxTriangles) * 3 * VertexStride
}

// IndexBytes returns the byte size of the index buffer for a budget.
func IndexBytes(maxTriangles uint32) uint64 {
	return uint64(maxTriangles) * 3 * IndexSize
}

// AllocateBuffers creates the pipeline buffers for the given triangle
// budget, uploads the configuration table, and zero-fills every buffer
// the kernels read before first writing. A freshly allocated pipeline
// therefore presents a fully degenerate mesh.
//
// The caller must call DestroyBuffers when the buffers are no longer needed.
func (d *Dispatcher) AllocateBuffers(maxTriangles uint32) (*Buffers, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil, fmt.Errorf("march: dispatcher not initialized, call Init() first")
	}
	if maxTriangles == 0 {
		return nil, fmt.Errorf("march: triangle budget must be positive")
	}

	bufs := &Buffers{maxTriangles: maxTriangles}

	// Buffer usage flags:
	// - uniformCPU:  uniform with CPU write access (params upload).
	// - storageCPU:  GPU storage with CPU write access (table upload, zeroing).
	// - storageCopy: GPU storage that is both a copy source and target
	//                (counter snapshot between passes).
	// - storageOut:  GPU storage with CPU read access (test readback).
	uniformCPU := gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	storageCPU := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	storageCopy := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	storageOut := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc

	type bufSpec struct {
		target   *hal.Buffer
		label    string
		size     uint64
		usage    gputypes.BufferUsage
		zeroInit bool
	}

	specs := []bufSpec{
		{&bufs.Params, "march_params", paramsSize, uniformCPU, false},
		{&bufs.TriTable, "march_tri_table", triTableBytes, storageCPU, false},
		{&bufs.Counter, "march_counter", counterBytes, storageCopy, true},
		{&bufs.RawCount, "march_raw_count", counterBytes, storageCopy, true},
		{&bufs.PrevCount, "march_prev_count", counterBytes, storageCPU, true},
		{&bufs.ClearRange, "march_clear_range", clearRangeBytes, storageCPU, true},
		{&bufs.ClearDispatch, "march_clear_dispatch",
			dispatchArgsBytes, storageCPU | gputypes.BufferUsageIndirect, true},
		{&bufs.Vertex, "march_vertices",
			VertexBytes(maxTriangles), storageOut | gputypes.BufferUsageVertex, true},
		{&bufs.Index, "march_indices",
			IndexBytes(maxTriangles), storageOut | gputypes.BufferUsageIndex, true},
	}

	for _, s := range specs {
		buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: s.label,
			Size:  s.size,
			Usage: s.usage,
		})
		if err != nil {
			d.destroyBuffersLocked(bufs)
			return nil, fmt.Errorf("march: create %s buffer: %w", s.label, err)
		}
		*s.target = buf

		if s.zeroInit && s.size > 0 {
			zeros := make([]byte, s.size)
			d.queue.WriteBuffer(buf, 0, zeros)
		}
	}

	d.queue.WriteBuffer(bufs.TriTable, 0, TriangleTableBytes())

	slogger().Debug("march: buffers allocated",
		"max_triangles", maxTriangles,
		"vertex_bytes", VertexBytes(maxTriangles),
		"index_bytes", IndexBytes(maxTriangles))

	return bufs, nil
}

// DestroyBuffers waits for any in-flight update that may still reference
// bufs, then releases all device buffers in it. After this call the
// buffers must not be used.
func (d *Dispatcher) DestroyBuffers(bufs *Buffers) {
	if bufs == nil {
		return
	}

	d.mu.Lock()
	if err := d.retirePendingLocked(); err != nil {
		slogger().Warn("march: retiring pending update", "err", err)
	}
	d.mu.Unlock()

	d.destroyBuffersLocked(bufs)
}

// destroyBuffersLocked releases the device buffers without touching the
// dispatcher lock or pending state. Allocation error paths call this
// while already holding d.mu; nothing in-flight can reference buffers
// that were never handed out.
func (d *Dispatcher) destroyBuffersLocked(bufs *Buffers) {
	destroyBuf := func(b hal.Buffer) {
		if b != nil {
			d.device.DestroyBuffer(b)
		}
	}

	destroyBuf(bufs.Params)
	destroyBuf(bufs.TriTable)
	destroyBuf(bufs.Counter)
	destroyBuf(bufs.RawCount)
	destroyBuf(bufs.PrevCount)
	destroyBuf(bufs.ClearRange)
	destroyBuf(bufs.ClearDispatch)
	destroyBuf(bufs.Vertex)
	destroyBuf(bufs.Index)

	// Zero out all fields to prevent accidental reuse.
	*bufs = Buffers{}
}
