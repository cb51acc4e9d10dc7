// Package isosurface extracts triangle-mesh isosurfaces from regular 3D
// scalar fields on the GPU using the Marching Cubes algorithm.
//
// # Overview
//
// The package targets the GoGPU ecosystem: all heavy lifting happens in
// WGSL compute shaders driven through gogpu/wgpu's HAL. A Builder owns a
// fixed set of device buffers sized by a triangle budget and re-extracts
// the surface whenever the isovalue changes, without any host-side
// readback in the steady state. A small resolver kernel sizes the
// follow-up tail-clear work on the device itself (indirect dispatch), so
// the host never blocks to learn how many triangles were produced.
//
// # Quick Start
//
//	import (
//	    "github.com/go-gl/mathgl/mgl32"
//	    "github.com/gogpu/isosurface"
//	)
//
//	builder, err := isosurface.NewBuilder(device, queue,
//	    isosurface.GridDesc{DimX: 64, DimY: 64, DimZ: 64}, 500000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer builder.Dispose()
//
//	// Upload the scalar field (one float32 per voxel, x fastest).
//	if err := builder.WriteField(voxels); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Re-extract whenever the threshold moves. No host stall.
//	err = builder.Update(builder.FieldBuffer(), 0.5, mgl32.Vec3{2, 2, 2})
//
//	mesh := builder.Mesh() // stable identity, mutated in place per update
//
// # Output Contract
//
// The mesh is a triangle soup: every triangle owns three fresh vertices
// (position + per-face normal, 24-byte stride) and three ascending 32-bit
// indices. The single submesh always spans the full allocated capacity;
// slots past the live triangle count hold degenerate (coincident-origin)
// vertices written by the tail-clear kernel, so consumers render the
// whole range and the dead region contributes nothing.
//
// # Pipeline
//
// Each Update encodes four device operations in order: extraction (one
// thread per cell, 4x4x4 workgroups), a counter copy, the
// single-invocation indirect-dispatch resolver, and the indirectly-sized
// tail-clear. The triangle count never crosses back to the host; the
// resolver consumes it on the device, and Update returns as soon as the
// sequence is queued. The host waits only to retire a previous update's
// transient resources before reusing them, and in Dispose.
package isosurface
