package isosurface

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/isosurface/internal/march"
)

// Builder errors.
var (
	// ErrNilDevice is returned when NewBuilder is called without a device
	// or queue.
	ErrNilDevice = errors.New("isosurface: device and queue must not be nil")

	// ErrInvalidBudget is returned when the triangle budget is not positive.
	ErrInvalidBudget = errors.New("isosurface: triangle budget must be positive")

	// ErrInvalidScale is returned when a world scale component is not positive.
	ErrInvalidScale = errors.New("isosurface: world scale components must be positive")

	// ErrBuilderDisposed is returned when a disposed Builder is used.
	ErrBuilderDisposed = errors.New("isosurface: builder has been disposed")

	// ErrFieldSize is returned when field data does not match the grid.
	ErrFieldSize = errors.New("isosurface: field length does not match grid voxel count")

	// ErrNoField is returned when Update is called without a field buffer
	// and no field has been written through WriteField.
	ErrNoField = errors.New("isosurface: no field buffer")
)

// Builder extracts isosurface meshes from voxel fields on the GPU.
//
// A Builder owns a fixed grid shape and triangle budget for its whole
// lifetime; the mesh buffers are allocated once and rewritten in place
// by every Update. The Mesh it hands out keeps stable identity, so a
// render loop can fetch it once and keep drawing it.
//
// Builder is safe for concurrent use; updates are serialized.
type Builder struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue

	grid   GridDesc
	budget int

	dispatcher *march.Dispatcher
	bufs       *march.Buffers
	mesh       *Mesh

	// fieldBuf is the owned field buffer backing WriteField. Lazily
	// created; nil until the first WriteField call.
	fieldBuf hal.Buffer

	disposed bool
}

// NewBuilder creates a Builder for the given grid shape and triangle
// budget. It compiles the compute pipelines and allocates the mesh
// buffers up front; the returned Builder presents a fully degenerate
// mesh until the first Update.
//
// The caller must call Dispose to release the GPU resources.
func NewBuilder(device hal.Device, queue hal.Queue, grid GridDesc, budget int) (*Builder, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if budget <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBudget, budget)
	}

	d := march.NewDispatcher(device, queue)
	if err := d.Init(); err != nil {
		return nil, err
	}

	bufs, err := d.AllocateBuffers(uint32(budget))
	if err != nil {
		d.Close()
		return nil, err
	}

	b := &Builder{
		device:     device,
		queue:      queue,
		grid:       grid,
		budget:     budget,
		dispatcher: d,
		bufs:       bufs,
		mesh: &Mesh{
			vertexBuf: bufs.Vertex,
			indexBuf:  bufs.Index,
			budget:    budget,
		},
	}

	Logger().Info("isosurface: builder created",
		"grid", fmt.Sprintf("%dx%dx%d", grid.DimX, grid.DimY, grid.DimZ),
		"budget", budget)
	return b, nil
}

// Grid returns the grid shape the Builder was created with.
func (b *Builder) Grid() GridDesc { return b.grid }

// TriangleBudget returns the fixed triangle capacity.
func (b *Builder) TriangleBudget() int { return b.budget }

// FieldByteSize returns the required byte size of a field buffer for
// the Builder's grid: one f32 per voxel.
func (b *Builder) FieldByteSize() uint64 {
	return uint64(b.grid.VoxelCount()) * 4
}

// Mesh returns the render artifact. The returned pointer is the same
// across the Builder's lifetime; Update rewrites its buffer contents in
// place. The Mesh must not be used after Dispose.
func (b *Builder) Mesh() *Mesh {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mesh
}

// WriteField uploads values into the Builder's owned field buffer,
// creating it on first use. The length must equal the grid's voxel
// count; values are laid out x-fastest, z-slowest.
//
// Callers that manage their own device-resident fields (for example a
// simulation writing the field in a compute pass) can skip WriteField
// and pass their buffer to Update directly.
func (b *Builder) WriteField(values []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return ErrBuilderDisposed
	}
	if len(values) != b.grid.VoxelCount() {
		return fmt.Errorf("%w: got %d values for %d voxels",
			ErrFieldSize, len(values), b.grid.VoxelCount())
	}

	if b.fieldBuf == nil {
		buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "isosurface_field",
			Size:  uint64(len(values)) * 4,
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("isosurface: create field buffer: %w", err)
		}
		b.fieldBuf = buf
	}

	b.queue.WriteBuffer(b.fieldBuf, 0, float32Bytes(values))
	return nil
}

// FieldBuffer returns the owned field buffer, or nil if WriteField has
// never been called.
func (b *Builder) FieldBuffer() hal.Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fieldBuf
}

// Update queues one extraction against the given field buffer, which
// must hold the grid's voxel count of f32 values. Passing a nil field
// uses the Builder's owned buffer from the most recent WriteField.
//
// Update returns without waiting for the GPU; queue ordering guarantees
// that work submitted afterwards sees the new surface, live triangles
// first and everything up to the budget degenerate. The host blocks
// only to retire the previous update's transient resources, and in
// Dispose.
func (b *Builder) Update(field hal.Buffer, isovalue float32, scale mgl32.Vec3) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return ErrBuilderDisposed
	}
	if field == nil {
		field = b.fieldBuf
	}
	if field == nil {
		return ErrNoField
	}
	if scale.X() <= 0 || scale.Y() <= 0 || scale.Z() <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidScale, scale)
	}

	params := march.Params{
		DimX:         uint32(b.grid.DimX),
		DimY:         uint32(b.grid.DimY),
		DimZ:         uint32(b.grid.DimZ),
		MaxTriangles: uint32(b.budget),
		ScaleX:       scale.X(),
		ScaleY:       scale.Y(),
		ScaleZ:       scale.Z(),
		Isovalue:     isovalue,
	}

	if err := b.dispatcher.Dispatch(b.bufs, field, params); err != nil {
		return err
	}

	b.mesh.setBounds(Bounds{Size: scale})

	Logger().Debug("isosurface: mesh updated",
		"isovalue", isovalue,
		"scale", fmt.Sprintf("%gx%gx%g", scale.X(), scale.Y(), scale.Z()))
	return nil
}

// Dispose waits for any in-flight update and releases all GPU resources
// owned by the Builder. The Mesh and its buffers become invalid.
// Dispose is idempotent.
func (b *Builder) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return
	}
	b.disposed = true

	if b.fieldBuf != nil {
		b.device.DestroyBuffer(b.fieldBuf)
		b.fieldBuf = nil
	}
	b.dispatcher.DestroyBuffers(b.bufs)
	b.bufs = nil
	b.dispatcher.Close()

	Logger().Info("isosurface: builder disposed")
}

// float32Bytes serializes values to little-endian bytes for upload.
func float32Bytes(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
