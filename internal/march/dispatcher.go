// dispatcher.go defines the GPU dispatch orchestration for the marching
// cubes pipeline. It manages shader compilation, pipeline creation, and
// the 3-stage dispatch sequence (extract, resolve, tail-clear) with the
// counter snapshot copy between extract and resolve.

package march

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

const (
	// extractWGSize is the per-axis workgroup size of the extract kernel.
	// Matches @workgroup_size(4, 4, 4) in extract.wgsl.
	extractWGSize = 4

	// clearWGSize is the workgroup size of the tail-clear kernel.
	// Matches @workgroup_size(64) in clear.wgsl and the rounding the
	// resolver applies when writing the indirect args.
	clearWGSize = 64

	// fenceTimeout is the maximum time to wait for GPU work to complete.
	fenceTimeout = 5 * time.Second
)

// Stage identifies one of the three kernels in the pipeline.
type Stage int

const (
	// StageExtract walks every cell, classifies it against the isovalue
	// and appends triangles through the atomic counter.
	StageExtract Stage = iota

	// StageResolve clamps the raw triangle count to the budget and
	// writes the tail-clear range and its indirect dispatch args.
	StageResolve

	// StageClear degenerates the triangles between the current count
	// and the previous update's count.
	StageClear

	// StageCount is the total number of pipeline stages.
	StageCount
)

// String returns the human-readable name of the compute stage.
func (s Stage) String() string {
	switch s {
	case StageExtract:
		return "extract"
	case StageResolve:
		return "resolve"
	case StageClear:
		return "clear"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Dispatcher orchestrates the marching cubes compute pipeline.
// It manages shader compilation, pipeline and buffer lifetime, and the
// per-update dispatch sequence:
//
//  1. extract  -- one invocation per cell, appends triangles via atomicAdd
//  2. (copy)   -- snapshot Counter into RawCount
//  3. resolve  -- clamp count, derive tail range + indirect args (1 thread)
//  4. clear    -- degenerate the tail region, dispatched indirectly
//
// The sequence never reads the triangle count back to the host; the
// resolver keeps the dependent dispatch decision on the device.
type Dispatcher struct {
	mu sync.RWMutex

	// device is the HAL device providing GPU resource creation.
	device hal.Device

	// queue is the HAL queue for command submission and buffer writes.
	queue hal.Queue

	// pipelines are the compiled compute pipelines, one per stage.
	pipelines [StageCount]hal.ComputePipeline

	// pipelineLayouts are the pipeline layouts, one per stage.
	pipelineLayouts [StageCount]hal.PipelineLayout

	// bgLayouts are the bind group layouts, one per stage.
	bgLayouts [StageCount]hal.BindGroupLayout

	// shaderModules are the compiled shader modules, one per stage.
	shaderModules [StageCount]hal.ShaderModule

	// shaderSources are the embedded WGSL sources, indexed by stage.
	shaderSources [StageCount]string

	// pending holds the transient resources of the most recent update.
	// They stay alive until the next Dispatch, DestroyBuffers or Close
	// retires them behind a fence wait.
	pending *dispatchResources

	// initialized indicates whether pipelines have been created.
	initialized bool
}

// NewDispatcher creates a dispatcher attached to the given HAL device
// and queue. The dispatcher must be initialized with Init() before
// AllocateBuffers or Dispatch can be called.
func NewDispatcher(device hal.Device, queue hal.Queue) *Dispatcher {
	d := &Dispatcher{
		device: device,
		queue:  queue,
	}

	d.shaderSources = [StageCount]string{
		StageExtract: extractShaderSource,
		StageResolve: resolveShaderSource,
		StageClear:   clearShaderSource,
	}

	return d
}

// stageBindGroupLayoutEntries returns the bind group layout entries for
// a given compute stage. These entries match the @group(0) @binding(N)
// annotations in the corresponding WGSL shader files exactly.
func stageBindGroupLayoutEntries(stage Stage) []gputypes.BindGroupLayoutEntry {
	uniform := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		}
	}
	storageRO := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		}
	}
	storageRW := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}

	switch stage {
	case StageExtract:
		// @binding(0) uniform params
		// @binding(1) storage(read) field
		// @binding(2) storage(read) tri_table
		// @binding(3) storage(read_write) counter (atomic)
		// @binding(4) storage(read_write) vertices
		// @binding(5) storage(read_write) indices
		return []gputypes.BindGroupLayoutEntry{
			uniform(0), storageRO(1), storageRO(2),
			storageRW(3), storageRW(4), storageRW(5),
		}

	case StageResolve:
		// @binding(0) uniform params
		// @binding(1) storage(read) raw_count
		// @binding(2) storage(read_write) prev_count
		// @binding(3) storage(read_write) clear_range
		// @binding(4) storage(read_write) clear_dispatch
		return []gputypes.BindGroupLayoutEntry{
			uniform(0), storageRO(1), storageRW(2), storageRW(3), storageRW(4),
		}

	case StageClear:
		// @binding(0) storage(read) clear_range
		// @binding(1) storage(read_write) vertices
		// @binding(2) storage(read_write) indices
		return []gputypes.BindGroupLayoutEntry{
			storageRO(0), storageRW(1), storageRW(2),
		}

	default:
		return nil
	}
}

// stageBindGroupEntries returns the bind group entries for a given
// stage, mapping each binding index to the correct buffer. The field
// buffer is caller-owned and only bound in the extract stage.
func stageBindGroupEntries(stage Stage, bufs *Buffers, field hal.Buffer) []gputypes.BindGroupEntry {
	entry := func(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{
			Binding: binding,
			Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}

	switch stage {
	case StageExtract:
		return []gputypes.BindGroupEntry{
			entry(0, bufs.Params),
			entry(1, field),
			entry(2, bufs.TriTable),
			entry(3, bufs.Counter),
			entry(4, bufs.Vertex),
			entry(5, bufs.Index),
		}

	case StageResolve:
		return []gputypes.BindGroupEntry{
			entry(0, bufs.Params),
			entry(1, bufs.RawCount),
			entry(2, bufs.PrevCount),
			entry(3, bufs.ClearRange),
			entry(4, bufs.ClearDispatch),
		}

	case StageClear:
		return []gputypes.BindGroupEntry{
			entry(0, bufs.ClearRange),
			entry(1, bufs.Vertex),
			entry(2, bufs.Index),
		}

	default:
		return nil
	}
}

// Init compiles all WGSL shaders and creates compute pipelines.
// Must be called before Dispatch. It is safe to call Init multiple
// times; subsequent calls are no-ops if already initialized.
func (d *Dispatcher) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	for i := Stage(0); i < StageCount; i++ {
		src := d.shaderSources[i]
		if src == "" {
			return fmt.Errorf("march: missing shader source for stage %s", i)
		}

		stageName := fmt.Sprintf("march_%s", i)

		module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  stageName,
			Source: hal.ShaderSource{WGSL: src},
		})
		if err != nil {
			d.destroyPartialInit(i)
			return fmt.Errorf("march: create shader module for %s: %w", i, err)
		}
		d.shaderModules[i] = module

		entries := stageBindGroupLayoutEntries(i)
		bgLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   stageName + "_bgl",
			Entries: entries,
		})
		if err != nil {
			d.destroyPartialInit(i + 1) // module was already stored
			return fmt.Errorf("march: create bind group layout for %s: %w", i, err)
		}
		d.bgLayouts[i] = bgLayout

		pipelineLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            stageName + "_pl",
			BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
		})
		if err != nil {
			d.destroyPartialInit(i + 1)
			return fmt.Errorf("march: create pipeline layout for %s: %w", i, err)
		}
		d.pipelineLayouts[i] = pipelineLayout

		pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  stageName,
			Layout: pipelineLayout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			d.destroyPartialInit(i + 1)
			return fmt.Errorf("march: create compute pipeline for %s: %w", i, err)
		}
		d.pipelines[i] = pipeline

		slogger().Debug("march: pipeline created",
			"stage", i.String(),
			"bindings", len(entries),
			"shader_bytes", len(src))
	}

	slogger().Info("march: all pipelines initialized", "stages", int(StageCount))

	d.initialized = true
	return nil
}

// destroyPartialInit cleans up resources for stages [0, upTo) during a
// failed Init(). This ensures no resource leaks on partial initialization.
func (d *Dispatcher) destroyPartialInit(upTo Stage) {
	for j := Stage(0); j < upTo; j++ {
		if d.pipelines[j] != nil {
			d.device.DestroyComputePipeline(d.pipelines[j])
			d.pipelines[j] = nil
		}
		if d.pipelineLayouts[j] != nil {
			d.device.DestroyPipelineLayout(d.pipelineLayouts[j])
			d.pipelineLayouts[j] = nil
		}
		if d.bgLayouts[j] != nil {
			d.device.DestroyBindGroupLayout(d.bgLayouts[j])
			d.bgLayouts[j] = nil
		}
		if d.shaderModules[j] != nil {
			d.device.DestroyShaderModule(d.shaderModules[j])
			d.shaderModules[j] = nil
		}
	}
}

// Close waits for any in-flight update and releases all GPU resources
// held by the dispatcher. After Close, the dispatcher must be
// re-initialized with Init() before use.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.retirePendingLocked(); err != nil {
		slogger().Warn("march: retiring final update", "err", err)
	}

	for i := Stage(0); i < StageCount; i++ {
		if d.pipelines[i] != nil {
			d.device.DestroyComputePipeline(d.pipelines[i])
			d.pipelines[i] = nil
		}
		if d.pipelineLayouts[i] != nil {
			d.device.DestroyPipelineLayout(d.pipelineLayouts[i])
			d.pipelineLayouts[i] = nil
		}
		if d.bgLayouts[i] != nil {
			d.device.DestroyBindGroupLayout(d.bgLayouts[i])
			d.bgLayouts[i] = nil
		}
		if d.shaderModules[i] != nil {
			d.device.DestroyShaderModule(d.shaderModules[i])
			d.shaderModules[i] = nil
		}
	}

	d.initialized = false
}

// extractWorkgroups returns the per-axis workgroup counts for the
// extract stage: ceiling division of the cell dimensions by the 4x4x4
// workgroup size.
func extractWorkgroups(p Params) (x, y, z uint32) {
	ceil := func(n uint32) uint32 { return (n + extractWGSize - 1) / extractWGSize }
	return ceil(p.CellsX()), ceil(p.CellsY()), ceil(p.CellsZ())
}

// indirectComputePass is the optional capability a pass encoder exposes
// when the backend can consume GPU-written dispatch args.
type indirectComputePass interface {
	DispatchIndirect(buffer hal.Buffer, offset uint64)
}

// dispatchResources tracks per-update GPU resources for cleanup.
type dispatchResources struct {
	device     hal.Device
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
}

// cleanup destroys all tracked per-update resources.
func (r *dispatchResources) cleanup() {
	if r.fence != nil {
		r.device.DestroyFence(r.fence)
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
}

// Dispatch queues one full extraction update against the given field
// buffer and returns without waiting for the GPU. The field must hold
// DimX*DimY*DimZ f32 values matching the params. The previous update's
// transient resources are retired behind a fence wait first, so at most
// one update is in flight. Safe to call from multiple goroutines;
// updates are serialized internally and by queue order on the device.
func (d *Dispatcher) Dispatch(bufs *Buffers, field hal.Buffer, params Params) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return fmt.Errorf("march: dispatcher not initialized, call Init() first")
	}
	if bufs == nil {
		return fmt.Errorf("march: buffers must not be nil")
	}
	if field == nil {
		return fmt.Errorf("march: field buffer must not be nil")
	}
	if params.MaxTriangles != bufs.maxTriangles {
		return fmt.Errorf("march: params budget %d does not match allocated budget %d",
			params.MaxTriangles, bufs.maxTriangles)
	}

	if err := d.retirePendingLocked(); err != nil {
		return err
	}

	// Upload the uniform block and reset the atomic cursor.
	d.queue.WriteBuffer(bufs.Params, 0, params.toBytes())
	d.queue.WriteBuffer(bufs.Counter, 0, []byte{0, 0, 0, 0})

	res := &dispatchResources{device: d.device}

	if err := d.encodeUpdate(res, bufs, field, params); err != nil {
		res.cleanup()
		return err
	}
	if err := d.submit(res); err != nil {
		res.cleanup()
		return err
	}

	d.pending = res
	return nil
}

// encodeUpdate records the extract/copy/resolve/clear sequence into a
// command buffer.
func (d *Dispatcher) encodeUpdate(res *dispatchResources, bufs *Buffers, field hal.Buffer, params Params) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "march_update",
	})
	if err != nil {
		return fmt.Errorf("march: create command encoder: %w", err)
	}

	if err := encoder.BeginEncoding("march_update"); err != nil {
		return fmt.Errorf("march: begin encoding: %w", err)
	}

	createBG := func(stage Stage) (hal.BindGroup, error) {
		bg, bgErr := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   fmt.Sprintf("march_%s_bg", stage),
			Layout:  d.bgLayouts[stage],
			Entries: stageBindGroupEntries(stage, bufs, field),
		})
		if bgErr != nil {
			encoder.DiscardEncoding()
			return nil, fmt.Errorf("march: create bind group for %s: %w", stage, bgErr)
		}
		res.bindGroups = append(res.bindGroups, bg)
		return bg, nil
	}

	// Stage 1: extract, one invocation per cell.
	extractBG, err := createBG(StageExtract)
	if err != nil {
		return err
	}
	wgX, wgY, wgZ := extractWorkgroups(params)
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "march_extract"})
	pass.SetPipeline(d.pipelines[StageExtract])
	pass.SetBindGroup(0, extractBG, nil)
	pass.Dispatch(wgX, wgY, wgZ)
	pass.End()

	// Snapshot the atomic counter so resolve reads a stable value.
	encoder.CopyBufferToBuffer(bufs.Counter, bufs.RawCount, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: counterBytes},
	})

	// Stage 2: resolve, a single invocation.
	resolveBG, err := createBG(StageResolve)
	if err != nil {
		return err
	}
	pass = encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "march_resolve"})
	pass.SetPipeline(d.pipelines[StageResolve])
	pass.SetBindGroup(0, resolveBG, nil)
	pass.Dispatch(1, 1, 1)
	pass.End()

	// Stage 3: tail-clear, driven by the args resolve just wrote.
	// Backends without indirect dispatch get a worst-case dispatch over
	// the whole budget; the kernel bounds itself against clear_range, so
	// over-dispatching only costs idle invocations.
	clearBG, err := createBG(StageClear)
	if err != nil {
		return err
	}
	pass = encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "march_clear"})
	pass.SetPipeline(d.pipelines[StageClear])
	pass.SetBindGroup(0, clearBG, nil)
	if ip, ok := pass.(indirectComputePass); ok {
		ip.DispatchIndirect(bufs.ClearDispatch, 0)
	} else {
		pass.Dispatch((params.MaxTriangles+clearWGSize-1)/clearWGSize, 1, 1)
	}
	pass.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("march: end encoding: %w", err)
	}
	res.cmdBuf = cmdBuf

	slogger().Debug("march: update encoded",
		"extract_workgroups", fmt.Sprintf("%dx%dx%d", wgX, wgY, wgZ),
		"max_triangles", params.MaxTriangles)
	return nil
}

// submit submits the command buffer behind a fresh fence. The caller
// keeps res alive as the pending update until the fence retires.
func (d *Dispatcher) submit(res *dispatchResources) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("march: create fence: %w", err)
	}
	res.fence = fence

	if err := d.queue.Submit([]hal.CommandBuffer{res.cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("march: submit: %w", err)
	}

	slogger().Debug("march: update submitted")
	return nil
}

// retirePendingLocked waits for the most recent update to complete and
// releases its transient resources. Caller must hold d.mu.
func (d *Dispatcher) retirePendingLocked() error {
	if d.pending == nil {
		return nil
	}
	res := d.pending
	d.pending = nil
	defer res.cleanup()

	ok, err := d.device.Wait(res.fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("march: wait for prior update: %w", err)
	}
	if !ok {
		return fmt.Errorf("march: prior update timeout after %v", fenceTimeout)
	}
	return nil
}
