package render

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/lolmaus/vangers/m3d"
)

// localsAlign is the uniform slot stride of per-part locals.
const localsAlign = 256

// maxParts bounds one model: body + wheels + debris.
const maxParts = 64

// localsBytes packs one part's model matrix plus its palette color
// pair.
func localsBytes(model mgl32.Mat4, color [2]uint32) []byte {
	buf := make([]byte, 64+16)
	for i, v := range model {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[64:], color[0])
	binary.LittleEndian.PutUint32(buf[68:], color[1])
	return buf
}

var objectVertexLayout = wgpu.VertexBufferLayout{
	ArrayStride: m3d.ObjectVertexSize,
	StepMode:    wgpu.VertexStepModeVertex,
	Attributes: []wgpu.VertexAttribute{
		{Format: wgpu.VertexFormatSint8x4, Offset: 0, ShaderLocation: 0},
		{Format: wgpu.VertexFormatUint32, Offset: 4, ShaderLocation: 1},
		{Format: wgpu.VertexFormatSnorm8x4, Offset: 8, ShaderLocation: 2},
	},
}

var debugVertexLayout = wgpu.VertexBufferLayout{
	ArrayStride: 4,
	StepMode:    wgpu.VertexStepModeVertex,
	Attributes: []wgpu.VertexAttribute{
		{Format: wgpu.VertexFormatSint8x4, Offset: 0, ShaderLocation: 0},
	},
}

// ObjectContext renders decoded models: per-part uniform upload, then
// indexed draws of the body and its sub-parts. Shape debug buffers get
// their own wireframe and sample pipelines.
type ObjectContext struct {
	pipeline       *wgpu.RenderPipeline
	debugPipeline  *wgpu.RenderPipeline
	samplePipeline *wgpu.RenderPipeline
	pipelineLayout *wgpu.PipelineLayout
	bgLayout       *wgpu.BindGroupLayout
	bindGroup      *wgpu.BindGroup
	localsBuf      *wgpu.Buffer
	palette        *Palette
	sampler        *wgpu.Sampler
	shaderRoot     string
}

func NewObjectContext(device *wgpu.Device, queue *wgpu.Queue, palData *[0x100][4]byte, global *GlobalContext, shaderRoot string) (*ObjectContext, error) {
	c := &ObjectContext{shaderRoot: shaderRoot}

	var err error
	if c.palette, err = NewPalette(device, queue, palData); err != nil {
		return nil, err
	}
	c.sampler, err = device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Object Palette Sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeNearest,
		MinFilter:     wgpu.FilterModeNearest,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		MaxAnisotropy: 1,
	})
	if err != nil {
		c.Release()
		return nil, err
	}

	c.localsBuf, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Object Locals",
		Size:  maxParts * localsAlign,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		c.Release()
		return nil, err
	}

	c.bgLayout, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Object BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:             wgpu.BufferBindingTypeUniform,
					HasDynamicOffset: true,
					MinBindingSize:   64 + 16,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension1D,
				},
			},
			{
				Binding:    2,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeNonFiltering},
			},
		},
	})
	if err != nil {
		c.Release()
		return nil, err
	}

	c.bindGroup, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Object BG",
		Layout: c.bgLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: c.localsBuf, Size: 64 + 16},
			{Binding: 1, TextureView: c.palette.View},
			{Binding: 2, Sampler: c.sampler},
		},
	})
	if err != nil {
		c.Release()
		return nil, err
	}

	c.pipelineLayout, err = device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Object PL",
		BindGroupLayouts: []*wgpu.BindGroupLayout{global.BindGroupLayout, c.bgLayout},
	})
	if err != nil {
		c.Release()
		return nil, err
	}

	if err = c.createPipelines(device); err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}

func (c *ObjectContext) createPipelines(device *wgpu.Device) error {
	pipeline, err := c.createObjectPipeline(device)
	if err != nil {
		return err
	}
	debug, err := c.createDebugPipeline(device, wgpu.PrimitiveTopologyLineList)
	if err != nil {
		pipeline.Release()
		return err
	}
	samples, err := c.createDebugPipeline(device, wgpu.PrimitiveTopologyPointList)
	if err != nil {
		pipeline.Release()
		debug.Release()
		return err
	}
	c.pipeline = pipeline
	c.debugPipeline = debug
	c.samplePipeline = samples
	return nil
}

func (c *ObjectContext) createObjectPipeline(device *wgpu.Device) (*wgpu.RenderPipeline, error) {
	module, err := loadShaderModule(device, "object", c.shaderRoot)
	if err != nil {
		return nil, err
	}
	defer module.Release()

	pipeline, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Object Pipeline",
		Layout: c.pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers:    []wgpu.VertexBufferLayout{objectVertexLayout},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    ColorFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: terrainDepthState(wgpu.CompareFunctionLess),
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, &ShaderError{Name: "object", Err: err}
	}
	return pipeline, nil
}

func (c *ObjectContext) createDebugPipeline(device *wgpu.Device, topology wgpu.PrimitiveTopology) (*wgpu.RenderPipeline, error) {
	module, err := loadShaderModule(device, "debug", c.shaderRoot)
	if err != nil {
		return nil, err
	}
	defer module.Release()

	pipeline, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Debug Pipeline",
		Layout: c.pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers:    []wgpu.VertexBufferLayout{debugVertexLayout},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    ColorFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topology,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: terrainDepthState(wgpu.CompareFunctionLess),
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, &ShaderError{Name: "debug", Err: err}
	}
	return pipeline, nil
}

// Reload recreates all object pipelines, keeping the old ones on
// failure.
func (c *ObjectContext) Reload(device *wgpu.Device) error {
	old := [3]*wgpu.RenderPipeline{c.pipeline, c.debugPipeline, c.samplePipeline}
	if err := c.createPipelines(device); err != nil {
		return err
	}
	for _, p := range old {
		p.Release()
	}
	return nil
}

// RenderModel pairs a decoded model with its world transform for one
// frame.
type RenderModel struct {
	Model     *m3d.Model
	Transform mgl32.Mat4
	// DebugShapeScale, when non-zero, draws the collision shape on
	// top of the body.
	DebugShapeScale float32
}

// part is one draw of the frame, sharing the locals slot ordering
// between Prepare and Draw.
type part struct {
	mesh  *m3d.Mesh
	local mgl32.Mat4
}

func modelParts(rm *RenderModel) []part {
	parts := make([]part, 0, 1+len(rm.Model.Wheels)+len(rm.Model.Debris))
	parts = append(parts, part{mesh: rm.Model.Body, local: rm.Transform})
	for i := range rm.Model.Wheels {
		w := &rm.Model.Wheels[i]
		if w.Mesh == nil {
			continue
		}
		local := rm.Transform.Mul4(mgl32.Translate3D(w.Pos[0], w.Pos[1], w.Pos[2]))
		parts = append(parts, part{mesh: w.Mesh, local: local})
	}
	for i := range rm.Model.Debris {
		d := &rm.Model.Debris[i]
		local := rm.Transform.Mul4(mgl32.Translate3D(d.Mesh.Offset[0], d.Mesh.Offset[1], d.Mesh.Offset[2]))
		parts = append(parts, part{mesh: d.Mesh, local: local})
	}
	if len(parts) > maxParts {
		parts = parts[:maxParts]
	}
	return parts
}

// Prepare uploads the per-part locals for this frame. It must run
// before the render pass that calls Draw.
func (c *ObjectContext) Prepare(queue *wgpu.Queue, rm *RenderModel) {
	for i, p := range modelParts(rm) {
		queue.WriteBuffer(c.localsBuf, uint64(i*localsAlign), localsBytes(p.local, rm.Model.Color))
	}
	if rm.DebugShapeScale != 0 && rm.Model.Shape.Debug != nil {
		scale := mgl32.Scale3D(rm.DebugShapeScale, rm.DebugShapeScale, rm.DebugShapeScale)
		queue.WriteBuffer(c.localsBuf, uint64((maxParts-1)*localsAlign),
			localsBytes(rm.Transform.Mul4(scale), rm.Model.Color))
	}
}

// Draw records the indexed draws of the body and every sub-part, in
// the same slot order Prepare used.
func (c *ObjectContext) Draw(pass *wgpu.RenderPassEncoder, rm *RenderModel) {
	pass.SetPipeline(c.pipeline)
	for i, p := range modelParts(rm) {
		if p.mesh.VertexBuf == nil {
			continue
		}
		pass.SetBindGroup(1, c.bindGroup, []uint32{uint32(i * localsAlign)})
		pass.SetVertexBuffer(0, p.mesh.VertexBuf, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(p.mesh.IndexBuf, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
		pass.DrawIndexed(uint32(len(p.mesh.Indices)), 1, 0, 0, 0)
	}

	if rm.DebugShapeScale != 0 && rm.Model.Shape.Debug != nil {
		dbg := rm.Model.Shape.Debug
		offset := []uint32{uint32((maxParts - 1) * localsAlign)}
		pass.SetPipeline(c.debugPipeline)
		pass.SetBindGroup(1, c.bindGroup, offset)
		pass.SetVertexBuffer(0, dbg.BoundVB, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(dbg.BoundIB, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		pass.DrawIndexed(dbg.NumEdges, 1, 0, 0, 0)

		pass.SetPipeline(c.samplePipeline)
		pass.SetBindGroup(1, c.bindGroup, offset)
		pass.SetVertexBuffer(0, dbg.SampleVB, 0, wgpu.WholeSize)
		pass.Draw(uint32(len(rm.Model.Shape.Samples)), 1, 0, 0)
	}
}

func (c *ObjectContext) Release() {
	if c == nil {
		return
	}
	for _, p := range []*wgpu.RenderPipeline{c.pipeline, c.debugPipeline, c.samplePipeline} {
		if p != nil {
			p.Release()
		}
	}
	if c.pipelineLayout != nil {
		c.pipelineLayout.Release()
	}
	if c.bindGroup != nil {
		c.bindGroup.Release()
	}
	if c.bgLayout != nil {
		c.bgLayout.Release()
	}
	if c.localsBuf != nil {
		c.localsBuf.Release()
	}
	if c.sampler != nil {
		c.sampler.Release()
	}
	c.palette.Release()
}
