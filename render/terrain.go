package render

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/lolmaus/vangers/level"
)

// TerrainKind selects one of the terrain pipeline variants.
type TerrainKind int

const (
	RayTracedOld TerrainKind = iota
	RayTraced
	Tessellated
	Sliced
	Scattered
)

var terrainKindNames = map[TerrainKind]string{
	RayTracedOld: "ray_traced_old",
	RayTraced:    "ray_traced",
	Tessellated:  "tessellated",
	Sliced:       "sliced",
	Scattered:    "scattered",
}

func (k TerrainKind) String() string {
	if s, ok := terrainKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TerrainKind(%d)", int(k))
}

// ParseTerrainKind maps the settings string to a kind.
func ParseTerrainKind(s string) (TerrainKind, error) {
	for k, name := range terrainKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("render: unknown terrain kind %q", s)
}

// ScatterGroupSize is the workgroup size of the scatter compute
// shaders.
var ScatterGroupSize = [3]uint32{16, 16, 1}

// DefaultScatterGroups is the dispatch grid of the scatter pass. The
// right mapping to level dimensions is not established; hosts may
// override it through TerrainSettings.
var DefaultScatterGroups = [3]uint32{100, 100, 1}

// TerrainSettings is the configuration surface of the terrain
// renderer.
type TerrainSettings struct {
	Kind TerrainKind
	// ShaderRoot, when set, overrides the embedded shaders.
	ShaderRoot string
	// ScatterGroups overrides DefaultScatterGroups when non-zero.
	ScatterGroups [3]uint32
}

// computeGroupCount covers extent with ScatterGroupSize workgroups.
func computeGroupCount(extent wgpu.Extent3D) [3]uint32 {
	return [3]uint32{
		(extent.Width + ScatterGroupSize[0] - 1) / ScatterGroupSize[0],
		(extent.Height + ScatterGroupSize[1] - 1) / ScatterGroupSize[1],
		1,
	}
}

// terrainTableTexels packs the material table as rgba8uint texels:
// shadow offset, height shift, color range start, color range end.
func terrainTableTexels(terrains *[level.NumTerrains]level.TerrainConfig) []byte {
	out := make([]byte, level.NumTerrains*4)
	for i, terr := range terrains {
		out[i*4+0] = terr.ShadowOffset
		out[i*4+1] = terr.HeightShift
		out[i*4+2] = terr.ColorRange[0]
		out[i*4+3] = terr.ColorRange[1]
	}
	return out
}

// floodTexels extracts the water level byte of each flood strip.
func floodTexels(flood []uint32) []byte {
	out := make([]byte, len(flood))
	for i, v := range flood {
		out[i] = byte(v)
	}
	return out
}

// surfaceConstantsBytes packs (W, H, height scale, 0).
func surfaceConstantsBytes(size [2]int32) []byte {
	buf := make([]byte, 16)
	for i, v := range [4]float32{float32(size[0]), float32(size[1]), level.HeightScale, 0} {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// screenConstantsBytes packs the screen size for the per-frame block.
func screenConstantsBytes(extent wgpu.Extent3D) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], extent.Width)
	binary.LittleEndian.PutUint32(buf[4:], extent.Height)
	return buf
}

type rayVariant struct {
	pipeline   *wgpu.RenderPipeline
	vertexBuf  *wgpu.Buffer
	indexBuf   *wgpu.Buffer
	numIndices uint32
}

type sliceVariant struct {
	pipeline   *wgpu.RenderPipeline
	vertexBuf  *wgpu.Buffer
	indexBuf   *wgpu.Buffer
	numIndices uint32
}

type scatterVariant struct {
	pipelineLayout  *wgpu.PipelineLayout
	bgLayout        *wgpu.BindGroupLayout
	scatterPipeline *wgpu.ComputePipeline
	clearPipeline   *wgpu.ComputePipeline
	copyPipeline    *wgpu.RenderPipeline
	bindGroup       *wgpu.BindGroup
	storageTex      *wgpu.Texture
	storageExtent   wgpu.Extent3D
	clearGroups     [3]uint32
	scatterGroups   [3]uint32
}

// TerrainContext renders the level heightfield with the configured
// pipeline kind. The level textures, samplers and the group-1 layout
// are shared by every variant.
type TerrainContext struct {
	kind    TerrainKind
	ray     *rayVariant
	slice   *sliceVariant
	scatter *scatterVariant

	surfaceBuf *wgpu.Buffer
	uniformBuf *wgpu.Buffer

	heightTex *wgpu.Texture
	metaTex   *wgpu.Texture
	floodTex  *wgpu.Texture
	tableTex  *wgpu.Texture
	palette   *Palette

	mainSampler  *wgpu.Sampler
	floodSampler *wgpu.Sampler
	tableSampler *wgpu.Sampler

	bgLayout       *wgpu.BindGroupLayout
	bindGroup      *wgpu.BindGroup
	pipelineLayout *wgpu.PipelineLayout

	shaderRoot string
}

func createLevelTexture(device *wgpu.Device, queue *wgpu.Queue, label string, extent wgpu.Extent3D, dim wgpu.TextureDimension, format wgpu.TextureFormat, texels []byte, bytesPerRow uint32) (*wgpu.Texture, error) {
	tex, err := device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     dim,
		Format:        format,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	err = queue.WriteTexture(
		tex.AsImageCopy(),
		texels,
		&wgpu.TextureDataLayout{BytesPerRow: bytesPerRow, RowsPerImage: extent.Height},
		&extent,
	)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return tex, nil
}

// NewTerrainContext uploads the level and builds the pipeline variant
// selected by settings.
func NewTerrainContext(device *wgpu.Device, queue *wgpu.Queue, lvl *level.Level, global *GlobalContext, settings *TerrainSettings, screen wgpu.Extent3D) (*TerrainContext, error) {
	switch settings.Kind {
	case RayTracedOld, Sliced, Scattered:
	default:
		return nil, &UnimplementedError{Variant: settings.Kind.String()}
	}

	t := &TerrainContext{
		kind:       settings.Kind,
		shaderRoot: settings.ShaderRoot,
	}

	extent := wgpu.Extent3D{
		Width:              uint32(lvl.Size[0]),
		Height:             uint32(lvl.Size[1]),
		DepthOrArrayLayers: 1,
	}
	floodExtent := wgpu.Extent3D{
		Width:              uint32(lvl.Size[1]) >> lvl.SectionPower,
		Height:             1,
		DepthOrArrayLayers: 1,
	}
	tableExtent := wgpu.Extent3D{
		Width:              level.NumTerrains,
		Height:             1,
		DepthOrArrayLayers: 1,
	}

	var err error
	cleanup := func() {
		t.Release()
	}

	t.heightTex, err = createLevelTexture(device, queue, "Terrain Height", extent,
		wgpu.TextureDimension2D, wgpu.TextureFormatR8Unorm, lvl.Height, extent.Width)
	if err != nil {
		return nil, err
	}
	t.metaTex, err = createLevelTexture(device, queue, "Terrain Meta", extent,
		wgpu.TextureDimension2D, wgpu.TextureFormatR8Uint, lvl.Meta, extent.Width)
	if err != nil {
		cleanup()
		return nil, err
	}
	t.floodTex, err = createLevelTexture(device, queue, "Terrain Flood", floodExtent,
		wgpu.TextureDimension1D, wgpu.TextureFormatR8Unorm, floodTexels(lvl.FloodMap), floodExtent.Width)
	if err != nil {
		cleanup()
		return nil, err
	}
	t.tableTex, err = createLevelTexture(device, queue, "Terrain Table", tableExtent,
		wgpu.TextureDimension1D, wgpu.TextureFormatRGBA8Uint, terrainTableTexels(&lvl.Terrains), tableExtent.Width*4)
	if err != nil {
		cleanup()
		return nil, err
	}
	t.palette, err = NewPalette(device, queue, &lvl.Palette)
	if err != nil {
		cleanup()
		return nil, err
	}

	if err = t.createSamplers(device); err != nil {
		cleanup()
		return nil, err
	}

	t.surfaceBuf, err = device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Terrain Surface",
		Contents: surfaceConstantsBytes(lvl.Size),
		Usage:    wgpu.BufferUsageUniform,
	})
	if err != nil {
		cleanup()
		return nil, err
	}
	t.uniformBuf, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Terrain Constants",
		Size:  16,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		cleanup()
		return nil, err
	}
	queue.WriteBuffer(t.uniformBuf, 0, screenConstantsBytes(screen))

	if err = t.createBindGroup(device); err != nil {
		cleanup()
		return nil, err
	}

	t.pipelineLayout, err = device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Terrain PL",
		BindGroupLayouts: []*wgpu.BindGroupLayout{global.BindGroupLayout, t.bgLayout},
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	switch settings.Kind {
	case RayTracedOld:
		t.ray, err = t.createRayVariant(device)
	case Sliced:
		t.slice, err = t.createSliceVariant(device)
	case Scattered:
		t.scatter, err = t.createScatterVariant(device, global, settings, screen)
	}
	if err != nil {
		cleanup()
		return nil, err
	}
	return t, nil
}

func (t *TerrainContext) createSamplers(device *wgpu.Device) error {
	var err error
	t.mainSampler, err = device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Terrain Main Sampler",
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeNearest,
		MinFilter:     wgpu.FilterModeNearest,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}
	t.floodSampler, err = device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Terrain Flood Sampler",
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}
	t.tableSampler, err = device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Terrain Table Sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeNearest,
		MinFilter:     wgpu.FilterModeNearest,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		MaxAnisotropy: 1,
	})
	return err
}

func (t *TerrainContext) createBindGroup(device *wgpu.Device) error {
	fragmentCompute := wgpu.ShaderStageFragment | wgpu.ShaderStageCompute
	var err error
	t.bgLayout, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Terrain BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | fragmentCompute,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: fragmentCompute,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			},
			{
				Binding:    2,
				Visibility: wgpu.ShaderStageVertex | fragmentCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    3,
				Visibility: fragmentCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUint,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    4,
				Visibility: fragmentCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension1D,
				},
			},
			{
				Binding:    5,
				Visibility: fragmentCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUint,
					ViewDimension: wgpu.TextureViewDimension1D,
				},
			},
			{
				Binding:    6,
				Visibility: fragmentCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension1D,
				},
			},
			{
				Binding:    7,
				Visibility: wgpu.ShaderStageVertex | fragmentCompute,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeNonFiltering},
			},
			{
				Binding:    8,
				Visibility: fragmentCompute,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
			{
				Binding:    9,
				Visibility: fragmentCompute,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeNonFiltering},
			},
		},
	})
	if err != nil {
		return err
	}

	heightView, err := t.heightTex.CreateView(nil)
	if err != nil {
		return err
	}
	metaView, err := t.metaTex.CreateView(nil)
	if err != nil {
		return err
	}
	floodView, err := t.floodTex.CreateView(nil)
	if err != nil {
		return err
	}
	tableView, err := t.tableTex.CreateView(nil)
	if err != nil {
		return err
	}

	t.bindGroup, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Terrain BG",
		Layout: t.bgLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: t.surfaceBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: t.uniformBuf, Size: wgpu.WholeSize},
			{Binding: 2, TextureView: heightView},
			{Binding: 3, TextureView: metaView},
			{Binding: 4, TextureView: floodView},
			{Binding: 5, TextureView: tableView},
			{Binding: 6, TextureView: t.palette.View},
			{Binding: 7, Sampler: t.mainSampler},
			{Binding: 8, Sampler: t.floodSampler},
			{Binding: 9, Sampler: t.tableSampler},
		},
	})
	return err
}

// clipVertexBytes packs i8x4 clip-space vertices.
func clipVertexBytes(verts [][4]int8) []byte {
	out := make([]byte, len(verts)*4)
	for i, v := range verts {
		out[i*4+0] = byte(v[0])
		out[i*4+1] = byte(v[1])
		out[i*4+2] = byte(v[2])
		out[i*4+3] = byte(v[3])
	}
	return out
}

func indexBytes(indices []uint16) []byte {
	out := make([]byte, len(indices)*2)
	for i, v := range indices {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

var clipVertexLayout = wgpu.VertexBufferLayout{
	ArrayStride: 4,
	StepMode:    wgpu.VertexStepModeVertex,
	Attributes: []wgpu.VertexAttribute{
		{Format: wgpu.VertexFormatSint8x4, Offset: 0, ShaderLocation: 0},
	},
}

func terrainDepthState(compare wgpu.CompareFunction) *wgpu.DepthStencilState {
	keep := wgpu.StencilFaceState{
		Compare:     wgpu.CompareFunctionAlways,
		FailOp:      wgpu.StencilOperationKeep,
		DepthFailOp: wgpu.StencilOperationKeep,
		PassOp:      wgpu.StencilOperationKeep,
	}
	return &wgpu.DepthStencilState{
		Format:            DepthFormat,
		DepthWriteEnabled: true,
		DepthCompare:      compare,
		StencilFront:      keep,
		StencilBack:       keep,
		StencilReadMask:   0xFFFFFFFF,
		StencilWriteMask:  0xFFFFFFFF,
	}
}

func (t *TerrainContext) createTerrainPipeline(device *wgpu.Device, name string, topology wgpu.PrimitiveTopology, depthCompare wgpu.CompareFunction, layout *wgpu.PipelineLayout, withVertices bool) (*wgpu.RenderPipeline, error) {
	module, err := loadShaderModule(device, name, t.shaderRoot)
	if err != nil {
		return nil, err
	}
	defer module.Release()

	var buffers []wgpu.VertexBufferLayout
	if withVertices {
		buffers = []wgpu.VertexBufferLayout{clipVertexLayout}
	}
	pipeline, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  name,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers:    buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    ColorFormat,
				Blend:     nil, // replace
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topology,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: terrainDepthState(depthCompare),
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, &ShaderError{Name: name, Err: err}
	}
	return pipeline, nil
}

func (t *TerrainContext) createRayVariant(device *wgpu.Device) (*rayVariant, error) {
	// A projective fan: the apex sits at the origin, the equatorial
	// directions close it over the whole far plane.
	vertices := [][4]int8{
		{0, 0, 0, 1},
		{-1, 0, 0, 0},
		{0, -1, 0, 0},
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}
	indices := []uint16{0, 1, 2, 0, 2, 3, 0, 3, 4, 0, 4, 1}

	pipeline, err := t.createTerrainPipeline(device, "terrain_ray",
		wgpu.PrimitiveTopologyTriangleList, wgpu.CompareFunctionAlways, t.pipelineLayout, true)
	if err != nil {
		return nil, err
	}
	vb, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Terrain Ray Vertices",
		Contents: clipVertexBytes(vertices),
		Usage:    wgpu.BufferUsageVertex,
	})
	if err != nil {
		return nil, err
	}
	ib, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Terrain Ray Indices",
		Contents: indexBytes(indices),
		Usage:    wgpu.BufferUsageIndex,
	})
	if err != nil {
		vb.Release()
		return nil, err
	}
	return &rayVariant{
		pipeline:   pipeline,
		vertexBuf:  vb,
		indexBuf:   ib,
		numIndices: uint32(len(indices)),
	}, nil
}

func (t *TerrainContext) createSliceVariant(device *wgpu.Device) (*sliceVariant, error) {
	vertices := [][4]int8{
		{-1, -1, 0, 1},
		{1, -1, 0, 1},
		{1, 1, 0, 1},
		{-1, 1, 0, 1},
	}
	indices := []uint16{0, 1, 2, 0, 2, 3}

	pipeline, err := t.createTerrainPipeline(device, "terrain_slice",
		wgpu.PrimitiveTopologyTriangleList, wgpu.CompareFunctionLess, t.pipelineLayout, true)
	if err != nil {
		return nil, err
	}
	vb, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Terrain Slice Vertices",
		Contents: clipVertexBytes(vertices),
		Usage:    wgpu.BufferUsageVertex,
	})
	if err != nil {
		return nil, err
	}
	ib, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Terrain Slice Indices",
		Contents: indexBytes(indices),
		Usage:    wgpu.BufferUsageIndex,
	})
	if err != nil {
		vb.Release()
		return nil, err
	}
	return &sliceVariant{
		pipeline:   pipeline,
		vertexBuf:  vb,
		indexBuf:   ib,
		numIndices: uint32(len(indices)),
	}, nil
}

func (t *TerrainContext) createScatterPipelines(device *wgpu.Device, layout *wgpu.PipelineLayout) (scatter, clear *wgpu.ComputePipeline, copyPipe *wgpu.RenderPipeline, err error) {
	module, err := loadShaderModule(device, "terrain_scatter", t.shaderRoot)
	if err != nil {
		return nil, nil, nil, err
	}
	defer module.Release()

	scatter, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "Terrain Scatter",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "scatter_main",
		},
	})
	if err != nil {
		return nil, nil, nil, &ShaderError{Name: "terrain_scatter", Err: err}
	}
	clear, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "Terrain Scatter Clear",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "clear_main",
		},
	})
	if err != nil {
		scatter.Release()
		return nil, nil, nil, &ShaderError{Name: "terrain_scatter", Err: err}
	}

	copyPipe, err = device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Terrain Scatter Copy",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
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
			Topology:  wgpu.PrimitiveTopologyTriangleStrip,
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
		scatter.Release()
		clear.Release()
		return nil, nil, nil, &ShaderError{Name: "terrain_scatter", Err: err}
	}
	return scatter, clear, copyPipe, nil
}

func createScatterStorage(device *wgpu.Device, layout *wgpu.BindGroupLayout, extent wgpu.Extent3D) (*wgpu.Texture, *wgpu.BindGroup, [3]uint32, error) {
	tex, err := device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Scatter Storage",
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatR32Uint,
		Usage:         wgpu.TextureUsageStorageBinding,
	})
	if err != nil {
		return nil, nil, [3]uint32{}, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, [3]uint32{}, err
	}
	bg, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Scatter Storage BG",
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: view},
		},
	})
	if err != nil {
		tex.Release()
		return nil, nil, [3]uint32{}, err
	}
	return tex, bg, computeGroupCount(extent), nil
}

func (t *TerrainContext) createScatterVariant(device *wgpu.Device, global *GlobalContext, settings *TerrainSettings, screen wgpu.Extent3D) (*scatterVariant, error) {
	bgLayout, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Scatter BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment | wgpu.ShaderStageCompute,
				StorageTexture: wgpu.StorageTextureBindingLayout{
					Access:        wgpu.StorageTextureAccessReadWrite,
					Format:        wgpu.TextureFormatR32Uint,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	layout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Scatter PL",
		BindGroupLayouts: []*wgpu.BindGroupLayout{global.BindGroupLayout, t.bgLayout, bgLayout},
	})
	if err != nil {
		return nil, err
	}

	scatter, clear, copyPipe, err := t.createScatterPipelines(device, layout)
	if err != nil {
		return nil, err
	}
	tex, bg, groups, err := createScatterStorage(device, bgLayout, screen)
	if err != nil {
		return nil, err
	}

	scatterGroups := settings.ScatterGroups
	if scatterGroups == ([3]uint32{}) {
		scatterGroups = DefaultScatterGroups
	}
	return &scatterVariant{
		pipelineLayout:  layout,
		bgLayout:        bgLayout,
		scatterPipeline: scatter,
		clearPipeline:   clear,
		copyPipeline:    copyPipe,
		bindGroup:       bg,
		storageTex:      tex,
		storageExtent:   screen,
		clearGroups:     groups,
		scatterGroups:   scatterGroups,
	}, nil
}

// Reload recreates the shader modules and pipelines of the active
// variant. On failure the previous pipelines stay in place.
func (t *TerrainContext) Reload(device *wgpu.Device) error {
	switch t.kind {
	case RayTracedOld:
		pipeline, err := t.createTerrainPipeline(device, "terrain_ray",
			wgpu.PrimitiveTopologyTriangleList, wgpu.CompareFunctionAlways, t.pipelineLayout, true)
		if err != nil {
			return err
		}
		t.ray.pipeline.Release()
		t.ray.pipeline = pipeline
	case Sliced:
		pipeline, err := t.createTerrainPipeline(device, "terrain_slice",
			wgpu.PrimitiveTopologyTriangleList, wgpu.CompareFunctionLess, t.pipelineLayout, true)
		if err != nil {
			return err
		}
		t.slice.pipeline.Release()
		t.slice.pipeline = pipeline
	case Scattered:
		scatter, clear, copyPipe, err := t.createScatterPipelines(device, t.scatter.pipelineLayout)
		if err != nil {
			return err
		}
		t.scatter.scatterPipeline.Release()
		t.scatter.clearPipeline.Release()
		t.scatter.copyPipeline.Release()
		t.scatter.scatterPipeline = scatter
		t.scatter.clearPipeline = clear
		t.scatter.copyPipeline = copyPipe
	}
	return nil
}

// Resize reallocates the scatter storage texture for the new screen
// extent. The other variants draw clip-space geometry and only need
// the frame constants refreshed.
func (t *TerrainContext) Resize(extent wgpu.Extent3D, device *wgpu.Device, queue *wgpu.Queue) error {
	queue.WriteBuffer(t.uniformBuf, 0, screenConstantsBytes(extent))
	if t.kind != Scattered {
		return nil
	}
	tex, bg, groups, err := createScatterStorage(device, t.scatter.bgLayout, extent)
	if err != nil {
		return err
	}
	t.scatter.bindGroup.Release()
	t.scatter.storageTex.Release()
	t.scatter.bindGroup = bg
	t.scatter.storageTex = tex
	t.scatter.storageExtent = extent
	t.scatter.clearGroups = groups
	return nil
}

// StorageExtent reports the scatter output size; zero for other kinds.
func (t *TerrainContext) StorageExtent() wgpu.Extent3D {
	if t.kind != Scattered {
		return wgpu.Extent3D{}
	}
	return t.scatter.storageExtent
}

// Prepare records the compute work of the frame. Only the Scatter
// variant issues commands here.
func (t *TerrainContext) Prepare(encoder *wgpu.CommandEncoder, global *GlobalContext) {
	if t.kind != Scattered {
		return
	}
	s := t.scatter
	pass := encoder.BeginComputePass(nil)
	pass.SetBindGroup(0, global.BindGroup, nil)
	pass.SetBindGroup(1, t.bindGroup, nil)
	pass.SetBindGroup(2, s.bindGroup, nil)
	pass.SetPipeline(s.clearPipeline)
	pass.DispatchWorkgroups(s.clearGroups[0], s.clearGroups[1], s.clearGroups[2])
	pass.SetPipeline(s.scatterPipeline)
	pass.DispatchWorkgroups(s.scatterGroups[0], s.scatterGroups[1], s.scatterGroups[2])
	pass.End()
}

// Draw records the terrain into an open render pass. The global bind
// group is expected at slot 0.
func (t *TerrainContext) Draw(pass *wgpu.RenderPassEncoder) {
	pass.SetBindGroup(1, t.bindGroup, nil)
	switch t.kind {
	case RayTracedOld:
		r := t.ray
		pass.SetPipeline(r.pipeline)
		pass.SetIndexBuffer(r.indexBuf, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
		pass.SetVertexBuffer(0, r.vertexBuf, 0, wgpu.WholeSize)
		pass.DrawIndexed(r.numIndices, 1, 0, 0, 0)
	case Sliced:
		s := t.slice
		pass.SetPipeline(s.pipeline)
		pass.SetIndexBuffer(s.indexBuf, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
		pass.SetVertexBuffer(0, s.vertexBuf, 0, wgpu.WholeSize)
		pass.DrawIndexed(s.numIndices, 0x100, 0, 0, 0)
	case Scattered:
		s := t.scatter
		pass.SetPipeline(s.copyPipeline)
		pass.SetBindGroup(2, s.bindGroup, nil)
		pass.Draw(4, 1, 0, 0)
	}
}

func (t *TerrainContext) Release() {
	if t == nil {
		return
	}
	if t.ray != nil {
		t.ray.pipeline.Release()
		t.ray.vertexBuf.Release()
		t.ray.indexBuf.Release()
	}
	if t.slice != nil {
		t.slice.pipeline.Release()
		t.slice.vertexBuf.Release()
		t.slice.indexBuf.Release()
	}
	if t.scatter != nil {
		t.scatter.scatterPipeline.Release()
		t.scatter.clearPipeline.Release()
		t.scatter.copyPipeline.Release()
		t.scatter.bindGroup.Release()
		t.scatter.storageTex.Release()
		t.scatter.bgLayout.Release()
		t.scatter.pipelineLayout.Release()
	}
	if t.bindGroup != nil {
		t.bindGroup.Release()
	}
	if t.bgLayout != nil {
		t.bgLayout.Release()
	}
	if t.pipelineLayout != nil {
		t.pipelineLayout.Release()
	}
	if t.mainSampler != nil {
		t.mainSampler.Release()
	}
	if t.floodSampler != nil {
		t.floodSampler.Release()
	}
	if t.tableSampler != nil {
		t.tableSampler.Release()
	}
	if t.surfaceBuf != nil {
		t.surfaceBuf.Release()
	}
	if t.uniformBuf != nil {
		t.uniformBuf.Release()
	}
	if t.heightTex != nil {
		t.heightTex.Release()
	}
	if t.metaTex != nil {
		t.metaTex.Release()
	}
	if t.floodTex != nil {
		t.floodTex.Release()
	}
	if t.tableTex != nil {
		t.tableTex.Release()
	}
	t.palette.Release()
}
