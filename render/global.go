package render

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Light is the global lighting configuration the host supplies.
type Light struct {
	Pos   mgl32.Vec4
	Color mgl32.Vec4
}

// GlobalConstantsSize covers view-projection, its inverse, camera
// position, light position and light color.
const GlobalConstantsSize = 64 + 64 + 16 + 16 + 16

// GlobalConstantsBytes packs the group-0 uniform block.
func GlobalConstantsBytes(viewProj mgl32.Mat4, camPos mgl32.Vec4, light Light) []byte {
	buf := make([]byte, GlobalConstantsSize)
	putMat4 := func(offset int, m mgl32.Mat4) {
		for i, v := range m {
			binary.LittleEndian.PutUint32(buf[offset+i*4:], math.Float32bits(v))
		}
	}
	putVec4 := func(offset int, v mgl32.Vec4) {
		for i := 0; i < 4; i++ {
			binary.LittleEndian.PutUint32(buf[offset+i*4:], math.Float32bits(v[i]))
		}
	}
	putMat4(0, viewProj)
	putMat4(64, viewProj.Inv())
	putVec4(128, camPos)
	putVec4(144, light.Pos)
	putVec4(160, light.Color)
	return buf
}

// GlobalContext owns the camera/light uniform buffer and the group-0
// bind group layout shared by every pipeline.
type GlobalContext struct {
	UniformBuf      *wgpu.Buffer
	BindGroupLayout *wgpu.BindGroupLayout
	BindGroup       *wgpu.BindGroup
}

func NewGlobalContext(device *wgpu.Device) (*GlobalContext, error) {
	uniformBuf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Globals",
		Size:  GlobalConstantsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}

	layout, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Globals BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute,
				Buffer: wgpu.BufferBindingLayout{
					Type: wgpu.BufferBindingTypeUniform,
				},
			},
		},
	})
	if err != nil {
		uniformBuf.Release()
		return nil, err
	}

	bindGroup, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label: "Globals BG",
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: uniformBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		layout.Release()
		uniformBuf.Release()
		return nil, err
	}

	return &GlobalContext{
		UniformBuf:      uniformBuf,
		BindGroupLayout: layout,
		BindGroup:       bindGroup,
	}, nil
}

// WriteConstants rewrites the camera/light block for the next frame.
func (g *GlobalContext) WriteConstants(queue *wgpu.Queue, viewProj mgl32.Mat4, camPos mgl32.Vec4, light Light) {
	queue.WriteBuffer(g.UniformBuf, 0, GlobalConstantsBytes(viewProj, camPos, light))
}

func (g *GlobalContext) Release() {
	if g == nil {
		return
	}
	g.BindGroup.Release()
	g.BindGroupLayout.Release()
	g.UniformBuf.Release()
}
