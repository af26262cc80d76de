package render

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lolmaus/vangers/m3d"
)

func TestLocalsBytes(t *testing.T) {
	m := mgl32.Translate3D(5, 0, 0)
	buf := localsBytes(m, [2]uint32{128, 3})
	require.Len(t, buf, 80)

	// Translation lives in the last matrix column.
	assert.Equal(t, float32(5), math.Float32frombits(binary.LittleEndian.Uint32(buf[12*4:])))
	assert.Equal(t, uint32(128), binary.LittleEndian.Uint32(buf[64:]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(buf[68:]))
}

func TestModelParts(t *testing.T) {
	model := &m3d.Model{
		Body: &m3d.Mesh{},
		Wheels: []m3d.Wheel{
			{Steer: 0},                                              // no mesh, skipped
			{Steer: 1, Mesh: &m3d.Mesh{}, Pos: mgl32.Vec3{1, 2, 3}}, // drawn
		},
		Debris: []m3d.Debrie{
			{Mesh: &m3d.Mesh{}, Shape: &m3d.Shape{}},
		},
	}
	rm := &RenderModel{Model: model, Transform: mgl32.Ident4()}

	parts := modelParts(rm)
	require.Len(t, parts, 3)
	assert.Same(t, model.Body, parts[0].mesh)
	assert.Same(t, model.Wheels[1].Mesh, parts[1].mesh)
	assert.Same(t, model.Debris[0].Mesh, parts[2].mesh)

	// The wheel part is offset to its mount position.
	assert.Equal(t, float32(1), parts[1].local.At(0, 3))
	assert.Equal(t, float32(3), parts[1].local.At(2, 3))
}

func TestModelPartsStableOrder(t *testing.T) {
	model := &m3d.Model{
		Body:   &m3d.Mesh{},
		Wheels: []m3d.Wheel{{Steer: 2, Mesh: &m3d.Mesh{}}},
	}
	rm := &RenderModel{Model: model, Transform: mgl32.Ident4()}

	a := modelParts(rm)
	b := modelParts(rm)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Same(t, a[i].mesh, b[i].mesh)
	}
}
