package render

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lolmaus/vangers/level"
)

func TestComputeGroupCount(t *testing.T) {
	groups := computeGroupCount(wgpu.Extent3D{Width: 1920, Height: 1080, DepthOrArrayLayers: 1})
	assert.Equal(t, [3]uint32{120, 68, 1}, groups)

	exact := computeGroupCount(wgpu.Extent3D{Width: 1600, Height: 1600, DepthOrArrayLayers: 1})
	assert.Equal(t, [3]uint32{100, 100, 1}, exact)
}

func TestScatterGroupsDefault(t *testing.T) {
	// The scatter pass dispatch grid is not derived from the level
	// dimensions; it defaults to the historical constant and is
	// configurable through TerrainSettings.ScatterGroups.
	assert.Equal(t, [3]uint32{100, 100, 1}, DefaultScatterGroups)
}

func TestTerrainTableTexels(t *testing.T) {
	var terrains [level.NumTerrains]level.TerrainConfig
	terrains[0] = level.TerrainConfig{
		ShadowOffset: 3,
		HeightShift:  2,
		ColorRange:   [2]uint8{10, 20},
	}
	terrains[7] = level.TerrainConfig{ColorRange: [2]uint8{200, 255}}

	texels := terrainTableTexels(&terrains)
	require.Len(t, texels, level.NumTerrains*4)
	assert.Equal(t, []byte{3, 2, 10, 20}, texels[0:4])
	assert.Equal(t, []byte{0, 0, 200, 255}, texels[28:32])
}

func TestFloodTexels(t *testing.T) {
	assert.Equal(t, []byte{0x10, 0xFF, 0x01}, floodTexels([]uint32{0x10, 0x1FF, 0xABCD01}))
}

func TestSurfaceConstants(t *testing.T) {
	buf := surfaceConstantsBytes([2]int32{2048, 1024})
	require.Len(t, buf, 16)
	assert.Equal(t, float32(2048), math.Float32frombits(binary.LittleEndian.Uint32(buf[0:])))
	assert.Equal(t, float32(1024), math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])))
	assert.Equal(t, float32(level.HeightScale), math.Float32frombits(binary.LittleEndian.Uint32(buf[8:])))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[12:]))
}

func TestScreenConstants(t *testing.T) {
	buf := screenConstantsBytes(wgpu.Extent3D{Width: 800, Height: 600, DepthOrArrayLayers: 1})
	require.Len(t, buf, 16)
	assert.Equal(t, uint32(800), binary.LittleEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(600), binary.LittleEndian.Uint32(buf[4:]))
}

func TestParseTerrainKind(t *testing.T) {
	for _, kind := range []TerrainKind{RayTracedOld, RayTraced, Tessellated, Sliced, Scattered} {
		parsed, err := ParseTerrainKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}
	_, err := ParseTerrainKind("voxels")
	assert.Error(t, err)
}

func TestUnsupportedKindsFailFast(t *testing.T) {
	for _, kind := range []TerrainKind{RayTraced, Tessellated} {
		_, err := NewTerrainContext(nil, nil, nil, nil, &TerrainSettings{Kind: kind}, wgpu.Extent3D{})
		var uerr *UnimplementedError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, kind.String(), uerr.Variant)
	}
}

func TestGlobalConstantsBytes(t *testing.T) {
	viewProj := mgl32.Ident4()
	buf := GlobalConstantsBytes(viewProj, mgl32.Vec4{1, 2, 3, 1}, Light{
		Pos:   mgl32.Vec4{0, 0, 10, 1},
		Color: mgl32.Vec4{1, 1, 1, 1},
	})
	require.Len(t, buf, GlobalConstantsSize)

	// Identity matrix round-trips through both matrix slots.
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(buf[0:])))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(buf[64:])))
	// Camera position after the matrices.
	assert.Equal(t, float32(3), math.Float32frombits(binary.LittleEndian.Uint32(buf[128+8:])))
	// Light position and color.
	assert.Equal(t, float32(10), math.Float32frombits(binary.LittleEndian.Uint32(buf[144+8:])))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(buf[160:])))
}
