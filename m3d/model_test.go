package m3d

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bw builds synthetic container bytes.
type bw struct {
	buf bytes.Buffer
}

func (w *bw) u32(v uint32)  { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *bw) i32(v int32)   { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *bw) i8(v int8)     { w.buf.WriteByte(byte(v)) }
func (w *bw) f64(v float64) { binary.Write(&w.buf, binary.LittleEndian, math.Float64bits(v)) }
func (w *bw) vec(x, y, z int32) {
	w.i32(x)
	w.i32(y)
	w.i32(z)
}

type testPoly struct {
	color  [2]uint32
	middle [3]int8
	normal [3]int8
	// pid/nid pairs
	corners [][2]uint32
}

// writeC3D emits a full geometry chunk. The same bytes parse through
// both the mesh and the shape paths.
func writeC3D(w *bw, positions [][3]int8, normals [][4]uint8, polys []testPoly) {
	w.u32(8) // version
	w.u32(uint32(len(positions)))
	w.u32(uint32(len(normals)))
	w.u32(uint32(len(polys)))
	w.u32(uint32(len(polys) * 3)) // total verts, unused

	w.vec(100, 100, 100) // coord max
	w.vec(-100, -100, -100)
	w.vec(7, 8, 9) // parent offset
	w.u32(42)      // max radius
	w.vec(0, 0, 0) // parent rotation

	w.f64(2.5) // volume
	for i := 1; i <= 3; i++ {
		w.f64(float64(i)) // rcm
	}
	for i := 1; i <= 9; i++ {
		w.f64(float64(i) * 10) // jacobi
	}

	for _, p := range positions {
		w.vec(0, 0, 0) // unknown
		w.i8(p[0])
		w.i8(p[1])
		w.i8(p[2])
		w.u32(0) // sort info
	}
	for _, n := range normals {
		w.buf.Write(n[:])
		w.u32(0) // sort info
	}
	for _, p := range polys {
		w.u32(uint32(len(p.corners)))
		w.u32(0) // sort info
		w.u32(p.color[0])
		w.u32(p.color[1])
		w.i8(p.normal[0])
		w.i8(p.normal[1])
		w.i8(p.normal[2])
		w.i8(0) // normal w / flag
		w.i8(p.middle[0])
		w.i8(p.middle[1])
		w.i8(p.middle[2])
		for _, c := range p.corners {
			w.u32(c[0])
			w.u32(c[1])
		}
	}
	for i := 0; i < 3*len(polys); i++ {
		w.u32(0) // sorted variable polygons
	}
}

func defaultMeshChunk() *bw {
	w := &bw{}
	writeC3D(w,
		[][3]int8{{0, 0, 0}, {10, 0, 0}, {0, 10, 0}, {10, 10, 0}},
		[][4]uint8{{127, 0, 0, 1}, {0, 127, 0, 1}},
		[]testPoly{
			{color: [2]uint32{3, 0}, corners: [][2]uint32{{0, 0}, {1, 0}, {2, 0}}},
			{color: [2]uint32{3, 0}, corners: [][2]uint32{{1, 0}, {3, 1}, {2, 0}}},
		},
	)
	return w
}

func TestLoadC3DMesh(t *testing.T) {
	mesh, err := LoadC3D(bytes.NewReader(defaultMeshChunk().buf.Bytes()), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, float32(2.5), mesh.Physics.Volume)
	assert.Equal(t, float32(1), mesh.Physics.Rcm[0])
	assert.Equal(t, float32(90), mesh.Physics.Jacobi[8])
	assert.Equal(t, float32(7), mesh.Offset[0])
	assert.Equal(t, float32(42), mesh.MaxRadius)
	assert.Equal(t, float32(-100), mesh.BoundsMin[0])

	// Two triangles, six corners; the shared edge corners dedupe.
	assert.Len(t, mesh.Indices, 6)
	assert.Len(t, mesh.Vertices, 4)

	// Indices rebuild the original corner stream.
	wantPos := [][4]int8{
		{0, 0, 0, 1}, {10, 0, 0, 1}, {0, 10, 0, 1},
		{10, 0, 0, 1}, {10, 10, 0, 1}, {0, 10, 0, 1},
	}
	for i, want := range wantPos {
		assert.Equal(t, want, mesh.Vertices[mesh.Indices[i]].Pos, "corner %d", i)
	}
}

func TestMeshCompactionStable(t *testing.T) {
	decode := func() []byte {
		mesh, err := LoadC3D(bytes.NewReader(defaultMeshChunk().buf.Bytes()), nil, nil)
		require.NoError(t, err)
		return append(VertexBytes(mesh.Vertices), toBytes16(mesh.Indices)...)
	}
	assert.Equal(t, decode(), decode())
}

func toBytes16(v []uint16) []byte {
	out := make([]byte, len(v)*2)
	for i, x := range v {
		binary.LittleEndian.PutUint16(out[i*2:], x)
	}
	return out
}

func TestColorClamp(t *testing.T) {
	w := &bw{}
	writeC3D(w,
		[][3]int8{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[][4]uint8{{0, 0, 127, 1}},
		[]testPoly{{color: [2]uint32{200, 0}, corners: [][2]uint32{{0, 0}, {1, 0}, {2, 0}}}},
	)
	mesh, err := LoadC3D(bytes.NewReader(w.buf.Bytes()), nil, nil)
	require.NoError(t, err)
	for _, v := range mesh.Vertices {
		assert.Equal(t, uint32(ColorIDBody), v.Color)
	}
}

func TestLoadC3DBadVersion(t *testing.T) {
	w := &bw{}
	w.u32(7)
	_, err := LoadC3D(bytes.NewReader(w.buf.Bytes()), nil, nil)
	var verr *VersionError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, uint32(7), verr.Got)
}

func TestLoadC3DQuadRejected(t *testing.T) {
	w := &bw{}
	writeC3D(w,
		[][3]int8{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}},
		[][4]uint8{{0, 0, 127, 1}},
		[]testPoly{{corners: [][2]uint32{{0, 0}, {1, 0}, {2, 0}, {3, 0}}}},
	)
	_, err := LoadC3D(bytes.NewReader(w.buf.Bytes()), nil, nil)
	var perr *PolygonError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, uint32(4), perr.Corners)
}

func TestLoadC3DShape(t *testing.T) {
	w := &bw{}
	writeC3D(w,
		[][3]int8{{10, 0, 0}, {0, 10, 0}, {-10, 0, 0}, {0, -10, 0}},
		[][4]uint8{{0, 0, 127, 1}},
		[]testPoly{{
			normal:  [3]int8{0, 0, 64},
			middle:  [3]int8{0, 0, 0},
			corners: [][2]uint32{{0, 0}, {1, 0}, {2, 0}, {3, 0}},
		}},
	)
	shape, err := LoadC3DShape(bytes.NewReader(w.buf.Bytes()), nil, nil)
	require.NoError(t, err)

	require.Len(t, shape.Polygons, 1)
	p := shape.Polygons[0]
	assert.Equal(t, float32(0.5), p.Normal[2])
	assert.Equal(t, [2]uint16{0, 5}, p.SampleRange)

	// Middle plus one sample per corner, halved toward the middle.
	want := [][3]int8{{0, 0, 0}, {5, 0, 0}, {0, 5, 0}, {-5, 0, 0}, {0, -5, 0}}
	assert.Equal(t, want, shape.Samples)

	// Wireframe edge per corner pair.
	assert.Equal(t, []uint32{0, 1, 1, 2, 2, 3, 3, 0}, shape.Edges)
	assert.Nil(t, shape.Debug)
}

func TestShapeSampleRangeInvariant(t *testing.T) {
	w := &bw{}
	writeC3D(w,
		[][3]int8{{10, 0, 0}, {0, 10, 0}, {-10, 0, 0}, {0, -10, 0}},
		[][4]uint8{{0, 0, 127, 1}},
		[]testPoly{
			{corners: [][2]uint32{{0, 0}, {1, 0}, {2, 0}}},
			{corners: [][2]uint32{{0, 0}, {1, 0}, {2, 0}, {3, 0}}},
		},
	)
	shape, err := LoadC3DShape(bytes.NewReader(w.buf.Bytes()), nil, nil)
	require.NoError(t, err)
	for _, p := range shape.Polygons {
		n := p.SampleRange[1] - p.SampleRange[0]
		assert.Contains(t, []uint16{4, 5}, n)
	}
}

func TestLoadC3DShapeBadCorners(t *testing.T) {
	w := &bw{}
	writeC3D(w,
		[][3]int8{{0, 0, 0}, {1, 0, 0}},
		[][4]uint8{{0, 0, 127, 1}},
		[]testPoly{{corners: [][2]uint32{{0, 0}, {1, 0}, {0, 0}, {1, 0}, {0, 0}}}},
	)
	_, err := LoadC3DShape(bytes.NewReader(w.buf.Bytes()), nil, nil)
	var perr *PolygonError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, uint32(5), perr.Corners)
}

// writeM3D composes a minimal vehicle: body, two wheels (one without a
// mesh), one debrie, the body shape and three slot records.
func writeM3D(w *bw, slotMask uint32) {
	positions := [][3]int8{{0, 0, 0}, {10, 0, 0}, {0, 10, 0}}
	normals := [][4]uint8{{0, 0, 127, 1}}
	tri := []testPoly{{color: [2]uint32{1, 0}, corners: [][2]uint32{{0, 0}, {1, 0}, {2, 0}}}}

	writeC3D(w, positions, normals, tri) // body

	w.vec(0, 0, 0) // bounds
	w.u32(50)      // max radius
	w.u32(2)       // wheels
	w.u32(1)       // debris
	w.u32(3)       // color low
	w.u32(7)       // color shift

	// Fixed wheel: header only, no inline mesh.
	w.u32(0) // steer
	w.f64(-1)
	w.f64(-2)
	w.f64(-3)
	w.u32(4)  // width
	w.u32(11) // radius
	w.u32(0)  // bound index

	// Steerable wheel with geometry.
	w.u32(1)
	w.f64(1)
	w.f64(2)
	w.f64(3)
	w.u32(4)
	w.u32(12)
	w.u32(0)
	writeC3D(w, positions, normals, tri)

	// Debrie: mesh plus collision shape.
	writeC3D(w, positions, normals, tri)
	writeC3D(w, positions, normals, tri)

	// Body shape.
	writeC3D(w, positions, normals, tri)

	w.u32(slotMask)
	slotPos := [][3]int32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	slotAngle := []int32{10, 20, 30}
	for i := 0; i < MaxSlots; i++ {
		w.vec(slotPos[i][0], slotPos[i][1], slotPos[i][2])
		w.i32(slotAngle[i])
	}
}

func TestLoadM3D(t *testing.T) {
	w := &bw{}
	writeM3D(w, 0b101)
	model, err := LoadM3D(bytes.NewReader(w.buf.Bytes()), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, [2]uint32{3, 7}, model.Color)

	require.Len(t, model.Wheels, 2)
	assert.Nil(t, model.Wheels[0].Mesh)
	assert.Equal(t, float32(-2), model.Wheels[0].Pos[1])
	assert.Equal(t, uint32(11), model.Wheels[0].Radius)
	require.NotNil(t, model.Wheels[1].Mesh)
	assert.Equal(t, uint32(1), model.Wheels[1].Steer)

	require.Len(t, model.Debris, 1)
	assert.NotNil(t, model.Debris[0].Mesh)
	assert.NotNil(t, model.Debris[0].Shape)
	assert.Nil(t, model.Debris[0].Shape.Debug)

	require.NotNil(t, model.Shape)
	assert.NotEmpty(t, model.Shape.Polygons)

	// slot_mask 0b101 keeps the first and third records.
	require.Len(t, model.Slots, 2)
	assert.Equal(t, float32(1), model.Slots[0].Pos[0])
	assert.Equal(t, int32(10), model.Slots[0].Angle)
	assert.Equal(t, float32(7), model.Slots[1].Pos[0])
	assert.Equal(t, int32(30), model.Slots[1].Angle)
	assert.Equal(t, float32(1.0), model.Slots[0].Scale)
	assert.Nil(t, model.Slots[0].Mesh)
}

func TestLoadM3DSlotCountMatchesMask(t *testing.T) {
	for mask := uint32(0); mask < 8; mask++ {
		w := &bw{}
		writeM3D(w, mask)
		model, err := LoadM3D(bytes.NewReader(w.buf.Bytes()), nil, nil)
		require.NoError(t, err, "mask %03b", mask)

		popcount := 0
		for i := 0; i < MaxSlots; i++ {
			if mask&(1<<i) != 0 {
				popcount++
			}
		}
		assert.Len(t, model.Slots, popcount, "mask %03b", mask)
	}
}
