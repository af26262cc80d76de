// Package m3d decodes the Vangers mesh containers: .c3d geometry
// chunks and the compound .m3d vehicle files built out of them. All
// values are little-endian. Decoding works without a GPU device; when
// one is supplied, vertex/index buffers are uploaded as part of the
// load.
package m3d

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// MaxSlots is the number of equipment slot records in a .m3d.
	MaxSlots = 3

	// Color ids selectable by polygon color[0]; out-of-range values
	// fall back to the body color.
	NumColorIDs = 9
	ColorIDBody = 1

	supportedVersion = 8
)

// VersionError reports a .c3d chunk with an unsupported version tag.
type VersionError struct {
	Got uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("m3d: unsupported version %d (want %d)", e.Got, supportedVersion)
}

// PolygonError reports a polygon with an unsupported corner count.
type PolygonError struct {
	Corners uint32
}

func (e *PolygonError) Error() string {
	return fmt.Sprintf("m3d: bad polygon corner count %d", e.Corners)
}

// Logger is the subset of the host logger the decoders report through.
type Logger interface {
	Debugf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}

// Physics is the inertial block of a geometry chunk.
type Physics struct {
	Volume float32
	Rcm    mgl32.Vec3
	Jacobi mgl32.Mat3
}

// ObjectVertex is the compacted GPU vertex of a mesh.
type ObjectVertex struct {
	Pos    [4]int8
	Color  uint32
	Normal [4]int8
}

// ObjectVertexSize is the wire size of one ObjectVertex.
const ObjectVertexSize = 12

// DebugVertex is the position-only vertex of collision visuals.
type DebugVertex struct {
	Pos [4]int8
}

// Mesh is one decoded geometry chunk.
type Mesh struct {
	Vertices []ObjectVertex
	Indices  []uint16

	// Present iff the mesh was decoded with a device.
	VertexBuf *wgpu.Buffer
	IndexBuf  *wgpu.Buffer

	Offset    mgl32.Vec3
	BoundsMin mgl32.Vec3
	BoundsMax mgl32.Vec3
	MaxRadius float32
	Physics   Physics
}

// Polygon is one face of a collision shape.
type Polygon struct {
	Middle mgl32.Vec3
	Normal mgl32.Vec3
	// SampleRange indexes the shape's sample pool.
	SampleRange [2]uint16
}

// DebugShape mirrors a collision shape on the GPU for visualisation.
type DebugShape struct {
	BoundVB  *wgpu.Buffer
	BoundIB  *wgpu.Buffer
	NumEdges uint32
	SampleVB *wgpu.Buffer
}

// Shape is a decoded collision shape.
type Shape struct {
	Polygons  []Polygon
	Samples   [][3]int8
	Positions []DebugVertex
	Edges     []uint32
	Debug     *DebugShape
}

// Wheel carries a mesh only when steerable.
type Wheel struct {
	Mesh   *Mesh
	Steer  uint32
	Pos    mgl32.Vec3
	Width  uint32
	Radius uint32
}

type Debrie struct {
	Mesh  *Mesh
	Shape *Shape
}

// Slot is an attach point; its mesh is resolved externally.
type Slot struct {
	Mesh  *Mesh
	Scale float32
	Pos   mgl32.Vec3
	Angle int32
}

// Model is a decoded .m3d vehicle.
type Model struct {
	Body   *Mesh
	Shape  *Shape
	Color  [2]uint32
	Wheels []Wheel
	Debris []Debrie
	Slots  []Slot
}

// reader is a sticky-error little-endian scanner over the source.
type reader struct {
	src io.Reader
	err error
}

func (rd *reader) fail(err error) {
	if rd.err == nil && err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		rd.err = err
	}
}

func (rd *reader) bytes(buf []byte) {
	if rd.err != nil {
		return
	}
	_, err := io.ReadFull(rd.src, buf)
	rd.fail(err)
}

func (rd *reader) u32() uint32 {
	var buf [4]byte
	rd.bytes(buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

func (rd *reader) i32() int32 { return int32(rd.u32()) }

func (rd *reader) i8() int8 {
	var buf [1]byte
	rd.bytes(buf[:])
	return int8(buf[0])
}

func (rd *reader) f64() float64 {
	var buf [8]byte
	rd.bytes(buf[:])
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))
}

func (rd *reader) skip(n int) {
	if rd.err != nil {
		return
	}
	if s, ok := rd.src.(io.Seeker); ok {
		_, err := s.Seek(int64(n), io.SeekCurrent)
		rd.fail(err)
		return
	}
	_, err := io.CopyN(io.Discard, rd.src, int64(n))
	rd.fail(err)
}

// vec reads three i32 coordinates as floats.
func (rd *reader) vec() mgl32.Vec3 {
	return mgl32.Vec3{float32(rd.i32()), float32(rd.i32()), float32(rd.i32())}
}
