package m3d

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
)

type header struct {
	numPositions uint32
	numNormals   uint32
	numPolygons  uint32
	totalVerts   uint32 // read but unused by the format
}

// readHeader consumes the shared .c3d preamble up to the counts.
func readHeader(rd *reader) (header, error) {
	version := rd.u32()
	if rd.err != nil {
		return header{}, rd.err
	}
	if version != supportedVersion {
		return header{}, &VersionError{Got: version}
	}
	h := header{
		numPositions: rd.u32(),
		numNormals:   rd.u32(),
		numPolygons:  rd.u32(),
		totalVerts:   rd.u32(),
	}
	return h, rd.err
}

func readPhysics(rd *reader) Physics {
	var q [13]float32
	for i := range q {
		q[i] = float32(rd.f64())
	}
	return Physics{
		Volume: q[0],
		Rcm:    [3]float32{q[1], q[2], q[3]},
		Jacobi: [9]float32{
			q[4], q[5], q[6],
			q[7], q[8], q[9],
			q[10], q[11], q[12],
		},
	}
}

// vertexKey is the dedup key of one polygon corner.
type vertexKey struct {
	pos    [4]int8
	normal [4]uint8
	color  [2]uint32
}

func keyLess(a, b vertexKey) bool {
	for i := range a.pos {
		if a.pos[i] != b.pos[i] {
			return a.pos[i] < b.pos[i]
		}
	}
	for i := range a.normal {
		if a.normal[i] != b.normal[i] {
			return a.normal[i] < b.normal[i]
		}
	}
	if a.color[0] != b.color[0] {
		return a.color[0] < b.color[0]
	}
	return a.color[1] < b.color[1]
}

func convertVertex(k vertexKey) ObjectVertex {
	color := k.color[0]
	if color >= NumColorIDs {
		color = ColorIDBody
	}
	return ObjectVertex{
		Pos:    k.pos,
		Color:  color,
		Normal: [4]int8{int8(k.normal[0]), int8(k.normal[1]), int8(k.normal[2]), int8(k.normal[3])},
	}
}

// compact sorts the raw corner tuples and emits one GPU vertex per
// distinct key plus an index per original corner. The result is
// byte-stable for a given input.
func compact(corners []vertexKey) ([]ObjectVertex, []uint16) {
	if len(corners) == 0 {
		return nil, nil
	}
	order := make([]int, len(corners))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keyLess(corners[order[a]], corners[order[b]])
	})

	verts := make([]ObjectVertex, 0, len(corners))
	indices := make([]uint16, len(corners))
	last := corners[order[0]]
	last.color[0] ^= 1 // force a mismatch on the first corner
	vid := uint16(0)
	for _, ci := range order {
		k := corners[ci]
		if k != last {
			last = k
			vid = uint16(len(verts))
			verts = append(verts, convertVertex(k))
		}
		indices[ci] = vid
	}
	return verts, indices
}

// VertexBytes serializes the compacted vertices in the wire layout the
// object pipeline expects (pos i8x4, color u32, normal i8x4).
func VertexBytes(verts []ObjectVertex) []byte {
	out := make([]byte, len(verts)*ObjectVertexSize)
	for i, v := range verts {
		o := i * ObjectVertexSize
		out[o+0] = byte(v.Pos[0])
		out[o+1] = byte(v.Pos[1])
		out[o+2] = byte(v.Pos[2])
		out[o+3] = byte(v.Pos[3])
		binary.LittleEndian.PutUint32(out[o+4:], v.Color)
		out[o+8] = byte(v.Normal[0])
		out[o+9] = byte(v.Normal[1])
		out[o+10] = byte(v.Normal[2])
		out[o+11] = byte(v.Normal[3])
	}
	return out
}

func uploadMesh(m *Mesh, device *wgpu.Device) error {
	vb, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Mesh Vertices",
		Contents: VertexBytes(m.Vertices),
		Usage:    wgpu.BufferUsageVertex,
	})
	if err != nil {
		return err
	}
	ib, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Mesh Indices",
		Contents: wgpu.ToBytes(m.Indices),
		Usage:    wgpu.BufferUsageIndex,
	})
	if err != nil {
		vb.Release()
		return err
	}
	m.VertexBuf = vb
	m.IndexBuf = ib
	return nil
}

func loadC3D(src *reader, device *wgpu.Device, log Logger) (*Mesh, error) {
	h, err := readHeader(src)
	if err != nil {
		return nil, err
	}

	coordMax := src.vec()
	coordMin := src.vec()
	parentOff := src.vec()
	log.Debugf("\tBound %v to %v with offset %v", coordMin, coordMax, parentOff)
	maxRadius := float32(src.u32())
	_ = src.vec() // parent rotation, unused
	physics := readPhysics(src)

	log.Debugf("\tReading %d positions", h.numPositions)
	positions := make([][4]int8, h.numPositions)
	for i := range positions {
		src.skip(3 * 4) // unknown
		positions[i] = [4]int8{src.i8(), src.i8(), src.i8(), 1}
		src.skip(4) // sort info
	}

	log.Debugf("\tReading %d normals", h.numNormals)
	normals := make([][4]uint8, h.numNormals)
	for i := range normals {
		src.bytes(normals[i][:])
		src.skip(4) // sort info
	}

	log.Debugf("\tReading %d polygons", h.numPolygons)
	corners := make([]vertexKey, 0, h.numPolygons*3)
	for i := uint32(0); i < h.numPolygons; i++ {
		numCorners := src.u32()
		if src.err != nil {
			return nil, src.err
		}
		if numCorners != 3 {
			return nil, &PolygonError{Corners: numCorners}
		}
		src.skip(4) // sort info
		color := [2]uint32{src.u32(), src.u32()}
		src.skip(4 + 3) // flat normal, middle point
		for k := uint32(0); k < numCorners; k++ {
			pid := src.u32()
			nid := src.u32()
			if src.err != nil {
				return nil, src.err
			}
			if pid >= h.numPositions || nid >= h.numNormals {
				return nil, fmt.Errorf("m3d: polygon %d references position %d / normal %d out of range", i, pid, nid)
			}
			corners = append(corners, vertexKey{
				pos:    positions[pid],
				normal: normals[nid],
				color:  color,
			})
		}
	}

	// sorted variable polygons
	src.skip(3 * int(h.numPolygons) * 4)
	if src.err != nil {
		return nil, src.err
	}

	log.Debugf("\tCompacting")
	verts, indices := compact(corners)
	log.Debugf("\tGot %d GPU vertices", len(verts))

	mesh := &Mesh{
		Vertices:  verts,
		Indices:   indices,
		Offset:    parentOff,
		BoundsMin: coordMin,
		BoundsMax: coordMax,
		MaxRadius: maxRadius,
		Physics:   physics,
	}
	if device != nil {
		if err := uploadMesh(mesh, device); err != nil {
			return nil, err
		}
	}
	return mesh, nil
}
