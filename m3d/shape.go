package m3d

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// tessellator turns one polygon into surface samples: the middle point
// plus the midpoint of every corner-to-middle segment. Halving happens
// by arithmetic shift so the samples stay in i8 range.
type tessellator struct {
	samples [][3]int8
}

func half(a, b int8) int8 {
	return int8((int16(a) + int16(b)) >> 1)
}

func (t *tessellator) tessellate(corners []DebugVertex, middle [3]int8) [][3]int8 {
	t.samples = t.samples[:0]
	t.samples = append(t.samples, middle)
	for _, c := range corners {
		t.samples = append(t.samples, [3]int8{
			half(c.Pos[0], middle[0]),
			half(c.Pos[1], middle[1]),
			half(c.Pos[2], middle[2]),
		})
	}
	return t.samples
}

func debugVertexBytes(verts []DebugVertex) []byte {
	out := make([]byte, len(verts)*4)
	for i, v := range verts {
		out[i*4+0] = byte(v.Pos[0])
		out[i*4+1] = byte(v.Pos[1])
		out[i*4+2] = byte(v.Pos[2])
		out[i*4+3] = byte(v.Pos[3])
	}
	return out
}

func uploadShapeDebug(s *Shape, device *wgpu.Device) error {
	bound, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Shape Bound Vertices",
		Contents: debugVertexBytes(s.Positions),
		Usage:    wgpu.BufferUsageVertex,
	})
	if err != nil {
		return err
	}
	edges, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Shape Edges",
		Contents: wgpu.ToBytes(s.Edges),
		Usage:    wgpu.BufferUsageIndex,
	})
	if err != nil {
		bound.Release()
		return err
	}
	samples := make([]DebugVertex, len(s.Samples))
	for i, p := range s.Samples {
		samples[i] = DebugVertex{Pos: [4]int8{p[0], p[1], p[2], 1}}
	}
	sampleVB, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Shape Samples",
		Contents: debugVertexBytes(samples),
		Usage:    wgpu.BufferUsageVertex,
	})
	if err != nil {
		bound.Release()
		edges.Release()
		return err
	}
	s.Debug = &DebugShape{
		BoundVB:  bound,
		BoundIB:  edges,
		NumEdges: uint32(len(s.Edges)),
		SampleVB: sampleVB,
	}
	return nil
}

// loadC3DShape reads the same container as loadC3D but keeps only the
// collision data: quantised polygons and tessellated samples. Debug
// buffers are uploaded iff a device is given.
func loadC3DShape(src *reader, device *wgpu.Device, log Logger) (*Shape, error) {
	h, err := readHeader(src)
	if err != nil {
		return nil, err
	}

	shape := &Shape{
		Polygons: make([]Polygon, 0, h.numPolygons),
	}
	coordMax := src.vec()
	coordMin := src.vec()
	log.Debugf("\tBound %v to %v", coordMin, coordMax)

	// parent offset, max radius, parent rotation, physics
	src.skip((3+1+3)*4 + (1+3+9)*8)

	positions := make([]DebugVertex, h.numPositions)
	for i := range positions {
		src.skip(3 * 4) // unknown
		positions[i] = DebugVertex{Pos: [4]int8{src.i8(), src.i8(), src.i8(), 1}}
		src.skip(4) // sort info
	}
	shape.Positions = positions

	src.skip(int(h.numNormals) * (4 + 4))

	log.Debugf("\tReading %d polygons", h.numPolygons)
	var tess tessellator
	for i := uint32(0); i < h.numPolygons; i++ {
		numCorners := src.u32()
		if src.err != nil {
			return nil, src.err
		}
		if numCorners < 3 || numCorners > 4 {
			return nil, &PolygonError{Corners: numCorners}
		}
		src.skip(4 + 4 + 4) // sort info and color
		var d [7]int8
		for k := range d {
			d[k] = src.i8()
		}
		pids := make([]uint32, numCorners)
		for k := range pids {
			pids[k] = src.u32()
			_ = src.u32() // nid
		}
		if src.err != nil {
			return nil, src.err
		}
		for _, pid := range pids {
			if pid >= h.numPositions {
				return nil, fmt.Errorf("m3d: shape polygon %d references position %d out of range", i, pid)
			}
		}
		corners := make([]DebugVertex, numCorners)
		for k, pid := range pids {
			shape.Edges = append(shape.Edges, pid, pids[(k+1)%int(numCorners)])
			corners[k] = positions[pid]
		}
		middle := [3]int8{d[4], d[5], d[6]}
		samples := tess.tessellate(corners, middle)
		shape.Polygons = append(shape.Polygons, Polygon{
			Middle: mgl32.Vec3{float32(d[4]), float32(d[5]), float32(d[6])},
			Normal: mgl32.Vec3{float32(d[0]) / 128, float32(d[1]) / 128, float32(d[2]) / 128},
			SampleRange: [2]uint16{
				uint16(len(shape.Samples)),
				uint16(len(shape.Samples) + len(samples)),
			},
		})
		shape.Samples = append(shape.Samples, samples...)
	}

	// sorted variable polygons
	src.skip(3 * int(h.numPolygons) * 4)
	if src.err != nil {
		return nil, src.err
	}

	if device != nil {
		if err := uploadShapeDebug(shape, device); err != nil {
			return nil, err
		}
	}
	return shape, nil
}
