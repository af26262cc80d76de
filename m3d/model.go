package m3d

import (
	"fmt"
	"io"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// LoadC3D decodes one geometry chunk as a renderable mesh. device may
// be nil to keep the mesh CPU-side.
func LoadC3D(r io.Reader, device *wgpu.Device, log Logger) (*Mesh, error) {
	if log == nil {
		log = nopLogger{}
	}
	return loadC3D(&reader{src: r}, device, log)
}

// LoadC3DShape decodes one geometry chunk as a collision shape.
func LoadC3DShape(r io.Reader, device *wgpu.Device, log Logger) (*Shape, error) {
	if log == nil {
		log = nopLogger{}
	}
	return loadC3DShape(&reader{src: r}, device, log)
}

// LoadM3D decodes a vehicle: body, wheels, debris, collision shape and
// equipment slots.
func LoadM3D(r io.Reader, device *wgpu.Device, log Logger) (*Model, error) {
	if log == nil {
		log = nopLogger{}
	}
	return loadM3D(&reader{src: r}, device, log)
}

// LoadModelFile reads path as a .m3d.
func LoadModelFile(path string, device *wgpu.Device, log Logger) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("m3d: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadM3D(f, device, log)
}

func loadM3D(src *reader, device *wgpu.Device, log Logger) (*Model, error) {
	log.Debugf("\tReading the body")
	body, err := loadC3D(src, device, log)
	if err != nil {
		return nil, err
	}
	model := &Model{Body: body}

	_ = src.vec()  // bounds
	_ = src.u32()  // max radius
	numWheels := src.u32()
	numDebris := src.u32()
	model.Color = [2]uint32{src.u32(), src.u32()}
	if src.err != nil {
		return nil, src.err
	}

	log.Debugf("\tReading %d wheels", numWheels)
	model.Wheels = make([]Wheel, 0, numWheels)
	for i := uint32(0); i < numWheels; i++ {
		steer := src.u32()
		pos := mgl32.Vec3{float32(src.f64()), float32(src.f64()), float32(src.f64())}
		width := src.u32()
		radius := src.u32()
		_ = src.u32() // bound index
		if src.err != nil {
			return nil, src.err
		}
		log.Debugf("\tSteer %d, width %d, radius %d", steer, width, radius)
		wheel := Wheel{
			Steer:  steer,
			Pos:    pos,
			Width:  width,
			Radius: radius,
		}
		// Only steerable wheels carry their own geometry.
		if steer != 0 {
			if wheel.Mesh, err = loadC3D(src, device, log); err != nil {
				return nil, err
			}
		}
		model.Wheels = append(model.Wheels, wheel)
	}

	log.Debugf("\tReading %d debris", numDebris)
	model.Debris = make([]Debrie, 0, numDebris)
	for i := uint32(0); i < numDebris; i++ {
		mesh, err := loadC3D(src, device, log)
		if err != nil {
			return nil, err
		}
		shape, err := loadC3DShape(src, nil, log)
		if err != nil {
			return nil, err
		}
		model.Debris = append(model.Debris, Debrie{Mesh: mesh, Shape: shape})
	}

	log.Debugf("\tReading the physical shape")
	if model.Shape, err = loadC3DShape(src, device, log); err != nil {
		return nil, err
	}

	slotMask := src.u32()
	if src.err != nil {
		return nil, src.err
	}
	log.Debugf("\tSlot mask %03b", slotMask)
	for i := uint32(0); i < MaxSlots; i++ {
		pos := src.vec()
		angle := src.i32()
		if src.err != nil {
			return nil, src.err
		}
		if slotMask&(1<<i) != 0 {
			log.Debugf("\tSlot %d at pos %v and angle of %d", i, pos, angle)
			model.Slots = append(model.Slots, Slot{
				Scale: 1.0,
				Pos:   pos,
				Angle: angle,
			})
		}
	}

	return model, nil
}
