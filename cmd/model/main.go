// Viewer for .m3d vehicle models: loads one model and spins it under
// the configured light. A/D rotate, R reloads the shaders, Escape
// quits.
package main

import (
	"flag"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/lolmaus/vangers"
	"github.com/lolmaus/vangers/config"
	"github.com/lolmaus/vangers/level"
	"github.com/lolmaus/vangers/render"
)

type viewer struct {
	gpu    *vangers.GpuState
	global *render.GlobalContext
	object *render.ObjectContext

	model     render.RenderModel
	transform mgl32.Mat4
	proj      mgl32.Mat4
	view      mgl32.Mat4
	camPos    mgl32.Vec4
	light     render.Light
	rotation  float32
}

func (v *viewer) update(delta float32) {
	if v.rotation != 0 {
		spin := mgl32.HomogRotate3DZ(v.rotation * delta)
		v.transform = spin.Mul4(v.transform)
	}
	v.model.Transform = v.transform
}

func (v *viewer) draw(depth *wgpu.TextureView, colorView *wgpu.TextureView) error {
	v.global.WriteConstants(v.gpu.Queue, v.proj.Mul4(v.view), v.camPos, v.light)
	v.object.Prepare(v.gpu.Queue, &v.model)

	encoder, err := v.gpu.Device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       colorView,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.1, G: 0.2, B: 0.3, A: 1.0},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            depth,
			DepthClearValue: 1.0,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
		},
	})
	pass.SetBindGroup(0, v.global.BindGroup, nil)
	v.object.Draw(pass, &v.model)
	if err := pass.End(); err != nil {
		return err
	}
	pass.Release()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer cmd.Release()
	v.gpu.Queue.Submit(cmd)
	return nil
}

func main() {
	settingsPath := flag.String("settings", "settings.toml", "settings file")
	modelPath := flag.String("model", "", "override the car model path")
	debug := flag.Bool("debug", false, "verbose decode logging")
	flag.Parse()

	log := vangers.NewDefaultLogger("model", *debug)

	settings, err := config.Load(*settingsPath)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	path := settings.Car.Model
	if *modelPath != "" {
		path = *modelPath
	}

	window, err := vangers.CreateWindowState(settings.Window.Size[0], settings.Window.Size[1], settings.Window.Title)
	if err != nil {
		log.Errorf("window: %v", err)
		os.Exit(1)
	}
	gpu, err := vangers.CreateGpuState(window)
	if err != nil {
		log.Errorf("gpu: %v", err)
		os.Exit(1)
	}

	log.Infof("Initializing the render")
	palette, err := level.LoadPalette(settings.Level.Palette)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	global, err := render.NewGlobalContext(gpu.Device)
	if err != nil {
		log.Errorf("render: %v", err)
		os.Exit(1)
	}
	object, err := render.NewObjectContext(gpu.Device, gpu.Queue, &palette, global, settings.Render.ShaderRoot)
	if err != nil {
		log.Errorf("render: %v", err)
		os.Exit(1)
	}

	assets := vangers.NewAssetServer(gpu.Device, log)
	_, model, err := assets.LoadModel(path)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	aspect := float32(settings.Window.Size[0]) / float32(settings.Window.Size[1])
	v := &viewer{
		gpu:    gpu,
		global: global,
		object: object,
		model: render.RenderModel{
			Model:           model,
			DebugShapeScale: 0,
		},
		transform: mgl32.Translate3D(0, 0, 1),
		proj:      mgl32.Perspective(mgl32.DegToRad(45), aspect, 5, 400),
		view: mgl32.LookAtV(
			mgl32.Vec3{0, -200, 100},
			mgl32.Vec3{0, 0, 0},
			mgl32.Vec3{0, 0, 1},
		),
		camPos: mgl32.Vec4{0, -200, 100, 1},
		light:  settings.GlobalLight(),
	}

	window.Window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		switch action {
		case glfw.Press:
			switch key {
			case glfw.KeyEscape:
				w.SetShouldClose(true)
			case glfw.KeyA:
				v.rotation = -2.0
			case glfw.KeyD:
				v.rotation = 2.0
			case glfw.KeyR:
				if err := object.Reload(gpu.Device); err != nil {
					log.Errorf("reload: %v", err)
				}
			}
		case glfw.Release:
			if key == glfw.KeyA || key == glfw.KeyD {
				v.rotation = 0
			}
		}
	})
	window.Window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if err := gpu.Resize(width, height); err != nil {
			log.Errorf("resize: %v", err)
			return
		}
		v.proj = mgl32.Perspective(mgl32.DegToRad(45), float32(width)/float32(height), 5, 400)
	})

	lastTime := glfw.GetTime()
	for !window.Window.ShouldClose() {
		glfw.PollEvents()

		now := glfw.GetTime()
		v.update(float32(now - lastTime))
		lastTime = now

		frame, err := gpu.Surface.GetCurrentTexture()
		if err != nil {
			log.Errorf("acquire: %v", err)
			continue
		}
		view, err := frame.CreateView(nil)
		if err != nil {
			log.Errorf("acquire: %v", err)
			continue
		}
		if err := v.draw(gpu.DepthView, view); err != nil {
			log.Errorf("draw: %v", err)
		}
		view.Release()
		gpu.Surface.Present()
	}
}
