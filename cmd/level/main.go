// Viewer for the compressed level maps: decodes the heightfield and
// flies a camera over it with the configured terrain pipeline. WASD
// moves, R reloads the shaders, P dumps a height map preview, Escape
// quits.
package main

import (
	"flag"
	"image/png"
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
	log     vangers.Logger
	gpu     *vangers.GpuState
	global  *render.GlobalContext
	terrain *render.TerrainContext

	lvl    *level.Level
	camPos mgl32.Vec3
	proj   mgl32.Mat4
	light  render.Light
	move   mgl32.Vec3
}

func (v *viewer) update(delta float32) {
	v.camPos = v.camPos.Add(v.move.Mul(delta * 100))
}

func (v *viewer) viewProj() mgl32.Mat4 {
	target := v.camPos.Add(mgl32.Vec3{0, 1, -0.5})
	view := mgl32.LookAtV(v.camPos, target, mgl32.Vec3{0, 0, 1})
	return v.proj.Mul4(view)
}

func (v *viewer) draw(depth, colorView *wgpu.TextureView) error {
	v.global.WriteConstants(v.gpu.Queue, v.viewProj(), v.camPos.Vec4(1), v.light)

	encoder, err := v.gpu.Device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	v.terrain.Prepare(encoder, v.global)

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
	v.terrain.Draw(pass)
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

func (v *viewer) dumpPreview(path string) {
	f, err := os.Create(path)
	if err != nil {
		v.log.Errorf("preview: %v", err)
		return
	}
	defer f.Close()
	if err := png.Encode(f, level.Preview(v.lvl.HeightImage(), 1024)); err != nil {
		v.log.Errorf("preview: %v", err)
		return
	}
	v.log.Infof("Wrote %s", path)
}

func main() {
	settingsPath := flag.String("settings", "settings.toml", "settings file")
	debug := flag.Bool("debug", false, "verbose decode logging")
	flag.Parse()

	log := vangers.NewDefaultLogger("level", *debug)

	settings, err := config.Load(*settingsPath)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
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

	assets := vangers.NewAssetServer(gpu.Device, log)
	_, lvl, err := assets.LoadLevel(settings.LevelConfig())
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	log.Infof("Initializing the render")
	global, err := render.NewGlobalContext(gpu.Device)
	if err != nil {
		log.Errorf("render: %v", err)
		os.Exit(1)
	}
	terrain, err := render.NewTerrainContext(gpu.Device, gpu.Queue, lvl, global, settings.TerrainSettings(), gpu.Extent())
	if err != nil {
		log.Errorf("render: %v", err)
		os.Exit(1)
	}

	aspect := float32(settings.Window.Size[0]) / float32(settings.Window.Size[1])
	v := &viewer{
		log:     log,
		gpu:     gpu,
		global:  global,
		terrain: terrain,
		lvl:     lvl,
		camPos:  mgl32.Vec3{float32(lvl.Size[0]) / 2, float32(lvl.Size[1]) / 2, 200},
		proj:    mgl32.Perspective(mgl32.DegToRad(45), aspect, 1, 2000),
		light:   settings.GlobalLight(),
	}

	window.Window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		dir := float32(0)
		switch action {
		case glfw.Press:
			dir = 1
		case glfw.Release:
			dir = 0
		default:
			return
		}
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeyW:
			v.move[1] = dir
		case glfw.KeyS:
			v.move[1] = -dir
		case glfw.KeyA:
			v.move[0] = -dir
		case glfw.KeyD:
			v.move[0] = dir
		case glfw.KeyQ:
			v.move[2] = dir
		case glfw.KeyE:
			v.move[2] = -dir
		case glfw.KeyR:
			if action == glfw.Press {
				if err := terrain.Reload(gpu.Device); err != nil {
					log.Errorf("reload: %v", err)
				}
			}
		case glfw.KeyP:
			if action == glfw.Press {
				v.dumpPreview("height_preview.png")
			}
		}
	})
	window.Window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if err := gpu.Resize(width, height); err != nil {
			log.Errorf("resize: %v", err)
			return
		}
		v.proj = mgl32.Perspective(mgl32.DegToRad(45), float32(width)/float32(height), 1, 2000)
		if err := terrain.Resize(gpu.Extent(), gpu.Device, gpu.Queue); err != nil {
			log.Errorf("resize: %v", err)
		}
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
