// Package vangers holds the host-side glue of the viewers: window and
// device bring-up, logging and the asset cache. The renderer core
// lives in the level, m3d and render packages.
package vangers

import (
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/lolmaus/vangers/render"
)

type WindowState struct {
	Window *glfw.Window
	Width  int
	Height int
	title  string
}

// CreateWindowState opens the GLFW window. Must be called from the
// main goroutine; it locks the OS thread.
func CreateWindowState(width, height int, title string) (*WindowState, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, err
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, err
	}

	return &WindowState{
		Window: win,
		Width:  width,
		Height: height,
		title:  title,
	}, nil
}

func (s *WindowState) Extent() wgpu.Extent3D {
	return wgpu.Extent3D{
		Width:              uint32(s.Width),
		Height:             uint32(s.Height),
		DepthOrArrayLayers: 1,
	}
}

type GpuState struct {
	Surface       *wgpu.Surface
	Adapter       *wgpu.Adapter
	Device        *wgpu.Device
	Queue         *wgpu.Queue
	SurfaceConfig wgpu.SurfaceConfiguration

	depthTexture *wgpu.Texture
	DepthView    *wgpu.TextureView
}

// CreateGpuState wraps the window into a surface and allocates the
// device, the queue and the shared depth target.
func CreateGpuState(s *WindowState) (*GpuState, error) {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(s.Window))
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, err
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
	})
	if err != nil {
		return nil, err
	}
	queue := device.GetQueue()

	caps := surface.GetCapabilities(adapter)
	surfaceConfig := wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(s.Width),
		Height:      uint32(s.Height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, device, &surfaceConfig)

	g := &GpuState{
		Surface:       surface,
		Adapter:       adapter,
		Device:        device,
		Queue:         queue,
		SurfaceConfig: surfaceConfig,
	}
	if err := g.createDepthTarget(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GpuState) createDepthTarget() error {
	tex, err := g.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Depth Target",
		Size: wgpu.Extent3D{
			Width:              g.SurfaceConfig.Width,
			Height:             g.SurfaceConfig.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        render.DepthFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return err
	}
	if g.DepthView != nil {
		g.DepthView.Release()
	}
	if g.depthTexture != nil {
		g.depthTexture.Release()
	}
	g.depthTexture = tex
	g.DepthView = view
	return nil
}

// Resize reconfigures the swapchain and depth target for the new
// window size.
func (g *GpuState) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	g.SurfaceConfig.Width = uint32(width)
	g.SurfaceConfig.Height = uint32(height)
	g.Surface.Configure(g.Adapter, g.Device, &g.SurfaceConfig)
	return g.createDepthTarget()
}

func (g *GpuState) Extent() wgpu.Extent3D {
	return wgpu.Extent3D{
		Width:              g.SurfaceConfig.Width,
		Height:             g.SurfaceConfig.Height,
		DepthOrArrayLayers: 1,
	}
}
