// Package render owns the GPU side of the game: the shared global
// bind group, the palette texture, the terrain pipeline variants and
// the model renderer. All resources are created once at load time and
// released when their owning context is dropped; only per-frame
// uniform buffers are rewritten afterwards.
package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/lolmaus/vangers/render/shaders"
)

const (
	ColorFormat = wgpu.TextureFormatBGRA8Unorm
	DepthFormat = wgpu.TextureFormatDepth32Float
)

// ScreenTargets are the per-frame views the host hands to the
// renderers.
type ScreenTargets struct {
	Extent wgpu.Extent3D
	Color  *wgpu.TextureView
	Depth  *wgpu.TextureView
}

// UnimplementedError marks a terrain kind without a pipeline yet.
type UnimplementedError struct {
	Variant string
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("render: terrain kind %s is not implemented", e.Variant)
}

// ShaderError wraps a backend shader compile failure.
type ShaderError struct {
	Name string
	Err  error
}

func (e *ShaderError) Error() string {
	return fmt.Sprintf("render: shader %s: %v", e.Name, e.Err)
}

func (e *ShaderError) Unwrap() error { return e.Err }

// loadShaderModule compiles the named WGSL module, preferring an
// on-disk copy under root (hot reload) over the embedded source.
func loadShaderModule(device *wgpu.Device, name, root string) (*wgpu.ShaderModule, error) {
	var code string
	if root != "" {
		if raw, err := os.ReadFile(filepath.Join(root, name+".wgsl")); err == nil {
			code = string(raw)
		}
	}
	if code == "" {
		raw, err := shaders.FS.ReadFile(name + ".wgsl")
		if err != nil {
			return nil, &ShaderError{Name: name, Err: err}
		}
		code = string(raw)
	}
	mod, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, &ShaderError{Name: name, Err: err}
	}
	return mod, nil
}

// Palette is the shared 256-entry color table as a 1D texture.
type Palette struct {
	Texture *wgpu.Texture
	View    *wgpu.TextureView
}

func NewPalette(device *wgpu.Device, queue *wgpu.Queue, data *[0x100][4]byte) (*Palette, error) {
	extent := wgpu.Extent3D{Width: 0x100, Height: 1, DepthOrArrayLayers: 1}
	tex, err := device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Palette",
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension1D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	texels := make([]byte, 0x100*4)
	for i, c := range data {
		copy(texels[i*4:], c[:])
	}
	err = queue.WriteTexture(
		tex.AsImageCopy(),
		texels,
		&wgpu.TextureDataLayout{BytesPerRow: 0x100 * 4, RowsPerImage: 1},
		&extent,
	)
	if err != nil {
		tex.Release()
		return nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &Palette{Texture: tex, View: view}, nil
}

func (p *Palette) Release() {
	if p == nil {
		return
	}
	p.View.Release()
	p.Texture.Release()
}
