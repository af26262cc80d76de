// Package shaders embeds the WGSL sources. The renderer can override
// any of them from an on-disk root for hot reload.
package shaders

import "embed"

//go:embed *.wgsl
var FS embed.FS
