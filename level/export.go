package level

import (
	"image"

	"golang.org/x/image/draw"
)

// HeightImage renders the altitude grid as a grayscale image.
func (l *Level) HeightImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, int(l.Size[0]), int(l.Size[1])))
	copy(img.Pix, l.Height)
	return img
}

// TerrainImage renders the meta grid through the material color
// ranges, using the first palette entry of each material.
func (l *Level) TerrainImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, int(l.Size[0]), int(l.Size[1])))
	for i, m := range l.Meta {
		c := l.Palette[l.Terrains[m&TerrainMask].ColorRange[0]]
		img.Pix[i*4+0] = c[0]
		img.Pix[i*4+1] = c[1]
		img.Pix[i*4+2] = c[2]
		img.Pix[i*4+3] = 0xFF
	}
	return img
}

// Preview downscales src so its longest side fits maxSide.
func Preview(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return src
	}
	for w > maxSide || h > maxSide {
		w /= 2
		h /= 2
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
