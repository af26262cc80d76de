package level

import (
	"fmt"
	"io"
	"os"
)

// ReadPalette decodes the 768-byte RGB palette. Entries are padded to
// RGBA with a zero alpha; the shaders treat the palette as opaque.
func ReadPalette(r io.Reader) (pal [0x100][4]byte, err error) {
	var raw [0x100 * 3]byte
	if _, err = io.ReadFull(r, raw[:]); err != nil {
		return pal, fmt.Errorf("level: read palette: %w", err)
	}
	for i := range pal {
		pal[i] = [4]byte{raw[i*3], raw[i*3+1], raw[i*3+2], 0}
	}
	return pal, nil
}

func LoadPalette(path string) ([0x100][4]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [0x100][4]byte{}, fmt.Errorf("level: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadPalette(f)
}
