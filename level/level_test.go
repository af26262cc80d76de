package level

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloodOffset(t *testing.T) {
	// The literal layout of a 1024x1024 map with geo=2, section=5.
	offset := FloodOffset([2]Power{10, 10}, 2, 5)
	assert.Equal(t, int64(131644), offset)

	floodSize := int64(Power(10).Value()) >> 5
	assert.Equal(t, int64(131772), offset+floodSize*4)
}

func TestReadPalette(t *testing.T) {
	raw := make([]byte, 0x100*3)
	copy(raw, []byte{0, 0, 0, 0xFF, 0, 0, 0, 0xFF, 0})
	pal, err := ReadPalette(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, [4]byte{0, 0, 0, 0}, pal[0])
	assert.Equal(t, [4]byte{0xFF, 0, 0, 0}, pal[1])
	assert.Equal(t, [4]byte{0, 0xFF, 0, 0}, pal[2])
}

func TestReadPaletteShort(t *testing.T) {
	_, err := ReadPalette(bytes.NewReader(make([]byte, 100)))
	assert.Error(t, err)
}

// leafNodes builds a single-level tree: bit 0 decodes to a, bit 1 to b.
func leafNodes(a, b byte) []int32 {
	nodes := make([]int32, 512)
	nodes[0] = ^int32(a)
	nodes[1] = ^int32(b)
	return nodes
}

// writeTestVmc lays out a 4x4 map: row table, two trees, then one
// payload byte per row (4 height + 4 meta symbols, one bit each).
func writeTestVmc(t *testing.T, path string, rowBytes []byte) {
	t.Helper()
	var buf bytes.Buffer

	const tableLen = 4 * (4 + 2)
	const treesLen = 2 * 512 * 4
	payloadStart := int32(tableLen + treesLen)
	for y := 0; y < 4; y++ {
		binary.Write(&buf, binary.LittleEndian, payloadStart+int32(y))
		binary.Write(&buf, binary.LittleEndian, int16(1))
	}
	binary.Write(&buf, binary.LittleEndian, leafNodes(5, 7)) // heights
	binary.Write(&buf, binary.LittleEndian, leafNodes(1, 2)) // meta
	buf.Write(rowBytes)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeTestVpr(t *testing.T, path string, flood []uint32, pad int) {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(make([]byte, int(FloodOffset([2]Power{2, 2}, 0, 0))))
	binary.Write(&buf, binary.LittleEndian, flood)
	buf.Write(make([]byte, pad))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func testConfig(dir string) *Config {
	return &Config{
		Name:         "test",
		PathVpr:      filepath.Join(dir, "test.vpr"),
		PathVmc:      filepath.Join(dir, "test.vmc"),
		Size:         [2]Power{2, 2},
		Geo:          0,
		Section:      0,
		IsCompressed: true,
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	// Rows alternate height/meta symbols bit by bit. 0x55 keeps every
	// height bit 0 and every meta bit 1; 0xAA is the inverse.
	writeTestVmc(t, cfg.PathVmc, []byte{0x55, 0x55, 0xAA, 0x55})
	writeTestVpr(t, cfg.PathVpr, []uint32{10, 20, 30, 40}, 0)

	lvl, err := Load(cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, [2]int32{4, 4}, lvl.Size)
	assert.Len(t, lvl.Height, 16)
	assert.Len(t, lvl.Meta, 16)
	assert.Equal(t, []uint32{10, 20, 30, 40}, lvl.FloodMap)

	assert.Equal(t, []byte{5, 5, 5, 5}, lvl.Height[0:4])
	assert.Equal(t, []byte{2, 2, 2, 2}, lvl.Meta[0:4])
	assert.Equal(t, []byte{7, 7, 7, 7}, lvl.Height[8:12])
	assert.Equal(t, []byte{1, 1, 1, 1}, lvl.Meta[8:12])
}

func TestLoadVprSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	writeTestVmc(t, cfg.PathVmc, []byte{0, 0, 0, 0})
	writeTestVpr(t, cfg.PathVpr, []uint32{1, 2, 3, 4}, 5)

	_, err := Load(cfg, nil)
	var sizeErr *InvalidVprSizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, sizeErr.Expected+5, sizeErr.Actual)
}

func TestLoadTruncatedRow(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	// Only three of four payload rows present.
	writeTestVmc(t, cfg.PathVmc, []byte{0, 0, 0})
	writeTestVpr(t, cfg.PathVpr, []uint32{1, 2, 3, 4}, 0)

	_, err := Load(cfg, nil)
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 3, rowErr.Row)
	assert.Equal(t, 16, rowErr.Expected)
}

func TestLoadRejectsUncompressed(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.IsCompressed = false
	_, err := Load(cfg, nil)
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	lvl := &Level{Size: [2]int32{4, 4}, Height: make([]byte, 16), Meta: make([]byte, 16)}
	img := Preview(lvl.HeightImage(), 2)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	same := Preview(lvl.HeightImage(), 8)
	assert.Equal(t, 4, same.Bounds().Dx())
}
