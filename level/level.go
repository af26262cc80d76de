// Package level loads the Vangers world maps: the .vpr flood data and
// the splay-compressed .vmc height/meta grid, plus the shared 256-color
// palette. Decoded levels are immutable.
package level

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lolmaus/vangers/splay"
)

const (
	// NumTerrains is the number of material slots of a level.
	NumTerrains = 8
	// HeightScale maps the 8-bit altitude to world units.
	HeightScale = 48

	// Meta byte layout: low nibble terrain id, high nibble flags.
	TerrainMask = 0x0F
	FlagMask    = 0xF0
)

// Power is a small integer exponent; grid sizes and section sizes are
// stored as powers of two.
type Power int32

func (p Power) Value() int32 { return 1 << p }

// TerrainConfig describes one of the eight materials.
type TerrainConfig struct {
	ShadowOffset uint8
	HeightShift  uint8
	// ColorRange is the palette span [start, end) of the material.
	ColorRange [2]uint8
}

// Config names the files and grid parameters of one level.
type Config struct {
	Name         string
	PathVpr      string
	PathVmc      string
	PathPalette  string
	Size         [2]Power
	Geo          Power
	Section      Power
	MinSquare    Power
	Terrains     [NumTerrains]TerrainConfig
	IsCompressed bool
}

// Level is the decoded map. Height and Meta are row-major W*H grids,
// FloodMap holds one water level per horizontal strip.
type Level struct {
	Size     [2]int32
	Height   []byte
	Meta     []byte
	FloodMap []uint32
	Palette  [0x100][4]byte
	Terrains [NumTerrains]TerrainConfig
	// SectionPower is kept for the flood texture extent.
	SectionPower Power
}

// Logger is the subset of the host logger the loader reports through.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}

// InvalidVprSizeError reports a .vpr file whose length does not match
// the flood block offset computed from the level configuration.
type InvalidVprSizeError struct {
	Expected int64
	Actual   int64
}

func (e *InvalidVprSizeError) Error() string {
	return fmt.Sprintf("level: vpr size mismatch: expected %d bytes, got %d", e.Expected, e.Actual)
}

// RowError reports a row whose decompressed output did not reach the
// end of that row before the row bytes ran out. Expected and Got count
// bytes from the start of the grid.
type RowError struct {
	Row      int
	Expected int
	Got      int
	Err      error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("level: row %d decompressed to %d of %d bytes: %v", e.Row, e.Got, e.Expected, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// FloodOffset is the byte offset of the flood block inside a .vpr.
func FloodOffset(size [2]Power, geo, section Power) int64 {
	w := int64(size[0].Value())
	h := int64(size[1].Value())
	floodSize := h >> section
	geoPow := int64(geo)
	netSize := w * h >> (2 * geoPow)
	return 2*4 + (1+4+4)*4 + 2*netSize + 2*geoPow*4 + 2*floodSize*geoPow*4
}

// Load reads and decompresses a level.
func Load(cfg *Config, log Logger) (*Level, error) {
	if log == nil {
		log = nopLogger{}
	}
	if !cfg.IsCompressed {
		return nil, errors.New("level: uncompressed maps are not supported")
	}

	size := [2]int32{cfg.Size[0].Value(), cfg.Size[1].Value()}
	lvl := &Level{
		Size:         size,
		Terrains:     cfg.Terrains,
		SectionPower: cfg.Section,
	}

	log.Infof("Loading vpr %s", cfg.PathVpr)
	flood, err := loadFlood(cfg)
	if err != nil {
		return nil, err
	}
	lvl.FloodMap = flood

	log.Infof("Loading vmc %s", cfg.PathVmc)
	if err := loadGrid(cfg, lvl, log); err != nil {
		return nil, err
	}

	if cfg.PathPalette != "" {
		log.Infof("Loading palette %s", cfg.PathPalette)
		pal, err := LoadPalette(cfg.PathPalette)
		if err != nil {
			return nil, err
		}
		lvl.Palette = pal
	}

	log.Infof("Done")
	return lvl, nil
}

func loadFlood(cfg *Config) ([]uint32, error) {
	f, err := os.Open(cfg.PathVpr)
	if err != nil {
		return nil, fmt.Errorf("level: open %s: %w", cfg.PathVpr, err)
	}
	defer f.Close()

	floodSize := int64(cfg.Size[1].Value()) >> cfg.Section
	offset := FloodOffset(cfg.Size, cfg.Geo, cfg.Section)

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("level: stat %s: %w", cfg.PathVpr, err)
	}
	expected := offset + floodSize*4
	if st.Size() != expected {
		return nil, &InvalidVprSizeError{Expected: expected, Actual: st.Size()}
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("level: seek %s: %w", cfg.PathVpr, err)
	}
	flood := make([]uint32, floodSize)
	if err := binary.Read(f, binary.LittleEndian, flood); err != nil {
		return nil, fmt.Errorf("level: read flood block of %s: %w", cfg.PathVpr, err)
	}
	return flood, nil
}

func loadGrid(cfg *Config, lvl *Level, log Logger) error {
	raw, err := os.ReadFile(cfg.PathVmc)
	if err != nil {
		return fmt.Errorf("level: read %s: %w", cfg.PathVmc, err)
	}
	r := bytes.NewReader(raw)

	w, h := int(lvl.Size[0]), int(lvl.Size[1])

	log.Debugf("\tLoading compression tables")
	stTable := make([]int32, h)
	szTable := make([]int16, h)
	for y := 0; y < h; y++ {
		if err := binary.Read(r, binary.LittleEndian, &stTable[y]); err != nil {
			return fmt.Errorf("level: row table of %s: %w", cfg.PathVmc, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &szTable[y]); err != nil {
			return fmt.Errorf("level: row table of %s: %w", cfg.PathVmc, err)
		}
	}

	sp, err := splay.New(r)
	if err != nil {
		return err
	}

	log.Debugf("\tDecompressing level data")
	height := make([]byte, 0, w*h)
	meta := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		if _, err := r.Seek(int64(stTable[y]), io.SeekStart); err != nil {
			return fmt.Errorf("level: seek row %d of %s: %w", y, cfg.PathVmc, err)
		}
		br := splay.NewBitReader(r)
		target := (y + 1) * w
		for len(height) < target || len(meta) < target {
			if len(height) < target {
				if height, err = sp.Expand1(br, height); err != nil {
					return &RowError{Row: y, Expected: target, Got: len(height), Err: err}
				}
			}
			if len(meta) < target {
				if meta, err = sp.Expand2(br, meta); err != nil {
					return &RowError{Row: y, Expected: target, Got: len(meta), Err: err}
				}
			}
		}
	}
	lvl.Height = height
	lvl.Meta = meta
	return nil
}
