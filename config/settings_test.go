package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lolmaus/vangers/level"
	"github.com/lolmaus/vangers/render"
)

const sample = `
[window]
title = "Vangers"
size = [800, 600]

[car]
model = "resource/m3d/mechous/u5a.m3d"

[render]
terrain = "scattered"
scatter_groups = [120, 68, 1]

[render.light]
pos = [1.0, 2.0, 4.0, 0.0]
color = [1.0, 1.0, 1.0, 1.0]

[level]
name = "fostral"
vpr = "thechain/fostral/output.vpr"
vmc = "thechain/fostral/output.vmc"
palette = "thechain/fostral/harmony.pal"
size = [11, 14]
geo = 5
section = 7

[[level.terrains]]
shadow_offset = 4
height_shift = 3
color_start = 0
color_end = 48

[[level.terrains]]
color_start = 48
color_end = 96
`

func TestParse(t *testing.T) {
	s, err := Parse(sample)
	require.NoError(t, err)

	assert.Equal(t, "Vangers", s.Window.Title)
	assert.Equal(t, [2]int{800, 600}, s.Window.Size)
	assert.Equal(t, render.Scattered, s.TerrainKind)
	assert.Equal(t, float32(1.0), s.Car.Scale)

	cfg := s.LevelConfig()
	assert.True(t, cfg.IsCompressed)
	assert.Equal(t, int32(1<<11), cfg.Size[0].Value())
	assert.Equal(t, int32(1<<14), cfg.Size[1].Value())
	assert.Equal(t, level.Power(5), cfg.Geo)
	assert.Equal(t, [2]uint8{0, 48}, cfg.Terrains[0].ColorRange)
	assert.Equal(t, uint8(4), cfg.Terrains[0].ShadowOffset)
	assert.Equal(t, [2]uint8{48, 96}, cfg.Terrains[1].ColorRange)

	ts := s.TerrainSettings()
	assert.Equal(t, [3]uint32{120, 68, 1}, ts.ScatterGroups)

	light := s.GlobalLight()
	assert.Equal(t, float32(4.0), light.Pos[2])
}

func TestParseUnknownTerrain(t *testing.T) {
	_, err := Parse(`
[render]
terrain = "octree"
`)
	assert.Error(t, err)
}

func TestParseDefaults(t *testing.T) {
	s, err := Parse(`
[render]
terrain = "sliced"
`)
	require.NoError(t, err)
	assert.Equal(t, [2]int{1280, 720}, s.Window.Size)
}
