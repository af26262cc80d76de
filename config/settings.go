// Package config reads settings.toml: the window, level, car and
// renderer options the viewers run with.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/lolmaus/vangers/level"
	"github.com/lolmaus/vangers/render"
)

type Window struct {
	Title string `toml:"title"`
	Size  [2]int `toml:"size"`
}

type Car struct {
	Model string  `toml:"model"`
	Scale float32 `toml:"scale"`
}

type Light struct {
	Pos   [4]float32 `toml:"pos"`
	Color [4]float32 `toml:"color"`
}

type Render struct {
	Terrain       string    `toml:"terrain"`
	ShaderRoot    string    `toml:"shader_root"`
	ScatterGroups [3]uint32 `toml:"scatter_groups"`
	Light         Light     `toml:"light"`
}

type Terrain struct {
	ShadowOffset uint8 `toml:"shadow_offset"`
	HeightShift  uint8 `toml:"height_shift"`
	ColorStart   uint8 `toml:"color_start"`
	ColorEnd     uint8 `toml:"color_end"`
}

type Level struct {
	Name      string    `toml:"name"`
	Vpr       string    `toml:"vpr"`
	Vmc       string    `toml:"vmc"`
	Palette   string    `toml:"palette"`
	Size      [2]int32  `toml:"size"`
	Geo       int32     `toml:"geo"`
	Section   int32     `toml:"section"`
	MinSquare int32     `toml:"min_square"`
	Terrains  []Terrain `toml:"terrains"`
}

type Settings struct {
	Window Window `toml:"window"`
	Car    Car    `toml:"car"`
	Render Render `toml:"render"`
	Level  Level  `toml:"level"`

	// TerrainKind is resolved from Render.Terrain at load time.
	TerrainKind render.TerrainKind `toml:"-"`
}

// LevelConfig converts the settings entry into a loader config.
func (s *Settings) LevelConfig() *level.Config {
	cfg := &level.Config{
		Name:         s.Level.Name,
		PathVpr:      s.Level.Vpr,
		PathVmc:      s.Level.Vmc,
		PathPalette:  s.Level.Palette,
		Size:         [2]level.Power{level.Power(s.Level.Size[0]), level.Power(s.Level.Size[1])},
		Geo:          level.Power(s.Level.Geo),
		Section:      level.Power(s.Level.Section),
		MinSquare:    level.Power(s.Level.MinSquare),
		IsCompressed: true,
	}
	for i, terr := range s.Level.Terrains {
		if i >= level.NumTerrains {
			break
		}
		cfg.Terrains[i] = level.TerrainConfig{
			ShadowOffset: terr.ShadowOffset,
			HeightShift:  terr.HeightShift,
			ColorRange:   [2]uint8{terr.ColorStart, terr.ColorEnd},
		}
	}
	return cfg
}

// TerrainSettings converts the render section for the terrain context.
func (s *Settings) TerrainSettings() *render.TerrainSettings {
	return &render.TerrainSettings{
		Kind:          s.TerrainKind,
		ShaderRoot:    s.Render.ShaderRoot,
		ScatterGroups: s.Render.ScatterGroups,
	}
}

// GlobalLight converts the light block for the global uniform.
func (s *Settings) GlobalLight() render.Light {
	return render.Light{
		Pos:   s.Render.Light.Pos,
		Color: s.Render.Light.Color,
	}
}

func finish(s *Settings) (*Settings, error) {
	if s.Window.Size[0] <= 0 || s.Window.Size[1] <= 0 {
		s.Window.Size = [2]int{1280, 720}
	}
	if s.Car.Scale == 0 {
		s.Car.Scale = 1.0
	}
	kind, err := render.ParseTerrainKind(s.Render.Terrain)
	if err != nil {
		return nil, err
	}
	s.TerrainKind = kind
	return s, nil
}

// Load reads a settings file.
func Load(path string) (*Settings, error) {
	var s Settings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return finish(&s)
}

// Parse decodes settings from TOML text.
func Parse(data string) (*Settings, error) {
	var s Settings
	if _, err := toml.Decode(data, &s); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return finish(&s)
}
