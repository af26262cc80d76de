package vangers

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"

	"github.com/lolmaus/vangers/level"
	"github.com/lolmaus/vangers/m3d"
)

type AssetId = uuid.UUID

func makeAssetId() AssetId {
	return uuid.New()
}

// AssetServer caches decoded models and levels so repeated lookups hit
// the same decoded asset. Models are keyed by path, levels by name.
type AssetServer struct {
	log    Logger
	device *wgpu.Device

	models      map[AssetId]*m3d.Model
	levels      map[AssetId]*level.Level
	pathToModel map[string]AssetId
	pathToLevel map[string]AssetId
}

func NewAssetServer(device *wgpu.Device, log Logger) *AssetServer {
	if log == nil {
		log = NewNopLogger()
	}
	return &AssetServer{
		log:         log,
		device:      device,
		models:      make(map[AssetId]*m3d.Model),
		levels:      make(map[AssetId]*level.Level),
		pathToModel: make(map[string]AssetId),
		pathToLevel: make(map[string]AssetId),
	}
}

// LoadModel decodes a .m3d, reusing the cached copy per path.
func (s *AssetServer) LoadModel(path string) (AssetId, *m3d.Model, error) {
	if id, ok := s.pathToModel[path]; ok {
		return id, s.models[id], nil
	}
	s.log.Infof("Loading model %s", path)
	model, err := m3d.LoadModelFile(path, s.device, s.log)
	if err != nil {
		return AssetId{}, nil, err
	}
	id := makeAssetId()
	s.models[id] = model
	s.pathToModel[path] = id
	return id, model, nil
}

// LoadLevel decodes a level, reusing the cached copy per name.
func (s *AssetServer) LoadLevel(cfg *level.Config) (AssetId, *level.Level, error) {
	if id, ok := s.pathToLevel[cfg.Name]; ok {
		return id, s.levels[id], nil
	}
	lvl, err := level.Load(cfg, s.log)
	if err != nil {
		return AssetId{}, nil, err
	}
	id := makeAssetId()
	s.levels[id] = lvl
	s.pathToLevel[cfg.Name] = id
	return id, lvl, nil
}

func (s *AssetServer) Model(id AssetId) *m3d.Model   { return s.models[id] }
func (s *AssetServer) Level(id AssetId) *level.Level { return s.levels[id] }
