package assets

import (
	"github.com/spaghettifunk/decimator/engine/assets/loaders"
	"github.com/spaghettifunk/decimator/engine/metadata"
)

type Loader interface {
	Load(path string) (*metadata.Mesh, error)
	Save(path string, mesh *metadata.Mesh) error
	Unload(*metadata.Mesh) error
}

// NewMeshLoader returns the loader for the configured output format.
func NewMeshLoader(format string) (Loader, error) {
	f, err := loaders.ParseOutputFormat(format)
	if err != nil {
		return nil, err
	}
	return &loaders.STLLoader{Format: f}, nil
}
