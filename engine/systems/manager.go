package systems

import (
	"github.com/spaghettifunk/decimator/engine/assets"
	"github.com/spaghettifunk/decimator/engine/decimate"
)

type SystemManagerConfig struct {
	Engine       string
	OutputFormat string
	Workers      int
}

type SystemManager struct {
	jobSystem  *JobSystem
	meshSystem *MeshSystem
}

func NewSystemManager(cfg SystemManagerConfig) (*SystemManager, error) {
	loader, err := assets.NewMeshLoader(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	d, err := decimate.New(cfg.Engine)
	if err != nil {
		return nil, err
	}
	ms, err := NewMeshSystem(loader, d)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	js, err := NewJobSystem(workers, workers)
	if err != nil {
		return nil, err
	}

	return &SystemManager{
		jobSystem:  js,
		meshSystem: ms,
	}, nil
}

func (sm *SystemManager) JobSystem() *JobSystem {
	return sm.jobSystem
}

func (sm *SystemManager) MeshSystem() *MeshSystem {
	return sm.meshSystem
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.jobSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.meshSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
