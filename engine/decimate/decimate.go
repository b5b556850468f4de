package decimate

import (
	"context"
	"fmt"
	gomath "math"
	"strings"

	"github.com/spaghettifunk/decimator/engine/core"
	"github.com/spaghettifunk/decimator/engine/math"
	"github.com/spaghettifunk/decimator/engine/metadata"
)

// Decimator reduces the triangle count of a mesh to roughly ratio times the
// original. Implementations never modify the mesh they are given.
type Decimator interface {
	Name() string
	Decimate(ctx context.Context, mesh *metadata.Mesh, ratio float64) (*metadata.Mesh, error)
}

const (
	EngineQuadric = "quadric"
	EnginePlanar  = "planar"
)

// New returns the engine registered under name. An empty name selects the quadric engine.
func New(name string) (Decimator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EngineQuadric:
		return NewQuadric(), nil
	case EnginePlanar:
		return NewPlanar(), nil
	default:
		return nil, core.Configurationf("unknown decimation engine %q", name)
	}
}

// ValidateRatio accepts ratios in (0, 1].
func ValidateRatio(ratio float64) error {
	if gomath.IsNaN(ratio) || ratio <= 0 || ratio > 1 {
		return core.Configurationf("decimate ratio %v must be in (0, 1]", ratio)
	}
	return nil
}

// TargetTriangles is the triangle count a ratio asks for.
func TargetTriangles(count int, ratio float64) int {
	return math.Clamp(int(gomath.Round(ratio*float64(count))), 0, count)
}

// copyMesh is what engines return when no reduction is needed.
func copyMesh(mesh *metadata.Mesh) *metadata.Mesh {
	out := mesh.CloneEmpty()
	out.Vertices = append([]math.Vec3(nil), mesh.Vertices...)
	out.Indices = append([]uint32(nil), mesh.Indices...)
	out.UpdateExtents()
	return out
}

func checkFinite(mesh *metadata.Mesh) error {
	for i, v := range mesh.Vertices {
		if !v.IsFinite() {
			return fmt.Errorf("vertex %d has a non-finite coordinate", i)
		}
	}
	return nil
}
