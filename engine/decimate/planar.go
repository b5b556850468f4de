package decimate

import (
	"context"
	"sort"

	"github.com/unixpickle/model3d/model3d"

	"github.com/spaghettifunk/decimator/engine/math"
	"github.com/spaghettifunk/decimator/engine/metadata"
)

const defaultPlanarIterations = 16

// Planar drives model3d's plane-distance decimator. model3d takes a distance
// epsilon rather than a ratio, so Decimate bisects epsilon (as a fraction of the
// bounding-box diagonal) looking for the largest result that fits the target.
type Planar struct {
	Iterations int
}

func NewPlanar() *Planar {
	return &Planar{Iterations: defaultPlanarIterations}
}

func (p *Planar) Name() string {
	return EnginePlanar
}

func (p *Planar) Decimate(ctx context.Context, mesh *metadata.Mesh, ratio float64) (*metadata.Mesh, error) {
	if err := ValidateRatio(ratio); err != nil {
		return nil, err
	}
	count := mesh.TriangleCount()
	if count == 0 {
		return nil, ErrEmptyMesh
	}
	if err := checkFinite(mesh); err != nil {
		return nil, err
	}
	target := TargetTriangles(count, ratio)
	if target == count {
		return copyMesh(mesh), nil
	}

	tris := make([]*model3d.Triangle, 0, count)
	for i := 0; i < count; i++ {
		t := mesh.Triangle(i)
		tris = append(tris, &model3d.Triangle{toCoord(t[0]), toCoord(t[1]), toCoord(t[2])})
	}
	base := model3d.NewMeshTriangles(tris)
	diagonal := float64(math.GeometryExtents(mesh.Vertices).Diagonal())

	iterations := p.Iterations
	if iterations <= 0 {
		iterations = defaultPlanarIterations
	}

	var (
		fit      []*model3d.Triangle
		fewest   []*model3d.Triangle
		lo, hi   = 0.0, diagonal
		fewCount = count + 1
	)
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		eps := (lo + hi) / 2
		result := model3d.DecimateSimple(base, eps).TriangleSlice()
		if len(result) < fewCount {
			fewest, fewCount = result, len(result)
		}
		if len(result) <= target {
			fit = result
			hi = eps
		} else {
			lo = eps
		}
	}
	if fit == nil {
		fit = fewest
	}
	return fromModel3D(mesh, fit), nil
}

// fromModel3D sorts the triangles so the output does not depend on model3d's
// internal ordering.
func fromModel3D(template *metadata.Mesh, tris []*model3d.Triangle) *metadata.Mesh {
	converted := make([]math.Triangle, len(tris))
	for i, t := range tris {
		converted[i] = math.Triangle{fromCoord(t[0]), fromCoord(t[1]), fromCoord(t[2])}
	}
	sort.Slice(converted, func(i, j int) bool {
		return lessTriangle(converted[i], converted[j])
	})

	mb := metadata.NewMeshBuilder(template)
	for _, t := range converted {
		mb.AddTriangle(t)
	}
	return mb.Mesh()
}

func lessTriangle(a, b math.Triangle) bool {
	for k := 0; k < 3; k++ {
		for _, pair := range [3][2]float32{{a[k].X, b[k].X}, {a[k].Y, b[k].Y}, {a[k].Z, b[k].Z}} {
			if pair[0] != pair[1] {
				return pair[0] < pair[1]
			}
		}
	}
	return false
}

func toCoord(v math.Vec3) model3d.Coord3D {
	return model3d.XYZ(float64(v.X), float64(v.Y), float64(v.Z))
}

func fromCoord(c model3d.Coord3D) math.Vec3 {
	return math.NewVec3(float32(c.X), float32(c.Y), float32(c.Z))
}
