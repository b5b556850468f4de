package metadata

import "github.com/spaghettifunk/decimator/engine/math"

/**
 * @brief Welds triangle soup into an indexed mesh. Vertices are shared only
 * when their float32 components compare equal.
 */
type MeshBuilder struct {
	mesh   *Mesh
	lookup map[math.Vec3]uint32
}

func NewMeshBuilder(template *Mesh) *MeshBuilder {
	var m *Mesh
	if template != nil {
		m = template.CloneEmpty()
	} else {
		m = &Mesh{Extents: math.NewExtents3DEmpty()}
	}
	return &MeshBuilder{
		mesh:   m,
		lookup: make(map[math.Vec3]uint32),
	}
}

func (mb *MeshBuilder) vertex(p math.Vec3) uint32 {
	if idx, ok := mb.lookup[p]; ok {
		return idx
	}
	idx := uint32(len(mb.mesh.Vertices))
	mb.mesh.Vertices = append(mb.mesh.Vertices, p)
	mb.mesh.Extents = mb.mesh.Extents.Extend(p)
	mb.lookup[p] = idx
	return idx
}

func (mb *MeshBuilder) AddTriangle(t math.Triangle) {
	mb.mesh.Indices = append(mb.mesh.Indices, mb.vertex(t[0]), mb.vertex(t[1]), mb.vertex(t[2]))
}

// Mesh returns the built mesh. The builder must not be used afterwards.
func (mb *MeshBuilder) Mesh() *Mesh {
	m := mb.mesh
	mb.mesh = nil
	mb.lookup = nil
	return m
}
