package metadata

import (
	"github.com/spaghettifunk/decimator/engine/math"
)

/** @brief The size in bytes of a binary STL header. */
const STLHeaderSize = 80

/**
 * @brief The on-disk encoding a mesh was read from or is written with.
 */
type Encoding uint8

const (
	EncodingBinary Encoding = iota
	EncodingASCII
)

func (e Encoding) String() string {
	switch e {
	case EncodingBinary:
		return "binary"
	case EncodingASCII:
		return "ascii"
	default:
		return "unknown"
	}
}

/**
 * @brief An in-memory indexed triangle mesh. Owned by exactly one
 * simplification and released as soon as its output is written.
 */
type Mesh struct {
	/** @brief The solid name of an ASCII file, empty for binary ones. */
	Name string
	/** @brief The raw binary header, kept so it can be written back untouched. */
	Header [STLHeaderSize]byte
	/** @brief The encoding the mesh was loaded from. */
	Encoding Encoding
	/** @brief Welded vertex positions. */
	Vertices []math.Vec3
	/** @brief Three indices into Vertices per triangle. */
	Indices []uint32
	/** @brief The extents of the vertex positions. */
	Extents math.Extents3D
}

func (m *Mesh) TriangleCount() int {
	if m == nil {
		return 0
	}
	return len(m.Indices) / 3
}

func (m *Mesh) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Vertices)
}

/**
 * @brief Returns the positions of triangle i.
 */
func (m *Mesh) Triangle(i int) math.Triangle {
	return math.Triangle{
		m.Vertices[m.Indices[3*i]],
		m.Vertices[m.Indices[3*i+1]],
		m.Vertices[m.Indices[3*i+2]],
	}
}

/**
 * @brief Creates an empty mesh carrying the same header, name and encoding.
 */
func (m *Mesh) CloneEmpty() *Mesh {
	return &Mesh{
		Name:     m.Name,
		Header:   m.Header,
		Encoding: m.Encoding,
		Extents:  math.NewExtents3DEmpty(),
	}
}

/**
 * @brief Recomputes the extents from the current vertices.
 */
func (m *Mesh) UpdateExtents() {
	m.Extents = math.GeometryExtents(m.Vertices)
}

/**
 * @brief Drops every buffer held by the mesh. Safe on nil and repeated calls.
 */
func (m *Mesh) Release() {
	if m == nil {
		return
	}
	m.Vertices = nil
	m.Indices = nil
}
