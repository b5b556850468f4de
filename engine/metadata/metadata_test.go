package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/decimator/engine/math"
)

func TestMeshBuilderWeldsIdenticalPositions(t *testing.T) {
	template := &Mesh{Name: "tpl", Encoding: EncodingASCII}
	template.Header[0] = 'h'

	mb := NewMeshBuilder(template)
	mb.AddTriangle(math.Triangle{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}})
	mb.AddTriangle(math.Triangle{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0}})
	mb.AddTriangle(math.Triangle{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 1e-7}})
	m := mb.Mesh()

	require.Equal(t, 3, m.TriangleCount())
	require.Equal(t, 5, m.VertexCount())
	require.Equal(t, []uint32{0, 1, 2, 0, 2, 3, 0, 2, 4}, m.Indices)
	require.Equal(t, "tpl", m.Name)
	require.Equal(t, EncodingASCII, m.Encoding)
	require.Equal(t, byte('h'), m.Header[0])
	require.Equal(t, math.Vec3{X: 1, Y: 1, Z: 1e-7}, m.Extents.Max)
	require.Equal(t, math.Triangle{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0}}, m.Triangle(1))
}

func TestMeshRelease(t *testing.T) {
	var nilMesh *Mesh
	nilMesh.Release()
	require.Zero(t, nilMesh.TriangleCount())
	require.Zero(t, nilMesh.VertexCount())

	m := &Mesh{Vertices: []math.Vec3{{}}, Indices: []uint32{0, 0, 0}}
	m.Release()
	m.Release()
	require.Zero(t, m.TriangleCount())
	require.Nil(t, m.Vertices)
}

func TestDetermineResourceType(t *testing.T) {
	for idx, tc := range []struct {
		path string
		exts []string
		want ResourceType
	}{
		{"a/mesh.stl", nil, ResourceTypeMesh},
		{"a/MESH.STL", nil, ResourceTypeMesh},
		{"a/readme.txt", nil, ResourceTypeNone},
		{"a/stl", nil, ResourceTypeNone},
		{"a/model.obj", []string{"obj"}, ResourceTypeMesh},
		{"a/model.stl", []string{".obj"}, ResourceTypeNone},
		{"a/model.Obj", []string{" .OBJ "}, ResourceTypeMesh},
	} {
		require.Equal(t, tc.want, DetermineResourceType(tc.path, tc.exts), "%d", idx)
	}
}

func TestNormalizeExtension(t *testing.T) {
	require.Equal(t, ".stl", NormalizeExtension("STL"))
	require.Equal(t, ".stl", NormalizeExtension(" .stl "))
	require.Equal(t, "", NormalizeExtension("  "))
}

func TestStageAndEncodingNames(t *testing.T) {
	require.Equal(t, "decimated", FileStageDecimated.String())
	require.Equal(t, "unknown", FileStage(42).String())
	require.Equal(t, "binary", EncodingBinary.String())
	require.Equal(t, "ascii", EncodingASCII.String())
}
