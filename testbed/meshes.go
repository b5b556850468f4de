// Package testbed builds deterministic meshes and input trees for tests and
// the sample run.
package testbed

import (
	"bufio"
	gomath "math"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/decimator/engine/assets/loaders"
	"github.com/spaghettifunk/decimator/engine/math"
	"github.com/spaghettifunk/decimator/engine/metadata"
)

// UVSphere returns a closed unit sphere with 2*slices*(stacks-1) triangles.
// slices must be at least 3 and stacks at least 2.
func UVSphere(name string, stacks, slices int) *metadata.Mesh {
	verts := make([]math.Vec3, 0, 2+(stacks-1)*slices)
	verts = append(verts, math.NewVec3(0, 0, 1))
	for i := 1; i < stacks; i++ {
		phi := gomath.Pi * float64(i) / float64(stacks)
		for j := 0; j < slices; j++ {
			theta := 2 * gomath.Pi * float64(j) / float64(slices)
			verts = append(verts, math.NewVec3(
				float32(gomath.Sin(phi)*gomath.Cos(theta)),
				float32(gomath.Sin(phi)*gomath.Sin(theta)),
				float32(gomath.Cos(phi)),
			))
		}
	}
	verts = append(verts, math.NewVec3(0, 0, -1))
	south := uint32(len(verts) - 1)

	ring := func(i, j int) uint32 {
		return uint32(1 + (i-1)*slices + j%slices)
	}

	var indices []uint32
	for j := 0; j < slices; j++ {
		indices = append(indices, 0, ring(1, j), ring(1, j+1))
	}
	for i := 1; i < stacks-1; i++ {
		for j := 0; j < slices; j++ {
			a, b := ring(i, j), ring(i, j+1)
			c, d := ring(i+1, j), ring(i+1, j+1)
			indices = append(indices, a, c, d, a, d, b)
		}
	}
	for j := 0; j < slices; j++ {
		indices = append(indices, south, ring(stacks-1, j+1), ring(stacks-1, j))
	}

	m := &metadata.Mesh{
		Name:     name,
		Encoding: metadata.EncodingBinary,
		Vertices: verts,
		Indices:  indices,
	}
	copy(m.Header[:], "testbed uv sphere "+name)
	m.UpdateExtents()
	return m
}

// Grid returns a flat n x n quad grid on the XY plane with 2*n*n triangles.
// Its border is an open boundary.
func Grid(name string, n int) *metadata.Mesh {
	verts := make([]math.Vec3, 0, (n+1)*(n+1))
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			verts = append(verts, math.NewVec3(float32(x)/float32(n), float32(y)/float32(n), 0))
		}
	}
	at := func(x, y int) uint32 { return uint32(y*(n+1) + x) }

	indices := make([]uint32, 0, 6*n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			indices = append(indices, at(x, y), at(x+1, y), at(x+1, y+1), at(x, y), at(x+1, y+1), at(x, y+1))
		}
	}

	m := &metadata.Mesh{
		Name:     name,
		Encoding: metadata.EncodingBinary,
		Vertices: verts,
		Indices:  indices,
	}
	m.UpdateExtents()
	return m
}

// Mesh1000 and Mesh4000 are the meshes the sample tree is built from.
func Mesh1000() *metadata.Mesh { return UVSphere("mesh1", 21, 25) }
func Mesh4000() *metadata.Mesh { return UVSphere("mesh2", 41, 50) }

// WriteSTL encodes mesh to path with enc, creating parent directories.
func WriteSTL(path string, mesh *metadata.Mesh, enc metadata.Encoding) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := loaders.EncodeSTL(w, mesh, enc); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteSampleTree lays out root/a/mesh1.stl (1000 triangles),
// root/b/mesh2.stl (4000 triangles) and root/readme.txt.
func WriteSampleTree(root string) error {
	if err := WriteSTL(filepath.Join(root, "a", "mesh1.stl"), Mesh1000(), metadata.EncodingBinary); err != nil {
		return err
	}
	if err := WriteSTL(filepath.Join(root, "b", "mesh2.stl"), Mesh4000(), metadata.EncodingBinary); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, "readme.txt"), []byte("not a mesh\n"), 0o644)
}
