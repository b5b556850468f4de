package systems

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/decimator/engine/assets"
	"github.com/spaghettifunk/decimator/engine/assets/loaders"
	"github.com/spaghettifunk/decimator/engine/core"
	"github.com/spaghettifunk/decimator/engine/decimate"
	"github.com/spaghettifunk/decimator/engine/metadata"
	"github.com/spaghettifunk/decimator/testbed"
)

func newMeshSystem(t *testing.T, format string) *MeshSystem {
	t.Helper()
	loader, err := assets.NewMeshLoader(format)
	require.NoError(t, err)
	ms, err := NewMeshSystem(loader, decimate.NewQuadric())
	require.NoError(t, err)
	return ms
}

func TestSimplify(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "mesh1.stl")
	out := filepath.Join(dir, "out", "mesh1.stl")
	require.NoError(t, testbed.WriteSTL(in, testbed.Mesh1000(), metadata.EncodingBinary))
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))

	before, err := os.ReadFile(in)
	require.NoError(t, err)
	statBefore, err := os.Stat(in)
	require.NoError(t, err)

	ms := newMeshSystem(t, "preserve")
	res, err := ms.Simplify(context.Background(), in, out, 0.3)
	require.NoError(t, err)
	require.Equal(t, metadata.FileStageDone, res.Stage)
	require.Equal(t, 1000, res.TrianglesIn)
	require.InDelta(t, 300, res.TrianglesOut, 6)
	require.Less(t, res.VerticesOut, res.VerticesIn)
	require.Equal(t, metadata.EncodingBinary, res.InputEncoding)
	require.Positive(t, res.Elapsed)

	written, err := (&loaders.STLLoader{}).Load(out)
	require.NoError(t, err)
	require.Equal(t, res.TrianglesOut, written.TriangleCount())
	require.Equal(t, testbed.Mesh1000().Header, written.Header)

	after, err := os.ReadFile(in)
	require.NoError(t, err)
	require.Equal(t, before, after)
	statAfter, err := os.Stat(in)
	require.NoError(t, err)
	require.Equal(t, statBefore.ModTime(), statAfter.ModTime())
}

func TestSimplifyOverwritesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.stl")
	out := filepath.Join(dir, "out.stl")
	require.NoError(t, testbed.WriteSTL(in, testbed.Grid("g", 6), metadata.EncodingASCII))
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0o644))

	res, err := newMeshSystem(t, "binary").Simplify(context.Background(), in, out, 0.5)
	require.NoError(t, err)
	require.Equal(t, metadata.EncodingASCII, res.InputEncoding)

	written, err := (&loaders.STLLoader{}).Load(out)
	require.NoError(t, err)
	require.Equal(t, metadata.EncodingBinary, written.Encoding)
	require.Equal(t, res.TrianglesOut, written.TriangleCount())
}

func TestSimplifyErrors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.stl")
	require.NoError(t, testbed.WriteSTL(good, testbed.Grid("g", 4), metadata.EncodingBinary))
	garbage := filepath.Join(dir, "garbage.stl")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a mesh"), 0o644))
	noDir := filepath.Join(dir, "missing", "out.stl")

	ms := newMeshSystem(t, "preserve")
	for idx, tc := range []struct {
		name    string
		in, out string
		ratio   float64
		kind    error
		stage   metadata.FileStage
		errPath string
	}{
		{"bad ratio", good, filepath.Join(dir, "a.stl"), 1.5, core.ErrConfiguration, metadata.FileStagePending, good},
		{"output is input", good, good, 0.5, core.ErrConfiguration, metadata.FileStagePending, good},
		{"missing input", filepath.Join(dir, "nope.stl"), filepath.Join(dir, "b.stl"), 0.5, core.ErrLoad, metadata.FileStagePending, filepath.Join(dir, "nope.stl")},
		{"garbage input", garbage, filepath.Join(dir, "c.stl"), 0.5, core.ErrLoad, metadata.FileStagePending, garbage},
		{"unwritable output", good, noDir, 0.5, core.ErrWrite, metadata.FileStageDecimated, noDir},
	} {
		res, err := ms.Simplify(context.Background(), tc.in, tc.out, tc.ratio)
		require.ErrorIs(t, err, tc.kind, "%d %s", idx, tc.name)
		require.Equal(t, metadata.FileStageFailed, res.Stage, "%d %s", idx, tc.name)

		var pe *core.PathError
		require.True(t, errors.As(err, &pe), "%d %s", idx, tc.name)
		require.Equal(t, tc.errPath, pe.Path, "%d %s", idx, tc.name)
		require.Equal(t, tc.stage.String(), pe.Stage, "%d %s", idx, tc.name)
	}
	require.NoFileExists(t, filepath.Join(dir, "c.stl"))
}

type failingDecimator struct{}

func (failingDecimator) Name() string { return "failing" }
func (failingDecimator) Decimate(context.Context, *metadata.Mesh, float64) (*metadata.Mesh, error) {
	return nil, errors.New("collapse exploded")
}

func TestSimplifyDecimationError(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.stl")
	out := filepath.Join(dir, "out.stl")
	require.NoError(t, testbed.WriteSTL(in, testbed.Grid("g", 4), metadata.EncodingBinary))

	ms, err := NewMeshSystem(&loaders.STLLoader{}, failingDecimator{})
	require.NoError(t, err)
	res, err := ms.Simplify(context.Background(), in, out, 0.5)
	require.ErrorIs(t, err, core.ErrDecimation)
	require.Contains(t, err.Error(), "collapse exploded")
	require.Equal(t, 32, res.TrianglesIn)
	require.NoFileExists(t, out)
}

func TestNewMeshSystemRequiresDependencies(t *testing.T) {
	_, err := NewMeshSystem(nil, decimate.NewQuadric())
	require.Error(t, err)
	_, err = NewMeshSystem(&loaders.STLLoader{}, nil)
	require.Error(t, err)
}
