package systems

import (
	"context"
	"errors"
	"os"

	"github.com/spaghettifunk/decimator/engine/assets"
	"github.com/spaghettifunk/decimator/engine/core"
	"github.com/spaghettifunk/decimator/engine/decimate"
	"github.com/spaghettifunk/decimator/engine/metadata"
)

// MeshSystem simplifies one mesh file at a time. It holds no per-file state,
// so concurrent calls on different paths are independent.
type MeshSystem struct {
	loader    assets.Loader
	decimator decimate.Decimator
}

func NewMeshSystem(loader assets.Loader, decimator decimate.Decimator) (*MeshSystem, error) {
	if loader == nil {
		return nil, errors.New("mesh system needs a loader")
	}
	if decimator == nil {
		return nil, errors.New("mesh system needs a decimator")
	}
	return &MeshSystem{
		loader:    loader,
		decimator: decimator,
	}, nil
}

func (ms *MeshSystem) Shutdown() error {
	return nil
}

func (ms *MeshSystem) EngineName() string {
	return ms.decimator.Name()
}

// Simplify loads inputPath, reduces it to about ratio of its triangles and writes
// the result to outputPath, overwriting it. Only those two paths are touched, and
// every loaded mesh is released before returning whatever the outcome.
func (ms *MeshSystem) Simplify(ctx context.Context, inputPath, outputPath string, ratio float64) (*metadata.SimplifyResult, error) {
	result := &metadata.SimplifyResult{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Ratio:      ratio,
		Stage:      metadata.FileStagePending,
	}
	clock := core.NewClock()
	clock.Start()
	defer func() {
		clock.Stop()
		result.Elapsed = clock.Elapsed()
	}()

	fail := func(kind error, path string, err error) (*metadata.SimplifyResult, error) {
		reached := result.Stage
		result.Stage = metadata.FileStageFailed
		return result, &core.PathError{Kind: kind, Path: path, Stage: reached.String(), Err: err}
	}

	if err := decimate.ValidateRatio(ratio); err != nil {
		return fail(core.ErrConfiguration, inputPath, err)
	}
	if samePath(inputPath, outputPath) {
		return fail(core.ErrConfiguration, outputPath, errors.New("output would overwrite the input"))
	}

	mesh, err := ms.loader.Load(inputPath)
	if err != nil {
		return fail(core.ErrLoad, inputPath, err)
	}
	defer ms.loader.Unload(mesh)
	result.Stage = metadata.FileStageLoaded
	result.InputEncoding = mesh.Encoding
	result.TrianglesIn = mesh.TriangleCount()
	result.VerticesIn = mesh.VertexCount()
	core.LogDebug("loaded %s: %d triangles, %d vertices (%s)", inputPath, result.TrianglesIn, result.VerticesIn, mesh.Encoding)

	reduced, err := ms.decimator.Decimate(ctx, mesh, ratio)
	if err != nil {
		return fail(core.ErrDecimation, inputPath, err)
	}
	defer ms.loader.Unload(reduced)
	result.Stage = metadata.FileStageDecimated
	result.TrianglesOut = reduced.TriangleCount()
	result.VerticesOut = reduced.VertexCount()

	if err := ms.loader.Save(outputPath, reduced); err != nil {
		return fail(core.ErrWrite, outputPath, err)
	}
	result.Stage = metadata.FileStageWritten

	core.LogDebug("wrote %s: %d -> %d triangles", outputPath, result.TrianglesIn, result.TrianglesOut)
	result.Stage = metadata.FileStageDone
	return result, nil
}

func samePath(a, b string) bool {
	if a == b {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
