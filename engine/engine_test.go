package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/decimator/engine/assets/loaders"
	"github.com/spaghettifunk/decimator/engine/config"
	"github.com/spaghettifunk/decimator/engine/core"
	"github.com/spaghettifunk/decimator/engine/metadata"
	"github.com/spaghettifunk/decimator/testbed"
)

func newConfig(t *testing.T) *config.ApplicationConfig {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.InputDir = filepath.Join(root, "in")
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.LogLevel = "error"
	require.NoError(t, testbed.WriteSampleTree(cfg.InputDir))
	return cfg
}

func startEngine(t *testing.T, cfg *config.ApplicationConfig, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

// listFiles returns every regular file under root, relative and slash separated.
func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func triangles(t *testing.T, path string) int {
	t.Helper()
	m, err := (&loaders.STLLoader{}).Load(path)
	require.NoError(t, err)
	return m.TriangleCount()
}

func TestRunMirrorsSampleTree(t *testing.T) {
	cfg := newConfig(t)
	e := startEngine(t, cfg)
	require.Equal(t, EngineStageInitialized, e.Stage())

	require.NoError(t, e.Run(context.Background()))

	require.Equal(t, []string{"a/mesh1.stl", "b/mesh2.stl"}, listFiles(t, cfg.OutputDir))
	require.InDelta(t, 300, triangles(t, filepath.Join(cfg.OutputDir, "a", "mesh1.stl")), 6)
	require.InDelta(t, 1200, triangles(t, filepath.Join(cfg.OutputDir, "b", "mesh2.stl")), 6)

	s := e.Metrics()
	require.Equal(t, 2, s.Succeeded)
	require.Zero(t, s.Failed)
	require.Equal(t, 5000, s.TrianglesIn)

	// inputs are untouched
	require.Equal(t, []string{"a/mesh1.stl", "b/mesh2.stl", "readme.txt"}, listFiles(t, cfg.InputDir))
	require.Equal(t, 1000, triangles(t, filepath.Join(cfg.InputDir, "a", "mesh1.stl")))
}

func TestRunIsRepeatable(t *testing.T) {
	cfg := newConfig(t)
	cfg.Workers = 4

	require.NoError(t, startEngine(t, cfg).Run(context.Background()))
	first, err := os.ReadFile(filepath.Join(cfg.OutputDir, "b", "mesh2.stl"))
	require.NoError(t, err)

	require.NoError(t, startEngine(t, cfg).Run(context.Background()))
	second, err := os.ReadFile(filepath.Join(cfg.OutputDir, "b", "mesh2.stl"))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRunEmptyTree(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.InputDir = filepath.Join(root, "in")
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.LogLevel = "error"
	require.NoError(t, os.Mkdir(cfg.InputDir, 0o755))

	e := startEngine(t, cfg)
	require.NoError(t, e.Run(context.Background()))
	require.DirExists(t, cfg.OutputDir)
	require.Empty(t, listFiles(t, cfg.OutputDir))
}

func writeGarbage(t *testing.T, cfg *config.ApplicationConfig) string {
	t.Helper()
	path := filepath.Join(cfg.InputDir, "a", "0broken.stl")
	require.NoError(t, os.WriteFile(path, []byte("solid nope\nvertex 1 2\n"), 0o644))
	return path
}

func TestRunContinuesAfterFailure(t *testing.T) {
	cfg := newConfig(t)
	broken := writeGarbage(t, cfg)

	e := startEngine(t, cfg)
	err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrFilesFailed)

	s := e.Metrics()
	require.Equal(t, 2, s.Succeeded)
	require.Equal(t, 1, s.Failed)
	require.ErrorIs(t, s.Failures[0].Err, core.ErrLoad)
	require.Contains(t, s.Failures[0].Path, filepath.Base(broken))
	require.Equal(t, []string{"a/mesh1.stl", "b/mesh2.stl"}, listFiles(t, cfg.OutputDir))
}

func TestRunFailFast(t *testing.T) {
	cfg := newConfig(t)
	cfg.ContinueOnError = false
	writeGarbage(t, cfg)

	e := startEngine(t, cfg)
	err := e.Run(context.Background())
	require.ErrorIs(t, err, core.ErrLoad)

	s := e.Metrics()
	require.Equal(t, 1, s.Failed)
	require.Zero(t, s.Succeeded)
	require.Empty(t, listFiles(t, cfg.OutputDir))
}

func TestRunCancelled(t *testing.T) {
	cfg := newConfig(t)
	e := startEngine(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, e.Run(ctx), context.Canceled)
	require.Zero(t, e.Metrics().Failed)
}

func TestInitializeConfigurationErrors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	for idx, mutate := range []func(*config.ApplicationConfig){
		func(c *config.ApplicationConfig) { c.InputDir = filepath.Join(root, "missing") },
		func(c *config.ApplicationConfig) { c.InputDir = file },
		func(c *config.ApplicationConfig) { c.OutputDir = c.InputDir },
		func(c *config.ApplicationConfig) { c.OutputDir = file },
		func(c *config.ApplicationConfig) { c.DecimateRatio = 0 },
	} {
		cfg := newConfig(t)
		mutate(cfg)
		e, err := New(cfg)
		require.NoError(t, err)
		require.ErrorIs(t, e.Initialize(), core.ErrConfiguration, "%d", idx)
	}

	_, err := New(nil)
	require.ErrorIs(t, err, core.ErrConfiguration)

	e, err := New(config.Default())
	require.NoError(t, err)
	require.Error(t, e.Run(context.Background()))
}

type memoryStore struct {
	mutex sync.Mutex
	keys  []string
	fail  error
}

func (ms *memoryStore) PutFile(ctx context.Context, key, localPath string) error {
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	if ms.fail != nil {
		return ms.fail
	}
	ms.keys = append(ms.keys, key)
	return nil
}

func TestRunMirrorsToStore(t *testing.T) {
	cfg := newConfig(t)
	cfg.Workers = 2
	cfg.Upload.Prefix = "lod/0.3"
	store := &memoryStore{}

	require.NoError(t, startEngine(t, cfg, WithStore(store)).Run(context.Background()))
	sort.Strings(store.keys)
	require.Equal(t, []string{"lod/0.3/a/mesh1.stl", "lod/0.3/b/mesh2.stl"}, store.keys)
}

func TestRunStoreFailureIsWriteError(t *testing.T) {
	cfg := newConfig(t)
	store := &memoryStore{fail: errors.New("bucket gone")}

	e := startEngine(t, cfg, WithStore(store))
	require.ErrorIs(t, e.Run(context.Background()), ErrFilesFailed)

	s := e.Metrics()
	require.Equal(t, 2, s.Failed)
	for _, f := range s.Failures {
		require.ErrorIs(t, f.Err, core.ErrWrite)
		var pe *core.PathError
		require.ErrorAs(t, f.Err, &pe)
		require.Equal(t, "upload", pe.Stage)
	}
}

func TestRunWatchesForNewFiles(t *testing.T) {
	cfg := newConfig(t)
	cfg.Watch = true
	cfg.WatchDebounceMS = 50
	e := startEngine(t, cfg)

	armed := make(chan struct{})
	e.Events().Register(core.EVENT_CODE_BATCH_COMPLETED, armed, func(core.SystemEventCode, interface{}, interface{}, core.EventContext) bool {
		close(armed)
		return true
	})
	simplified := make(chan string, 8)
	e.Events().Register(core.EVENT_CODE_FILE_SIMPLIFIED, simplified, func(_ core.SystemEventCode, _ interface{}, _ interface{}, data core.EventContext) bool {
		simplified <- filepath.ToSlash(data.RelPath)
		return true
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case <-armed:
	case <-time.After(10 * time.Second):
		t.Fatal("watcher never armed")
	}
	require.ElementsMatch(t, []string{"a/mesh1.stl", "b/mesh2.stl"}, []string{<-simplified, <-simplified})

	in := filepath.Join(cfg.InputDir, "c", "late.stl")
	require.NoError(t, testbed.WriteSTL(in, testbed.Grid("late", 8), metadata.EncodingBinary))
	select {
	case rel := <-simplified:
		require.Equal(t, "c/late.stl", rel)
	case <-time.After(10 * time.Second):
		t.Fatal("new file was not simplified")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop")
	}
	late := triangles(t, filepath.Join(cfg.OutputDir, "c", "late.stl"))
	require.LessOrEqual(t, late, 38)
	require.Positive(t, late)
	require.GreaterOrEqual(t, e.Metrics().Succeeded, 3)
}

func TestRunWatchesFilesAddedDuringBatch(t *testing.T) {
	cfg := newConfig(t)
	cfg.Watch = true
	cfg.WatchDebounceMS = 50
	cfg.Workers = 1
	e := startEngine(t, cfg)

	during := filepath.Join(cfg.InputDir, "c", "during.stl")
	var once sync.Once
	simplified := make(chan string, 8)
	e.Events().Register(core.EVENT_CODE_FILE_SIMPLIFIED, simplified, func(_ core.SystemEventCode, _ interface{}, _ interface{}, data core.EventContext) bool {
		// the first file is done while the rest of the batch is still queued
		once.Do(func() {
			_ = testbed.WriteSTL(during, testbed.Grid("during", 4), metadata.EncodingBinary)
		})
		simplified <- filepath.ToSlash(data.RelPath)
		return true
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	deadline := time.After(10 * time.Second)
	for found := false; !found; {
		select {
		case rel := <-simplified:
			found = rel == "c/during.stl"
		case <-deadline:
			t.Fatal("file added during the batch was not simplified")
		}
	}
	require.FileExists(t, during)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop")
	}
	require.FileExists(t, filepath.Join(cfg.OutputDir, "c", "during.stl"))
}

func TestRunSymlinkedInputWithNestedOutput(t *testing.T) {
	cfg := newConfig(t)
	link := filepath.Join(filepath.Dir(cfg.InputDir), "link")
	require.NoError(t, os.Symlink(cfg.InputDir, link))
	cfg.InputDir = link
	cfg.OutputDir = filepath.Join(link, "zout")

	e := startEngine(t, cfg)
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, 2, e.Metrics().Succeeded)
	require.Equal(t, 5000, e.Metrics().TrianglesIn)
	require.Equal(t, []string{"a/mesh1.stl", "b/mesh2.stl"}, listFiles(t, cfg.OutputDir))

	// a second run must not pick up the first run's outputs
	e2 := startEngine(t, cfg)
	require.NoError(t, e2.Run(context.Background()))
	require.Equal(t, 2, e2.Metrics().Succeeded)
	require.Equal(t, []string{"a/mesh1.stl", "b/mesh2.stl"}, listFiles(t, cfg.OutputDir))
}

func TestRunFiresUploadEvents(t *testing.T) {
	cfg := newConfig(t)
	e := startEngine(t, cfg, WithStore(&memoryStore{}))

	var (
		mutex    sync.Mutex
		uploaded []string
	)
	e.Events().Register(core.EVENT_CODE_FILE_UPLOADED, nil, func(_ core.SystemEventCode, _ interface{}, _ interface{}, data core.EventContext) bool {
		mutex.Lock()
		defer mutex.Unlock()
		uploaded = append(uploaded, filepath.ToSlash(data.RelPath))
		return false
	})
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, []string{"a/mesh1.stl", "b/mesh2.stl"}, uploaded)
}
