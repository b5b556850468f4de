package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/decimator/engine/assets"
	"github.com/spaghettifunk/decimator/engine/config"
	"github.com/spaghettifunk/decimator/engine/core"
	"github.com/spaghettifunk/decimator/engine/metadata"
	"github.com/spaghettifunk/decimator/engine/storage"
	"github.com/spaghettifunk/decimator/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// ErrFilesFailed is returned by Run when at least one file could not be simplified.
var ErrFilesFailed = errors.New("some files failed")

type Engine struct {
	currentStage  Stage
	config        *config.ApplicationConfig
	runID         string
	walker        *assets.Walker
	systemManager *systems.SystemManager
	store         storage.Store
	events        *core.EventSystem
	metrics       *core.BatchMetrics
	clock         *core.Clock
}

type Option func(*Engine)

// WithStore mirrors outputs to s instead of the store built from the upload config.
func WithStore(s storage.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

func New(cfg *config.ApplicationConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, core.Configurationf("missing configuration")
	}
	e := &Engine{
		currentStage: EngineStageUninitialized,
		config:       cfg,
		runID:        core.NewRunID(),
		events:       core.NewEventSystem(),
		metrics:      core.NewBatchMetrics(),
		clock:        core.NewClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) RunID() string {
	return e.runID
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Events lets callers listen to per-file outcomes. Register before Run.
func (e *Engine) Events() *core.EventSystem {
	return e.events
}

// Metrics returns the outcomes recorded so far.
func (e *Engine) Metrics() core.BatchSummary {
	return e.metrics.Snapshot()
}

// Initialize validates the roots, creates the output root and builds the systems.
// Every error it returns is a configuration or directory error and is fatal.
func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if err := e.config.Validate(); err != nil {
		return err
	}
	if err := core.LogSetLevel(e.config.LogLevel); err != nil {
		return core.Configurationf("log_level: %v", err)
	}

	walker, err := assets.NewWalker(e.config.InputDir, e.config.OutputDir, e.config.Extensions...)
	if err != nil {
		return err
	}
	if err := walker.EnsureOutputRoot(); err != nil {
		return err
	}
	e.walker = walker

	sm, err := systems.NewSystemManager(systems.SystemManagerConfig{
		Engine:       e.config.Engine,
		OutputFormat: e.config.OutputFormat,
		Workers:      e.config.Workers,
	})
	if err != nil {
		return err
	}
	e.systemManager = sm

	if e.store == nil && e.config.Upload.Enabled {
		s, err := storage.NewS3Store(storage.S3Config{
			Endpoint:  e.config.Upload.Endpoint,
			Region:    e.config.Upload.Region,
			AccessKey: e.config.Upload.AccessKey,
			SecretKey: e.config.Upload.SecretKey,
			Bucket:    e.config.Upload.Bucket,
			UseSSL:    e.config.Upload.UseSSL,
		})
		if err != nil {
			return core.Configurationf("upload: %v", err)
		}
		e.store = s
	}

	e.events.Register(core.EVENT_CODE_FILE_SIMPLIFIED, e.metrics, e.onFileEvent)
	e.events.Register(core.EVENT_CODE_FILE_FAILED, e.metrics, e.onFileEvent)

	e.currentStage = EngineStageInitialized
	core.LogDebug("[%s] initialized: %s", core.ShortID(e.runID), e.config)
	return nil
}

// Run simplifies every mesh under the input root, then keeps watching the tree
// when watch mode is on. It returns ErrFilesFailed when any file failed and the
// context error when interrupted during the initial batch. Cancelling ctx while
// watching is a normal stop.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine must be initialized before running")
	}
	e.currentStage = EngineStageRunning
	e.clock.Start()

	core.LogInfo("[%s] simplifying %s -> %s (ratio %g, %s engine, %d workers)",
		core.ShortID(e.runID), e.walker.InputRoot(), e.walker.OutputRoot(),
		e.config.DecimateRatio, e.systemManager.MeshSystem().EngineName(), e.systemManager.JobSystem().Workers())

	// Armed before the batch so files that land while it runs are not missed.
	var watcher *assets.AssetWatcher
	if e.config.Watch {
		w, err := assets.NewAssetWatcher(e.walker, e.config.WatchDebounce())
		if err != nil {
			return err
		}
		defer w.Close()
		if err := w.Start(); err != nil {
			return err
		}
		watcher = w
	}

	err := e.runBatch(ctx)
	e.clock.Stop()
	e.metrics.LogSummary(e.runID, e.clock.Elapsed())

	watching := err == nil && watcher != nil && ctx.Err() == nil
	if watching {
		err = e.watch(ctx, watcher)
	} else {
		e.events.Fire(core.EVENT_CODE_BATCH_COMPLETED, e, core.EventContext{})
	}

	if ctx.Err() != nil {
		if !watching {
			core.LogWarn("[%s] interrupted", core.ShortID(e.runID))
			return ctx.Err()
		}
		// a stop signal is how watch mode ends
		s := e.metrics.Snapshot()
		core.LogInfo("[%s] stopped watching: %d succeeded, %d failed", core.ShortID(e.runID), s.Succeeded, s.Failed)
	}
	if err != nil {
		return err
	}
	if s := e.metrics.Snapshot(); s.Failed > 0 {
		return fmt.Errorf("%w: %d of %d files failed", ErrFilesFailed, s.Failed, s.Failed+s.Succeeded)
	}
	return nil
}

func (e *Engine) runBatch(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		abortOnce sync.Once
		abortErr  error
	)
	abort := func(err error) {
		abortOnce.Do(func() {
			abortErr = err
			cancel()
		})
	}
	failed := func(path string, err error) {
		e.recordFailure(path, err)
		if !e.config.ContinueOnError {
			abort(err)
		}
	}

	js := e.systemManager.JobSystem()
	for info, err := range e.walker.Enumerate(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failed(info.Path, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		task, err := e.newTask(ctx, info, failed)
		if err != nil {
			failed(info.Path, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if err := js.Submit(ctx, task); err != nil {
			break
		}
	}
	js.Wait()
	return abortErr
}

// newTask acquires the output directory for info and wraps its simplification
// in a job.
func (e *Engine) newTask(ctx context.Context, info assets.AssetInfo, failed func(string, error)) (metadata.JobTask, error) {
	out, err := e.walker.EnsureOutputDir(info.Path)
	if err != nil {
		return metadata.JobTask{}, err
	}
	info.OutputPath = out

	return metadata.JobTask{
		ID:          info.RelPath,
		InputParams: info,
		OnStart: func(params interface{}) (interface{}, error) {
			return e.simplify(ctx, params.(assets.AssetInfo))
		},
		OnComplete: func(result interface{}) {
			res := result.(*metadata.SimplifyResult)
			e.events.Fire(core.EVENT_CODE_FILE_SIMPLIFIED, e, core.EventContext{
				Path:         info.Path,
				RelPath:      info.RelPath,
				OutputPath:   info.OutputPath,
				TrianglesIn:  res.TrianglesIn,
				TrianglesOut: res.TrianglesOut,
				Elapsed:      res.Elapsed,
			})
		},
		OnFailure: func(params interface{}, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			failed(info.Path, err)
		},
	}, nil
}

func (e *Engine) simplify(ctx context.Context, info assets.AssetInfo) (*metadata.SimplifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := e.systemManager.MeshSystem().Simplify(ctx, info.Path, info.OutputPath, e.config.DecimateRatio)
	if err != nil {
		return nil, err
	}
	if e.store != nil {
		key := storage.ObjectKey(e.config.Upload.Prefix, info.RelPath)
		if err := e.store.PutFile(ctx, key, info.OutputPath); err != nil {
			return nil, &core.PathError{Kind: core.ErrWrite, Path: info.OutputPath, Stage: "upload", Err: err}
		}
		core.LogDebug("[%s] uploaded %s", core.ShortID(e.runID), key)
		e.events.Fire(core.EVENT_CODE_FILE_UPLOADED, e, core.EventContext{
			Path:       info.Path,
			RelPath:    info.RelPath,
			OutputPath: info.OutputPath,
		})
	}
	return res, nil
}

// onFileEvent feeds the batch metrics. It never handles the event so later
// listeners still see it.
func (e *Engine) onFileEvent(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	metrics := listenerInst.(*core.BatchMetrics)
	switch code {
	case core.EVENT_CODE_FILE_SIMPLIFIED:
		metrics.RecordSuccess(data.TrianglesIn, data.TrianglesOut, data.Elapsed)
		core.LogInfo("[%s] %s: %d -> %d triangles", core.ShortID(e.runID), data.RelPath, data.TrianglesIn, data.TrianglesOut)
	case core.EVENT_CODE_FILE_FAILED:
		metrics.RecordFailure(data.Path, data.Err)
		core.LogError("[%s] %v", core.ShortID(e.runID), data.Err)
	}
	return false
}

func (e *Engine) recordFailure(path string, err error) {
	e.events.Fire(core.EVENT_CODE_FILE_FAILED, e, core.EventContext{Path: path, Err: err})
}

// watch re-simplifies files reported by w until ctx is done. Failures are
// reported and never stop the loop.
func (e *Engine) watch(ctx context.Context, w *assets.AssetWatcher) error {
	core.LogInfo("[%s] watching %s for changes", core.ShortID(e.runID), e.walker.InputRoot())
	e.events.Fire(core.EVENT_CODE_BATCH_COMPLETED, e, core.EventContext{})

	js := e.systemManager.JobSystem()
	keepGoing := func(path string, err error) {
		e.recordFailure(path, err)
	}
	for {
		select {
		case <-ctx.Done():
			js.Wait()
			return nil
		case info := <-w.Events():
			task, err := e.newTask(ctx, info, keepGoing)
			if err != nil {
				keepGoing(info.Path, err)
				continue
			}
			if err := js.Submit(ctx, task); err != nil {
				continue
			}
		}
	}
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	if err := e.events.Shutdown(); err != nil {
		return err
	}
	if e.systemManager != nil {
		if err := e.systemManager.Shutdown(); err != nil {
			return err
		}
	}
	core.LogDebug("[%s] shut down", core.ShortID(e.runID))
	return nil
}
