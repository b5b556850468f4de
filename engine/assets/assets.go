package assets

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/decimator/engine/core"
)

// DefaultDebounce is how long a file must stay quiet before it is reported.
const DefaultDebounce = 500 * time.Millisecond

// AssetWatcher reports mesh files that are created or rewritten under the
// walker's input root, watching every sub-directory recursively.
type AssetWatcher struct {
	walker   *Walker
	debounce time.Duration

	mutex    sync.Mutex
	pending  map[string]*time.Timer
	isClosed bool

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	events   chan AssetInfo
	errors   chan error
}

func NewAssetWatcher(walker *Walker, debounce time.Duration) (*AssetWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &AssetWatcher{
		walker:   walker,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
		fsnotify: fsWatch,
		events:   make(chan AssetInfo),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the input tree and begins delivering events.
func (aw *AssetWatcher) Start() error {
	if err := aw.addRecursive(aw.walker.InputRoot()); err != nil {
		return err
	}
	go aw.start()
	return nil
}

// Events delivers one AssetInfo per settled change. It is never closed; select on
// it together with a context.
func (aw *AssetWatcher) Events() <-chan AssetInfo {
	return aw.events
}

func (aw *AssetWatcher) Errors() <-chan error {
	return aw.errors
}

func (aw *AssetWatcher) Close() error {
	aw.mutex.Lock()
	if aw.isClosed {
		aw.mutex.Unlock()
		return nil
	}
	aw.isClosed = true
	for path, t := range aw.pending {
		t.Stop()
		delete(aw.pending, path)
	}
	aw.mutex.Unlock()

	close(aw.done)
	return aw.fsnotify.Close()
}

// addRecursive starts watching the named directory and all sub-directories.
func (aw *AssetWatcher) addRecursive(name string) error {
	aw.mutex.Lock()
	closed := aw.isClosed
	aw.mutex.Unlock()
	if closed {
		return errors.New("asset watcher already closed")
	}
	return aw.watchRecursive(name)
}

func (aw *AssetWatcher) start() {
	for {
		select {
		case e, ok := <-aw.fsnotify.Events:
			if !ok {
				return
			}
			aw.handleEvent(e)

		case err, ok := <-aw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("watcher: %v", err)
			select {
			case aw.errors <- err:
			default:
			}

		case <-aw.done:
			return
		}
	}
}

func (aw *AssetWatcher) handleEvent(e fsnotify.Event) {
	if aw.isOutput(e.Name) {
		return
	}
	s, err := os.Stat(e.Name)
	if err == nil && s != nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			// Files copied in together with the directory never raise their own event.
			if err := aw.watchRecursive(e.Name); err != nil {
				core.LogWarn("watcher: cannot watch %s: %v", e.Name, err)
			}
		}
		return
	}
	if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		aw.handleFileEvent(e.Name)
	}
	// A removed path may have been a directory; there is no way to stat it anymore.
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		aw.cancel(e.Name)
		_ = aw.fsnotify.Remove(e.Name)
	}
}

// watchRecursive adds all directories under path to the watch list and reports
// the mesh files already present in them, except when walking the initial root.
func (aw *AssetWatcher) watchRecursive(path string) error {
	initial := path == aw.walker.InputRoot()
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if aw.isOutput(walkPath) {
				return filepath.SkipDir
			}
			return aw.fsnotify.Add(walkPath)
		}
		if !initial {
			aw.handleFileEvent(walkPath)
		}
		return nil
	})
}

// handleFileEvent (re)arms the debounce timer for a qualifying file.
func (aw *AssetWatcher) handleFileEvent(path string) {
	if !aw.walker.Qualifies(path) {
		return
	}

	aw.mutex.Lock()
	defer aw.mutex.Unlock()
	if aw.isClosed {
		return
	}
	if t, ok := aw.pending[path]; ok {
		t.Reset(aw.debounce)
		return
	}
	aw.pending[path] = time.AfterFunc(aw.debounce, func() { aw.fire(path) })
}

func (aw *AssetWatcher) fire(path string) {
	aw.mutex.Lock()
	delete(aw.pending, path)
	closed := aw.isClosed
	aw.mutex.Unlock()
	if closed {
		return
	}

	info, err := aw.walker.Asset(path)
	if err != nil {
		core.LogWarn("watcher: %v", err)
		return
	}
	select {
	case aw.events <- info:
	case <-aw.done:
	}
}

func (aw *AssetWatcher) cancel(path string) {
	aw.mutex.Lock()
	defer aw.mutex.Unlock()
	if t, ok := aw.pending[path]; ok {
		t.Stop()
		delete(aw.pending, path)
	}
}

func (aw *AssetWatcher) isOutput(path string) bool {
	return hasPathPrefix(path, aw.walker.OutputRoot())
}

func hasPathPrefix(path, prefix string) bool {
	rel, err := filepath.Rel(prefix, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
