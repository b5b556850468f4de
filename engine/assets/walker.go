package assets

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spaghettifunk/decimator/engine/core"
	"github.com/spaghettifunk/decimator/engine/metadata"
)

type AssetInfo struct {
	// Path is the absolute input path.
	Path string
	// RelPath is Path relative to the input root.
	RelPath string
	// OutputPath is the mirrored location under the output root.
	OutputPath string
	Type       metadata.ResourceType
	ModTime    time.Time
}

// Walker enumerates mesh files under an input root and mirrors their
// relative location under an output root. It keeps no state between walks.
type Walker struct {
	inputRoot  string
	outputRoot string
	extensions []string
}

func NewWalker(inputRoot, outputRoot string, extensions ...string) (*Walker, error) {
	if strings.TrimSpace(inputRoot) == "" {
		return nil, core.Configurationf("input directory is required")
	}
	if strings.TrimSpace(outputRoot) == "" {
		return nil, core.Configurationf("output directory is required")
	}

	in, err := filepath.Abs(inputRoot)
	if err != nil {
		return nil, core.Configurationf("input directory %q: %v", inputRoot, err)
	}
	fi, err := os.Stat(in)
	if err != nil {
		return nil, core.Configurationf("input directory %q: %v", inputRoot, err)
	}
	if !fi.IsDir() {
		return nil, core.Configurationf("input directory %q is not a directory", inputRoot)
	}
	in = resolvePath(in)

	out, err := filepath.Abs(outputRoot)
	if err != nil {
		return nil, core.Configurationf("output directory %q: %v", outputRoot, err)
	}
	out = resolvePath(out)
	if out == in {
		return nil, core.Configurationf("output directory %q must differ from the input directory", outputRoot)
	}

	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		if e = metadata.NormalizeExtension(e); e != "" {
			exts = append(exts, e)
		}
	}
	if len(exts) == 0 {
		exts = append(exts, metadata.DefaultMeshExtensions...)
	}

	return &Walker{
		inputRoot:  in,
		outputRoot: out,
		extensions: exts,
	}, nil
}

// resolvePath evaluates symlinks in the longest existing prefix of the absolute
// path and re-appends the components that do not exist yet, so a root created
// later compares equal to the paths WalkDir reports.
func resolvePath(path string) string {
	var missing []string
	dir := path
	for {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return path
		}
		missing = append([]string{filepath.Base(dir)}, missing...)
		dir = parent
	}
}

func (w *Walker) InputRoot() string  { return w.inputRoot }
func (w *Walker) OutputRoot() string { return w.outputRoot }

// EnsureOutputRoot creates the output root if it is absent.
func (w *Walker) EnsureOutputRoot() error {
	if fi, err := os.Stat(w.outputRoot); err == nil && !fi.IsDir() {
		return core.Configurationf("output directory %q is not a directory", w.outputRoot)
	}
	if err := os.MkdirAll(w.outputRoot, 0o755); err != nil {
		return core.NewPathError(core.ErrIO, w.outputRoot, err)
	}
	w.outputRoot = resolvePath(w.outputRoot)
	return nil
}

// Qualifies reports whether path carries one of the mesh extensions.
func (w *Walker) Qualifies(path string) bool {
	return metadata.DetermineResourceType(path, w.extensions) == metadata.ResourceTypeMesh
}

// OutputPath maps an input file to output root + its path relative to the input root.
func (w *Walker) OutputPath(path string) (string, error) {
	rel, err := w.relPath(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(w.outputRoot, rel), nil
}

func (w *Walker) relPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", core.Configurationf("%s: %v", path, err)
	}
	rel, err := filepath.Rel(w.inputRoot, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", core.Configurationf("%s is not inside %s", path, w.inputRoot)
	}
	return rel, nil
}

// EnsureOutputDir creates the mirrored parent directory of path's output and
// returns the output file path. Existing directories are not an error.
func (w *Walker) EnsureOutputDir(path string) (string, error) {
	out, err := w.OutputPath(path)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(out)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", core.NewPathError(core.ErrIO, dir, err)
	}
	return out, nil
}

// Asset describes a single input file.
func (w *Walker) Asset(path string) (AssetInfo, error) {
	rel, err := w.relPath(path)
	if err != nil {
		return AssetInfo{Path: path}, err
	}
	info := AssetInfo{
		Path:       filepath.Join(w.inputRoot, rel),
		RelPath:    rel,
		OutputPath: filepath.Join(w.outputRoot, rel),
		Type:       metadata.DetermineResourceType(path, w.extensions),
	}
	if fi, err := os.Stat(info.Path); err == nil {
		info.ModTime = fi.ModTime()
	}
	return info, nil
}

// Enumerate lazily walks the input root in lexical order and yields every
// qualifying file. Each call walks the filesystem again. An output root nested
// inside the input root is skipped.
func (w *Walker) Enumerate(ctx context.Context) iter.Seq2[AssetInfo, error] {
	return func(yield func(AssetInfo, error) bool) {
		_ = filepath.WalkDir(w.inputRoot, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(AssetInfo{}, ctxErr)
				return filepath.SkipAll
			}
			if err != nil {
				if !yield(AssetInfo{Path: path}, core.NewPathError(core.ErrIO, path, err)) {
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path == w.outputRoot {
					return filepath.SkipDir
				}
				return nil
			}
			if !w.Qualifies(path) {
				return nil
			}
			info, err := w.Asset(path)
			if !yield(info, err) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// Collect drains Enumerate into a slice, stopping at the first error.
func (w *Walker) Collect(ctx context.Context) ([]AssetInfo, error) {
	var assets []AssetInfo
	for info, err := range w.Enumerate(ctx) {
		if err != nil {
			return assets, err
		}
		assets = append(assets, info)
	}
	return assets, nil
}
