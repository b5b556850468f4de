package metadata

import (
	"path/filepath"
	"strings"
)

type ResourceType int

const (
	ResourceTypeNone ResourceType = iota
	ResourceTypeMesh
)

// DefaultMeshExtensions lists the suffixes treated as meshes when none are configured.
var DefaultMeshExtensions = []string{".stl"}

// DetermineResourceType classifies path by its extension, case-insensitively.
func DetermineResourceType(path string, extensions []string) ResourceType {
	if len(extensions) == 0 {
		extensions = DefaultMeshExtensions
	}
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if strings.EqualFold(ext, NormalizeExtension(e)) {
			return ResourceTypeMesh
		}
	}
	return ResourceTypeNone
}

// NormalizeExtension lower-cases e and guarantees a leading dot.
func NormalizeExtension(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	if e != "" && !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}
