package storage

import (
	"context"
	"path"
	"path/filepath"
	"strings"
)

// Store receives a copy of every written output file.
type Store interface {
	// PutFile uploads the local file at localPath under key.
	PutFile(ctx context.Context, key, localPath string) error
}

// ObjectKey joins prefix and an OS relative path into a slash separated key.
func ObjectKey(prefix, relPath string) string {
	key := filepath.ToSlash(relPath)
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return strings.TrimLeft(key, "/")
	}
	return path.Join(prefix, key)
}
