/*

Package `tree` stores collection trees and their data objects.  The secure
workflow copies a research folder's tree into the vault through this package.

Two implementations exist: `Mem` for tests and `Mongo`, which keeps
collection membership in a MongoDB collection and object content in GridFS,
optionally zstd-compressed at rest.

*/
package tree

import (
	"io"
	"strings"
)

type ObjectInfo struct {
	Name string
	Size int64
}

type Store interface {
	// `EnsureCollection()` creates the collection and any missing
	// parents.  Creating an existing collection is not an error.
	EnsureCollection(path string) error

	CollectionExists(path string) (bool, error)

	// `ListCollections()` returns the paths of the immediate
	// subcollections, ordered.
	ListCollections(path string) ([]string, error)

	// `ListObjects()` returns the data objects directly below `path`,
	// ordered by name.
	ListObjects(path string) ([]ObjectInfo, error)

	ObjectExists(path string) (bool, error)

	OpenObject(path string) (io.ReadCloser, error)

	// `CreateObject()` creates or replaces the object.  The content is
	// visible once the returned writer has been closed.
	CreateObject(path string) (io.WriteCloser, error)

	// `RemoveTree()` removes the collection, its subtree, and all data
	// objects below it.
	RemoveTree(path string) error
}

// `Base()` returns the last path element.
func Base(path string) string {
	i := strings.LastIndex(path, "/")
	return path[i+1:]
}

// `Parent()` returns the parent collection path, or "" for a top-level
// path.
func Parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return ""
	}
	return path[:i]
}

// `Join()` joins a collection path and a child name.
func Join(dir, name string) string {
	return dir + "/" + name
}
