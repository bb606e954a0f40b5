package vaults

import (
	"strings"

	"github.com/rdvproject/rdv/backend/internal/metadata"
	"github.com/rdvproject/rdv/backend/internal/tree"
)

// `LatestMetadataPath()` returns the newest metadata snapshot directly below
// a vault package.  Snapshots are named `rdv-metadata[<timestamp>].json`, so
// the newest is the lexicographically greatest name.  A candidate only
// replaces the current best if it is also no shorter; this matches the
// behavior of existing deployments and is kept unchanged until the naming
// scheme is revisited.
func LatestMetadataPath(store tree.Store, pkg string) (string, bool, error) {
	objs, err := store.ListObjects(pkg)
	if err != nil {
		return "", false, err
	}
	var best string
	for _, o := range objs {
		if !isMetadataSnapshot(o.Name) {
			continue
		}
		if best == "" ||
			(o.Name > best && len(o.Name) >= len(best)) {
			best = o.Name
		}
	}
	if best == "" {
		return "", false, nil
	}
	return tree.Join(pkg, best), true, nil
}

func isMetadataSnapshot(name string) bool {
	return strings.HasPrefix(name, metadata.ObjectPrefix) &&
		strings.HasSuffix(name, metadata.ObjectSuffix)
}
