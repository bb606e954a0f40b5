package tree

import (
	"context"
	"io"

	"github.com/rdvproject/rdv/backend/pkg/ratelimit"
)

type CopyConfig struct {
	// `BytesPerSec` throttles the copy.  Zero means unthrottled.
	BytesPerSec int64
}

// `CopyTree()` copies the collection tree below `src` into `dst`, top-down:
// create the destination collection, copy the data objects at that level,
// then recurse into subcollections.  It aborts on the first error.
//
// The walk is not resumable mid-tree.  A retry restarts from scratch against
// the same destination, overwriting objects that were already copied.
// Objects that vanished from the source between attempts are NOT removed from
// the destination; see the package notes in `secure`.
func CopyTree(
	ctx context.Context, s Store, src, dst string, cfg *CopyConfig,
) error {
	var bucket *ratelimit.Bucket
	if cfg != nil && cfg.BytesPerSec > 0 {
		bucket = ratelimit.NewBucketWithRate(
			float64(cfg.BytesPerSec), cfg.BytesPerSec,
		)
	}
	return copyTree(ctx, s, src, dst, bucket)
}

func copyTree(
	ctx context.Context, s Store, src, dst string, bucket *ratelimit.Bucket,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.EnsureCollection(dst); err != nil {
		return err
	}

	objs, err := s.ListObjects(src)
	if err != nil {
		return err
	}
	for _, obj := range objs {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := copyObject(
			s, Join(src, obj.Name), Join(dst, obj.Name), bucket,
		)
		if err != nil {
			return err
		}
	}

	subs, err := s.ListCollections(src)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		err := copyTree(ctx, s, sub, Join(dst, Base(sub)), bucket)
		if err != nil {
			return err
		}
	}
	return nil
}

// `CopyObject()` copies a single data object.
func CopyObject(s Store, src, dst string) error {
	return copyObject(s, src, dst, nil)
}

func copyObject(s Store, src, dst string, bucket *ratelimit.Bucket) error {
	r, err := s.OpenObject(src)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	var rd io.Reader = r
	if bucket != nil {
		rd = ratelimit.Reader(r, bucket)
	}

	w, err := s.CreateObject(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rd); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
