package folders

import (
	"github.com/rdvproject/rdv/backend/internal/avu"
	"github.com/rdvproject/rdv/backend/internal/tree"
)

// `Locks` records exclusive holds on folder trees.  A lock is stored as a
// single attribute on its root collection whose value is the root path.  A
// path is locked if any ancestor-or-self carries a lock, which makes the
// lock visible to every descendant without touching each of them.
//
// Locks are created and removed only as side effects of status transitions;
// see `Policy`.
type Locks struct {
	attrs avu.Store
}

func NewLocks(attrs avu.Store) *Locks {
	return &Locks{attrs: attrs}
}

func (l *Locks) Acquire(folder string) error {
	return l.attrs.Set(folder, avu.AttrLock, folder)
}

func (l *Locks) Release(folder string) error {
	return l.attrs.Remove(folder, avu.AttrLock)
}

// `IsLocked()` reports whether `path` is covered by a lock rooted at `path`
// or at one of its ancestors.
func (l *Locks) IsLocked(path string) (bool, error) {
	locks, err := l.GetLocks(path)
	if err != nil {
		return false, err
	}
	return len(locks) > 0, nil
}

// `GetLocks()` returns the lock roots that cover `path`, innermost first.
func (l *Locks) GetLocks(path string) ([]string, error) {
	var roots []string
	for p := path; p != ""; p = tree.Parent(p) {
		v, ok, err := l.attrs.Get(p, avu.AttrLock)
		if err != nil {
			return nil, err
		}
		if ok {
			roots = append(roots, v)
		}
	}
	return roots, nil
}
