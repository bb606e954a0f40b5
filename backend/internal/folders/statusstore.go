package folders

import (
	"github.com/rdvproject/rdv/backend/internal/avu"
)

// `StatusStore` specializes the attribute store for the one reserved folder
// status attribute.  At most one status value exists per folder; absence
// reads as `StatusFolder`.
type StatusStore struct {
	attrs avu.Store
}

func NewStatusStore(attrs avu.Store) *StatusStore {
	return &StatusStore{attrs: attrs}
}

func (s *StatusStore) Get(folder string) (Status, error) {
	v, ok, err := s.attrs.Get(folder, avu.AttrStatus)
	if err != nil {
		return StatusFolder, err
	}
	if !ok {
		return StatusFolder, nil
	}
	return ParseStatus(v)
}

// `Commit()` atomically moves the status attribute from `cur` to `target`.
// A concurrent transition surfaces as an `*avu.ConflictError`.
//
// The `StatusFolder` sentinel is stored as attribute absence.  Removal is
// unconditional: concurrent removals converge on the same default state, so
// a compare-and-remove would not change the outcome.
func (s *StatusStore) Commit(folder string, cur, target Status) error {
	if target == StatusFolder {
		return s.attrs.Remove(folder, avu.AttrStatus)
	}
	return s.attrs.SetCAS(
		folder, avu.AttrStatus, target.Value(), cur.Value(),
	)
}
