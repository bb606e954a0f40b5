package vaults

import (
	"github.com/rdvproject/rdv/backend/internal/avu"
)

// `StatusStore` specializes the attribute store for the vault status
// attribute.  Absence reads as `StatusEmpty`.
type StatusStore struct {
	attrs avu.Store
}

func NewStatusStore(attrs avu.Store) *StatusStore {
	return &StatusStore{attrs: attrs}
}

func (s *StatusStore) Get(pkg string) (Status, error) {
	v, ok, err := s.attrs.Get(pkg, avu.AttrVaultStatus)
	if err != nil {
		return StatusEmpty, err
	}
	if !ok {
		return StatusEmpty, nil
	}
	return ParseStatus(v)
}

// `Commit()` atomically moves the status attribute from `cur` to `target`.
// A concurrent transition surfaces as an `*avu.ConflictError`.
func (s *StatusStore) Commit(pkg string, cur, target Status) error {
	return s.attrs.SetCAS(
		pkg, avu.AttrVaultStatus, target.Value(), cur.Value(),
	)
}
