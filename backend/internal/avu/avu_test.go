package avu_test

import (
	"testing"

	"github.com/rdvproject/rdv/backend/internal/avu"
	"github.com/stretchr/testify/require"
)

const folder = "/zn/home/research-initial/f1"

func TestMemSetCAS(t *testing.T) {
	s := avu.NewMem()

	// Expect absent.
	require.NoError(t, s.SetCAS(folder, avu.AttrStatus, "LOCKED", ""))
	v, ok, err := s.Get(folder, avu.AttrStatus)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "LOCKED", v)

	// Retrying the same CAS is idempotent.
	require.NoError(t, s.SetCAS(folder, avu.AttrStatus, "LOCKED", ""))

	// A stale expected value conflicts.
	err = s.SetCAS(folder, avu.AttrStatus, "SUBMITTED", "")
	require.Error(t, err)
	require.True(t, avu.IsConflictError(err))
	cerr := err.(*avu.ConflictError)
	require.Equal(t, "LOCKED", cerr.Stored)

	// CAS with the right expected value succeeds.
	require.NoError(t,
		s.SetCAS(folder, avu.AttrStatus, "SUBMITTED", "LOCKED"))
}

func TestMemQueryPrefix(t *testing.T) {
	s := avu.NewMem()
	require.NoError(t, s.Set(folder, avu.UserPrefix+"title", "Example"))
	require.NoError(t, s.Set(folder, avu.UserPrefix+"author", "A. U. Thor"))
	require.NoError(t, s.Set(folder, avu.AttrStatus, "LOCKED"))

	es, err := s.QueryPrefix(folder, avu.UserPrefix)
	require.NoError(t, err)
	require.Len(t, es, 2)
	require.Equal(t, avu.UserPrefix+"author", es[0].Attr)
	require.Equal(t, avu.UserPrefix+"title", es[1].Attr)

	require.NoError(t, s.RemovePrefix(folder, avu.UserPrefix))
	es, err = s.QueryPrefix(folder, "")
	require.NoError(t, err)
	require.Len(t, es, 1)
	require.Equal(t, avu.AttrStatus, es[0].Attr)
}

func TestMemFindEntitiesByAttr(t *testing.T) {
	s := avu.NewMem()
	require.NoError(t, s.Set("/zn/a", avu.AttrCronjobCopyToVault, "CRONJOB_PENDING"))
	require.NoError(t, s.Set("/zn/b", avu.AttrCronjobCopyToVault, "CRONJOB_RETRY"))
	require.NoError(t, s.Set("/zn/c", avu.AttrCronjobCopyToVault, "CRONJOB_OK"))

	ents, err := s.FindEntitiesByAttr(
		avu.AttrCronjobCopyToVault, "CRONJOB_PENDING", "CRONJOB_RETRY",
	)
	require.NoError(t, err)
	require.Equal(t, []string{"/zn/a", "/zn/b"}, ents)
}

func TestIsReserved(t *testing.T) {
	require.True(t, avu.IsReserved(avu.AttrStatus))
	require.True(t, avu.IsReserved(avu.AttrCopyTarget))
	require.False(t, avu.IsReserved(avu.UserPrefix+"title"))
}
