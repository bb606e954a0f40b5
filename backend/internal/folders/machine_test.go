package folders_test

import (
	"testing"

	"github.com/rdvproject/rdv/backend/internal/acl"
	"github.com/rdvproject/rdv/backend/internal/avu"
	"github.com/rdvproject/rdv/backend/internal/folders"
	"github.com/rdvproject/rdv/backend/internal/identity"
	"github.com/rdvproject/rdv/backend/internal/metadata"
	"github.com/rdvproject/rdv/backend/internal/notify"
	"github.com/rdvproject/rdv/backend/internal/provenance"
	"github.com/rdvproject/rdv/backend/internal/tree"
	"github.com/rdvproject/rdv/backend/pkg/mulog"
	"github.com/stretchr/testify/require"
)

type testRig struct {
	machine *folders.Machine
	attrs   *avu.Mem
	prov    *provenance.Mem
	sink    *notify.Mem
	acl     *acl.Mem
	tree    *tree.Mem
}

func newTestRig(t *testing.T) *testRig {
	dir, err := identity.New(&identity.Config{
		Zone:   "zn",
		Admins: []string{"admin"},
		Groups: []identity.GroupConfig{
			{
				Name:     "research-initial",
				Category: "initial",
				Members:  []string{"alice", "bob"},
			},
			{
				Name:    "datamanager-initial",
				Members: []string{"dana"},
			},
			{
				Name:     "research-solo",
				Category: "solo",
				Members:  []string{"carol"},
			},
			{
				Name:     "deposit-pilot",
				Category: "pilot",
				Members:  []string{"dave"},
			},
		},
	})
	require.NoError(t, err)

	rig := &testRig{
		attrs: avu.NewMem(),
		prov:  provenance.NewMem(),
		sink:  notify.NewMem(),
		acl:   acl.NewMem(),
		tree:  tree.NewMem(),
	}
	rig.machine = folders.NewMachine(mulog.Logger{}, &folders.MachineConfig{
		Directory:  dir,
		Attrs:      rig.attrs,
		Provenance: rig.prov,
		Notify:     rig.sink,
		Tree:       rig.tree,
		Acl:        rig.acl,
		Metadata:   &metadata.JSONValidator{},
	})
	return rig
}

func (rig *testRig) writeMetadata(t *testing.T, folder, doc string) {
	require.NoError(t, rig.tree.EnsureCollection(folder))
	w, err := rig.tree.CreateObject(tree.Join(folder, metadata.ObjectName))
	require.NoError(t, err)
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func (rig *testRig) requireStatus(
	t *testing.T, folder string, want folders.Status,
) {
	st, err := rig.machine.Status(folder)
	require.NoError(t, err)
	require.Equal(t, want, st)
}

const testFolder = "/zn/home/research-initial/collab"

func TestTransitionIdempotent(t *testing.T) {
	rig := newTestRig(t)

	require.NoError(t,
		rig.machine.Transition("alice", testFolder, folders.StatusLocked))
	require.NoError(t,
		rig.machine.Transition("alice", testFolder, folders.StatusLocked))

	rig.requireStatus(t, testFolder, folders.StatusLocked)
	recs, err := rig.prov.List(testFolder)
	require.NoError(t, err)
	require.Len(t, recs, 1, "a repeated transition must not log again")
	require.Equal(t, provenance.ActionLocked, recs[0].Action)
	require.Equal(t, "alice", recs[0].Actor)
}

func TestTransitionAllowList(t *testing.T) {
	legal := map[[2]folders.Status]bool{
		{folders.StatusFolder, folders.StatusLocked}:      true,
		{folders.StatusFolder, folders.StatusSubmitted}:   true,
		{folders.StatusLocked, folders.StatusFolder}:      true,
		{folders.StatusLocked, folders.StatusSubmitted}:   true,
		{folders.StatusSubmitted, folders.StatusFolder}:   true,
		{folders.StatusSubmitted, folders.StatusAccepted}: true,
		{folders.StatusSubmitted, folders.StatusRejected}: true,
		{folders.StatusRejected, folders.StatusFolder}:    true,
		{folders.StatusRejected, folders.StatusLocked}:    true,
		{folders.StatusRejected, folders.StatusSubmitted}: true,
		{folders.StatusAccepted, folders.StatusFolder}:    true,
		{folders.StatusAccepted, folders.StatusSecured}:   true,
		{folders.StatusSecured, folders.StatusFolder}:     true,
		{folders.StatusSecured, folders.StatusLocked}:     true,
		{folders.StatusSecured, folders.StatusSubmitted}:  true,
	}
	all := []folders.Status{
		folders.StatusFolder,
		folders.StatusLocked,
		folders.StatusSubmitted,
		folders.StatusAccepted,
		folders.StatusRejected,
		folders.StatusSecured,
	}

	for _, cur := range all {
		for _, target := range all {
			if cur == target || legal[[2]folders.Status{cur, target}] {
				continue
			}
			rig := newTestRig(t)
			if cur != folders.StatusFolder {
				require.NoError(t, rig.attrs.Set(
					testFolder, avu.AttrStatus, cur.Value(),
				))
			}
			err := rig.machine.Transition(
				"admin", testFolder, target,
			)
			require.Error(t, err,
				"%s -> %s must be denied", cur, target)
			require.True(t, folders.IsDeniedError(err))
			require.Equal(t,
				folders.ReasonIllegalTransition, err.Error(),
				"%s -> %s", cur, target)
		}
	}
}

func TestLockConsistency(t *testing.T) {
	rig := newTestRig(t)
	locks := rig.machine.Locks()
	child := tree.Join(testFolder, "sub/deep")

	require.NoError(t,
		rig.machine.Transition("alice", testFolder, folders.StatusLocked))
	for _, p := range []string{testFolder, child} {
		locked, err := locks.IsLocked(p)
		require.NoError(t, err)
		require.True(t, locked, p)
	}
	roots, err := locks.GetLocks(testFolder)
	require.NoError(t, err)
	require.Equal(t, []string{testFolder}, roots)

	require.NoError(t,
		rig.machine.Transition("alice", testFolder, folders.StatusFolder))
	for _, p := range []string{testFolder, child} {
		locked, err := locks.IsLocked(p)
		require.NoError(t, err)
		require.False(t, locked, p)
	}
}

func TestSubmitRequiresMetadata(t *testing.T) {
	rig := newTestRig(t)

	err := rig.machine.Transition(
		"alice", testFolder, folders.StatusSubmitted,
	)
	require.Error(t, err)
	require.Equal(t, folders.ReasonMetadataMissing, err.Error())
	rig.requireStatus(t, testFolder, folders.StatusFolder)

	rig.writeMetadata(t, testFolder, "not json")
	err = rig.machine.Transition(
		"alice", testFolder, folders.StatusSubmitted,
	)
	require.Error(t, err)
	require.Equal(t, folders.ReasonMetadataInvalid, err.Error())

	rig.writeMetadata(t, testFolder, `{"title": "Example"}`)
	require.NoError(t, rig.machine.Transition(
		"alice", testFolder, folders.StatusSubmitted,
	))
	rig.requireStatus(t, testFolder, folders.StatusSubmitted)
}

func TestSubmitNotifiesDatamanagers(t *testing.T) {
	rig := newTestRig(t)
	rig.writeMetadata(t, testFolder, `{}`)

	require.NoError(t, rig.machine.Transition(
		"alice", testFolder, folders.StatusSubmitted,
	))

	ns := rig.sink.For("dana")
	require.Len(t, ns, 1)
	require.Equal(t, notify.MsgSubmitted, ns[0].Message)
	require.Equal(t, testFolder, ns[0].TargetRef)

	v, ok, err := rig.attrs.Get(testFolder, avu.AttrSubmittedBy)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", v)
}

func TestSubmitAutoAcceptsWithoutDatamanager(t *testing.T) {
	rig := newTestRig(t)
	folder := "/zn/home/research-solo/project"
	rig.writeMetadata(t, folder, `{}`)

	require.NoError(t, rig.machine.Transition(
		"carol", folder, folders.StatusSubmitted,
	))

	rig.requireStatus(t, folder, folders.StatusAccepted)

	v, ok, err := rig.attrs.Get(folder, avu.AttrAcceptedBy)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, identity.SystemUser, v)

	recs, err := rig.prov.List(folder)
	require.NoError(t, err)
	require.Equal(t, provenance.ActionAccepted, recs[0].Action)
	require.Equal(t, identity.SystemUser, recs[0].Actor)

	cronjob, ok, err := rig.attrs.Get(folder, avu.AttrCronjobCopyToVault)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, avu.CronjobPending, cronjob)
}

func TestAcceptRequiresDatamanager(t *testing.T) {
	rig := newTestRig(t)
	rig.writeMetadata(t, testFolder, `{}`)
	require.NoError(t, rig.machine.Transition(
		"alice", testFolder, folders.StatusSubmitted,
	))

	err := rig.machine.Transition(
		"bob", testFolder, folders.StatusAccepted,
	)
	require.Error(t, err)
	require.Equal(t, folders.ReasonNotDatamanager, err.Error())
	rig.requireStatus(t, testFolder, folders.StatusSubmitted)

	require.NoError(t, rig.machine.Transition(
		"dana", testFolder, folders.StatusAccepted,
	))
	rig.requireStatus(t, testFolder, folders.StatusAccepted)

	ns := rig.sink.For("alice")
	require.Len(t, ns, 1)
	require.Equal(t, notify.MsgAccepted, ns[0].Message)

	cronjob, ok, err := rig.attrs.Get(testFolder, avu.AttrCronjobCopyToVault)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, avu.CronjobPending, cronjob)
}

func TestRejectNotifiesSubmitter(t *testing.T) {
	rig := newTestRig(t)
	rig.writeMetadata(t, testFolder, `{}`)
	require.NoError(t, rig.machine.Transition(
		"alice", testFolder, folders.StatusSubmitted,
	))

	require.NoError(t, rig.machine.Transition(
		"dana", testFolder, folders.StatusRejected,
	))
	rig.requireStatus(t, testFolder, folders.StatusRejected)

	ns := rig.sink.For("alice")
	require.Len(t, ns, 1)
	require.Equal(t, notify.MsgRejected, ns[0].Message)

	locked, err := rig.machine.Locks().IsLocked(testFolder)
	require.NoError(t, err)
	require.False(t, locked)
}

func TestUnsubmitAndUnlockProvenance(t *testing.T) {
	rig := newTestRig(t)
	rig.writeMetadata(t, testFolder, `{}`)

	require.NoError(t, rig.machine.Transition(
		"alice", testFolder, folders.StatusSubmitted,
	))
	require.NoError(t, rig.machine.Transition(
		"alice", testFolder, folders.StatusFolder,
	))
	head, ok, err := rig.prov.Head(testFolder)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, provenance.ActionUnsubmitted, head.Action)

	require.NoError(t, rig.machine.Transition(
		"alice", testFolder, folders.StatusLocked,
	))
	require.NoError(t, rig.machine.Transition(
		"alice", testFolder, folders.StatusFolder,
	))
	head, ok, err = rig.prov.Head(testFolder)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, provenance.ActionUnlocked, head.Action)
}

func TestSecureRequiresAdmin(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t,
		rig.attrs.Set(testFolder, avu.AttrStatus, "ACCEPTED"))

	err := rig.machine.Transition(
		"dana", testFolder, folders.StatusSecured,
	)
	require.Error(t, err)
	require.Equal(t, folders.ReasonNotAdmin, err.Error())

	require.NoError(t, rig.machine.Transition(
		"admin", testFolder, folders.StatusSecured,
	))
	rig.requireStatus(t, testFolder, folders.StatusSecured)
}

func TestSecuredEffectsNotifyVaultPackage(t *testing.T) {
	rig := newTestRig(t)
	vaultPackage := "/zn/home/vault-initial/collab[1747258876]"
	require.NoError(t,
		rig.attrs.Set(testFolder, avu.AttrSubmittedBy, "alice"))
	require.NoError(t,
		rig.attrs.Set(testFolder, avu.AttrAcceptedBy, "dana"))

	require.NoError(t,
		rig.machine.SecuredEffects(testFolder, vaultPackage))

	for _, user := range []string{"alice", "dana"} {
		ns := rig.sink.For(user)
		require.Len(t, ns, 1, user)
		require.Equal(t, notify.MsgSecured, ns[0].Message)
		require.Equal(t, vaultPackage, ns[0].TargetRef,
			"notification must reference the vault package")
	}
}

func TestSecuredEffectsRemoveDeposit(t *testing.T) {
	rig := newTestRig(t)
	deposit := "/zn/home/deposit-pilot/upload"
	vaultPackage := "/zn/home/vault-pilot/upload[1747258876]"
	require.NoError(t, rig.tree.EnsureCollection(deposit))
	require.NoError(t,
		rig.attrs.Set(deposit, avu.AttrSubmittedBy, "dave"))

	require.NoError(t,
		rig.machine.SecuredEffects(deposit, vaultPackage))

	level, err := rig.acl.LevelOf(vaultPackage, "dave")
	require.NoError(t, err)
	require.Equal(t, acl.LevelRead, level)

	exists, err := rig.tree.CollectionExists(deposit)
	require.NoError(t, err)
	require.False(t, exists, "deposit folder must be removed")

	_, ok, err := rig.attrs.Get(deposit, avu.AttrSubmittedBy)
	require.NoError(t, err)
	require.False(t, ok, "deposit attributes must be removed")
}

func TestFolderFinalizationClearsCopyState(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t,
		rig.attrs.Set(testFolder, avu.AttrStatus, "ACCEPTED"))
	require.NoError(t, rig.attrs.Set(
		testFolder, avu.AttrCronjobCopyToVault, avu.CronjobOk,
	))
	require.NoError(t,
		rig.attrs.Set(testFolder, avu.AttrCopyRetryCount, "2"))
	require.NoError(t,
		rig.attrs.Set(testFolder, avu.AttrCopyLastRun, "1747258876"))
	require.NoError(t, rig.attrs.Set(
		testFolder, avu.AttrCopyTarget,
		"/zn/home/vault-initial/collab[1747258876]",
	))

	require.NoError(t, rig.machine.Transition(
		identity.SystemUser, testFolder, folders.StatusFolder,
	))
	rig.requireStatus(t, testFolder, folders.StatusFolder)

	for _, attr := range []string{
		avu.AttrCronjobCopyToVault,
		avu.AttrCopyRetryCount,
		avu.AttrCopyLastRun,
		avu.AttrCopyTarget,
	} {
		_, ok, err := rig.attrs.Get(testFolder, attr)
		require.NoError(t, err)
		require.False(t, ok, attr)
	}

	// Finalization is bookkeeping, not a user unlock.
	_, ok, err := rig.prov.Head(testFolder)
	require.NoError(t, err)
	require.False(t, ok)
}
