package secure_test

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rdvproject/rdv/backend/internal/acl"
	"github.com/rdvproject/rdv/backend/internal/avu"
	"github.com/rdvproject/rdv/backend/internal/folders"
	"github.com/rdvproject/rdv/backend/internal/identity"
	"github.com/rdvproject/rdv/backend/internal/metadata"
	"github.com/rdvproject/rdv/backend/internal/notify"
	"github.com/rdvproject/rdv/backend/internal/provenance"
	"github.com/rdvproject/rdv/backend/internal/secure"
	"github.com/rdvproject/rdv/backend/internal/tree"
	"github.com/rdvproject/rdv/backend/internal/vaults"
	"github.com/rdvproject/rdv/backend/pkg/mulog"
	"github.com/stretchr/testify/require"
)

// `flakyTree` fails object creation below the vault homes on demand, which
// makes the tree copy fail without touching the source.
type flakyTree struct {
	tree.Store
	failCreate bool
}

func (s *flakyTree) CreateObject(path string) (io.WriteCloser, error) {
	if s.failCreate && strings.HasPrefix(path, "/zn/home/vault-") {
		return nil, errors.New("simulated storage failure")
	}
	return s.Store.CreateObject(path)
}

type testRig struct {
	workflow *secure.Workflow
	attrs    *avu.Mem
	prov     *provenance.Mem
	sink     *notify.Mem
	acl      *acl.Mem
	tree     *flakyTree
	mem      *tree.Mem
}

func newTestRig(t *testing.T, maxRetries int, backoff time.Duration) *testRig {
	dir, err := identity.New(&identity.Config{
		Zone:   "zn",
		Admins: []string{"admin"},
		Groups: []identity.GroupConfig{
			{
				Name:     "research-initial",
				Category: "initial",
				Members:  []string{"alice"},
			},
			{
				Name:    "datamanager-initial",
				Members: []string{"dana"},
			},
			{
				Name:     "vault-initial",
				Category: "initial",
			},
			{
				Name:     "deposit-pilot",
				Category: "pilot",
				Members:  []string{"dave"},
			},
			{
				Name:     "vault-pilot",
				Category: "pilot",
			},
		},
	})
	require.NoError(t, err)

	rig := &testRig{
		attrs: avu.NewMem(),
		prov:  provenance.NewMem(),
		sink:  notify.NewMem(),
		acl:   acl.NewMem(),
		mem:   tree.NewMem(),
	}
	rig.tree = &flakyTree{Store: rig.mem}

	fsm := folders.NewMachine(mulog.Logger{}, &folders.MachineConfig{
		Directory:  dir,
		Attrs:      rig.attrs,
		Provenance: rig.prov,
		Notify:     rig.sink,
		Tree:       rig.tree,
		Acl:        rig.acl,
		Metadata:   &metadata.JSONValidator{},
	})
	vsm := vaults.NewMachine(mulog.Logger{}, &vaults.MachineConfig{
		Directory:  dir,
		Attrs:      rig.attrs,
		Provenance: rig.prov,
		Notify:     rig.sink,
		Tree:       rig.tree,
		Metadata:   &metadata.JSONValidator{},
	})
	rig.workflow = secure.New(mulog.Logger{}, &secure.Config{
		Directory:              dir,
		Attrs:                  rig.attrs,
		Folders:                fsm,
		Vaults:                 vsm,
		Tree:                   rig.tree,
		Provenance:             rig.prov,
		Notify:                 rig.sink,
		Acl:                    rig.acl,
		MaxRetries:             maxRetries,
		Backoff:                backoff,
		GenerateDataPackageRef: true,
	})
	return rig
}

// `seedAccepted()` prepares a folder the way the state machine leaves it
// after acceptance.
func (rig *testRig) seedAccepted(t *testing.T, folder string) {
	require.NoError(t, rig.mem.EnsureCollection(folder))
	rig.writeObject(t, tree.Join(folder, metadata.ObjectName),
		`{"title": "Example"}`)
	rig.writeObject(t, tree.Join(folder, "data.txt"), "payload")
	require.NoError(t,
		rig.attrs.Set(folder, avu.AttrStatus, "ACCEPTED"))
	require.NoError(t, rig.attrs.Set(
		folder, avu.AttrCronjobCopyToVault, avu.CronjobPending,
	))
	require.NoError(t,
		rig.attrs.Set(folder, avu.AttrSubmittedBy, "alice"))
	require.NoError(t,
		rig.attrs.Set(folder, avu.AttrAcceptedBy, "dana"))
	require.NoError(t,
		rig.attrs.Set(folder, avu.UserPrefix+"title", "Example"))
	require.NoError(t, rig.prov.Append(
		folder, "alice", provenance.ActionSubmitted, time.Now(),
	))
	require.NoError(t, rig.prov.Append(
		folder, "dana", provenance.ActionAccepted, time.Now(),
	))
}

func (rig *testRig) writeObject(t *testing.T, path, content string) {
	w, err := rig.mem.CreateObject(path)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func (rig *testRig) getAttr(t *testing.T, entity, attr string) (string, bool) {
	v, ok, err := rig.attrs.Get(entity, attr)
	require.NoError(t, err)
	return v, ok
}

const testFolder = "/zn/home/research-initial/collab"

func TestSecurePrechecks(t *testing.T) {
	rig := newTestRig(t, 5, 0)
	ctx := context.Background()

	// Not scheduled.
	err := rig.workflow.Secure(ctx, identity.SystemUser, testFolder)
	require.True(t, secure.IsPrecheckError(err))

	rig.seedAccepted(t, testFolder)

	// End users cannot invoke the workflow.
	err = rig.workflow.Secure(ctx, "alice", testFolder)
	require.True(t, secure.IsPrecheckError(err))

	// A concurrent run is advisory-busy.
	require.NoError(t, rig.attrs.Set(
		testFolder, avu.AttrCronjobCopyToVault, avu.CronjobProcessing,
	))
	err = rig.workflow.Secure(ctx, identity.SystemUser, testFolder)
	require.True(t, secure.IsPrecheckError(err))

	// Terminal states are skipped.
	require.NoError(t, rig.attrs.Set(
		testFolder, avu.AttrCronjobCopyToVault,
		avu.CronjobUnrecoverable,
	))
	err = rig.workflow.Secure(ctx, identity.SystemUser, testFolder)
	require.True(t, secure.IsPrecheckError(err))
}

func TestSecureBackoff(t *testing.T) {
	rig := newTestRig(t, 5, time.Hour)
	rig.seedAccepted(t, testFolder)
	require.NoError(t, rig.attrs.Set(
		testFolder, avu.AttrCopyLastRun, unixNow(),
	))

	err := rig.workflow.Secure(
		context.Background(), identity.SystemUser, testFolder,
	)
	require.True(t, secure.IsPrecheckError(err))

	// A precheck failure does not consume the retry budget.
	_, ok := rig.getAttr(t, testFolder, avu.AttrCopyRetryCount)
	require.False(t, ok)
}

func TestSecureSuccess(t *testing.T) {
	rig := newTestRig(t, 5, 0)
	rig.seedAccepted(t, testFolder)

	err := rig.workflow.Secure(
		context.Background(), identity.SystemUser, testFolder,
	)
	require.NoError(t, err)

	target, ok := rig.getAttr(t, testFolder, avu.AttrVaultPackage)
	require.True(t, ok)
	require.True(t,
		strings.HasPrefix(target, "/zn/home/vault-initial/collab["),
		target)

	// The source folder is back at its default state with the copy
	// bookkeeping removed.
	for _, attr := range []string{
		avu.AttrStatus,
		avu.AttrCronjobCopyToVault,
		avu.AttrCopyRetryCount,
		avu.AttrCopyLastRun,
		avu.AttrCopyTarget,
	} {
		_, ok := rig.getAttr(t, testFolder, attr)
		require.False(t, ok, attr)
	}

	// The package is UNPUBLISHED with content, snapshot, reference, and
	// user metadata in place.
	st, ok := rig.getAttr(t, target, avu.AttrVaultStatus)
	require.True(t, ok)
	require.Equal(t, "UNPUBLISHED", st)

	exists, err := rig.mem.ObjectExists(tree.Join(target, "data.txt"))
	require.NoError(t, err)
	require.True(t, exists)

	path, ok, err := vaults.LatestMetadataPath(rig.mem, target)
	require.NoError(t, err)
	require.True(t, ok, "missing metadata snapshot")
	require.True(t, strings.HasPrefix(
		path, tree.Join(target, "rdv-metadata["),
	), path)

	_, ok = rig.getAttr(t, target, avu.AttrDataPackageReference)
	require.True(t, ok)
	title, ok := rig.getAttr(t, target, avu.UserPrefix+"title")
	require.True(t, ok)
	require.Equal(t, "Example", title)

	// The vault group owns the package.
	level, err := rig.acl.LevelOf(target, "vault-initial")
	require.NoError(t, err)
	require.Equal(t, acl.LevelOwn, level)

	// Submitter and accepter are told, referencing the package.
	for _, user := range []string{"alice", "dana"} {
		ns := rig.sink.For(user)
		require.Len(t, ns, 1, user)
		require.Equal(t, notify.MsgSecured, ns[0].Message)
		require.Equal(t, target, ns[0].TargetRef)
	}

	// The action log traveled with the package.
	recs, err := rig.prov.List(target)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
}

func TestSecureRetryCeiling(t *testing.T) {
	rig := newTestRig(t, 5, 0)
	rig.seedAccepted(t, testFolder)
	rig.tree.failCreate = true
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		err := rig.workflow.Secure(
			ctx, identity.SystemUser, testFolder,
		)
		require.True(t, secure.IsRetryableError(err), "call %d", i)

		cronjob, ok := rig.getAttr(
			t, testFolder, avu.AttrCronjobCopyToVault,
		)
		require.True(t, ok)
		require.Equal(t, avu.CronjobRetry, cronjob, "call %d", i)

		count, ok := rig.getAttr(
			t, testFolder, avu.AttrCopyRetryCount,
		)
		require.True(t, ok)
		require.Equal(t, strconv.Itoa(i), count, "call %d", i)
	}

	err := rig.workflow.Secure(ctx, identity.SystemUser, testFolder)
	require.True(t, secure.IsUnrecoverableError(err))

	cronjob, ok := rig.getAttr(t, testFolder, avu.AttrCronjobCopyToVault)
	require.True(t, ok)
	require.Equal(t, avu.CronjobUnrecoverable, cronjob)
	_, ok = rig.getAttr(t, testFolder, avu.AttrCopyRetryCount)
	require.False(t, ok)
	_, ok = rig.getAttr(t, testFolder, avu.AttrCopyTarget)
	require.False(t, ok)

	var failures int
	for _, n := range rig.sink.For("dana") {
		if n.Message == notify.MsgCopyToVaultFailed {
			failures++
		}
	}
	require.Equal(t, 1, failures,
		"the give-up notification must fire exactly once")
}

func TestSecureReusesTarget(t *testing.T) {
	rig := newTestRig(t, 5, 0)
	rig.seedAccepted(t, testFolder)
	ctx := context.Background()

	rig.tree.failCreate = true
	err := rig.workflow.Secure(ctx, identity.SystemUser, testFolder)
	require.True(t, secure.IsRetryableError(err))

	target, ok := rig.getAttr(t, testFolder, avu.AttrCopyTarget)
	require.True(t, ok, "target must persist across retries")

	rig.tree.failCreate = false
	err = rig.workflow.Secure(ctx, identity.SystemUser, testFolder)
	require.NoError(t, err)

	pkg, ok := rig.getAttr(t, testFolder, avu.AttrVaultPackage)
	require.True(t, ok)
	require.Equal(t, target, pkg,
		"the retry must not allocate a second target")
}

func TestSecureDeposit(t *testing.T) {
	rig := newTestRig(t, 5, 0)
	folder := "/zn/home/deposit-pilot/upload"
	rig.seedAccepted(t, folder)
	require.NoError(t, rig.attrs.Set(folder, avu.AttrSubmittedBy, "dave"))
	require.NoError(t, rig.attrs.Remove(folder, avu.AttrAcceptedBy))

	err := rig.workflow.Secure(
		context.Background(), identity.SystemUser, folder,
	)
	require.NoError(t, err)

	pkgs, err := rig.attrs.FindEntitiesByAttr(
		avu.AttrVaultStatus, "UNPUBLISHED",
	)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	target := pkgs[0]

	// Deposit packages are search-indexed; the deposit itself is gone
	// and its submitter keeps read access.
	v, ok := rig.getAttr(t, target, avu.AttrSearchIndex)
	require.True(t, ok)
	require.Equal(t, "yes", v)

	exists, err := rig.mem.CollectionExists(folder)
	require.NoError(t, err)
	require.False(t, exists)
	_, ok = rig.getAttr(t, folder, avu.AttrStatus)
	require.False(t, ok)

	level, err := rig.acl.LevelOf(target, "dave")
	require.NoError(t, err)
	require.Equal(t, acl.LevelRead, level)
}

func unixNow() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}
