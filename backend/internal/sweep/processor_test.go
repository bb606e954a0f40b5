package sweep_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rdvproject/rdv/backend/internal/acl"
	"github.com/rdvproject/rdv/backend/internal/avu"
	"github.com/rdvproject/rdv/backend/internal/folders"
	"github.com/rdvproject/rdv/backend/internal/identity"
	"github.com/rdvproject/rdv/backend/internal/metadata"
	"github.com/rdvproject/rdv/backend/internal/notify"
	"github.com/rdvproject/rdv/backend/internal/provenance"
	"github.com/rdvproject/rdv/backend/internal/secure"
	"github.com/rdvproject/rdv/backend/internal/sweep"
	"github.com/rdvproject/rdv/backend/internal/tree"
	"github.com/rdvproject/rdv/backend/internal/vaults"
	"github.com/rdvproject/rdv/backend/pkg/mulog"
	"github.com/stretchr/testify/require"
)

// `brokenVaultTree` fails object creation below the vault homes, so that the
// copy fails without a context cancelation.
type brokenVaultTree struct {
	tree.Store
}

func (s *brokenVaultTree) CreateObject(path string) (io.WriteCloser, error) {
	if strings.HasPrefix(path, "/zn/home/vault-") {
		return nil, errors.New("simulated storage failure")
	}
	return s.Store.CreateObject(path)
}

func newProcessorWorkflow(
	t *testing.T, attrs *avu.Mem, store tree.Store,
) *secure.Workflow {
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
				Name:     "vault-initial",
				Category: "initial",
			},
		},
	})
	require.NoError(t, err)

	prov := provenance.NewMem()
	sink := notify.NewMem()
	acls := acl.NewMem()
	fsm := folders.NewMachine(mulog.Logger{}, &folders.MachineConfig{
		Directory:  dir,
		Attrs:      attrs,
		Provenance: prov,
		Notify:     sink,
		Tree:       store,
		Acl:        acls,
		Metadata:   &metadata.JSONValidator{},
	})
	vsm := vaults.NewMachine(mulog.Logger{}, &vaults.MachineConfig{
		Directory:  dir,
		Attrs:      attrs,
		Provenance: prov,
		Notify:     sink,
		Tree:       store,
		Metadata:   &metadata.JSONValidator{},
	})
	return secure.New(mulog.Logger{}, &secure.Config{
		Directory:              dir,
		Attrs:                  attrs,
		Folders:                fsm,
		Vaults:                 vsm,
		Tree:                   store,
		Provenance:             prov,
		Notify:                 sink,
		Acl:                    acls,
		MaxRetries:             5,
		GenerateDataPackageRef: true,
	})
}

func seedScheduled(t *testing.T, attrs *avu.Mem, mem *tree.Mem, f string) {
	require.NoError(t, mem.EnsureCollection(f))
	w, err := mem.CreateObject(tree.Join(f, "data.txt"))
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, attrs.Set(f, avu.AttrStatus, "ACCEPTED"))
	require.NoError(t, attrs.Set(
		f, avu.AttrCronjobCopyToVault, avu.CronjobPending,
	))
	require.NoError(t, attrs.Set(f, avu.AttrSubmittedBy, "alice"))
}

func TestProcessFolderShutdownStopsSweep(t *testing.T) {
	attrs := avu.NewMem()
	mem := tree.NewMem()
	folder := "/zn/home/research-initial/collab"
	seedScheduled(t, attrs, mem, folder)
	workflow := newProcessorWorkflow(t, attrs, mem)

	ctxSlow, cancelSlow := context.WithCancel(context.Background())
	cancelSlow()
	proc := sweep.NewProcessor(ctxSlow, mulog.Logger{}, workflow)

	err := proc.ProcessFolder(context.Background(), folder)
	require.Equal(t, context.Canceled, err)

	// The aborted run still records retry state for the next sweep.
	v, ok, err := attrs.Get(folder, avu.AttrCronjobCopyToVault)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, avu.CronjobRetry, v)
	v, ok, err = attrs.Get(folder, avu.AttrCopyRetryCount)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)
}

func TestProcessFolderRetryableContinuesSweep(t *testing.T) {
	attrs := avu.NewMem()
	mem := tree.NewMem()
	folder := "/zn/home/research-initial/collab"
	seedScheduled(t, attrs, mem, folder)
	store := &brokenVaultTree{Store: mem}
	workflow := newProcessorWorkflow(t, attrs, store)

	proc := sweep.NewProcessor(
		context.Background(), mulog.Logger{}, workflow,
	)

	// A genuine copy failure is only logged; the sweep moves on.
	err := proc.ProcessFolder(context.Background(), folder)
	require.NoError(t, err)

	v, ok, err := attrs.Get(folder, avu.AttrCronjobCopyToVault)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, avu.CronjobRetry, v)
}
