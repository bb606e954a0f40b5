/*

Package `secure` implements the vault-copy workflow: it moves an accepted
folder's contents into a new vault package exactly once, tolerating partial
failure.

A run only starts when the folder's cronjob attribute is PENDING or RETRY
and the backoff interval since the last run has elapsed.  Every step failure
records RETRY plus an incremented retry count and returns; the sweep
scheduler re-invokes the workflow later.  The vault target path is persisted
before the copy begins, so a retry resumes against the same target instead
of allocating a duplicate.

The tree copy itself is restartable, not resumable: a retry walks the whole
source again and overwrites objects already present at the target.  Objects
that disappeared from the source between attempts stay behind at the target.
Clearing the target first would change observable retry behavior, so this is
left as is and documented.

Once the retry count reaches the configured maximum, the folder goes to
UNRECOVERABLE and the datamanagers are notified; the sweep skips such
folders until an administrator resets the cronjob state.

*/
package secure

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rdvproject/rdv/backend/internal/acl"
	"github.com/rdvproject/rdv/backend/internal/avu"
	"github.com/rdvproject/rdv/backend/internal/folders"
	"github.com/rdvproject/rdv/backend/internal/identity"
	"github.com/rdvproject/rdv/backend/internal/metadata"
	"github.com/rdvproject/rdv/backend/internal/notify"
	"github.com/rdvproject/rdv/backend/internal/pid"
	"github.com/rdvproject/rdv/backend/internal/provenance"
	"github.com/rdvproject/rdv/backend/internal/tree"
	"github.com/rdvproject/rdv/backend/internal/vaults"
	"github.com/rdvproject/rdv/backend/pkg/uuid"
)

// `LicenseObjectName` is the license file copied into the vault package if
// the folder has one.
const LicenseObjectName = "License.txt"

type Logger interface {
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

type Config struct {
	Directory  *identity.Directory
	Attrs      avu.Store
	Folders    *folders.Machine
	Vaults     *vaults.Machine
	Tree       tree.Store
	Provenance provenance.Log
	Notify     notify.Sink
	Acl        acl.Manager

	// `Pid` registers persistent identifiers for new vault packages.
	// Nil disables registration.
	Pid *pid.Client

	// `LandingBaseURL` is the resolve URL prefix stored with a new
	// handle, like `https://vault.example.org/packages`.
	LandingBaseURL string

	// `MaxRetries` is the retry budget.  A run that starts with the
	// budget exhausted marks the folder UNRECOVERABLE.
	MaxRetries int

	// `Backoff` is the minimum pause between two runs on the same
	// folder.
	Backoff time.Duration

	// `CopyBytesPerSec` throttles the tree copy.  Zero means
	// unthrottled.
	CopyBytesPerSec int64

	// `GenerateDataPackageRef` stamps a fresh UUID reference on each new
	// vault package.
	GenerateDataPackageRef bool
}

type Workflow struct {
	lg    Logger
	dir   *identity.Directory
	attrs avu.Store
	fsm   *folders.Machine
	vsm   *vaults.Machine
	tr    tree.Store
	prov  provenance.Log
	sink  notify.Sink
	acl   acl.Manager
	pid   *pid.Client
	cfg   *Config
	now   func() time.Time
}

func New(lg Logger, cfg *Config) *Workflow {
	return &Workflow{
		lg:    lg,
		dir:   cfg.Directory,
		attrs: cfg.Attrs,
		fsm:   cfg.Folders,
		vsm:   cfg.Vaults,
		tr:    cfg.Tree,
		prov:  cfg.Provenance,
		sink:  cfg.Notify,
		acl:   cfg.Acl,
		pid:   cfg.Pid,
		cfg:   cfg,
		now:   time.Now,
	}
}

// `Secure()` runs the vault copy for one folder.  It returns nil on
// completion, a `*PrecheckError` if the run did not start, a
// `*RetryableError` if it failed and retry state was recorded, or an
// `*UnrecoverableError` if the retry budget is exhausted.
func (w *Workflow) Secure(ctx context.Context, actor, folder string) error {
	if err := w.precheck(actor, folder); err != nil {
		return err
	}

	// The ceiling check runs before any side effect; an exhausted folder
	// is marked unrecoverable without touching ACLs or the copy state.
	retries, err := w.getRetryCount(folder)
	if err != nil {
		return w.fail(folder, StepTarget, err)
	}
	if retries >= w.cfg.MaxRetries {
		return w.giveUp(folder, retries)
	}
	w.setAttr(folder, avu.AttrCopyLastRun, w.unixNow())
	w.setAttr(folder, avu.AttrCronjobCopyToVault, avu.CronjobProcessing)

	if err := w.acquireAccess(folder); err != nil {
		return w.fail(folder, StepAcl, err)
	}
	target, err := w.ensureTarget(folder)
	if err != nil {
		return w.fail(folder, StepTarget, err)
	}
	w.lg.Infow(
		"Copying folder to vault.",
		"folder", folder,
		"target", target,
	)

	copyCfg := &tree.CopyConfig{BytesPerSec: w.cfg.CopyBytesPerSec}
	if err := tree.CopyTree(ctx, w.tr, folder, target, copyCfg); err != nil {
		return w.fail(folder, StepCopy, err)
	}
	if err := w.stampReference(target); err != nil {
		return w.fail(folder, StepReference, err)
	}
	if err := w.copyMetadata(folder, target); err != nil {
		return w.fail(folder, StepMetadata, err)
	}
	if err := w.enableSearchIndex(folder, target); err != nil {
		return w.fail(folder, StepSearchIndex, err)
	}
	if err := w.prov.Copy(folder, target); err != nil {
		return w.fail(folder, StepProvenance, err)
	}
	if err := w.registerPid(target); err != nil {
		return w.fail(folder, StepPid, err)
	}
	if err := w.setVaultAcls(folder, target); err != nil {
		return w.fail(folder, StepVaultAcl, err)
	}
	err = w.vsm.Transition(
		identity.SystemUser, target, vaults.StatusUnpublished,
	)
	if err != nil {
		return w.fail(folder, StepVaultStatus, err)
	}
	if err := w.attrs.Set(folder, avu.AttrVaultPackage, target); err != nil {
		return w.fail(folder, StepBackRef, err)
	}
	if err := w.finalize(folder, target); err != nil {
		return w.fail(folder, StepFinalize, err)
	}

	w.lg.Infow(
		"Secured folder in vault.",
		"folder", folder,
		"target", target,
	)
	return nil
}

func (w *Workflow) precheck(actor, folder string) error {
	if actor != identity.SystemUser && !w.dir.IsAdmin(actor) {
		return &PrecheckError{Reason: "not a system actor"}
	}

	cronjob, ok, err := w.attrs.Get(folder, avu.AttrCronjobCopyToVault)
	if err != nil {
		return &PrecheckError{Reason: err.Error()}
	}
	if !ok {
		return &PrecheckError{Reason: "folder is not scheduled"}
	}
	switch cronjob {
	case avu.CronjobPending, avu.CronjobRetry:
		// proceed
	case avu.CronjobProcessing:
		// Another run may still be active.  This is advisory: a
		// crashed run also leaves PROCESSING behind, which an
		// administrator resets out-of-band.
		return &PrecheckError{Reason: "folder is busy"}
	default:
		return &PrecheckError{Reason: fmt.Sprintf(
			"cronjob state `%s` is terminal", cronjob,
		)}
	}

	lastRun, ok, err := w.getLastRun(folder)
	if err != nil {
		return &PrecheckError{Reason: err.Error()}
	}
	if ok && w.now().Before(lastRun.Add(w.cfg.Backoff)) {
		return &PrecheckError{Reason: "backoff has not elapsed"}
	}
	return nil
}

// `fail()` records the retry state for the next sweep.  A failure recording
// that state is reported to the datamanagers separately, because the folder
// would otherwise silently stall.
func (w *Workflow) fail(folder, step string, cause error) error {
	w.lg.Errorw(
		"Vault copy failed.",
		"folder", folder,
		"step", step,
		"err", cause,
	)

	retries, err := w.getRetryCount(folder)
	if err == nil {
		err = w.attrs.Set(
			folder, avu.AttrCopyRetryCount,
			strconv.Itoa(retries+1),
		)
	}
	if err == nil {
		err = w.attrs.Set(
			folder, avu.AttrCronjobCopyToVault, avu.CronjobRetry,
		)
	}
	if err == nil {
		err = w.attrs.Set(
			folder, avu.AttrCopyLastRun, w.unixNow(),
		)
	}
	if err != nil {
		w.lg.Errorw(
			"Failed to set retry state.",
			"folder", folder,
			"err", err,
		)
		w.notifyDatamanagers(folder, notify.MsgRetryStateFailed)
	}

	return &RetryableError{Step: step, Err: cause}
}

// `giveUp()` ends the retry loop.  The cronjob attribute stays behind as
// UNRECOVERABLE so the folder is visible to administrators; the retry count
// and the target back-reference are removed.
func (w *Workflow) giveUp(folder string, retries int) error {
	w.setAttr(
		folder, avu.AttrCronjobCopyToVault, avu.CronjobUnrecoverable,
	)
	w.removeAttr(folder, avu.AttrCopyRetryCount)
	w.removeAttr(folder, avu.AttrCopyTarget)
	w.notifyDatamanagers(folder, notify.MsgCopyToVaultFailed)
	w.lg.Errorw(
		"Giving up vault copy.",
		"folder", folder,
		"retries", retries,
	)
	return &UnrecoverableError{Retries: retries}
}

func (w *Workflow) acquireAccess(folder string) error {
	level, err := w.acl.LevelOf(folder, identity.SystemUser)
	if err != nil {
		return err
	}
	if level >= acl.LevelWrite {
		return nil
	}
	return w.acl.Grant(folder, identity.SystemUser, acl.LevelWrite, true)
}

// `ensureTarget()` returns the vault target, reusing a previously recorded
// one so that a retry does not create orphan collections.  A fresh target
// is derived from the vault group and the folder name plus a timestamp,
// with a numeric suffix on collision.  The target collection, its
// INCOMPLETE status, and the back-reference must all be persisted before
// the copy starts.
func (w *Workflow) ensureTarget(folder string) (string, error) {
	if target, ok, err := w.attrs.Get(
		folder, avu.AttrCopyTarget,
	); err != nil {
		return "", err
	} else if ok {
		return target, nil
	}

	group, err := w.dir.GroupOf(folder)
	if err != nil {
		return "", err
	}
	vaultHome := w.dir.HomeOf(identity.VaultGroupOf(group))
	base := fmt.Sprintf(
		"%s/%s[%d]", vaultHome, tree.Base(folder), w.now().Unix(),
	)
	target := base
	for i := 1; ; i++ {
		exists, err := w.tr.CollectionExists(target)
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		target = fmt.Sprintf("%s_%d", base, i)
	}

	if err := w.tr.EnsureCollection(target); err != nil {
		return "", err
	}
	err = w.vsm.Transition(
		identity.SystemUser, target, vaults.StatusIncomplete,
	)
	if err != nil {
		return "", err
	}
	if err := w.attrs.Set(folder, avu.AttrCopyTarget, target); err != nil {
		return "", err
	}
	return target, nil
}

func (w *Workflow) stampReference(target string) error {
	if !w.cfg.GenerateDataPackageRef {
		return nil
	}
	_, ok, err := w.attrs.Get(target, avu.AttrDataPackageReference)
	if err != nil || ok {
		return err
	}
	ref, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	return w.attrs.Set(
		target, avu.AttrDataPackageReference, ref.String(),
	)
}

// `copyMetadata()` copies the user metadata attributes, stores a
// timestamped snapshot of the metadata document, and copies the license
// file if there is one.
func (w *Workflow) copyMetadata(folder, target string) error {
	entries, err := w.attrs.QueryPrefix(folder, avu.UserPrefix)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.attrs.Set(target, e.Attr, e.Value); err != nil {
			return err
		}
	}

	src := tree.Join(folder, metadata.ObjectName)
	if ok, err := w.tr.ObjectExists(src); err != nil {
		return err
	} else if ok {
		snapshot := fmt.Sprintf(
			"%s[%d]%s",
			metadata.ObjectPrefix, w.now().Unix(),
			metadata.ObjectSuffix,
		)
		err := w.copyObject(src, tree.Join(target, snapshot))
		if err != nil {
			return err
		}
	}

	license := tree.Join(folder, LicenseObjectName)
	if ok, err := w.tr.ObjectExists(license); err != nil {
		return err
	} else if ok {
		err := w.copyObject(
			license, tree.Join(target, LicenseObjectName),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Workflow) copyObject(src, dst string) error {
	rd, err := w.tr.OpenObject(src)
	if err != nil {
		return err
	}
	defer func() { _ = rd.Close() }()
	wr, err := w.tr.CreateObject(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(wr, rd); err != nil {
		_ = wr.Close()
		return err
	}
	return wr.Close()
}

func (w *Workflow) enableSearchIndex(folder, target string) error {
	group, err := w.dir.GroupOf(folder)
	if err != nil {
		return err
	}
	if !identity.IsDepositGroup(group) {
		return nil
	}
	return w.attrs.Set(target, avu.AttrSearchIndex, "yes")
}

func (w *Workflow) registerPid(target string) error {
	if w.pid == nil {
		return nil
	}
	ref, ok, err := w.attrs.Get(target, avu.AttrDataPackageReference)
	if err != nil {
		return err
	}
	if !ok {
		ref = tree.Base(target)
	}
	handle, err := w.pid.Register(
		ref, w.cfg.LandingBaseURL+"/"+ref,
	)
	if err != nil {
		return err
	}
	return w.attrs.Set(target, avu.AttrPid, handle)
}

// `setVaultAcls()` hands the package to the vault group and grants read to
// the datamanager and the originating group, then takes write on the
// source and its ancestors for the finalization.
func (w *Workflow) setVaultAcls(folder, target string) error {
	group, err := w.dir.GroupOf(folder)
	if err != nil {
		return err
	}
	vaultGroup := identity.VaultGroupOf(group)

	err = w.acl.Grant(target, vaultGroup, acl.LevelOwn, true)
	if err != nil {
		return err
	}
	if category, ok := w.dir.CategoryOf(group); ok {
		if dm, ok := w.dir.DatamanagerGroup(category); ok {
			err := w.acl.Grant(target, dm, acl.LevelRead, true)
			if err != nil {
				return err
			}
		}
	}
	if err := w.acl.Grant(target, group, acl.LevelRead, true); err != nil {
		return err
	}

	err = w.acl.Grant(folder, identity.SystemUser, acl.LevelWrite, true)
	if err != nil {
		return err
	}
	for p := tree.Parent(folder); p != ""; p = tree.Parent(p) {
		err := w.acl.Grant(
			p, identity.SystemUser, acl.LevelWrite, false,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// `finalize()` runs the secured side effects, then returns the source
// folder to its default state.  Deposit folders are removed by the side
// effects, so only research folders need the status transition and the ACL
// cleanup.
func (w *Workflow) finalize(folder, target string) error {
	group, err := w.dir.GroupOf(folder)
	if err != nil {
		return err
	}

	if err := w.fsm.SecuredEffects(folder, target); err != nil {
		return err
	}
	if identity.IsDepositGroup(group) {
		return nil
	}

	w.setAttr(folder, avu.AttrCronjobCopyToVault, avu.CronjobOk)
	err = w.fsm.Transition(
		identity.SystemUser, folder, folders.StatusFolder,
	)
	if err != nil {
		return err
	}

	// Clean up the write access taken for the copy.  Failures only get
	// logged; the folder is already finalized.
	err = w.acl.Revoke(folder, identity.SystemUser, true)
	if err != nil {
		w.lg.Warnw(
			"Failed to revoke folder access.",
			"folder", folder,
			"err", err,
		)
	}
	for p := tree.Parent(folder); p != ""; p = tree.Parent(p) {
		err := w.acl.Revoke(p, identity.SystemUser, false)
		if err != nil {
			w.lg.Warnw(
				"Failed to revoke folder access.",
				"folder", p,
				"err", err,
			)
		}
	}
	return nil
}

func (w *Workflow) notifyDatamanagers(folder, msg string) {
	group, err := w.dir.GroupOf(folder)
	if err != nil {
		w.lg.Warnw(
			"Failed to determine folder group.",
			"folder", folder,
			"err", err,
		)
		return
	}
	category, ok := w.dir.CategoryOf(group)
	if !ok {
		return
	}
	dm, ok := w.dir.DatamanagerGroup(category)
	if !ok {
		return
	}
	for _, user := range w.dir.Members(dm) {
		err := w.sink.Notify(identity.SystemUser, user, folder, msg)
		if err != nil {
			w.lg.Warnw(
				"Failed to send notification.",
				"recipient", user,
				"err", err,
			)
		}
	}
}

func (w *Workflow) getRetryCount(folder string) (int, error) {
	v, ok, err := w.attrs.Get(folder, avu.AttrCopyRetryCount)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("malformed retry count: %v", err)
	}
	return n, nil
}

func (w *Workflow) getLastRun(folder string) (time.Time, bool, error) {
	v, ok, err := w.attrs.Get(folder, avu.AttrCopyLastRun)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf(
			"malformed last run time: %v", err,
		)
	}
	return time.Unix(sec, 0), true, nil
}

func (w *Workflow) unixNow() string {
	return strconv.FormatInt(w.now().Unix(), 10)
}

func (w *Workflow) setAttr(folder, attr, value string) {
	if err := w.attrs.Set(folder, attr, value); err != nil {
		w.lg.Errorw(
			"Failed to set attribute.",
			"folder", folder,
			"attr", attr,
			"err", err,
		)
	}
}

func (w *Workflow) removeAttr(folder, attr string) {
	if err := w.attrs.Remove(folder, attr); err != nil {
		w.lg.Warnw(
			"Failed to remove attribute.",
			"folder", folder,
			"attr", attr,
			"err", err,
		)
	}
}
