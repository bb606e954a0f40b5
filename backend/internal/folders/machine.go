package folders

import (
	"time"

	"github.com/rdvproject/rdv/backend/internal/acl"
	"github.com/rdvproject/rdv/backend/internal/avu"
	"github.com/rdvproject/rdv/backend/internal/identity"
	"github.com/rdvproject/rdv/backend/internal/metadata"
	"github.com/rdvproject/rdv/backend/internal/notify"
	"github.com/rdvproject/rdv/backend/internal/provenance"
	"github.com/rdvproject/rdv/backend/internal/tree"
)

type Logger interface {
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

type MachineConfig struct {
	Directory  *identity.Directory
	Attrs      avu.Store
	Provenance provenance.Log
	Notify     notify.Sink
	Tree       tree.Store
	Acl        acl.Manager
	Metadata   metadata.Validator
}

// `Machine` commits folder status transitions.  Legality and pre-transition
// side effects are delegated to `Policy`; post-transition side effects run
// after the commit and are logged but never rolled back.
type Machine struct {
	lg     Logger
	dir    *identity.Directory
	attrs  avu.Store
	status *StatusStore
	locks  *Locks
	policy *Policy
	prov   provenance.Log
	sink   notify.Sink
	tree   tree.Store
	acl    acl.Manager
	now    func() time.Time
}

func NewMachine(lg Logger, cfg *MachineConfig) *Machine {
	locks := NewLocks(cfg.Attrs)
	return &Machine{
		lg:     lg,
		dir:    cfg.Directory,
		attrs:  cfg.Attrs,
		status: NewStatusStore(cfg.Attrs),
		locks:  locks,
		policy: &Policy{
			lg:    lg,
			dir:   cfg.Directory,
			locks: locks,
			prov:  cfg.Provenance,
			tree:  cfg.Tree,
			meta:  cfg.Metadata,
		},
		prov: cfg.Provenance,
		sink: cfg.Notify,
		tree: cfg.Tree,
		acl:  cfg.Acl,
		now:  time.Now,
	}
}

func (m *Machine) Status(folder string) (Status, error) {
	return m.status.Get(folder)
}

func (m *Machine) Locks() *Locks {
	return m.locks
}

// `Transition()` moves `folder` to `target`.  A transition whose
// post-transition hook demands a follow-up status, like auto-accept of a
// submission without a datamanager group, continues in the same call as the
// system identity; the loop replaces recursive self-invocation, so a
// pathological configuration cannot recurse without bound.
func (m *Machine) Transition(actor, folder string, target Status) error {
	next := &target
	for next != nil {
		t := *next
		var err error
		next, err = m.transitionOnce(actor, folder, t)
		if err != nil {
			return err
		}
		actor = identity.SystemUser
	}
	return nil
}

func (m *Machine) transitionOnce(
	actor, folder string, target Status,
) (*Status, error) {
	cur, err := m.status.Get(folder)
	if err != nil {
		return nil, err
	}
	if cur == target {
		// The transition has already been applied, perhaps by a
		// concurrent call.  Report success without side effects.
		return nil, nil
	}

	if err := m.policy.Check(actor, folder, cur, target); err != nil {
		return nil, err
	}
	if err := m.policy.PreTransition(actor, folder, cur, target); err != nil {
		return nil, err
	}

	if err := m.status.Commit(folder, cur, target); err != nil {
		if !avu.IsConflictError(err) {
			return nil, err
		}
		// A concurrent transition won the commit.  Re-read: if it
		// applied our target, this call is a duplicate and succeeds;
		// otherwise the pair `(new current, target)` was never
		// validated, so deny.
		cur2, err2 := m.status.Get(folder)
		if err2 != nil {
			return nil, err2
		}
		if cur2 == target {
			return nil, nil
		}
		return nil, &DeniedError{Reason: ReasonIllegalTransition}
	}

	return m.postTransition(actor, folder, target), nil
}

// `postTransition()` runs the side effects of a committed transition.
// Failures are logged and do not undo the commit.  A non-nil return asks
// the transition loop to continue toward that status.
func (m *Machine) postTransition(
	actor, folder string, target Status,
) *Status {
	switch target {
	case StatusLocked:
		m.appendProvenance(folder, actor, provenance.ActionLocked)
		return nil

	case StatusSubmitted:
		return m.postSubmitted(actor, folder)

	case StatusAccepted:
		m.postAccepted(actor, folder)
		return nil

	case StatusRejected:
		m.postRejected(actor, folder)
		return nil

	case StatusFolder:
		m.postFolder(actor, folder)
		return nil

	case StatusSecured:
		m.postSecured(folder)
		return nil
	}
	return nil
}

func (m *Machine) postSubmitted(actor, folder string) *Status {
	m.appendProvenance(folder, actor, provenance.ActionSubmitted)
	m.setAttr(folder, avu.AttrSubmittedBy, actor)

	dm, ok := m.datamanagerGroupOf(folder)
	if !ok {
		// No datamanager reviews this category.  Accept right away.
		next := StatusAccepted
		return &next
	}
	for _, user := range m.dir.Members(dm) {
		m.notify(actor, user, folder, notify.MsgSubmitted)
	}
	return nil
}

func (m *Machine) postAccepted(actor, folder string) {
	group, err := m.dir.GroupOf(folder)
	if err != nil {
		m.lg.Errorw(
			"Failed to determine folder group.",
			"folder", folder,
			"err", err,
		)
		return
	}
	_, hasDm := m.datamanagerGroupOf(folder)
	isDeposit := identity.IsDepositGroup(group)
	if isDeposit || !hasDm {
		actor = identity.SystemUser
	}

	m.appendProvenance(folder, actor, provenance.ActionAccepted)
	m.setAttr(folder, avu.AttrAcceptedBy, actor)

	if !isDeposit && hasDm {
		if submitter, ok := m.getAttr(folder, avu.AttrSubmittedBy); ok {
			m.notify(actor, submitter, folder, notify.MsgAccepted)
		}
	}

	// Mark the folder for the vault-copy sweep.
	m.setAttr(folder, avu.AttrCronjobCopyToVault, avu.CronjobPending)
	m.lg.Infow("Scheduled folder for vault copy.", "folder", folder)
}

func (m *Machine) postRejected(actor, folder string) {
	m.appendProvenance(folder, actor, provenance.ActionRejected)
	if submitter, ok := m.getAttr(folder, avu.AttrSubmittedBy); ok {
		m.notify(actor, submitter, folder, notify.MsgRejected)
	}
}

// `postFolder()` distinguishes an ordinary unlock or unsubmit from the
// finalization at the end of a completed vault copy, which is marked by
// `CronjobOk` and cleans up the copy bookkeeping instead of logging an
// unlock action.
func (m *Machine) postFolder(actor, folder string) {
	cronjob, ok := m.getAttr(folder, avu.AttrCronjobCopyToVault)
	if ok && cronjob == avu.CronjobOk {
		m.clearCopyState(folder)
		return
	}

	action := provenance.ActionUnlocked
	if head, ok, err := m.prov.Head(folder); err != nil {
		m.lg.Warnw(
			"Failed to read action log head.",
			"folder", folder,
			"err", err,
		)
	} else if ok && head.Action == provenance.ActionSubmitted {
		action = provenance.ActionUnsubmitted
	}
	m.appendProvenance(folder, actor, action)
}

func (m *Machine) postSecured(folder string) {
	vaultPackage, ok := m.getAttr(folder, avu.AttrVaultPackage)
	if !ok {
		vaultPackage = folder
	}
	if err := m.SecuredEffects(folder, vaultPackage); err != nil {
		m.lg.Errorw(
			"Secured side effects failed.",
			"folder", folder,
			"err", err,
		)
	}
}

// `SecuredEffects()` runs the side effects of a folder reaching the vault:
// a provenance entry, notifications to submitter and accepter addressed to
// the vault package, and, for deposit folders, read access for the
// submitter followed by removal of the deposit folder itself.  The secure
// workflow calls it before finalizing the source folder; the legacy
// SECURED status triggers it as a post-transition hook.
func (m *Machine) SecuredEffects(folder, vaultPackage string) error {
	actor := identity.SystemUser
	m.appendProvenance(folder, actor, provenance.ActionSecured)

	submitter, hasSubmitter := m.getAttr(folder, avu.AttrSubmittedBy)
	accepter, hasAccepter := m.getAttr(folder, avu.AttrAcceptedBy)
	if hasSubmitter {
		m.notify(actor, submitter, vaultPackage, notify.MsgSecured)
	}
	if hasAccepter && accepter != submitter {
		m.notify(actor, accepter, vaultPackage, notify.MsgSecured)
	}

	group, err := m.dir.GroupOf(folder)
	if err != nil {
		return err
	}
	if !identity.IsDepositGroup(group) {
		return nil
	}

	// Deposit folders are one-shot.  The submitter keeps read access on
	// the secured package; the deposit itself goes away.
	if hasSubmitter {
		err := m.acl.Grant(
			vaultPackage, submitter, acl.LevelRead, true,
		)
		if err != nil {
			return err
		}
	}
	if err := m.tree.RemoveTree(folder); err != nil {
		return err
	}
	return m.attrs.RemoveEntity(folder)
}

// `clearCopyState()` removes the vault-copy bookkeeping after a completed
// copy.  The copy target back-reference stays on deposit folders because
// the folder itself is deleted right after.
func (m *Machine) clearCopyState(folder string) {
	m.removeAttr(folder, avu.AttrCronjobCopyToVault)
	m.removeAttr(folder, avu.AttrCopyRetryCount)
	m.removeAttr(folder, avu.AttrCopyLastRun)

	group, err := m.dir.GroupOf(folder)
	if err != nil {
		m.lg.Warnw(
			"Failed to determine folder group.",
			"folder", folder,
			"err", err,
		)
		return
	}
	if !identity.IsDepositGroup(group) {
		m.removeAttr(folder, avu.AttrCopyTarget)
	}
}

func (m *Machine) datamanagerGroupOf(folder string) (string, bool) {
	group, err := m.dir.GroupOf(folder)
	if err != nil {
		m.lg.Errorw(
			"Failed to determine folder group.",
			"folder", folder,
			"err", err,
		)
		return "", false
	}
	category, ok := m.dir.CategoryOf(group)
	if !ok {
		return "", false
	}
	return m.dir.DatamanagerGroup(category)
}

func (m *Machine) appendProvenance(folder, actor, action string) {
	if err := m.prov.Append(folder, actor, action, m.now()); err != nil {
		m.lg.Errorw(
			"Failed to append action log entry.",
			"folder", folder,
			"action", action,
			"err", err,
		)
	}
}

func (m *Machine) notify(actor, recipient, targetRef, message string) {
	err := m.sink.Notify(actor, recipient, targetRef, message)
	if err != nil {
		m.lg.Warnw(
			"Failed to send notification.",
			"recipient", recipient,
			"message", message,
			"err", err,
		)
	}
}

func (m *Machine) getAttr(folder, attr string) (string, bool) {
	v, ok, err := m.attrs.Get(folder, attr)
	if err != nil {
		m.lg.Warnw(
			"Failed to read attribute.",
			"folder", folder,
			"attr", attr,
			"err", err,
		)
		return "", false
	}
	return v, ok
}

func (m *Machine) setAttr(folder, attr, value string) {
	if err := m.attrs.Set(folder, attr, value); err != nil {
		m.lg.Errorw(
			"Failed to set attribute.",
			"folder", folder,
			"attr", attr,
			"err", err,
		)
	}
}

func (m *Machine) removeAttr(folder, attr string) {
	if err := m.attrs.Remove(folder, attr); err != nil {
		m.lg.Warnw(
			"Failed to remove attribute.",
			"folder", folder,
			"attr", attr,
			"err", err,
		)
	}
}
