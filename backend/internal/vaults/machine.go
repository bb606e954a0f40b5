package vaults

import (
	"time"

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
	Metadata   metadata.Validator
}

// `Machine` commits vault-package status transitions.  It has the same
// shape as the folder machine: idempotent short-circuit, policy check,
// compare-and-swap commit, then post-transition side effects that are
// logged but never rolled back.
type Machine struct {
	lg     Logger
	dir    *identity.Directory
	attrs  avu.Store
	status *StatusStore
	policy *Policy
	prov   provenance.Log
	sink   notify.Sink
	now    func() time.Time
}

func NewMachine(lg Logger, cfg *MachineConfig) *Machine {
	return &Machine{
		lg:     lg,
		dir:    cfg.Directory,
		attrs:  cfg.Attrs,
		status: NewStatusStore(cfg.Attrs),
		policy: &Policy{
			lg:   lg,
			dir:  cfg.Directory,
			prov: cfg.Provenance,
			tree: cfg.Tree,
			meta: cfg.Metadata,
			now:  time.Now,
		},
		prov: cfg.Provenance,
		sink: cfg.Notify,
		now:  time.Now,
	}
}

func (m *Machine) Status(pkg string) (Status, error) {
	return m.status.Get(pkg)
}

// `Transition()` moves `pkg` to `target`.  Like the folder machine, a
// post-transition hook may demand a follow-up status, which continues in
// the same call as the system identity.
func (m *Machine) Transition(actor, pkg string, target Status) error {
	next := &target
	for next != nil {
		t := *next
		var err error
		next, err = m.transitionOnce(actor, pkg, t)
		if err != nil {
			return err
		}
		actor = identity.SystemUser
	}
	return nil
}

func (m *Machine) transitionOnce(
	actor, pkg string, target Status,
) (*Status, error) {
	cur, err := m.status.Get(pkg)
	if err != nil {
		return nil, err
	}
	if cur == target {
		return nil, nil // idempotent
	}

	if err := m.policy.Check(actor, pkg, cur, target); err != nil {
		return nil, err
	}
	if err := m.policy.PreTransition(actor, pkg, cur, target); err != nil {
		return nil, err
	}

	if err := m.status.Commit(pkg, cur, target); err != nil {
		if !avu.IsConflictError(err) {
			return nil, err
		}
		cur2, err2 := m.status.Get(pkg)
		if err2 != nil {
			return nil, err2
		}
		if cur2 == target {
			return nil, nil
		}
		return nil, &DeniedError{Reason: ReasonIllegalTransition}
	}

	return m.postTransition(actor, pkg, cur, target), nil
}

func (m *Machine) postTransition(
	actor, pkg string, cur, target Status,
) *Status {
	switch target {
	case StatusSubmittedForPublication:
		return m.postSubmitted(actor, pkg)

	case StatusApprovedForPublication:
		m.postApproved(actor, pkg)

	case StatusPublished:
		msg := notify.MsgPublished
		if cur == StatusPendingRepublication {
			msg = notify.MsgRepublished
		}
		m.appendProvenance(pkg, actor, provenance.ActionPublished)
		m.notifySubmitterAndApprover(actor, pkg, msg)

	case StatusPendingDepublication:
		m.appendProvenance(
			pkg, actor, provenance.ActionPendingDepublication,
		)

	case StatusDepublished:
		m.appendProvenance(pkg, actor, provenance.ActionDepublished)
		m.notifySubmitterAndApprover(
			actor, pkg, notify.MsgDepublished,
		)

	case StatusPendingRepublication:
		m.appendProvenance(
			pkg, actor, provenance.ActionPendingRepublication,
		)
	}
	return nil
}

func (m *Machine) postSubmitted(actor, pkg string) *Status {
	m.appendProvenance(
		pkg, actor, provenance.ActionSubmittedForPublication,
	)
	m.setAttr(pkg, avu.AttrSubmittedBy, actor)

	dm, ok := m.datamanagerGroupOf(pkg)
	if !ok {
		// No datamanager reviews this category.  Approve right away.
		next := StatusApprovedForPublication
		return &next
	}
	for _, user := range m.dir.Members(dm) {
		m.notify(actor, user, pkg, notify.MsgSubmittedForPublication)
	}
	return nil
}

func (m *Machine) postApproved(actor, pkg string) {
	m.appendProvenance(
		pkg, actor, provenance.ActionApprovedForPublication,
	)
	m.setAttr(pkg, avu.AttrApprovedBy, actor)
	if submitter, ok := m.getAttr(pkg, avu.AttrSubmittedBy); ok {
		m.notify(
			actor, submitter, pkg,
			notify.MsgApprovedForPublication,
		)
	}
}

func (m *Machine) notifySubmitterAndApprover(actor, pkg, msg string) {
	submitter, hasSubmitter := m.getAttr(pkg, avu.AttrSubmittedBy)
	approver, hasApprover := m.getAttr(pkg, avu.AttrApprovedBy)
	if hasSubmitter {
		m.notify(actor, submitter, pkg, msg)
	}
	if hasApprover && approver != submitter {
		m.notify(actor, approver, pkg, msg)
	}
}

func (m *Machine) datamanagerGroupOf(pkg string) (string, bool) {
	group, err := m.dir.GroupOf(pkg)
	if err != nil {
		m.lg.Errorw(
			"Failed to determine package group.",
			"package", pkg,
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

func (m *Machine) appendProvenance(pkg, actor, action string) {
	if err := m.prov.Append(pkg, actor, action, m.now()); err != nil {
		m.lg.Errorw(
			"Failed to append action log entry.",
			"package", pkg,
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

func (m *Machine) getAttr(pkg, attr string) (string, bool) {
	v, ok, err := m.attrs.Get(pkg, attr)
	if err != nil {
		m.lg.Warnw(
			"Failed to read attribute.",
			"package", pkg,
			"attr", attr,
			"err", err,
		)
		return "", false
	}
	return v, ok
}

func (m *Machine) setAttr(pkg, attr, value string) {
	if err := m.attrs.Set(pkg, attr, value); err != nil {
		m.lg.Errorw(
			"Failed to set attribute.",
			"package", pkg,
			"attr", attr,
			"err", err,
		)
	}
}
