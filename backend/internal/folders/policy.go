package folders

import (
	"io/ioutil"

	"github.com/rdvproject/rdv/backend/internal/identity"
	"github.com/rdvproject/rdv/backend/internal/metadata"
	"github.com/rdvproject/rdv/backend/internal/provenance"
	"github.com/rdvproject/rdv/backend/internal/tree"
)

// `legalTransitions` is the static transition allow-list.  Pairs not listed
// here are denied regardless of actor.
var legalTransitions = map[[2]Status]struct{}{
	{StatusFolder, StatusLocked}:    {},
	{StatusFolder, StatusSubmitted}: {},

	{StatusLocked, StatusFolder}:    {},
	{StatusLocked, StatusSubmitted}: {},

	{StatusSubmitted, StatusFolder}:   {},
	{StatusSubmitted, StatusAccepted}: {},
	{StatusSubmitted, StatusRejected}: {},

	{StatusRejected, StatusFolder}:    {},
	{StatusRejected, StatusLocked}:    {},
	{StatusRejected, StatusSubmitted}: {},

	{StatusAccepted, StatusFolder}:  {},
	{StatusAccepted, StatusSecured}: {},

	{StatusSecured, StatusFolder}:    {},
	{StatusSecured, StatusLocked}:    {},
	{StatusSecured, StatusSubmitted}: {},
}

// `Policy` decides transition legality and runs the pre-transition side
// effects.  It is consulted by `Machine` after the idempotent short-circuit
// and before the status commit.
type Policy struct {
	lg    Logger
	dir   *identity.Directory
	locks *Locks
	prov  provenance.Log
	tree  tree.Store
	meta  metadata.Validator
}

// `Check()` validates `(cur, target)` against the allow-list and the
// target-specific preconditions.  A nil return means the transition may
// proceed; any other return is a user-facing denial.
func (p *Policy) Check(actor, folder string, cur, target Status) error {
	if _, ok := legalTransitions[[2]Status{cur, target}]; !ok {
		return &DeniedError{Reason: ReasonIllegalTransition}
	}

	switch target {
	case StatusSubmitted:
		return p.checkMetadata(folder)

	case StatusAccepted, StatusRejected:
		return p.checkDatamanager(actor, folder)

	case StatusSecured:
		if actor != identity.SystemUser && !p.dir.IsAdmin(actor) {
			return &DeniedError{Reason: ReasonNotAdmin}
		}
	}

	return nil
}

// `checkMetadata()` requires a metadata document directly below the folder
// that parses under the lenient schema check.  Required-field validation
// only happens later, at publication.
func (p *Policy) checkMetadata(folder string) error {
	path := tree.Join(folder, metadata.ObjectName)
	ok, err := p.tree.ObjectExists(path)
	if err != nil {
		return err
	}
	if !ok {
		return &DeniedError{Reason: ReasonMetadataMissing}
	}
	rd, err := p.tree.OpenObject(path)
	if err != nil {
		return err
	}
	doc, err := ioutil.ReadAll(rd)
	_ = rd.Close()
	if err != nil {
		return err
	}
	if err := p.meta.Validate(doc, false); err != nil {
		return &DeniedError{Reason: ReasonMetadataInvalid}
	}
	return nil
}

// `checkDatamanager()` requires membership in the datamanager group of the
// folder's category.  The system identity and admins bypass the check, so
// that auto-accept of submissions without a datamanager group works.
func (p *Policy) checkDatamanager(actor, folder string) error {
	if actor == identity.SystemUser || p.dir.IsAdmin(actor) {
		return nil
	}
	group, err := p.dir.GroupOf(folder)
	if err != nil {
		return err
	}
	category, ok := p.dir.CategoryOf(group)
	if !ok {
		return &DeniedError{Reason: ReasonNotDatamanager}
	}
	dm, ok := p.dir.DatamanagerGroup(category)
	if !ok {
		return &DeniedError{Reason: ReasonNotDatamanager}
	}
	if p.dir.RoleOf(actor, dm) == identity.RoleNone {
		return &DeniedError{Reason: ReasonNotDatamanager}
	}
	return nil
}

// `PreTransition()` runs the side effects that must complete before the
// status commit.  A failure here aborts the transition.
func (p *Policy) PreTransition(actor, folder string, cur, target Status) error {
	switch target {
	case StatusLocked, StatusSubmitted:
		if cur != StatusLocked {
			if err := p.locks.Acquire(folder); err != nil {
				p.lg.Errorw(
					"Failed to lock folder.",
					"folder", folder,
					"err", err,
				)
				return &DeniedError{Reason: ReasonCouldNotLock}
			}
		}

	case StatusFolder, StatusRejected, StatusSecured:
		if err := p.locks.Release(folder); err != nil {
			p.lg.Errorw(
				"Failed to unlock folder.",
				"folder", folder,
				"err", err,
			)
			return &DeniedError{Reason: ReasonCouldNotUnlock}
		}
	}

	// SECURED predates the vault package lifecycle.  Leaving it starts a
	// fresh action log.
	if cur == StatusSecured {
		if err := p.prov.Clear(folder); err != nil {
			p.lg.Warnw(
				"Failed to clear action log.",
				"folder", folder,
				"err", err,
			)
		}
	}

	return nil
}
