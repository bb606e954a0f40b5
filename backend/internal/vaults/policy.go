package vaults

import (
	"io/ioutil"
	"time"

	"github.com/rdvproject/rdv/backend/internal/identity"
	"github.com/rdvproject/rdv/backend/internal/provenance"
	"github.com/rdvproject/rdv/backend/internal/tree"

	"github.com/rdvproject/rdv/backend/internal/metadata"
)

// `legalTransitions` is the static transition allow-list.  `StatusEmpty` to
// `StatusIncomplete` is included so that the secure workflow creates new
// packages through the same commit path as every other transition.
var legalTransitions = map[[2]Status]struct{}{
	{StatusEmpty, StatusIncomplete}:       {},
	{StatusIncomplete, StatusUnpublished}: {},

	{StatusUnpublished, StatusSubmittedForPublication}: {},

	{StatusSubmittedForPublication, StatusUnpublished}:            {},
	{StatusSubmittedForPublication, StatusApprovedForPublication}: {},

	{StatusApprovedForPublication, StatusPublished}: {},

	{StatusPublished, StatusPendingDepublication}:   {},
	{StatusPendingDepublication, StatusDepublished}: {},

	{StatusDepublished, StatusPendingRepublication}: {},
	{StatusPendingRepublication, StatusPublished}:   {},
}

type Policy struct {
	lg   Logger
	dir  *identity.Directory
	prov provenance.Log
	tree tree.Store
	meta metadata.Validator
	now  func() time.Time
}

func (p *Policy) Check(actor, pkg string, cur, target Status) error {
	if _, ok := legalTransitions[[2]Status{cur, target}]; !ok {
		return &DeniedError{Reason: ReasonIllegalTransition}
	}

	switch target {
	case StatusSubmittedForPublication:
		return p.checkMetadata(pkg)

	case StatusApprovedForPublication:
		return p.checkDatamanager(actor, pkg)
	}

	return nil
}

// `checkMetadata()` requires a schema-valid metadata snapshot.  Publication
// uses the strict check: required fields must be present, unlike the lenient
// check at folder submission.
func (p *Policy) checkMetadata(pkg string) error {
	path, ok, err := LatestMetadataPath(p.tree, pkg)
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
	if err := p.meta.Validate(doc, true); err != nil {
		return &DeniedError{Reason: ReasonMetadataInvalid}
	}
	return nil
}

func (p *Policy) checkDatamanager(actor, pkg string) error {
	if actor == identity.SystemUser || p.dir.IsAdmin(actor) {
		return nil
	}
	group, err := p.dir.GroupOf(pkg)
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

// `PreTransition()` logs the cancellation of a pending publication before
// the status moves back to UNPUBLISHED.
func (p *Policy) PreTransition(actor, pkg string, cur, target Status) error {
	if cur == StatusSubmittedForPublication &&
		target == StatusUnpublished {
		err := p.prov.Append(
			pkg, actor,
			provenance.ActionCanceledPublication,
			p.now(),
		)
		if err != nil {
			p.lg.Warnw(
				"Failed to append action log entry.",
				"package", pkg,
				"err", err,
			)
		}
	}
	return nil
}
