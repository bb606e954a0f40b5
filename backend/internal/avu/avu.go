/*

Package `avu` implements the per-collection attribute store that the folder
and vault state machines persist their state in.  Each entity, identified by
its collection path, has a flat set of `(attribute, value)` pairs.

The store supports compare-and-swap on a single attribute via
`SetCAS(expectedPrev)`.  A conflict at commit time indicates a concurrent
transition attempt; callers treat it like a policy denial.  This is the sole
concurrency safety net for status transitions; see package `folders`.

Reserved attribute names are defined here so that all packages agree on the
persisted layout.

*/
package avu

// `AttrX` are the reserved attribute names.  One name per concern, keyed
// per-collection.
const (
	AttrStatus             = "status"
	AttrVaultStatus        = "vault_status"
	AttrCronjobCopyToVault = "cronjob_copy_to_vault"
	AttrCopyRetryCount     = "copy_retry_count"
	AttrCopyLastRun        = "copy_last_run"
	AttrCopyTarget         = "copy_target"
	AttrLock               = "lock"

	AttrSubmittedBy          = "submitted_by"
	AttrAcceptedBy           = "accepted_by"
	AttrApprovedBy           = "approved_by"
	AttrVaultPackage         = "vault_package"
	AttrDataPackageReference = "data_package_reference"
	AttrSearchIndex          = "search_index"
	AttrPid                  = "pid"
)

// `CronjobX` are the values of `AttrCronjobCopyToVault`.  `CronjobOk` and
// `CronjobUnrecoverable` are terminal.
const (
	CronjobPending       = "CRONJOB_PENDING"
	CronjobProcessing    = "CRONJOB_PROCESSING"
	CronjobRetry         = "CRONJOB_RETRY"
	CronjobOk            = "CRONJOB_OK"
	CronjobUnrecoverable = "CRONJOB_UNRECOVERABLE"
)

// `UserPrefix` marks user metadata attributes.  The secure workflow copies
// them from the source folder to the vault package; the state machines never
// interpret them.
const UserPrefix = "usr_"

// `reserved` lists the attributes that `IsReserved()` recognizes.  User
// metadata must not use these names.
var reserved = map[string]struct{}{
	AttrStatus:               {},
	AttrVaultStatus:          {},
	AttrCronjobCopyToVault:   {},
	AttrCopyRetryCount:       {},
	AttrCopyLastRun:          {},
	AttrCopyTarget:           {},
	AttrLock:                 {},
	AttrSubmittedBy:          {},
	AttrAcceptedBy:           {},
	AttrApprovedBy:           {},
	AttrVaultPackage:         {},
	AttrDataPackageReference: {},
	AttrSearchIndex:          {},
	AttrPid:                  {},
}

func IsReserved(attr string) bool {
	_, ok := reserved[attr]
	return ok
}

type Entry struct {
	Attr  string
	Value string
}

// `Store` is the attribute store contract.  The empty string is not a valid
// stored value; `expectedPrev == ""` in `SetCAS()` means that the attribute
// is expected to be absent.
type Store interface {
	// `Get()` returns the stored value and whether it exists.
	Get(entity, attr string) (string, bool, error)

	// `Set()` upserts unconditionally.
	Set(entity, attr, value string) error

	// `SetCAS()` sets `value` only if the stored value equals
	// `expectedPrev`.  It returns a `*ConflictError` otherwise, except
	// when the stored value already equals `value`, which is reported as
	// success to keep retried commits idempotent.
	SetCAS(entity, attr, value, expectedPrev string) error

	// `Remove()` deletes the attribute.  Removing an absent attribute is
	// not an error.
	Remove(entity, attr string) error

	// `RemovePrefix()` deletes all attributes whose name starts with
	// `prefix`.
	RemovePrefix(entity, prefix string) error

	// `QueryPrefix()` lists attributes whose name starts with `prefix`,
	// ordered by attribute name.
	QueryPrefix(entity, prefix string) ([]Entry, error)

	// `FindEntitiesByAttr()` lists entities whose attribute `attr` stores
	// one of `values`.  The sweep scheduler uses it to enumerate folders
	// by cronjob status.
	FindEntitiesByAttr(attr string, values ...string) ([]string, error)

	// `RemoveEntity()` deletes all attributes of an entity.  Used when a
	// deposit folder is deleted after securing.
	RemoveEntity(entity string) error
}
