/*

Package `acl` manages access levels on collection trees.  The secure workflow
uses it to take write access on a source folder, to hand a finished vault
package to the vault group, and to grant a deposit submitter read access on
the secured package.

Grants are modeled per `(collection, principal)` pair with an optional
recursive flag, mirroring the recursive ACL operations of the underlying
storage system.

*/
package acl

// `Level` is an access level.  `LevelNull` revokes.
type Level int

const (
	LevelNull Level = iota
	LevelRead
	LevelWrite
	LevelOwn
)

func (l Level) String() string {
	switch l {
	case LevelNull:
		return "null"
	case LevelRead:
		return "read"
	case LevelWrite:
		return "write"
	case LevelOwn:
		return "own"
	default:
		return "invalid"
	}
}

type Grant struct {
	Principal string
	Level     Level
	Recursive bool
}

type Manager interface {
	// `Grant()` sets `principal`'s level on `entity`, replacing any
	// previous grant for the pair.
	Grant(entity, principal string, level Level, recursive bool) error

	// `Revoke()` removes `principal`'s grant on `entity`.  Revoking an
	// absent grant is not an error.
	Revoke(entity, principal string, recursive bool) error

	// `LevelOf()` returns the granted level, or `LevelNull` if none.
	LevelOf(entity, principal string) (Level, error)

	// `List()` returns the grants on `entity` ordered by principal.
	List(entity string) ([]Grant, error)
}
