/*

Package `metadata` defines the contract to the metadata subsystem.  The full
schema machinery lives outside this service; the state machines only need to
ask whether a metadata document is acceptable before a folder may be
submitted or a vault package may be submitted for publication.

*/
package metadata

import (
	"encoding/json"
	"fmt"
)

// `ObjectName` is the well-known name of the metadata document directly
// below a folder or vault package.  Vault packages keep timestamped
// snapshots `rdv-metadata[<timestamp>].json`.
const ObjectName = "rdv-metadata.json"

// `ObjectPrefix` and `ObjectSuffix` delimit the timestamp in a vault
// metadata snapshot name.
const (
	ObjectPrefix = "rdv-metadata"
	ObjectSuffix = ".json"
)

type Validator interface {
	// `Validate()` checks a metadata document.  With `strict`, required
	// fields must be present; without, only structural validity is
	// checked.  A nil return means acceptable.
	Validate(doc []byte, strict bool) error
}

// `JSONValidator` accepts any well-formed JSON object, and with `strict`
// additionally requires the fields listed in `Required`.  Deployments that
// carry the full schema toolchain plug in their own `Validator` instead.
type JSONValidator struct {
	Required []string
}

func (v *JSONValidator) Validate(doc []byte, strict bool) error {
	var obj map[string]interface{}
	if err := json.Unmarshal(doc, &obj); err != nil {
		return &InvalidError{Reason: err.Error()}
	}
	if obj == nil {
		return &InvalidError{Reason: "not a JSON object"}
	}
	if !strict {
		return nil
	}
	for _, f := range v.Required {
		if _, ok := obj[f]; !ok {
			return &InvalidError{Reason: fmt.Sprintf(
				"missing required field `%s`", f,
			)}
		}
	}
	return nil
}

type InvalidError struct {
	Reason string
}

func (err *InvalidError) Error() string {
	return "invalid metadata: " + err.Reason
}
